// Package querytest provides shared test doubles for the query.Engine interface.
package querytest

import (
	"context"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// MockEngine implements query.Engine for testing. Each method delegates to an
// optional function field; when the field is nil, the canned value is
// returned (or an empty result).
type MockEngine struct {
	Scope       *visibility.Scope
	Report      *query.VisibilityReport
	Contacts    []corpus.ContactRow
	Threads     []corpus.ThreadRow
	Attachments []corpus.AttachmentRow

	// Requests records every listing request, in call order.
	Requests []query.Request

	// Optional overrides; set these to customise behavior per-test.
	ResolveVisibilityFunc func(context.Context, tenant.Schema, uuid.UUID, visibility.Relationship) (*visibility.Scope, error)
	SearchContactsFunc    func(context.Context, query.Request) (*query.Page[corpus.ContactRow], error)
	SearchThreadsFunc     func(context.Context, query.Request) (*query.Page[corpus.ThreadRow], error)
	SearchAttachmentsFunc func(context.Context, query.Request) (*query.Page[corpus.AttachmentRow], error)
}

// Compile-time check.
var _ query.Engine = (*MockEngine)(nil)

func (m *MockEngine) ResolveVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*visibility.Scope, error) {
	if m.ResolveVisibilityFunc != nil {
		return m.ResolveVisibilityFunc(ctx, schema, viewer, rel)
	}
	if m.Scope != nil {
		return m.Scope, nil
	}
	return &visibility.Scope{Viewer: viewer, Relationship: rel, Grants: []visibility.Grant{}}, nil
}

func (m *MockEngine) DescribeVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*query.VisibilityReport, error) {
	if m.Report != nil {
		return m.Report, nil
	}
	scope, err := m.ResolveVisibility(ctx, schema, viewer, rel)
	if err != nil {
		return nil, err
	}
	return &query.VisibilityReport{Scope: scope, Subjects: []corpus.ProviderUser{}}, nil
}

func (m *MockEngine) SearchContacts(ctx context.Context, req query.Request) (*query.Page[corpus.ContactRow], error) {
	m.Requests = append(m.Requests, req)
	if m.SearchContactsFunc != nil {
		return m.SearchContactsFunc(ctx, req)
	}
	return pageOf(m.Contacts, req), nil
}

func (m *MockEngine) SearchThreads(ctx context.Context, req query.Request) (*query.Page[corpus.ThreadRow], error) {
	m.Requests = append(m.Requests, req)
	if m.SearchThreadsFunc != nil {
		return m.SearchThreadsFunc(ctx, req)
	}
	return pageOf(m.Threads, req), nil
}

func (m *MockEngine) SearchAttachments(ctx context.Context, req query.Request) (*query.Page[corpus.AttachmentRow], error) {
	m.Requests = append(m.Requests, req)
	if m.SearchAttachmentsFunc != nil {
		return m.SearchAttachmentsFunc(ctx, req)
	}
	return pageOf(m.Attachments, req), nil
}

// LastRequest returns the most recent listing request.
func (m *MockEngine) LastRequest() query.Request {
	if len(m.Requests) == 0 {
		return query.Request{}
	}
	return m.Requests[len(m.Requests)-1]
}

// pageOf returns the canned rows as one page, ignoring filters.
func pageOf[T any](rows []T, req query.Request) *query.Page[T] {
	page, size := req.Page, req.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = query.DefaultPageSize
	}
	data := rows
	if data == nil {
		data = []T{}
	}
	return &query.Page[T]{Data: data, Total: int64(len(data)), Page: page, PageSize: size}
}
