// Package query assembles visibility-scoped, filtered and paginated
// listings of contacts, threads and attachments.
package query

import (
	"errors"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/pipeline"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// Paging defaults.
const (
	DefaultPageSize = 25
	MaxPageSize     = 500
)

// ErrInvalidRequest is wrapped by every request validation failure.
var ErrInvalidRequest = errors.New("invalid request")

// Sort selects the listing order. An empty Field means the kind's default
// order; a field the kind does not support is ignored.
type Sort struct {
	Field corpus.SortField
	Desc  bool
}

// Request is one listing query. Page and PageSize of zero take the
// defaults.
type Request struct {
	Schema       tenant.Schema
	Viewer       uuid.UUID
	Relationship visibility.Relationship
	Filters      pipeline.Filters
	Sort         Sort
	Page         int
	PageSize     int
}

// Page is one page of a listing. Total counts every matching row, not just
// the ones on this page.
type Page[T any] struct {
	Data        []T   `json:"data"`
	Total       int64 `json:"total"`
	Page        int   `json:"page"`
	PageSize    int   `json:"page_size"`
	HasNextPage bool  `json:"has_next_page"`
}

// VisibilityReport explains a resolved scope.
type VisibilityReport struct {
	Scope     *visibility.Scope           `json:"scope"`
	OrgWindow visibility.OrgWindowSummary `json:"org_window"`
	Subjects  []corpus.ProviderUser       `json:"subjects"`
}
