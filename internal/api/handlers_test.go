package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/pipeline"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/query/querytest"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/testutil"
	"github.com/wesm/msgscope/internal/testutil/dbtest"
	"github.com/wesm/msgscope/internal/testutil/ptr"
	"github.com/wesm/msgscope/internal/visibility"
)

func TestHandleThreads(t *testing.T) {
	engine := &querytest.MockEngine{
		Threads: []corpus.ThreadRow{
			{ThreadID: uuid.MustParse("00000000-0000-4000-8000-000000000201"), Subject: ptr.String("Quarterly invoice"), MessageCount: 2},
		},
	}
	srv := newTestServer(t, nil, engine)

	w := get(t, srv, "/api/v1/threads", tokenFor(t, testViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var resp struct {
		Data []struct {
			ThreadID     uuid.UUID `json:"thread_id"`
			Subject      string    `json:"subject"`
			MessageCount int64     `json:"message_count"`
		} `json:"data"`
		Total    int64 `json:"total"`
		Page     int   `json:"page"`
		PageSize int   `json:"page_size"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Total != 1 || len(resp.Data) != 1 || resp.Data[0].Subject != "Quarterly invoice" {
		t.Errorf("response = %+v", resp)
	}
	if resp.Page != 1 || resp.PageSize != query.DefaultPageSize {
		t.Errorf("page meta = %d/%d", resp.Page, resp.PageSize)
	}

	got := engine.LastRequest()
	if got.Viewer != testViewer.ID || got.Schema != testViewer.Schema || got.Relationship != visibility.Direct {
		t.Errorf("request = %+v", got)
	}
}

func TestListRoutesUseTheirKind(t *testing.T) {
	var called []string
	engine := &querytest.MockEngine{
		SearchContactsFunc: func(context.Context, query.Request) (*query.Page[corpus.ContactRow], error) {
			called = append(called, "contacts")
			return &query.Page[corpus.ContactRow]{Data: []corpus.ContactRow{}}, nil
		},
		SearchThreadsFunc: func(context.Context, query.Request) (*query.Page[corpus.ThreadRow], error) {
			called = append(called, "threads")
			return &query.Page[corpus.ThreadRow]{Data: []corpus.ThreadRow{}}, nil
		},
		SearchAttachmentsFunc: func(context.Context, query.Request) (*query.Page[corpus.AttachmentRow], error) {
			called = append(called, "attachments")
			return &query.Page[corpus.AttachmentRow]{Data: []corpus.AttachmentRow{}}, nil
		},
	}
	srv := newTestServer(t, nil, engine)
	tok := tokenFor(t, testViewer)

	for _, kind := range []string{"contacts", "threads", "attachments"} {
		if w := get(t, srv, "/api/v1/"+kind, tok); w.Code != http.StatusOK {
			t.Errorf("%s status = %d", kind, w.Code)
		}
	}
	if diff := cmp.Diff([]string{"contacts", "threads", "attachments"}, called); diff != "" {
		t.Errorf("engine calls (-want +got):\n%s", diff)
	}
}

func TestListRequestParams(t *testing.T) {
	domainA := uuid.MustParse("00000000-0000-4000-8000-000000000301")
	domainB := uuid.MustParse("00000000-0000-4000-8000-000000000302")
	contact := uuid.MustParse("00000000-0000-4000-8000-000000000401")
	base := query.Request{Schema: testViewer.Schema, Viewer: testViewer.ID, Relationship: visibility.Direct, Sort: query.Sort{Desc: true}}

	with := func(fn func(r *query.Request)) query.Request {
		r := base
		fn(&r)
		return r
	}

	tests := []struct {
		name   string
		params url.Values
		want   query.Request
	}{
		{"defaults", url.Values{}, base},
		{"relationship", url.Values{"as": {"Supervisor"}}, with(func(r *query.Request) {
			r.Relationship = visibility.Supervisor
		})},
		{"paging", url.Values{"page": {"3"}, "page_size": {"50"}}, with(func(r *query.Request) {
			r.Page, r.PageSize = 3, 50
		})},
		{"name sort defaults ascending", url.Values{"sort": {"client_name"}}, with(func(r *query.Request) {
			r.Sort = query.Sort{Field: corpus.SortClientName}
		})},
		{"explicit order", url.Values{"sort": {"message_count"}, "order": {"ASC"}}, with(func(r *query.Request) {
			r.Sort = query.Sort{Field: corpus.SortMessageCount}
		})},
		{"text filters", url.Values{"q": {"alice"}, "subject": {"invoice"}}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{Search: "alice", SecondarySearch: "invoice"}
		})},
		{"presence", url.Values{"has_attachments": {"true"}, "has_responses": {"0"}}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{HasAttachments: ptr.Bool(true), HasClientResponses: ptr.Bool(false)}
		})},
		{"ids repeated and comma separated", url.Values{
			"domain_id":  {domainA.String() + "," + domainB.String()},
			"contact_id": {contact.String()},
		}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{DomainIDs: []uuid.UUID{domainA, domainB}, ContactIDs: []uuid.UUID{contact}}
		})},
		{"date range", url.Values{"from": {"2024-01-01"}, "to": {"2024-03-31"}}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{
				LastContactFrom: ptr.Time(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
				LastContactTo:   ptr.Time(time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)),
			}
		})},
		{"filter expression", url.Values{"filter": {"has:attachment alice"}}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{Search: "alice", HasAttachments: ptr.Bool(true)}
		})},
		{"explicit params override filter expression", url.Values{"filter": {"has:attachment alice"}, "q": {"bob"}, "has_attachments": {"false"}}, with(func(r *query.Request) {
			r.Filters = pipeline.Filters{Search: "bob", HasAttachments: ptr.Bool(false)}
		})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &querytest.MockEngine{}
			srv := newTestServer(t, nil, engine)

			w := get(t, srv, "/api/v1/contacts?"+tt.params.Encode(), tokenFor(t, testViewer))
			if w.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
			}
			if diff := cmp.Diff(tt.want, engine.LastRequest(), cmpopts.EquateEmpty()); diff != "" {
				t.Errorf("request (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListRequestValidation(t *testing.T) {
	tests := []struct {
		name        string
		query       string
		wantMessage string
	}{
		{"unknown relationship", "as=manager", "as"},
		{"negative page", "page=-1", "page"},
		{"non-numeric page size", "page_size=ten", "page_size"},
		{"unknown sort", "sort=popularity", "sort"},
		{"bad order", "order=sideways", "order"},
		{"bad bool", "has_attachments=maybe", "has_attachments"},
		{"bad domain id", "domain_id=not-a-uuid", "domain_id"},
		{"bad date", "from=01/02/2024", "from"},
		{"inverted range", "from=2024-03-01&to=2024-02-01", "to must not be before from"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &querytest.MockEngine{}
			srv := newTestServer(t, nil, engine)

			w := get(t, srv, "/api/v1/threads?"+tt.query, tokenFor(t, testViewer))
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, http.StatusBadRequest, w.Body.String())
			}
			resp := decodeError(t, w)
			if resp.Error != "invalid_request" || !strings.Contains(resp.Message, tt.wantMessage) {
				t.Errorf("error = %+v, want invalid_request mentioning %q", resp, tt.wantMessage)
			}
			if len(engine.Requests) != 0 {
				t.Errorf("engine called for an invalid request: %+v", engine.Requests)
			}
		})
	}
}

func TestAdminRequiresClaim(t *testing.T) {
	engine := &querytest.MockEngine{}
	srv := newTestServer(t, nil, engine)

	w := get(t, srv, "/api/v1/threads?as=admin", tokenFor(t, testViewer))
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if resp := decodeError(t, w); resp.Error != "forbidden" {
		t.Errorf("error = %q", resp.Error)
	}

	admin := testViewer
	admin.Admin = true
	w = get(t, srv, "/api/v1/threads?as=admin", tokenFor(t, admin))
	if w.Code != http.StatusOK {
		t.Fatalf("admin status = %d", w.Code)
	}
	if got := engine.LastRequest().Relationship; got != visibility.Admin {
		t.Errorf("Relationship = %v, want admin", got)
	}
}

func TestEngineErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid relationship", &visibility.InvalidRelationshipError{Value: "x"}, http.StatusBadRequest, "invalid_relationship"},
		{"invalid paging", fmt.Errorf("%w: page_size 900 exceeds 500", query.ErrInvalidRequest), http.StatusBadRequest, "invalid_request"},
		{"org window", fmt.Errorf("resolve: %w", &visibility.WindowArithmeticError{Field: "start_date", Value: "soon"}), http.StatusInternalServerError, "org_window_invalid"},
		{"store failure", errors.New("database is locked"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &querytest.MockEngine{
				SearchContactsFunc: func(context.Context, query.Request) (*query.Page[corpus.ContactRow], error) {
					return nil, tt.err
				},
			}
			srv := newTestServer(t, nil, engine)

			w := get(t, srv, "/api/v1/contacts", tokenFor(t, testViewer))
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			resp := decodeError(t, w)
			if resp.Error != tt.wantCode {
				t.Errorf("error = %q, want %q", resp.Error, tt.wantCode)
			}
			if tt.wantStatus == http.StatusInternalServerError && strings.Contains(resp.Message, "locked") {
				t.Errorf("internal error details leaked: %q", resp.Message)
			}
		})
	}
}

func TestHandleVisibility(t *testing.T) {
	subject := uuid.MustParse("00000000-0000-4000-8000-000000000102")
	engine := &querytest.MockEngine{
		ResolveVisibilityFunc: func(_ context.Context, _ tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*visibility.Scope, error) {
			return &visibility.Scope{
				Viewer:       viewer,
				Relationship: rel,
				Grants:       []visibility.Grant{{Subject: subject, Kind: rel}},
			}, nil
		},
	}
	srv := newTestServer(t, nil, engine)

	w := get(t, srv, "/api/v1/visibility?as=supervisor", tokenFor(t, testViewer))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Scope struct {
			Viewer       uuid.UUID `json:"viewer"`
			Relationship string    `json:"relationship"`
			Grants       []struct {
				Subject uuid.UUID `json:"subject"`
				Kind    string    `json:"kind"`
			} `json:"grants"`
		} `json:"scope"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Scope.Viewer != testViewer.ID || resp.Scope.Relationship != "supervisor" {
		t.Errorf("scope = %+v", resp.Scope)
	}
	if len(resp.Scope.Grants) != 1 || resp.Scope.Grants[0].Subject != subject || resp.Scope.Grants[0].Kind != "supervisor" {
		t.Errorf("grants = %+v", resp.Scope.Grants)
	}
}

func TestHandleVisibility_AdminRequiresClaim(t *testing.T) {
	srv := newTestServer(t, nil, nil)
	if w := get(t, srv, "/api/v1/visibility?as=admin", tokenFor(t, testViewer)); w.Code != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Code, http.StatusForbidden)
	}
	if w := get(t, srv, "/api/v1/visibility?as=boss", tokenFor(t, testViewer)); w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestErrorResponseShape(t *testing.T) {
	w := httptest.NewRecorder()
	writeError(w, http.StatusBadRequest, "invalid_request", "page: failed number")

	var raw map[string]string
	if err := json.NewDecoder(w.Body).Decode(&raw); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[string]string{"error": "invalid_request", "message": "page: failed number"}
	if diff := cmp.Diff(want, raw); diff != "" {
		t.Errorf("body (-want +got):\n%s", diff)
	}
}

// TestListAgainstSeededStore runs the HTTP surface over the SQL engine.
func TestListAgainstSeededStore(t *testing.T) {
	st, ds := testutil.NewSeededStore(t)
	engine := query.NewSQLEngine(st).
		WithLogger(testLogger()).
		WithClock(func() time.Time { return dbtest.StandardNow })
	srv := newTestServer(t, nil, engine)

	type threadsPage struct {
		Data []struct {
			ThreadID uuid.UUID `json:"thread_id"`
		} `json:"data"`
		Total int64 `json:"total"`
	}
	fetch := func(v Viewer, params string) threadsPage {
		t.Helper()
		w := get(t, srv, "/api/v1/threads?"+params, tokenFor(t, v))
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
		}
		var p threadsPage
		if err := json.NewDecoder(w.Body).Decode(&p); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return p
	}

	direct := fetch(Viewer{ID: ds.U1}, "")
	if direct.Total != 1 || direct.Data[0].ThreadID != ds.T1 {
		t.Errorf("direct threads = %+v, want only T1", direct)
	}

	sup := fetch(Viewer{ID: ds.S}, "as=supervisor&page_size=2")
	if sup.Total != 3 || len(sup.Data) != 2 {
		t.Errorf("supervisor threads = %+v, want 2 of 3", sup)
	}

	none := fetch(Viewer{ID: ds.S}, "as=collaborator")
	if none.Total != 0 || none.Data == nil {
		t.Errorf("collaborator with no grants = %+v, want an empty page", none)
	}
}
