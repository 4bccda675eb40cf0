package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/pipeline"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/search"
	"github.com/wesm/msgscope/internal/visibility"
)

// ErrorResponse represents an API error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, err string, message string) {
	writeJSON(w, status, ErrorResponse{Error: err, Message: message})
}

// listParams are the raw listing query parameters. Repeated id parameters
// may also be comma-separated.
type listParams struct {
	As             string   `query:"as" validate:"omitempty,relationship"`
	Filter         string   `query:"filter" validate:"max=1024"`
	Q              string   `query:"q" validate:"max=256"`
	Subject        string   `query:"subject" validate:"max=256"`
	Page           string   `query:"page" validate:"omitempty,number"`
	PageSize       string   `query:"page_size" validate:"omitempty,number"`
	Sort           string   `query:"sort" validate:"omitempty,sortfield"`
	Order          string   `query:"order" validate:"omitempty,oneof=asc desc"`
	HasAttachments string   `query:"has_attachments" validate:"omitempty,boolean"`
	HasResponses   string   `query:"has_responses" validate:"omitempty,boolean"`
	DomainIDs      []string `query:"domain_id" validate:"max=100,dive,uuid"`
	ContactIDs     []string `query:"contact_id" validate:"max=100,dive,uuid"`
	From           string   `query:"from" validate:"omitempty,datetime=2006-01-02"`
	To             string   `query:"to" validate:"omitempty,datetime=2006-01-02"`
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return f.Tag.Get("query")
	})
	_ = v.RegisterValidation("relationship", func(fl validator.FieldLevel) bool {
		_, err := visibility.ParseRelationship(fl.Field().String())
		return err == nil
	})
	_ = v.RegisterValidation("sortfield", func(fl validator.FieldLevel) bool {
		_, err := corpus.ParseSortField(fl.Field().String())
		return err == nil
	})
	return v
}

func parseListParams(r *http.Request) listParams {
	q := r.URL.Query()
	return listParams{
		As:             q.Get("as"),
		Filter:         q.Get("filter"),
		Q:              q.Get("q"),
		Subject:        q.Get("subject"),
		Page:           q.Get("page"),
		PageSize:       q.Get("page_size"),
		Sort:           q.Get("sort"),
		Order:          strings.ToLower(q.Get("order")),
		HasAttachments: q.Get("has_attachments"),
		HasResponses:   q.Get("has_responses"),
		DomainIDs:      splitList(q["domain_id"]),
		ContactIDs:     splitList(q["contact_id"]),
		From:           q.Get("from"),
		To:             q.Get("to"),
	}
}

func splitList(values []string) []string {
	var out []string
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// validationMessage renders validator errors with query parameter names.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(msgs, "; ")
}

// requestError is a client error detected while building a query request.
type requestError struct {
	status  int
	code    string
	message string
}

func (e *requestError) Error() string { return e.message }

func badRequest(format string, args ...any) *requestError {
	return &requestError{status: http.StatusBadRequest, code: "invalid_request", message: fmt.Sprintf(format, args...)}
}

// relationship returns the requested relationship, defaulting to direct.
// Admin requires the admin claim.
func relationship(as string, viewer Viewer) (visibility.Relationship, error) {
	if as == "" {
		return visibility.Direct, nil
	}
	rel, err := visibility.ParseRelationship(as)
	if err != nil {
		return 0, badRequest("%v", err)
	}
	if rel == visibility.Admin && !viewer.Admin {
		return 0, &requestError{status: http.StatusForbidden, code: "forbidden", message: "admin access requires an admin token"}
	}
	return rel, nil
}

// buildRequest validates the parameters and turns them into a listing
// request for viewer. Explicit parameters override the same criteria in
// the filter expression.
func buildRequest(p listParams, viewer Viewer) (query.Request, error) {
	if err := validate.Struct(p); err != nil {
		return query.Request{}, badRequest("%s", validationMessage(err))
	}

	rel, err := relationship(p.As, viewer)
	if err != nil {
		return query.Request{}, err
	}

	req := query.Request{
		Schema:       viewer.Schema,
		Viewer:       viewer.ID,
		Relationship: rel,
	}
	if p.Page != "" {
		if req.Page, err = strconv.Atoi(p.Page); err != nil {
			return query.Request{}, badRequest("page: %v", err)
		}
	}
	if p.PageSize != "" {
		if req.PageSize, err = strconv.Atoi(p.PageSize); err != nil {
			return query.Request{}, badRequest("page_size: %v", err)
		}
	}

	field, _ := corpus.ParseSortField(p.Sort)
	req.Sort = query.Sort{Field: field, Desc: sortDesc(field, p.Order)}

	f := pipeline.Filters{}
	if p.Filter != "" {
		f = search.Parse(p.Filter).Filters()
	}
	if p.Q != "" {
		f.Search = p.Q
	}
	if p.Subject != "" {
		f.SecondarySearch = p.Subject
	}
	if p.HasAttachments != "" {
		b, _ := strconv.ParseBool(p.HasAttachments)
		f.HasAttachments = &b
	}
	if p.HasResponses != "" {
		b, _ := strconv.ParseBool(p.HasResponses)
		f.HasClientResponses = &b
	}
	if len(p.DomainIDs) > 0 {
		f.DomainIDs = parseIDs(p.DomainIDs)
	}
	if len(p.ContactIDs) > 0 {
		f.ContactIDs = parseIDs(p.ContactIDs)
	}
	if p.From != "" {
		from, _ := time.Parse(time.DateOnly, p.From)
		f.LastContactFrom = &from
	}
	if p.To != "" {
		to, _ := time.Parse(time.DateOnly, p.To)
		f.LastContactTo = &to
	}
	if f.LastContactFrom != nil && f.LastContactTo != nil && f.LastContactTo.Before(*f.LastContactFrom) {
		return query.Request{}, badRequest("to must not be before from")
	}
	req.Filters = f
	return req, nil
}

// sortDesc resolves the order for a sort field.
func sortDesc(field corpus.SortField, order string) bool {
	switch order {
	case "asc":
		return false
	case "desc":
		return true
	}
	return field.DefaultDesc()
}

// parseIDs parses ids already validated as uuids.
func parseIDs(values []string) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		ids = append(ids, uuid.MustParse(v))
	}
	return ids
}

// writeEngineError maps engine errors onto HTTP statuses.
func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var reqErr *requestError
	var relErr *visibility.InvalidRelationshipError
	var winErr *visibility.WindowArithmeticError
	switch {
	case errors.As(err, &reqErr):
		writeError(w, reqErr.status, reqErr.code, reqErr.message)
	case errors.As(err, &relErr):
		writeError(w, http.StatusBadRequest, "invalid_relationship", relErr.Error())
	case errors.Is(err, query.ErrInvalidRequest):
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	case errors.As(err, &winErr):
		s.logger.Error("organization window is misconfigured", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "org_window_invalid", "The organization data window is misconfigured")
	default:
		s.logger.Error("listing failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "Listing failed")
	}
}

// requestViewer returns the viewer set by the auth middleware.
func requestViewer(w http.ResponseWriter, r *http.Request) (Viewer, bool) {
	viewer, ok := ViewerFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "Missing viewer")
		return Viewer{}, false
	}
	return viewer, true
}

// serveList runs one listing request through search.
func serveList[T any](s *Server, w http.ResponseWriter, r *http.Request, run func(context.Context, query.Request) (*query.Page[T], error)) {
	viewer, ok := requestViewer(w, r)
	if !ok {
		return
	}
	req, err := buildRequest(parseListParams(r), viewer)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	page, err := run(r.Context(), req)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleContacts lists external contacts visible to the viewer.
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.engine.SearchContacts)
}

// handleThreads lists threads visible to the viewer.
func (s *Server) handleThreads(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.engine.SearchThreads)
}

// handleAttachments lists deduplicated attachments visible to the viewer.
func (s *Server) handleAttachments(w http.ResponseWriter, r *http.Request) {
	serveList(s, w, r, s.engine.SearchAttachments)
}

// handleVisibility explains the viewer's scope for the requested
// relationship.
func (s *Server) handleVisibility(w http.ResponseWriter, r *http.Request) {
	viewer, ok := requestViewer(w, r)
	if !ok {
		return
	}
	rel, err := relationship(r.URL.Query().Get("as"), viewer)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	report, err := s.engine.DescribeVisibility(r.Context(), viewer.Schema, viewer.ID, rel)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}
