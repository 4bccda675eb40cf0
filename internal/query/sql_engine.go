package query

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/pipeline"
	"github.com/wesm/msgscope/internal/sqlbuild"
	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// SQLEngine implements Engine over a tenant database. It holds no mutable
// state and is safe for concurrent use.
type SQLEngine struct {
	store           *store.Store
	resolver        *visibility.Resolver
	logger          *slog.Logger
	defaultPageSize int
	maxPageSize     int
}

var _ Engine = (*SQLEngine)(nil)

// NewSQLEngine creates an engine reading grants and listings from st.
func NewSQLEngine(st *store.Store) *SQLEngine {
	return &SQLEngine{
		store:           st,
		resolver:        visibility.NewResolver(st),
		logger:          slog.Default(),
		defaultPageSize: DefaultPageSize,
		maxPageSize:     MaxPageSize,
	}
}

// WithLogger sets the logger for the engine and its resolver.
func (e *SQLEngine) WithLogger(logger *slog.Logger) *SQLEngine {
	if logger == nil {
		return e
	}
	e.logger = logger
	e.resolver.WithLogger(logger)
	return e
}

// WithClock sets the time source used to decide grant activity.
func (e *SQLEngine) WithClock(now func() time.Time) *SQLEngine {
	e.resolver.WithClock(now)
	return e
}

// WithPageSizes sets the default and maximum page sizes. Non-positive
// values keep the current setting.
func (e *SQLEngine) WithPageSizes(defaultSize, maxSize int) *SQLEngine {
	if defaultSize > 0 {
		e.defaultPageSize = defaultSize
	}
	if maxSize > 0 {
		e.maxPageSize = maxSize
	}
	return e
}

// ResolveVisibility returns the viewer's scope for one relationship.
func (e *SQLEngine) ResolveVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*visibility.Scope, error) {
	return e.resolver.Resolve(ctx, schema, viewer, rel)
}

// DescribeVisibility resolves the scope, summarizes the org window it was
// resolved against and looks up the provider users behind each grant.
func (e *SQLEngine) DescribeVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*VisibilityReport, error) {
	scope, summary, err := e.resolver.Describe(ctx, schema, viewer, rel)
	if err != nil {
		return nil, err
	}
	users, err := e.store.ProviderUsers(ctx, schema, scope.Subjects())
	if err != nil {
		return nil, fmt.Errorf("subjects: %w", err)
	}
	return &VisibilityReport{Scope: scope, OrgWindow: summary, Subjects: users}, nil
}

// SearchContacts lists the external contacts the viewer has corresponded
// with through visible messages.
func (e *SQLEngine) SearchContacts(ctx context.Context, req Request) (*Page[corpus.ContactRow], error) {
	return search[corpus.ContactRow](ctx, e, corpus.Contacts, req)
}

// SearchThreads lists the visible threads, one row per owning mailbox.
func (e *SQLEngine) SearchThreads(ctx context.Context, req Request) (*Page[corpus.ThreadRow], error) {
	return search[corpus.ThreadRow](ctx, e, corpus.Threads, req)
}

// SearchAttachments lists the visible attachments, collapsing per-recipient
// copies of the same part.
func (e *SQLEngine) SearchAttachments(ctx context.Context, req Request) (*Page[corpus.AttachmentRow], error) {
	return search[corpus.AttachmentRow](ctx, e, corpus.Attachments, req)
}

// paging validates and defaults the requested page.
func (e *SQLEngine) paging(req Request) (page, size int, err error) {
	page, size = req.Page, req.PageSize
	if page == 0 {
		page = 1
	}
	if size == 0 {
		size = e.defaultPageSize
	}
	if page < 1 {
		return 0, 0, fmt.Errorf("%w: page must be at least 1, got %d", ErrInvalidRequest, req.Page)
	}
	if size < 1 || size > e.maxPageSize {
		return 0, 0, fmt.Errorf("%w: page size must be between 1 and %d, got %d", ErrInvalidRequest, e.maxPageSize, req.PageSize)
	}
	if page-1 > math.MaxInt/size {
		return 0, 0, fmt.Errorf("%w: page %d is out of range", ErrInvalidRequest, req.Page)
	}
	return page, size, nil
}

// orderFor maps the requested sort onto the kind's columns and appends the
// row key so pages never overlap.
func orderFor(def *corpus.Definition, s Sort) []sqlbuild.Order {
	orders := def.DefaultOrder
	if col, ok := def.SortColumn(s.Field); ok {
		orders = []sqlbuild.Order{{Expr: col, Desc: s.Desc}}
	}
	out := make([]sqlbuild.Order, 0, len(orders)+1)
	out = append(out, orders...)
	for _, o := range orders {
		if o.Expr == def.KeyColumn {
			return out
		}
	}
	return append(out, sqlbuild.Order{Expr: def.KeyColumn})
}

// buildQuery folds scope and filters onto the kind's base query and
// applies the order. The result is unpaginated.
func buildQuery(def *corpus.Definition, scope *visibility.Scope, req Request) (sqlbuild.Select, []pipeline.Stage) {
	stages := pipeline.Build(def, req.Schema, scope, req.Filters)
	q := pipeline.Apply(def.Base(req.Schema), stages)
	return q.OrderedBy(orderFor(def, req.Sort)...), stages
}

func search[T any](ctx context.Context, e *SQLEngine, kind corpus.Kind, req Request) (*Page[T], error) {
	def, ok := corpus.Lookup(kind)
	if !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidRequest, kind)
	}
	page, size, err := e.paging(req)
	if err != nil {
		return nil, err
	}
	if req.Schema == "" {
		req.Schema = tenant.Default
	}

	result := &Page[T]{Data: []T{}, Page: page, PageSize: size}

	scope, err := e.resolver.Resolve(ctx, req.Schema, req.Viewer, req.Relationship)
	if err != nil {
		return nil, err
	}
	if scope.IsEmpty() {
		e.logger.Debug("empty visibility scope",
			"kind", kind, "viewer", req.Viewer, "relationship", req.Relationship)
		return result, nil
	}

	if _, ok := def.SortColumn(req.Sort.Field); req.Sort.Field != "" && !ok {
		e.logger.Debug("sort field not supported, using default order",
			"kind", kind, "sort", req.Sort.Field)
	}

	q, stages := buildQuery(def, scope, req)
	offset := (page - 1) * size
	dataSQL, dataArgs := q.Paged(size, offset).SQL()
	countSQL, countArgs := q.CountSQL()

	db := e.store.DB()
	dataSQL, dataArgs = db.Rebind(dataSQL), e.store.BindArgs(dataArgs)
	countSQL, countArgs = db.Rebind(countSQL), e.store.BindArgs(countArgs)

	start := time.Now()
	rows := []T{}
	var total int64
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := db.SelectContext(gctx, &rows, dataSQL, dataArgs...); err != nil {
			return fmt.Errorf("%s page: %w", kind, err)
		}
		return nil
	})
	g.Go(func() error {
		if err := db.GetContext(gctx, &total, countSQL, countArgs...); err != nil {
			return fmt.Errorf("%s count: %w", kind, err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Data = rows
	result.Total = total
	result.HasNextPage = total-int64(offset) > int64(size)

	e.logger.Debug("listing query",
		"kind", kind, "schema", req.Schema, "viewer", req.Viewer,
		"relationship", req.Relationship, "stages", pipeline.Names(stages),
		"rows", len(rows), "total", total, "duration", time.Since(start))
	return result, nil
}
