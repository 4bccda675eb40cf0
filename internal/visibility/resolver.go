// Package visibility decides which provider users' mail a viewer may see,
// and over which days, for a single relationship context.
package visibility

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/tenant"
)

// GrantSource reads raw grants and tenant settings. Implementations return
// only grants that are active at now; the resolver re-checks regardless.
type GrantSource interface {
	SupervisorGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]SupervisorGrant, error)
	CollaboratorGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]CollaboratorGrant, error)
	AliasGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]AliasGrant, error)
	OrganizationSettings(ctx context.Context, schema tenant.Schema) (OrgSettings, error)
}

// candidate is a grant before activity checks and window intersection.
type candidate struct {
	kind        Relationship
	mappingID   uuid.UUID
	subject     uuid.UUID
	activeFrom  *string
	activeUntil *string
	deleted     bool
	window      func(OrgSettings) (Window, error)
	// expiresAtWindowEnd marks grants whose lifetime ends with their
	// computed window rather than a stored end date.
	expiresAtWindowEnd bool
}

// strategy produces candidates for one relationship.
type strategy interface {
	candidates(ctx context.Context, src GrantSource, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]candidate, error)
}

type directStrategy struct{}

func (directStrategy) candidates(_ context.Context, _ GrantSource, _ tenant.Schema, viewer uuid.UUID, _ time.Time) ([]candidate, error) {
	return []candidate{{
		kind:    Direct,
		subject: viewer,
		window:  func(OrgSettings) (Window, error) { return Unlimited, nil },
	}}, nil
}

type supervisorStrategy struct{}

func (supervisorStrategy) candidates(ctx context.Context, src GrantSource, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]candidate, error) {
	rows, err := src.SupervisorGrants(ctx, schema, viewer, now)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(rows))
	for _, g := range rows {
		out = append(out, candidate{
			kind:      Supervisor,
			mappingID: g.ID,
			subject:   g.SubordinateID,
			deleted:   g.IsDeleted,
			window:    func(OrgSettings) (Window, error) { return Unlimited, nil },
		})
	}
	return out, nil
}

type collaboratorStrategy struct{}

func (collaboratorStrategy) candidates(ctx context.Context, src GrantSource, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]candidate, error) {
	rows, err := src.CollaboratorGrants(ctx, schema, viewer, now)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(rows))
	for _, g := range rows {
		out = append(out, candidate{
			kind:        Collaborator,
			mappingID:   g.ID,
			subject:     g.OwnerID,
			activeFrom:  g.StartDate,
			activeUntil: g.EndDate,
			deleted:     g.IsDeleted,
			window: func(s OrgSettings) (Window, error) {
				return ResolveCollaboratorWindow(g, s.Collaboration)
			},
			expiresAtWindowEnd: !g.IsCustomDurationSet,
		})
	}
	return out, nil
}

type aliasStrategy struct{}

func (aliasStrategy) candidates(ctx context.Context, src GrantSource, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]candidate, error) {
	rows, err := src.AliasGrants(ctx, schema, viewer, now)
	if err != nil {
		return nil, err
	}
	out := make([]candidate, 0, len(rows))
	for _, g := range rows {
		out = append(out, candidate{
			kind:        Alias,
			mappingID:   g.ID,
			subject:     g.OwnerID,
			activeFrom:  g.AliasStartDate,
			activeUntil: g.AliasEndDate,
			deleted:     g.IsDeleted,
			window: func(OrgSettings) (Window, error) {
				return ResolveAliasWindow(g)
			},
		})
	}
	return out, nil
}

// Resolver turns a viewer and relationship into a Scope.
type Resolver struct {
	src        GrantSource
	logger     *slog.Logger
	now        func() time.Time
	strategies map[Relationship]strategy
}

// NewResolver creates a resolver reading from src.
func NewResolver(src GrantSource) *Resolver {
	return &Resolver{
		src:    src,
		logger: slog.Default(),
		now:    time.Now,
		strategies: map[Relationship]strategy{
			Direct:       directStrategy{},
			Supervisor:   supervisorStrategy{},
			Collaborator: collaboratorStrategy{},
			Alias:        aliasStrategy{},
		},
	}
}

// WithLogger sets the logger for the resolver.
func (r *Resolver) WithLogger(logger *slog.Logger) *Resolver {
	r.logger = logger
	return r
}

// WithClock sets the time source used for grant activity and rolling windows.
func (r *Resolver) WithClock(now func() time.Time) *Resolver {
	r.now = now
	return r
}

// Resolve computes the viewer's scope for one relationship. Admins are
// unrestricted without touching the store. Grants with unreadable dates are
// logged and skipped; an unreadable org window fails the whole call.
func (r *Resolver) Resolve(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel Relationship) (*Scope, error) {
	if rel == Admin {
		return adminScope(viewer), nil
	}
	scope, _, err := r.resolve(ctx, schema, viewer, rel, r.now())
	return scope, err
}

// Describe resolves the scope and summarizes the org window from the same
// settings read and clock reading, so the two always agree.
func (r *Resolver) Describe(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel Relationship) (*Scope, OrgWindowSummary, error) {
	now := r.now()
	var (
		scope    *Scope
		settings OrgSettings
		err      error
	)
	if rel == Admin {
		scope = adminScope(viewer)
		settings, err = r.src.OrganizationSettings(ctx, schema)
		if err != nil {
			return nil, OrgWindowSummary{}, fmt.Errorf("organization settings: %w", err)
		}
	} else {
		scope, settings, err = r.resolve(ctx, schema, viewer, rel, now)
		if err != nil {
			return nil, OrgWindowSummary{}, err
		}
	}
	summary, err := DescribeOrgWindow(settings.Window, now)
	if err != nil {
		return nil, OrgWindowSummary{}, fmt.Errorf("organization window: %w", err)
	}
	return scope, summary, nil
}

func adminScope(viewer uuid.UUID) *Scope {
	return &Scope{Viewer: viewer, Relationship: Admin, Unrestricted: true, Grants: []Grant{}}
}

func (r *Resolver) resolve(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel Relationship, now time.Time) (*Scope, OrgSettings, error) {
	strat, ok := r.strategies[rel]
	if !ok {
		return nil, OrgSettings{}, &InvalidRelationshipError{Value: rel.String()}
	}

	var (
		settings   OrgSettings
		candidates []candidate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := r.src.OrganizationSettings(gctx, schema)
		if err != nil {
			return fmt.Errorf("organization settings: %w", err)
		}
		settings = s
		return nil
	})
	g.Go(func() error {
		c, err := strat.candidates(gctx, r.src, schema, viewer, now)
		if err != nil {
			return fmt.Errorf("%s grants: %w", rel, err)
		}
		candidates = c
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, OrgSettings{}, err
	}

	org, err := ResolveOrgWindow(settings.Window, now)
	if err != nil {
		return nil, OrgSettings{}, fmt.Errorf("organization window: %w", err)
	}

	scope := &Scope{Viewer: viewer, Relationship: rel, OrgWindow: org, Grants: []Grant{}}
	for _, c := range candidates {
		active, err := isActive(c, now)
		if err != nil {
			r.skip(c, err)
			continue
		}
		if !active {
			continue
		}
		own, err := c.window(settings)
		if err != nil {
			r.skip(c, err)
			continue
		}
		if c.expiresAtWindowEnd && own.End != nil && !own.End.After(now) {
			continue
		}
		scope.Grants = append(scope.Grants, Grant{
			Subject:   c.subject,
			Window:    Intersect(own, org),
			Kind:      c.kind,
			MappingID: c.mappingID,
		})
	}

	r.logger.Debug("resolved visibility",
		"schema", schema, "viewer", viewer, "relationship", rel,
		"grants", len(scope.Grants), "org_window", org.String())
	return scope, settings, nil
}

func (r *Resolver) skip(c candidate, err error) {
	var wae *WindowArithmeticError
	if !errors.As(err, &wae) {
		wae = &WindowArithmeticError{Err: err}
	}
	r.logger.Warn("skipping grant with malformed dates",
		"kind", c.kind, "mapping_id", c.mappingID, "subject", c.subject,
		"field", wae.Field, "value", wae.Value, "error", wae.Err)
}

// isActive applies the grant activity rule: not deleted, started before now
// (a missing start counts as started) and not yet ended.
func isActive(c candidate, now time.Time) (bool, error) {
	if c.deleted {
		return false, nil
	}
	if c.activeFrom != nil && *c.activeFrom != "" {
		start, err := dates.Parse(*c.activeFrom)
		if err != nil {
			return false, &WindowArithmeticError{Field: "start", Value: *c.activeFrom, Err: err}
		}
		if !start.Before(now) {
			return false, nil
		}
	}
	if c.activeUntil != nil && *c.activeUntil != "" {
		end, err := dates.Parse(*c.activeUntil)
		if err != nil {
			return false, &WindowArithmeticError{Field: "end", Value: *c.activeUntil, Err: err}
		}
		if !end.After(now) {
			return false, nil
		}
	}
	return true, nil
}
