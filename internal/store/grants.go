package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rotisserie/eris"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

var _ visibility.GrantSource = (*Store)(nil)

// SupervisorGrants returns the active supervisor mappings where viewer is
// the supervisor. Mappings to soft-deleted subordinates are not active.
func (s *Store) SupervisorGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, _ time.Time) ([]visibility.SupervisorGrant, error) {
	query := fmt.Sprintf(`
		SELECT sm.id, sm.supervisor_id, sm.subordinate_id, sm.is_deleted
		FROM %s sm
		JOIN %s pu ON pu.id = sm.subordinate_id
		WHERE sm.supervisor_id = ?
		  AND sm.is_deleted = FALSE
		  AND pu.is_deleted = FALSE
		ORDER BY pu.email, sm.id
	`, schema.Table("supervisor_mappings"), schema.Table("provider_users"))

	grants := []visibility.SupervisorGrant{}
	if err := s.db.SelectContext(ctx, &grants, s.Rebind(query), viewer); err != nil {
		return nil, eris.Wrapf(err, "query supervisor grants for %s", viewer)
	}
	return grants, nil
}

// CollaboratorGrants returns the collaborations shared with viewer that are
// active at now. A NULL start counts as already started.
func (s *Store) CollaboratorGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]visibility.CollaboratorGrant, error) {
	query := fmt.Sprintf(`
		SELECT cm.id, cm.owner_id, cm.collaborator_id, cm.is_custom_duration_set,
		       cm.start_date, cm.end_date, cm.is_deleted
		FROM %s cm
		JOIN %s pu ON pu.id = cm.owner_id
		WHERE cm.collaborator_id = ?
		  AND cm.is_deleted = FALSE
		  AND pu.is_deleted = FALSE
		  AND (cm.start_date IS NULL OR cm.start_date < ?)
		  AND (cm.end_date IS NULL OR cm.end_date > ?)
		ORDER BY pu.email, cm.id
	`, schema.Table("collaborator_mappings"), schema.Table("provider_users"))

	at := s.bindTime(now)
	grants := []visibility.CollaboratorGrant{}
	if err := s.db.SelectContext(ctx, &grants, s.Rebind(query), viewer, at, at); err != nil {
		return nil, eris.Wrapf(err, "query collaborator grants for %s", viewer)
	}
	return grants, nil
}

// AliasGrants returns the alias mappings for viewer that are active at now.
// Activity uses the alias dates only; historical access dates are returned
// untouched for window arithmetic.
func (s *Store) AliasGrants(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, now time.Time) ([]visibility.AliasGrant, error) {
	query := fmt.Sprintf(`
		SELECT am.id, am.owner_id, am.alias_user_id, am.is_custom_duration_set,
		       am.alias_start_date, am.alias_end_date,
		       am.historical_email_access_start_date, am.historical_email_access_end_date,
		       am.is_deleted
		FROM %s am
		JOIN %s pu ON pu.id = am.owner_id
		WHERE am.alias_user_id = ?
		  AND am.is_deleted = FALSE
		  AND pu.is_deleted = FALSE
		  AND (am.alias_start_date IS NULL OR am.alias_start_date < ?)
		  AND (am.alias_end_date IS NULL OR am.alias_end_date > ?)
		ORDER BY pu.email, am.id
	`, schema.Table("alias_mappings"), schema.Table("provider_users"))

	at := s.bindTime(now)
	grants := []visibility.AliasGrant{}
	if err := s.db.SelectContext(ctx, &grants, s.Rebind(query), viewer, at, at); err != nil {
		return nil, eris.Wrapf(err, "query alias grants for %s", viewer)
	}
	return grants, nil
}

type orgSettingsRow struct {
	IsSet              bool    `db:"email_access_is_set"`
	IsRolling          bool    `db:"email_access_is_rolling"`
	StartDate          *string `db:"email_access_start_date"`
	RangeInDays        *int    `db:"email_access_range_in_days"`
	CollabEnabled      bool    `db:"collaborator_default_enabled"`
	CollabDurationDays int     `db:"collaborator_default_duration_days"`
}

// OrganizationSettings returns the tenant's access window and collaborator
// policy. A tenant without a settings row has no window and no default
// collaborator expiry.
func (s *Store) OrganizationSettings(ctx context.Context, schema tenant.Schema) (visibility.OrgSettings, error) {
	query := fmt.Sprintf(`
		SELECT email_access_is_set, email_access_is_rolling, email_access_start_date,
		       email_access_range_in_days, collaborator_default_enabled,
		       collaborator_default_duration_days
		FROM %s
		ORDER BY id
		LIMIT 1
	`, schema.Table("organization_settings"))

	var row orgSettingsRow
	if err := s.db.GetContext(ctx, &row, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return visibility.OrgSettings{}, nil
		}
		return visibility.OrgSettings{}, eris.Wrapf(err, "query organization settings for %s", schema)
	}

	settings := visibility.OrgSettings{
		Window: visibility.OrgWindow{
			IsSet:     row.IsSet,
			IsRolling: row.IsRolling,
			StartDate: row.StartDate,
		},
		Collaboration: visibility.CollaborationPolicy{
			DefaultEnabled:      row.CollabEnabled,
			DefaultDurationDays: row.CollabDurationDays,
		},
	}
	if row.RangeInDays != nil {
		settings.Window.RangeInDays = *row.RangeInDays
	}
	return settings, nil
}

// ProviderUsers returns the provider users with the given ids, including
// soft-deleted ones, ordered by email.
func (s *Store) ProviderUsers(ctx context.Context, schema tenant.Schema, ids []uuid.UUID) ([]corpus.ProviderUser, error) {
	users := []corpus.ProviderUser{}
	if len(ids) == 0 {
		return users, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = id.String()
	}
	query, args, err := sqlx.In(fmt.Sprintf(`
		SELECT id, email, first_name, last_name, is_deleted
		FROM %s
		WHERE id IN (?)
		ORDER BY email, id
	`, schema.Table("provider_users")), keys)
	if err != nil {
		return nil, eris.Wrap(err, "expand provider user ids")
	}
	if err := s.db.SelectContext(ctx, &users, s.Rebind(query), args...); err != nil {
		return nil, eris.Wrapf(err, "query provider users in %s", schema)
	}
	return users, nil
}
