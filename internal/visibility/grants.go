package visibility

import "github.com/google/uuid"

// SupervisorGrant is a raw supervisor_mappings row. Supervisors see each
// subordinate's whole org-bounded window.
type SupervisorGrant struct {
	ID            uuid.UUID `db:"id"`
	SupervisorID  uuid.UUID `db:"supervisor_id"`
	SubordinateID uuid.UUID `db:"subordinate_id"`
	IsDeleted     bool      `db:"is_deleted"`
}

// CollaboratorGrant is a raw collaborator_mappings row. Dates are kept as
// stored so a malformed value only invalidates this grant.
type CollaboratorGrant struct {
	ID                  uuid.UUID `db:"id"`
	OwnerID             uuid.UUID `db:"owner_id"`
	CollaboratorID      uuid.UUID `db:"collaborator_id"`
	IsCustomDurationSet bool      `db:"is_custom_duration_set"`
	StartDate           *string   `db:"start_date"`
	EndDate             *string   `db:"end_date"`
	IsDeleted           bool      `db:"is_deleted"`
}

// AliasGrant is a raw alias_mappings row. The alias dates bound the
// mapping's lifetime; the historical access dates bound which messages the
// alias may see. The two pairs are independent.
type AliasGrant struct {
	ID                             uuid.UUID `db:"id"`
	OwnerID                        uuid.UUID `db:"owner_id"`
	AliasUserID                    uuid.UUID `db:"alias_user_id"`
	IsCustomDurationSet            bool      `db:"is_custom_duration_set"`
	AliasStartDate                 *string   `db:"alias_start_date"`
	AliasEndDate                   *string   `db:"alias_end_date"`
	HistoricalEmailAccessStartDate *string   `db:"historical_email_access_start_date"`
	HistoricalEmailAccessEndDate   *string   `db:"historical_email_access_end_date"`
	IsDeleted                      bool      `db:"is_deleted"`
}

// OrgWindow is the tenant-wide email access floor as stored.
type OrgWindow struct {
	IsSet       bool
	IsRolling   bool
	StartDate   *string
	RangeInDays int
}

// CollaborationPolicy is the tenant default applied to collaborator grants
// without a custom duration.
type CollaborationPolicy struct {
	DefaultEnabled      bool
	DefaultDurationDays int
}

// OrgSettings bundles the per-tenant values the resolver needs.
type OrgSettings struct {
	Window        OrgWindow
	Collaboration CollaborationPolicy
}

// Grant is one resolved (subject, window) pair.
type Grant struct {
	Subject   uuid.UUID    `json:"subject"`
	Window    Window       `json:"window"`
	Kind      Relationship `json:"kind"`
	MappingID uuid.UUID    `json:"mapping_id,omitempty"`
}

// Scope is everything the viewer may see for one request.
type Scope struct {
	Viewer       uuid.UUID    `json:"viewer"`
	Relationship Relationship `json:"relationship"`
	Unrestricted bool         `json:"unrestricted"`
	OrgWindow    Window       `json:"org_window"`
	Grants       []Grant      `json:"grants"`
}

// IsEmpty reports whether the scope admits no rows at all.
func (s *Scope) IsEmpty() bool {
	if s.Unrestricted {
		return false
	}
	for _, g := range s.Grants {
		if !g.Window.IsEmpty() {
			return false
		}
	}
	return true
}

// Subjects returns the distinct subjects in first-seen order.
func (s *Scope) Subjects() []uuid.UUID {
	seen := make(map[uuid.UUID]bool, len(s.Grants))
	out := make([]uuid.UUID, 0, len(s.Grants))
	for _, g := range s.Grants {
		if seen[g.Subject] {
			continue
		}
		seen[g.Subject] = true
		out = append(out, g.Subject)
	}
	return out
}
