package pipeline

import (
	"time"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/sqlbuild"
	"github.com/wesm/msgscope/internal/visibility"
)

// Stage is one query transformation. The set of stages is closed.
type Stage interface {
	Name() string
	Apply(q sqlbuild.Select) sqlbuild.Select
	sealed()
}

// SubjectGroup is a set of subjects sharing one visible window.
type SubjectGroup struct {
	Subjects []uuid.UUID
	Window   visibility.Window
}

// VisibilityStage restricts rows to the subjects in scope, each within its
// own window. With no groups nothing is visible.
type VisibilityStage struct {
	SubjectColumn string
	DateColumn    string
	Groups        []SubjectGroup
}

func (VisibilityStage) Name() string { return "visibility" }
func (VisibilityStage) sealed()      {}

func (s VisibilityStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return q.AndWhere(s.Predicate())
}

// Predicate returns the OR over groups of (subject in group AND date in
// the group's window).
func (s VisibilityStage) Predicate() sqlbuild.Pred {
	if len(s.Groups) == 0 {
		return sqlbuild.False()
	}
	alts := make([]sqlbuild.Pred, 0, len(s.Groups))
	for _, g := range s.Groups {
		ids := make([]any, len(g.Subjects))
		for i, id := range g.Subjects {
			ids[i] = id
		}
		conj := []sqlbuild.Pred{sqlbuild.In(s.SubjectColumn, ids...)}
		conj = append(conj, dayRange(s.DateColumn, g.Window.Start, g.Window.End)...)
		alts = append(alts, sqlbuild.And(conj...))
	}
	return sqlbuild.Or(alts...)
}

// DomainExclusionStage drops rows whose counterparty domain is on the
// tenant's internal domain list.
type DomainExclusionStage struct {
	Table        string
	DomainColumn string
}

func (DomainExclusionStage) Name() string { return "domain_exclusion" }
func (DomainExclusionStage) sealed()      {}

func (s DomainExclusionStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return q.AndWhere(sqlbuild.NotExists(sqlbuild.Select{
		From:      s.Table,
		FromAlias: "x",
		Where:     []sqlbuild.Pred{sqlbuild.ColEq("LOWER(x.domain)", "LOWER("+s.DomainColumn+")")},
	}))
}

// SearchStage matches the primary term against contact identity columns
// and the secondary term against the listing's own text columns.
type SearchStage struct {
	Primary          string
	PrimaryColumns   []string
	Secondary        string
	SecondaryColumns []string
}

func (SearchStage) Name() string { return "search" }
func (SearchStage) sealed()      {}

func (s SearchStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	if s.Primary != "" {
		q = q.AndWhere(sqlbuild.Like(s.Primary, s.PrimaryColumns...))
	}
	if s.Secondary != "" {
		q = q.AndWhere(sqlbuild.Like(s.Secondary, s.SecondaryColumns...))
	}
	return q
}

// AttachmentPresenceStage keeps rows with (Want) or without attachments.
type AttachmentPresenceStage struct {
	Expr   string
	Want   bool
	Having bool
}

func (AttachmentPresenceStage) Name() string { return "attachment_presence" }
func (AttachmentPresenceStage) sealed()      {}

func (s AttachmentPresenceStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return addPred(q, presence(s.Expr, s.Want), s.Having)
}

// ResponsePresenceStage keeps rows with (Want) or without client replies.
type ResponsePresenceStage struct {
	Expr   string
	Want   bool
	Having bool
}

func (ResponsePresenceStage) Name() string { return "response_presence" }
func (ResponsePresenceStage) sealed()      {}

func (s ResponsePresenceStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return addPred(q, presence(s.Expr, s.Want), s.Having)
}

// IDSetStage restricts rows to explicit domain and contact ids.
type IDSetStage struct {
	DomainColumn  string
	DomainIDs     []uuid.UUID
	ContactColumn string
	ContactIDs    []uuid.UUID
}

func (IDSetStage) Name() string { return "id_set" }
func (IDSetStage) sealed()      {}

func (s IDSetStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	if len(s.DomainIDs) > 0 {
		q = q.AndWhere(sqlbuild.In(s.DomainColumn, uuidArgs(s.DomainIDs)...))
	}
	if len(s.ContactIDs) > 0 {
		q = q.AndWhere(sqlbuild.In(s.ContactColumn, uuidArgs(s.ContactIDs)...))
	}
	return q
}

// DateRangeStage bounds the last-contact date, inclusive of both days.
type DateRangeStage struct {
	Expr   string
	From   *time.Time
	To     *time.Time
	Having bool
}

func (DateRangeStage) Name() string { return "date_range" }
func (DateRangeStage) sealed()      {}

func (s DateRangeStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return addPred(q, sqlbuild.And(dayRange(s.Expr, s.From, s.To)...), s.Having)
}

// DedupStage keeps one row per logical item.
type DedupStage struct {
	Dedup sqlbuild.Dedup
}

func (DedupStage) Name() string { return "dedup" }
func (DedupStage) sealed()      {}

func (s DedupStage) Apply(q sqlbuild.Select) sqlbuild.Select {
	return q.WithDedup(s.Dedup)
}

func addPred(q sqlbuild.Select, p sqlbuild.Pred, having bool) sqlbuild.Select {
	if having {
		return q.AndHaving(p)
	}
	return q.AndWhere(p)
}

func presence(expr string, want bool) sqlbuild.Pred {
	if want {
		return sqlbuild.Cmp(expr, sqlbuild.OpGT, 0)
	}
	return sqlbuild.Eq(expr, 0)
}

// dayRange bounds expr to whole days: from the start of the first day up
// to, but excluding, the start of the day after the last.
func dayRange(expr string, start, end *time.Time) []sqlbuild.Pred {
	var preds []sqlbuild.Pred
	if start != nil {
		preds = append(preds, sqlbuild.Cmp(expr, sqlbuild.OpGE, dates.Day(*start)))
	}
	if end != nil {
		preds = append(preds, sqlbuild.Cmp(expr, sqlbuild.OpLT, dates.AddDays(*end, 1)))
	}
	return preds
}

func uuidArgs(ids []uuid.UUID) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
