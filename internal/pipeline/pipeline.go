// Package pipeline folds a visibility scope and user filters onto a corpus
// base query as an ordered list of stages.
package pipeline

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/sqlbuild"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// Filters are the optional user filters for a listing. A nil or empty
// field means the filter is absent.
type Filters struct {
	Search             string
	SecondarySearch    string
	HasAttachments     *bool
	HasClientResponses *bool
	DomainIDs          []uuid.UUID
	ContactIDs         []uuid.UUID
	LastContactFrom    *time.Time
	LastContactTo      *time.Time
}

// IsEmpty reports whether no user filter is set.
func (f Filters) IsEmpty() bool {
	return normalizeTerm(f.Search) == "" &&
		normalizeTerm(f.SecondarySearch) == "" &&
		f.HasAttachments == nil &&
		f.HasClientResponses == nil &&
		len(f.DomainIDs) == 0 &&
		len(f.ContactIDs) == 0 &&
		f.LastContactFrom == nil &&
		f.LastContactTo == nil
}

// Build chooses the stages for one request. Stages that have nothing to do
// are left out; the order of the result is the order they must be applied.
func Build(def *corpus.Definition, schema tenant.Schema, scope *visibility.Scope, f Filters) []Stage {
	var stages []Stage

	if scope != nil && !scope.Unrestricted {
		stages = append(stages, VisibilityStage{
			SubjectColumn: def.SubjectColumn,
			DateColumn:    def.DateColumn,
			Groups:        groupByWindow(scope.Grants),
		})
	}

	stages = append(stages, DomainExclusionStage{
		Table:        schema.Table("excluded_domains"),
		DomainColumn: def.DomainColumn,
	})

	primary, secondary := normalizeTerm(f.Search), normalizeTerm(f.SecondarySearch)
	if len(def.SecondarySearch) == 0 {
		secondary = ""
	}
	if primary != "" || secondary != "" {
		stages = append(stages, SearchStage{
			Primary:          primary,
			PrimaryColumns:   def.PrimarySearch,
			Secondary:        secondary,
			SecondaryColumns: def.SecondarySearch,
		})
	}

	if f.HasAttachments != nil && def.AttachmentCountExpr != "" {
		stages = append(stages, AttachmentPresenceStage{
			Expr: def.AttachmentCountExpr, Want: *f.HasAttachments, Having: def.Aggregated,
		})
	}
	if f.HasClientResponses != nil && def.ReplyCountExpr != "" {
		stages = append(stages, ResponsePresenceStage{
			Expr: def.ReplyCountExpr, Want: *f.HasClientResponses, Having: def.Aggregated,
		})
	}
	if len(f.DomainIDs) > 0 || len(f.ContactIDs) > 0 {
		stages = append(stages, IDSetStage{
			DomainColumn:  def.DomainIDColumn,
			DomainIDs:     f.DomainIDs,
			ContactColumn: def.ContactIDColumn,
			ContactIDs:    f.ContactIDs,
		})
	}
	if (f.LastContactFrom != nil || f.LastContactTo != nil) && def.LastContactExpr != "" {
		stages = append(stages, DateRangeStage{
			Expr: def.LastContactExpr, From: f.LastContactFrom, To: f.LastContactTo, Having: def.Aggregated,
		})
	}

	if def.Dedup != nil {
		stages = append(stages, DedupStage{Dedup: *def.Dedup})
	}
	return stages
}

// Apply folds stages over q in order.
func Apply(q sqlbuild.Select, stages []Stage) sqlbuild.Select {
	for _, s := range stages {
		q = s.Apply(q)
	}
	return q
}

// Names returns the stage names, for logging.
func Names(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name()
	}
	return out
}

// groupByWindow collects subjects that share an identical window so each
// distinct window renders once. Empty windows admit nothing and are
// dropped. Groups and subjects keep first-seen order.
func groupByWindow(grants []visibility.Grant) []SubjectGroup {
	var groups []SubjectGroup
	for _, g := range grants {
		if g.Window.IsEmpty() {
			continue
		}
		idx := -1
		for i := range groups {
			if groups[i].Window.Equal(g.Window) {
				idx = i
				break
			}
		}
		if idx < 0 {
			groups = append(groups, SubjectGroup{Window: g.Window})
			idx = len(groups) - 1
		}
		if !containsID(groups[idx].Subjects, g.Subject) {
			groups[idx].Subjects = append(groups[idx].Subjects, g.Subject)
		}
	}
	return groups
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

func normalizeTerm(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}
