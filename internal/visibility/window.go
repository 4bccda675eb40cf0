package visibility

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/wesm/msgscope/internal/dates"
)

// Window is an inclusive range of calendar days in UTC. A nil bound is
// unlimited on that side.
type Window struct {
	Start *time.Time
	End   *time.Time
}

// Unlimited is the window with no bound on either side.
var Unlimited = Window{}

// NewWindow builds a window from optional bounds, truncating each to its day.
func NewWindow(start, end *time.Time) Window {
	var w Window
	if start != nil {
		d := dates.Day(*start)
		w.Start = &d
	}
	if end != nil {
		d := dates.Day(*end)
		w.End = &d
	}
	return w
}

// Between is shorthand for a window bounded on both sides.
func Between(start, end time.Time) Window {
	return NewWindow(&start, &end)
}

// IsUnlimited reports whether neither side is bounded.
func (w Window) IsUnlimited() bool {
	return w.Start == nil && w.End == nil
}

// IsEmpty reports whether the window contains no day.
func (w Window) IsEmpty() bool {
	return w.Start != nil && w.End != nil && w.Start.After(*w.End)
}

// Contains reports whether t falls on a day inside the window.
func (w Window) Contains(t time.Time) bool {
	d := dates.Day(t)
	if w.Start != nil && d.Before(*w.Start) {
		return false
	}
	if w.End != nil && d.After(*w.End) {
		return false
	}
	return true
}

// Equal reports whether two windows have the same bounds.
func (w Window) Equal(o Window) bool {
	return timePtrEqual(w.Start, o.Start) && timePtrEqual(w.End, o.End)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", boundString(w.Start, "-inf"), boundString(w.End, "+inf"))
}

// MarshalJSON renders each bound as a YYYY-MM-DD day or null.
func (w Window) MarshalJSON() ([]byte, error) {
	type bounds struct {
		Start *string `json:"start"`
		End   *string `json:"end"`
	}
	var b bounds
	if w.Start != nil {
		s := w.Start.Format(dates.DayLayout)
		b.Start = &s
	}
	if w.End != nil {
		s := w.End.Format(dates.DayLayout)
		b.End = &s
	}
	return json.Marshal(b)
}

// Intersect returns the days common to a and b. Unlimited sides defer to
// the other window; bounded sides take the later start and the earlier end.
// The result may be empty.
func Intersect(a, b Window) Window {
	var out Window
	switch {
	case a.Start == nil:
		out.Start = b.Start
	case b.Start == nil:
		out.Start = a.Start
	case a.Start.After(*b.Start):
		out.Start = a.Start
	default:
		out.Start = b.Start
	}
	switch {
	case a.End == nil:
		out.End = b.End
	case b.End == nil:
		out.End = a.End
	case a.End.Before(*b.End):
		out.End = a.End
	default:
		out.End = b.End
	}
	return out
}

// ResolveCollaboratorWindow computes the message window a collaboration
// grants. A custom duration uses the grant's own dates. Otherwise the window
// starts at the collaboration start and, when the tenant default is enabled,
// ends DefaultDurationDays later; with the default disabled it never ends.
func ResolveCollaboratorWindow(g CollaboratorGrant, policy CollaborationPolicy) (Window, error) {
	start, err := parseBound("start_date", g.StartDate)
	if err != nil {
		return Window{}, err
	}
	if g.IsCustomDurationSet {
		end, err := parseBound("end_date", g.EndDate)
		if err != nil {
			return Window{}, err
		}
		return NewWindow(start, end), nil
	}
	if !policy.DefaultEnabled {
		return NewWindow(start, nil), nil
	}
	if policy.DefaultDurationDays < 0 {
		return Window{}, &WindowArithmeticError{
			Field: "collaborator_default_duration_days",
			Value: fmt.Sprint(policy.DefaultDurationDays),
			Err:   errors.New("negative duration"),
		}
	}
	if start == nil {
		return Window{}, &WindowArithmeticError{
			Field: "start_date",
			Err:   errors.New("default duration needs a start date"),
		}
	}
	end := dates.AddDays(*start, policy.DefaultDurationDays)
	return NewWindow(start, &end), nil
}

// ResolveAliasWindow computes the message window an alias grant exposes.
// Only the historical access dates matter here; the alias dates gate
// whether the mapping is active at all.
func ResolveAliasWindow(g AliasGrant) (Window, error) {
	start, err := parseBound("historical_email_access_start_date", g.HistoricalEmailAccessStartDate)
	if err != nil {
		return Window{}, err
	}
	end, err := parseBound("historical_email_access_end_date", g.HistoricalEmailAccessEndDate)
	if err != nil {
		return Window{}, err
	}
	return NewWindow(start, end), nil
}

// ResolveOrgWindow computes the tenant-wide floor at now. Rolling windows
// always start RangeInDays before today; fixed windows use the stored start.
func ResolveOrgWindow(o OrgWindow, now time.Time) (Window, error) {
	if !o.IsSet {
		return Unlimited, nil
	}
	if o.IsRolling {
		if o.RangeInDays < 0 {
			return Window{}, &WindowArithmeticError{
				Field: "email_access_range_in_days",
				Value: fmt.Sprint(o.RangeInDays),
				Err:   errors.New("negative range"),
			}
		}
		start := dates.AddDays(now, -o.RangeInDays)
		return NewWindow(&start, nil), nil
	}
	start, err := parseBound("email_access_start_date", o.StartDate)
	if err != nil {
		return Window{}, err
	}
	if start == nil {
		return Window{}, &WindowArithmeticError{
			Field: "email_access_start_date",
			Err:   errors.New("fixed window without a start date"),
		}
	}
	return NewWindow(start, nil), nil
}

// OrgWindowSummary is a display view of the org window. The range values
// are derived for presentation and never feed back into resolution.
type OrgWindowSummary struct {
	Set          bool    `json:"set"`
	Rolling      bool    `json:"rolling"`
	Window       Window  `json:"window"`
	RangeInDays  int     `json:"range_in_days"`
	RangeInYears float64 `json:"range_in_years"`
}

// DescribeOrgWindow resolves the org window at now and derives its length
// in days and years for display.
func DescribeOrgWindow(o OrgWindow, now time.Time) (OrgWindowSummary, error) {
	w, err := ResolveOrgWindow(o, now)
	if err != nil {
		return OrgWindowSummary{}, err
	}
	summary := OrgWindowSummary{Set: o.IsSet, Rolling: o.IsRolling, Window: w}
	if w.Start == nil {
		return summary, nil
	}
	summary.RangeInDays = dates.DaysBetween(*w.Start, now)
	summary.RangeInYears = math.Round(float64(summary.RangeInDays)/365*10) / 10
	return summary, nil
}

func parseBound(field string, v *string) (*time.Time, error) {
	if v == nil || *v == "" {
		return nil, nil
	}
	t, err := dates.Parse(*v)
	if err != nil {
		return nil, &WindowArithmeticError{Field: field, Value: *v, Err: err}
	}
	return &t, nil
}

func boundString(t *time.Time, unlimited string) string {
	if t == nil {
		return unlimited
	}
	return t.Format(dates.DayLayout)
}

func timePtrEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}
