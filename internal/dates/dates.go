// Package dates parses and normalizes the date and timestamp values stored
// in tenant schemas. SQLite hands back text for computed columns while
// Postgres returns time.Time, so every read path goes through here.
package dates

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// BindLayout is the text layout used when a timestamp is bound as a string
// parameter. It sorts lexicographically in the same order as time.
const BindLayout = "2006-01-02 15:04:05"

// DayLayout is the calendar-day layout.
const DayLayout = "2006-01-02"

var layouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05",
	BindLayout,
	DayLayout,
	"2006/01/02",
}

// Parse reads a stored date or timestamp in any of the layouts produced by
// the supported drivers. The result is in UTC.
func Parse(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized date %q", s)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// AddDays returns the day that is n calendar days after t's day.
func AddDays(t time.Time, n int) time.Time {
	return Day(t).AddDate(0, 0, n)
}

// DaysBetween returns the number of whole days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}

// Bind formats t for use as a string query parameter.
func Bind(t time.Time) string {
	return t.UTC().Format(BindLayout)
}

// NullTime is a nullable timestamp that scans from either a driver
// time.Time or any of the text layouts accepted by Parse.
type NullTime struct {
	Time  time.Time
	Valid bool
}

// Scan implements sql.Scanner.
func (n *NullTime) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		n.Time, n.Valid = time.Time{}, false
		return nil
	case time.Time:
		n.Time, n.Valid = v.UTC(), true
		return nil
	case string:
		return n.scanText(v)
	case []byte:
		return n.scanText(string(v))
	default:
		return fmt.Errorf("dates: cannot scan %T into NullTime", value)
	}
}

func (n *NullTime) scanText(s string) error {
	if strings.TrimSpace(s) == "" {
		n.Time, n.Valid = time.Time{}, false
		return nil
	}
	t, err := Parse(s)
	if err != nil {
		return err
	}
	n.Time, n.Valid = t, true
	return nil
}

// Value implements driver.Valuer.
func (n NullTime) Value() (driver.Value, error) {
	if !n.Valid {
		return nil, nil
	}
	return n.Time, nil
}

// MarshalJSON renders null or an RFC 3339 timestamp.
func (n NullTime) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Time.Format(time.RFC3339))
}
