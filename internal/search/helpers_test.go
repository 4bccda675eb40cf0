package search

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func utcDate(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func boolPtr(v bool) *bool           { return &v }
func timePtr(v time.Time) *time.Time { return &v }

// assertQueryEqual compares two Query structs, treating nil slices and empty
// slices as equivalent.
func assertQueryEqual(t *testing.T, got, want Query) {
	t.Helper()
	if diff := cmp.Diff(want, got, cmpopts.EquateEmpty()); diff != "" {
		t.Errorf("Query mismatch (-want +got):\n%s", diff)
	}
}
