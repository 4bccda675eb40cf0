package testutil

import (
	"context"
	"testing"

	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/testutil/dbtest"
)

// NewTestStore creates an in-memory database with the tenant schema loaded
// into main. The database is closed when the test completes.
func NewTestStore(t testing.TB) *store.Store {
	t.Helper()

	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})

	if err := st.InitSchema(context.Background(), tenant.Default); err != nil {
		t.Fatalf("init schema: %v", err)
	}
	return st
}

// NewSeededStore creates an in-memory database holding the dbtest standard
// data set.
func NewSeededStore(t testing.TB) (*store.Store, dbtest.StandardDataSet) {
	t.Helper()

	tdb := dbtest.NewTestDB(t)
	ds := tdb.SeedStandardDataSet()
	return tdb.Store, ds
}
