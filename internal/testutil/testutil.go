// Package testutil provides test helpers for msgscope tests.
//
// The package is organized into focused files:
//   - assert.go: assertion helpers (MustNoErr, AssertContainsAll)
//   - store_helpers.go: database test setup (NewTestStore, NewSeededStore)
//   - files.go: filesystem helpers for config tests (WriteFile)
//
// Row-level seeding lives in the dbtest subpackage.
package testutil
