package store_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/testutil"
	"github.com/wesm/msgscope/internal/testutil/dbtest"
	"github.com/wesm/msgscope/internal/testutil/ptr"
	"github.com/wesm/msgscope/internal/visibility"
)

var ctx = context.Background()

func TestStore_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dev.db")
	st, err := store.Open(store.DriverSQLite, path)
	testutil.MustNoErr(t, err, "Open")
	defer st.Close()

	if st.Driver() != store.DriverSQLite {
		t.Errorf("Driver() = %q", st.Driver())
	}
	testutil.MustNoErr(t, st.InitSchema(ctx, tenant.Default), "InitSchema")
	testutil.MustNoErr(t, st.InitSchema(ctx, tenant.Default), "InitSchema again")
}

func TestStore_New(t *testing.T) {
	db, err := sqlx.Open(store.DriverSQLite, ":memory:")
	testutil.MustNoErr(t, err, "sqlx.Open")
	st := store.New(db, store.DriverSQLite)
	defer st.Close()

	if st.DB() != db {
		t.Error("DB() does not return the wrapped connection")
	}
	testutil.MustNoErr(t, st.InitSchema(ctx, tenant.Default), "InitSchema")
	stats, err := st.GetStats(ctx, tenant.Default)
	testutil.MustNoErr(t, err, "GetStats")
	if *stats != (store.Stats{}) {
		t.Errorf("stats = %+v, want zero", stats)
	}
}

func TestStore_Open_UnsupportedDriver(t *testing.T) {
	if _, err := store.Open("mysql", "x"); err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestStore_InitSchema_AttachedTenantFile(t *testing.T) {
	dir := t.TempDir()
	st, err := store.Open(store.DriverSQLite, filepath.Join(dir, "main.db"))
	testutil.MustNoErr(t, err, "Open")
	defer st.Close()

	acme := tenant.MustParse("acme")
	testutil.MustNoErr(t, st.InitSchema(ctx, acme), "InitSchema")
	testutil.MustNoErr(t, st.InitSchema(ctx, acme), "InitSchema is idempotent")

	stats, err := st.GetStats(ctx, acme)
	testutil.MustNoErr(t, err, "GetStats")
	if diff := cmp.Diff(&store.Stats{}, stats); diff != "" {
		t.Errorf("fresh tenant stats (-want +got):\n%s", diff)
	}
}

func TestStore_GetStats(t *testing.T) {
	st, _ := testutil.NewSeededStore(t)

	stats, err := st.GetStats(ctx, tenant.Default)
	testutil.MustNoErr(t, err, "GetStats")
	want := &store.Stats{
		ProviderUserCount: 5,
		ContactCount:      3,
		ThreadCount:       4,
		MessageCount:      6,
		AttachmentCount:   3,
		GrantCount:        4,
	}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats (-want +got):\n%s", diff)
	}
}

func TestStore_GetStats_MissingTables(t *testing.T) {
	st, err := store.Open(store.DriverSQLite, ":memory:")
	testutil.MustNoErr(t, err, "Open")
	defer st.Close()

	stats, err := st.GetStats(ctx, tenant.Default)
	testutil.MustNoErr(t, err, "GetStats on empty database")
	if stats.ThreadCount != 0 {
		t.Errorf("ThreadCount = %d", stats.ThreadCount)
	}
}

func TestStore_SupervisorGrants(t *testing.T) {
	tdb := dbtest.NewTestDB(t)
	ds := tdb.SeedStandardDataSet()
	gone := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "gone@acme.test"})
	tdb.AddSupervisor(ds.S, gone)
	tdb.DeleteProviderUser(gone)
	revoked := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "a-revoked@acme.test"})
	id := tdb.AddSupervisor(ds.S, revoked)
	tdb.Exec("supervisor_mappings", `UPDATE %s SET is_deleted = TRUE WHERE id = ?`, id)

	grants, err := tdb.Store.SupervisorGrants(ctx, tdb.Schema, ds.S, dbtest.StandardNow)
	testutil.MustNoErr(t, err, "SupervisorGrants")

	var subs []uuid.UUID
	for _, g := range grants {
		subs = append(subs, g.SubordinateID)
		if g.SupervisorID != ds.S {
			t.Errorf("SupervisorID = %s, want %s", g.SupervisorID, ds.S)
		}
	}
	// Ordered by subordinate email.
	if diff := cmp.Diff([]uuid.UUID{ds.U1, ds.U2}, subs); diff != "" {
		t.Errorf("subordinates (-want +got):\n%s", diff)
	}

	none, err := tdb.Store.SupervisorGrants(ctx, tdb.Schema, ds.U1, dbtest.StandardNow)
	testutil.MustNoErr(t, err, "SupervisorGrants for non-supervisor")
	if none == nil || len(none) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", none)
	}
}

func TestStore_CollaboratorGrants_ActiveFilter(t *testing.T) {
	tdb := dbtest.NewTestDB(t)
	owner := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "owner@acme.test"})
	other := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "other@acme.test"})
	viewer := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "viewer@acme.test"})
	now := dbtest.StandardNow

	active := tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: owner, CollaboratorID: viewer, Start: ptr.DatePtr(2024, 1, 1)})
	openStart := tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: other, CollaboratorID: viewer, End: ptr.DatePtr(2025, 1, 1)})
	tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: owner, CollaboratorID: viewer, Start: ptr.DatePtr(2023, 1, 1), End: ptr.DatePtr(2024, 5, 1)})
	tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: owner, CollaboratorID: viewer, Start: ptr.DatePtr(2024, 7, 1)})
	tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: owner, CollaboratorID: viewer, Deleted: true})
	tdb.AddCollaborator(dbtest.CollaboratorOpts{OwnerID: owner, CollaboratorID: owner})

	grants, err := tdb.Store.CollaboratorGrants(ctx, tdb.Schema, viewer, now)
	testutil.MustNoErr(t, err, "CollaboratorGrants")

	var ids []uuid.UUID
	for _, g := range grants {
		ids = append(ids, g.ID)
	}
	// other@ sorts before owner@.
	if diff := cmp.Diff([]uuid.UUID{openStart, active}, ids); diff != "" {
		t.Errorf("active grants (-want +got):\n%s", diff)
	}
	if grants[0].StartDate != nil {
		t.Errorf("open start should scan as nil, got %q", *grants[0].StartDate)
	}
	if grants[1].StartDate == nil || *grants[1].StartDate != "2024-01-01 00:00:00" {
		t.Errorf("StartDate = %v, want raw stored text", grants[1].StartDate)
	}
}

func TestStore_AliasGrants_HistoricalDatesDoNotGateActivity(t *testing.T) {
	tdb := dbtest.NewTestDB(t)
	owner := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "owner@acme.test"})
	alias := tdb.AddProviderUser(dbtest.ProviderUserOpts{Email: "alias@acme.test"})

	// Historical access ended long ago but the mapping itself is active.
	id := tdb.AddAlias(dbtest.AliasOpts{
		OwnerID:         owner,
		AliasID:         alias,
		Start:           ptr.DatePtr(2024, 1, 1),
		HistoricalStart: ptr.DatePtr(2020, 1, 1),
		HistoricalEnd:   ptr.DatePtr(2020, 12, 31),
	})
	// Mapping expired even though historical access is open-ended.
	tdb.AddAlias(dbtest.AliasOpts{
		OwnerID:         owner,
		AliasID:         alias,
		End:             ptr.DatePtr(2024, 2, 1),
		HistoricalStart: ptr.DatePtr(2024, 1, 1),
	})

	grants, err := tdb.Store.AliasGrants(ctx, tdb.Schema, alias, dbtest.StandardNow)
	testutil.MustNoErr(t, err, "AliasGrants")
	if len(grants) != 1 || grants[0].ID != id {
		t.Fatalf("grants = %+v, want only %s", grants, id)
	}
	g := grants[0]
	if g.OwnerID != owner || g.AliasUserID != alias {
		t.Errorf("grant = %+v", g)
	}
	if g.HistoricalEmailAccessEndDate == nil || *g.HistoricalEmailAccessEndDate != "2020-12-31 00:00:00" {
		t.Errorf("HistoricalEmailAccessEndDate = %v", g.HistoricalEmailAccessEndDate)
	}
}

func TestStore_OrganizationSettings(t *testing.T) {
	tdb := dbtest.NewTestDB(t)

	got, err := tdb.Store.OrganizationSettings(ctx, tdb.Schema)
	testutil.MustNoErr(t, err, "OrganizationSettings without row")
	if diff := cmp.Diff(visibility.OrgSettings{}, got); diff != "" {
		t.Errorf("missing row (-want +got):\n%s", diff)
	}

	tdb.SetOrgSettings(dbtest.OrgSettingsOpts{
		WindowSet:            true,
		Rolling:              true,
		Start:                dbtest.StrPtr("2020-01-01 00:00:00"),
		RangeInDays:          ptr.Int(90),
		CollabDefaultEnabled: true,
		CollabDefaultDays:    30,
	})
	got, err = tdb.Store.OrganizationSettings(ctx, tdb.Schema)
	testutil.MustNoErr(t, err, "OrganizationSettings")
	want := visibility.OrgSettings{
		Window: visibility.OrgWindow{
			IsSet:       true,
			IsRolling:   true,
			StartDate:   ptr.String("2020-01-01 00:00:00"),
			RangeInDays: 90,
		},
		Collaboration: visibility.CollaborationPolicy{DefaultEnabled: true, DefaultDurationDays: 30},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("settings (-want +got):\n%s", diff)
	}
}

func TestStore_ProviderUsers(t *testing.T) {
	tdb := dbtest.NewTestDB(t)
	ds := tdb.SeedStandardDataSet()
	tdb.DeleteProviderUser(ds.U2)

	users, err := tdb.Store.ProviderUsers(ctx, tdb.Schema, []uuid.UUID{ds.U2, ds.U1, uuid.New()})
	testutil.MustNoErr(t, err, "ProviderUsers")
	if len(users) != 2 {
		t.Fatalf("got %d users, want 2", len(users))
	}
	if users[0].Email != "u1@acme.test" || users[1].Email != "u2@acme.test" {
		t.Errorf("emails = %s, %s", users[0].Email, users[1].Email)
	}
	if !users[1].IsDeleted {
		t.Error("soft-deleted users are still returned, flagged")
	}

	empty, err := tdb.Store.ProviderUsers(ctx, tdb.Schema, nil)
	testutil.MustNoErr(t, err, "ProviderUsers(nil)")
	if len(empty) != 0 {
		t.Errorf("expected no users, got %v", empty)
	}
}

func TestStore_GrantsInAttachedSchema(t *testing.T) {
	tdb := dbtest.NewTestDBWithSchema(t, tenant.MustParse("acme"))
	ds := tdb.SeedStandardDataSet()

	grants, err := tdb.Store.SupervisorGrants(ctx, tdb.Schema, ds.S, dbtest.StandardNow)
	testutil.MustNoErr(t, err, "SupervisorGrants")
	if len(grants) != 2 {
		t.Errorf("got %d grants, want 2", len(grants))
	}
}
