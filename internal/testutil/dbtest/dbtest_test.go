package dbtest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/tenant"
)

// fakeT implements testing.TB and captures Fatalf calls instead of aborting.
type fakeT struct {
	testing.TB
	fatalMsg string
}

func (f *fakeT) Fatalf(format string, args ...interface{}) {
	f.fatalMsg = fmt.Sprintf(format, args...)
	panic("fatalf") // stop execution in the caller
}

func (f *fakeT) Helper() {}

func catchFatal(fn func()) (caught bool) {
	defer func() {
		if r := recover(); r != nil {
			caught = true
		}
	}()
	fn()
	return false
}

func TestNewID_Deterministic(t *testing.T) {
	a := NewTestDB(t)
	b := NewTestDB(t)
	for i := 0; i < 3; i++ {
		if x, y := a.NewID(), b.NewID(); x != y {
			t.Fatalf("id %d differs: %s vs %s", i, x, y)
		}
	}
	first, second := a.NewID(), a.NewID()
	if first.String() >= second.String() {
		t.Errorf("ids should sort in creation order: %s >= %s", first, second)
	}
}

func TestSeedStandardDataSet(t *testing.T) {
	tdb := NewTestDB(t)
	ds := tdb.SeedStandardDataSet()

	counts := []struct {
		table string
		want  int
	}{
		{"provider_users", 5},
		{"contacts", 3},
		{"provider_user_threads", 4},
		{"thread_messages", 6},
		{"message_parts", 3},
		{"sender_receiver_associations", 6},
		{"supervisor_mappings", 2},
		{"collaborator_mappings", 1},
		{"alias_mappings", 1},
		{"excluded_domains", 1},
	}
	for _, c := range counts {
		var got int
		if err := tdb.DB.Get(&got, "SELECT COUNT(*) FROM "+tdb.Schema.Table(c.table)); err != nil {
			t.Fatalf("count %s: %v", c.table, err)
		}
		if got != c.want {
			t.Errorf("%s count = %d, want %d", c.table, got, c.want)
		}
	}

	var owner uuid.UUID
	if err := tdb.DB.Get(&owner, tdb.DB.Rebind("SELECT provider_user_id FROM "+tdb.Schema.Table("provider_user_threads")+" WHERE id = ?"), ds.T4); err != nil {
		t.Fatalf("thread owner: %v", err)
	}
	if owner != ds.U2 {
		t.Errorf("T4 owner = %s, want U2 %s", owner, ds.U2)
	}
}

func TestAttachedSchema(t *testing.T) {
	tdb := NewTestDBWithSchema(t, tenant.MustParse("acme"))
	id := tdb.AddProviderUser(ProviderUserOpts{Email: "x@acme.test"})

	var n int
	if err := tdb.DB.Get(&n, `SELECT COUNT(*) FROM "acme".provider_users`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1 (id %s)", n, id)
	}
	if err := tdb.DB.Get(&n, `SELECT COUNT(*) FROM main.provider_users`); err == nil {
		t.Error("main should not carry tenant tables when an attached schema is used")
	}
}

func TestAddProviderUser_RequiresEmail(t *testing.T) {
	tdb := NewTestDB(t)
	ft := &fakeT{TB: t}
	fake := &TestDB{Store: tdb.Store, DB: tdb.DB, Schema: tdb.Schema, T: ft}

	if !catchFatal(func() { fake.AddProviderUser(ProviderUserOpts{}) }) {
		t.Fatal("expected Fatalf for missing email")
	}
	if ft.fatalMsg == "" {
		t.Error("expected a fatal message")
	}
}

func TestAddContact_ForeignKeyEnforced(t *testing.T) {
	tdb := NewTestDB(t)
	ft := &fakeT{TB: t}
	fake := &TestDB{Store: tdb.Store, DB: tdb.DB, Schema: tdb.Schema, T: ft, nextID: 500}

	caught := catchFatal(func() {
		fake.AddContact(ContactOpts{DomainID: uuid.New(), Email: "orphan@nowhere.test"})
	})
	if !caught {
		t.Fatal("expected Fatalf for a contact with an unknown domain")
	}
}
