package testutil

import (
	"context"
	"os"
	"testing"

	"github.com/wesm/msgscope/internal/tenant"
)

func TestNewTestStore(t *testing.T) {
	st := NewTestStore(t)

	stats, err := st.GetStats(context.Background(), tenant.Default)
	if err != nil {
		t.Fatalf("get stats: %v", err)
	}
	if stats.MessageCount != 0 {
		t.Errorf("expected 0 messages, got %d", stats.MessageCount)
	}
}

func TestNewSeededStore(t *testing.T) {
	st, _ := NewSeededStore(t)

	stats, err := st.GetStats(context.Background(), tenant.Default)
	MustNoErr(t, err, "get stats")
	if stats.ThreadCount != 4 || stats.GrantCount != 4 {
		t.Errorf("stats = %+v, want 4 threads and 4 grants", stats)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := WriteFile(t, dir, "nested/config.toml", []byte("x = 1\n"))
	got, err := os.ReadFile(path)
	MustNoErr(t, err, "read back")
	if string(got) != "x = 1\n" {
		t.Errorf("content = %q", got)
	}
}

