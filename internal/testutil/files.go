package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFile writes content to name inside dir, creating parent directories,
// and returns the full path. name must stay inside dir.
func WriteFile(t testing.TB, dir, name string, content []byte) string {
	t.Helper()

	path := filepath.Join(dir, filepath.Clean(name))
	if rel, err := filepath.Rel(dir, path); err != nil || !filepath.IsLocal(rel) {
		t.Fatalf("WriteFile: path escapes directory: %s", name)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("create dir: %v", err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	return path
}
