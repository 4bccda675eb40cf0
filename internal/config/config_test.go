package config

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/wesm/msgscope/internal/testutil"
)

func TestLoad_Defaults(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MSGSCOPE_HOME", tmpDir)
	t.Setenv("MSGSCOPE_DATABASE_DSN", "")
	t.Setenv("MSGSCOPE_JWT_SECRET", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.HomeDir != tmpDir {
		t.Errorf("HomeDir = %q, want %q", cfg.HomeDir, tmpDir)
	}
	want := DatabaseConfig{Driver: "sqlite3", DSN: filepath.Join(tmpDir, "msgscope.db"), Schema: "main"}
	if diff := cmp.Diff(want, cfg.Database); diff != "" {
		t.Errorf("Database (-want +got):\n%s", diff)
	}
	if cfg.Server.APIPort != 8080 || cfg.Server.BindAddr != "127.0.0.1" {
		t.Errorf("Server = %+v", cfg.Server)
	}
	if cfg.Search.DefaultPageSize != 25 || cfg.Search.MaxPageSize != 500 {
		t.Errorf("Search = %+v", cfg.Search)
	}
	if cfg.ServerAddr() != "127.0.0.1:8080" {
		t.Errorf("ServerAddr() = %q", cfg.ServerAddr())
	}
}

func TestLoad_File(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MSGSCOPE_HOME", tmpDir)
	t.Setenv("MSGSCOPE_DATABASE_DSN", "")
	t.Setenv("MSGSCOPE_JWT_SECRET", "")

	testutil.WriteFile(t, tmpDir, "config.toml", []byte(`
[database]
driver = "pgx"
dsn = "postgres://msgscope@localhost/msgscope"
schema = "acme"

[server]
api_port = 9090
bind_addr = "0.0.0.0"
jwt_secret = "file-secret"
cors_origins = ["https://app.example.com"]
rate_limit_rps = 2.5
rate_limit_burst = 5

[search]
default_page_size = 10
max_page_size = 100
`))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := &Config{
		Database: DatabaseConfig{Driver: "pgx", DSN: "postgres://msgscope@localhost/msgscope", Schema: "acme"},
		Server: ServerConfig{
			APIPort:        9090,
			BindAddr:       "0.0.0.0",
			JWTSecret:      "file-secret",
			CORSOrigins:    []string{"https://app.example.com"},
			RateLimitRPS:   2.5,
			RateLimitBurst: 5,
		},
		Search:     SearchConfig{DefaultPageSize: 10, MaxPageSize: 100},
		HomeDir:    tmpDir,
		ConfigPath: filepath.Join(tmpDir, "config.toml"),
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Errorf("Config (-want +got):\n%s", diff)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("MSGSCOPE_HOME", tmpDir)
	t.Setenv("MSGSCOPE_DATABASE_DSN", "postgresql://db.internal/tenants")
	t.Setenv("MSGSCOPE_JWT_SECRET", "env-secret")

	testutil.WriteFile(t, tmpDir, "config.toml", []byte(`
[server]
jwt_secret = "file-secret"
`))

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Driver != "pgx" || cfg.Database.DSN != "postgresql://db.internal/tenants" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.Server.JWTSecret != "env-secret" {
		t.Errorf("JWTSecret = %q, want env value", cfg.Server.JWTSecret)
	}
}

func TestLoad_ExplicitPathMustExist(t *testing.T) {
	t.Setenv("MSGSCOPE_HOME", t.TempDir())
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"bad toml", "[server\napi_port = 1", "decode config"},
		{"unknown driver", "[database]\ndriver = \"mysql\"", "Driver"},
		{"page sizes inverted", "[search]\ndefault_page_size = 50\nmax_page_size = 10", "DefaultPageSize"},
		{"port out of range", "[server]\napi_port = 70000", "APIPort"},
		{"negative rate", "[server]\nrate_limit_rps = -1", "RateLimitRPS"},
		{"empty dsn", "[database]\ndsn = \"\"", "database.dsn"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tmpDir := t.TempDir()
			t.Setenv("MSGSCOPE_HOME", tmpDir)
			t.Setenv("MSGSCOPE_DATABASE_DSN", "")
			path := testutil.WriteFile(t, tmpDir, "custom.toml", []byte(tt.content))

			_, err := Load(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %q, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestExpandPath(t *testing.T) {
	t.Setenv("HOME", "/home/tester")
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"/abs/path.db", "/abs/path.db"},
		{"relative.db", "relative.db"},
		{"~/data/msgscope.db", "/home/tester/data/msgscope.db"},
	}
	for _, tt := range tests {
		if got := expandPath(tt.in); got != tt.want {
			t.Errorf("expandPath(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
