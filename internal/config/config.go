// Package config handles loading and managing msgscope configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
)

// DatabaseConfig selects the tenant database.
type DatabaseConfig struct {
	Driver string `toml:"driver" validate:"oneof=sqlite3 pgx"` // sqlite3 or pgx
	DSN    string `toml:"dsn"`                                 // file path for sqlite3, URL for pgx
	Schema string `toml:"schema"`                              // default tenant schema for the CLI
}

// ServerConfig holds HTTP API server configuration.
type ServerConfig struct {
	APIPort        int      `toml:"api_port" validate:"min=0,max=65535"` // HTTP server port (default: 8080)
	BindAddr       string   `toml:"bind_addr"`                           // default 127.0.0.1
	JWTSecret      string   `toml:"jwt_secret"`                          // HS256 key for viewer tokens
	CORSOrigins    []string `toml:"cors_origins"`                        // allowed origins; empty disables CORS
	RateLimitRPS   float64  `toml:"rate_limit_rps" validate:"gte=0"`     // per-client requests per second; 0 disables
	RateLimitBurst int      `toml:"rate_limit_burst" validate:"gte=0"`
}

// SearchConfig holds listing defaults.
type SearchConfig struct {
	DefaultPageSize int `toml:"default_page_size" validate:"min=1,ltefield=MaxPageSize"`
	MaxPageSize     int `toml:"max_page_size" validate:"min=1,max=10000"`
}

// Config represents the msgscope configuration.
type Config struct {
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
	Search   SearchConfig   `toml:"search"`

	// Computed paths (not from config file)
	HomeDir    string `toml:"-"`
	ConfigPath string `toml:"-"`
}

// DefaultHome returns the default msgscope home directory.
// Respects MSGSCOPE_HOME environment variable.
func DefaultHome() string {
	if h := os.Getenv("MSGSCOPE_HOME"); h != "" {
		return expandPath(h)
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".msgscope"
	}
	return filepath.Join(home, ".msgscope")
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	homeDir := DefaultHome()
	return &Config{
		HomeDir: homeDir,
		Database: DatabaseConfig{
			Driver: "sqlite3",
			DSN:    filepath.Join(homeDir, "msgscope.db"),
			Schema: "main",
		},
		Server: ServerConfig{
			APIPort:        8080,
			BindAddr:       "127.0.0.1",
			RateLimitRPS:   10,
			RateLimitBurst: 20,
		},
		Search: SearchConfig{
			DefaultPageSize: 25,
			MaxPageSize:     500,
		},
	}
}

// Load reads the configuration from the specified file.
// If path is empty, uses the default location (~/.msgscope/config.toml).
// Defaults apply first, then the file, then environment overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != ""
	if !explicit {
		path = filepath.Join(cfg.HomeDir, "config.toml")
	}
	path = expandPath(path)
	cfg.ConfigPath = path

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode config: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) || explicit {
		// An explicitly named config must exist.
		return nil, fmt.Errorf("read config: %w", err)
	}

	applyEnv(cfg)

	if cfg.Database.Driver == "sqlite3" {
		cfg.Database.DSN = expandPath(cfg.Database.DSN)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overrides file values with MSGSCOPE_* environment variables.
func applyEnv(cfg *Config) {
	if v := os.Getenv("MSGSCOPE_DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
		if strings.HasPrefix(v, "postgres://") || strings.HasPrefix(v, "postgresql://") {
			cfg.Database.Driver = "pgx"
		}
	}
	if v := os.Getenv("MSGSCOPE_JWT_SECRET"); v != "" {
		cfg.Server.JWTSecret = v
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field ranges and cross-field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.Database.DSN == "" {
		return errors.New("invalid config: database.dsn is required")
	}
	return nil
}

// ServerAddr returns the listen address for the HTTP API.
func (c *Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.BindAddr, c.Server.APIPort)
}

// expandPath expands ~ to the user's home directory.
func expandPath(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[1:])
	}
	return path
}
