package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/config"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
)

var (
	cfgFile    string
	verbose    bool
	schemaFlag string
	cfg        *config.Config
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "msgscope",
	Short: "Visibility-scoped search over tenant mail metadata",
	Long: `msgscope answers "which contacts, threads and attachments may this
person see?" for a tenant's mailboxes. Supervisors see their subordinates'
mail, collaborators and aliases see what their grants allow for the dates
they allow, and every listing respects the organization's data window.

Listings are available over HTTP (serve), MCP (mcp) and the command line
(search).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" {
			return nil
		}

		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		}))

		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		return nil
	},
}

// Execute runs the root command with a background context.
// Prefer ExecuteContext for signal-aware execution.
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with the given context,
// enabling graceful shutdown when the context is cancelled.
func ExecuteContext(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

// tenantSchema returns the --schema flag, falling back to the configured
// default.
func tenantSchema() (tenant.Schema, error) {
	name := schemaFlag
	if name == "" {
		name = cfg.Database.Schema
	}
	if name == "" {
		return tenant.Default, nil
	}
	return tenant.Parse(name)
}

// openStore opens the configured database with the tenant schema ready to
// query. SQLite schemas are created on first use.
func openStore(ctx context.Context, schema tenant.Schema) (*store.Store, error) {
	s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if s.Driver() == store.DriverSQLite {
		if err := s.InitSchema(ctx, schema); err != nil {
			s.Close()
			return nil, fmt.Errorf("init schema: %w", err)
		}
	}
	return s, nil
}

// newEngine builds the query engine with the configured page sizes.
func newEngine(s *store.Store) *query.SQLEngine {
	return query.NewSQLEngine(s).
		WithLogger(logger).
		WithPageSizes(cfg.Search.DefaultPageSize, cfg.Search.MaxPageSize)
}

// parseViewer validates a --viewer flag value.
func parseViewer(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, fmt.Errorf("--viewer is required (a provider user id)")
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --viewer %q: %w", s, err)
	}
	return id, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ~/.msgscope/config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&schemaFlag, "schema", "", "tenant schema (default: [database] schema)")
}
