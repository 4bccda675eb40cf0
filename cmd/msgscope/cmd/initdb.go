package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/store"
)

var initDBCmd = &cobra.Command{
	Use:   "init-db",
	Short: "Create the tenant tables",
	Long: `Create the tenant schema and its tables if they do not exist.

On Postgres the schema is created with CREATE SCHEMA. On SQLite a schema
other than main is attached as its own database file next to the main one.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := tenantSchema()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := store.Open(cfg.Database.Driver, cfg.Database.DSN)
		if err != nil {
			return fmt.Errorf("open database: %w", err)
		}
		defer s.Close()

		if err := s.InitSchema(ctx, schema); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
		logger.Info("schema initialized", "schema", schema, "driver", s.Driver())
		fmt.Printf("Schema %s is ready (%s).\n", schema, s.Driver())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initDBCmd)
}
