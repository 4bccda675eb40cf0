package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
)

var statsJSON bool

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show row counts for a tenant schema",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		schema, err := tenantSchema()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openStore(ctx, schema)
		if err != nil {
			return err
		}
		defer s.Close()

		stats, err := s.GetStats(ctx, schema)
		if err != nil {
			return fmt.Errorf("get stats: %w", err)
		}
		return printStats(os.Stdout, schema, stats, wantJSON(statsJSON, os.Stdout))
	},
}

func printStats(w io.Writer, schema tenant.Schema, stats *store.Stats, asJSON bool) error {
	if asJSON {
		return writeJSON(w, stats)
	}
	fmt.Fprintf(w, "Schema: %s\n\n", schema)
	t := newTable("TABLE", "ROWS")
	t.add("provider users", strconv.FormatInt(stats.ProviderUserCount, 10))
	t.add("contacts", strconv.FormatInt(stats.ContactCount, 10))
	t.add("threads", strconv.FormatInt(stats.ThreadCount, 10))
	t.add("messages", strconv.FormatInt(stats.MessageCount, 10))
	t.add("attachments", strconv.FormatInt(stats.AttachmentCount, 10))
	t.add("grants", strconv.FormatInt(stats.GrantCount, 10))
	return t.render(w)
}

func init() {
	rootCmd.AddCommand(statsCmd)
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "output JSON (default when stdout is not a terminal)")
}
