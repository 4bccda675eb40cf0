package cmd

import (
	"github.com/spf13/cobra"

	mcpserver "github.com/wesm/msgscope/internal/mcp"
)

var (
	mcpViewer     string
	mcpAllowAdmin bool
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run an MCP server over stdio for AI assistants",
	Long: `Run a Model Context Protocol server over stdin/stdout.

Every tool call runs as the --viewer provider user in the selected tenant
schema. Admin searches stay disabled unless --allow-admin is given.

Add to an MCP client configuration:
  {
    "mcpServers": {
      "msgscope": {
        "command": "msgscope",
        "args": ["mcp", "--viewer", "<provider user id>"]
      }
    }
  }`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		viewer, err := parseViewer(mcpViewer)
		if err != nil {
			return err
		}
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

		return mcpserver.Serve(ctx, newEngine(s), mcpserver.Session{
			Schema:     schema,
			Viewer:     viewer,
			AllowAdmin: mcpAllowAdmin,
		})
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpViewer, "viewer", "", "provider user id every tool call runs as (required)")
	mcpCmd.Flags().BoolVar(&mcpAllowAdmin, "allow-admin", false, "permit the admin relationship")
}
