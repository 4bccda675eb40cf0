package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/api"
)

var (
	tokenViewer string
	tokenAdmin  bool
	tokenTTL    time.Duration
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint a viewer token for the HTTP API",
	Long: `Sign a bearer token for the HTTP API with [server] jwt_secret.

The token's subject is --viewer and its tenant claim is the --schema (or
[database] schema). --admin adds the claim that permits as=admin.

  curl -H "Authorization: Bearer $(msgscope token --viewer <id>)" \
    http://127.0.0.1:8080/api/v1/threads`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Server.JWTSecret == "" {
			return errors.New("server.jwt_secret is not configured")
		}
		viewer, err := parseViewer(tokenViewer)
		if err != nil {
			return err
		}
		schema, err := tenantSchema()
		if err != nil {
			return err
		}

		token, err := api.IssueToken([]byte(cfg.Server.JWTSecret), api.Viewer{
			ID:     viewer,
			Schema: schema,
			Admin:  tokenAdmin,
		}, tokenTTL)
		if err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().StringVar(&tokenViewer, "viewer", "", "provider user id (required)")
	tokenCmd.Flags().BoolVar(&tokenAdmin, "admin", false, "allow the admin relationship")
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime (0 for no expiry)")
}
