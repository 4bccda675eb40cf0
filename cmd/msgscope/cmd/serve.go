package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP listing API",
	Long: `Run the HTTP API in the foreground.

Every /api/v1 request carries a bearer token signed with [server] jwt_secret
(see "msgscope token"). The token's subject is the viewer and its tenant
claim selects the schema.

  GET /api/v1/contacts     ?as=&filter=&sort=&order=&page=&page_size=
  GET /api/v1/threads
  GET /api/v1/attachments
  GET /api/v1/visibility   ?as=

Use Ctrl+C to stop the server gracefully.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	if cfg.Server.JWTSecret == "" {
		return errors.New("server.jwt_secret is required to serve the API (or set MSGSCOPE_JWT_SECRET)")
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

	apiServer := api.NewServer(cfg, newEngine(s), logger)

	serverErr := make(chan error, 1)
	go func() {
		if err := apiServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	fmt.Printf("msgscope API listening on http://%s\n", cfg.ServerAddr())
	fmt.Println("Press Ctrl+C to stop.")

	var runErr error
	select {
	case err := <-serverErr:
		logger.Error("API server error", "error", err)
		runErr = fmt.Errorf("api server: %w", err)
	case <-ctx.Done():
		logger.Info("shutting down", "reason", context.Cause(ctx))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("API server shutdown error", "error", err)
	}
	return runErr
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
