package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/config"
	"github.com/wesm/msgscope/internal/tenant"
)

// newTestRootCmd creates a fresh root command so tests do not mutate the
// global rootCmd.
func newTestRootCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "msgscope",
		Short: "Visibility-scoped search",
	}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestExecuteContext_CancellationPropagates(t *testing.T) {
	var cancelled atomic.Bool
	handlerStarted := make(chan struct{})

	testRoot := newTestRootCmd()
	testRoot.AddCommand(&cobra.Command{
		Use: "test-cancel",
		RunE: func(cmd *cobra.Command, args []string) error {
			close(handlerStarted)
			select {
			case <-cmd.Context().Done():
				cancelled.Store(true)
				return cmd.Context().Err()
			case <-time.After(5 * time.Second):
				return nil
			}
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		testRoot.SetArgs([]string{"test-cancel"})
		done <- testRoot.ExecuteContext(ctx)
	}()

	select {
	case <-handlerStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("command handler did not start in time")
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("command did not return after cancellation")
	}
	if !cancelled.Load() {
		t.Error("handler did not observe cancellation")
	}
}

func TestTenantSchema(t *testing.T) {
	saved, savedFlag := cfg, schemaFlag
	t.Cleanup(func() { cfg, schemaFlag = saved, savedFlag })

	tests := []struct {
		name    string
		flag    string
		config  string
		want    tenant.Schema
		wantErr bool
	}{
		{name: "flag wins", flag: "acme", config: "other", want: "acme"},
		{name: "config fallback", config: "other", want: "other"},
		{name: "default", want: tenant.Default},
		{name: "invalid flag", flag: "Acme-Co", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg = config.Default()
			cfg.Database.Schema = tt.config
			schemaFlag = tt.flag

			got, err := tenantSchema()
			if tt.wantErr {
				if err == nil {
					t.Fatalf("tenantSchema() = %q, want error", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("tenantSchema() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("tenantSchema() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseViewer(t *testing.T) {
	id := uuid.MustParse("00000000-0000-4000-8000-000000000101")
	got, err := parseViewer(id.String())
	if err != nil || got != id {
		t.Errorf("parseViewer(%q) = %v, %v", id, got, err)
	}
	for _, in := range []string{"", "not-a-uuid"} {
		if _, err := parseViewer(in); err == nil {
			t.Errorf("parseViewer(%q) succeeded, want error", in)
		}
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"init-db", "mcp", "search", "serve", "stats", "token", "visibility"}
	have := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		have[c.Name()] = true
	}
	for _, name := range want {
		if !have[name] {
			t.Errorf("subcommand %q not registered", name)
		}
	}
}
