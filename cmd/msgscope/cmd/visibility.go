package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

var (
	visibilityViewer string
	visibilityAs     string
	visibilityJSON   bool
)

var visibilityCmd = &cobra.Command{
	Use:   "visibility",
	Short: "Explain which mailboxes a viewer may see",
	Long: `Resolve a viewer's scope in one relationship context and print the
mailboxes it covers, the date window for each, and the organization's data
window.`,
	Args: cobra.NoArgs,
	RunE: runVisibility,
}

func runVisibility(cmd *cobra.Command, args []string) error {
	viewer, err := parseViewer(visibilityViewer)
	if err != nil {
		return err
	}
	rel, err := visibility.ParseRelationship(visibilityAs)
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

	return describeVisibility(ctx, newEngine(s), schema, viewer, rel, os.Stdout, wantJSON(visibilityJSON, os.Stdout))
}

func describeVisibility(ctx context.Context, engine query.Engine, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship, w io.Writer, asJSON bool) error {
	report, err := engine.DescribeVisibility(ctx, schema, viewer, rel)
	if err != nil {
		return fmt.Errorf("resolve visibility: %w", err)
	}
	if asJSON {
		return writeJSON(w, report)
	}

	fmt.Fprintf(w, "Viewer:       %s\n", viewer)
	fmt.Fprintf(w, "Relationship: %s\n", rel)
	fmt.Fprintf(w, "Org window:   %s\n", describeOrgWindow(report.OrgWindow))
	fmt.Fprintln(w)

	scope := report.Scope
	if scope.Unrestricted {
		_, err := fmt.Fprintln(w, "Unrestricted: every mailbox in the tenant within the org window.")
		return err
	}
	if len(scope.Grants) == 0 {
		_, err := fmt.Fprintln(w, "No mailboxes are visible in this context.")
		return err
	}

	emails := make(map[uuid.UUID]string, len(report.Subjects))
	for _, u := range report.Subjects {
		emails[u.ID] = u.Email
	}
	t := newTable("MAILBOX", "KIND", "WINDOW")
	for _, g := range scope.Grants {
		mailbox := emails[g.Subject]
		if mailbox == "" {
			mailbox = g.Subject.String()
		}
		window := g.Window.String()
		if g.Window.IsEmpty() {
			window += " (empty)"
		}
		t.add(mailbox, g.Kind.String(), window)
	}
	return t.render(w)
}

func describeOrgWindow(o visibility.OrgWindowSummary) string {
	if !o.Set {
		return "not set"
	}
	desc := o.Window.String()
	if o.Rolling {
		desc += " rolling"
	}
	if o.RangeInDays > 0 {
		desc += " (" + strconv.Itoa(o.RangeInDays) + " days)"
	}
	return desc
}

func init() {
	rootCmd.AddCommand(visibilityCmd)
	visibilityCmd.Flags().StringVar(&visibilityViewer, "viewer", "", "provider user id (required)")
	visibilityCmd.Flags().StringVar(&visibilityAs, "as", visibility.Direct.String(), "relationship: direct, supervisor, alias, collaborator, admin")
	visibilityCmd.Flags().BoolVar(&visibilityJSON, "json", false, "output JSON (default when stdout is not a terminal)")
}
