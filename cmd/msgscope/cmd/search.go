package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/search"
	"github.com/wesm/msgscope/internal/visibility"
)

var (
	searchViewer   string
	searchAs       string
	searchSort     string
	searchAsc      bool
	searchDesc     bool
	searchPage     int
	searchPageSize int
	searchJSON     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <contacts|threads|attachments> [filter...]",
	Short: "List what a viewer may see",
	Long: `List contacts, threads or attachments visible to a provider user.

The filter uses the same syntax as the API's filter parameter:
  free text          matches subject, file name, contact email and name
  subject:word       thread subject contains word
  file:name          attachment file name contains name
  has:attachment     only rows with attachments (no:attachment for none)
  has:reply          only rows with replies (no:reply for none)
  after:2024-01-01   on or after the date
  before:2024-02-01  before the date
  newer_than:30d     within the last 30 days (d, w, m, y)
  older_than:1y      older than one year
  contact:<uuid>     restrict to contacts (comma-separated)
  domain:<uuid>      restrict to client domains (comma-separated)

Examples:
  msgscope search threads --viewer <id> --as supervisor has:attachment
  msgscope search contacts --viewer <id> --sort client_name newer_than:90d
  msgscope search attachments --viewer <id> file:invoice --json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	kind, err := corpus.ParseKind(args[0])
	if err != nil {
		return err
	}
	if searchAsc && searchDesc {
		return fmt.Errorf("--asc and --desc are mutually exclusive")
	}

	viewer, err := parseViewer(searchViewer)
	if err != nil {
		return err
	}
	rel, err := visibility.ParseRelationship(searchAs)
	if err != nil {
		return err
	}
	field, err := corpus.ParseSortField(searchSort)
	if err != nil {
		return err
	}
	if searchPage < 0 || searchPageSize < 0 {
		return fmt.Errorf("--page and --page-size must not be negative")
	}

	schema, err := tenantSchema()
	if err != nil {
		return err
	}

	desc := field.DefaultDesc()
	switch {
	case searchAsc:
		desc = false
	case searchDesc:
		desc = true
	}

	req := query.Request{
		Schema:       schema,
		Viewer:       viewer,
		Relationship: rel,
		Filters:      search.Parse(strings.Join(args[1:], " ")).Filters(),
		Sort:         query.Sort{Field: field, Desc: desc},
		Page:         searchPage,
		PageSize:     searchPageSize,
	}

	ctx := cmd.Context()
	s, err := openStore(ctx, schema)
	if err != nil {
		return err
	}
	defer s.Close()

	return runListing(ctx, newEngine(s), kind, req, os.Stdout, wantJSON(searchJSON, os.Stdout))
}

// runListing runs one listing and prints it as JSON or a table.
func runListing(ctx context.Context, engine query.Engine, kind corpus.Kind, req query.Request, w io.Writer, asJSON bool) error {
	switch kind {
	case corpus.Contacts:
		page, err := engine.SearchContacts(ctx, req)
		if err != nil {
			return fmt.Errorf("search contacts: %w", err)
		}
		return printPage(w, page, asJSON, contactTable)
	case corpus.Threads:
		page, err := engine.SearchThreads(ctx, req)
		if err != nil {
			return fmt.Errorf("search threads: %w", err)
		}
		return printPage(w, page, asJSON, threadTable)
	case corpus.Attachments:
		page, err := engine.SearchAttachments(ctx, req)
		if err != nil {
			return fmt.Errorf("search attachments: %w", err)
		}
		return printPage(w, page, asJSON, attachmentTable)
	default:
		return fmt.Errorf("unknown listing %q", kind)
	}
}

func printPage[T any](w io.Writer, page *query.Page[T], asJSON bool, toTable func([]T) *table) error {
	if asJSON {
		return writeJSON(w, page)
	}
	if len(page.Data) == 0 {
		_, err := fmt.Fprintln(w, "No results.")
		return err
	}
	if err := toTable(page.Data).render(w); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nPage %d (%d of %d rows)", page.Page, len(page.Data), page.Total)
	if err == nil && page.HasNextPage {
		_, err = fmt.Fprintf(w, ", next: --page %d", page.Page+1)
	}
	if err == nil {
		_, err = fmt.Fprintln(w)
	}
	return err
}

func contactTable(rows []corpus.ContactRow) *table {
	t := newTable("EMAIL", "NAME", "CLIENT", "DOMAIN", "MSGS", "ATTACH", "REPLIES", "LAST CONTACT")
	for _, r := range rows {
		t.add(r.Email, personName(r.FirstName, r.LastName), r.ClientName, r.Domain,
			strconv.FormatInt(r.MessageCount, 10),
			strconv.FormatInt(r.AttachmentCount, 10),
			strconv.FormatInt(r.ReplyCount, 10),
			formatDay(r.LastContactAt))
	}
	return t
}

func threadTable(rows []corpus.ThreadRow) *table {
	t := newTable("SUBJECT", "CLIENT", "DOMAIN", "MSGS", "ATTACH", "REPLIES", "LAST UPDATED")
	for _, r := range rows {
		t.add(orDash(r.Subject), r.ClientEmail, r.Domain,
			strconv.FormatInt(r.MessageCount, 10),
			strconv.FormatInt(r.AttachmentCount, 10),
			strconv.FormatInt(r.ReplyCount, 10),
			formatDay(r.LastUpdatedAt))
	}
	return t
}

func attachmentTable(rows []corpus.AttachmentRow) *table {
	t := newTable("FILE", "SIZE", "TYPE", "SUBJECT", "CLIENT", "SENT")
	for _, r := range rows {
		t.add(orDash(r.FileName), formatBytes(r.Size), orDash(r.MimeType),
			orDash(r.Subject), r.ClientEmail, formatDay(r.SentAt))
	}
	return t
}

func personName(first, last *string) string {
	var parts []string
	for _, p := range []*string{first, last} {
		if p != nil && strings.TrimSpace(*p) != "" {
			parts = append(parts, strings.TrimSpace(*p))
		}
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}

func formatDay(n dates.NullTime) string {
	if !n.Valid {
		return "-"
	}
	return n.Time.Format(dates.DayLayout)
}

// formatBytes formats a byte count with a binary unit suffix.
func formatBytes(bytes int64) string {
	if bytes <= 0 {
		return "-"
	}
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func init() {
	rootCmd.AddCommand(searchCmd)
	searchCmd.Flags().StringVar(&searchViewer, "viewer", "", "provider user id to search as (required)")
	searchCmd.Flags().StringVar(&searchAs, "as", visibility.Direct.String(), "relationship: direct, supervisor, alias, collaborator, admin")
	searchCmd.Flags().StringVar(&searchSort, "sort", "", "sort field (default: most recent activity)")
	searchCmd.Flags().BoolVar(&searchAsc, "asc", false, "sort ascending")
	searchCmd.Flags().BoolVar(&searchDesc, "desc", false, "sort descending")
	searchCmd.Flags().IntVar(&searchPage, "page", 1, "page number")
	searchCmd.Flags().IntVar(&searchPageSize, "page-size", 0, "rows per page (default: [search] default_page_size)")
	searchCmd.Flags().BoolVar(&searchJSON, "json", false, "output JSON (default when stdout is not a terminal)")
}
