package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/mattn/go-runewidth"
)

// maxColumnWidth caps a table column in terminal cells.
const maxColumnWidth = 40

// wantJSON reports whether output should be JSON: when asked for, or when
// stdout is not a terminal.
func wantJSON(forced bool, out *os.File) bool {
	if forced {
		return true
	}
	fd := out.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// table renders rows in aligned columns sized by terminal cell width, so
// full-width characters line up.
type table struct {
	headers []string
	rows    [][]string
}

func newTable(headers ...string) *table {
	return &table{headers: headers}
}

func (t *table) add(cells ...string) {
	t.rows = append(t.rows, cells)
}

func (t *table) render(w io.Writer) error {
	widths := make([]int, len(t.headers))
	cell := func(row []string, i int) string {
		if i < len(row) {
			return truncateCell(row[i], maxColumnWidth)
		}
		return ""
	}
	for i, h := range t.headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range t.rows {
		for i := range widths {
			if cw := runewidth.StringWidth(cell(row, i)); cw > widths[i] {
				widths[i] = cw
			}
		}
	}

	line := func(row []string) string {
		parts := make([]string, len(widths))
		for i, width := range widths {
			if i == len(widths)-1 {
				parts[i] = cell(row, i)
				continue
			}
			parts[i] = runewidth.FillRight(cell(row, i), width)
		}
		return strings.TrimRight(strings.Join(parts, "  "), " ")
	}

	if _, err := fmt.Fprintln(w, line(t.headers)); err != nil {
		return err
	}
	for _, row := range t.rows {
		if _, err := fmt.Fprintln(w, line(row)); err != nil {
			return err
		}
	}
	return nil
}

// truncateCell flattens control characters and truncates to maxWidth
// terminal cells.
func truncateCell(s string, maxWidth int) string {
	s = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", "", "\t", " ").Replace(s)
	if runewidth.StringWidth(s) <= maxWidth {
		return s
	}
	if maxWidth <= 3 {
		return runewidth.Truncate(s, maxWidth, "")
	}
	return runewidth.Truncate(s, maxWidth, "...")
}

// orDash renders an optional string.
func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}
