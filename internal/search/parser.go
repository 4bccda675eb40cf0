// Package search parses the compact filter language used by the CLI and
// MCP surfaces into listing filters.
package search

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/pipeline"
)

// Query represents a parsed filter string.
type Query struct {
	Terms          []string    // bare words and "quoted phrases"
	SecondaryTerms []string    // in:, subject:, file:
	HasAttachment  *bool       // has:attachment / no:attachment
	HasReply       *bool       // has:reply / no:reply
	After          *time.Time  // after:, newer_than: (inclusive day)
	Before         *time.Time  // before:, older_than: (exclusive day)
	ContactIDs     []uuid.UUID // contact:
	DomainIDs      []uuid.UUID // domain:
}

// IsEmpty returns true if the query has no criteria.
func (q *Query) IsEmpty() bool {
	return len(q.Terms) == 0 &&
		len(q.SecondaryTerms) == 0 &&
		q.HasAttachment == nil &&
		q.HasReply == nil &&
		q.After == nil &&
		q.Before == nil &&
		len(q.ContactIDs) == 0 &&
		len(q.DomainIDs) == 0
}

// Filters converts the query into pipeline filters. Terms are joined with
// spaces into one substring match; before: is exclusive, so the last
// included day is the one before it.
func (q *Query) Filters() pipeline.Filters {
	f := pipeline.Filters{
		Search:             strings.Join(q.Terms, " "),
		SecondarySearch:    strings.Join(q.SecondaryTerms, " "),
		HasAttachments:     q.HasAttachment,
		HasClientResponses: q.HasReply,
		ContactIDs:         q.ContactIDs,
		DomainIDs:          q.DomainIDs,
		LastContactFrom:    q.After,
	}
	if q.Before != nil {
		to := dates.AddDays(*q.Before, -1)
		f.LastContactTo = &to
	}
	return f
}

// operatorFn handles a parsed operator:value pair by applying it to the query.
type operatorFn func(q *Query, value string, now time.Time)

func secondary(q *Query, v string, _ time.Time) {
	if v = strings.TrimSpace(v); v != "" {
		q.SecondaryTerms = append(q.SecondaryTerms, v)
	}
}

func presence(want bool) operatorFn {
	return func(q *Query, v string, _ time.Time) {
		b := want
		switch strings.ToLower(v) {
		case "attachment", "attachments":
			q.HasAttachment = &b
		case "reply", "replies", "response", "responses":
			q.HasReply = &b
		}
	}
}

func idList(field func(q *Query) *[]uuid.UUID) operatorFn {
	return func(q *Query, v string, _ time.Time) {
		for _, part := range strings.Split(v, ",") {
			if id, err := uuid.Parse(strings.TrimSpace(part)); err == nil {
				ids := field(q)
				*ids = append(*ids, id)
			}
		}
	}
}

// operators maps operator names to their handler functions.
var operators = map[string]operatorFn{
	"in":      secondary,
	"subject": secondary,
	"file":    secondary,
	"has":     presence(true),
	"no":      presence(false),
	"before": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.Before = t
		}
	},
	"after": func(q *Query, v string, _ time.Time) {
		if t := parseDate(v); t != nil {
			q.After = t
		}
	},
	"older_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.Before = t
		}
	},
	"newer_than": func(q *Query, v string, now time.Time) {
		if t := parseRelativeDate(v, now); t != nil {
			q.After = t
		}
	},
	"contact": idList(func(q *Query) *[]uuid.UUID { return &q.ContactIDs }),
	"domain":  idList(func(q *Query) *[]uuid.UUID { return &q.DomainIDs }),
}

// Parser holds configuration for query parsing.
type Parser struct {
	Now func() time.Time // Time source (mockable for testing)
}

// NewParser creates a Parser with default settings.
func NewParser() *Parser {
	return &Parser{Now: func() time.Time { return time.Now().UTC() }}
}

// Parse parses a filter string into a Query.
//
// Supported operators:
//   - in:, subject:, file: - secondary text (thread subject, file name)
//   - has:attachment, no:attachment, has:reply, no:reply - presence filters
//   - before:, after: - last-contact date filters (YYYY-MM-DD)
//   - older_than:, newer_than: - relative date filters (e.g., 7d, 2w, 1m, 1y)
//   - contact:, domain: - id filters (repeatable, comma-separated)
//   - Bare words and "quoted phrases" - contact name, email and domain
//
// Unknown operators are kept as text; operator values that don't parse are
// ignored.
func (p *Parser) Parse(queryStr string) *Query {
	q := &Query{}
	now := time.Now().UTC()
	if p.Now != nil {
		now = p.Now()
	}

	for _, token := range tokenize(queryStr) {
		if isQuotedPhrase(token) {
			q.Terms = append(q.Terms, unquote(token))
			continue
		}

		if idx := strings.Index(token, ":"); idx > 0 {
			op := strings.ToLower(token[:idx])
			if handler, ok := operators[op]; ok {
				handler(q, unquote(token[idx+1:]), now)
				continue
			}
		}

		q.Terms = append(q.Terms, token)
	}

	return q
}

// Parse is a convenience function that parses using default settings.
func Parse(queryStr string) *Query {
	return NewParser().Parse(queryStr)
}

// unquote removes surrounding double quotes from a string if present.
func unquote(s string) string {
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		return s[1 : len(s)-1]
	}
	return s
}

// isQuotedPhrase returns true if the token is a double-quoted phrase.
func isQuotedPhrase(token string) bool {
	return len(token) > 2 && token[0] == '"' && token[len(token)-1] == '"'
}

// tokenize splits a query string on spaces, keeping "quoted phrases" and
// op:"quoted values" together.
func tokenize(queryStr string) []string {
	var tokens []string
	var current strings.Builder
	inQuotes := false
	quoteChar := rune(0)
	afterColon := false
	// The quoted section began right after a colon (op:"value").
	opQuoted := false

	flush := func() {
		if current.Len() > 0 {
			tokens = append(tokens, current.String())
			current.Reset()
		}
	}

	for _, char := range queryStr {
		switch {
		case (char == '"' || char == '\'') && !inQuotes:
			inQuotes = true
			quoteChar = char
			opQuoted = afterColon
			if afterColon {
				current.WriteRune('"')
			} else {
				flush()
			}
			afterColon = false
		case char == quoteChar && inQuotes:
			inQuotes = false
			if opQuoted {
				current.WriteRune('"')
				flush()
			} else if current.Len() > 0 {
				tokens = append(tokens, "\""+current.String()+"\"")
				current.Reset()
			}
			quoteChar = 0
			opQuoted = false
		case (char == ' ' || char == '\t') && !inQuotes:
			flush()
			afterColon = false
		default:
			current.WriteRune(char)
			afterColon = char == ':'
		}
	}
	flush()

	return tokens
}

// parseDate parses date strings like YYYY-MM-DD or YYYY/MM/DD.
func parseDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	for _, format := range []string{"2006-01-02", "2006/01/02"} {
		if t, err := time.Parse(format, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

var relativeDateRe = regexp.MustCompile(`^(\d+)([dwmy])$`)

// parseRelativeDate parses relative dates like 7d, 2w, 1m, 1y and returns
// the day that far before now.
func parseRelativeDate(value string, now time.Time) *time.Time {
	match := relativeDateRe.FindStringSubmatch(strings.TrimSpace(strings.ToLower(value)))
	if match == nil {
		return nil
	}
	amount, err := strconv.Atoi(match[1])
	if err != nil {
		return nil
	}

	day := dates.Day(now)
	var result time.Time
	switch match[2] {
	case "d":
		result = day.AddDate(0, 0, -amount)
	case "w":
		result = day.AddDate(0, 0, -amount*7)
	case "m":
		result = day.AddDate(0, -amount, 0)
	case "y":
		result = day.AddDate(-amount, 0, 0)
	}
	return &result
}
