// Package corpus describes the searchable listings (contacts, threads and
// attachments) as base queries plus the columns each filter and sort needs.
package corpus

import (
	"fmt"
	"sort"
	"strings"

	"github.com/wesm/msgscope/internal/sqlbuild"
	"github.com/wesm/msgscope/internal/tenant"
)

// Kind identifies a listing.
type Kind string

const (
	Contacts    Kind = "contacts"
	Threads     Kind = "threads"
	Attachments Kind = "attachments"
)

// ParseKind validates a listing name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := registry[k]; !ok {
		return "", fmt.Errorf("unknown corpus kind %q", s)
	}
	return k, nil
}

// SortField is a caller-facing sort key. Each kind maps the fields it
// supports to one of its output columns.
type SortField string

const (
	SortAttachmentCount SortField = "attachment_count"
	SortLastUpdated     SortField = "last_updated"
	SortClientName      SortField = "client_name"
	SortRecentDocuments SortField = "recent_documents"
	SortFileName        SortField = "file_name"
	SortMessageCount    SortField = "message_count"
	SortReplyCount      SortField = "reply_count"
)

// DefaultDesc reports the natural direction for f: names sort ascending,
// counts and dates newest or largest first.
func (f SortField) DefaultDesc() bool {
	switch f {
	case SortClientName, SortFileName:
		return false
	}
	return true
}

// SortFields lists every sort key.
func SortFields() []SortField {
	return []SortField{
		SortAttachmentCount, SortLastUpdated, SortClientName, SortRecentDocuments,
		SortFileName, SortMessageCount, SortReplyCount,
	}
}

// ParseSortField validates a sort key. The empty string is allowed and
// means the kind's default order.
func ParseSortField(s string) (SortField, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "", nil
	}
	for _, f := range SortFields() {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// Definition is everything the filter pipeline and the engine need to know
// about one listing. All expressions are code-defined.
type Definition struct {
	Kind Kind

	// Base returns the unfiltered listing query for a tenant.
	Base func(schema tenant.Schema) sqlbuild.Select

	SubjectColumn   string
	DateColumn      string
	DomainColumn    string
	DomainIDColumn  string
	ContactIDColumn string

	PrimarySearch   []string
	SecondarySearch []string

	// Empty when the kind cannot filter on it.
	AttachmentCountExpr string
	ReplyCountExpr      string
	LastContactExpr     string

	// Aggregated listings filter on aggregate expressions in HAVING.
	Aggregated bool

	Dedup *sqlbuild.Dedup

	Sorts        map[SortField]string
	DefaultOrder []sqlbuild.Order
	KeyColumn    string
}

// SortColumn returns the output column for f, if the kind supports it.
func (d *Definition) SortColumn(f SortField) (string, bool) {
	col, ok := d.Sorts[f]
	return col, ok
}

// SupportedSorts lists the sort keys the kind understands, sorted.
func (d *Definition) SupportedSorts() []SortField {
	out := make([]SortField, 0, len(d.Sorts))
	for f := range d.Sorts {
		out = append(out, f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

var registry = map[Kind]*Definition{
	Contacts:    contactsDef,
	Threads:     threadsDef,
	Attachments: attachmentsDef,
}

// Lookup returns the definition for k.
func Lookup(k Kind) (*Definition, bool) {
	d, ok := registry[k]
	return d, ok
}

// Kinds lists the listings in a stable order.
func Kinds() []Kind {
	return []Kind{Contacts, Threads, Attachments}
}
