// Package dbtest provides shared database test helpers for seeding tenant
// schemas. It is importable from any test package without circular
// dependency issues (it does not import internal/query).
package dbtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/wesm/msgscope/internal/dates"
	"github.com/wesm/msgscope/internal/store"
	"github.com/wesm/msgscope/internal/tenant"
)

// StrPtr returns a pointer to a string (useful for optional fields in test opts).
func StrPtr(s string) *string { return &s }

// TestDB wraps an in-memory store with deterministic id generation and
// builder helpers for seeding test data.
type TestDB struct {
	Store  *store.Store
	DB     *sqlx.DB
	Schema tenant.Schema
	T      testing.TB

	nextID int
}

// NewTestDB creates an in-memory SQLite database with the tenant schema
// loaded into main.
func NewTestDB(t testing.TB) *TestDB {
	t.Helper()
	return NewTestDBWithSchema(t, tenant.Default)
}

// NewTestDBWithSchema is like NewTestDB but places the tenant tables in an
// attached schema.
func NewTestDBWithSchema(t testing.TB, schema tenant.Schema) *TestDB {
	t.Helper()

	st, err := store.Open(store.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	if err := st.InitSchema(context.Background(), schema); err != nil {
		t.Fatalf("init schema: %v", err)
	}

	return &TestDB{
		Store:  st,
		DB:     st.DB(),
		Schema: schema,
		T:      t,
		nextID: 100,
	}
}

// NewID returns the next deterministic id. Ids sort in creation order.
func (tdb *TestDB) NewID() uuid.UUID {
	tdb.nextID++
	return uuid.MustParse(fmt.Sprintf("00000000-0000-4000-8000-%012d", tdb.nextID))
}

func (tdb *TestDB) exec(op, query string, args ...any) {
	tdb.T.Helper()
	query = fmt.Sprintf(query, tdb.Schema.Table(tableOf(op)))
	if _, err := tdb.DB.Exec(tdb.DB.Rebind(query), args...); err != nil {
		tdb.T.Fatalf("%s: %v", op, err)
	}
}

var opTables = map[string]string{
	"AddProviderUser":    "provider_users",
	"DeleteProviderUser": "provider_users",
	"AddDomain":          "client_domains",
	"ExcludeDomain":      "excluded_domains",
	"AddContact":         "contacts",
	"AddThread":          "provider_user_threads",
	"AddMessage":         "thread_messages",
	"AddAttachment":      "message_parts",
	"AddAssociation":     "sender_receiver_associations",
	"AddSupervisor":      "supervisor_mappings",
	"AddCollaborator":    "collaborator_mappings",
	"AddAlias":           "alias_mappings",
	"SetOrgSettings":     "organization_settings",
}

func tableOf(op string) string {
	return opTables[op]
}

// Stamp formats t the way the store keeps timestamps on SQLite.
func Stamp(t time.Time) string {
	return dates.Bind(t)
}

func optStamp(t *time.Time) any {
	if t == nil {
		return nil
	}
	return Stamp(*t)
}

// ---------------------------------------------------------------------------
// Builder helpers
// ---------------------------------------------------------------------------

// ProviderUserOpts configures a provider user to insert.
type ProviderUserOpts struct {
	Email     string // required
	FirstName string
	LastName  string
	Deleted   bool
}

// AddProviderUser inserts a provider user and returns its id.
func (tdb *TestDB) AddProviderUser(opts ProviderUserOpts) uuid.UUID {
	tdb.T.Helper()
	if opts.Email == "" {
		tdb.T.Fatalf("AddProviderUser: Email is required")
	}
	id := tdb.NewID()
	tdb.exec("AddProviderUser",
		`INSERT INTO %s (id, email, first_name, last_name, is_deleted) VALUES (?, ?, ?, ?, ?)`,
		id, opts.Email, opts.FirstName, opts.LastName, opts.Deleted)
	return id
}

// DeleteProviderUser soft-deletes a provider user.
func (tdb *TestDB) DeleteProviderUser(id uuid.UUID) {
	tdb.T.Helper()
	tdb.exec("DeleteProviderUser", `UPDATE %s SET is_deleted = TRUE WHERE id = ?`, id)
}

// AddDomain inserts a client domain and returns its id.
func (tdb *TestDB) AddDomain(domain string) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddDomain", `INSERT INTO %s (id, domain) VALUES (?, ?)`, id, domain)
	return id
}

// ExcludeDomain marks a domain as internal to the tenant.
func (tdb *TestDB) ExcludeDomain(domain string) {
	tdb.T.Helper()
	tdb.exec("ExcludeDomain", `INSERT INTO %s (domain) VALUES (?)`, domain)
}

// ContactOpts configures a contact to insert.
type ContactOpts struct {
	DomainID  uuid.UUID // required
	Email     string    // required
	FirstName *string   // nil = NULL
	LastName  *string   // nil = NULL
}

// AddContact inserts a contact and returns its id.
func (tdb *TestDB) AddContact(opts ContactOpts) uuid.UUID {
	tdb.T.Helper()
	if opts.DomainID == uuid.Nil || opts.Email == "" {
		tdb.T.Fatalf("AddContact: DomainID and Email are required")
	}
	id := tdb.NewID()
	tdb.exec("AddContact",
		`INSERT INTO %s (id, client_domain_id, email, first_name, last_name) VALUES (?, ?, ?, ?, ?)`,
		id, opts.DomainID, opts.Email, opts.FirstName, opts.LastName)
	return id
}

// AddThread inserts a thread owned by owner and returns its id.
func (tdb *TestDB) AddThread(owner uuid.UUID, subject string) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddThread",
		`INSERT INTO %s (id, provider_user_id, original_thread_id, subject) VALUES (?, ?, ?, ?)`,
		id, owner, "thread-"+id.String(), subject)
	return id
}

// MessageOpts configures a message to insert.
type MessageOpts struct {
	ThreadID          uuid.UUID // required
	OriginalMessageID string    // defaults to a unique value
	SentAt            time.Time // required
	AttachmentCount   int
	Deleted           bool
}

// AddMessage inserts a thread message and returns its id.
func (tdb *TestDB) AddMessage(opts MessageOpts) uuid.UUID {
	tdb.T.Helper()
	if opts.ThreadID == uuid.Nil || opts.SentAt.IsZero() {
		tdb.T.Fatalf("AddMessage: ThreadID and SentAt are required")
	}
	id := tdb.NewID()
	if opts.OriginalMessageID == "" {
		opts.OriginalMessageID = "orig-" + id.String()
	}
	tdb.exec("AddMessage",
		`INSERT INTO %s (id, thread_id, original_message_id, sent_at, attachment_count, is_deleted) VALUES (?, ?, ?, ?, ?, ?)`,
		id, opts.ThreadID, opts.OriginalMessageID, Stamp(opts.SentAt), opts.AttachmentCount, opts.Deleted)
	return id
}

// AttachmentOpts configures an attachment part to insert.
type AttachmentOpts struct {
	MessageID uuid.UUID // required
	PartID    string    // defaults to "2"
	FileName  string
	MimeType  string // defaults to "application/octet-stream"
	Size      int64
}

// AddAttachment inserts an attachment part and returns its row id.
func (tdb *TestDB) AddAttachment(opts AttachmentOpts) uuid.UUID {
	tdb.T.Helper()
	if opts.MessageID == uuid.Nil {
		tdb.T.Fatalf("AddAttachment: MessageID is required")
	}
	if opts.PartID == "" {
		opts.PartID = "2"
	}
	if opts.MimeType == "" {
		opts.MimeType = "application/octet-stream"
	}
	id := tdb.NewID()
	tdb.exec("AddAttachment",
		`INSERT INTO %s (id, message_id, part_id, file_name, mime_type, size, is_attachment) VALUES (?, ?, ?, ?, ?, ?, TRUE)`,
		id, opts.MessageID, opts.PartID, opts.FileName, opts.MimeType, opts.Size)
	return id
}

// AddAssociation links a message to a contact under a header type
// ("from", "to", "cc" or "bcc").
func (tdb *TestDB) AddAssociation(messageID, contactID uuid.UUID, header string, sentAt time.Time) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddAssociation",
		`INSERT INTO %s (id, message_id, contact_id, header_type, sent_at) VALUES (?, ?, ?, ?, ?)`,
		id, messageID, contactID, header, Stamp(sentAt))
	return id
}

// ExchangeOpts configures a single message exchanged with a contact.
type ExchangeOpts struct {
	ThreadID          uuid.UUID // required
	ContactID         uuid.UUID // required
	SentAt            time.Time // required
	FromContact       bool      // contact sent the message (a client response)
	OriginalMessageID string
	Attachments       []string // file names; each becomes one attachment part
}

// AddExchange inserts a message, its association with the contact and any
// attachments, and returns the message id.
func (tdb *TestDB) AddExchange(opts ExchangeOpts) uuid.UUID {
	tdb.T.Helper()
	msg := tdb.AddMessage(MessageOpts{
		ThreadID:          opts.ThreadID,
		OriginalMessageID: opts.OriginalMessageID,
		SentAt:            opts.SentAt,
		AttachmentCount:   len(opts.Attachments),
	})
	header := "to"
	if opts.FromContact {
		header = "from"
	}
	tdb.AddAssociation(msg, opts.ContactID, header, opts.SentAt)
	for i, name := range opts.Attachments {
		tdb.AddAttachment(AttachmentOpts{
			MessageID: msg,
			PartID:    fmt.Sprintf("%d", i+2),
			FileName:  name,
			Size:      int64(1000 * (i + 1)),
		})
	}
	return msg
}

// AddSupervisor inserts a supervisor mapping and returns its id.
func (tdb *TestDB) AddSupervisor(supervisor, subordinate uuid.UUID) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddSupervisor",
		`INSERT INTO %s (id, supervisor_id, subordinate_id) VALUES (?, ?, ?)`,
		id, supervisor, subordinate)
	return id
}

// CollaboratorOpts configures a collaborator mapping to insert.
type CollaboratorOpts struct {
	OwnerID        uuid.UUID // required
	CollaboratorID uuid.UUID // required
	Custom         bool
	Start          *time.Time
	End            *time.Time
	Deleted        bool
}

// AddCollaborator inserts a collaborator mapping and returns its id.
func (tdb *TestDB) AddCollaborator(opts CollaboratorOpts) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddCollaborator",
		`INSERT INTO %s (id, owner_id, collaborator_id, is_custom_duration_set, start_date, end_date, is_deleted) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, opts.OwnerID, opts.CollaboratorID, opts.Custom, optStamp(opts.Start), optStamp(opts.End), opts.Deleted)
	return id
}

// AliasOpts configures an alias mapping to insert.
type AliasOpts struct {
	OwnerID         uuid.UUID // required
	AliasID         uuid.UUID // required
	Start           *time.Time
	End             *time.Time
	HistoricalStart *time.Time
	HistoricalEnd   *time.Time
	Deleted         bool
}

// AddAlias inserts an alias mapping and returns its id.
func (tdb *TestDB) AddAlias(opts AliasOpts) uuid.UUID {
	tdb.T.Helper()
	id := tdb.NewID()
	tdb.exec("AddAlias",
		`INSERT INTO %s (id, owner_id, alias_user_id, is_custom_duration_set, alias_start_date, alias_end_date,
			historical_email_access_start_date, historical_email_access_end_date, is_deleted)
		VALUES (?, ?, ?, TRUE, ?, ?, ?, ?, ?)`,
		id, opts.OwnerID, opts.AliasID, optStamp(opts.Start), optStamp(opts.End),
		optStamp(opts.HistoricalStart), optStamp(opts.HistoricalEnd), opts.Deleted)
	return id
}

// OrgSettingsOpts configures the tenant settings row.
type OrgSettingsOpts struct {
	WindowSet            bool
	Rolling              bool
	Start                *string // stored verbatim so tests can plant malformed values
	RangeInDays          *int
	CollabDefaultEnabled bool
	CollabDefaultDays    int
}

// SetOrgSettings replaces the tenant settings row.
func (tdb *TestDB) SetOrgSettings(opts OrgSettingsOpts) {
	tdb.T.Helper()
	tdb.exec("SetOrgSettings", `DELETE FROM %s`)
	tdb.exec("SetOrgSettings",
		`INSERT INTO %s (id, email_access_is_set, email_access_is_rolling, email_access_start_date,
			email_access_range_in_days, collaborator_default_enabled, collaborator_default_duration_days)
		VALUES (1, ?, ?, ?, ?, ?, ?)`,
		opts.WindowSet, opts.Rolling, opts.Start, opts.RangeInDays, opts.CollabDefaultEnabled, opts.CollabDefaultDays)
}

// Exec runs a raw statement with %s replaced by the qualified table name.
// Useful for planting rows the builders refuse to create.
func (tdb *TestDB) Exec(table, query string, args ...any) {
	tdb.T.Helper()
	query = fmt.Sprintf(query, tdb.Schema.Table(table))
	if _, err := tdb.DB.Exec(tdb.DB.Rebind(query), args...); err != nil {
		tdb.T.Fatalf("Exec(%s): %v", table, err)
	}
}
