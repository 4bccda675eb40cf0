package corpus

import (
	sb "github.com/wesm/msgscope/internal/sqlbuild"
	"github.com/wesm/msgscope/internal/tenant"
)

const (
	clientNameExpr = `TRIM(COALESCE(c.first_name, '') || ' ' || COALESCE(c.last_name, ''))`

	messageCountExpr    = `COUNT(DISTINCT tm.id)`
	attachmentCountExpr = `COUNT(DISTINCT CASE WHEN tm.attachment_count > 0 THEN tm.id END)`
	replyCountExpr      = `COUNT(DISTINCT CASE WHEN sra.header_type = 'from' THEN tm.id END)`
	lastContactExpr     = `MAX(sra.sent_at)`
	lastDocumentExpr    = `MAX(CASE WHEN tm.attachment_count > 0 THEN sra.sent_at END)`
)

var primarySearch = []string{
	`COALESCE(c.email, '')`,
	`COALESCE(c.first_name, '') || ' ' || COALESCE(c.last_name, '')`,
	`COALESCE(c.first_name, '') || COALESCE(c.last_name, '')`,
	`d.domain`,
}

// associationJoins links an association row to its message, thread,
// contact and client domain, skipping soft-deleted rows.
func associationJoins(schema tenant.Schema) []sb.Join {
	return []sb.Join{
		{Table: schema.Table("thread_messages"), Alias: "tm", On: sb.And(
			sb.ColEq("tm.id", "sra.message_id"), sb.ColEq("tm.is_deleted", "FALSE"))},
		{Table: schema.Table("provider_user_threads"), Alias: "t", On: sb.And(
			sb.ColEq("t.id", "tm.thread_id"), sb.ColEq("t.is_deleted", "FALSE"))},
		{Table: schema.Table("contacts"), Alias: "c", On: sb.And(
			sb.ColEq("c.id", "sra.contact_id"), sb.ColEq("c.is_deleted", "FALSE"))},
		{Table: schema.Table("client_domains"), Alias: "d", On: sb.And(
			sb.ColEq("d.id", "c.client_domain_id"), sb.ColEq("d.is_deleted", "FALSE"))},
	}
}

var contactsDef = &Definition{
	Kind: Contacts,
	Base: func(schema tenant.Schema) sb.Select {
		return sb.Select{
			Columns: []sb.Column{
				{Expr: "c.id", Alias: "contact_id"},
				{Expr: "c.email", Alias: "email"},
				{Expr: "c.first_name", Alias: "first_name"},
				{Expr: "c.last_name", Alias: "last_name"},
				{Expr: clientNameExpr, Alias: "client_name"},
				{Expr: "d.id", Alias: "domain_id"},
				{Expr: "d.domain", Alias: "domain"},
				{Expr: messageCountExpr, Alias: "message_count"},
				{Expr: attachmentCountExpr, Alias: "attachment_count"},
				{Expr: replyCountExpr, Alias: "reply_count"},
				{Expr: lastContactExpr, Alias: "last_contact_at"},
				{Expr: lastDocumentExpr, Alias: "last_document_at"},
			},
			From:      schema.Table("sender_receiver_associations"),
			FromAlias: "sra",
			Joins:     associationJoins(schema),
			GroupBy:   []string{"c.id", "c.email", "c.first_name", "c.last_name", "d.id", "d.domain"},
		}
	},
	SubjectColumn:       "t.provider_user_id",
	DateColumn:          "sra.sent_at",
	DomainColumn:        "d.domain",
	DomainIDColumn:      "d.id",
	ContactIDColumn:     "c.id",
	PrimarySearch:       primarySearch,
	SecondarySearch:     []string{"d.domain"},
	AttachmentCountExpr: attachmentCountExpr,
	ReplyCountExpr:      replyCountExpr,
	LastContactExpr:     lastContactExpr,
	Aggregated:          true,
	Sorts: map[SortField]string{
		SortAttachmentCount: "attachment_count",
		SortLastUpdated:     "last_contact_at",
		SortClientName:      "client_name",
		SortRecentDocuments: "last_document_at",
		SortMessageCount:    "message_count",
		SortReplyCount:      "reply_count",
	},
	DefaultOrder: []sb.Order{{Expr: "last_contact_at", Desc: true}},
	KeyColumn:    "contact_id",
}

var threadsDef = &Definition{
	Kind: Threads,
	Base: func(schema tenant.Schema) sb.Select {
		return sb.Select{
			Columns: []sb.Column{
				{Expr: "t.id", Alias: "thread_id"},
				{Expr: "t.provider_user_id", Alias: "owner_id"},
				{Expr: "t.subject", Alias: "subject"},
				{Expr: messageCountExpr, Alias: "message_count"},
				{Expr: attachmentCountExpr, Alias: "attachment_count"},
				{Expr: replyCountExpr, Alias: "reply_count"},
				{Expr: lastContactExpr, Alias: "last_updated_at"},
				{Expr: lastDocumentExpr, Alias: "last_document_at"},
				{Expr: "MIN(c.email)", Alias: "client_email"},
				{Expr: "MIN(" + clientNameExpr + ")", Alias: "client_name"},
				{Expr: "MIN(d.domain)", Alias: "domain"},
			},
			From:      schema.Table("sender_receiver_associations"),
			FromAlias: "sra",
			Joins:     associationJoins(schema),
			GroupBy:   []string{"t.id", "t.provider_user_id", "t.subject"},
		}
	},
	SubjectColumn:       "t.provider_user_id",
	DateColumn:          "sra.sent_at",
	DomainColumn:        "d.domain",
	DomainIDColumn:      "d.id",
	ContactIDColumn:     "c.id",
	PrimarySearch:       primarySearch,
	SecondarySearch:     []string{"COALESCE(t.subject, '')"},
	AttachmentCountExpr: attachmentCountExpr,
	ReplyCountExpr:      replyCountExpr,
	LastContactExpr:     lastContactExpr,
	Aggregated:          true,
	Sorts: map[SortField]string{
		SortAttachmentCount: "attachment_count",
		SortLastUpdated:     "last_updated_at",
		SortClientName:      "client_name",
		SortRecentDocuments: "last_document_at",
		SortMessageCount:    "message_count",
		SortReplyCount:      "reply_count",
	},
	DefaultOrder: []sb.Order{{Expr: "last_updated_at", Desc: true}},
	KeyColumn:    "thread_id",
}

// Attachments are stored once per recipient mailbox; the dedup key keeps
// the most recent copy of each physical part.
var attachmentsDef = &Definition{
	Kind: Attachments,
	Base: func(schema tenant.Schema) sb.Select {
		return sb.Select{
			Columns: []sb.Column{
				{Expr: "mp.id", Alias: "part_row_id"},
				{Expr: "mp.part_id", Alias: "part_id"},
				{Expr: "tm.original_message_id", Alias: "original_message_id"},
				{Expr: "mp.file_name", Alias: "file_name"},
				{Expr: "mp.mime_type", Alias: "mime_type"},
				{Expr: "mp.size", Alias: "size"},
				{Expr: "tm.sent_at", Alias: "sent_at"},
				{Expr: "t.id", Alias: "thread_id"},
				{Expr: "t.provider_user_id", Alias: "owner_id"},
				{Expr: "t.subject", Alias: "subject"},
				{Expr: "c.email", Alias: "client_email"},
				{Expr: clientNameExpr, Alias: "client_name"},
				{Expr: "d.domain", Alias: "domain"},
			},
			From:      schema.Table("message_parts"),
			FromAlias: "mp",
			Joins: []sb.Join{
				{Table: schema.Table("thread_messages"), Alias: "tm", On: sb.And(
					sb.ColEq("tm.id", "mp.message_id"), sb.ColEq("tm.is_deleted", "FALSE"))},
				{Table: schema.Table("provider_user_threads"), Alias: "t", On: sb.And(
					sb.ColEq("t.id", "tm.thread_id"), sb.ColEq("t.is_deleted", "FALSE"))},
				{Table: schema.Table("sender_receiver_associations"), Alias: "sra", On: sb.ColEq("sra.message_id", "tm.id")},
				{Table: schema.Table("contacts"), Alias: "c", On: sb.And(
					sb.ColEq("c.id", "sra.contact_id"), sb.ColEq("c.is_deleted", "FALSE"))},
				{Table: schema.Table("client_domains"), Alias: "d", On: sb.And(
					sb.ColEq("d.id", "c.client_domain_id"), sb.ColEq("d.is_deleted", "FALSE"))},
			},
			Where: []sb.Pred{
				sb.ColEq("mp.is_attachment", "TRUE"),
				sb.ColEq("mp.is_deleted", "FALSE"),
			},
		}
	},
	SubjectColumn:   "t.provider_user_id",
	DateColumn:      "tm.sent_at",
	DomainColumn:    "d.domain",
	DomainIDColumn:  "d.id",
	ContactIDColumn: "c.id",
	PrimarySearch:   primarySearch,
	SecondarySearch: []string{"COALESCE(mp.file_name, '')"},
	LastContactExpr: "tm.sent_at",
	Dedup: &sb.Dedup{
		Partition: []string{"tm.original_message_id", "mp.part_id"},
		Latest: []sb.Order{
			{Expr: "tm.sent_at", Desc: true},
			{Expr: "mp.id", Desc: true},
			{Expr: "sra.id", Desc: true},
		},
	},
	Sorts: map[SortField]string{
		SortLastUpdated:     "sent_at",
		SortRecentDocuments: "sent_at",
		SortClientName:      "client_name",
		SortFileName:        "file_name",
	},
	DefaultOrder: []sb.Order{{Expr: "sent_at", Desc: true}},
	KeyColumn:    "part_row_id",
}
