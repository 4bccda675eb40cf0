package corpus

import (
	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/dates"
)

// ContactRow is one external contact with activity counts over the
// visible messages.
type ContactRow struct {
	ContactID       uuid.UUID      `db:"contact_id" json:"contact_id"`
	Email           string         `db:"email" json:"email"`
	FirstName       *string        `db:"first_name" json:"first_name"`
	LastName        *string        `db:"last_name" json:"last_name"`
	ClientName      string         `db:"client_name" json:"client_name"`
	DomainID        uuid.UUID      `db:"domain_id" json:"domain_id"`
	Domain          string         `db:"domain" json:"domain"`
	MessageCount    int64          `db:"message_count" json:"message_count"`
	AttachmentCount int64          `db:"attachment_count" json:"attachment_count"`
	ReplyCount      int64          `db:"reply_count" json:"reply_count"`
	LastContactAt   dates.NullTime `db:"last_contact_at" json:"last_contact_at"`
	LastDocumentAt  dates.NullTime `db:"last_document_at" json:"last_document_at"`
}

// ThreadRow is one provider user's thread. Threads are attributed to their
// owning mailbox and never merged across owners.
type ThreadRow struct {
	ThreadID        uuid.UUID      `db:"thread_id" json:"thread_id"`
	OwnerID         uuid.UUID      `db:"owner_id" json:"owner_id"`
	Subject         *string        `db:"subject" json:"subject"`
	MessageCount    int64          `db:"message_count" json:"message_count"`
	AttachmentCount int64          `db:"attachment_count" json:"attachment_count"`
	ReplyCount      int64          `db:"reply_count" json:"reply_count"`
	LastUpdatedAt   dates.NullTime `db:"last_updated_at" json:"last_updated_at"`
	LastDocumentAt  dates.NullTime `db:"last_document_at" json:"last_document_at"`
	ClientEmail     string         `db:"client_email" json:"client_email"`
	ClientName      string         `db:"client_name" json:"client_name"`
	Domain          string         `db:"domain" json:"domain"`
}

// AttachmentRow is the latest copy of one physical attachment.
type AttachmentRow struct {
	PartRowID         uuid.UUID      `db:"part_row_id" json:"id"`
	PartID            string         `db:"part_id" json:"part_id"`
	OriginalMessageID string         `db:"original_message_id" json:"original_message_id"`
	FileName          *string        `db:"file_name" json:"file_name"`
	MimeType          *string        `db:"mime_type" json:"mime_type"`
	Size              int64          `db:"size" json:"size"`
	SentAt            dates.NullTime `db:"sent_at" json:"sent_at"`
	ThreadID          uuid.UUID      `db:"thread_id" json:"thread_id"`
	OwnerID           uuid.UUID      `db:"owner_id" json:"owner_id"`
	Subject           *string        `db:"subject" json:"subject"`
	ClientEmail       string         `db:"client_email" json:"client_email"`
	ClientName        string         `db:"client_name" json:"client_name"`
	Domain            string         `db:"domain" json:"domain"`
}

// ProviderUser is a mailbox owner, used to label visibility grants.
type ProviderUser struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Email     string    `db:"email" json:"email"`
	FirstName *string   `db:"first_name" json:"first_name"`
	LastName  *string   `db:"last_name" json:"last_name"`
	IsDeleted bool      `db:"is_deleted" json:"is_deleted"`
}
