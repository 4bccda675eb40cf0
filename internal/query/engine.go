package query

import (
	"context"

	"github.com/google/uuid"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// Engine answers visibility-scoped listing queries. The HTTP and MCP
// surfaces depend on this interface; SQLEngine is the only backend.
type Engine interface {
	// ResolveVisibility returns the viewer's scope for one relationship.
	ResolveVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*visibility.Scope, error)

	// DescribeVisibility returns the scope plus the org window summary and
	// the provider users it covers, for display.
	DescribeVisibility(ctx context.Context, schema tenant.Schema, viewer uuid.UUID, rel visibility.Relationship) (*VisibilityReport, error)

	SearchContacts(ctx context.Context, req Request) (*Page[corpus.ContactRow], error)
	SearchThreads(ctx context.Context, req Request) (*Page[corpus.ThreadRow], error)
	SearchAttachments(ctx context.Context, req Request) (*Page[corpus.AttachmentRow], error)
}
