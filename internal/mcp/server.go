// Package mcp exposes the visibility-scoped listings as MCP tools over
// stdio.
package mcp

import (
	"context"
	"os"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/tenant"
	"github.com/wesm/msgscope/internal/visibility"
)

// Tool name constants.
const (
	ToolSearchContacts    = "search_contacts"
	ToolSearchThreads     = "search_threads"
	ToolSearchAttachments = "search_attachments"
	ToolResolveVisibility = "resolve_visibility"
)

// Session is the identity every tool call runs as. The stdio transport has
// no per-call authentication, so it is fixed when the server starts.
type Session struct {
	Schema     tenant.Schema
	Viewer     uuid.UUID
	AllowAdmin bool
}

// Common argument helpers for recurring tool option definitions.

func withRelationship() mcp.ToolOption {
	names := make([]string, 0, len(visibility.Relationships()))
	for _, r := range visibility.Relationships() {
		names = append(names, r.String())
	}
	return mcp.WithString("as",
		mcp.Description("Relationship context to search in (default direct)"),
		mcp.Enum(names...),
	)
}

func withPage() mcp.ToolOption {
	return mcp.WithNumber("page",
		mcp.Description("1-based page number (default 1)"),
	)
}

func withPageSize() mcp.ToolOption {
	return mcp.WithNumber("page_size",
		mcp.Description("Rows per page (default 25, max 500)"),
	)
}

func withSort(kind corpus.Kind) mcp.ToolOption {
	def, _ := corpus.Lookup(kind)
	fields := make([]string, 0, len(def.Sorts))
	for _, f := range def.SupportedSorts() {
		fields = append(fields, string(f))
	}
	return mcp.WithString("sort",
		mcp.Description("Sort field; the default order is most recent activity first"),
		mcp.Enum(fields...),
	)
}

func withDescending() mcp.ToolOption {
	return mcp.WithBoolean("descending",
		mcp.Description("Sort descending (default true for counts and dates, false for names)"),
	)
}

func withFilter() mcp.ToolOption {
	return mcp.WithString("query",
		mcp.Description("Filter expression: free text plus subject:, file:, has:attachment, no:reply, after:, before:, newer_than:, older_than:, contact:, domain:"),
	)
}

// NewServer builds the MCP server with every listing tool registered.
func NewServer(engine query.Engine, session Session) *server.MCPServer {
	s := server.NewMCPServer(
		"msgscope",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	h := newHandlers(engine, session)

	s.AddTool(searchContactsTool(), searchHandler(h, engine.SearchContacts))
	s.AddTool(searchThreadsTool(), searchHandler(h, engine.SearchThreads))
	s.AddTool(searchAttachmentsTool(), searchHandler(h, engine.SearchAttachments))
	s.AddTool(resolveVisibilityTool(), h.resolveVisibility)
	return s
}

// Serve runs the MCP server over stdio.
// It blocks until stdin is closed or the context is cancelled.
func Serve(ctx context.Context, engine query.Engine, session Session) error {
	stdio := server.NewStdioServer(NewServer(engine, session))
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

func searchContactsTool() mcp.Tool {
	return mcp.NewTool(ToolSearchContacts,
		mcp.WithDescription("List external contacts the viewer may see, with message, attachment and reply counts over visible messages."),
		mcp.WithReadOnlyHintAnnotation(true),
		withFilter(),
		withRelationship(),
		withSort(corpus.Contacts),
		withDescending(),
		withPage(),
		withPageSize(),
	)
}

func searchThreadsTool() mcp.Tool {
	return mcp.NewTool(ToolSearchThreads,
		mcp.WithDescription("List threads in the mailboxes the viewer may see. Threads stay attributed to their owning mailbox."),
		mcp.WithReadOnlyHintAnnotation(true),
		withFilter(),
		withRelationship(),
		withSort(corpus.Threads),
		withDescending(),
		withPage(),
		withPageSize(),
	)
}

func searchAttachmentsTool() mcp.Tool {
	return mcp.NewTool(ToolSearchAttachments,
		mcp.WithDescription("List attachments the viewer may see, keeping only the latest copy of each file."),
		mcp.WithReadOnlyHintAnnotation(true),
		withFilter(),
		withRelationship(),
		withSort(corpus.Attachments),
		withDescending(),
		withPage(),
		withPageSize(),
	)
}

func resolveVisibilityTool() mcp.Tool {
	return mcp.NewTool(ToolResolveVisibility,
		mcp.WithDescription("Explain which mailboxes and date windows the viewer may see in a relationship context."),
		mcp.WithReadOnlyHintAnnotation(true),
		withRelationship(),
	)
}
