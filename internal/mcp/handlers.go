package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/wesm/msgscope/internal/corpus"
	"github.com/wesm/msgscope/internal/query"
	"github.com/wesm/msgscope/internal/search"
	"github.com/wesm/msgscope/internal/visibility"
)

// toolHandler is the function signature for MCP tool handlers.
type toolHandler = func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)

type handlers struct {
	engine  query.Engine
	session Session
	parser  *search.Parser
}

func newHandlers(engine query.Engine, session Session) *handlers {
	return &handlers{engine: engine, session: session, parser: search.NewParser()}
}

// relationshipArg returns the requested relationship, defaulting to direct.
func (h *handlers) relationshipArg(args map[string]any) (visibility.Relationship, error) {
	as, _ := args["as"].(string)
	if as == "" {
		return visibility.Direct, nil
	}
	rel, err := visibility.ParseRelationship(as)
	if err != nil {
		return 0, err
	}
	if rel == visibility.Admin && !h.session.AllowAdmin {
		return 0, errors.New("admin searches are disabled for this session")
	}
	return rel, nil
}

// buildRequest turns tool arguments into a listing request for the session
// viewer.
func (h *handlers) buildRequest(args map[string]any) (query.Request, error) {
	rel, err := h.relationshipArg(args)
	if err != nil {
		return query.Request{}, err
	}

	sortStr, _ := args["sort"].(string)
	field, err := corpus.ParseSortField(sortStr)
	if err != nil {
		return query.Request{}, err
	}
	desc := field.DefaultDesc()
	if v, ok := args["descending"].(bool); ok {
		desc = v
	}

	req := query.Request{
		Schema:       h.session.Schema,
		Viewer:       h.session.Viewer,
		Relationship: rel,
		Sort:         query.Sort{Field: field, Desc: desc},
		Page:         intArg(args, "page", 1, math.MaxInt32),
		PageSize:     intArg(args, "page_size", query.DefaultPageSize, query.MaxPageSize),
	}
	if filter, _ := args["query"].(string); filter != "" {
		req.Filters = h.parser.Parse(filter).Filters()
	}
	return req, nil
}

// searchHandler adapts one listing to a tool handler.
func searchHandler[T any](h *handlers, run func(context.Context, query.Request) (*query.Page[T], error)) toolHandler {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		qr, err := h.buildRequest(req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		page, err := run(ctx, qr)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
		}
		return jsonResult(page)
	}
}

func (h *handlers) resolveVisibility(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rel, err := h.relationshipArg(req.GetArguments())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	report, err := h.engine.DescribeVisibility(ctx, h.session.Schema, h.session.Viewer, rel)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resolve visibility failed: %v", err)), nil
	}
	return jsonResult(report)
}

// intArg extracts a positive integer from a map, with a default. JSON
// numbers arrive as float64. Values below 1 take the default; values above
// max are clamped.
func intArg(args map[string]any, key string, def, max int) int {
	v, ok := args[key].(float64)
	if !ok || math.IsNaN(v) || v < 1 {
		return def
	}
	if math.IsInf(v, 1) || v > float64(max) {
		return max
	}
	return int(v)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("marshal error: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
