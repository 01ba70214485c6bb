package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/reuse/internal/inventory"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Items    ItemStore
	Searcher Searcher
	Version  string
}

// NewMCPServer creates an MCP server exposing the inventory to assistants.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"reuse",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("reuse: inventory of donated items at a community reuse center. Search it in plain language or browse by category."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("search_inventory",
			mcp.WithDescription("Find donated items that fit a plain-language request. Returns matches with a reason, best match first."),
			mcp.WithString("query", mcp.Description("What the visitor is looking for"), mcp.Required()),
			mcp.WithString("category", mcp.Description("Optional exact category to search within")),
		),
		mcpSearchInventory(deps),
	)

	s.AddTool(
		mcp.NewTool("get_item",
			mcp.WithDescription("Fetch one inventory item by id."),
			mcp.WithString("id", mcp.Description("Item id"), mcp.Required()),
		),
		mcpGetItem(deps),
	)

	s.AddTool(
		mcp.NewTool("list_items",
			mcp.WithDescription("List inventory items, optionally limited to one category."),
			mcp.WithString("category", mcp.Description("Optional exact category")),
			mcp.WithNumber("limit", mcp.Description("Maximum number of items (default 50)")),
		),
		mcpListItems(deps),
	)

	s.AddTool(
		mcp.NewTool("list_categories",
			mcp.WithDescription("List the distinct item categories in the inventory."),
		),
		mcpListCategories(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"inventory://categories",
			"Inventory Categories",
			mcp.WithResourceDescription("Distinct item categories as a JSON array"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceCategories(deps),
	)

	return s
}

func mcpSearchInventory(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}
		category := req.GetString("category", "")

		matches, err := deps.Searcher.SearchInventory(ctx, deps.Items, query, category)
		if err != nil {
			if reason, ok := protocolReason(err); ok {
				return mcpError(fmt.Sprintf("search failed (%s): %v", reason, err)), nil
			}
			return mcpError(fmt.Sprintf("search failed: %v", err)), nil
		}
		if matches == nil {
			matches = []inventory.Match{}
		}
		return mcpJSON(matches)
	}
}

func mcpGetItem(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		id, err := req.RequireString("id")
		if err != nil {
			return mcpError("id is required"), nil
		}
		it, err := deps.Items.Get(id)
		if errors.Is(err, inventory.ErrNotFound) {
			return mcpError(fmt.Sprintf("no item with id %s", id)), nil
		}
		if err != nil {
			return mcpError(fmt.Sprintf("get item failed: %v", err)), nil
		}
		return mcpJSON(it)
	}
}

func mcpListItems(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		limit := req.GetInt("limit", 50)
		if limit <= 0 {
			limit = 50
		}
		if limit > 500 {
			limit = 500
		}

		var items []inventory.Item
		if c := req.GetString("category", ""); c != "" {
			items = deps.Items.ByCategory(c)
		} else {
			items = deps.Items.All()
		}
		if len(items) > limit {
			items = items[:limit]
		}
		if items == nil {
			items = []inventory.Item{}
		}
		return mcpJSON(items)
	}
}

func mcpListCategories(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		cats := deps.Items.Categories()
		if cats == nil {
			cats = []string{}
		}
		return mcpJSON(cats)
	}
}

func mcpResourceCategories(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		cats := deps.Items.Categories()
		if cats == nil {
			cats = []string{}
		}
		b, err := marshalJSON(cats)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal categories: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := marshalJSON(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

// marshalJSON encodes v without HTML escaping so category paths keep their '>'.
func marshalJSON(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
