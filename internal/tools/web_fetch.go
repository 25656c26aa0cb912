package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	web "github.com/jjYBdx4IL/diskcache/internal/web"
)

// Retriever is the part of web.Fetcher the handler needs.
type Retriever interface {
	Retrieve(ctx context.Context, rawURL string) ([]byte, error)
}

// WebFetchHandler returns the MCP tool handler for the "web-fetch" tool.
func WebFetchHandler(fetcher Retriever) func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		if ctx.Err() != nil {
			return mcp.NewToolResultError(ctx.Err().Error()), nil
		}
		url, err := req.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		body, err := fetcher.Retrieve(ctx, url)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		ps, err := web.Summarize(url, body)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		return mcp.NewToolResultText(formatPageSummary(ps)), nil
	}
}

// formatPageSummary renders ps as markdown: heading, source, description,
// links and finally the body text.
func formatPageSummary(ps *web.PageSummary) string {
	var sb strings.Builder
	if ps.Title != "" {
		fmt.Fprintf(&sb, "# %s\n\n", ps.Title)
	}
	if ps.URL != "" {
		fmt.Fprintf(&sb, "Source: %s\n\n", ps.URL)
	}
	if ps.Description != "" {
		fmt.Fprintf(&sb, "%s\n\n", ps.Description)
	}
	if len(ps.Links) > 0 {
		sb.WriteString("## Links\n")
		for _, l := range ps.Links {
			fmt.Fprintf(&sb, "- %s\n", l)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString(ps.Text)
	return sb.String()
}
