package api

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/mstolbov/askdb/internal/agent"
	"github.com/mstolbov/askdb/internal/store"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store *store.Store
	Tools agent.Invoker
}

// NewMCPServer creates an MCP server exposing the askdb tools and resources.
// Tool semantics are identical to what the conversation loop dispatches; MCP
// clients get the same envelopes the model collaborator sees.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		"askdb",
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("askdb — read-only SQL access and analytics over a car auction dataset."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool(agent.ToolQueryDatabase,
			mcp.WithDescription("Run a read-only SELECT query against the cars database. Anything other than a plain SELECT is rejected."),
			mcp.WithString("sql_query", mcp.Description("SQL SELECT query to execute"), mcp.Required()),
		),
		mcpInvoke(deps.Tools, agent.ToolQueryDatabase),
	)

	s.AddTool(
		mcp.NewTool(agent.ToolStatistics,
			mcp.WithDescription("Get summary statistics for the cars dataset: record count, price aggregates, top makes and models, condition distribution, and year range."),
		),
		mcpInvoke(deps.Tools, agent.ToolStatistics),
	)

	s.AddTool(
		mcp.NewTool(agent.ToolChart,
			mcp.WithDescription("Run a SELECT query and return a chart configuration built from its result."),
			mcp.WithString("sql_query", mcp.Description("SQL SELECT query producing the chart data"), mcp.Required()),
			mcp.WithString("chart_type", mcp.Description("Chart type: bar, line, pie, or scatter")),
			mcp.WithString("title", mcp.Description("Chart title")),
			mcp.WithString("x_label", mcp.Description("Column to use for the X axis")),
			mcp.WithString("y_label", mcp.Description("Column to use for the Y axis")),
		),
		mcpInvoke(deps.Tools, agent.ToolChart),
	)

	s.AddTool(
		mcp.NewTool(agent.ToolSupportTicket,
			mcp.WithDescription("Create a support ticket for a question that needs human follow-up."),
			mcp.WithString("title", mcp.Description("Short ticket title"), mcp.Required()),
			mcp.WithString("description", mcp.Description("Full description of the user's question"), mcp.Required()),
		),
		mcpInvoke(deps.Tools, agent.ToolSupportTicket),
	)

	s.AddResource(
		mcp.NewResource(
			"db://schema",
			"Database Schema",
			mcp.WithResourceDescription("Columns and types of the cars table"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceSchema(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"db://exchanges/recent",
			"Recent Exchanges",
			mcp.WithResourceDescription("Last 10 recorded question/answer exchanges"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecentExchanges(deps),
	)

	return s
}

// mcpInvoke adapts a dispatcher tool to an MCP tool handler. The raw MCP
// arguments are re-marshaled so the dispatcher sees the same JSON the model
// collaborator would send.
func mcpInvoke(tools agent.Invoker, name string) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := json.Marshal(req.GetArguments())
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode arguments: %v", err)), nil
		}

		env := tools.Invoke(ctx, name, string(args))

		payload, err := json.Marshal(env)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to encode result: %v", err)), nil
		}
		if !env.Success {
			return mcpError(string(payload)), nil
		}
		return mcpText(string(payload)), nil
	}
}

func mcpResourceSchema(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		info, err := deps.Store.TableInfo()
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}

		b, err := json.Marshal(info)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal schema: %w", err)
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

func mcpResourceRecentExchanges(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		exchanges, err := deps.Store.RecentExchanges(10)
		if err != nil {
			return nil, fmt.Errorf("failed to list exchanges: %w", err)
		}

		type exchangeSummary struct {
			ID        string `json:"id"`
			CreatedAt string `json:"created_at"`
			Question  string `json:"question"`
			Answer    string `json:"answer"`
		}

		summaries := make([]exchangeSummary, len(exchanges))
		for i, e := range exchanges {
			summaries[i] = exchangeSummary{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Question:  e.Question,
				Answer:    e.Answer,
			}
		}

		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal exchanges: %w", err)
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
