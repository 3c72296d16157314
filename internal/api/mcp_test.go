package api

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mstolbov/askdb/internal/agent"
)

type fakeInvoker struct {
	name string
	args string
	env  agent.Envelope
}

func (f *fakeInvoker) Invoke(ctx context.Context, name string, args string) agent.Envelope {
	f.name = name
	f.args = args
	return f.env
}

func callToolRequest(args map[string]any) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

func TestMCPInvoke_ForwardsArgumentsAndReturnsEnvelope(t *testing.T) {
	inv := &fakeInvoker{env: agent.Envelope{Success: true, RowCount: 2}}
	handler := mcpInvoke(inv, agent.ToolQueryDatabase)

	res, err := handler(context.Background(), callToolRequest(map[string]any{
		"sql_query": "SELECT make FROM cars",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if res.IsError {
		t.Fatalf("result marked as error: %+v", res)
	}

	if inv.name != agent.ToolQueryDatabase {
		t.Errorf("invoked tool = %q", inv.name)
	}
	var got map[string]any
	if err := json.Unmarshal([]byte(inv.args), &got); err != nil {
		t.Fatalf("forwarded args not JSON: %v", err)
	}
	if got["sql_query"] != "SELECT make FROM cars" {
		t.Errorf("forwarded args = %v", got)
	}

	text := res.Content[0].(mcp.TextContent).Text
	var env agent.Envelope
	if err := json.Unmarshal([]byte(text), &env); err != nil {
		t.Fatalf("result text not an envelope: %v", err)
	}
	if !env.Success || env.RowCount != 2 {
		t.Errorf("envelope = %+v", env)
	}
}

func TestMCPInvoke_FailureEnvelopeIsError(t *testing.T) {
	inv := &fakeInvoker{env: agent.Envelope{Success: false, Error: "only SELECT queries are allowed"}}
	handler := mcpInvoke(inv, agent.ToolQueryDatabase)

	res, err := handler(context.Background(), callToolRequest(map[string]any{
		"sql_query": "DROP TABLE cars",
	}))
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if !res.IsError {
		t.Fatal("failed envelope not marked as error")
	}
	text := res.Content[0].(mcp.TextContent).Text
	if !strings.Contains(text, "only SELECT queries are allowed") {
		t.Errorf("error text = %q", text)
	}
}

func TestMCPResourceSchema(t *testing.T) {
	s := newTestStore(t)
	handler := mcpResourceSchema(MCPDeps{Store: s})

	req := mcp.ReadResourceRequest{}
	req.Params.URI = "db://schema"
	contents, err := handler(context.Background(), req)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("got %d contents", len(contents))
	}
	text := contents[0].(mcp.TextResourceContents).Text
	if !strings.Contains(text, `"cars"`) || !strings.Contains(text, "sellingprice") {
		t.Errorf("schema resource = %s", text)
	}
}

func TestMCPServerRegistersTools(t *testing.T) {
	s := newTestStore(t)
	srv := NewMCPServer(MCPDeps{Store: s, Tools: &fakeInvoker{}})
	if srv == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}
