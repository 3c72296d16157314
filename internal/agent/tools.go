package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/invopop/jsonschema"

	"github.com/mstolbov/askdb/internal/llm"
	"github.com/mstolbov/askdb/internal/store"
	"github.com/mstolbov/askdb/internal/ticket"
)

// Capability names the model may request.
const (
	ToolQueryDatabase = "query_database"
	ToolStatistics    = "get_database_statistics"
	ToolChart         = "generate_chart"
	ToolSupportTicket = "create_support_ticket"
)

// DefaultMaxRows is the truncation threshold for query payloads handed to
// the model.
const DefaultMaxRows = 100

// QueryStore is the relational-store collaborator the dispatcher needs.
type QueryStore interface {
	ExecuteQuery(ctx context.Context, query string) store.QueryResult
	Statistics(ctx context.Context) (store.Statistics, error)
}

// TicketCreator is the ticket collaborator. A nil or unconfigured creator
// makes the dispatcher synthesize placeholder tickets instead of failing.
type TicketCreator interface {
	IsConfigured() bool
	CreateIssue(ctx context.Context, title, body string, labels []string) (ticket.Issue, error)
}

// Envelope is the uniform result shape of every capability invocation.
// The conversation loop serializes it verbatim as tool-result content, so
// every field the model should see lives here.
type Envelope struct {
	Success    bool              `json:"success"`
	Message    string            `json:"message,omitempty"`
	Error      string            `json:"error,omitempty"`
	Data       []map[string]any  `json:"data,omitempty"`
	RowCount   int               `json:"row_count,omitempty"`
	Truncated  bool              `json:"truncated,omitempty"`
	Statistics *store.Statistics `json:"statistics,omitempty"`
	Ticket     *TicketRef        `json:"ticket,omitempty"`
	IsChart    bool              `json:"is_chart,omitempty"`
	Chart      *ChartConfig      `json:"chart_config,omitempty"`
}

// TicketRef identifies a created (or synthesized) support ticket.
type TicketRef struct {
	ID  string `json:"id"`
	URL string `json:"url,omitempty"`
}

// ChartConfig is the payload handed to a rendering collaborator.
type ChartConfig struct {
	Type   string           `json:"type"`
	Title  string           `json:"title"`
	XLabel string           `json:"x_label"`
	YLabel string           `json:"y_label"`
	Data   []map[string]any `json:"data"`
}

type handlerFunc func(ctx context.Context, args json.RawMessage) Envelope

// Dispatcher maps capability names to handlers and normalizes every result
// into an Envelope. Tool faults never escape as errors.
type Dispatcher struct {
	store    QueryStore
	tickets  TicketCreator
	maxRows  int
	handlers map[string]handlerFunc
}

// NewDispatcher creates a dispatcher over the given collaborators.
// maxRows <= 0 selects DefaultMaxRows.
func NewDispatcher(qs QueryStore, tc TicketCreator, maxRows int) *Dispatcher {
	if maxRows <= 0 {
		maxRows = DefaultMaxRows
	}
	d := &Dispatcher{store: qs, tickets: tc, maxRows: maxRows}
	d.handlers = map[string]handlerFunc{
		ToolQueryDatabase: d.handleQuery,
		ToolStatistics:    d.handleStatistics,
		ToolChart:         d.handleChart,
		ToolSupportTicket: d.handleTicket,
	}
	return d
}

// Invoke runs the named capability with JSON-encoded arguments.
func (d *Dispatcher) Invoke(ctx context.Context, name string, args string) Envelope {
	handler, ok := d.handlers[name]
	if !ok {
		return Envelope{Success: false, Error: fmt.Sprintf("unknown tool: %s", name)}
	}

	raw := json.RawMessage(args)
	if args == "" {
		raw = json.RawMessage("{}")
	}
	slog.Debug("invoking tool", "tool", name)
	return handler(ctx, raw)
}

// --- query ---

type queryArgs struct {
	SQLQuery string `json:"sql_query" jsonschema:"description=The SQL SELECT query to execute. Must be a valid SELECT statement. Example: SELECT AVG(sellingprice) FROM cars WHERE make = 'BMW'"`
}

func (d *Dispatcher) handleQuery(ctx context.Context, args json.RawMessage) Envelope {
	var qa queryArgs
	if err := json.Unmarshal(args, &qa); err != nil {
		return Envelope{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	result := d.store.ExecuteQuery(ctx, qa.SQLQuery)
	if !result.Success {
		return Envelope{Success: false, Error: result.Error}
	}

	if result.RowCount > d.maxRows {
		return Envelope{
			Success:   true,
			Message:   fmt.Sprintf("query returned %d rows (showing first %d)", result.RowCount, d.maxRows),
			Data:      result.Rows[:d.maxRows],
			RowCount:  result.RowCount,
			Truncated: true,
		}
	}
	return Envelope{
		Success:  true,
		Message:  fmt.Sprintf("query returned %d rows", result.RowCount),
		Data:     result.Rows,
		RowCount: result.RowCount,
	}
}

// --- statistics ---

type statisticsArgs struct{}

func (d *Dispatcher) handleStatistics(ctx context.Context, _ json.RawMessage) Envelope {
	stats, err := d.store.Statistics(ctx)
	if err != nil {
		slog.Warn("statistics aggregation failed", "error", err)
		return Envelope{Success: false, Error: "failed to retrieve statistics: " + err.Error()}
	}
	return Envelope{Success: true, Statistics: &stats}
}

// --- chart ---

type chartArgs struct {
	SQLQuery  string `json:"sql_query" jsonschema:"description=SQL SELECT query producing the chart data. The first result column becomes the X axis and the second the Y axis unless labels are given"`
	ChartType string `json:"chart_type,omitempty" jsonschema:"description=Type of chart to generate,enum=bar,enum=column,enum=line,enum=pie,enum=scatter"`
	Title     string `json:"title" jsonschema:"description=Title of the chart"`
	XLabel    string `json:"x_label,omitempty" jsonschema:"description=Result column to use for the X axis"`
	YLabel    string `json:"y_label,omitempty" jsonschema:"description=Result column to use for the Y axis"`
}

func (d *Dispatcher) handleChart(ctx context.Context, args json.RawMessage) Envelope {
	var ca chartArgs
	if err := json.Unmarshal(args, &ca); err != nil {
		return Envelope{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}

	result := d.store.ExecuteQuery(ctx, ca.SQLQuery)
	if !result.Success {
		return Envelope{Success: false, Error: result.Error}
	}
	if result.RowCount == 0 {
		return Envelope{Success: false, Error: "query returned no data for the chart"}
	}

	data := result.Rows
	if len(data) > d.maxRows {
		data = data[:d.maxRows]
	}

	// Explicit axis labels win when they name real result columns; otherwise
	// fall back to the first and second columns in select-list order, or the
	// single column for both axes.
	columns := result.Columns
	xAxis := ca.XLabel
	if !containsString(columns, xAxis) {
		xAxis = columns[0]
	}
	yAxis := ca.YLabel
	if !containsString(columns, yAxis) {
		if len(columns) > 1 {
			yAxis = columns[1]
		} else {
			yAxis = columns[0]
		}
	}

	chartType := ca.ChartType
	if chartType == "" {
		chartType = "bar"
	}

	return Envelope{
		Success: true,
		Message: fmt.Sprintf("generated %s chart: %s", chartType, ca.Title),
		IsChart: true,
		Chart: &ChartConfig{
			Type:   chartType,
			Title:  ca.Title,
			XLabel: xAxis,
			YLabel: yAxis,
			Data:   data,
		},
	}
}

// --- support ticket ---

type ticketArgs struct {
	Title       string `json:"title" jsonschema:"description=Brief title summarizing the support request"`
	Description string `json:"description" jsonschema:"description=Detailed description of the issue or question including conversation context"`
	Priority    string `json:"priority,omitempty" jsonschema:"description=Priority level of the support request,enum=low,enum=medium,enum=high,default=medium"`
}

func (d *Dispatcher) handleTicket(ctx context.Context, args json.RawMessage) Envelope {
	var ta ticketArgs
	if err := json.Unmarshal(args, &ta); err != nil {
		return Envelope{Success: false, Error: fmt.Sprintf("invalid arguments: %v", err)}
	}
	if ta.Priority == "" {
		ta.Priority = "medium"
	}

	if d.tickets == nil || !d.tickets.IsConfigured() {
		return placeholderTicket(ta.Title, "ticket system not configured")
	}

	labels := []string{"customer-support", "priority-" + ta.Priority}
	issue, err := d.tickets.CreateIssue(ctx, ta.Title, ta.Description, labels)
	if err != nil {
		// The conversation must not fail on an unreachable ticket system.
		slog.Warn("ticket creation failed, using placeholder", "error", err)
		return placeholderTicket(ta.Title, "ticket system unreachable")
	}

	return Envelope{
		Success: true,
		Message: fmt.Sprintf("support ticket created: #%d", issue.Number),
		Ticket:  &TicketRef{ID: fmt.Sprintf("#%d", issue.Number), URL: issue.URL},
	}
}

func placeholderTicket(title, why string) Envelope {
	id := "MOCK-" + uuid.New().String()[:8]
	return Envelope{
		Success: true,
		Message: fmt.Sprintf("support ticket %s recorded locally (%s): %s", id, why, title),
		Ticket:  &TicketRef{ID: id},
	}
}

// --- tool declarations ---

// Definitions returns the capability declarations sent to the model.
func Definitions() []llm.Tool {
	return []llm.Tool{
		toolDefinition(ToolQueryDatabase,
			"Execute a SQL SELECT query on the car prices database. Use this to retrieve specific data based on user questions. Only SELECT queries are allowed for safety.",
			queryArgs{}),
		toolDefinition(ToolStatistics,
			"Get comprehensive statistics about the car prices database: total records, price summary, top makes and models, condition distribution, and year range. Use this for general overviews.",
			statisticsArgs{}),
		toolDefinition(ToolChart,
			"Generate a chart from a SQL SELECT query. Use this when the user asks for a chart, visualization, or comparison that would look better as a graph.",
			chartArgs{}),
		toolDefinition(ToolSupportTicket,
			"Create a support ticket to reach a human for help. Use this when the user explicitly asks for human support or when you cannot answer adequately.",
			ticketArgs{}),
	}
}

func toolDefinition(name, description string, params any) llm.Tool {
	reflector := &jsonschema.Reflector{
		Anonymous:      true,
		DoNotReference: true,
		ExpandedStruct: true,
	}
	schema := reflector.Reflect(params)
	schema.Version = "" // drop $schema; the tools API wants a bare object schema

	raw, err := json.Marshal(schema)
	if err != nil {
		// Reflection over our own static structs cannot fail at runtime.
		panic(fmt.Sprintf("reflecting schema for %s: %v", name, err))
	}

	return llm.Tool{
		Type: "function",
		Function: llm.FunctionDefinition{
			Name:        name,
			Description: description,
			Parameters:  raw,
		},
	}
}

func containsString(list []string, s string) bool {
	if s == "" {
		return false
	}
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
