package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/mstolbov/askdb/internal/store"
	"github.com/mstolbov/askdb/internal/ticket"
)

// --- mocks ---

type mockStore struct {
	executeFn func(ctx context.Context, query string) store.QueryResult
	statsFn   func(ctx context.Context) (store.Statistics, error)
	executed  []string
}

func (m *mockStore) ExecuteQuery(ctx context.Context, query string) store.QueryResult {
	m.executed = append(m.executed, query)
	if m.executeFn != nil {
		return m.executeFn(ctx, query)
	}
	return store.QueryResult{Success: true}
}

func (m *mockStore) Statistics(ctx context.Context) (store.Statistics, error) {
	if m.statsFn != nil {
		return m.statsFn(ctx)
	}
	return store.Statistics{}, nil
}

type mockTickets struct {
	configured bool
	createFn   func(ctx context.Context, title, body string, labels []string) (ticket.Issue, error)
	created    int
}

func (m *mockTickets) IsConfigured() bool { return m.configured }

func (m *mockTickets) CreateIssue(ctx context.Context, title, body string, labels []string) (ticket.Issue, error) {
	m.created++
	if m.createFn != nil {
		return m.createFn(ctx, title, body, labels)
	}
	return ticket.Issue{Number: 1}, nil
}

func resultWithRows(n int) store.QueryResult {
	rows := make([]map[string]any, n)
	for i := range rows {
		rows[i] = map[string]any{"make": fmt.Sprintf("make-%d", i), "count": i}
	}
	return store.QueryResult{
		Success:  true,
		Columns:  []string{"make", "count"},
		Rows:     rows,
		RowCount: n,
	}
}

// --- tests ---

func TestInvoke_UnknownTool(t *testing.T) {
	d := NewDispatcher(&mockStore{}, nil, 0)
	env := d.Invoke(context.Background(), "explode_database", "{}")
	if env.Success {
		t.Fatal("unknown tool reported success")
	}
	if !strings.Contains(env.Error, "unknown tool") {
		t.Errorf("error = %q, want unknown tool", env.Error)
	}
}

func TestInvoke_QueryTruncation(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return resultWithRows(150)
	}}
	d := NewDispatcher(ms, nil, 100)

	env := d.Invoke(context.Background(), ToolQueryDatabase, `{"sql_query":"SELECT make, count FROM cars"}`)
	if !env.Success {
		t.Fatalf("query failed: %s", env.Error)
	}
	if len(env.Data) != 100 {
		t.Errorf("payload length = %d, want 100", len(env.Data))
	}
	if !env.Truncated {
		t.Error("truncated flag not set")
	}
	if env.RowCount != 150 {
		t.Errorf("row_count = %d, want true count 150", env.RowCount)
	}
	if !strings.Contains(env.Message, "150") || !strings.Contains(env.Message, "100") {
		t.Errorf("message = %q, want both counts", env.Message)
	}
}

func TestInvoke_QueryBelowThresholdNotTruncated(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return resultWithRows(7)
	}}
	d := NewDispatcher(ms, nil, 100)

	env := d.Invoke(context.Background(), ToolQueryDatabase, `{"sql_query":"SELECT 1"}`)
	if env.Truncated {
		t.Error("truncated flag set for small result")
	}
	if len(env.Data) != 7 || env.RowCount != 7 {
		t.Errorf("data=%d row_count=%d, want 7/7", len(env.Data), env.RowCount)
	}
}

func TestInvoke_QueryFailurePassesReasonThrough(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return store.QueryResult{Success: false, Error: "query contains blocked operation DELETE; only SELECT queries are allowed"}
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolQueryDatabase, `{"sql_query":"DELETE FROM cars"}`)
	if env.Success {
		t.Fatal("rejected query reported success")
	}
	if !strings.Contains(env.Error, "DELETE") {
		t.Errorf("error = %q, want verbatim rejection reason", env.Error)
	}
}

func TestInvoke_Statistics(t *testing.T) {
	ms := &mockStore{statsFn: func(ctx context.Context) (store.Statistics, error) {
		return store.Statistics{TotalRecords: 42}, nil
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolStatistics, "{}")
	if !env.Success || env.Statistics == nil || env.Statistics.TotalRecords != 42 {
		t.Errorf("statistics envelope = %+v", env)
	}
}

func TestInvoke_StatisticsFailure(t *testing.T) {
	ms := &mockStore{statsFn: func(ctx context.Context) (store.Statistics, error) {
		return store.Statistics{}, errors.New("no such table: cars")
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolStatistics, "{}")
	if env.Success {
		t.Fatal("failed aggregation reported success")
	}
	if env.Statistics != nil {
		t.Error("partial statistics returned on failure")
	}
}

func TestInvoke_ChartColumnSelection(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return resultWithRows(3)
	}}
	d := NewDispatcher(ms, nil, 0)

	tests := []struct {
		name  string
		args  string
		wantX string
		wantY string
	}{
		{
			name:  "explicit labels naming real columns",
			args:  `{"sql_query":"q","chart_type":"line","title":"t","x_label":"count","y_label":"make"}`,
			wantX: "count",
			wantY: "make",
		},
		{
			name:  "missing labels fall back to column order",
			args:  `{"sql_query":"q","chart_type":"bar","title":"t"}`,
			wantX: "make",
			wantY: "count",
		},
		{
			name:  "labels naming unknown columns fall back",
			args:  `{"sql_query":"q","chart_type":"bar","title":"t","x_label":"nope","y_label":"nah"}`,
			wantX: "make",
			wantY: "count",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := d.Invoke(context.Background(), ToolChart, tt.args)
			if !env.Success || !env.IsChart || env.Chart == nil {
				t.Fatalf("chart envelope = %+v", env)
			}
			if env.Chart.XLabel != tt.wantX || env.Chart.YLabel != tt.wantY {
				t.Errorf("axes = (%s, %s), want (%s, %s)", env.Chart.XLabel, env.Chart.YLabel, tt.wantX, tt.wantY)
			}
		})
	}
}

func TestInvoke_ChartSingleColumnUsesSameAxis(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return store.QueryResult{
			Success:  true,
			Columns:  []string{"make"},
			Rows:     []map[string]any{{"make": "BMW"}},
			RowCount: 1,
		}
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolChart, `{"sql_query":"q","title":"t"}`)
	if env.Chart == nil || env.Chart.XLabel != "make" || env.Chart.YLabel != "make" {
		t.Errorf("chart = %+v, want both axes = make", env.Chart)
	}
	if env.Chart.Type != "bar" {
		t.Errorf("type = %q, want default bar", env.Chart.Type)
	}
}

func TestInvoke_ChartEmptyResult(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return store.QueryResult{Success: true, Columns: []string{"make"}, RowCount: 0}
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolChart, `{"sql_query":"q","title":"t"}`)
	if env.Success || env.IsChart {
		t.Fatalf("empty chart query must fail: %+v", env)
	}
	if !strings.Contains(env.Error, "no data") {
		t.Errorf("error = %q", env.Error)
	}
}

func TestInvoke_ChartUnderlyingFailureUnmodified(t *testing.T) {
	ms := &mockStore{executeFn: func(ctx context.Context, q string) store.QueryResult {
		return store.QueryResult{Success: false, Error: "database error: no such column: nope"}
	}}
	d := NewDispatcher(ms, nil, 0)

	env := d.Invoke(context.Background(), ToolChart, `{"sql_query":"q","title":"t"}`)
	if env.Success {
		t.Fatal("chart over failed query reported success")
	}
	if env.Error != "database error: no such column: nope" {
		t.Errorf("error = %q, want pass-through", env.Error)
	}
}

func TestInvoke_TicketPlaceholderWhenUnconfigured(t *testing.T) {
	tc := &mockTickets{configured: false}
	d := NewDispatcher(&mockStore{}, tc, 0)

	env := d.Invoke(context.Background(), ToolSupportTicket, `{"title":"Help","description":"stuck"}`)
	if !env.Success {
		t.Fatalf("unconfigured ticket path failed: %+v", env)
	}
	if env.Ticket == nil || !strings.HasPrefix(env.Ticket.ID, "MOCK-") {
		t.Errorf("ticket = %+v, want MOCK- placeholder", env.Ticket)
	}
	if tc.created != 0 {
		t.Errorf("CreateIssue called %d times on unconfigured client", tc.created)
	}
}

func TestInvoke_TicketCreatesIssue(t *testing.T) {
	var gotLabels []string
	tc := &mockTickets{
		configured: true,
		createFn: func(ctx context.Context, title, body string, labels []string) (ticket.Issue, error) {
			gotLabels = labels
			return ticket.Issue{Number: 7, URL: "https://github.com/o/r/issues/7"}, nil
		},
	}
	d := NewDispatcher(&mockStore{}, tc, 0)

	env := d.Invoke(context.Background(), ToolSupportTicket, `{"title":"Help","description":"stuck","priority":"high"}`)
	if !env.Success || env.Ticket == nil || env.Ticket.ID != "#7" {
		t.Fatalf("envelope = %+v", env)
	}
	want := []string{"customer-support", "priority-high"}
	if len(gotLabels) != 2 || gotLabels[0] != want[0] || gotLabels[1] != want[1] {
		t.Errorf("labels = %v, want %v", gotLabels, want)
	}
}

func TestInvoke_TicketDegradesOnCollaboratorFault(t *testing.T) {
	tc := &mockTickets{
		configured: true,
		createFn: func(ctx context.Context, title, body string, labels []string) (ticket.Issue, error) {
			return ticket.Issue{}, errors.New("connection refused")
		},
	}
	d := NewDispatcher(&mockStore{}, tc, 0)

	env := d.Invoke(context.Background(), ToolSupportTicket, `{"title":"Help","description":"stuck"}`)
	if !env.Success {
		t.Fatal("ticket fault must degrade to placeholder, not fail the turn")
	}
	if env.Ticket == nil || !strings.HasPrefix(env.Ticket.ID, "MOCK-") {
		t.Errorf("ticket = %+v", env.Ticket)
	}
}

func TestDefinitions(t *testing.T) {
	defs := Definitions()
	if len(defs) != 4 {
		t.Fatalf("got %d definitions, want 4", len(defs))
	}

	names := map[string]bool{}
	for _, d := range defs {
		names[d.Function.Name] = true
		if d.Type != "function" {
			t.Errorf("%s: type = %q", d.Function.Name, d.Type)
		}

		var schema map[string]any
		if err := json.Unmarshal(d.Function.Parameters, &schema); err != nil {
			t.Errorf("%s: parameters not valid JSON: %v", d.Function.Name, err)
			continue
		}
		if schema["type"] != "object" {
			t.Errorf("%s: schema type = %v, want object", d.Function.Name, schema["type"])
		}
	}
	for _, want := range []string{ToolQueryDatabase, ToolStatistics, ToolChart, ToolSupportTicket} {
		if !names[want] {
			t.Errorf("missing definition for %s", want)
		}
	}
}
