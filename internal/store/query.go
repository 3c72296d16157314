package store

import (
	"context"
	"log/slog"

	"github.com/mstolbov/askdb/internal/safety"
)

// ExecuteQuery validates and runs a single read-only SQL statement.
//
// Validation happens on every call; the executor never trusts an upstream
// check. Rejections and engine-level faults are both folded into the
// returned QueryResult, never surfaced as an error — the caller always gets
// a structured result it can forward verbatim to the model.
func (s *Store) ExecuteQuery(ctx context.Context, query string) QueryResult {
	if v := safety.Validate(query); !v.OK {
		slog.Warn("blocked unsafe query", "reason", v.Reason, "query", query)
		return QueryResult{Success: false, Error: v.Reason}
	}

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		slog.Warn("query failed", "error", err)
		return QueryResult{Success: false, Error: "database error: " + err.Error()}
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return QueryResult{Success: false, Error: "database error: " + err.Error()}
	}

	var result []map[string]any
	values := make([]any, len(columns))
	scanTargets := make([]any, len(columns))
	for i := range values {
		scanTargets[i] = &values[i]
	}

	for rows.Next() {
		if err := rows.Scan(scanTargets...); err != nil {
			return QueryResult{Success: false, Error: "database error: " + err.Error()}
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = normalizeValue(values[i])
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return QueryResult{Success: false, Error: "database error: " + err.Error()}
	}

	slog.Debug("query executed", "rows", len(result))
	return QueryResult{
		Success:  true,
		Columns:  columns,
		Rows:     result,
		RowCount: len(result),
	}
}

// normalizeValue converts driver-specific scan types into JSON-friendly ones.
func normalizeValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
