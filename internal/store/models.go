package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// QueryResult holds the outcome of one read-only query. Rows preserve the
// engine's natural result order; Columns preserves the select-list order so
// callers can render mappings deterministically.
type QueryResult struct {
	Success  bool             `json:"success"`
	Columns  []string         `json:"columns,omitempty"`
	Rows     []map[string]any `json:"rows,omitempty"`
	RowCount int              `json:"row_count"`
	Error    string           `json:"error,omitempty"`
}

// Statistics is the summary snapshot over the cars dataset. It is computed
// on demand and either fully populated or not produced at all.
type Statistics struct {
	TotalRecords int          `json:"total_records"`
	AvgPrice     float64      `json:"avg_price"`
	MinPrice     float64      `json:"min_price"`
	MaxPrice     float64      `json:"max_price"`
	TopMakes     []GroupCount `json:"top_makes"`
	TopModels    []GroupCount `json:"top_models"`
	Conditions   []GroupCount `json:"condition_distribution"`
	YearRange    YearRange    `json:"year_range"`
}

// GroupCount is one entry of a ranked grouped count.
type GroupCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// YearRange is the min/max of the model-year column.
type YearRange struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// TableInfo describes the cars table schema.
type TableInfo struct {
	TableName string   `json:"table_name"`
	Columns   []Column `json:"columns"`
}

// Column is one column of the cars table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Exchange records one completed conversation turn: the user's question,
// the assistant's final answer, and how the answer was produced.
type Exchange struct {
	ID        string
	CreatedAt time.Time
	Question  string
	Answer    string
	Model     string
	ToolCalls int
	HadChart  bool
}
