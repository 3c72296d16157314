package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoadCSV loads a car-prices CSV into the cars table, replacing any previous
// contents. Header names are normalized (trimmed, lowercased, spaces to
// underscores) and every column is stored as TEXT except a small set of
// known numeric columns. Indexes for the common query dimensions are
// created afterwards.
func (s *Store) LoadCSV(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("opening CSV: %w", err)
	}
	defer f.Close()

	return s.loadCSVFrom(f)
}

// numericColumns are stored with a numeric affinity so aggregates behave.
var numericColumns = map[string]bool{
	"year":         true,
	"condition":    true,
	"odometer":     true,
	"mmr":          true,
	"sellingprice": true,
}

func (s *Store) loadCSVFrom(r io.Reader) (int, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return 0, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) == 0 {
		return 0, fmt.Errorf("CSV has no columns")
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = normalizeColumnName(h)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("beginning load transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DROP TABLE IF EXISTS cars"); err != nil {
		return 0, fmt.Errorf("dropping previous cars table: %w", err)
	}

	defs := make([]string, len(columns))
	for i, col := range columns {
		typ := "TEXT"
		if numericColumns[col] {
			typ = "REAL"
		}
		defs[i] = fmt.Sprintf("%q %s", col, typ)
	}
	createStmt := fmt.Sprintf("CREATE TABLE cars (%s)", strings.Join(defs, ", "))
	if _, err := tx.Exec(createStmt); err != nil {
		return 0, fmt.Errorf("creating cars table: %w", err)
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(columns)), ",")
	quoted := make([]string, len(columns))
	for i, col := range columns {
		quoted[i] = fmt.Sprintf("%q", col)
	}
	insertStmt, err := tx.Prepare(fmt.Sprintf(
		"INSERT INTO cars (%s) VALUES (%s)", strings.Join(quoted, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("preparing insert: %w", err)
	}
	defer insertStmt.Close()

	count := 0
	args := make([]any, len(columns))
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("reading CSV record %d: %w", count+1, err)
		}

		for i := range columns {
			if i < len(record) && record[i] != "" {
				args[i] = record[i]
			} else {
				args[i] = nil
			}
		}
		if _, err := insertStmt.Exec(args...); err != nil {
			return 0, fmt.Errorf("inserting record %d: %w", count+1, err)
		}
		count++
	}

	// Indexes for the dimensions the agent queries most.
	for _, col := range []string{"make", "model", "year", "state"} {
		if !containsColumn(columns, col) {
			continue
		}
		stmt := fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s ON cars(%q)", col, col)
		if _, err := tx.Exec(stmt); err != nil {
			return 0, fmt.Errorf("creating index on %s: %w", col, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("committing load: %w", err)
	}

	slog.Info("dataset loaded", "rows", count, "columns", len(columns))
	return count, nil
}

func normalizeColumnName(name string) string {
	name = strings.TrimSpace(strings.ToLower(name))
	return strings.ReplaceAll(name, " ", "_")
}

func containsColumn(columns []string, name string) bool {
	for _, c := range columns {
		if c == name {
			return true
		}
	}
	return false
}
