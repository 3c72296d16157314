package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveExchange persists one completed conversation turn.
func (s *Store) SaveExchange(e Exchange) error {
	hadChart := 0
	if e.HadChart {
		hadChart = 1
	}
	_, err := s.db.Exec(`
		INSERT INTO exchanges (id, created_at, question, answer, model, tool_calls, had_chart)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.CreatedAt.UTC().Format(time.RFC3339), e.Question, e.Answer,
		e.Model, e.ToolCalls, hadChart,
	)
	return err
}

// GetExchange fetches one exchange by ID, returning ErrNotFound when no
// such exchange exists.
func (s *Store) GetExchange(id string) (Exchange, error) {
	var e Exchange
	var createdAt string
	var hadChart int
	err := s.db.QueryRow(`
		SELECT id, created_at, question, answer, model, tool_calls, had_chart
		FROM exchanges WHERE id = ?`, id,
	).Scan(&e.ID, &createdAt, &e.Question, &e.Answer, &e.Model, &e.ToolCalls, &hadChart)
	if err == sql.ErrNoRows {
		return Exchange{}, ErrNotFound
	}
	if err != nil {
		return Exchange{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Exchange{}, fmt.Errorf("parsing created_at: %w", err)
	}
	e.CreatedAt = t
	e.HadChart = hadChart == 1
	return e, nil
}

// RecentExchanges returns the most recent exchanges, newest first.
func (s *Store) RecentExchanges(limit int) ([]Exchange, error) {
	rows, err := s.db.Query(`
		SELECT id, created_at, question, answer, model, tool_calls, had_chart
		FROM exchanges ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []Exchange
	for rows.Next() {
		var e Exchange
		var createdAt string
		var hadChart int
		if err := rows.Scan(&e.ID, &createdAt, &e.Question, &e.Answer, &e.Model, &e.ToolCalls, &hadChart); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		e.HadChart = hadChart == 1
		results = append(results, e)
	}
	return results, rows.Err()
}
