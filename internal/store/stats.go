package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
)

const topGroupLimit = 5

// Statistics runs the fixed battery of aggregate queries over the cars
// table. Sub-queries go through ExecuteQuery so the read-only guarantee is
// uniform with ad hoc queries. The snapshot is all-or-nothing: any failing
// sub-query discards every partial result, because partial statistics could
// mislead.
func (s *Store) Statistics(ctx context.Context) (Statistics, error) {
	var stats Statistics

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		n, err := s.scalarInt(gCtx, "SELECT COUNT(*) FROM cars")
		if err != nil {
			return fmt.Errorf("total records: %w", err)
		}
		stats.TotalRecords = n
		return nil
	})

	g.Go(func() error {
		res := s.ExecuteQuery(gCtx, `SELECT AVG(sellingprice) AS avg_price,
			MIN(sellingprice) AS min_price,
			MAX(sellingprice) AS max_price
			FROM cars WHERE sellingprice IS NOT NULL AND sellingprice > 0`)
		if !res.Success {
			return fmt.Errorf("price summary: %s", res.Error)
		}
		if len(res.Rows) == 1 {
			row := res.Rows[0]
			stats.AvgPrice = math.Round(toFloat(row["avg_price"])*100) / 100
			stats.MinPrice = toFloat(row["min_price"])
			stats.MaxPrice = toFloat(row["max_price"])
		}
		return nil
	})

	g.Go(func() error {
		groups, err := s.groupCounts(gCtx, fmt.Sprintf(
			"SELECT make, COUNT(*) AS count FROM cars GROUP BY make ORDER BY count DESC LIMIT %d", topGroupLimit))
		if err != nil {
			return fmt.Errorf("top makes: %w", err)
		}
		stats.TopMakes = groups
		return nil
	})

	g.Go(func() error {
		groups, err := s.groupCounts(gCtx, fmt.Sprintf(
			"SELECT model, COUNT(*) AS count FROM cars GROUP BY model ORDER BY count DESC LIMIT %d", topGroupLimit))
		if err != nil {
			return fmt.Errorf("top models: %w", err)
		}
		stats.TopModels = groups
		return nil
	})

	g.Go(func() error {
		groups, err := s.groupCounts(gCtx,
			"SELECT condition, COUNT(*) AS count FROM cars WHERE condition IS NOT NULL GROUP BY condition ORDER BY count DESC")
		if err != nil {
			return fmt.Errorf("condition distribution: %w", err)
		}
		stats.Conditions = groups
		return nil
	})

	g.Go(func() error {
		res := s.ExecuteQuery(gCtx, "SELECT MIN(year) AS min_year, MAX(year) AS max_year FROM cars")
		if !res.Success {
			return fmt.Errorf("year range: %s", res.Error)
		}
		if len(res.Rows) == 1 {
			stats.YearRange = YearRange{
				Min: int(toFloat(res.Rows[0]["min_year"])),
				Max: int(toFloat(res.Rows[0]["max_year"])),
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return Statistics{}, err
	}
	return stats, nil
}

// scalarInt runs a single-value aggregate through the validated pathway.
func (s *Store) scalarInt(ctx context.Context, query string) (int, error) {
	res := s.ExecuteQuery(ctx, query)
	if !res.Success {
		return 0, fmt.Errorf("%s", res.Error)
	}
	if len(res.Rows) != 1 || len(res.Columns) == 0 {
		return 0, sql.ErrNoRows
	}
	return int(toFloat(res.Rows[0][res.Columns[0]])), nil
}

// groupCounts runs a two-column (value, count) grouped query.
func (s *Store) groupCounts(ctx context.Context, query string) ([]GroupCount, error) {
	res := s.ExecuteQuery(ctx, query)
	if !res.Success {
		return nil, fmt.Errorf("%s", res.Error)
	}
	if len(res.Columns) < 2 {
		return nil, fmt.Errorf("expected two result columns, got %d", len(res.Columns))
	}
	groups := make([]GroupCount, 0, len(res.Rows))
	for _, row := range res.Rows {
		groups = append(groups, GroupCount{
			Value: fmt.Sprintf("%v", row[res.Columns[0]]),
			Count: int(toFloat(row[res.Columns[1]])),
		})
	}
	return groups, nil
}

// toFloat coerces the numeric scan types SQLite can return.
func toFloat(v any) float64 {
	switch n := v.(type) {
	case int64:
		return float64(n)
	case float64:
		return n
	case int:
		return float64(n)
	default:
		return 0
	}
}
