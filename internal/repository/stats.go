package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// StatusCount is the number of recorded runs that ended in a given status.
type StatusCount struct {
	Status string
	Count  int64
}

// RunHistoryStats runs a raw aggregate query against the solve_run_history
// table, grouping by status. It operates directly on *sql.DB (rather than
// through GORM) because it is a reporting query, not a record round-trip.
func RunHistoryStats(ctx context.Context, db *sql.DB) ([]StatusCount, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT status, COUNT(*)
		FROM solve_run_history
		GROUP BY status
		ORDER BY status
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query run history stats: %w", err)
	}
	defer rows.Close()

	var counts []StatusCount
	for rows.Next() {
		var c StatusCount
		if err := rows.Scan(&c.Status, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan run history stats row: %w", err)
		}
		counts = append(counts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return counts, nil
}
