package db

import (
	"context"
	"fmt"
	"time"
)

// RunRecord summarizes one reconciliation run.
type RunRecord struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Done       int
	Errored    int
	Skipped    int
}

// InsertRun stores a run summary. Run ids are unique; inserting the same id twice fails.
func (db *DB) InsertRun(ctx context.Context, r RunRecord) error {
	if r.RunID == "" {
		return fmt.Errorf("run id is required")
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO sync_runs (run_id, started_at, finished_at, done, errored, skipped)
	VALUES (?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		r.StartedAt.UTC().Format(time.RFC3339),
		r.FinishedAt.UTC().Format(time.RFC3339),
		r.Done,
		r.Errored,
		r.Skipped,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", r.RunID, err)
	}
	return nil
}

// ListRuns returns the most recent runs first. limit <= 0 means no limit.
func (db *DB) ListRuns(ctx context.Context, limit int) ([]RunRecord, error) {
	query := `
	SELECT run_id, started_at, finished_at, done, errored, skipped
	FROM sync_runs
	ORDER BY started_at DESC, run_id ASC
	`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var r RunRecord
		var started, finished string
		if err := rows.Scan(&r.RunID, &started, &finished, &r.Done, &r.Errored, &r.Skipped); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, started); err == nil {
			r.StartedAt = t
		}
		if t, err := time.Parse(time.RFC3339, finished); err == nil {
			r.FinishedAt = t
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}
	return runs, nil
}
