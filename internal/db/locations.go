package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// UpsertLocations inserts or updates locations discovered from the directory sheet.
//
// Existing rows keep their sync status unless the lead sheet link changed, in
// which case the status goes back to not_started: the new sheet has never been
// reconciled. Returns the number of rows written.
func (db *DB) UpsertLocations(ctx context.Context, locations []*schema.Location) (int, error) {
	for _, l := range locations {
		if err := l.Validate(); err != nil {
			return 0, fmt.Errorf("invalid location: %w", err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO locations (id, lead_sheet_link, status, last_error, attempts, updated_at)
	VALUES (?, ?, 'not_started', '', 0, ?)
	ON CONFLICT(id) DO UPDATE SET
		status = CASE
			WHEN locations.lead_sheet_link != excluded.lead_sheet_link THEN 'not_started'
			ELSE locations.status
		END,
		attempts = CASE
			WHEN locations.lead_sheet_link != excluded.lead_sheet_link THEN 0
			ELSE locations.attempts
		END,
		lead_sheet_link = excluded.lead_sheet_link,
		updated_at = excluded.updated_at
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare location upsert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, l := range locations {
		if _, err := stmt.ExecContext(ctx, l.ID, l.LeadSheetLink, ts); err != nil {
			return 0, fmt.Errorf("failed to upsert location %s: %w", l.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit locations: %w", err)
	}
	return len(locations), nil
}

// GetLocation retrieves a single location by id.
// Returns sql.ErrNoRows if the location is not found.
func (db *DB) GetLocation(ctx context.Context, id string) (*schema.Location, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, lead_sheet_link, status, last_error, attempts, updated_at
	FROM locations
	WHERE id = ?
	`, id)
	return scanLocation(row)
}

// ListLocations returns all registered locations ordered by id.
func (db *DB) ListLocations(ctx context.Context) ([]*schema.Location, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT id, lead_sheet_link, status, last_error, attempts, updated_at
	FROM locations
	ORDER BY id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*schema.Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return locations, nil
}

// SetLocationStatus records the outcome of a reconciliation attempt.
//
// Every call counts as one attempt. lastErr is stored for error outcomes and
// cleared otherwise. Returns sql.ErrNoRows if the location is unknown.
func (db *DB) SetLocationStatus(ctx context.Context, id string, status schema.SyncStatus, lastErr string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid status %q", status)
	}
	if status != schema.StatusError {
		lastErr = ""
	}

	res, err := db.conn.ExecContext(ctx, `
	UPDATE locations
	SET status = ?, last_error = ?, attempts = attempts + 1, updated_at = ?
	WHERE id = ?
	`, string(status), lastErr, now(), id)
	if err != nil {
		return fmt.Errorf("failed to set status for location %s: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to set status for location %s: %w", id, err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ResetLocations puts the given locations back to not_started.
// With no ids every location is reset. Returns the number of rows changed.
func (db *DB) ResetLocations(ctx context.Context, ids ...string) (int, error) {
	query := `UPDATE locations SET status = 'not_started', last_error = '', attempts = 0, updated_at = ?`
	args := []interface{}{now()}

	if len(ids) > 0 {
		query += " WHERE id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}

	res, err := db.conn.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset locations: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to reset locations: %w", err)
	}
	return int(n), nil
}

// CountLocationsByStatus returns how many locations are in each status.
func (db *DB) CountLocationsByStatus(ctx context.Context) (map[schema.SyncStatus]int, error) {
	rows, err := db.conn.QueryContext(ctx, `SELECT status, COUNT(*) FROM locations GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count locations: %w", err)
	}
	defer rows.Close()

	counts := make(map[schema.SyncStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan location count: %w", err)
		}
		counts[schema.SyncStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating location counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanLocation(row rowScanner) (*schema.Location, error) {
	var l schema.Location
	var status string
	var updatedAt sql.NullString

	if err := row.Scan(&l.ID, &l.LeadSheetLink, &status, &l.LastError, &l.Attempts, &updatedAt); err != nil {
		return nil, err
	}

	st, err := schema.ParseSyncStatus(status)
	if err != nil {
		return nil, fmt.Errorf("location %s: %w", l.ID, err)
	}
	l.Status = st
	l.UpdatedAt = nullStringToTime(updatedAt)
	return &l, nil
}
