package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// UpsertToken inserts or updates a CRM token keyed by (user_type, company_id, location_id).
func (db *DB) UpsertToken(ctx context.Context, t *schema.Token) error {
	if err := t.Validate(); err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}

	_, err := db.conn.ExecContext(ctx, `
	INSERT INTO tokens (
		user_type, company_id, location_id, access_token,
		refresh_token, scope, expires_at, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(user_type, company_id, location_id) DO UPDATE SET
		access_token = excluded.access_token,
		refresh_token = CASE
			WHEN excluded.refresh_token != '' THEN excluded.refresh_token
			ELSE tokens.refresh_token
		END,
		scope = excluded.scope,
		expires_at = excluded.expires_at,
		updated_at = excluded.updated_at
	`,
		t.UserType,
		t.CompanyID,
		t.LocationID,
		t.AccessToken,
		t.RefreshToken,
		t.Scope,
		timeToNullString(t.ExpiresAt),
		now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert token for location %s: %w", t.LocationID, err)
	}
	return nil
}

// ListTokens returns every stored token ordered by location id.
func (db *DB) ListTokens(ctx context.Context) ([]*schema.Token, error) {
	rows, err := db.conn.QueryContext(ctx, `
	SELECT user_type, company_id, location_id, access_token, refresh_token, scope, expires_at
	FROM tokens
	ORDER BY location_id ASC, user_type ASC, company_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*schema.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating tokens: %w", err)
	}
	return tokens, nil
}

// GetTokenForLocation returns the most recently updated token for a location.
// Returns sql.ErrNoRows if the location has no token.
func (db *DB) GetTokenForLocation(ctx context.Context, locationID string) (*schema.Token, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT user_type, company_id, location_id, access_token, refresh_token, scope, expires_at
	FROM tokens
	WHERE location_id = ?
	ORDER BY updated_at DESC
	LIMIT 1
	`, locationID)
	return scanToken(row)
}

func scanToken(row rowScanner) (*schema.Token, error) {
	var t schema.Token
	var expiresAt sql.NullString
	if err := row.Scan(
		&t.UserType,
		&t.CompanyID,
		&t.LocationID,
		&t.AccessToken,
		&t.RefreshToken,
		&t.Scope,
		&expiresAt,
	); err != nil {
		return nil, err
	}
	t.ExpiresAt = nullStringToTime(expiresAt)
	return &t, nil
}
