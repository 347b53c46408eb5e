package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"unicode"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// nameKey is the comparison form used by the name tier: lower-cased with
// trailing whitespace removed.
func nameKey(s string) string {
	return strings.ToLower(strings.TrimRightFunc(s, unicode.IsSpace))
}

// emailKey is the comparison form of an email address.
func emailKey(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// UpsertContacts inserts or updates contacts in a single transaction.
//
// Contacts are keyed by id; re-ingesting the same contact updates it in place.
// The batch is rejected as a whole if any contact fails validation.
func (db *DB) UpsertContacts(ctx context.Context, contacts []*schema.Contact) error {
	for _, c := range contacts {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("invalid contact: %w", err)
		}
	}

	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
	INSERT INTO contacts (
		id, location_id, email, phone, first_name, last_name,
		first_name_key, last_name_key, updated_at
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		location_id = excluded.location_id,
		email = excluded.email,
		phone = excluded.phone,
		first_name = excluded.first_name,
		last_name = excluded.last_name,
		first_name_key = excluded.first_name_key,
		last_name_key = excluded.last_name_key,
		updated_at = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare contact upsert: %w", err)
	}
	defer stmt.Close()

	ts := now()
	for _, c := range contacts {
		_, err := stmt.ExecContext(ctx,
			c.ID,
			c.LocationID,
			emailKey(c.Email),
			c.Phone,
			c.FirstName,
			c.LastName,
			nameKey(c.FirstName),
			nameKey(c.LastName),
			ts,
		)
		if err != nil {
			return fmt.Errorf("failed to upsert contact %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit contacts: %w", err)
	}
	return nil
}

// GetContact retrieves a single contact by id.
// Returns sql.ErrNoRows if the contact is not found.
func (db *DB) GetContact(ctx context.Context, id string) (*schema.Contact, error) {
	row := db.conn.QueryRowContext(ctx, `
	SELECT id, location_id, email, phone, first_name, last_name
	FROM contacts
	WHERE id = ?
	`, id)

	var c schema.Contact
	if err := row.Scan(&c.ID, &c.LocationID, &c.Email, &c.Phone, &c.FirstName, &c.LastName); err != nil {
		return nil, err
	}
	return &c, nil
}

// FindContactsByPhone returns contacts in the location whose stored phone equals phone.
// An empty phone never matches.
func (db *DB) FindContactsByPhone(ctx context.Context, locationID, phone string) ([]*schema.Contact, error) {
	if phone == "" {
		return nil, nil
	}
	return db.queryContacts(ctx, `
	SELECT id, location_id, email, phone, first_name, last_name
	FROM contacts
	WHERE location_id = ? AND phone = ?
	ORDER BY id ASC
	`, locationID, phone)
}

// FindContactsByEmail returns contacts in the location with the given email,
// compared case-insensitively. An empty email never matches.
func (db *DB) FindContactsByEmail(ctx context.Context, locationID, email string) ([]*schema.Contact, error) {
	key := emailKey(email)
	if key == "" {
		return nil, nil
	}
	return db.queryContacts(ctx, `
	SELECT id, location_id, email, phone, first_name, last_name
	FROM contacts
	WHERE location_id = ? AND email = ?
	ORDER BY id ASC
	`, locationID, key)
}

// FindContactsByName returns contacts in the location whose first and last
// names both equal the given names, ignoring case and trailing whitespace.
func (db *DB) FindContactsByName(ctx context.Context, locationID, firstName, lastName string) ([]*schema.Contact, error) {
	return db.queryContacts(ctx, `
	SELECT id, location_id, email, phone, first_name, last_name
	FROM contacts
	WHERE location_id = ? AND first_name_key = ? AND last_name_key = ?
	ORDER BY id ASC
	`, locationID, nameKey(firstName), nameKey(lastName))
}

// GetContactCount returns the number of cached contacts, optionally limited to one location.
func (db *DB) GetContactCount(ctx context.Context, locationID string) (int, error) {
	query := "SELECT COUNT(*) FROM contacts"
	var args []interface{}
	if locationID != "" {
		query += " WHERE location_id = ?"
		args = append(args, locationID)
	}

	var count int
	if err := db.conn.QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to get contact count: %w", err)
	}
	return count, nil
}

func (db *DB) queryContacts(ctx context.Context, query string, args ...interface{}) ([]*schema.Contact, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query contacts: %w", err)
	}
	defer rows.Close()

	return scanContacts(rows)
}

func scanContacts(rows *sql.Rows) ([]*schema.Contact, error) {
	var contacts []*schema.Contact
	for rows.Next() {
		var c schema.Contact
		if err := rows.Scan(&c.ID, &c.LocationID, &c.Email, &c.Phone, &c.FirstName, &c.LastName); err != nil {
			return nil, fmt.Errorf("failed to scan contact: %w", err)
		}
		contacts = append(contacts, &c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating contacts: %w", err)
	}
	return contacts, nil
}
