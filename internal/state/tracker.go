// Package state tracks per-location reconciliation progress across runs.
//
// Only location-level completion is persisted. A location marked error is
// retried from scratch on the next run; there is no automatic give-up.
package state

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rgm-labs/leadsync/internal/schema"
)

// Store is the persistence the tracker needs. *db.DB satisfies it.
type Store interface {
	GetLocation(ctx context.Context, id string) (*schema.Location, error)
	SetLocationStatus(ctx context.Context, id string, status schema.SyncStatus, lastErr string) error
	ResetLocations(ctx context.Context, ids ...string) (int, error)
}

// ErrUnknownLocation is returned when the location is not registered.
var ErrUnknownLocation = errors.New("unknown location")

// Tracker reads and records location sync status.
type Tracker struct {
	store Store
}

// NewTracker creates a Tracker over store.
func NewTracker(store Store) *Tracker {
	return &Tracker{store: store}
}

// Status returns the current status of a location.
func (t *Tracker) Status(ctx context.Context, locationID string) (schema.SyncStatus, error) {
	loc, err := t.store.GetLocation(ctx, locationID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
		}
		return "", fmt.Errorf("failed to read status for %s: %w", locationID, err)
	}
	return loc.Status, nil
}

// IsDone reports whether the location completed reconciliation in an earlier run.
func (t *Tracker) IsDone(ctx context.Context, locationID string) (bool, error) {
	st, err := t.Status(ctx, locationID)
	if err != nil {
		return false, err
	}
	return st == schema.StatusDone, nil
}

// MarkDone records a fully successful reconciliation.
func (t *Tracker) MarkDone(ctx context.Context, locationID string) error {
	return t.set(ctx, locationID, schema.StatusDone, "")
}

// MarkError records a failed reconciliation with its reason.
func (t *Tracker) MarkError(ctx context.Context, locationID string, reason error) error {
	msg := ""
	if reason != nil {
		msg = reason.Error()
	}
	return t.set(ctx, locationID, schema.StatusError, msg)
}

// Reset puts locations back to not_started so the next run redoes them.
// With no ids every location is reset.
func (t *Tracker) Reset(ctx context.Context, locationIDs ...string) (int, error) {
	n, err := t.store.ResetLocations(ctx, locationIDs...)
	if err != nil {
		return 0, fmt.Errorf("failed to reset locations: %w", err)
	}
	return n, nil
}

func (t *Tracker) set(ctx context.Context, locationID string, status schema.SyncStatus, msg string) error {
	if err := t.store.SetLocationStatus(ctx, locationID, status, msg); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrUnknownLocation, locationID)
		}
		return fmt.Errorf("failed to mark %s %s: %w", locationID, status, err)
	}
	return nil
}
