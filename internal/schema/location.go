package schema

import (
	"fmt"
	"time"
)

// SyncStatus is the reconciliation state of one location.
type SyncStatus string

const (
	StatusNotStarted SyncStatus = "not_started"
	StatusDone       SyncStatus = "done"
	StatusError      SyncStatus = "error"
)

// Valid reports whether s is one of the known statuses.
func (s SyncStatus) Valid() bool {
	switch s {
	case StatusNotStarted, StatusDone, StatusError:
		return true
	}
	return false
}

// ParseSyncStatus converts a stored string to a SyncStatus.
// An empty string is treated as not_started.
func ParseSyncStatus(s string) (SyncStatus, error) {
	if s == "" {
		return StatusNotStarted, nil
	}
	st := SyncStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("unknown sync status %q", s)
	}
	return st, nil
}

// Location is a CRM sub-account together with its lead data sheet.
type Location struct {
	// ===== Identification =====
	ID            string `json:"id"`
	LeadSheetLink string `json:"lead_sheet_link"`

	// ===== Sync state =====
	Status    SyncStatus `json:"status"`
	LastError string     `json:"last_error,omitempty"`
	Attempts  int        `json:"attempts"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Validate checks if the Location has valid field values.
func (l *Location) Validate() error {
	if l.ID == "" {
		return fmt.Errorf("location id is required")
	}
	if l.LeadSheetLink == "" {
		return fmt.Errorf("lead sheet link is required for location %s", l.ID)
	}
	if l.Status != "" && !l.Status.Valid() {
		return fmt.Errorf("invalid status %q for location %s", l.Status, l.ID)
	}
	if l.Attempts < 0 {
		return fmt.Errorf("attempts must not be negative (got %d)", l.Attempts)
	}
	return nil
}

// IsDone reports whether the location finished reconciliation in an earlier run.
func (l *Location) IsDone() bool {
	return l.Status == StatusDone
}
