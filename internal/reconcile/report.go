package reconcile

import (
	"time"

	"github.com/rgm-labs/leadsync/internal/db"
)

// Outcome is the state a location reached in one run.
type Outcome int

const (
	Pending Outcome = iota
	Skipped
	Opened
	SchemaInvalid
	Matched
	Written
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Skipped:
		return "skipped"
	case Opened:
		return "opened"
	case SchemaInvalid:
		return "schema_invalid"
	case Matched:
		return "matched"
	case Written:
		return "written"
	case Failed:
		return "failed"
	}
	return "pending"
}

// LocationResult is what happened to one location.
type LocationResult struct {
	LocationID string
	Link       string
	Outcome    Outcome

	Rows          int // data rows in the sheet
	Matched       int // rows tagged by the matcher
	PassedThrough int // rows that already carried a contact id
	Unmatched     int // rows left as they were
	Ambiguous     int // unmatched rows with more than one name candidate

	Warning string // non-fatal write warning
	Err     error  // cause of SchemaInvalid or Failed
}

// Report summarizes a run.
type Report struct {
	RunID      string
	StartedAt  time.Time
	FinishedAt time.Time
	Locations  []LocationResult
}

// Count returns the number of locations that ended in outcome.
func (r *Report) Count(outcome Outcome) int {
	n := 0
	for _, l := range r.Locations {
		if l.Outcome == outcome {
			n++
		}
	}
	return n
}

// Errored returns the number of locations marked error this run.
func (r *Report) Errored() int {
	return r.Count(SchemaInvalid) + r.Count(Failed)
}

// Result returns the result for locationID, if it was processed.
func (r *Report) Result(locationID string) (LocationResult, bool) {
	for _, l := range r.Locations {
		if l.LocationID == locationID {
			return l, true
		}
	}
	return LocationResult{}, false
}

// Record converts the report to its persisted form.
func (r *Report) Record() db.RunRecord {
	return db.RunRecord{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		Done:       r.Count(Written),
		Errored:    r.Errored(),
		Skipped:    r.Count(Skipped),
	}
}
