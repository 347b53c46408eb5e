// Package directory loads the list of locations and their lead data sheet
// links from the master directory sheet.
package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/gateway"
	"github.com/rgm-labs/leadsync/internal/schema"
	"github.com/rgm-labs/leadsync/internal/sheet"
)

// Directory sheet column names, matched case-insensitively.
const (
	ColLocationID = "ghl location id"
	ColSheetLink  = "lead data sheet link"
	ColStatus     = "status"
)

// excludedStatuses are account states whose sheets are never reconciled.
var excludedStatuses = map[string]bool{
	"inactive":  true,
	"churned":   true,
	"cancelled": true,
}

// ErrMissingColumns is returned when the directory sheet lacks a required column.
var ErrMissingColumns = errors.New("directory sheet is missing required columns")

// Opener opens a sheet by link. *gateway.Gateway satisfies it.
type Opener interface {
	Open(ctx context.Context, locationID, link string) (*gateway.Sheet, error)
}

// Store persists locations. *db.DB satisfies it.
type Store interface {
	UpsertLocations(ctx context.Context, locations []*schema.Location) (int, error)
}

// Stats counts how directory rows were handled.
type Stats struct {
	Rows       int // data rows read
	Loaded     int // locations handed to the store
	Incomplete int // rows missing an id or a link
	Excluded   int // rows with an excluded account status
	Duplicates int // repeated location ids, first row kept
	Upserted   int // rows inserted or changed in the store
}

// Parse extracts active locations from the directory sheet values.
func Parse(values [][]string) ([]*schema.Location, Stats, error) {
	var stats Stats
	if len(values) == 0 {
		return nil, stats, fmt.Errorf("%w: sheet is empty", ErrMissingColumns)
	}

	idx := sheet.IndexHeaders(values[0])
	idCol, okID := idx[ColLocationID]
	linkCol, okLink := idx[ColSheetLink]
	if !okID || !okLink {
		var missing []string
		if !okID {
			missing = append(missing, ColLocationID)
		}
		if !okLink {
			missing = append(missing, ColSheetLink)
		}
		return nil, stats, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	statusCol, hasStatus := idx[ColStatus]

	seen := make(map[string]bool)
	var locations []*schema.Location
	for _, cells := range values[1:] {
		stats.Rows++

		id := strings.TrimSpace(sheet.Cell(cells, idCol))
		link := strings.TrimSpace(sheet.Cell(cells, linkCol))
		if id == "" || link == "" {
			stats.Incomplete++
			continue
		}
		if hasStatus && excludedStatuses[strings.ToLower(strings.TrimSpace(sheet.Cell(cells, statusCol)))] {
			stats.Excluded++
			continue
		}
		if seen[id] {
			stats.Duplicates++
			continue
		}
		seen[id] = true

		locations = append(locations, &schema.Location{ID: id, LeadSheetLink: link})
	}

	stats.Loaded = len(locations)
	return locations, stats, nil
}

// Source syncs the directory sheet into the store.
type Source struct {
	opener Opener
	store  Store
	logger zerolog.Logger
}

// New creates a Source.
func New(opener Opener, store Store, logger zerolog.Logger) *Source {
	return &Source{opener: opener, store: store, logger: logger}
}

// Sync opens the directory sheet at link and upserts every active location.
// Locations absent from the sheet are left in the store untouched.
func (s *Source) Sync(ctx context.Context, link string) (Stats, error) {
	if strings.TrimSpace(link) == "" {
		return Stats{}, fmt.Errorf("directory link is not configured")
	}

	sh, err := s.opener.Open(ctx, "directory", link)
	if err != nil {
		return Stats{}, fmt.Errorf("failed to open directory sheet: %w", err)
	}

	locations, stats, err := Parse(sh.Values)
	if err != nil {
		return stats, err
	}

	n, err := s.store.UpsertLocations(ctx, locations)
	if err != nil {
		return stats, fmt.Errorf("failed to store locations: %w", err)
	}
	stats.Upserted = n

	s.logger.Info().
		Int("rows", stats.Rows).
		Int("loaded", stats.Loaded).
		Int("excluded", stats.Excluded).
		Int("incomplete", stats.Incomplete).
		Int("duplicates", stats.Duplicates).
		Int("upserted", stats.Upserted).
		Msg("directory synced")
	return stats, nil
}
