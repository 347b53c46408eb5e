package reconcile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/db"
	"github.com/rgm-labs/leadsync/internal/gateway"
	"github.com/rgm-labs/leadsync/internal/match"
	"github.com/rgm-labs/leadsync/internal/schema"
	"github.com/rgm-labs/leadsync/internal/sheet"
	"github.com/rgm-labs/leadsync/internal/state"
)

// Store is everything the driver reads and writes locally. *db.DB satisfies it.
type Store interface {
	match.ContactLookup
	state.Store

	ListLocations(ctx context.Context) ([]*schema.Location, error)
	GetContact(ctx context.Context, id string) (*schema.Contact, error)
	InsertRun(ctx context.Context, r db.RunRecord) error
}

// Gateway is the spreadsheet access the driver needs. *gateway.Gateway satisfies it.
type Gateway interface {
	Open(ctx context.Context, locationID, link string) (*gateway.Sheet, error)
	Write(ctx context.Context, locationID string, sheet *gateway.Sheet, data []gateway.ValueRange) (gateway.WriteResult, error)
}

// Config holds driver settings.
type Config struct {
	// Logger for driver activity.
	Logger zerolog.Logger

	// Only restricts the run to these location ids. Empty means all.
	Only []string

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// DefaultConfig returns a config that processes every location.
func DefaultConfig() *Config {
	return &Config{
		Logger: zerolog.Nop(),
		Now:    time.Now,
	}
}

// Driver runs reconciliation passes.
type Driver struct {
	store   Store
	gw      Gateway
	tracker *state.Tracker
	matcher *match.Matcher
	config  *Config
}

// New creates a Driver. A nil config uses DefaultConfig.
func New(store Store, gw Gateway, config *Config) *Driver {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Driver{
		store:   store,
		gw:      gw,
		tracker: state.NewTracker(store),
		matcher: match.New(store, config.Logger),
		config:  config,
	}
}

// Run reconciles every selected location and records the run.
//
// The returned error is non-nil only when the run could not continue: the
// store failed or ctx was cancelled. The report covers every location
// processed up to that point and is never nil.
func (d *Driver) Run(ctx context.Context) (*Report, error) {
	report := &Report{RunID: uuid.NewString(), StartedAt: d.config.Now()}
	log := d.config.Logger.With().Str("run_id", report.RunID).Logger()

	locations, err := d.store.ListLocations(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list locations: %w", err)
	}
	locations = d.selected(locations)

	log.Info().Int("locations", len(locations)).Msg("reconciliation started")

	var runErr error
	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			log.Warn().Err(err).Msg("reconciliation interrupted")
			runErr = err
			break
		}

		res, err := d.reconcileLocation(ctx, log, loc)
		report.Locations = append(report.Locations, res)
		if err != nil {
			runErr = err
			break
		}
	}

	report.FinishedAt = d.config.Now()
	if err := d.store.InsertRun(context.WithoutCancel(ctx), report.Record()); err != nil {
		log.Error().Err(err).Msg("failed to record run")
		if runErr == nil {
			runErr = fmt.Errorf("failed to record run: %w", err)
		}
	}

	log.Info().
		Int("done", report.Count(Written)).
		Int("errored", report.Errored()).
		Int("skipped", report.Count(Skipped)).
		Dur("elapsed", report.FinishedAt.Sub(report.StartedAt)).
		Msg("reconciliation finished")

	return report, runErr
}

func (d *Driver) selected(locations []*schema.Location) []*schema.Location {
	if len(d.config.Only) == 0 {
		return locations
	}
	want := make(map[string]bool, len(d.config.Only))
	for _, id := range d.config.Only {
		want[id] = true
	}
	out := locations[:0:0]
	for _, loc := range locations {
		if want[loc.ID] {
			out = append(out, loc)
		}
	}
	return out
}

// reconcileLocation processes one location. A returned error is fatal to the run.
func (d *Driver) reconcileLocation(ctx context.Context, runLog zerolog.Logger, loc *schema.Location) (LocationResult, error) {
	log := runLog.With().Str("location_id", loc.ID).Str("link", loc.LeadSheetLink).Logger()
	res := LocationResult{LocationID: loc.ID, Link: loc.LeadSheetLink}

	done, err := d.tracker.IsDone(ctx, loc.ID)
	if err != nil {
		return res, err
	}
	if done {
		log.Debug().Msg("location already done, skipping")
		res.Outcome = Skipped
		return res, nil
	}

	s, err := d.gw.Open(ctx, loc.ID, loc.LeadSheetLink)
	if err != nil {
		if gateway.Classify(err) == gateway.ClassCancelled {
			res.Outcome = Failed
			res.Err = err
			return res, err
		}
		return d.fail(ctx, log, res, Failed, err)
	}
	res.Outcome = Opened

	header, rows, err := sheet.Parse(s.Values)
	if err != nil {
		return d.fail(ctx, log, res, SchemaInvalid, err)
	}
	res.Rows = len(rows)

	contactIDs := make([][]string, len(rows))
	locationIDs := make([][]string, len(rows))
	for i, row := range rows {
		contactID, locationID, err := d.resolveRow(ctx, log, row, loc.ID, &res)
		if err != nil {
			return res, err
		}
		contactIDs[i] = []string{contactID}
		locationIDs[i] = []string{locationID}
	}
	res.Outcome = Matched

	if len(rows) == 0 {
		log.Info().Msg("sheet has no data rows")
		res.Outcome = Written
		return res, d.tracker.MarkDone(ctx, loc.ID)
	}

	data, err := batch(header, contactIDs, locationIDs)
	if err != nil {
		return d.fail(ctx, log, res, Failed, err)
	}

	wr, err := d.gw.Write(ctx, loc.ID, s, data)
	if err != nil {
		if gateway.Classify(err) == gateway.ClassCancelled {
			res.Outcome = Failed
			res.Err = err
			return res, err
		}
		return d.fail(ctx, log, res, Failed, err)
	}
	if wr.Warning != nil {
		log.Warn().Err(wr.Warning).Msg("write completed with warning")
		res.Warning = wr.Warning.Error()
	}

	res.Outcome = Written
	if err := d.tracker.MarkDone(ctx, loc.ID); err != nil {
		return res, err
	}

	log.Info().
		Int("rows", res.Rows).
		Int("matched", res.Matched).
		Int("passed_through", res.PassedThrough).
		Int("unmatched", res.Unmatched).
		Msg("location reconciled")
	return res, nil
}

// resolveRow returns the contact id and location id cells to write for row.
func (d *Driver) resolveRow(ctx context.Context, log zerolog.Logger, row sheet.Row, locationID string, res *LocationResult) (string, string, error) {
	if row.Resolved() {
		res.PassedThrough++
		return row.ContactID, row.LocationID, nil
	}

	// An existing contact id is never replaced; only its location is filled in.
	if strings.TrimSpace(row.ContactID) != "" {
		c, err := d.store.GetContact(ctx, strings.TrimSpace(row.ContactID))
		switch {
		case errors.Is(err, sql.ErrNoRows):
			log.Debug().Int("row", row.Number).Str("contact_id", row.ContactID).Msg("tagged contact not in cache")
			res.Unmatched++
			return row.ContactID, row.LocationID, nil
		case err != nil:
			return "", "", fmt.Errorf("failed to look up contact %s: %w", row.ContactID, err)
		}
		res.PassedThrough++
		return row.ContactID, c.LocationID, nil
	}

	m, err := d.matcher.Match(ctx, row, locationID)
	if err != nil {
		return "", "", err
	}
	if !m.Found() {
		if m.Ambiguous {
			res.Ambiguous++
		}
		res.Unmatched++
		return "", "", nil
	}

	res.Matched++
	return m.Contact.ID, m.Contact.LocationID, nil
}

// fail records a location-scoped failure and marks the location error.
func (d *Driver) fail(ctx context.Context, log zerolog.Logger, res LocationResult, outcome Outcome, cause error) (LocationResult, error) {
	res.Outcome = outcome
	res.Err = cause

	var missing *sheet.MissingColumnsError
	if errors.As(cause, &missing) {
		log.Error().Strs("missing", missing.Missing).Msg("sheet is missing required columns")
	} else {
		log.Error().Err(cause).Str("outcome", outcome.String()).Msg("location failed")
	}

	if err := d.tracker.MarkError(ctx, res.LocationID, cause); err != nil {
		return res, err
	}
	return res, nil
}

// batch builds the two column ranges covering every data row.
func batch(h sheet.Header, contactIDs, locationIDs [][]string) ([]gateway.ValueRange, error) {
	last := len(contactIDs) + 1
	contactRange, err := sheet.ColumnRange(h.ContactID, 2, last)
	if err != nil {
		return nil, err
	}
	locationRange, err := sheet.ColumnRange(h.LocationID, 2, last)
	if err != nil {
		return nil, err
	}
	return []gateway.ValueRange{
		{Range: contactRange, Values: contactIDs},
		{Range: locationRange, Values: locationIDs},
	}, nil
}
