// Package gateway wraps every spreadsheet call leadsync makes.
//
// Two operations go through it: opening a sheet by link (which also reads the
// first worksheet's values) and writing a batch of ranges. Failures are
// classified and handled differently per operation:
//
//	                 Open                         Write
//	rate limited     cooldown, retry (unbounded)  cooldown, retry once, then warn
//	permission       error, no retry              error, no retry
//	other            error                        success with warning
//
// Reads are cheap to repeat; writes are retried at most once so a partially
// applied batch is not replayed indefinitely.
//
// The gateway assumes a single caller. The cooldown sleep is a job-wide
// pause against a globally rate-limited API, not a per-location delay.
package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/rgm-labs/leadsync/internal/retry"
)

// Sheet is the first worksheet of an opened spreadsheet.
type Sheet struct {
	Link   string     // link the sheet was opened with
	ID     string     // backend spreadsheet identifier
	Title  string     // worksheet title
	Values [][]string // all cell values, row-major; rows may be ragged
}

// ValueRange is one A1 range and the values to place in it.
type ValueRange struct {
	Range  string
	Values [][]string
}

// Backend is a spreadsheet service. Implementations translate their native
// failures into *APIError or the package sentinels so Classify can see them.
type Backend interface {
	// Open resolves link and returns the first worksheet with all its values.
	Open(ctx context.Context, link string) (*Sheet, error)

	// BatchWrite applies all ranges to sheet in one request.
	BatchWrite(ctx context.Context, sheet *Sheet, data []ValueRange) error
}

// Config holds gateway retry settings.
type Config struct {
	// Cooldown is how long to pause after a rate-limit response.
	Cooldown time.Duration

	// MaxOpenRetries caps rate-limit retries for Open. 0 retries forever.
	MaxOpenRetries int

	// WriteRetries is how many times a rate-limited write is retried.
	WriteRetries int

	// Sleeper performs the cooldown. Defaults to retry.Real.
	Sleeper retry.Sleeper

	// Logger for gateway activity.
	Logger zerolog.Logger
}

// DefaultConfig returns the production retry policy.
func DefaultConfig() *Config {
	return &Config{
		Cooldown:       100 * time.Second,
		MaxOpenRetries: 0,
		WriteRetries:   1,
		Sleeper:        retry.Real,
		Logger:         zerolog.Nop(),
	}
}

// WriteResult describes a completed Write.
type WriteResult struct {
	// Attempts is the number of BatchWrite calls made.
	Attempts int

	// Warning is set when the write failed with a non-fatal error. The caller
	// treats the location as written and only logs the warning.
	Warning error
}

// Gateway applies the retry policy around a Backend.
type Gateway struct {
	backend Backend
	config  *Config
}

// New creates a Gateway with the default policy.
func New(backend Backend) *Gateway {
	return NewWithConfig(backend, DefaultConfig())
}

// NewWithConfig creates a Gateway with a custom policy.
func NewWithConfig(backend Backend, config *Config) *Gateway {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Sleeper == nil {
		config.Sleeper = retry.Real
	}
	return &Gateway{backend: backend, config: config}
}

// Open opens the sheet at link on behalf of locationID.
//
// Rate-limit responses are retried after the cooldown until the call succeeds
// (or MaxOpenRetries is reached). Permission and other failures are returned;
// use errors.Is(err, ErrPermissionDenied) to tell them apart.
func (g *Gateway) Open(ctx context.Context, locationID, link string) (*Sheet, error) {
	log := g.config.Logger.With().Str("location_id", locationID).Str("link", link).Logger()

	for attempt := 1; ; attempt++ {
		s, err := g.backend.Open(ctx, link)
		if err == nil {
			if attempt > 1 {
				log.Info().Int("attempts", attempt).Msg("sheet opened after cooldown")
			}
			return s, nil
		}

		switch Classify(err) {
		case ClassRateLimited:
			if g.config.MaxOpenRetries > 0 && attempt > g.config.MaxOpenRetries {
				return nil, fmt.Errorf("failed to open sheet for %s after %d attempts: %w", locationID, attempt, err)
			}
			log.Warn().Err(err).Dur("cooldown", g.config.Cooldown).Int("attempt", attempt).Msg("rate limited opening sheet")
			if err := g.config.Sleeper.Sleep(ctx, g.config.Cooldown); err != nil {
				return nil, err
			}
		case ClassPermissionDenied:
			log.Warn().Err(err).Msg("no access to sheet, skipping location")
			return nil, fmt.Errorf("failed to open sheet for %s: %w", locationID, err)
		default:
			log.Error().Err(err).Msg("failed to open sheet")
			return nil, fmt.Errorf("failed to open sheet for %s: %w", locationID, err)
		}
	}
}

// Write applies data to sheet in a single batch on behalf of locationID.
//
// A rate-limited write is retried WriteRetries times after the cooldown.
// A permission failure or a cancelled context is returned as an error. Any
// other failure, including a write still rate limited after its retries, is
// reported through WriteResult.Warning with a nil error.
func (g *Gateway) Write(ctx context.Context, locationID string, sheet *Sheet, data []ValueRange) (WriteResult, error) {
	log := g.config.Logger.With().Str("location_id", locationID).Str("link", sheet.Link).Logger()

	var res WriteResult
	for {
		res.Attempts++
		err := g.backend.BatchWrite(ctx, sheet, data)
		if err == nil {
			return res, nil
		}

		class := Classify(err)
		switch class {
		case ClassCancelled:
			return res, err
		case ClassPermissionDenied:
			log.Warn().Err(err).Msg("no write access to sheet")
			return res, fmt.Errorf("failed to write sheet for %s: %w", locationID, err)
		case ClassRateLimited:
			if res.Attempts <= g.config.WriteRetries {
				log.Warn().Err(err).Dur("cooldown", g.config.Cooldown).Int("attempt", res.Attempts).Msg("rate limited writing sheet")
				if err := g.config.Sleeper.Sleep(ctx, g.config.Cooldown); err != nil {
					return res, err
				}
				continue
			}
		}

		log.Error().Err(err).Str("class", class.String()).Int("attempts", res.Attempts).Msg("sheet write failed, continuing")
		res.Warning = fmt.Errorf("write for %s did not complete: %w", locationID, err)
		return res, nil
	}
}
