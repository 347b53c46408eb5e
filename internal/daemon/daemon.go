// Package daemon runs the leadsync batch job on a fixed interval.
//
// The daemon:
// 1. Runs one cycle immediately on start
// 2. Runs further cycles every Interval
// 3. Never overlaps cycles; ticks that arrive during a cycle are dropped
// 4. Stops between cycles, or inside one, when its context is cancelled
package daemon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// Cycle is one pass of the batch job.
type Cycle func(ctx context.Context) error

// Config holds configuration for the daemon.
type Config struct {
	// Interval is the time between the starts of consecutive cycles.
	Interval time.Duration

	// Logger for daemon activity.
	Logger zerolog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Interval: time.Hour,
		Logger:   zerolog.Nop(),
	}
}

// Daemon runs a Cycle periodically.
type Daemon struct {
	cycle  Cycle
	config *Config
	cycles int
}

// New creates a Daemon with default configuration.
func New(cycle Cycle) (*Daemon, error) {
	return NewWithConfig(cycle, DefaultConfig())
}

// NewWithConfig creates a daemon with custom configuration.
func NewWithConfig(cycle Cycle, config *Config) (*Daemon, error) {
	if cycle == nil {
		return nil, fmt.Errorf("cycle cannot be nil")
	}
	if config == nil {
		config = DefaultConfig()
	}
	if config.Interval <= 0 {
		return nil, fmt.Errorf("interval must be positive, got %s", config.Interval)
	}
	return &Daemon{cycle: cycle, config: config}, nil
}

// Start runs cycles until ctx is cancelled. Cycle errors are logged and the
// daemon keeps running. Returns nil on cancellation.
func (d *Daemon) Start(ctx context.Context) error {
	log := d.config.Logger
	log.Info().Dur("interval", d.config.Interval).Msg("daemon starting")

	ticker := time.NewTicker(d.config.Interval)
	defer ticker.Stop()

	for {
		d.runCycle(ctx)

		select {
		case <-ctx.Done():
			log.Info().Int("cycles", d.cycles).Msg("daemon stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// Cycles returns the number of cycles started so far.
func (d *Daemon) Cycles() int {
	return d.cycles
}

func (d *Daemon) runCycle(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	d.cycles++
	log := d.config.Logger.With().Int("cycle", d.cycles).Logger()

	start := time.Now()
	err := d.cycle(ctx)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		log.Info().Dur("elapsed", elapsed).Msg("cycle complete")
	case errors.Is(err, context.Canceled):
		log.Info().Dur("elapsed", elapsed).Msg("cycle interrupted")
	default:
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("cycle failed")
	}

	if elapsed > d.config.Interval {
		log.Warn().Dur("elapsed", elapsed).Dur("interval", d.config.Interval).Msg("cycle took longer than the interval")
	}
}
