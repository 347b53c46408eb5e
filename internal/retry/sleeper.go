// Package retry holds the sleep dependency shared by every retry loop in
// leadsync. Production code sleeps on a timer; tests swap in a Recorder so
// cooldowns are observed without real delays.
package retry

import (
	"context"
	"sync"
	"time"
)

// Sleeper pauses the caller for d or until ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// SleeperFunc adapts a function to the Sleeper interface.
type SleeperFunc func(ctx context.Context, d time.Duration) error

// Sleep calls f(ctx, d).
func (f SleeperFunc) Sleep(ctx context.Context, d time.Duration) error {
	return f(ctx, d)
}

// Real sleeps on a timer and returns ctx.Err() if the context ends first.
var Real Sleeper = SleeperFunc(func(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
})

// Recorder is a Sleeper that returns immediately and remembers every requested duration.
type Recorder struct {
	mu    sync.Mutex
	slept []time.Duration
}

// Sleep records d. It still honors an already-cancelled context.
func (r *Recorder) Sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	r.slept = append(r.slept, d)
	r.mu.Unlock()
	return ctx.Err()
}

// Slept returns a copy of the recorded durations.
func (r *Recorder) Slept() []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]time.Duration(nil), r.slept...)
}

// Count returns how many sleeps were requested.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.slept)
}
