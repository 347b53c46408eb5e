package daemon

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	noop := func(context.Context) error { return nil }

	tests := []struct {
		name    string
		cycle   Cycle
		config  *Config
		wantErr bool
	}{
		{"defaults", noop, nil, false},
		{"nil cycle", nil, nil, true},
		{"zero interval", noop, &Config{}, true},
		{"custom", noop, &Config{Interval: time.Minute}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.cycle, tt.config)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewWithConfig() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestStart_RunsImmediatelyAndPeriodically(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewWithConfig(func(context.Context) error {
		if runs.Add(1) == 3 {
			cancel()
		}
		return nil
	}, &Config{Interval: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start() returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	if got := runs.Load(); got != 3 {
		t.Errorf("ran %d cycles, want 3", got)
	}
	if d.Cycles() != 3 {
		t.Errorf("Cycles() = %d, want 3", d.Cycles())
	}
}

func TestStart_CycleErrorsDoNotStop(t *testing.T) {
	var runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewWithConfig(func(context.Context) error {
		if runs.Add(1) >= 2 {
			cancel()
		}
		return errors.New("store unreachable")
	}, &Config{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Errorf("Start() returned %v", err)
	}
	if got := runs.Load(); got != 2 {
		t.Errorf("ran %d cycles, want 2", got)
	}
}

func TestStart_NoOverlap(t *testing.T) {
	var active, maxActive, runs atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := NewWithConfig(func(context.Context) error {
		n := active.Add(1)
		if n > maxActive.Load() {
			maxActive.Store(n)
		}
		time.Sleep(15 * time.Millisecond) // longer than the interval
		active.Add(-1)
		if runs.Add(1) == 3 {
			cancel()
		}
		return nil
	}, &Config{Interval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewWithConfig() failed: %v", err)
	}

	if err := d.Start(ctx); err != nil {
		t.Errorf("Start() returned %v", err)
	}
	if maxActive.Load() != 1 {
		t.Errorf("max concurrent cycles = %d, want 1", maxActive.Load())
	}
}

func TestStart_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var runs atomic.Int32
	d, _ := New(func(context.Context) error {
		runs.Add(1)
		return nil
	})
	if err := d.Start(ctx); err != nil {
		t.Errorf("Start() returned %v", err)
	}
	if runs.Load() != 0 {
		t.Errorf("ran %d cycles after cancellation, want 0", runs.Load())
	}
}
