package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestReal_ReturnsAfterDuration(t *testing.T) {
	start := time.Now()
	if err := Real.Sleep(context.Background(), 10*time.Millisecond); err != nil {
		t.Fatalf("Sleep() failed: %v", err)
	}
	if time.Since(start) < 10*time.Millisecond {
		t.Error("Sleep() returned early")
	}
}

func TestReal_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := Real.Sleep(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("Sleep() error = %v, want context.Canceled", err)
	}
}

func TestRecorder(t *testing.T) {
	var r Recorder
	ctx := context.Background()

	_ = r.Sleep(ctx, time.Second)
	_ = r.Sleep(ctx, 2*time.Second)

	if r.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", r.Count())
	}
	if got := r.Slept(); got[0] != time.Second || got[1] != 2*time.Second {
		t.Errorf("Slept() = %v", got)
	}
}
