package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunImmediatelyTicksFirst(t *testing.T) {
	var ticks atomic.Int64
	sched := New(Options{Interval: time.Hour, RunImmediately: true}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
			ticks.Add(1)
			cancel()
			return nil
		})
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not tick immediately")
	}
	if ticks.Load() != 1 {
		t.Fatalf("expected 1 immediate tick, got %d", ticks.Load())
	}
}

func TestRunRepeatsAtInterval(t *testing.T) {
	var ticks atomic.Int64
	sched := New(Options{Interval: 10 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	err := sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("run should end with the context error, got %v", err)
	}
	if ticks.Load() < 3 {
		t.Fatalf("expected several ticks, got %d", ticks.Load())
	}
}

func TestIntervalFuncDrivesCadence(t *testing.T) {
	interval := 5 * time.Millisecond
	var ticks atomic.Int64
	sched := New(Options{
		IntervalFunc: func() time.Duration { return interval },
	}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_ = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return nil
	})
	if ticks.Load() < 3 {
		t.Fatalf("dynamic interval must drive repeated ticks, got %d", ticks.Load())
	}
}

func TestTickErrorsAreNotFatal(t *testing.T) {
	var ticks atomic.Int64
	sched := New(Options{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_ = sched.Run(ctx, func(ctx context.Context, at time.Time) error {
		ticks.Add(1)
		return errors.New("transient")
	})
	if ticks.Load() < 2 {
		t.Fatalf("errors must not stop the loop, got %d ticks", ticks.Load())
	}
}
