package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"market-system/internal/config"
	"market-system/internal/logger"
)

func newTestLogger() *logger.Logger {
	return logger.New(&config.LoggerConfig{Level: "error", Format: "json"})
}

func TestScheduler_RunsJobsIndependently(t *testing.T) {
	var sweeps, preheats int32
	s := New(newTestLogger(), false,
		Job{Name: "status-sweep", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&sweeps, 1)
			return errors.New("db down")
		}},
		Job{Name: "pre-heat", Interval: 5 * time.Millisecond, Run: func(ctx context.Context) error {
			atomic.AddInt32(&preheats, 1)
			return nil
		}},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}

	if atomic.LoadInt32(&sweeps) < 2 {
		t.Fatalf("failing job must keep running, got %d runs", sweeps)
	}
	if atomic.LoadInt32(&preheats) < 2 {
		t.Fatalf("other job must not be affected, got %d runs", preheats)
	}
}

func TestScheduler_RunOnStart(t *testing.T) {
	var runs int32
	s := New(newTestLogger(), true, Job{Name: "pre-heat", Interval: time.Hour, Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := s.Run(ctx); err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if atomic.LoadInt32(&runs) != 1 {
		t.Fatalf("expected exactly one immediate run, got %d", runs)
	}
}

func TestScheduler_NoRunOnStart(t *testing.T) {
	var runs int32
	s := New(newTestLogger(), false, Job{Name: "pre-heat", Interval: time.Hour, Run: func(ctx context.Context) error {
		atomic.AddInt32(&runs, 1)
		return nil
	}})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_ = s.Run(ctx)
	if atomic.LoadInt32(&runs) != 0 {
		t.Fatalf("job must wait for the first tick, got %d runs", runs)
	}
}

func TestScheduler_InvalidJob(t *testing.T) {
	s := New(newTestLogger(), false, Job{Name: "broken", Interval: 0, Run: func(ctx context.Context) error { return nil }})
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error for zero interval")
	}

	s = New(newTestLogger(), false, Job{Name: "empty", Interval: time.Second})
	if err := s.Run(context.Background()); err == nil {
		t.Fatalf("expected error for nil run func")
	}
}
