package pacing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPacer_Unlimited(t *testing.T) {
	p := New(Config{})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 100; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.GroupBoundary(ctx); err != nil {
		t.Fatal(err)
	}
	if time.Since(start) > time.Second {
		t.Errorf("unlimited pacer took %v", time.Since(start))
	}
}

func TestPacer_RateLimits(t *testing.T) {
	p := New(Config{RequestsPerSecond: 50, Burst: 1})
	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 6; i++ {
		if err := p.Wait(ctx); err != nil {
			t.Fatal(err)
		}
	}
	// first is free, the next five wait ~20ms each
	if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
		t.Errorf("6 waits at 50rps took %v, want >= 80ms", elapsed)
	}
}

func TestPacer_GroupBoundary(t *testing.T) {
	p := New(Config{GroupPause: time.Hour})
	var slept time.Duration
	p.sleep = func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	if err := p.GroupBoundary(context.Background()); err != nil {
		t.Fatal(err)
	}
	if slept != time.Hour {
		t.Errorf("slept %v, want 1h", slept)
	}
}

func TestPacer_GroupBoundaryCanceled(t *testing.T) {
	p := New(Config{GroupPause: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := p.GroupBoundary(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("GroupBoundary() = %v, want context.Canceled", err)
	}
}
