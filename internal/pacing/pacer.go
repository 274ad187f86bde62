// Package pacing spaces out fetches against rate-limited JSON-RPC endpoints.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Config describes request pacing.
type Config struct {
	// RequestsPerSecond limits fetch starts; zero or negative disables the limit
	RequestsPerSecond float64

	// Burst is the number of fetches allowed back to back
	Burst int

	// GroupPause is slept after every group boundary
	GroupPause time.Duration
}

// Pacer implements ports.Pacer with a token bucket and a fixed group pause.
type Pacer struct {
	limiter *rate.Limiter
	pause   time.Duration
	sleep   func(ctx context.Context, d time.Duration) error
}

// New creates a pacer from cfg.
func New(cfg Config) *Pacer {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}
	return &Pacer{
		limiter: rate.NewLimiter(limit, burst),
		pause:   cfg.GroupPause,
		sleep:   sleepCtx,
	}
}

// Wait blocks until the limiter admits one more fetch.
func (p *Pacer) Wait(ctx context.Context) error {
	return p.limiter.Wait(ctx)
}

// GroupBoundary pauses for the configured group pause.
func (p *Pacer) GroupBoundary(ctx context.Context) error {
	if p.pause <= 0 {
		return nil
	}
	return p.sleep(ctx, p.pause)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Noop never waits.
type Noop struct{}

func (Noop) Wait(context.Context) error          { return nil }
func (Noop) GroupBoundary(context.Context) error { return nil }
