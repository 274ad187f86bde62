package app

import (
	"context"
	"math/rand"
	"time"
)

// Default backoff configuration values.
const (
	DefaultBackoffInitial = 500 * time.Millisecond
	DefaultBackoffMax     = 10 * time.Second
)

// backoff implements exponential backoff with jitter between run attempts.
type backoff struct {
	initial  time.Duration
	maxDelay time.Duration
	current  time.Duration
}

func newBackoff(initial, maxDelay time.Duration) *backoff {
	return &backoff{
		initial:  initial,
		maxDelay: maxDelay,
		current:  initial,
	}
}

// Next returns the delay to wait now and doubles the following one.
func (b *backoff) Next() time.Duration {
	// Add jitter: ±20%
	jitter := float64(b.current) * 0.2 * (rand.Float64()*2 - 1)
	d := time.Duration(float64(b.current) + jitter)

	b.current *= 2
	if b.current > b.maxDelay {
		b.current = b.maxDelay
	}
	return d
}

// Sleep waits for the next backoff delay or until ctx is done.
func (b *backoff) Sleep(ctx context.Context) error {
	return sleepCtx(ctx, b.Next())
}

// Reset resets the backoff to the initial duration.
func (b *backoff) Reset() {
	b.current = b.initial
}

// Current returns the current backoff duration.
func (b *backoff) Current() time.Duration {
	return b.current
}

func sleepCtx(ctx context.Context, d time.Duration) error {
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
}
