package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent contract violations detected before any batch is
// planned. They are returned by the public API and can be checked with errors.Is.
var (
	// ErrInvalidSpacing is returned when the tick spacing is not positive.
	ErrInvalidSpacing = errors.New("ticksync: tick spacing must be positive")

	// ErrTickOutOfRange is returned when a tick is outside [MinTick, MaxTick].
	ErrTickOutOfRange = errors.New("ticksync: tick out of range")

	// ErrInvertedRange is returned when minTick > maxTick.
	ErrInvertedRange = errors.New("ticksync: inverted tick range")

	// ErrInvalidPolicy is returned when a batch policy bound is not positive.
	ErrInvalidPolicy = errors.New("ticksync: invalid batch policy")

	// ErrAlreadyRunning is returned when Start() is called on a running service.
	ErrAlreadyRunning = errors.New("ticksync: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped service.
	ErrNotRunning = errors.New("ticksync: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("ticksync: shutdown timeout")
)

// FetchError reports a failed fetch of one batch. The batch was not applied:
// the synchronization state still points at Batch.Start, so retrying the
// same batch is safe.
type FetchError struct {
	Batch Batch
	Err   error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch words [%d, %d]: %v", e.Batch.Start, e.Batch.End(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
