package ports

import "context"

// Pacer spaces out fetches against a rate-limited source.
type Pacer interface {
	// Wait blocks until the next fetch may be issued or ctx is done.
	Wait(ctx context.Context) error

	// GroupBoundary is called after a batch fills the current group.
	GroupBoundary(ctx context.Context) error
}
