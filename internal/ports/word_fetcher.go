package ports

import (
	"context"

	"github.com/bft-labs/ticksync/internal/domain"
)

// WordFetcher retrieves bitmap words from the remote source.
type WordFetcher interface {
	// FetchWords returns the words start .. start+count-1 of pool.
	// The result must hold every requested index or the call must fail:
	// a batch either succeeds as a whole or not at all.
	// Implementations may retry transport errors internally.
	FetchWords(ctx context.Context, pool string, start domain.WordIndex, count int) (domain.Words, error)
}

// FetchFunc adapts a plain function to WordFetcher.
type FetchFunc func(ctx context.Context, pool string, start domain.WordIndex, count int) (domain.Words, error)

// FetchWords calls f.
func (f FetchFunc) FetchWords(ctx context.Context, pool string, start domain.WordIndex, count int) (domain.Words, error) {
	return f(ctx, pool, start, count)
}
