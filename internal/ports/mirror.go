package ports

import (
	"context"

	"github.com/bft-labs/ticksync/internal/domain"
)

// Mirror is the local copy of fetched words. Batches of one run write
// disjoint indices, so Merge calls may arrive in any order.
type Mirror interface {
	// Merge stores words for pool, overwriting existing entries.
	Merge(ctx context.Context, pool string, words domain.Words) error

	// Load returns the stored words of pool that fall inside iv.
	Load(ctx context.Context, pool string, iv domain.WordInterval) (domain.Words, error)
}
