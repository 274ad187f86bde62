package ports

import (
	"context"
	"time"

	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
)

// Checkpoint records the last completed position of a synchronization run.
type Checkpoint struct {
	Pool      string             `json:"pool"`
	MinTick   int32              `json:"min_tick"`
	MaxTick   int32              `json:"max_tick"`
	Spacing   int32              `json:"tick_spacing"`
	Policy    domain.BatchPolicy `json:"policy"`
	State     batch.State        `json:"state"`
	UpdatedAt time.Time          `json:"updated_at"`
}

// Matches reports whether the checkpoint was written for the same tick range.
func (c Checkpoint) Matches(pool string, minTick, maxTick, spacing int32) bool {
	return c.Pool == pool && c.MinTick == minTick && c.MaxTick == maxTick && c.Spacing == spacing
}

// CheckpointRepository handles checkpoint persistence for crash recovery.
type CheckpointRepository interface {
	// Load retrieves the checkpoint for pool.
	// Returns false and nil error if none exists.
	Load(ctx context.Context, pool string) (Checkpoint, bool, error)

	// Save persists the checkpoint atomically.
	Save(ctx context.Context, cp Checkpoint) error

	// Delete removes the checkpoint for pool. Deleting a missing checkpoint is not an error.
	Delete(ctx context.Context, pool string) error
}
