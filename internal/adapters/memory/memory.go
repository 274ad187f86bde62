// Package memory provides in-process implementations of the storage ports.
package memory

import (
	"context"
	"sync"

	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

// Mirror is a ports.Mirror held in memory. Safe for concurrent use.
type Mirror struct {
	mu    sync.RWMutex
	pools map[string]domain.Words
}

// NewMirror creates an empty mirror.
func NewMirror() *Mirror {
	return &Mirror{pools: make(map[string]domain.Words)}
}

func (m *Mirror) Merge(ctx context.Context, pool string, words domain.Words) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	dst, ok := m.pools[pool]
	if !ok {
		dst = make(domain.Words, len(words))
		m.pools[pool] = dst
	}
	dst.Merge(words)
	return nil
}

func (m *Mirror) Load(ctx context.Context, pool string, iv domain.WordInterval) (domain.Words, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(domain.Words)
	for idx, v := range m.pools[pool] {
		if iv.Contains(idx) {
			out[idx] = v
		}
	}
	return out, nil
}

// CheckpointRepository is a ports.CheckpointRepository held in memory.
type CheckpointRepository struct {
	mu  sync.Mutex
	cps map[string]ports.Checkpoint
}

// NewCheckpointRepository creates an empty repository.
func NewCheckpointRepository() *CheckpointRepository {
	return &CheckpointRepository{cps: make(map[string]ports.Checkpoint)}
}

func (r *CheckpointRepository) Load(ctx context.Context, pool string) (ports.Checkpoint, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp, ok := r.cps[pool]
	return cp, ok, nil
}

func (r *CheckpointRepository) Save(ctx context.Context, cp ports.Checkpoint) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cps[cp.Pool] = cp
	return nil
}

func (r *CheckpointRepository) Delete(ctx context.Context, pool string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cps, pool)
	return nil
}
