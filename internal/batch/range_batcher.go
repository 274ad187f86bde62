package batch

import (
	"fmt"

	"github.com/bft-labs/ticksync/internal/domain"
)

// Batcher walks one word interval batch by batch. Next only peeks; the state
// moves when the caller commits a batch it has fetched successfully, so a
// failed fetch can be retried with the same batch.
type Batcher struct {
	policy domain.BatchPolicy
	state  State
}

// New creates a batcher covering iv. The policy is validated here so that a
// zero bound is rejected before any batch is planned.
func New(iv domain.WordInterval, p domain.BatchPolicy) (*Batcher, error) {
	if iv.Len() < 1 {
		return nil, fmt.Errorf("%w: empty word interval %v", domain.ErrInvertedRange, iv)
	}
	return Resume(NewState(iv), p)
}

// Resume creates a batcher continuing from a previously recorded state.
func Resume(s State, p domain.BatchPolicy) (*Batcher, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	// A state recorded under a larger group cap may exceed this one.
	if s.GroupAccumulated >= p.GroupCap {
		s.GroupAccumulated = 0
	}
	return &Batcher{policy: p, state: s}, nil
}

// Next returns the batch to fetch next, or false when the run is done.
func (b *Batcher) Next() (domain.Batch, bool) {
	return Plan(b.state, b.policy)
}

// Commit records that batch was fetched and reports whether a group boundary
// was crossed. batch must be the value last returned by Next.
func (b *Batcher) Commit(batch domain.Batch) (bool, error) {
	planned, ok := Plan(b.state, b.policy)
	if !ok || planned != batch {
		return false, fmt.Errorf("%w: got %+v, planned %+v", ErrBatchMismatch, batch, planned)
	}
	var crossed bool
	b.state, crossed = Advance(b.state, batch, b.policy)
	return crossed, nil
}

// State returns a copy of the current state, suitable for checkpointing.
func (b *Batcher) State() State {
	return b.state
}

// Policy returns the policy the batcher was built with.
func (b *Batcher) Policy() domain.BatchPolicy {
	return b.policy
}

// Done returns true once every word has been committed.
func (b *Batcher) Done() bool {
	return b.state.Done()
}
