// Package batch plans the bounded fetch batches that cover a word interval.
//
// The planner is an explicit state machine: a [State] value plus pure
// transition functions. A run is Running while State.Remaining > 0 and Done
// once it reaches zero; it never regresses.
package batch

import (
	"errors"
	"fmt"

	"github.com/bft-labs/ticksync/internal/domain"
)

// ErrBatchMismatch is returned by Commit when the batch is not the one the
// batcher planned next.
var ErrBatchMismatch = errors.New("batch: committed batch does not match plan")

// ErrInvalidState is returned when a resumed state has negative counters.
var ErrInvalidState = errors.New("batch: invalid state")

// State is the mutable progress of one synchronization run. It is owned by a
// single run and must not be shared between runs.
type State struct {
	// Cursor is the first word index not yet fetched
	Cursor domain.WordIndex `json:"cursor"`

	// Remaining is the number of words from Cursor still to fetch
	Remaining int `json:"remaining"`

	// GroupAccumulated is the number of words issued in the current group
	GroupAccumulated int `json:"group_accumulated"`
}

// NewState returns the initial state for covering iv.
func NewState(iv domain.WordInterval) State {
	return State{Cursor: iv.Min, Remaining: iv.Len()}
}

// Done returns true once every word has been fetched.
func (s State) Done() bool {
	return s.Remaining == 0
}

// Validate rejects negative counters.
func (s State) Validate() error {
	if s.Remaining < 0 || s.GroupAccumulated < 0 {
		return fmt.Errorf("%w: remaining=%d group=%d", ErrInvalidState, s.Remaining, s.GroupAccumulated)
	}
	return nil
}

// Plan computes the next batch without changing s. It returns false when the
// run is done.
func Plan(s State, p domain.BatchPolicy) (domain.Batch, bool) {
	if s.Remaining <= 0 {
		return domain.Batch{}, false
	}
	groupLeft := p.GroupCap - s.GroupAccumulated
	size := min(s.Remaining, groupLeft, p.MaxBatchSize)
	return domain.Batch{Start: s.Cursor, Count: size}, true
}

// Advance applies a fetched batch to s and reports whether a group boundary
// was crossed. The cursor moves by exactly b.Count, the size of the batch
// just fetched. The group reset only affects GroupAccumulated.
func Advance(s State, b domain.Batch, p domain.BatchPolicy) (State, bool) {
	s.Cursor += domain.WordIndex(b.Count)
	s.Remaining -= b.Count
	s.GroupAccumulated += b.Count

	if s.GroupAccumulated >= p.GroupCap {
		s.GroupAccumulated = 0
		return s, true
	}
	return s, false
}

// Next is the full transition: plan the next batch and advance past it.
func Next(s State, p domain.BatchPolicy) (domain.Batch, State, bool) {
	b, ok := Plan(s, p)
	if !ok {
		return domain.Batch{}, s, false
	}
	next, _ := Advance(s, b, p)
	return b, next, true
}

// MaxBatches returns the number of batches a fresh run needs for words
// words. Every full group takes ceil(GroupCap/MaxBatchSize) batches, the last
// one cut short by the group cap, and the trailing partial group takes
// ceil(rest/MaxBatchSize). When MaxBatchSize >= GroupCap or divides it this
// equals ceil(words / min(MaxBatchSize, GroupCap)).
func MaxBatches(words int, p domain.BatchPolicy) int {
	if words <= 0 || p.Validate() != nil {
		return 0
	}
	perGroup := ceilDiv(p.GroupCap, p.MaxBatchSize)
	return (words/p.GroupCap)*perGroup + ceilDiv(words%p.GroupCap, p.MaxBatchSize)
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

// Schedule returns the complete ordered batch plan for iv.
func Schedule(iv domain.WordInterval, p domain.BatchPolicy) ([]domain.Batch, error) {
	b, err := New(iv, p)
	if err != nil {
		return nil, err
	}
	batches := make([]domain.Batch, 0, MaxBatches(iv.Len(), p))
	for {
		next, ok := b.Next()
		if !ok {
			return batches, nil
		}
		batches = append(batches, next)
		if _, err := b.Commit(next); err != nil {
			return nil, err
		}
	}
}
