package domain

import "fmt"

// DefaultBatchSize matches the per-group word budget used against public RPC
// endpoints.
const DefaultBatchSize = 6900

// BatchPolicy bounds how many words one batch and one pacing group may carry.
// A policy is immutable for the duration of a synchronization run.
type BatchPolicy struct {
	// MaxBatchSize bounds a single batch
	MaxBatchSize int `json:"max_batch_size"`

	// GroupCap bounds the words issued before a group boundary (pacing reset)
	GroupCap int `json:"group_cap"`
}

// DefaultBatchPolicy returns the policy used when nothing is configured.
func DefaultBatchPolicy() BatchPolicy {
	return BatchPolicy{
		MaxBatchSize: DefaultBatchSize,
		GroupCap:     DefaultBatchSize,
	}
}

// Validate rejects non-positive bounds. A zero bound would otherwise plan
// empty batches forever.
func (p BatchPolicy) Validate() error {
	if p.MaxBatchSize <= 0 {
		return fmt.Errorf("%w: max batch size %d must be positive", ErrInvalidPolicy, p.MaxBatchSize)
	}
	if p.GroupCap <= 0 {
		return fmt.Errorf("%w: group cap %d must be positive", ErrInvalidPolicy, p.GroupCap)
	}
	return nil
}

// Step returns the largest batch the policy can ever emit: min(MaxBatchSize, GroupCap).
func (p BatchPolicy) Step() int {
	return min(p.MaxBatchSize, p.GroupCap)
}
