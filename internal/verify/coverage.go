// Package verify checks that a sequence of batches covers a word interval
// exactly once.
package verify

import (
	"errors"
	"fmt"
	"sort"

	"github.com/bft-labs/ticksync/internal/domain"
)

var (
	// ErrCoverageGap is returned when some word of the interval was never covered.
	ErrCoverageGap = errors.New("verify: coverage gap")

	// ErrDuplicateCoverage is returned when a word was covered more than once.
	ErrDuplicateCoverage = errors.New("verify: duplicate coverage")

	// ErrOutOfInterval is returned when a batch reaches outside the interval.
	ErrOutOfInterval = errors.New("verify: word outside interval")
)

// Coverage counts how many times each word index has been covered.
// It is not safe for concurrent use.
type Coverage struct {
	interval domain.WordInterval
	seen     map[domain.WordIndex]int
	outside  []domain.WordIndex
	batches  int
}

// NewCoverage creates an empty tracker for iv.
func NewCoverage(iv domain.WordInterval) *Coverage {
	return &Coverage{
		interval: iv,
		seen:     make(map[domain.WordIndex]int, iv.Len()),
	}
}

// Record adds every index of b to the tracker.
func (c *Coverage) Record(b domain.Batch) {
	c.batches++
	for _, w := range b.Indices() {
		if !c.interval.Contains(w) {
			c.outside = append(c.outside, w)
			continue
		}
		c.seen[w]++
	}
}

// RecordWords adds the indices of fetched words, one count each.
func (c *Coverage) RecordWords(words domain.Words) {
	for w := range words {
		if !c.interval.Contains(w) {
			c.outside = append(c.outside, w)
			continue
		}
		c.seen[w]++
	}
}

// Batches returns the number of batches recorded.
func (c *Coverage) Batches() int { return c.batches }

// Covered returns the number of distinct words covered.
func (c *Coverage) Covered() int { return len(c.seen) }

// Has reports whether w was covered at least once.
func (c *Coverage) Has(w domain.WordIndex) bool { return c.seen[w] > 0 }

// Missing returns the interval words never covered, ascending.
func (c *Coverage) Missing() []domain.WordIndex {
	var out []domain.WordIndex
	for w := c.interval.Min; w <= c.interval.Max; w++ {
		if c.seen[w] == 0 {
			out = append(out, w)
		}
	}
	return out
}

// Duplicates returns the words covered more than once, ascending.
func (c *Coverage) Duplicates() []domain.WordIndex {
	var out []domain.WordIndex
	for w, n := range c.seen {
		if n > 1 {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// OutOfRange returns the recorded words that fall outside the interval.
func (c *Coverage) OutOfRange() []domain.WordIndex {
	return append([]domain.WordIndex(nil), c.outside...)
}

// Check returns nil only if every word of the interval was covered exactly once.
func (c *Coverage) Check() error {
	if len(c.outside) > 0 {
		return fmt.Errorf("%w: %d words, first %d", ErrOutOfInterval, len(c.outside), c.outside[0])
	}
	if d := c.Duplicates(); len(d) > 0 {
		return fmt.Errorf("%w: %d words, first %d", ErrDuplicateCoverage, len(d), d[0])
	}
	if m := c.Missing(); len(m) > 0 {
		return fmt.Errorf("%w: %d of %d words missing in %v, first %d", ErrCoverageGap, len(m), c.interval.Len(), c.interval, m[0])
	}
	return nil
}
