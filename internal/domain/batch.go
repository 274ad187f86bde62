package domain

// Batch is one contiguous run of word indices handed to a fetcher.
// Count is always positive for batches produced by the range batcher.
type Batch struct {
	// Start is the first word index in the batch
	Start WordIndex `json:"start"`

	// Count is the number of consecutive words in the batch
	Count int `json:"count"`
}

// End returns the last word index covered by the batch.
func (b Batch) End() WordIndex {
	return b.Start + WordIndex(b.Count) - 1
}

// Empty returns true if the batch covers no words.
func (b Batch) Empty() bool {
	return b.Count <= 0
}

// Contains reports whether w falls inside the batch.
func (b Batch) Contains(w WordIndex) bool {
	return !b.Empty() && w >= b.Start && w <= b.End()
}

// Indices returns every word index covered by the batch in ascending order.
func (b Batch) Indices() []WordIndex {
	if b.Empty() {
		return nil
	}
	out := make([]WordIndex, b.Count)
	for i := range out {
		out[i] = b.Start + WordIndex(i)
	}
	return out
}
