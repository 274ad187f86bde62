package domain

import (
	"sort"

	"github.com/holiman/uint256"
)

// Words maps word indices to the raw 256-bit bitmap fetched for them.
type Words map[WordIndex]*uint256.Int

// Merge copies every entry of src into w, overwriting existing entries.
func (w Words) Merge(src Words) {
	for idx, v := range src {
		w[idx] = v
	}
}

// Indices returns the word indices present in w, ascending.
func (w Words) Indices() []WordIndex {
	out := make([]WordIndex, 0, len(w))
	for idx := range w {
		out = append(out, idx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// InitializedTicks decodes a bitmap word into the ticks whose bits are set,
// in ascending order. A nil or zero bitmap yields no ticks.
func InitializedTicks(word WordIndex, bitmap *uint256.Int, spacing int32) []int32 {
	if bitmap == nil || bitmap.IsZero() {
		return nil
	}
	var ticks []int32
	base := int32(word) * WordBits
	for bit := 0; bit < WordBits; bit++ {
		// uint256.Int is four little-endian uint64 limbs
		if bitmap[bit/64]>>(uint(bit)%64)&1 == 0 {
			continue
		}
		ticks = append(ticks, (base+int32(bit))*spacing)
	}
	return ticks
}
