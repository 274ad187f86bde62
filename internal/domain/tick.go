package domain

import "fmt"

// Protocol tick bounds (TickMath MIN_TICK / MAX_TICK).
const (
	MinTick int32 = -887272
	MaxTick int32 = 887272
)

// WordBits is the number of tick-spacing buckets packed into one bitmap word.
const WordBits = 256

// WordIndex is the compressed address of one bitmap word.
type WordIndex int32

// TickToWord maps a tick to the index of the bitmap word that holds it.
//
// Go's integer division truncates toward zero, so negative ticks that are not
// an exact multiple of spacing are moved down by one to get floor division.
// The arithmetic shift then floors again for negative compressed values.
// spacing must be positive; callers validate it first.
func TickToWord(tick, spacing int32) WordIndex {
	return WordIndex(compress(tick, spacing) >> 8)
}

// TickPosition returns the word index and the bit position of tick within it.
func TickPosition(tick, spacing int32) (WordIndex, uint8) {
	c := compress(tick, spacing)
	return WordIndex(c >> 8), uint8(c & 0xff)
}

func compress(tick, spacing int32) int32 {
	compressed := tick / spacing
	if tick < 0 && tick%spacing != 0 {
		compressed--
	}
	return compressed
}

// CheckTick returns ErrTickOutOfRange if tick is outside the protocol domain.
func CheckTick(tick int32) error {
	if tick < MinTick || tick > MaxTick {
		return fmt.Errorf("%w: %d not in [%d, %d]", ErrTickOutOfRange, tick, MinTick, MaxTick)
	}
	return nil
}

// WordInterval is a closed range of word indices.
type WordInterval struct {
	Min WordIndex `json:"min"`
	Max WordIndex `json:"max"`
}

// NewWordInterval validates a tick range and maps it to the words it spans.
func NewWordInterval(minTick, maxTick, spacing int32) (WordInterval, error) {
	if spacing < 1 {
		return WordInterval{}, fmt.Errorf("%w: got %d", ErrInvalidSpacing, spacing)
	}
	if err := CheckTick(minTick); err != nil {
		return WordInterval{}, err
	}
	if err := CheckTick(maxTick); err != nil {
		return WordInterval{}, err
	}
	if minTick > maxTick {
		return WordInterval{}, fmt.Errorf("%w: min %d > max %d", ErrInvertedRange, minTick, maxTick)
	}
	return WordInterval{
		Min: TickToWord(minTick, spacing),
		Max: TickToWord(maxTick, spacing),
	}, nil
}

// Len returns the number of words in the interval.
func (iv WordInterval) Len() int {
	if iv.Max < iv.Min {
		return 0
	}
	return int(iv.Max-iv.Min) + 1
}

// Contains reports whether w lies inside the interval.
func (iv WordInterval) Contains(w WordIndex) bool {
	return w >= iv.Min && w <= iv.Max
}

func (iv WordInterval) String() string {
	return fmt.Sprintf("[%d, %d]", iv.Min, iv.Max)
}
