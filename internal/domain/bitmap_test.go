package domain

import (
	"reflect"
	"testing"

	"github.com/holiman/uint256"
)

func TestInitializedTicks(t *testing.T) {
	one := uint256.NewInt(1)
	bitmap := new(uint256.Int).Set(one)
	bitmap.Or(bitmap, new(uint256.Int).Lsh(one, 70))
	bitmap.Or(bitmap, new(uint256.Int).Lsh(one, 255))

	got := InitializedTicks(-1, bitmap, 60)
	want := []int32{-256 * 60, (-256 + 70) * 60, -60}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("InitializedTicks() = %v, want %v", got, want)
	}

	for _, tick := range got {
		word, _ := TickPosition(tick, 60)
		if word != -1 {
			t.Errorf("tick %d decoded into word -1 maps back to word %d", tick, word)
		}
	}
}

func TestInitializedTicks_Empty(t *testing.T) {
	if got := InitializedTicks(3, nil, 1); got != nil {
		t.Errorf("nil bitmap = %v, want nil", got)
	}
	if got := InitializedTicks(3, uint256.NewInt(0), 1); got != nil {
		t.Errorf("zero bitmap = %v, want nil", got)
	}
}

func TestWords_MergeAndIndices(t *testing.T) {
	w := Words{5: uint256.NewInt(1)}
	w.Merge(Words{-2: uint256.NewInt(2), 5: uint256.NewInt(3)})

	if !reflect.DeepEqual(w.Indices(), []WordIndex{-2, 5}) {
		t.Errorf("Indices() = %v", w.Indices())
	}
	if w[5].Uint64() != 3 {
		t.Errorf("Merge should overwrite, got %v", w[5])
	}
}
