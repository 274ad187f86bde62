package app

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/holiman/uint256"

	"github.com/bft-labs/ticksync/internal/adapters/memory"
	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

// fakeFetcher returns a deterministic word for every index and can fail a
// given batch start a number of times.
type fakeFetcher struct {
	mu      sync.Mutex
	calls   []domain.Batch
	failAt  map[domain.WordIndex]int
	short   bool
	failErr error
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{failAt: make(map[domain.WordIndex]int), failErr: errors.New("node unavailable")}
}

func (f *fakeFetcher) FetchWords(ctx context.Context, pool string, start domain.WordIndex, count int) (domain.Words, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, domain.Batch{Start: start, Count: count})
	if n := f.failAt[start]; n > 0 {
		f.failAt[start] = n - 1
		return nil, f.failErr
	}
	words := make(domain.Words, count)
	for i := 0; i < count; i++ {
		idx := start + domain.WordIndex(i)
		words[idx] = wordValue(idx)
	}
	if f.short && count > 1 {
		delete(words, start)
	}
	return words, nil
}

func (f *fakeFetcher) Calls() []domain.Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.Batch(nil), f.calls...)
}

func wordValue(idx domain.WordIndex) *uint256.Int {
	return uint256.NewInt(uint64(int64(idx) + 1<<20))
}

// countingPacer records pacing calls.
type countingPacer struct {
	mu         sync.Mutex
	waits      int
	boundaries int
}

func (p *countingPacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	p.waits++
	p.mu.Unlock()
	return ctx.Err()
}

func (p *countingPacer) GroupBoundary(ctx context.Context) error {
	p.mu.Lock()
	p.boundaries++
	p.mu.Unlock()
	return ctx.Err()
}

type testDeps struct {
	fetcher     *fakeFetcher
	mirror      *memory.Mirror
	checkpoints *memory.CheckpointRepository
	pacer       *countingPacer
}

func newTestSynchronizer(verify bool) (*Synchronizer, testDeps) {
	d := testDeps{
		fetcher:     newFakeFetcher(),
		mirror:      memory.NewMirror(),
		checkpoints: memory.NewCheckpointRepository(),
		pacer:       &countingPacer{},
	}
	s := NewSynchronizer(SynchronizerConfig{Verify: verify}, d.fetcher, d.mirror, d.checkpoints, d.pacer, &mockLogger{}, nil)
	return s, d
}

func TestSynchronize_FullRangeScenario(t *testing.T) {
	s, d := newTestSynchronizer(true)
	ctx := context.Background()

	words, err := s.Synchronize(ctx, Request{
		Pool:    "0xpool",
		MinTick: domain.MinTick,
		MaxTick: domain.MaxTick,
		Spacing: 1,
		Policy:  domain.BatchPolicy{MaxBatchSize: 6900, GroupCap: 6900},
	})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}

	calls := d.fetcher.Calls()
	want := []domain.Batch{{Start: -3466, Count: 6900}, {Start: 3434, Count: 32}}
	if len(calls) != len(want) {
		t.Fatalf("fetch calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
	if len(words) != 6932 {
		t.Errorf("len(words) = %d, want 6932", len(words))
	}
	for _, idx := range []domain.WordIndex{-3466, 0, 3434, 3465} {
		if words[idx] == nil || !words[idx].Eq(wordValue(idx)) {
			t.Errorf("word %d = %v, want %v", idx, words[idx], wordValue(idx))
		}
	}
	if d.pacer.waits != 2 {
		t.Errorf("pacer waits = %d, want 2", d.pacer.waits)
	}
	if d.pacer.boundaries != 1 {
		t.Errorf("group boundaries = %d, want 1", d.pacer.boundaries)
	}

	mirrored, err := d.mirror.Load(ctx, "0xpool", domain.WordInterval{Min: -3466, Max: 3465})
	if err != nil {
		t.Fatal(err)
	}
	if len(mirrored) != 6932 {
		t.Errorf("mirrored words = %d, want 6932", len(mirrored))
	}
	if _, ok, _ := d.checkpoints.Load(ctx, "0xpool"); ok {
		t.Error("checkpoint should be removed after completion")
	}
}

func TestSynchronize_RejectsContractViolations(t *testing.T) {
	valid := domain.BatchPolicy{MaxBatchSize: 10, GroupCap: 10}
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"zero spacing", Request{MinTick: 0, MaxTick: 100, Spacing: 0, Policy: valid}, domain.ErrInvalidSpacing},
		{"negative spacing", Request{MinTick: 0, MaxTick: 100, Spacing: -1, Policy: valid}, domain.ErrInvalidSpacing},
		{"tick below domain", Request{MinTick: domain.MinTick - 1, MaxTick: 0, Spacing: 1, Policy: valid}, domain.ErrTickOutOfRange},
		{"tick above domain", Request{MinTick: 0, MaxTick: domain.MaxTick + 1, Spacing: 1, Policy: valid}, domain.ErrTickOutOfRange},
		{"inverted range", Request{MinTick: 100, MaxTick: -100, Spacing: 1, Policy: valid}, domain.ErrInvertedRange},
		{"zero batch size", Request{MinTick: 0, MaxTick: 100, Spacing: 1, Policy: domain.BatchPolicy{GroupCap: 10}}, domain.ErrInvalidPolicy},
		{"negative group cap", Request{MinTick: 0, MaxTick: 100, Spacing: 1, Policy: domain.BatchPolicy{MaxBatchSize: 10, GroupCap: -1}}, domain.ErrInvalidPolicy},
		{"resume outside range", Request{MinTick: 0, MaxTick: 100, Spacing: 1, Policy: valid, Resume: &batch.State{Cursor: 5, Remaining: 1}}, batch.ErrInvalidState},
		{"resume negative", Request{MinTick: 0, MaxTick: 100, Spacing: 1, Policy: valid, Resume: &batch.State{Cursor: 0, Remaining: -1}}, batch.ErrInvalidState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, d := newTestSynchronizer(false)
			tt.req.Pool = "0xpool"
			_, err := s.Synchronize(context.Background(), tt.req)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Synchronize() error = %v, want %v", err, tt.wantErr)
			}
			if calls := d.fetcher.Calls(); len(calls) != 0 {
				t.Errorf("fetch calls = %v, want none", calls)
			}
		})
	}
}

func TestSynchronize_ResumesAfterFailure(t *testing.T) {
	ctx := context.Background()
	req := Request{
		Pool:    "0xpool",
		MinTick: -5000,
		MaxTick: 5000,
		Spacing: 1,
		Policy:  domain.BatchPolicy{MaxBatchSize: 10, GroupCap: 25},
	}

	// words [-20, 19]; batches -20+10, -10+10, 0+5 | 5+10, 15+5
	s, d := newTestSynchronizer(true)
	d.fetcher.failAt[0] = 1

	partial, err := s.Synchronize(ctx, req)
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Synchronize() error = %v, want *domain.FetchError", err)
	}
	if fe.Batch != (domain.Batch{Start: 0, Count: 5}) {
		t.Errorf("failed batch = %+v, want {0 5}", fe.Batch)
	}
	if !errors.Is(err, d.fetcher.failErr) {
		t.Errorf("FetchError does not wrap the fetch error: %v", err)
	}
	if len(partial) != 20 {
		t.Errorf("partial words = %d, want 20", len(partial))
	}

	cp, ok, _ := d.checkpoints.Load(ctx, "0xpool")
	if !ok {
		t.Fatal("checkpoint missing after failure")
	}
	wantState := batch.State{Cursor: 0, Remaining: 20, GroupAccumulated: 20}
	if cp.State != wantState {
		t.Errorf("checkpoint state = %+v, want %+v", cp.State, wantState)
	}

	words, err := s.Synchronize(ctx, req)
	if err != nil {
		t.Fatalf("resumed Synchronize() error = %v", err)
	}
	if len(words) != 40 {
		t.Errorf("len(words) = %d, want 40", len(words))
	}

	want := []domain.Batch{
		{Start: -20, Count: 10}, {Start: -10, Count: 10}, {Start: 0, Count: 5},
		{Start: 0, Count: 5}, {Start: 5, Count: 10}, {Start: 15, Count: 5},
	}
	calls := d.fetcher.Calls()
	if len(calls) != len(want) {
		t.Fatalf("fetch calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}

	// same result as an uninterrupted run
	clean, _ := newTestSynchronizer(true)
	full, err := clean.Synchronize(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(full) != len(words) {
		t.Fatalf("uninterrupted run has %d words, resumed run %d", len(full), len(words))
	}
	for idx, v := range full {
		if words[idx] == nil || !words[idx].Eq(v) {
			t.Errorf("word %d differs after resumption", idx)
		}
	}
}

func TestSynchronize_ExplicitResume(t *testing.T) {
	s, d := newTestSynchronizer(false)
	words, err := s.Synchronize(context.Background(), Request{
		Pool:    "0xpool",
		MinTick: -5000,
		MaxTick: 5000,
		Spacing: 1,
		Policy:  domain.BatchPolicy{MaxBatchSize: 10, GroupCap: 25},
		Resume:  &batch.State{Cursor: 5, Remaining: 15},
	})
	if err != nil {
		t.Fatalf("Synchronize() error = %v", err)
	}
	calls := d.fetcher.Calls()
	if len(calls) != 2 || calls[0] != (domain.Batch{Start: 5, Count: 10}) || calls[1] != (domain.Batch{Start: 15, Count: 5}) {
		t.Errorf("fetch calls = %v, want [{5 10} {15 5}]", calls)
	}
	if len(words) != 15 {
		t.Errorf("len(words) = %d, want 15", len(words))
	}
}

func TestSynchronize_IncompleteBatchFails(t *testing.T) {
	s, d := newTestSynchronizer(false)
	d.fetcher.short = true
	ctx := context.Background()

	words, err := s.Synchronize(ctx, Request{
		Pool:    "0xpool",
		MinTick: 0,
		MaxTick: 25600,
		Spacing: 1,
		Policy:  domain.BatchPolicy{MaxBatchSize: 50, GroupCap: 50},
	})
	var fe *domain.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("Synchronize() error = %v, want *domain.FetchError", err)
	}
	if fe.Batch != (domain.Batch{Start: 0, Count: 50}) {
		t.Errorf("failed batch = %+v, want {0 50}", fe.Batch)
	}
	if len(words) != 0 {
		t.Errorf("words = %d, want none merged", len(words))
	}
	if _, ok, _ := d.checkpoints.Load(ctx, "0xpool"); ok {
		t.Error("no checkpoint expected before the first committed batch")
	}
}

func TestSynchronize_Canceled(t *testing.T) {
	s, d := newTestSynchronizer(false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Synchronize(ctx, Request{
		Pool: "0xpool", MinTick: 0, MaxTick: 1000, Spacing: 1,
		Policy: domain.DefaultBatchPolicy(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Synchronize() error = %v, want context.Canceled", err)
	}
	if calls := d.fetcher.Calls(); len(calls) != 0 {
		t.Errorf("fetch calls = %v, want none", calls)
	}
}

func TestSynchronize_IgnoresForeignCheckpoint(t *testing.T) {
	s, d := newTestSynchronizer(false)
	ctx := context.Background()
	req := Request{
		Pool: "0xpool", MinTick: 0, MaxTick: 2560, Spacing: 1,
		Policy: domain.BatchPolicy{MaxBatchSize: 4, GroupCap: 4},
	}
	// written for a different spacing
	cp := testCheckpoint(req)
	cp.Spacing = 60
	cp.State = batch.State{Cursor: 8, Remaining: 3}
	_ = d.checkpoints.Save(ctx, cp)

	words, err := s.Synchronize(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if len(words) != 11 {
		t.Errorf("len(words) = %d, want 11", len(words))
	}
	if calls := d.fetcher.Calls(); calls[0].Start != 0 {
		t.Errorf("first fetch at %d, want 0", calls[0].Start)
	}
}

func TestCheckWords(t *testing.T) {
	b := domain.Batch{Start: 3, Count: 2}
	ok := domain.Words{3: wordValue(3), 4: wordValue(4)}
	if err := checkWords(b, ok); err != nil {
		t.Errorf("checkWords() = %v, want nil", err)
	}
	if err := checkWords(b, domain.Words{3: wordValue(3)}); err == nil {
		t.Error("checkWords() accepted a short batch")
	}
	if err := checkWords(b, domain.Words{3: wordValue(3), 9: wordValue(9)}); err == nil {
		t.Error("checkWords() accepted a word outside the batch")
	}
}

func testCheckpoint(req Request) ports.Checkpoint {
	return ports.Checkpoint{
		Pool:    req.Pool,
		MinTick: req.MinTick,
		MaxTick: req.MaxTick,
		Spacing: req.Spacing,
		Policy:  req.Policy,
	}
}
