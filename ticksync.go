// Package ticksync mirrors the sparse tick bitmap of concentrated-liquidity
// pools by fetching bitmap words in bounded batches.
//
// Example usage:
//
//	fetcher, err := ticksync.NewRPCFetcher("http://localhost:8545")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	words, err := ticksync.Synchronize(ctx, -887272, 887272, 1,
//	    ticksync.DefaultBatchPolicy(), fetcher,
//	    ticksync.WithPool("0x88e6a0c2ddd26feeb64f039a2c41296fcb3f5640"))
//	var fe *ticksync.FetchError
//	if errors.As(err, &fe) {
//	    // words holds every batch before fe.Batch; resume with WithResume
//	}
package ticksync

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/bft-labs/ticksync/internal/adapters/fs"
	logAdapter "github.com/bft-labs/ticksync/internal/adapters/log"
	"github.com/bft-labs/ticksync/internal/adapters/memory"
	"github.com/bft-labs/ticksync/internal/adapters/rpc"
	"github.com/bft-labs/ticksync/internal/app"
	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/pacing"
	"github.com/bft-labs/ticksync/internal/ports"
)

type (
	// WordIndex is the compressed address of one bitmap word.
	WordIndex = domain.WordIndex

	// Words maps word indices to raw 256-bit bitmap words.
	Words = domain.Words

	// BatchPolicy bounds the size of each fetch and of each group of fetches.
	BatchPolicy = domain.BatchPolicy

	// Batch is one contiguous run of word indices.
	Batch = domain.Batch

	// FetchError reports the batch whose fetch failed.
	FetchError = domain.FetchError

	// State is the resumable progress of a run.
	State = batch.State

	// WordFetcher fetches a contiguous run of words for a pool.
	WordFetcher = ports.WordFetcher

	// FetchFunc adapts a function to WordFetcher.
	FetchFunc = ports.FetchFunc

	// Logger is the structured logging interface.
	Logger = ports.Logger

	// Mirror stores fetched words per pool.
	Mirror = ports.Mirror
)

// Errors returned for invalid input, checkable with errors.Is.
var (
	ErrInvalidSpacing = domain.ErrInvalidSpacing
	ErrTickOutOfRange = domain.ErrTickOutOfRange
	ErrInvertedRange  = domain.ErrInvertedRange
	ErrInvalidPolicy  = domain.ErrInvalidPolicy
)

// Protocol tick bounds.
const (
	MinTick = domain.MinTick
	MaxTick = domain.MaxTick
)

// TickToWord maps a tick to the index of the bitmap word that holds it.
// spacing must be positive.
func TickToWord(tick, spacing int32) WordIndex {
	return domain.TickToWord(tick, spacing)
}

// DefaultBatchPolicy returns 6900 words per batch and per group.
func DefaultBatchPolicy() BatchPolicy {
	return domain.DefaultBatchPolicy()
}

// Schedule returns the batches a run over the tick range would fetch, in order.
func Schedule(minTick, maxTick, spacing int32, policy BatchPolicy) ([]Batch, error) {
	iv, err := domain.NewWordInterval(minTick, maxTick, spacing)
	if err != nil {
		return nil, err
	}
	return batch.Schedule(iv, policy)
}

// Option configures Synchronize.
type Option func(*options)

type options struct {
	pool          string
	resume        *State
	verify        bool
	logger        ports.Logger
	checkpointDir string
	pacer         ports.Pacer
	mirror        ports.Mirror
}

// WithPool names the pool passed to the fetcher and used for checkpoints.
func WithPool(pool string) Option {
	return func(o *options) { o.pool = pool }
}

// WithResume continues a run from a state, for example the one before a FetchError.
func WithResume(s State) Option {
	return func(o *options) { o.resume = &s }
}

// WithVerify checks that every word was covered exactly once.
func WithVerify() Option {
	return func(o *options) { o.verify = true }
}

// WithLogger sets the logger. The default discards all output.
func WithLogger(l Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithZerolog logs through a zerolog logger.
func WithZerolog(l zerolog.Logger) Option {
	return func(o *options) { o.logger = logAdapter.NewZerologAdapterWithLogger(l) }
}

// WithCheckpointDir persists progress after each batch so that a failed run
// resumes from the last completed batch when called again. Without WithMirror
// the words returned by a resumed call start at the checkpoint.
func WithCheckpointDir(dir string) Option {
	return func(o *options) { o.checkpointDir = dir }
}

// WithMirror stores fetched words in m instead of a mirror private to the
// call. Sharing m between a failed call and its resumed call makes the resumed
// call return every word of the range.
func WithMirror(m Mirror) Option {
	return func(o *options) { o.mirror = m }
}

// NewMemoryMirror returns an in-memory Mirror safe for concurrent use.
func NewMemoryMirror() Mirror {
	return memory.NewMirror()
}

// WithPacing limits the request rate and pauses after each group.
func WithPacing(requestsPerSecond float64, burst int, groupPause time.Duration) Option {
	return func(o *options) {
		o.pacer = pacing.New(pacing.Config{
			RequestsPerSecond: requestsPerSecond,
			Burst:             burst,
			GroupPause:        groupPause,
		})
	}
}

// Synchronize fetches every bitmap word of the tick range through fetch, one
// batch at a time. On failure it returns the words fetched so far and a
// *FetchError naming the batch that failed.
func Synchronize(ctx context.Context, minTick, maxTick, spacing int32, policy BatchPolicy, fetch WordFetcher, opts ...Option) (Words, error) {
	o := options{
		logger: logAdapter.NewNoopLogger(),
		pacer:  pacing.Noop{},
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.mirror == nil {
		o.mirror = memory.NewMirror()
	}

	var checkpoints ports.CheckpointRepository
	if o.checkpointDir != "" {
		checkpoints = fs.NewCheckpointFileRepository(o.checkpointDir)
	}
	s := app.NewSynchronizer(
		app.SynchronizerConfig{Verify: o.verify},
		fetch,
		o.mirror,
		checkpoints,
		o.pacer,
		o.logger,
		nil,
	)
	return s.Synchronize(ctx, app.Request{
		Pool:    o.pool,
		MinTick: minTick,
		MaxTick: maxTick,
		Spacing: spacing,
		Policy:  policy,
		Resume:  o.resume,
	})
}

// NewRPCFetcher returns a WordFetcher reading tickBitmap words over JSON-RPC
// at the latest block.
func NewRPCFetcher(url string) (WordFetcher, error) {
	f, err := rpc.NewFetcher(rpc.DefaultConfig(url))
	if err != nil {
		return nil, err
	}
	return f, nil
}
