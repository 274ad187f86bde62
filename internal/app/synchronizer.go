package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
	"github.com/bft-labs/ticksync/internal/verify"
)

// Request describes one synchronization run.
type Request struct {
	Pool    string
	MinTick int32
	MaxTick int32
	Spacing int32
	Policy  domain.BatchPolicy

	// Resume continues from an explicit state instead of the stored checkpoint.
	Resume *batch.State
}

// SynchronizerConfig contains options for the synchronizer.
type SynchronizerConfig struct {
	// Verify checks at the end of a run that every word was covered exactly once
	Verify bool
}

// BatchEventEmitter is called on batch and run outcomes.
type BatchEventEmitter interface {
	OnBatchFetched(pool string, b domain.Batch, duration time.Duration, groupBoundary bool)
	OnFetchError(pool string, b domain.Batch, err error)
	OnRunFinished(pool string, words int, err error)
}

// BatchEvents fans events out to several emitters. Nil entries are skipped.
type BatchEvents []BatchEventEmitter

func (e BatchEvents) OnBatchFetched(pool string, b domain.Batch, duration time.Duration, groupBoundary bool) {
	for _, em := range e {
		if em != nil {
			em.OnBatchFetched(pool, b, duration, groupBoundary)
		}
	}
}

func (e BatchEvents) OnFetchError(pool string, b domain.Batch, err error) {
	for _, em := range e {
		if em != nil {
			em.OnFetchError(pool, b, err)
		}
	}
}

func (e BatchEvents) OnRunFinished(pool string, words int, err error) {
	for _, em := range e {
		if em != nil {
			em.OnRunFinished(pool, words, err)
		}
	}
}

// Synchronizer drives the batcher for one pool at a time and applies fetched
// words to the mirror.
type Synchronizer struct {
	config      SynchronizerConfig
	fetcher     ports.WordFetcher
	mirror      ports.Mirror
	checkpoints ports.CheckpointRepository
	pacer       ports.Pacer
	logger      ports.Logger
	emitter     BatchEventEmitter
}

// NewSynchronizer creates a synchronizer. mirror, checkpoints and emitter may be nil.
func NewSynchronizer(
	config SynchronizerConfig,
	fetcher ports.WordFetcher,
	mirror ports.Mirror,
	checkpoints ports.CheckpointRepository,
	pacer ports.Pacer,
	logger ports.Logger,
	emitter BatchEventEmitter,
) *Synchronizer {
	return &Synchronizer{
		config:      config,
		fetcher:     fetcher,
		mirror:      mirror,
		checkpoints: checkpoints,
		pacer:       pacer,
		logger:      logger,
		emitter:     emitter,
	}
}

// Synchronize fetches every word of the request's tick range, one batch at a
// time. On a fetch failure it returns the words merged so far together with a
// *domain.FetchError; the checkpoint still points at the failed batch.
func (s *Synchronizer) Synchronize(ctx context.Context, req Request) (domain.Words, error) {
	iv, err := domain.NewWordInterval(req.MinTick, req.MaxTick, req.Spacing)
	if err != nil {
		return nil, err
	}
	if err := req.Policy.Validate(); err != nil {
		return nil, err
	}

	start, err := s.startState(ctx, req, iv)
	if err != nil {
		return nil, err
	}
	b, err := batch.Resume(start, req.Policy)
	if err != nil {
		return nil, err
	}

	result := make(domain.Words, iv.Len())
	var cov *verify.Coverage
	if s.config.Verify {
		cov = verify.NewCoverage(iv)
	}
	if done := start.Cursor - iv.Min; done > 0 {
		prefix := domain.Batch{Start: iv.Min, Count: int(done)}
		if cov != nil {
			cov.Record(prefix)
		}
		if err := s.loadPrefix(ctx, req.Pool, prefix, result); err != nil {
			return nil, err
		}
		s.logger.Info("resuming synchronization",
			ports.String("pool", req.Pool),
			ports.Int("cursor", int(start.Cursor)),
			ports.Int("remaining", start.Remaining),
		)
	}

	err = s.run(ctx, req, iv, b, result, cov)
	if s.emitter != nil {
		s.emitter.OnRunFinished(req.Pool, len(result), err)
	}
	if err != nil {
		return result, err
	}

	if cov != nil {
		if err := cov.Check(); err != nil {
			return result, err
		}
	}
	if s.checkpoints != nil {
		if err := s.checkpoints.Delete(ctx, req.Pool); err != nil {
			s.logger.Warn("failed to delete checkpoint", ports.String("pool", req.Pool), ports.Err(err))
		}
	}
	s.logger.Info("synchronization complete",
		ports.String("pool", req.Pool),
		ports.String("interval", iv.String()),
		ports.Int("words", len(result)),
	)
	return result, nil
}

func (s *Synchronizer) run(ctx context.Context, req Request, iv domain.WordInterval, b *batch.Batcher, result domain.Words, cov *verify.Coverage) error {
	for {
		next, ok := b.Next()
		if !ok {
			return nil
		}
		if err := s.pacer.Wait(ctx); err != nil {
			return err
		}

		start := time.Now()
		words, err := s.fetcher.FetchWords(ctx, req.Pool, next.Start, next.Count)
		if err == nil {
			err = checkWords(next, words)
		}
		if err != nil {
			s.logger.Error("fetch failed",
				ports.String("pool", req.Pool),
				ports.Int("start", int(next.Start)),
				ports.Int("count", next.Count),
				ports.Err(err),
			)
			if s.emitter != nil {
				s.emitter.OnFetchError(req.Pool, next, err)
			}
			return &domain.FetchError{Batch: next, Err: err}
		}
		duration := time.Since(start)

		if s.mirror != nil {
			if err := s.mirror.Merge(ctx, req.Pool, words); err != nil {
				return fmt.Errorf("mirror words [%d, %d]: %w", next.Start, next.End(), err)
			}
		}
		result.Merge(words)

		crossed, err := b.Commit(next)
		if err != nil {
			return err
		}
		if cov != nil {
			cov.Record(next)
		}
		s.saveCheckpoint(ctx, req, b)

		s.logger.Debug("fetched batch",
			ports.String("pool", req.Pool),
			ports.Int("start", int(next.Start)),
			ports.Int("count", next.Count),
			ports.Int("remaining", b.State().Remaining),
			ports.Duration("duration", duration),
		)
		if s.emitter != nil {
			s.emitter.OnBatchFetched(req.Pool, next, duration, crossed)
		}

		if crossed && !b.Done() {
			if err := s.pacer.GroupBoundary(ctx); err != nil {
				return err
			}
		}
	}
}

// startState picks the explicit resume state, a matching checkpoint, or a
// fresh state, in that order.
func (s *Synchronizer) startState(ctx context.Context, req Request, iv domain.WordInterval) (batch.State, error) {
	if req.Resume != nil {
		if err := checkState(iv, *req.Resume); err != nil {
			return batch.State{}, err
		}
		return *req.Resume, nil
	}
	if s.checkpoints == nil {
		return batch.NewState(iv), nil
	}

	cp, ok, err := s.checkpoints.Load(ctx, req.Pool)
	if err != nil {
		s.logger.Error("failed to load checkpoint", ports.String("pool", req.Pool), ports.Err(err))
		return batch.NewState(iv), nil
	}
	if !ok {
		return batch.NewState(iv), nil
	}
	if !cp.Matches(req.Pool, req.MinTick, req.MaxTick, req.Spacing) {
		s.logger.Info("ignoring checkpoint for a different range", ports.String("pool", req.Pool))
		return batch.NewState(iv), nil
	}
	if err := checkState(iv, cp.State); err != nil {
		s.logger.Warn("ignoring invalid checkpoint", ports.String("pool", req.Pool), ports.Err(err))
		return batch.NewState(iv), nil
	}
	return cp.State, nil
}

// loadPrefix fills result with the words fetched before the resume point.
func (s *Synchronizer) loadPrefix(ctx context.Context, pool string, prefix domain.Batch, result domain.Words) error {
	if s.mirror == nil {
		return nil
	}
	words, err := s.mirror.Load(ctx, pool, domain.WordInterval{Min: prefix.Start, Max: prefix.End()})
	if err != nil {
		return fmt.Errorf("load mirrored words: %w", err)
	}
	result.Merge(words)
	return nil
}

func (s *Synchronizer) saveCheckpoint(ctx context.Context, req Request, b *batch.Batcher) {
	if s.checkpoints == nil {
		return
	}
	cp := ports.Checkpoint{
		Pool:      req.Pool,
		MinTick:   req.MinTick,
		MaxTick:   req.MaxTick,
		Spacing:   req.Spacing,
		Policy:    req.Policy,
		State:     b.State(),
		UpdatedAt: time.Now().UTC(),
	}
	if err := s.checkpoints.Save(ctx, cp); err != nil {
		s.logger.Error("failed to save checkpoint", ports.String("pool", req.Pool), ports.Err(err))
	}
}

// checkState verifies that st describes a position inside iv.
func checkState(iv domain.WordInterval, st batch.State) error {
	if err := st.Validate(); err != nil {
		return err
	}
	done := int(st.Cursor) - int(iv.Min)
	if done < 0 || done+st.Remaining != iv.Len() {
		return fmt.Errorf("%w: cursor %d remaining %d outside %v", batch.ErrInvalidState, st.Cursor, st.Remaining, iv)
	}
	return nil
}

// checkWords enforces that a fetch returned exactly the requested batch.
func checkWords(b domain.Batch, words domain.Words) error {
	if len(words) != b.Count {
		return fmt.Errorf("got %d words, want %d", len(words), b.Count)
	}
	for idx := range words {
		if !b.Contains(idx) {
			return fmt.Errorf("word %d outside batch", idx)
		}
	}
	return nil
}
