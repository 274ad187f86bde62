package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bft-labs/ticksync/internal/batch"
	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

// Pool is one tick range to keep synchronized.
type Pool struct {
	Address string
	MinTick int32
	MaxTick int32
	Spacing int32
}

// RunnerConfig contains configuration for the runner loop.
type RunnerConfig struct {
	Pools  []Pool
	Policy domain.BatchPolicy

	// MaxAttempts bounds the attempts of one run; zero means one attempt
	MaxAttempts int

	// PollInterval is the delay between runs in continuous mode
	PollInterval time.Duration

	// Once stops after every pool completed one run
	Once bool

	BackoffInitial time.Duration
	BackoffMax     time.Duration
}

// Runner synchronizes a set of pools concurrently. Each pool run owns its own
// batcher state; runs share only the mirror, which they write at disjoint keys.
type Runner struct {
	mu     sync.RWMutex
	config RunnerConfig
	syncer *Synchronizer
	logger ports.Logger
}

// NewRunner creates a runner.
func NewRunner(config RunnerConfig, syncer *Synchronizer, logger ports.Logger) *Runner {
	return &Runner{config: config, syncer: syncer, logger: logger}
}

// Update replaces the pools and policy used by the next runs. Runs already in
// progress keep the policy they started with.
func (r *Runner) Update(pools []Pool, policy domain.BatchPolicy) error {
	if err := policy.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.config.Pools = append([]Pool(nil), pools...)
	r.config.Policy = policy
	return nil
}

func (r *Runner) snapshot() RunnerConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.config
}

// Run synchronizes every pool, then repeats every PollInterval unless Once is
// set. It returns when ctx is canceled, or in once mode after the first round.
func (r *Runner) Run(ctx context.Context) error {
	for {
		cfg := r.snapshot()
		err := r.round(ctx, cfg)
		if cfg.Once {
			return err
		}
		if err != nil && ctx.Err() == nil {
			r.logger.Error("synchronization round failed", ports.Err(err))
		}
		if err := sleepCtx(ctx, cfg.PollInterval); err != nil {
			return err
		}
	}
}

// round runs every pool once, concurrently. A failing pool does not cancel
// the others; the errors of all failed pools are joined.
func (r *Runner) round(ctx context.Context, cfg RunnerConfig) error {
	var g errgroup.Group
	errs := make([]error, len(cfg.Pools))
	for i, p := range cfg.Pools {
		i, p := i, p
		g.Go(func() error {
			errs[i] = r.syncPool(ctx, cfg, p)
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}

// syncPool runs one pool to completion, retrying failed fetches from the
// stored checkpoint with exponential backoff.
func (r *Runner) syncPool(ctx context.Context, cfg RunnerConfig, p Pool) error {
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	initial, maxDelay := cfg.BackoffInitial, cfg.BackoffMax
	if initial <= 0 {
		initial = DefaultBackoffInitial
	}
	if maxDelay <= 0 {
		maxDelay = DefaultBackoffMax
	}
	bo := newBackoff(initial, maxDelay)

	req := Request{
		Pool:    p.Address,
		MinTick: p.MinTick,
		MaxTick: p.MaxTick,
		Spacing: p.Spacing,
		Policy:  cfg.Policy,
	}

	var resume *batch.State
	for attempt := 1; ; attempt++ {
		req.Resume = resume
		words, err := r.syncer.Synchronize(ctx, req)
		if err == nil {
			return nil
		}

		var fe *domain.FetchError
		if !errors.As(err, &fe) || attempt >= attempts || ctx.Err() != nil {
			return err
		}

		// Without a checkpoint store the next attempt would restart from
		// scratch, so resume explicitly from the failed batch.
		if r.syncer.checkpoints == nil {
			st, serr := resumeState(req, fe.Batch)
			if serr != nil {
				return err
			}
			resume = &st
		}

		delay := bo.Next()
		r.logger.Warn("retrying synchronization",
			ports.String("pool", p.Address),
			ports.Int("attempt", attempt),
			ports.Int("words", len(words)),
			ports.Duration("backoff", delay),
			ports.Err(err),
		)
		if err := sleepCtx(ctx, delay); err != nil {
			return err
		}
	}
}

// resumeState rebuilds the state that planned failed within req's range.
func resumeState(req Request, failed domain.Batch) (batch.State, error) {
	iv, err := domain.NewWordInterval(req.MinTick, req.MaxTick, req.Spacing)
	if err != nil {
		return batch.State{}, err
	}
	st := batch.NewState(iv)
	for {
		next, nst, ok := batch.Next(st, req.Policy)
		if !ok || next == failed {
			return st, nil
		}
		st = nst
	}
}
