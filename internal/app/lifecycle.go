package app

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bft-labs/ticksync/internal/domain"
	"github.com/bft-labs/ticksync/internal/ports"
)

// ShutdownTimeout is the maximum time Stop waits for the runner to return.
const ShutdownTimeout = 30 * time.Second

// State is the lifecycle state of the synchronization service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

var stateNames = map[State]string{
	StateStopped:  "Stopped",
	StateStarting: "Starting",
	StateRunning:  "Running",
	StateStopping: "Stopping",
	StateCrashed:  "Crashed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "Unknown"
}

// transitions lists the states reachable from each state.
var transitions = map[State][]State{
	StateStopped:  {StateStarting},
	StateStarting: {StateRunning, StateStopping, StateCrashed},
	StateRunning:  {StateStopping, StateCrashed},
	StateStopping: {StateStopped, StateCrashed},
	StateCrashed:  {StateStarting},
}

func canTransition(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// EventEmitter is called when the service changes state.
type EventEmitter interface {
	OnStateChange(previous, current State, reason string)
}

// Status is a point-in-time view of the service.
type Status struct {
	State  State
	Reason string
	Since  time.Time

	// Err is the error the last run exited with
	Err error
}

// PoolProgress is the batch progress of one pool across runs.
type PoolProgress struct {
	Pool       string
	Runs       int
	FailedRuns int
	Batches    int
	Words      int
	LastBatch  domain.Batch
	LastError  string
	UpdatedAt  time.Time
}

// Lifecycle owns the service state machine, the cancel and completion of the
// current run, and the per-pool progress reported by the synchronizer. It
// implements BatchEventEmitter.
type Lifecycle struct {
	mu      sync.RWMutex
	state   State
	reason  string
	since   time.Time
	runErr  error
	cancel  context.CancelFunc
	done    chan struct{}
	pools   map[string]*PoolProgress
	logger  ports.Logger
	emitter EventEmitter
	now     func() time.Time
}

// NewLifecycle creates a stopped lifecycle. emitter may be nil.
func NewLifecycle(logger ports.Logger, emitter EventEmitter) *Lifecycle {
	return &Lifecycle{
		state:   StateStopped,
		since:   time.Now(),
		pools:   make(map[string]*PoolProgress),
		logger:  logger,
		emitter: emitter,
		now:     time.Now,
	}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Status returns the current state with its reason and the last run error.
func (l *Lifecycle) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return Status{State: l.state, Reason: l.reason, Since: l.since, Err: l.runErr}
}

// TransitionTo moves to state to. Leaving Stopped or Crashed for anything but
// Starting fails with ErrNotRunning; any other invalid move fails with
// ErrAlreadyRunning.
func (l *Lifecycle) TransitionTo(to State, reason string) error {
	l.mu.Lock()
	from, err := l.transitionLocked(to, reason)
	l.mu.Unlock()
	if err != nil {
		return err
	}
	l.announce(from, to, reason)
	return nil
}

func (l *Lifecycle) transitionLocked(to State, reason string) (State, error) {
	from := l.state
	if !canTransition(from, to) {
		if from == StateStopped || from == StateCrashed {
			return from, domain.ErrNotRunning
		}
		return from, domain.ErrAlreadyRunning
	}
	l.state = to
	l.reason = reason
	l.since = l.now()
	return from, nil
}

func (l *Lifecycle) announce(from, to State, reason string) {
	if l.emitter != nil {
		l.emitter.OnStateChange(from, to, reason)
	}
	l.logger.Info("state transition",
		ports.String("from", from.String()),
		ports.String("to", to.String()),
		ports.String("reason", reason),
	)
}

// Begin moves to Starting and records cancel for the new run. The returned
// channel is closed by Finish.
func (l *Lifecycle) Begin(cancel context.CancelFunc) (<-chan struct{}, error) {
	l.mu.Lock()
	from, err := l.transitionLocked(StateStarting, "start requested")
	if err != nil {
		l.mu.Unlock()
		return nil, err
	}
	l.cancel = cancel
	l.runErr = nil
	l.done = make(chan struct{})
	done := l.done
	l.mu.Unlock()

	l.announce(from, StateStarting, "start requested")
	return done, nil
}

// Finish records the error the run returned and closes the run's done
// channel. A run error other than cancellation crashes the service; a clean
// return in once mode stops it.
func (l *Lifecycle) Finish(err error) {
	l.mu.Lock()
	l.runErr = err
	done := l.done
	l.mu.Unlock()

	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		l.logger.Error("runner error", ports.Err(err))
		_ = l.TransitionTo(StateCrashed, err.Error())
	case err == nil:
		if l.TransitionTo(StateStopping, "runner finished") == nil {
			_ = l.TransitionTo(StateStopped, "runner finished")
		}
	}
	if done != nil {
		close(done)
	}
}

// Cancel cancels the current run, if any.
func (l *Lifecycle) Cancel() {
	l.mu.RLock()
	cancel := l.cancel
	l.mu.RUnlock()
	if cancel != nil {
		cancel()
	}
}

// Done returns the completion channel of the latest run.
func (l *Lifecycle) Done() <-chan struct{} {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.done
}

// Wait blocks until the latest run finished or timeout expires.
func (l *Lifecycle) Wait(timeout time.Duration) error {
	done := l.Done()
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		l.logger.Warn("shutdown timeout, forcing exit", ports.Duration("timeout", timeout))
		return domain.ErrShutdownTimeout
	}
}

// Progress returns the progress of every pool seen so far, ordered by pool.
func (l *Lifecycle) Progress() []PoolProgress {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]PoolProgress, 0, len(l.pools))
	for _, p := range l.pools {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pool < out[j].Pool })
	return out
}

func (l *Lifecycle) poolLocked(pool string) *PoolProgress {
	p, ok := l.pools[pool]
	if !ok {
		p = &PoolProgress{Pool: pool}
		l.pools[pool] = p
	}
	p.UpdatedAt = l.now()
	return p
}

// OnBatchFetched records a committed batch.
func (l *Lifecycle) OnBatchFetched(pool string, b domain.Batch, _ time.Duration, _ bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.poolLocked(pool)
	p.Batches++
	p.Words += b.Count
	p.LastBatch = b
}

// OnFetchError records a failed batch.
func (l *Lifecycle) OnFetchError(pool string, b domain.Batch, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.poolLocked(pool)
	p.LastError = err.Error()
}

// OnRunFinished records the end of a run.
func (l *Lifecycle) OnRunFinished(pool string, _ int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.poolLocked(pool)
	p.Runs++
	if err != nil {
		p.FailedRuns++
		p.LastError = err.Error()
		return
	}
	p.LastError = ""
}
