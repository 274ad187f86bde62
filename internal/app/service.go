package app

import (
	"context"
	"sync"

	"github.com/bft-labs/ticksync/internal/ports"
)

// Service runs the runner in the background. The lifecycle tracks its state,
// the current run and per-pool progress.
type Service struct {
	mu        sync.Mutex
	lifecycle *Lifecycle
	runner    *Runner
	logger    ports.Logger
}

// NewService creates a stopped service. Pass lifecycle as the synchronizer's
// batch emitter to have Progress report per-pool batches.
func NewService(runner *Runner, lifecycle *Lifecycle, logger ports.Logger) *Service {
	return &Service{lifecycle: lifecycle, runner: runner, logger: logger}
}

// Start launches the runner. It returns ErrAlreadyRunning while a run is in
// progress.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	if _, err := s.lifecycle.Begin(cancel); err != nil {
		cancel()
		return err
	}

	go func() {
		defer cancel()
		if err := s.lifecycle.TransitionTo(StateRunning, "runner starting"); err != nil {
			s.logger.Error("failed to transition to running", ports.Err(err))
			s.lifecycle.Finish(runCtx.Err())
			return
		}
		s.lifecycle.Finish(s.runner.Run(runCtx))
	}()
	return nil
}

// Stop cancels the runner and waits for it to exit.
func (s *Service) Stop() error {
	s.mu.Lock()
	if err := s.lifecycle.TransitionTo(StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	s.lifecycle.Cancel()
	s.mu.Unlock()

	if err := s.lifecycle.Wait(ShutdownTimeout); err != nil {
		_ = s.lifecycle.TransitionTo(StateCrashed, "shutdown timeout")
		return err
	}
	_ = s.lifecycle.TransitionTo(StateStopped, "graceful shutdown")
	return nil
}

// Done is closed when the runner of the latest Start returns.
func (s *Service) Done() <-chan struct{} {
	return s.lifecycle.Done()
}

// Err returns the error the runner exited with, if any.
func (s *Service) Err() error {
	return s.lifecycle.Status().Err
}

// Status returns the current lifecycle state.
func (s *Service) Status() State {
	return s.lifecycle.State()
}

// Progress returns the per-pool batch progress.
func (s *Service) Progress() []PoolProgress {
	return s.lifecycle.Progress()
}
