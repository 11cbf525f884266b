package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"jotihunt/internal/metrics"
)

var (
	errExitedBeforeReady = errors.New("worker exited before it was ready")
	errNotReady          = errors.New("worker not ready in time")
)

// slot keeps one worker process alive. Each call to Serve runs one process
// from launch to exit; suture calls it again to restart.
type slot struct {
	id              int
	launcher        Launcher
	readyTimeout    time.Duration
	shutdownTimeout time.Duration
	state           slotState
	logger          *slog.Logger

	readyOnce  sync.Once
	firstReady chan struct{}
}

func newSlot(id int, launcher Launcher, readyTimeout, shutdownTimeout time.Duration, logger *slog.Logger) *slot {
	return &slot{
		id:              id,
		launcher:        launcher,
		readyTimeout:    readyTimeout,
		shutdownTimeout: shutdownTimeout,
		logger:          logger.With("slot", id),
		firstReady:      make(chan struct{}),
	}
}

func (s *slot) String() string { return "worker-" + strconv.Itoa(s.id) }

func (s *slot) Serve(ctx context.Context) error {
	if err := s.state.transition(StateStarting); err != nil {
		return err
	}

	proc, err := s.launcher.Launch(ctx, s.id)
	if err != nil {
		return s.fail(fmt.Errorf("launch: %w", err))
	}
	s.state.setPID(proc.PID())

	exited := make(chan error, 1)
	go func() { exited <- proc.Wait() }()

	timer := time.NewTimer(s.readyTimeout)
	defer timer.Stop()

	select {
	case <-proc.Ready():
	case err := <-exited:
		return s.fail(exitError(errExitedBeforeReady, err))
	case <-timer.C:
		s.stop(proc, exited)
		return s.fail(errNotReady)
	case <-ctx.Done():
		s.stop(proc, exited)
		return s.shutdown(ctx)
	}

	if err := s.state.transition(StateRunning); err != nil {
		return err
	}
	metrics.WorkersRunning.Inc()
	defer metrics.WorkersRunning.Dec()
	s.readyOnce.Do(func() { close(s.firstReady) })
	s.logger.Info("worker ready", "pid", proc.PID())

	select {
	case err := <-exited:
		s.logger.Warn("worker died", "pid", proc.PID(), "error", err)
		return s.fail(exitError(errors.New("worker exited"), err))
	case <-ctx.Done():
		s.stop(proc, exited)
		return s.shutdown(ctx)
	}
}

func (s *slot) fail(err error) error {
	if terr := s.state.transition(StateRestarting); terr != nil {
		return errors.Join(err, terr)
	}
	metrics.WorkerRestarts.WithLabelValues(strconv.Itoa(s.id)).Inc()
	return fmt.Errorf("%s: %w", s, err)
}

func (s *slot) shutdown(ctx context.Context) error {
	if err := s.state.transition(StateStopped); err != nil {
		return err
	}
	return ctx.Err()
}

// stop asks the process to terminate and kills it when it does not exit
// within the shutdown timeout.
func (s *slot) stop(proc Process, exited <-chan error) {
	if err := proc.Terminate(); err != nil {
		s.logger.Debug("terminate worker", "pid", proc.PID(), "error", err)
	}
	timer := time.NewTimer(s.shutdownTimeout)
	defer timer.Stop()
	select {
	case <-exited:
	case <-timer.C:
		s.logger.Warn("worker did not stop, killing", "pid", proc.PID())
		_ = proc.Kill()
		<-exited
	}
}

func (s *slot) status() SlotStatus {
	return s.state.status(s.id)
}

func exitError(base, err error) error {
	if err == nil {
		return base
	}
	return fmt.Errorf("%w: %w", base, err)
}
