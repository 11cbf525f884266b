// Package supervisor runs a fixed number of worker processes and replaces
// any that exit.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

var ErrProvisionFailed = errors.New("worker provisioning failed")

type Config struct {
	Workers int
	// Stagger is the pause between starting consecutive workers.
	Stagger          time.Duration
	ReadyTimeout     time.Duration
	ProvisionTimeout time.Duration
	ShutdownTimeout  time.Duration

	// FailureThreshold is the failure count after which restarts back off
	// for FailureBackoff. 0 restarts crashed workers without ever backing
	// off.
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
}

func (c *Config) setDefaults() {
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 30 * time.Second
	}
	if c.ProvisionTimeout <= 0 {
		c.ProvisionTimeout = time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	if c.FailureDecay <= 0 {
		c.FailureDecay = 30
	}
	if c.FailureBackoff <= 0 {
		c.FailureBackoff = 15 * time.Second
	}
}

// Supervisor owns the worker slots and any extra services of the supervisor
// process, all under one suture tree.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	root     *suture.Supervisor
	logger   *slog.Logger

	mu    sync.Mutex
	slots []*slot
}

func New(cfg Config, launcher Launcher, logger *slog.Logger) *Supervisor {
	cfg.setDefaults()

	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = math.MaxFloat64
	}

	handler := &sutureslog.Handler{Logger: logger}
	root := suture.New("jotihunt", suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: threshold,
		FailureDecay:     cfg.FailureDecay,
		FailureBackoff:   cfg.FailureBackoff,
		// Slots wait ShutdownTimeout for their process before killing it.
		Timeout: cfg.ShutdownTimeout + 5*time.Second,
	})

	return &Supervisor{
		cfg:      cfg,
		launcher: launcher,
		root:     root,
		logger:   logger.With("component", "supervisor"),
	}
}

// Go runs fn as a supervised service next to the workers. fn is restarted
// when it returns before the supervisor stops.
func (s *Supervisor) Go(name string, fn func(ctx context.Context) error) {
	s.root.Add(&funcService{name: name, fn: fn})
}

// Run starts the workers one at a time, waiting for each to become ready
// and pausing Stagger between them, then supervises them until ctx is done.
// It fails with ErrProvisionFailed when a worker does not become ready within
// the provision timeout during startup.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := s.root.ServeBackground(ctx)

	for i := range s.cfg.Workers {
		if i > 0 && s.cfg.Stagger > 0 {
			select {
			case <-time.After(s.cfg.Stagger):
			case <-ctx.Done():
				return s.wait(errCh)
			}
		}

		sl := newSlot(i, s.launcher, s.cfg.ReadyTimeout, s.cfg.ShutdownTimeout, s.logger)
		s.mu.Lock()
		s.slots = append(s.slots, sl)
		s.mu.Unlock()
		s.root.Add(sl)

		timer := time.NewTimer(s.cfg.ProvisionTimeout)
		select {
		case <-sl.firstReady:
			timer.Stop()
			s.logger.Info("worker provisioned", "slot", i, "of", s.cfg.Workers)
		case <-timer.C:
			cancel()
			_ = s.wait(errCh)
			return fmt.Errorf("%w: slot %d not ready within %s", ErrProvisionFailed, i, s.cfg.ProvisionTimeout)
		case <-ctx.Done():
			timer.Stop()
			return s.wait(errCh)
		}
	}

	s.logger.Info("all workers ready", "workers", s.cfg.Workers)
	return s.wait(errCh)
}

func (s *Supervisor) wait(errCh <-chan error) error {
	err := <-errCh
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// Status reports every started slot.
func (s *Supervisor) Status() []SlotStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SlotStatus, 0, len(s.slots))
	for _, sl := range s.slots {
		out = append(out, sl.status())
	}
	return out
}

type funcService struct {
	name string
	fn   func(ctx context.Context) error
}

func (f *funcService) Serve(ctx context.Context) error { return f.fn(ctx) }
func (f *funcService) String() string                  { return f.name }
