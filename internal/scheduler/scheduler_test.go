package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotihunt/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc(func(ctx context.Context) error {
		runs.Add(1)
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- NewScheduler("test", job, 10*time.Millisecond, time.Second, discardLogger()).Start(ctx)
	}()

	require.Eventually(t, func() bool { return runs.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}

func TestScheduler_JobErrorsDoNotStopTheLoop(t *testing.T) {
	var runs atomic.Int32
	job := JobFunc(func(ctx context.Context) error {
		runs.Add(1)
		return errors.New("boom")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewScheduler("failing", job, 5*time.Millisecond, time.Second, discardLogger()).Start(ctx) }()

	assert.Eventually(t, func() bool { return runs.Load() >= 2 }, time.Second, 5*time.Millisecond)
}

func TestScheduler_JobGetsTimeout(t *testing.T) {
	deadlines := make(chan bool, 1)
	job := JobFunc(func(ctx context.Context) error {
		_, ok := ctx.Deadline()
		select {
		case deadlines <- ok:
		default:
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = NewScheduler("deadline", job, time.Hour, 0, discardLogger()).Start(ctx) }()

	select {
	case ok := <-deadlines:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("job never ran")
	}
}

type stubSyncer struct {
	calls int
}

func (s *stubSyncer) Sync(ctx context.Context) (*domain.SyncStats, error) {
	s.calls++
	return &domain.SyncStats{}, nil
}

func TestSyncJob(t *testing.T) {
	syncer := &stubSyncer{}
	require.NoError(t, SyncJob(syncer).Run(context.Background()))
	assert.Equal(t, 1, syncer.calls)
}
