package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"jotihunt/internal/domain"
)

type memoryLatency struct {
	mu      sync.Mutex
	samples []domain.ResponseTimeSample
	series  []domain.Series
	err     error
}

func (m *memoryLatency) Record(_ context.Context, series domain.Series, sample domain.ResponseTimeSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.series = append(m.series, series)
	m.samples = append(m.samples, sample)
	return nil
}

func (m *memoryLatency) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.samples)
}

func TestLatencyRecorder_DropsWhenFull(t *testing.T) {
	rec := NewLatencyRecorder(&memoryLatency{}, 2, discardLogger())
	now := time.Now()

	assert.True(t, rec.Observe("/api/a", now, time.Millisecond))
	assert.True(t, rec.Observe("/api/b", now, time.Millisecond))
	assert.False(t, rec.Observe("/api/c", now, time.Millisecond))
}

func TestLatencyRecorder_DrainsOnShutdown(t *testing.T) {
	store := &memoryLatency{}
	rec := NewLatencyRecorder(store, 8, discardLogger())
	at := time.Date(2026, 10, 12, 9, 0, 0, 0, time.FixedZone("CEST", 2*3600))

	require.True(t, rec.Observe("/api/stats", at, 1500*time.Microsecond))
	require.True(t, rec.Observe("/api/item/1", at, 2*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, rec.Start(ctx))

	require.Equal(t, 2, store.count())
	assert.Equal(t, []domain.Series{domain.SeriesAPI, domain.SeriesAPI}, store.series)
	assert.Equal(t, 1.5, store.samples[0].ResponseTimeMs)
	assert.Equal(t, time.UTC, store.samples[0].RecordedAt.Location())
	assert.True(t, at.Equal(store.samples[0].RecordedAt))
}

func TestLatencyRecorder_StoreErrorsDoNotStop(t *testing.T) {
	store := &memoryLatency{err: errors.New("database is locked")}
	rec := NewLatencyRecorder(store, 8, discardLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- rec.Start(ctx) }()

	rec.Observe("/api/stats", time.Now(), time.Millisecond)
	assert.Eventually(t, func() bool { return len(rec.samples) == 0 }, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	store.err = nil
	store.mu.Unlock()
	rec.Observe("/api/stats", time.Now(), time.Millisecond)
	assert.Eventually(t, func() bool { return store.count() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
