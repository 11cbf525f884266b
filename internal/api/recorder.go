package api

import (
	"context"
	"log/slog"
	"time"

	"jotihunt/internal/domain"
)

type LatencyWriter interface {
	Record(ctx context.Context, series domain.Series, sample domain.ResponseTimeSample) error
}

// LatencyRecorder persists API response times off the request path. Samples
// are dropped when the buffer is full.
type LatencyRecorder struct {
	store   LatencyWriter
	samples chan domain.ResponseTimeSample
	logger  *slog.Logger
}

func NewLatencyRecorder(store LatencyWriter, buffer int, logger *slog.Logger) *LatencyRecorder {
	if buffer <= 0 {
		buffer = 256
	}
	return &LatencyRecorder{
		store:   store,
		samples: make(chan domain.ResponseTimeSample, buffer),
		logger:  logger.With("component", "latency-recorder"),
	}
}

// Observe queues a sample and reports whether it was accepted.
func (r *LatencyRecorder) Observe(endpoint string, at time.Time, d time.Duration) bool {
	sample := domain.ResponseTimeSample{
		Endpoint:       endpoint,
		RecordedAt:     at.UTC(),
		ResponseTimeMs: float64(d.Microseconds()) / 1000,
	}
	select {
	case r.samples <- sample:
		return true
	default:
		r.logger.Debug("latency sample dropped", "endpoint", endpoint)
		return false
	}
}

// Start writes queued samples until ctx is done, then drains what is left.
func (r *LatencyRecorder) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			return nil
		case sample := <-r.samples:
			r.write(ctx, sample)
		}
	}
}

func (r *LatencyRecorder) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case sample := <-r.samples:
			r.write(ctx, sample)
		default:
			return
		}
	}
}

func (r *LatencyRecorder) write(ctx context.Context, sample domain.ResponseTimeSample) {
	if err := r.store.Record(ctx, domain.SeriesAPI, sample); err != nil {
		r.logger.Warn("failed to record api latency",
			"endpoint", sample.Endpoint,
			"error", err,
		)
	}
}
