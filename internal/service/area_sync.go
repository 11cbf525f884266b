package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"jotihunt/internal/domain"
	"jotihunt/internal/metrics"
)

// AreaSyncService mirrors the upstream area statuses. The current status is
// overwritten on every cycle; a history row is added only when the status
// differs from the one stored before.
type AreaSyncService struct {
	source    Source
	areas     AreaStore
	latency   LatencyStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewAreaSyncService(
	source Source,
	areas AreaStore,
	latency LatencyStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *AreaSyncService {
	return &AreaSyncService{
		source:    source,
		areas:     areas,
		latency:   latency,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("job", "areas"),
		now:       time.Now,
	}
}

func (s *AreaSyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	stats := &domain.SyncStats{Job: "areas"}

	fetchStart := time.Now()
	areas, err := s.source.FetchAreas(ctx)
	if err != nil {
		if answered(err) {
			recordUpstreamLatency(ctx, s.latency, s.logger, "/areas", fetchStart, s.now())
		}
		metrics.SyncFailures.WithLabelValues(stats.Job).Inc()
		s.logger.Error("upstream fetch failed, skipping cycle", "error", err)
		stats.Duration = time.Since(startTime)
		return stats, nil
	}
	recordUpstreamLatency(ctx, s.latency, s.logger, "/areas", fetchStart, s.now())

	stats.Fetched = len(areas)

	for _, area := range areas {
		if area.Name == "" {
			stats.Rejected++
			s.logger.Warn("skipping area without name", "status", area.Status)
			continue
		}

		updatedAt, err := parseUpstreamTime(area.UpdatedAt)
		if err != nil {
			s.logger.Warn("area has no usable timestamp, using retrieval time", "area", area.Name, "error", err)
			updatedAt = s.now().UTC()
		}

		status := &domain.AreaStatus{Name: area.Name, Status: area.Status, LastUpdated: updatedAt}
		change, err := s.saveArea(ctx, status)
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to save area status", "area", area.Name, "error", err)
			continue
		}

		if change == nil {
			stats.Unchanged++
			continue
		}
		stats.Updated++
		stats.HistoryAppended++
		s.logger.Info("area status changed", "area", change.Area, "status", change.Status)

		if s.publisher != nil {
			if err := s.publisher.PublishAreaChange(ctx, change); err != nil {
				stats.Errors++
				s.logger.Warn("failed to publish area change", "area", change.Area, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	stats.Duration = time.Since(startTime)
	metrics.RecordSync(stats.Job, stats.Duration, map[string]int{
		"changed":   stats.Updated,
		"unchanged": stats.Unchanged,
		"rejected":  stats.Rejected,
		"error":     stats.Errors,
	})

	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"changed", stats.Updated,
		"unchanged", stats.Unchanged,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)

	return stats, nil
}

// saveArea returns the appended history row, or nil when the status did not
// change.
func (s *AreaSyncService) saveArea(ctx context.Context, status *domain.AreaStatus) (*domain.AreaStatusChange, error) {
	var change *domain.AreaStatusChange

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		change = nil

		prev, err := s.areas.GetCurrent(txCtx, status.Name)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get current status: %w", err)
		}

		if err := s.areas.UpsertCurrent(txCtx, status); err != nil {
			return fmt.Errorf("upsert current status: %w", err)
		}

		if prev != nil && prev.Status == status.Status {
			return nil
		}

		change = &domain.AreaStatusChange{
			Area:       status.Name,
			Status:     status.Status,
			RecordedAt: status.LastUpdated,
		}
		if err := s.areas.AppendHistory(txCtx, change); err != nil {
			return fmt.Errorf("append history: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}
