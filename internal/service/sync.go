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

type syncOutcome int

const (
	outcomeNew syncOutcome = iota
	outcomeUpdated
	outcomeUnchanged
)

// FeedSyncService mirrors the upstream article feed into the store. Upstream
// owns id, title, type and publish time; assignee, completion, review and
// points are carried over from the stored item.
type FeedSyncService struct {
	source    Source
	items     ItemStore
	contents  ContentStore
	latency   LatencyStore
	txManager TransactionManager
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewFeedSyncService(
	source Source,
	items ItemStore,
	contents ContentStore,
	latency LatencyStore,
	txManager TransactionManager,
	publisher Publisher,
	logger *slog.Logger,
) *FeedSyncService {
	return &FeedSyncService{
		source:    source,
		items:     items,
		contents:  contents,
		latency:   latency,
		txManager: txManager,
		publisher: publisher,
		logger:    logger.With("job", "feed"),
		now:       time.Now,
	}
}

// Sync runs one feed sync cycle. An unreachable upstream skips the cycle and
// is not an error.
func (s *FeedSyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	stats := &domain.SyncStats{Job: "feed"}

	fetchStart := time.Now()
	articles, err := s.source.FetchArticles(ctx)
	if err != nil {
		if answered(err) {
			recordUpstreamLatency(ctx, s.latency, s.logger, "/articles", fetchStart, s.now())
		}
		metrics.SyncFailures.WithLabelValues(stats.Job).Inc()
		s.logger.Error("upstream fetch failed, skipping cycle", "error", err)
		stats.Duration = time.Since(startTime)
		return stats, nil
	}
	recordUpstreamLatency(ctx, s.latency, s.logger, "/articles", fetchStart, s.now())

	stats.Fetched = len(articles)
	retrievedAt := s.now().UTC()

	for i := range articles {
		item, content, err := toItem(&articles[i], retrievedAt)
		if err != nil {
			stats.Rejected++
			s.logger.Warn("skipping feed item", "id", articles[i].ID, "type", articles[i].Type, "error", err)
			continue
		}
		if item.PublishAt.IsZero() {
			s.logger.Warn("feed item has no usable publish time, keeping stored or retrieval time",
				"id", item.ID, "publish_at", articles[i].PublishAt)
		}

		outcome, err := s.saveItem(ctx, item, content)
		if err != nil {
			stats.Errors++
			s.logger.Error("failed to save item", "id", item.ID, "error", err)
			continue
		}

		switch outcome {
		case outcomeNew:
			stats.New++
		case outcomeUpdated:
			stats.Updated++
		case outcomeUnchanged:
			stats.Unchanged++
			continue
		}

		if s.publisher != nil {
			if err := s.publisher.PublishItem(ctx, item, outcome == outcomeNew); err != nil {
				stats.Errors++
				s.logger.Warn("failed to publish item", "id", item.ID, "error", err)
			} else {
				stats.Published++
			}
		}
	}

	stats.Duration = time.Since(startTime)
	metrics.RecordSync(stats.Job, stats.Duration, map[string]int{
		"new":       stats.New,
		"updated":   stats.Updated,
		"unchanged": stats.Unchanged,
		"rejected":  stats.Rejected,
		"error":     stats.Errors,
	})

	s.logger.Info("sync completed",
		"fetched", stats.Fetched,
		"new", stats.New,
		"updated", stats.Updated,
		"unchanged", stats.Unchanged,
		"rejected", stats.Rejected,
		"errors", stats.Errors,
		"published", stats.Published,
		"duration", stats.Duration,
	)

	return stats, nil
}

// saveItem merges item with the stored row and writes it together with its
// content in one transaction.
func (s *FeedSyncService) saveItem(ctx context.Context, item *domain.Item, content *domain.Content) (syncOutcome, error) {
	var outcome syncOutcome

	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		existing, err := s.items.Get(txCtx, item.ID)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			outcome = outcomeNew
			item.ApplyLocal(domain.LocalFields{})
			if item.PublishAt.IsZero() {
				item.PublishAt = item.RetrievedAt
			}
		case err != nil:
			return fmt.Errorf("get item: %w", err)
		default:
			outcome = outcomeUpdated
			item.ApplyLocal(existing.Local())
			if item.PublishAt.IsZero() {
				item.PublishAt = existing.PublishAt
			}
			if existing.SameUpstream(item) {
				prev, err := s.contents.Get(txCtx, item.ID)
				switch {
				case err == nil && prev.Message == content.Message:
					outcome = outcomeUnchanged
				case err != nil && !errors.Is(err, domain.ErrNotFound):
					return fmt.Errorf("get content: %w", err)
				}
			}
		}

		if err := s.items.Upsert(txCtx, item); err != nil {
			return fmt.Errorf("upsert item: %w", err)
		}
		if err := s.contents.Upsert(txCtx, content); err != nil {
			return fmt.Errorf("upsert content: %w", err)
		}
		return nil
	})

	return outcome, err
}

func toItem(a *domain.FeedArticle, retrievedAt time.Time) (*domain.Item, *domain.Content, error) {
	itemType, ok := domain.ParseItemType(a.Type)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", domain.ErrUnknownType, a.Type)
	}

	// A zero PublishAt is filled in by saveItem.
	publishAt, _ := parseUpstreamTime(a.PublishAt)

	item := &domain.Item{
		ID:          a.ID,
		Title:       a.Title,
		Type:        itemType,
		PublishAt:   publishAt,
		RetrievedAt: retrievedAt,
	}
	return item, &domain.Content{ID: a.ID, Message: a.Message}, nil
}

// answered reports whether err came from a completed upstream response.
func answered(err error) bool {
	var statusErr *domain.UpstreamStatusError
	return errors.As(err, &statusErr)
}

func recordUpstreamLatency(ctx context.Context, store LatencyStore, logger *slog.Logger, endpoint string, start, end time.Time) {
	sample := domain.ResponseTimeSample{
		Endpoint:       endpoint,
		RecordedAt:     end.UTC(),
		ResponseTimeMs: float64(end.Sub(start).Microseconds()) / 1000,
	}
	if err := store.Record(ctx, domain.SeriesUpstream, sample); err != nil {
		logger.Warn("failed to record upstream response time", "error", err)
	}
}
