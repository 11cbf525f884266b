package sqlstore

import (
	"context"
	"fmt"
	"time"

	"jotihunt/internal/domain"
)

type LatencyStore struct {
	db *DB
}

func NewLatencyStore(db *DB) *LatencyStore {
	return &LatencyStore{db: db}
}

func seriesTable(series domain.Series) (string, error) {
	switch series {
	case domain.SeriesUpstream:
		return "upstream_response_times", nil
	case domain.SeriesAPI:
		return "api_response_times", nil
	}
	return "", fmt.Errorf("unknown response time series %q", series)
}

func (s *LatencyStore) Record(ctx context.Context, series domain.Series, sample domain.ResponseTimeSample) error {
	table, err := seriesTable(series)
	if err != nil {
		return err
	}
	_, err = s.db.exec(ctx,
		`INSERT INTO `+table+` (endpoint, recorded_at, response_time_ms) VALUES (?, ?, ?)`,
		sample.Endpoint, sample.RecordedAt.UTC(), sample.ResponseTimeMs,
	)
	if err != nil {
		return fmt.Errorf("record %s response time: %w", series, err)
	}
	return nil
}

// Recent returns the latest samples of a series, newest first.
func (s *LatencyStore) Recent(ctx context.Context, series domain.Series, limit int) ([]domain.ResponseTimeSample, error) {
	table, err := seriesTable(series)
	if err != nil {
		return nil, err
	}
	samples := []domain.ResponseTimeSample{}
	err = s.db.selectAll(ctx, &samples, `
		SELECT id, endpoint, recorded_at, response_time_ms FROM `+table+`
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent %s response times: %w", series, err)
	}
	return samples, nil
}

// Between returns the samples recorded in [from, to), oldest first.
func (s *LatencyStore) Between(ctx context.Context, series domain.Series, from, to time.Time) ([]domain.ResponseTimeSample, error) {
	table, err := seriesTable(series)
	if err != nil {
		return nil, err
	}
	samples := []domain.ResponseTimeSample{}
	err = s.db.selectAll(ctx, &samples, `
		SELECT id, endpoint, recorded_at, response_time_ms FROM `+table+`
		WHERE recorded_at >= ? AND recorded_at < ?
		ORDER BY recorded_at, id`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("%s response times between: %w", series, err)
	}
	return samples, nil
}

// Dates lists the distinct days (YYYY-MM-DD, UTC) that have samples, newest first.
func (s *LatencyStore) Dates(ctx context.Context, series domain.Series) ([]string, error) {
	table, err := seriesTable(series)
	if err != nil {
		return nil, err
	}

	day := `substr(recorded_at, 1, 10)`
	if s.db.dialect == DialectPostgres {
		day = `to_char(recorded_at AT TIME ZONE 'UTC', 'YYYY-MM-DD')`
	}

	dates := []string{}
	err = s.db.selectAll(ctx, &dates, `SELECT DISTINCT `+day+` AS day FROM `+table+` ORDER BY day DESC`)
	if err != nil {
		return nil, fmt.Errorf("%s response time dates: %w", series, err)
	}
	return dates, nil
}
