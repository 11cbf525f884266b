package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jotihunt/internal/domain"
)

type AreaStore struct {
	db *DB
}

func NewAreaStore(db *DB) *AreaStore {
	return &AreaStore{db: db}
}

func (s *AreaStore) GetCurrent(ctx context.Context, name string) (*domain.AreaStatus, error) {
	var status domain.AreaStatus
	err := s.db.get(ctx, &status,
		`SELECT name, status, last_updated FROM current_area_statuses WHERE name = ?`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("area %q: %w", name, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get area %q: %w", name, err)
	}
	return &status, nil
}

func (s *AreaStore) ListCurrent(ctx context.Context) ([]domain.AreaStatus, error) {
	statuses := []domain.AreaStatus{}
	err := s.db.selectAll(ctx, &statuses,
		`SELECT name, status, last_updated FROM current_area_statuses ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list area statuses: %w", err)
	}
	return statuses, nil
}

func (s *AreaStore) UpsertCurrent(ctx context.Context, status *domain.AreaStatus) error {
	query := `
		INSERT INTO current_area_statuses (name, status, last_updated)
		VALUES (?, ?, ?)
		ON CONFLICT (name) DO UPDATE SET
			status = excluded.status,
			last_updated = excluded.last_updated`

	if _, err := s.db.exec(ctx, query, status.Name, status.Status, status.LastUpdated.UTC()); err != nil {
		return fmt.Errorf("upsert area %q: %w", status.Name, err)
	}
	return nil
}

func (s *AreaStore) AppendHistory(ctx context.Context, change *domain.AreaStatusChange) error {
	id, err := s.db.insertID(ctx, `
		INSERT INTO area_status_history (area, status, recorded_at)
		VALUES (?, ?, ?)
		RETURNING id`,
		change.Area, change.Status, change.RecordedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("append history for area %q: %w", change.Area, err)
	}
	change.ID = id
	return nil
}

// History returns at most limit status changes of an area, newest first.
func (s *AreaStore) History(ctx context.Context, area string, limit int) ([]domain.AreaStatusChange, error) {
	changes := []domain.AreaStatusChange{}
	err := s.db.selectAll(ctx, &changes, `
		SELECT id, area, status, recorded_at
		FROM area_status_history
		WHERE area = ?
		ORDER BY recorded_at DESC, id DESC
		LIMIT ?`, area, limit)
	if err != nil {
		return nil, fmt.Errorf("area %q history: %w", area, err)
	}
	return changes, nil
}
