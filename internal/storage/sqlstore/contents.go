package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jotihunt/internal/domain"
)

type ContentStore struct {
	db *DB
}

func NewContentStore(db *DB) *ContentStore {
	return &ContentStore{db: db}
}

func (s *ContentStore) Get(ctx context.Context, id int64) (*domain.Content, error) {
	var c domain.Content
	err := s.db.get(ctx, &c, `SELECT id, message FROM content WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("content %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get content %d: %w", id, err)
	}
	return &c, nil
}

func (s *ContentStore) Upsert(ctx context.Context, c *domain.Content) error {
	_, err := s.db.exec(ctx, `
		INSERT INTO content (id, message) VALUES (?, ?)
		ON CONFLICT (id) DO UPDATE SET message = excluded.message`,
		c.ID, c.Message,
	)
	if err != nil {
		return fmt.Errorf("upsert content %d: %w", c.ID, err)
	}
	return nil
}
