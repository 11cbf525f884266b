package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"jotihunt/internal/domain"
)

const itemColumns = `id, title, type, publish_at, retrieved_at, assigned_to, completed, reviewed, points`

type ItemStore struct {
	db *DB
}

func NewItemStore(db *DB) *ItemStore {
	return &ItemStore{db: db}
}

func (s *ItemStore) Get(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	err := s.db.get(ctx, &item, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get item %d: %w", id, err)
	}
	return &item, nil
}

func (s *ItemStore) List(ctx context.Context) ([]domain.Item, error) {
	items := []domain.Item{}
	err := s.db.selectAll(ctx, &items,
		`SELECT `+itemColumns+` FROM items ORDER BY publish_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	return items, nil
}

func (s *ItemStore) ListByType(ctx context.Context, t domain.ItemType) ([]domain.Item, error) {
	items := []domain.Item{}
	err := s.db.selectAll(ctx, &items,
		`SELECT `+itemColumns+` FROM items WHERE type = ? ORDER BY publish_at DESC, id DESC`, string(t))
	if err != nil {
		return nil, fmt.Errorf("list %s items: %w", t, err)
	}
	return items, nil
}

// Upsert inserts item or replaces the stored row with the same id.
func (s *ItemStore) Upsert(ctx context.Context, item *domain.Item) error {
	query := `
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			title = excluded.title,
			type = excluded.type,
			publish_at = excluded.publish_at,
			retrieved_at = excluded.retrieved_at,
			assigned_to = excluded.assigned_to,
			completed = excluded.completed,
			reviewed = excluded.reviewed,
			points = excluded.points`

	_, err := s.db.exec(ctx, query,
		item.ID,
		item.Title,
		string(item.Type),
		item.PublishAt.UTC(),
		item.RetrievedAt.UTC(),
		item.AssignedTo,
		item.Completed,
		item.Reviewed,
		item.Points,
	)
	if err != nil {
		return fmt.Errorf("upsert item %d: %w", item.ID, err)
	}
	return nil
}

// UpdateLocal overwrites the locally owned fields of an existing item.
func (s *ItemStore) UpdateLocal(ctx context.Context, id int64, local domain.LocalFields) error {
	res, err := s.db.exec(ctx, `
		UPDATE items
		SET assigned_to = ?, completed = ?, reviewed = ?, points = ?
		WHERE id = ?`,
		local.AssignedTo,
		local.Completed,
		local.Reviewed,
		local.Points,
		id,
	)
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update item %d: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return nil
}
