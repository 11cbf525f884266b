package sqlstore

import (
	"context"
	"fmt"

	"jotihunt/internal/domain"
)

// PlanStore is append-only: every generated plan is kept.
type PlanStore struct {
	db *DB
}

func NewPlanStore(db *DB) *PlanStore {
	return &PlanStore{db: db}
}

func (s *PlanStore) Create(ctx context.Context, p *domain.Plan) error {
	id, err := s.db.insertID(ctx, `
		INSERT INTO plans (item_id, item_title, plan_content, created_at)
		VALUES (?, ?, ?, ?)
		RETURNING id`,
		p.ItemID, p.ItemTitle, p.Content, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("create plan for item %d: %w", p.ItemID, err)
	}
	p.ID = id
	return nil
}

// ListByItem returns the plans of an item, newest first.
func (s *PlanStore) ListByItem(ctx context.Context, itemID int64) ([]domain.Plan, error) {
	plans := []domain.Plan{}
	err := s.db.selectAll(ctx, &plans, `
		SELECT id, item_id, item_title, plan_content, created_at
		FROM plans WHERE item_id = ?
		ORDER BY created_at DESC, id DESC`, itemID)
	if err != nil {
		return nil, fmt.Errorf("list plans for item %d: %w", itemID, err)
	}
	return plans, nil
}
