package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"jotihunt/internal/domain"
)

// PlanService asks the text-generation service for a plan to solve an item
// and keeps every answer.
type PlanService struct {
	items     ItemStore
	contents  ContentStore
	plans     PlanStore
	generator TextGenerator
	logger    *slog.Logger
	now       func() time.Time
}

// NewPlanService returns a PlanService. A nil generator disables generation.
func NewPlanService(items ItemStore, contents ContentStore, plans PlanStore, generator TextGenerator, logger *slog.Logger) *PlanService {
	return &PlanService{
		items:     items,
		contents:  contents,
		plans:     plans,
		generator: generator,
		logger:    logger.With("component", "planner"),
		now:       time.Now,
	}
}

// Generate creates and stores a new plan for the item. It fails with
// domain.ErrNotConfigured when no generator is set, and domain.ErrNotFound
// when the item or its content is missing.
func (s *PlanService) Generate(ctx context.Context, itemID int64) (*domain.Plan, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("text generation: %w", domain.ErrNotConfigured)
	}

	item, err := s.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}
	content, err := s.contents.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	text, err := s.generator.Generate(ctx, BuildPlanPrompt(item, content))
	if err != nil {
		return nil, fmt.Errorf("generate plan for item %d: %w", itemID, err)
	}
	s.logger.Info("plan generated", "item_id", itemID, "duration", time.Since(start))

	plan := &domain.Plan{
		ItemID:    item.ID,
		ItemTitle: item.Title,
		Content:   text,
		CreatedAt: s.now().UTC(),
	}
	if err := s.plans.Create(ctx, plan); err != nil {
		return nil, err
	}
	return plan, nil
}

// BuildPlanPrompt embeds the item and its message in the plan request.
func BuildPlanPrompt(item *domain.Item, content *domain.Content) string {
	return fmt.Sprintf(`Create a plan to solve the following %[1]s.

Title: %[2]s

Content: %[3]s

Give a step-by-step plan for this %[1]s. We cannot ask the organisers for help or clarification; it is a race to be the first to finish. Do not phrase the answer as a reply to this message. Format the answer as HTML, not Markdown, and write it in Dutch (Netherlands).`,
		item.Type, item.Title, content.Body())
}
