package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"jotihunt/internal/domain"
)

type ItemStore interface {
	Get(ctx context.Context, id int64) (*domain.Item, error)
	Upsert(ctx context.Context, item *domain.Item) error
}

type ContentStore interface {
	Get(ctx context.Context, id int64) (*domain.Content, error)
	Upsert(ctx context.Context, content *domain.Content) error
}

type PlanStore interface {
	Create(ctx context.Context, plan *domain.Plan) error
}

type AreaStore interface {
	GetCurrent(ctx context.Context, name string) (*domain.AreaStatus, error)
	UpsertCurrent(ctx context.Context, status *domain.AreaStatus) error
	AppendHistory(ctx context.Context, change *domain.AreaStatusChange) error
}

type LatencyStore interface {
	Record(ctx context.Context, series domain.Series, sample domain.ResponseTimeSample) error
}

type Source interface {
	FetchArticles(ctx context.Context) ([]domain.FeedArticle, error)
	FetchAreas(ctx context.Context) ([]domain.FeedArea, error)
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	PublishItem(ctx context.Context, item *domain.Item, isNew bool) error
	PublishAreaChange(ctx context.Context, change *domain.AreaStatusChange) error
	Close() error
}

type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}
