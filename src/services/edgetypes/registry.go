package edgetypes

import (
	"context"
	"log/slog"
	"relgraph/src/domain/entities"
)

// EdgeTypeStore é implementado por *repositories.EdgeTypeRepository.
type EdgeTypeStore interface {
	Create(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, error)
	InsertIfAbsent(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, bool, error)
	GetByID(ctx context.Context, id int64) (*entities.EdgeType, error)
	GetBySlug(ctx context.Context, slug string) (*entities.EdgeType, error)
	GetBySlugs(ctx context.Context, slugs []string) ([]entities.EdgeType, error)
	GetByIDs(ctx context.Context, ids []int64) ([]entities.EdgeType, error)
	SoftDelete(ctx context.Context, id int64) error
}

// Registry define os tipos de relacionamento: cardinalidade, direção e
// restrições de coleção.
type Registry struct {
	logger *slog.Logger
	store  EdgeTypeStore
}

func NewRegistry(logger *slog.Logger, store EdgeTypeStore) *Registry {
	return &Registry{logger: logger, store: store}
}
