package edgetypes

import (
	"context"
	"errors"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
)

// CanCreateEdge verifica as restrições de coleção do tipo.
func (r *Registry) CanCreateEdge(edgeType entities.EdgeType, sourceCollectionID int64, targetCollectionID int64) bool {
	if edgeType.IsDeleted {
		return false
	}
	return edgeType.AllowsCollections(sourceCollectionID, targetCollectionID)
}

// CanAssign é a versão de CanCreateEdge para arestas de atribuição, que não
// têm coleção de origem.
func (r *Registry) CanAssign(edgeType entities.EdgeType, targetCollectionID int64) bool {
	if edgeType.IsDeleted {
		return false
	}
	return edgeType.AllowsTarget(targetCollectionID)
}

// CanCreateEdgeBySlug é usada pela camada de API para pré-validar uma mutação.
func (r *Registry) CanCreateEdgeBySlug(ctx context.Context, slug string, sourceCollectionID int64, targetCollectionID int64) (bool, error) {
	edgeType, err := r.store.GetBySlug(ctx, slug)
	if err != nil {
		if errors.Is(err, domain.ErrEdgeTypeNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("Registry.CanCreateEdgeBySlug - %w", err)
	}

	return r.CanCreateEdge(*edgeType, sourceCollectionID, targetCollectionID), nil
}

func (r *Registry) GetBySlug(ctx context.Context, slug string) (*entities.EdgeType, error) {
	return r.store.GetBySlug(ctx, slug)
}

func (r *Registry) GetByID(ctx context.Context, id int64) (*entities.EdgeType, error) {
	return r.store.GetByID(ctx, id)
}

// ResolveSlugs traduz slugs para tipos. Slugs desconhecidos são descartados.
func (r *Registry) ResolveSlugs(ctx context.Context, slugs []string) ([]entities.EdgeType, error) {
	if len(slugs) == 0 {
		return []entities.EdgeType{}, nil
	}

	edgeTypes, err := r.store.GetBySlugs(ctx, slugs)
	if err != nil {
		return nil, fmt.Errorf("Registry.ResolveSlugs - %w", err)
	}

	return edgeTypes, nil
}

// GetByIDs inclui tipos removidos: arestas antigas ainda precisam do slug.
func (r *Registry) GetByIDs(ctx context.Context, ids []int64) (map[int64]entities.EdgeType, error) {
	edgeTypes, err := r.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("Registry.GetByIDs - %w", err)
	}

	byID := make(map[int64]entities.EdgeType, len(edgeTypes))
	for _, edgeType := range edgeTypes {
		byID[edgeType.ID] = edgeType
	}

	return byID, nil
}

// DeleteType faz soft delete de um tipo de usuário. Tipos de sistema nunca são removidos.
func (r *Registry) DeleteType(ctx context.Context, id int64) error {
	edgeType, err := r.store.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("Registry.DeleteType - %w", err)
	}

	if edgeType.IsSystem {
		return fmt.Errorf("Registry.DeleteType - %q: %w", edgeType.Slug, domain.ErrSystemEdgeType)
	}

	if err := r.store.SoftDelete(ctx, id); err != nil {
		return fmt.Errorf("Registry.DeleteType - %w", err)
	}

	r.logger.Info("Edge type deleted", "edge_type_id", id, "slug", edgeType.Slug)
	return nil
}
