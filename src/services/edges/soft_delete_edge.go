package edges

import (
	"context"
	"errors"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/metrics"
)

// SoftDeleteEdge marca a aresta como removida. A linha continua legível via
// GetEdge(id, true). Caminhos memorizados que usavam a aresta e o cache de
// resultados das duas pontas são invalidados antes do retorno.
func (s *EdgeService) SoftDeleteEdge(ctx context.Context, id int64, actor *int64) (*entities.Edge, error) {
	edge, changed, err := s.writer.SoftDelete(ctx, id, actor)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.SoftDeleteEdge - %w", err)
	}

	if !changed {
		return edge, nil
	}

	metrics.EdgeMutations.WithLabelValues("deleted").Inc()

	if s.pathCache != nil {
		if _, err := s.pathCache.InvalidateByEdgeIDs(ctx, []int64{edge.ID}); err != nil {
			s.logger.Warn("Failed to invalidate cached paths", "error", err, "edge_id", edge.ID)
		}
	}

	s.afterMutation(ctx, domain.EdgeEventDeleted, *edge, actor)

	s.logger.Debug("Edge soft deleted", "edge_id", edge.ID, "edge_type_id", edge.EdgeTypeID)
	return edge, nil
}

// SoftDeleteByEndpoints remove a aresta ativa de (tipo, origem, destino).
// É o caminho usado quando um campo de relacionamento é limpo no registro.
func (s *EdgeService) SoftDeleteByEndpoints(
	ctx context.Context,
	edgeTypeSlug string,
	source domain.EdgeSource,
	target domain.NodeRef,
	actor *int64,
) (*entities.Edge, error) {
	if !source.Valid() {
		return nil, domain.NewValidationError("source", "exactly one of source record or caller must be set")
	}

	edgeType, err := s.registry.GetBySlug(ctx, edgeTypeSlug)
	if err != nil {
		if errors.Is(err, domain.ErrEdgeTypeNotFound) {
			return nil, domain.NewValidationError("edge_type", "unknown edge type %q", edgeTypeSlug)
		}
		return nil, fmt.Errorf("EdgeService.SoftDeleteByEndpoints - failed to load edge type: %w", err)
	}

	edge, err := s.writer.FindActiveByEndpoints(ctx, edgeType.ID, source, target)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.SoftDeleteByEndpoints - %w", err)
	}

	return s.SoftDeleteEdge(ctx, edge.ID, actor)
}
