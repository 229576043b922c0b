package query

import (
	"context"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/metrics"
	"time"
)

// ShortestPath busca o caminho com menos arestas de source até target, só no
// sentido forward. O path cache é consultado antes e alimentado depois, mas
// só para callers sem nenhuma policy: o cache guarda o caminho global, que
// pode não respeitar os tipos proibidos nem a profundidade máxima por tipo
// de um caller restrito.
func (e *Engine) ShortestPath(ctx context.Context, caller domain.Caller, request domain.ShortestPathRequest) *domain.ShortestPathResult {
	startedAt := time.Now()
	defer metrics.ObserveQuery("shortest_path", startedAt)

	maxDepth := clampDepth(request.MaxDepth, DefaultShortestPathDepth)

	if err := ctx.Err(); err != nil {
		return e.pathFailed(err)
	}

	if request.Source == request.Target {
		return &domain.ShortestPathResult{Found: true, Path: []domain.PathHop{}, PathStrength: 1}
	}

	for _, ref := range []domain.NodeRef{request.Source, request.Target} {
		exists, err := e.records.RecordExists(ctx, ref)
		if err != nil {
			return e.pathFailed(fmt.Errorf("failed to check record %s: %w", ref, err))
		}
		if !exists {
			return notFoundPath()
		}
	}

	filter, err := e.filterFor(ctx, caller)
	if err != nil {
		return e.pathFailed(err)
	}

	useCache := e.pathCache != nil && !filter.Restricted()

	if useCache {
		if result, ok := e.fromPathCache(ctx, request, maxDepth); ok {
			return result
		}
	}

	edgeIDs, err := e.graph.FindShortestPath(ctx, request.Source, request.Target, maxDepth, filter.DeniedForward(), filter.ForwardDepthLimits())
	if err != nil {
		return e.pathFailed(err)
	}
	if len(edgeIDs) == 0 {
		return notFoundPath()
	}

	edges, err := e.graph.GetEdgesByIDs(ctx, edgeIDs, false)
	if err != nil {
		return e.pathFailed(err)
	}
	if len(edges) != len(edgeIDs) {
		// Uma aresta do caminho foi removida entre as duas consultas.
		return notFoundPath()
	}

	result := buildPathResult(edges)

	if useCache {
		e.writePath(ctx, request, edges, result.PathStrength)
	}

	return result
}

func (e *Engine) fromPathCache(ctx context.Context, request domain.ShortestPathRequest, maxDepth int) (*domain.ShortestPathResult, bool) {
	cached, err := e.pathCache.Lookup(ctx, request.Source, request.Target, e.now())
	if err != nil {
		metrics.CacheRequests.WithLabelValues("path", "error").Inc()
		e.logger.Warn("Path cache lookup failed", "source", request.Source.String(), "target", request.Target.String(), "error", err)
		return nil, false
	}

	if cached == nil || cached.ExpiredAt(e.now()) {
		metrics.CacheRequests.WithLabelValues("path", "miss").Inc()
		return nil, false
	}

	if cached.PathLength > maxDepth {
		// O menor caminho conhecido já excede o limite pedido.
		metrics.CacheRequests.WithLabelValues("path", "hit").Inc()
		result := notFoundPath()
		result.FromCache = true
		return result, true
	}

	edges, err := e.graph.GetEdgesByIDs(ctx, cached.EdgeIDs, false)
	if err != nil {
		metrics.CacheRequests.WithLabelValues("path", "error").Inc()
		return nil, false
	}
	if gone := untraversableIDs(cached.EdgeIDs, edges); len(gone) > 0 {
		// Uma aresta do caminho sumiu ou ficou inativa: a entrada e qualquer
		// outra que passe por ela não servem para mais ninguém.
		metrics.CacheRequests.WithLabelValues("path", "miss").Inc()
		if _, err := e.pathCache.InvalidateByEdgeIDs(ctx, gone); err != nil {
			e.logger.Warn("Failed to drop stale cached path", "source", request.Source.String(), "target", request.Target.String(), "error", err)
		}
		return nil, false
	}

	metrics.CacheRequests.WithLabelValues("path", "hit").Inc()

	result := buildPathResult(edges)
	result.PathStrength = cached.PathStrength
	result.FromCache = true
	return result, true
}

func untraversableIDs(ids []int64, edges []entities.Edge) []int64 {
	alive := make(map[int64]bool, len(edges))
	for _, edge := range edges {
		if edge.IsTraversable() {
			alive[edge.ID] = true
		}
	}

	gone := make([]int64, 0)
	for _, id := range ids {
		if !alive[id] {
			gone = append(gone, id)
		}
	}
	return gone
}

func (e *Engine) writePath(ctx context.Context, request domain.ShortestPathRequest, edges []entities.Edge, strength float64) {
	edgeIDs := make([]int64, len(edges))
	edgeTypeIDs := make([]int64, len(edges))
	for i, edge := range edges {
		edgeIDs[i] = edge.ID
		edgeTypeIDs[i] = edge.EdgeTypeID
	}

	err := e.pathCache.Upsert(ctx, entities.CachedPath{
		SourceCollectionID: request.Source.CollectionID,
		SourceRecordID:     request.Source.RecordID,
		TargetCollectionID: request.Target.CollectionID,
		TargetRecordID:     request.Target.RecordID,
		PathLength:         len(edges),
		EdgeIDs:            edgeIDs,
		EdgeTypeIDs:        edgeTypeIDs,
		PathStrength:       strength,
		ExpiresAt:          e.now().Add(e.pathTTL),
	})
	if err != nil {
		e.logger.Warn("Failed to cache shortest path", "source", request.Source.String(), "target", request.Target.String(), "error", err)
	}
}

// buildPathResult monta os hops na ordem do caminho. A força do caminho é o
// produto das forças das arestas.
func buildPathResult(edges []entities.Edge) *domain.ShortestPathResult {
	result := &domain.ShortestPathResult{
		Found:        true,
		PathLength:   len(edges),
		Path:         make([]domain.PathHop, 0, len(edges)),
		PathStrength: 1,
	}

	for _, edge := range edges {
		from := domain.NodeRef{}
		if edge.SourceCollectionID != nil && edge.SourceRecordID != nil {
			from = domain.NodeRef{CollectionID: *edge.SourceCollectionID, RecordID: *edge.SourceRecordID}
		}

		result.Path = append(result.Path, domain.PathHop{
			EdgeID:     edge.ID,
			EdgeTypeID: edge.EdgeTypeID,
			From:       from,
			To:         domain.NodeRef{CollectionID: edge.TargetCollectionID, RecordID: edge.TargetRecordID},
			Strength:   edge.Strength,
		})
		result.PathStrength *= edge.Strength
	}

	return result
}

func notFoundPath() *domain.ShortestPathResult {
	return &domain.ShortestPathResult{Found: false, Path: []domain.PathHop{}}
}

func (e *Engine) pathFailed(err error) *domain.ShortestPathResult {
	metrics.QueryErrors.WithLabelValues("shortest_path").Inc()
	e.logger.Error("Shortest path failed", "error", err)

	result := notFoundPath()
	result.Error = err.Error()
	return result
}
