package query

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/infra/metrics"
	"relgraph/src/services/permissions"
	"sort"
	"strings"
	"time"
)

// Traverse expande o grafo a partir da semente e devolve arestas e registros
// visíveis para o caller. Nunca retorna erro: semente inexistente gera
// resultado vazio e falha de storage vem no campo Error.
func (e *Engine) Traverse(ctx context.Context, caller domain.Caller, request domain.TraversalRequest) *domain.TraversalResult {
	startedAt := time.Now()
	defer metrics.ObserveQuery("traverse", startedAt)

	request, err := normalizeTraversal(request)
	if err != nil {
		return e.degraded("traverse", err)
	}

	if err := ctx.Err(); err != nil {
		return e.degraded("traverse", err)
	}

	callerType, err := e.resolveCallerType(ctx, caller)
	if err != nil {
		return e.degraded("traverse", fmt.Errorf("failed to resolve caller type: %w", err))
	}
	caller.Type = callerType

	cacheKey := traversalCacheKey(caller, request)
	flightKey := cacheKey

	var generation int64
	cacheable := false

	if e.resultCache != nil {
		var cached domain.TraversalResult
		found, err := e.resultCache.GetJSON(ctx, cacheKey, &cached)
		if err != nil {
			// Log erro de cache mas continua com PostgreSQL
			e.logger.Warn("Result cache error", "key", cacheKey, "error", err)
			metrics.CacheRequests.WithLabelValues("result", "error").Inc()
		}
		if found && err == nil {
			metrics.CacheRequests.WithLabelValues("result", "hit").Inc()
			e.logger.Debug("Cache HIT", "key", cacheKey)
			return &cached
		}
		metrics.CacheRequests.WithLabelValues("result", "miss").Inc()

		// Sem geração não dá para provar que o resultado é posterior a uma
		// invalidação concorrente: calcula mas não grava.
		generation, err = e.resultCache.Generation(ctx)
		if err != nil {
			e.logger.Warn("Result cache generation unavailable", "key", cacheKey, "error", err)
		} else {
			cacheable = true
		}
		flightKey = fmt.Sprintf("%s:%d:%t", cacheKey, generation, cacheable)
	}

	// O voo não herda o cancelamento de quem o iniciou: os outros callers
	// esperam pelo mesmo resultado.
	flight := e.group.DoChan(flightKey, func() (interface{}, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.flightTimeout)
		defer cancel()

		result, dependsOn := e.traverse(flightCtx, caller, request)
		if cacheable && result.Error == "" && dependsOn != nil {
			e.storeResult(cacheKey, result, dependsOn, generation)
		}
		return result, nil
	})

	select {
	case <-ctx.Done():
		return e.degraded("traverse", ctx.Err())
	case shared := <-flight:
		// Cada caller recebe sua cópia; o original pertence à gravação no cache.
		return shared.Val.(*domain.TraversalResult).Clone()
	}
}

func normalizeTraversal(request domain.TraversalRequest) (domain.TraversalRequest, error) {
	if request.Direction == "" {
		request.Direction = domain.DirectionForward
	}
	if !request.Direction.Valid() {
		return request, fmt.Errorf("invalid direction %q", request.Direction)
	}

	request.MaxDepth = clampDepth(request.MaxDepth, domain.DefaultTraversalDepth)

	if request.Limit < 0 {
		request.Limit = 0
	}

	return request, nil
}

// traverse devolve o resultado e os registros dos quais ele depende (para o
// registry de invalidação). dependsOn nil significa "não cachear".
func (e *Engine) traverse(ctx context.Context, caller domain.Caller, request domain.TraversalRequest) (*domain.TraversalResult, []domain.NodeRef) {
	exists, err := e.records.RecordExists(ctx, request.Seed)
	if err != nil {
		return e.degraded("traverse", fmt.Errorf("failed to check seed record: %w", err)), nil
	}
	if !exists {
		return domain.EmptyTraversalResult(), nil
	}

	var edgeTypeIDs []int64
	if len(request.EdgeTypes) > 0 {
		edgeTypes, err := e.edgeTypes.ResolveSlugs(ctx, request.EdgeTypes)
		if err != nil {
			return e.degraded("traverse", err), nil
		}
		if len(edgeTypes) == 0 {
			return domain.EmptyTraversalResult(), []domain.NodeRef{request.Seed}
		}
		for _, edgeType := range edgeTypes {
			edgeTypeIDs = append(edgeTypeIDs, edgeType.ID)
		}
	}

	filter, err := e.policies.ForCallerType(ctx, caller.Type)
	if err != nil {
		return e.degraded("traverse", err), nil
	}

	if err := ctx.Err(); err != nil {
		return e.degraded("traverse", err), nil
	}

	rows, err := e.graph.Expand(ctx, domain.ExpandQuery{
		Seed:        request.Seed,
		EdgeTypeIDs: edgeTypeIDs,
		MaxDepth:    request.MaxDepth,
		Direction:   request.Direction,
	})
	if err != nil {
		return e.degraded("traverse", err), nil
	}

	dependsOn := []domain.NodeRef{request.Seed}
	for _, row := range rows {
		dependsOn = append(dependsOn, row.Source, row.Target)
	}

	// O filtro roda antes da deduplicação: uma linha cujo caminho usa um passo
	// proibido some junto com o passo.
	allowed := make([]domain.ExpansionRow, 0, len(rows))
	for _, row := range rows {
		if filter.AllowsRow(row) {
			allowed = append(allowed, row)
		}
	}

	result, err := e.assemble(ctx, caller, request, filter, allowed)
	if err != nil {
		return e.degraded("traverse", err), nil
	}

	return result, dependsOn
}

func (e *Engine) assemble(
	ctx context.Context,
	caller domain.Caller,
	request domain.TraversalRequest,
	filter *permissions.Filter,
	rows []domain.ExpansionRow,
) (*domain.TraversalResult, error) {
	result := domain.EmptyTraversalResult()
	if len(rows) == 0 {
		return result, nil
	}

	typeIDs := make([]int64, 0)
	seenTypes := make(map[int64]bool)
	for _, row := range rows {
		if !seenTypes[row.EdgeTypeID] {
			seenTypes[row.EdgeTypeID] = true
			typeIDs = append(typeIDs, row.EdgeTypeID)
		}
	}

	edgeTypes, err := e.edgeTypes.GetByIDs(ctx, typeIDs)
	if err != nil {
		return nil, err
	}

	type reached struct {
		ref        domain.NodeRef
		depth      int
		edgeTypeID int64
	}

	seenEdges := make(map[int64]bool)
	seenPaths := make(map[string]bool)
	seenRecords := make(map[domain.NodeRef]bool)
	recordOrder := make([]reached, 0)

	// As linhas chegam ordenadas por profundidade: a primeira ocorrência de
	// uma aresta ou registro é a de menor profundidade.
	for _, row := range rows {
		if row.Depth > result.MaxDepthReached {
			result.MaxDepthReached = row.Depth
		}

		if !seenEdges[row.EdgeID] {
			seenEdges[row.EdgeID] = true
			result.Edges = append(result.Edges, domain.TraversedEdge{
				ID:           row.EdgeID,
				EdgeTypeID:   row.EdgeTypeID,
				EdgeTypeSlug: edgeTypes[row.EdgeTypeID].Slug,
				Source:       row.Source,
				Target:       row.Target,
				Direction:    row.Direction,
				Depth:        row.Depth,
				Strength:     row.Strength,
				Role:         row.Role,
				Metadata:     row.Metadata,
			})
		}

		if request.IncludePaths {
			pathKey := fmt.Sprint(row.PathEdgeIDs)
			if !seenPaths[pathKey] {
				seenPaths[pathKey] = true
				result.Paths = append(result.Paths, append([]int64(nil), row.PathEdgeIDs...))
			}
		}

		farSide := row.FarSide()
		if farSide == request.Seed || seenRecords[farSide] {
			continue
		}
		seenRecords[farSide] = true
		recordOrder = append(recordOrder, reached{ref: farSide, depth: row.Depth, edgeTypeID: row.EdgeTypeID})
	}

	refs := make([]domain.NodeRef, len(recordOrder))
	for i, r := range recordOrder {
		refs[i] = r.ref
	}

	fieldsByRecord, err := e.records.GetRecordFields(ctx, refs)
	if err != nil {
		return nil, err
	}

	for _, r := range recordOrder {
		fields, ok := fieldsByRecord[r.ref]
		if !ok {
			continue
		}

		result.Records = append(result.Records, domain.RecordView{
			NodeRef: r.ref,
			Depth:   r.depth,
			Fields:  reduceFields(filter, caller, r.edgeTypeID, r.ref.CollectionID, fields),
		})
	}

	result.TotalCount = len(result.Records)

	if request.Limit > 0 {
		if len(result.Records) > request.Limit {
			result.Records = result.Records[:request.Limit]
		}
		if len(result.Edges) > request.Limit {
			result.Edges = result.Edges[:request.Limit]
		}
	}

	return result, nil
}

// reduceFields mantém só os campos visíveis. Sem baseline para a coleção,
// todos os campos do registro entram como visíveis antes da policy.
func reduceFields(filter *permissions.Filter, caller domain.Caller, edgeTypeID int64, collectionID int64, fields map[string]interface{}) map[string]interface{} {
	baseline, ok := caller.FieldPermissions[collectionID]
	if !ok {
		baseline = make(map[string]bool, len(fields))
		for field := range fields {
			baseline[field] = true
		}
	}

	visible := filter.VisibleFields(edgeTypeID, collectionID, baseline)

	reduced := make(map[string]interface{}, len(visible))
	for field, allowed := range visible {
		if !allowed {
			continue
		}
		if value, ok := fields[field]; ok {
			reduced[field] = value
		}
	}

	return reduced
}

func (e *Engine) degraded(operation string, err error) *domain.TraversalResult {
	metrics.QueryErrors.WithLabelValues(operation).Inc()
	e.logger.Error("Traversal failed", "operation", operation, "error", err)

	result := domain.EmptyTraversalResult()
	result.Error = err.Error()
	return result
}

func (e *Engine) storeResult(cacheKey string, result *domain.TraversalResult, dependsOn []domain.NodeRef, generation int64) {
	if e.resultCache == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cacheWriteTimeout)
		defer cancel()

		if err := e.resultCache.SetJSON(ctx, cacheKey, result, dependsOn, generation); err != nil {
			e.logger.Warn("Failed to cache traversal result", "key", cacheKey, "error", err)
		}
	}()
}

// traversalCacheKey identifica caller + operação + argumentos. O baseline de
// campos entra na chave porque muda o resultado.
func traversalCacheKey(caller domain.Caller, request domain.TraversalRequest) string {
	edgeTypes := append([]string(nil), request.EdgeTypes...)
	sort.Strings(edgeTypes)

	baseline, _ := json.Marshal(caller.FieldPermissions)

	keyData := fmt.Sprintf("traverse:caller:%d:%s:fields:%s:seed:%s:types:%s:depth:%d:dir:%s:paths:%t:limit:%d",
		caller.ID,
		caller.Type,
		baseline,
		request.Seed,
		strings.Join(edgeTypes, ","),
		request.MaxDepth,
		request.Direction,
		request.IncludePaths,
		request.Limit,
	)

	hash := md5.Sum([]byte(keyData))
	return fmt.Sprintf("graph:traverse:%x", hash)
}
