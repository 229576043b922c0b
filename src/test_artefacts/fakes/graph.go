package fakes

import (
	"context"
	"encoding/json"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"sort"
	"sync"
	"time"
)

// Graph é um edge store em memória. Implementa os contratos de leitura do
// query.Engine e de escrita/leitura do edges.EdgeService com a mesma
// semântica das repositories Postgres (expansão com prevenção de ciclo por
// aresta, ressurreição, cardinalidade só entre arestas ativas).
type Graph struct {
	mu        sync.Mutex
	edges     map[int64]*entities.Edge
	edgeTypes map[int64]entities.EdgeType
	nextID    int64

	// Err, quando preenchido, é devolvido por todas as leituras e escritas.
	Err error

	// BeforeExpand roda fora do lock antes de cada expansão.
	BeforeExpand func(ctx context.Context)

	ExpandCalls       int
	ShortestPathCalls int
	LastExcluded      []int64
}

func NewGraph() *Graph {
	return &Graph{
		edges:     make(map[int64]*entities.Edge),
		edgeTypes: make(map[int64]entities.EdgeType),
	}
}

// AddEdgeType registra o tipo para que a expansão "both" conheça is_bidirectional.
func (g *Graph) AddEdgeType(edgeType entities.EdgeType) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edgeTypes[edgeType.ID] = edgeType
}

// Put grava a aresta como está. ID zero recebe o próximo id.
func (g *Graph) Put(edge entities.Edge) entities.Edge {
	g.mu.Lock()
	defer g.mu.Unlock()

	if edge.ID == 0 {
		g.nextID++
		edge.ID = g.nextID
	} else if edge.ID > g.nextID {
		g.nextID = edge.ID
	}
	if edge.Status == "" {
		edge.Status = entities.EdgeStatusActive
	}

	stored := edge
	g.edges[edge.ID] = &stored
	return stored
}

// Link cria uma aresta ativa entre dois registros.
func (g *Graph) Link(edgeTypeID int64, source domain.NodeRef, target domain.NodeRef) entities.Edge {
	collectionID, recordID := source.CollectionID, source.RecordID
	return g.Put(entities.Edge{
		EdgeTypeID:         edgeTypeID,
		SourceCollectionID: &collectionID,
		SourceRecordID:     &recordID,
		TargetCollectionID: target.CollectionID,
		TargetRecordID:     target.RecordID,
		Status:             entities.EdgeStatusActive,
		Strength:           entities.DefaultEdgeStrength,
		Metadata:           json.RawMessage(`{}`),
	})
}

func (g *Graph) Edge(id int64) (entities.Edge, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	edge, ok := g.edges[id]
	if !ok {
		return entities.Edge{}, false
	}
	return *edge, true
}

func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.edges)
}

type arc struct {
	edge      *entities.Edge
	from      domain.NodeRef
	to        domain.NodeRef
	direction domain.Direction
}

func sourceRef(edge *entities.Edge) (domain.NodeRef, bool) {
	if edge.SourceCollectionID == nil || edge.SourceRecordID == nil {
		return domain.NodeRef{}, false
	}
	return domain.NodeRef{CollectionID: *edge.SourceCollectionID, RecordID: *edge.SourceRecordID}, true
}

func targetRef(edge *entities.Edge) domain.NodeRef {
	return domain.NodeRef{CollectionID: edge.TargetCollectionID, RecordID: edge.TargetRecordID}
}

func containsID(ids []int64, id int64) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func (g *Graph) arcs(query domain.ExpandQuery) []arc {
	result := make([]arc, 0)
	for _, edge := range g.edges {
		if !edge.IsTraversable() || edge.IsAssignment() {
			continue
		}
		if len(query.EdgeTypeIDs) > 0 && !containsID(query.EdgeTypeIDs, edge.EdgeTypeID) {
			continue
		}

		source, _ := sourceRef(edge)
		target := targetRef(edge)

		if query.Direction == domain.DirectionForward || query.Direction == domain.DirectionBoth {
			result = append(result, arc{edge: edge, from: source, to: target, direction: domain.DirectionForward})
		}
		if query.Direction == domain.DirectionReverse ||
			(query.Direction == domain.DirectionBoth && g.edgeTypes[edge.EdgeTypeID].IsBidirectional) {
			result = append(result, arc{edge: edge, from: target, to: source, direction: domain.DirectionReverse})
		}
	}
	return result
}

func (g *Graph) Expand(ctx context.Context, query domain.ExpandQuery) ([]domain.ExpansionRow, error) {
	if g.BeforeExpand != nil {
		g.BeforeExpand(ctx)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.ExpandCalls++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if g.Err != nil {
		return nil, g.Err
	}

	arcs := g.arcs(query)

	rows := make([]domain.ExpansionRow, 0)
	frontier := make([]domain.ExpansionRow, 0)

	for _, a := range arcs {
		if a.from != query.Seed {
			continue
		}
		frontier = append(frontier, newRow(a, 1, nil, nil, nil))
	}

	for depth := 1; len(frontier) > 0; depth++ {
		rows = append(rows, frontier...)
		if depth >= query.MaxDepth {
			break
		}

		next := make([]domain.ExpansionRow, 0)
		for _, walked := range frontier {
			reached := walked.FarSide()
			for _, a := range arcs {
				if a.from != reached || containsID(walked.PathEdgeIDs, a.edge.ID) {
					continue
				}
				next = append(next, newRow(a, depth+1, walked.PathEdgeIDs, walked.PathEdgeTypeIDs, walked.PathDirections))
			}
		}
		frontier = next
	}

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].Depth != rows[j].Depth {
			return rows[i].Depth < rows[j].Depth
		}
		return rows[i].EdgeID < rows[j].EdgeID
	})

	return rows, nil
}

func newRow(a arc, depth int, pathIDs []int64, pathTypes []int64, pathDirections []domain.Direction) domain.ExpansionRow {
	source, _ := sourceRef(a.edge)
	return domain.ExpansionRow{
		EdgeID:          a.edge.ID,
		EdgeTypeID:      a.edge.EdgeTypeID,
		Source:          source,
		Target:          targetRef(a.edge),
		Direction:       a.direction,
		Depth:           depth,
		Strength:        a.edge.Strength,
		Role:            a.edge.Role,
		Metadata:        a.edge.Metadata,
		PathEdgeIDs:     append(append([]int64(nil), pathIDs...), a.edge.ID),
		PathEdgeTypeIDs: append(append([]int64(nil), pathTypes...), a.edge.EdgeTypeID),
		PathDirections:  append(append([]domain.Direction(nil), pathDirections...), a.direction),
	}
}

// FindShortestPath faz BFS forward; em empates vence o menor id de aresta.
func (g *Graph) FindShortestPath(ctx context.Context, source domain.NodeRef, target domain.NodeRef, maxDepth int, excludedEdgeTypeIDs []int64, depthLimits map[int64]int) ([]int64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ShortestPathCalls++
	g.LastExcluded = append([]int64(nil), excludedEdgeTypeIDs...)
	if g.Err != nil {
		return nil, g.Err
	}

	ids := make([]int64, 0, len(g.edges))
	for id := range g.edges {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	type state struct {
		at   domain.NodeRef
		path []int64
	}

	visited := map[domain.NodeRef]bool{source: true}
	frontier := []state{{at: source}}

	for depth := 1; depth <= maxDepth && len(frontier) > 0; depth++ {
		next := make([]state, 0)
		for _, current := range frontier {
			for _, id := range ids {
				edge := g.edges[id]
				if !edge.IsTraversable() || containsID(excludedEdgeTypeIDs, edge.EdgeTypeID) {
					continue
				}
				if limit, ok := depthLimits[edge.EdgeTypeID]; ok && depth > limit {
					continue
				}
				from, ok := sourceRef(edge)
				if !ok || from != current.at {
					continue
				}

				to := targetRef(edge)
				path := append(append([]int64(nil), current.path...), edge.ID)
				if to == target {
					return path, nil
				}
				if visited[to] {
					continue
				}
				visited[to] = true
				next = append(next, state{at: to, path: path})
			}
		}
		frontier = next
	}

	return nil, nil
}

func (g *Graph) GetEdgesByIDs(ctx context.Context, ids []int64, includeDeleted bool) ([]entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, g.Err
	}

	result := make([]entities.Edge, 0, len(ids))
	for _, id := range ids {
		edge, ok := g.edges[id]
		if !ok || (edge.IsDeleted && !includeDeleted) {
			continue
		}
		result = append(result, *edge)
	}
	return result, nil
}

func (g *Graph) GetEdge(ctx context.Context, id int64, includeDeleted bool) (*entities.Edge, error) {
	edges, err := g.GetEdgesByIDs(ctx, []int64{id}, includeDeleted)
	if err != nil {
		return nil, err
	}
	if len(edges) == 0 {
		return nil, domain.ErrEdgeNotFound
	}
	return &edges[0], nil
}

func (g *Graph) GetAssignments(ctx context.Context, callerID int64, edgeTypeID int64) ([]entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, g.Err
	}

	result := make([]entities.Edge, 0)
	for _, edge := range g.sortedEdges() {
		if edge.IsDeleted || edge.CallerID == nil || *edge.CallerID != callerID || edge.EdgeTypeID != edgeTypeID {
			continue
		}
		result = append(result, *edge)
	}
	return result, nil
}

func (g *Graph) ListEdgesForRecord(ctx context.Context, record domain.NodeRef, includeDeleted bool) ([]entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, g.Err
	}

	result := make([]entities.Edge, 0)
	for _, edge := range g.sortedEdges() {
		if edge.IsDeleted && !includeDeleted {
			continue
		}
		source, _ := sourceRef(edge)
		if source == record || targetRef(edge) == record {
			result = append(result, *edge)
		}
	}
	return result, nil
}

func (g *Graph) sortedEdges() []*entities.Edge {
	result := make([]*entities.Edge, 0, len(g.edges))
	for _, edge := range g.edges {
		result = append(result, edge)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result
}

func sameSource(edge *entities.Edge, source domain.EdgeSource) bool {
	if source.CallerID != nil {
		return edge.CallerID != nil && *edge.CallerID == *source.CallerID
	}
	ref, ok := sourceRef(edge)
	return ok && edge.CallerID == nil && source.Record != nil && ref == *source.Record
}

func edgeSource(edge entities.Edge) domain.EdgeSource {
	if edge.CallerID != nil {
		return domain.CallerSource(*edge.CallerID)
	}
	ref, _ := sourceRef(&edge)
	return domain.RecordSource(ref)
}

func (g *Graph) CreateEdge(ctx context.Context, edgeType entities.EdgeType, edge entities.Edge) (*entities.Edge, domain.EdgeOutcome, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, "", g.Err
	}

	source := edgeSource(edge)
	target := targetRef(&edge)

	// idêntica: ativas antes, depois a removida mais recente
	var identical *entities.Edge
	for _, candidate := range g.sortedEdges() {
		if candidate.EdgeTypeID != edge.EdgeTypeID || !sameSource(candidate, source) || targetRef(candidate) != target {
			continue
		}
		if identical == nil ||
			(identical.IsDeleted && !candidate.IsDeleted) ||
			(identical.IsDeleted && candidate.IsDeleted && candidate.DeletedAt != nil &&
				(identical.DeletedAt == nil || candidate.DeletedAt.After(*identical.DeletedAt))) {
			identical = candidate
		}
	}

	if identical != nil && !identical.IsDeleted {
		return cloneEdge(identical), domain.EdgeExisting, nil
	}

	for _, candidate := range g.edges {
		if candidate.IsDeleted || candidate.EdgeTypeID != edge.EdgeTypeID || candidate.Status != entities.EdgeStatusActive {
			continue
		}
		if edgeType.Cardinality.LimitsOutgoing() && sameSource(candidate, source) {
			return nil, "", &domain.CardinalityViolation{
				EdgeTypeSlug:      edgeType.Slug,
				Cardinality:       string(edgeType.Cardinality),
				Side:              "source",
				ConflictingEdgeID: candidate.ID,
			}
		}
		if edgeType.Cardinality.LimitsIncoming() && targetRef(candidate) == target {
			return nil, "", &domain.CardinalityViolation{
				EdgeTypeSlug:      edgeType.Slug,
				Cardinality:       string(edgeType.Cardinality),
				Side:              "target",
				ConflictingEdgeID: candidate.ID,
			}
		}
	}

	now := time.Now().UTC()

	if identical != nil {
		identical.IsDeleted = false
		identical.DeletedAt = nil
		identical.DeletedBy = nil
		identical.Status = edge.Status
		identical.Strength = edge.Strength
		identical.Role = edge.Role
		identical.Metadata = edge.Metadata
		identical.UpdatedAt = now
		return cloneEdge(identical), domain.EdgeResurrected, nil
	}

	g.nextID++
	edge.ID = g.nextID
	edge.CreatedAt = now
	edge.UpdatedAt = now
	stored := edge
	g.edges[edge.ID] = &stored

	return cloneEdge(&stored), domain.EdgeCreated, nil
}

func (g *Graph) SoftDelete(ctx context.Context, id int64, actor *int64) (*entities.Edge, bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, false, g.Err
	}

	edge, ok := g.edges[id]
	if !ok {
		return nil, false, domain.ErrEdgeNotFound
	}
	if edge.IsDeleted {
		return cloneEdge(edge), false, nil
	}

	now := time.Now().UTC()
	edge.IsDeleted = true
	edge.DeletedAt = &now
	edge.DeletedBy = actor
	edge.UpdatedAt = now

	return cloneEdge(edge), true, nil
}

func (g *Graph) FindActiveByEndpoints(ctx context.Context, edgeTypeID int64, source domain.EdgeSource, target domain.NodeRef) (*entities.Edge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.Err != nil {
		return nil, g.Err
	}

	for _, edge := range g.sortedEdges() {
		if !edge.IsDeleted && edge.EdgeTypeID == edgeTypeID && sameSource(edge, source) && targetRef(edge) == target {
			return cloneEdge(edge), nil
		}
	}
	return nil, domain.ErrEdgeNotFound
}

func cloneEdge(edge *entities.Edge) *entities.Edge {
	clone := *edge
	return &clone
}
