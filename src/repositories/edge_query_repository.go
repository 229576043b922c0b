package repositories

import (
	"context"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DefaultExpansionRowLimit limita o número de linhas que uma expansão pode
// devolver, protegendo o banco de grafos muito densos.
const DefaultExpansionRowLimit = 10000

type EdgeQueryRepository struct {
	pool     *pgxpool.Pool
	rowLimit int
}

func NewEdgeQueryRepository(pool *pgxpool.Pool, rowLimit int) *EdgeQueryRepository {
	if rowLimit <= 0 {
		rowLimit = DefaultExpansionRowLimit
	}
	return &EdgeQueryRepository{pool: pool, rowLimit: rowLimit}
}

// Expand executa a expansão recursiva a partir da semente. O CTE "arcs" expõe
// cada aresta ativa como arco dirigido (forward: source -> target; reverse:
// target -> source). O CTE "walk" percorre os arcos carregando path_edge_ids:
// uma aresta já presente no caminho nunca é reutilizada (prevenção de ciclo por
// aresta, não por nó).
func (r *EdgeQueryRepository) Expand(ctx context.Context, query domain.ExpandQuery) ([]domain.ExpansionRow, error) {
	expandQuery := `
		WITH RECURSIVE arcs AS NOT MATERIALIZED (
			SELECT
				e.id AS edge_id,
				e.edge_type_id,
				e.source_collection_id, e.source_record_id,
				e.target_collection_id, e.target_record_id,
				e.source_collection_id AS from_collection_id, e.source_record_id AS from_record_id,
				e.target_collection_id AS to_collection_id, e.target_record_id AS to_record_id,
				'forward'::TEXT AS direction,
				e.strength, COALESCE(e.role, '') AS role, e.metadata
			FROM
				edges e
			WHERE
				$3 IN ('forward', 'both')
				AND NOT e.is_deleted AND e.status = 'active' AND e.caller_id IS NULL
				AND ($4::BIGINT[] IS NULL OR e.edge_type_id = ANY($4::BIGINT[]))

			UNION ALL

			SELECT
				e.id,
				e.edge_type_id,
				e.source_collection_id, e.source_record_id,
				e.target_collection_id, e.target_record_id,
				e.target_collection_id, e.target_record_id,
				e.source_collection_id, e.source_record_id,
				'reverse'::TEXT,
				e.strength, COALESCE(e.role, ''), e.metadata
			FROM
				edges e
			JOIN
				edge_types et ON et.id = e.edge_type_id
			WHERE
				($3 = 'reverse' OR ($3 = 'both' AND et.is_bidirectional))
				AND NOT e.is_deleted AND e.status = 'active' AND e.caller_id IS NULL
				AND ($4::BIGINT[] IS NULL OR e.edge_type_id = ANY($4::BIGINT[]))
		),
		walk AS (
			SELECT
				a.*,
				1 AS depth,
				ARRAY[a.edge_id] AS path_edge_ids,
				ARRAY[a.edge_type_id] AS path_edge_type_ids,
				ARRAY[a.direction] AS path_directions
			FROM
				arcs a
			WHERE
				a.from_collection_id = $1 AND a.from_record_id = $2

			UNION ALL

			SELECT
				a.*,
				w.depth + 1,
				w.path_edge_ids || a.edge_id,
				w.path_edge_type_ids || a.edge_type_id,
				w.path_directions || a.direction
			FROM
				walk w
			JOIN
				arcs a ON a.from_collection_id = w.to_collection_id AND a.from_record_id = w.to_record_id
			WHERE
				w.depth < $5
				AND NOT (a.edge_id = ANY(w.path_edge_ids))
		)
		SELECT
			edge_id, edge_type_id,
			source_collection_id, source_record_id,
			target_collection_id, target_record_id,
			direction, depth, strength, role, metadata,
			path_edge_ids, path_edge_type_ids, path_directions
		FROM
			walk
		ORDER BY
			depth, edge_id
		LIMIT $6;
	`

	rows, err := r.pool.Query(ctx, expandQuery,
		query.Seed.CollectionID,
		query.Seed.RecordID,
		string(query.Direction),
		nullableIDs(query.EdgeTypeIDs),
		query.MaxDepth,
		r.rowLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.Expand - recursive query failed: %w", err)
	}
	defer rows.Close()

	result := make([]domain.ExpansionRow, 0)
	for rows.Next() {
		var row domain.ExpansionRow
		var direction string
		var pathDirections []string

		if err := rows.Scan(
			&row.EdgeID, &row.EdgeTypeID,
			&row.Source.CollectionID, &row.Source.RecordID,
			&row.Target.CollectionID, &row.Target.RecordID,
			&direction, &row.Depth, &row.Strength, &row.Role, &row.Metadata,
			&row.PathEdgeIDs, &row.PathEdgeTypeIDs, &pathDirections,
		); err != nil {
			return nil, fmt.Errorf("EdgeQueryRepository.Expand - failed to scan row: %w", err)
		}

		row.Direction = domain.Direction(direction)
		row.PathDirections = make([]domain.Direction, len(pathDirections))
		for i, d := range pathDirections {
			row.PathDirections[i] = domain.Direction(d)
		}

		result = append(result, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.Expand - error iterating rows: %w", err)
	}

	return result, nil
}

// FindShortestPath faz uma busca em largura limitada, somente no sentido
// forward, a partir da origem. Um ramo para de expandir quando chega ao
// destino; o primeiro ramo por profundidade é o caminho mais curto em número
// de arestas. Retorna nil quando não existe caminho dentro de maxDepth.
// depthLimits limita a posição em que um tipo pode aparecer no caminho: o
// passo n com tipo t só vale se n <= depthLimits[t].
func (r *EdgeQueryRepository) FindShortestPath(ctx context.Context, source domain.NodeRef, target domain.NodeRef, maxDepth int, excludedEdgeTypeIDs []int64, depthLimits map[int64]int) ([]int64, error) {
	shortestPathQuery := `
		WITH RECURSIVE walk (to_collection_id, to_record_id, depth, path_edge_ids) AS (
			SELECT
				e.target_collection_id,
				e.target_record_id,
				1,
				ARRAY[e.id]
			FROM
				edges e
			WHERE
				e.source_collection_id = $1 AND e.source_record_id = $2
				AND NOT e.is_deleted AND e.status = 'active'
				AND ($6::BIGINT[] IS NULL OR NOT (e.edge_type_id = ANY($6::BIGINT[])))

			UNION ALL

			SELECT
				e.target_collection_id,
				e.target_record_id,
				w.depth + 1,
				w.path_edge_ids || e.id
			FROM
				walk w
			JOIN
				edges e ON e.source_collection_id = w.to_collection_id AND e.source_record_id = w.to_record_id
			WHERE
				w.depth < $5
				AND NOT (w.to_collection_id = $3 AND w.to_record_id = $4)
				AND NOT (e.id = ANY(w.path_edge_ids))
				AND NOT e.is_deleted AND e.status = 'active'
				AND ($6::BIGINT[] IS NULL OR NOT (e.edge_type_id = ANY($6::BIGINT[])))
				AND w.depth + 1 <= COALESCE(
					(SELECT l.max_depth FROM unnest($7::BIGINT[], $8::INT[]) AS l(edge_type_id, max_depth) WHERE l.edge_type_id = e.edge_type_id),
					$5
				)
		)
		SELECT
			path_edge_ids
		FROM
			walk
		WHERE
			to_collection_id = $3 AND to_record_id = $4
		ORDER BY
			depth, path_edge_ids
		LIMIT 1;
	`

	limitedTypeIDs := make([]int64, 0, len(depthLimits))
	limits := make([]int32, 0, len(depthLimits))
	for edgeTypeID, limit := range depthLimits {
		limitedTypeIDs = append(limitedTypeIDs, edgeTypeID)
		limits = append(limits, int32(limit))
	}

	var pathEdgeIDs []int64
	err := r.pool.QueryRow(ctx, shortestPathQuery,
		source.CollectionID,
		source.RecordID,
		target.CollectionID,
		target.RecordID,
		maxDepth,
		nullableIDs(excludedEdgeTypeIDs),
		limitedTypeIDs,
		limits,
	).Scan(&pathEdgeIDs)

	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("EdgeQueryRepository.FindShortestPath - recursive query failed: %w", err)
	}

	return pathEdgeIDs, nil
}

// GetEdgesByIDs devolve as arestas na ordem dos ids pedidos. Ids ausentes
// (ou removidos, quando includeDeleted é falso) são omitidos.
func (r *EdgeQueryRepository) GetEdgesByIDs(ctx context.Context, ids []int64, includeDeleted bool) ([]entities.Edge, error) {
	if len(ids) == 0 {
		return []entities.Edge{}, nil
	}

	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE e.id = ANY($1) AND ($2 OR NOT e.is_deleted)`

	rows, err := r.pool.Query(ctx, query, ids, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.GetEdgesByIDs - query failed: %w", err)
	}

	edges, err := collectEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.GetEdgesByIDs - %w", err)
	}

	byID := make(map[int64]entities.Edge, len(edges))
	for _, edge := range edges {
		byID[edge.ID] = edge
	}

	ordered := make([]entities.Edge, 0, len(ids))
	for _, id := range ids {
		if edge, ok := byID[id]; ok {
			ordered = append(ordered, edge)
		}
	}

	return ordered, nil
}

func (r *EdgeQueryRepository) GetEdge(ctx context.Context, id int64, includeDeleted bool) (*entities.Edge, error) {
	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE e.id = $1 AND ($2 OR NOT e.is_deleted)`

	edge, err := scanEdge(r.pool.QueryRow(ctx, query, id, includeDeleted))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("EdgeQueryRepository.GetEdge - edge %d: %w", id, domain.ErrEdgeNotFound)
		}
		return nil, fmt.Errorf("EdgeQueryRepository.GetEdge - query failed: %w", err)
	}

	return &edge, nil
}

// GetAssignments é um lookup direto pelo índice (caller_id, edge_type_id), sem travessia.
func (r *EdgeQueryRepository) GetAssignments(ctx context.Context, callerID int64, edgeTypeID int64) ([]entities.Edge, error) {
	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE e.caller_id = $1 AND e.edge_type_id = $2
			AND NOT e.is_deleted AND e.status = 'active'
		ORDER BY e.created_at, e.id`

	rows, err := r.pool.Query(ctx, query, callerID, edgeTypeID)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.GetAssignments - query failed: %w", err)
	}

	edges, err := collectEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.GetAssignments - %w", err)
	}

	return edges, nil
}

// ListEdgesForRecord lista as arestas que tocam o registro em qualquer lado.
// includeDeleted é o escape hatch para fluxos de auditoria e restauração.
func (r *EdgeQueryRepository) ListEdgesForRecord(ctx context.Context, record domain.NodeRef, includeDeleted bool) ([]entities.Edge, error) {
	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE ((e.source_collection_id = $1 AND e.source_record_id = $2)
			OR (e.target_collection_id = $1 AND e.target_record_id = $2))
			AND ($3 OR NOT e.is_deleted)
		ORDER BY e.id`

	rows, err := r.pool.Query(ctx, query, record.CollectionID, record.RecordID, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.ListEdgesForRecord - query failed: %w", err)
	}

	edges, err := collectEdges(rows)
	if err != nil {
		return nil, fmt.Errorf("EdgeQueryRepository.ListEdgesForRecord - %w", err)
	}

	return edges, nil
}

func nullableIDs(ids []int64) []int64 {
	if len(ids) == 0 {
		return nil
	}
	return ids
}
