package repositories

import (
	"fmt"
	"relgraph/src/domain/entities"

	"github.com/jackc/pgx/v5"
)

const edgeColumns = `
	e.id,
	e.edge_type_id,
	e.source_collection_id,
	e.source_record_id,
	e.caller_id,
	e.target_collection_id,
	e.target_record_id,
	COALESCE(e.role, ''),
	e.status,
	e.strength,
	e.metadata,
	e.is_deleted,
	e.deleted_at,
	e.deleted_by,
	e.created_by,
	e.created_at,
	e.updated_at`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanEdge(row rowScanner) (entities.Edge, error) {
	var edge entities.Edge
	var status string

	err := row.Scan(
		&edge.ID,
		&edge.EdgeTypeID,
		&edge.SourceCollectionID,
		&edge.SourceRecordID,
		&edge.CallerID,
		&edge.TargetCollectionID,
		&edge.TargetRecordID,
		&edge.Role,
		&status,
		&edge.Strength,
		&edge.Metadata,
		&edge.IsDeleted,
		&edge.DeletedAt,
		&edge.DeletedBy,
		&edge.CreatedBy,
		&edge.CreatedAt,
		&edge.UpdatedAt,
	)
	if err != nil {
		return entities.Edge{}, err
	}

	edge.Status = entities.EdgeStatus(status)
	return edge, nil
}

func collectEdges(rows pgx.Rows) ([]entities.Edge, error) {
	defer rows.Close()

	edges := make([]entities.Edge, 0)
	for rows.Next() {
		edge, err := scanEdge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edge: %w", err)
		}
		edges = append(edges, edge)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating edge rows: %w", err)
	}

	return edges, nil
}
