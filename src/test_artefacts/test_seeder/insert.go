package test_seeder

import (
	"context"
	"encoding/json"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"
	"relgraph/src/test_artefacts/stubs"
	"time"
)

// InsertEdgeType inserts an edge type and fills its generated id.
func (ts TestSeeder) InsertEdgeType(ctx context.Context, edgeType *entities.EdgeType) {
	query := `
		INSERT INTO edge_types (slug, name, forward_label, reverse_label, cardinality, is_bidirectional, is_system,
			source_collection_constraint, target_collection_constraint, allow_self_reference, is_deleted, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at`

	err := ts.pool.QueryRow(ctx, query,
		edgeType.Slug,
		edgeType.Name,
		edgeType.ForwardLabel,
		edgeType.ReverseLabel,
		string(edgeType.Cardinality),
		edgeType.IsBidirectional,
		edgeType.IsSystem,
		postgres.NewNullInt64(edgeType.SourceCollectionConstraint),
		postgres.NewNullInt64(edgeType.TargetCollectionConstraint),
		edgeType.AllowSelfReference,
		edgeType.IsDeleted,
		edgeType.DeletedAt,
	).Scan(&edgeType.ID, &edgeType.CreatedAt, &edgeType.UpdatedAt)

	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertEdgeType failed: %v", err))
	}
}

// InsertEdge inserts an edge as-is (including soft-deleted state) and fills its id.
func (ts TestSeeder) InsertEdge(ctx context.Context, edge *entities.Edge) {
	query := `
		INSERT INTO edges (edge_type_id, source_collection_id, source_record_id, caller_id,
			target_collection_id, target_record_id, role, status, strength, metadata,
			is_deleted, deleted_at, deleted_by, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id, created_at, updated_at`

	metadata := edge.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	err := ts.pool.QueryRow(ctx, query,
		edge.EdgeTypeID,
		postgres.NewNullInt64(edge.SourceCollectionID),
		postgres.NewNullInt64(edge.SourceRecordID),
		postgres.NewNullInt64(edge.CallerID),
		edge.TargetCollectionID,
		edge.TargetRecordID,
		postgres.NewNullString(edge.Role),
		string(edge.Status),
		edge.Strength,
		metadata,
		edge.IsDeleted,
		edge.DeletedAt,
		postgres.NewNullInt64(edge.DeletedBy),
		postgres.NewNullInt64(edge.CreatedBy),
	).Scan(&edge.ID, &edge.CreatedAt, &edge.UpdatedAt)

	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertEdge failed: %v", err))
	}
}

// Link is a shortcut for an active record edge with default attributes.
func (ts TestSeeder) Link(ctx context.Context, edgeTypeID int64, source domain.NodeRef, target domain.NodeRef) entities.Edge {
	edge := stubs.NewEdgeStub().
		WithEdgeTypeID(edgeTypeID).
		WithSource(source).
		WithTarget(target).
		Get()
	ts.InsertEdge(ctx, &edge)
	return edge
}

func (ts TestSeeder) InsertRecord(ctx context.Context, record stubs.Record) {
	fields, err := json.Marshal(record.Fields)
	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertRecord failed to marshal fields: %v", err))
	}

	_, err = ts.pool.Exec(ctx,
		`INSERT INTO records (collection_id, id, data, is_deleted) VALUES ($1, $2, $3, $4)`,
		record.Ref.CollectionID, record.Ref.RecordID, fields, record.IsDeleted)
	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertRecord failed: %v", err))
	}
}

func (ts TestSeeder) InsertCaller(ctx context.Context, callerID int64, callerType string) {
	_, err := ts.pool.Exec(ctx, `INSERT INTO callers (id, caller_type) VALUES ($1, $2)`, callerID, callerType)
	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertCaller failed: %v", err))
	}
}

func (ts TestSeeder) InsertPolicy(ctx context.Context, policy *entities.PermissionPolicy) {
	visible, _ := json.Marshal(fieldRulesOrEmpty(policy.VisibleFields))
	restricted, _ := json.Marshal(fieldRulesOrEmpty(policy.RestrictedFields))

	err := ts.pool.QueryRow(ctx, `
		INSERT INTO permission_policies (caller_type, edge_type_id, can_traverse_forward, can_traverse_reverse,
			max_depth, visible_fields, restricted_fields)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		policy.CallerType,
		policy.EdgeTypeID,
		policy.CanTraverseForward,
		policy.CanTraverseReverse,
		policy.MaxDepth,
		visible,
		restricted,
	).Scan(&policy.ID)
	if err != nil {
		panic(fmt.Sprintf("Seeder.InsertPolicy failed: %v", err))
	}
}

func (ts TestSeeder) CountCachedPaths(ctx context.Context) int {
	var count int
	if err := ts.pool.QueryRow(ctx, `SELECT COUNT(*) FROM cached_paths`).Scan(&count); err != nil {
		panic(fmt.Sprintf("Seeder.CountCachedPaths failed: %v", err))
	}
	return count
}

// ExpireCachedPaths moves every cached path expiry to the given instant.
func (ts TestSeeder) ExpireCachedPaths(ctx context.Context, at time.Time) {
	if _, err := ts.pool.Exec(ctx, `UPDATE cached_paths SET expires_at = $1`, at); err != nil {
		panic(fmt.Sprintf("Seeder.ExpireCachedPaths failed: %v", err))
	}
}

func fieldRulesOrEmpty(rules entities.FieldRules) entities.FieldRules {
	if rules == nil {
		return entities.FieldRules{}
	}
	return rules
}
