package repositories

import (
	"context"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

const edgeTypeColumns = `
	et.id,
	et.slug,
	et.name,
	et.forward_label,
	et.reverse_label,
	et.cardinality,
	et.is_bidirectional,
	et.is_system,
	et.source_collection_constraint,
	et.target_collection_constraint,
	et.allow_self_reference,
	et.is_deleted,
	et.deleted_at,
	et.created_at,
	et.updated_at`

type EdgeTypeRepository struct {
	readPool  *pgxpool.Pool
	writePool *pgxpool.Pool
}

func NewEdgeTypeRepository(client *postgres.ReadWriteClient) *EdgeTypeRepository {
	return &EdgeTypeRepository{readPool: client.GetReadPool(), writePool: client.GetWritePool()}
}

func scanEdgeType(row rowScanner) (entities.EdgeType, error) {
	var edgeType entities.EdgeType
	var cardinality string

	err := row.Scan(
		&edgeType.ID,
		&edgeType.Slug,
		&edgeType.Name,
		&edgeType.ForwardLabel,
		&edgeType.ReverseLabel,
		&cardinality,
		&edgeType.IsBidirectional,
		&edgeType.IsSystem,
		&edgeType.SourceCollectionConstraint,
		&edgeType.TargetCollectionConstraint,
		&edgeType.AllowSelfReference,
		&edgeType.IsDeleted,
		&edgeType.DeletedAt,
		&edgeType.CreatedAt,
		&edgeType.UpdatedAt,
	)
	if err != nil {
		return entities.EdgeType{}, err
	}

	edgeType.Cardinality = entities.Cardinality(cardinality)
	return edgeType, nil
}

func (r *EdgeTypeRepository) Create(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, error) {
	query := `
		INSERT INTO edge_types AS et (
			slug, name, forward_label, reverse_label, cardinality,
			is_bidirectional, is_system,
			source_collection_constraint, target_collection_constraint,
			allow_self_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING ` + edgeTypeColumns

	created, err := scanEdgeType(r.writePool.QueryRow(ctx, query, edgeTypeArgs(edgeType)...))
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, domain.NewValidationError("slug", "edge type %q already exists", edgeType.Slug)
		}
		return nil, fmt.Errorf("EdgeTypeRepository.Create - insert failed: %w", err)
	}

	return &created, nil
}

// InsertIfAbsent é o caminho do seed: ON CONFLICT (slug) DO NOTHING garante
// idempotência mesmo com dois processos semeando ao mesmo tempo.
// Retorna o tipo existente quando o slug já estava cadastrado.
func (r *EdgeTypeRepository) InsertIfAbsent(ctx context.Context, edgeType entities.EdgeType) (*entities.EdgeType, bool, error) {
	query := `
		INSERT INTO edge_types AS et (
			slug, name, forward_label, reverse_label, cardinality,
			is_bidirectional, is_system,
			source_collection_constraint, target_collection_constraint,
			allow_self_reference
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (slug) DO NOTHING
		RETURNING ` + edgeTypeColumns

	created, err := scanEdgeType(r.writePool.QueryRow(ctx, query, edgeTypeArgs(edgeType)...))
	if err == nil {
		return &created, true, nil
	}
	if !postgres.IsNoRows(err) {
		return nil, false, fmt.Errorf("EdgeTypeRepository.InsertIfAbsent - insert failed: %w", err)
	}

	existing, err := scanEdgeType(r.writePool.QueryRow(ctx,
		`SELECT `+edgeTypeColumns+` FROM edge_types et WHERE et.slug = $1`, edgeType.Slug))
	if err != nil {
		return nil, false, fmt.Errorf("EdgeTypeRepository.InsertIfAbsent - lookup failed: %w", err)
	}

	return &existing, false, nil
}

func (r *EdgeTypeRepository) GetByID(ctx context.Context, id int64) (*entities.EdgeType, error) {
	query := `SELECT ` + edgeTypeColumns + ` FROM edge_types et WHERE et.id = $1 AND NOT et.is_deleted`

	edgeType, err := scanEdgeType(r.readPool.QueryRow(ctx, query, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("EdgeTypeRepository.GetByID - edge type %d: %w", id, domain.ErrEdgeTypeNotFound)
		}
		return nil, fmt.Errorf("EdgeTypeRepository.GetByID - query failed: %w", err)
	}

	return &edgeType, nil
}

func (r *EdgeTypeRepository) GetBySlug(ctx context.Context, slug string) (*entities.EdgeType, error) {
	query := `SELECT ` + edgeTypeColumns + ` FROM edge_types et WHERE et.slug = $1 AND NOT et.is_deleted`

	edgeType, err := scanEdgeType(r.readPool.QueryRow(ctx, query, slug))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("EdgeTypeRepository.GetBySlug - edge type %q: %w", slug, domain.ErrEdgeTypeNotFound)
		}
		return nil, fmt.Errorf("EdgeTypeRepository.GetBySlug - query failed: %w", err)
	}

	return &edgeType, nil
}

// GetBySlugs ignora slugs desconhecidos ou removidos.
func (r *EdgeTypeRepository) GetBySlugs(ctx context.Context, slugs []string) ([]entities.EdgeType, error) {
	if len(slugs) == 0 {
		return []entities.EdgeType{}, nil
	}

	query := `SELECT ` + edgeTypeColumns + ` FROM edge_types et WHERE et.slug = ANY($1) AND NOT et.is_deleted ORDER BY et.id`

	return r.queryEdgeTypes(ctx, "GetBySlugs", query, slugs)
}

func (r *EdgeTypeRepository) GetByIDs(ctx context.Context, ids []int64) ([]entities.EdgeType, error) {
	if len(ids) == 0 {
		return []entities.EdgeType{}, nil
	}

	query := `SELECT ` + edgeTypeColumns + ` FROM edge_types et WHERE et.id = ANY($1) ORDER BY et.id`

	return r.queryEdgeTypes(ctx, "GetByIDs", query, ids)
}

func (r *EdgeTypeRepository) SoftDelete(ctx context.Context, id int64) error {
	query := `
		UPDATE edge_types SET
			is_deleted = TRUE,
			deleted_at = NOW(),
			updated_at = NOW()
		WHERE id = $1 AND NOT is_system AND NOT is_deleted`

	tag, err := r.writePool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("EdgeTypeRepository.SoftDelete - update failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("EdgeTypeRepository.SoftDelete - edge type %d: %w", id, domain.ErrEdgeTypeNotFound)
	}

	return nil
}

func (r *EdgeTypeRepository) queryEdgeTypes(ctx context.Context, operation string, query string, args ...interface{}) ([]entities.EdgeType, error) {
	rows, err := r.readPool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("EdgeTypeRepository.%s - query failed: %w", operation, err)
	}
	defer rows.Close()

	edgeTypes := make([]entities.EdgeType, 0)
	for rows.Next() {
		edgeType, err := scanEdgeType(rows)
		if err != nil {
			return nil, fmt.Errorf("EdgeTypeRepository.%s - failed to scan row: %w", operation, err)
		}
		edgeTypes = append(edgeTypes, edgeType)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("EdgeTypeRepository.%s - error iterating rows: %w", operation, err)
	}

	return edgeTypes, nil
}

func edgeTypeArgs(edgeType entities.EdgeType) []interface{} {
	return []interface{}{
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
	}
}
