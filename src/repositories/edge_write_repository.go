package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type EdgeWriteRepository struct {
	writePool *pgxpool.Pool
}

func NewEdgeWriteRepository(writePool *pgxpool.Pool) *EdgeWriteRepository {
	return &EdgeWriteRepository{writePool: writePool}
}

// CreateEdge cria a aresta ou ressuscita uma aresta idêntica removida.
//
// Tudo acontece numa única transação:
//  1. advisory locks em (tipo, origem) e (tipo, destino) serializam criações concorrentes;
//  2. busca por aresta idêntica INCLUINDO removidas; se houver uma ativa, nada é feito;
//  3. checagem de cardinalidade contra arestas ativas;
//  4. ressurreição (mantém o id) ou insert.
func (r *EdgeWriteRepository) CreateEdge(ctx context.Context, edgeType entities.EdgeType, edge entities.Edge) (*entities.Edge, domain.EdgeOutcome, error) {
	tx, err := r.writePool.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("EdgeWriteRepository.CreateEdge - failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	sourceKey := edgeSourceKey(edge)
	targetKey := fmt.Sprintf("%d:%d", edge.TargetCollectionID, edge.TargetRecordID)
	lockKeys := []string{
		fmt.Sprintf("edges:%d:source:%s", edge.EdgeTypeID, sourceKey),
		fmt.Sprintf("edges:%d:target:%s", edge.EdgeTypeID, targetKey),
	}
	if err := postgres.AcquireAdvisoryLocks(ctx, tx, lockKeys...); err != nil {
		return nil, "", fmt.Errorf("EdgeWriteRepository.CreateEdge - %w", err)
	}

	identical, err := r.findIdentical(ctx, tx, edge)
	if err != nil {
		return nil, "", err
	}

	if identical != nil && !identical.IsDeleted {
		if err := tx.Commit(ctx); err != nil {
			return nil, "", fmt.Errorf("EdgeWriteRepository.CreateEdge - failed to commit: %w", err)
		}
		return identical, domain.EdgeExisting, nil
	}

	if err := r.checkCardinality(ctx, tx, edgeType, edge); err != nil {
		return nil, "", err
	}

	var saved entities.Edge
	var outcome domain.EdgeOutcome

	if identical != nil {
		saved, err = r.resurrect(ctx, tx, identical.ID, edge)
		outcome = domain.EdgeResurrected
	} else {
		saved, err = r.insert(ctx, tx, edge)
		outcome = domain.EdgeCreated
	}

	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, "", &domain.CardinalityViolation{
				EdgeTypeSlug: edgeType.Slug,
				Cardinality:  string(edgeType.Cardinality),
				Side:         "source",
			}
		}
		return nil, "", fmt.Errorf("EdgeWriteRepository.CreateEdge - failed to persist edge: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		if postgres.IsUniqueViolation(err) {
			return nil, "", &domain.CardinalityViolation{
				EdgeTypeSlug: edgeType.Slug,
				Cardinality:  string(edgeType.Cardinality),
				Side:         "source",
			}
		}
		return nil, "", fmt.Errorf("EdgeWriteRepository.CreateEdge - failed to commit: %w", err)
	}

	return &saved, outcome, nil
}

// findIdentical procura (tipo, origem, destino) entre TODAS as arestas, removidas
// inclusive. Ativas vêm primeiro; entre removidas, a mais recente.
func (r *EdgeWriteRepository) findIdentical(ctx context.Context, tx pgx.Tx, edge entities.Edge) (*entities.Edge, error) {
	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE e.edge_type_id = $1
			AND e.source_collection_id IS NOT DISTINCT FROM $2
			AND e.source_record_id IS NOT DISTINCT FROM $3
			AND e.caller_id IS NOT DISTINCT FROM $4
			AND e.target_collection_id = $5
			AND e.target_record_id = $6
		ORDER BY e.is_deleted ASC, e.deleted_at DESC NULLS LAST, e.id ASC
		LIMIT 1
		FOR UPDATE`

	found, err := scanEdge(tx.QueryRow(ctx, query,
		edge.EdgeTypeID,
		postgres.NewNullInt64(edge.SourceCollectionID),
		postgres.NewNullInt64(edge.SourceRecordID),
		postgres.NewNullInt64(edge.CallerID),
		edge.TargetCollectionID,
		edge.TargetRecordID,
	))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("EdgeWriteRepository.findIdentical - query failed: %w", err)
	}

	return &found, nil
}

func (r *EdgeWriteRepository) checkCardinality(ctx context.Context, tx pgx.Tx, edgeType entities.EdgeType, edge entities.Edge) error {
	if edgeType.Cardinality.LimitsOutgoing() {
		query := `
			SELECT e.id FROM edges e
			WHERE e.edge_type_id = $1
				AND NOT e.is_deleted AND e.status = 'active'
				AND e.source_collection_id IS NOT DISTINCT FROM $2
				AND e.source_record_id IS NOT DISTINCT FROM $3
				AND e.caller_id IS NOT DISTINCT FROM $4
			LIMIT 1`

		var conflictingID int64
		err := tx.QueryRow(ctx, query,
			edge.EdgeTypeID,
			postgres.NewNullInt64(edge.SourceCollectionID),
			postgres.NewNullInt64(edge.SourceRecordID),
			postgres.NewNullInt64(edge.CallerID),
		).Scan(&conflictingID)

		if err == nil {
			return &domain.CardinalityViolation{
				EdgeTypeSlug:      edgeType.Slug,
				Cardinality:       string(edgeType.Cardinality),
				Side:              "source",
				ConflictingEdgeID: conflictingID,
			}
		}
		if !postgres.IsNoRows(err) {
			return fmt.Errorf("EdgeWriteRepository.checkCardinality - outgoing query failed: %w", err)
		}
	}

	if edgeType.Cardinality.LimitsIncoming() {
		query := `
			SELECT e.id FROM edges e
			WHERE e.edge_type_id = $1
				AND NOT e.is_deleted AND e.status = 'active'
				AND e.target_collection_id = $2
				AND e.target_record_id = $3
			LIMIT 1`

		var conflictingID int64
		err := tx.QueryRow(ctx, query, edge.EdgeTypeID, edge.TargetCollectionID, edge.TargetRecordID).Scan(&conflictingID)

		if err == nil {
			return &domain.CardinalityViolation{
				EdgeTypeSlug:      edgeType.Slug,
				Cardinality:       string(edgeType.Cardinality),
				Side:              "target",
				ConflictingEdgeID: conflictingID,
			}
		}
		if !postgres.IsNoRows(err) {
			return fmt.Errorf("EdgeWriteRepository.checkCardinality - incoming query failed: %w", err)
		}
	}

	return nil
}

func (r *EdgeWriteRepository) insert(ctx context.Context, tx pgx.Tx, edge entities.Edge) (entities.Edge, error) {
	query := `
		INSERT INTO edges AS e (
			edge_type_id,
			source_collection_id, source_record_id, caller_id,
			target_collection_id, target_record_id,
			role, status, strength, metadata, created_by
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + edgeColumns

	return scanEdge(tx.QueryRow(ctx, query,
		edge.EdgeTypeID,
		postgres.NewNullInt64(edge.SourceCollectionID),
		postgres.NewNullInt64(edge.SourceRecordID),
		postgres.NewNullInt64(edge.CallerID),
		edge.TargetCollectionID,
		edge.TargetRecordID,
		postgres.NewNullString(edge.Role),
		string(edge.Status),
		edge.Strength,
		metadataOrEmpty(edge.Metadata),
		postgres.NewNullInt64(edge.CreatedBy),
	))
}

// resurrect limpa a marcação de remoção e renova autor e atributos, preservando o id.
func (r *EdgeWriteRepository) resurrect(ctx context.Context, tx pgx.Tx, id int64, edge entities.Edge) (entities.Edge, error) {
	query := `
		UPDATE edges AS e SET
			is_deleted = FALSE,
			deleted_at = NULL,
			deleted_by = NULL,
			created_by = $2,
			role = $3,
			status = $4,
			strength = $5,
			metadata = $6,
			updated_at = NOW()
		WHERE e.id = $1
		RETURNING ` + edgeColumns

	return scanEdge(tx.QueryRow(ctx, query,
		id,
		postgres.NewNullInt64(edge.CreatedBy),
		postgres.NewNullString(edge.Role),
		string(edge.Status),
		edge.Strength,
		metadataOrEmpty(edge.Metadata),
	))
}

// SoftDelete marca a aresta como removida. Remover uma aresta já removida é
// um no-op: a aresta é devolvida com changed=false.
func (r *EdgeWriteRepository) SoftDelete(ctx context.Context, id int64, actor *int64) (*entities.Edge, bool, error) {
	query := `
		UPDATE edges AS e SET
			is_deleted = TRUE,
			deleted_at = NOW(),
			deleted_by = $2,
			updated_at = NOW()
		WHERE e.id = $1 AND NOT e.is_deleted
		RETURNING ` + edgeColumns

	edge, err := scanEdge(r.writePool.QueryRow(ctx, query, id, postgres.NewNullInt64(actor)))
	if err == nil {
		return &edge, true, nil
	}
	if !postgres.IsNoRows(err) {
		return nil, false, fmt.Errorf("EdgeWriteRepository.SoftDelete - update failed: %w", err)
	}

	existing, err := scanEdge(r.writePool.QueryRow(ctx, `SELECT `+edgeColumns+` FROM edges e WHERE e.id = $1`, id))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, false, fmt.Errorf("EdgeWriteRepository.SoftDelete - edge %d: %w", id, domain.ErrEdgeNotFound)
		}
		return nil, false, fmt.Errorf("EdgeWriteRepository.SoftDelete - lookup failed: %w", err)
	}

	return &existing, false, nil
}

// FindActiveByEndpoints devolve a aresta não removida de (tipo, origem, destino).
func (r *EdgeWriteRepository) FindActiveByEndpoints(ctx context.Context, edgeTypeID int64, source domain.EdgeSource, target domain.NodeRef) (*entities.Edge, error) {
	var sourceCollectionID, sourceRecordID *int64
	if source.Record != nil {
		sourceCollectionID = &source.Record.CollectionID
		sourceRecordID = &source.Record.RecordID
	}

	query := `SELECT ` + edgeColumns + `
		FROM edges e
		WHERE e.edge_type_id = $1
			AND e.source_collection_id IS NOT DISTINCT FROM $2
			AND e.source_record_id IS NOT DISTINCT FROM $3
			AND e.caller_id IS NOT DISTINCT FROM $4
			AND e.target_collection_id = $5
			AND e.target_record_id = $6
			AND NOT e.is_deleted`

	edge, err := scanEdge(r.writePool.QueryRow(ctx, query,
		edgeTypeID,
		postgres.NewNullInt64(sourceCollectionID),
		postgres.NewNullInt64(sourceRecordID),
		postgres.NewNullInt64(source.CallerID),
		target.CollectionID,
		target.RecordID,
	))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, fmt.Errorf("EdgeWriteRepository.FindActiveByEndpoints - %w", domain.ErrEdgeNotFound)
		}
		return nil, fmt.Errorf("EdgeWriteRepository.FindActiveByEndpoints - query failed: %w", err)
	}

	return &edge, nil
}

func edgeSourceKey(edge entities.Edge) string {
	if edge.CallerID != nil {
		return fmt.Sprintf("caller:%d", *edge.CallerID)
	}
	return fmt.Sprintf("%d:%d", derefInt64(edge.SourceCollectionID), derefInt64(edge.SourceRecordID))
}

func derefInt64(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

func metadataOrEmpty(metadata json.RawMessage) []byte {
	if len(metadata) == 0 {
		return []byte("{}")
	}
	return metadata
}
