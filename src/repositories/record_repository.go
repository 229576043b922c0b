package repositories

import (
	"context"
	"fmt"
	"relgraph/src/domain"

	"github.com/jackc/pgx/v5/pgxpool"
)

// RecordRepository lê a tabela de registros mantida pela camada de coleções.
// O grafo só precisa saber se um registro existe e quais são seus campos.
type RecordRepository struct {
	readPool *pgxpool.Pool
}

func NewRecordRepository(readPool *pgxpool.Pool) *RecordRepository {
	return &RecordRepository{readPool: readPool}
}

func (r *RecordRepository) RecordExists(ctx context.Context, ref domain.NodeRef) (bool, error) {
	var exists bool
	err := r.readPool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM records WHERE collection_id = $1 AND id = $2 AND NOT is_deleted)`,
		ref.CollectionID, ref.RecordID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("RecordRepository.RecordExists - query failed: %w", err)
	}

	return exists, nil
}

// GetRecordFields carrega o payload de vários registros numa única ida ao banco.
// Registros ausentes ou removidos não aparecem no mapa.
func (r *RecordRepository) GetRecordFields(ctx context.Context, refs []domain.NodeRef) (map[domain.NodeRef]map[string]interface{}, error) {
	result := make(map[domain.NodeRef]map[string]interface{}, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	collectionIDs := make([]int64, len(refs))
	recordIDs := make([]int64, len(refs))
	for i, ref := range refs {
		collectionIDs[i] = ref.CollectionID
		recordIDs[i] = ref.RecordID
	}

	query := `
		SELECT
			r.collection_id, r.id, r.data
		FROM
			records r
		JOIN
			UNNEST($1::BIGINT[], $2::BIGINT[]) AS k (collection_id, record_id)
			ON r.collection_id = k.collection_id AND r.id = k.record_id
		WHERE
			NOT r.is_deleted`

	rows, err := r.readPool.Query(ctx, query, collectionIDs, recordIDs)
	if err != nil {
		return nil, fmt.Errorf("RecordRepository.GetRecordFields - query failed: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ref domain.NodeRef
		var fields map[string]interface{}
		if err := rows.Scan(&ref.CollectionID, &ref.RecordID, &fields); err != nil {
			return nil, fmt.Errorf("RecordRepository.GetRecordFields - failed to scan row: %w", err)
		}
		if fields == nil {
			fields = map[string]interface{}{}
		}
		result[ref] = fields
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("RecordRepository.GetRecordFields - error iterating rows: %w", err)
	}

	return result, nil
}
