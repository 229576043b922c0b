package repositories

import (
	"context"
	"fmt"
	"log"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const cachedPathColumns = `
	cp.id,
	cp.source_collection_id,
	cp.source_record_id,
	cp.target_collection_id,
	cp.target_record_id,
	cp.path_length,
	cp.edge_ids,
	cp.edge_type_ids,
	cp.path_strength,
	cp.expires_at,
	cp.created_at`

// PathCacheRepository é a memoização durável de caminhos mais curtos.
// Entradas nunca são servidas depois de expires_at.
type PathCacheRepository struct {
	writePool *pgxpool.Pool
}

func NewPathCacheRepository(writePool *pgxpool.Pool) *PathCacheRepository {
	return &PathCacheRepository{writePool: writePool}
}

func scanCachedPath(row rowScanner) (entities.CachedPath, error) {
	var path entities.CachedPath
	err := row.Scan(
		&path.ID,
		&path.SourceCollectionID,
		&path.SourceRecordID,
		&path.TargetCollectionID,
		&path.TargetRecordID,
		&path.PathLength,
		&path.EdgeIDs,
		&path.EdgeTypeIDs,
		&path.PathStrength,
		&path.ExpiresAt,
		&path.CreatedAt,
	)
	return path, err
}

// Lookup devolve a entrada não expirada de menor comprimento, ou nil.
func (r *PathCacheRepository) Lookup(ctx context.Context, source domain.NodeRef, target domain.NodeRef, now time.Time) (*entities.CachedPath, error) {
	query := `SELECT ` + cachedPathColumns + `
		FROM cached_paths cp
		WHERE cp.source_collection_id = $1 AND cp.source_record_id = $2
			AND cp.target_collection_id = $3 AND cp.target_record_id = $4
			AND cp.expires_at > $5
		ORDER BY cp.path_length ASC
		LIMIT 1`

	path, err := scanCachedPath(r.writePool.QueryRow(ctx, query,
		source.CollectionID, source.RecordID,
		target.CollectionID, target.RecordID,
		now,
	))
	if err != nil {
		if postgres.IsNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("PathCacheRepository.Lookup - query failed: %w", err)
	}

	return &path, nil
}

// Upsert substitui a entrada de (origem, destino, comprimento) por inteiro.
func (r *PathCacheRepository) Upsert(ctx context.Context, path entities.CachedPath) error {
	query := `
		INSERT INTO cached_paths (
			source_collection_id, source_record_id,
			target_collection_id, target_record_id,
			path_length, edge_ids, edge_type_ids, path_strength, expires_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (source_collection_id, source_record_id, target_collection_id, target_record_id, path_length)
		DO UPDATE SET
			edge_ids = excluded.edge_ids,
			edge_type_ids = excluded.edge_type_ids,
			path_strength = excluded.path_strength,
			expires_at = excluded.expires_at,
			created_at = NOW()`

	_, err := r.writePool.Exec(ctx, query,
		path.SourceCollectionID, path.SourceRecordID,
		path.TargetCollectionID, path.TargetRecordID,
		path.PathLength,
		path.EdgeIDs,
		path.EdgeTypeIDs,
		path.PathStrength,
		path.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("PathCacheRepository.Upsert - upsert failed: %w", err)
	}

	return nil
}

// InvalidateByEdgeIDs remove todo caminho que passa por alguma das arestas.
func (r *PathCacheRepository) InvalidateByEdgeIDs(ctx context.Context, edgeIDs []int64) (int64, error) {
	if len(edgeIDs) == 0 {
		return 0, nil
	}

	tag, err := r.writePool.Exec(ctx, `DELETE FROM cached_paths WHERE edge_ids && $1::BIGINT[]`, edgeIDs)
	if err != nil {
		return 0, fmt.Errorf("PathCacheRepository.InvalidateByEdgeIDs - delete failed: %w", err)
	}

	if tag.RowsAffected() > 0 {
		log.Printf("Path cache: invalidated %d entries for edges %v", tag.RowsAffected(), edgeIDs)
	}

	return tag.RowsAffected(), nil
}

func (r *PathCacheRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.writePool.Exec(ctx, `DELETE FROM cached_paths WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("PathCacheRepository.DeleteExpired - delete failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
