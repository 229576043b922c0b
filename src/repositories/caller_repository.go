package repositories

import (
	"context"
	"fmt"
	"relgraph/src/infra/postgres"

	"github.com/jackc/pgx/v5/pgxpool"
)

type CallerRepository struct {
	readPool *pgxpool.Pool
}

func NewCallerRepository(readPool *pgxpool.Pool) *CallerRepository {
	return &CallerRepository{readPool: readPool}
}

// CallerType devolve o tipo usado como chave das policies. Caller desconhecido
// resolve para "" (nenhuma policy cadastrada, logo o default permissivo).
func (r *CallerRepository) CallerType(ctx context.Context, callerID int64) (string, error) {
	var callerType string
	err := r.readPool.QueryRow(ctx, `SELECT caller_type FROM callers WHERE id = $1`, callerID).Scan(&callerType)
	if err != nil {
		if postgres.IsNoRows(err) {
			return "", nil
		}
		return "", fmt.Errorf("CallerRepository.CallerType - query failed: %w", err)
	}

	return callerType, nil
}
