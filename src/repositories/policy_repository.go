package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"relgraph/src/domain/entities"

	"github.com/jackc/pgx/v5/pgxpool"
)

const policyColumns = `
	p.id,
	p.caller_type,
	p.edge_type_id,
	p.can_traverse_forward,
	p.can_traverse_reverse,
	p.max_depth,
	p.visible_fields,
	p.restricted_fields,
	p.created_at,
	p.updated_at`

type PolicyRepository struct {
	readPool  *pgxpool.Pool
	writePool *pgxpool.Pool
}

func NewPolicyRepository(readPool *pgxpool.Pool, writePool *pgxpool.Pool) *PolicyRepository {
	return &PolicyRepository{readPool: readPool, writePool: writePool}
}

func scanPolicy(row rowScanner) (entities.PermissionPolicy, error) {
	var policy entities.PermissionPolicy
	err := row.Scan(
		&policy.ID,
		&policy.CallerType,
		&policy.EdgeTypeID,
		&policy.CanTraverseForward,
		&policy.CanTraverseReverse,
		&policy.MaxDepth,
		&policy.VisibleFields,
		&policy.RestrictedFields,
		&policy.CreatedAt,
		&policy.UpdatedAt,
	)
	return policy, err
}

// GetPoliciesForCallerType carrega todas as policies do caller type de uma vez;
// a travessia consulta o mapa em memória a cada passo.
func (r *PolicyRepository) GetPoliciesForCallerType(ctx context.Context, callerType string) (map[int64]entities.PermissionPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM permission_policies p WHERE p.caller_type = $1`

	rows, err := r.readPool.Query(ctx, query, callerType)
	if err != nil {
		return nil, fmt.Errorf("PolicyRepository.GetPoliciesForCallerType - query failed: %w", err)
	}
	defer rows.Close()

	policies := make(map[int64]entities.PermissionPolicy)
	for rows.Next() {
		policy, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("PolicyRepository.GetPoliciesForCallerType - failed to scan row: %w", err)
		}
		policies[policy.EdgeTypeID] = policy
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PolicyRepository.GetPoliciesForCallerType - error iterating rows: %w", err)
	}

	return policies, nil
}

func (r *PolicyRepository) UpsertPolicy(ctx context.Context, policy entities.PermissionPolicy) (*entities.PermissionPolicy, error) {
	visibleFields, err := marshalFieldRules(policy.VisibleFields)
	if err != nil {
		return nil, fmt.Errorf("PolicyRepository.UpsertPolicy - invalid visible_fields: %w", err)
	}
	restrictedFields, err := marshalFieldRules(policy.RestrictedFields)
	if err != nil {
		return nil, fmt.Errorf("PolicyRepository.UpsertPolicy - invalid restricted_fields: %w", err)
	}

	maxDepth := policy.MaxDepth
	if maxDepth <= 0 {
		maxDepth = entities.DefaultPolicyMaxDepth
	}

	query := `
		INSERT INTO permission_policies AS p (
			caller_type, edge_type_id,
			can_traverse_forward, can_traverse_reverse,
			max_depth, visible_fields, restricted_fields
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (caller_type, edge_type_id) DO UPDATE SET
			can_traverse_forward = excluded.can_traverse_forward,
			can_traverse_reverse = excluded.can_traverse_reverse,
			max_depth = excluded.max_depth,
			visible_fields = excluded.visible_fields,
			restricted_fields = excluded.restricted_fields,
			updated_at = NOW()
		RETURNING ` + policyColumns

	saved, err := scanPolicy(r.writePool.QueryRow(ctx, query,
		policy.CallerType,
		policy.EdgeTypeID,
		policy.CanTraverseForward,
		policy.CanTraverseReverse,
		maxDepth,
		visibleFields,
		restrictedFields,
	))
	if err != nil {
		return nil, fmt.Errorf("PolicyRepository.UpsertPolicy - upsert failed: %w", err)
	}

	return &saved, nil
}

func marshalFieldRules(rules entities.FieldRules) ([]byte, error) {
	if rules == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(rules)
}
