package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Schema é o DDL esperado pelas repositories. As tabelas records e callers
// pertencem às camadas de registros e de identidade; aparecem aqui apenas
// para que testes e o datagen consigam montar um banco completo.
const Schema = `
CREATE TABLE IF NOT EXISTS edge_types (
	id                           BIGSERIAL PRIMARY KEY,
	slug                         TEXT NOT NULL UNIQUE,
	name                         TEXT NOT NULL,
	forward_label                TEXT NOT NULL,
	reverse_label                TEXT NOT NULL,
	cardinality                  TEXT NOT NULL CHECK (cardinality IN ('one_to_one', 'one_to_many', 'many_to_one', 'many_to_many')),
	is_bidirectional             BOOLEAN NOT NULL DEFAULT FALSE,
	is_system                    BOOLEAN NOT NULL DEFAULT FALSE,
	source_collection_constraint BIGINT,
	target_collection_constraint BIGINT,
	allow_self_reference         BOOLEAN NOT NULL DEFAULT TRUE,
	is_deleted                   BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at                   TIMESTAMPTZ,
	created_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS edges (
	id                   BIGSERIAL PRIMARY KEY,
	edge_type_id         BIGINT NOT NULL REFERENCES edge_types (id),
	source_collection_id BIGINT,
	source_record_id     BIGINT,
	caller_id            BIGINT,
	target_collection_id BIGINT NOT NULL,
	target_record_id     BIGINT NOT NULL,
	role                 TEXT,
	status               TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'inactive', 'pending')),
	strength             DOUBLE PRECISION NOT NULL DEFAULT 1.0,
	metadata             JSONB NOT NULL DEFAULT '{}'::jsonb,
	is_deleted           BOOLEAN NOT NULL DEFAULT FALSE,
	deleted_at           TIMESTAMPTZ,
	deleted_by           BIGINT,
	created_by           BIGINT,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	CONSTRAINT edges_source_shape CHECK (
		(caller_id IS NULL AND source_collection_id IS NOT NULL AND source_record_id IS NOT NULL)
		OR (caller_id IS NOT NULL AND source_collection_id IS NULL AND source_record_id IS NULL)
	)
);

CREATE UNIQUE INDEX IF NOT EXISTS edges_unique_record_edge
	ON edges (edge_type_id, source_collection_id, source_record_id, target_collection_id, target_record_id)
	WHERE NOT is_deleted AND caller_id IS NULL;

CREATE UNIQUE INDEX IF NOT EXISTS edges_unique_assignment_edge
	ON edges (edge_type_id, caller_id, target_collection_id, target_record_id)
	WHERE NOT is_deleted AND caller_id IS NOT NULL;

CREATE INDEX IF NOT EXISTS edges_source_idx ON edges (source_collection_id, source_record_id) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS edges_target_idx ON edges (target_collection_id, target_record_id) WHERE NOT is_deleted;
CREATE INDEX IF NOT EXISTS edges_caller_idx ON edges (caller_id, edge_type_id) WHERE NOT is_deleted;

CREATE TABLE IF NOT EXISTS permission_policies (
	id                   BIGSERIAL PRIMARY KEY,
	caller_type          TEXT NOT NULL,
	edge_type_id         BIGINT NOT NULL REFERENCES edge_types (id),
	can_traverse_forward BOOLEAN NOT NULL DEFAULT TRUE,
	can_traverse_reverse BOOLEAN NOT NULL DEFAULT TRUE,
	max_depth            INT NOT NULL DEFAULT 3,
	visible_fields       JSONB NOT NULL DEFAULT '{}'::jsonb,
	restricted_fields    JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (caller_type, edge_type_id)
);

CREATE TABLE IF NOT EXISTS cached_paths (
	id                   BIGSERIAL PRIMARY KEY,
	source_collection_id BIGINT NOT NULL,
	source_record_id     BIGINT NOT NULL,
	target_collection_id BIGINT NOT NULL,
	target_record_id     BIGINT NOT NULL,
	path_length          INT NOT NULL,
	edge_ids             BIGINT[] NOT NULL,
	edge_type_ids        BIGINT[] NOT NULL,
	path_strength        DOUBLE PRECISION NOT NULL,
	expires_at           TIMESTAMPTZ NOT NULL,
	created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (source_collection_id, source_record_id, target_collection_id, target_record_id, path_length)
);

CREATE INDEX IF NOT EXISTS cached_paths_edge_ids_idx ON cached_paths USING GIN (edge_ids);

CREATE TABLE IF NOT EXISTS records (
	collection_id BIGINT NOT NULL,
	id            BIGSERIAL NOT NULL,
	data          JSONB NOT NULL DEFAULT '{}'::jsonb,
	is_deleted    BOOLEAN NOT NULL DEFAULT FALSE,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection_id, id)
);

CREATE TABLE IF NOT EXISTS callers (
	id          BIGINT PRIMARY KEY,
	caller_type TEXT NOT NULL
);
`

func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}
