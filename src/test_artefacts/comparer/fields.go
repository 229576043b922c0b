package comparer

import (
	"relgraph/src/domain/entities"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func IgnoreFieldsFor[T any](fields ...string) cmp.Option {
	var t T
	return cmpopts.IgnoreFields(t, fields...)
}

// EdgeIgnoringBookkeeping compara arestas pelo conteúdo: id, timestamps e
// auditoria de remoção ficam de fora.
func EdgeIgnoringBookkeeping() cmp.Options {
	return cmp.Options{
		IgnoreFieldsFor[entities.Edge]("ID", "CreatedAt", "UpdatedAt", "DeletedAt", "DeletedBy", "CreatedBy"),
		JSONRawMessage(),
	}
}

func EdgeTypeIgnoringBookkeeping() cmp.Option {
	return IgnoreFieldsFor[entities.EdgeType]("ID", "CreatedAt", "UpdatedAt", "DeletedAt")
}
