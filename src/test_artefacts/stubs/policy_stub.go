package stubs

import (
	"relgraph/src/domain/entities"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

type PolicyStub struct {
	policy entities.PermissionPolicy
}

// NewPolicyStub cria uma policy totalmente permissiva para um caller type aleatório.
func NewPolicyStub() PolicyStub {
	now := time.Now().UTC()

	policy := entities.PermissionPolicy{
		ID:                 int64(gofakeit.Number(1, 100000)),
		CallerType:         gofakeit.RandomString([]string{"employee", "partner", "customer", "auditor"}),
		EdgeTypeID:         int64(gofakeit.Number(1, 100)),
		CanTraverseForward: true,
		CanTraverseReverse: true,
		MaxDepth:           entities.DefaultPolicyMaxDepth,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return PolicyStub{policy: policy}
}

func (ps PolicyStub) WithCallerType(callerType string) PolicyStub {
	ps.policy.CallerType = callerType
	return ps
}

func (ps PolicyStub) WithEdgeTypeID(edgeTypeID int64) PolicyStub {
	ps.policy.EdgeTypeID = edgeTypeID
	return ps
}

func (ps PolicyStub) WithForward(allowed bool) PolicyStub {
	ps.policy.CanTraverseForward = allowed
	return ps
}

func (ps PolicyStub) WithReverse(allowed bool) PolicyStub {
	ps.policy.CanTraverseReverse = allowed
	return ps
}

func (ps PolicyStub) WithMaxDepth(maxDepth int) PolicyStub {
	ps.policy.MaxDepth = maxDepth
	return ps
}

func (ps PolicyStub) WithVisibleFields(collectionID int64, fields ...string) PolicyStub {
	ps.policy.VisibleFields = addFieldRule(ps.policy.VisibleFields, collectionID, fields)
	return ps
}

func (ps PolicyStub) WithRestrictedFields(collectionID int64, fields ...string) PolicyStub {
	ps.policy.RestrictedFields = addFieldRule(ps.policy.RestrictedFields, collectionID, fields)
	return ps
}

func (ps PolicyStub) Get() entities.PermissionPolicy {
	return ps.policy
}

func addFieldRule(rules entities.FieldRules, collectionID int64, fields []string) entities.FieldRules {
	// copia para que stubs derivados não compartilhem o mapa
	next := make(entities.FieldRules, len(rules)+1)
	for id, set := range rules {
		next[id] = set
	}

	set := make(map[string]bool, len(fields))
	for _, field := range fields {
		set[field] = true
	}
	next[collectionID] = set

	return next
}
