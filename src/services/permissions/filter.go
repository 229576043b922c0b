package permissions

import (
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
)

// Filter aplica as policies de um caller type. Sem policy para um tipo de
// aresta o default é permissivo: qualquer direção, profundidade 3.
type Filter struct {
	callerType string
	policies   map[int64]entities.PermissionPolicy
}

func NewFilter(callerType string, policies map[int64]entities.PermissionPolicy) *Filter {
	if policies == nil {
		policies = map[int64]entities.PermissionPolicy{}
	}
	return &Filter{callerType: callerType, policies: policies}
}

func (f *Filter) CallerType() string {
	return f.callerType
}

// Restricted indica se alguma policy se aplica ao caller type.
func (f *Filter) Restricted() bool {
	return len(f.policies) > 0
}

// DeniedForward lista os tipos que o caller não pode percorrer no sentido forward.
func (f *Filter) DeniedForward() []int64 {
	denied := make([]int64, 0)
	for edgeTypeID, policy := range f.policies {
		if !policy.CanTraverseForward {
			denied = append(denied, edgeTypeID)
		}
	}
	return denied
}

// CanTraverse com DirectionBoth exige as duas direções.
func (f *Filter) CanTraverse(edgeTypeID int64, direction domain.Direction) bool {
	policy, ok := f.policies[edgeTypeID]
	if !ok {
		return direction.Valid()
	}

	switch direction {
	case domain.DirectionForward:
		return policy.CanTraverseForward
	case domain.DirectionReverse:
		return policy.CanTraverseReverse
	case domain.DirectionBoth:
		return policy.CanTraverseForward && policy.CanTraverseReverse
	}

	return false
}

func (f *Filter) MaxDepth(edgeTypeID int64) int {
	policy, ok := f.policies[edgeTypeID]
	if !ok || policy.MaxDepth <= 0 {
		return entities.DefaultPolicyMaxDepth
	}
	return policy.MaxDepth
}

// ForwardDepthLimits devolve a profundidade máxima das policies explícitas
// dos tipos que o caller pode percorrer no sentido forward. Tipos sem policy
// ficam de fora e seguem só o limite da consulta.
func (f *Filter) ForwardDepthLimits() map[int64]int {
	limits := make(map[int64]int)
	for edgeTypeID, policy := range f.policies {
		if policy.CanTraverseForward && policy.MaxDepth > 0 {
			limits[edgeTypeID] = policy.MaxDepth
		}
	}
	return limits
}

// VisibleFields combina a permissão de campo que o caller já tem (baseline)
// com a policy do tipo de aresta: baseline ∧ visível ∧ ¬restrito.
// Se a policy não define nem visible nem restricted para a coleção, o
// baseline passa sem alteração.
func (f *Filter) VisibleFields(edgeTypeID int64, targetCollectionID int64, baseline map[string]bool) map[string]bool {
	result := make(map[string]bool, len(baseline))

	policy, ok := f.policies[edgeTypeID]
	visible := policy.VisibleFields[targetCollectionID]
	restricted := policy.RestrictedFields[targetCollectionID]

	if !ok || (len(visible) == 0 && len(restricted) == 0) {
		for field, allowed := range baseline {
			result[field] = allowed
		}
		return result
	}

	for field, allowed := range baseline {
		if len(visible) > 0 && !visible[field] {
			allowed = false
		}
		if restricted[field] {
			allowed = false
		}
		result[field] = allowed
	}

	return result
}

// ValidatePath percorre um caminho explícito e devolve o primeiro ponto de falha.
// AccessibleDepth é o número de passos válidos antes da falha.
func (f *Filter) ValidatePath(steps []domain.PathStep) domain.PathValidation {
	for i, step := range steps {
		if !step.Direction.Valid() {
			return domain.PathValidation{
				Valid:           false,
				AccessibleDepth: i,
				Error:           fmt.Sprintf("step %d: invalid direction %q", i+1, step.Direction),
			}
		}

		if !f.CanTraverse(step.EdgeTypeID, step.Direction) {
			return domain.PathValidation{
				Valid:           false,
				AccessibleDepth: i,
				Error:           fmt.Sprintf("step %d: cannot traverse edge type %d in direction %s", i+1, step.EdgeTypeID, step.Direction),
			}
		}

		if maxDepth := f.MaxDepth(step.EdgeTypeID); i+1 > maxDepth {
			return domain.PathValidation{
				Valid:           false,
				AccessibleDepth: i,
				Error:           fmt.Sprintf("step %d: depth exceeds max depth %d for edge type %d", i+1, maxDepth, step.EdgeTypeID),
			}
		}
	}

	return domain.PathValidation{Valid: true, AccessibleDepth: len(steps)}
}

// AllowsRow aplica a checagem de ValidatePath a cada passo do caminho que
// levou até a linha expandida.
func (f *Filter) AllowsRow(row domain.ExpansionRow) bool {
	for i, edgeTypeID := range row.PathEdgeTypeIDs {
		direction := row.Direction
		if i < len(row.PathDirections) {
			direction = row.PathDirections[i]
		}
		if !f.CanTraverse(edgeTypeID, direction) {
			return false
		}
		if i+1 > f.MaxDepth(edgeTypeID) {
			return false
		}
	}
	return true
}
