package edgetypes

import (
	"context"
	"fmt"
	"relgraph/src/domain/entities"
)

// SystemTypes é o catálogo de tipos conhecidos semeados em todo ambiente.
var SystemTypes = []EdgeTypeConfig{
	{Slug: "works_at", Name: "Works at", ForwardLabel: "works_at", ReverseLabel: "employs", Cardinality: string(entities.CardinalityManyToOne), IsBidirectional: true},
	{Slug: "related_to", Name: "Related to", ForwardLabel: "related_to", ReverseLabel: "related_to", Cardinality: string(entities.CardinalityManyToMany), IsBidirectional: true},
	{Slug: "assigned_to", Name: "Assigned to", ForwardLabel: "assigned_to", ReverseLabel: "assignee_of", Cardinality: string(entities.CardinalityManyToMany)},
	{Slug: "reports_to", Name: "Reports to", ForwardLabel: "reports_to", ReverseLabel: "manages", Cardinality: string(entities.CardinalityManyToOne), IsBidirectional: true},
	{Slug: "belongs_to", Name: "Belongs to", ForwardLabel: "belongs_to", ReverseLabel: "contains", Cardinality: string(entities.CardinalityManyToOne), IsBidirectional: true},
	{Slug: "parent_of", Name: "Parent of", ForwardLabel: "parent_of", ReverseLabel: "child_of", Cardinality: string(entities.CardinalityOneToMany), IsBidirectional: true},
	{Slug: "owns", Name: "Owns", ForwardLabel: "owns", ReverseLabel: "owned_by", Cardinality: string(entities.CardinalityOneToMany)},
	{Slug: "follows", Name: "Follows", ForwardLabel: "follows", ReverseLabel: "followed_by", Cardinality: string(entities.CardinalityManyToMany)},
}

// SeedSystemTypes cria o catálogo de tipos de sistema. Pode ser chamado
// quantas vezes for preciso: slugs já existentes são mantidos como estão.
func (r *Registry) SeedSystemTypes(ctx context.Context) ([]entities.EdgeType, error) {
	seeded := make([]entities.EdgeType, 0, len(SystemTypes))

	for _, config := range SystemTypes {
		edgeType, err := BuildEdgeType(config)
		if err != nil {
			return nil, fmt.Errorf("Registry.SeedSystemTypes - invalid catalog entry %q: %w", config.Slug, err)
		}
		edgeType.IsSystem = true

		saved, created, err := r.store.InsertIfAbsent(ctx, edgeType)
		if err != nil {
			return nil, fmt.Errorf("Registry.SeedSystemTypes - failed to seed %q: %w", config.Slug, err)
		}

		if created {
			r.logger.Info("System edge type seeded", "slug", saved.Slug, "edge_type_id", saved.ID)
		}
		seeded = append(seeded, *saved)
	}

	return seeded, nil
}
