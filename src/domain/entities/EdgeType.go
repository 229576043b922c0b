package entities

import "time"

type Cardinality string

const (
	CardinalityOneToOne   Cardinality = "one_to_one"
	CardinalityOneToMany  Cardinality = "one_to_many"
	CardinalityManyToOne  Cardinality = "many_to_one"
	CardinalityManyToMany Cardinality = "many_to_many"
)

func (c Cardinality) Valid() bool {
	switch c {
	case CardinalityOneToOne, CardinalityOneToMany, CardinalityManyToOne, CardinalityManyToMany:
		return true
	}
	return false
}

// LimitsOutgoing reports whether a source may hold at most one active edge of the type.
func (c Cardinality) LimitsOutgoing() bool {
	return c == CardinalityOneToOne || c == CardinalityManyToOne
}

// LimitsIncoming reports whether a target may hold at most one active edge of the type.
func (c Cardinality) LimitsIncoming() bool {
	return c == CardinalityOneToOne || c == CardinalityOneToMany
}

// EdgeType é o schema de uma classe de arestas.
type EdgeType struct {
	ID              int64       `json:"id"`
	Slug            string      `json:"slug"`
	Name            string      `json:"name"`
	ForwardLabel    string      `json:"forward_label"`
	ReverseLabel    string      `json:"reverse_label"`
	Cardinality     Cardinality `json:"cardinality"`
	IsBidirectional bool        `json:"is_bidirectional"`
	IsSystem        bool        `json:"is_system"`
	// Restringem quais coleções podem aparecer em cada lado da aresta.
	SourceCollectionConstraint *int64     `json:"source_collection_constraint,omitempty"`
	TargetCollectionConstraint *int64     `json:"target_collection_constraint,omitempty"`
	AllowSelfReference         bool       `json:"allow_self_reference"`
	IsDeleted                  bool       `json:"is_deleted"`
	DeletedAt                  *time.Time `json:"deleted_at,omitempty"`
	CreatedAt                  time.Time  `json:"created_at"`
	UpdatedAt                  time.Time  `json:"updated_at"`
}

// AllowsCollections checks the collection constraints of both sides.
func (et EdgeType) AllowsCollections(sourceCollectionID, targetCollectionID int64) bool {
	if et.SourceCollectionConstraint != nil && *et.SourceCollectionConstraint != sourceCollectionID {
		return false
	}
	if et.TargetCollectionConstraint != nil && *et.TargetCollectionConstraint != targetCollectionID {
		return false
	}
	return true
}

func (et EdgeType) AllowsTarget(targetCollectionID int64) bool {
	return et.TargetCollectionConstraint == nil || *et.TargetCollectionConstraint == targetCollectionID
}
