package stubs

import (
	"fmt"
	"relgraph/src/domain/entities"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

type EdgeTypeStub struct {
	edgeType entities.EdgeType
}

func NewEdgeTypeStub() EdgeTypeStub {
	now := time.Now().UTC()

	slug := fmt.Sprintf("%s_%d", strings.ToLower(gofakeit.Letter()+gofakeit.LetterN(7)), gofakeit.Number(1, 99999))

	edgeType := entities.EdgeType{
		ID:                 int64(gofakeit.Number(1, 100000)),
		Slug:               slug,
		Name:               gofakeit.JobTitle(),
		ForwardLabel:       slug,
		ReverseLabel:       "reverse_" + slug,
		Cardinality:        entities.CardinalityManyToMany,
		AllowSelfReference: true,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return EdgeTypeStub{edgeType: edgeType}
}

func (s EdgeTypeStub) WithID(id int64) EdgeTypeStub {
	s.edgeType.ID = id
	return s
}

func (s EdgeTypeStub) WithSlug(slug string) EdgeTypeStub {
	s.edgeType.Slug = slug
	s.edgeType.ForwardLabel = slug
	s.edgeType.ReverseLabel = "reverse_" + slug
	return s
}

func (s EdgeTypeStub) WithCardinality(cardinality entities.Cardinality) EdgeTypeStub {
	s.edgeType.Cardinality = cardinality
	return s
}

func (s EdgeTypeStub) Bidirectional() EdgeTypeStub {
	s.edgeType.IsBidirectional = true
	return s
}

func (s EdgeTypeStub) System() EdgeTypeStub {
	s.edgeType.IsSystem = true
	return s
}

func (s EdgeTypeStub) WithSourceConstraint(collectionID int64) EdgeTypeStub {
	s.edgeType.SourceCollectionConstraint = &collectionID
	return s
}

func (s EdgeTypeStub) WithTargetConstraint(collectionID int64) EdgeTypeStub {
	s.edgeType.TargetCollectionConstraint = &collectionID
	return s
}

func (s EdgeTypeStub) WithoutSelfReference() EdgeTypeStub {
	s.edgeType.AllowSelfReference = false
	return s
}

func (s EdgeTypeStub) Deleted() EdgeTypeStub {
	now := time.Now().UTC()
	s.edgeType.IsDeleted = true
	s.edgeType.DeletedAt = &now
	return s
}

func (s EdgeTypeStub) Get() entities.EdgeType {
	return s.edgeType
}
