package stubs

import (
	"encoding/json"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"time"

	"github.com/brianvoe/gofakeit/v6"
)

type EdgeStub struct {
	edge entities.Edge
}

func NewEdgeStub() EdgeStub {
	now := time.Now().UTC()

	sourceCollectionID := int64(gofakeit.Number(1, 50))
	sourceRecordID := int64(gofakeit.Number(1, 1000000))

	edge := entities.Edge{
		ID:                 gofakeit.Int64(),
		EdgeTypeID:         int64(gofakeit.Number(1, 100)),
		SourceCollectionID: &sourceCollectionID,
		SourceRecordID:     &sourceRecordID,
		TargetCollectionID: int64(gofakeit.Number(1, 50)),
		TargetRecordID:     int64(gofakeit.Number(1, 1000000)),
		Status:             entities.EdgeStatusActive,
		Strength:           entities.DefaultEdgeStrength,
		Metadata:           json.RawMessage(`{}`),
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	return EdgeStub{edge: edge}
}

func (es EdgeStub) WithID(id int64) EdgeStub {
	es.edge.ID = id
	return es
}

func (es EdgeStub) WithEdgeTypeID(edgeTypeID int64) EdgeStub {
	es.edge.EdgeTypeID = edgeTypeID
	return es
}

func (es EdgeStub) WithSource(ref domain.NodeRef) EdgeStub {
	collectionID, recordID := ref.CollectionID, ref.RecordID
	es.edge.SourceCollectionID = &collectionID
	es.edge.SourceRecordID = &recordID
	es.edge.CallerID = nil
	return es
}

// WithCaller transforma a aresta em atribuição.
func (es EdgeStub) WithCaller(callerID int64) EdgeStub {
	es.edge.CallerID = &callerID
	es.edge.SourceCollectionID = nil
	es.edge.SourceRecordID = nil
	return es
}

func (es EdgeStub) WithTarget(ref domain.NodeRef) EdgeStub {
	es.edge.TargetCollectionID = ref.CollectionID
	es.edge.TargetRecordID = ref.RecordID
	return es
}

func (es EdgeStub) WithRole(role string) EdgeStub {
	es.edge.Role = role
	return es
}

func (es EdgeStub) WithStatus(status entities.EdgeStatus) EdgeStub {
	es.edge.Status = status
	return es
}

func (es EdgeStub) WithStrength(strength float64) EdgeStub {
	es.edge.Strength = strength
	return es
}

func (es EdgeStub) WithMetadata(metadata map[string]interface{}) EdgeStub {
	metadataJSON, _ := json.Marshal(metadata)
	es.edge.Metadata = metadataJSON
	return es
}

func (es EdgeStub) Deleted() EdgeStub {
	now := time.Now().UTC()
	es.edge.IsDeleted = true
	es.edge.DeletedAt = &now
	return es
}

func (es EdgeStub) Get() entities.Edge {
	return es.edge
}
