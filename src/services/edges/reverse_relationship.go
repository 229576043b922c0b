package edges

import (
	"context"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
)

// CreateReverseRelationship grava uma segunda aresta com origem e destino
// trocados. Só faz sentido para tipos não bidirecionais: nos bidirecionais a
// travessia já percorre a aresta original nos dois sentidos.
func (s *EdgeService) CreateReverseRelationship(ctx context.Context, edgeID int64, actor *int64) (*entities.Edge, domain.EdgeOutcome, error) {
	original, err := s.reader.GetEdge(ctx, edgeID, false)
	if err != nil {
		return nil, "", fmt.Errorf("EdgeService.CreateReverseRelationship - %w", err)
	}

	if original.IsAssignment() {
		return nil, "", domain.NewValidationError("edge_id", "assignment edge %d cannot be mirrored", edgeID)
	}

	edgeType, err := s.registry.GetByID(ctx, original.EdgeTypeID)
	if err != nil {
		return nil, "", fmt.Errorf("EdgeService.CreateReverseRelationship - failed to load edge type: %w", err)
	}

	strength := original.Strength
	mirror, err := s.buildEdge(
		*edgeType,
		domain.RecordSource(domain.NodeRef{CollectionID: original.TargetCollectionID, RecordID: original.TargetRecordID}),
		domain.NodeRef{CollectionID: *original.SourceCollectionID, RecordID: *original.SourceRecordID},
		domain.EdgeAttributes{
			Role:     original.Role,
			Status:   string(original.Status),
			Strength: &strength,
			Metadata: original.Metadata,
		},
		actor,
	)
	if err != nil {
		return nil, "", err
	}

	return s.persist(ctx, *edgeType, mirror, actor, domain.EdgeEventReverseCreated)
}
