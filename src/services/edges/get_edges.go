package edges

import (
	"context"
	"fmt"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
)

// GetAssignments responde "a quem este caller está atribuído" sem travessia.
func (s *EdgeService) GetAssignments(ctx context.Context, callerID int64, edgeTypeSlug string) ([]entities.Edge, error) {
	edgeType, err := s.registry.GetBySlug(ctx, edgeTypeSlug)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.GetAssignments - %w", err)
	}

	assignments, err := s.reader.GetAssignments(ctx, callerID, edgeType.ID)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.GetAssignments - %w", err)
	}

	return assignments, nil
}

func (s *EdgeService) GetEdge(ctx context.Context, id int64, includeDeleted bool) (*entities.Edge, error) {
	edge, err := s.reader.GetEdge(ctx, id, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.GetEdge - %w", err)
	}
	return edge, nil
}

func (s *EdgeService) ListEdgesForRecord(ctx context.Context, record domain.NodeRef, includeDeleted bool) ([]entities.Edge, error) {
	edges, err := s.reader.ListEdgesForRecord(ctx, record, includeDeleted)
	if err != nil {
		return nil, fmt.Errorf("EdgeService.ListEdgesForRecord - %w", err)
	}
	return edges, nil
}
