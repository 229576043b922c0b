package edges

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/metrics"
)

// CreateEdge cria a aresta (ou ressuscita uma idêntica removida).
// Retorna CardinalityViolation quando já existe aresta ativa conflitante e
// ValidationError para input que o tipo não aceita.
func (s *EdgeService) CreateEdge(
	ctx context.Context,
	edgeTypeSlug string,
	source domain.EdgeSource,
	target domain.NodeRef,
	attrs domain.EdgeAttributes,
	actor *int64,
) (*entities.Edge, domain.EdgeOutcome, error) {
	edgeType, err := s.registry.GetBySlug(ctx, edgeTypeSlug)
	if err != nil {
		if errors.Is(err, domain.ErrEdgeTypeNotFound) {
			return nil, "", domain.NewValidationError("edge_type", "unknown edge type %q", edgeTypeSlug)
		}
		return nil, "", fmt.Errorf("EdgeService.CreateEdge - failed to load edge type: %w", err)
	}

	edge, err := s.buildEdge(*edgeType, source, target, attrs, actor)
	if err != nil {
		return nil, "", err
	}

	return s.persist(ctx, *edgeType, edge, actor, domain.EdgeEventCreated)
}

func (s *EdgeService) persist(ctx context.Context, edgeType entities.EdgeType, edge entities.Edge, actor *int64, createdEvent string) (*entities.Edge, domain.EdgeOutcome, error) {
	saved, outcome, err := s.writer.CreateEdge(ctx, edgeType, edge)
	if err != nil {
		var violation *domain.CardinalityViolation
		if errors.As(err, &violation) {
			metrics.CardinalityViolations.WithLabelValues(edgeType.Slug).Inc()
			s.logger.Info("Edge rejected by cardinality",
				"edge_type", edgeType.Slug,
				"side", violation.Side,
				"conflicting_edge_id", violation.ConflictingEdgeID)
			return nil, "", violation
		}
		return nil, "", fmt.Errorf("EdgeService.CreateEdge - %w", err)
	}

	metrics.EdgeMutations.WithLabelValues(string(outcome)).Inc()

	switch outcome {
	case domain.EdgeCreated:
		s.afterMutation(ctx, createdEvent, *saved, actor)
	case domain.EdgeResurrected:
		s.afterMutation(ctx, domain.EdgeEventResurrected, *saved, actor)
	}

	s.logger.Debug("Edge persisted", "edge_id", saved.ID, "edge_type", edgeType.Slug, "outcome", outcome)
	return saved, outcome, nil
}

func (s *EdgeService) buildEdge(
	edgeType entities.EdgeType,
	source domain.EdgeSource,
	target domain.NodeRef,
	attrs domain.EdgeAttributes,
	actor *int64,
) (entities.Edge, error) {
	if !source.Valid() {
		return entities.Edge{}, domain.NewValidationError("source", "exactly one of source record or caller must be set")
	}
	if target.CollectionID <= 0 || target.RecordID <= 0 {
		return entities.Edge{}, domain.NewValidationError("target", "target collection and record are required")
	}

	edge := entities.Edge{
		EdgeTypeID:         edgeType.ID,
		TargetCollectionID: target.CollectionID,
		TargetRecordID:     target.RecordID,
		Role:               attrs.Role,
		Status:             entities.EdgeStatusActive,
		Strength:           entities.DefaultEdgeStrength,
		Metadata:           attrs.Metadata,
		CreatedBy:          actor,
	}

	if source.Record != nil {
		if source.Record.CollectionID <= 0 || source.Record.RecordID <= 0 {
			return entities.Edge{}, domain.NewValidationError("source", "source collection and record are required")
		}
		if !s.registry.CanCreateEdge(edgeType, source.Record.CollectionID, target.CollectionID) {
			return entities.Edge{}, domain.NewValidationError("edge_type",
				"%s does not allow collection %d -> collection %d", edgeType.Slug, source.Record.CollectionID, target.CollectionID)
		}
		if !edgeType.AllowSelfReference && *source.Record == target {
			return entities.Edge{}, domain.NewValidationError("target", "%s does not allow self reference", edgeType.Slug)
		}

		sourceCollectionID := source.Record.CollectionID
		sourceRecordID := source.Record.RecordID
		edge.SourceCollectionID = &sourceCollectionID
		edge.SourceRecordID = &sourceRecordID
	} else {
		if *source.CallerID <= 0 {
			return entities.Edge{}, domain.NewValidationError("caller_id", "caller id is required")
		}
		if !s.registry.CanAssign(edgeType, target.CollectionID) {
			return entities.Edge{}, domain.NewValidationError("edge_type",
				"%s does not allow assignments to collection %d", edgeType.Slug, target.CollectionID)
		}

		callerID := *source.CallerID
		edge.CallerID = &callerID
	}

	if attrs.Status != "" {
		edge.Status = entities.EdgeStatus(attrs.Status)
		if !edge.Status.Valid() {
			return entities.Edge{}, domain.NewValidationError("status", "invalid status %q", attrs.Status)
		}
	}

	if attrs.Strength != nil {
		if math.IsNaN(*attrs.Strength) || math.IsInf(*attrs.Strength, 0) || *attrs.Strength < 0 {
			return entities.Edge{}, domain.NewValidationError("strength", "strength must be a non-negative number")
		}
		edge.Strength = *attrs.Strength
	}

	if len(attrs.Metadata) > 0 {
		var bag map[string]interface{}
		if err := json.Unmarshal(attrs.Metadata, &bag); err != nil {
			return entities.Edge{}, domain.NewValidationError("metadata", "metadata must be a JSON object")
		}
	}

	return edge, nil
}
