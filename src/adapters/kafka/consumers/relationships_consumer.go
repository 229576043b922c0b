package consumers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/kafka"
)

// RelationshipWriter é implementado por *edges.EdgeService.
type RelationshipWriter interface {
	CreateEdge(ctx context.Context, edgeTypeSlug string, source domain.EdgeSource, target domain.NodeRef, attrs domain.EdgeAttributes, actor *int64) (*entities.Edge, domain.EdgeOutcome, error)
	SoftDeleteByEndpoints(ctx context.Context, edgeTypeSlug string, source domain.EdgeSource, target domain.NodeRef, actor *int64) (*entities.Edge, error)
}

// RelationshipsConsumer aplica as mudanças de campos de relacionamento
// publicadas pela camada de registros.
type RelationshipsConsumer struct {
	logger *slog.Logger
	writer RelationshipWriter
}

func NewRelationshipsConsumer(
	logger *slog.Logger,
	writer RelationshipWriter,
) *RelationshipsConsumer {
	return &RelationshipsConsumer{
		logger: logger,
		writer: writer,
	}
}

func (c *RelationshipsConsumer) Start(ctx context.Context, kafkaClient *kafka.KafkaClient, topic string) error {
	c.logger.Info("Starting relationships consumer", "topic", topic)

	handler := func(messages []kafka.Message) error {
		return c.HandleMessages(ctx, messages)
	}

	return kafkaClient.Consumer(ctx, handler, topic)
}

// HandleMessages processa o lote em ordem. Mensagens que nunca vão passar
// (JSON inválido, ValidationError, CardinalityViolation) são logadas e
// descartadas; qualquer outro erro devolve o lote para reentrega, e o lote é
// reaplicado do começo (create e soft delete são idempotentes).
func (c *RelationshipsConsumer) HandleMessages(ctx context.Context, messages []kafka.Message) error {
	if len(messages) == 0 {
		return nil
	}

	c.logger.Info("Processing relationships batch", "count", len(messages))

	applied, skipped := 0, 0
	for _, msg := range messages {
		var change domain.RelationshipChange
		if err := json.Unmarshal(msg.Value, &change); err != nil {
			c.logger.Error("Failed to unmarshal message",
				"error", err,
				"key", msg.Key,
				"value", string(msg.Value))
			skipped++
			continue
		}

		err := c.apply(ctx, change)
		if err == nil {
			applied++
			continue
		}

		if isPoison(err) {
			c.logger.Warn("Skipping relationship change",
				"error", err,
				"key", msg.Key,
				"op", change.Op,
				"edge_type", change.EdgeType)
			skipped++
			continue
		}

		c.logger.Error("Failed to apply relationship change",
			"error", err,
			"key", msg.Key,
			"op", change.Op,
			"edge_type", change.EdgeType)
		return fmt.Errorf("failed to apply relationship change with key %s: %w", msg.Key, err)
	}

	c.logger.Info("Successfully processed relationships batch",
		"count", len(messages),
		"applied", applied,
		"skipped", skipped)

	return nil
}

func (c *RelationshipsConsumer) apply(ctx context.Context, change domain.RelationshipChange) error {
	if change.EdgeType == "" {
		return domain.NewValidationError("edge_type", "edge_type is required")
	}

	var source domain.EdgeSource
	switch {
	case change.Source != nil && change.CallerID == nil:
		source = domain.RecordSource(*change.Source)
	case change.Source == nil && change.CallerID != nil:
		source = domain.CallerSource(*change.CallerID)
	default:
		return domain.NewValidationError("source", "exactly one of source or caller_id must be set")
	}

	var actor *int64
	if change.Actor != 0 {
		actor = &change.Actor
	}

	switch change.Op {
	case domain.RelationshipOpLink:
		_, _, err := c.writer.CreateEdge(ctx, change.EdgeType, source, change.Target, domain.EdgeAttributes{
			Role:     change.Role,
			Status:   change.Status,
			Strength: change.Strength,
			Metadata: change.Metadata,
		}, actor)
		return err

	case domain.RelationshipOpUnlink:
		_, err := c.writer.SoftDeleteByEndpoints(ctx, change.EdgeType, source, change.Target, actor)
		if errors.Is(err, domain.ErrEdgeNotFound) {
			// unlink repetido: a aresta já não existe
			return nil
		}
		return err
	}

	return domain.NewValidationError("op", "unknown op %q", change.Op)
}

func isPoison(err error) bool {
	return errors.Is(err, domain.ErrValidation) || errors.Is(err, domain.ErrCardinalityViolation)
}
