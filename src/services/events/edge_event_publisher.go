package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/kafka"
	"strconv"
	"time"

	"github.com/google/uuid"
)

// MessageProducer é satisfeito por *kafka.KafkaClient.
type MessageProducer interface {
	Producer(messages []kafka.Message, topic string) error
}

// EdgeEventPublisher publica o ciclo de vida das arestas para a auditoria.
type EdgeEventPublisher struct {
	logger   *slog.Logger
	producer MessageProducer
	topic    string
	now      func() time.Time
}

func NewEdgeEventPublisher(
	logger *slog.Logger,
	producer MessageProducer,
	topic string,
) *EdgeEventPublisher {
	return &EdgeEventPublisher{
		logger:   logger,
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

func NewEdgeEvent(eventType string, edge entities.Edge, actor *int64, occurredAt time.Time) domain.EdgeEvent {
	event := domain.EdgeEvent{
		EventID:    uuid.New().String(),
		EventType:  eventType,
		EdgeID:     edge.ID,
		EdgeTypeID: edge.EdgeTypeID,
		CallerID:   edge.CallerID,
		Target:     domain.NodeRef{CollectionID: edge.TargetCollectionID, RecordID: edge.TargetRecordID},
		ActorID:    actor,
		OccurredAt: occurredAt.UTC(),
	}

	if edge.SourceCollectionID != nil && edge.SourceRecordID != nil {
		event.Source = &domain.NodeRef{CollectionID: *edge.SourceCollectionID, RecordID: *edge.SourceRecordID}
	}

	return event
}

// Publish envia os eventos em lote. A chave é o id da aresta, então eventos
// da mesma aresta caem na mesma partição e mantêm a ordem.
func (p *EdgeEventPublisher) Publish(ctx context.Context, events []domain.EdgeEvent) error {
	if len(events) == 0 {
		return nil
	}

	kafkaMessages := make([]kafka.Message, 0, len(events))
	for _, event := range events {
		eventBytes, err := json.Marshal(event)
		if err != nil {
			p.logger.Error("Failed to marshal edge event",
				"error", err,
				"event_id", event.EventID,
				"edge_id", event.EdgeID)
			continue
		}

		kafkaMessages = append(kafkaMessages, kafka.Message{
			Key:     strconv.FormatInt(event.EdgeID, 10),
			Value:   eventBytes,
			Headers: p.createEventHeaders(event),
		})
	}

	if err := p.producer.Producer(kafkaMessages, p.topic); err != nil {
		p.logger.Error("Failed to publish edge events to Kafka",
			"error", err,
			"topic", p.topic,
			"events_count", len(kafkaMessages))
		return fmt.Errorf("failed to publish edge events to topic %s: %w", p.topic, err)
	}

	p.logger.Debug("Published edge events",
		"topic", p.topic,
		"events_count", len(kafkaMessages))

	return nil
}

func (p *EdgeEventPublisher) PublishEdge(ctx context.Context, eventType string, edge entities.Edge, actor *int64) error {
	return p.Publish(ctx, []domain.EdgeEvent{NewEdgeEvent(eventType, edge, actor, p.now())})
}

func (p *EdgeEventPublisher) createEventHeaders(event domain.EdgeEvent) map[string]string {
	headers := map[string]string{
		"event_type":     event.EventType,
		"event_id":       event.EventID,
		"edge_type_id":   strconv.FormatInt(event.EdgeTypeID, 10),
		"source_service": "relgraph",
		"schema_version": "v1",
	}

	if event.CallerID != nil {
		headers["edge_shape"] = "assignment"
	} else {
		headers["edge_shape"] = "record"
	}

	return headers
}
