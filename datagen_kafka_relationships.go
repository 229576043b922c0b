//go:build datagen_kafka_relationships
// +build datagen_kafka_relationships

package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"relgraph/src/domain"
	"relgraph/src/infra/kafka"
	"syscall"
	"time"

	"github.com/go-faker/faker/v4"
)

// Tipos de sistema many_to_many: qualquer par gerado é aceito pelo consumer.
var linkTypes = []struct {
	slug     string
	source   int64
	target   int64
	withRole bool
}{
	{slug: "follows", source: 1, target: 1},
	{slug: "related_to", source: 1, target: 3, withRole: true},
	{slug: "related_to", source: 2, target: 2},
}

var roles = []string{"owner", "contributor", "reviewer", "sponsor"}

func randomRef(collectionID int64, maxRecordID int) domain.NodeRef {
	return domain.NodeRef{CollectionID: collectionID, RecordID: int64(rand.Intn(maxRecordID) + 1)}
}

// generateBatch cria mudanças de relacionamento. Parte dos links gerados volta
// depois como unlink, para exercitar soft delete e ressurreição.
func generateBatch(size int, maxRecordID int, unlinkRatio float64, history *[]domain.RelationshipChange) []domain.RelationshipChange {
	changes := make([]domain.RelationshipChange, 0, size)

	for len(changes) < size {
		if len(*history) > 0 && rand.Float64() < unlinkRatio {
			idx := rand.Intn(len(*history))
			unlink := (*history)[idx]
			unlink.Op = domain.RelationshipOpUnlink
			unlink.Role, unlink.Strength, unlink.Metadata = "", nil, nil
			changes = append(changes, unlink)

			(*history)[idx] = (*history)[len(*history)-1]
			*history = (*history)[:len(*history)-1]
			continue
		}

		linkType := linkTypes[rand.Intn(len(linkTypes))]
		source := randomRef(linkType.source, maxRecordID)
		target := randomRef(linkType.target, maxRecordID)
		if source == target {
			continue
		}

		strength := float64(rand.Intn(100)+1) / 100
		metadata, _ := json.Marshal(map[string]string{
			"origin":     "datagen",
			"request_id": faker.UUIDHyphenated(),
		})

		change := domain.RelationshipChange{
			Op:       domain.RelationshipOpLink,
			EdgeType: linkType.slug,
			Source:   &source,
			Target:   target,
			Strength: &strength,
			Metadata: metadata,
			Actor:    int64(rand.Intn(1000) + 1),
		}
		if linkType.withRole {
			change.Role = roles[rand.Intn(len(roles))]
		}

		changes = append(changes, change)
		*history = append(*history, change)
	}

	return changes
}

func main() {
	rand.Seed(time.Now().UnixNano())

	totalMessages := flag.Int("count", 1000, "Total number of messages to generate. Use -1 for infinite.")
	batchSize := flag.Int("batch-size", 100, "Number of messages per batch")
	topic := flag.String("topic", "", "Kafka topic to send messages to (required)")
	brokers := flag.String("brokers", "", "Kafka brokers (comma-separated) (required)")
	maxRecordID := flag.Int("max-record-id", 10000, "Highest record id used when picking endpoints")
	unlinkRatio := flag.Float64("unlink-ratio", 0.1, "Fraction of messages that unlink a previously linked pair")
	delayMs := flag.Int("delay-ms", 100, "Delay in milliseconds between batches")
	flag.Parse()

	if *topic == "" {
		log.Fatal("The 'topic' flag is required")
	}
	if *brokers == "" {
		log.Fatal("The 'brokers' flag is required")
	}

	isInfinite := *totalMessages == -1
	if isInfinite {
		log.Printf("Starting relationships datagen in INFINITE mode with batches of %d", *batchSize)
	} else {
		log.Printf("Starting relationships datagen with %d messages in batches of %d", *totalMessages, *batchSize)
	}

	// sem group id: só producer
	kafkaClient, err := kafka.NewKafkaClient(*brokers, "", *batchSize)
	if err != nil {
		log.Fatalf("Failed to create Kafka client: %v", err)
	}
	defer kafkaClient.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Println("Received shutdown signal, stopping...")
		cancel()
	}()

	var history []domain.RelationshipChange
	messagesSent := 0
	startTime := time.Now()

	for isInfinite || messagesSent < *totalMessages {
		select {
		case <-ctx.Done():
			log.Println("Shutdown requested, stopping message generation")
			return
		default:
		}

		currentBatchSize := *batchSize
		if !isInfinite {
			remainingMessages := *totalMessages - messagesSent
			if remainingMessages < currentBatchSize {
				currentBatchSize = remainingMessages
			}
		}

		batch := generateBatch(currentBatchSize, *maxRecordID, *unlinkRatio, &history)

		kafkaMessages := make([]kafka.Message, 0, len(batch))
		for _, change := range batch {
			msgBytes, err := json.Marshal(change)
			if err != nil {
				log.Printf("Failed to marshal message: %v", err)
				continue
			}

			// mesma chave para o mesmo source: link e unlink caem na mesma partição
			kafkaMessages = append(kafkaMessages, kafka.Message{
				Key:   fmt.Sprintf("%s:%s", change.EdgeType, change.Source),
				Value: msgBytes,
			})
		}

		if err := kafkaClient.Producer(kafkaMessages, *topic); err != nil {
			log.Printf("Failed to send batch: %v", err)
			continue
		}

		messagesSent += len(batch)

		if messagesSent%500 == 0 || (!isInfinite && messagesSent == *totalMessages) {
			elapsed := time.Since(startTime)
			rate := float64(messagesSent) / elapsed.Seconds()
			log.Printf("Sent %d messages (%.1f msg/sec)", messagesSent, rate)
		}

		if *delayMs > 0 && (isInfinite || messagesSent < *totalMessages) {
			time.Sleep(time.Duration(*delayMs) * time.Millisecond)
		}
	}

	elapsed := time.Since(startTime)
	log.Printf("✅ Completed! Sent %d messages in %v (%.1f msg/sec)", messagesSent, elapsed, float64(messagesSent)/elapsed.Seconds())
}
