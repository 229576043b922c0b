package kafka

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v5"
)

const (
	defaultBatchAttempts      = 5
	defaultBatchRetryInterval = 500 * time.Millisecond
)

type KafkaClient struct {
	consumer  sarama.ConsumerGroup
	producer  sarama.SyncProducer
	brokers   []string
	batchSize int
}

type Message struct {
	Key      string
	Value    []byte
	Headers  map[string]string
	internal *sarama.ConsumerMessage
}

type Handler func(messages []Message) error

// NewKafkaClient cria o consumer group e o producer síncrono. groupID vazio
// cria apenas o producer (processos que só publicam eventos de aresta).
func NewKafkaClient(brokers string, groupID string, batchSize int) (*KafkaClient, error) {
	brokerList := strings.Split(brokers, ",")
	if batchSize <= 0 {
		batchSize = 100
	}

	config := sarama.NewConfig()
	config.Version = sarama.V2_8_0_0

	config.Consumer.Group.Rebalance.Strategy = sarama.NewBalanceStrategyRoundRobin()
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Group.Session.Timeout = 30 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 10 * time.Second
	config.Consumer.MaxProcessingTime = 60 * time.Second
	config.Consumer.MaxWaitTime = 100 * time.Millisecond
	config.ChannelBufferSize = batchSize * 2

	// Eventos de aresta são particionados pelo id da aresta; WaitForAll garante
	// que a auditoria não perca um delete em caso de failover do líder.
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 3
	config.Producer.Return.Successes = true
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 50 * time.Millisecond
	config.Producer.MaxMessageBytes = 1024 * 1024

	client := &KafkaClient{
		brokers:   brokerList,
		batchSize: batchSize,
	}

	if groupID != "" {
		consumer, err := sarama.NewConsumerGroup(brokerList, groupID, config)
		if err != nil {
			return nil, fmt.Errorf("failed to create consumer group: %w", err)
		}
		client.consumer = consumer
	}

	producer, err := sarama.NewSyncProducer(brokerList, config)
	if err != nil {
		if client.consumer != nil {
			client.consumer.Close()
		}
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}
	client.producer = producer

	log.Printf("Kafka client initialized with batch size: %d", batchSize)

	return client, nil
}

func (k *KafkaClient) Consumer(ctx context.Context, handler Handler, topic string) error {
	if k.consumer == nil {
		return fmt.Errorf("kafka client was created without a consumer group")
	}

	consumerHandler := &consumerGroupHandler{
		handler:       handler,
		batchSize:     k.batchSize,
		batchTimeout:  2 * time.Second,
		maxAttempts:   defaultBatchAttempts,
		retryInterval: defaultBatchRetryInterval,
	}

	for {
		select {
		case <-ctx.Done():
			log.Println("Kafka consumer context cancelled")
			return nil
		default:
			if err := k.consumer.Consume(ctx, []string{topic}, consumerHandler); err != nil {
				log.Printf("Error consuming from topic %s: %v", topic, err)
				time.Sleep(5 * time.Second)
				continue
			}
		}
	}
}

func (k *KafkaClient) Producer(messages []Message, topic string) error {
	if len(messages) == 0 {
		return nil
	}

	kafkaMessages := make([]*sarama.ProducerMessage, 0, len(messages))
	for _, msg := range messages {
		headers := make([]sarama.RecordHeader, 0, len(msg.Headers))
		for key, value := range msg.Headers {
			headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
		}

		kafkaMessages = append(kafkaMessages, &sarama.ProducerMessage{
			Topic:   topic,
			Key:     sarama.StringEncoder(msg.Key),
			Value:   sarama.ByteEncoder(msg.Value),
			Headers: headers,
		})
	}

	// SendMessages mantém a ordem por partição, o que importa para created -> deleted da mesma aresta.
	if err := k.producer.SendMessages(kafkaMessages); err != nil {
		if producerErrors, ok := err.(sarama.ProducerErrors); ok {
			for _, producerErr := range producerErrors {
				log.Printf("  - message to %s failed: %v", topic, producerErr.Err)
			}
			return fmt.Errorf("batch send failed: %d/%d messages failed", len(producerErrors), len(kafkaMessages))
		}
		return fmt.Errorf("batch send failed: %w", err)
	}

	log.Printf("Batch sent successfully: %d messages to topic %s", len(kafkaMessages), topic)
	return nil
}

func (k *KafkaClient) Close() error {
	var errs []error

	if k.consumer != nil {
		if err := k.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close consumer: %w", err))
		}
	}

	if err := k.producer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("failed to close producer: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("errors closing kafka client: %v", errs)
	}

	return nil
}

// consumerGroupHandler implementa sarama.ConsumerGroupHandler. Um lote que
// continua falhando depois das tentativas encerra a sessão sem marcar nada
// dali em diante: o próximo Consume volta do último offset commitado.
type consumerGroupHandler struct {
	handler       Handler
	batchSize     int
	batchTimeout  time.Duration
	maxAttempts   uint
	retryInterval time.Duration
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	log.Printf("Kafka consumer group session setup - batch size: %d", h.batchSize)
	return nil
}

func (h *consumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	log.Println("Kafka consumer group session cleanup")
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	batchTimeout := h.batchTimeout

	log.Printf("Starting consumer for partition %d (batch: %d, timeout: %v)",
		claim.Partition(), h.batchSize, batchTimeout)

	messages := make([]Message, 0, h.batchSize)
	timer := time.NewTimer(batchTimeout)
	defer timer.Stop()

	for {
		select {
		case message := <-claim.Messages():
			if message == nil {
				if len(messages) > 0 {
					return h.processBatch(session, messages)
				}
				return nil
			}

			headers := make(map[string]string, len(message.Headers))
			for _, header := range message.Headers {
				if header != nil {
					headers[string(header.Key)] = string(header.Value)
				}
			}

			messages = append(messages, Message{
				Key:      string(message.Key),
				Value:    message.Value,
				Headers:  headers,
				internal: message,
			})

			if len(messages) >= h.batchSize {
				if err := h.processBatch(session, messages); err != nil {
					return err
				}
				messages = messages[:0]
				timer.Reset(batchTimeout)
			}

		case <-timer.C:
			if len(messages) > 0 {
				if err := h.processBatch(session, messages); err != nil {
					return err
				}
				messages = messages[:0]
			}
			timer.Reset(batchTimeout)

		case <-session.Context().Done():
			if len(messages) > 0 {
				return h.processBatch(session, messages)
			}
			return nil
		}
	}
}

func (h *consumerGroupHandler) processBatch(session sarama.ConsumerGroupSession, messages []Message) error {
	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = h.retryInterval

	_, err := backoff.Retry(session.Context(), func() (struct{}, error) {
		return struct{}{}, h.handler(messages)
	},
		backoff.WithBackOff(retry),
		backoff.WithMaxTries(h.maxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			log.Printf("Handler error for batch of %d messages, retrying in %v: %v", len(messages), next, err)
		}),
	)
	if err != nil {
		// Não marca as mensagens nem as seguintes - serão reentregues
		log.Printf("Giving up on batch of %d messages, restarting session: %v", len(messages), err)
		return fmt.Errorf("batch of %d messages failed: %w", len(messages), err)
	}

	for _, msg := range messages {
		if msg.internal != nil {
			session.MarkMessage(msg.internal, "")
		}
	}
	return nil
}
