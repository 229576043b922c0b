package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"relgraph/src/adapters/kafka/consumers"
	"relgraph/src/helper/env"
	"relgraph/src/infra/kafka"
	"relgraph/src/infra/metrics"
	"relgraph/src/infra/postgres"
	"relgraph/src/infra/redis"
	"relgraph/src/repositories"
	"relgraph/src/services/edges"
	"relgraph/src/services/edgetypes"
	"relgraph/src/services/events"
	"syscall"
	"time"

	"go.uber.org/fx"
)

func main() {
	log.SetOutput(os.Stdout)
	log.Println("Starting Relationships Consumer with Uber Fx...")

	app := fx.New(
		// Providers
		fx.Provide(
			newLogger,
			newReadWriteClient,
			newRedisClient,
			newKafkaClient,
			newMetricsServer,
			newEdgeTypeRepository,
			newEdgeWriteRepository,
			newEdgeQueryRepository,
			newResultCacheRepository,
			newPathCacheRepository,
			newRegistry,
			newEdgeEventPublisher,
			newEdgeService,
			newRelationshipsConsumer,
		),

		// Invocations
		fx.Invoke(startMetricsServer, startPathCachePurger, startConsumer),
	)

	// Start the application
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to start consumer application: %v", err)
	}

	// Wait for interrupt signal to gracefully shutdown
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	<-c

	log.Println("Shutting down relationships consumer...")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()

	if err := app.Stop(stopCtx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}

	log.Println("Relationships consumer shutdown complete")
}

func newLogger() *slog.Logger {
	logLevel := env.GetString("LOG_LEVEL", "info")
	var level slog.Level

	switch logLevel {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func newReadWriteClient() (*postgres.ReadWriteClient, error) {
	dbReadHost := env.MustGetString("DB_READ_HOST")
	dbWriteHost := env.MustGetString("DB_WRITE_HOST")
	dbReadPort := env.GetString("DB_READ_PORT", "5432")
	dbWritePort := env.GetString("DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("DB_NAME")
	dbUser := env.MustGetString("DB_USER")
	dbPassword := env.MustGetString("DB_PASSWORD")
	maxConnections := env.GetInt("DB_MAX_POOL_CONNECTIONS", 25)

	return postgres.NewReadWriteClient(dbReadHost, dbWriteHost, dbReadPort, dbWritePort, dbname, dbUser, dbPassword, maxConnections)
}

func newRedisClient() *redis.RedisClient {
	redisHosts := env.MustGetString("REDIS_HOSTS")
	redisPoolSize := env.GetInt("REDIS_POOL_SIZE", 50)
	redisDefaultTTL := env.GetSeconds("REDIS_DEFAULT_TTL_SECONDS", 120)

	return redis.NewRedisClient(redisHosts, redisPoolSize, redisDefaultTTL)
}

func newKafkaClient() (*kafka.KafkaClient, error) {
	brokers := env.MustGetString("KAFKA_BROKERS")
	groupID := env.MustGetString("KAFKA_RELATIONSHIPS_CONSUMER_GROUP_ID")
	batchSize := env.GetInt("KAFKA_BATCH_SIZE", 100)

	return kafka.NewKafkaClient(brokers, groupID, batchSize)
}

func newMetricsServer() *metrics.Server {
	return metrics.NewServer(env.GetString("METRICS_ADDR", ":9090"))
}

func newEdgeTypeRepository(readWriteClient *postgres.ReadWriteClient) *repositories.EdgeTypeRepository {
	return repositories.NewEdgeTypeRepository(readWriteClient)
}

func newEdgeWriteRepository(readWriteClient *postgres.ReadWriteClient) *repositories.EdgeWriteRepository {
	return repositories.NewEdgeWriteRepository(readWriteClient.GetWritePool())
}

// O consumer lê arestas recém-escritas (mirror, unlink), por isso usa o primário.
func newEdgeQueryRepository(readWriteClient *postgres.ReadWriteClient) *repositories.EdgeQueryRepository {
	return repositories.NewEdgeQueryRepository(readWriteClient.GetWritePool(), env.GetInt("GRAPH_EXPANSION_ROW_LIMIT", repositories.DefaultExpansionRowLimit))
}

func newResultCacheRepository(redisClient *redis.RedisClient) *repositories.ResultCacheRepository {
	return repositories.NewResultCacheRepository(redisClient)
}

func newPathCacheRepository(readWriteClient *postgres.ReadWriteClient) *repositories.PathCacheRepository {
	return repositories.NewPathCacheRepository(readWriteClient.GetWritePool())
}

func newRegistry(logger *slog.Logger, edgeTypeRepository *repositories.EdgeTypeRepository) *edgetypes.Registry {
	return edgetypes.NewRegistry(logger, edgeTypeRepository)
}

func newEdgeEventPublisher(logger *slog.Logger, kafkaClient *kafka.KafkaClient) *events.EdgeEventPublisher {
	topic := env.GetString("KAFKA_EDGE_EVENTS_TOPIC")
	if topic == "" {
		return nil
	}
	return events.NewEdgeEventPublisher(logger, kafkaClient, topic)
}

func newEdgeService(
	logger *slog.Logger,
	registry *edgetypes.Registry,
	edgeWriteRepository *repositories.EdgeWriteRepository,
	edgeQueryRepository *repositories.EdgeQueryRepository,
	resultCacheRepository *repositories.ResultCacheRepository,
	pathCacheRepository *repositories.PathCacheRepository,
	publisher *events.EdgeEventPublisher,
) *edges.EdgeService {
	opts := []edges.Option{
		edges.WithResultCache(resultCacheRepository),
		edges.WithPathCache(pathCacheRepository),
	}
	if publisher != nil {
		opts = append(opts, edges.WithEventPublisher(publisher))
	}

	return edges.NewEdgeService(logger, registry, edgeWriteRepository, edgeQueryRepository, opts...)
}

func newRelationshipsConsumer(
	logger *slog.Logger,
	edgeService *edges.EdgeService,
) *consumers.RelationshipsConsumer {
	return consumers.NewRelationshipsConsumer(logger, edgeService)
}

func startMetricsServer(lc fx.Lifecycle, logger *slog.Logger, server *metrics.Server) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting metrics server")
			server.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}

// Remove periodicamente os caminhos expirados; a leitura já os ignora, isto só libera espaço.
func startPathCachePurger(lc fx.Lifecycle, logger *slog.Logger, pathCacheRepository *repositories.PathCacheRepository) {
	interval := env.GetDuration("PATH_CACHE_PURGE_INTERVAL", 10*time.Minute)
	purgeCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				ticker := time.NewTicker(interval)
				defer ticker.Stop()

				for {
					select {
					case <-purgeCtx.Done():
						return
					case now := <-ticker.C:
						removed, err := pathCacheRepository.DeleteExpired(purgeCtx, now)
						if err != nil {
							logger.Warn("Path cache purge failed", "error", err)
							continue
						}
						if removed > 0 {
							logger.Info("Path cache purged", "removed", removed)
						}
					}
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			return nil
		},
	})
}

func startConsumer(
	lc fx.Lifecycle,
	logger *slog.Logger,
	kafkaClient *kafka.KafkaClient,
	readWriteClient *postgres.ReadWriteClient,
	redisClient *redis.RedisClient,
	relationshipsConsumer *consumers.RelationshipsConsumer,
) {
	consumerCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Redis fora do ar não impede o consumo: o circuit breaker isola a invalidação.
			if err := redisClient.HealthCheck(ctx); err != nil {
				logger.Warn("Redis health check failed, result cache invalidation will degrade", "error", err)
			}

			topic := env.MustGetString("KAFKA_RELATIONSHIPS_CONSUMER_TOPIC")
			logger.Info("Starting relationships consumer", "topic", topic)

			// Start consumer in background
			go func() {
				if err := relationshipsConsumer.Start(consumerCtx, kafkaClient, topic); err != nil {
					logger.Error("Consumer failed", "error", err)
				}
			}()

			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()

			logger.Info("Shutting down Kafka client...")
			if err := kafkaClient.Close(); err != nil {
				logger.Error("Failed to close Kafka client", "error", err)
			}

			if err := redisClient.Close(); err != nil {
				logger.Error("Failed to close Redis client", "error", err)
			}

			readWriteClient.Close()
			logger.Info("Relationships consumer resources released")
			return nil
		},
	})
}
