package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"relgraph/src/helper/env"
	"relgraph/src/infra/postgres"
	"relgraph/src/repositories"
	"relgraph/src/services/edgetypes"
	"time"

	"go.uber.org/fx"
)

// Semeia o catálogo de tipos de sistema e termina. Seguro para rodar a cada deploy.
func main() {
	log.SetOutput(os.Stdout)

	app := fx.New(
		fx.NopLogger,
		fx.Provide(
			newLogger,
			newReadWriteClient,
			newEdgeTypeRepository,
			newRegistry,
		),
		fx.Invoke(seedSystemTypes),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		log.Fatalf("Failed to seed system edge types: %v", err)
	}

	if err := app.Stop(ctx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if env.GetString("LOG_LEVEL", "info") == "debug" {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newReadWriteClient(lc fx.Lifecycle) (*postgres.ReadWriteClient, error) {
	dbHost := env.MustGetString("DB_WRITE_HOST")
	dbPort := env.GetString("DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("DB_NAME")
	dbUser := env.MustGetString("DB_USER")
	dbPassword := env.MustGetString("DB_PASSWORD")

	// O seed só escreve: leitura e escrita apontam para o primário.
	client, err := postgres.NewReadWriteClient(dbHost, dbHost, dbPort, dbPort, dbname, dbUser, dbPassword, 2)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			client.Close()
			return nil
		},
	})

	return client, nil
}

func newEdgeTypeRepository(readWriteClient *postgres.ReadWriteClient) *repositories.EdgeTypeRepository {
	return repositories.NewEdgeTypeRepository(readWriteClient)
}

func newRegistry(logger *slog.Logger, edgeTypeRepository *repositories.EdgeTypeRepository) *edgetypes.Registry {
	return edgetypes.NewRegistry(logger, edgeTypeRepository)
}

func seedSystemTypes(lc fx.Lifecycle, logger *slog.Logger, registry *edgetypes.Registry) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			seeded, err := registry.SeedSystemTypes(ctx)
			if err != nil {
				return err
			}

			logger.Info("System edge types ready", "count", len(seeded))
			return nil
		},
	})
}
