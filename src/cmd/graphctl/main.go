package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"log/slog"
	"os"
	"relgraph/src/domain/entities"
	"relgraph/src/helper/env"
	"relgraph/src/infra/postgres"
	"relgraph/src/infra/redis"
	"relgraph/src/repositories"
	"relgraph/src/services/edgetypes"
	"relgraph/src/services/permissions"
	"relgraph/src/services/query"
	"time"

	"go.uber.org/fx"
)

func main() {
	log.SetOutput(os.Stderr)

	if err := newRootCommand(runApp).Execute(); err != nil {
		os.Exit(1)
	}
}

// runApp sobe o grafo de dependências, executa o comando e desliga.
func runApp(cmd command) error {
	app := fx.New(
		fx.NopLogger,
		fx.Supply(cmd),
		fx.Provide(
			newLogger,
			newReadWriteClient,
			newEdgeTypeRepository,
			newEdgeQueryRepository,
			newPolicyRepository,
			newRecordRepository,
			newCallerRepository,
			newPathCacheRepository,
			newRegistry,
			newPermissionService,
			newEngine,
		),
		fx.Invoke(run),
	)

	ctx, cancel := context.WithTimeout(context.Background(), env.GetDuration("GRAPHCTL_TIMEOUT", 60*time.Second))
	defer cancel()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("graphctl %s failed: %w", cmd.name, err)
	}

	if err := app.Stop(ctx); err != nil {
		log.Printf("Failed to stop application gracefully: %v", err)
	}

	return nil
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if env.GetString("LOG_LEVEL", "warn") == "debug" {
		level = slog.LevelDebug
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

func newReadWriteClient(lc fx.Lifecycle) (*postgres.ReadWriteClient, error) {
	dbReadHost := env.MustGetString("DB_READ_HOST")
	dbWriteHost := env.MustGetString("DB_WRITE_HOST")
	dbReadPort := env.GetString("DB_READ_PORT", "5432")
	dbWritePort := env.GetString("DB_WRITE_PORT", "5432")
	dbname := env.MustGetString("DB_NAME")
	dbUser := env.MustGetString("DB_USER")
	dbPassword := env.MustGetString("DB_PASSWORD")

	client, err := postgres.NewReadWriteClient(dbReadHost, dbWriteHost, dbReadPort, dbWritePort, dbname, dbUser, dbPassword, 4)
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

func newEdgeQueryRepository(readWriteClient *postgres.ReadWriteClient) *repositories.EdgeQueryRepository {
	return repositories.NewEdgeQueryRepository(readWriteClient.GetReadPool(), env.GetInt("GRAPH_EXPANSION_ROW_LIMIT", repositories.DefaultExpansionRowLimit))
}

func newPolicyRepository(readWriteClient *postgres.ReadWriteClient) *repositories.PolicyRepository {
	return repositories.NewPolicyRepository(readWriteClient.GetReadPool(), readWriteClient.GetWritePool())
}

func newRecordRepository(readWriteClient *postgres.ReadWriteClient) *repositories.RecordRepository {
	return repositories.NewRecordRepository(readWriteClient.GetReadPool())
}

func newCallerRepository(readWriteClient *postgres.ReadWriteClient) *repositories.CallerRepository {
	return repositories.NewCallerRepository(readWriteClient.GetReadPool())
}

func newPathCacheRepository(readWriteClient *postgres.ReadWriteClient) *repositories.PathCacheRepository {
	return repositories.NewPathCacheRepository(readWriteClient.GetWritePool())
}

func newRegistry(logger *slog.Logger, edgeTypeRepository *repositories.EdgeTypeRepository) *edgetypes.Registry {
	return edgetypes.NewRegistry(logger, edgeTypeRepository)
}

func newPermissionService(logger *slog.Logger, policyRepository *repositories.PolicyRepository) *permissions.PermissionService {
	return permissions.NewPermissionService(logger, policyRepository)
}

func newEngine(
	lc fx.Lifecycle,
	logger *slog.Logger,
	edgeQueryRepository *repositories.EdgeQueryRepository,
	registry *edgetypes.Registry,
	permissionService *permissions.PermissionService,
	recordRepository *repositories.RecordRepository,
	callerRepository *repositories.CallerRepository,
	pathCacheRepository *repositories.PathCacheRepository,
) *query.Engine {
	opts := []query.Option{
		query.WithCallerTypeResolver(callerRepository),
		query.WithPathCache(pathCacheRepository, env.GetDuration("PATH_CACHE_TTL", query.DefaultPathCacheTTL)),
	}

	// Cache de resultados é opcional aqui: a ferramenta funciona sem Redis.
	if hosts := env.GetString("REDIS_HOSTS"); hosts != "" && env.GetBool("GRAPHCTL_RESULT_CACHE", true) {
		redisClient := redis.NewRedisClient(hosts, 4, env.GetSeconds("REDIS_DEFAULT_TTL_SECONDS", 120))
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				return redisClient.Close()
			},
		})
		opts = append(opts, query.WithResultCache(repositories.NewResultCacheRepository(redisClient)))
	}

	return query.NewEngine(logger, edgeQueryRepository, registry, permissionService, recordRepository, opts...)
}

func run(
	lc fx.Lifecycle,
	cmd command,
	engine *query.Engine,
	registry *edgetypes.Registry,
	permissionService *permissions.PermissionService,
	pathCacheRepository *repositories.PathCacheRepository,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			output, err := execute(ctx, cmd, engine, registry, permissionService, pathCacheRepository)
			if err != nil {
				return err
			}

			encoder := json.NewEncoder(os.Stdout)
			encoder.SetIndent("", "  ")
			return encoder.Encode(output)
		},
	})
}

func execute(
	ctx context.Context,
	cmd command,
	engine *query.Engine,
	registry *edgetypes.Registry,
	permissionService *permissions.PermissionService,
	pathCacheRepository *repositories.PathCacheRepository,
) (interface{}, error) {
	switch cmd.name {
	case "traverse":
		return engine.Traverse(ctx, cmd.caller, cmd.request), nil

	case "path":
		return engine.ShortestPath(ctx, cmd.caller, cmd.path), nil

	case "create-type":
		var config edgetypes.EdgeTypeConfig
		if err := json.Unmarshal(cmd.payload, &config); err != nil {
			return nil, fmt.Errorf("invalid edge type payload: %w", err)
		}
		return registry.CreateType(ctx, config)

	case "delete-type":
		if err := registry.DeleteType(ctx, cmd.typeID); err != nil {
			return nil, err
		}
		return map[string]int64{"deleted": cmd.typeID}, nil

	case "upsert-policy":
		var policy entities.PermissionPolicy
		if err := json.Unmarshal(cmd.payload, &policy); err != nil {
			return nil, fmt.Errorf("invalid policy payload: %w", err)
		}
		return permissionService.UpsertPolicy(ctx, policy)

	case "purge-paths":
		removed, err := pathCacheRepository.DeleteExpired(ctx, time.Now())
		if err != nil {
			return nil, err
		}
		return map[string]int64{"removed": removed}, nil
	}

	return nil, fmt.Errorf("unknown command %q", cmd.name)
}
