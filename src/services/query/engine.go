package query

import (
	"context"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/services/permissions"
	"time"

	"golang.org/x/sync/singleflight"
)

const (
	DefaultShortestPathDepth = 5
	DefaultPathCacheTTL      = 24 * time.Hour
)

// GraphReader é implementado por *repositories.EdgeQueryRepository.
type GraphReader interface {
	Expand(ctx context.Context, query domain.ExpandQuery) ([]domain.ExpansionRow, error)
	FindShortestPath(ctx context.Context, source domain.NodeRef, target domain.NodeRef, maxDepth int, excludedEdgeTypeIDs []int64, depthLimits map[int64]int) ([]int64, error)
	GetEdgesByIDs(ctx context.Context, ids []int64, includeDeleted bool) ([]entities.Edge, error)
}

// EdgeTypeResolver é implementado por *edgetypes.Registry.
type EdgeTypeResolver interface {
	ResolveSlugs(ctx context.Context, slugs []string) ([]entities.EdgeType, error)
	GetByIDs(ctx context.Context, ids []int64) (map[int64]entities.EdgeType, error)
}

// PolicyLoader é implementado por *permissions.PermissionService.
type PolicyLoader interface {
	ForCallerType(ctx context.Context, callerType string) (*permissions.Filter, error)
}

// RecordLookup é o contrato consumido da camada de registros.
type RecordLookup interface {
	RecordExists(ctx context.Context, ref domain.NodeRef) (bool, error)
	GetRecordFields(ctx context.Context, refs []domain.NodeRef) (map[domain.NodeRef]map[string]interface{}, error)
}

// CallerTypeResolver é o contrato consumido da camada de identidade.
type CallerTypeResolver interface {
	CallerType(ctx context.Context, callerID int64) (string, error)
}

// ResultCache é implementado por *repositories.ResultCacheRepository. SetJSON
// recebe a geração lida antes da consulta; entradas gravadas com uma geração
// anterior à invalidação de um dos registros não são servidas.
type ResultCache interface {
	Generation(ctx context.Context) (int64, error)
	GetJSON(ctx context.Context, cacheKey string, dest interface{}) (bool, error)
	SetJSON(ctx context.Context, cacheKey string, value interface{}, records []domain.NodeRef, generation int64) error
}

type PathCache interface {
	Lookup(ctx context.Context, source domain.NodeRef, target domain.NodeRef, now time.Time) (*entities.CachedPath, error)
	Upsert(ctx context.Context, path entities.CachedPath) error
	InvalidateByEdgeIDs(ctx context.Context, edgeIDs []int64) (int64, error)
}

// Engine orquestra travessias e caminhos mais curtos. Não guarda estado por
// chamada; o único estado compartilhado são os caches injetados.
type Engine struct {
	logger    *slog.Logger
	graph     GraphReader
	edgeTypes EdgeTypeResolver
	policies  PolicyLoader
	records   RecordLookup
	callers   CallerTypeResolver

	resultCache ResultCache
	pathCache   PathCache
	pathTTL     time.Duration

	group singleflight.Group
	now   func() time.Time

	cacheWriteTimeout time.Duration
	flightTimeout     time.Duration
}

type Option func(*Engine)

func WithResultCache(cache ResultCache) Option {
	return func(e *Engine) { e.resultCache = cache }
}

func WithPathCache(cache PathCache, ttl time.Duration) Option {
	return func(e *Engine) {
		e.pathCache = cache
		if ttl > 0 {
			e.pathTTL = ttl
		}
	}
}

func WithCallerTypeResolver(callers CallerTypeResolver) Option {
	return func(e *Engine) { e.callers = callers }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(
	logger *slog.Logger,
	graph GraphReader,
	edgeTypes EdgeTypeResolver,
	policies PolicyLoader,
	records RecordLookup,
	opts ...Option,
) *Engine {
	e := &Engine{
		logger:            logger,
		graph:             graph,
		edgeTypes:         edgeTypes,
		policies:          policies,
		records:           records,
		pathTTL:           DefaultPathCacheTTL,
		now:               time.Now,
		cacheWriteTimeout: 30 * time.Second,
		flightTimeout:     30 * time.Second,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

func (e *Engine) resolveCallerType(ctx context.Context, caller domain.Caller) (string, error) {
	if caller.Type != "" || e.callers == nil || caller.ID == 0 {
		return caller.Type, nil
	}
	return e.callers.CallerType(ctx, caller.ID)
}

func (e *Engine) filterFor(ctx context.Context, caller domain.Caller) (*permissions.Filter, error) {
	callerType, err := e.resolveCallerType(ctx, caller)
	if err != nil {
		return nil, err
	}
	return e.policies.ForCallerType(ctx, callerType)
}

func clampDepth(requested int, defaultDepth int) int {
	if requested <= 0 {
		return defaultDepth
	}
	if requested > domain.MaxTraversalDepth {
		return domain.MaxTraversalDepth
	}
	return requested
}
