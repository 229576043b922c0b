package edges

import (
	"context"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/services/edgetypes"
	"time"
)

// EdgeWriter é implementado por *repositories.EdgeWriteRepository.
type EdgeWriter interface {
	CreateEdge(ctx context.Context, edgeType entities.EdgeType, edge entities.Edge) (*entities.Edge, domain.EdgeOutcome, error)
	SoftDelete(ctx context.Context, id int64, actor *int64) (*entities.Edge, bool, error)
	FindActiveByEndpoints(ctx context.Context, edgeTypeID int64, source domain.EdgeSource, target domain.NodeRef) (*entities.Edge, error)
}

// EdgeReader é implementado por *repositories.EdgeQueryRepository.
type EdgeReader interface {
	GetEdge(ctx context.Context, id int64, includeDeleted bool) (*entities.Edge, error)
	GetAssignments(ctx context.Context, callerID int64, edgeTypeID int64) ([]entities.Edge, error)
	ListEdgesForRecord(ctx context.Context, record domain.NodeRef, includeDeleted bool) ([]entities.Edge, error)
}

type ResultCacheInvalidator interface {
	InvalidateByRecords(ctx context.Context, records []domain.NodeRef) error
}

type PathCacheInvalidator interface {
	InvalidateByEdgeIDs(ctx context.Context, edgeIDs []int64) (int64, error)
}

type EventPublisher interface {
	PublishEdge(ctx context.Context, eventType string, edge entities.Edge, actor *int64) error
}

// EdgeService é o ponto de escrita das arestas: valida contra o tipo,
// persiste e propaga a mudança para os caches e para a auditoria.
type EdgeService struct {
	logger      *slog.Logger
	registry    *edgetypes.Registry
	writer      EdgeWriter
	reader      EdgeReader
	resultCache ResultCacheInvalidator
	pathCache   PathCacheInvalidator
	publisher   EventPublisher

	// backgroundTimeout limita a invalidação do cache e a publicação assíncrona.
	backgroundTimeout time.Duration
}

type Option func(*EdgeService)

func WithResultCache(cache ResultCacheInvalidator) Option {
	return func(s *EdgeService) { s.resultCache = cache }
}

func WithPathCache(cache PathCacheInvalidator) Option {
	return func(s *EdgeService) { s.pathCache = cache }
}

func WithEventPublisher(publisher EventPublisher) Option {
	return func(s *EdgeService) { s.publisher = publisher }
}

func NewEdgeService(
	logger *slog.Logger,
	registry *edgetypes.Registry,
	writer EdgeWriter,
	reader EdgeReader,
	opts ...Option,
) *EdgeService {
	s := &EdgeService{
		logger:            logger,
		registry:          registry,
		writer:            writer,
		reader:            reader,
		backgroundTimeout: 30 * time.Second,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

func endpoints(edge entities.Edge) []domain.NodeRef {
	refs := []domain.NodeRef{{CollectionID: edge.TargetCollectionID, RecordID: edge.TargetRecordID}}
	if edge.SourceCollectionID != nil && edge.SourceRecordID != nil {
		refs = append(refs, domain.NodeRef{CollectionID: *edge.SourceCollectionID, RecordID: *edge.SourceRecordID})
	}
	return refs
}

// afterMutation invalida o cache de resultados das duas pontas antes de
// retornar, para que a próxima leitura já veja a mutação, e publica o evento
// em background. Falhas aqui só são logadas: a aresta já foi gravada.
func (s *EdgeService) afterMutation(ctx context.Context, eventType string, edge entities.Edge, actor *int64) {
	if s.resultCache != nil {
		// A escrita já foi confirmada: a invalidação não pode morrer com o request.
		invalidateCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.backgroundTimeout)
		if err := s.resultCache.InvalidateByRecords(invalidateCtx, endpoints(edge)); err != nil {
			s.logger.Warn("Failed to invalidate result cache", "error", err, "edge_id", edge.ID)
		}
		cancel()
	}

	if s.publisher == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.backgroundTimeout)
		defer cancel()

		if err := s.publisher.PublishEdge(ctx, eventType, edge, actor); err != nil {
			s.logger.Warn("Failed to publish edge event", "error", err, "edge_id", edge.ID, "event_type", eventType)
		}
	}()
}
