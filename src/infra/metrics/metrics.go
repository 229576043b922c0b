package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	CacheRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_cache_requests_total",
		Help: "Cache lookups by cache (result, path) and outcome (hit, miss, error)",
	}, []string{"cache", "outcome"})

	QueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relgraph_query_duration_seconds",
		Help:    "Duration of graph queries by operation",
		Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})

	QueryErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_query_errors_total",
		Help: "Graph queries that returned a degraded result",
	}, []string{"operation"})

	EdgeMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_edge_mutations_total",
		Help: "Edge mutations by outcome (created, resurrected, existing, deleted, reverse_created)",
	}, []string{"outcome"})

	CardinalityViolations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "relgraph_cardinality_violations_total",
		Help: "Edge creations rejected by cardinality, by edge type",
	}, []string{"edge_type"})
)

func ObserveQuery(operation string, startedAt time.Time) {
	QueryDuration.WithLabelValues(operation).Observe(time.Since(startedAt).Seconds())
}

// Server expõe /metrics para o Prometheus.
type Server struct {
	server *http.Server
}

func NewServer(addr string) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	return &Server{
		server: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

func (s *Server) Start() {
	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Metrics server failed: %v", err)
		}
	}()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
