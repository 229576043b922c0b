package query_test

import (
	"context"
	"io"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/services/edges"
	"relgraph/src/services/edgetypes"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine.Traverse after edge mutations", func() {
	var (
		ctx     context.Context
		w       *world
		service *edges.EdgeService
		actor   int64
		caller  domain.Caller
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		actor = 99
		caller = domain.Caller{ID: 1}

		// mesmo result cache do engine, como no consumer e na API
		w = newWorld()
		service = edges.NewEdgeService(logger, edgetypes.NewRegistry(logger, w.edgeTypes), w.graph, w.graph,
			edges.WithResultCache(w.resultCache),
			edges.WithPathCache(w.pathCache),
		)

		w.record(person(1))
		w.record(company(9))
	})

	It("should stop listing an employee right after the works_at edge is soft deleted", func() {
		// ARRANGE
		edge, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(9), domain.EdgeAttributes{}, &actor)
		Expect(err).NotTo(HaveOccurred())

		request := domain.TraversalRequest{Seed: company(9), Direction: domain.DirectionReverse, MaxDepth: 1}
		before := w.engine.Traverse(ctx, caller, request)
		Expect(recordRefs(before)).To(Equal([]domain.NodeRef{person(1)}))
		Eventually(w.cacheStore.Len).Should(Equal(1))

		_, err = service.SoftDeleteEdge(ctx, edge.ID, &actor)
		Expect(err).NotTo(HaveOccurred())

		// ACT
		after := w.engine.Traverse(ctx, caller, request)

		// ASSERT
		Expect(after.Error).To(BeEmpty())
		Expect(after.Records).To(BeEmpty())
		Expect(after.Edges).To(BeEmpty())
		Expect(w.graph.ExpandCalls).To(Equal(2))
	})

	It("should list an employee right after the works_at edge is created", func() {
		// ARRANGE
		request := domain.TraversalRequest{Seed: company(9), Direction: domain.DirectionReverse, MaxDepth: 1}
		before := w.engine.Traverse(ctx, caller, request)
		Expect(before.Records).To(BeEmpty())

		_, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(9), domain.EdgeAttributes{}, &actor)
		Expect(err).NotTo(HaveOccurred())

		// ACT
		after := w.engine.Traverse(ctx, caller, request)

		// ASSERT
		Expect(recordRefs(after)).To(Equal([]domain.NodeRef{person(1)}))
	})
})
