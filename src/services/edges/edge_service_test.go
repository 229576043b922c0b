package edges_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/kafka"
	"relgraph/src/infra/metrics"
	"relgraph/src/services/edges"
	"relgraph/src/services/edgetypes"
	"relgraph/src/services/events"
	"relgraph/src/test_artefacts/comparer"
	"relgraph/src/test_artefacts/fakes"
	"relgraph/src/test_artefacts/stubs"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

const (
	people    int64 = 1
	companies int64 = 2
	projects  int64 = 3
)

func person(id int64) domain.NodeRef  { return domain.NodeRef{CollectionID: people, RecordID: id} }
func company(id int64) domain.NodeRef { return domain.NodeRef{CollectionID: companies, RecordID: id} }

func eventTypes(messages []kafka.Message) []string {
	types := make([]string, len(messages))
	for i, msg := range messages {
		types[i] = msg.Headers["event_type"]
	}
	return types
}

var _ = Describe("EdgeService", func() {
	var (
		ctx           context.Context
		graph         *fakes.Graph
		edgeTypes     *fakes.EdgeTypeStore
		invalidations *fakes.ResultCacheInvalidations
		pathCache     *fakes.PathCache
		producer      *fakes.Producer
		service       *edges.EdgeService
		actor         int64
	)

	BeforeEach(func() {
		ctx = context.Background()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))

		graph = fakes.NewGraph()
		edgeTypes = fakes.NewEdgeTypeStore()
		invalidations = &fakes.ResultCacheInvalidations{}
		pathCache = fakes.NewPathCache()
		producer = &fakes.Producer{}
		actor = 99

		registry := edgetypes.NewRegistry(logger, edgeTypes)
		_, err := registry.SeedSystemTypes(ctx)
		Expect(err).NotTo(HaveOccurred())

		edgeTypes.Put(stubs.NewEdgeTypeStub().WithID(0).WithSlug("employs_exactly").WithCardinality(entities.CardinalityOneToOne).Get())
		edgeTypes.Put(stubs.NewEdgeTypeStub().WithID(0).WithSlug("staffed_by").WithSourceConstraint(projects).WithTargetConstraint(people).Get())
		edgeTypes.Put(stubs.NewEdgeTypeStub().WithID(0).WithSlug("not_self").WithoutSelfReference().Get())

		service = edges.NewEdgeService(logger, registry, graph, graph,
			edges.WithResultCache(invalidations),
			edges.WithPathCache(pathCache),
			edges.WithEventPublisher(events.NewEdgeEventPublisher(logger, producer, "relgraph.edge-events")),
		)
	})

	Describe("CreateEdge", func() {
		It("should create the edge and propagate the mutation", func() {
			// ARRANGE
			strength := 0.7
			attrs := domain.EdgeAttributes{Role: "engineer", Strength: &strength, Metadata: json.RawMessage(`{"since":"2024"}`)}

			// ACT
			edge, outcome, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(1), attrs, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))

			worksAt, _ := edgeTypes.GetBySlug(ctx, "works_at")
			expected := stubs.NewEdgeStub().
				WithEdgeTypeID(worksAt.ID).
				WithSource(person(1)).
				WithTarget(company(1)).
				WithRole("engineer").
				WithStrength(0.7).
				WithMetadata(map[string]interface{}{"since": "2024"}).
				Get()
			Expect(*edge).To(BeComparableTo(expected, comparer.EdgeIgnoringBookkeeping()))

			Eventually(producer.Messages).Should(HaveLen(1))
			Expect(eventTypes(producer.Messages())).To(Equal([]string{domain.EdgeEventCreated}))
			Expect(producer.Topics()).To(Equal([]string{"relgraph.edge-events"}))
			Expect(invalidations.Records()).To(ConsistOf(person(1), company(1)))
		})

		It("should return the existing edge for an identical request", func() {
			// ARRANGE
			first, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			Eventually(producer.Messages).Should(HaveLen(1))

			// ACT
			second, outcome, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeExisting))
			Expect(second.ID).To(Equal(first.ID))
			Consistently(producer.Messages).Should(HaveLen(1))
		})

		It("should reject a second active many_to_one edge from the same source", func() {
			// ARRANGE
			before := testutil.ToFloat64(metrics.CardinalityViolations.WithLabelValues("works_at"))
			first, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(1), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(2), domain.EdgeAttributes{}, &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrCardinalityViolation)).To(BeTrue())
			var violation *domain.CardinalityViolation
			Expect(errors.As(err, &violation)).To(BeTrue())
			Expect(violation.Side).To(Equal("source"))
			Expect(violation.ConflictingEdgeID).To(Equal(first.ID))
			Expect(testutil.ToFloat64(metrics.CardinalityViolations.WithLabelValues("works_at"))).To(Equal(before + 1))
		})

		It("should accept the new edge once the conflicting one is deleted", func() {
			// ARRANGE
			first, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(1), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SoftDeleteEdge(ctx, first.ID, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, outcome, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(2), domain.EdgeAttributes{}, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))
		})

		It("should let many sources point to the same target of a many_to_one type", func() {
			// ARRANGE
			_, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(1), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = service.CreateEdge(ctx, "works_at", domain.RecordSource(person(2)), company(1), domain.EdgeAttributes{}, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
		})

		It("should limit the target side of one_to_one types", func() {
			// ARRANGE
			_, _, err := service.CreateEdge(ctx, "employs_exactly", domain.RecordSource(company(1)), person(1), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = service.CreateEdge(ctx, "employs_exactly", domain.RecordSource(company(2)), person(1), domain.EdgeAttributes{}, &actor)

			// ASSERT
			var violation *domain.CardinalityViolation
			Expect(errors.As(err, &violation)).To(BeTrue())
			Expect(violation.Side).To(Equal("target"))
		})

		It("should resurrect a deleted identical edge keeping its id", func() {
			// ARRANGE
			first, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SoftDeleteEdge(ctx, first.ID, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			strength := 0.2
			again, outcome, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{Strength: &strength}, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeResurrected))
			Expect(again.ID).To(Equal(first.ID))
			Expect(again.IsDeleted).To(BeFalse())
			Expect(again.Strength).To(Equal(0.2))
			Expect(graph.Len()).To(Equal(1))

			Eventually(func() []string { return eventTypes(producer.Messages()) }).Should(ConsistOf(
				domain.EdgeEventCreated, domain.EdgeEventDeleted, domain.EdgeEventResurrected,
			))
		})

		DescribeTable("should reject invalid input",
			func(slug string, source domain.EdgeSource, target domain.NodeRef, attrs domain.EdgeAttributes, field string) {
				// ACT
				_, _, err := service.CreateEdge(ctx, slug, source, target, attrs, nil)

				// ASSERT
				var validationErr *domain.ValidationError
				Expect(errors.As(err, &validationErr)).To(BeTrue())
				Expect(validationErr.Field).To(Equal(field))
				Expect(graph.Len()).To(BeZero())
			},
			Entry("unknown edge type", "likes", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, "edge_type"),
			Entry("source and caller together", "follows", domain.EdgeSource{Record: &domain.NodeRef{CollectionID: 1, RecordID: 1}, CallerID: new(int64)}, person(2), domain.EdgeAttributes{}, "source"),
			Entry("missing target", "follows", domain.RecordSource(person(1)), domain.NodeRef{}, domain.EdgeAttributes{}, "target"),
			Entry("collection constraint", "staffed_by", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, "edge_type"),
			Entry("self reference", "not_self", domain.RecordSource(person(1)), person(1), domain.EdgeAttributes{}, "target"),
			Entry("unknown status", "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{Status: "archived"}, "status"),
			Entry("metadata not an object", "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{Metadata: json.RawMessage(`[1,2]`)}, "metadata"),
		)

		It("should reject a negative strength", func() {
			// ARRANGE
			strength := -0.5

			// ACT
			_, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{Strength: &strength}, nil)

			// ASSERT
			Expect(errors.Is(err, domain.ErrValidation)).To(BeTrue())
		})

		It("should create assignment edges for callers", func() {
			// ACT
			edge, outcome, err := service.CreateEdge(ctx, "assigned_to", domain.CallerSource(7), company(3), domain.EdgeAttributes{Role: "account_manager"}, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))
			Expect(edge.IsAssignment()).To(BeTrue())
			Expect(edge.SourceCollectionID).To(BeNil())

			assignments, err := service.GetAssignments(ctx, 7, "assigned_to")
			Expect(err).NotTo(HaveOccurred())
			Expect(assignments).To(HaveLen(1))
			Expect(assignments[0].ID).To(Equal(edge.ID))

			Eventually(producer.Messages).Should(HaveLen(1))
			Expect(producer.Messages()[0].Headers["edge_shape"]).To(Equal("assignment"))
		})
	})

	Describe("SoftDeleteEdge", func() {
		It("should invalidate the result cache of both endpoints before returning", func() {
			// ARRANGE
			edge, _, err := service.CreateEdge(ctx, "works_at", domain.RecordSource(person(1)), company(9), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			invalidations.Reset()

			requestCtx, cancel := context.WithCancel(ctx)

			// ACT
			_, err = service.SoftDeleteEdge(requestCtx, edge.ID, &actor)
			cancel()

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(invalidations.Records()).To(ConsistOf(company(9), person(1)))
		})

		It("should hide the edge but keep it readable for audit", func() {
			// ARRANGE
			edge, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			deleted, err := service.SoftDeleteEdge(ctx, edge.ID, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.IsDeleted).To(BeTrue())
			Expect(*deleted.DeletedBy).To(Equal(actor))

			_, err = service.GetEdge(ctx, edge.ID, false)
			Expect(errors.Is(err, domain.ErrEdgeNotFound)).To(BeTrue())

			audited, err := service.GetEdge(ctx, edge.ID, true)
			Expect(err).NotTo(HaveOccurred())
			Expect(audited.IsDeleted).To(BeTrue())

			active, err := service.ListEdgesForRecord(ctx, person(1), false)
			Expect(err).NotTo(HaveOccurred())
			Expect(active).To(BeEmpty())
		})

		It("should be idempotent", func() {
			// ARRANGE
			edge, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			_, err = service.SoftDeleteEdge(ctx, edge.ID, &actor)
			Expect(err).NotTo(HaveOccurred())
			Eventually(producer.Messages).Should(HaveLen(2))

			// ACT
			again, err := service.SoftDeleteEdge(ctx, edge.ID, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(again.IsDeleted).To(BeTrue())
			Consistently(producer.Messages).Should(HaveLen(2))
		})

		It("should drop cached paths that used the edge", func() {
			// ARRANGE
			edge, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())
			Expect(pathCache.Upsert(ctx, entities.CachedPath{
				SourceCollectionID: people, SourceRecordID: 1,
				TargetCollectionID: people, TargetRecordID: 2,
				PathLength: 1, EdgeIDs: []int64{edge.ID}, EdgeTypeIDs: []int64{edge.EdgeTypeID},
				PathStrength: 1, ExpiresAt: time.Now().Add(time.Hour),
			})).To(Succeed())

			// ACT
			_, err = service.SoftDeleteEdge(ctx, edge.ID, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(pathCache.Len()).To(BeZero())
		})

		It("should fail for an unknown edge", func() {
			// ACT
			_, err := service.SoftDeleteEdge(ctx, 12345, &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrEdgeNotFound)).To(BeTrue())
		})
	})

	Describe("SoftDeleteByEndpoints", func() {
		It("should delete the active edge between the endpoints", func() {
			// ARRANGE
			edge, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			deleted, err := service.SoftDeleteByEndpoints(ctx, "follows", domain.RecordSource(person(1)), person(2), &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(deleted.ID).To(Equal(edge.ID))
		})

		It("should report a missing edge", func() {
			// ACT
			_, err := service.SoftDeleteByEndpoints(ctx, "follows", domain.RecordSource(person(1)), person(2), &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrEdgeNotFound)).To(BeTrue())
		})
	})

	Describe("CreateReverseRelationship", func() {
		It("should mirror the edge with swapped endpoints", func() {
			// ARRANGE
			original, _, err := service.CreateEdge(ctx, "follows", domain.RecordSource(person(1)), person(2), domain.EdgeAttributes{Role: "fan"}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			mirror, outcome, err := service.CreateReverseRelationship(ctx, original.ID, &actor)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))
			Expect(mirror.ID).NotTo(Equal(original.ID))
			Expect(*mirror.SourceRecordID).To(Equal(int64(2)))
			Expect(mirror.TargetRecordID).To(Equal(int64(1)))
			Expect(mirror.Role).To(Equal("fan"))

			Eventually(func() []string { return eventTypes(producer.Messages()) }).Should(ConsistOf(
				domain.EdgeEventCreated, domain.EdgeEventReverseCreated,
			))
		})

		It("should enforce the collection constraints on the mirror", func() {
			// ARRANGE
			original, _, err := service.CreateEdge(ctx, "staffed_by", domain.RecordSource(domain.NodeRef{CollectionID: projects, RecordID: 1}), person(1), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = service.CreateReverseRelationship(ctx, original.ID, &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrValidation)).To(BeTrue())
		})

		It("should refuse assignment edges", func() {
			// ARRANGE
			assignment, _, err := service.CreateEdge(ctx, "assigned_to", domain.CallerSource(7), company(3), domain.EdgeAttributes{}, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = service.CreateReverseRelationship(ctx, assignment.ID, &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrValidation)).To(BeTrue())
		})
	})
})
