package repositories_test

import (
	"context"
	"encoding/json"
	"errors"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/postgres"
	"relgraph/src/repositories"
	"relgraph/src/test_artefacts/comparer"
	"relgraph/src/test_artefacts/stubs"
	"relgraph/src/test_artefacts/test_seeder"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("EdgeWriteRepository", func() {
	var (
		ctx             context.Context
		readWriteClient *postgres.ReadWriteClient
		seeder          test_seeder.TestSeeder
		repository      *repositories.EdgeWriteRepository
		follows         entities.EdgeType
		worksAt         entities.EdgeType
		actor           int64
	)

	newEdge := func(edgeType entities.EdgeType, source domain.NodeRef, target domain.NodeRef) entities.Edge {
		return stubs.NewEdgeStub().WithID(0).WithEdgeTypeID(edgeType.ID).WithSource(source).WithTarget(target).Get()
	}

	BeforeEach(func() {
		ctx = context.Background()
		readWriteClient, seeder = openTestDatabase(ctx)
		repository = repositories.NewEdgeWriteRepository(readWriteClient.GetWritePool())
		actor = 99

		follows = seedEdgeType(ctx, seeder, stubs.NewEdgeTypeStub().WithSlug("follows"))
		worksAt = seedEdgeType(ctx, seeder, stubs.NewEdgeTypeStub().WithSlug("works_at").WithCardinality(entities.CardinalityManyToOne))
	})

	AfterEach(func() {
		readWriteClient.Close()
	})

	Describe("CreateEdge", func() {
		It("should insert a new edge", func() {
			// ARRANGE
			edge := newEdge(follows, person(1), person(2))
			edge.Role = "fan"
			edge.Metadata = json.RawMessage(`{"since": 2020}`)

			// ACT
			saved, outcome, err := repository.CreateEdge(ctx, follows, edge)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))
			Expect(saved.ID).To(BeNumerically(">", 0))
			Expect(*saved).To(BeComparableTo(edge, comparer.EdgeIgnoringBookkeeping()))
		})

		It("should return the active identical edge untouched", func() {
			// ARRANGE
			first, _, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))
			Expect(err).NotTo(HaveOccurred())

			// ACT
			second, outcome, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeExisting))
			Expect(second.ID).To(Equal(first.ID))
		})

		It("should resurrect the deleted identical edge with the same id", func() {
			// ARRANGE
			first, _, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repository.SoftDelete(ctx, first.ID, &actor)
			Expect(err).NotTo(HaveOccurred())

			again := newEdge(follows, person(1), person(2))
			again.Strength = 0.3

			// ACT
			resurrected, outcome, err := repository.CreateEdge(ctx, follows, again)

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeResurrected))
			Expect(resurrected.ID).To(Equal(first.ID))
			Expect(resurrected.IsDeleted).To(BeFalse())
			Expect(resurrected.DeletedAt).To(BeNil())
			Expect(resurrected.DeletedBy).To(BeNil())
			Expect(resurrected.Strength).To(Equal(0.3))
		})

		It("should reject a second active edge from the same source of a many_to_one type", func() {
			// ARRANGE
			first, _, err := repository.CreateEdge(ctx, worksAt, newEdge(worksAt, person(1), company(1)))
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, _, err = repository.CreateEdge(ctx, worksAt, newEdge(worksAt, person(1), company(2)))

			// ASSERT
			var violation *domain.CardinalityViolation
			Expect(errors.As(err, &violation)).To(BeTrue())
			Expect(violation.Side).To(Equal("source"))
			Expect(violation.ConflictingEdgeID).To(Equal(first.ID))
		})

		It("should ignore deleted edges in the cardinality check", func() {
			// ARRANGE
			first, _, err := repository.CreateEdge(ctx, worksAt, newEdge(worksAt, person(1), company(1)))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repository.SoftDelete(ctx, first.ID, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, outcome, err := repository.CreateEdge(ctx, worksAt, newEdge(worksAt, person(1), company(2)))

			// ASSERT
			Expect(err).NotTo(HaveOccurred())
			Expect(outcome).To(Equal(domain.EdgeCreated))
		})

		It("should let only one of two concurrent conflicting creations through", func() {
			// ARRANGE
			var wg sync.WaitGroup
			errs := make([]error, 2)

			// ACT
			for i := 0; i < 2; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					_, _, errs[i] = repository.CreateEdge(ctx, worksAt, newEdge(worksAt, person(1), company(int64(i+1))))
				}(i)
			}
			wg.Wait()

			// ASSERT
			violations := 0
			for _, err := range errs {
				if errors.Is(err, domain.ErrCardinalityViolation) {
					violations++
				} else {
					Expect(err).NotTo(HaveOccurred())
				}
			}
			Expect(violations).To(Equal(1))
		})
	})

	Describe("SoftDelete", func() {
		It("should mark the edge and report the change only once", func() {
			// ARRANGE
			edge, _, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))
			Expect(err).NotTo(HaveOccurred())

			// ACT
			deleted, changed, err := repository.SoftDelete(ctx, edge.ID, &actor)
			Expect(err).NotTo(HaveOccurred())
			again, changedAgain, err := repository.SoftDelete(ctx, edge.ID, &actor)
			Expect(err).NotTo(HaveOccurred())

			// ASSERT
			Expect(changed).To(BeTrue())
			Expect(deleted.IsDeleted).To(BeTrue())
			Expect(*deleted.DeletedBy).To(Equal(actor))
			Expect(changedAgain).To(BeFalse())
			Expect(again.DeletedAt.Equal(*deleted.DeletedAt)).To(BeTrue())
		})

		It("should report unknown edges", func() {
			// ACT
			_, _, err := repository.SoftDelete(ctx, 404, &actor)

			// ASSERT
			Expect(errors.Is(err, domain.ErrEdgeNotFound)).To(BeTrue())
		})
	})

	Describe("FindActiveByEndpoints", func() {
		It("should find record and assignment edges", func() {
			// ARRANGE
			recordEdge, _, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))
			Expect(err).NotTo(HaveOccurred())
			assignment := stubs.NewEdgeStub().WithEdgeTypeID(follows.ID).WithCaller(7).WithTarget(person(2)).Get()
			savedAssignment, _, err := repository.CreateEdge(ctx, follows, assignment)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			foundRecord, err := repository.FindActiveByEndpoints(ctx, follows.ID, domain.RecordSource(person(1)), person(2))
			Expect(err).NotTo(HaveOccurred())
			foundAssignment, err := repository.FindActiveByEndpoints(ctx, follows.ID, domain.CallerSource(7), person(2))
			Expect(err).NotTo(HaveOccurred())

			// ASSERT
			Expect(foundRecord.ID).To(Equal(recordEdge.ID))
			Expect(foundAssignment.ID).To(Equal(savedAssignment.ID))
		})

		It("should not find deleted edges", func() {
			// ARRANGE
			edge, _, err := repository.CreateEdge(ctx, follows, newEdge(follows, person(1), person(2)))
			Expect(err).NotTo(HaveOccurred())
			_, _, err = repository.SoftDelete(ctx, edge.ID, nil)
			Expect(err).NotTo(HaveOccurred())

			// ACT
			_, err = repository.FindActiveByEndpoints(ctx, follows.ID, domain.RecordSource(person(1)), person(2))

			// ASSERT
			Expect(errors.Is(err, domain.ErrEdgeNotFound)).To(BeTrue())
		})
	})
})
