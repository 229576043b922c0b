package repositories_test

import (
	"context"
	"errors"
	"relgraph/src/domain"
	"relgraph/src/repositories"
	"relgraph/src/test_artefacts/fakes"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ResultCacheRepository", func() {
	var (
		ctx        context.Context
		clock      *fakes.Clock
		store      *fakes.CacheStore
		repository *repositories.ResultCacheRepository
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = fakes.NewClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
		store = fakes.NewCacheStore(clock, time.Hour)
		repository = repositories.NewResultCacheRepository(store)
	})

	It("should round trip a value", func() {
		// ARRANGE
		value := domain.TraversalResult{TotalCount: 2}
		Expect(repository.SetJSON(ctx, "graph:traverse:abc", value, []domain.NodeRef{person(1)}, 0)).To(Succeed())

		// ACT
		var cached domain.TraversalResult
		found, err := repository.GetJSON(ctx, "graph:traverse:abc", &cached)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(cached.TotalCount).To(Equal(2))
	})

	It("should report a miss after the ttl", func() {
		// ARRANGE
		Expect(repository.SetJSON(ctx, "graph:traverse:abc", domain.TraversalResult{}, []domain.NodeRef{person(1)}, 0)).To(Succeed())
		clock.Advance(2 * time.Hour)

		// ACT
		var cached domain.TraversalResult
		found, err := repository.GetJSON(ctx, "graph:traverse:abc", &cached)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("should drop every entry registered under the touched records", func() {
		// ARRANGE
		Expect(repository.SetJSON(ctx, "graph:traverse:a", domain.TraversalResult{}, []domain.NodeRef{person(1), company(1)}, 0)).To(Succeed())
		Expect(repository.SetJSON(ctx, "graph:traverse:b", domain.TraversalResult{}, []domain.NodeRef{company(1), company(1)}, 0)).To(Succeed())
		Expect(repository.SetJSON(ctx, "graph:traverse:c", domain.TraversalResult{}, []domain.NodeRef{person(9)}, 0)).To(Succeed())

		// ACT
		err := repository.InvalidateByRecords(ctx, []domain.NodeRef{company(1)})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(store.Has("graph:traverse:a")).To(BeFalse())
		Expect(store.Has("graph:traverse:b")).To(BeFalse())
		Expect(store.Has("graph:traverse:c")).To(BeTrue())
		Expect(store.Deleted).To(ContainElement(repositories.RecordRegistryKey(company(1))))
		Expect(repositories.RecordRegistryKey(company(1))).To(Equal("registry:record:2:1"))
	})

	It("should refuse an entry computed before an invalidation of one of its records", func() {
		// ARRANGE
		generation, err := repository.Generation(ctx)
		Expect(err).NotTo(HaveOccurred())

		// a mutação invalida enquanto a consulta ainda está em andamento
		Expect(repository.InvalidateByRecords(ctx, []domain.NodeRef{company(9)})).To(Succeed())
		Expect(repository.SetJSON(ctx, "graph:traverse:late", domain.TraversalResult{TotalCount: 1}, []domain.NodeRef{company(9), person(1)}, generation)).To(Succeed())

		// ACT
		var cached domain.TraversalResult
		found, err := repository.GetJSON(ctx, "graph:traverse:late", &cached)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
		Expect(store.Has("graph:traverse:late")).To(BeTrue())
	})

	It("should serve an entry computed after the invalidation", func() {
		// ARRANGE
		Expect(repository.InvalidateByRecords(ctx, []domain.NodeRef{company(9)})).To(Succeed())
		generation, err := repository.Generation(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(generation).To(Equal(int64(1)))
		Expect(repository.SetJSON(ctx, "graph:traverse:fresh", domain.TraversalResult{TotalCount: 1}, []domain.NodeRef{company(9)}, generation)).To(Succeed())

		// ACT
		var cached domain.TraversalResult
		found, err := repository.GetJSON(ctx, "graph:traverse:fresh", &cached)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(cached.TotalCount).To(Equal(1))
	})

	It("should surface store failures", func() {
		// ARRANGE
		store.Err = errors.New("circuit breaker is open")

		// ACT
		err := repository.SetJSON(ctx, "graph:traverse:a", domain.TraversalResult{}, nil, 0)

		// ASSERT
		Expect(err).To(MatchError(ContainSubstring("circuit breaker is open")))
	})
})
