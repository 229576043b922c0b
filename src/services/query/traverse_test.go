package query_test

import (
	"context"
	"errors"
	"relgraph/src/domain"
	"relgraph/src/test_artefacts/stubs"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Engine.Traverse", func() {
	var (
		ctx       context.Context
		anonymous domain.Caller
	)

	BeforeEach(func() {
		ctx = context.Background()
		anonymous = domain.Caller{ID: 1}
	})

	When("the seed record does not exist", func() {
		It("should return an empty result without touching the graph", func() {
			// ARRANGE
			w := newWorld()

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: person(404)})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(result.Edges).To(BeEmpty())
			Expect(result.Records).To(BeEmpty())
			Expect(w.graph.ExpandCalls).To(BeZero())
		})
	})

	When("walking forward", func() {
		It("should return edges and far side records ordered by depth", func() {
			// ARRANGE
			w := newWorld()
			ana, acme, bob := w.record(person(1)), w.record(company(1)), w.record(person(2))
			first := w.link(worksAtID, ana, acme)
			second := w.link(followsID, acme, bob)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, MaxDepth: 2})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(edgeIDs(result)).To(Equal([]int64{first.ID, second.ID}))
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{acme, bob}))
			Expect(result.Records[0].Depth).To(Equal(1))
			Expect(result.Records[1].Depth).To(Equal(2))
			Expect(result.MaxDepthReached).To(Equal(2))
			Expect(result.TotalCount).To(Equal(2))
			Expect(result.Edges[0].EdgeTypeSlug).To(Equal("works_at"))
		})

		It("should keep the edge but drop a far side record that was removed", func() {
			// ARRANGE
			w := newWorld()
			ana, acme, bob := w.record(person(1)), w.record(company(1)), w.record(person(2))
			w.link(worksAtID, ana, acme)
			w.link(followsID, ana, bob)
			w.records.Delete(bob)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(result.Edges).To(HaveLen(2))
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{acme}))
			Expect(result.TotalCount).To(Equal(1))
		})

		It("should stop at the requested depth", func() {
			// ARRANGE
			w := newWorld()
			a, b, c := w.record(person(1)), w.record(person(2)), w.record(person(3))
			w.link(followsID, a, b)
			w.link(followsID, b, c)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a, MaxDepth: 1})

			// ASSERT
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b}))
		})

		It("should terminate on cycles and never list the seed as a record", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			w.link(followsID, b, a)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a, MaxDepth: 10})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(result.Edges).To(HaveLen(2))
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b}))
		})

		It("should only follow the requested edge types", func() {
			// ARRANGE
			w := newWorld()
			ana, acme, bob := w.record(person(1)), w.record(company(1)), w.record(person(2))
			w.link(worksAtID, ana, acme)
			w.link(followsID, ana, bob)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, EdgeTypes: []string{"follows", "unknown"}})

			// ASSERT
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{bob}))
		})

		It("should return an empty result when no slug resolves", func() {
			// ARRANGE
			w := newWorld()
			ana, acme := w.record(person(1)), w.record(company(1))
			w.link(worksAtID, ana, acme)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, EdgeTypes: []string{"unknown"}})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(result.Records).To(BeEmpty())
			Expect(w.graph.ExpandCalls).To(BeZero())
		})

		It("should apply the limit after counting", func() {
			// ARRANGE
			w := newWorld()
			ana := w.record(person(1))
			for i := int64(2); i <= 5; i++ {
				w.link(followsID, ana, w.record(person(i)))
			}

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, Limit: 2})

			// ASSERT
			Expect(result.Records).To(HaveLen(2))
			Expect(result.Edges).To(HaveLen(2))
			Expect(result.TotalCount).To(Equal(4))
		})

		It("should list the distinct paths when asked", func() {
			// ARRANGE
			w := newWorld()
			a, b, c := w.record(person(1)), w.record(person(2)), w.record(person(3))
			first := w.link(followsID, a, b)
			second := w.link(followsID, b, c)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a, IncludePaths: true})

			// ASSERT
			Expect(result.Paths).To(Equal([][]int64{{first.ID}, {first.ID, second.ID}}))
		})
	})

	When("walking both directions", func() {
		It("should add reverse steps only for bidirectional types", func() {
			// ARRANGE
			w := newWorld()
			ana, bob, acme, carol := w.record(person(1)), w.record(person(2)), w.record(company(1)), w.record(person(3))
			w.link(worksAtID, ana, acme)
			w.link(worksAtID, bob, acme)
			w.link(followsID, carol, ana)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, Direction: domain.DirectionBoth, MaxDepth: 2})

			// ASSERT
			Expect(recordRefs(result)).To(ConsistOf(acme, bob))
			Expect(recordRefs(result)).NotTo(ContainElement(carol))
		})

		It("should follow every type in the explicit reverse direction", func() {
			// ARRANGE
			w := newWorld()
			ana, carol := w.record(person(1)), w.record(person(3))
			w.link(followsID, carol, ana)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, Direction: domain.DirectionReverse})

			// ASSERT
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{carol}))
			Expect(result.Edges[0].Direction).To(Equal(domain.DirectionReverse))
		})
	})

	When("the caller has permission policies", func() {
		It("should drop denied reverse steps and everything reached through them", func() {
			// ARRANGE
			w := newWorld(stubs.NewPolicyStub().WithCallerType("partner").WithEdgeTypeID(worksAtID).WithReverse(false).Get())
			ana, acme, bob, dave := w.record(person(1)), w.record(company(1)), w.record(person(2)), w.record(person(4))
			toAcme := w.link(worksAtID, ana, acme)
			w.link(worksAtID, bob, acme)
			w.link(followsID, bob, dave)

			partner := domain.Caller{ID: 42}

			// ACT
			restricted := w.engine.Traverse(ctx, partner, domain.TraversalRequest{Seed: ana, Direction: domain.DirectionBoth, MaxDepth: 3})
			open := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: ana, Direction: domain.DirectionBoth, MaxDepth: 3})

			// ASSERT
			Expect(restricted.Error).To(BeEmpty())
			Expect(edgeIDs(restricted)).To(Equal([]int64{toAcme.ID}))
			Expect(recordRefs(restricted)).To(Equal([]domain.NodeRef{acme}))

			Expect(recordRefs(open)).To(Equal([]domain.NodeRef{acme, bob, dave}))
		})

		It("should bound the depth per edge type", func() {
			// ARRANGE
			w := newWorld(stubs.NewPolicyStub().WithCallerType("partner").WithEdgeTypeID(reportsToID).WithMaxDepth(1).Get())
			a, b, c := w.record(person(1)), w.record(person(2)), w.record(person(3))
			w.link(reportsToID, a, b)
			w.link(reportsToID, b, c)

			// ACT
			result := w.engine.Traverse(ctx, domain.Caller{ID: 42}, domain.TraversalRequest{Seed: a, MaxDepth: 5})

			// ASSERT
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b}))
		})

		It("should reduce fields to the baseline minus restricted fields", func() {
			// ARRANGE
			w := newWorld(stubs.NewPolicyStub().WithCallerType("partner").WithEdgeTypeID(followsID).WithRestrictedFields(people, "email").Get())
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)

			caller := domain.Caller{ID: 42, FieldPermissions: map[int64]map[string]bool{
				people: {"name": true, "email": true},
			}}

			// ACT
			result := w.engine.Traverse(ctx, caller, domain.TraversalRequest{Seed: a})

			// ASSERT
			Expect(result.Records).To(HaveLen(1))
			Expect(result.Records[0].Fields).To(Equal(map[string]interface{}{"name": "record 1:2"}))
		})

		It("should expose every field when there is no baseline and no policy", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a})

			// ASSERT
			Expect(result.Records[0].Fields).To(HaveKey("name"))
			Expect(result.Records[0].Fields).To(HaveKey("email"))
		})
	})

	When("storage fails", func() {
		It("should report the error in the result and not cache it", func() {
			// ARRANGE
			w := newWorld()
			a := w.record(person(1))
			w.graph.Err = errors.New("statement timeout")

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a})

			// ASSERT
			Expect(result.Error).To(ContainSubstring("statement timeout"))
			Expect(result.Edges).To(BeEmpty())
			Expect(result.Records).To(BeEmpty())
			Consistently(w.cacheStore.Len).Should(BeZero())
		})

		It("should reject an invalid direction", func() {
			// ARRANGE
			w := newWorld()
			a := w.record(person(1))

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a, Direction: "up"})

			// ASSERT
			Expect(result.Error).To(ContainSubstring("invalid direction"))
		})

		It("should report a cancelled context", func() {
			// ARRANGE
			w := newWorld()
			a := w.record(person(1))
			cancelled, cancel := context.WithCancel(ctx)
			cancel()

			// ACT
			result := w.engine.Traverse(cancelled, anonymous, domain.TraversalRequest{Seed: a})

			// ASSERT
			Expect(result.Error).NotTo(BeEmpty())
			Expect(w.graph.ExpandCalls).To(BeZero())
		})
	})

	Describe("result cache", func() {
		It("should serve a repeated traversal from the cache", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a}

			first := w.engine.Traverse(ctx, anonymous, request)
			Eventually(w.cacheStore.Len).Should(Equal(1))

			// ACT
			second := w.engine.Traverse(ctx, anonymous, request)

			// ASSERT
			Expect(w.graph.ExpandCalls).To(Equal(1))
			Expect(recordRefs(second)).To(Equal(recordRefs(first)))
		})

		It("should keep entries of different callers apart", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a}

			w.engine.Traverse(ctx, anonymous, request)
			Eventually(w.cacheStore.Len).Should(Equal(1))

			// ACT
			w.engine.Traverse(ctx, domain.Caller{ID: 42}, request)

			// ASSERT
			Expect(w.graph.ExpandCalls).To(Equal(2))
		})

		It("should recompute after a touched record is invalidated", func() {
			// ARRANGE
			w := newWorld()
			a, b, c := w.record(person(1)), w.record(person(2)), w.record(person(3))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a}

			w.engine.Traverse(ctx, anonymous, request)
			Eventually(w.cacheStore.Len).Should(Equal(1))

			w.link(followsID, b, c)
			Expect(w.resultCache.InvalidateByRecords(ctx, []domain.NodeRef{b, c})).To(Succeed())

			// ACT
			result := w.engine.Traverse(ctx, anonymous, request)

			// ASSERT
			Expect(w.graph.ExpandCalls).To(Equal(2))
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b, c}))
		})

		It("should fall back to the graph when the cache fails", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			w.cacheStore.Err = errors.New("circuit breaker is open")

			// ACT
			result := w.engine.Traverse(ctx, anonymous, domain.TraversalRequest{Seed: a})

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b}))
		})

		It("should not serve a result computed while one of its records was invalidated", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a}

			// a mutação confirma e invalida depois que a consulta leu a geração
			var once sync.Once
			w.graph.BeforeExpand = func(context.Context) {
				once.Do(func() {
					_ = w.resultCache.InvalidateByRecords(context.Background(), []domain.NodeRef{b})
				})
			}

			w.engine.Traverse(ctx, anonymous, request)
			Eventually(w.cacheStore.Len).Should(Equal(1))

			// ACT
			w.engine.Traverse(ctx, anonymous, request)

			// ASSERT
			Expect(w.graph.ExpandCalls).To(Equal(2))
		})

		It("should finish and cache the traversal when the first caller gives up", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a}

			leaderCtx, cancel := context.WithCancel(ctx)
			w.graph.BeforeExpand = func(context.Context) { cancel() }

			w.engine.Traverse(leaderCtx, anonymous, request)
			Eventually(w.cacheStore.Len).Should(Equal(1))

			// ACT
			result := w.engine.Traverse(ctx, anonymous, request)

			// ASSERT
			Expect(result.Error).To(BeEmpty())
			Expect(recordRefs(result)).To(Equal([]domain.NodeRef{b}))
			Expect(w.graph.ExpandCalls).To(Equal(1))
		})

		It("should hand each caller its own copy of the result", func() {
			// ARRANGE
			w := newWorld()
			a, b := w.record(person(1)), w.record(person(2))
			w.link(followsID, a, b)
			request := domain.TraversalRequest{Seed: a, IncludePaths: true}

			first := w.engine.Traverse(ctx, anonymous, request)
			first.Records[0].Fields["name"] = "changed by the caller"
			first.Paths[0][0] = -1
			Eventually(w.cacheStore.Len).Should(Equal(1))

			// ACT
			second := w.engine.Traverse(ctx, anonymous, request)

			// ASSERT
			Expect(w.graph.ExpandCalls).To(Equal(1))
			Expect(second.Records[0].Fields["name"]).To(Equal("record " + b.String()))
			Expect(second.Paths[0][0]).To(BeNumerically(">", 0))
		})
	})
})
