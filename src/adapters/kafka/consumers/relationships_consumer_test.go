package consumers_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"relgraph/src/adapters/kafka/consumers"
	"relgraph/src/domain"
	"relgraph/src/domain/entities"
	"relgraph/src/infra/kafka"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type linkCall struct {
	Slug   string
	Source domain.EdgeSource
	Target domain.NodeRef
	Attrs  domain.EdgeAttributes
	Actor  *int64
}

type unlinkCall struct {
	Slug   string
	Source domain.EdgeSource
	Target domain.NodeRef
}

type writerSpy struct {
	links   []linkCall
	unlinks []unlinkCall

	linkErrs  map[int64]error // por target record id
	unlinkErr error
}

func (w *writerSpy) CreateEdge(ctx context.Context, slug string, source domain.EdgeSource, target domain.NodeRef, attrs domain.EdgeAttributes, actor *int64) (*entities.Edge, domain.EdgeOutcome, error) {
	w.links = append(w.links, linkCall{Slug: slug, Source: source, Target: target, Attrs: attrs, Actor: actor})
	if err := w.linkErrs[target.RecordID]; err != nil {
		return nil, "", err
	}
	return &entities.Edge{ID: int64(len(w.links))}, domain.EdgeCreated, nil
}

func (w *writerSpy) SoftDeleteByEndpoints(ctx context.Context, slug string, source domain.EdgeSource, target domain.NodeRef, actor *int64) (*entities.Edge, error) {
	w.unlinks = append(w.unlinks, unlinkCall{Slug: slug, Source: source, Target: target})
	if w.unlinkErr != nil {
		return nil, w.unlinkErr
	}
	return &entities.Edge{ID: 1, IsDeleted: true}, nil
}

func message(key string, change domain.RelationshipChange) kafka.Message {
	value, err := json.Marshal(change)
	Expect(err).NotTo(HaveOccurred())
	return kafka.Message{Key: key, Value: value}
}

var _ = Describe("RelationshipsConsumer", func() {
	var (
		ctx      context.Context
		writer   *writerSpy
		consumer *consumers.RelationshipsConsumer
		source   domain.NodeRef
	)

	BeforeEach(func() {
		ctx = context.Background()
		writer = &writerSpy{linkErrs: map[int64]error{}}
		consumer = consumers.NewRelationshipsConsumer(slog.New(slog.NewTextHandler(io.Discard, nil)), writer)
		source = domain.NodeRef{CollectionID: 1, RecordID: 10}
	})

	It("should map link changes to edge creations", func() {
		// ARRANGE
		strength := 0.5
		change := domain.RelationshipChange{
			Op:       domain.RelationshipOpLink,
			EdgeType: "works_at",
			Source:   &source,
			Target:   domain.NodeRef{CollectionID: 2, RecordID: 20},
			Role:     "engineer",
			Strength: &strength,
			Metadata: json.RawMessage(`{"since":"2024"}`),
			Actor:    99,
		}

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{message("1", change)})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.links).To(HaveLen(1))

		call := writer.links[0]
		Expect(call.Slug).To(Equal("works_at"))
		Expect(call.Source).To(Equal(domain.RecordSource(source)))
		Expect(call.Target).To(Equal(domain.NodeRef{CollectionID: 2, RecordID: 20}))
		Expect(call.Attrs.Role).To(Equal("engineer"))
		Expect(*call.Attrs.Strength).To(Equal(0.5))
		Expect(string(call.Attrs.Metadata)).To(MatchJSON(`{"since":"2024"}`))
		Expect(*call.Actor).To(Equal(int64(99)))
	})

	It("should map caller links to assignments without an actor", func() {
		// ARRANGE
		callerID := int64(7)
		change := domain.RelationshipChange{
			Op:       domain.RelationshipOpLink,
			EdgeType: "assigned_to",
			CallerID: &callerID,
			Target:   domain.NodeRef{CollectionID: 2, RecordID: 20},
		}

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{message("1", change)})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.links[0].Source).To(Equal(domain.CallerSource(7)))
		Expect(writer.links[0].Actor).To(BeNil())
	})

	It("should map unlink changes to soft deletes by endpoints", func() {
		// ARRANGE
		change := domain.RelationshipChange{
			Op:       domain.RelationshipOpUnlink,
			EdgeType: "follows",
			Source:   &source,
			Target:   domain.NodeRef{CollectionID: 1, RecordID: 11},
		}

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{message("1", change)})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.unlinks).To(Equal([]unlinkCall{
			{Slug: "follows", Source: domain.RecordSource(source), Target: domain.NodeRef{CollectionID: 1, RecordID: 11}},
		}))
	})

	It("should treat the unlink of a missing edge as done", func() {
		// ARRANGE
		writer.unlinkErr = domain.ErrEdgeNotFound
		change := domain.RelationshipChange{
			Op:       domain.RelationshipOpUnlink,
			EdgeType: "follows",
			Source:   &source,
			Target:   domain.NodeRef{CollectionID: 1, RecordID: 11},
		}

		// ACT
		err := consumer.HandleMessages(ctx, []kafka.Message{message("1", change)})

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
	})

	It("should skip messages that can never be applied and keep going", func() {
		// ARRANGE
		writer.linkErrs[21] = &domain.CardinalityViolation{EdgeTypeSlug: "works_at", Side: "source"}
		writer.linkErrs[22] = domain.NewValidationError("edge_type", "unknown edge type %q", "likes")

		batch := []kafka.Message{
			{Key: "bad", Value: []byte(`{not json`)},
			message("no-source", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "follows", Target: domain.NodeRef{CollectionID: 1, RecordID: 2}}),
			message("unknown-op", domain.RelationshipChange{Op: "merge", EdgeType: "follows", Source: &source, Target: domain.NodeRef{CollectionID: 1, RecordID: 2}}),
			message("cardinality", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "works_at", Source: &source, Target: domain.NodeRef{CollectionID: 2, RecordID: 21}}),
			message("validation", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "likes", Source: &source, Target: domain.NodeRef{CollectionID: 2, RecordID: 22}}),
			message("ok", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "follows", Source: &source, Target: domain.NodeRef{CollectionID: 1, RecordID: 23}}),
		}

		// ACT
		err := consumer.HandleMessages(ctx, batch)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.links).To(HaveLen(3))
		Expect(writer.links[2].Target.RecordID).To(Equal(int64(23)))
	})

	It("should fail the batch on transient errors", func() {
		// ARRANGE
		writer.linkErrs[20] = errors.New("connection reset by peer")
		batch := []kafka.Message{
			message("first", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "follows", Source: &source, Target: domain.NodeRef{CollectionID: 1, RecordID: 20}}),
			message("second", domain.RelationshipChange{Op: domain.RelationshipOpLink, EdgeType: "follows", Source: &source, Target: domain.NodeRef{CollectionID: 1, RecordID: 30}}),
		}

		// ACT
		err := consumer.HandleMessages(ctx, batch)

		// ASSERT
		Expect(err).To(MatchError(ContainSubstring("first")))
		Expect(err).To(MatchError(ContainSubstring("connection reset by peer")))
		Expect(writer.links).To(HaveLen(1))
	})

	It("should accept an empty batch", func() {
		// ACT
		err := consumer.HandleMessages(ctx, nil)

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.links).To(BeEmpty())
	})
})
