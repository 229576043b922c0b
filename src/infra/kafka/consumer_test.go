package kafka

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string           { return "member-1" }
func (s *fakeSession) GenerationID() int32        { return 1 }
func (s *fakeSession) Commit()                    {}
func (s *fakeSession) Context() context.Context   { return s.ctx }

func (s *fakeSession) MarkOffset(topic string, partition int32, offset int64, metadata string) {}
func (s *fakeSession) ResetOffset(topic string, partition int32, offset int64, metadata string) {}

func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, metadata string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marked = append(s.marked, msg.Offset)
}

func (s *fakeSession) Marked() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]int64(nil), s.marked...)
}

type fakeClaim struct {
	messages chan *sarama.ConsumerMessage
}

// newFakeClaim entrega as mensagens com os offsets dados e fecha o canal.
func newFakeClaim(offsets ...int64) *fakeClaim {
	messages := make(chan *sarama.ConsumerMessage, len(offsets))
	for _, offset := range offsets {
		messages <- &sarama.ConsumerMessage{Topic: "relgraph.relationships", Offset: offset, Value: []byte(`{}`)}
	}
	close(messages)
	return &fakeClaim{messages: messages}
}

func (c *fakeClaim) Topic() string                            { return "relgraph.relationships" }
func (c *fakeClaim) Partition() int32                         { return 0 }
func (c *fakeClaim) InitialOffset() int64                     { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64               { return 4 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.messages }

var _ = Describe("consumerGroupHandler", func() {
	var (
		session *fakeSession
		calls   [][]int64
		failFor func(attempt int, batch []int64) error
		handler *consumerGroupHandler
	)

	BeforeEach(func() {
		session = &fakeSession{ctx: context.Background()}
		calls = nil
		failFor = func(int, []int64) error { return nil }

		handler = &consumerGroupHandler{
			handler: func(messages []Message) error {
				batch := make([]int64, len(messages))
				for i, msg := range messages {
					batch[i] = msg.internal.Offset
				}
				calls = append(calls, batch)
				return failFor(len(calls), batch)
			},
			batchSize:     2,
			batchTimeout:  time.Minute,
			maxAttempts:   3,
			retryInterval: time.Millisecond,
		}
	})

	It("should mark every message of the successful batches", func() {
		// ACT
		err := handler.ConsumeClaim(session, newFakeClaim(0, 1, 2, 3))

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(session.Marked()).To(Equal([]int64{0, 1, 2, 3}))
		Expect(calls).To(Equal([][]int64{{0, 1}, {2, 3}}))
	})

	It("should retry a failed batch before moving on", func() {
		// ARRANGE
		failFor = func(attempt int, batch []int64) error {
			if attempt == 1 {
				return errors.New("connection reset by peer")
			}
			return nil
		}

		// ACT
		err := handler.ConsumeClaim(session, newFakeClaim(0, 1, 2, 3))

		// ASSERT
		Expect(err).NotTo(HaveOccurred())
		Expect(calls).To(Equal([][]int64{{0, 1}, {0, 1}, {2, 3}}))
		Expect(session.Marked()).To(Equal([]int64{0, 1, 2, 3}))
	})

	It("should stop the claim without marking later offsets when a batch keeps failing", func() {
		// ARRANGE
		failFor = func(attempt int, batch []int64) error {
			if batch[0] == 0 {
				return errors.New("connection reset by peer")
			}
			return nil
		}

		// ACT
		err := handler.ConsumeClaim(session, newFakeClaim(0, 1, 2, 3))

		// ASSERT
		Expect(err).To(MatchError(ContainSubstring("connection reset by peer")))
		Expect(calls).To(HaveLen(3))
		Expect(calls).NotTo(ContainElement([]int64{2, 3}))
		Expect(session.Marked()).To(BeEmpty())
	})

	It("should not mark a pending batch that fails when the session ends", func() {
		// ARRANGE
		ctx, cancel := context.WithCancel(context.Background())
		session.ctx = ctx
		failFor = func(int, []int64) error { return errors.New("statement timeout") }

		messages := make(chan *sarama.ConsumerMessage, 1)
		messages <- &sarama.ConsumerMessage{Offset: 7, Value: []byte(`{}`)}
		claim := &fakeClaim{messages: messages}

		// ACT
		done := make(chan error, 1)
		go func() { done <- handler.ConsumeClaim(session, claim) }()
		Eventually(func() int { return len(messages) }).Should(BeZero())
		cancel()

		// ASSERT
		Eventually(done).Should(Receive(HaveOccurred()))
		Expect(session.Marked()).To(BeEmpty())
	})
})
