package worker_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/queue"
	"musky.app/forecast/internal/worker"
)

type mockConsumer struct {
	mu       sync.Mutex
	batches  [][]queue.Message
	acked    []string
	requeued []string
	dlq      map[string]string
}

func (m *mockConsumer) Read(context.Context) ([]queue.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.batches) == 0 {
		time.Sleep(5 * time.Millisecond)
		return nil, nil
	}
	batch := m.batches[0]
	m.batches = m.batches[1:]
	return batch, nil
}

func (m *mockConsumer) Ack(_ context.Context, msg queue.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.acked = append(m.acked, msg.ID)
	return nil
}

func (m *mockConsumer) Requeue(_ context.Context, msg queue.Message, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requeued = append(m.requeued, msg.ID)
	return nil
}

func (m *mockConsumer) SendDLQ(_ context.Context, msg queue.Message, errMsg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dlq == nil {
		m.dlq = map[string]string{}
	}
	m.dlq[msg.ID] = errMsg
	return nil
}

func (m *mockConsumer) ackedIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.acked...)
}

type mockGenerator struct {
	getFn   func(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	forced  []string
	regular []string
}

func (m *mockGenerator) GetOrGenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	m.regular = append(m.regular, dateKey)
	return m.getFn(ctx, dateKey)
}

func (m *mockGenerator) ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	m.forced = append(m.forced, dateKey)
	return m.getFn(ctx, dateKey)
}

type mockSweeper struct {
	calls int
	err   error
}

func (m *mockSweeper) Sweep(context.Context) (int, error) {
	m.calls++
	return 3, m.err
}

func regenerate(id, dateKey string, force bool, attempt int) queue.Message {
	return queue.Message{ID: id, TaskType: queue.TaskTypeRegenerateReport, DateKey: dateKey, Force: force, Attempt: attempt}
}

var _ = Describe("Worker", func() {
	var (
		ctx      context.Context
		consumer *mockConsumer
		gen      *mockGenerator
		sweeper  *mockSweeper
		w        *worker.Worker
	)

	BeforeEach(func() {
		ctx = context.Background()
		consumer = &mockConsumer{}
		gen = &mockGenerator{getFn: func(_ context.Context, dateKey string) (*model.ReportArtifact, error) {
			return &model.ReportArtifact{DateKey: dateKey, Status: model.ReportFresh, Revision: 1}, nil
		}}
		sweeper = &mockSweeper{}
		w = worker.New(consumer, worker.NewProcessor(gen, sweeper), worker.Config{MaxAttempts: 3})
	})

	Describe("ProcessMessage", func() {
		It("generates and acks a regenerate task", func() {
			Expect(w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", false, 1))).To(Succeed())
			Expect(gen.regular).To(Equal([]string{"2026-06-10"}))
			Expect(gen.forced).To(BeEmpty())
			Expect(consumer.acked).To(Equal([]string{"1-0"}))
		})

		It("forces regeneration when asked", func() {
			Expect(w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", true, 1))).To(Succeed())
			Expect(gen.forced).To(Equal([]string{"2026-06-10"}))
		})

		It("runs sweep tasks", func() {
			Expect(w.ProcessMessage(ctx, queue.Message{ID: "2-0", TaskType: queue.TaskTypeSweepReports, Attempt: 1})).To(Succeed())
			Expect(sweeper.calls).To(Equal(1))
			Expect(consumer.acked).To(Equal([]string{"2-0"}))
		})

		It("requeues a failed generation", func() {
			gen.getFn = func(context.Context, string) (*model.ReportArtifact, error) {
				return nil, fmt.Errorf("%w: all sources down", generation.ErrGenerationFailed)
			}

			Expect(w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", false, 1))).NotTo(Succeed())
			Expect(consumer.requeued).To(Equal([]string{"1-0"}))
			Expect(consumer.acked).To(BeEmpty())
		})

		It("requeues when only a stale report could be served", func() {
			gen.getFn = func(_ context.Context, dateKey string) (*model.ReportArtifact, error) {
				msg := "builder failed"
				return &model.ReportArtifact{DateKey: dateKey, Status: model.ReportStale, Error: &msg}, nil
			}

			Expect(w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", false, 1))).To(MatchError(ContainSubstring("builder failed")))
			Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		})

		It("sends to the DLQ after the last attempt", func() {
			gen.getFn = func(context.Context, string) (*model.ReportArtifact, error) {
				return nil, errors.New("store down")
			}

			Expect(w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", false, 3))).NotTo(Succeed())
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(HaveKeyWithValue("1-0", ContainSubstring("store down")))
		})

		It("sends invalid dates straight to the DLQ", func() {
			gen.getFn = func(_ context.Context, dateKey string) (*model.ReportArtifact, error) {
				return nil, fmt.Errorf("%w: %s", generation.ErrInvalidDate, dateKey)
			}

			Expect(w.ProcessMessage(ctx, regenerate("1-0", "someday", false, 1))).NotTo(Succeed())
			Expect(consumer.requeued).To(BeEmpty())
			Expect(consumer.dlq).To(HaveKey("1-0"))
		})

		It("recovers from a panicking generator", func() {
			gen.getFn = func(context.Context, string) (*model.ReportArtifact, error) {
				panic("nil pointer")
			}

			err := w.ProcessMessage(ctx, regenerate("1-0", "2026-06-10", false, 1))
			Expect(err).To(MatchError(ContainSubstring("panic: nil pointer")))
			Expect(consumer.requeued).To(Equal([]string{"1-0"}))
		})
	})

	Describe("Run", func() {
		It("processes batches until stopped", func() {
			consumer.batches = [][]queue.Message{
				{regenerate("1-0", "2026-06-10", false, 1), regenerate("2-0", "2026-06-11", false, 1)},
			}

			done := make(chan error, 1)
			go func() { done <- w.Run(ctx) }()

			Eventually(consumer.ackedIDs).Should(Equal([]string{"1-0", "2-0"}))
			w.Stop()
			Eventually(done).Should(Receive(BeNil()))
		})
	})
})
