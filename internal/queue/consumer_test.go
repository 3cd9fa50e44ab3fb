package queue_test

import (
	"github.com/redis/go-redis/v9"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/internal/queue"
)

var _ = Describe("ParseMessage", func() {
	It("parses a regenerate task", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID: "1718000000000-0",
			Values: map[string]any{
				"task_type": "regenerate_report",
				"date_key":  "2026-06-10",
				"force":     "1",
				"attempt":   "2",
				"trace_id":  "abc123",
			},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.ID).To(Equal("1718000000000-0"))
		Expect(msg.TaskType).To(Equal(queue.TaskTypeRegenerateReport))
		Expect(msg.DateKey).To(Equal("2026-06-10"))
		Expect(msg.Force).To(BeTrue())
		Expect(msg.Attempt).To(Equal(2))
		Expect(msg.TraceID).To(Equal("abc123"))
	})

	It("defaults attempt to 1 and force to false", func() {
		msg, err := queue.ParseMessage(redis.XMessage{
			ID:     "1-0",
			Values: map[string]any{"task_type": "sweep_reports"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Attempt).To(Equal(1))
		Expect(msg.Force).To(BeFalse())
		Expect(msg.DateKey).To(BeEmpty())
	})

	DescribeTable("rejects malformed messages",
		func(values map[string]any, expected string) {
			_, err := queue.ParseMessage(redis.XMessage{ID: "1-0", Values: values})
			Expect(err).To(MatchError(ContainSubstring(expected)))
		},
		Entry("missing task type", map[string]any{"date_key": "2026-06-10"}, "missing task_type"),
		Entry("unknown task type", map[string]any{"task_type": "issue_event"}, "unknown task_type"),
		Entry("regenerate without date", map[string]any{"task_type": "regenerate_report"}, "missing date_key"),
		Entry("regenerate with bad date", map[string]any{"task_type": "regenerate_report", "date_key": "10/06/2026"}, "invalid date_key"),
		Entry("bad attempt", map[string]any{"task_type": "sweep_reports", "attempt": "many"}, "parsing attempt"),
		Entry("bad force", map[string]any{"task_type": "sweep_reports", "force": "maybe"}, "parsing force"),
	)
})

var _ = Describe("Message.Task", func() {
	It("carries the fields needed to requeue", func() {
		msg := queue.Message{TaskType: queue.TaskTypeRegenerateReport, DateKey: "2026-06-10", Force: true, Attempt: 3, TraceID: "t"}
		task := msg.Task()

		Expect(task.TaskType).To(Equal(queue.TaskTypeRegenerateReport))
		Expect(task.DateKey).To(Equal("2026-06-10"))
		Expect(task.Force).To(BeTrue())
		Expect(task.Attempt).To(Equal(3))
		Expect(*task.TraceID).To(Equal("t"))
	})
})
