package worker

import (
	"context"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/queue"
)

// Consumer abstracts the message queue for testability.
type Consumer interface {
	Read(ctx context.Context) ([]queue.Message, error)
	Ack(ctx context.Context, msg queue.Message) error
	Requeue(ctx context.Context, msg queue.Message, errMsg string) error
	SendDLQ(ctx context.Context, msg queue.Message, errMsg string) error
}

// ReportGenerator is satisfied by generation.Coordinator.
type ReportGenerator interface {
	GetOrGenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
}

// ReportSweeper is satisfied by scheduler.Scheduler.
type ReportSweeper interface {
	Sweep(ctx context.Context) (int, error)
}
