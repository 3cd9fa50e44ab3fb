package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
)

type Producer interface {
	// Enqueue adds the task to the stream and returns its message ID.
	Enqueue(ctx context.Context, task Task) (string, error)
	Close() error
}

type redisProducer struct {
	client redis.UniversalClient
	stream string
	logger *slog.Logger
}

func NewRedisProducer(client redis.UniversalClient, stream string, logger *slog.Logger) Producer {
	if logger == nil {
		logger = slog.Default()
	}
	return &redisProducer{
		client: client,
		stream: stream,
		logger: logger,
	}
}

func (p *redisProducer) Enqueue(ctx context.Context, task Task) (string, error) {
	attempt := task.Attempt
	if attempt <= 0 {
		attempt = 1
	}

	fields := taskValues(task, attempt)
	if task.TraceID != nil && *task.TraceID != "" {
		fields["trace_id"] = *task.TraceID
	}

	id, err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		Values: fields,
	}).Result()
	if err != nil {
		return "", fmt.Errorf("enqueue task: %w", err)
	}

	p.logger.InfoContext(ctx, "enqueued task", "message_id", id, "task_type", task.TaskType, "date_key", task.DateKey, "force", task.Force, "attempt", attempt)
	return id, nil
}

func (p *redisProducer) Close() error {
	return p.client.Close()
}

func taskValues(task Task, attempt int) map[string]any {
	values := map[string]any{
		"task_type": string(task.TaskType),
		"attempt":   attempt,
	}
	if task.DateKey != "" {
		values["date_key"] = task.DateKey
	}
	if task.Force {
		values["force"] = "1"
	}
	return values
}
