package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/queue"
	"musky.app/forecast/internal/scheduler"
	"musky.app/forecast/internal/store"
)

var ErrQueueUnavailable = errors.New("task queue not configured")

// Scheduler is the slice of scheduler.Scheduler the admin surface drives.
type Scheduler interface {
	ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	Sweep(ctx context.Context) (int, error)
	Status() scheduler.Status
}

type RegenerateParams struct {
	DateKey string
	Async   bool
	TraceID *string
}

type RegenerateResult struct {
	Artifact  *model.ReportArtifact
	MessageID string
	Enqueued  bool
}

type SweepResult struct {
	Removed   int
	MessageID string
	Enqueued  bool
}

type AdminStatus struct {
	Today        string
	Now          time.Time
	Scheduler    scheduler.Status
	Report       *model.ArtifactSummary
	QueueEnabled bool
}

type AdminService interface {
	Regenerate(ctx context.Context, params RegenerateParams) (*RegenerateResult, error)
	Sweep(ctx context.Context, async bool, traceID *string) (*SweepResult, error)
	Status(ctx context.Context) (*AdminStatus, error)
}

type adminService struct {
	gen        Generator
	sched      Scheduler
	queue      queue.Producer
	retainDays int
}

// NewAdminService builds the admin surface. producer may be nil, in which
// case async requests fail with ErrQueueUnavailable.
func NewAdminService(gen Generator, sched Scheduler, producer queue.Producer, retainDays int) AdminService {
	return &adminService{
		gen:        gen,
		sched:      sched,
		queue:      producer,
		retainDays: retainDays,
	}
}

func (s *adminService) Regenerate(ctx context.Context, params RegenerateParams) (*RegenerateResult, error) {
	dateKey := params.DateKey
	if dateKey == "today" || dateKey == "" {
		dateKey = s.gen.Today()
	}
	if err := checkDateRange(s.gen, s.retainDays, dateKey); err != nil {
		return nil, err
	}

	if params.Async {
		if s.queue == nil {
			return nil, ErrQueueUnavailable
		}
		msgID, err := s.queue.Enqueue(ctx, queue.Task{
			TaskType: queue.TaskTypeRegenerateReport,
			DateKey:  dateKey,
			Force:    true,
			TraceID:  params.TraceID,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueueing regeneration: %w", err)
		}
		return &RegenerateResult{MessageID: msgID, Enqueued: true}, nil
	}

	a, err := s.sched.ForceRegenerate(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	return &RegenerateResult{Artifact: a}, nil
}

func (s *adminService) Sweep(ctx context.Context, async bool, traceID *string) (*SweepResult, error) {
	if async {
		if s.queue == nil {
			return nil, ErrQueueUnavailable
		}
		msgID, err := s.queue.Enqueue(ctx, queue.Task{
			TaskType: queue.TaskTypeSweepReports,
			TraceID:  traceID,
		})
		if err != nil {
			return nil, fmt.Errorf("enqueueing sweep: %w", err)
		}
		return &SweepResult{MessageID: msgID, Enqueued: true}, nil
	}

	removed, err := s.sched.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &SweepResult{Removed: removed}, nil
}

func (s *adminService) Status(ctx context.Context) (*AdminStatus, error) {
	today := s.gen.Today()
	st := &AdminStatus{
		Today:        today,
		Now:          s.gen.Now(),
		Scheduler:    s.sched.Status(),
		QueueEnabled: s.queue != nil,
	}

	a, err := s.gen.Get(ctx, today)
	switch {
	case err == nil:
		summary := a.Summary()
		st.Report = &summary
	case errors.Is(err, store.ErrNotFound):
	default:
		return nil, fmt.Errorf("reading today's report: %w", err)
	}
	return st, nil
}
