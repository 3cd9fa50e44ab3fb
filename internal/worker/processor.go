package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/queue"
)

// errPermanent marks failures that retrying cannot fix.
var errPermanent = errors.New("permanent failure")

// Processor runs one queued task against the report pipeline.
type Processor struct {
	generator ReportGenerator
	sweeper   ReportSweeper
}

func NewProcessor(generator ReportGenerator, sweeper ReportSweeper) *Processor {
	return &Processor{generator: generator, sweeper: sweeper}
}

func (p *Processor) Process(ctx context.Context, msg queue.Message) error {
	switch msg.TaskType {
	case queue.TaskTypeRegenerateReport:
		return p.regenerate(ctx, msg)
	case queue.TaskTypeSweepReports:
		removed, err := p.sweeper.Sweep(ctx)
		if err != nil {
			return fmt.Errorf("sweeping reports: %w", err)
		}
		slog.InfoContext(ctx, "sweep task completed", "removed", removed)
		return nil
	default:
		return fmt.Errorf("%w: unknown task type %q", errPermanent, msg.TaskType)
	}
}

func (p *Processor) regenerate(ctx context.Context, msg queue.Message) error {
	generate := p.generator.GetOrGenerate
	if msg.Force {
		generate = p.generator.ForceRegenerate
	}

	a, err := generate(ctx, msg.DateKey)
	if err != nil {
		if errors.Is(err, generation.ErrInvalidDate) {
			return fmt.Errorf("%w: %w", errPermanent, err)
		}
		return fmt.Errorf("generating report %s: %w", msg.DateKey, err)
	}

	// A stale artifact with an error means generation failed but an older
	// report is still being served. Retry so the date eventually catches up.
	if a.Error != nil {
		return fmt.Errorf("generating report %s: %s", msg.DateKey, *a.Error)
	}

	slog.InfoContext(ctx, "regenerate task completed",
		"revision", a.Revision,
		"status", a.Status,
		"force", msg.Force)
	return nil
}
