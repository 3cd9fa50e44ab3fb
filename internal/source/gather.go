package source

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"musky.app/forecast/common/logger"
	"musky.app/forecast/internal/model"
)

const (
	DefaultGatherDeadline = 25 * time.Second
	DefaultMaxParallel    = 4
)

type GatherConfig struct {
	// Deadline bounds the whole fan-out. Adapters still running when it
	// passes are reported as timeouts.
	Deadline time.Duration
	// MaxParallel caps concurrent adapter calls.
	MaxParallel int
}

type indexedResult struct {
	index  int
	result model.SourceResult
}

// Gather calls every adapter with bounded parallelism and returns one result
// per adapter in registration order. It never fails: panics, errors and
// missed deadlines all become failed results.
func Gather(ctx context.Context, adapters []Adapter, loc model.Location, date time.Time, cfg GatherConfig) []model.SourceResult {
	deadline := cfg.Deadline
	if deadline <= 0 {
		deadline = DefaultGatherDeadline
	}
	maxParallel := cfg.MaxParallel
	if maxParallel <= 0 {
		maxParallel = DefaultMaxParallel
	}

	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	results := make([]model.SourceResult, len(adapters))
	received := make([]bool, len(adapters))

	// Buffered so adapters finishing after the deadline never block.
	done := make(chan indexedResult, len(adapters))
	sem := make(chan struct{}, maxParallel)

	for i, a := range adapters {
		go func(idx int, adapter Adapter) {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return
			}
			defer func() { <-sem }()
			done <- indexedResult{index: idx, result: safeFetch(ctx, adapter, loc, date)}
		}(i, a)
	}

	start := time.Now()
	for remaining := len(adapters); remaining > 0; {
		select {
		case r := <-done:
			results[r.index] = r.result
			received[r.index] = true
			remaining--
		case <-ctx.Done():
			for i, a := range adapters {
				if received[i] {
					continue
				}
				results[i] = model.Failed(a.ID(), a.Confidence(), model.SourceErrorTimeout, "timeout")
				results[i].Duration = time.Since(start)
			}
			slog.WarnContext(ctx, "source gather deadline reached",
				"deadline", deadline,
				"responded", len(adapters)-remaining,
				"total", len(adapters))
			return results
		}
	}
	return results
}

// safeFetch runs one adapter, converting a panic into a failed result and
// stamping identity and timing.
func safeFetch(ctx context.Context, a Adapter, loc model.Location, date time.Time) (res model.SourceResult) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{SourceID: logger.Ptr(a.ID())})
	span := logger.StartSpan(ctx, "source.fetch", trace.WithAttributes(attribute.String("source.id", a.ID())))
	ctx = span.Context()
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "source adapter panicked",
				"panic", r,
				"stack", string(debug.Stack()))
			res = model.Failed(a.ID(), a.Confidence(), model.SourceErrorPanic, fmt.Sprint(r))
		}
		res.Duration = time.Since(start)
		if res.Error != nil {
			span.Span().SetAttributes(attribute.String("source.error_kind", string(res.Error.Kind)))
		}
		span.End()
	}()

	res = a.Fetch(ctx, loc, date)
	if res.SourceID == "" {
		res.SourceID = a.ID()
	}
	if res.Confidence == "" {
		res.Confidence = a.Confidence()
	}

	if res.Error != nil {
		slog.WarnContext(ctx, "source fetch failed",
			"kind", res.Error.Kind,
			"error", res.Error.Message)
	} else {
		slog.DebugContext(ctx, "source fetch succeeded", "windows", len(res.Windows))
	}
	return res
}
