// Package generation produces and caches the daily report artifact, running at
// most one generation per date at a time.
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"musky.app/forecast/common/clock"
	"musky.app/forecast/common/id"
	"musky.app/forecast/common/logger"
	"musky.app/forecast/internal/consensus"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
	"musky.app/forecast/internal/source"
	"musky.app/forecast/internal/store"
)

var (
	// ErrGenerationFailed means no artifact could be produced and none was
	// stored to fall back on.
	ErrGenerationFailed = errors.New("report generation failed")
	ErrInvalidDate      = errors.New("invalid date key")
)

// FlightPolicy decides what callers do when a generation for their date is
// already running.
type FlightPolicy string

const (
	// PolicyBlock waits for the running generation and shares its result.
	PolicyBlock FlightPolicy = "block"
	// PolicyServeStale returns the stored artifact as stale right away and
	// blocks only when nothing is stored.
	PolicyServeStale FlightPolicy = "serve-stale"
)

func ParseFlightPolicy(s string) (FlightPolicy, error) {
	switch FlightPolicy(s) {
	case PolicyBlock, PolicyServeStale:
		return FlightPolicy(s), nil
	case "":
		return PolicyBlock, nil
	default:
		return "", fmt.Errorf("unknown flight policy %q", s)
	}
}

type Config struct {
	Location        model.Location
	Zone            *time.Location
	FreshnessWindow time.Duration
	Gather          source.GatherConfig
	Policy          FlightPolicy
	// FlightTimeout bounds one whole generation: fan-out, content build and
	// store write. It runs detached from any caller's context.
	FlightTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.Zone == nil {
		c.Zone = time.UTC
	}
	if c.FreshnessWindow <= 0 {
		c.FreshnessWindow = model.DefaultFreshnessWindow
	}
	if c.Gather.Deadline <= 0 {
		c.Gather.Deadline = source.DefaultGatherDeadline
	}
	if c.Policy == "" {
		c.Policy = PolicyBlock
	}
	if c.FlightTimeout <= 0 {
		c.FlightTimeout = 2*c.Gather.Deadline + 30*time.Second
	}
	return c
}

type Coordinator struct {
	store      store.ReportStore
	adapters   []source.Adapter
	aggregator *consensus.Aggregator
	builder    report.Builder
	locker     Locker
	clock      clock.Clock
	cfg        Config

	flights  singleflight.Group
	mu       sync.Mutex
	inFlight map[string]int
}

type Option func(*Coordinator)

// WithLocker adds a cross-process lock around each generation.
func WithLocker(l Locker) Option {
	return func(c *Coordinator) { c.locker = l }
}

func WithClock(clk clock.Clock) Option {
	return func(c *Coordinator) { c.clock = clk }
}

func NewCoordinator(
	reports store.ReportStore,
	adapters []source.Adapter,
	aggregator *consensus.Aggregator,
	builder report.Builder,
	cfg Config,
	opts ...Option,
) *Coordinator {
	c := &Coordinator{
		store:      reports,
		adapters:   adapters,
		aggregator: aggregator,
		builder:    builder,
		clock:      clock.Real{},
		cfg:        cfg.withDefaults(),
		inFlight:   make(map[string]int),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Zone is the reference time zone date keys are computed in.
func (c *Coordinator) Zone() *time.Location {
	return c.cfg.Zone
}

// Today is the current date key in the reference zone.
func (c *Coordinator) Today() string {
	return model.DateKeyFor(c.clock.Now(), c.cfg.Zone)
}

func (c *Coordinator) Now() time.Time {
	return c.clock.Now()
}

// GetOrGenerate returns the artifact for dateKey, generating it when nothing
// fresh is stored. Only total unavailability is an error.
func (c *Coordinator) GetOrGenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if err := c.validate(dateKey); err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{DateKey: logger.Ptr(dateKey)})

	prev := c.read(ctx, dateKey)
	if prev != nil && c.isFresh(prev) {
		return prev.WithStatus(model.ReportFresh), nil
	}

	if prev != nil && c.cfg.Policy == PolicyServeStale && c.InFlight(dateKey) {
		slog.DebugContext(ctx, "generation in flight, serving stale artifact", "revision", prev.Revision)
		return prev.WithStatus(model.ReportStale), nil
	}

	return c.await(ctx, dateKey, false)
}

// ForceRegenerate generates dateKey even when a fresh artifact is stored. A
// caller arriving while a generation for the date is running joins it.
func (c *Coordinator) ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if err := c.validate(dateKey); err != nil {
		return nil, err
	}
	ctx = logger.WithLogFields(ctx, logger.LogFields{DateKey: logger.Ptr(dateKey)})
	return c.await(ctx, dateKey, true)
}

// Get returns the stored artifact with its derived status, without generating.
func (c *Coordinator) Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if err := c.validate(dateKey); err != nil {
		return nil, err
	}
	a, err := c.store.Get(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	return a.WithStatus(c.statusOf(a)), nil
}

// Latest returns the most recent stored artifact with its derived status.
func (c *Coordinator) Latest(ctx context.Context) (*model.ReportArtifact, error) {
	a, err := c.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	return a.WithStatus(c.statusOf(a)), nil
}

// Preview computes a consensus schedule for any location without touching the
// store. It runs on the caller's context.
func (c *Coordinator) Preview(ctx context.Context, loc model.Location, dateKey string) (*model.ConsensusSchedule, error) {
	zone := c.cfg.Zone
	if loc.TimeZone != "" {
		z, err := time.LoadLocation(loc.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("%w: unknown time zone %q", ErrInvalidDate, loc.TimeZone)
		}
		zone = z
	} else {
		loc.TimeZone = zone.String()
	}
	date, err := model.ParseDateKey(dateKey, zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, dateKey)
	}

	results := source.Gather(ctx, c.adapters, loc, date, c.cfg.Gather)
	schedule, ok := c.aggregator.Aggregate(dateKey, loc, results)
	if !ok {
		return nil, fmt.Errorf("%w: no source succeeded", ErrGenerationFailed)
	}
	return &schedule, nil
}

// InFlight reports whether a generation for dateKey is running in this
// process.
func (c *Coordinator) InFlight(dateKey string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight[dateKey] > 0
}

func (c *Coordinator) await(ctx context.Context, dateKey string, force bool) (*model.ReportArtifact, error) {
	// The flight must outlive any single caller: a caller giving up only
	// stops waiting.
	flightCtx := context.WithoutCancel(ctx)

	ch := c.flights.DoChan(dateKey, func() (any, error) {
		fctx, cancel := context.WithTimeout(flightCtx, c.cfg.FlightTimeout)
		defer cancel()
		return c.generate(fctx, dateKey, force)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		a := *res.Val.(*model.ReportArtifact)
		return &a, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Coordinator) generate(ctx context.Context, dateKey string, force bool) (*model.ReportArtifact, error) {
	c.setInFlight(dateKey, 1)
	defer c.setInFlight(dateKey, -1)

	runID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		RunID:     &runID,
		Component: "generation",
	})
	span := logger.StartSpan(ctx, "report.generate", trace.WithAttributes(
		attribute.String("report.date_key", dateKey),
		attribute.Bool("report.force", force),
	))
	defer span.End()
	ctx = span.Context()

	if c.locker != nil {
		release, err := c.locker.Acquire(ctx, "forecast:lock:report:"+dateKey)
		if err != nil {
			slog.WarnContext(ctx, "generation lock unavailable, continuing without it", "error", err)
		} else {
			defer release()
		}
	}

	// Another caller or process may have finished while we waited.
	prev := c.read(ctx, dateKey)
	if prev != nil && !force && c.isFresh(prev) {
		slog.DebugContext(ctx, "artifact became fresh while waiting, skipping generation", "revision", prev.Revision)
		return prev.WithStatus(model.ReportFresh), nil
	}

	date, err := model.ParseDateKey(dateKey, c.cfg.Zone)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidDate, dateKey)
	}

	start := c.clock.Now()
	results := source.Gather(ctx, c.adapters, c.cfg.Location, date, c.cfg.Gather)

	schedule, ok := c.aggregator.Aggregate(dateKey, c.cfg.Location, results)
	if !ok {
		return c.fail(ctx, prev, fmt.Errorf("%w: no source succeeded and the fallback schedule is disabled", ErrGenerationFailed))
	}

	content, err := c.builder.Build(ctx, &schedule)
	if err != nil {
		return c.fail(ctx, prev, fmt.Errorf("%w: %w", ErrGenerationFailed, err))
	}

	now := c.clock.Now()
	artifact := &model.ReportArtifact{
		DateKey:              dateKey,
		Content:              content.Text,
		GeneratedAt:          now,
		GenerationDurationMs: now.Sub(start).Milliseconds(),
		CostUnits:            content.CostUnits,
		RunID:                runID,
		Schedule:             &schedule,
	}

	stored, err := c.store.Put(ctx, artifact)
	if err != nil {
		slog.ErrorContext(ctx, "failed to store generated report, serving it uncached",
			"error", err,
			"sources_used", schedule.SourcesUsed)
		return artifact.WithStatus(model.ReportFresh), nil
	}

	slog.InfoContext(ctx, "report generated",
		"revision", stored.Revision,
		"sources_used", schedule.SourcesUsed,
		"sources_attempted", schedule.SourcesAttempted,
		"confidence_tier", schedule.ConfidenceTier,
		"fallback", schedule.Fallback,
		"duration_ms", artifact.GenerationDurationMs,
		"cost_units", artifact.CostUnits)

	return stored.WithStatus(model.ReportFresh), nil
}

// fail serves the previous artifact as stale with the failure attached, or
// returns err when there is nothing to serve.
func (c *Coordinator) fail(ctx context.Context, prev *model.ReportArtifact, err error) (*model.ReportArtifact, error) {
	if prev == nil {
		slog.ErrorContext(ctx, "report generation failed with nothing cached", "error", err)
		return nil, err
	}
	slog.WarnContext(ctx, "report generation failed, serving previous artifact",
		"error", err,
		"revision", prev.Revision)
	a := prev.WithStatus(model.ReportStale)
	msg := err.Error()
	a.Error = &msg
	return a, nil
}

// read returns the stored artifact, or nil when it is absent or unreadable.
func (c *Coordinator) read(ctx context.Context, dateKey string) *model.ReportArtifact {
	a, err := c.store.Get(ctx, dateKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			slog.ErrorContext(ctx, "failed to read stored report, generating", "error", err)
		}
		return nil
	}
	return a
}

func (c *Coordinator) isFresh(a *model.ReportArtifact) bool {
	return a.StatusAt(c.clock.Now(), c.cfg.FreshnessWindow) == model.ReportFresh
}

func (c *Coordinator) statusOf(a *model.ReportArtifact) model.ReportStatus {
	if c.InFlight(a.DateKey) {
		return model.ReportGenerating
	}
	return a.StatusAt(c.clock.Now(), c.cfg.FreshnessWindow)
}

func (c *Coordinator) setInFlight(dateKey string, delta int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight[dateKey] += delta
	if c.inFlight[dateKey] <= 0 {
		delete(c.inFlight, dateKey)
	}
}

func (c *Coordinator) validate(dateKey string) error {
	if _, err := model.ParseDateKey(dateKey, c.cfg.Zone); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDate, dateKey)
	}
	return nil
}
