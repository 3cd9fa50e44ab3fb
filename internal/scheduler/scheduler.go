// Package scheduler runs the daily report generation and the retention sweep.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"musky.app/forecast/common/clock"
	"musky.app/forecast/common/logger"
	"musky.app/forecast/internal/model"
)

// Generator is the slice of generation.Coordinator the scheduler drives.
type Generator interface {
	GetOrGenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
}

// Sweeper deletes artifacts outside the retention window.
type Sweeper interface {
	Sweep(ctx context.Context, retainDays int, today time.Time) (int, error)
}

type Config struct {
	Daily         DailySchedule
	SweepInterval time.Duration
	RetainDays    int
	// RunOnStart generates today's report as soon as the scheduler starts.
	RunOnStart bool
}

type Status struct {
	Running          bool                   `json:"running"`
	LastRun          *time.Time             `json:"last_run,omitempty"`
	LastError        string                 `json:"last_error,omitempty"`
	NextRun          *time.Time             `json:"next_run,omitempty"`
	LastSweep        *time.Time             `json:"last_sweep,omitempty"`
	LastSweepRemoved int                    `json:"last_sweep_removed"`
	Current          *model.ArtifactSummary `json:"current,omitempty"`
}

type Scheduler struct {
	gen     Generator
	sweeper Sweeper
	clock   clock.Clock
	cfg     Config

	mu     sync.Mutex
	status Status

	stopCh    chan struct{}
	stoppedCh chan struct{}
}

func New(gen Generator, sweeper Sweeper, clk clock.Clock, cfg Config) *Scheduler {
	if clk == nil {
		clk = clock.Real{}
	}
	if cfg.Daily.Location == nil {
		cfg.Daily.Location = time.UTC
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 6 * time.Hour
	}
	if cfg.RetainDays <= 0 {
		cfg.RetainDays = 7
	}
	return &Scheduler{
		gen:     gen,
		sweeper: sweeper,
		clock:   clk,
		cfg:     cfg,
	}
}

// Start launches the daily and sweep loops. It returns an error if the
// scheduler is already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status.Running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.status.Running = true
	s.stopCh = make(chan struct{})
	s.stoppedCh = make(chan struct{})
	stopCh, stoppedCh := s.stopCh, s.stoppedCh
	s.mu.Unlock()

	ctx = logger.WithLogFields(ctx, logger.LogFields{Component: "scheduler"})
	slog.InfoContext(ctx, "scheduler started",
		"daily_at", s.cfg.Daily.String(),
		"sweep_interval", s.cfg.SweepInterval,
		"retain_days", s.cfg.RetainDays)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		s.dailyLoop(ctx, stopCh)
	}()
	go func() {
		defer wg.Done()
		s.sweepLoop(ctx, stopCh)
	}()
	go func() {
		wg.Wait()
		s.mu.Lock()
		s.status.Running = false
		s.status.NextRun = nil
		s.mu.Unlock()
		close(stoppedCh)
	}()
	return nil
}

// Stop ends both loops and waits for any run in progress to finish. Calling
// Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.status.Running || s.stopCh == nil {
		s.mu.Unlock()
		return
	}
	stopCh, stoppedCh := s.stopCh, s.stoppedCh
	s.stopCh = nil
	s.mu.Unlock()

	close(stopCh)
	<-stoppedCh
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// RunNow generates today's report unless a fresh one exists.
func (s *Scheduler) RunNow(ctx context.Context) (*model.ReportArtifact, error) {
	return s.run(ctx, s.today(), false)
}

// ForceRegenerate regenerates dateKey even when a fresh report exists.
func (s *Scheduler) ForceRegenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	return s.run(ctx, dateKey, true)
}

// Sweep removes artifacts older than the retention window.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	now := s.clock.Now()
	removed, err := s.sweeper.Sweep(ctx, s.cfg.RetainDays, now.In(s.cfg.Daily.Location))

	s.mu.Lock()
	if err == nil {
		s.status.LastSweep = &now
		s.status.LastSweepRemoved = removed
	}
	s.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "report sweep failed", "error", err)
		return 0, err
	}
	slog.InfoContext(ctx, "report sweep completed", "removed", removed, "retain_days", s.cfg.RetainDays)
	return removed, nil
}

func (s *Scheduler) run(ctx context.Context, dateKey string, force bool) (*model.ReportArtifact, error) {
	var (
		a   *model.ReportArtifact
		err error
	)
	if force {
		a, err = s.gen.ForceRegenerate(ctx, dateKey)
	} else {
		a, err = s.gen.GetOrGenerate(ctx, dateKey)
	}

	now := s.clock.Now()
	s.mu.Lock()
	s.status.LastRun = &now
	switch {
	case err != nil:
		s.status.LastError = err.Error()
	case a.Error != nil:
		s.status.LastError = *a.Error
	default:
		s.status.LastError = ""
	}
	if a != nil && dateKey == s.today() {
		summary := a.Summary()
		s.status.Current = &summary
	}
	s.mu.Unlock()

	if err != nil {
		slog.ErrorContext(ctx, "scheduled report generation failed", "date_key", dateKey, "error", err)
		return nil, err
	}
	return a, nil
}

func (s *Scheduler) dailyLoop(ctx context.Context, stopCh <-chan struct{}) {
	if s.cfg.RunOnStart {
		_, _ = s.RunNow(ctx)
	}

	for {
		next := s.cfg.Daily.Next(s.clock.Now())
		s.mu.Lock()
		s.status.NextRun = &next
		s.mu.Unlock()

		timer := time.NewTimer(next.Sub(s.clock.Now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-stopCh:
			timer.Stop()
			return
		case <-timer.C:
			_, _ = s.RunNow(ctx)
		}
	}
}

func (s *Scheduler) sweepLoop(ctx context.Context, stopCh <-chan struct{}) {
	ticker := time.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			return
		case <-ticker.C:
			_, _ = s.Sweep(ctx)
		}
	}
}

func (s *Scheduler) today() string {
	return model.DateKeyFor(s.clock.Now(), s.cfg.Daily.Location)
}
