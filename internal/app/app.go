// Package app assembles the report pipeline shared by the server and the
// worker.
package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"musky.app/forecast/common/llm"
	"musky.app/forecast/core/config"
	"musky.app/forecast/core/db"
	"musky.app/forecast/internal/consensus"
	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
	"musky.app/forecast/internal/scheduler"
	"musky.app/forecast/internal/source"
	"musky.app/forecast/internal/store"
)

// lockTTL outlives the longest flight so a crashed holder cannot block the
// next generation for more than one flight.
const lockTTL = 2 * time.Minute

// Deps are the connections the pipeline may use. DB is required for the
// postgres store and Redis for the redis store; otherwise both are optional.
// Without Redis generations are not locked across processes.
type Deps struct {
	DB    *db.DB
	Redis redis.UniversalClient
	LLM   llm.Client
}

type Pipeline struct {
	Store       store.ReportStore
	Coordinator *generation.Coordinator
	Scheduler   *scheduler.Scheduler
}

func NewPipeline(cfg config.Config, deps Deps) (*Pipeline, error) {
	reports, err := store.NewReportStore(cfg.StoreKind, store.Backends{DB: deps.DB, Redis: deps.Redis})
	if err != nil {
		return nil, fmt.Errorf("creating report store: %w", err)
	}

	policy, err := generation.ParseFlightPolicy(cfg.Generation.FlightPolicy)
	if err != nil {
		return nil, err
	}

	zone := cfg.ReferenceLocation()
	gather := source.GatherConfig{
		Deadline:    cfg.Generation.Deadline,
		MaxParallel: cfg.Generation.MaxParallel,
	}

	var opts []generation.Option
	if deps.Redis != nil {
		opts = append(opts, generation.WithLocker(generation.NewRedisLocker(deps.Redis, lockTTL, gather.Deadline)))
	}

	aggregator := consensus.NewAggregator(consensus.Config{
		MinSources:      cfg.Consensus.MinSources,
		ObservedBias:    cfg.Consensus.ObservedBias,
		FallbackEnabled: cfg.Generation.FallbackEnabled,
	})

	adapters, err := Adapters(cfg, deps.LLM)
	if err != nil {
		return nil, err
	}

	coord := generation.NewCoordinator(
		reports,
		adapters,
		aggregator,
		Builder(deps.LLM),
		generation.Config{
			Location: model.Location{
				Latitude:  cfg.Report.Latitude,
				Longitude: cfg.Report.Longitude,
				Name:      cfg.Report.LocationName,
				TimeZone:  zone.String(),
			},
			Zone:            zone,
			FreshnessWindow: cfg.Report.FreshnessWindow,
			Gather:          gather,
			Policy:          policy,
		},
		opts...,
	)

	daily, err := scheduler.ParseDailySchedule(cfg.Scheduler.DailyAt, zone)
	if err != nil {
		return nil, fmt.Errorf("SCHEDULE_DAILY_AT: %w", err)
	}
	sched := scheduler.New(coord, reports, nil, scheduler.Config{
		Daily:         daily,
		SweepInterval: cfg.Scheduler.SweepInterval,
		RetainDays:    cfg.Report.RetainDays,
		RunOnStart:    true,
	})

	return &Pipeline{
		Store:       reports,
		Coordinator: coord,
		Scheduler:   sched,
	}, nil
}

// Adapters returns the enabled sources in registration order: solunar,
// weather, the calendar file, then the LLM estimate.
func Adapters(cfg config.Config, llmClient llm.Client) ([]source.Adapter, error) {
	httpClient := &http.Client{Timeout: cfg.Sources.Timeout}

	var adapters []source.Adapter
	if s := cfg.Sources.Solunar; s.Enabled() {
		adapters = append(adapters, source.NewSolunarAdapter(s.BaseURL, s.Weight, s.RatePerMin, httpClient))
	}
	if w := cfg.Sources.Weather; w.Enabled() {
		adapters = append(adapters, source.NewWeatherAdapter(w.BaseURL, w.Weight, w.RatePerMin, httpClient))
	}
	if path := cfg.Sources.CalendarFile; path != "" {
		cal, err := source.LoadCalendarFile(path, cfg.Sources.CalendarWeight)
		if err != nil {
			return nil, fmt.Errorf("CALENDAR_SOURCE_FILE: %w", err)
		}
		adapters = append(adapters, cal)
	}
	if cfg.Sources.LLMEnabled && llmClient != nil && cfg.Sources.LLMWeight > 0 {
		adapters = append(adapters, source.NewLLMAdapter(llmClient, cfg.Sources.LLMWeight, cfg.Sources.LLMRatePerMin))
	}
	return adapters, nil
}

// Builder writes narrative reports when a model is configured and plain
// template reports otherwise.
func Builder(llmClient llm.Client) report.Builder {
	if llmClient != nil {
		return report.NewNarrativeBuilder(llmClient)
	}
	return report.NewTemplateBuilder()
}

// NewLLMClient returns nil when no model is configured.
func NewLLMClient(cfg config.LLMConfig) (llm.Client, error) {
	if !cfg.Enabled() {
		return nil, nil
	}
	return llm.New(llm.Config{
		APIKey:    cfg.APIKey,
		BaseURL:   cfg.BaseURL,
		Model:     cfg.Model,
		MaxTokens: cfg.MaxTokens,
	})
}
