package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
	"musky.app/forecast/internal/store"
)

// MaxDaysAhead bounds how far into the future a report may be requested.
const MaxDaysAhead = 7

var (
	ErrDateOutOfRange  = errors.New("date outside the servable range")
	ErrInvalidLocation = errors.New("invalid location")
)

// Generator is the slice of generation.Coordinator the report service reads
// through.
type Generator interface {
	Zone() *time.Location
	Today() string
	Now() time.Time
	GetOrGenerate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	Preview(ctx context.Context, loc model.Location, dateKey string) (*model.ConsensusSchedule, error)
}

type ReportSections struct {
	Artifact *model.ReportArtifact
	Sections []report.Section
}

type PreviewParams struct {
	Latitude  float64
	Longitude float64
	Name      string
	TimeZone  string
	DateKey   string
}

type ReportService interface {
	Today(ctx context.Context) (*model.ReportArtifact, error)
	ForDate(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	Sections(ctx context.Context, dateKey string) (*ReportSections, error)
	Preview(ctx context.Context, params PreviewParams) (*model.ConsensusSchedule, error)
}

type reportService struct {
	gen        Generator
	retainDays int
}

func NewReportService(gen Generator, retainDays int) ReportService {
	return &reportService{gen: gen, retainDays: retainDays}
}

func (s *reportService) Today(ctx context.Context) (*model.ReportArtifact, error) {
	return s.gen.GetOrGenerate(ctx, s.gen.Today())
}

func (s *reportService) ForDate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if err := s.checkRange(dateKey); err != nil {
		return nil, err
	}
	return s.gen.GetOrGenerate(ctx, dateKey)
}

func (s *reportService) Sections(ctx context.Context, dateKey string) (*ReportSections, error) {
	a, err := s.ForDate(ctx, dateKey)
	if err != nil {
		return nil, err
	}
	return &ReportSections{Artifact: a, Sections: report.Sections(a.Content)}, nil
}

func (s *reportService) Preview(ctx context.Context, params PreviewParams) (*model.ConsensusSchedule, error) {
	loc := model.Location{
		Latitude:  params.Latitude,
		Longitude: params.Longitude,
		Name:      params.Name,
		TimeZone:  params.TimeZone,
	}
	if err := loc.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidLocation, err)
	}

	dateKey := params.DateKey
	if dateKey == "" {
		dateKey = s.gen.Today()
	} else if err := s.checkRange(dateKey); err != nil {
		return nil, err
	}
	return s.gen.Preview(ctx, loc, dateKey)
}

// checkRange accepts dates from the oldest retained day through MaxDaysAhead
// days after today. Malformed keys pass through so the generator can reject
// them with its own error.
func (s *reportService) checkRange(dateKey string) error {
	return checkDateRange(s.gen, s.retainDays, dateKey)
}

func checkDateRange(gen Generator, retainDays int, dateKey string) error {
	zone := gen.Zone()
	if _, err := model.ParseDateKey(dateKey, zone); err != nil {
		return nil
	}
	today, err := model.ParseDateKey(gen.Today(), zone)
	if err != nil {
		return fmt.Errorf("parsing today: %w", err)
	}
	oldest := store.SweepCutoff(today, retainDays)
	newest := today.AddDate(0, 0, MaxDaysAhead).Format(model.DateKeyLayout)
	if dateKey < oldest || dateKey > newest {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrDateOutOfRange, dateKey, oldest, newest)
	}
	return nil
}
