package handler_test

import (
	"context"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/service"
)

type mockReportService struct {
	todayFn    func(ctx context.Context) (*model.ReportArtifact, error)
	forDateFn  func(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	sectionsFn func(ctx context.Context, dateKey string) (*service.ReportSections, error)
	previewFn  func(ctx context.Context, params service.PreviewParams) (*model.ConsensusSchedule, error)
}

func (m *mockReportService) Today(ctx context.Context) (*model.ReportArtifact, error) {
	if m.todayFn != nil {
		return m.todayFn(ctx)
	}
	return nil, nil
}

func (m *mockReportService) ForDate(ctx context.Context, dateKey string) (*model.ReportArtifact, error) {
	if m.forDateFn != nil {
		return m.forDateFn(ctx, dateKey)
	}
	return nil, nil
}

func (m *mockReportService) Sections(ctx context.Context, dateKey string) (*service.ReportSections, error) {
	if m.sectionsFn != nil {
		return m.sectionsFn(ctx, dateKey)
	}
	return nil, nil
}

func (m *mockReportService) Preview(ctx context.Context, params service.PreviewParams) (*model.ConsensusSchedule, error) {
	if m.previewFn != nil {
		return m.previewFn(ctx, params)
	}
	return nil, nil
}

type mockAdminService struct {
	regenerateFn func(ctx context.Context, params service.RegenerateParams) (*service.RegenerateResult, error)
	sweepFn      func(ctx context.Context, async bool, traceID *string) (*service.SweepResult, error)
	statusFn     func(ctx context.Context) (*service.AdminStatus, error)
}

func (m *mockAdminService) Regenerate(ctx context.Context, params service.RegenerateParams) (*service.RegenerateResult, error) {
	if m.regenerateFn != nil {
		return m.regenerateFn(ctx, params)
	}
	return nil, nil
}

func (m *mockAdminService) Sweep(ctx context.Context, async bool, traceID *string) (*service.SweepResult, error) {
	if m.sweepFn != nil {
		return m.sweepFn(ctx, async, traceID)
	}
	return nil, nil
}

func (m *mockAdminService) Status(ctx context.Context) (*service.AdminStatus, error) {
	if m.statusFn != nil {
		return m.statusFn(ctx)
	}
	return nil, nil
}
