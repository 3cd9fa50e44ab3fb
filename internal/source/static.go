package source

import (
	"context"
	"time"

	"musky.app/forecast/internal/model"
)

// StaticAdapter returns the same windows for every request. It backs local
// development without network access and drives pipeline tests.
type StaticAdapter struct {
	BaseAdapter
	windows   []model.TimeWindow
	moonPhase string
}

// NewStaticAdapter stamps id and weight onto each window.
func NewStaticAdapter(id string, confidence model.Confidence, weight float64, windows []model.TimeWindow) *StaticAdapter {
	a := &StaticAdapter{BaseAdapter: NewBaseAdapter(id, confidence, weight, 0, nil)}
	for _, w := range windows {
		a.windows = append(a.windows, a.window(w.Kind, w.Start, w.End))
	}
	return a
}

// WithMoonPhase sets the moon phase reported with every result.
func (a *StaticAdapter) WithMoonPhase(phase string) *StaticAdapter {
	a.moonPhase = phase
	return a
}

func (a *StaticAdapter) Fetch(ctx context.Context, _ model.Location, _ time.Time) model.SourceResult {
	if err := ctx.Err(); err != nil {
		return a.fail(err)
	}
	res := a.ok()
	res.Windows = append([]model.TimeWindow(nil), a.windows...)
	if a.moonPhase != "" {
		phase := a.moonPhase
		res.MoonPhase = &phase
	}
	return res
}
