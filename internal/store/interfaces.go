package store

import (
	"context"
	"errors"
	"time"

	"musky.app/forecast/internal/model"
)

// ErrNotFound is returned when no artifact exists for the requested date
var ErrNotFound = errors.New("not found")

// ReportStore persists one ReportArtifact per date key.
//
// Put is an upsert: the stored revision is one greater than the previous
// revision for that date (1 for a new date), and the stored record is
// returned. Status and Error are response-only and never persisted.
type ReportStore interface {
	Get(ctx context.Context, dateKey string) (*model.ReportArtifact, error)
	Put(ctx context.Context, artifact *model.ReportArtifact) (*model.ReportArtifact, error)
	// Sweep deletes artifacts dated strictly before today minus retainDays
	// and returns how many were removed.
	Sweep(ctx context.Context, retainDays int, today time.Time) (int, error)
	// Latest returns the artifact with the greatest date key.
	Latest(ctx context.Context) (*model.ReportArtifact, error)
}

// SweepCutoff is the oldest date key that survives a sweep.
func SweepCutoff(today time.Time, retainDays int) string {
	if retainDays < 0 {
		retainDays = 0
	}
	day := time.Date(today.Year(), today.Month(), today.Day(), 0, 0, 0, 0, today.Location())
	return day.AddDate(0, 0, -retainDays).Format(model.DateKeyLayout)
}

// persisted strips response-only fields before an artifact is written.
func persisted(a *model.ReportArtifact) *model.ReportArtifact {
	cp := *a
	cp.Status = ""
	cp.Error = nil
	return &cp
}
