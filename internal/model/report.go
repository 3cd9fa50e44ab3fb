package model

import "time"

// DateKeyLayout is the format of ReportArtifact.DateKey.
const DateKeyLayout = "2006-01-02"

// DefaultFreshnessWindow is how long a generated artifact is served without
// regeneration.
const DefaultFreshnessWindow = 24 * time.Hour

type ReportStatus string

const (
	ReportFresh      ReportStatus = "fresh"
	ReportStale      ReportStatus = "stale"
	ReportGenerating ReportStatus = "generating"
)

// ReportArtifact is the persisted, user-facing result for one calendar date.
// Status is derived from GeneratedAt on read and never persisted.
type ReportArtifact struct {
	DateKey              string             `json:"date_key"`
	Content              string             `json:"content"`
	Status               ReportStatus       `json:"status"`
	GeneratedAt          time.Time          `json:"generated_at"`
	GenerationDurationMs int64              `json:"generation_duration_ms"`
	CostUnits            int64              `json:"cost_units"`
	Revision             int64              `json:"revision"`
	RunID                int64              `json:"run_id,string"`
	Schedule             *ConsensusSchedule `json:"schedule,omitempty"`
	Error                *string            `json:"error,omitempty"`
}

// StatusAt reports fresh while the artifact's age is within window.
func (a *ReportArtifact) StatusAt(now time.Time, window time.Duration) ReportStatus {
	if window <= 0 {
		window = DefaultFreshnessWindow
	}
	if now.Sub(a.GeneratedAt) <= window {
		return ReportFresh
	}
	return ReportStale
}

// WithStatus returns a copy carrying the given status.
func (a *ReportArtifact) WithStatus(status ReportStatus) *ReportArtifact {
	cp := *a
	cp.Status = status
	return &cp
}

// DateKeyFor renders t as a date key in loc.
func DateKeyFor(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(DateKeyLayout)
}

// ParseDateKey parses a date key as midnight in loc.
func ParseDateKey(key string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateKeyLayout, key, loc)
}

// ArtifactSummary is the compact view used by status endpoints.
type ArtifactSummary struct {
	DateKey        string       `json:"date_key"`
	Status         ReportStatus `json:"status"`
	GeneratedAt    time.Time    `json:"generated_at"`
	Revision       int64        `json:"revision"`
	ConfidenceTier Confidence   `json:"confidence_tier,omitempty"`
	Entries        int          `json:"entries"`
}

func (a *ReportArtifact) Summary() ArtifactSummary {
	s := ArtifactSummary{
		DateKey:     a.DateKey,
		Status:      a.Status,
		GeneratedAt: a.GeneratedAt,
		Revision:    a.Revision,
	}
	if a.Schedule != nil {
		s.ConfidenceTier = a.Schedule.ConfidenceTier
		s.Entries = len(a.Schedule.Entries)
	}
	return s
}
