package model

import "time"

type Confidence string

const (
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence tiers; unknown values rank below low.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMedium:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

type SourceErrorKind string

const (
	SourceErrorTimeout     SourceErrorKind = "timeout"
	SourceErrorNetwork     SourceErrorKind = "network"
	SourceErrorUpstream    SourceErrorKind = "upstream"
	SourceErrorDecode      SourceErrorKind = "decode"
	SourceErrorRateLimited SourceErrorKind = "rate_limited"
	SourceErrorPanic       SourceErrorKind = "panic"
	SourceErrorInvalid     SourceErrorKind = "invalid_window"
)

// SourceError is a per-source failure. It never aborts aggregation.
type SourceError struct {
	SourceID string          `json:"source_id"`
	Kind     SourceErrorKind `json:"kind"`
	Message  string          `json:"message"`
}

func (e *SourceError) Error() string {
	return e.SourceID + ": " + e.Message
}

// Conditions is a weather reading supplied by a source. Observed readings come
// from current measurements; the rest are forecasts.
type Conditions struct {
	TemperatureC  *float64 `json:"temperature_c,omitempty"`
	WindSpeedKmh  *float64 `json:"wind_speed_kmh,omitempty"`
	PressureHpa   *float64 `json:"pressure_hpa,omitempty"`
	CloudCoverPct *float64 `json:"cloud_cover_pct,omitempty"`
	Observed      bool     `json:"observed"`
}

// SourceResult is the normalized output of one adapter invocation.
type SourceResult struct {
	SourceID   string        `json:"source_id"`
	Confidence Confidence    `json:"confidence"`
	Windows    []TimeWindow  `json:"windows,omitempty"`
	MoonPhase  *string       `json:"moon_phase,omitempty"`
	DayRating  *int          `json:"day_rating,omitempty"`
	Conditions *Conditions   `json:"conditions,omitempty"`
	Error      *SourceError  `json:"error,omitempty"`
	Duration   time.Duration `json:"duration_ns"`
}

func (r SourceResult) Succeeded() bool {
	return r.Error == nil
}

// Failed builds a result that carries only an error.
func Failed(sourceID string, confidence Confidence, kind SourceErrorKind, msg string) SourceResult {
	return SourceResult{
		SourceID:   sourceID,
		Confidence: confidence,
		Error: &SourceError{
			SourceID: sourceID,
			Kind:     kind,
			Message:  msg,
		},
	}
}
