package model

import (
	"fmt"
	"math"
)

// MinutesPerDay bounds window start times.
const MinutesPerDay = 1440

type WindowKind string

const (
	WindowMajor WindowKind = "major"
	WindowMinor WindowKind = "minor"
)

func (k WindowKind) Valid() bool {
	return k == WindowMajor || k == WindowMinor
}

// TimeWindow is one predicted feeding interval in minutes since local midnight.
// After Normalize, Start < End always holds; a window that crosses midnight has
// End > MinutesPerDay.
type TimeWindow struct {
	Start    int        `json:"start"`
	End      int        `json:"end"`
	Kind     WindowKind `json:"kind"`
	SourceID string     `json:"source_id"`
	Weight   float64    `json:"weight"`
}

// Normalize validates the window and unwraps an End that falls past midnight.
// Start must lie inside the day; providers that report a start past midnight
// are rejected rather than clustered against the wrong day.
func (w TimeWindow) Normalize() (TimeWindow, error) {
	if !w.Kind.Valid() {
		return w, fmt.Errorf("unknown window kind %q", w.Kind)
	}
	if w.Start < 0 || w.Start >= MinutesPerDay {
		return w, fmt.Errorf("start %d outside [0,%d)", w.Start, MinutesPerDay)
	}
	if w.End < 0 || w.End > MinutesPerDay {
		return w, fmt.Errorf("end %d outside [0,%d]", w.End, MinutesPerDay)
	}
	if w.Start == w.End {
		return w, fmt.Errorf("empty window at %s", FormatMinutes(float64(w.Start)))
	}
	if w.Weight <= 0 || w.Weight > 1 || math.IsNaN(w.Weight) {
		return w, fmt.Errorf("weight %v outside (0,1]", w.Weight)
	}
	if w.End < w.Start {
		w.End += MinutesPerDay
	}
	return w, nil
}

// ParseClock parses "HH:MM" (24h) into minutes since midnight. "24:00" is
// accepted as 1440 so a window may end exactly at midnight.
func ParseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("parse clock %q: %w", s, err)
	}
	if h < 0 || m < 0 || m > 59 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("parse clock %q: out of range", s)
	}
	return h*60 + m, nil
}

// FormatMinutes renders minutes since midnight as "HH:MM", wrapping values past
// midnight back into the day and rounding to the nearest minute.
func FormatMinutes(minutes float64) string {
	m := int(math.Round(minutes)) % MinutesPerDay
	if m < 0 {
		m += MinutesPerDay
	}
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
