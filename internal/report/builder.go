// Package report turns a consensus schedule into the text stored in a
// ReportArtifact.
package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"musky.app/forecast/internal/model"
)

// Content is the output of a Builder. CostUnits is what producing the text
// cost upstream (LLM tokens); zero for templated content.
type Content struct {
	Text      string
	CostUnits int64
}

type Builder interface {
	Build(ctx context.Context, schedule *model.ConsensusSchedule) (Content, error)
}

// TemplateBuilder renders a schedule as markdown without any external calls.
type TemplateBuilder struct{}

func NewTemplateBuilder() *TemplateBuilder {
	return &TemplateBuilder{}
}

func (b *TemplateBuilder) Build(_ context.Context, schedule *model.ConsensusSchedule) (Content, error) {
	if schedule == nil {
		return Content{}, fmt.Errorf("schedule is required")
	}
	return Content{Text: renderSchedule(schedule)}, nil
}

func renderSchedule(s *model.ConsensusSchedule) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# %s fishing report for %s\n\n", locationName(s.Location), longDate(s.Date))
	sb.WriteString(headline(s))
	sb.WriteString("\n\n")

	sb.WriteString("## Feeding periods\n\n")
	if s.Fallback {
		sb.WriteString("No source responded in time. These are the default dawn and dusk periods.\n\n")
	}
	for _, e := range s.Entries {
		fmt.Fprintf(&sb, "- %s %s-%s (%s, %s)\n",
			kindLabel(e.Kind), e.StartClock(), e.EndClock(), e.Quality, sourceCount(e.AgreementCount))
	}
	if len(s.Entries) == 0 {
		sb.WriteString("- No feeding periods predicted.\n")
	}

	if c := s.Conditions; c != nil {
		sb.WriteString("\n## Conditions\n\n")
		writeReading(&sb, "Air temperature", c.TemperatureC, "%.1f °C")
		writeReading(&sb, "Wind", c.WindSpeedKmh, "%.0f km/h")
		writeReading(&sb, "Pressure", c.PressureHpa, "%.0f hPa")
		writeReading(&sb, "Cloud cover", c.CloudCoverPct, "%.0f%%")
	}

	if len(s.Errors) > 0 {
		sb.WriteString("\n## Source notes\n\n")
		for _, e := range s.Errors {
			fmt.Fprintf(&sb, "- %s: %s\n", e.SourceID, e.Kind)
		}
	}

	return sb.String()
}

func headline(s *model.ConsensusSchedule) string {
	parts := []string{
		fmt.Sprintf("Confidence: %s (%d of %d sources)", s.ConfidenceTier, s.SourcesUsed, s.SourcesAttempted),
	}
	if s.MoonPhase != nil {
		parts = append(parts, "Moon: "+*s.MoonPhase)
	}
	if s.DayRating != nil {
		parts = append(parts, fmt.Sprintf("Day rating: %d/5", *s.DayRating))
	}
	return strings.Join(parts, ". ") + "."
}

func writeReading(sb *strings.Builder, label string, v *float64, format string) {
	if v == nil {
		return
	}
	fmt.Fprintf(sb, "- %s: "+format+"\n", label, *v)
}

func kindLabel(k model.WindowKind) string {
	if k == model.WindowMajor {
		return "Major"
	}
	return "Minor"
}

func sourceCount(n int) string {
	if n == 1 {
		return "1 source"
	}
	return fmt.Sprintf("%d sources", n)
}

func locationName(loc model.Location) string {
	if loc.Name != "" {
		return loc.Name
	}
	return fmt.Sprintf("%.3f, %.3f", loc.Latitude, loc.Longitude)
}

func longDate(dateKey string) string {
	d, err := time.Parse(model.DateKeyLayout, dateKey)
	if err != nil {
		return dateKey
	}
	return d.Format("Monday, January 2, 2006")
}
