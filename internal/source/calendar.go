package source

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"musky.app/forecast/internal/model"
)

const CalendarSourceID = "calendar"

// CalendarAdapter serves bite times transcribed from a printed solunar table
// or almanac. Dates missing from the calendar fail as upstream errors.
type CalendarAdapter struct {
	BaseAdapter
	days map[string]calendarEntry
}

type calendarEntry struct {
	windows   []model.TimeWindow
	moonPhase string
}

// calendarFile is the on-disk shape:
//
//	id: almanac
//	confidence: medium
//	weight: 0.5
//	days:
//	  "2026-06-10":
//	    moon_phase: Waxing Gibbous
//	    major: [{start: "08:15", end: "10:15"}]
//	    minor: [{start: "14:00", end: "15:00"}]
type calendarFile struct {
	ID         string                 `yaml:"id"`
	Confidence model.Confidence       `yaml:"confidence"`
	Weight     float64                `yaml:"weight"`
	Days       map[string]calendarDay `yaml:"days"`
}

type calendarDay struct {
	MoonPhase string           `yaml:"moon_phase"`
	Major     []calendarPeriod `yaml:"major"`
	Minor     []calendarPeriod `yaml:"minor"`
}

type calendarPeriod struct {
	Start string `yaml:"start"`
	End   string `yaml:"end"`
}

// LoadCalendarFile reads a YAML calendar from disk. weight applies when the
// file does not set its own.
func LoadCalendarFile(path string, weight float64) (*CalendarAdapter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("calendar: read %s: %w", path, err)
	}
	return ParseCalendarYAML(data, weight)
}

// ParseCalendarYAML validates every period up front so a bad calendar fails
// at startup instead of during a generation.
func ParseCalendarYAML(data []byte, weight float64) (*CalendarAdapter, error) {
	var file calendarFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("calendar: decode: %w", err)
	}

	id := file.ID
	if id == "" {
		id = CalendarSourceID
	}
	confidence := file.Confidence
	if confidence == "" {
		confidence = model.ConfidenceMedium
	}
	if confidence.Rank() == 0 {
		return nil, fmt.Errorf("calendar: unknown confidence %q", confidence)
	}
	if file.Weight != 0 {
		weight = file.Weight
	}
	if weight <= 0 || weight > 1 {
		return nil, fmt.Errorf("calendar: weight %v must be within (0,1]", weight)
	}
	if len(file.Days) == 0 {
		return nil, fmt.Errorf("calendar: no days")
	}

	a := &CalendarAdapter{
		BaseAdapter: NewBaseAdapter(id, confidence, weight, 0, nil),
		days:        make(map[string]calendarEntry, len(file.Days)),
	}
	for key, day := range file.Days {
		if _, err := time.Parse(model.DateKeyLayout, key); err != nil {
			return nil, fmt.Errorf("calendar: bad date %q: %w", key, err)
		}
		entry := calendarEntry{moonPhase: day.MoonPhase}
		for _, group := range []struct {
			kind    model.WindowKind
			periods []calendarPeriod
		}{
			{model.WindowMajor, day.Major},
			{model.WindowMinor, day.Minor},
		} {
			for _, p := range group.periods {
				w, err := a.parsePeriod(group.kind, p)
				if err != nil {
					return nil, fmt.Errorf("calendar: %s: %w", key, err)
				}
				entry.windows = append(entry.windows, w)
			}
		}
		a.days[key] = entry
	}
	return a, nil
}

func (a *CalendarAdapter) parsePeriod(kind model.WindowKind, p calendarPeriod) (model.TimeWindow, error) {
	start, err := model.ParseClock(p.Start)
	if err != nil {
		return model.TimeWindow{}, err
	}
	end, err := model.ParseClock(p.End)
	if err != nil {
		return model.TimeWindow{}, err
	}
	if end <= start {
		return model.TimeWindow{}, fmt.Errorf("%s period %s-%s ends before it starts", kind, p.Start, p.End)
	}
	return a.window(kind, start, end), nil
}

// Days reports how many dates the calendar covers.
func (a *CalendarAdapter) Days() int {
	return len(a.days)
}

func (a *CalendarAdapter) Fetch(ctx context.Context, _ model.Location, date time.Time) model.SourceResult {
	if err := ctx.Err(); err != nil {
		return a.fail(err)
	}
	key := date.Format(model.DateKeyLayout)
	entry, ok := a.days[key]
	if !ok {
		return a.fail(kindError(model.SourceErrorUpstream, "no calendar entry for %s", key))
	}
	res := a.ok()
	res.Windows = append([]model.TimeWindow(nil), entry.windows...)
	if entry.moonPhase != "" {
		phase := entry.moonPhase
		res.MoonPhase = &phase
	}
	return res
}
