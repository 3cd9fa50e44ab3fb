package scheduler

import (
	"fmt"
	"time"

	"musky.app/forecast/internal/model"
)

// DailySchedule is a wall-clock time of day in a named zone.
type DailySchedule struct {
	Hour     int
	Minute   int
	Location *time.Location
}

// ParseDailySchedule reads "HH:MM" in loc.
func ParseDailySchedule(hhmm string, loc *time.Location) (DailySchedule, error) {
	minutes, err := model.ParseClock(hhmm)
	if err != nil {
		return DailySchedule{}, err
	}
	if minutes >= model.MinutesPerDay {
		return DailySchedule{}, fmt.Errorf("daily time %q must be before 24:00", hhmm)
	}
	if loc == nil {
		loc = time.UTC
	}
	return DailySchedule{Hour: minutes / 60, Minute: minutes % 60, Location: loc}, nil
}

// Next returns the first run strictly after t. Calendar arithmetic happens in
// the schedule's zone, so the run stays at the same wall-clock time across
// DST changes. A time skipped by a spring-forward transition runs at the
// equivalent instant after the jump.
func (d DailySchedule) Next(t time.Time) time.Time {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	local := t.In(loc)
	next := d.on(local.Year(), local.Month(), local.Day(), loc)
	if !next.After(t) {
		next = d.on(local.Year(), local.Month(), local.Day()+1, loc)
	}
	return next
}

// on returns the run instant for one calendar day. When the wall-clock time
// does not exist that day it is read with the offset in force before the gap,
// which lands the same distance past the jump.
func (d DailySchedule) on(year int, month time.Month, day int, loc *time.Location) time.Time {
	at := time.Date(year, month, day, d.Hour, d.Minute, 0, 0, loc)
	if at.Hour() == d.Hour && at.Minute() == d.Minute {
		return at
	}
	_, before := at.Add(-12 * time.Hour).Zone()
	_, after := at.Add(12 * time.Hour).Zone()
	offset := min(before, after)
	wall := time.Date(year, month, day, d.Hour, d.Minute, 0, 0, time.UTC)
	return wall.Add(-time.Duration(offset) * time.Second).In(loc)
}

func (d DailySchedule) String() string {
	name := "UTC"
	if d.Location != nil {
		name = d.Location.String()
	}
	return fmt.Sprintf("%02d:%02d %s", d.Hour, d.Minute, name)
}
