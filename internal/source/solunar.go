package source

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"musky.app/forecast/internal/model"
)

const SolunarSourceID = "solunar"

// SolunarAdapter reads major and minor feeding periods from a solunar.org
// style endpoint: GET {base}/solunar/{lat},{lon},{yyyymmdd},{utcOffsetHours}.
type SolunarAdapter struct {
	BaseAdapter
	baseURL string
}

func NewSolunarAdapter(baseURL string, weight float64, ratePerMin int, client *http.Client) *SolunarAdapter {
	return &SolunarAdapter{
		BaseAdapter: NewBaseAdapter(SolunarSourceID, model.ConfidenceHigh, weight, ratePerMin, client),
		baseURL:     strings.TrimRight(baseURL, "/"),
	}
}

type solunarResponse struct {
	Major1Start string `json:"major1Start"`
	Major1Stop  string `json:"major1Stop"`
	Major2Start string `json:"major2Start"`
	Major2Stop  string `json:"major2Stop"`
	Minor1Start string `json:"minor1Start"`
	Minor1Stop  string `json:"minor1Stop"`
	Minor2Start string `json:"minor2Start"`
	Minor2Stop  string `json:"minor2Stop"`
	MoonPhase   string `json:"moonPhase"`
	DayRating   *int   `json:"dayRating"`
}

func (a *SolunarAdapter) Fetch(ctx context.Context, loc model.Location, date time.Time) model.SourceResult {
	var body solunarResponse
	if err := a.getJSON(ctx, a.url(loc, date), &body); err != nil {
		return a.fail(err)
	}

	pairs := []struct {
		kind       model.WindowKind
		start, end string
	}{
		{model.WindowMajor, body.Major1Start, body.Major1Stop},
		{model.WindowMajor, body.Major2Start, body.Major2Stop},
		{model.WindowMinor, body.Minor1Start, body.Minor1Stop},
		{model.WindowMinor, body.Minor2Start, body.Minor2Stop},
	}

	res := a.ok()
	for _, p := range pairs {
		// Some days have only one major or minor period; the other is blank.
		if p.start == "" || p.end == "" {
			continue
		}
		start, err := model.ParseClock(p.start)
		if err != nil {
			return a.fail(kindError(model.SourceErrorDecode, "%s: %v", p.kind, err))
		}
		end, err := model.ParseClock(p.end)
		if err != nil {
			return a.fail(kindError(model.SourceErrorDecode, "%s: %v", p.kind, err))
		}
		res.Windows = append(res.Windows, a.window(p.kind, start, end))
	}
	if len(res.Windows) == 0 {
		return a.fail(kindError(model.SourceErrorDecode, "response contained no periods"))
	}

	if body.MoonPhase != "" {
		phase := body.MoonPhase
		res.MoonPhase = &phase
	}
	if body.DayRating != nil {
		rating := *body.DayRating
		res.DayRating = &rating
	}
	return res
}

func (a *SolunarAdapter) url(loc model.Location, date time.Time) string {
	return fmt.Sprintf("%s/solunar/%.4f,%.4f,%s,%s",
		a.baseURL, loc.Latitude, loc.Longitude, date.Format("20060102"), utcOffsetHours(loc, date))
}

// utcOffsetHours is the zone offset at local noon, which avoids landing on the
// skipped or repeated hour of a DST transition.
func utcOffsetHours(loc model.Location, date time.Time) string {
	zone, err := time.LoadLocation(loc.TimeZone)
	if err != nil {
		zone = time.UTC
	}
	noon := time.Date(date.Year(), date.Month(), date.Day(), 12, 0, 0, 0, zone)
	_, offset := noon.Zone()
	if offset%3600 == 0 {
		return fmt.Sprintf("%d", offset/3600)
	}
	return fmt.Sprintf("%g", float64(offset)/3600)
}
