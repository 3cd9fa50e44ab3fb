package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"musky.app/forecast/internal/model"
)

const (
	WeatherSourceID = "open-meteo"

	// twilightHalfWidth is how far a minor period extends either side of
	// sunrise and sunset.
	twilightHalfWidth = 60
)

// WeatherAdapter derives minor periods around sunrise and sunset from an
// Open-Meteo style forecast API and reports current conditions.
type WeatherAdapter struct {
	BaseAdapter
	baseURL string
	now     func() time.Time
}

func NewWeatherAdapter(baseURL string, weight float64, ratePerMin int, client *http.Client) *WeatherAdapter {
	return &WeatherAdapter{
		BaseAdapter: NewBaseAdapter(WeatherSourceID, model.ConfidenceMedium, weight, ratePerMin, client),
		baseURL:     strings.TrimRight(baseURL, "/"),
		now:         time.Now,
	}
}

type weatherResponse struct {
	Daily struct {
		Time    []string `json:"time"`
		Sunrise []string `json:"sunrise"`
		Sunset  []string `json:"sunset"`
	} `json:"daily"`
	Current *struct {
		Temperature float64 `json:"temperature_2m"`
		WindSpeed   float64 `json:"wind_speed_10m"`
		Pressure    float64 `json:"surface_pressure"`
		CloudCover  float64 `json:"cloud_cover"`
	} `json:"current"`
}

func (a *WeatherAdapter) Fetch(ctx context.Context, loc model.Location, date time.Time) model.SourceResult {
	var body weatherResponse
	if err := a.getJSON(ctx, a.url(loc, date), &body); err != nil {
		return a.fail(err)
	}
	if len(body.Daily.Sunrise) == 0 || len(body.Daily.Sunset) == 0 {
		return a.fail(kindError(model.SourceErrorDecode, "response contained no daily sun times"))
	}

	sunrise, err := localMinutes(body.Daily.Sunrise[0])
	if err != nil {
		return a.fail(kindError(model.SourceErrorDecode, "sunrise: %v", err))
	}
	sunset, err := localMinutes(body.Daily.Sunset[0])
	if err != nil {
		return a.fail(kindError(model.SourceErrorDecode, "sunset: %v", err))
	}

	res := a.ok()
	res.Windows = []model.TimeWindow{
		a.twilight(sunrise),
		a.twilight(sunset),
	}

	if body.Current != nil {
		c := body.Current
		res.Conditions = &model.Conditions{
			TemperatureC:  &c.Temperature,
			WindSpeedKmh:  &c.WindSpeed,
			PressureHpa:   &c.Pressure,
			CloudCoverPct: &c.CloudCover,
			Observed:      a.isToday(loc, date),
		}
	}
	return res
}

// twilight centers a minor period on an event, clamping the start to midnight
// and letting the end wrap into the next day.
func (a *WeatherAdapter) twilight(event int) model.TimeWindow {
	start := max(event-twilightHalfWidth, 0)
	end := event + twilightHalfWidth
	if end > model.MinutesPerDay {
		end -= model.MinutesPerDay
	}
	return a.window(model.WindowMinor, start, end)
}

func (a *WeatherAdapter) isToday(loc model.Location, date time.Time) bool {
	zone, err := time.LoadLocation(loc.TimeZone)
	if err != nil {
		zone = time.UTC
	}
	return model.DateKeyFor(a.now(), zone) == date.Format(model.DateKeyLayout)
}

func (a *WeatherAdapter) url(loc model.Location, date time.Time) string {
	day := date.Format(model.DateKeyLayout)
	q := url.Values{}
	q.Set("latitude", fmt.Sprintf("%.4f", loc.Latitude))
	q.Set("longitude", fmt.Sprintf("%.4f", loc.Longitude))
	q.Set("daily", "sunrise,sunset")
	q.Set("current", "temperature_2m,wind_speed_10m,surface_pressure,cloud_cover")
	q.Set("timezone", loc.TimeZone)
	q.Set("start_date", day)
	q.Set("end_date", day)
	return a.baseURL + "/v1/forecast?" + q.Encode()
}

// localMinutes reads the clock part of an ISO local timestamp such as
// "2026-06-10T05:56".
func localMinutes(ts string) (int, error) {
	t, err := time.Parse("2006-01-02T15:04", ts)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}
