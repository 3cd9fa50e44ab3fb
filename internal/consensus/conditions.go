package consensus

import "musky.app/forecast/internal/model"

// BlendConditions averages observed and forecast readings separately, then
// combines the two groups as bias*observed + (1-bias)*forecast. A field that
// only one group reports is taken from that group. Returns nil when no source
// reported conditions.
func BlendConditions(results []model.SourceResult, bias float64) *model.Conditions {
	if bias < 0 {
		bias = 0
	}
	if bias > 1 {
		bias = 1
	}

	var observed, forecast fieldSums
	reported := false
	for _, r := range results {
		if r.Conditions == nil {
			continue
		}
		reported = true
		if r.Conditions.Observed {
			observed.add(r.Conditions)
		} else {
			forecast.add(r.Conditions)
		}
	}
	if !reported {
		return nil
	}

	return &model.Conditions{
		TemperatureC:  blend(observed.temp, forecast.temp, bias),
		WindSpeedKmh:  blend(observed.wind, forecast.wind, bias),
		PressureHpa:   blend(observed.pressure, forecast.pressure, bias),
		CloudCoverPct: blend(observed.cloud, forecast.cloud, bias),
		Observed:      observed.count > 0,
	}
}

type mean struct {
	sum float64
	n   int
}

func (m *mean) add(v *float64) {
	if v == nil {
		return
	}
	m.sum += *v
	m.n++
}

func (m mean) value() (float64, bool) {
	if m.n == 0 {
		return 0, false
	}
	return m.sum / float64(m.n), true
}

type fieldSums struct {
	temp, wind, pressure, cloud mean
	count                       int
}

func (f *fieldSums) add(c *model.Conditions) {
	f.temp.add(c.TemperatureC)
	f.wind.add(c.WindSpeedKmh)
	f.pressure.add(c.PressureHpa)
	f.cloud.add(c.CloudCoverPct)
	f.count++
}

func blend(observed, forecast mean, bias float64) *float64 {
	o, hasObserved := observed.value()
	f, hasForecast := forecast.value()
	var v float64
	switch {
	case hasObserved && hasForecast:
		v = bias*o + (1-bias)*f
	case hasObserved:
		v = o
	case hasForecast:
		v = f
	default:
		return nil
	}
	return &v
}
