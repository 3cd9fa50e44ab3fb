package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"musky.app/forecast/common/llm"
	"musky.app/forecast/common/logger"
	"musky.app/forecast/internal/model"
)

const LLMSourceID = "llm"

// LLMAdapter asks a chat model for a structured solunar estimate. It is the
// least trusted source and only ever contributes at low confidence.
type LLMAdapter struct {
	BaseAdapter
	client llm.Client
}

func NewLLMAdapter(client llm.Client, weight float64, ratePerMin int) *LLMAdapter {
	return &LLMAdapter{
		BaseAdapter: NewBaseAdapter(LLMSourceID, model.ConfidenceLow, weight, ratePerMin, nil),
		client:      client,
	}
}

type llmWindow struct {
	Start string `json:"start" jsonschema:"description=Local start time as HH:MM (24h)"`
	End   string `json:"end" jsonschema:"description=Local end time as HH:MM (24h)"`
}

type llmEstimate struct {
	MajorPeriods []llmWindow `json:"major_periods" jsonschema:"description=Major feeding periods (moon overhead and underfoot)"`
	MinorPeriods []llmWindow `json:"minor_periods" jsonschema:"description=Minor feeding periods (moonrise and moonset)"`
	MoonPhase    string      `json:"moon_phase"`
	DayRating    int         `json:"day_rating" jsonschema:"minimum=0,maximum=5"`
}

var llmEstimateSchema = llm.GenerateSchema[llmEstimate]()

const llmSystemPrompt = `You estimate solunar fishing periods. Given a location and a date, return the
major and minor feeding periods in the location's local time, the moon phase name,
and a day rating from 0 (poor) to 5 (best). Use 24h HH:MM clock times.`

func (a *LLMAdapter) Fetch(ctx context.Context, loc model.Location, date time.Time) model.SourceResult {
	if err := a.limiter.Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return a.fail(ctx.Err())
		}
		return a.fail(kindError(model.SourceErrorRateLimited, "rate limiter: %v", err))
	}

	var est llmEstimate
	_, err := a.client.Chat(ctx, llm.Request{
		SystemPrompt: llmSystemPrompt,
		UserPrompt:   a.prompt(loc, date),
		SchemaName:   "solunar_estimate",
		Schema:       llmEstimateSchema,
		MaxTokens:    400,
		Temperature:  llm.Temp(0),
	}, &est)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return a.fail(err)
		}
		kind := model.SourceErrorUpstream
		if llm.IsRetryable(ctx, err) {
			kind = model.SourceErrorNetwork
		}
		return a.fail(kindError(kind, "%s", logger.Truncate(err.Error(), 300)))
	}

	res := a.ok()
	for _, group := range []struct {
		kind    model.WindowKind
		windows []llmWindow
	}{
		{model.WindowMajor, est.MajorPeriods},
		{model.WindowMinor, est.MinorPeriods},
	} {
		for _, w := range group.windows {
			start, err := model.ParseClock(w.Start)
			if err != nil {
				return a.fail(kindError(model.SourceErrorDecode, "%s: %v", group.kind, err))
			}
			end, err := model.ParseClock(w.End)
			if err != nil {
				return a.fail(kindError(model.SourceErrorDecode, "%s: %v", group.kind, err))
			}
			res.Windows = append(res.Windows, a.window(group.kind, start, end))
		}
	}
	if len(res.Windows) == 0 {
		return a.fail(kindError(model.SourceErrorDecode, "model returned no periods"))
	}

	if est.MoonPhase != "" {
		res.MoonPhase = &est.MoonPhase
	}
	if est.DayRating >= 0 && est.DayRating <= 5 {
		res.DayRating = &est.DayRating
	}
	return res
}

func (a *LLMAdapter) prompt(loc model.Location, date time.Time) string {
	name := loc.Name
	if name == "" {
		name = "unnamed location"
	}
	return fmt.Sprintf("Location: %s (lat %.4f, lon %.4f), time zone %s.\nDate: %s.",
		name, loc.Latitude, loc.Longitude, loc.TimeZone, date.Format(model.DateKeyLayout))
}
