package report

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"musky.app/forecast/common/llm"
	"musky.app/forecast/internal/model"
)

// NarrativeBuilder asks a chat model to write the report prose around the
// consensus schedule. The schedule itself is always rendered from data so the
// model cannot change the predicted times.
type NarrativeBuilder struct {
	client llm.Client
}

func NewNarrativeBuilder(client llm.Client) *NarrativeBuilder {
	return &NarrativeBuilder{client: client}
}

type speciesOutlook struct {
	Species string `json:"species" jsonschema:"description=Common species name, e.g. Muskellunge or Walleye"`
	Outlook string `json:"outlook" jsonschema:"description=Two or three sentences on where and how to fish for it today"`
}

type narrative struct {
	Summary string           `json:"summary" jsonschema:"description=One paragraph overview of the day"`
	Species []speciesOutlook `json:"species"`
}

var narrativeSchema = llm.GenerateSchema[narrative]()

const narrativeSystemPrompt = `You write short, practical daily fishing reports for anglers.
You are given a consensus feeding schedule and weather in JSON. Do not invent feeding
times; refer to the periods given. Cover Muskellunge, Walleye, Smallmouth Bass and
Yellow Perch.`

func (b *NarrativeBuilder) Build(ctx context.Context, schedule *model.ConsensusSchedule) (Content, error) {
	if schedule == nil {
		return Content{}, fmt.Errorf("schedule is required")
	}

	input, err := json.Marshal(schedule)
	if err != nil {
		return Content{}, fmt.Errorf("encoding schedule: %w", err)
	}

	var out narrative
	resp, err := b.client.Chat(ctx, llm.Request{
		SystemPrompt: narrativeSystemPrompt,
		UserPrompt:   string(input),
		SchemaName:   "fishing_report",
		Schema:       narrativeSchema,
		Temperature:  llm.Temp(0.4),
	}, &out)
	if err != nil {
		return Content{}, fmt.Errorf("writing narrative: %w", err)
	}
	if strings.TrimSpace(out.Summary) == "" {
		return Content{}, fmt.Errorf("writing narrative: model returned an empty summary")
	}

	var sb strings.Builder
	sb.WriteString(renderSchedule(schedule))
	sb.WriteString("\n## Outlook\n\n")
	sb.WriteString(strings.TrimSpace(out.Summary))
	sb.WriteString("\n")
	for _, sp := range out.Species {
		if sp.Species == "" {
			continue
		}
		fmt.Fprintf(&sb, "\n### %s\n\n%s\n", strings.TrimSpace(sp.Species), strings.TrimSpace(sp.Outlook))
	}

	return Content{
		Text:      sb.String(),
		CostUnits: int64(resp.TotalTokens()),
	}, nil
}
