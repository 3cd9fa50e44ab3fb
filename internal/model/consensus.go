package model

type Quality string

const (
	QualityExcellent Quality = "Excellent"
	QualityGood      Quality = "Good"
	QualityFair      Quality = "Fair"
)

// QualityFor maps the number of distinct agreeing sources to a label.
func QualityFor(agreementCount int) Quality {
	switch {
	case agreementCount >= 3:
		return QualityExcellent
	case agreementCount == 2:
		return QualityGood
	default:
		return QualityFair
	}
}

// ConsensusCluster is a group of same-kind windows merged into one interval.
// MergedStart and MergedEnd are minutes since midnight and may carry fractions.
type ConsensusCluster struct {
	Kind           WindowKind   `json:"kind"`
	Members        []TimeWindow `json:"members"`
	MergedStart    float64      `json:"merged_start"`
	MergedEnd      float64      `json:"merged_end"`
	AgreementCount int          `json:"agreement_count"`
	Quality        Quality      `json:"quality"`
}

func (c ConsensusCluster) StartClock() string {
	return FormatMinutes(c.MergedStart)
}

func (c ConsensusCluster) EndClock() string {
	return FormatMinutes(c.MergedEnd)
}

// ConsensusSchedule is the result of one aggregation run.
type ConsensusSchedule struct {
	Date             string             `json:"date"`
	Location         Location           `json:"location"`
	Entries          []ConsensusCluster `json:"entries"`
	MoonPhase        *string            `json:"moon_phase,omitempty"`
	DayRating        *int               `json:"day_rating,omitempty"`
	ConfidenceTier   Confidence         `json:"confidence_tier"`
	SourcesUsed      int                `json:"sources_used"`
	SourcesAttempted int                `json:"sources_attempted"`
	Errors           []SourceError      `json:"errors,omitempty"`
	Warnings         []SourceError      `json:"warnings,omitempty"`
	Conditions       *Conditions        `json:"conditions,omitempty"`
	Fallback         bool               `json:"fallback"`
}
