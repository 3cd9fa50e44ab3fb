package consensus

import "musky.app/forecast/internal/model"

// ConfidenceTier maps the number of successful sources to a tier.
func ConfidenceTier(sourcesUsed int) model.Confidence {
	switch {
	case sourcesUsed >= 3:
		return model.ConfidenceHigh
	case sourcesUsed == 2:
		return model.ConfidenceMedium
	default:
		return model.ConfidenceLow
	}
}

// Scorer applies ConfidenceTier and degrades to low when fewer than MinSources
// succeeded.
type Scorer struct {
	MinSources int
}

func (s Scorer) Tier(sourcesUsed int) model.Confidence {
	if sourcesUsed < s.MinSources {
		return model.ConfidenceLow
	}
	return ConfidenceTier(sourcesUsed)
}
