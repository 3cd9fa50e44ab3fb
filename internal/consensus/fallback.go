package consensus

import "musky.app/forecast/internal/model"

// FallbackSourceID marks windows that come from the static schedule.
const FallbackSourceID = "fallback"

// FallbackEntries is the schedule served when every source failed: dawn and
// dusk major periods.
func FallbackEntries() []model.ConsensusCluster {
	return []model.ConsensusCluster{
		fallbackCluster(6*60, 8*60),
		fallbackCluster(18*60, 20*60),
	}
}

func fallbackCluster(start, end int) model.ConsensusCluster {
	return model.ConsensusCluster{
		Kind: model.WindowMajor,
		Members: []model.TimeWindow{{
			Start:    start,
			End:      end,
			Kind:     model.WindowMajor,
			SourceID: FallbackSourceID,
			Weight:   1,
		}},
		MergedStart:    float64(start),
		MergedEnd:      float64(end),
		AgreementCount: 0,
		Quality:        model.QualityFair,
	}
}
