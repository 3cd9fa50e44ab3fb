// Package consensus reconciles time-window predictions from several sources
// into one ordered schedule.
package consensus

import (
	"sort"

	"musky.app/forecast/internal/model"
)

// ClusterThresholdMinutes is the maximum distance between a window's start and
// a cluster's mean start for the window to join that cluster.
const ClusterThresholdMinutes = 120

type Config struct {
	// MinSources below which the schedule is reported as low confidence.
	MinSources int
	// ObservedBias is the share given to observed weather over forecasts when
	// both are available. 0.5 weighs them equally.
	ObservedBias float64
	// FallbackEnabled substitutes the static schedule when no source succeeded.
	FallbackEnabled bool
}

func DefaultConfig() Config {
	return Config{MinSources: 1, ObservedBias: 0.5, FallbackEnabled: true}
}

// Aggregator is safe for concurrent use; it holds configuration only.
type Aggregator struct {
	cfg    Config
	scorer Scorer
}

func NewAggregator(cfg Config) *Aggregator {
	return &Aggregator{cfg: cfg, scorer: Scorer{MinSources: cfg.MinSources}}
}

// Aggregate builds the schedule for one date and location. Results must be in
// adapter registration order; the output is a pure function of that order.
// ok is false only when nothing succeeded and the fallback is disabled.
func (a *Aggregator) Aggregate(date string, loc model.Location, results []model.SourceResult) (schedule model.ConsensusSchedule, ok bool) {
	schedule = model.ConsensusSchedule{
		Date:             date,
		Location:         loc,
		SourcesAttempted: len(results),
	}

	successful := make([]model.SourceResult, 0, len(results))
	for _, r := range results {
		if r.Error != nil {
			schedule.Errors = append(schedule.Errors, *r.Error)
			continue
		}
		successful = append(successful, r)
	}
	schedule.SourcesUsed = len(successful)

	if len(successful) == 0 {
		if !a.cfg.FallbackEnabled {
			schedule.Entries = []model.ConsensusCluster{}
			schedule.ConfidenceTier = model.ConfidenceLow
			return schedule, false
		}
		schedule.Entries = FallbackEntries()
		schedule.ConfidenceTier = model.ConfidenceLow
		schedule.Fallback = true
		return schedule, true
	}

	major, minor, warnings := partition(successful)
	schedule.Warnings = warnings

	clusters := append(Cluster(major), Cluster(minor)...)
	sort.SliceStable(clusters, func(i, j int) bool {
		return clusters[i].MergedStart < clusters[j].MergedStart
	})
	schedule.Entries = clusters

	schedule.MoonPhase, schedule.DayRating = pickEphemeris(successful)
	schedule.Conditions = BlendConditions(successful, a.cfg.ObservedBias)
	schedule.ConfidenceTier = a.scorer.Tier(schedule.SourcesUsed)

	return schedule, true
}

// partition flattens windows in source order then window order, normalizing
// each one and splitting by kind. Invalid windows become warnings.
func partition(results []model.SourceResult) (major, minor []model.TimeWindow, warnings []model.SourceError) {
	for _, r := range results {
		for _, w := range r.Windows {
			if w.SourceID == "" {
				w.SourceID = r.SourceID
			}
			n, err := w.Normalize()
			if err != nil {
				warnings = append(warnings, model.SourceError{
					SourceID: r.SourceID,
					Kind:     model.SourceErrorInvalid,
					Message:  err.Error(),
				})
				continue
			}
			if n.Kind == model.WindowMajor {
				major = append(major, n)
			} else {
				minor = append(minor, n)
			}
		}
	}
	return major, minor, warnings
}

type openCluster struct {
	members  []model.TimeWindow
	startSum int
}

func (c *openCluster) meanStart() float64 {
	return float64(c.startSum) / float64(len(c.members))
}

// Cluster groups same-kind windows greedily in input order. Each window joins
// the earliest-created cluster whose current mean start is within
// ClusterThresholdMinutes, otherwise it opens a new cluster. Assignments are
// final and clusters are never merged with each other.
func Cluster(windows []model.TimeWindow) []model.ConsensusCluster {
	var open []*openCluster
	for _, w := range windows {
		var target *openCluster
		for _, c := range open {
			diff := float64(w.Start) - c.meanStart()
			if diff < 0 {
				diff = -diff
			}
			if diff <= ClusterThresholdMinutes {
				target = c
				break
			}
		}
		if target == nil {
			target = &openCluster{}
			open = append(open, target)
		}
		target.members = append(target.members, w)
		target.startSum += w.Start
	}

	out := make([]model.ConsensusCluster, 0, len(open))
	for _, c := range open {
		out = append(out, merge(c.members))
	}
	return out
}

func merge(members []model.TimeWindow) model.ConsensusCluster {
	c := model.ConsensusCluster{
		Kind:    members[0].Kind,
		Members: members,
	}

	if len(members) == 1 {
		c.MergedStart = float64(members[0].Start)
		c.MergedEnd = float64(members[0].End)
	} else {
		var startSum, endSum, weightSum float64
		for _, m := range members {
			startSum += float64(m.Start) * m.Weight
			endSum += float64(m.End) * m.Weight
			weightSum += m.Weight
		}
		c.MergedStart = startSum / weightSum
		c.MergedEnd = endSum / weightSum
	}

	sources := make(map[string]struct{}, len(members))
	for _, m := range members {
		sources[m.SourceID] = struct{}{}
	}
	c.AgreementCount = len(sources)
	c.Quality = model.QualityFor(c.AgreementCount)
	return c
}

// pickEphemeris takes moon phase and day rating independently from the
// highest-confidence result that supplies each; earlier results win ties.
func pickEphemeris(results []model.SourceResult) (*string, *int) {
	var (
		phase      *string
		rating     *int
		phaseRank  int
		ratingRank int
	)
	for _, r := range results {
		rank := r.Confidence.Rank()
		if r.MoonPhase != nil && (phase == nil || rank > phaseRank) {
			v := *r.MoonPhase
			phase, phaseRank = &v, rank
		}
		if r.DayRating != nil && (rating == nil || rank > ratingRank) {
			v := *r.DayRating
			rating, ratingRank = &v, rank
		}
	}
	return phase, rating
}
