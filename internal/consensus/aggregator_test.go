package consensus_test

import (
	"encoding/json"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/internal/consensus"
	"musky.app/forecast/internal/model"
)

func major(source string, start, end int, weight float64) model.TimeWindow {
	return model.TimeWindow{Start: start, End: end, Kind: model.WindowMajor, SourceID: source, Weight: weight}
}

func minor(source string, start, end int, weight float64) model.TimeWindow {
	return model.TimeWindow{Start: start, End: end, Kind: model.WindowMinor, SourceID: source, Weight: weight}
}

func result(source string, conf model.Confidence, windows ...model.TimeWindow) model.SourceResult {
	return model.SourceResult{SourceID: source, Confidence: conf, Windows: windows}
}

func ptr[T any](v T) *T { return &v }

var _ = Describe("Aggregator", func() {
	var (
		agg *consensus.Aggregator
		loc model.Location
	)

	BeforeEach(func() {
		agg = consensus.NewAggregator(consensus.DefaultConfig())
		loc = model.Location{Latitude: 42.43, Longitude: -82.68, TimeZone: "America/Detroit"}
	})

	Describe("clustering threshold", func() {
		It("merges major windows exactly 120 minutes apart", func() {
			s, ok := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
				result("a", model.ConfidenceHigh, major("a", 480, 600, 0.5)),
				result("b", model.ConfidenceHigh, major("b", 600, 720, 0.5)),
			})
			Expect(ok).To(BeTrue())
			Expect(s.Entries).To(HaveLen(1))
			Expect(s.Entries[0].Members).To(HaveLen(2))
		})

		It("splits major windows 121 minutes apart", func() {
			s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
				result("a", model.ConfidenceHigh, major("a", 480, 600, 0.5)),
				result("b", model.ConfidenceHigh, major("b", 601, 720, 0.5)),
			})
			Expect(s.Entries).To(HaveLen(2))
		})

		It("never merges a major window with a minor one", func() {
			s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
				result("a", model.ConfidenceHigh, major("a", 480, 600, 0.5)),
				result("b", model.ConfidenceHigh, minor("b", 490, 550, 0.5)),
			})
			Expect(s.Entries).To(HaveLen(2))
			Expect(s.Entries[0].Kind).To(Equal(model.WindowMajor))
			Expect(s.Entries[1].Kind).To(Equal(model.WindowMinor))
		})

		It("compares against the running mean, not the first member", func() {
			// 480 -> mean 480; 600 joins -> mean 540; 660 is 120 from the mean and joins.
			clusters := consensus.Cluster([]model.TimeWindow{
				major("a", 480, 600, 1),
				major("b", 600, 720, 1),
				major("c", 660, 780, 1),
			})
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].AgreementCount).To(Equal(3))
		})

		It("does not reassign or merge clusters after the fact", func() {
			// 480 opens A, 700 opens B (220 away), 590 joins A (110 from 480) even
			// though it is also within reach of B.
			clusters := consensus.Cluster([]model.TimeWindow{
				major("a", 480, 600, 1),
				major("b", 700, 820, 1),
				major("c", 590, 710, 1),
			})
			Expect(clusters).To(HaveLen(2))
			Expect(clusters[0].Members).To(HaveLen(2))
			Expect(clusters[1].Members).To(HaveLen(1))
		})
	})

	Describe("weighted merge", func() {
		It("computes the weight-weighted start", func() {
			clusters := consensus.Cluster([]model.TimeWindow{
				major("a", 600, 720, 0.6),
				major("b", 630, 750, 0.4),
			})
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].MergedStart).To(BeNumerically("~", 612, 1e-9))
			Expect(clusters[0].MergedEnd).To(BeNumerically("~", 732, 1e-9))
		})

		It("keeps a single member's values unchanged", func() {
			clusters := consensus.Cluster([]model.TimeWindow{major("a", 605, 725, 0.3)})
			Expect(clusters[0].MergedStart).To(Equal(605.0))
			Expect(clusters[0].MergedEnd).To(Equal(725.0))
		})

		It("lets duplicate windows from one source shift the average but not agreement", func() {
			clusters := consensus.Cluster([]model.TimeWindow{
				major("a", 600, 720, 0.5),
				major("a", 660, 780, 0.5),
			})
			Expect(clusters[0].AgreementCount).To(Equal(1))
			Expect(clusters[0].Quality).To(Equal(model.QualityFair))
			Expect(clusters[0].MergedStart).To(BeNumerically("~", 630, 1e-9))
		})
	})

	DescribeTable("quality labels follow distinct sources",
		func(windows []model.TimeWindow, expected model.Quality) {
			clusters := consensus.Cluster(windows)
			Expect(clusters).To(HaveLen(1))
			Expect(clusters[0].Quality).To(Equal(expected))
		},
		Entry("three sources", []model.TimeWindow{major("a", 600, 720, 1), major("b", 610, 730, 1), major("c", 620, 740, 1)}, model.QualityExcellent),
		Entry("four windows from two sources", []model.TimeWindow{major("a", 600, 720, 1), major("a", 605, 725, 1), major("b", 610, 730, 1), major("b", 615, 735, 1)}, model.QualityGood),
		Entry("one source", []model.TimeWindow{major("a", 600, 720, 1)}, model.QualityFair),
	)

	It("sorts the combined schedule by merged start", func() {
		s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
			result("a", model.ConfidenceHigh,
				major("a", 1080, 1200, 0.5),
				minor("a", 300, 360, 0.5),
				major("a", 420, 540, 0.5),
				minor("a", 780, 840, 0.5),
			),
		})
		starts := make([]float64, 0, len(s.Entries))
		for _, e := range s.Entries {
			starts = append(starts, e.MergedStart)
		}
		Expect(starts).To(Equal([]float64{300, 420, 780, 1080}))
	})

	It("breaks ties by putting major clusters first", func() {
		s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
			result("a", model.ConfidenceHigh, minor("a", 600, 660, 0.5), major("a", 600, 720, 0.5)),
		})
		Expect(s.Entries).To(HaveLen(2))
		Expect(s.Entries[0].Kind).To(Equal(model.WindowMajor))
	})

	It("is deterministic for the same input", func() {
		input := []model.SourceResult{
			result("a", model.ConfidenceHigh, major("a", 480, 600, 0.6), minor("a", 780, 840, 0.6)),
			result("b", model.ConfidenceMedium, major("b", 500, 620, 0.4), minor("b", 1200, 1260, 0.4)),
			result("c", model.ConfidenceLow, major("c", 1100, 1220, 0.3)),
		}
		first, _ := agg.Aggregate("2026-06-10", loc, input)
		second, _ := agg.Aggregate("2026-06-10", loc, input)

		a, err := json.Marshal(first.Entries)
		Expect(err).NotTo(HaveOccurred())
		b, err := json.Marshal(second.Entries)
		Expect(err).NotTo(HaveOccurred())
		Expect(a).To(Equal(b))
	})

	Describe("moon phase and day rating", func() {
		It("prefers the highest-confidence source that supplies a value", func() {
			low := result("llm", model.ConfidenceLow, major("llm", 480, 600, 0.3))
			low.MoonPhase = ptr("Full Moon")
			low.DayRating = ptr(2)
			high := result("solunar", model.ConfidenceHigh, major("solunar", 480, 600, 0.6))
			high.MoonPhase = ptr("Waxing Gibbous")
			medium := result("weather", model.ConfidenceMedium)
			medium.DayRating = ptr(4)

			s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{low, high, medium})
			Expect(*s.MoonPhase).To(Equal("Waxing Gibbous"))
			Expect(*s.DayRating).To(Equal(4))
		})

		It("breaks confidence ties by input order", func() {
			first := result("a", model.ConfidenceHigh)
			first.MoonPhase = ptr("New Moon")
			second := result("b", model.ConfidenceHigh)
			second.MoonPhase = ptr("Full Moon")

			s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{first, second})
			Expect(*s.MoonPhase).To(Equal("New Moon"))
		})

		It("leaves both unset when nobody supplies them", func() {
			s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
				result("a", model.ConfidenceHigh, major("a", 480, 600, 0.5)),
			})
			Expect(s.MoonPhase).To(BeNil())
			Expect(s.DayRating).To(BeNil())
		})
	})

	Describe("zero successful sources", func() {
		failures := []model.SourceResult{
			model.Failed("a", model.ConfidenceHigh, model.SourceErrorTimeout, "timeout"),
			model.Failed("b", model.ConfidenceMedium, model.SourceErrorNetwork, "connection refused"),
		}

		It("returns the static fallback schedule at low confidence", func() {
			s, ok := agg.Aggregate("2026-06-10", loc, failures)
			Expect(ok).To(BeTrue())
			Expect(s.Fallback).To(BeTrue())
			Expect(s.ConfidenceTier).To(Equal(model.ConfidenceLow))
			Expect(s.Entries).To(Equal(consensus.FallbackEntries()))
			Expect(s.Entries).To(HaveLen(2))
			Expect(s.Entries[0].StartClock()).To(Equal("06:00"))
			Expect(s.Entries[0].EndClock()).To(Equal("08:00"))
			Expect(s.Entries[1].StartClock()).To(Equal("18:00"))
			Expect(s.Entries[1].EndClock()).To(Equal("20:00"))
			Expect(s.SourcesUsed).To(BeZero())
			Expect(s.SourcesAttempted).To(Equal(2))
			Expect(s.Errors).To(HaveLen(2))
		})

		It("reports failure when the fallback is disabled", func() {
			cfg := consensus.DefaultConfig()
			cfg.FallbackEnabled = false
			_, ok := consensus.NewAggregator(cfg).Aggregate("2026-06-10", loc, failures)
			Expect(ok).To(BeFalse())
		})
	})

	It("keeps failed sources out of aggregation but in diagnostics", func() {
		s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
			result("a", model.ConfidenceHigh, major("a", 480, 600, 0.5)),
			model.Failed("b", model.ConfidenceHigh, model.SourceErrorDecode, "bad payload"),
		})
		Expect(s.SourcesUsed).To(Equal(1))
		Expect(s.SourcesAttempted).To(Equal(2))
		Expect(s.Errors).To(ConsistOf(HaveField("SourceID", "b")))
		Expect(s.Entries).To(HaveLen(1))
	})

	It("drops invalid windows with a warning instead of misclustering them", func() {
		s, _ := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
			result("a", model.ConfidenceHigh, major("a", 1500, 1560, 0.5), major("a", 480, 600, 0.5)),
		})
		Expect(s.Entries).To(HaveLen(1))
		Expect(s.Warnings).To(HaveLen(1))
		Expect(s.Warnings[0].Kind).To(Equal(model.SourceErrorInvalid))
	})

	It("unwraps windows that cross midnight before merging", func() {
		clusters := consensus.Cluster(mustNormalize(
			major("a", 1380, 60, 0.5),
			major("b", 1400, 80, 0.5),
		))
		Expect(clusters).To(HaveLen(1))
		Expect(clusters[0].MergedEnd).To(BeNumerically("~", 1510, 1e-9))
		Expect(clusters[0].EndClock()).To(Equal("01:10"))
	})

	It("merges the two-source morning scenario", func() {
		s, ok := agg.Aggregate("2026-06-10", loc, []model.SourceResult{
			result("A", model.ConfidenceHigh, major("A", 8*60, 10*60, 0.5)),
			result("B", model.ConfidenceMedium, major("B", 8*60+30, 10*60+30, 0.5)),
		})
		Expect(ok).To(BeTrue())
		Expect(s.Entries).To(HaveLen(1))
		Expect(s.Entries[0].StartClock()).To(Equal("08:15"))
		Expect(s.Entries[0].EndClock()).To(Equal("10:15"))
		Expect(s.Entries[0].Quality).To(Equal(model.QualityGood))
		Expect(s.ConfidenceTier).To(Equal(model.ConfidenceMedium))
	})
})

func mustNormalize(ws ...model.TimeWindow) []model.TimeWindow {
	out := make([]model.TimeWindow, 0, len(ws))
	for _, w := range ws {
		n, err := w.Normalize()
		Expect(err).NotTo(HaveOccurred())
		out = append(out, n)
	}
	return out
}
