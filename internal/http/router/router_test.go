package router_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/common/clock"
	"musky.app/forecast/common/id"
	"musky.app/forecast/internal/consensus"
	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/http/middleware"
	"musky.app/forecast/internal/http/router"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
	"musky.app/forecast/internal/scheduler"
	"musky.app/forecast/internal/service"
	"musky.app/forecast/internal/source"
	"musky.app/forecast/internal/store"
)

var _ = Describe("SetupRoutes", func() {
	var (
		engine  *gin.Engine
		clk     *clock.Fixed
		reports *store.MemoryReportStore
	)

	BeforeEach(func() {
		Expect(id.Init(1)).To(Succeed())
		gin.SetMode(gin.TestMode)

		zone, err := time.LoadLocation("America/Detroit")
		Expect(err).NotTo(HaveOccurred())
		clk = clock.NewFixed(time.Date(2026, 6, 10, 6, 0, 0, 0, zone))

		adapters := []source.Adapter{
			source.NewStaticAdapter("solunar", model.ConfidenceHigh, 0.6, []model.TimeWindow{
				{Kind: model.WindowMajor, Start: 495, End: 615},
			}).WithMoonPhase("Waxing Gibbous"),
			source.NewStaticAdapter("open-meteo", model.ConfidenceMedium, 0.4, []model.TimeWindow{
				{Kind: model.WindowMajor, Start: 495, End: 615},
			}),
		}

		reports = store.NewMemoryReportStore()
		coord := generation.NewCoordinator(
			reports,
			adapters,
			consensus.NewAggregator(consensus.DefaultConfig()),
			report.NewTemplateBuilder(),
			generation.Config{
				Location: model.Location{Latitude: 42.4334, Longitude: -82.6863, Name: "Lake St. Clair", TimeZone: "America/Detroit"},
				Zone:     zone,
			},
			generation.WithClock(clk),
		)
		sched := scheduler.New(coord, reports, clk, scheduler.Config{
			Daily:      scheduler.DailySchedule{Hour: 5, Location: zone},
			RetainDays: 7,
		})

		engine = gin.New()
		router.SetupRoutes(engine, service.NewServices(coord, sched, nil, 7), router.RouterConfig{
			AdminAPIKey:     "s3cret",
			TraceHeaderName: "X-Trace-Id",
		})
	})

	do := func(method, path string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, nil)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		engine.ServeHTTP(w, req)
		return w
	}

	It("serves health", func() {
		Expect(do(http.MethodGet, "/health").Code).To(Equal(http.StatusOK))
	})

	It("generates today's report once and then serves it from the store", func() {
		first := do(http.MethodGet, "/api/v1/reports/today")
		Expect(first.Code).To(Equal(http.StatusOK))
		Expect(first.Header().Get("X-Report-Status")).To(Equal("fresh"))
		Expect(first.Header().Get("X-Report-Revision")).To(Equal("1"))

		var resp struct {
			DateKey  string `json:"date_key"`
			Content  string `json:"content"`
			Schedule struct {
				ConfidenceTier string `json:"confidence_tier"`
				Entries        []struct {
					Quality     string  `json:"quality"`
					MergedStart float64 `json:"merged_start"`
					MergedEnd   float64 `json:"merged_end"`
				} `json:"entries"`
			} `json:"schedule"`
		}
		Expect(json.Unmarshal(first.Body.Bytes(), &resp)).To(Succeed())
		Expect(resp.DateKey).To(Equal("2026-06-10"))
		Expect(resp.Schedule.ConfidenceTier).To(Equal("medium"))
		Expect(resp.Schedule.Entries).To(HaveLen(1))
		Expect(resp.Schedule.Entries[0].Quality).To(Equal("Good"))
		Expect(resp.Schedule.Entries[0].MergedStart).To(Equal(495.0))
		Expect(resp.Schedule.Entries[0].MergedEnd).To(Equal(615.0))
		Expect(resp.Content).To(ContainSubstring("08:15-10:15"))

		clk.Advance(2 * time.Hour)
		second := do(http.MethodGet, "/api/v1/reports/2026-06-10")
		Expect(second.Code).To(Equal(http.StatusOK))
		Expect(second.Header().Get("X-Report-Revision")).To(Equal("1"))
		Expect(second.Header().Get("ETag")).To(Equal(first.Header().Get("ETag")))

		Expect(do(http.MethodGet, "/api/v1/reports/today", "If-None-Match", first.Header().Get("ETag")).Code).
			To(Equal(http.StatusNotModified))
	})

	It("rejects malformed and out-of-range dates", func() {
		Expect(do(http.MethodGet, "/api/v1/reports/june-tenth").Code).To(Equal(http.StatusBadRequest))
		Expect(do(http.MethodGet, "/api/v1/reports/2026-01-01").Code).To(Equal(http.StatusBadRequest))
	})

	It("previews consensus for other coordinates", func() {
		w := do(http.MethodGet, "/api/v1/consensus?lat=45.9&lon=-89.6&date=2026-06-11")
		Expect(w.Code).To(Equal(http.StatusOK))
		Expect(w.Body.String()).To(ContainSubstring(`"date":"2026-06-11"`))

		_, err := reports.Get(context.Background(), "2026-06-11")
		Expect(err).To(MatchError(store.ErrNotFound))
	})

	Describe("admin", func() {
		It("requires the api key", func() {
			Expect(do(http.MethodGet, "/admin/status").Code).To(Equal(http.StatusUnauthorized))
		})

		It("force-regenerates a new revision", func() {
			Expect(do(http.MethodGet, "/api/v1/reports/today").Code).To(Equal(http.StatusOK))

			w := do(http.MethodPost, "/admin/reports/2026-06-10/regenerate", middleware.AdminAPIKeyHeader, "s3cret")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"revision":2`))

			status := do(http.MethodGet, "/admin/status", "Authorization", "Bearer s3cret")
			Expect(status.Code).To(Equal(http.StatusOK))
			Expect(status.Body.String()).To(ContainSubstring(`"today":"2026-06-10"`))
			Expect(status.Body.String()).To(ContainSubstring(`"revision":2`))
		})

		It("rejects async requests without a queue", func() {
			w := do(http.MethodPost, "/admin/reports/2026-06-10/regenerate?async=true", middleware.AdminAPIKeyHeader, "s3cret")
			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
		})

		It("sweeps", func() {
			w := do(http.MethodPost, "/admin/reports/sweep", middleware.AdminAPIKeyHeader, "s3cret")
			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(ContainSubstring(`"removed":0`))
		})
	})
})
