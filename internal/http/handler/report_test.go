package handler_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/http/handler"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
	"musky.app/forecast/internal/service"
)

func artifact(dateKey string, status model.ReportStatus, revision int64) *model.ReportArtifact {
	return &model.ReportArtifact{
		DateKey:     dateKey,
		Content:     "# Lake St. Clair fishing report",
		Status:      status,
		GeneratedAt: time.Date(2026, 6, 10, 9, 0, 0, 0, time.UTC),
		Revision:    revision,
		RunID:       1234,
	}
}

var _ = Describe("ReportHandler", func() {
	var (
		router *gin.Engine
		svc    *mockReportService
	)

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		router = gin.New()
		svc = &mockReportService{}
		h := handler.NewReportHandler(svc)
		router.GET("/reports/today", h.Today)
		router.GET("/reports/:date", h.ForDate)
		router.GET("/reports/:date/sections", h.Sections)
		router.GET("/consensus", h.Consensus)
	})

	get := func(path string, headers ...string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		for i := 0; i+1 < len(headers); i += 2 {
			req.Header.Set(headers[i], headers[i+1])
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	Describe("Today", func() {
		It("returns the report with cache headers", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 3), nil
			}

			w := get("/reports/today")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get(handler.HeaderReportStatus)).To(Equal("fresh"))
			Expect(w.Header().Get(handler.HeaderReportRevision)).To(Equal("3"))
			Expect(w.Header().Get("ETag")).To(Equal(`"2026-06-10-r3-fresh-json"`))
			Expect(w.Header().Get("Last-Modified")).To(Equal("Wed, 10 Jun 2026 09:00:00 GMT"))

			var resp map[string]any
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp["date_key"]).To(Equal("2026-06-10"))
			Expect(resp["status"]).To(Equal("fresh"))
			Expect(resp["run_id"]).To(Equal("1234"))
		})

		It("answers 304 when the client holds the revision", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 3), nil
			}

			w := get("/reports/today", "If-None-Match", `"2026-06-10-r3-fresh-json"`)

			Expect(w.Code).To(Equal(http.StatusNotModified))
			Expect(w.Body.Len()).To(BeZero())
		})

		It("answers 304 when the held tag is one of several", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 3), nil
			}

			w := get("/reports/today", "If-None-Match", `"2026-06-09-r1-fresh-json", "2026-06-10-r3-fresh-json"`)

			Expect(w.Code).To(Equal(http.StatusNotModified))
		})

		It("gives the markdown representation its own validator", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 3), nil
			}

			w := get("/reports/today?format=markdown", "If-None-Match", `"2026-06-10-r3-fresh-json"`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("ETag")).To(Equal(`"2026-06-10-r3-fresh-md"`))
		})

		It("does not answer 304 for a failed regeneration of the held revision", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				a := artifact("2026-06-10", model.ReportStale, 3)
				msg := "generation failed: builder down"
				a.Error = &msg
				return a, nil
			}

			w := get("/reports/today", "If-None-Match", `"2026-06-10-r3-fresh-json"`)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("ETag")).To(Equal(`"2026-06-10-r3-stale-err-json"`))
			Expect(w.Body.String()).To(ContainSubstring("builder down"))
		})

		It("serves markdown on request", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 3), nil
			}

			w := get("/reports/today?format=markdown")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("Content-Type")).To(HavePrefix("text/markdown"))
			Expect(w.Body.String()).To(Equal("# Lake St. Clair fishing report"))
		})

		It("serves a stale artifact with its error", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				a := artifact("2026-06-10", model.ReportStale, 2)
				msg := "generation failed: builder down"
				a.Error = &msg
				return a, nil
			}

			w := get("/reports/today")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get(handler.HeaderReportStatus)).To(Equal("stale"))
			Expect(w.Header().Get("Cache-Control")).To(Equal("no-cache"))
			Expect(w.Body.String()).To(ContainSubstring("builder down"))
		})

		It("omits validators for an uncached artifact", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return artifact("2026-06-10", model.ReportFresh, 0), nil
			}

			w := get("/reports/today")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get("ETag")).To(BeEmpty())
			Expect(w.Header().Get("Cache-Control")).To(Equal("no-store"))
		})

		It("returns 503 when nothing can be served", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return nil, fmt.Errorf("%w: no source succeeded", generation.ErrGenerationFailed)
			}

			w := get("/reports/today")

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Header().Get("Retry-After")).To(Equal("60"))
		})

		It("returns 504 when the wait times out", func() {
			svc.todayFn = func(context.Context) (*model.ReportArtifact, error) {
				return nil, context.DeadlineExceeded
			}

			Expect(get("/reports/today").Code).To(Equal(http.StatusGatewayTimeout))
		})
	})

	Describe("ForDate", func() {
		It("passes the date through", func() {
			var got string
			svc.forDateFn = func(_ context.Context, dateKey string) (*model.ReportArtifact, error) {
				got = dateKey
				return artifact(dateKey, model.ReportFresh, 1), nil
			}

			w := get("/reports/2026-06-09")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got).To(Equal("2026-06-09"))
		})

		DescribeTable("bad dates",
			func(err error) {
				svc.forDateFn = func(context.Context, string) (*model.ReportArtifact, error) {
					return nil, err
				}
				Expect(get("/reports/whenever").Code).To(Equal(http.StatusBadRequest))
			},
			Entry("malformed", fmt.Errorf("%w: whenever", generation.ErrInvalidDate)),
			Entry("out of range", fmt.Errorf("%w: 2020-01-01", service.ErrDateOutOfRange)),
		)

		It("returns 500 on unexpected errors", func() {
			svc.forDateFn = func(context.Context, string) (*model.ReportArtifact, error) {
				return nil, fmt.Errorf("boom")
			}

			w := get("/reports/2026-06-09")

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("failed to load report"))
		})
	})

	Describe("Sections", func() {
		It("returns the species sections", func() {
			svc.sectionsFn = func(_ context.Context, dateKey string) (*service.ReportSections, error) {
				return &service.ReportSections{
					Artifact: artifact(dateKey, model.ReportFresh, 5),
					Sections: []report.Section{{Species: "Walleye", Body: "Night bite."}},
				}, nil
			}

			w := get("/reports/2026-06-10/sections")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Header().Get(handler.HeaderReportRevision)).To(Equal("5"))
			Expect(w.Header().Get("ETag")).To(Equal(`"2026-06-10-r5-fresh-sections"`))
			var resp struct {
				DateKey  string           `json:"date_key"`
				Sections []report.Section `json:"sections"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Sections).To(Equal([]report.Section{{Species: "Walleye", Body: "Night bite."}}))
		})
	})

	Describe("Consensus", func() {
		It("binds the query", func() {
			var got service.PreviewParams
			svc.previewFn = func(_ context.Context, params service.PreviewParams) (*model.ConsensusSchedule, error) {
				got = params
				return &model.ConsensusSchedule{Date: "2026-06-10", ConfidenceTier: model.ConfidenceMedium}, nil
			}

			w := get("/consensus?lat=42.43&lon=-82.69&date=2026-06-10&tz=America/Detroit")

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(got.Latitude).To(Equal(42.43))
			Expect(got.Longitude).To(Equal(-82.69))
			Expect(got.DateKey).To(Equal("2026-06-10"))
			Expect(got.TimeZone).To(Equal("America/Detroit"))
			Expect(w.Body.String()).To(ContainSubstring(`"confidence_tier":"medium"`))
		})

		It("accepts the equator", func() {
			svc.previewFn = func(_ context.Context, params service.PreviewParams) (*model.ConsensusSchedule, error) {
				return &model.ConsensusSchedule{}, nil
			}

			Expect(get("/consensus?lat=0&lon=0").Code).To(Equal(http.StatusOK))
		})

		DescribeTable("invalid queries",
			func(query string) {
				Expect(get("/consensus" + query).Code).To(Equal(http.StatusBadRequest))
			},
			Entry("missing lat", "?lon=-82.69"),
			Entry("missing lon", "?lat=42.43"),
			Entry("non-numeric", "?lat=north&lon=-82.69"),
			Entry("bad date", "?lat=42.43&lon=-82.69&date=06/10/2026"),
		)

		It("maps invalid locations to 400", func() {
			svc.previewFn = func(context.Context, service.PreviewParams) (*model.ConsensusSchedule, error) {
				return nil, fmt.Errorf("%w: latitude 95 out of range", service.ErrInvalidLocation)
			}

			Expect(get("/consensus?lat=95&lon=0").Code).To(Equal(http.StatusBadRequest))
		})
	})
})
