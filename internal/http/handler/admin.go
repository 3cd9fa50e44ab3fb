package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"musky.app/forecast/internal/http/dto"
	"musky.app/forecast/internal/service"
)

type AdminHandler struct {
	service     service.AdminService
	traceHeader string
}

func NewAdminHandler(service service.AdminService, traceHeader string) *AdminHandler {
	return &AdminHandler{
		service:     service,
		traceHeader: traceHeader,
	}
}

// Regenerate forces a new revision for :date. With ?async=true the work is
// handed to the worker and the handler answers 202.
func (h *AdminHandler) Regenerate(c *gin.Context) {
	ctx := c.Request.Context()
	res, err := h.service.Regenerate(ctx, service.RegenerateParams{
		DateKey: c.Param("date"),
		Async:   c.Query("async") == "true",
		TraceID: h.traceID(c),
	})
	if err != nil {
		respondError(c, err, "failed to regenerate report")
		return
	}

	if res.Enqueued {
		c.JSON(http.StatusAccepted, dto.RegenerateResponse{Enqueued: true, MessageID: res.MessageID})
		return
	}
	c.Header(HeaderReportStatus, string(res.Artifact.Status))
	c.JSON(http.StatusOK, dto.RegenerateResponse{Report: dto.ToReportResponse(res.Artifact)})
}

func (h *AdminHandler) Sweep(c *gin.Context) {
	res, err := h.service.Sweep(c.Request.Context(), c.Query("async") == "true", h.traceID(c))
	if err != nil {
		respondError(c, err, "failed to sweep reports")
		return
	}

	status := http.StatusOK
	if res.Enqueued {
		status = http.StatusAccepted
	}
	c.JSON(status, dto.SweepResponse{
		Enqueued:  res.Enqueued,
		MessageID: res.MessageID,
		Removed:   res.Removed,
	})
}

func (h *AdminHandler) Status(c *gin.Context) {
	st, err := h.service.Status(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to load status")
		return
	}
	c.JSON(http.StatusOK, dto.StatusResponse{
		Today:        st.Today,
		Now:          st.Now,
		Scheduler:    st.Scheduler,
		Report:       st.Report,
		QueueEnabled: st.QueueEnabled,
	})
}

func (h *AdminHandler) traceID(c *gin.Context) *string {
	traceID := c.GetHeader(h.traceHeader)
	if traceID == "" {
		if spanCtx := trace.SpanContextFromContext(c.Request.Context()); spanCtx.IsValid() {
			traceID = spanCtx.TraceID().String()
		}
	}
	if traceID == "" {
		return nil
	}
	return &traceID
}
