package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"musky.app/forecast/internal/http/dto"
	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/service"
)

const (
	HeaderReportStatus   = "X-Report-Status"
	HeaderReportRevision = "X-Report-Revision"
)

// Representations of one artifact, each with its own validator.
const (
	reprJSON     = "json"
	reprMarkdown = "md"
	reprSections = "sections"
)

type ReportHandler struct {
	service service.ReportService
}

func NewReportHandler(service service.ReportService) *ReportHandler {
	return &ReportHandler{service: service}
}

func (h *ReportHandler) Today(c *gin.Context) {
	a, err := h.service.Today(c.Request.Context())
	if err != nil {
		respondError(c, err, "failed to load today's report")
		return
	}
	writeReport(c, a)
}

func (h *ReportHandler) ForDate(c *gin.Context) {
	dateKey := c.Param("date")
	a, err := h.service.ForDate(c.Request.Context(), dateKey)
	if err != nil {
		respondError(c, err, "failed to load report")
		return
	}
	writeReport(c, a)
}

func (h *ReportHandler) Sections(c *gin.Context) {
	dateKey := c.Param("date")
	res, err := h.service.Sections(c.Request.Context(), dateKey)
	if err != nil {
		respondError(c, err, "failed to load report")
		return
	}
	if notModified(c, res.Artifact, reprSections) {
		return
	}
	c.JSON(http.StatusOK, dto.SectionsResponse{
		DateKey:  res.Artifact.DateKey,
		Status:   res.Artifact.Status,
		Revision: res.Artifact.Revision,
		Sections: res.Sections,
	})
}

// Consensus computes an uncached schedule for arbitrary coordinates.
func (h *ReportHandler) Consensus(c *gin.Context) {
	var q dto.ConsensusQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	schedule, err := h.service.Preview(c.Request.Context(), service.PreviewParams{
		Latitude:  *q.Latitude,
		Longitude: *q.Longitude,
		Name:      q.Name,
		TimeZone:  q.TimeZone,
		DateKey:   q.Date,
	})
	if err != nil {
		respondError(c, err, "failed to compute consensus")
		return
	}
	c.JSON(http.StatusOK, schedule)
}

// writeReport renders JSON, or the bare markdown with ?format=markdown.
func writeReport(c *gin.Context, a *model.ReportArtifact) {
	markdown := c.Query("format") == "markdown"
	repr := reprJSON
	if markdown {
		repr = reprMarkdown
	}
	if notModified(c, a, repr) {
		return
	}
	if markdown {
		c.Data(http.StatusOK, "text/markdown; charset=utf-8", []byte(a.Content))
		return
	}
	c.JSON(http.StatusOK, dto.ToReportResponse(a))
}

// notModified sets the cache headers and answers 304 when the client already
// holds this representation of the revision in the same status. Uncached
// artifacts (revision 0) carry no validators.
func notModified(c *gin.Context, a *model.ReportArtifact, repr string) bool {
	c.Header(HeaderReportStatus, string(a.Status))
	c.Header(HeaderReportRevision, strconv.FormatInt(a.Revision, 10))
	if a.Revision <= 0 {
		c.Header("Cache-Control", "no-store")
		return false
	}

	etag := reportETag(a, repr)
	c.Header("ETag", etag)
	c.Header("Last-Modified", a.GeneratedAt.UTC().Format(http.TimeFormat))
	if a.Status == model.ReportFresh {
		c.Header("Cache-Control", "public, max-age=300")
	} else {
		c.Header("Cache-Control", "no-cache")
	}

	if matchesETag(c.GetHeader("If-None-Match"), etag) {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// reportETag is "<date>-r<revision>-<status>[-err]-<repr>". A stale fallback
// carrying an error never shares a validator with the clean revision.
func reportETag(a *model.ReportArtifact, repr string) string {
	tag := fmt.Sprintf("%s-r%d-%s", a.DateKey, a.Revision, a.Status)
	if a.Error != nil {
		tag += "-err"
	}
	return `"` + tag + "-" + repr + `"`
}

func matchesETag(header, etag string) bool {
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == etag {
			return true
		}
	}
	return false
}
