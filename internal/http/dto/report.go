package dto

import (
	"time"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/report"
)

type ReportResponse struct {
	DateKey              string                   `json:"date_key"`
	Status               model.ReportStatus       `json:"status"`
	Content              string                   `json:"content"`
	GeneratedAt          time.Time                `json:"generated_at"`
	GenerationDurationMs int64                    `json:"generation_duration_ms"`
	CostUnits            int64                    `json:"cost_units"`
	Revision             int64                    `json:"revision"`
	RunID                int64                    `json:"run_id,string"`
	Schedule             *model.ConsensusSchedule `json:"schedule,omitempty"`
	Error                *string                  `json:"error,omitempty"`
}

func ToReportResponse(a *model.ReportArtifact) *ReportResponse {
	return &ReportResponse{
		DateKey:              a.DateKey,
		Status:               a.Status,
		Content:              a.Content,
		GeneratedAt:          a.GeneratedAt,
		GenerationDurationMs: a.GenerationDurationMs,
		CostUnits:            a.CostUnits,
		Revision:             a.Revision,
		RunID:                a.RunID,
		Schedule:             a.Schedule,
		Error:                a.Error,
	}
}

type SectionsResponse struct {
	DateKey  string             `json:"date_key"`
	Status   model.ReportStatus `json:"status"`
	Revision int64              `json:"revision"`
	Sections []report.Section   `json:"sections"`
}

// ConsensusQuery binds GET /api/v1/consensus. Coordinates are pointers so a
// missing value is distinguishable from zero.
type ConsensusQuery struct {
	Latitude  *float64 `form:"lat" binding:"required"`
	Longitude *float64 `form:"lon" binding:"required"`
	Date      string   `form:"date" binding:"omitempty,datetime=2006-01-02"`
	TimeZone  string   `form:"tz" binding:"omitempty,max=64"`
	Name      string   `form:"name" binding:"omitempty,max=128"`
}
