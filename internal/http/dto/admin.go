package dto

import (
	"time"

	"musky.app/forecast/internal/model"
	"musky.app/forecast/internal/scheduler"
)

type RegenerateResponse struct {
	Enqueued  bool            `json:"enqueued"`
	MessageID string          `json:"message_id,omitempty"`
	Report    *ReportResponse `json:"report,omitempty"`
}

type SweepResponse struct {
	Enqueued  bool   `json:"enqueued"`
	MessageID string `json:"message_id,omitempty"`
	Removed   int    `json:"removed"`
}

type StatusResponse struct {
	Today        string                 `json:"today"`
	Now          time.Time              `json:"now"`
	Scheduler    scheduler.Status       `json:"scheduler"`
	Report       *model.ArtifactSummary `json:"report,omitempty"`
	QueueEnabled bool                   `json:"queue_enabled"`
}
