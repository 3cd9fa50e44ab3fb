package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"musky.app/forecast/internal/generation"
	"musky.app/forecast/internal/service"
	"musky.app/forecast/internal/store"
)

// respondError maps domain errors to status codes. Anything unrecognized is
// logged and reported as msg with a 500.
func respondError(c *gin.Context, err error, msg string) {
	ctx := c.Request.Context()
	switch {
	case errors.Is(err, generation.ErrInvalidDate),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrDateOutOfRange):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "report not found"})
	case errors.Is(err, generation.ErrGenerationFailed):
		slog.WarnContext(ctx, "report unavailable", "error", err)
		c.Header("Retry-After", "60")
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "report temporarily unavailable"})
	case errors.Is(err, service.ErrQueueUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	case errors.Is(err, context.DeadlineExceeded):
		slog.WarnContext(ctx, "request timed out", "error", err)
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": "timed out waiting for the report"})
	default:
		slog.ErrorContext(ctx, msg, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
	}
}
