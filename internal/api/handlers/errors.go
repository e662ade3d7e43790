package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgate/internal/core"
)

// respondError maps an error to its HTTP status and {"error","code"} body.
// Only persistence and unclassified errors are logged here; rejected
// transitions are already logged by the engine.
func respondError(c *gin.Context, logger *slog.Logger, op string, err error) {
	status, code := classify(err)

	message := err.Error()
	var engineErr *core.Error
	if errors.As(err, &engineErr) {
		message = engineErr.Message
	}

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			"component", "api",
			"op", op,
			"request_id", c.GetString("X-Request-ID"),
			"error", err,
		)
		message = "Internal server error"
	}

	_ = c.Error(err)
	body := gin.H{"error": message, "code": code}
	if engineErr != nil {
		body["state"] = engineErr.State.String()
	}
	c.JSON(status, body)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrProfileNotFound):
		return http.StatusNotFound, "PROFILE_NOT_FOUND"
	case errors.Is(err, core.ErrSessionNotFound):
		return http.StatusNotFound, "SESSION_NOT_FOUND"
	}

	switch core.KindOf(err) {
	case core.ErrValidation:
		return http.StatusBadRequest, "VALIDATION_ERROR"
	case core.ErrStateConflict:
		return http.StatusConflict, "STATE_CONFLICT"
	case core.ErrQuotaExhausted:
		return http.StatusTooManyRequests, "QUOTA_EXHAUSTED"
	case core.ErrPersistence:
		return http.StatusInternalServerError, "PERSISTENCE_ERROR"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

func badRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": message,
		"code":  "INVALID_REQUEST",
	})
}
