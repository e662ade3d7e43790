package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"focusgate/internal/core"
)

// Quota reports the emergency unblock quota
type Quota interface {
	Get(ctx context.Context) (*core.Quota, error)
}

// SessionHandler exposes the session engine
type SessionHandler struct {
	engine core.SessionEngineInterface
	quota  Quota
	logger *slog.Logger
}

// NewSessionHandler creates a new session handler
func NewSessionHandler(engine core.SessionEngineInterface, quota Quota, logger *slog.Logger) *SessionHandler {
	return &SessionHandler{
		engine: engine,
		quota:  quota,
		logger: logger,
	}
}

type startRequest struct {
	ProfileID string `json:"profile_id" binding:"required"`
	Force     bool   `json:"force"`
}

type stopRequest struct {
	Token string `json:"token"`
}

type breakRequest struct {
	On *bool `json:"on" binding:"required"`
}

// GetStatus returns the engine status
// GET /session
func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, formatStatus(h.engine.Status()))
}

// StartSession starts a session for a profile
// POST /session/start
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req startRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "profile_id is required")
		return
	}

	session, err := h.engine.Start(c.Request.Context(), req.ProfileID, core.StartRequest{Force: req.Force})
	if err != nil {
		respondError(c, h.logger, "start", err)
		return
	}
	c.JSON(http.StatusCreated, formatSession(session))
}

// StopSession ends the active session. Token-gated profiles need the token.
// POST /session/stop
func (h *SessionHandler) StopSession(c *gin.Context) {
	var req stopRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request body")
			return
		}
	}

	session, err := h.engine.Stop(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, h.logger, "stop", err)
		return
	}
	c.JSON(http.StatusOK, formatSession(session))
}

// ToggleBreak starts or ends the break of the active session
// POST /session/break
func (h *SessionHandler) ToggleBreak(c *gin.Context) {
	var req breakRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "on is required")
		return
	}

	session, err := h.engine.ToggleBreak(c.Request.Context(), *req.On)
	if err != nil {
		respondError(c, h.logger, "break", err)
		return
	}
	c.JSON(http.StatusOK, formatSession(session))
}

// EmergencyUnblock ends the active session regardless of strategy and
// consumes one unit of quota
// POST /session/emergency-unblock
func (h *SessionHandler) EmergencyUnblock(c *gin.Context) {
	session, err := h.engine.EmergencyUnblock(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "emergency_unblock", err)
		return
	}

	response := gin.H{"session": formatSession(session)}
	if q, err := h.quota.Get(c.Request.Context()); err == nil {
		response["quota_remaining"] = q.Remaining
	}
	c.JSON(http.StatusOK, response)
}

// GetQuota returns the emergency unblock quota
// GET /quota
func (h *SessionHandler) GetQuota(c *gin.Context) {
	q, err := h.quota.Get(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "get_quota", err)
		return
	}

	periodStart := any(nil)
	if !q.PeriodStart.IsZero() {
		periodStart = q.PeriodStart.UTC().Format(timeFormat)
	}
	c.JSON(http.StatusOK, gin.H{
		"remaining":    q.Remaining,
		"allowance":    q.Allowance,
		"period_start": periodStart,
	})
}
