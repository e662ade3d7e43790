package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"focusgate/internal/core"
)

// ProfileService is the profile management the handler needs
type ProfileService interface {
	Create(ctx context.Context, profile *core.Profile) (*core.Profile, error)
	Get(ctx context.Context, id string) (*core.Profile, error)
	List(ctx context.Context) ([]*core.Profile, error)
	Update(ctx context.Context, id string, upd core.ProfileUpdate) (*core.Profile, error)
	Delete(ctx context.Context, id string) error
}

// SessionHistory reads ended sessions from the durable store
type SessionHistory interface {
	ListSessionsByProfile(ctx context.Context, profileID string, limit int) ([]*core.Session, error)
}

// ProfilesHandler handles profile requests
type ProfilesHandler struct {
	profiles ProfileService
	history  SessionHistory
	logger   *slog.Logger
}

// NewProfilesHandler creates a new profiles handler
func NewProfilesHandler(profiles ProfileService, history SessionHistory, logger *slog.Logger) *ProfilesHandler {
	return &ProfilesHandler{
		profiles: profiles,
		history:  history,
		logger:   logger,
	}
}

type windowRequest struct {
	StartMinute int   `json:"start_minute"`
	EndMinute   int   `json:"end_minute"`
	Weekdays    []int `json:"weekdays"`
}

type scheduleRequest struct {
	Windows []windowRequest `json:"windows"`
}

// profileRequest is shared by create and update; absent fields are nil
type profileRequest struct {
	Name                  *string          `json:"name"`
	Targets               []string         `json:"targets"`
	Strategy              *string          `json:"strategy"`
	StrategyData          *string          `json:"strategy_data"`
	EnableBreaks          *bool            `json:"enable_breaks"`
	BreakDurationMinutes  *int             `json:"break_duration_minutes"`
	EnableStrictMode      *bool            `json:"enable_strict_mode"`
	EnableLiveActivity    *bool            `json:"enable_live_activity"`
	ReminderOffsetMinutes *int             `json:"reminder_offset_minutes"`
	CustomReminderMessage *string          `json:"custom_reminder_message"`
	Schedule              *scheduleRequest `json:"schedule"`
	ClearSchedule         bool             `json:"clear_schedule"`
	Order                 *int             `json:"order"`
}

func (r *scheduleRequest) toSchedule() *core.Schedule {
	if r == nil {
		return nil
	}
	s := &core.Schedule{Windows: make([]core.TimeWindow, 0, len(r.Windows))}
	for _, w := range r.Windows {
		days := make([]time.Weekday, 0, len(w.Weekdays))
		for _, d := range w.Weekdays {
			days = append(days, time.Weekday(d))
		}
		s.Windows = append(s.Windows, core.TimeWindow{
			StartMinute: w.StartMinute,
			EndMinute:   w.EndMinute,
			Weekdays:    days,
		})
	}
	return s
}

func (r *profileRequest) toProfile() *core.Profile {
	p := &core.Profile{Targets: r.Targets, Schedule: r.Schedule.toSchedule()}
	if r.Name != nil {
		p.Name = *r.Name
	}
	if r.Strategy != nil {
		p.Strategy = core.StrategyKind(*r.Strategy)
	}
	if r.StrategyData != nil {
		p.StrategyData = *r.StrategyData
	}
	if r.EnableBreaks != nil {
		p.EnableBreaks = *r.EnableBreaks
	}
	if r.BreakDurationMinutes != nil {
		p.BreakDurationMinutes = *r.BreakDurationMinutes
	}
	if r.EnableStrictMode != nil {
		p.EnableStrictMode = *r.EnableStrictMode
	}
	if r.EnableLiveActivity != nil {
		p.EnableLiveActivity = *r.EnableLiveActivity
	}
	if r.ReminderOffsetMinutes != nil {
		p.ReminderOffsetMinutes = *r.ReminderOffsetMinutes
	}
	if r.CustomReminderMessage != nil {
		p.CustomReminderMessage = *r.CustomReminderMessage
	}
	if r.Order != nil {
		p.Order = *r.Order
	}
	return p
}

func (r *profileRequest) toUpdate() core.ProfileUpdate {
	upd := core.ProfileUpdate{
		Name:                  r.Name,
		Targets:               r.Targets,
		StrategyData:          r.StrategyData,
		EnableBreaks:          r.EnableBreaks,
		BreakDurationMinutes:  r.BreakDurationMinutes,
		EnableStrictMode:      r.EnableStrictMode,
		EnableLiveActivity:    r.EnableLiveActivity,
		ReminderOffsetMinutes: r.ReminderOffsetMinutes,
		CustomReminderMessage: r.CustomReminderMessage,
		Schedule:              r.Schedule.toSchedule(),
		ClearSchedule:         r.ClearSchedule,
		Order:                 r.Order,
	}
	if r.Strategy != nil {
		kind := core.StrategyKind(*r.Strategy)
		upd.Strategy = &kind
	}
	return upd
}

// ListProfiles returns all profiles in display order
// GET /profiles
func (h *ProfilesHandler) ListProfiles(c *gin.Context) {
	profiles, err := h.profiles.List(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, "list_profiles", err)
		return
	}

	response := make([]gin.H, 0, len(profiles))
	for _, p := range profiles {
		response = append(response, formatProfile(p))
	}
	c.JSON(http.StatusOK, response)
}

// CreateProfile creates a profile
// POST /profiles
func (h *ProfilesHandler) CreateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	profile, err := h.profiles.Create(c.Request.Context(), req.toProfile())
	if err != nil {
		respondError(c, h.logger, "create_profile", err)
		return
	}
	c.JSON(http.StatusCreated, formatProfile(profile))
}

// GetProfile returns a single profile
// GET /profiles/:id
func (h *ProfilesHandler) GetProfile(c *gin.Context) {
	profile, err := h.profiles.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, h.logger, "get_profile", err)
		return
	}
	c.JSON(http.StatusOK, formatProfile(profile))
}

// UpdateProfile applies a partial update
// PATCH /profiles/:id
func (h *ProfilesHandler) UpdateProfile(c *gin.Context) {
	var req profileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body")
		return
	}

	profile, err := h.profiles.Update(c.Request.Context(), c.Param("id"), req.toUpdate())
	if err != nil {
		respondError(c, h.logger, "update_profile", err)
		return
	}
	c.JSON(http.StatusOK, formatProfile(profile))
}

// DeleteProfile removes a profile
// DELETE /profiles/:id
func (h *ProfilesHandler) DeleteProfile(c *gin.Context) {
	if err := h.profiles.Delete(c.Request.Context(), c.Param("id")); err != nil {
		respondError(c, h.logger, "delete_profile", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListProfileSessions returns ended sessions of a profile, newest first
// GET /profiles/:id/sessions?limit=
func (h *ProfilesHandler) ListProfileSessions(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			badRequest(c, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	profileID := c.Param("id")
	if _, err := h.profiles.Get(c.Request.Context(), profileID); err != nil {
		respondError(c, h.logger, "list_profile_sessions", err)
		return
	}

	sessions, err := h.history.ListSessionsByProfile(c.Request.Context(), profileID, limit)
	if err != nil {
		respondError(c, h.logger, "list_profile_sessions", err)
		return
	}

	response := make([]gin.H, 0, len(sessions))
	for _, s := range sessions {
		response = append(response, formatSession(s))
	}
	c.JSON(http.StatusOK, response)
}
