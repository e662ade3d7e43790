package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"focusgate/internal/core"
)

const timeFormat = time.RFC3339

func formatTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeFormat)
}

// formatSession renders a session. effective_start_time is the start shifted
// forward by the break so live timers can bind to it.
func formatSession(s *core.Session) gin.H {
	if s == nil {
		return nil
	}
	return gin.H{
		"id":                   s.ID,
		"profile_id":           s.ProfileID,
		"tag":                  s.Tag,
		"strategy":             string(s.StrategyFromTag()),
		"start_time":           s.StartTime.UTC().Format(timeFormat),
		"end_time":             formatTime(s.EndTime),
		"break_start_time":     formatTime(s.BreakStartTime),
		"break_end_time":       formatTime(s.BreakEndTime),
		"effective_start_time": core.EffectiveStart(s.StartTime, s.BreakStartTime, s.BreakEndTime).UTC().Format(timeFormat),
		"force_started":        s.ForceStarted,
	}
}

// formatProfile renders a profile. The registered token is never returned.
func formatProfile(p *core.Profile) gin.H {
	windows := make([]gin.H, 0)
	if p.Schedule != nil {
		for _, w := range p.Schedule.Windows {
			days := make([]int, 0, len(w.Weekdays))
			for _, d := range w.Weekdays {
				days = append(days, int(d))
			}
			windows = append(windows, gin.H{
				"start_minute": w.StartMinute,
				"end_minute":   w.EndMinute,
				"weekdays":     days,
			})
		}
	}

	targets := p.Targets
	if targets == nil {
		targets = []string{}
	}

	return gin.H{
		"id":                      p.ID,
		"name":                    p.Name,
		"targets":                 targets,
		"strategy":                string(p.Strategy),
		"has_token":               p.StrategyData != "",
		"enable_breaks":           p.EnableBreaks,
		"break_duration_minutes":  p.BreakDurationMinutes,
		"enable_strict_mode":      p.EnableStrictMode,
		"enable_live_activity":    p.EnableLiveActivity,
		"reminder_offset_minutes": p.ReminderOffsetMinutes,
		"custom_reminder_message": p.CustomReminderMessage,
		"schedule":                gin.H{"windows": windows},
		"order":                   p.Order,
		"created_at":              p.CreatedAt.UTC().Format(timeFormat),
		"updated_at":              p.UpdatedAt.UTC().Format(timeFormat),
	}
}

func formatStatus(st core.Status) gin.H {
	return gin.H{
		"state":                   st.State.String(),
		"session":                 formatSession(st.Session),
		"profile_name":            st.ProfileName,
		"elapsed_seconds":         int64(st.Elapsed / time.Second),
		"break_taken_seconds":     int64(st.BreakTaken / time.Second),
		"break_remaining_seconds": int64(st.BreakRemaining / time.Second),
		"is_blocking":             st.IsBlocking,
		"is_break_available":      st.IsBreakAvailable,
		"strict_mode":             st.StrictMode,
		"pending_writes":          st.PendingWrites,
		"at":                      st.At.UTC().Format(timeFormat),
	}
}
