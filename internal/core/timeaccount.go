package core

import (
	"log/slog"
	"time"
)

// ActiveElapsed returns the active (non-break) time of a session at now.
//
// Without a break it is now-start. While a break is in progress the timer is
// frozen at breakStart-start. After the break it is (now-start) minus the
// break length. A result that would be negative is clamped to zero and
// reported through anomaly.
func ActiveElapsed(start time.Time, breakStart, breakEnd *time.Time, now time.Time) (elapsed time.Duration, anomaly bool) {
	switch {
	case breakStart == nil:
		elapsed = now.Sub(start)
	case breakEnd == nil:
		elapsed = breakStart.Sub(start)
	default:
		elapsed = now.Sub(start) - breakEnd.Sub(*breakStart)
	}
	if elapsed < 0 {
		return 0, true
	}
	return elapsed, false
}

// BreakDuration returns the length of a completed break. An open or absent
// break counts as zero.
func BreakDuration(breakStart, breakEnd *time.Time) (d time.Duration, anomaly bool) {
	if breakStart == nil || breakEnd == nil {
		return 0, false
	}
	d = breakEnd.Sub(*breakStart)
	if d < 0 {
		return 0, true
	}
	return d, false
}

// EffectiveStart is start shifted by the completed break, so that a live
// display counting up from it shows active time without polling.
func EffectiveStart(start time.Time, breakStart, breakEnd *time.Time) time.Time {
	d, _ := BreakDuration(breakStart, breakEnd)
	return start.Add(d)
}

// TimeAccountant wraps the duration math and logs negative results as defects
type TimeAccountant struct {
	logger *slog.Logger
}

// NewTimeAccountant creates a new time accountant
func NewTimeAccountant(logger *slog.Logger) *TimeAccountant {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimeAccountant{logger: logger.With("component", "time-accountant")}
}

// Elapsed returns the session's active time at now
func (a *TimeAccountant) Elapsed(s *Session, now time.Time) time.Duration {
	if s == nil {
		return 0
	}
	at := now
	if s.EndTime != nil {
		at = *s.EndTime
	}
	elapsed, anomaly := ActiveElapsed(s.StartTime, s.BreakStartTime, s.BreakEndTime, at)
	if anomaly {
		a.logger.Error("Negative duration anomaly",
			"kind", "elapsed",
			"session_id", s.ID,
			"start_time", s.StartTime,
			"now", at,
		)
	}
	return elapsed
}

// BreakTaken returns the length of the session's completed break
func (a *TimeAccountant) BreakTaken(s *Session) time.Duration {
	if s == nil {
		return 0
	}
	d, anomaly := BreakDuration(s.BreakStartTime, s.BreakEndTime)
	if anomaly {
		a.logger.Error("Negative duration anomaly",
			"kind", "break",
			"session_id", s.ID,
			"break_start", s.BreakStartTime,
			"break_end", s.BreakEndTime,
		)
	}
	return d
}

// EffectiveStart returns the session's effective start time
func (a *TimeAccountant) EffectiveStart(s *Session) time.Time {
	return s.StartTime.Add(a.BreakTaken(s))
}
