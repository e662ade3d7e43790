// Package snapshot is the cross-process shared state surface. The main
// process writes whole values under a few well-known keys; widget and
// live-activity processes only read them.
//
// There is no cross-key transactionality. A reader may observe an active
// session whose profile has already been removed from the directory and must
// treat that as stale data, not as an error.
package snapshot

import "time"

// SchemaVersion is written into every envelope. Readers ignore values written
// with a newer schema.
const SchemaVersion = 1

// Well-known keys
const (
	KeyProfiles          = "profiles"
	KeyActiveSession     = "active_session"
	KeyCompletedSessions = "completed_sessions"
)

// TimeWindowSnapshot mirrors one schedule window
type TimeWindowSnapshot struct {
	StartMinute int   `json:"startMinute"`
	EndMinute   int   `json:"endMinute"`
	Weekdays    []int `json:"weekdays"`
}

// ProfileSnapshot is the read-only projection of a profile
type ProfileSnapshot struct {
	ID                    string               `json:"id"`
	Name                  string               `json:"name"`
	Targets               []string             `json:"targets"`
	Strategy              string               `json:"strategy"`
	StrategyData          string               `json:"strategyData"`
	EnableBreaks          bool                 `json:"enableBreaks"`
	BreakDurationMinutes  int                  `json:"breakDurationMinutes"`
	EnableStrictMode      bool                 `json:"enableStrictMode"`
	EnableLiveActivity    bool                 `json:"enableLiveActivity"`
	ReminderOffsetMinutes int                  `json:"reminderOffsetMinutes"`
	CustomReminderMessage string               `json:"customReminderMessage"`
	Schedule              []TimeWindowSnapshot `json:"schedule"`
	Order                 int                  `json:"order"`
	CreatedAt             time.Time            `json:"createdAt"`
	UpdatedAt             time.Time            `json:"updatedAt"`
}

// SessionSnapshot is the read-only projection of a session.
// EffectiveStartTime is StartTime shifted by the completed break duration; a
// live count-up display binds to it instead of StartTime.
type SessionSnapshot struct {
	ID                 string     `json:"id"`
	Tag                string     `json:"tag"`
	BlockedProfileID   string     `json:"blockedProfileId"`
	StartTime          time.Time  `json:"startTime"`
	EndTime            *time.Time `json:"endTime,omitempty"`
	BreakStartTime     *time.Time `json:"breakStartTime,omitempty"`
	BreakEndTime       *time.Time `json:"breakEndTime,omitempty"`
	ForceStarted       bool       `json:"forceStarted"`
	EffectiveStartTime time.Time  `json:"effectiveStartTime"`
}

// IsActive reports whether the session has not ended
func (s *SessionSnapshot) IsActive() bool {
	return s.EndTime == nil
}

// IsOnBreak reports whether a break is in progress
func (s *SessionSnapshot) IsOnBreak() bool {
	return s.IsActive() && s.BreakStartTime != nil && s.BreakEndTime == nil
}

// DisplayElapsed is the reader-side elapsed time for live displays. While on
// break the value is frozen at the break start.
func (s *SessionSnapshot) DisplayElapsed(now time.Time) time.Duration {
	var d time.Duration
	switch {
	case s.IsOnBreak():
		d = s.BreakStartTime.Sub(s.StartTime)
	case s.EndTime != nil:
		d = s.EndTime.Sub(s.EffectiveStartTime)
	default:
		d = now.Sub(s.EffectiveStartTime)
	}
	if d < 0 {
		return 0
	}
	return d
}

// Patch carries the fields of the active session the writer may change in
// place. Nil fields are left untouched.
type Patch struct {
	BreakStartTime     *time.Time
	BreakEndTime       *time.Time
	EndTime            *time.Time
	EffectiveStartTime *time.Time
}
