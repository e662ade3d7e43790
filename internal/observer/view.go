// Package observer is the read-only side of the snapshot store used by
// widget and live-activity processes. It never constructs an engine.
package observer

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"focusgate/internal/snapshot"
)

// Display states
const (
	StateIdle        = "idle"
	StateActive      = "active"
	StateOnBreak     = "on_break"
	StateUnavailable = "unavailable"
)

// View is what a live display shows at one instant
type View struct {
	State          string
	SessionID      string
	ProfileID      string
	ProfileName    string
	Strategy       string
	Targets        int
	Elapsed        time.Duration
	EffectiveStart time.Time
	BreakRemaining time.Duration
	StrictMode     bool
	Scheduled      bool
	Forced         bool
	// StaleProfile is set when the session's profile is missing from the
	// directory; the session is still shown.
	StaleProfile bool
	At           time.Time
}

// Active reports whether a session is running, on break or not
func (v View) Active() bool {
	return v.State == StateActive || v.State == StateOnBreak
}

// Build reads the active slot and its profile and derives the display. An
// unreadable active slot is returned as an error wrapping
// snapshot.ErrUnavailable; an unreadable profile directory only marks the
// profile as stale.
func Build(r snapshot.Reader, now time.Time) (View, error) {
	v := View{State: StateIdle, At: now}

	active, err := r.GetActiveSession()
	if err != nil {
		v.State = StateUnavailable
		return v, fmt.Errorf("read active session: %w", err)
	}
	if active == nil || !active.IsActive() {
		return v, nil
	}

	kind, _, _ := strings.Cut(active.Tag, ":")
	v.State = StateActive
	v.SessionID = active.ID
	v.ProfileID = active.BlockedProfileID
	v.Strategy = kind
	v.Scheduled = kind == "schedule"
	v.Forced = active.ForceStarted
	v.EffectiveStart = active.EffectiveStartTime
	v.Elapsed = active.DisplayElapsed(now)

	profile, err := r.GetProfile(active.BlockedProfileID)
	if err != nil && !errors.Is(err, snapshot.ErrUnavailable) {
		return v, fmt.Errorf("read profile directory: %w", err)
	}
	if profile == nil {
		v.StaleProfile = true
		v.ProfileName = active.BlockedProfileID
	} else {
		v.ProfileName = profile.Name
		v.Targets = len(profile.Targets)
		v.StrictMode = profile.EnableStrictMode
	}

	if active.IsOnBreak() {
		v.State = StateOnBreak
		if profile != nil {
			allowance := time.Duration(profile.BreakDurationMinutes) * time.Minute
			if remaining := allowance - now.Sub(*active.BreakStartTime); remaining > 0 {
				v.BreakRemaining = remaining
			}
		}
	}
	return v, nil
}
