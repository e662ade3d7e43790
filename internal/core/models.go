package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"focusgate/internal/token"
)

// StrategyKind identifies how a profile's sessions may be started and ended
type StrategyKind string

const (
	StrategyManual   StrategyKind = "manual"
	StrategyNFC      StrategyKind = "nfc"
	StrategyQR       StrategyKind = "qr"
	StrategySchedule StrategyKind = "schedule"
)

// IsPhysicalToken reports whether ending a session requires a scanned token
func (k StrategyKind) IsPhysicalToken() bool {
	return k == StrategyNFC || k == StrategyQR
}

// Valid reports whether k is a known strategy
func (k StrategyKind) Valid() bool {
	switch k {
	case StrategyManual, StrategyNFC, StrategyQR, StrategySchedule:
		return true
	}
	return false
}

const (
	maxNameLength        = 256
	maxBreakMinutes      = 240
	minutesPerDay        = 24 * 60
	defaultBreakDuration = 15
)

// Profile is a named restriction configuration
type Profile struct {
	ID                    string
	Name                  string
	Targets               []string // opaque to the engine, passed to the restriction authority
	Strategy              StrategyKind
	StrategyData          string // registered token for nfc/qr profiles
	EnableBreaks          bool
	BreakDurationMinutes  int
	EnableStrictMode      bool
	EnableLiveActivity    bool
	ReminderOffsetMinutes int
	CustomReminderMessage string
	Schedule              *Schedule
	Order                 int
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Session is one continuous, possibly paused, restriction period
type Session struct {
	ID             string
	ProfileID      string
	Tag            string // "<strategy>:<invocation id>"
	StartTime      time.Time
	EndTime        *time.Time
	BreakStartTime *time.Time
	BreakEndTime   *time.Time
	ForceStarted   bool
}

// Validation errors
var (
	ErrInvalidName          = errors.New("profile name cannot be empty")
	ErrNameTooLong          = errors.New("profile name is too long")
	ErrInvalidStrategy      = errors.New("unknown blocking strategy")
	ErrMissingToken         = errors.New("physical-token profiles need a registered token")
	ErrInvalidBreakDuration = errors.New("break duration must be between 1 and 240 minutes")
	ErrInvalidReminder      = errors.New("reminder offset cannot be negative")
	ErrInvalidWindow        = errors.New("invalid schedule window")
	ErrScheduleRequired     = errors.New("schedule strategy requires at least one window")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrSessionNotFound      = errors.New("session not found")
)

// Validate validates a Profile
func (p *Profile) Validate() error {
	name := strings.TrimSpace(p.Name)
	if name == "" {
		return ErrInvalidName
	}
	if len(name) > maxNameLength {
		return ErrNameTooLong
	}
	if !p.Strategy.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidStrategy, p.Strategy)
	}
	if p.Strategy.IsPhysicalToken() {
		if p.StrategyData == "" {
			return ErrMissingToken
		}
		policy, err := token.PolicyFor(token.Kind(p.Strategy))
		if err != nil {
			return err
		}
		if _, err := policy.Process(p.StrategyData); err != nil {
			return fmt.Errorf("registered token: %w", err)
		}
	}
	if p.EnableBreaks && (p.BreakDurationMinutes <= 0 || p.BreakDurationMinutes > maxBreakMinutes) {
		return ErrInvalidBreakDuration
	}
	if p.ReminderOffsetMinutes < 0 {
		return ErrInvalidReminder
	}
	if p.Schedule != nil {
		if err := p.Schedule.Validate(); err != nil {
			return err
		}
	}
	if p.Strategy == StrategySchedule && !p.HasSchedule() {
		return ErrScheduleRequired
	}
	return nil
}

// ApplyDefaults fills zero values that have a sensible default
func (p *Profile) ApplyDefaults() {
	if p.Strategy == "" {
		p.Strategy = StrategyManual
	}
	if p.EnableBreaks && p.BreakDurationMinutes == 0 {
		p.BreakDurationMinutes = defaultBreakDuration
	}
}

// HasSchedule reports whether the profile has at least one window
func (p *Profile) HasSchedule() bool {
	return p.Schedule != nil && len(p.Schedule.Windows) > 0
}

// BreakAllowance is the configured break length
func (p *Profile) BreakAllowance() time.Duration {
	return time.Duration(p.BreakDurationMinutes) * time.Minute
}

// IsActive returns true while the session has not ended
func (s *Session) IsActive() bool {
	return s.EndTime == nil
}

// IsOnBreak returns true while a break is in progress
func (s *Session) IsOnBreak() bool {
	return s.IsActive() && s.BreakStartTime != nil && s.BreakEndTime == nil
}

// HadBreak returns true once a break has been started in this session
func (s *Session) HadBreak() bool {
	return s.BreakStartTime != nil
}

// StrategyFromTag extracts the strategy recorded in the session tag
func (s *Session) StrategyFromTag() StrategyKind {
	kind, _, _ := strings.Cut(s.Tag, ":")
	return StrategyKind(kind)
}

// IsScheduled returns true for sessions started by the schedule reconciler
func (s *Session) IsScheduled() bool {
	return s.StrategyFromTag() == StrategySchedule
}

// Clone returns a deep copy so callers never share pointers with the engine
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.EndTime = copyTime(s.EndTime)
	c.BreakStartTime = copyTime(s.BreakStartTime)
	c.BreakEndTime = copyTime(s.BreakEndTime)
	return &c
}

// Clone returns a deep copy of the profile
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Targets = append([]string(nil), p.Targets...)
	if p.Schedule != nil {
		c.Schedule = p.Schedule.Clone()
	}
	return &c
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
