package core

import (
	"fmt"
	"time"
)

// TimeWindow is a daily interval in minutes since local midnight. A window
// whose end is before its start runs overnight. Weekdays use time.Weekday
// numbering (0 = Sunday) and name the day the window opens on; an empty list
// means every day.
type TimeWindow struct {
	StartMinute int
	EndMinute   int
	Weekdays    []time.Weekday
}

// Schedule is an ordered set of windows
type Schedule struct {
	Windows []TimeWindow
}

// Validate checks the bounds of every window
func (s *Schedule) Validate() error {
	for i, w := range s.Windows {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("window %d: %w", i, err)
		}
	}
	return nil
}

// Clone returns a deep copy
func (s *Schedule) Clone() *Schedule {
	out := &Schedule{Windows: make([]TimeWindow, len(s.Windows))}
	for i, w := range s.Windows {
		out.Windows[i] = TimeWindow{
			StartMinute: w.StartMinute,
			EndMinute:   w.EndMinute,
			Weekdays:    append([]time.Weekday(nil), w.Weekdays...),
		}
	}
	return out
}

// Validate checks a single window
func (w TimeWindow) Validate() error {
	if w.StartMinute < 0 || w.StartMinute >= minutesPerDay || w.EndMinute < 0 || w.EndMinute >= minutesPerDay {
		return fmt.Errorf("%w: minutes must be within 0..1439", ErrInvalidWindow)
	}
	if w.StartMinute == w.EndMinute {
		return fmt.Errorf("%w: start equals end", ErrInvalidWindow)
	}
	for _, d := range w.Weekdays {
		if d < time.Sunday || d > time.Saturday {
			return fmt.Errorf("%w: weekday %d", ErrInvalidWindow, d)
		}
	}
	return nil
}

// Overnight returns true if the window crosses midnight
func (w TimeWindow) Overnight() bool {
	return w.StartMinute > w.EndMinute
}

func (w TimeWindow) appliesOn(day time.Weekday) bool {
	if len(w.Weekdays) == 0 {
		return true
	}
	for _, d := range w.Weekdays {
		if d == day {
			return true
		}
	}
	return false
}

// Contains reports whether t (already in the schedule's location) falls in
// the window
func (w TimeWindow) Contains(t time.Time) bool {
	minute := t.Hour()*60 + t.Minute()
	if !w.Overnight() {
		return minute >= w.StartMinute && minute < w.EndMinute && w.appliesOn(t.Weekday())
	}
	// Evening part belongs to today, morning part to the window that opened yesterday
	if minute >= w.StartMinute {
		return w.appliesOn(t.Weekday())
	}
	if minute < w.EndMinute {
		return w.appliesOn(t.AddDate(0, 0, -1).Weekday())
	}
	return false
}

// ScheduleService evaluates schedules in a fixed timezone
type ScheduleService struct {
	timezone *time.Location
}

// NewScheduleService creates a new schedule service
func NewScheduleService(timezone *time.Location) *ScheduleService {
	if timezone == nil {
		timezone = time.UTC
	}
	return &ScheduleService{timezone: timezone}
}

// Timezone returns the configured location
func (s *ScheduleService) Timezone() *time.Location {
	return s.timezone
}

// IsInWindow reports whether now falls inside any of the schedule's windows
func (s *ScheduleService) IsInWindow(schedule *Schedule, now time.Time) bool {
	_, ok := s.ActiveWindow(schedule, now)
	return ok
}

// ActiveWindow returns the first window containing now
func (s *ScheduleService) ActiveWindow(schedule *Schedule, now time.Time) (TimeWindow, bool) {
	if schedule == nil {
		return TimeWindow{}, false
	}
	local := now.In(s.timezone)
	for _, w := range schedule.Windows {
		if w.Contains(local) {
			return w, true
		}
	}
	return TimeWindow{}, false
}

// WindowStart returns when the occurrence of the window containing now
// opened. For the morning part of an overnight window that is the previous
// day. Returns zero time if now is outside every window.
func (s *ScheduleService) WindowStart(schedule *Schedule, now time.Time) time.Time {
	w, ok := s.ActiveWindow(schedule, now)
	if !ok {
		return time.Time{}
	}
	local := now.In(s.timezone)
	start := time.Date(local.Year(), local.Month(), local.Day(), w.StartMinute/60, w.StartMinute%60, 0, 0, s.timezone)
	if start.After(local) {
		start = start.AddDate(0, 0, -1)
	}
	return start
}

// WindowEnd returns when the window containing now closes. Returns zero time
// if now is outside every window.
func (s *ScheduleService) WindowEnd(schedule *Schedule, now time.Time) time.Time {
	w, ok := s.ActiveWindow(schedule, now)
	if !ok {
		return time.Time{}
	}
	local := now.In(s.timezone)
	end := time.Date(local.Year(), local.Month(), local.Day(), w.EndMinute/60, w.EndMinute%60, 0, 0, s.timezone)
	if !end.After(local) {
		end = end.AddDate(0, 0, 1)
	}
	return end
}
