package core

import (
	"time"

	"focusgate/internal/snapshot"
)

// ProfileToSnapshot projects a profile for out-of-process readers
func ProfileToSnapshot(p *Profile) snapshot.ProfileSnapshot {
	snap := snapshot.ProfileSnapshot{
		ID:                    p.ID,
		Name:                  p.Name,
		Targets:               append([]string{}, p.Targets...),
		Strategy:              string(p.Strategy),
		StrategyData:          p.StrategyData,
		EnableBreaks:          p.EnableBreaks,
		BreakDurationMinutes:  p.BreakDurationMinutes,
		EnableStrictMode:      p.EnableStrictMode,
		EnableLiveActivity:    p.EnableLiveActivity,
		ReminderOffsetMinutes: p.ReminderOffsetMinutes,
		CustomReminderMessage: p.CustomReminderMessage,
		Schedule:              []snapshot.TimeWindowSnapshot{},
		Order:                 p.Order,
		CreatedAt:             p.CreatedAt.UTC(),
		UpdatedAt:             p.UpdatedAt.UTC(),
	}
	if p.Schedule != nil {
		for _, w := range p.Schedule.Windows {
			days := make([]int, 0, len(w.Weekdays))
			for _, d := range w.Weekdays {
				days = append(days, int(d))
			}
			snap.Schedule = append(snap.Schedule, snapshot.TimeWindowSnapshot{
				StartMinute: w.StartMinute,
				EndMinute:   w.EndMinute,
				Weekdays:    days,
			})
		}
	}
	return snap
}

// SessionToSnapshot projects a session. effectiveStart is computed by the
// caller through the accountant.
func SessionToSnapshot(s *Session, effectiveStart time.Time) snapshot.SessionSnapshot {
	return snapshot.SessionSnapshot{
		ID:                 s.ID,
		Tag:                s.Tag,
		BlockedProfileID:   s.ProfileID,
		StartTime:          s.StartTime.UTC(),
		EndTime:            utcPtr(s.EndTime),
		BreakStartTime:     utcPtr(s.BreakStartTime),
		BreakEndTime:       utcPtr(s.BreakEndTime),
		ForceStarted:       s.ForceStarted,
		EffectiveStartTime: effectiveStart.UTC(),
	}
}

// SessionFromSnapshot rebuilds a session from its projection
func SessionFromSnapshot(snap *snapshot.SessionSnapshot) *Session {
	return &Session{
		ID:             snap.ID,
		ProfileID:      snap.BlockedProfileID,
		Tag:            snap.Tag,
		StartTime:      snap.StartTime,
		EndTime:        copyTime(snap.EndTime),
		BreakStartTime: copyTime(snap.BreakStartTime),
		BreakEndTime:   copyTime(snap.BreakEndTime),
		ForceStarted:   snap.ForceStarted,
	}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
