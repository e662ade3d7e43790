package strategy

import (
	"context"
	"log/slog"

	"focusgate/internal/core"
)

// Schedule is used only by the schedule reconciler; the schedule itself is
// the authority, so both operations succeed
type Schedule struct {
	logger *slog.Logger
}

// NewSchedule creates the schedule-driven strategy
func NewSchedule(logger *slog.Logger) *Schedule {
	if logger == nil {
		logger = slog.Default()
	}
	return &Schedule{logger: logger.With("strategy", core.StrategySchedule)}
}

// Kind returns core.StrategySchedule
func (s *Schedule) Kind() core.StrategyKind {
	return core.StrategySchedule
}

// BeginSession always succeeds
func (s *Schedule) BeginSession(ctx context.Context, profile *core.Profile, req core.StartRequest) core.StartOutcome {
	return core.StartAccepted
}

// RequestEnd always succeeds
func (s *Schedule) RequestEnd(ctx context.Context, profile *core.Profile, session *core.Session, token string) core.EndOutcome {
	return core.EndAccepted
}

var (
	_ core.BlockingStrategy = (*Manual)(nil)
	_ core.BlockingStrategy = (*PhysicalToken)(nil)
	_ core.BlockingStrategy = (*Schedule)(nil)
)
