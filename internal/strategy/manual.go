package strategy

import (
	"context"
	"log/slog"

	"focusgate/internal/core"
)

// Manual starts and ends on request. Strict mode is enforced by the engine.
type Manual struct {
	logger *slog.Logger
}

// NewManual creates the manual strategy
func NewManual(logger *slog.Logger) *Manual {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manual{logger: logger.With("strategy", core.StrategyManual)}
}

// Kind returns core.StrategyManual
func (m *Manual) Kind() core.StrategyKind {
	return core.StrategyManual
}

// BeginSession always succeeds
func (m *Manual) BeginSession(ctx context.Context, profile *core.Profile, req core.StartRequest) core.StartOutcome {
	m.logger.Debug("Begin session", "profile_id", profile.ID, "force", req.Force)
	return core.StartAccepted
}

// RequestEnd always succeeds
func (m *Manual) RequestEnd(ctx context.Context, profile *core.Profile, session *core.Session, token string) core.EndOutcome {
	m.logger.Debug("End session", "profile_id", profile.ID, "session_id", session.ID)
	return core.EndAccepted
}
