package logging

import (
	"context"
	"log/slog"
	"time"

	"focusgate/internal/core"
)

// EngineLogger wraps a session engine and logs every operation with its
// duration. Scanned tokens are never logged, only their length.
type EngineLogger struct {
	engine core.SessionEngineInterface
	logger *slog.Logger
}

// NewEngineLogger creates a new logging decorator for the session engine
func NewEngineLogger(engine core.SessionEngineInterface, logger *slog.Logger) core.SessionEngineInterface {
	return &EngineLogger{
		engine: engine,
		logger: logger.With("interface", "SessionEngine"),
	}
}

// sessionResult logs the outcome of an operation returning a session
func (l *EngineLogger) sessionResult(op string, start time.Time, session *core.Session, err error, attrs ...any) {
	duration := time.Since(start)
	if err != nil {
		l.logger.Error(op+" failed", append(attrs,
			"duration", duration,
			"kind", kindName(err),
			"error", err)...)
		return
	}
	l.logger.Info(op+" completed", append(attrs,
		"session_id", session.ID,
		"profile_id", session.ProfileID,
		"duration", duration)...)
}

func (l *EngineLogger) Start(ctx context.Context, profileID string, req core.StartRequest) (*core.Session, error) {
	start := time.Now()
	l.logger.Info("Start called", "profile_id", profileID, "force", req.Force)

	session, err := l.engine.Start(ctx, profileID, req)
	l.sessionResult("Start", start, session, err, "requested_profile_id", profileID)
	return session, err
}

func (l *EngineLogger) ToggleBreak(ctx context.Context, on bool) (*core.Session, error) {
	start := time.Now()
	l.logger.Info("ToggleBreak called", "on", on)

	session, err := l.engine.ToggleBreak(ctx, on)
	l.sessionResult("ToggleBreak", start, session, err, "on", on)
	return session, err
}

func (l *EngineLogger) Stop(ctx context.Context, token string) (*core.Session, error) {
	start := time.Now()
	l.logger.Info("Stop called", "token_length", len(token))

	session, err := l.engine.Stop(ctx, token)
	l.sessionResult("Stop", start, session, err)
	return session, err
}

func (l *EngineLogger) EmergencyUnblock(ctx context.Context) (*core.Session, error) {
	start := time.Now()
	l.logger.Info("EmergencyUnblock called")

	session, err := l.engine.EmergencyUnblock(ctx)
	l.sessionResult("EmergencyUnblock", start, session, err)
	return session, err
}

func (l *EngineLogger) StartScheduled(ctx context.Context, profileID string) (bool, error) {
	start := time.Now()
	started, err := l.engine.StartScheduled(ctx, profileID)
	if err != nil {
		l.logger.Error("StartScheduled failed",
			"profile_id", profileID,
			"duration", time.Since(start),
			"kind", kindName(err),
			"error", err)
		return started, err
	}
	if started {
		l.logger.Info("StartScheduled completed", "profile_id", profileID, "duration", time.Since(start))
	}
	return started, nil
}

func (l *EngineLogger) StopScheduled(ctx context.Context, profileID string) (bool, error) {
	start := time.Now()
	stopped, err := l.engine.StopScheduled(ctx, profileID)
	if err != nil {
		l.logger.Error("StopScheduled failed",
			"profile_id", profileID,
			"duration", time.Since(start),
			"error", err)
		return stopped, err
	}
	if stopped {
		l.logger.Info("StopScheduled completed", "profile_id", profileID, "duration", time.Since(start))
	}
	return stopped, nil
}

func (l *EngineLogger) Restore(ctx context.Context) (core.SlotAction, error) {
	start := time.Now()
	l.logger.Info("Restore called")

	action, err := l.engine.Restore(ctx)
	if err != nil {
		l.logger.Error("Restore failed", "duration", time.Since(start), "error", err)
		return action, err
	}
	l.logger.Info("Restore completed", "action", action, "duration", time.Since(start))
	return action, nil
}

func (l *EngineLogger) Flush(ctx context.Context) error {
	err := l.engine.Flush(ctx)
	if err != nil {
		l.logger.Warn("Flush incomplete", "error", err)
	}
	return err
}

// Status and ActiveProfileID are queried every tick and are not logged
func (l *EngineLogger) Status() core.Status {
	return l.engine.Status()
}

func (l *EngineLogger) ActiveProfileID() string {
	return l.engine.ActiveProfileID()
}

func kindName(err error) string {
	switch core.KindOf(err) {
	case core.ErrValidation:
		return "validation"
	case core.ErrStateConflict:
		return "state_conflict"
	case core.ErrQuotaExhausted:
		return "quota_exhausted"
	case core.ErrPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

var _ core.SessionEngineInterface = (*EngineLogger)(nil)
