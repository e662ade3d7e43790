package strategy

import (
	"context"
	"errors"
	"log/slog"

	"focusgate/internal/core"
	"focusgate/internal/token"
)

// PhysicalToken blocks optimistically and ends only when the scanned token
// matches the one registered on the profile
type PhysicalToken struct {
	kind   core.StrategyKind
	policy token.Policy
	logger *slog.Logger
}

// NewNFC creates the NFC tag strategy
func NewNFC(logger *slog.Logger) *PhysicalToken {
	return newPhysicalToken(core.StrategyNFC, token.NFCPolicy, logger)
}

// NewQR creates the QR code strategy
func NewQR(logger *slog.Logger) *PhysicalToken {
	return newPhysicalToken(core.StrategyQR, token.QRPolicy, logger)
}

func newPhysicalToken(kind core.StrategyKind, policy token.Policy, logger *slog.Logger) *PhysicalToken {
	if logger == nil {
		logger = slog.Default()
	}
	return &PhysicalToken{
		kind:   kind,
		policy: policy,
		logger: logger.With("strategy", kind),
	}
}

// Kind returns the token kind this strategy was built for
func (p *PhysicalToken) Kind() core.StrategyKind {
	return p.kind
}

// BeginSession succeeds immediately; the token is only needed to end
func (p *PhysicalToken) BeginSession(ctx context.Context, profile *core.Profile, req core.StartRequest) core.StartOutcome {
	return core.StartAccepted
}

// RequestEnd validates the scanned token and compares it with the registered one
func (p *PhysicalToken) RequestEnd(ctx context.Context, profile *core.Profile, session *core.Session, raw string) core.EndOutcome {
	err := p.policy.Match(raw, profile.StrategyData)
	if err == nil {
		return core.EndAccepted
	}

	p.logger.Warn("End request rejected",
		"profile_id", profile.ID,
		"session_id", session.ID,
		"error", err,
	)

	switch {
	case errors.Is(err, token.ErrMismatch):
		return core.EndRejected("scanned " + string(p.kind) + " token does not match this profile")
	case errors.Is(err, token.ErrInjection):
		return core.EndRejected("scanned token contains forbidden characters")
	case errors.Is(err, token.ErrEmpty):
		return core.EndRejected("no token was scanned")
	default:
		return core.EndRejected("scanned token is invalid: " + err.Error())
	}
}
