package core

import "context"

// StartRequest carries the caller's intent for a new session
type StartRequest struct {
	// Force marks a human override. Forced sessions are never touched by the
	// schedule reconciler and let schedule-driven profiles be started by hand.
	Force bool
}

// StartOutcome is the single result of BlockingStrategy.BeginSession
type StartOutcome struct {
	Accepted bool
	Reason   string
}

// EndOutcome is the single result of BlockingStrategy.RequestEnd
type EndOutcome struct {
	Accepted bool
	Reason   string
}

// Accepted outcomes
var (
	StartAccepted = StartOutcome{Accepted: true}
	EndAccepted   = EndOutcome{Accepted: true}
)

// StartRejected builds a rejected start outcome
func StartRejected(reason string) StartOutcome {
	return StartOutcome{Reason: reason}
}

// EndRejected builds a rejected end outcome
func EndRejected(reason string) EndOutcome {
	return EndOutcome{Reason: reason}
}

// BlockingStrategy gates how a session is started and ended
type BlockingStrategy interface {
	Kind() StrategyKind
	BeginSession(ctx context.Context, profile *Profile, req StartRequest) StartOutcome
	RequestEnd(ctx context.Context, profile *Profile, session *Session, token string) EndOutcome
}

// StrategyRegistry resolves strategies by kind
type StrategyRegistry interface {
	Get(kind StrategyKind) (BlockingStrategy, error)
}
