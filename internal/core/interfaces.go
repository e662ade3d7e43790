package core

import "context"

// SessionEngineInterface defines the contract for driving the session state
// machine. Implemented by *Engine and by the logging decorator.
type SessionEngineInterface interface {
	Start(ctx context.Context, profileID string, req StartRequest) (*Session, error)
	ToggleBreak(ctx context.Context, on bool) (*Session, error)
	Stop(ctx context.Context, token string) (*Session, error)
	EmergencyUnblock(ctx context.Context) (*Session, error)
	StartScheduled(ctx context.Context, profileID string) (bool, error)
	StopScheduled(ctx context.Context, profileID string) (bool, error)
	Restore(ctx context.Context) (SlotAction, error)
	Flush(ctx context.Context) error
	Status() Status
	ActiveProfileID() string
}

var _ SessionEngineInterface = (*Engine)(nil)
