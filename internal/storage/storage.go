// Package storage defines the durable store. It keeps profiles, the archive
// of ended sessions and the emergency unblock quota. The shared snapshot
// store is a separate contract with different consistency needs.
package storage

import (
	"context"

	"focusgate/internal/core"
)

// Storage defines the interface for data persistence
type Storage interface {
	// Profiles
	core.ProfileStore

	// Sessions
	UpsertSession(ctx context.Context, session *core.Session) error
	UpsertSessions(ctx context.Context, sessions []*core.Session) error
	GetSession(ctx context.Context, id string) (*core.Session, error)
	ListSessionsByProfile(ctx context.Context, profileID string, limit int) ([]*core.Session, error)

	// Emergency unblock quota
	core.QuotaStore

	// Lifecycle
	Close() error
}
