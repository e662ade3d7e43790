// Package passive provides a no-op restriction authority for setups where an
// external agent enforces restrictions by watching the shared snapshot store.
// It logs every call but performs no action.
package passive

import (
	"context"
	"log/slog"

	"focusgate/internal/core"
)

const AuthorityName = "passive"

// Authority implements core.RestrictionAuthority with no-op behavior
type Authority struct {
	logger *slog.Logger
}

// New creates a new passive authority
func New(logger *slog.Logger) *Authority {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authority{
		logger: logger.With("authority", AuthorityName),
	}
}

// Name returns the authority name
func (a *Authority) Name() string {
	return AuthorityName
}

// Apply logs the restriction but performs no action
func (a *Authority) Apply(ctx context.Context, profile *core.Profile) error {
	a.logger.Info("Passive authority: restrictions applied",
		"profile_id", profile.ID,
		"targets", len(profile.Targets),
	)
	return nil
}

// Remove logs the removal but performs no action
func (a *Authority) Remove(ctx context.Context, profile *core.Profile) error {
	a.logger.Info("Passive authority: restrictions removed",
		"profile_id", profile.ID,
	)
	return nil
}

var _ core.RestrictionAuthority = (*Authority)(nil)
