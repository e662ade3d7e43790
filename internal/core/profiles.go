package core

import (
	"context"
	"fmt"
	"log/slog"

	"focusgate/internal/clock"
	"focusgate/internal/idgen"
)

// ProfileStore is the durable profile storage
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile *Profile) error
	GetProfile(ctx context.Context, id string) (*Profile, error)
	ListProfiles(ctx context.Context) ([]*Profile, error)
	UpdateProfile(ctx context.Context, profile *Profile) error
	DeleteProfile(ctx context.Context, id string) error
}

// ActiveSessionChecker reports which profile currently has a running session
type ActiveSessionChecker interface {
	ActiveProfileID() string
}

// ProfileUpdate is a partial update. Nil fields are left unchanged.
type ProfileUpdate struct {
	Name                  *string
	Targets               []string
	Strategy              *StrategyKind
	StrategyData          *string
	EnableBreaks          *bool
	BreakDurationMinutes  *int
	EnableStrictMode      *bool
	EnableLiveActivity    *bool
	ReminderOffsetMinutes *int
	CustomReminderMessage *string
	Schedule              *Schedule
	ClearSchedule         bool
	Order                 *int
}

// ProfileService manages profiles in the durable store and mirrors every
// change into the snapshot store for out-of-process readers
type ProfileService struct {
	store     ProfileStore
	snapshots SnapshotStore
	active    ActiveSessionChecker
	clock     clock.Clock
	logger    *slog.Logger
}

// NewProfileService creates a new profile service
func NewProfileService(store ProfileStore, snapshots SnapshotStore, active ActiveSessionChecker, clk clock.Clock, logger *slog.Logger) *ProfileService {
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileService{
		store:     store,
		snapshots: snapshots,
		active:    active,
		clock:     clk,
		logger:    logger.With("component", "profiles"),
	}
}

// Create validates and stores a new profile
func (s *ProfileService) Create(ctx context.Context, profile *Profile) (*Profile, error) {
	p := profile.Clone()
	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	if p.ID == "" {
		p.ID = idgen.NewProfile()
	}
	now := s.clock.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	if err := s.store.CreateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	s.mirror(p)

	s.logger.Info("Profile created", "profile_id", p.ID, "strategy", p.Strategy)
	return p, nil
}

// Get returns a profile by ID
func (s *ProfileService) Get(ctx context.Context, id string) (*Profile, error) {
	return s.store.GetProfile(ctx, id)
}

// List returns all profiles in display order
func (s *ProfileService) List(ctx context.Context) ([]*Profile, error) {
	return s.store.ListProfiles(ctx)
}

// Update applies a partial update. A running session keeps the profile
// configuration it started with.
func (s *ProfileService) Update(ctx context.Context, id string, upd ProfileUpdate) (*Profile, error) {
	p, err := s.store.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		p.Name = *upd.Name
	}
	if upd.Targets != nil {
		p.Targets = append([]string(nil), upd.Targets...)
	}
	if upd.Strategy != nil {
		p.Strategy = *upd.Strategy
	}
	if upd.StrategyData != nil {
		p.StrategyData = *upd.StrategyData
	}
	if upd.EnableBreaks != nil {
		p.EnableBreaks = *upd.EnableBreaks
	}
	if upd.BreakDurationMinutes != nil {
		p.BreakDurationMinutes = *upd.BreakDurationMinutes
	}
	if upd.EnableStrictMode != nil {
		p.EnableStrictMode = *upd.EnableStrictMode
	}
	if upd.EnableLiveActivity != nil {
		p.EnableLiveActivity = *upd.EnableLiveActivity
	}
	if upd.ReminderOffsetMinutes != nil {
		p.ReminderOffsetMinutes = *upd.ReminderOffsetMinutes
	}
	if upd.CustomReminderMessage != nil {
		p.CustomReminderMessage = *upd.CustomReminderMessage
	}
	if upd.ClearSchedule {
		p.Schedule = nil
	} else if upd.Schedule != nil {
		p.Schedule = upd.Schedule.Clone()
	}
	if upd.Order != nil {
		p.Order = *upd.Order
	}

	p.ApplyDefaults()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrValidation, err)
	}
	p.UpdatedAt = s.clock.Now().UTC()

	if err := s.store.UpdateProfile(ctx, p); err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}
	s.mirror(p)

	s.logger.Info("Profile updated", "profile_id", p.ID)
	return p, nil
}

// Delete removes a profile. A profile with a running session cannot be deleted.
func (s *ProfileService) Delete(ctx context.Context, id string) error {
	if s.active != nil && s.active.ActiveProfileID() == id {
		return fmt.Errorf("%w: profile %s has an active session", ErrStateConflict, id)
	}
	if err := s.store.DeleteProfile(ctx, id); err != nil {
		return err
	}
	if err := s.snapshots.RemoveProfile(id); err != nil {
		s.logger.Warn("Failed to remove profile snapshot", "profile_id", id, "error", err)
	}

	s.logger.Info("Profile deleted", "profile_id", id)
	return nil
}

// SyncSnapshots rewrites the snapshot directory from the durable store,
// repairing writes that failed earlier
func (s *ProfileService) SyncSnapshots(ctx context.Context) error {
	profiles, err := s.store.ListProfiles(ctx)
	if err != nil {
		return fmt.Errorf("failed to list profiles: %w", err)
	}

	known := make(map[string]bool, len(profiles))
	for _, p := range profiles {
		known[p.ID] = true
		if err := s.snapshots.PutProfile(ProfileToSnapshot(p)); err != nil {
			return fmt.Errorf("%w: %w", ErrPersistence, err)
		}
	}

	mirrored, err := s.snapshots.ListProfiles()
	if err != nil {
		// an unreadable directory was just rewritten by PutProfile or stays empty
		return nil
	}
	for _, snap := range mirrored {
		if !known[snap.ID] {
			if err := s.snapshots.RemoveProfile(snap.ID); err != nil {
				return fmt.Errorf("%w: %w", ErrPersistence, err)
			}
		}
	}
	return nil
}

func (s *ProfileService) mirror(p *Profile) {
	if err := s.snapshots.PutProfile(ProfileToSnapshot(p)); err != nil {
		s.logger.Warn("Failed to mirror profile snapshot", "profile_id", p.ID, "error", err)
	}
}
