package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"
)

var (
	// ErrUnavailable means a value exists but cannot be used (corrupt or
	// written by a newer schema). Callers treat it like a missing value.
	ErrUnavailable = errors.New("snapshot value unavailable")
	// ErrNoActiveSession is returned by PatchActiveSession when the slot is empty
	ErrNoActiveSession = errors.New("no active session snapshot")
)

// DefaultMaxCompleted bounds the completed-session list
const DefaultMaxCompleted = 200

// Writer is the main-process contract
type Writer interface {
	PutProfile(p ProfileSnapshot) error
	RemoveProfile(id string) error
	SetActiveSession(s *SessionSnapshot) error
	PatchActiveSession(patch Patch) error
	AppendCompletedSession(s SessionSnapshot) error
}

// Reader is the extension-process contract
type Reader interface {
	GetProfile(id string) (*ProfileSnapshot, error)
	ListProfiles() ([]ProfileSnapshot, error)
	GetActiveSession() (*SessionSnapshot, error)
	ListCompletedSessions() ([]SessionSnapshot, error)
}

type envelope struct {
	SchemaVersion int             `json:"schemaVersion"`
	WrittenAt     time.Time       `json:"writtenAt"`
	Data          json.RawMessage `json:"data"`
}

// Store implements both contracts on top of a KV
type Store struct {
	kv           KV
	now          func() time.Time
	maxCompleted int
	logger       *slog.Logger
}

// Option configures a Store
type Option func(*Store)

// WithMaxCompleted overrides the completed-session cap
func WithMaxCompleted(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxCompleted = n
		}
	}
}

// WithNow overrides the envelope timestamp source
func WithNow(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// NewStore creates a snapshot store over kv
func NewStore(kv KV, logger *slog.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{
		kv:           kv,
		now:          time.Now,
		maxCompleted: DefaultMaxCompleted,
		logger:       logger.With("component", "snapshot"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// read decodes the value under key into out. found is false when the key is
// absent.
func (s *Store) read(key string, out any) (found bool, err error) {
	raw, err := s.kv.Get(key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
	}
	if env.SchemaVersion > SchemaVersion {
		return true, fmt.Errorf("%w: %s written with schema %d", ErrUnavailable, key, env.SchemaVersion)
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return true, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, err)
	}
	return true, nil
}

func (s *Store) write(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	payload, err := json.Marshal(envelope{
		SchemaVersion: SchemaVersion,
		WrittenAt:     s.now().UTC(),
		Data:          data,
	})
	if err != nil {
		return fmt.Errorf("marshal envelope %s: %w", key, err)
	}
	return s.kv.Set(key, payload)
}

// loadProfilesForWrite returns the current directory; an unusable value is
// replaced rather than blocking the writer
func (s *Store) loadProfilesForWrite() ([]ProfileSnapshot, error) {
	var profiles []ProfileSnapshot
	if _, err := s.read(KeyProfiles, &profiles); err != nil {
		if errors.Is(err, ErrUnavailable) {
			s.logger.Warn("Discarding unreadable profile directory", "error", err)
			return nil, nil
		}
		return nil, err
	}
	return profiles, nil
}

// PutProfile inserts or replaces one profile in the directory
func (s *Store) PutProfile(p ProfileSnapshot) error {
	profiles, err := s.loadProfilesForWrite()
	if err != nil {
		return err
	}

	replaced := false
	for i := range profiles {
		if profiles[i].ID == p.ID {
			profiles[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		profiles = append(profiles, p)
	}
	sortProfiles(profiles)

	return s.write(KeyProfiles, profiles)
}

// RemoveProfile deletes one profile from the directory. Removing an unknown id
// is a no-op.
func (s *Store) RemoveProfile(id string) error {
	profiles, err := s.loadProfilesForWrite()
	if err != nil {
		return err
	}

	kept := profiles[:0]
	for _, p := range profiles {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	return s.write(KeyProfiles, kept)
}

// SetActiveSession replaces the active slot; nil clears it
func (s *Store) SetActiveSession(sess *SessionSnapshot) error {
	if sess == nil {
		return s.kv.Delete(KeyActiveSession)
	}
	return s.write(KeyActiveSession, sess)
}

// PatchActiveSession is a read-modify-write of the whole active value
func (s *Store) PatchActiveSession(patch Patch) error {
	var active SessionSnapshot
	found, err := s.read(KeyActiveSession, &active)
	if err != nil {
		return err
	}
	if !found {
		return ErrNoActiveSession
	}

	if patch.BreakStartTime != nil {
		active.BreakStartTime = patch.BreakStartTime
	}
	if patch.BreakEndTime != nil {
		active.BreakEndTime = patch.BreakEndTime
	}
	if patch.EndTime != nil {
		active.EndTime = patch.EndTime
	}
	if patch.EffectiveStartTime != nil {
		active.EffectiveStartTime = *patch.EffectiveStartTime
	}

	return s.write(KeyActiveSession, &active)
}

// AppendCompletedSession adds an ended session to the completed list, keeping
// the most recent entries. Appending an id already present replaces it.
func (s *Store) AppendCompletedSession(sess SessionSnapshot) error {
	var completed []SessionSnapshot
	if _, err := s.read(KeyCompletedSessions, &completed); err != nil {
		if !errors.Is(err, ErrUnavailable) {
			return err
		}
		s.logger.Warn("Discarding unreadable completed list", "error", err)
		completed = nil
	}

	kept := completed[:0]
	for _, c := range completed {
		if c.ID != sess.ID {
			kept = append(kept, c)
		}
	}
	kept = append(kept, sess)
	if len(kept) > s.maxCompleted {
		kept = kept[len(kept)-s.maxCompleted:]
	}

	return s.write(KeyCompletedSessions, kept)
}

// GetProfile returns nil when the profile is not in the directory
func (s *Store) GetProfile(id string) (*ProfileSnapshot, error) {
	profiles, err := s.ListProfiles()
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i], nil
		}
	}
	return nil, nil
}

// ListProfiles returns the directory ordered by Order then ID
func (s *Store) ListProfiles() ([]ProfileSnapshot, error) {
	var profiles []ProfileSnapshot
	if _, err := s.read(KeyProfiles, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// GetActiveSession returns nil when no session is active
func (s *Store) GetActiveSession() (*SessionSnapshot, error) {
	var active SessionSnapshot
	found, err := s.read(KeyActiveSession, &active)
	if err != nil || !found {
		return nil, err
	}
	return &active, nil
}

// ListCompletedSessions returns completed sessions, oldest first
func (s *Store) ListCompletedSessions() ([]SessionSnapshot, error) {
	var completed []SessionSnapshot
	if _, err := s.read(KeyCompletedSessions, &completed); err != nil {
		return nil, err
	}
	return completed, nil
}

func sortProfiles(profiles []ProfileSnapshot) {
	sort.SliceStable(profiles, func(i, j int) bool {
		if profiles[i].Order != profiles[j].Order {
			return profiles[i].Order < profiles[j].Order
		}
		return profiles[i].ID < profiles[j].ID
	})
}

var (
	_ Writer = (*Store)(nil)
	_ Reader = (*Store)(nil)
)
