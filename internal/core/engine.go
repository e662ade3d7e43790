package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/idgen"
	"focusgate/internal/snapshot"
)

// State of the session engine
type State int

const (
	StateIdle State = iota
	StateActive
	StateOnBreak
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateOnBreak:
		return "on_break"
	case StateEnded:
		return "ended"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ProfileSource looks up profiles by ID. Returns ErrProfileNotFound when absent.
type ProfileSource interface {
	GetProfile(ctx context.Context, id string) (*Profile, error)
}

// SessionArchive is the durable store for ended sessions
type SessionArchive interface {
	UpsertSession(ctx context.Context, session *Session) error
}

// RestrictionAuthority enforces a profile's targets outside this process
type RestrictionAuthority interface {
	Name() string
	Apply(ctx context.Context, profile *Profile) error
	Remove(ctx context.Context, profile *Profile) error
}

// EmergencyQuota hands out emergency unblocks
type EmergencyQuota interface {
	Consume(ctx context.Context) (remaining int, err error)
}

// SnapshotStore is the part of the shared store the engine writes and reads back
type SnapshotStore interface {
	snapshot.Writer
	snapshot.Reader
}

// MetricsRecorder receives engine events
type MetricsRecorder interface {
	RecordTransition(op, outcome string)
	RecordEmergencyUnblock()
	RecordSnapshotWriteFailure(key string)
	SetSessionActive(active bool)
}

type nopMetrics struct{}

func (nopMetrics) RecordTransition(string, string)   {}
func (nopMetrics) RecordEmergencyUnblock()           {}
func (nopMetrics) RecordSnapshotWriteFailure(string) {}
func (nopMetrics) SetSessionActive(bool)             {}

// DefaultTickInterval is the display refresh granularity
const DefaultTickInterval = time.Second

// EngineConfig wires the engine's collaborators
type EngineConfig struct {
	Profiles     ProfileSource
	Strategies   StrategyRegistry
	Archive      SessionArchive
	Snapshots    SnapshotStore
	Quota        EmergencyQuota
	Restrictions RestrictionAuthority // optional
	Metrics      MetricsRecorder      // optional
	Clock        clock.Clock
	Logger       *slog.Logger
	TickInterval time.Duration
	// OnTick receives the recomputed status after every tick. It is called
	// without the engine lock held.
	OnTick func(Status)
}

// Status is a point-in-time view of the engine, recomputed on every query
type Status struct {
	State            State
	Session          *Session
	ProfileName      string
	Elapsed          time.Duration
	BreakTaken       time.Duration
	BreakRemaining   time.Duration
	EffectiveStart   time.Time
	IsBlocking       bool
	IsBreakAvailable bool
	StrictMode       bool
	PendingWrites    bool
	At               time.Time
}

// SlotAction is what Restore did with the shared active-session slot
type SlotAction string

const (
	SlotEmpty       SlotAction = "empty"
	SlotInSync      SlotAction = "in_sync"
	SlotRepublished SlotAction = "republished"
	SlotAdopted     SlotAction = "adopted"
	SlotOrphanEnded SlotAction = "orphan_ended"
	SlotStaleEnded  SlotAction = "stale_ended"
)

// Engine is the session state machine. It owns at most one active session for
// the whole process; every transition and every tick runs under one mutex.
type Engine struct {
	profiles     ProfileSource
	strategies   StrategyRegistry
	archive      SessionArchive
	snapshots    SnapshotStore
	quota        EmergencyQuota
	restrictions RestrictionAuthority
	metrics      MetricsRecorder
	clock        clock.Clock
	accountant   *TimeAccountant
	logger       *slog.Logger
	tickInterval time.Duration
	onTick       func(Status)

	mu               sync.Mutex
	session          *Session
	profile          *Profile
	stopTick         context.CancelFunc
	activeDirty      bool
	pendingCompleted []snapshot.SessionSnapshot
	restrictQueue    []restrictionJob

	// restrictMu orders calls to the restriction authority. It is never
	// acquired while mu is held.
	restrictMu sync.Mutex
}

// restrictionJob is an apply or remove queued under mu and run after it is
// released
type restrictionJob struct {
	apply   bool
	profile *Profile
}

// NewEngine creates a new session engine in the Idle state
func NewEngine(cfg EngineConfig) *Engine {
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopMetrics{}
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = DefaultTickInterval
	}
	return &Engine{
		profiles:     cfg.Profiles,
		strategies:   cfg.Strategies,
		archive:      cfg.Archive,
		snapshots:    cfg.Snapshots,
		quota:        cfg.Quota,
		restrictions: cfg.Restrictions,
		metrics:      cfg.Metrics,
		clock:        cfg.Clock,
		accountant:   NewTimeAccountant(cfg.Logger),
		logger:       cfg.Logger.With("component", "session-engine"),
		tickInterval: cfg.TickInterval,
		onTick:       cfg.OnTick,
	}
}

// Start begins a session for profileID using the profile's strategy
func (e *Engine) Start(ctx context.Context, profileID string, req StartRequest) (*Session, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.start(ctx, "start", profileID, req, false)
}

// StartScheduled begins a schedule-driven session. Returns false without error
// when a scheduled session for the profile is already running.
func (e *Engine) StartScheduled(ctx context.Context, profileID string) (bool, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session != nil && e.session.ProfileID == profileID && e.session.IsScheduled() {
		return false, nil
	}
	if _, err := e.start(ctx, "schedule_start", profileID, StartRequest{}, true); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) start(ctx context.Context, op, profileID string, req StartRequest, scheduled bool) (*Session, error) {
	if e.session != nil {
		return nil, e.reject(op, ErrStateConflict,
			fmt.Sprintf("session already active for profile %s", e.session.ProfileID), nil)
	}

	profile, err := e.profiles.GetProfile(ctx, profileID)
	if err != nil {
		if errors.Is(err, ErrProfileNotFound) {
			return nil, e.reject(op, ErrValidation, "profile not found", err)
		}
		return nil, e.reject(op, ErrPersistence, "failed to load profile", err)
	}

	kind := profile.Strategy
	switch {
	case scheduled:
		kind = StrategySchedule
	case profile.Strategy == StrategySchedule:
		if !req.Force {
			return nil, e.reject(op, ErrValidation, "schedule-driven profiles start with their schedule unless forced", nil)
		}
		kind = StrategyManual
	}

	strategy, err := e.strategies.Get(kind)
	if err != nil {
		return nil, e.reject(op, ErrValidation, "no strategy for profile", err)
	}
	if outcome := strategy.BeginSession(ctx, profile, req); !outcome.Accepted {
		return nil, e.reject(op, ErrValidation, outcome.Reason, nil)
	}

	now := e.clock.Now()
	session := &Session{
		ID:           idgen.NewSession(),
		ProfileID:    profile.ID,
		Tag:          string(kind) + ":" + idgen.NewTag(),
		StartTime:    now,
		ForceStarted: req.Force && !scheduled,
	}
	e.session = session
	e.profile = profile

	e.applyRestrictions(profile)
	e.publishActive()
	e.startTicker()
	e.metrics.SetSessionActive(true)
	e.metrics.RecordTransition(op, "accepted")

	e.logger.Info("Session started",
		"session_id", session.ID,
		"profile_id", profile.ID,
		"tag", session.Tag,
		"force_started", session.ForceStarted,
	)
	return session.Clone(), nil
}

// ToggleBreak starts (on) or ends (off) the session's single break
func (e *Engine) ToggleBreak(ctx context.Context, on bool) (*Session, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	op := "break_end"
	if on {
		op = "break_start"
	}
	if e.session == nil {
		return nil, e.reject(op, ErrStateConflict, "no active session", nil)
	}

	now := e.clock.Now()
	if !on {
		if !e.session.IsOnBreak() {
			return nil, e.reject(op, ErrStateConflict, "no break in progress", nil)
		}
		e.endBreak(now)
		e.metrics.RecordTransition(op, "accepted")
		return e.session.Clone(), nil
	}

	switch {
	case e.session.IsOnBreak():
		return nil, e.reject(op, ErrStateConflict, "break already in progress", nil)
	case !e.profile.EnableBreaks:
		return nil, e.reject(op, ErrStateConflict, "breaks are disabled for this profile", nil)
	case e.session.HadBreak():
		return nil, e.reject(op, ErrStateConflict, "break already taken in this session", nil)
	}

	e.session.BreakStartTime = &now
	e.removeRestrictions(e.profile)
	e.patchActive(snapshot.Patch{BreakStartTime: &now})
	e.metrics.RecordTransition(op, "accepted")

	e.logger.Info("Break started",
		"session_id", e.session.ID,
		"allowance", e.profile.BreakAllowance(),
	)
	return e.session.Clone(), nil
}

// Stop ends the session once its strategy accepts the end request. token is
// the raw captured string for physical-token profiles.
func (e *Engine) Stop(ctx context.Context, token string) (*Session, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "stop"
	if e.session == nil {
		return nil, e.reject(op, ErrStateConflict, "no active session", nil)
	}

	kind := e.session.StrategyFromTag()
	if kind == StrategySchedule {
		return nil, e.reject(op, ErrStateConflict, "scheduled sessions end with their window", nil)
	}
	if e.profile.EnableStrictMode && kind == StrategyManual {
		return nil, e.reject(op, ErrStateConflict, "strict mode is enabled, use an emergency unblock", nil)
	}

	strategy, err := e.strategies.Get(kind)
	if err != nil {
		return nil, e.reject(op, ErrValidation, "no strategy for session", err)
	}
	if outcome := strategy.RequestEnd(ctx, e.profile, e.session.Clone(), token); !outcome.Accepted {
		return nil, e.reject(op, ErrValidation, outcome.Reason, nil)
	}

	return e.finish(ctx, op), nil
}

// EmergencyUnblock ends the session without consulting its strategy. It
// consumes exactly one unit of quota and fails without side effects when
// none is left.
func (e *Engine) EmergencyUnblock(ctx context.Context) (*Session, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "emergency_unblock"
	if e.session == nil {
		return nil, e.reject(op, ErrStateConflict, "no active session", nil)
	}

	remaining, err := e.quota.Consume(ctx)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return nil, e.reject(op, ErrQuotaExhausted, "no emergency unblocks left in this period", nil)
		}
		return nil, e.reject(op, ErrPersistence, "failed to consume emergency unblock", err)
	}

	e.metrics.RecordEmergencyUnblock()
	e.logger.Warn("Emergency unblock used",
		"session_id", e.session.ID,
		"profile_id", e.session.ProfileID,
		"remaining", remaining,
	)
	return e.finish(ctx, op), nil
}

// StopScheduled ends the running scheduled session of profileID. Returns false
// when there is nothing to stop; forced and other non-scheduled sessions are
// never touched.
func (e *Engine) StopScheduled(ctx context.Context, profileID string) (bool, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "schedule_stop"
	if e.session == nil || e.session.ProfileID != profileID || !e.session.IsScheduled() {
		return false, nil
	}

	strategy, err := e.strategies.Get(StrategySchedule)
	if err != nil {
		return false, e.reject(op, ErrValidation, "no schedule strategy", err)
	}
	if outcome := strategy.RequestEnd(ctx, e.profile, e.session.Clone(), ""); !outcome.Accepted {
		return false, e.reject(op, ErrValidation, outcome.Reason, nil)
	}

	e.finish(ctx, op)
	return true, nil
}

// finish moves the active session to Ended and archives it. Persistence
// failures are logged and retried later; they never keep the session alive.
func (e *Engine) finish(ctx context.Context, op string) *Session {
	now := e.clock.Now()
	if e.session.IsOnBreak() {
		e.session.BreakEndTime = breakEndAt(e.session, now)
	}
	if now.Before(e.session.StartTime) {
		now = e.session.StartTime
	}
	e.session.EndTime = &now

	ended := e.session.Clone()
	profile := e.profile
	elapsed := e.accountant.Elapsed(ended, now)

	e.cancelTicker()
	e.session = nil
	e.profile = nil

	e.removeRestrictions(profile)
	e.archiveEnded(ctx, ended)
	e.publishActive()

	e.metrics.SetSessionActive(false)
	e.metrics.RecordTransition(op, "accepted")
	e.logger.Info("Session ended",
		"session_id", ended.ID,
		"profile_id", ended.ProfileID,
		"op", op,
		"elapsed", elapsed,
		"break", e.accountant.BreakTaken(ended),
	)
	return ended
}

// endBreak closes the open break at the given time and re-applies the restrictions
func (e *Engine) endBreak(at time.Time) {
	end := breakEndAt(e.session, at)
	e.session.BreakEndTime = end
	effective := e.accountant.EffectiveStart(e.session)

	e.applyRestrictions(e.profile)
	e.patchActive(snapshot.Patch{BreakEndTime: end, EffectiveStartTime: &effective})

	e.logger.Info("Break ended",
		"session_id", e.session.ID,
		"break", e.accountant.BreakTaken(e.session),
	)
}

// breakEndAt clamps a break end so it never precedes the break start
func breakEndAt(s *Session, at time.Time) *time.Time {
	if at.Before(*s.BreakStartTime) {
		at = *s.BreakStartTime
	}
	return &at
}

// expireBreak closes a break whose allowance has run out. The break ends at
// its allowance limit only when now is within lateness of that limit, which
// is when restrictions were re-applied on time. Past that, nothing enforced
// the session in between and the break runs until now.
func (e *Engine) expireBreak(now time.Time, lateness time.Duration) {
	if !e.session.IsOnBreak() || e.profile.BreakDurationMinutes <= 0 {
		return
	}
	limit := e.session.BreakStartTime.Add(e.profile.BreakAllowance())
	if now.Before(limit) {
		return
	}
	end := limit
	if now.Sub(limit) > lateness {
		end = now
	}
	e.endBreak(end)
	e.metrics.RecordTransition("break_expired", "accepted")
}

// Restore reconciles the engine with the shared active-session slot. On
// launch it adopts a session written by a previous incarnation; a slot whose
// profile no longer exists is ended and archived.
func (e *Engine) Restore(ctx context.Context) (SlotAction, error) {
	defer e.runRestrictions(ctx)
	e.mu.Lock()
	defer e.mu.Unlock()

	const op = "restore"
	slot, err := e.snapshots.GetActiveSession()
	if err != nil {
		if !errors.Is(err, snapshot.ErrUnavailable) {
			return "", e.reject(op, ErrPersistence, "failed to read active session slot", err)
		}
		e.logger.Warn("Active session slot unreadable, treating as empty", "error", err)
		slot = nil
	}

	if e.session != nil {
		if slot != nil && slot.ID == e.session.ID && !e.activeDirty {
			e.flushLocked()
			return SlotInSync, nil
		}
		e.publishActive()
		e.flushLocked()
		return SlotRepublished, nil
	}

	if slot == nil {
		e.flushLocked()
		return SlotEmpty, nil
	}

	session := SessionFromSnapshot(slot)
	if !session.IsActive() {
		e.archiveEnded(ctx, session)
		e.publishActive()
		return SlotStaleEnded, nil
	}

	profile, err := e.profiles.GetProfile(ctx, session.ProfileID)
	if err != nil {
		if !errors.Is(err, ErrProfileNotFound) {
			return "", e.reject(op, ErrPersistence, "failed to load profile of restored session", err)
		}

		now := e.clock.Now()
		if session.IsOnBreak() {
			session.BreakEndTime = breakEndAt(session, now)
		}
		if now.Before(session.StartTime) {
			now = session.StartTime
		}
		session.EndTime = &now
		e.archiveEnded(ctx, session)
		e.publishActive()
		e.metrics.RecordTransition("orphan_cleanup", "accepted")

		e.logger.Warn("Ended orphaned session",
			"session_id", session.ID,
			"profile_id", session.ProfileID,
		)
		return SlotOrphanEnded, nil
	}

	e.session = session
	e.profile = profile
	// a break that ran out while the process was down ends now; endBreak
	// re-applies the restrictions
	wasOnBreak := session.IsOnBreak()
	e.expireBreak(e.clock.Now(), 0)
	if !wasOnBreak {
		e.applyRestrictions(profile)
	}
	e.publishActive()
	e.startTicker()
	e.metrics.SetSessionActive(true)
	e.metrics.RecordTransition(op, "accepted")

	e.logger.Info("Session restored",
		"session_id", session.ID,
		"profile_id", profile.ID,
		"on_break", session.IsOnBreak(),
	)
	return SlotAdopted, nil
}

// Flush retries snapshot writes that failed earlier
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.flushLocked() {
		return newError(ErrPersistence, "flush", e.stateLocked(), "snapshot writes still pending", nil)
	}
	return nil
}

// Tick recomputes the display status, closes an expired break and retries
// pending snapshot writes. It never starts or ends a session.
func (e *Engine) Tick() {
	e.tick(context.Background())
}

func (e *Engine) tick(ctx context.Context) {
	e.mu.Lock()
	// A tick from a cancelled ticker may still be waiting on the lock
	if ctx.Err() != nil || e.session == nil {
		e.mu.Unlock()
		return
	}

	now := e.clock.Now()
	e.expireBreak(now, 2*e.tickInterval)
	e.flushLocked()
	status := e.statusLocked(now)
	onTick := e.onTick
	e.mu.Unlock()

	e.runRestrictions(ctx)

	if onTick != nil {
		onTick(status)
	}
}

func (e *Engine) startTicker() {
	e.cancelTicker()
	ctx, cancel := context.WithCancel(context.Background())
	e.stopTick = cancel
	go e.runTicker(ctx, e.clock.NewTicker(e.tickInterval))
}

func (e *Engine) runTicker(ctx context.Context, ticker *time.Ticker) {
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) cancelTicker() {
	if e.stopTick != nil {
		e.stopTick()
		e.stopTick = nil
	}
}

// TickerRunning reports whether the periodic tick task exists
func (e *Engine) TickerRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stopTick != nil
}

// Shutdown stops the tick task without ending the session. The session stays
// in the shared slot and is adopted by Restore on the next launch.
func (e *Engine) Shutdown() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cancelTicker()
	e.flushLocked()
}

// Status returns the current status
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusLocked(e.clock.Now())
}

// State returns the current state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// IsBlocking is true while a session is Active or OnBreak
func (e *Engine) IsBlocking() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session != nil
}

// IsBreakAvailable is true while blocking, breaks are enabled and no break
// has been taken yet
func (e *Engine) IsBreakAvailable() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakAvailableLocked()
}

// Elapsed returns the active time of the current session
func (e *Engine) Elapsed() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.accountant.Elapsed(e.session, e.clock.Now())
}

// ActiveProfileID returns the profile of the active session, or ""
func (e *Engine) ActiveProfileID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return ""
	}
	return e.session.ProfileID
}

func (e *Engine) stateLocked() State {
	switch {
	case e.session == nil:
		return StateIdle
	case e.session.IsOnBreak():
		return StateOnBreak
	default:
		return StateActive
	}
}

func (e *Engine) breakAvailableLocked() bool {
	return e.session != nil && e.profile.EnableBreaks && e.session.BreakStartTime == nil
}

func (e *Engine) statusLocked(now time.Time) Status {
	st := Status{
		State:         e.stateLocked(),
		PendingWrites: e.activeDirty || len(e.pendingCompleted) > 0,
		At:            now,
	}
	if e.session == nil {
		return st
	}

	st.Session = e.session.Clone()
	st.ProfileName = e.profile.Name
	st.Elapsed = e.accountant.Elapsed(e.session, now)
	st.BreakTaken = e.accountant.BreakTaken(e.session)
	st.EffectiveStart = e.accountant.EffectiveStart(e.session)
	st.IsBlocking = true
	st.IsBreakAvailable = e.breakAvailableLocked()
	st.StrictMode = e.profile.EnableStrictMode

	if e.session.IsOnBreak() && e.profile.BreakDurationMinutes > 0 {
		remaining := e.session.BreakStartTime.Add(e.profile.BreakAllowance()).Sub(now)
		if remaining > 0 {
			st.BreakRemaining = remaining
		}
	}
	return st
}

func (e *Engine) reject(op string, kind error, message string, cause error) error {
	state := e.stateLocked()
	e.metrics.RecordTransition(op, "rejected")
	e.logger.Warn("Transition rejected",
		"op", op,
		"reason", message,
		"state", state.String(),
		"error", cause,
	)
	return newError(kind, op, state, message, cause)
}

func (e *Engine) applyRestrictions(profile *Profile) {
	e.queueRestriction(true, profile)
}

func (e *Engine) removeRestrictions(profile *Profile) {
	e.queueRestriction(false, profile)
}

func (e *Engine) queueRestriction(apply bool, profile *Profile) {
	if e.restrictions == nil || profile == nil {
		return
	}
	e.restrictQueue = append(e.restrictQueue, restrictionJob{apply: apply, profile: profile.Clone()})
}

// runRestrictions drains the restriction queue in order. It must be called
// without mu held; a slow authority then delays only the caller that queued
// the call, never Status or other transitions. Calls are detached from the
// caller's cancellation so a finished request cannot skip enforcement.
func (e *Engine) runRestrictions(ctx context.Context) {
	if e.restrictions == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)

	e.restrictMu.Lock()
	defer e.restrictMu.Unlock()
	for {
		e.mu.Lock()
		if len(e.restrictQueue) == 0 {
			e.mu.Unlock()
			return
		}
		job := e.restrictQueue[0]
		e.restrictQueue = e.restrictQueue[1:]
		e.mu.Unlock()

		action, call := "apply", e.restrictions.Apply
		if !job.apply {
			action, call = "remove", e.restrictions.Remove
		}
		if err := call(ctx, job.profile); err != nil {
			e.logger.Warn("Restriction call failed",
				"authority", e.restrictions.Name(),
				"action", action,
				"profile_id", job.profile.ID,
				"error", err,
			)
		}
	}
}

// archiveEnded writes an ended session to the durable store and the shared
// completed list. A failed durable write is repaired by the reconciler's
// backlog sync from the completed list.
func (e *Engine) archiveEnded(ctx context.Context, ended *Session) {
	if e.archive != nil {
		if err := e.archive.UpsertSession(ctx, ended); err != nil {
			e.logger.Error("Failed to archive session",
				"session_id", ended.ID,
				"error", err,
			)
		}
	}

	snap := SessionToSnapshot(ended, e.accountant.EffectiveStart(ended))
	if err := e.snapshots.AppendCompletedSession(snap); err != nil {
		e.pendingCompleted = append(e.pendingCompleted, snap)
		e.snapshotWriteFailed(snapshot.KeyCompletedSessions, err)
	}
}

// publishActive replaces the whole active slot with the current session
func (e *Engine) publishActive() {
	var snap *snapshot.SessionSnapshot
	if e.session != nil {
		s := SessionToSnapshot(e.session, e.accountant.EffectiveStart(e.session))
		snap = &s
	}
	if err := e.snapshots.SetActiveSession(snap); err != nil {
		e.activeDirty = true
		e.snapshotWriteFailed(snapshot.KeyActiveSession, err)
		return
	}
	e.activeDirty = false
}

// patchActive updates the active slot in place, falling back to a full write
// when the slot is missing or an earlier write is pending
func (e *Engine) patchActive(patch snapshot.Patch) {
	if e.activeDirty {
		e.publishActive()
		return
	}
	if err := e.snapshots.PatchActiveSession(patch); err != nil {
		e.logger.Warn("Active session patch failed, rewriting slot", "error", err)
		e.publishActive()
	}
}

// flushLocked retries pending writes and reports whether none are left
func (e *Engine) flushLocked() bool {
	if e.activeDirty {
		e.publishActive()
	}
	if len(e.pendingCompleted) > 0 {
		var still []snapshot.SessionSnapshot
		for _, snap := range e.pendingCompleted {
			if err := e.snapshots.AppendCompletedSession(snap); err != nil {
				still = append(still, snap)
				e.snapshotWriteFailed(snapshot.KeyCompletedSessions, err)
			}
		}
		e.pendingCompleted = still
	}
	return !e.activeDirty && len(e.pendingCompleted) == 0
}

func (e *Engine) snapshotWriteFailed(key string, err error) {
	e.metrics.RecordSnapshotWriteFailure(key)
	e.logger.Error("Snapshot write failed, will retry",
		"key", key,
		"error", err,
	)
}
