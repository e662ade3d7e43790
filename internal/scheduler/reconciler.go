// Package scheduler runs the reconciler that keeps persisted session state in
// line with wall-clock time: orphan cleanup, durable backlog sync, schedule
// windows and quota rollover.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/core"
	"focusgate/internal/snapshot"
)

// Engine is the part of the session engine the reconciler drives
type Engine interface {
	Restore(ctx context.Context) (core.SlotAction, error)
	StartScheduled(ctx context.Context, profileID string) (bool, error)
	StopScheduled(ctx context.Context, profileID string) (bool, error)
	Flush(ctx context.Context) error
	Status() core.Status
}

// ProfileLister lists every profile
type ProfileLister interface {
	ListProfiles(ctx context.Context) ([]*core.Profile, error)
}

// SessionSyncer batch-writes sessions to the durable store
type SessionSyncer interface {
	UpsertSessions(ctx context.Context, sessions []*core.Session) error
}

// CompletedSource reads the shared completed-session list
type CompletedSource interface {
	ListCompletedSessions() ([]snapshot.SessionSnapshot, error)
}

// QuotaRoller refills the emergency quota when its period is over
type QuotaRoller interface {
	ResetIfPeriodElapsed(ctx context.Context) (bool, error)
}

// SnapshotSyncer mirrors profiles into the shared store
type SnapshotSyncer interface {
	SyncSnapshots(ctx context.Context) error
}

// Metrics receives reconciler events
type Metrics interface {
	RecordReconcilerAction(action string)
	ObserveReconcilerWake(seconds float64)
}

// Result summarizes one wake
type Result struct {
	Slot           core.SlotAction `json:"slot"`
	BacklogSynced  int             `json:"backlog_synced"`
	Started        []string        `json:"started,omitempty"`
	Stopped        []string        `json:"stopped,omitempty"`
	Held           []string        `json:"held,omitempty"`
	QuotaReset     bool            `json:"quota_reset"`
	ProfilesSynced bool            `json:"profiles_synced"`
	Errors         []string        `json:"errors,omitempty"`
}

// Config wires the reconciler's collaborators. Quota, Snapshots and Metrics
// are optional.
type Config struct {
	Engine    Engine
	Profiles  ProfileLister
	Durable   SessionSyncer
	Completed CompletedSource
	Schedule  *core.ScheduleService
	Quota     QuotaRoller
	Snapshots SnapshotSyncer
	Metrics   Metrics
	Clock     clock.Clock
	Interval  time.Duration
	Logger    *slog.Logger
}

// Reconciler runs wake cycles on launch, on an interval and on demand
type Reconciler struct {
	engine    Engine
	profiles  ProfileLister
	durable   SessionSyncer
	completed CompletedSource
	schedule  *core.ScheduleService
	quota     QuotaRoller
	snapshots SnapshotSyncer
	metrics   Metrics
	clock     clock.Clock
	interval  time.Duration
	logger    *slog.Logger

	mu       sync.Mutex
	synced   map[string]bool
	lastWake Result

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// DefaultInterval between periodic wakes
const DefaultInterval = time.Minute

// NewReconciler creates a new reconciler
func NewReconciler(cfg Config) *Reconciler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.RealClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Schedule == nil {
		cfg.Schedule = core.NewScheduleService(time.Local)
	}
	return &Reconciler{
		engine:    cfg.Engine,
		profiles:  cfg.Profiles,
		durable:   cfg.Durable,
		completed: cfg.Completed,
		schedule:  cfg.Schedule,
		quota:     cfg.Quota,
		snapshots: cfg.Snapshots,
		metrics:   cfg.Metrics,
		clock:     cfg.Clock,
		interval:  cfg.Interval,
		logger:    cfg.Logger.With("component", "reconciler"),
		synced:    make(map[string]bool),
		stopChan:  make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// Start runs a wake immediately and then on every interval until Stop is
// called. Done is closed when it returns.
func (r *Reconciler) Start() {
	defer close(r.done)
	r.logger.Info("Reconciler started", "interval", r.interval)
	r.RunOnce(context.Background())

	ticker := r.clock.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			r.RunOnce(context.Background())
		case <-r.stopChan:
			r.logger.Info("Reconciler stopped")
			return
		}
	}
}

// Stop stops the wake loop. Safe to call more than once.
func (r *Reconciler) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Done is closed once Start has returned, after any in-flight wake
func (r *Reconciler) Done() <-chan struct{} {
	return r.done
}

// LastResult returns the result of the most recent wake
func (r *Reconciler) LastResult() Result {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastWake
}

// RunOnce performs one full wake. Wakes never overlap; each duty runs even
// when an earlier one failed.
func (r *Reconciler) RunOnce(ctx context.Context) Result {
	r.mu.Lock()
	defer r.mu.Unlock()

	began := time.Now()
	var res Result

	r.cleanupOrphans(ctx, &res)
	completed := r.syncBacklog(ctx, &res)
	r.reconcileSchedules(ctx, completed, &res)
	r.rollQuota(ctx, &res)
	r.syncSnapshots(ctx, &res)

	if r.metrics != nil {
		r.metrics.ObserveReconcilerWake(time.Since(began).Seconds())
	}
	r.logger.Debug("Reconciler wake",
		"slot", res.Slot,
		"backlog_synced", res.BacklogSynced,
		"started", len(res.Started),
		"stopped", len(res.Stopped),
		"errors", len(res.Errors),
	)
	r.lastWake = res
	return res
}

func (r *Reconciler) record(action string) {
	if r.metrics != nil {
		r.metrics.RecordReconcilerAction(action)
	}
}

func (r *Reconciler) fail(res *Result, step string, err error) {
	r.logger.Error("Reconciler step failed", "step", step, "error", err)
	res.Errors = append(res.Errors, step+": "+err.Error())
	r.record(step + "_failed")
}

func (r *Reconciler) cleanupOrphans(ctx context.Context, res *Result) {
	action, err := r.engine.Restore(ctx)
	res.Slot = action
	if err != nil {
		r.fail(res, "restore", err)
		return
	}
	switch action {
	case core.SlotOrphanEnded, core.SlotStaleEnded, core.SlotAdopted:
		r.logger.Info("Active session slot repaired", "action", action)
		r.record(string(action))
	}
}

// syncBacklog writes completed snapshots the durable store has not seen from
// this process yet, in one batch. It returns the completed list it read.
func (r *Reconciler) syncBacklog(ctx context.Context, res *Result) []snapshot.SessionSnapshot {
	if r.completed == nil {
		return nil
	}
	snaps, err := r.completed.ListCompletedSessions()
	if err != nil {
		if !errors.Is(err, snapshot.ErrUnavailable) {
			r.fail(res, "backlog_read", err)
		}
		return nil
	}
	if r.durable == nil {
		return snaps
	}

	present := make(map[string]bool, len(snaps))
	var batch []*core.Session
	for i := range snaps {
		present[snaps[i].ID] = true
		if r.synced[snaps[i].ID] {
			continue
		}
		batch = append(batch, core.SessionFromSnapshot(&snaps[i]))
	}
	for id := range r.synced {
		if !present[id] {
			delete(r.synced, id)
		}
	}
	if len(batch) == 0 {
		return snaps
	}

	if err := r.durable.UpsertSessions(ctx, batch); err != nil {
		r.fail(res, "backlog_sync", err)
		return snaps
	}
	for _, s := range batch {
		r.synced[s.ID] = true
	}
	res.BacklogSynced = len(batch)
	r.record("backlog_synced")
	return snaps
}

// endedSince reports whether a scheduled session of profileID started at or
// after since and has already ended
func endedSince(completed []snapshot.SessionSnapshot, profileID string, since time.Time) bool {
	for i := range completed {
		s := core.SessionFromSnapshot(&completed[i])
		if s.ProfileID == profileID && s.IsScheduled() && !s.IsActive() && !s.StartTime.Before(since) {
			return true
		}
	}
	return false
}

// reconcileSchedules starts and stops scheduled sessions. A window occurrence
// runs at most one scheduled session: once it has ended, by emergency unblock
// or otherwise, the profile stays free until the window opens again.
func (r *Reconciler) reconcileSchedules(ctx context.Context, completed []snapshot.SessionSnapshot, res *Result) {
	profiles, err := r.profiles.ListProfiles(ctx)
	if err != nil {
		r.fail(res, "list_profiles", err)
		return
	}

	now := r.clock.Now()
	for _, p := range profiles {
		if !p.HasSchedule() {
			continue
		}
		if ctx.Err() != nil {
			return
		}

		status := r.engine.Status()
		current := status.Session
		inWindow := r.schedule.IsInWindow(p.Schedule, now)

		if inWindow {
			if current != nil {
				// Another session, a forced session or the scheduled one
				// already running: nothing to start.
				if current.ProfileID != p.ID || !current.IsScheduled() {
					r.logger.Debug("Schedule window open but engine busy",
						"profile_id", p.ID,
						"active_profile_id", current.ProfileID,
						"force_started", current.ForceStarted,
					)
				}
				continue
			}
			if opened := r.schedule.WindowStart(p.Schedule, now); endedSince(completed, p.ID, opened) {
				r.logger.Debug("Scheduled session already ended in this window",
					"profile_id", p.ID,
					"window_start", opened,
				)
				res.Held = append(res.Held, p.ID)
				continue
			}
			started, err := r.engine.StartScheduled(ctx, p.ID)
			if err != nil {
				if errors.Is(err, core.ErrStateConflict) {
					continue
				}
				r.fail(res, "schedule_start", err)
				continue
			}
			if started {
				r.logger.Info("Scheduled session started", "profile_id", p.ID, "profile", p.Name)
				res.Started = append(res.Started, p.ID)
				r.record("schedule_start")
			}
			continue
		}

		if current == nil || current.ProfileID != p.ID || !current.IsScheduled() {
			continue
		}
		stopped, err := r.engine.StopScheduled(ctx, p.ID)
		if err != nil {
			r.fail(res, "schedule_stop", err)
			continue
		}
		if stopped {
			r.logger.Info("Scheduled session stopped", "profile_id", p.ID, "profile", p.Name)
			res.Stopped = append(res.Stopped, p.ID)
			r.record("schedule_stop")
		}
	}
}

func (r *Reconciler) rollQuota(ctx context.Context, res *Result) {
	if r.quota == nil {
		return
	}
	reset, err := r.quota.ResetIfPeriodElapsed(ctx)
	if err != nil {
		r.fail(res, "quota_reset", err)
		return
	}
	if reset {
		res.QuotaReset = true
		r.record("quota_reset")
	}
}

func (r *Reconciler) syncSnapshots(ctx context.Context, res *Result) {
	if r.snapshots != nil {
		if err := r.snapshots.SyncSnapshots(ctx); err != nil {
			r.fail(res, "profile_sync", err)
		} else {
			res.ProfilesSynced = true
		}
	}
	if err := r.engine.Flush(ctx); err != nil {
		r.logger.Warn("Pending snapshot writes remain", "error", err)
	}
}
