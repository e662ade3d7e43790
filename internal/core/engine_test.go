package core

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focusgate/internal/clock"
	"focusgate/internal/snapshot"
)

// Fakes

type fakeStrategy struct {
	kind        StrategyKind
	beginReject string
	endFn       func(p *Profile, token string) EndOutcome
	endCalls    int
}

func (f *fakeStrategy) Kind() StrategyKind { return f.kind }

func (f *fakeStrategy) BeginSession(ctx context.Context, p *Profile, req StartRequest) StartOutcome {
	if f.beginReject != "" {
		return StartRejected(f.beginReject)
	}
	return StartAccepted
}

func (f *fakeStrategy) RequestEnd(ctx context.Context, p *Profile, s *Session, token string) EndOutcome {
	f.endCalls++
	if f.endFn != nil {
		return f.endFn(p, token)
	}
	return EndAccepted
}

type fakeStrategies map[StrategyKind]BlockingStrategy

func (f fakeStrategies) Get(kind StrategyKind) (BlockingStrategy, error) {
	s, ok := f[kind]
	if !ok {
		return nil, errors.New("strategy not registered")
	}
	return s, nil
}

type fakeProfiles struct {
	mu       sync.Mutex
	profiles map[string]*Profile
}

func (f *fakeProfiles) GetProfile(ctx context.Context, id string) (*Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.profiles[id]
	if !ok {
		return nil, ErrProfileNotFound
	}
	return p.Clone(), nil
}

type fakeArchive struct {
	mu       sync.Mutex
	sessions []*Session
}

func (f *fakeArchive) UpsertSession(ctx context.Context, s *Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sessions = append(f.sessions, s.Clone())
	return nil
}

type fakeQuota struct {
	mu        sync.Mutex
	remaining int
	consumed  int
}

func (f *fakeQuota) Consume(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remaining <= 0 {
		return 0, ErrQuotaExhausted
	}
	f.remaining--
	f.consumed++
	return f.remaining, nil
}

type fakeRestrictions struct {
	mu      sync.Mutex
	applied int
	removed int
}

func (f *fakeRestrictions) Name() string { return "fake" }

func (f *fakeRestrictions) Apply(ctx context.Context, p *Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applied++
	return nil
}

func (f *fakeRestrictions) Remove(ctx context.Context, p *Profile) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed++
	return nil
}

// flakyKV fails every Set while fail is true
type flakyKV struct {
	*snapshot.MemoryKV
	mu   sync.Mutex
	fail bool
}

func (f *flakyKV) setFail(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = v
}

func (f *flakyKV) Set(key string, value []byte) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.Set(key, value)
}

func (f *flakyKV) Delete(key string) error {
	f.mu.Lock()
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return errors.New("disk full")
	}
	return f.MemoryKV.Delete(key)
}

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

type harness struct {
	engine       *Engine
	clock        *clock.MockClock
	kv           *flakyKV
	snapshots    *snapshot.Store
	profiles     *fakeProfiles
	archive      *fakeArchive
	quota        *fakeQuota
	restrictions *fakeRestrictions
	token        *fakeStrategy
	ticks        chan Status
}

func newHarness(t *testing.T, profiles ...*Profile) *harness {
	t.Helper()

	h := &harness{
		clock:        clock.NewMock(t0),
		kv:           &flakyKV{MemoryKV: snapshot.NewMemoryKV()},
		profiles:     &fakeProfiles{profiles: map[string]*Profile{}},
		archive:      &fakeArchive{},
		quota:        &fakeQuota{remaining: 3},
		restrictions: &fakeRestrictions{},
		ticks:        make(chan Status, 16),
	}
	for _, p := range profiles {
		h.profiles.profiles[p.ID] = p
	}
	h.snapshots = snapshot.NewStore(h.kv, nil)
	h.token = &fakeStrategy{
		kind: StrategyNFC,
		endFn: func(p *Profile, token string) EndOutcome {
			if strings.TrimSpace(token) != p.StrategyData {
				return EndRejected("token does not match the registered token")
			}
			return EndAccepted
		},
	}
	h.engine = h.newEngine()

	t.Cleanup(h.engine.Shutdown)
	return h
}

func (h *harness) newEngine() *Engine {
	return NewEngine(EngineConfig{
		Profiles: h.profiles,
		Strategies: fakeStrategies{
			StrategyManual:   &fakeStrategy{kind: StrategyManual},
			StrategyNFC:      h.token,
			StrategySchedule: &fakeStrategy{kind: StrategySchedule},
		},
		Archive:      h.archive,
		Snapshots:    h.snapshots,
		Quota:        h.quota,
		Restrictions: h.restrictions,
		Clock:        h.clock,
		// long enough that the real ticker never fires during a test
		TickInterval: time.Hour,
		OnTick: func(s Status) {
			select {
			case h.ticks <- s:
			default:
			}
		},
	})
}

func manualProfile() *Profile {
	return &Profile{
		ID:                   "prof_manual",
		Name:                 "Deep work",
		Strategy:             StrategyManual,
		EnableBreaks:         true,
		BreakDurationMinutes: 15,
	}
}

func assertKind(t *testing.T, err error, kind error, state State) {
	t.Helper()
	require.Error(t, err)
	assert.ErrorIs(t, err, kind)
	var engineErr *Error
	require.ErrorAs(t, err, &engineErr)
	assert.Equal(t, state, engineErr.State)
	assert.NotEmpty(t, engineErr.Message)
}

func TestEngine_StartAndStop(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	session, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.Tag, "manual:"))
	assert.Equal(t, t0, session.StartTime)
	assert.Equal(t, StateActive, h.engine.State())
	assert.True(t, h.engine.IsBlocking())
	assert.True(t, h.engine.TickerRunning())
	assert.Equal(t, 1, h.restrictions.applied)

	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)
	assert.Equal(t, "prof_manual", active.BlockedProfileID)

	h.clock.Advance(10 * time.Minute)
	ended, err := h.engine.Stop(ctx, "")
	require.NoError(t, err)
	require.NotNil(t, ended.EndTime)
	assert.Equal(t, t0.Add(10*time.Minute), *ended.EndTime)

	assert.Equal(t, StateIdle, h.engine.State())
	assert.False(t, h.engine.IsBlocking())
	assert.False(t, h.engine.TickerRunning())
	assert.Equal(t, 1, h.restrictions.removed)

	active, err = h.snapshots.GetActiveSession()
	require.NoError(t, err)
	assert.Nil(t, active)

	completed, err := h.snapshots.ListCompletedSessions()
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, session.ID, completed[0].ID)

	require.Len(t, h.archive.sessions, 1)
	assert.Equal(t, session.ID, h.archive.sessions[0].ID)
}

func TestEngine_BreakScenario(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)
	assert.True(t, h.engine.IsBreakAvailable())

	h.clock.Set(t0.Add(600 * time.Second))
	s, err := h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, StateOnBreak, h.engine.State())
	assert.Equal(t, t0.Add(600*time.Second), *s.BreakStartTime)
	assert.False(t, h.engine.IsBreakAvailable())
	assert.Equal(t, 1, h.restrictions.removed, "restrictions lift during a break")

	// elapsed is frozen while on break
	h.clock.Set(t0.Add(800 * time.Second))
	assert.Equal(t, 600*time.Second, h.engine.Elapsed())

	h.clock.Set(t0.Add(900 * time.Second))
	s, err = h.engine.ToggleBreak(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, StateActive, h.engine.State())
	assert.Equal(t, 300*time.Second, h.engine.Status().BreakTaken)
	assert.Equal(t, 2, h.restrictions.applied)

	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	assert.Equal(t, t0.Add(300*time.Second), active.EffectiveStartTime)
	require.NotNil(t, active.BreakEndTime)

	h.clock.Set(t0.Add(1800 * time.Second))
	ended, err := h.engine.Stop(ctx, "")
	require.NoError(t, err)

	elapsed, anomaly := ActiveElapsed(ended.StartTime, ended.BreakStartTime, ended.BreakEndTime, *ended.EndTime)
	assert.False(t, anomaly)
	assert.Equal(t, 1500*time.Second, elapsed)
}

func TestEngine_SecondStartIsRejected(t *testing.T) {
	other := manualProfile()
	other.ID = "prof_other"
	h := newHarness(t, manualProfile(), other)
	ctx := context.Background()

	first, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)

	_, err = h.engine.Start(ctx, "prof_other", StartRequest{})
	assertKind(t, err, ErrStateConflict, StateActive)

	_, err = h.engine.Start(ctx, "prof_manual", StartRequest{Force: true})
	assertKind(t, err, ErrStateConflict, StateActive)

	status := h.engine.Status()
	assert.Equal(t, first.ID, status.Session.ID)
	assert.Equal(t, "prof_manual", h.engine.ActiveProfileID())
}

func TestEngine_OneBreakPerSession(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)

	_, err = h.engine.ToggleBreak(ctx, false)
	assertKind(t, err, ErrStateConflict, StateActive)

	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)
	_, err = h.engine.ToggleBreak(ctx, true)
	assertKind(t, err, ErrStateConflict, StateOnBreak)

	h.clock.Advance(time.Minute)
	_, err = h.engine.ToggleBreak(ctx, false)
	require.NoError(t, err)

	_, err = h.engine.ToggleBreak(ctx, true)
	assertKind(t, err, ErrStateConflict, StateActive)
}

func TestEngine_BreaksDisabled(t *testing.T) {
	p := manualProfile()
	p.EnableBreaks = false
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.ToggleBreak(ctx, true)
	assertKind(t, err, ErrStateConflict, StateIdle)

	_, err = h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	assert.False(t, h.engine.IsBreakAvailable())

	_, err = h.engine.ToggleBreak(ctx, true)
	assertKind(t, err, ErrStateConflict, StateActive)
}

func TestEngine_StopClosesOpenBreak(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)

	h.clock.Set(t0.Add(600 * time.Second))
	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)

	h.clock.Set(t0.Add(900 * time.Second))
	ended, err := h.engine.Stop(ctx, "")
	require.NoError(t, err)

	require.NotNil(t, ended.BreakEndTime)
	assert.Equal(t, t0.Add(900*time.Second), *ended.BreakEndTime)
	elapsed, _ := ActiveElapsed(ended.StartTime, ended.BreakStartTime, ended.BreakEndTime, *ended.EndTime)
	assert.Equal(t, 600*time.Second, elapsed)
}

func TestEngine_PhysicalTokenStop(t *testing.T) {
	p := &Profile{ID: "prof_nfc", Name: "Desk", Strategy: StrategyNFC, StrategyData: "04:A2:3B:91"}
	h := newHarness(t, p)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(session.Tag, "nfc:"))

	_, err = h.engine.Stop(ctx, "04:A2:3B:92")
	assertKind(t, err, ErrValidation, StateActive)
	assert.Equal(t, StateActive, h.engine.State())

	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	require.NotNil(t, active, "rejected stop leaves the slot untouched")

	_, err = h.engine.Stop(ctx, " 04:A2:3B:91 ")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, h.engine.State())
	assert.Equal(t, 2, h.token.endCalls)
}

func TestEngine_EmergencyUnblockQuota(t *testing.T) {
	h := newHarness(t, manualProfile())
	h.quota.remaining = 1
	ctx := context.Background()

	_, err := h.engine.EmergencyUnblock(ctx)
	assertKind(t, err, ErrStateConflict, StateIdle)
	assert.Equal(t, 0, h.quota.consumed, "rejected unblock consumes nothing")

	_, err = h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)
	_, err = h.engine.EmergencyUnblock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, h.quota.consumed)
	assert.Equal(t, 0, h.quota.remaining)
	assert.Equal(t, StateIdle, h.engine.State())

	_, err = h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)
	_, err = h.engine.EmergencyUnblock(ctx)
	assertKind(t, err, ErrQuotaExhausted, StateActive)
	assert.Equal(t, 1, h.quota.consumed)
	assert.Equal(t, 0, h.quota.remaining)
	assert.Equal(t, StateActive, h.engine.State())
}

func TestEngine_EmergencyUnblockBypassesStrategy(t *testing.T) {
	p := &Profile{ID: "prof_nfc", Name: "Desk", Strategy: StrategyNFC, StrategyData: "04:A2:3B:91"}
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	_, err = h.engine.EmergencyUnblock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, h.token.endCalls)
}

func TestEngine_StrictMode(t *testing.T) {
	p := manualProfile()
	p.EnableStrictMode = true
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	assert.True(t, h.engine.Status().StrictMode)

	_, err = h.engine.Stop(ctx, "")
	assertKind(t, err, ErrStateConflict, StateActive)

	_, err = h.engine.EmergencyUnblock(ctx)
	require.NoError(t, err)
}

func TestEngine_ScheduledSessions(t *testing.T) {
	p := &Profile{
		ID:       "prof_sched",
		Name:     "Mornings",
		Strategy: StrategySchedule,
		Schedule: &Schedule{Windows: []TimeWindow{{StartMinute: 8 * 60, EndMinute: 10 * 60}}},
	}
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	assertKind(t, err, ErrValidation, StateIdle)

	started, err := h.engine.StartScheduled(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, started)
	started, err = h.engine.StartScheduled(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, started, "already running")

	status := h.engine.Status()
	assert.True(t, status.Session.IsScheduled())
	assert.False(t, status.Session.ForceStarted)

	_, err = h.engine.Stop(ctx, "")
	assertKind(t, err, ErrStateConflict, StateActive)

	stopped, err := h.engine.StopScheduled(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stopped)
	stopped, err = h.engine.StopScheduled(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, stopped)
}

func TestEngine_ForcedSessionIgnoredBySchedule(t *testing.T) {
	p := &Profile{
		ID:       "prof_sched",
		Name:     "Mornings",
		Strategy: StrategySchedule,
		Schedule: &Schedule{Windows: []TimeWindow{{StartMinute: 8 * 60, EndMinute: 10 * 60}}},
	}
	h := newHarness(t, p)
	ctx := context.Background()

	session, err := h.engine.Start(ctx, p.ID, StartRequest{Force: true})
	require.NoError(t, err)
	assert.True(t, session.ForceStarted)
	assert.True(t, strings.HasPrefix(session.Tag, "manual:"))

	stopped, err := h.engine.StopScheduled(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, stopped)
	assert.Equal(t, StateActive, h.engine.State())

	_, err = h.engine.StartScheduled(ctx, p.ID)
	assertKind(t, err, ErrStateConflict, StateActive)
}

func TestEngine_UnknownProfile(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.Start(context.Background(), "prof_missing", StartRequest{})
	assertKind(t, err, ErrValidation, StateIdle)
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestEngine_StrategyRejectsStart(t *testing.T) {
	h := newHarness(t, manualProfile())
	h.engine.strategies = fakeStrategies{StrategyManual: &fakeStrategy{kind: StrategyManual, beginReject: "not now"}}

	_, err := h.engine.Start(context.Background(), "prof_manual", StartRequest{})
	assertKind(t, err, ErrValidation, StateIdle)
	assert.False(t, h.engine.TickerRunning())
}

func TestEngine_RestoreAdoptsActiveSlot(t *testing.T) {
	h := newHarness(t, manualProfile())
	started := t0.Add(-30 * time.Minute)
	require.NoError(t, h.snapshots.SetActiveSession(&snapshot.SessionSnapshot{
		ID:                 "sess_previous",
		Tag:                "manual:1a2b3c4d",
		BlockedProfileID:   "prof_manual",
		StartTime:          started,
		EffectiveStartTime: started,
	}))

	action, err := h.engine.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SlotAdopted, action)
	assert.Equal(t, StateActive, h.engine.State())
	assert.True(t, h.engine.TickerRunning())
	assert.Equal(t, 30*time.Minute, h.engine.Elapsed())
	assert.Equal(t, 1, h.restrictions.applied)

	action, err = h.engine.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SlotInSync, action)
}

func TestEngine_RestoreEndsOrphanedSession(t *testing.T) {
	h := newHarness(t)
	started := t0.Add(-time.Hour)
	breakStart := t0.Add(-20 * time.Minute)
	require.NoError(t, h.snapshots.SetActiveSession(&snapshot.SessionSnapshot{
		ID:                 "sess_orphan",
		Tag:                "manual:1a2b3c4d",
		BlockedProfileID:   "prof_deleted",
		StartTime:          started,
		BreakStartTime:     &breakStart,
		EffectiveStartTime: started,
	}))

	action, err := h.engine.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SlotOrphanEnded, action)
	assert.Equal(t, StateIdle, h.engine.State())

	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	assert.Nil(t, active)

	completed, err := h.snapshots.ListCompletedSessions()
	require.NoError(t, err)
	require.Len(t, completed, 1)
	assert.Equal(t, "sess_orphan", completed[0].ID)
	require.NotNil(t, completed[0].BreakEndTime)
	assert.Equal(t, t0, *completed[0].EndTime)

	require.Len(t, h.archive.sessions, 1)
	assert.Equal(t, "sess_orphan", h.archive.sessions[0].ID)
}

func TestEngine_RestoreEmptySlot(t *testing.T) {
	h := newHarness(t)
	action, err := h.engine.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SlotEmpty, action)
	assert.False(t, h.engine.TickerRunning())
}

func TestEngine_SnapshotFailureIsRetried(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	h.kv.setFail(true)
	session, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err, "snapshot failures never block a transition")
	assert.True(t, h.engine.Status().PendingWrites)
	assert.Error(t, h.engine.Flush(ctx))

	h.kv.setFail(false)
	h.engine.Tick()

	assert.False(t, h.engine.Status().PendingWrites)
	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, session.ID, active.ID)
}

func TestEngine_CompletedWriteRetriedByFlush(t *testing.T) {
	h := newHarness(t, manualProfile())
	ctx := context.Background()

	_, err := h.engine.Start(ctx, "prof_manual", StartRequest{})
	require.NoError(t, err)

	h.kv.setFail(true)
	_, err = h.engine.Stop(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, StateIdle, h.engine.State())
	assert.True(t, h.engine.Status().PendingWrites)

	h.kv.setFail(false)
	require.NoError(t, h.engine.Flush(ctx))

	completed, err := h.snapshots.ListCompletedSessions()
	require.NoError(t, err)
	assert.Len(t, completed, 1)
	active, err := h.snapshots.GetActiveSession()
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestEngine_TickExpiresBreak(t *testing.T) {
	p := manualProfile()
	p.BreakDurationMinutes = 5
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)

	h.clock.Advance(2 * time.Minute)
	h.engine.Tick()
	status := <-h.ticks
	assert.Equal(t, StateOnBreak, status.State)
	assert.Equal(t, 3*time.Minute, status.BreakRemaining)

	h.clock.Advance(4 * time.Minute)
	h.engine.Tick()
	status = <-h.ticks
	assert.Equal(t, StateActive, status.State)
	require.NotNil(t, status.Session.BreakEndTime)
	assert.Equal(t, t0.Add(15*time.Minute), *status.Session.BreakEndTime)
	assert.Equal(t, 11*time.Minute, status.Elapsed)
}

func TestEngine_TickWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.engine.Tick()
	assert.Len(t, h.ticks, 0)
}

func TestEngine_ClockSkewClampsElapsed(t *testing.T) {
	h := newHarness(t, manualProfile())
	_, err := h.engine.Start(context.Background(), "prof_manual", StartRequest{})
	require.NoError(t, err)

	h.clock.Set(t0.Add(-time.Minute))
	assert.Equal(t, time.Duration(0), h.engine.Elapsed())
}

func TestEngine_StopAfterOverrunBreakClosesAtNow(t *testing.T) {
	p := manualProfile()
	p.BreakDurationMinutes = 5
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	h.clock.Set(t0.Add(600 * time.Second))
	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)

	// no tick ran, so nothing re-applied the restrictions after 5 minutes
	h.clock.Set(t0.Add(1800 * time.Second))
	ended, err := h.engine.Stop(ctx, "")
	require.NoError(t, err)

	require.NotNil(t, ended.BreakEndTime)
	assert.Equal(t, t0.Add(1800*time.Second), *ended.BreakEndTime)
	elapsed, _ := ActiveElapsed(ended.StartTime, ended.BreakStartTime, ended.BreakEndTime, *ended.EndTime)
	assert.Equal(t, 600*time.Second, elapsed)
	assert.Equal(t, 1, h.restrictions.applied)
	assert.Equal(t, 2, h.restrictions.removed)
}

func TestEngine_BreakOffAfterOverrunClosesAtNow(t *testing.T) {
	p := manualProfile()
	p.BreakDurationMinutes = 5
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	h.clock.Set(t0.Add(10 * time.Minute))
	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)

	h.clock.Set(t0.Add(40 * time.Minute))
	s, err := h.engine.ToggleBreak(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, t0.Add(40*time.Minute), *s.BreakEndTime)
	assert.Equal(t, 10*time.Minute, h.engine.Elapsed())
}

func TestEngine_LateTickClosesBreakAtNow(t *testing.T) {
	p := manualProfile()
	p.BreakDurationMinutes = 5
	h := newHarness(t, p)
	ctx := context.Background()

	_, err := h.engine.Start(ctx, p.ID, StartRequest{})
	require.NoError(t, err)
	h.clock.Advance(10 * time.Minute)
	_, err = h.engine.ToggleBreak(ctx, true)
	require.NoError(t, err)

	// the harness ticks hourly, so three hours past the limit is a suspension
	h.clock.Advance(3 * time.Hour)
	h.engine.Tick()
	status := <-h.ticks
	assert.Equal(t, StateActive, status.State)
	assert.Equal(t, t0.Add(10*time.Minute+3*time.Hour), *status.Session.BreakEndTime)
	assert.Equal(t, 10*time.Minute, status.Elapsed)
}

func TestEngine_RestoreClosesOverrunBreakAtNow(t *testing.T) {
	p := manualProfile()
	p.BreakDurationMinutes = 5
	h := newHarness(t, p)
	started := t0.Add(-time.Hour)
	breakStart := t0.Add(-40 * time.Minute)
	require.NoError(t, h.snapshots.SetActiveSession(&snapshot.SessionSnapshot{
		ID:                 "sess_previous",
		Tag:                "manual:1a2b3c4d",
		BlockedProfileID:   p.ID,
		StartTime:          started,
		BreakStartTime:     &breakStart,
		EffectiveStartTime: started,
	}))

	action, err := h.engine.Restore(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SlotAdopted, action)
	assert.Equal(t, StateActive, h.engine.State())

	status := h.engine.Status()
	require.NotNil(t, status.Session.BreakEndTime)
	assert.Equal(t, t0, *status.Session.BreakEndTime)
	assert.Equal(t, 20*time.Minute, status.Elapsed)
	assert.Equal(t, 1, h.restrictions.applied)
}

// blockingRestrictions holds every Apply until release is closed
type blockingRestrictions struct {
	entered chan struct{}
	release chan struct{}
}

func (b *blockingRestrictions) Name() string { return "blocking" }

func (b *blockingRestrictions) Apply(ctx context.Context, p *Profile) error {
	b.entered <- struct{}{}
	<-b.release
	return nil
}

func (b *blockingRestrictions) Remove(ctx context.Context, p *Profile) error { return nil }

func TestEngine_SlowAuthorityDoesNotBlockStatus(t *testing.T) {
	h := newHarness(t, manualProfile())
	slow := &blockingRestrictions{entered: make(chan struct{}, 1), release: make(chan struct{})}
	h.engine.restrictions = slow

	done := make(chan error, 1)
	go func() {
		_, err := h.engine.Start(context.Background(), "prof_manual", StartRequest{})
		done <- err
	}()

	select {
	case <-slow.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("apply was never called")
	}

	statusCh := make(chan Status, 1)
	go func() { statusCh <- h.engine.Status() }()
	select {
	case status := <-statusCh:
		assert.Equal(t, StateActive, status.State)
	case <-time.After(2 * time.Second):
		t.Fatal("Status blocked on the restriction authority")
	}

	close(slow.release)
	require.NoError(t, <-done)
}
