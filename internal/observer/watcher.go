package observer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"focusgate/internal/clock"
	"focusgate/internal/snapshot"
)

var (
	ErrInvalidInterval = errors.New("poll interval must be positive")
	ErrInvalidGrace    = errors.New("grace period cannot be negative")
)

// Renderer draws a view
type Renderer interface {
	Render(v View) error
}

// WatcherConfig holds the poll loop settings
type WatcherConfig struct {
	Interval time.Duration // how often the store is read (default: 1s)
	// GracePeriod keeps the last good view on screen while reads fail, e.g.
	// while the writer is mid-rename. After it the view becomes unavailable.
	GracePeriod time.Duration
}

// DefaultWatcherConfig returns a config with default values
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Interval:    time.Second,
		GracePeriod: 5 * time.Second,
	}
}

// Validate validates the configuration
func (c WatcherConfig) Validate() error {
	if c.Interval <= 0 {
		return ErrInvalidInterval
	}
	if c.GracePeriod < 0 {
		return ErrInvalidGrace
	}
	return nil
}

// WatchState tracks what the watcher last showed
type WatchState struct {
	LastView           *View
	LastSuccessfulRead *time.Time
	ReadErrorSince     *time.Time
}

// Watcher polls the snapshot store and re-renders on every tick
type Watcher struct {
	reader   snapshot.Reader
	renderer Renderer
	clock    clock.Clock
	config   WatcherConfig
	state    WatchState
	logger   *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	mu       sync.Mutex
}

// NewWatcher creates a new watcher
func NewWatcher(reader snapshot.Reader, renderer Renderer, clk clock.Clock, config WatcherConfig, logger *slog.Logger) *Watcher {
	if clk == nil {
		clk = clock.RealClock{}
	}
	return &Watcher{
		reader:   reader,
		renderer: renderer,
		clock:    clk,
		config:   config,
		logger:   logger.With("component", "observer"),
		stopChan: make(chan struct{}),
	}
}

// Start runs the poll loop until the context is cancelled or Stop is called
func (w *Watcher) Start(ctx context.Context) {
	w.logger.Info("Starting watch loop",
		"interval", w.config.Interval,
		"grace_period", w.config.GracePeriod,
	)

	ticker := w.clock.NewTicker(w.config.Interval)
	defer ticker.Stop()

	w.poll()

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watch loop stopped (context cancelled)")
			return
		case <-w.stopChan:
			w.logger.Info("Watch loop stopped")
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// Stop signals the watcher to stop
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stopChan) })
}

func (w *Watcher) poll() {
	now := w.clock.Now()
	view, err := Build(w.reader, now)
	if err != nil {
		w.handleReadError(now, err)
		return
	}
	w.processView(now, view)
}

func (w *Watcher) processView(now time.Time, view View) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.state.LastSuccessfulRead = &now
	w.state.ReadErrorSince = nil

	w.logTransition(view)
	w.state.LastView = &view
	w.render(view)
}

// logTransition reports session boundaries seen between two polls
func (w *Watcher) logTransition(view View) {
	var prev View
	if w.state.LastView != nil {
		prev = *w.state.LastView
	}

	switch {
	case view.SessionID != prev.SessionID && view.Active():
		w.logger.Info("Session detected",
			"session_id", view.SessionID,
			"profile", view.ProfileName,
			"effective_start", view.EffectiveStart,
		)
	case prev.Active() && !view.Active():
		w.logger.Info("Session ended", "session_id", prev.SessionID)
	case prev.State == StateActive && view.State == StateOnBreak:
		w.logger.Info("Break started", "session_id", view.SessionID)
	case prev.State == StateOnBreak && view.State == StateActive:
		w.logger.Info("Break ended", "session_id", view.SessionID)
	}

	if view.StaleProfile && !prev.StaleProfile {
		w.logger.Warn("Active session refers to a missing profile", "profile_id", view.ProfileID)
	}
}

// handleReadError keeps the last view for the grace period, then shows the
// store as unavailable
func (w *Watcher) handleReadError(now time.Time, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state.ReadErrorSince == nil {
		w.state.ReadErrorSince = &now
	}
	since := now.Sub(*w.state.ReadErrorSince)

	if since < w.config.GracePeriod && w.state.LastView != nil {
		w.logger.Debug("Snapshot read failed, within grace period",
			"error", err,
			"error_duration", since,
		)
		stale := *w.state.LastView
		if stale.State == StateActive {
			stale.Elapsed += now.Sub(stale.At)
		}
		stale.At = now
		w.render(stale)
		return
	}

	w.logger.Warn("Snapshot store unavailable", "error", err, "error_duration", since)
	view := View{State: StateUnavailable, At: now}
	w.state.LastView = &view
	w.render(view)
}

func (w *Watcher) render(v View) {
	if err := w.renderer.Render(v); err != nil {
		w.logger.Error("Failed to render view", "error", err)
	}
}

// GetState returns a copy of the current state
func (w *Watcher) GetState() WatchState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}
