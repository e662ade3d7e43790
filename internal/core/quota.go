package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"focusgate/internal/clock"
)

// Quota is the global emergency unblock counter for the current period
type Quota struct {
	Remaining   int
	Allowance   int
	PeriodStart time.Time
}

// QuotaStore persists the quota. ConsumeEmergencyUnblock must decrement
// atomically and return ErrQuotaExhausted instead of going below zero.
type QuotaStore interface {
	GetQuota(ctx context.Context) (*Quota, error)
	ConsumeEmergencyUnblock(ctx context.Context) (remaining int, err error)
	ResetQuota(ctx context.Context, allowance int, periodStart time.Time) error
}

// QuotaService owns period rollover of the emergency unblock quota
type QuotaService struct {
	store     QuotaStore
	allowance int
	period    time.Duration
	timezone  *time.Location
	clock     clock.Clock
	logger    *slog.Logger
}

// QuotaConfig configures a QuotaService
type QuotaConfig struct {
	Allowance int
	Period    time.Duration
	Timezone  *time.Location
}

// NewQuotaService creates a new quota service
func NewQuotaService(store QuotaStore, cfg QuotaConfig, clk clock.Clock, logger *slog.Logger) *QuotaService {
	if cfg.Period <= 0 {
		cfg.Period = 24 * time.Hour
	}
	if cfg.Timezone == nil {
		cfg.Timezone = time.UTC
	}
	if clk == nil {
		clk = clock.RealClock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QuotaService{
		store:     store,
		allowance: cfg.Allowance,
		period:    cfg.Period,
		timezone:  cfg.Timezone,
		clock:     clk,
		logger:    logger.With("component", "quota"),
	}
}

// Get returns the current quota
func (q *QuotaService) Get(ctx context.Context) (*Quota, error) {
	return q.store.GetQuota(ctx)
}

// Consume takes one emergency unblock. Returns ErrQuotaExhausted when none is left.
func (q *QuotaService) Consume(ctx context.Context) (int, error) {
	remaining, err := q.store.ConsumeEmergencyUnblock(ctx)
	if err != nil {
		if errors.Is(err, ErrQuotaExhausted) {
			return 0, err
		}
		return 0, fmt.Errorf("failed to consume emergency unblock: %w", err)
	}
	return remaining, nil
}

// periodStart aligns t to the start of its period. Daily periods start at
// local midnight, other periods are aligned to the Unix epoch.
func (q *QuotaService) periodStart(t time.Time) time.Time {
	if q.period == 24*time.Hour {
		local := t.In(q.timezone)
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, q.timezone)
	}
	return t.Truncate(q.period)
}

// ResetIfPeriodElapsed restores the full allowance once the stored period is
// over. Safe to call on every wake; returns true when a reset happened.
func (q *QuotaService) ResetIfPeriodElapsed(ctx context.Context) (bool, error) {
	current, err := q.store.GetQuota(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to get quota: %w", err)
	}

	now := q.clock.Now()
	start := q.periodStart(now)
	if !current.PeriodStart.IsZero() && !start.After(current.PeriodStart) {
		return false, nil
	}

	if err := q.store.ResetQuota(ctx, q.allowance, start); err != nil {
		return false, fmt.Errorf("failed to reset quota: %w", err)
	}

	q.logger.Info("Emergency unblock quota reset",
		"allowance", q.allowance,
		"previous_remaining", current.Remaining,
		"period_start", start,
	)
	return true, nil
}
