package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"focusgate/internal/core"
	"focusgate/internal/storage"
)

// SQLiteStorage implements storage.Storage using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// New creates a new SQLite storage instance
func New(dbPath string) (*SQLiteStorage, error) {
	// Times are written as UTC and converted in the app layer
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &SQLiteStorage{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the database schema
func (s *SQLiteStorage) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			targets TEXT NOT NULL,
			strategy TEXT NOT NULL,
			strategy_data TEXT NOT NULL DEFAULT '',
			enable_breaks INTEGER NOT NULL DEFAULT 0,
			break_duration_minutes INTEGER NOT NULL DEFAULT 0,
			enable_strict_mode INTEGER NOT NULL DEFAULT 0,
			enable_live_activity INTEGER NOT NULL DEFAULT 0,
			reminder_offset_minutes INTEGER NOT NULL DEFAULT 0,
			custom_reminder_message TEXT NOT NULL DEFAULT '',
			schedule TEXT,
			sort_order INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);

		-- no foreign key: sessions of deleted profiles stay in the archive
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			tag TEXT NOT NULL,
			start_time DATETIME NOT NULL,
			end_time DATETIME,
			break_start_time DATETIME,
			break_end_time DATETIME,
			force_started INTEGER NOT NULL DEFAULT 0,
			updated_at DATETIME NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_profile ON sessions(profile_id, start_time);

		CREATE TABLE IF NOT EXISTS emergency_quota (
			id INTEGER PRIMARY KEY CHECK (id = 1),
			remaining INTEGER NOT NULL CHECK (remaining >= 0),
			allowance INTEGER NOT NULL,
			period_start DATETIME,
			updated_at DATETIME NOT NULL
		);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	// Quota row starts empty; the first period rollover fills it
	_, err := s.db.Exec(`
		INSERT OR IGNORE INTO emergency_quota (id, remaining, allowance, period_start, updated_at)
		VALUES (1, 0, 0, NULL, ?)
	`, time.Now().UTC())
	return err
}

type windowRecord struct {
	StartMinute int   `json:"startMinute"`
	EndMinute   int   `json:"endMinute"`
	Weekdays    []int `json:"weekdays"`
}

func encodeSchedule(schedule *core.Schedule) (sql.NullString, error) {
	if schedule == nil {
		return sql.NullString{}, nil
	}
	records := make([]windowRecord, 0, len(schedule.Windows))
	for _, w := range schedule.Windows {
		days := make([]int, 0, len(w.Weekdays))
		for _, d := range w.Weekdays {
			days = append(days, int(d))
		}
		records = append(records, windowRecord{StartMinute: w.StartMinute, EndMinute: w.EndMinute, Weekdays: days})
	}
	data, err := json.Marshal(records)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to marshal schedule: %w", err)
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

func decodeSchedule(raw sql.NullString) (*core.Schedule, error) {
	if !raw.Valid {
		return nil, nil
	}
	var records []windowRecord
	if err := json.Unmarshal([]byte(raw.String), &records); err != nil {
		return nil, fmt.Errorf("failed to unmarshal schedule: %w", err)
	}
	schedule := &core.Schedule{Windows: make([]core.TimeWindow, 0, len(records))}
	for _, r := range records {
		w := core.TimeWindow{StartMinute: r.StartMinute, EndMinute: r.EndMinute}
		for _, d := range r.Weekdays {
			w.Weekdays = append(w.Weekdays, time.Weekday(d))
		}
		schedule.Windows = append(schedule.Windows, w)
	}
	return schedule, nil
}

func profileArgs(p *core.Profile) ([]any, error) {
	targets := p.Targets
	if targets == nil {
		targets = []string{}
	}
	targetsJSON, err := json.Marshal(targets)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal targets: %w", err)
	}
	schedule, err := encodeSchedule(p.Schedule)
	if err != nil {
		return nil, err
	}
	return []any{
		p.Name, string(targetsJSON), string(p.Strategy), p.StrategyData,
		p.EnableBreaks, p.BreakDurationMinutes, p.EnableStrictMode, p.EnableLiveActivity,
		p.ReminderOffsetMinutes, p.CustomReminderMessage, schedule, p.Order,
	}, nil
}

// CreateProfile creates a new profile
func (s *SQLiteStorage) CreateProfile(ctx context.Context, p *core.Profile) error {
	args, err := profileArgs(p)
	if err != nil {
		return err
	}

	args = append([]any{p.ID}, args...)
	args = append(args, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO profiles (id, name, targets, strategy, strategy_data,
			enable_breaks, break_duration_minutes, enable_strict_mode, enable_live_activity,
			reminder_offset_minutes, custom_reminder_message, schedule, sort_order,
			created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, args...)
	return err
}

const profileColumns = `id, name, targets, strategy, strategy_data,
	enable_breaks, break_duration_minutes, enable_strict_mode, enable_live_activity,
	reminder_offset_minutes, custom_reminder_message, schedule, sort_order,
	created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*core.Profile, error) {
	var p core.Profile
	var targetsJSON, strategy string
	var schedule sql.NullString

	err := row.Scan(&p.ID, &p.Name, &targetsJSON, &strategy, &p.StrategyData,
		&p.EnableBreaks, &p.BreakDurationMinutes, &p.EnableStrictMode, &p.EnableLiveActivity,
		&p.ReminderOffsetMinutes, &p.CustomReminderMessage, &schedule, &p.Order,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}

	p.Strategy = core.StrategyKind(strategy)
	if err := json.Unmarshal([]byte(targetsJSON), &p.Targets); err != nil {
		return nil, fmt.Errorf("failed to unmarshal targets: %w", err)
	}
	if p.Schedule, err = decodeSchedule(schedule); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// GetProfile retrieves a profile by ID
func (s *SQLiteStorage) GetProfile(ctx context.Context, id string) (*core.Profile, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+profileColumns+` FROM profiles WHERE id = ?`, id)
	p, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrProfileNotFound
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProfiles retrieves all profiles in display order
func (s *SQLiteStorage) ListProfiles(ctx context.Context) ([]*core.Profile, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles ORDER BY sort_order, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var profiles []*core.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, rows.Err()
}

// UpdateProfile updates an existing profile
func (s *SQLiteStorage) UpdateProfile(ctx context.Context, p *core.Profile) error {
	args, err := profileArgs(p)
	if err != nil {
		return err
	}

	args = append(args, p.UpdatedAt.UTC(), p.ID)
	result, err := s.db.ExecContext(ctx, `
		UPDATE profiles
		SET name = ?, targets = ?, strategy = ?, strategy_data = ?,
			enable_breaks = ?, break_duration_minutes = ?, enable_strict_mode = ?, enable_live_activity = ?,
			reminder_offset_minutes = ?, custom_reminder_message = ?, schedule = ?, sort_order = ?,
			updated_at = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return err
	}
	return expectOneRow(result, core.ErrProfileNotFound)
}

// DeleteProfile deletes a profile. Its archived sessions are kept.
func (s *SQLiteStorage) DeleteProfile(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM profiles WHERE id = ?", id)
	if err != nil {
		return err
	}
	return expectOneRow(result, core.ErrProfileNotFound)
}

func expectOneRow(result sql.Result, notFound error) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return notFound
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

const upsertSessionSQL = `
	INSERT INTO sessions (id, profile_id, tag, start_time, end_time, break_start_time, break_end_time, force_started, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		profile_id = excluded.profile_id,
		tag = excluded.tag,
		start_time = excluded.start_time,
		end_time = excluded.end_time,
		break_start_time = excluded.break_start_time,
		break_end_time = excluded.break_end_time,
		force_started = excluded.force_started,
		updated_at = excluded.updated_at
`

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func upsertSession(ctx context.Context, db execer, session *core.Session, now time.Time) error {
	_, err := db.ExecContext(ctx, upsertSessionSQL,
		session.ID, session.ProfileID, session.Tag, session.StartTime.UTC(),
		nullTime(session.EndTime), nullTime(session.BreakStartTime), nullTime(session.BreakEndTime),
		session.ForceStarted, now)
	return err
}

// UpsertSession inserts or replaces one archived session
func (s *SQLiteStorage) UpsertSession(ctx context.Context, session *core.Session) error {
	return upsertSession(ctx, s.db, session, time.Now().UTC())
}

// UpsertSessions writes a batch of sessions in a single transaction
func (s *SQLiteStorage) UpsertSessions(ctx context.Context, sessions []*core.Session) error {
	if len(sessions) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	for _, session := range sessions {
		if err := upsertSession(ctx, tx, session, now); err != nil {
			return fmt.Errorf("failed to upsert session %s: %w", session.ID, err)
		}
	}

	return tx.Commit()
}

const sessionColumns = `id, profile_id, tag, start_time, end_time, break_start_time, break_end_time, force_started`

func scanSession(row rowScanner) (*core.Session, error) {
	var session core.Session
	var endTime, breakStart, breakEnd sql.NullTime

	if err := row.Scan(&session.ID, &session.ProfileID, &session.Tag, &session.StartTime,
		&endTime, &breakStart, &breakEnd, &session.ForceStarted); err != nil {
		return nil, err
	}

	session.StartTime = session.StartTime.UTC()
	session.EndTime = timePtr(endTime)
	session.BreakStartTime = timePtr(breakStart)
	session.BreakEndTime = timePtr(breakEnd)
	return &session, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

// GetSession retrieves an archived session by ID
func (s *SQLiteStorage) GetSession(ctx context.Context, id string) (*core.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)
	session, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.ErrSessionNotFound
	}
	return session, err
}

// ListSessionsByProfile returns a profile's sessions, newest first. A
// non-positive limit returns all of them.
func (s *SQLiteStorage) ListSessionsByProfile(ctx context.Context, profileID string, limit int) ([]*core.Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM sessions
		WHERE profile_id = ?
		ORDER BY start_time DESC
		LIMIT ?
	`, profileID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*core.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// GetQuota returns the emergency unblock quota
func (s *SQLiteStorage) GetQuota(ctx context.Context) (*core.Quota, error) {
	var q core.Quota
	var periodStart sql.NullTime

	err := s.db.QueryRowContext(ctx, `
		SELECT remaining, allowance, period_start FROM emergency_quota WHERE id = 1
	`).Scan(&q.Remaining, &q.Allowance, &periodStart)
	if err != nil {
		return nil, err
	}
	if periodStart.Valid {
		q.PeriodStart = periodStart.Time.UTC()
	}
	return &q, nil
}

// ConsumeEmergencyUnblock decrements the quota atomically. The WHERE clause
// keeps it from going below zero.
func (s *SQLiteStorage) ConsumeEmergencyUnblock(ctx context.Context) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE emergency_quota
		SET remaining = remaining - 1, updated_at = ?
		WHERE id = 1 AND remaining > 0
	`, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	if err := expectOneRow(result, core.ErrQuotaExhausted); err != nil {
		return 0, err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT remaining FROM emergency_quota WHERE id = 1`).Scan(&remaining); err != nil {
		return 0, err
	}
	return remaining, tx.Commit()
}

// ResetQuota starts a new period with the full allowance
func (s *SQLiteStorage) ResetQuota(ctx context.Context, allowance int, periodStart time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE emergency_quota
		SET remaining = ?, allowance = ?, period_start = ?, updated_at = ?
		WHERE id = 1
	`, allowance, allowance, periodStart.UTC(), time.Now().UTC())
	return err
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

var _ storage.Storage = (*SQLiteStorage)(nil)
