package sqlx

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	// Drivers selectable via Config.Driver.
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"runstreak/core"
	"runstreak/engine"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

// Config holds SQL connection configuration.
type Config struct {
	Driver          string        `json:"driver" env:"RUNSTREAK_SQL_DRIVER"`
	DSN             string        `json:"dsn" env:"RUNSTREAK_SQL_DSN"`
	MaxOpenConns    int           `json:"max_open_conns" env:"RUNSTREAK_SQL_MAX_OPEN_CONNS"`
	MaxIdleConns    int           `json:"max_idle_conns" env:"RUNSTREAK_SQL_MAX_IDLE_CONNS"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime" env:"RUNSTREAK_SQL_CONN_MAX_LIFETIME"`
}

// DefaultConfig returns sensible defaults for the given driver.
func DefaultConfig(driver string) Config {
	return Config{
		Driver:          driver,
		MaxOpenConns:    10,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

// Store implements engine.Storage on two tables: users and
// daily_progress, the latter unique per (user_id, day).
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens a connection pool and verifies it.
func New(cfg Config) (*Store, error) {
	db, err := sqlx.Connect(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return &Store{db: db, driver: cfg.Driver}, nil
}

// NewWithDB wraps an existing connection (useful for testing).
func NewWithDB(db *sqlx.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

// Close closes the underlying pool.
func (s *Store) Close() error { return s.db.Close() }

type progressRow struct {
	UserID    string    `db:"user_id"`
	Day       time.Time `db:"day"`
	Required  float64   `db:"required"`
	Completed float64   `db:"completed"`
	Status    string    `db:"status"`
}

func (r progressRow) toRecord() core.DailyProgress {
	return core.DailyProgress{
		UserID:    core.UserID(r.UserID),
		Date:      core.DayOf(r.Day),
		Required:  r.Required,
		Completed: r.Completed,
		Status:    core.DayStatus(r.Status),
	}
}

type userRow struct {
	ID                string         `db:"id"`
	DisplayName       string         `db:"display_name"`
	BailoutPasses     int            `db:"bailout_passes"`
	EliminatedAt      sql.NullTime   `db:"eliminated_at"`
	EliminationReason sql.NullString `db:"elimination_reason"`
	Age               sql.NullInt64  `db:"age"`
	Sex               sql.NullString `db:"sex"`
	BaselinePaceSecs  sql.NullInt64  `db:"baseline_pace_seconds"`
}

func (r userRow) toUser() core.User {
	u := core.User{
		ID:            core.UserID(r.ID),
		DisplayName:   r.DisplayName,
		BailoutPasses: r.BailoutPasses,
	}
	if r.EliminatedAt.Valid {
		at := core.DayOf(r.EliminatedAt.Time)
		u.EliminatedAt = &at
		u.EliminationReason = r.EliminationReason.String
	}
	if r.Age.Valid || r.Sex.Valid || r.BaselinePaceSecs.Valid {
		u.Profile = &core.AgeProfile{
			Age:          int(r.Age.Int64),
			Sex:          r.Sex.String,
			BaselinePace: time.Duration(r.BaselinePaceSecs.Int64) * time.Second,
		}
	}
	return u
}

func (s *Store) UpsertProgress(ctx context.Context, rec core.DailyProgress) error {
	day := core.DayOf(rec.Date)
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing float64
	err = tx.GetContext(ctx, &existing,
		tx.Rebind(`SELECT required FROM daily_progress WHERE user_id = ? AND day = ?`),
		string(rec.UserID), day)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO daily_progress (user_id, day, required, completed, status, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)`),
			string(rec.UserID), day, rec.Required, rec.Completed, string(rec.Status), time.Now().UTC(), time.Now().UTC())
	case err == nil:
		_, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE daily_progress SET required = ?, completed = ?, status = ?, updated_at = ? WHERE user_id = ? AND day = ?`),
			rec.Required, rec.Completed, string(rec.Status), time.Now().UTC(), string(rec.UserID), day)
	}
	if err != nil {
		return fmt.Errorf("failed to upsert progress: %w", err)
	}
	return tx.Commit()
}

func (s *Store) GetProgress(ctx context.Context, user core.UserID, day time.Time) (core.DailyProgress, bool, error) {
	var row progressRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT user_id, day, required, completed, status FROM daily_progress WHERE user_id = ? AND day = ?`),
		string(user), core.DayOf(day))
	if errors.Is(err, sql.ErrNoRows) {
		return core.DailyProgress{}, false, nil
	}
	if err != nil {
		return core.DailyProgress{}, false, fmt.Errorf("failed to get progress: %w", err)
	}
	return row.toRecord(), true, nil
}

func (s *Store) selectProgress(ctx context.Context, query string, args ...any) ([]core.DailyProgress, error) {
	var rows []progressRow
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query progress: %w", err)
	}
	out := make([]core.DailyProgress, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toRecord())
	}
	return out, nil
}

func (s *Store) ProgressRange(ctx context.Context, user core.UserID, start, end time.Time) ([]core.DailyProgress, error) {
	return s.selectProgress(ctx,
		`SELECT user_id, day, required, completed, status FROM daily_progress WHERE user_id = ? AND day >= ? AND day <= ? ORDER BY day DESC`,
		string(user), core.DayOf(start), core.DayOf(end))
}

func (s *Store) RecentProgress(ctx context.Context, user core.UserID, asOf time.Time, limit int) ([]core.DailyProgress, error) {
	return s.selectProgress(ctx,
		`SELECT user_id, day, required, completed, status FROM daily_progress WHERE user_id = ? AND day <= ? ORDER BY day DESC LIMIT ?`,
		string(user), core.DayOf(asOf), limit)
}

func (s *Store) History(ctx context.Context, user core.UserID) ([]core.DailyProgress, error) {
	return s.selectProgress(ctx,
		`SELECT user_id, day, required, completed, status FROM daily_progress WHERE user_id = ? ORDER BY day DESC`,
		string(user))
}

const userColumns = `id, display_name, bailout_passes, eliminated_at, elimination_reason, age, sex, baseline_pace_seconds`

func (s *Store) GetUser(ctx context.Context, id core.UserID) (core.User, error) {
	var row userRow
	err := s.db.GetContext(ctx, &row,
		s.db.Rebind(`SELECT `+userColumns+` FROM users WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return core.User{}, engine.ErrUserNotFound
	}
	if err != nil {
		return core.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return row.toUser(), nil
}

func (s *Store) PutUser(ctx context.Context, u core.User) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin put user: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists bool
	if err := tx.GetContext(ctx, &exists,
		tx.Rebind(`SELECT EXISTS(SELECT 1 FROM users WHERE id = ?)`), string(u.ID)); err != nil {
		return fmt.Errorf("failed to check user: %w", err)
	}

	var eliminatedAt sql.NullTime
	var reason sql.NullString
	if u.EliminatedAt != nil {
		eliminatedAt = sql.NullTime{Time: *u.EliminatedAt, Valid: true}
		reason = sql.NullString{String: u.EliminationReason, Valid: true}
	}
	var age, pace sql.NullInt64
	var sex sql.NullString
	if u.Profile != nil {
		age = sql.NullInt64{Int64: int64(u.Profile.Age), Valid: true}
		sex = sql.NullString{String: u.Profile.Sex, Valid: true}
		pace = sql.NullInt64{Int64: int64(u.Profile.BaselinePace / time.Second), Valid: true}
	}

	if exists {
		_, err = tx.ExecContext(ctx,
			tx.Rebind(`UPDATE users SET display_name = ?, bailout_passes = ?, eliminated_at = ?, elimination_reason = ?, age = ?, sex = ?, baseline_pace_seconds = ?, updated_at = ? WHERE id = ?`),
			u.DisplayName, u.BailoutPasses, eliminatedAt, reason, age, sex, pace, time.Now().UTC(), string(u.ID))
	} else {
		_, err = tx.ExecContext(ctx,
			tx.Rebind(`INSERT INTO users (id, display_name, bailout_passes, eliminated_at, elimination_reason, age, sex, baseline_pace_seconds, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
			string(u.ID), u.DisplayName, u.BailoutPasses, eliminatedAt, reason, age, sex, pace, time.Now().UTC(), time.Now().UTC())
	}
	if err != nil {
		return fmt.Errorf("failed to put user: %w", err)
	}
	return tx.Commit()
}

func (s *Store) ListUsers(ctx context.Context) ([]core.User, error) {
	var rows []userRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT `+userColumns+` FROM users ORDER BY id`); err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]core.User, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.toUser())
	}
	return out, nil
}

// SpendBailoutPass uses a guarded UPDATE: the decrement only applies while
// the balance is above zero, so a zero balance is a no-op rather than an
// error or a negative counter.
func (s *Store) SpendBailoutPass(ctx context.Context, id core.UserID) (int, bool, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, false, fmt.Errorf("failed to begin bailout: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		tx.Rebind(`UPDATE users SET bailout_passes = bailout_passes - 1, updated_at = ? WHERE id = ? AND bailout_passes > 0`),
		time.Now().UTC(), string(id))
	if err != nil {
		return 0, false, fmt.Errorf("failed to spend bailout pass: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, false, err
	}

	var remaining int
	err = tx.GetContext(ctx, &remaining,
		tx.Rebind(`SELECT bailout_passes FROM users WHERE id = ?`), string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, engine.ErrUserNotFound
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read bailout balance: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, false, err
	}
	return remaining, affected > 0, nil
}

func (s *Store) MarkEliminated(ctx context.Context, id core.UserID, at time.Time, reason string) error {
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE users SET eliminated_at = ?, elimination_reason = ?, updated_at = ? WHERE id = ?`),
		core.DayOf(at), reason, time.Now().UTC(), string(id))
	if err != nil {
		return fmt.Errorf("failed to mark eliminated: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.ErrUserNotFound
	}
	return nil
}

var _ engine.Storage = (*Store)(nil)
