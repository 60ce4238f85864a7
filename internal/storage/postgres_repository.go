package storage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/focusguard/backend/internal/models"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS blocked_sites (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	domain     TEXT NOT NULL,
	always     BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, domain)
);

CREATE TABLE IF NOT EXISTS time_limits (
	id            TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	domain        TEXT NOT NULL,
	daily_minutes INTEGER NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (user_id, domain)
);

CREATE TABLE IF NOT EXISTS schedules (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	name       TEXT NOT NULL,
	days       INTEGER[] NOT NULL,
	start_hm   TEXT NOT NULL,
	end_hm     TEXT NOT NULL,
	domains    TEXT[] NOT NULL DEFAULT '{}',
	enabled    BOOLEAN NOT NULL DEFAULT TRUE,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_schedules_user ON schedules(user_id);

CREATE TABLE IF NOT EXISTS focus_sessions (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	label      TEXT NOT NULL DEFAULT '',
	started_at TIMESTAMPTZ NOT NULL,
	ends_at    TIMESTAMPTZ NOT NULL,
	ended_at   TIMESTAMPTZ,
	status     TEXT NOT NULL
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_one_active_session ON focus_sessions(user_id) WHERE status = 'active';
CREATE INDEX IF NOT EXISTS idx_sessions_user_started ON focus_sessions(user_id, started_at DESC);
CREATE INDEX IF NOT EXISTS idx_sessions_due ON focus_sessions(ends_at) WHERE status = 'active';

CREATE TABLE IF NOT EXISTS usage_entries (
	user_id    TEXT NOT NULL,
	day        TEXT NOT NULL,
	domain     TEXT NOT NULL,
	seconds    INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, day, domain)
);

CREATE TABLE IF NOT EXISTS block_pages (
	user_id      TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	message      TEXT NOT NULL DEFAULT '',
	quote        TEXT NOT NULL DEFAULT '',
	redirect_url TEXT NOT NULL DEFAULT '',
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

type PostgresRepository struct {
	pool *pgxpool.Pool
}

func NewPostgresRepository(ctx context.Context, dbURL string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, err
	}

	slog.Info("Connected to postgres")
	return &PostgresRepository{pool: pool}, nil
}

func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *PostgresRepository) Close(ctx context.Context) error {
	r.pool.Close()
	return nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	return err
}

func execOwned(ctx context.Context, pool *pgxpool.Pool, sql, userID, id string) error {
	tag, err := pool.Exec(ctx, sql, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) ListSites(ctx context.Context, userID string) ([]models.BlockedSite, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, domain, always, created_at
		 FROM blocked_sites WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.BlockedSite, 0)
	for rows.Next() {
		var s models.BlockedSite
		if err := rows.Scan(&s.ID, &s.UserID, &s.Domain, &s.Always, &s.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) AddSite(ctx context.Context, site *models.BlockedSite) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO blocked_sites (id, user_id, domain, always, created_at) VALUES ($1,$2,$3,$4,$5)`,
		site.ID, site.UserID, site.Domain, site.Always, site.CreatedAt,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepository) DeleteSite(ctx context.Context, userID, id string) error {
	return execOwned(ctx, r.pool, `DELETE FROM blocked_sites WHERE id = $1 AND user_id = $2`, userID, id)
}

func (r *PostgresRepository) ListLimits(ctx context.Context, userID string) ([]models.TimeLimit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, user_id, domain, daily_minutes, created_at, updated_at
		 FROM time_limits WHERE user_id = $1 ORDER BY domain`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.TimeLimit, 0)
	for rows.Next() {
		var l models.TimeLimit
		if err := rows.Scan(&l.ID, &l.UserID, &l.Domain, &l.DailyMinutes, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpsertLimit(ctx context.Context, limit *models.TimeLimit) (*models.TimeLimit, error) {
	out := &models.TimeLimit{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO time_limits (id, user_id, domain, daily_minutes, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (user_id, domain)
		 DO UPDATE SET daily_minutes = EXCLUDED.daily_minutes, updated_at = EXCLUDED.updated_at
		 RETURNING id, user_id, domain, daily_minutes, created_at, updated_at`,
		limit.ID, limit.UserID, limit.Domain, limit.DailyMinutes, limit.CreatedAt, limit.UpdatedAt,
	).Scan(&out.ID, &out.UserID, &out.Domain, &out.DailyMinutes, &out.CreatedAt, &out.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *PostgresRepository) DeleteLimit(ctx context.Context, userID, id string) error {
	return execOwned(ctx, r.pool, `DELETE FROM time_limits WHERE id = $1 AND user_id = $2`, userID, id)
}

const scheduleColumns = `id, user_id, name, days, start_hm, end_hm, domains, enabled, created_at, updated_at`

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	s := &models.Schedule{}
	err := row.Scan(&s.ID, &s.UserID, &s.Name, &s.Days, &s.Start, &s.End, &s.Domains, &s.Enabled, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) ListSchedules(ctx context.Context, userID string) ([]models.Schedule, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE user_id = $1 ORDER BY created_at`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.Schedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetSchedule(ctx context.Context, userID, id string) (*models.Schedule, error) {
	s, err := scanSchedule(r.pool.QueryRow(ctx,
		`SELECT `+scheduleColumns+` FROM schedules WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *PostgresRepository) SaveSchedule(ctx context.Context, s *models.Schedule) error {
	domains := s.Domains
	if domains == nil {
		domains = []string{}
	}
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO schedules (`+scheduleColumns+`)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
		 ON CONFLICT (id) DO UPDATE SET
		   name = EXCLUDED.name, days = EXCLUDED.days, start_hm = EXCLUDED.start_hm,
		   end_hm = EXCLUDED.end_hm, domains = EXCLUDED.domains, enabled = EXCLUDED.enabled,
		   updated_at = EXCLUDED.updated_at
		 WHERE schedules.user_id = EXCLUDED.user_id`,
		s.ID, s.UserID, s.Name, s.Days, s.Start, s.End, domains, s.Enabled, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteSchedule(ctx context.Context, userID, id string) error {
	return execOwned(ctx, r.pool, `DELETE FROM schedules WHERE id = $1 AND user_id = $2`, userID, id)
}

const sessionColumns = `id, user_id, label, started_at, ends_at, ended_at, status`

func scanSession(row pgx.Row) (*models.FocusSession, error) {
	s := &models.FocusSession{}
	err := row.Scan(&s.ID, &s.UserID, &s.Label, &s.StartedAt, &s.EndsAt, &s.EndedAt, &s.Status)
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (r *PostgresRepository) querySessions(ctx context.Context, sql string, args ...any) ([]models.FocusSession, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.FocusSession, 0)
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) CreateSession(ctx context.Context, s *models.FocusSession) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO focus_sessions (`+sessionColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		s.ID, s.UserID, s.Label, s.StartedAt, s.EndsAt, s.EndedAt, s.Status,
	)
	if isUniqueViolation(err) {
		return ErrConflict
	}
	return err
}

func (r *PostgresRepository) ActiveSession(ctx context.Context, userID string) (*models.FocusSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE user_id = $1 AND status = 'active'`, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *PostgresRepository) GetSession(ctx context.Context, userID, id string) (*models.FocusSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE id = $1 AND user_id = $2`, id, userID))
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

func (r *PostgresRepository) FinishSession(ctx context.Context, userID, id string, status models.SessionStatus, endedAt time.Time) (*models.FocusSession, error) {
	s, err := scanSession(r.pool.QueryRow(ctx,
		`UPDATE focus_sessions SET status = $1, ended_at = $2
		 WHERE id = $3 AND user_id = $4 AND status = 'active'
		 RETURNING `+sessionColumns, status, endedAt, id, userID))
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if _, err := r.GetSession(ctx, userID, id); err != nil {
		return nil, err
	}
	return nil, ErrConflict
}

func (r *PostgresRepository) ListSessions(ctx context.Context, userID string, limit int) ([]models.FocusSession, error) {
	if limit <= 0 {
		return r.querySessions(ctx,
			`SELECT `+sessionColumns+` FROM focus_sessions WHERE user_id = $1 ORDER BY started_at DESC`, userID)
	}
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE user_id = $1 ORDER BY started_at DESC LIMIT $2`, userID, limit)
}

func (r *PostgresRepository) ExpiredSessions(ctx context.Context, now time.Time) ([]models.FocusSession, error) {
	return r.querySessions(ctx,
		`SELECT `+sessionColumns+` FROM focus_sessions WHERE status = 'active' AND ends_at <= $1`, now)
}

func (r *PostgresRepository) AddUsage(ctx context.Context, userID, day, domain string, seconds int, at time.Time) (*models.UsageEntry, error) {
	u := &models.UsageEntry{}
	err := r.pool.QueryRow(ctx,
		`INSERT INTO usage_entries (user_id, day, domain, seconds, updated_at)
		 VALUES ($1,$2,$3,$4,$5)
		 ON CONFLICT (user_id, day, domain)
		 DO UPDATE SET seconds = usage_entries.seconds + EXCLUDED.seconds, updated_at = EXCLUDED.updated_at
		 RETURNING user_id, day, domain, seconds, updated_at`,
		userID, day, domain, seconds, at,
	).Scan(&u.UserID, &u.Day, &u.Domain, &u.Seconds, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (r *PostgresRepository) ListUsage(ctx context.Context, userID, day string) ([]models.UsageEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT user_id, day, domain, seconds, updated_at
		 FROM usage_entries WHERE user_id = $1 AND day = $2 ORDER BY seconds DESC`, userID, day)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.UsageEntry, 0)
	for rows.Next() {
		var u models.UsageEntry
		if err := rows.Scan(&u.UserID, &u.Day, &u.Domain, &u.Seconds, &u.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) GetBlockPage(ctx context.Context, userID string) (*models.BlockPage, error) {
	p := &models.BlockPage{}
	err := r.pool.QueryRow(ctx,
		`SELECT user_id, title, message, quote, redirect_url, updated_at
		 FROM block_pages WHERE user_id = $1`, userID,
	).Scan(&p.UserID, &p.Title, &p.Message, &p.Quote, &p.RedirectURL, &p.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return p, nil
}

func (r *PostgresRepository) PutBlockPage(ctx context.Context, page *models.BlockPage) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO block_pages (user_id, title, message, quote, redirect_url, updated_at)
		 VALUES ($1,$2,$3,$4,$5,$6)
		 ON CONFLICT (user_id) DO UPDATE SET
		   title = EXCLUDED.title, message = EXCLUDED.message, quote = EXCLUDED.quote,
		   redirect_url = EXCLUDED.redirect_url, updated_at = EXCLUDED.updated_at`,
		page.UserID, page.Title, page.Message, page.Quote, page.RedirectURL, page.UpdatedAt,
	)
	return err
}
