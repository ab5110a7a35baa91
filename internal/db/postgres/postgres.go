package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/types"
)

// pgUniqueViolation is the SQLSTATE for unique-constraint violations.
const pgUniqueViolation = "23505"

type Manager struct {
	db *sql.DB
}

// NewManager connects to PostgreSQL and ensures the schema exists.
func NewManager(cfg *config.Config) (*Manager, error) {
	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	m := &Manager{db: db}
	if err = m.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return m, nil
}

func (m *Manager) migrate() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS urls (
			id            BIGSERIAL PRIMARY KEY,
			short_code    VARCHAR(50) NOT NULL UNIQUE,
			custom_alias  VARCHAR(50) UNIQUE,
			original_url  TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			expires_at    TIMESTAMPTZ,
			is_active     BOOLEAN NOT NULL DEFAULT TRUE,
			clicks        BIGINT NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS clicks (
			id           BIGSERIAL PRIMARY KEY,
			url_id       BIGINT NOT NULL REFERENCES urls(id),
			ts           TIMESTAMPTZ NOT NULL DEFAULT now(),
			client_addr  VARCHAR(45) NOT NULL,
			user_agent   TEXT,
			referrer     TEXT,
			country      VARCHAR(2)
		);
		CREATE INDEX IF NOT EXISTS clicks_url_id_ts_idx ON clicks (url_id, ts);
	`)
	return err
}

// Insert stores a new link. The unique indexes on short_code and custom_alias
// are the final arbiter of uniqueness; a violation maps to types.ErrConflict.
func (m *Manager) Insert(ctx context.Context, link types.ShortLink) (types.ShortLink, error) {
	err := m.db.QueryRowContext(ctx,
		`INSERT INTO urls (short_code, custom_alias, original_url, expires_at, is_active)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5)
		 RETURNING id, created_at`,
		link.ShortCode, link.CustomAlias, link.OriginalURL, link.ExpiresAt, link.IsActive,
	).Scan(&link.ID, &link.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return types.ShortLink{}, types.ErrConflict
		}
		return types.ShortLink{}, fmt.Errorf("failed to insert URL: %w", err)
	}
	return link, nil
}

// GetByCode returns the link whose short code or custom alias equals key.
func (m *Manager) GetByCode(ctx context.Context, key string) (types.ShortLink, error) {
	var (
		link    types.ShortLink
		alias   sql.NullString
		expires sql.NullTime
	)
	err := m.db.QueryRowContext(ctx,
		`SELECT id, short_code, custom_alias, original_url, created_at, expires_at, is_active, clicks
		 FROM urls WHERE short_code = $1 OR custom_alias = $1`, key,
	).Scan(&link.ID, &link.ShortCode, &alias, &link.OriginalURL,
		&link.CreatedAt, &expires, &link.IsActive, &link.Clicks)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ShortLink{}, types.ErrNotFound
		}
		return types.ShortLink{}, fmt.Errorf("failed to get URL: %w", err)
	}
	link.CustomAlias = alias.String
	if expires.Valid {
		link.ExpiresAt = &expires.Time
	}
	return link, nil
}

// CodeInUse checks key against both codes and aliases, deleted rows included.
func (m *Manager) CodeInUse(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := m.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = $1 OR custom_alias = $1)`, key,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check if code exists: %w", err)
	}
	return exists, nil
}

// Update changes the alias and/or expiration of a link.
func (m *Manager) Update(ctx context.Context, code string, upd types.LinkUpdate) (types.ShortLink, error) {
	if upd.CustomAlias != nil {
		_, err := m.db.ExecContext(ctx,
			`UPDATE urls SET custom_alias = $1 WHERE short_code = $2`, *upd.CustomAlias, code)
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return types.ShortLink{}, types.ErrConflict
			}
			return types.ShortLink{}, fmt.Errorf("failed to update alias: %w", err)
		}
	}
	if upd.ExpirationDays != nil {
		exp := time.Now().AddDate(0, 0, *upd.ExpirationDays)
		_, err := m.db.ExecContext(ctx,
			`UPDATE urls SET expires_at = $1 WHERE short_code = $2`, exp, code)
		if err != nil {
			return types.ShortLink{}, fmt.Errorf("failed to update expiration: %w", err)
		}
	}
	return m.GetByCode(ctx, code)
}

// Deactivate soft-deletes a link. Rows are never physically removed so click
// history stays queryable and codes are never reused.
func (m *Manager) Deactivate(ctx context.Context, code string) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE urls SET is_active = FALSE WHERE short_code = $1`, code)
	if err != nil {
		return fmt.Errorf("failed to deactivate URL: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return types.ErrNotFound
	}
	return nil
}

// AddClick appends a click event and bumps the durable click count in one
// transaction.
func (m *Manager) AddClick(ctx context.Context, ev types.ClickEvent) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin click transaction: %w", err)
	}
	defer tx.Rollback()

	var urlID int64
	err = tx.QueryRowContext(ctx,
		`UPDATE urls SET clicks = clicks + 1 WHERE short_code = $1 RETURNING id`, ev.ShortCode,
	).Scan(&urlID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		return fmt.Errorf("failed to increment clicks: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO clicks (url_id, ts, client_addr, user_agent, referrer, country)
		 VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), NULLIF($6, ''))`,
		urlID, ev.Timestamp, ev.ClientAddr, ev.UserAgent, ev.Referrer, ev.Country)
	if err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return tx.Commit()
}

// ClickCount returns the durable click count for a code or alias.
func (m *Manager) ClickCount(ctx context.Context, code string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx,
		`SELECT clicks FROM urls WHERE short_code = $1 OR custom_alias = $1`, code).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.ErrNotFound
		}
		return 0, fmt.Errorf("failed to get click count: %w", err)
	}
	return n, nil
}

// Summary aggregates the click history of a code.
func (m *Manager) Summary(ctx context.Context, code string) (types.ClickSummary, error) {
	link, err := m.GetByCode(ctx, code)
	if err != nil {
		return types.ClickSummary{}, err
	}

	s := types.ClickSummary{
		ShortCode:       link.ShortCode,
		TotalClicks:     link.Clicks,
		ClicksByCountry: map[string]int64{},
		ClicksByRef:     map[string]int64{},
		ClicksByDate:    map[string]int64{},
	}

	var first, last sql.NullTime
	err = m.db.QueryRowContext(ctx,
		`SELECT MIN(ts), MAX(ts),
		        COUNT(*) FILTER (WHERE ts >= now() - INTERVAL '24 hours')
		 FROM clicks WHERE url_id = $1`, link.ID,
	).Scan(&first, &last, &s.ClicksLast24h)
	if err != nil {
		return types.ClickSummary{}, fmt.Errorf("failed to aggregate clicks: %w", err)
	}
	if first.Valid {
		s.FirstClick = &first.Time
	}
	if last.Valid {
		s.LastClick = &last.Time
	}

	if err = m.groupCount(ctx, link.ID, "country", s.ClicksByCountry); err != nil {
		return types.ClickSummary{}, err
	}
	if err = m.groupCount(ctx, link.ID, "referrer", s.ClicksByRef); err != nil {
		return types.ClickSummary{}, err
	}

	rows, err := m.db.QueryContext(ctx,
		`SELECT to_char((ts AT TIME ZONE 'UTC')::date, 'YYYY-MM-DD'), COUNT(*)
		 FROM clicks WHERE url_id = $1 AND ts >= now() - INTERVAL '30 days'
		 GROUP BY 1`, link.ID)
	if err != nil {
		return types.ClickSummary{}, fmt.Errorf("failed to group clicks by date: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day string
			n   int64
		)
		if err = rows.Scan(&day, &n); err != nil {
			return types.ClickSummary{}, err
		}
		s.ClicksByDate[day] = n
	}
	if err = rows.Err(); err != nil {
		return types.ClickSummary{}, err
	}

	if s.RecentClicks, err = m.recentClicks(ctx, link.ID); err != nil {
		return types.ClickSummary{}, err
	}

	return s, nil
}

func (m *Manager) recentClicks(ctx context.Context, urlID int64) ([]types.RecentClick, error) {
	rows, err := m.db.QueryContext(ctx,
		`SELECT ts, client_addr, user_agent, referrer, country
		 FROM clicks WHERE url_id = $1 ORDER BY ts DESC LIMIT $2`,
		urlID, types.SummaryRecentLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to read recent clicks: %w", err)
	}
	defer rows.Close()

	var recent []types.RecentClick
	for rows.Next() {
		var (
			ts                       time.Time
			addr                     string
			agent, referrer, country sql.NullString
		)
		if err = rows.Scan(&ts, &addr, &agent, &referrer, &country); err != nil {
			return nil, err
		}
		recent = append(recent, types.RecentClick{
			Timestamp:  ts,
			ClientAddr: addr,
			UserAgent:  agent.String,
			Referrer:   referrer.String,
			Country:    country.String,
		})
	}
	return recent, rows.Err()
}

func (m *Manager) groupCount(ctx context.Context, urlID int64, column string, dst map[string]int64) error {
	// column is one of two compile-time constants, never user input.
	rows, err := m.db.QueryContext(ctx,
		`SELECT `+column+`, COUNT(*) FROM clicks
		 WHERE url_id = $1 AND `+column+` IS NOT NULL GROUP BY `+column, urlID)
	if err != nil {
		return fmt.Errorf("failed to group clicks by %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			k string
			n int64
		)
		if err = rows.Scan(&k, &n); err != nil {
			return err
		}
		dst[k] = n
	}
	return rows.Err()
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database connection.
func (m *Manager) Close(ctx context.Context) error {
	return m.db.Close()
}
