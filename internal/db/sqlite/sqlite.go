package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/types"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Manager is the SQLite-backed durable store. It offers the same guarantees
// as the postgres backend for single-node deployments.
type Manager struct {
	db *sql.DB
}

// NewManager opens (or creates) the SQLite database and ensures the schema.
func NewManager(cfg *config.Config) (*Manager, error) {
	db, err := sql.Open("sqlite", cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	// SQLite allows one writer at a time; a single connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	if err = db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping sqlite database: %w", err)
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
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			short_code    TEXT NOT NULL UNIQUE,
			custom_alias  TEXT UNIQUE,
			original_url  TEXT NOT NULL,
			created_at    TIMESTAMP NOT NULL,
			expires_at    TIMESTAMP,
			is_active     BOOLEAN NOT NULL DEFAULT 1,
			clicks        INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS clicks (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			url_id       INTEGER NOT NULL REFERENCES urls(id),
			ts           TIMESTAMP NOT NULL,
			client_addr  TEXT NOT NULL,
			user_agent   TEXT,
			referrer     TEXT,
			country      TEXT
		);
		CREATE INDEX IF NOT EXISTS clicks_url_id_ts_idx ON clicks (url_id, ts);
	`)
	return err
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	return errors.As(err, &se) && se.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE
}

// Insert stores a new link; the unique indexes arbitrate code and alias
// uniqueness.
func (m *Manager) Insert(ctx context.Context, link types.ShortLink) (types.ShortLink, error) {
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now().UTC()
	}
	var alias interface{}
	if link.CustomAlias != "" {
		alias = link.CustomAlias
	}
	res, err := m.db.ExecContext(ctx,
		`INSERT INTO urls (short_code, custom_alias, original_url, created_at, expires_at, is_active)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		link.ShortCode, alias, link.OriginalURL, link.CreatedAt, link.ExpiresAt, link.IsActive)
	if err != nil {
		if isUniqueViolation(err) {
			return types.ShortLink{}, types.ErrConflict
		}
		return types.ShortLink{}, fmt.Errorf("failed to insert URL: %w", err)
	}
	link.ID, err = res.LastInsertId()
	if err != nil {
		return types.ShortLink{}, err
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
		 FROM urls WHERE short_code = ? OR custom_alias = ?`, key, key,
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
		`SELECT EXISTS(SELECT 1 FROM urls WHERE short_code = ? OR custom_alias = ?)`, key, key,
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
			`UPDATE urls SET custom_alias = ? WHERE short_code = ?`, *upd.CustomAlias, code)
		if err != nil {
			if isUniqueViolation(err) {
				return types.ShortLink{}, types.ErrConflict
			}
			return types.ShortLink{}, fmt.Errorf("failed to update alias: %w", err)
		}
	}
	if upd.ExpirationDays != nil {
		exp := time.Now().UTC().AddDate(0, 0, *upd.ExpirationDays)
		_, err := m.db.ExecContext(ctx,
			`UPDATE urls SET expires_at = ? WHERE short_code = ?`, exp, code)
		if err != nil {
			return types.ShortLink{}, fmt.Errorf("failed to update expiration: %w", err)
		}
	}
	return m.GetByCode(ctx, code)
}

// Deactivate soft-deletes a link.
func (m *Manager) Deactivate(ctx context.Context, code string) error {
	res, err := m.db.ExecContext(ctx,
		`UPDATE urls SET is_active = 0 WHERE short_code = ?`, code)
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
		`SELECT id FROM urls WHERE short_code = ?`, ev.ShortCode).Scan(&urlID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrNotFound
		}
		return fmt.Errorf("failed to resolve URL for click: %w", err)
	}

	if _, err = tx.ExecContext(ctx,
		`UPDATE urls SET clicks = clicks + 1 WHERE id = ?`, urlID); err != nil {
		return fmt.Errorf("failed to increment clicks: %w", err)
	}

	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO clicks (url_id, ts, client_addr, user_agent, referrer, country)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		urlID, ev.Timestamp, ev.ClientAddr, ev.UserAgent, ev.Referrer, ev.Country); err != nil {
		return fmt.Errorf("failed to insert click: %w", err)
	}

	return tx.Commit()
}

// ClickCount returns the durable click count for a code or alias.
func (m *Manager) ClickCount(ctx context.Context, code string) (int64, error) {
	var n int64
	err := m.db.QueryRowContext(ctx,
		`SELECT clicks FROM urls WHERE short_code = ? OR custom_alias = ?`, code, code).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, types.ErrNotFound
		}
		return 0, fmt.Errorf("failed to get click count: %w", err)
	}
	return n, nil
}

// Summary aggregates the click history of a code. Aggregation happens in Go
// to keep timestamp handling uniform across drivers.
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

	rows, err := m.db.QueryContext(ctx,
		`SELECT ts, client_addr, user_agent, referrer, country
		 FROM clicks WHERE url_id = ? ORDER BY ts DESC`, link.ID)
	if err != nil {
		return types.ClickSummary{}, fmt.Errorf("failed to read clicks: %w", err)
	}
	defer rows.Close()

	now := time.Now().UTC()
	dayAgo := now.Add(-24 * time.Hour)
	dateCutoff := now.Add(-types.SummaryDateWindow)
	for rows.Next() {
		var (
			ts                       time.Time
			addr                     string
			agent, referrer, country sql.NullString
		)
		if err = rows.Scan(&ts, &addr, &agent, &referrer, &country); err != nil {
			return types.ClickSummary{}, err
		}
		if s.FirstClick == nil || ts.Before(*s.FirstClick) {
			t := ts
			s.FirstClick = &t
		}
		if s.LastClick == nil || ts.After(*s.LastClick) {
			t := ts
			s.LastClick = &t
		}
		if ts.After(dayAgo) {
			s.ClicksLast24h++
		}
		if ts.After(dateCutoff) {
			s.ClicksByDate[ts.UTC().Format(types.SummaryDateLayout)]++
		}
		if country.String != "" {
			s.ClicksByCountry[country.String]++
		}
		if referrer.String != "" {
			s.ClicksByRef[referrer.String]++
		}
		// Rows arrive newest first, so the list fills in recency order.
		if len(s.RecentClicks) < types.SummaryRecentLimit {
			s.RecentClicks = append(s.RecentClicks, types.RecentClick{
				Timestamp:  ts,
				ClientAddr: addr,
				UserAgent:  agent.String,
				Referrer:   referrer.String,
				Country:    country.String,
			})
		}
	}
	if err = rows.Err(); err != nil {
		return types.ClickSummary{}, err
	}
	return s, nil
}

func (m *Manager) Ping(ctx context.Context) error {
	return m.db.PingContext(ctx)
}

// Close closes the database connection.
func (m *Manager) Close(ctx context.Context) error {
	return m.db.Close()
}
