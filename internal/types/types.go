package types

import (
	"errors"
	"time"
)

// ErrNotFound is returned by storage backends when no record matches the
// requested code or alias.
var ErrNotFound = errors.New("record not found")

// ErrConflict is returned when an insert or update violates the unique
// constraint on short codes or aliases. The unique index of the durable
// store is the final arbiter of identity uniqueness.
var ErrConflict = errors.New("short code or alias already in use")

// ShortLink represents a single shortened URL record. The short code is
// assigned once on creation and never changes; a custom alias is an alternate
// identity that resolves to the same record. Records are soft-deleted by
// clearing IsActive so click history stays queryable.
type ShortLink struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	Clicks      int64      `json:"clicks"`
}

// Expired reports whether the link's expiration timestamp has passed.
func (l ShortLink) Expired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// ClickEvent is an append-only record of a single successful redirect.
type ClickEvent struct {
	ID         int64     `json:"id"`
	URLID      int64     `json:"url_id"`
	ShortCode  string    `json:"short_code"`
	Timestamp  time.Time `json:"timestamp"`
	ClientAddr string    `json:"client_addr"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	Country    string    `json:"country,omitempty"`
}

// LinkUpdate carries the mutable fields of a ShortLink. Nil means unchanged.
type LinkUpdate struct {
	CustomAlias    *string `json:"custom_alias,omitempty"`
	ExpirationDays *int    `json:"expiration_days,omitempty"`
}

// RecentClick is one entry of the most-recent-clicks list in a summary.
type RecentClick struct {
	Timestamp  time.Time `json:"timestamp"`
	ClientAddr string    `json:"client_addr"`
	UserAgent  string    `json:"user_agent,omitempty"`
	Referrer   string    `json:"referrer,omitempty"`
	Country    string    `json:"country,omitempty"`
}

// ClickSummary aggregates the click history of one short code. ClicksByDate
// covers the last 30 days keyed by UTC date; RecentClicks holds up to the 50
// newest events, newest first.
type ClickSummary struct {
	ShortCode       string           `json:"short_code"`
	TotalClicks     int64            `json:"total_clicks"`
	FirstClick      *time.Time       `json:"first_click,omitempty"`
	LastClick       *time.Time       `json:"last_click,omitempty"`
	ClicksLast24h   int64            `json:"clicks_last_24h"`
	ClicksByCountry map[string]int64 `json:"clicks_by_country,omitempty"`
	ClicksByRef     map[string]int64 `json:"clicks_by_referrer,omitempty"`
	ClicksByDate    map[string]int64 `json:"clicks_by_date,omitempty"`
	RecentClicks    []RecentClick    `json:"recent_clicks,omitempty"`
}

// SummaryDateWindow bounds the clicks-by-date aggregate.
const SummaryDateWindow = 30 * 24 * time.Hour

// SummaryRecentLimit caps the recent-clicks list.
const SummaryRecentLimit = 50

// SummaryDateLayout keys the clicks-by-date map.
const SummaryDateLayout = "2006-01-02"

// ShortenRequest represents the incoming request to shorten a URL.
// ExpirationDays distinguishes absent (nil, default applies) from an explicit
// zero, which creates an already-expired link.
type ShortenRequest struct {
	URL            string `json:"url"`
	CustomAlias    string `json:"custom_alias,omitempty"`
	ExpirationDays *int   `json:"expiration_days,omitempty"`
}

// ShortenResponse represents the response for a URL shortening request.
type ShortenResponse struct {
	ShortURL    string     `json:"short_url"`
	ShortCode   string     `json:"short_code"`
	OriginalURL string     `json:"original_url"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Clicks      int64      `json:"clicks"`
}
