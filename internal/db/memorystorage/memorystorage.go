package memorystorage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/types"
)

// Manager handles in-memory storage for shortened URLs and click events.
// Used by tests and single-node local runs.
type Manager struct {
	mu     sync.Mutex
	links  []types.ShortLink
	clicks []types.ClickEvent
	nextID int64
	Config *config.Config
}

// NewManager initializes a new memory storage manager.
func NewManager(cfg *config.Config) (*Manager, error) {
	return &Manager{
		nextID: 1,
		Config: cfg,
	}, nil
}

// Insert stores a new link after checking the uniqueness of its code and alias.
func (m *Manager) Insert(_ context.Context, link types.ShortLink) (types.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.inUseLocked(link.ShortCode) || (link.CustomAlias != "" && m.inUseLocked(link.CustomAlias)) {
		return types.ShortLink{}, types.ErrConflict
	}

	link.ID = m.nextID
	m.nextID++
	if link.CreatedAt.IsZero() {
		link.CreatedAt = time.Now()
	}
	m.links = append(m.links, link)
	return link, nil
}

// GetByCode returns the link whose code or alias equals key. Linear scan;
// the memory backend trades speed for simplicity.
func (m *Manager) GetByCode(_ context.Context, key string) (types.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, i := m.findLocked(key); i >= 0 {
		return l, nil
	}
	return types.ShortLink{}, types.ErrNotFound
}

// CodeInUse reports whether key collides with any code or alias, deleted
// records included.
func (m *Manager) CodeInUse(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.inUseLocked(key), nil
}

// Update changes the alias and/or expiration of a link.
func (m *Manager) Update(_ context.Context, code string, upd types.LinkUpdate) (types.ShortLink, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, i := m.findLocked(code)
	if i < 0 {
		return types.ShortLink{}, types.ErrNotFound
	}

	if upd.CustomAlias != nil {
		alias := *upd.CustomAlias
		for j, other := range m.links {
			if j == i {
				continue
			}
			if other.ShortCode == alias || (other.CustomAlias != "" && other.CustomAlias == alias) {
				return types.ShortLink{}, types.ErrConflict
			}
		}
		l.CustomAlias = alias
	}
	if upd.ExpirationDays != nil {
		exp := time.Now().AddDate(0, 0, *upd.ExpirationDays)
		l.ExpiresAt = &exp
	}

	m.links[i] = l
	return l, nil
}

// Deactivate soft-deletes a link. The record stays so codes are never reused
// and click history remains queryable.
func (m *Manager) Deactivate(_ context.Context, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, i := m.findLocked(code)
	if i < 0 {
		return types.ErrNotFound
	}
	m.links[i].IsActive = false
	return nil
}

// AddClick appends a click event and bumps the durable click count atomically.
func (m *Manager) AddClick(_ context.Context, ev types.ClickEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, i := m.findLocked(ev.ShortCode)
	if i < 0 {
		return types.ErrNotFound
	}

	ev.ID = int64(len(m.clicks) + 1)
	ev.URLID = l.ID
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	m.clicks = append(m.clicks, ev)
	m.links[i].Clicks++
	return nil
}

// ClickCount returns the durable click count for a code.
func (m *Manager) ClickCount(_ context.Context, code string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, i := m.findLocked(code)
	if i < 0 {
		return 0, types.ErrNotFound
	}
	return l.Clicks, nil
}

// Summary aggregates the click history of a code.
func (m *Manager) Summary(_ context.Context, code string) (types.ClickSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, i := m.findLocked(code)
	if i < 0 {
		return types.ClickSummary{}, types.ErrNotFound
	}

	s := types.ClickSummary{
		ShortCode:       l.ShortCode,
		TotalClicks:     l.Clicks,
		ClicksByCountry: map[string]int64{},
		ClicksByRef:     map[string]int64{},
		ClicksByDate:    map[string]int64{},
	}
	now := time.Now()
	dayAgo := now.Add(-24 * time.Hour)
	dateCutoff := now.Add(-types.SummaryDateWindow)

	var recent []types.RecentClick
	for _, ev := range m.clicks {
		if ev.URLID != l.ID {
			continue
		}
		ts := ev.Timestamp
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
		if ev.Country != "" {
			s.ClicksByCountry[ev.Country]++
		}
		if ev.Referrer != "" {
			s.ClicksByRef[ev.Referrer]++
		}
		recent = append(recent, types.RecentClick{
			Timestamp:  ts,
			ClientAddr: ev.ClientAddr,
			UserAgent:  ev.UserAgent,
			Referrer:   ev.Referrer,
			Country:    ev.Country,
		})
	}

	sort.Slice(recent, func(i, j int) bool { return recent[i].Timestamp.After(recent[j].Timestamp) })
	if len(recent) > types.SummaryRecentLimit {
		recent = recent[:types.SummaryRecentLimit]
	}
	s.RecentClicks = recent
	return s, nil
}

// Ping always succeeds for the in-memory backend.
func (m *Manager) Ping(_ context.Context) error { return nil }

// Close is a no-op for the in-memory backend.
func (m *Manager) Close(_ context.Context) error { return nil }

func (m *Manager) findLocked(key string) (types.ShortLink, int) {
	for i, l := range m.links {
		if l.ShortCode == key || (l.CustomAlias != "" && l.CustomAlias == key) {
			return l, i
		}
	}
	return types.ShortLink{}, -1
}

func (m *Manager) inUseLocked(key string) bool {
	_, i := m.findLocked(key)
	return i >= 0
}
