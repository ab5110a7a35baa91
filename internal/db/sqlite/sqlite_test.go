package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(&config.Config{
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	})
	if err != nil {
		t.Fatalf("NewManager() error: %v", err)
	}
	t.Cleanup(func() { m.Close(context.Background()) })
	return m
}

func TestClickCount_MatchesAlias(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Insert(ctx, types.ShortLink{
		ShortCode:   "abc123",
		CustomAlias: "promo",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
	if err = m.AddClick(ctx, types.ClickEvent{
		ShortCode:  "abc123",
		Timestamp:  time.Now(),
		ClientAddr: "10.0.0.1",
	}); err != nil {
		t.Fatalf("AddClick() error: %v", err)
	}

	// Code and alias are both identities of the same record.
	for _, key := range []string{"abc123", "promo"} {
		n, err := m.ClickCount(ctx, key)
		if err != nil {
			t.Fatalf("ClickCount(%q) error: %v", key, err)
		}
		if n != 1 {
			t.Errorf("ClickCount(%q) = %d, want 1", key, n)
		}
	}

	if _, err = m.ClickCount(ctx, "nosuch"); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown key, got %v", err)
	}
}

func TestSummary_RecentAndByDate(t *testing.T) {
	m := newTestManager(t)
	ctx := context.Background()

	_, err := m.Insert(ctx, types.ShortLink{
		ShortCode:   "sum1",
		OriginalURL: "https://example.com",
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}

	now := time.Now()
	for _, ts := range []time.Time{now.Add(-2 * time.Hour), now.Add(-time.Hour), now} {
		if err = m.AddClick(ctx, types.ClickEvent{
			ShortCode:  "sum1",
			Timestamp:  ts,
			ClientAddr: "10.0.0.1",
			Country:    "DE",
		}); err != nil {
			t.Fatalf("AddClick() error: %v", err)
		}
	}

	s, err := m.Summary(ctx, "sum1")
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if len(s.RecentClicks) != 3 {
		t.Fatalf("expected 3 recent clicks, got %d", len(s.RecentClicks))
	}
	for i := 1; i < len(s.RecentClicks); i++ {
		if s.RecentClicks[i].Timestamp.After(s.RecentClicks[i-1].Timestamp) {
			t.Error("recent clicks must be ordered newest first")
		}
	}
	var dated int64
	for _, n := range s.ClicksByDate {
		dated += n
	}
	if dated != 3 {
		t.Errorf("expected 3 clicks in the date breakdown, got %d (%v)", dated, s.ClicksByDate)
	}
	if s.ClicksLast24h != 3 {
		t.Errorf("expected 3 clicks in the last 24h, got %d", s.ClicksLast24h)
	}
}
