package analytics

import (
	"context"
	"testing"
	"time"

	"github.com/linkcut/linkcut/config"
	"github.com/linkcut/linkcut/internal/cache"
	"github.com/linkcut/linkcut/internal/cache/memcache"
	"github.com/linkcut/linkcut/internal/clock"
	"github.com/linkcut/linkcut/internal/db/memorystorage"
	"github.com/linkcut/linkcut/internal/types"
	"github.com/linkcut/linkcut/logging"
)

func setup(t *testing.T) (*Recorder, *memorystorage.Manager, *cache.Layer) {
	t.Helper()
	storage, err := memorystorage.NewManager(&config.Config{})
	if err != nil {
		t.Fatalf("failed to create memory storage: %v", err)
	}
	store, err := memcache.NewStore(time.Hour)
	if err != nil {
		t.Fatalf("failed to create memcache store: %v", err)
	}
	layer := cache.NewLayer(store, storage, time.Hour, time.Second, clock.System{}, logging.GetSugaredLogger())
	// interval 0: reconciliation is driven manually by the tests.
	r := NewRecorder(storage, layer, 16, time.Second, 0, logging.GetSugaredLogger())
	return r, storage, layer
}

func insertLink(t *testing.T, storage *memorystorage.Manager, code string) {
	t.Helper()
	_, err := storage.Insert(context.Background(), types.ShortLink{
		ShortCode:   code,
		OriginalURL: "https://example.com/" + code,
		IsActive:    true,
	})
	if err != nil {
		t.Fatalf("Insert() error: %v", err)
	}
}

func TestRecord_PersistsDurably(t *testing.T) {
	r, storage, _ := setup(t)
	insertLink(t, storage, "abc123")

	for i := 0; i < 5; i++ {
		r.Record(types.ClickEvent{
			ShortCode:  "abc123",
			ClientAddr: "10.0.0.1",
			UserAgent:  "curl/8.0",
			Referrer:   "https://news.example",
			Country:    "DE",
		})
	}
	r.Close()

	n, err := storage.ClickCount(context.Background(), "abc123")
	if err != nil {
		t.Fatalf("ClickCount() error: %v", err)
	}
	if n != 5 {
		t.Errorf("expected durable click count 5, got %d", n)
	}
}

func TestRecord_UnknownCodeDoesNotPanic(t *testing.T) {
	r, _, _ := setup(t)
	r.Record(types.ClickEvent{ShortCode: "ghost", ClientAddr: "10.0.0.1"})
	r.Close()
}

func TestRecord_AfterCloseDropsEvent(t *testing.T) {
	r, storage, _ := setup(t)
	insertLink(t, storage, "late1")
	r.Close()

	// A redirect racing a shutdown must be turned away, never panic.
	r.Record(types.ClickEvent{ShortCode: "late1", ClientAddr: "10.0.0.1"})

	n, err := storage.ClickCount(context.Background(), "late1")
	if err != nil {
		t.Fatalf("ClickCount() error: %v", err)
	}
	if n != 0 {
		t.Errorf("expected no clicks persisted after close, got %d", n)
	}
}

func TestSummary_Aggregates(t *testing.T) {
	r, storage, _ := setup(t)
	insertLink(t, storage, "sum1")

	events := []types.ClickEvent{
		{ShortCode: "sum1", ClientAddr: "10.0.0.1", Country: "DE", Referrer: "https://a.example"},
		{ShortCode: "sum1", ClientAddr: "10.0.0.2", Country: "DE"},
		{ShortCode: "sum1", ClientAddr: "10.0.0.3", Country: "FR", Referrer: "https://a.example"},
	}
	for _, ev := range events {
		r.Record(ev)
	}
	r.Close()

	s, err := r.Summary(context.Background(), "sum1")
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if s.TotalClicks != 3 {
		t.Errorf("expected 3 total clicks, got %d", s.TotalClicks)
	}
	if s.FirstClick == nil || s.LastClick == nil {
		t.Fatal("expected first and last click timestamps")
	}
	if s.FirstClick.After(*s.LastClick) {
		t.Error("first click must not be after last click")
	}
	if s.ClicksLast24h != 3 {
		t.Errorf("expected 3 clicks in the last 24h, got %d", s.ClicksLast24h)
	}
	if s.ClicksByCountry["DE"] != 2 || s.ClicksByCountry["FR"] != 1 {
		t.Errorf("unexpected country breakdown: %v", s.ClicksByCountry)
	}
	if s.ClicksByRef["https://a.example"] != 2 {
		t.Errorf("unexpected referrer breakdown: %v", s.ClicksByRef)
	}
	today := time.Now().UTC().Format(types.SummaryDateLayout)
	if s.ClicksByDate[today] != 3 {
		t.Errorf("expected 3 clicks dated %s, got %v", today, s.ClicksByDate)
	}
	if len(s.RecentClicks) != 3 {
		t.Fatalf("expected 3 recent clicks, got %d", len(s.RecentClicks))
	}
	for i := 1; i < len(s.RecentClicks); i++ {
		if s.RecentClicks[i].Timestamp.After(s.RecentClicks[i-1].Timestamp) {
			t.Error("recent clicks must be ordered newest first")
		}
	}

	// No intervening clicks: repeated calls return identical aggregates.
	again, err := r.Summary(context.Background(), "sum1")
	if err != nil {
		t.Fatalf("Summary() error: %v", err)
	}
	if again.TotalClicks != s.TotalClicks || again.ClicksLast24h != s.ClicksLast24h ||
		!again.FirstClick.Equal(*s.FirstClick) || !again.LastClick.Equal(*s.LastClick) {
		t.Error("Summary() is not idempotent without intervening clicks")
	}
}

func TestReconcile_AlignsFastCounter(t *testing.T) {
	r, storage, layer := setup(t)
	insertLink(t, storage, "rec1")
	ctx := context.Background()

	// Fast counter drifts ahead of the durable count.
	for i := 0; i < 7; i++ {
		layer.IncrementCounter(ctx, "rec1")
	}
	for i := 0; i < 3; i++ {
		r.Record(types.ClickEvent{ShortCode: "rec1", ClientAddr: "10.0.0.1"})
	}
	// Drain the queue so the durable count is settled, then reconcile.
	r.Close()
	r.reconcile()

	n, err := layer.FastCount(ctx, "rec1")
	if err != nil {
		t.Fatalf("FastCount() error: %v", err)
	}
	if n != 3 {
		t.Errorf("expected fast counter reconciled to durable count 3, got %d", n)
	}
}
