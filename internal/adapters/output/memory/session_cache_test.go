package memory

import (
	"fmt"
	"testing"
	"time"

	"session-sync/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cached(id string, lastActive time.Time) domain.Session {
	return domain.Session{
		SessionID:    id,
		UserID:       "user-1",
		Status:       domain.SessionStatusActive,
		CreatedAt:    t0,
		LastActiveAt: lastActive,
	}
}

// TestSessionCacheEvictsLeastRecentlyActive tests the bound and the eviction order
func TestSessionCacheEvictsLeastRecentlyActive(t *testing.T) {
	cache := NewSessionCache(3, 0)

	for i := 0; i < 4; i++ {
		cache.Put(cached(fmt.Sprintf("s-%d", i), t0.Add(time.Duration(i)*time.Minute)))
	}

	if cache.Len() != 3 {
		t.Fatalf("expected 3 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get("s-0"); ok {
		t.Error("expected s-0 (oldest activity) to be evicted")
	}
	for _, id := range []string{"s-1", "s-2", "s-3"} {
		if _, ok := cache.Get(id); !ok {
			t.Errorf("expected %s to stay cached", id)
		}
	}
}

// TestSessionCacheDefaultBound tests that a zero bound falls back to the default
func TestSessionCacheDefaultBound(t *testing.T) {
	cache := NewSessionCache(0, 0)
	for i := 0; i < DefaultMaxEntries+5; i++ {
		cache.Put(cached(fmt.Sprintf("s-%d", i), t0.Add(time.Duration(i)*time.Second)))
	}
	if cache.Len() != DefaultMaxEntries {
		t.Errorf("expected %d entries, got %d", DefaultMaxEntries, cache.Len())
	}
}

// TestSessionCacheRejectsStaleSnapshot tests that an older snapshot never overwrites a newer one
func TestSessionCacheRejectsStaleSnapshot(t *testing.T) {
	cache := NewSessionCache(5, 0)

	fresh := cached("s-1", t0.Add(time.Hour))
	fresh.MessageCount = 7
	cache.Put(fresh)

	stale := cached("s-1", t0)
	stale.MessageCount = 1
	if cache.Put(stale) {
		t.Error("expected stale Put to be rejected")
	}

	got, _ := cache.Get("s-1")
	if got.MessageCount != 7 {
		t.Errorf("expected MessageCount 7, got %d", got.MessageCount)
	}
}

// TestSessionCacheKeepsHistoryForSummaryUpdates tests that a history-less snapshot keeps cached history
func TestSessionCacheKeepsHistoryForSummaryUpdates(t *testing.T) {
	cache := NewSessionCache(5, 0)

	full := cached("s-1", t0)
	full.History = []domain.Message{{ID: "m1", Content: "hello"}}
	cache.Put(full)

	cache.Put(cached("s-1", t0.Add(time.Minute)))

	got, _ := cache.Get("s-1")
	if len(got.History) != 1 {
		t.Errorf("expected cached history to survive, got %d messages", len(got.History))
	}
	if !got.LastActiveAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected LastActiveAt to advance, got %v", got.LastActiveAt)
	}
}

// TestSessionCacheReturnsCopies tests that callers cannot mutate cached state
func TestSessionCacheReturnsCopies(t *testing.T) {
	cache := NewSessionCache(5, 0)
	s := cached("s-1", t0)
	s.History = []domain.Message{{ID: "m1", Content: "hello"}}
	cache.Put(s)

	got, _ := cache.Get("s-1")
	got.History[0].Content = "changed"

	again, _ := cache.Get("s-1")
	if again.History[0].Content != "hello" {
		t.Errorf("expected cached content hello, got %s", again.History[0].Content)
	}
}

// TestSessionCacheIdleTimeout tests lazy expiry of clean entries
func TestSessionCacheIdleTimeout(t *testing.T) {
	cache := NewSessionCache(5, 5*time.Minute)
	now := t0
	cache.now = func() time.Time { return now }

	cache.Put(cached("s-1", t0))
	now = now.Add(10 * time.Minute)
	if _, ok := cache.Get("s-1"); !ok {
		t.Fatal("expected dirty entry to survive idle timeout")
	}

	cache.MarkClean("s-1")
	now = now.Add(10 * time.Minute)
	if _, ok := cache.Get("s-1"); ok {
		t.Error("expected clean idle entry to expire")
	}
}

// TestSessionCacheDirtyTracking tests the flush bookkeeping
func TestSessionCacheDirtyTracking(t *testing.T) {
	cache := NewSessionCache(5, 0)
	cache.Put(cached("a", t0))
	cache.Put(cached("b", t0.Add(time.Minute)))

	dirty := cache.DirtySessions()
	if len(dirty) != 2 || dirty[0].SessionID != "b" {
		t.Fatalf("expected [b a] dirty, got %v", dirty)
	}

	cache.MarkClean("b")
	dirty = cache.DirtySessions()
	if len(dirty) != 1 || dirty[0].SessionID != "a" {
		t.Errorf("expected only a dirty, got %v", dirty)
	}

	cache.Evict("a")
	cache.Evict("missing")
	if cache.Len() != 1 {
		t.Errorf("expected 1 entry, got %d", cache.Len())
	}
	cache.Clear()
	if len(cache.Snapshot()) != 0 {
		t.Error("expected empty snapshot after Clear")
	}
}

// TestSessionCachePutOlderSessionIntoFullCache tests that an inserted session survives its own eviction pass
func TestSessionCachePutOlderSessionIntoFullCache(t *testing.T) {
	cache := NewSessionCache(2, 0)
	cache.Put(cached("recent-1", t0.Add(2*time.Hour)))
	cache.Put(cached("recent-2", t0.Add(3*time.Hour)))

	if !cache.Put(cached("old", t0)) {
		t.Fatal("expected Put of a new session to succeed")
	}

	if cache.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", cache.Len())
	}
	if _, ok := cache.Get("old"); !ok {
		t.Error("expected the inserted session to stay cached")
	}
	if _, ok := cache.Get("recent-1"); ok {
		t.Error("expected recent-1 (oldest activity among the others) to be evicted")
	}
	if _, ok := cache.Get("recent-2"); !ok {
		t.Error("expected recent-2 to stay cached")
	}
}

// TestSessionCacheCompletedStaysCompleted tests that a newer active snapshot does not reopen a completed session
func TestSessionCacheCompletedStaysCompleted(t *testing.T) {
	cache := NewSessionCache(5, 0)
	done := cached("s-1", t0)
	done.Status = domain.SessionStatusCompleted
	cache.Put(done)

	newer := cached("s-1", t0.Add(time.Hour))
	newer.MessageCount = 4
	if !cache.Put(newer) {
		t.Fatal("expected newer snapshot to be accepted")
	}

	got, _ := cache.Get("s-1")
	if got.Status != domain.SessionStatusCompleted {
		t.Errorf("expected status completed, got %s", got.Status)
	}
	if got.MessageCount != 4 {
		t.Errorf("expected the rest of the snapshot to apply, got MessageCount %d", got.MessageCount)
	}

	paused := cached("s-1", t0.Add(2*time.Hour))
	paused.Status = domain.SessionStatusError
	cache.Put(paused)
	got, _ = cache.Get("s-1")
	if got.Status != domain.SessionStatusError {
		t.Errorf("expected non-active transitions to apply, got %s", got.Status)
	}
}
