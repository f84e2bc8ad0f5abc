package gormstore

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"session-sync/internal/domain"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) (*SessionStore, string) {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "sessions.db")
	store, err := Open("sqlite", dbPath, 0)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := store.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}
	return store, dbPath
}

func testSession(id string, lastActive time.Time) domain.Session {
	name := "Session " + id
	return domain.Session{
		SessionID:      id,
		UserID:         "user-1",
		Name:           &name,
		WorkingContext: "/work/" + id,
		Status:         domain.SessionStatusActive,
		CreatedAt:      t0,
		LastActiveAt:   lastActive,
		Metadata:       map[string]domain.Value{"model": domain.StringValue("x")},
	}
}

func TestSessionStoreRoundTripAndReopen(t *testing.T) {
	store, dbPath := newTestStore(t)
	ctx := context.Background()

	s := testSession("s-1", t0.Add(time.Minute))
	s.History = []domain.Message{
		{ID: "m1", Role: domain.MessageRoleUser, Content: "hello", Timestamp: t0},
		{ID: "m2", Role: domain.MessageRoleAssistant, Content: "hi", Timestamp: t0.Add(time.Second)},
	}
	s.MessageCount = 2
	if err := store.SaveSession(ctx, s); err != nil {
		t.Fatalf("save session: %v", err)
	}
	// saving the same history again must not duplicate messages
	if err := store.SaveSession(ctx, s); err != nil {
		t.Fatalf("save session again: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}

	reopened, err := Open("sqlite", dbPath, 0)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if err := reopened.WaitReady(ctx); err != nil {
		t.Fatalf("wait ready: %v", err)
	}

	loaded, err := reopened.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if loaded.Name == nil || *loaded.Name != "Session s-1" {
		t.Errorf("expected name Session s-1, got %v", loaded.Name)
	}
	if loaded.WorkingContext != "/work/s-1" {
		t.Errorf("expected working context /work/s-1, got %s", loaded.WorkingContext)
	}
	if v, ok := loaded.Metadata["model"].AsString(); !ok || v != "x" {
		t.Errorf("expected metadata model=x, got %v", loaded.Metadata)
	}
	if len(loaded.History) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(loaded.History))
	}
	if loaded.History[0].ID != "m1" || loaded.History[1].ID != "m2" {
		t.Errorf("expected order m1,m2, got %s,%s", loaded.History[0].ID, loaded.History[1].ID)
	}
}

func TestSessionStoreLastActiveIsMonotonic(t *testing.T) {
	store, _ := newTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	newer := testSession("s-1", t0.Add(time.Hour))
	if err := store.SaveSession(ctx, newer); err != nil {
		t.Fatalf("save newer: %v", err)
	}
	older := testSession("s-1", t0)
	if err := store.SaveSession(ctx, older); err != nil {
		t.Fatalf("save older: %v", err)
	}

	loaded, err := store.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !loaded.LastActiveAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected last active %v, got %v", t0.Add(time.Hour), loaded.LastActiveAt)
	}
}

func TestSessionStoreLoadRecentAndDelete(t *testing.T) {
	store, _ := newTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	for i, id := range []string{"a", "b", "c"} {
		if err := store.SaveSession(ctx, testSession(id, t0.Add(time.Duration(i)*time.Minute))); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}

	recent, err := store.LoadRecentSessions(ctx, 2)
	if err != nil {
		t.Fatalf("load recent: %v", err)
	}
	if len(recent) != 2 || recent[0].SessionID != "c" || recent[1].SessionID != "b" {
		t.Fatalf("expected [c b], got %v", ids(recent))
	}

	if err := store.SaveMessage(ctx, domain.Message{ID: "m1", SessionID: "c", Content: "x", Timestamp: t0}); err != nil {
		t.Fatalf("save message: %v", err)
	}
	if err := store.DeleteSession(ctx, "c"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.LoadSession(ctx, "c"); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Errorf("expected ErrSessionNotFound, got %v", err)
	}
	history, err := store.LoadHistory(ctx, "c", 0)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("expected messages removed with the session, got %d", len(history))
	}
	if err := store.DeleteSession(ctx, "missing"); err != nil {
		t.Errorf("expected deleting unknown id to succeed, got %v", err)
	}
}

func TestSessionStoreHistoryLimitKeepsNewest(t *testing.T) {
	store, _ := newTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	if err := store.SaveSession(ctx, testSession("s-1", t0)); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 5; i++ {
		msg := domain.Message{SessionID: "s-1", Content: string(rune('a' + i)), Timestamp: t0.Add(time.Duration(i) * time.Second)}
		if err := store.SaveMessage(ctx, msg); err != nil {
			t.Fatalf("save message %d: %v", i, err)
		}
	}

	history, err := store.LoadHistory(ctx, "s-1", 3)
	if err != nil {
		t.Fatalf("load history: %v", err)
	}
	got := ""
	for _, m := range history {
		got += m.Content
	}
	if got != "cde" {
		t.Errorf("expected newest three oldest-first (cde), got %s", got)
	}

	loaded, err := store.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.MessageCount != 5 {
		t.Errorf("expected message count 5, got %d", loaded.MessageCount)
	}
}

func TestSessionStoreSummaryUpsert(t *testing.T) {
	store, _ := newTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	summary := domain.SessionSummary{
		SessionID:    "s-9",
		UserID:       "user-1",
		Status:       domain.SessionStatusPaused,
		CreatedAt:    t0,
		LastActiveAt: t0.Add(time.Minute),
	}
	if err := store.SaveSessionSummary(ctx, summary); err != nil {
		t.Fatalf("save summary: %v", err)
	}
	summary.Status = domain.SessionStatusCompleted
	if err := store.SaveSessionSummary(ctx, summary); err != nil {
		t.Fatalf("save summary again: %v", err)
	}

	loaded, err := store.LoadSession(ctx, "s-9")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed, got %s", loaded.Status)
	}
	if !loaded.LastActiveAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("expected last active %v, got %v", t0.Add(time.Minute), loaded.LastActiveAt)
	}
}

func TestSessionStoreCompletedStaysCompleted(t *testing.T) {
	store, _ := newTestStore(t)
	defer func() { _ = store.Close() }()
	ctx := context.Background()

	done := testSession("s-1", t0)
	done.Status = domain.SessionStatusCompleted
	if err := store.SaveSession(ctx, done); err != nil {
		t.Fatalf("save completed: %v", err)
	}

	reopened := testSession("s-1", t0.Add(time.Hour))
	if err := store.SaveSession(ctx, reopened); err != nil {
		t.Fatalf("save active: %v", err)
	}
	if err := store.SaveSessionSummary(ctx, reopened.Summary()); err != nil {
		t.Fatalf("save active summary: %v", err)
	}

	loaded, err := store.LoadSession(ctx, "s-1")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Status != domain.SessionStatusCompleted {
		t.Errorf("expected completed, got %s", loaded.Status)
	}
	if !loaded.LastActiveAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("expected last active to advance to %v, got %v", t0.Add(time.Hour), loaded.LastActiveAt)
	}
}

func TestSessionStoreNotReady(t *testing.T) {
	store := &SessionStore{ready: make(chan struct{})}

	if store.IsInitialized() {
		t.Error("expected store not initialized")
	}
	if err := store.SaveSession(context.Background(), testSession("s-1", t0)); !errors.Is(err, domain.ErrPersistenceNotReady) {
		t.Errorf("expected ErrPersistenceNotReady, got %v", err)
	}
	if _, err := store.LoadRecentSessions(context.Background(), 5); !errors.Is(err, domain.ErrPersistenceNotReady) {
		t.Errorf("expected ErrPersistenceNotReady, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := store.WaitReady(ctx); !errors.Is(err, domain.ErrPersistenceNotReady) {
		t.Errorf("expected ErrPersistenceNotReady from WaitReady, got %v", err)
	}
}

func ids(sessions []domain.Session) []string {
	out := make([]string, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, s.SessionID)
	}
	return out
}
