package application

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"session-sync/internal/adapters/output/memory"
	"session-sync/internal/domain"
)

type lifecycleFixture struct {
	manager *LifecycleManager
	source  *MockLifecycleSource
	backend *MockSessionBackend
	store   *MockSessionStore
	cache   *memory.SessionCache
	sync    *SyncService
}

func newLifecycleFixture(backend *MockSessionBackend) *lifecycleFixture {
	f := &lifecycleFixture{
		source:  newMockLifecycleSource(),
		backend: backend,
		store:   &MockSessionStore{},
		cache:   memory.NewSessionCache(20, 0),
	}
	f.sync = NewSyncService(backend, NewConnectionMonitor(), SyncOptions{UserID: "user-1", Policy: testPolicy()})
	repo := NewSessionRepository(f.sync, f.cache, f.store, &MockStreamClient{}, 50)
	f.manager = NewLifecycleManager(f.source, f.sync, repo, f.cache, f.store, LifecycleOptions{
		RefreshInterval:  time.Hour,
		EmergencyTimeout: time.Second,
	})
	return f
}

func (f *lifecycleFixture) cacheSessions(n int) []string {
	ids := make([]string, n)
	for i := 0; i < n; i++ {
		ids[i] = fmt.Sprintf("s%d", i)
		f.cache.Put(domain.Session{
			SessionID:    ids[i],
			UserID:       "user-1",
			Status:       domain.SessionStatusActive,
			LastActiveAt: baseTime.Add(-time.Duration(i) * time.Minute),
			History:      []domain.Message{{ID: ids[i] + "-m1", Role: domain.MessageRoleUser, Content: "hi"}},
		})
	}
	return ids
}

func event(t domain.LifecycleEventType) domain.LifecycleEvent {
	return domain.LifecycleEvent{Type: t, OccurredAt: time.Now().UTC()}
}

func TestBackgroundFlushesAllCachedSessions(t *testing.T) {
	f := newLifecycleFixture(&MockSessionBackend{})
	f.manager.Start(context.Background())
	require.True(t, f.sync.IsRefreshing())
	ids := f.cacheSessions(3)

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleDidEnterBackground))

	assert.Equal(t, domain.LifecycleBackground, f.manager.State())
	assert.False(t, f.sync.IsRefreshing())
	assert.True(t, f.source.Grant.Ended())
	assert.Equal(t, 3, f.store.Calls("SaveSession"))
	assert.Equal(t, 0, f.store.Calls("SaveSessionSummary"))
	for _, id := range ids {
		stored, ok := f.store.Stored(id)
		require.True(t, ok)
		assert.Len(t, stored.History, 1)
	}
	assert.Empty(t, f.cache.DirtySessions())
}

func TestGrantExpiryFallsBackToEmergencyFlush(t *testing.T) {
	f := newLifecycleFixture(&MockSessionBackend{})
	ids := f.cacheSessions(5)
	f.store.SaveSessionFunc = func(ctx context.Context, session domain.Session) error {
		if f.store.Calls("SaveSession") == 2 {
			f.source.Grant.Expire()
		}
		return nil
	}

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleDidEnterBackground))

	assert.Equal(t, 2, f.store.Calls("SaveSession"))
	assert.Equal(t, 3, f.store.Calls("SaveSessionSummary"))
	for _, id := range ids[:2] {
		_, ok := f.store.Stored(id)
		assert.True(t, ok, "expected full flush of %s", id)
	}
	for i, id := range ids[2:] {
		summary, ok := f.store.Summary(id)
		require.True(t, ok, "expected emergency flush of %s", id)
		assert.Equal(t, baseTime.Add(-time.Duration(i+2)*time.Minute), summary.LastActiveAt)
		assert.Equal(t, "user-1", summary.UserID)
	}
	assert.Equal(t, domain.LifecycleBackground, f.manager.State())
}

func TestTerminateWritesSummariesSynchronously(t *testing.T) {
	f := newLifecycleFixture(&MockSessionBackend{})
	f.manager.Start(context.Background())
	ids := f.cacheSessions(4)

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleWillTerminate))

	assert.Equal(t, domain.LifecycleTerminating, f.manager.State())
	assert.False(t, f.sync.IsRefreshing())
	assert.Equal(t, len(ids), f.store.Calls("SaveSessionSummary"))
	assert.Equal(t, 0, f.store.Calls("SaveSession"))

	select {
	case <-f.manager.Terminated():
	default:
		t.Fatal("expected Terminated to be closed")
	}
}

func TestForegroundReconnectsAndRestartsRefresh(t *testing.T) {
	backend := &MockSessionBackend{
		ListSessionsFunc: func(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error) {
			return &domain.ListSessionsResult{Sessions: pageOf("a", "b")}, nil
		},
	}
	f := newLifecycleFixture(backend)

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleDidEnterBackground))
	require.Equal(t, domain.ConnectionDisconnected, f.sync.Status())

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleWillEnterForeground))

	assert.Equal(t, domain.LifecycleActive, f.manager.State())
	assert.Equal(t, domain.ConnectionConnected, f.sync.Status())
	assert.True(t, f.sync.IsRefreshing())
	// one probe plus one sync pass
	assert.Equal(t, 2, backend.Calls("ListSessions"))
	assert.Len(t, f.manager.repo.Sessions(), 2)

	f.sync.StopBackgroundRefresh()
}

func TestForegroundWithUnreachableBackendDoesNotFail(t *testing.T) {
	backend := &MockSessionBackend{
		ListSessionsFunc: func(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error) {
			return nil, domain.ErrTransientNetwork
		},
	}
	f := newLifecycleFixture(backend)

	f.manager.HandleEvent(context.Background(), event(domain.LifecycleWillEnterForeground))

	assert.Equal(t, domain.LifecycleActive, f.manager.State())
	assert.Equal(t, domain.ConnectionError, f.sync.Status())
	assert.Equal(t, 1, backend.Calls("ListSessions"))
	f.sync.StopBackgroundRefresh()
}

func TestRunConsumesSourceEvents(t *testing.T) {
	f := newLifecycleFixture(&MockSessionBackend{})
	f.cacheSessions(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.manager.Run(ctx)

	f.source.events <- event(domain.LifecycleWillTerminate)

	assert.Eventually(t, func() bool {
		return f.store.Calls("SaveSessionSummary") == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, domain.LifecycleTerminating, f.manager.State())
}
