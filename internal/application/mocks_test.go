package application

import (
	"context"
	"sync"
	"time"

	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
	"session-sync/pkg/backoff"
)

// Mock implementations for testing

func noSleep(context.Context, time.Duration) error { return nil }

func testPolicy() backoff.Policy {
	return backoff.New(domain.IsRetryable).WithSleep(noSleep)
}

func strPtr(s string) *string { return &s }

// callCounter is shared by the mocks; collaborators are called from goroutines
type callCounter struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *callCounter) inc(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[name]++
}

// Calls returns how many times a method was called
func (c *callCounter) Calls(name string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[name]
}

// Total returns the number of calls across all methods
func (c *callCounter) Total() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, v := range c.calls {
		n += v
	}
	return n
}

// MockSessionBackend implements output.SessionBackend for testing
type MockSessionBackend struct {
	callCounter

	CreateSessionFunc   func(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error)
	GetSessionFunc      func(ctx context.Context, userID, sessionID string, includeHistory bool) (*domain.Session, error)
	ListSessionsFunc    func(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error)
	DeleteSessionFunc   func(ctx context.Context, userID, sessionID string) error
	GetSessionStatsFunc func(ctx context.Context) (*domain.SessionStats, error)
}

var _ output.SessionBackend = (*MockSessionBackend)(nil)

func (m *MockSessionBackend) CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error) {
	m.inc("CreateSession")
	if m.CreateSessionFunc != nil {
		return m.CreateSessionFunc(ctx, request)
	}
	now := time.Now().UTC()
	return &domain.Session{
		SessionID:    "remote-" + now.Format("150405.000000000"),
		UserID:       request.UserID,
		Name:         request.Name,
		Status:       domain.SessionStatusActive,
		CreatedAt:    now,
		LastActiveAt: now,
	}, nil
}

func (m *MockSessionBackend) GetSession(ctx context.Context, userID, sessionID string, includeHistory bool) (*domain.Session, error) {
	m.inc("GetSession")
	if m.GetSessionFunc != nil {
		return m.GetSessionFunc(ctx, userID, sessionID, includeHistory)
	}
	return nil, domain.ErrSessionNotFound
}

func (m *MockSessionBackend) ListSessions(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error) {
	m.inc("ListSessions")
	if m.ListSessionsFunc != nil {
		return m.ListSessionsFunc(ctx, request)
	}
	return &domain.ListSessionsResult{}, nil
}

func (m *MockSessionBackend) DeleteSession(ctx context.Context, userID, sessionID string) error {
	m.inc("DeleteSession")
	if m.DeleteSessionFunc != nil {
		return m.DeleteSessionFunc(ctx, userID, sessionID)
	}
	return nil
}

func (m *MockSessionBackend) GetSessionStats(ctx context.Context) (*domain.SessionStats, error) {
	m.inc("GetSessionStats")
	if m.GetSessionStatsFunc != nil {
		return m.GetSessionStatsFunc(ctx)
	}
	return &domain.SessionStats{Timestamp: time.Now().UTC()}, nil
}

// MockSessionStore implements output.SessionStore for testing. Without hooks it
// keeps sessions in a map.
type MockSessionStore struct {
	callCounter

	SaveSessionFunc        func(ctx context.Context, session domain.Session) error
	SaveSessionSummaryFunc func(ctx context.Context, summary domain.SessionSummary) error
	LoadSessionFunc        func(ctx context.Context, sessionID string) (*domain.Session, error)

	mu        sync.Mutex
	sessions  map[string]domain.Session
	summaries map[string]domain.SessionSummary
	NotReady  bool
}

var _ output.SessionStore = (*MockSessionStore)(nil)

func (m *MockSessionStore) IsInitialized() bool { return !m.NotReady }

func (m *MockSessionStore) WaitReady(ctx context.Context) error {
	if m.NotReady {
		return domain.ErrPersistenceNotReady
	}
	return nil
}

func (m *MockSessionStore) SaveSession(ctx context.Context, session domain.Session) error {
	m.inc("SaveSession")
	if m.SaveSessionFunc != nil {
		if err := m.SaveSessionFunc(ctx, session); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sessions == nil {
		m.sessions = map[string]domain.Session{}
	}
	m.sessions[session.SessionID] = session.Clone()
	return nil
}

func (m *MockSessionStore) SaveSessionSummary(ctx context.Context, summary domain.SessionSummary) error {
	m.inc("SaveSessionSummary")
	if m.SaveSessionSummaryFunc != nil {
		if err := m.SaveSessionSummaryFunc(ctx, summary); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.summaries == nil {
		m.summaries = map[string]domain.SessionSummary{}
	}
	m.summaries[summary.SessionID] = summary
	return nil
}

func (m *MockSessionStore) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	m.inc("LoadSession")
	if m.LoadSessionFunc != nil {
		return m.LoadSessionFunc(ctx, sessionID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	out := s.Clone()
	return &out, nil
}

func (m *MockSessionStore) LoadRecentSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	m.inc("LoadRecentSessions")
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s.Clone())
	}
	domain.SortByLastActive(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MockSessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	m.inc("DeleteSession")
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
	delete(m.summaries, sessionID)
	return nil
}

func (m *MockSessionStore) SaveMessage(ctx context.Context, message domain.Message) error {
	m.inc("SaveMessage")
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[message.SessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.AppendMessage(message)
	m.sessions[message.SessionID] = s
	return nil
}

func (m *MockSessionStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	m.inc("LoadHistory")
	m.mu.Lock()
	defer m.mu.Unlock()
	history := m.sessions[sessionID].History
	if limit > 0 && len(history) > limit {
		history = history[len(history)-limit:]
	}
	return append([]domain.Message(nil), history...), nil
}

func (m *MockSessionStore) Close() error { return nil }

// Summary returns the emergency record saved for a session
func (m *MockSessionStore) Summary(sessionID string) (domain.SessionSummary, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.summaries[sessionID]
	return s, ok
}

// Stored returns the full record saved for a session
func (m *MockSessionStore) Stored(sessionID string) (domain.Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	return s, ok
}

// MockStreamClient implements output.StreamClient for testing
type MockStreamClient struct {
	callCounter

	StreamQueryFunc func(ctx context.Context, request domain.StreamRequest) (<-chan domain.StreamEvent, error)

	mu          sync.Mutex
	LastRequest *domain.StreamRequest
}

func (m *MockStreamClient) StreamQuery(ctx context.Context, request domain.StreamRequest) (<-chan domain.StreamEvent, error) {
	m.inc("StreamQuery")
	m.mu.Lock()
	m.LastRequest = &request
	m.mu.Unlock()
	if m.StreamQueryFunc != nil {
		return m.StreamQueryFunc(ctx, request)
	}
	out := make(chan domain.StreamEvent, 3)
	now := time.Now().UTC()
	out <- domain.StreamEvent{Kind: domain.StreamEventStart, SessionID: request.SessionID, Timestamp: now}
	out <- domain.StreamEvent{Kind: domain.StreamEventDelta, SessionID: request.SessionID, Text: "echo: " + request.Query, Timestamp: now}
	out <- domain.StreamEvent{Kind: domain.StreamEventComplete, SessionID: request.SessionID, Timestamp: now}
	close(out)
	return out, nil
}

// MockGrant implements output.BackgroundGrant; Expire revokes it early
type MockGrant struct {
	ctx    context.Context
	cancel context.CancelFunc
	ended  bool
	mu     sync.Mutex
}

func newMockGrant() *MockGrant {
	ctx, cancel := context.WithCancel(context.Background())
	return &MockGrant{ctx: ctx, cancel: cancel}
}

func (g *MockGrant) Context() context.Context { return g.ctx }

func (g *MockGrant) Deadline() time.Time { return time.Now().Add(time.Hour) }

func (g *MockGrant) End() {
	g.mu.Lock()
	g.ended = true
	g.mu.Unlock()
	g.cancel()
}

// Expire simulates the platform revoking the grant
func (g *MockGrant) Expire() { g.cancel() }

// Ended reports whether End was called
func (g *MockGrant) Ended() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.ended
}

// MockLifecycleSource implements output.LifecycleEventSource for testing
type MockLifecycleSource struct {
	events chan domain.LifecycleEvent
	Grant  *MockGrant
}

func newMockLifecycleSource() *MockLifecycleSource {
	return &MockLifecycleSource{events: make(chan domain.LifecycleEvent, 4), Grant: newMockGrant()}
}

func (m *MockLifecycleSource) Events() <-chan domain.LifecycleEvent { return m.events }

func (m *MockLifecycleSource) BeginBackgroundTask(name string) output.BackgroundGrant {
	return m.Grant
}
