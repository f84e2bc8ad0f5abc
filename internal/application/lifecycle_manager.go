package application

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/input"
	"session-sync/internal/ports/output"
	"session-sync/pkg/logging"
)

const defaultEmergencyTimeout = 2 * time.Second

// Compile-time check to ensure LifecycleManager implements the input port
var _ input.LifecycleService = (*LifecycleManager)(nil)

// LifecycleOptions struct
type LifecycleOptions struct {
	RefreshInterval  time.Duration
	EmergencyTimeout time.Duration
}

// LifecycleManager struct - reacts to platform transitions. Every failure
// here is logged and swallowed so suspension and resumption never block.
type LifecycleManager struct {
	source output.LifecycleEventSource
	sync   *SyncService
	repo   *SessionRepository
	cache  output.SessionCache
	store  output.SessionStore
	opts   LifecycleOptions
	log    *logrus.Entry

	// serializes transitions
	handleMu sync.Mutex

	stateMu sync.RWMutex
	state   domain.LifecycleState

	terminated chan struct{}
	termOnce   sync.Once
}

// NewLifecycleManager func
func NewLifecycleManager(source output.LifecycleEventSource, syncService *SyncService, repo *SessionRepository, cache output.SessionCache, store output.SessionStore, opts LifecycleOptions) *LifecycleManager {
	if opts.RefreshInterval <= 0 {
		opts.RefreshInterval = time.Minute
	}
	if opts.EmergencyTimeout <= 0 {
		opts.EmergencyTimeout = defaultEmergencyTimeout
	}
	return &LifecycleManager{
		source: source,
		sync:   syncService,
		repo:   repo,
		cache:  cache,
		store:  store,
		opts:   opts,
		log:    logging.NewLogger("lifecycle"),
		state:  domain.LifecycleInactive,

		terminated: make(chan struct{}),
	}
}

// Terminated is closed once the terminate flush has finished
func (m *LifecycleManager) Terminated() <-chan struct{} {
	return m.terminated
}

// State func
func (m *LifecycleManager) State() domain.LifecycleState {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()
	return m.state
}

func (m *LifecycleManager) setState(state domain.LifecycleState) {
	m.stateMu.Lock()
	from := m.state
	m.state = state
	m.stateMu.Unlock()
	if from != state {
		m.log.WithFields(logrus.Fields{"from": from, "to": state}).Debug("Lifecycle state changed")
	}
}

// Start probes the backend and starts the refresh loop
func (m *LifecycleManager) Start(ctx context.Context) {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	status := m.sync.CheckConnectionStatus(ctx)
	m.log.WithField("status", status).Info("Initial connection check")
	m.sync.StartBackgroundRefresh(m.opts.RefreshInterval, m.refresh)
	m.setState(domain.LifecycleActive)
}

// Run handles events from the source until ctx is done or the source closes
func (m *LifecycleManager) Run(ctx context.Context) {
	events := m.source.Events()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			m.HandleEvent(ctx, event)
		}
	}
}

// HandleEvent applies one platform transition
func (m *LifecycleManager) HandleEvent(ctx context.Context, event domain.LifecycleEvent) {
	m.handleMu.Lock()
	defer m.handleMu.Unlock()

	m.log.WithField("event", event.Type).Info("Lifecycle event")
	switch event.Type {
	case domain.LifecycleDidEnterBackground:
		m.enterBackground()
	case domain.LifecycleWillEnterForeground:
		m.enterForeground(ctx)
	case domain.LifecycleWillTerminate:
		m.terminate()
	default:
		m.log.Warnf("Unhandled lifecycle event: %s", event.Type)
	}
}

func (m *LifecycleManager) enterBackground() {
	if s := m.State(); s == domain.LifecycleBackground || s == domain.LifecycleTerminating {
		return
	}
	m.setState(domain.LifecycleSuspending)

	grant := m.source.BeginBackgroundTask("flush-sessions")
	defer grant.End()

	m.sync.StopBackgroundRefresh()

	remaining := m.flush(grant.Context())
	if len(remaining) > 0 {
		m.log.WithField("remaining", len(remaining)).Warn("Background grant expired before flush completed")
		m.emergencyFlush(remaining)
	}
	m.setState(domain.LifecycleBackground)
}

func (m *LifecycleManager) enterForeground(ctx context.Context) {
	if m.State() == domain.LifecycleTerminating {
		return
	}
	m.setState(domain.LifecycleForeground)

	if !m.sync.Status().IsHealthy() {
		m.sync.CheckConnectionStatus(ctx)
	}
	if m.sync.Status().IsHealthy() {
		if err := m.refresh(ctx); err != nil {
			m.log.Warnf("Refresh on resume failed: %v", err)
		}
	} else {
		m.log.WithField("status", m.sync.Status()).Warn("Backend unreachable on resume")
	}

	m.sync.StartBackgroundRefresh(m.opts.RefreshInterval, m.refresh)
	m.setState(domain.LifecycleActive)
}

func (m *LifecycleManager) terminate() {
	m.setState(domain.LifecycleTerminating)
	m.sync.StopBackgroundRefresh()
	m.repo.CancelAllStreams()
	m.emergencyFlush(m.cache.Snapshot())
	m.termOnce.Do(func() { close(m.terminated) })
}

// flush writes every cached session until the grant runs out and returns
// the sessions that were not written
func (m *LifecycleManager) flush(ctx context.Context) []domain.Session {
	sessions := m.cache.Snapshot()
	if !m.store.IsInitialized() {
		m.log.Warn("Store not ready, skipping full flush")
		return sessions
	}

	var remaining []domain.Session
	for i, session := range sessions {
		if ctx.Err() != nil {
			return append(remaining, sessions[i:]...)
		}
		if err := m.store.SaveSession(ctx, session); err != nil {
			m.log.WithField("session_id", session.SessionID).Warnf("Failed to flush session: %v", err)
			remaining = append(remaining, session)
			continue
		}
		m.cache.MarkClean(session.SessionID)
	}
	m.log.WithField("flushed", len(sessions)-len(remaining)).Info("Flushed cached sessions")
	return remaining
}

// emergencyFlush writes identity and timestamps only, within its own short deadline
func (m *LifecycleManager) emergencyFlush(sessions []domain.Session) {
	if len(sessions) == 0 {
		return
	}
	if !m.store.IsInitialized() {
		m.log.WithField("sessions", len(sessions)).Error("Store not ready, emergency flush dropped")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.opts.EmergencyTimeout)
	defer cancel()

	saved := 0
	for _, session := range sessions {
		if ctx.Err() != nil {
			m.log.WithField("skipped", len(sessions)-saved).Error("Emergency flush ran out of time")
			return
		}
		if err := m.store.SaveSessionSummary(ctx, session.Summary()); err != nil {
			m.log.WithField("session_id", session.SessionID).Errorf("Emergency flush failed: %v", err)
			continue
		}
		saved++
	}
	m.log.WithField("saved", saved).Info("Emergency flush done")
}

func (m *LifecycleManager) refresh(ctx context.Context) error {
	_, err := m.repo.Refresh(ctx)
	return err
}
