package application

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/input"
	"session-sync/internal/ports/output"
	"session-sync/pkg/logging"
	"session-sync/pkg/pubsub"
)

const defaultHistoryLimit = 100

// Compile-time check to ensure SessionRepository implements the input port
var _ input.SessionRepository = (*SessionRepository)(nil)

// SessionRepository struct - Application service implementing the session use cases.
// It is the authority for the session list and the current selection. All
// mutations happen under mu; remote and store I/O run outside it.
type SessionRepository struct {
	sync         *SyncService
	cache        output.SessionCache
	store        output.SessionStore
	stream       output.StreamClient
	historyLimit int
	events       *pubsub.Broadcaster[domain.SessionEvent]
	log          *logrus.Entry
	now          func() time.Time

	mu        sync.Mutex
	sessions  []domain.Session
	currentID string
	switchGen uint64
	streams   map[string]map[uint64]context.CancelFunc
	streamSeq uint64
	// listGen counts local list writes; touched maps a session to the
	// listGen of its latest local write
	listGen uint64
	touched map[string]uint64
}

// NewSessionRepository func
func NewSessionRepository(syncService *SyncService, cache output.SessionCache, store output.SessionStore, stream output.StreamClient, historyLimit int) *SessionRepository {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &SessionRepository{
		sync:         syncService,
		cache:        cache,
		store:        store,
		stream:       stream,
		historyLimit: historyLimit,
		events:       pubsub.NewBroadcaster[domain.SessionEvent]("sessions"),
		log:          logging.NewLogger("repository"),
		now:          func() time.Time { return time.Now().UTC() },
		streams:      map[string]map[uint64]context.CancelFunc{},
		touched:      map[string]uint64{},
	}
}

// Subscribe returns a channel of repository changes and its cancel func
func (r *SessionRepository) Subscribe(buffer int) (<-chan domain.SessionEvent, func()) {
	return r.events.Subscribe(buffer)
}

// Close cancels running streams and closes subscriber channels
func (r *SessionRepository) Close() {
	r.CancelAllStreams()
	r.events.Close()
}

// CreateSession creates a session remotely and makes it current.
// Every call creates a new remote session.
func (r *SessionRepository) CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error) {
	session, err := r.sync.CreateSession(ctx, request)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = r.now()
	}
	if session.LastActiveAt.IsZero() {
		session.LastActiveAt = session.CreatedAt
	}
	if session.History == nil {
		session.History = []domain.Message{}
	}

	r.cache.Put(*session)
	r.persist(ctx, *session)

	r.mu.Lock()
	previous := r.currentID
	r.upsertLocked(*session, true)
	r.currentID = session.SessionID
	r.switchGen++
	r.mu.Unlock()

	if previous != "" && previous != session.SessionID {
		r.cancelStreams(previous)
	}
	r.publish(domain.SessionEventCreated, session.SessionID)
	r.publish(domain.SessionEventSwitched, session.SessionID)

	r.log.WithField("session_id", session.SessionID).Info("Session created")
	out := session.Clone()
	return &out, nil
}

// SwitchToSession makes sessionID current. A cached session switches without
// I/O; otherwise it is fetched with history. On failure the previous session
// stays current.
func (r *SessionRepository) SwitchToSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if strings.TrimSpace(sessionID) == "" {
		return nil, fmt.Errorf("switch session: %w", domain.ErrInvalidRequest)
	}

	r.mu.Lock()
	if r.currentID == sessionID {
		r.mu.Unlock()
		if current := r.CurrentSession(); current != nil {
			return current, nil
		}
		r.mu.Lock()
	}
	r.switchGen++
	gen := r.switchGen
	r.mu.Unlock()

	session, cached := r.cache.Get(sessionID)
	if cached {
		session.Touch(r.now())
		r.cache.Put(*session)
	} else {
		loaded, err := r.loadForSwitch(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		session = loaded
		session.Touch(r.now())
		r.cache.Put(*session)
		r.persist(ctx, *session)
	}

	r.mu.Lock()
	r.upsertLocked(*session, false)
	if gen != r.switchGen {
		r.mu.Unlock()
		r.log.WithField("session_id", sessionID).Debug("Switch superseded by a later switch")
		return session, nil
	}
	previous := r.currentID
	r.currentID = sessionID
	r.mu.Unlock()

	if previous != "" && previous != sessionID {
		r.cancelStreams(previous)
	}
	r.publish(domain.SessionEventSwitched, sessionID)
	r.log.WithFields(logrus.Fields{"session_id": sessionID, "cache_hit": cached}).Info("Switched session")
	return session, nil
}

func (r *SessionRepository) loadForSwitch(ctx context.Context, sessionID string) (*domain.Session, error) {
	session, err := r.sync.FetchSession(ctx, sessionID, true)
	if err == nil {
		return session, nil
	}
	if !domain.IsRetryable(err) {
		return nil, fmt.Errorf("switch session %s: %w", sessionID, err)
	}
	stored, serr := r.loadStored(ctx, sessionID)
	if serr != nil {
		return nil, fmt.Errorf("switch session %s: %w", sessionID, err)
	}
	r.log.WithField("session_id", sessionID).Warnf("Backend unavailable, switching to stored copy: %v", err)
	return stored, nil
}

// DeleteSession deletes remotely, then locally. If the session was current,
// the first remaining session becomes current.
func (r *SessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	if err := r.sync.DeleteSession(ctx, sessionID); err != nil && !domain.IsNotFound(err) {
		return fmt.Errorf("delete session %s: %w", sessionID, err)
	}

	r.cancelStreams(sessionID)
	r.cache.Evict(sessionID)

	r.mu.Lock()
	r.removeLocked(sessionID)
	delete(r.touched, sessionID)
	wasCurrent := r.currentID == sessionID
	if wasCurrent {
		r.currentID = ""
		if len(r.sessions) > 0 {
			r.currentID = r.sessions[0].SessionID
		}
		r.switchGen++
	}
	newCurrent := r.currentID
	r.mu.Unlock()

	if r.store.IsInitialized() {
		if err := r.store.DeleteSession(ctx, sessionID); err != nil {
			r.log.WithField("session_id", sessionID).Warnf("Failed to delete stored session: %v", err)
		}
	}

	r.publish(domain.SessionEventDeleted, sessionID)
	if wasCurrent {
		r.publish(domain.SessionEventSwitched, newCurrent)
	}
	r.log.WithField("session_id", sessionID).Info("Session deleted")
	return nil
}

// GetAllSessions seeds the list from the store, then replaces it with a remote
// sync pass. When the backend is unreachable the local list is returned.
func (r *SessionRepository) GetAllSessions(ctx context.Context) ([]domain.Session, error) {
	r.mu.Lock()
	empty := len(r.sessions) == 0
	r.mu.Unlock()
	if empty {
		if err := r.Restore(ctx); err != nil && !errors.Is(err, domain.ErrPersistenceNotReady) {
			r.log.Warnf("Failed to load stored sessions: %v", err)
		}
	}

	sessions, err := r.Refresh(ctx)
	if err != nil {
		if domain.IsRetryable(err) {
			r.log.Warnf("Sync failed, serving local sessions: %v", err)
			return r.Sessions(), nil
		}
		return nil, err
	}
	return sessions, nil
}

// SyncMark returns the list generation. Pass it to ApplyRemoteSessions with a
// remote result fetched after the call.
func (r *SessionRepository) SyncMark() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.listGen
}

// Refresh runs one remote sync pass and applies it to the list
func (r *SessionRepository) Refresh(ctx context.Context) ([]domain.Session, error) {
	mark := r.SyncMark()
	remote, err := r.sync.SyncSessionsFromBackend(ctx)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.ApplyRemoteSessions(context.WithoutCancel(ctx), remote, mark)
	return r.Sessions(), nil
}

// ApplyRemoteSessions replaces the list with a remote result fetched after
// mark (see SyncMark). Sessions written locally after mark are kept even when
// the result does not know them. Newer local snapshots win over remote ones,
// cached history is kept and a completed session stays completed.
func (r *SessionRepository) ApplyRemoteSessions(ctx context.Context, remote []domain.Session, mark uint64) {
	r.mu.Lock()
	previous := make(map[string]domain.Session, len(r.sessions))
	for _, s := range r.sessions {
		previous[s.SessionID] = s
	}

	merged := make([]domain.Session, 0, len(remote)+len(r.touched))
	inRemote := make(map[string]bool, len(remote))
	for _, session := range remote {
		if inRemote[session.SessionID] {
			continue
		}
		inRemote[session.SessionID] = true
		if local, ok := previous[session.SessionID]; ok {
			if local.LastActiveAt.After(session.LastActiveAt) {
				session = local
			} else {
				session.Status = domain.MergeStatus(local.Status, session.Status)
			}
		}
		if cached, ok := r.cache.Get(session.SessionID); ok {
			session.Status = domain.MergeStatus(cached.Status, session.Status)
			if !r.cache.Put(session) {
				session = *cached
			}
		}
		session.History = nil
		merged = append(merged, session)
	}

	var dropped []string
	for _, s := range r.sessions {
		if inRemote[s.SessionID] {
			continue
		}
		if r.touched[s.SessionID] > mark {
			merged = append(merged, s)
			continue
		}
		dropped = append(dropped, s.SessionID)
	}
	domain.SortByLastActive(merged)
	for id, gen := range r.touched {
		if gen <= mark {
			delete(r.touched, id)
		}
	}

	r.sessions = merged
	kept := make(map[string]bool, len(merged))
	for _, s := range merged {
		kept[s.SessionID] = true
	}
	currentChanged := false
	if r.currentID != "" && !kept[r.currentID] {
		r.currentID = ""
		if len(merged) > 0 {
			r.currentID = merged[0].SessionID
		}
		r.switchGen++
		currentChanged = true
	}
	newCurrent := r.currentID
	r.mu.Unlock()

	for _, id := range dropped {
		r.cancelStreams(id)
		r.cache.Evict(id)
	}
	if r.store.IsInitialized() {
		for _, s := range merged {
			if !inRemote[s.SessionID] {
				continue
			}
			if err := r.store.SaveSession(ctx, s); err != nil {
				r.log.WithField("session_id", s.SessionID).Warnf("Failed to persist synced session: %v", err)
				continue
			}
			r.cache.MarkClean(s.SessionID)
		}
	}

	r.publish(domain.SessionEventListReplaced, "")
	if currentChanged {
		r.publish(domain.SessionEventSwitched, newCurrent)
	}
}

// GetSession looks in the cache, the list, the store and the backend in that
// order, filling the faster tiers on the way back.
func (r *SessionRepository) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if session, ok := r.cache.Get(sessionID); ok {
		return session, nil
	}

	r.mu.Lock()
	listed, inList := r.findLocked(sessionID)
	r.mu.Unlock()
	if inList {
		if stored, err := r.loadStored(ctx, sessionID); err == nil && stored.History != nil {
			listed.History = stored.History
		}
		r.cache.Put(listed)
		return &listed, nil
	}

	if stored, err := r.loadStored(ctx, sessionID); err == nil {
		r.cache.Put(*stored)
		r.mu.Lock()
		r.upsertLocked(*stored, false)
		r.mu.Unlock()
		return stored, nil
	}

	session, err := r.sync.FetchSession(ctx, sessionID, true)
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", sessionID, err)
	}
	r.cache.Put(*session)
	r.persist(ctx, *session)
	r.mu.Lock()
	r.upsertLocked(*session, false)
	r.mu.Unlock()
	return session, nil
}

// CurrentSession returns a copy of the current session, nil when none is selected
func (r *SessionRepository) CurrentSession() *domain.Session {
	r.mu.Lock()
	id := r.currentID
	listed, inList := r.findLocked(id)
	r.mu.Unlock()

	if id == "" {
		return nil
	}
	if session, ok := r.cache.Get(id); ok {
		return session
	}
	if inList {
		return &listed
	}
	return nil
}

// CurrentSessionID func
func (r *SessionRepository) CurrentSessionID() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.currentID
}

// Sessions returns a copy of the list, most recently active first
func (r *SessionRepository) Sessions() []domain.Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.Session, len(r.sessions))
	for i, s := range r.sessions {
		out[i] = s.Clone()
	}
	return out
}

// Restore waits for the store and seeds an empty list with the most recent
// stored sessions
func (r *SessionRepository) Restore(ctx context.Context) error {
	if err := r.store.WaitReady(ctx); err != nil {
		return err
	}
	limit := r.historyLimit
	if m, ok := r.cache.(interface{ MaxEntries() int }); ok {
		limit = m.MaxEntries()
	}
	stored, err := r.store.LoadRecentSessions(ctx, limit)
	if err != nil {
		return fmt.Errorf("restore sessions: %w", err)
	}

	r.mu.Lock()
	if len(r.sessions) > 0 {
		r.mu.Unlock()
		return nil
	}
	for _, s := range stored {
		s.History = nil
		r.sessions = append(r.sessions, s)
	}
	domain.SortByLastActive(r.sessions)
	r.mu.Unlock()

	if len(stored) > 0 {
		r.publish(domain.SessionEventListReplaced, "")
	}
	r.log.WithField("count", len(stored)).Info("Restored sessions from store")
	return nil
}

// SendQuery streams a query for sessionID, or the current session when empty.
// The user message is appended before the stream opens; the assembled
// assistant reply is appended on complete.
func (r *SessionRepository) SendQuery(ctx context.Context, sessionID, query string) (<-chan domain.StreamEvent, error) {
	if sessionID == "" {
		sessionID = r.CurrentSessionID()
	}
	if sessionID == "" || strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("send query: %w", domain.ErrInvalidRequest)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	token := r.registerStream(sessionID, cancel)

	events, err := r.stream.StreamQuery(streamCtx, domain.StreamRequest{
		SessionID: sessionID,
		UserID:    r.sync.UserID(),
		Query:     query,
	})
	if err != nil {
		r.unregisterStream(sessionID, token)
		cancel()
		return nil, fmt.Errorf("send query: %w", err)
	}

	r.appendMessage(ctx, domain.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      domain.MessageRoleUser,
		Content:   query,
		Timestamp: r.now(),
	})

	out := make(chan domain.StreamEvent)
	go r.forward(streamCtx, sessionID, token, cancel, events, out)
	return out, nil
}

func (r *SessionRepository) forward(ctx context.Context, sessionID string, token uint64, cancel context.CancelFunc, events <-chan domain.StreamEvent, out chan<- domain.StreamEvent) {
	defer close(out)
	defer cancel()
	defer r.unregisterStream(sessionID, token)

	var reply strings.Builder
	for event := range events {
		switch event.Kind {
		case domain.StreamEventDelta:
			if event.Channel == "" || event.Channel == "assistant" {
				reply.WriteString(event.Text)
			}
		case domain.StreamEventComplete:
			id := event.MessageID
			if id == "" {
				id = uuid.NewString()
			}
			r.appendMessage(ctx, domain.Message{
				ID:        id,
				SessionID: sessionID,
				Role:      domain.MessageRoleAssistant,
				Content:   reply.String(),
				Timestamp: r.now(),
			})
		case domain.StreamEventError:
			r.log.WithField("session_id", sessionID).Warnf("Stream ended with error: %s", event.Reason)
		}

		select {
		case out <- event:
		case <-ctx.Done():
			return
		}
	}
}

// appendMessage updates the cached session and the list entry, then stores
// the message. Store failures are logged.
func (r *SessionRepository) appendMessage(ctx context.Context, message domain.Message) {
	session, ok := r.cache.Get(message.SessionID)
	if !ok {
		r.mu.Lock()
		listed, inList := r.findLocked(message.SessionID)
		r.mu.Unlock()
		if !inList {
			r.log.WithField("session_id", message.SessionID).Debug("Message for unknown session not tracked locally")
			return
		}
		session = &listed
	}
	session.AppendMessage(message)
	r.cache.Put(*session)

	r.mu.Lock()
	r.upsertLocked(*session, false)
	r.mu.Unlock()
	r.publish(domain.SessionEventUpdated, message.SessionID)

	if !r.store.IsInitialized() {
		return
	}
	storeCtx := context.WithoutCancel(ctx)
	err := r.store.SaveMessage(storeCtx, message)
	if domain.IsNotFound(err) {
		err = r.store.SaveSession(storeCtx, *session)
	}
	if err != nil {
		r.log.WithField("session_id", message.SessionID).Warnf("Failed to persist message: %v", err)
	}
}

// CancelAllStreams cancels every in-flight stream
func (r *SessionRepository) CancelAllStreams() {
	r.mu.Lock()
	var cancels []context.CancelFunc
	for _, byToken := range r.streams {
		for _, cancel := range byToken {
			cancels = append(cancels, cancel)
		}
	}
	r.streams = map[string]map[uint64]context.CancelFunc{}
	r.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
}

func (r *SessionRepository) cancelStreams(sessionID string) {
	r.mu.Lock()
	byToken := r.streams[sessionID]
	delete(r.streams, sessionID)
	r.mu.Unlock()

	for _, cancel := range byToken {
		cancel()
	}
	if len(byToken) > 0 {
		r.log.WithFields(logrus.Fields{"session_id": sessionID, "streams": len(byToken)}).Info("Cancelled streams")
	}
}

func (r *SessionRepository) registerStream(sessionID string, cancel context.CancelFunc) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.streamSeq++
	if r.streams[sessionID] == nil {
		r.streams[sessionID] = map[uint64]context.CancelFunc{}
	}
	r.streams[sessionID][r.streamSeq] = cancel
	return r.streamSeq
}

func (r *SessionRepository) unregisterStream(sessionID string, token uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.streams[sessionID], token)
	if len(r.streams[sessionID]) == 0 {
		delete(r.streams, sessionID)
	}
}

// persist writes a full session; failures never fail the caller
func (r *SessionRepository) persist(ctx context.Context, session domain.Session) {
	if !r.store.IsInitialized() {
		r.log.WithField("session_id", session.SessionID).Debug("Store not ready, skipping write")
		return
	}
	if err := r.store.SaveSession(ctx, session); err != nil {
		r.log.WithField("session_id", session.SessionID).Warnf("Failed to persist session: %v", err)
		return
	}
	r.cache.MarkClean(session.SessionID)
}

func (r *SessionRepository) loadStored(ctx context.Context, sessionID string) (*domain.Session, error) {
	if !r.store.IsInitialized() {
		return nil, domain.ErrPersistenceNotReady
	}
	return r.store.LoadSession(ctx, sessionID)
}

func (r *SessionRepository) publish(eventType domain.SessionEventType, sessionID string) {
	r.events.Publish(domain.SessionEvent{Type: eventType, SessionID: sessionID, At: r.now()})
}

// upsertLocked replaces or inserts the list entry without its history, marks
// it as locally written and keeps the list ordered by activity
func (r *SessionRepository) upsertLocked(session domain.Session, front bool) {
	entry := session.Clone()
	entry.History = nil
	r.listGen++
	r.touched[entry.SessionID] = r.listGen
	for i := range r.sessions {
		if r.sessions[i].SessionID != entry.SessionID {
			continue
		}
		if entry.LastActiveAt.Before(r.sessions[i].LastActiveAt) {
			entry.LastActiveAt = r.sessions[i].LastActiveAt
		}
		entry.Status = domain.MergeStatus(r.sessions[i].Status, entry.Status)
		r.sessions[i] = entry
		domain.SortByLastActive(r.sessions)
		return
	}
	if front {
		r.sessions = append([]domain.Session{entry}, r.sessions...)
	} else {
		r.sessions = append(r.sessions, entry)
	}
	domain.SortByLastActive(r.sessions)
}

func (r *SessionRepository) removeLocked(sessionID string) {
	for i := range r.sessions {
		if r.sessions[i].SessionID == sessionID {
			r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
			return
		}
	}
}

func (r *SessionRepository) findLocked(sessionID string) (domain.Session, bool) {
	if sessionID == "" {
		return domain.Session{}, false
	}
	for _, s := range r.sessions {
		if s.SessionID == sessionID {
			return s.Clone(), true
		}
	}
	return domain.Session{}, false
}
