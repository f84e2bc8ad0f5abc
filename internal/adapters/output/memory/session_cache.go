package memory

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
)

// Compile-time check to ensure SessionCache implements the output port
var _ output.SessionCache = (*SessionCache)(nil)

// DefaultMaxEntries is the cache bound when none is configured
const DefaultMaxEntries = 20

type cacheEntry struct {
	session      domain.Session
	lastAccessed time.Time
	dirty        bool
}

// SessionCache struct - Output adapter for the bounded in-memory session tier.
// When full, the entry with the oldest LastActiveAt other than the one being
// inserted is evicted first, ties broken by the oldest access. An optional idle timeout expires entries lazily.
type SessionCache struct {
	mu         sync.Mutex
	entries    map[string]*cacheEntry
	maxEntries int
	timeout    time.Duration
	now        func() time.Time
	log        *logrus.Entry
}

// NewSessionCache creates a cache holding at most maxEntries sessions.
// timeout <= 0 disables idle expiry.
func NewSessionCache(maxEntries int, timeout time.Duration) *SessionCache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &SessionCache{
		entries:    make(map[string]*cacheEntry),
		maxEntries: maxEntries,
		timeout:    timeout,
		now:        time.Now,
		log:        logrus.WithField("component", "session-cache"),
	}
}

// MaxEntries returns the configured bound
func (c *SessionCache) MaxEntries() int {
	return c.maxEntries
}

// Get returns a copy of the cached session and refreshes its access time.
// Idle-expired entries are dropped here.
func (c *SessionCache) Get(sessionID string) (*domain.Session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[sessionID]
	if !ok {
		return nil, false
	}
	now := c.now()
	if c.timeout > 0 && now.Sub(entry.lastAccessed) > c.timeout && !entry.dirty {
		delete(c.entries, sessionID)
		return nil, false
	}
	entry.lastAccessed = now
	s := entry.session.Clone()
	return &s, true
}

// Put stores a copy of session. A snapshot older than the cached one is
// rejected. A snapshot without history keeps the cached history.
func (c *SessionCache) Put(session domain.Session) bool {
	if session.SessionID == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stored := session.Clone()
	if entry, ok := c.entries[session.SessionID]; ok {
		if stored.LastActiveAt.Before(entry.session.LastActiveAt) {
			c.log.WithField("session_id", session.SessionID).Debug("rejecting stale snapshot")
			return false
		}
		if status := domain.MergeStatus(entry.session.Status, stored.Status); status != stored.Status {
			c.log.WithField("session_id", session.SessionID).Warnf("keeping status %s over %s", status, stored.Status)
			stored.Status = status
		}
		if stored.History == nil && entry.session.History != nil {
			stored.History = entry.session.History
			if stored.MessageCount < len(stored.History) {
				stored.MessageCount = len(stored.History)
			}
		}
		entry.session = stored
		entry.lastAccessed = now
		entry.dirty = true
		return true
	}

	c.entries[session.SessionID] = &cacheEntry{session: stored, lastAccessed: now, dirty: true}
	c.evictLocked(session.SessionID)
	return true
}

// evictLocked trims the cache to its bound. The entry just inserted is never
// the victim, so a Put always leaves the session cached.
func (c *SessionCache) evictLocked(inserted string) {
	for len(c.entries) > c.maxEntries {
		var victim string
		var v *cacheEntry
		for id, e := range c.entries {
			if id == inserted {
				continue
			}
			if v == nil ||
				e.session.LastActiveAt.Before(v.session.LastActiveAt) ||
				(e.session.LastActiveAt.Equal(v.session.LastActiveAt) && e.lastAccessed.Before(v.lastAccessed)) {
				victim, v = id, e
			}
		}
		delete(c.entries, victim)
		c.log.WithField("session_id", victim).Debug("evicted")
	}
}

// Evict removes one session; unknown ids are ignored
func (c *SessionCache) Evict(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, sessionID)
}

// Clear empties the cache
func (c *SessionCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Len func
func (c *SessionCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Snapshot returns copies of all cached sessions, most recently active first
func (c *SessionCache) Snapshot() []domain.Session {
	return c.collect(func(*cacheEntry) bool { return true })
}

// DirtySessions returns copies of sessions not flushed since their last change
func (c *SessionCache) DirtySessions() []domain.Session {
	return c.collect(func(e *cacheEntry) bool { return e.dirty })
}

// MarkClean clears the dirty flag of one session
func (c *SessionCache) MarkClean(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.entries[sessionID]; ok {
		entry.dirty = false
	}
}

func (c *SessionCache) collect(keep func(*cacheEntry) bool) []domain.Session {
	c.mu.Lock()
	out := make([]domain.Session, 0, len(c.entries))
	for _, e := range c.entries {
		if keep(e) {
			out = append(out, e.session.Clone())
		}
	}
	c.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].LastActiveAt.Equal(out[j].LastActiveAt) {
			return out[i].SessionID < out[j].SessionID
		}
		return out[i].LastActiveAt.After(out[j].LastActiveAt)
	})
	return out
}
