package output

import "session-sync/internal/domain"

// SessionCache interface - Output port
// Bounded in-memory tier in front of the store. Implementations must be
// thread-safe and hand out copies, never shared references.
type SessionCache interface {
	// Get returns a copy of a cached session and refreshes its access time
	Get(sessionID string) (*domain.Session, bool)

	// Put inserts or updates a session. A snapshot older than the cached one
	// (by LastActiveAt) is rejected and Put returns false.
	Put(session domain.Session) bool

	// Evict removes one session; unknown ids are ignored
	Evict(sessionID string)

	// Clear empties the cache
	Clear()

	// Len returns the number of cached sessions
	Len() int

	// Snapshot returns copies of every cached session, most recently active first
	Snapshot() []domain.Session

	// DirtySessions returns copies of sessions changed since the last MarkClean
	DirtySessions() []domain.Session

	// MarkClean clears the dirty flag after a successful flush
	MarkClean(sessionID string)
}
