package output

import (
	"context"

	"session-sync/internal/domain"
)

// SessionStore interface - Output port
// Durable local persistence. Every method returns domain.ErrPersistenceNotReady
// until asynchronous initialization has finished. Writes are serialized by the
// implementation.
type SessionStore interface {
	// IsInitialized reports whether the schema is ready
	IsInitialized() bool

	// WaitReady blocks until the store is ready or ctx is done
	WaitReady(ctx context.Context) error

	// SaveSession upserts a session and appends any history messages not yet stored
	SaveSession(ctx context.Context, session domain.Session) error

	// SaveSessionSummary upserts identity, status and timestamps only.
	// Used by the emergency flush when the background grant is about to expire.
	SaveSessionSummary(ctx context.Context, summary domain.SessionSummary) error

	// LoadSession returns domain.ErrSessionNotFound when the id is unknown
	LoadSession(ctx context.Context, sessionID string) (*domain.Session, error)

	// LoadRecentSessions returns up to limit sessions, most recently active first
	LoadRecentSessions(ctx context.Context, limit int) ([]domain.Session, error)

	// DeleteSession removes a session and its messages; deleting an unknown id is not an error
	DeleteSession(ctx context.Context, sessionID string) error

	// SaveMessage appends one message to a session's history
	SaveMessage(ctx context.Context, message domain.Message) error

	// LoadHistory returns the newest limit messages of a session, oldest first
	LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)

	// Close releases the underlying connection
	Close() error
}
