package output

import (
	"context"

	"session-sync/internal/domain"
)

// SessionBackend interface - Output port
// Defines what the application needs from the remote session service.
// Implementations classify failures into the domain error taxonomy and do not
// retry; retry policy belongs to the callers.
type SessionBackend interface {
	// CreateSession creates a session remotely and returns it as the backend stored it
	CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error)

	// GetSession fetches one session, optionally with its message history.
	// Returns domain.ErrSessionNotFound when the backend does not know the id.
	GetSession(ctx context.Context, userID, sessionID string, includeHistory bool) (*domain.Session, error)

	// ListSessions returns one page of the user's sessions
	ListSessions(ctx context.Context, request domain.ListSessionsRequest) (*domain.ListSessionsResult, error)

	// DeleteSession removes a session remotely
	DeleteSession(ctx context.Context, userID, sessionID string) error

	// GetSessionStats returns aggregate backend health
	GetSessionStats(ctx context.Context) (*domain.SessionStats, error)
}
