package input

import (
	"context"

	"session-sync/internal/domain"
)

// SessionRepository interface - Input port (use case)
// The authority for the session list and the current selection.
type SessionRepository interface {
	CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error)
	SwitchToSession(ctx context.Context, sessionID string) (*domain.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
	GetAllSessions(ctx context.Context) ([]domain.Session, error)
	GetSession(ctx context.Context, sessionID string) (*domain.Session, error)
	CurrentSession() *domain.Session
	SendQuery(ctx context.Context, sessionID, query string) (<-chan domain.StreamEvent, error)
	Subscribe(buffer int) (<-chan domain.SessionEvent, func())
}

// ConnectionService interface - Input port for connection status and refresh control
type ConnectionService interface {
	Status() domain.ConnectionStatus
	CheckConnectionStatus(ctx context.Context) domain.ConnectionStatus
	SyncSessionsFromBackend(ctx context.Context) ([]domain.Session, error)
	Stats(ctx context.Context) (*domain.SessionStats, error)
}

// LifecycleService interface - Input port for platform transitions
type LifecycleService interface {
	HandleEvent(ctx context.Context, event domain.LifecycleEvent)
	State() domain.LifecycleState
}
