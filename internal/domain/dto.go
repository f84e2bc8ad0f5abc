package domain

import "time"

// DTOs (Data Transfer Objects) - Domain layer request/response structures

type (
	// CreateSessionRequest struct - Domain request DTO for a remote session create
	CreateSessionRequest struct {
		UserID         string           `validate:"required"`
		Name           *string          `validate:"omitempty,max=200"`
		WorkingContext *string          `validate:"omitempty,max=1024"`
		Options        map[string]Value `validate:"-"`
	}

	// ListSessionsRequest struct - Domain query DTO for the paginated session list
	ListSessionsRequest struct {
		UserID       string         `validate:"required"`
		Limit        int            `validate:"gte=1,lte=100"`
		Offset       int            `validate:"gte=0"`
		StatusFilter *SessionStatus `validate:"omitempty"`
	}

	// ListSessionsResult struct - one page of the remote session list
	ListSessionsResult struct {
		Sessions   []Session
		TotalCount int
		HasMore    bool
		NextOffset *int
	}

	// SessionStats struct - aggregate backend health
	SessionStats struct {
		ActiveSessions         int
		SessionTimeoutSeconds  float64
		CleanupIntervalSeconds float64
		CleanupTaskRunning     bool
		OldestSessionAge       time.Duration
		Timestamp              time.Time
	}

	// SessionEventType identifies a repository change
	SessionEventType string

	// SessionEvent struct - published by the repository when sessions change
	SessionEvent struct {
		Type      SessionEventType
		SessionID string
		At        time.Time
	}
)

const (
	// SessionEventCreated const
	SessionEventCreated SessionEventType = "created"
	// SessionEventUpdated const
	SessionEventUpdated SessionEventType = "updated"
	// SessionEventSwitched const
	SessionEventSwitched SessionEventType = "switched"
	// SessionEventDeleted const
	SessionEventDeleted SessionEventType = "deleted"
	// SessionEventListReplaced const
	SessionEventListReplaced SessionEventType = "list_replaced"
)
