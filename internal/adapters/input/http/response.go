package http

import (
	"errors"
	"net/http"
	"time"

	"session-sync/internal/domain"
)

var (
	// Success response
	Success = Status{Code: http.StatusOK, Message: []string{"Success"}}
	// Accepted response
	Accepted = Status{Code: http.StatusAccepted, Message: []string{"Accepted"}}
	// BadRequest response
	BadRequest = Status{Code: http.StatusBadRequest, Message: []string{"Sorry, Not responding because of incorrect syntax"}}
	// NotFound response
	NotFound = Status{Code: http.StatusNotFound, Message: []string{"Sorry, Session not found"}}
	// InternalServerError response
	InternalServerError = Status{Code: http.StatusInternalServerError, Message: []string{"Internal Server Error"}}
	// ServiceUnavailable response
	ServiceUnavailable = Status{Code: http.StatusServiceUnavailable, Message: []string{"Sorry, Session backend is unavailable"}}
)

// ResponseBody struct - Generic HTTP response wrapper
type ResponseBody struct {
	Status Status      `json:"status,omitempty"`
	Data   interface{} `json:"data,omitempty"`

	TotalItem *int `json:"total_item,omitempty"`
}

// Status struct
type Status struct {
	Code    int      `json:"code,omitempty"`
	Message []string `json:"message,omitempty"`
}

type (
	// SessionResponse struct - HTTP response DTO for a single session
	SessionResponse struct {
		SessionID      string                  `json:"session_id"`
		UserID         string                  `json:"user_id"`
		Name           *string                 `json:"name,omitempty"`
		DisplayName    string                  `json:"display_name"`
		WorkingContext string                  `json:"working_context,omitempty"`
		Status         domain.SessionStatus    `json:"status"`
		CreatedAt      time.Time               `json:"created_at"`
		LastActiveAt   time.Time               `json:"last_active_at"`
		MessageCount   int                     `json:"message_count"`
		Current        bool                    `json:"current"`
		Metadata       map[string]domain.Value `json:"metadata,omitempty"`
		Messages       []MessageResponse       `json:"messages,omitempty"`
	}

	// MessageResponse struct
	MessageResponse struct {
		ID        string                  `json:"id"`
		Role      domain.MessageRole      `json:"role"`
		Content   string                  `json:"content"`
		Timestamp time.Time               `json:"timestamp"`
		Metadata  map[string]domain.Value `json:"metadata,omitempty"`
	}

	// ConnectionResponse struct
	ConnectionResponse struct {
		Status    domain.ConnectionStatus `json:"status"`
		Healthy   bool                    `json:"healthy"`
		Stats     *StatsResponse          `json:"stats,omitempty"`
		LastError string                  `json:"last_error,omitempty"`
	}

	// StatsResponse struct
	StatsResponse struct {
		ActiveSessions         int       `json:"active_sessions"`
		SessionTimeoutSeconds  float64   `json:"session_timeout_seconds"`
		CleanupIntervalSeconds float64   `json:"cleanup_interval_seconds"`
		CleanupTaskRunning     bool      `json:"cleanup_task_running"`
		OldestSessionAgeSec    float64   `json:"oldest_session_age_seconds"`
		Timestamp              time.Time `json:"timestamp"`
	}

	// LifecycleResponse struct
	LifecycleResponse struct {
		Event domain.LifecycleEventType `json:"event,omitempty"`
		State domain.LifecycleState     `json:"state"`
	}

	// StreamEventResponse struct - payload of one server-sent event
	StreamEventResponse struct {
		Kind      domain.StreamEventKind `json:"kind"`
		SessionID string                 `json:"session_id"`
		MessageID string                 `json:"message_id,omitempty"`
		Text      string                 `json:"text,omitempty"`
		Channel   string                 `json:"channel,omitempty"`
		Reason    string                 `json:"reason,omitempty"`
		Timestamp time.Time              `json:"timestamp"`
	}
)

func toSessionResponse(s domain.Session, currentID string) SessionResponse {
	resp := SessionResponse{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		Name:           s.Name,
		DisplayName:    s.DisplayName(),
		WorkingContext: s.WorkingContext,
		Status:         s.Status,
		CreatedAt:      s.CreatedAt,
		LastActiveAt:   s.LastActiveAt,
		MessageCount:   s.MessageCount,
		Current:        s.SessionID == currentID,
		Metadata:       s.Metadata,
	}
	for _, m := range s.History {
		resp.Messages = append(resp.Messages, MessageResponse{
			ID:        m.ID,
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Timestamp,
			Metadata:  m.Metadata,
		})
	}
	return resp
}

func toStatsResponse(s *domain.SessionStats) *StatsResponse {
	if s == nil {
		return nil
	}
	return &StatsResponse{
		ActiveSessions:         s.ActiveSessions,
		SessionTimeoutSeconds:  s.SessionTimeoutSeconds,
		CleanupIntervalSeconds: s.CleanupIntervalSeconds,
		CleanupTaskRunning:     s.CleanupTaskRunning,
		OldestSessionAgeSec:    s.OldestSessionAge.Seconds(),
		Timestamp:              s.Timestamp,
	}
}

func toStreamEventResponse(e domain.StreamEvent) StreamEventResponse {
	return StreamEventResponse{
		Kind:      e.Kind,
		SessionID: e.SessionID,
		MessageID: e.MessageID,
		Text:      e.Text,
		Channel:   e.Channel,
		Reason:    e.Reason,
		Timestamp: e.Timestamp,
	}
}

// errorResponse maps the domain error taxonomy onto a response status
func errorResponse(err error) (int, ResponseBody) {
	var status Status
	switch {
	case domain.IsNotFound(err):
		status = NotFound
	case errors.Is(err, domain.ErrInvalidRequest):
		status = BadRequest
	case domain.IsRetryable(err), errors.Is(err, domain.ErrPersistenceNotReady):
		status = ServiceUnavailable
	default:
		status = InternalServerError
	}
	status.Message = append([]string{}, status.Message...)
	status.Message = append(status.Message, err.Error())
	return status.Code, ResponseBody{Status: status}
}
