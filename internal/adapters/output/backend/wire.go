package backend

import (
	"encoding/json"
	"strings"
	"time"

	"session-sync/internal/domain"
)

// workingContextKey is the context entry the backend uses for the execution scope
const workingContextKey = "working_directory"

var wireTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999999",
}

// wireTime accepts RFC 3339 as well as the zone-less ISO timestamps the
// backend emits; zone-less values are read as UTC.
type wireTime struct {
	time.Time
}

func (t *wireTime) UnmarshalJSON(data []byte) error {
	raw := strings.Trim(string(data), `"`)
	if raw == "" || raw == "null" {
		t.Time = time.Time{}
		return nil
	}
	var lastErr error
	for _, layout := range wireTimeLayouts {
		parsed, err := time.Parse(layout, raw)
		if err == nil {
			t.Time = parsed.UTC()
			return nil
		}
		lastErr = err
	}
	return lastErr
}

func (t wireTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

type messageWire struct {
	ID        string                  `json:"id"`
	Content   string                  `json:"content"`
	Role      string                  `json:"role"`
	Timestamp wireTime                `json:"timestamp"`
	SessionID string                  `json:"session_id"`
	Metadata  map[string]domain.Value `json:"metadata,omitempty"`
}

type sessionWire struct {
	SessionID    string                  `json:"session_id"`
	UserID       string                  `json:"user_id"`
	SessionName  *string                 `json:"session_name"`
	Status       string                  `json:"status"`
	Messages     []messageWire           `json:"messages"`
	CreatedAt    wireTime                `json:"created_at"`
	UpdatedAt    wireTime                `json:"updated_at"`
	MessageCount int                     `json:"message_count"`
	Context      map[string]domain.Value `json:"context"`
}

type sessionListWire struct {
	Sessions   []sessionWire `json:"sessions"`
	TotalCount int           `json:"total_count"`
	HasMore    bool          `json:"has_more"`
	NextOffset *int          `json:"next_offset"`
}

type createSessionWire struct {
	UserID        string                  `json:"user_id"`
	SessionName   *string                 `json:"session_name,omitempty"`
	ClaudeOptions map[string]domain.Value `json:"claude_options,omitempty"`
	Context       map[string]domain.Value `json:"context,omitempty"`
}

type streamRequestWire struct {
	Query     string `json:"query"`
	SessionID string `json:"session_id"`
	UserID    string `json:"user_id"`
	Stream    bool   `json:"stream"`
}

// streamChunkWire covers the start payload, content chunks and error payloads
type streamChunkWire struct {
	Content   *string  `json:"content"`
	ChunkType string   `json:"chunk_type"`
	MessageID *string  `json:"message_id"`
	SessionID *string  `json:"session_id"`
	Error     *string  `json:"error"`
	Message   *string  `json:"message"`
	Timestamp wireTime `json:"timestamp"`
}

type statsWire struct {
	ActiveSessions         int     `mapstructure:"active_sessions"`
	SessionTimeoutSeconds  float64 `mapstructure:"session_timeout_seconds"`
	CleanupIntervalSeconds float64 `mapstructure:"cleanup_interval_seconds"`
	CleanupTaskRunning     bool    `mapstructure:"cleanup_task_running"`
	OldestSessionAge       float64 `mapstructure:"oldest_session_age_seconds"`
	Timestamp              string  `mapstructure:"timestamp"`
}

func (m messageWire) toDomain(sessionID string) domain.Message {
	sid := m.SessionID
	if sid == "" {
		sid = sessionID
	}
	return domain.Message{
		ID:        m.ID,
		SessionID: sid,
		Role:      domain.MessageRole(m.Role),
		Content:   m.Content,
		Timestamp: m.Timestamp.Time,
		Metadata:  m.Metadata,
	}
}

func (w sessionWire) toDomain() domain.Session {
	s := domain.Session{
		SessionID:    w.SessionID,
		UserID:       w.UserID,
		Status:       domain.SessionStatus(w.Status),
		CreatedAt:    w.CreatedAt.Time,
		LastActiveAt: w.UpdatedAt.Time,
		MessageCount: w.MessageCount,
		Metadata:     w.Context,
	}
	if w.SessionName != nil {
		name := *w.SessionName
		s.Name = &name
	}
	if !s.Status.Valid() {
		s.Status = domain.SessionStatusActive
	}
	if s.LastActiveAt.IsZero() {
		s.LastActiveAt = s.CreatedAt
	}
	if v, ok := w.Context[workingContextKey]; ok {
		if dir, ok := v.AsString(); ok {
			s.WorkingContext = dir
		}
	}
	if w.Messages != nil {
		s.History = make([]domain.Message, 0, len(w.Messages))
		for _, m := range w.Messages {
			s.History = append(s.History, m.toDomain(w.SessionID))
		}
		if s.MessageCount < len(s.History) {
			s.MessageCount = len(s.History)
		}
	}
	return s
}
