package domain

import (
	"sort"
	"time"
)

// SessionStatus type
type SessionStatus string

const (
	// SessionStatusActive const
	SessionStatusActive SessionStatus = "active"
	// SessionStatusCompleted const
	SessionStatusCompleted SessionStatus = "completed"
	// SessionStatusError const
	SessionStatusError SessionStatus = "error"
	// SessionStatusPaused - reported by the backend for idle sessions, still resumable
	SessionStatusPaused SessionStatus = "paused"
)

// Valid reports whether s is a known status
func (s SessionStatus) Valid() bool {
	switch s {
	case SessionStatusActive, SessionStatusCompleted, SessionStatusError, SessionStatusPaused:
		return true
	}
	return false
}

// MessageRole type
type MessageRole string

const (
	// MessageRoleUser const
	MessageRoleUser MessageRole = "user"
	// MessageRoleAssistant const
	MessageRoleAssistant MessageRole = "assistant"
)

// Message is one entry of a session's conversation history.
// SessionID is a back-reference only; a session's history is ordered by arrival.
type Message struct {
	ID        string
	SessionID string
	Role      MessageRole
	Content   string
	Timestamp time.Time
	Metadata  map[string]Value
}

// SessionHealth is the optional remote health snapshot attached to a session
type SessionHealth struct {
	ActiveSessions     int
	CleanupTaskRunning bool
	CheckedAt          time.Time
}

// Session represents a persistent remote conversation context.
// SessionID is assigned by the backend and never changes once set.
type Session struct {
	SessionID      string
	UserID         string
	Name           *string
	WorkingContext string
	Status         SessionStatus
	CreatedAt      time.Time
	LastActiveAt   time.Time
	MessageCount   int
	// History is nil when the snapshot was fetched without history
	History  []Message
	Metadata map[string]Value
	Health   *SessionHealth
}

// DisplayName returns the session name or a fallback derived from the id
func (s *Session) DisplayName() string {
	if s.Name != nil && *s.Name != "" {
		return *s.Name
	}
	if len(s.SessionID) > 8 {
		return "Session " + s.SessionID[:8]
	}
	return "Session " + s.SessionID
}

// Touch advances LastActiveAt to at. Older timestamps are ignored so the value
// never moves backwards.
func (s *Session) Touch(at time.Time) bool {
	if at.After(s.LastActiveAt) {
		s.LastActiveAt = at
		return true
	}
	return false
}

// SetStatus applies a status change. A completed session cannot go back to
// active; that requires a new session id.
func (s *Session) SetStatus(status SessionStatus) error {
	if !status.Valid() {
		return ErrInvalidRequest
	}
	if s.Status == SessionStatusCompleted && status == SessionStatusActive {
		return ErrInvalidTransition
	}
	s.Status = status
	return nil
}

// MergeStatus returns the status a known session keeps when a snapshot with
// next arrives under the same id. Completed is final: a later active is
// ignored, and an empty status changes nothing.
func MergeStatus(current, next SessionStatus) SessionStatus {
	if next == "" {
		return current
	}
	if current == SessionStatusCompleted && next == SessionStatusActive {
		return current
	}
	return next
}

// AppendMessage appends m to the history in arrival order, ignoring message
// timestamps. Duplicate ids are dropped.
func (s *Session) AppendMessage(m Message) bool {
	for i := range s.History {
		if s.History[i].ID == m.ID {
			return false
		}
	}
	m.SessionID = s.SessionID
	s.History = append(s.History, m)
	if len(s.History) > s.MessageCount {
		s.MessageCount = len(s.History)
	}
	s.Touch(m.Timestamp)
	return true
}

// Clone returns a deep copy safe to hand out of a lock
func (s Session) Clone() Session {
	out := s
	if s.Name != nil {
		name := *s.Name
		out.Name = &name
	}
	if s.History != nil {
		out.History = make([]Message, len(s.History))
		for i, m := range s.History {
			m.Metadata = cloneValues(m.Metadata)
			out.History[i] = m
		}
	}
	out.Metadata = cloneValues(s.Metadata)
	if s.Health != nil {
		h := *s.Health
		out.Health = &h
	}
	return out
}

// Summary returns the identity + activity part of the session used by
// emergency flushes
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		SessionID:    s.SessionID,
		UserID:       s.UserID,
		Status:       s.Status,
		CreatedAt:    s.CreatedAt,
		LastActiveAt: s.LastActiveAt,
	}
}

// SessionSummary is the reduced record written when there is no time for a
// full flush
type SessionSummary struct {
	SessionID    string
	UserID       string
	Status       SessionStatus
	CreatedAt    time.Time
	LastActiveAt time.Time
}

// SortByLastActive orders sessions most-recently-active first. Ties keep the
// incoming order.
func SortByLastActive(sessions []Session) {
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].LastActiveAt.After(sessions[j].LastActiveAt)
	})
}
