package gormstore

import (
	"encoding/json"
	"time"

	"session-sync/internal/domain"
)

type sessionRow struct {
	SessionID      string    `gorm:"primaryKey;size:191"`
	UserID         string    `gorm:"size:191;not null;index"`
	Name           *string   `gorm:"size:255"`
	WorkingContext string    `gorm:"type:text"`
	Status         string    `gorm:"size:32;not null"`
	MessageCount   int       `gorm:"not null;default:0"`
	MetadataJSON   string    `gorm:"type:text"`
	CreatedAt      time.Time `gorm:"not null"`
	LastActiveAt   time.Time `gorm:"not null;index"`
	UpdatedAt      time.Time `gorm:"not null"`
}

func (sessionRow) TableName() string {
	return "sessions"
}

func (r sessionRow) toDomain() domain.Session {
	s := domain.Session{
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		WorkingContext: r.WorkingContext,
		Status:         domain.SessionStatus(r.Status),
		CreatedAt:      r.CreatedAt.UTC(),
		LastActiveAt:   r.LastActiveAt.UTC(),
		MessageCount:   r.MessageCount,
		Metadata:       decodeMetadata(r.MetadataJSON),
	}
	if r.Name != nil {
		name := *r.Name
		s.Name = &name
	}
	return s
}

func sessionRowFromDomain(s domain.Session, now time.Time) sessionRow {
	row := sessionRow{
		SessionID:      s.SessionID,
		UserID:         s.UserID,
		WorkingContext: s.WorkingContext,
		Status:         string(s.Status),
		MessageCount:   s.MessageCount,
		MetadataJSON:   encodeMetadata(s.Metadata),
		CreatedAt:      s.CreatedAt.UTC(),
		LastActiveAt:   s.LastActiveAt.UTC(),
		UpdatedAt:      now,
	}
	if s.Name != nil {
		name := *s.Name
		row.Name = &name
	}
	if row.Status == "" {
		row.Status = string(domain.SessionStatusActive)
	}
	if row.CreatedAt.IsZero() {
		row.CreatedAt = now
	}
	if row.LastActiveAt.IsZero() {
		row.LastActiveAt = row.CreatedAt
	}
	return row
}

type messageRow struct {
	MessageID    string    `gorm:"primaryKey;size:191"`
	SessionID    string    `gorm:"size:191;not null;uniqueIndex:idx_messages_session_sequence,priority:1"`
	Sequence     int64     `gorm:"not null;uniqueIndex:idx_messages_session_sequence,priority:2"`
	Role         string    `gorm:"size:32;not null"`
	Content      string    `gorm:"type:text;not null"`
	MetadataJSON string    `gorm:"type:text"`
	Timestamp    time.Time `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null"`
}

func (messageRow) TableName() string {
	return "messages"
}

func (r messageRow) toDomain() domain.Message {
	return domain.Message{
		ID:        r.MessageID,
		SessionID: r.SessionID,
		Role:      domain.MessageRole(r.Role),
		Content:   r.Content,
		Timestamp: r.Timestamp.UTC(),
		Metadata:  decodeMetadata(r.MetadataJSON),
	}
}

func encodeMetadata(m map[string]domain.Value) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}

func decodeMetadata(raw string) map[string]domain.Value {
	if raw == "" {
		return nil
	}
	var out map[string]domain.Value
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil
	}
	return out
}
