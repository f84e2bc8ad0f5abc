// Package gormstore is the durable session store backed by gorm (sqlite by
// default, postgres optionally). Schema migration runs in the background;
// every call fails with domain.ErrPersistenceNotReady until it has finished.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
	dbpkg "session-sync/pkg/database_driver/gorm"
)

// Compile-time check to ensure SessionStore implements the output port
var _ output.SessionStore = (*SessionStore)(nil)

// DefaultHistoryLimit is how many messages LoadSession attaches
const DefaultHistoryLimit = 100

// SessionStore struct - Secondary/Driven adapter for durable session storage
type SessionStore struct {
	db           *gorm.DB
	historyLimit int
	log          *logrus.Entry

	// writes are serialized; sqlite has a single writer anyway
	writeMu sync.Mutex

	ready   chan struct{}
	initErr error
	now     func() time.Time
}

// Open opens the database for driver/dsn and starts migration
func Open(driver, dsn string, historyLimit int) (*SessionStore, error) {
	gormDB, err := dbpkg.OpenGorm(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open session store: %w", err)
	}
	return NewSessionStore(gormDB, historyLimit), nil
}

// NewSessionStore wraps an open connection and migrates it in the background
func NewSessionStore(db *gorm.DB, historyLimit int) *SessionStore {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	s := &SessionStore{
		db:           db,
		historyLimit: historyLimit,
		log:          logrus.WithField("component", "session-store"),
		ready:        make(chan struct{}),
		now:          func() time.Time { return time.Now().UTC() },
	}
	go s.migrate()
	return s
}

func (s *SessionStore) migrate() {
	start := time.Now()
	err := s.db.AutoMigrate(&sessionRow{}, &messageRow{})
	if err != nil {
		s.initErr = fmt.Errorf("migrate session store: %w", err)
		s.log.Errorln(s.initErr)
	} else {
		s.log.Infof("Migrate database done in %s", time.Since(start))
	}
	close(s.ready)
}

// IsInitialized reports whether migration finished successfully
func (s *SessionStore) IsInitialized() bool {
	select {
	case <-s.ready:
		return s.initErr == nil
	default:
		return false
	}
}

// WaitReady blocks until migration finished or ctx is done
func (s *SessionStore) WaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		if s.initErr != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistenceNotReady, s.initErr)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", domain.ErrPersistenceNotReady, ctx.Err())
	}
}

func (s *SessionStore) checkReady() error {
	select {
	case <-s.ready:
		if s.initErr != nil {
			return fmt.Errorf("%w: %v", domain.ErrPersistenceNotReady, s.initErr)
		}
		return nil
	default:
		return domain.ErrPersistenceNotReady
	}
}

// SaveSession upserts the session row, keeping LastActiveAt monotonic, and
// appends history messages whose ids are not stored yet.
func (s *SessionStore) SaveSession(ctx context.Context, session domain.Session) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if session.SessionID == "" {
		return fmt.Errorf("%w: empty session id", domain.ErrInvalidRequest)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		incoming := sessionRowFromDomain(session, now)

		var current sessionRow
		err := tx.Where("session_id = ?", session.SessionID).Take(&current).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(&incoming).Error; err != nil {
				return fmt.Errorf("create session: %w", err)
			}
		case err != nil:
			return fmt.Errorf("get session: %w", err)
		default:
			if current.LastActiveAt.After(incoming.LastActiveAt) {
				incoming.LastActiveAt = current.LastActiveAt
			}
			if current.MessageCount > incoming.MessageCount {
				incoming.MessageCount = current.MessageCount
			}
			incoming.Status = s.mergeStatus(session.SessionID, current.Status, incoming.Status)
			incoming.CreatedAt = current.CreatedAt
			if err := tx.Save(&incoming).Error; err != nil {
				return fmt.Errorf("update session: %w", err)
			}
		}

		if len(session.History) == 0 {
			return nil
		}
		return s.appendMissingMessages(tx, session.SessionID, session.History, now)
	})
}

func (s *SessionStore) appendMissingMessages(tx *gorm.DB, sessionID string, history []domain.Message, now time.Time) error {
	var existing []string
	if err := tx.Model(&messageRow{}).
		Where("session_id = ?", sessionID).
		Pluck("message_id", &existing).Error; err != nil {
		return fmt.Errorf("list message ids: %w", err)
	}
	known := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		known[id] = struct{}{}
	}

	maxSeq, err := maxSequence(tx, sessionID)
	if err != nil {
		return err
	}

	for _, m := range history {
		if m.ID != "" {
			if _, ok := known[m.ID]; ok {
				continue
			}
		}
		maxSeq++
		row := newMessageRow(sessionID, m, maxSeq, now)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}
		known[row.MessageID] = struct{}{}
	}
	return nil
}

// SaveSessionSummary upserts identity, status and timestamps only
func (s *SessionStore) SaveSessionSummary(ctx context.Context, summary domain.SessionSummary) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	db := s.db.WithContext(ctx)

	var current sessionRow
	err := db.Where("session_id = ?", summary.SessionID).Take(&current).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		row := sessionRowFromDomain(domain.Session{
			SessionID:    summary.SessionID,
			UserID:       summary.UserID,
			Status:       summary.Status,
			CreatedAt:    summary.CreatedAt,
			LastActiveAt: summary.LastActiveAt,
		}, now)
		if err := db.Create(&row).Error; err != nil {
			return fmt.Errorf("create session summary: %w", err)
		}
		return nil
	}
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}

	updates := map[string]any{
		"status":     s.mergeStatus(summary.SessionID, current.Status, string(summary.Status)),
		"updated_at": now,
	}
	if summary.LastActiveAt.UTC().After(current.LastActiveAt) {
		updates["last_active_at"] = summary.LastActiveAt.UTC()
	}
	if err := db.Model(&sessionRow{}).Where("session_id = ?", summary.SessionID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update session summary: %w", err)
	}
	return nil
}

// LoadSession returns the session with its newest messages attached
func (s *SessionStore) LoadSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	var row sessionRow
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}

	session := row.toDomain()
	history, err := s.loadHistory(s.db.WithContext(ctx), sessionID, s.historyLimit)
	if err != nil {
		return nil, err
	}
	session.History = history
	return &session, nil
}

// LoadRecentSessions returns up to limit sessions without history, most recently active first
func (s *SessionStore) LoadRecentSessions(ctx context.Context, limit int) ([]domain.Session, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&sessionRow{}).Order("last_active_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []sessionRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load recent sessions: %w", err)
	}
	out := make([]domain.Session, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	domain.SortByLastActive(out)
	return out, nil
}

// DeleteSession removes a session and its messages
func (s *SessionStore) DeleteSession(ctx context.Context, sessionID string) error {
	if err := s.checkReady(); err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("session_id = ?", sessionID).Delete(&messageRow{}).Error; err != nil {
			return fmt.Errorf("delete messages: %w", err)
		}
		if err := tx.Where("session_id = ?", sessionID).Delete(&sessionRow{}).Error; err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// SaveMessage appends one message with the next sequence number.
// A message id that is already stored is ignored.
func (s *SessionStore) SaveMessage(ctx context.Context, message domain.Message) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if message.SessionID == "" {
		return fmt.Errorf("%w: message without session id", domain.ErrInvalidRequest)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	now := s.now()
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if message.ID != "" {
			var count int64
			if err := tx.Model(&messageRow{}).Where("message_id = ?", message.ID).Count(&count).Error; err != nil {
				return fmt.Errorf("lookup message: %w", err)
			}
			if count > 0 {
				return nil
			}
		}

		maxSeq, err := maxSequence(tx, message.SessionID)
		if err != nil {
			return err
		}
		row := newMessageRow(message.SessionID, message, maxSeq+1, now)
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("create message: %w", err)
		}

		var current sessionRow
		err = tx.Where("session_id = ?", message.SessionID).Take(&current).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("get session: %w", err)
		}
		updates := map[string]any{
			"message_count": current.MessageCount + 1,
			"updated_at":    now,
		}
		if row.Timestamp.After(current.LastActiveAt) {
			updates["last_active_at"] = row.Timestamp
		}
		if err := tx.Model(&sessionRow{}).Where("session_id = ?", message.SessionID).Updates(updates).Error; err != nil {
			return fmt.Errorf("touch session: %w", err)
		}
		return nil
	})
}

// LoadHistory returns the newest limit messages, oldest first. limit <= 0 loads everything.
func (s *SessionStore) LoadHistory(ctx context.Context, sessionID string, limit int) ([]domain.Message, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	return s.loadHistory(s.db.WithContext(ctx), sessionID, limit)
}

func (s *SessionStore) loadHistory(db *gorm.DB, sessionID string, limit int) ([]domain.Message, error) {
	query := db.Model(&messageRow{}).
		Where("session_id = ?", sessionID).
		Order("sequence DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []messageRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	out := make([]domain.Message, len(rows))
	for i, row := range rows {
		out[len(rows)-1-i] = row.toDomain()
	}
	return out, nil
}

// Close waits for migration to settle and closes the connection
func (s *SessionStore) Close() error {
	<-s.ready
	return dbpkg.Disconnect(s.db)
}

func maxSequence(tx *gorm.DB, sessionID string) (int64, error) {
	var maxSeq int64
	if err := tx.Model(&messageRow{}).
		Where("session_id = ?", sessionID).
		Select("COALESCE(MAX(sequence), 0)").
		Scan(&maxSeq).Error; err != nil {
		return 0, fmt.Errorf("sequence lookup: %w", err)
	}
	return maxSeq, nil
}

func newMessageRow(sessionID string, m domain.Message, seq int64, now time.Time) messageRow {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	ts := m.Timestamp.UTC()
	if ts.IsZero() {
		ts = now
	}
	role := string(m.Role)
	if role == "" {
		role = string(domain.MessageRoleUser)
	}
	return messageRow{
		MessageID:    id,
		SessionID:    sessionID,
		Sequence:     seq,
		Role:         role,
		Content:      m.Content,
		MetadataJSON: encodeMetadata(m.Metadata),
		Timestamp:    ts,
		CreatedAt:    now,
	}
}

// mergeStatus keeps a completed row completed
func (s *SessionStore) mergeStatus(sessionID, current, incoming string) string {
	status := domain.MergeStatus(domain.SessionStatus(current), domain.SessionStatus(incoming))
	if incoming != "" && string(status) != incoming {
		s.log.WithField("session_id", sessionID).Warnf("Keeping status %s over %s", status, incoming)
	}
	return string(status)
}
