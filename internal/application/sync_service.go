package application

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/input"
	"session-sync/internal/ports/output"
	"session-sync/pkg/backoff"
	"session-sync/pkg/logging"
)

// Sync defaults
const (
	DefaultPageSize = 50
	DefaultMaxPages = 20
)

// Compile-time check to ensure SyncService implements the input port
var _ input.ConnectionService = (*SyncService)(nil)

// SyncOptions struct
type SyncOptions struct {
	UserID   string
	PageSize int
	MaxPages int
	Policy   backoff.Policy
}

// SyncService struct - talks to the remote backend with retries, keeps the
// connection state machine current and owns the background refresh loop
type SyncService struct {
	backend  output.SessionBackend
	monitor  *ConnectionMonitor
	policy   backoff.Policy
	userID   string
	pageSize int
	maxPages int
	log      *logrus.Entry

	loopMu sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSyncService func
func NewSyncService(backend output.SessionBackend, monitor *ConnectionMonitor, opts SyncOptions) *SyncService {
	if opts.PageSize <= 0 || opts.PageSize > 100 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = DefaultMaxPages
	}
	if opts.Policy.Retryable == nil {
		opts.Policy.Retryable = domain.IsRetryable
	}
	if monitor == nil {
		monitor = NewConnectionMonitor()
	}
	return &SyncService{
		backend:  backend,
		monitor:  monitor,
		policy:   opts.Policy,
		userID:   opts.UserID,
		pageSize: opts.PageSize,
		maxPages: opts.MaxPages,
		log:      logging.NewLogger("sync"),
	}
}

// UserID func
func (s *SyncService) UserID() string {
	return s.userID
}

// Status func
func (s *SyncService) Status() domain.ConnectionStatus {
	return s.monitor.Status()
}

// Monitor returns the connection state machine
func (s *SyncService) Monitor() *ConnectionMonitor {
	return s.monitor
}

// SyncSessionsFromBackend pages through the remote session list, retrying each
// page. The result is ordered most recently active first.
func (s *SyncService) SyncSessionsFromBackend(ctx context.Context) ([]domain.Session, error) {
	var (
		all    []domain.Session
		seen   = map[string]bool{}
		offset int
	)
	for page := 1; page <= s.maxPages; page++ {
		request := domain.ListSessionsRequest{UserID: s.userID, Limit: s.pageSize, Offset: offset}
		result, err := backoff.Retry(ctx, s.policy, func(ctx context.Context, attempt int) (*domain.ListSessionsResult, error) {
			return s.backend.ListSessions(ctx, request)
		})
		if err != nil {
			s.observe(ctx, err)
			return nil, fmt.Errorf("sync sessions page %d: %w", page, err)
		}
		for _, session := range result.Sessions {
			if seen[session.SessionID] {
				continue
			}
			seen[session.SessionID] = true
			all = append(all, session)
		}
		if !result.HasMore || len(result.Sessions) == 0 {
			break
		}
		if result.NextOffset != nil {
			offset = *result.NextOffset
		} else {
			offset += len(result.Sessions)
		}
	}

	s.monitor.ReportSuccess()
	domain.SortByLastActive(all)
	s.log.WithField("count", len(all)).Debug("Synced sessions from backend")
	return all, nil
}

// FetchSession gets one session with retries. Not-found is returned as is.
func (s *SyncService) FetchSession(ctx context.Context, sessionID string, includeHistory bool) (*domain.Session, error) {
	session, err := backoff.Retry(ctx, s.policy, func(ctx context.Context, attempt int) (*domain.Session, error) {
		return s.backend.GetSession(ctx, s.userID, sessionID, includeHistory)
	})
	if err != nil {
		s.observe(ctx, err)
		return nil, err
	}
	s.monitor.ReportSuccess()
	return session, nil
}

// CreateSession is a single attempt; a retried create could leave orphan sessions remotely
func (s *SyncService) CreateSession(ctx context.Context, request domain.CreateSessionRequest) (*domain.Session, error) {
	if request.UserID == "" {
		request.UserID = s.userID
	}
	session, err := s.backend.CreateSession(ctx, request)
	if err != nil {
		s.observe(ctx, err)
		return nil, err
	}
	s.monitor.ReportSuccess()
	return session, nil
}

// DeleteSession deletes remotely with retries
func (s *SyncService) DeleteSession(ctx context.Context, sessionID string) error {
	err := s.policy.Do(ctx, func(ctx context.Context, attempt int) error {
		return s.backend.DeleteSession(ctx, s.userID, sessionID)
	})
	if err != nil {
		s.observe(ctx, err)
		return err
	}
	s.monitor.ReportSuccess()
	return nil
}

// Stats fetches backend stats. A failure only degrades the connection.
func (s *SyncService) Stats(ctx context.Context) (*domain.SessionStats, error) {
	stats, err := s.backend.GetSessionStats(ctx)
	if err != nil {
		if ctx.Err() == nil {
			s.monitor.ReportSoftFailure(err)
		}
		return nil, err
	}
	s.monitor.ReportSuccess()
	return stats, nil
}

// CheckConnectionStatus probes reachability with a one-item list, then the
// stats endpoint. A failed list is a hard failure, a failed stats call a soft one.
func (s *SyncService) CheckConnectionStatus(ctx context.Context) domain.ConnectionStatus {
	s.monitor.ReportConnecting()

	probe := domain.ListSessionsRequest{UserID: s.userID, Limit: 1}
	if _, err := s.backend.ListSessions(ctx, probe); err != nil {
		if errors.Is(err, context.Canceled) {
			return s.monitor.Status()
		}
		return s.monitor.ReportHardFailure(err)
	}
	if _, err := s.backend.GetSessionStats(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			return s.monitor.Status()
		}
		return s.monitor.ReportSoftFailure(err)
	}
	return s.monitor.ReportSuccess()
}

// observe maps a failed call onto the state machine. Only transport-level
// failures count; a 404 or a 400 means the backend answered.
func (s *SyncService) observe(ctx context.Context, err error) {
	if ctx.Err() != nil {
		return
	}
	if domain.IsRetryable(err) {
		s.monitor.ReportHardFailure(err)
	}
}

// RefreshFunc runs one background pass
type RefreshFunc func(ctx context.Context) error

// StartBackgroundRefresh starts the refresh loop. Each pass calls refresh, or
// a bare SyncSessionsFromBackend when refresh is nil. Starting twice is a no-op.
func (s *SyncService) StartBackgroundRefresh(interval time.Duration, refresh RefreshFunc) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	go s.refreshLoop(ctx, interval, refresh, done)
	s.log.WithField("interval", interval).Info("Background refresh started")
}

// StopBackgroundRefresh stops the loop and waits for an in-flight pass to
// return. After it returns no further pass runs.
func (s *SyncService) StopBackgroundRefresh() {
	s.loopMu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.loopMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("Background refresh stopped")
}

// IsRefreshing reports whether the loop is running
func (s *SyncService) IsRefreshing() bool {
	s.loopMu.Lock()
	defer s.loopMu.Unlock()
	return s.cancel != nil
}

func (s *SyncService) refreshLoop(ctx context.Context, interval time.Duration, refresh RefreshFunc, done chan struct{}) {
	defer close(done)

	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		s.refreshOnce(ctx, refresh)
		timer.Reset(interval)
	}
}

func (s *SyncService) refreshOnce(ctx context.Context, refresh RefreshFunc) {
	status := s.monitor.Status()
	switch {
	case status.IsHealthy():
	case status == domain.ConnectionError:
		// an errored link gets a reconnect probe, never a full sync
		if !s.CheckConnectionStatus(ctx).IsHealthy() {
			return
		}
	default:
		s.log.WithField("status", status).Debug("Skipping background refresh")
		return
	}

	if refresh == nil {
		refresh = func(ctx context.Context) error {
			_, err := s.SyncSessionsFromBackend(ctx)
			return err
		}
	}
	if err := refresh(ctx); err != nil && ctx.Err() == nil {
		s.log.Warnf("Background refresh failed: %v", err)
	}
}
