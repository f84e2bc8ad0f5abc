// Package lifecycle feeds platform transitions to the lifecycle manager.
// In a headless process the platform is the local API and OS signals.
package lifecycle

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/internal/ports/output"
)

// Compile-time check to ensure ChannelSource implements the output port
var _ output.LifecycleEventSource = (*ChannelSource)(nil)

// DefaultGrant mirrors the time a mobile platform allows after backgrounding
const DefaultGrant = 25 * time.Second

// ChannelSource struct - lifecycle source backed by a channel
type ChannelSource struct {
	events chan domain.LifecycleEvent
	grant  time.Duration

	mu     sync.Mutex
	closed bool
	now    func() time.Time
}

// NewChannelSource creates a source whose background grants last grant
func NewChannelSource(grant time.Duration, buffer int) *ChannelSource {
	if grant <= 0 {
		grant = DefaultGrant
	}
	if buffer < 1 {
		buffer = 8
	}
	return &ChannelSource{
		events: make(chan domain.LifecycleEvent, buffer),
		grant:  grant,
		now:    time.Now,
	}
}

// Events func
func (s *ChannelSource) Events() <-chan domain.LifecycleEvent {
	return s.events
}

// Publish queues a transition. It returns false once the source is closed
// or when the buffer is full.
func (s *ChannelSource) Publish(eventType domain.LifecycleEventType) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.events <- domain.LifecycleEvent{Type: eventType, OccurredAt: s.now().UTC()}:
		return true
	default:
		logrus.Warnf("Lifecycle event %s dropped, queue full", eventType)
		return false
	}
}

// Close stops the source; the events channel is closed
func (s *ChannelSource) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.events)
}

// BeginBackgroundTask starts a grant that expires after the configured duration
func (s *ChannelSource) BeginBackgroundTask(name string) output.BackgroundGrant {
	return newGrant(name, s.grant)
}

// WatchSignals maps OS signals onto transitions until ctx is done:
// SIGINT/SIGTERM terminate, SIGUSR1 backgrounds, SIGUSR2 foregrounds.
func (s *ChannelSource) WatchSignals(ctx context.Context) {
	c := make(chan os.Signal, 4)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM, syscall.SIGUSR1, syscall.SIGUSR2)
	go func() {
		defer signal.Stop(c)
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-c:
				eventType, ok := SignalEvent(sig)
				if !ok {
					continue
				}
				logrus.Infof("Received %s, dispatching %s", sig, eventType)
				s.Publish(eventType)
			}
		}
	}()
}

// SignalEvent maps one OS signal onto a lifecycle transition
func SignalEvent(sig os.Signal) (domain.LifecycleEventType, bool) {
	switch sig {
	case os.Interrupt, syscall.SIGTERM:
		return domain.LifecycleWillTerminate, true
	case syscall.SIGUSR1:
		return domain.LifecycleDidEnterBackground, true
	case syscall.SIGUSR2:
		return domain.LifecycleWillEnterForeground, true
	}
	return "", false
}

type grant struct {
	id       string
	name     string
	ctx      context.Context
	cancel   context.CancelFunc
	deadline time.Time
	started  time.Time
	once     sync.Once
}

func newGrant(name string, d time.Duration) *grant {
	deadline := time.Now().Add(d)
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	g := &grant{
		id:       uuid.NewString(),
		name:     name,
		ctx:      ctx,
		cancel:   cancel,
		deadline: deadline,
		started:  time.Now(),
	}
	logrus.WithFields(logrus.Fields{"grant_id": g.id, "task": name}).Debugf("Background task granted for %s", d)
	return g
}

func (g *grant) Context() context.Context { return g.ctx }

func (g *grant) Deadline() time.Time { return g.deadline }

func (g *grant) End() {
	g.once.Do(func() {
		g.cancel()
		logrus.WithFields(logrus.Fields{"grant_id": g.id, "task": g.name}).
			Debugf("Background task ended after %s", time.Since(g.started))
	})
}
