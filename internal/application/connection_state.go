package application

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"session-sync/internal/domain"
	"session-sync/pkg/pubsub"
)

// ConnectionChange is published whenever the connection status changes
type ConnectionChange struct {
	From domain.ConnectionStatus
	To   domain.ConnectionStatus
	At   time.Time
}

// ConnectionMonitor struct - owns the connection state machine.
// Subscribers only hear about actual changes.
type ConnectionMonitor struct {
	mu          sync.RWMutex
	status      domain.ConnectionStatus
	changedAt   time.Time
	lastErr     error
	broadcaster *pubsub.Broadcaster[ConnectionChange]
	log         *logrus.Entry
}

// NewConnectionMonitor starts disconnected
func NewConnectionMonitor() *ConnectionMonitor {
	return &ConnectionMonitor{
		status:      domain.ConnectionDisconnected,
		changedAt:   time.Now().UTC(),
		broadcaster: pubsub.NewBroadcaster[ConnectionChange]("connection"),
		log:         logrus.WithField("component", "connection"),
	}
}

// Status func
func (m *ConnectionMonitor) Status() domain.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// LastError returns the error behind the most recent failure report
func (m *ConnectionMonitor) LastError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastErr
}

// ReportConnecting marks the start of an explicit reconnect
func (m *ConnectionMonitor) ReportConnecting() domain.ConnectionStatus {
	return m.apply(domain.SignalReconnect, nil)
}

// ReportSuccess func
func (m *ConnectionMonitor) ReportSuccess() domain.ConnectionStatus {
	return m.apply(domain.SignalSuccess, nil)
}

// ReportSoftFailure is a stats failure while list/query still works
func (m *ConnectionMonitor) ReportSoftFailure(err error) domain.ConnectionStatus {
	return m.apply(domain.SignalSoftFailure, err)
}

// ReportHardFailure func
func (m *ConnectionMonitor) ReportHardFailure(err error) domain.ConnectionStatus {
	return m.apply(domain.SignalHardFailure, err)
}

// ReportDisconnected func
func (m *ConnectionMonitor) ReportDisconnected() domain.ConnectionStatus {
	return m.apply(domain.SignalDisconnect, nil)
}

// Subscribe returns a channel of status changes and its cancel func
func (m *ConnectionMonitor) Subscribe(buffer int) (<-chan ConnectionChange, func()) {
	return m.broadcaster.Subscribe(buffer)
}

// Close closes every subscriber channel
func (m *ConnectionMonitor) Close() {
	m.broadcaster.Close()
}

func (m *ConnectionMonitor) apply(signal domain.ConnectionSignal, err error) domain.ConnectionStatus {
	m.mu.Lock()
	from := m.status
	to := domain.NextConnectionStatus(from, signal)
	if err != nil {
		m.lastErr = err
	} else if signal == domain.SignalSuccess {
		m.lastErr = nil
	}
	if from == to {
		m.mu.Unlock()
		return to
	}
	m.status = to
	m.changedAt = time.Now().UTC()
	change := ConnectionChange{From: from, To: to, At: m.changedAt}
	m.mu.Unlock()

	entry := m.log.WithFields(logrus.Fields{"from": from, "to": to})
	if err != nil {
		entry.Warnf("Connection status changed: %v", err)
	} else {
		entry.Info("Connection status changed")
	}
	m.broadcaster.Publish(change)
	return to
}
