package domain

// ConnectionStatus is the reachability state of the remote session backend.
// No state is terminal.
type ConnectionStatus string

const (
	// ConnectionDisconnected - no attempt made yet, or explicitly dropped
	ConnectionDisconnected ConnectionStatus = "disconnected"
	// ConnectionConnecting - a reconnect attempt is in flight
	ConnectionConnecting ConnectionStatus = "connecting"
	// ConnectionConnected - list/query and stats calls succeed
	ConnectionConnected ConnectionStatus = "connected"
	// ConnectionDegraded - list/query succeeds but stats fail
	ConnectionDegraded ConnectionStatus = "degraded"
	// ConnectionError - hard failure, retryable by an explicit reconnect
	ConnectionError ConnectionStatus = "error"
)

// IsHealthy reports whether optional remote work (background refresh) may run
func (c ConnectionStatus) IsHealthy() bool {
	return c == ConnectionConnected || c == ConnectionDegraded
}

// ConnectionSignal is an input to the connection state machine
type ConnectionSignal int

const (
	// SignalReconnect - an explicit reconnect attempt starts
	SignalReconnect ConnectionSignal = iota
	// SignalSuccess - a remote call succeeded
	SignalSuccess
	// SignalSoftFailure - stats failed while list/query still works
	SignalSoftFailure
	// SignalHardFailure - remote calls fail
	SignalHardFailure
	// SignalDisconnect - the client deliberately dropped the connection
	SignalDisconnect
)

// NextConnectionStatus is the transition table of the connection state machine
func NextConnectionStatus(current ConnectionStatus, signal ConnectionSignal) ConnectionStatus {
	switch signal {
	case SignalReconnect:
		if current == ConnectionDisconnected || current == ConnectionError {
			return ConnectionConnecting
		}
		return current
	case SignalSuccess:
		return ConnectionConnected
	case SignalSoftFailure:
		if current == ConnectionConnected || current == ConnectionConnecting {
			return ConnectionDegraded
		}
		return current
	case SignalHardFailure:
		return ConnectionError
	case SignalDisconnect:
		return ConnectionDisconnected
	}
	return current
}
