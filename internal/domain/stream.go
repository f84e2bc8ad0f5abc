package domain

import "time"

// StreamEventKind type
type StreamEventKind string

const (
	// StreamEventStart - the backend accepted the query
	StreamEventStart StreamEventKind = "start"
	// StreamEventDelta - incremental content
	StreamEventDelta StreamEventKind = "delta"
	// StreamEventComplete - terminal, the response finished
	StreamEventComplete StreamEventKind = "complete"
	// StreamEventError - terminal, the response failed
	StreamEventError StreamEventKind = "error"
)

// IsTerminal reports whether the event ends a stream
func (k StreamEventKind) IsTerminal() bool {
	return k == StreamEventComplete || k == StreamEventError
}

// StreamEvent is one incremental event of a streaming query. SessionID is the
// session that opened the stream, kept across reconnect attempts.
type StreamEvent struct {
	Kind      StreamEventKind
	SessionID string
	MessageID string
	Text      string
	// Channel carries the backend chunk type for deltas (assistant, thinking, tool, ...)
	Channel   string
	Reason    string
	Timestamp time.Time
}

// StreamRequest is the input of a streaming query
type StreamRequest struct {
	SessionID string `validate:"required"`
	UserID    string `validate:"required"`
	Query     string `validate:"required,min=1"`
}
