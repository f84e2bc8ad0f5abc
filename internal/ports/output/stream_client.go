package output

import (
	"context"

	"session-sync/internal/domain"
)

// StreamClient interface - Output port
type StreamClient interface {
	// StreamQuery opens a server-sent event stream for a query.
	// Validation failures are returned synchronously. Otherwise the returned
	// channel yields start, zero or more deltas and exactly one terminal event
	// (complete or error), then closes. Cancelling ctx closes the channel
	// without a terminal event.
	StreamQuery(ctx context.Context, request domain.StreamRequest) (<-chan domain.StreamEvent, error)
}
