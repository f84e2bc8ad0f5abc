package output

import (
	"context"
	"time"

	"session-sync/internal/domain"
)

// LifecycleEventSource interface - Output port
// Abstracts the platform notifications (foreground, background, terminate)
// and the bounded background execution grant.
type LifecycleEventSource interface {
	// Events yields platform transitions; the channel closes when the source stops
	Events() <-chan domain.LifecycleEvent

	// BeginBackgroundTask requests a bounded grant of execution time
	BeginBackgroundTask(name string) BackgroundGrant
}

// BackgroundGrant is a bounded window of execution time. Its context is done
// when the platform revokes the grant.
type BackgroundGrant interface {
	Context() context.Context
	Deadline() time.Time
	// End releases the grant early; safe to call more than once
	End()
}
