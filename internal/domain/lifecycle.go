package domain

import "time"

// LifecycleEventType is a platform transition notification
type LifecycleEventType string

const (
	// LifecycleWillEnterForeground const
	LifecycleWillEnterForeground LifecycleEventType = "willEnterForeground"
	// LifecycleDidEnterBackground const
	LifecycleDidEnterBackground LifecycleEventType = "didEnterBackground"
	// LifecycleWillTerminate const
	LifecycleWillTerminate LifecycleEventType = "willTerminate"
)

// ParseLifecycleEventType accepts the canonical names plus short aliases used by the local API
func ParseLifecycleEventType(s string) (LifecycleEventType, bool) {
	switch s {
	case string(LifecycleWillEnterForeground), "foreground":
		return LifecycleWillEnterForeground, true
	case string(LifecycleDidEnterBackground), "background":
		return LifecycleDidEnterBackground, true
	case string(LifecycleWillTerminate), "terminate":
		return LifecycleWillTerminate, true
	}
	return "", false
}

// LifecycleEvent struct
type LifecycleEvent struct {
	Type       LifecycleEventType
	OccurredAt time.Time
}

// LifecycleState is the state of the lifecycle manager
type LifecycleState string

const (
	// LifecycleInactive - not started yet
	LifecycleInactive LifecycleState = "inactive"
	// LifecycleActive - running in the foreground
	LifecycleActive LifecycleState = "active"
	// LifecycleForeground - resuming, reconnect/refresh in progress
	LifecycleForeground LifecycleState = "foreground"
	// LifecycleSuspending - flushing inside the background grant
	LifecycleSuspending LifecycleState = "suspending"
	// LifecycleBackground - suspended
	LifecycleBackground LifecycleState = "background"
	// LifecycleTerminating - final emergency flush
	LifecycleTerminating LifecycleState = "terminating"
)
