package domain

import (
	"context"
	"errors"
)

// Session engine error taxonomy

var (
	// ErrTransientNetwork indicates a timeout, connection loss or DNS failure
	ErrTransientNetwork = errors.New("transient network failure")

	// ErrBackendUnavailable indicates the remote session backend is not reachable or is failing (5xx)
	ErrBackendUnavailable = errors.New("session backend unavailable")

	// ErrSessionNotFound indicates the session does not exist remotely or locally
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidRequest indicates a malformed request (4xx client errors, bad input)
	ErrInvalidRequest = errors.New("invalid request")

	// ErrPersistenceNotReady indicates the durable store has not finished initializing
	ErrPersistenceNotReady = errors.New("persistence not ready")

	// ErrStreamInterrupted indicates a stream failed after content was already delivered
	ErrStreamInterrupted = errors.New("stream interrupted")

	// ErrInvalidTransition indicates a forbidden session status change
	ErrInvalidTransition = errors.New("invalid session status transition")
)

// IsRetryable reports whether err is worth retrying with backoff.
// Only transient network failures and backend unavailability qualify.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrTransientNetwork) || errors.Is(err, ErrBackendUnavailable)
}

// IsNotFound reports whether err is the typed not-found outcome
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound)
}
