package backend

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"session-sync/internal/domain"
)

// classifyTransportError maps a failed round trip onto the domain taxonomy.
// Cancellation passes through untouched so callers can tell it apart.
func classifyTransportError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	if isTransientError(err) {
		return fmt.Errorf("%w: %v", domain.ErrTransientNetwork, err)
	}
	return fmt.Errorf("%w: %v", domain.ErrBackendUnavailable, err)
}

// isTransientError determines if a transport error is transient and should be retried
func isTransientError(err error) bool {
	if err == nil {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	// connection refused or other network issues
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	transientPatterns := []string{
		"connection refused",
		"connection reset",
		"no such host",
		"network is unreachable",
		"i/o timeout",
		"eof",
	}
	for _, pattern := range transientPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// classifyStatus maps a non-2xx response onto the domain taxonomy
func classifyStatus(status int, body []byte) error {
	detail := strings.TrimSpace(string(body))
	if len(detail) > 512 {
		detail = detail[:512]
	}
	switch {
	case status == http.StatusNotFound:
		return fmt.Errorf("%w: status %d - %s", domain.ErrSessionNotFound, status, detail)
	case status == http.StatusRequestTimeout || status == http.StatusTooManyRequests:
		return fmt.Errorf("%w: status %d - %s", domain.ErrTransientNetwork, status, detail)
	case status >= 400 && status < 500:
		return fmt.Errorf("%w: status %d - %s", domain.ErrInvalidRequest, status, detail)
	default:
		return fmt.Errorf("%w: status %d - %s", domain.ErrBackendUnavailable, status, detail)
	}
}
