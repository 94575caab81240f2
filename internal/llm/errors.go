package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ErrTransient marks a failure worth retrying.
var ErrTransient = errors.New("transient provider failure")

// transientMarkers are fragments of provider error messages that indicate
// throttling, overload or a timeout.
var transientMarkers = []string{
	"429",
	"500",
	"502",
	"503",
	"504",
	"rate limit",
	"too many requests",
	"resource_exhausted",
	"unavailable",
	"overloaded",
	"timeout",
	"timed out",
	"deadline_exceeded",
	"connection reset",
	"connection refused",
	"eof",
}

// MarkTransient wraps err so IsTransient reports true.
func MarkTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// IsTransient reports whether err is worth retrying: rate limits, timeouts,
// server-side failures and dropped connections. Cancellation of the caller's
// context is never transient.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var networkError net.Error
	if errors.As(err, &networkError) && networkError.Timeout() {
		return true
	}
	message := strings.ToLower(err.Error())
	for _, marker := range transientMarkers {
		if strings.Contains(message, marker) {
			return true
		}
	}
	return false
}
