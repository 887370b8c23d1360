package llm

import (
	"context"
	"errors"
	"net"
	"strings"
)

// Provider errors arrive as free text inside the API error body, so
// classification works on the message, the way the providers document it.

// IsRateLimit reports whether err looks like a provider rate limit rejection.
func IsRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "rate_limit") ||
		strings.Contains(msg, "too many requests") ||
		strings.Contains(msg, "status 429")
}

// IsContextLength reports whether err indicates the provider's context
// window was exceeded.
func IsContextLength(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "context length") ||
		strings.Contains(msg, "context_length_exceeded") ||
		strings.Contains(msg, "maximum context")
}

// IsTimeout reports whether err represents a stalled or expired model call.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "timeout")
}
