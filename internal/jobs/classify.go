package jobs

import (
	"context"
	"errors"
	"strings"
)

const (
	ErrorCodeTransient     = "TRANSIENT_EXTERNAL"
	ErrorCodeMalformed     = "MALFORMED_OUTPUT"
	ErrorCodeConfiguration = "CONFIGURATION"
	ErrorCodeNotFound      = "NOT_FOUND"
	ErrorCodeUnavailable   = "DEPENDENCY_UNAVAILABLE"
	ErrorCodeInternal      = "INTERNAL"
)

// Classify maps an error to a stable error code plus a retryable hint.
func Classify(err error) (string, bool) {
	if err == nil {
		return ErrorCodeInternal, false
	}
	if errors.Is(err, ErrNotFound) {
		return ErrorCodeNotFound, false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorCodeTransient, true
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "circuit open") || strings.Contains(msg, "breaker"):
		return ErrorCodeUnavailable, true
	case strings.Contains(msg, "rate limit"):
		return ErrorCodeUnavailable, true
	case strings.Contains(msg, "timeout") || strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") || strings.Contains(msg, "http status 5"):
		return ErrorCodeTransient, true
	case strings.Contains(msg, "api key") || strings.Contains(msg, "credential") ||
		strings.Contains(msg, "is required"):
		return ErrorCodeConfiguration, false
	case strings.Contains(msg, "parse") || strings.Contains(msg, "malformed") ||
		strings.Contains(msg, "invalid json") || strings.Contains(msg, "schema"):
		return ErrorCodeMalformed, false
	case strings.Contains(msg, "not found"):
		return ErrorCodeNotFound, false
	default:
		return ErrorCodeInternal, false
	}
}

func classifyCode(err error) string {
	code, _ := Classify(err)
	return code
}
