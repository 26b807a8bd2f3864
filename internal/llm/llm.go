package llm

import (
	"context"
	"errors"
)

// Client abstracts the AI-assisted agent capability. Implementations may be
// slow, may be unavailable, and may return malformed text; callers own the
// retry and fallback policy.
type Client interface {
	Invoke(ctx context.Context, req Request) (string, error)
}

// Request captures one agent invocation.
type Request struct {
	SystemRole string
	UserPrompt string
	// SchemaHint, when set, asks the provider for structured (JSON) output.
	SchemaHint string
}

// ErrUnavailable marks a provider that cannot take calls right now.
var ErrUnavailable = errors.New("agent unavailable")

// ErrTimeout marks a call that exceeded its deadline.
var ErrTimeout = errors.New("agent timeout")
