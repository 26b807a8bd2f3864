package jobs

import (
	"errors"
	"fmt"
)

var ErrNotFound = errors.New("not found")

// ErrInvalidTransition marks an attempted backward or unknown status move.
var ErrInvalidTransition = errors.New("invalid status transition")

func invalidTransition(from, to string) error {
	return fmt.Errorf("%w: %s->%s", ErrInvalidTransition, from, to)
}
