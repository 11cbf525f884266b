package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrUnknownType   = errors.New("unknown item type")
	ErrNotConfigured = errors.New("not configured")
)

// UpstreamStatusError is returned when the upstream answered with a non-2xx
// status. The request completed, so its latency is still meaningful.
type UpstreamStatusError struct {
	StatusCode int
}

func (e *UpstreamStatusError) Error() string {
	return fmt.Sprintf("unexpected status: %d", e.StatusCode)
}
