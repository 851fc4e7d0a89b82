package gateway

import (
	"errors"
	"fmt"
)

var (
	// ErrRateLimited indicates the gateway returned HTTP 429.
	ErrRateLimited = errors.New("gateway rate limited")

	// ErrQuotaExhausted indicates the gateway returned HTTP 402 (AI credits
	// exhausted).
	ErrQuotaExhausted = errors.New("gateway quota exhausted")
)

// StatusError is any other non-2xx gateway response. The message carries the
// upstream error body so the caller can surface it.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("gateway returned status %d: %s", e.Code, e.Message)
}
