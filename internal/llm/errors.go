package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// ProviderError is a classified failure from an LLM backend.
type ProviderError struct {
	Provider   string
	StatusCode int
	Retryable  bool
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// newProviderError classifies err by status code and error kind.
func newProviderError(provider string, status int, err error) *ProviderError {
	return &ProviderError{
		Provider:   provider,
		StatusCode: status,
		Retryable:  retryableStatus(status) || (status == 0 && isTransient(err)),
		Err:        err,
	}
}

func retryableStatus(status int) bool {
	return status == 408 || status == 429 || status >= 500
}

// isTransient reports network timeouts and connection failures.
func isTransient(err error) bool {
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
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection reset", "eof", "timeout", "rate limit", "overloaded", "unavailable"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// IsRetryable reports whether a failed call may succeed when repeated.
// Unclassified errors are treated as retryable; canceled contexts never are.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var pe *ProviderError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return true
}
