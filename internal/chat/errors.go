package chat

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
)

// TransportError classifies chat API failures as transient or permanent.
type TransportError struct {
	Method     string
	StatusCode int
	Message    string
	Transient  bool
	Cause      error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "<nil>"
	}

	parts := make([]string, 0, 5)
	parts = append(parts, "chat transport error")

	if e.Method != "" {
		parts = append(parts, e.Method)
	}
	if e.StatusCode > 0 {
		parts = append(parts, fmt.Sprintf("status=%d", e.StatusCode))
	}
	if msg := strings.TrimSpace(e.Message); msg != "" {
		parts = append(parts, msg)
	}
	if e.Cause != nil {
		parts = append(parts, e.Cause.Error())
	}

	return strings.Join(parts, ": ")
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTransient reports whether a failed call may succeed when repeated later.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return transportErr.Transient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	return false
}
