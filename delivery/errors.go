// ABOUTME: This file defines the delivery error taxonomy and retry classification
// ABOUTME: Transient errors retry, fatal errors dead-letter without retry
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
)

// Error codes recorded on dead letters and surfaced by the ops API.
const (
	CodeTransient   = "transient"
	CodeFatal       = "fatal"
	CodeExhausted   = "exhausted"
	CodeCircuitOpen = "circuit_open"
)

// Error is a classified delivery failure.
type Error struct {
	Code      string
	Status    int
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("delivery failed (%s, status %d): %v", e.Code, e.Status, e.Err)
	}
	return fmt.Sprintf("delivery failed (%s): %v", e.Code, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ClassifyStatus maps an HTTP response status to a delivery error.
// Timeouts, throttling, and server errors are worth retrying; any other
// client error proves the request itself is bad.
func ClassifyStatus(status int, err error) *Error {
	retryable := status == 408 || status == 429 || (status >= 500 && status <= 599)
	code := CodeFatal
	if retryable {
		code = CodeTransient
	}
	return &Error{
		Code:      code,
		Status:    status,
		Retryable: retryable,
		Err:       err,
	}
}

// IsRetryable reports whether a failed attempt should be tried again.
// Unknown network errors default to retryable: the downstream state is
// unobservable, so giving up would drop deliverable items.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Retryable
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) {
		if errno, ok := opErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ETIMEDOUT:
				return true
			}
		}
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return false
}

// IsFatal reports whether the failure proves the item itself can never be
// delivered, as opposed to the downstream being briefly unavailable.
func IsFatal(err error) bool {
	var devErr *Error
	if errors.As(err, &devErr) {
		return devErr.Code == CodeFatal
	}
	return false
}
