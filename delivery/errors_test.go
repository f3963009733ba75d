// ABOUTME: This file tests the delivery error taxonomy and retry classification
// ABOUTME: Covers HTTP status mapping and network error defaults
package delivery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyStatus(t *testing.T) {
	tests := map[string]struct {
		status        int
		wantCode      string
		wantRetryable bool
	}{
		"request timeout":     {status: 408, wantCode: CodeTransient, wantRetryable: true},
		"too many requests":   {status: 429, wantCode: CodeTransient, wantRetryable: true},
		"internal error":      {status: 500, wantCode: CodeTransient, wantRetryable: true},
		"service unavailable": {status: 503, wantCode: CodeTransient, wantRetryable: true},
		"bad request":         {status: 400, wantCode: CodeFatal, wantRetryable: false},
		"unauthorized":        {status: 401, wantCode: CodeFatal, wantRetryable: false},
		"not found":           {status: 404, wantCode: CodeFatal, wantRetryable: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			classified := ClassifyStatus(tt.status, errors.New("response"))
			assert.Equal(t, tt.wantCode, classified.Code)
			assert.Equal(t, tt.wantRetryable, classified.Retryable)
			assert.Equal(t, tt.status, classified.Status)
		})
	}
}

func TestIsRetryable(t *testing.T) {
	tests := map[string]struct {
		err  error
		want bool
	}{
		"nil error":            {err: nil, want: false},
		"context canceled":     {err: context.Canceled, want: false},
		"deadline exceeded":    {err: context.DeadlineExceeded, want: true},
		"transient error":      {err: transientErr(), want: true},
		"fatal error":          {err: fatalErr(), want: false},
		"wrapped transient":    {err: fmt.Errorf("send: %w", transientErr()), want: true},
		"connection refused":   {err: &net.OpError{Op: "dial", Err: syscall.ECONNREFUSED}, want: true},
		"connection reset":     {err: &net.OpError{Op: "read", Err: syscall.ECONNRESET}, want: true},
		"plain unknown error":  {err: errors.New("mystery"), want: false},
		"wrapped cancellation": {err: fmt.Errorf("send: %w", context.Canceled), want: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fatalErr()))
	assert.True(t, IsFatal(fmt.Errorf("send: %w", fatalErr())))
	assert.False(t, IsFatal(transientErr()))
	assert.False(t, IsFatal(errors.New("mystery")))
	assert.False(t, IsFatal(nil))
}

func TestError_Message(t *testing.T) {
	withStatus := &Error{Code: CodeTransient, Status: 503, Err: errors.New("unavailable")}
	assert.Contains(t, withStatus.Error(), "status 503")
	assert.Contains(t, withStatus.Error(), CodeTransient)

	withoutStatus := &Error{Code: CodeCircuitOpen, Err: errors.New("open")}
	assert.NotContains(t, withoutStatus.Error(), "status")
}
