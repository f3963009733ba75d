// ABOUTME: This file tests the Telegram transport against a local HTTP server
// ABOUTME: Verifies the request shape and the status-to-taxonomy mapping
package delivery

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTelegramTransport_SendsFormRequest(t *testing.T) {
	var gotPath, gotChatID, gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, r.ParseForm())
		gotChatID = r.FormValue("chat_id")
		gotText = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewTelegramTransport(server.URL, "123:token", 5*time.Second)
	err := transport.Send(context.Background(), "@channel", payload("https://example.org/a"))

	require.NoError(t, err)
	assert.Equal(t, "/bot123:token/sendMessage", gotPath)
	assert.Equal(t, "@channel", gotChatID)
	assert.Contains(t, gotText, "headline https://example.org/a")
	assert.Contains(t, gotText, "https://example.org/a")
}

func TestTelegramTransport_StatusClassification(t *testing.T) {
	tests := map[string]struct {
		status        int
		wantCode      string
		wantRetryable bool
	}{
		"throttled":    {status: http.StatusTooManyRequests, wantCode: CodeTransient, wantRetryable: true},
		"server error": {status: http.StatusBadGateway, wantCode: CodeTransient, wantRetryable: true},
		"bad request":  {status: http.StatusBadRequest, wantCode: CodeFatal, wantRetryable: false},
		"forbidden":    {status: http.StatusForbidden, wantCode: CodeFatal, wantRetryable: false},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			transport := NewTelegramTransport(server.URL, "123:token", 5*time.Second)
			err := transport.Send(context.Background(), "@channel", payload("a"))

			require.Error(t, err)
			var devErr *Error
			require.ErrorAs(t, err, &devErr)
			assert.Equal(t, tt.wantCode, devErr.Code)
			assert.Equal(t, tt.status, devErr.Status)
			assert.Equal(t, tt.wantRetryable, devErr.Retryable)
		})
	}
}

func TestTelegramTransport_ConnectionFailureIsTransient(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {}))
	server.Close() // Nothing is listening anymore.

	transport := NewTelegramTransport(server.URL, "123:token", time.Second)
	err := transport.Send(context.Background(), "@channel", payload("a"))

	require.Error(t, err)
	assert.True(t, IsRetryable(err))
	assert.False(t, IsFatal(err))
}

func TestTelegramTransport_MisconfigurationIsFatal(t *testing.T) {
	transport := NewTelegramTransport("https://api.telegram.org", "", time.Second)
	err := transport.Send(context.Background(), "@channel", payload("a"))

	require.Error(t, err)
	assert.True(t, IsFatal(err))
}

func TestTelegramTransport_EscapesHTMLInTitle(t *testing.T) {
	var gotText string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		gotText = r.FormValue("text")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p := payload("a")
	p.Title = "1 < 2 & 3 > 2"
	transport := NewTelegramTransport(server.URL, "123:token", 5*time.Second)
	require.NoError(t, transport.Send(context.Background(), "@channel", p))

	assert.Contains(t, gotText, "1 &lt; 2 &amp; 3 &gt; 2")
}
