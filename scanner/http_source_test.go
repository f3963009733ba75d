// ABOUTME: This file tests the JSON source adapter against a local HTTP server
// ABOUTME: Covers paging, empty pages, body fetches, and error statuses
package scanner

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPSource_ScanPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/headlines", r.URL.Path)
		switch r.URL.Query().Get("page") {
		case "1":
			fmt.Fprint(w, `[
				{"url":"https://example.org/news/2","title":"Second","published_at":"2026-03-01T10:00:00Z"},
				{"url":"https://example.org/news/1","title":"First","published_at":"2026-03-01T09:00:00Z"}
			]`)
		default:
			fmt.Fprint(w, `[]`)
		}
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)

	headlines, err := source.ScanPage(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, headlines, 2)
	assert.Equal(t, "https://example.org/news/2", headlines[0].SourceRef)
	assert.Equal(t, "Second", headlines[0].Title)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), headlines[0].PublishedAt)

	empty, err := source.ScanPage(context.Background(), 99)
	require.NoError(t, err)
	assert.Empty(t, empty, "a page past the end is empty, not an error")
}

func TestHTTPSource_FetchBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/articles", r.URL.Path)
		assert.Equal(t, "https://example.org/news/1", r.URL.Query().Get("url"))
		fmt.Fprint(w, `{"text":"full article body"}`)
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)
	body, err := source.FetchBody(context.Background(), "https://example.org/news/1")

	require.NoError(t, err)
	assert.Equal(t, "full article body", body)
}

func TestHTTPSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream broken", http.StatusBadGateway)
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)

	_, err := source.ScanPage(context.Background(), 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")

	_, err = source.FetchBody(context.Background(), "https://example.org/news/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestHTTPSource_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	source := NewHTTPSource(server.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := source.ScanPage(ctx, 1)
	assert.Error(t, err)
}
