// ABOUTME: This file implements the source port over a JSON listing API
// ABOUTME: Non-success statuses map onto transient or fatal scan errors
package scanner

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// HTTPSource reads headlines and bodies from a JSON API.
type HTTPSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPSource(baseURL string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

type headlineDoc struct {
	URL         string    `json:"url"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
}

// ScanPage lists one page of headlines, newest first.
func (s *HTTPSource) ScanPage(ctx context.Context, page int) ([]Headline, error) {
	endpoint := s.baseURL + "/headlines?page=" + strconv.Itoa(page)

	var docs []headlineDoc
	if err := s.getJSON(ctx, endpoint, &docs); err != nil {
		return nil, fmt.Errorf("scan page %d: %w", page, err)
	}

	headlines := make([]Headline, 0, len(docs))
	for _, doc := range docs {
		headlines = append(headlines, Headline{
			SourceRef:   doc.URL,
			Title:       doc.Title,
			PublishedAt: doc.PublishedAt.UTC(),
		})
	}
	return headlines, nil
}

type bodyDoc struct {
	Text string `json:"text"`
}

// FetchBody retrieves the full text for one headline.
func (s *HTTPSource) FetchBody(ctx context.Context, sourceRef string) (string, error) {
	endpoint := s.baseURL + "/articles?url=" + url.QueryEscape(sourceRef)

	var doc bodyDoc
	if err := s.getJSON(ctx, endpoint, &doc); err != nil {
		return "", fmt.Errorf("fetch body for %s: %w", sourceRef, err)
	}
	return doc.Text, nil
}

func (s *HTTPSource) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("source responded %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
