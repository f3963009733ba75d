// ABOUTME: This file implements the Telegram bot API transport
// ABOUTME: Response statuses map onto the transient/fatal error taxonomy
package delivery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"news-courier/models"
)

// TelegramTransport posts messages through the Telegram bot API.
type TelegramTransport struct {
	endpoint string
	botToken string
	timeout  time.Duration
	client   *http.Client
}

// NewTelegramTransport creates the transport. The endpoint is the API base,
// normally https://api.telegram.org, overridable for tests.
func NewTelegramTransport(endpoint, botToken string, timeout time.Duration) *TelegramTransport {
	return &TelegramTransport{
		endpoint: strings.TrimSuffix(endpoint, "/"),
		botToken: botToken,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
	}
}

// Send posts the payload as a message to the destination chat.
func (t *TelegramTransport) Send(ctx context.Context, destination string, payload *models.DeliveryPayload) error {
	if t.botToken == "" || destination == "" {
		return &Error{
			Code:      CodeFatal,
			Retryable: false,
			Err:       errors.New("telegram transport misconfigured"),
		}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", t.endpoint, t.botToken)
	form := url.Values{}
	form.Set("chat_id", destination)
	form.Set("text", formatMessage(payload))
	form.Set("parse_mode", "HTML")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return &Error{Code: CodeFatal, Retryable: false, Err: fmt.Errorf("new request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		// Transport-level failures leave the downstream state unknown.
		return &Error{Code: CodeTransient, Retryable: true, Err: fmt.Errorf("do request: %w", err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return ClassifyStatus(resp.StatusCode,
			fmt.Errorf("telegram responded %s: %s", resp.Status, strings.TrimSpace(string(body))))
	}

	return nil
}

func formatMessage(payload *models.DeliveryPayload) string {
	var b strings.Builder
	if payload.Title != "" {
		b.WriteString("<b>")
		b.WriteString(htmlEscape(payload.Title))
		b.WriteString("</b>\n")
	}
	if payload.Text != "" {
		b.WriteString(htmlEscape(payload.Text))
		b.WriteString("\n")
	}
	b.WriteString(payload.SourceRef)
	return b.String()
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func htmlEscape(s string) string {
	return htmlEscaper.Replace(s)
}
