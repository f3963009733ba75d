// ABOUTME: This file serves the dead-letter inspection and replay endpoints.
// ABOUTME: Replay re-sends parked deliveries through the live breaker.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"news-courier/queue"
)

const (
	defaultListLimit   = 50
	defaultRetryLimit  = 20
	maxDeadLetterLimit = 500
)

// DLQHandler exposes the dead-letter store to operators.
type DLQHandler struct {
	letters  queue.DeadLetterStore
	replayer Replayer
	logger   *slog.Logger
}

func NewDLQHandler(letters queue.DeadLetterStore, replayer Replayer, logger *slog.Logger) *DLQHandler {
	return &DLQHandler{
		letters:  letters,
		replayer: replayer,
		logger:   logger,
	}
}

type deadLetterView struct {
	ID           string    `json:"id"`
	EntityType   string    `json:"entity_type"`
	EntityRef    string    `json:"entity_ref"`
	ErrorCode    string    `json:"error_code"`
	ErrorPayload string    `json:"error_payload"`
	Attempts     int       `json:"attempts"`
	FirstSeenAt  time.Time `json:"first_seen_at"`
	LastSeenAt   time.Time `json:"last_seen_at"`
}

// List returns newest dead letters first.
func (h *DLQHandler) List(c echo.Context) error {
	ctx := c.Request().Context()
	limit := parseLimit(c.QueryParam("limit"), defaultListLimit)

	letters, err := h.letters.List(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list dead letters", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list dead letters")
	}

	views := make([]deadLetterView, 0, len(letters))
	for _, letter := range letters {
		views = append(views, deadLetterView{
			ID:           letter.ID,
			EntityType:   letter.EntityType,
			EntityRef:    letter.EntityRef,
			ErrorCode:    letter.ErrorCode,
			ErrorPayload: letter.ErrorPayload,
			Attempts:     letter.Attempts,
			FirstSeenAt:  letter.FirstSeenAt,
			LastSeenAt:   letter.LastSeenAt,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"dead_letters": views,
		"count":        len(views),
	})
}

// Retry replays a batch of dead letters.
func (h *DLQHandler) Retry(c echo.Context) error {
	ctx := c.Request().Context()
	limit := parseLimit(c.QueryParam("limit"), defaultRetryLimit)

	retried, err := h.replayer.ReplayBatch(ctx, limit)
	if err != nil {
		h.logger.ErrorContext(ctx, "dead letter replay failed",
			"retried", retried, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "dead letter replay failed")
	}

	return c.JSON(http.StatusOK, map[string]int{"retried": retried})
}

func parseLimit(raw string, fallback int) int {
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	if limit > maxDeadLetterLimit {
		return maxDeadLetterLimit
	}
	return limit
}
