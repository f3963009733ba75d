// ABOUTME: This file serves the health and status endpoints.
// ABOUTME: Status aggregates queue depth, breaker state, checkpoints and jobs.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"news-courier/models"
	"news-courier/orchestrator"
	"news-courier/queue"
	"news-courier/repository"
)

// StatusHandler reports service health and the operational snapshot.
type StatusHandler struct {
	flusher     QueueReporter
	letters     queue.DeadLetterStore
	breaker     BreakerReporter
	checkpoints repository.CheckpointStore
	articles    repository.ArticleStore
	jobs        JobReporter
	logger      *slog.Logger
}

func NewStatusHandler(flusher QueueReporter, letters queue.DeadLetterStore,
	breaker BreakerReporter, checkpoints repository.CheckpointStore,
	articles repository.ArticleStore, jobs JobReporter, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		flusher:     flusher,
		letters:     letters,
		breaker:     breaker,
		checkpoints: checkpoints,
		articles:    articles,
		jobs:        jobs,
		logger:      logger,
	}
}

type checkpointView struct {
	Stage       string    `json:"stage"`
	State       string    `json:"state"`
	CursorPage  int       `json:"cursor_page"`
	LastSeenKey string    `json:"last_seen_key,omitempty"`
	EmptyPages  int       `json:"empty_pages"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type statusResponse struct {
	Queue       *models.QueueStatus      `json:"queue"`
	Breaker     string                   `json:"breaker"`
	Ingest      *models.IngestStats      `json:"ingest"`
	Checkpoints []checkpointView         `json:"checkpoints"`
	Jobs        []orchestrator.JobStatus `json:"jobs,omitempty"`
}

// Health answers liveness probes.
func (h *StatusHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "news-courier",
	})
}

// Status returns the operational snapshot.
func (h *StatusHandler) Status(c echo.Context) error {
	ctx := c.Request().Context()

	queueStatus, err := h.flusher.Status(ctx, h.letters)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read queue status", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read queue status")
	}

	stats, err := h.articles.Stats(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to read ingest stats", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to read ingest stats")
	}

	checkpoints, err := h.checkpoints.List(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to list checkpoints", "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "failed to list checkpoints")
	}

	views := make([]checkpointView, 0, len(checkpoints))
	for _, cp := range checkpoints {
		views = append(views, checkpointView{
			Stage:       cp.Stage,
			State:       string(cp.State),
			CursorPage:  cp.CursorPage,
			LastSeenKey: cp.LastSeenKey,
			EmptyPages:  cp.EmptyPages,
			UpdatedAt:   cp.UpdatedAt,
		})
	}

	resp := statusResponse{
		Queue:       queueStatus,
		Breaker:     h.breaker.State().String(),
		Ingest:      stats,
		Checkpoints: views,
	}
	if h.jobs != nil {
		resp.Jobs = h.jobs.Statuses()
	}
	return c.JSON(http.StatusOK, resp)
}
