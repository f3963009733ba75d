// ABOUTME: This file serves the operator-triggered backfill and reconcile endpoints.
// ABOUTME: Backfills run detached from the request so long ranges survive it.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// OpsHandler triggers scans on operator demand.
type OpsHandler struct {
	// baseCtx is the application lifecycle context, so detached runs stop at
	// a page boundary on shutdown instead of outliving the process.
	baseCtx context.Context
	scans   ScanOps
	logger  *slog.Logger
}

func NewOpsHandler(baseCtx context.Context, scans ScanOps, logger *slog.Logger) *OpsHandler {
	return &OpsHandler{baseCtx: baseCtx, scans: scans, logger: logger}
}

type backfillRequest struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

type reconcileRequest struct {
	Since time.Time `json:"since"`
}

// Backfill starts a historical ingestion over [from, to] and returns
// immediately. Progress is visible through the stage checkpoint.
func (h *OpsHandler) Backfill(c echo.Context) error {
	var req backfillRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid backfill request body")
	}
	if req.From.IsZero() || req.To.IsZero() {
		return echo.NewHTTPError(http.StatusBadRequest, "from and to are required")
	}
	if !req.To.After(req.From) {
		return echo.NewHTTPError(http.StatusBadRequest, "to must be after from")
	}

	// The run outlives the request; the checkpoint carries its progress.
	go func() {
		ctx := h.baseCtx
		if err := h.scans.Backfill(ctx, req.From, req.To); err != nil {
			h.logger.ErrorContext(ctx, "backfill failed",
				"from", req.From, "to", req.To, "error", err)
		}
	}()

	return c.JSON(http.StatusAccepted, map[string]string{
		"status": "accepted",
		"from":   req.From.UTC().Format(time.RFC3339),
		"to":     req.To.UTC().Format(time.RFC3339),
	})
}

// Reconcile re-queues undelivered items and reports how many were queued.
func (h *OpsHandler) Reconcile(c echo.Context) error {
	var req reconcileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid reconcile request body")
	}
	since := req.Since
	if since.IsZero() {
		since = time.Now().UTC().Add(-24 * time.Hour)
	}

	queued, err := h.scans.Reconcile(c.Request().Context(), since)
	if err != nil {
		h.logger.ErrorContext(c.Request().Context(), "reconcile failed",
			"since", since, "error", err)
		return echo.NewHTTPError(http.StatusInternalServerError, "reconcile failed")
	}

	return c.JSON(http.StatusOK, map[string]any{
		"queued": queued,
		"since":  since.UTC().Format(time.RFC3339),
	})
}
