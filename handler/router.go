// ABOUTME: This file wires the HTTP routes onto the echo server.
// ABOUTME: The metrics endpoint serves the courier's Prometheus registry.
package handler

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Register mounts all courier routes on the echo instance.
func Register(e *echo.Echo, status *StatusHandler, dlq *DLQHandler, ops *OpsHandler,
	gatherer prometheus.Gatherer, metricsPath string, logger *slog.Logger) {
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogError:    true,
		LogMethod:   true,
		LogLatency:  true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			ctx := c.Request().Context()
			if v.Error == nil {
				logger.InfoContext(ctx, "request completed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds())
			} else {
				logger.ErrorContext(ctx, "request failed",
					"method", v.Method,
					"uri", v.URI,
					"status", v.Status,
					"latency_ms", v.Latency.Milliseconds(),
					"error", v.Error.Error())
			}
			return nil
		},
	}))

	e.GET("/v1/health", status.Health)
	e.GET("/v1/status", status.Status)
	e.GET("/v1/dlq", dlq.List)
	e.POST("/v1/dlq/retry", dlq.Retry)
	e.POST("/v1/backfill", ops.Backfill)
	e.POST("/v1/reconcile", ops.Reconcile)

	if gatherer != nil {
		e.GET(metricsPath, echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}
}
