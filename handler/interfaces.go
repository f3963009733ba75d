// ABOUTME: This file declares the service interfaces the HTTP surface depends on.
// ABOUTME: Handlers take interfaces so tests can swap in fakes.
package handler

import (
	"context"
	"time"

	"news-courier/breaker"
	"news-courier/models"
	"news-courier/orchestrator"
	"news-courier/queue"
)

// QueueReporter exposes the delivery queue snapshot. Satisfied by
// *delivery.Flusher.
type QueueReporter interface {
	Status(ctx context.Context, letters queue.DeadLetterStore) (*models.QueueStatus, error)
}

// BreakerReporter exposes the circuit state. Satisfied by *breaker.Breaker.
type BreakerReporter interface {
	State() breaker.State
}

// Replayer re-sends dead-lettered deliveries. Satisfied by
// *delivery.Replayer.
type Replayer interface {
	ReplayBatch(ctx context.Context, limit int) (int, error)
}

// ScanOps exposes the operator-triggered scans. Satisfied by
// *ingest.Service.
type ScanOps interface {
	Backfill(ctx context.Context, from, to time.Time) error
	Reconcile(ctx context.Context, since time.Time) (int, error)
}

// JobReporter snapshots the background jobs. Satisfied by
// *orchestrator.JobGroup.
type JobReporter interface {
	Statuses() []orchestrator.JobStatus
}
