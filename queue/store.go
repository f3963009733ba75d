// ABOUTME: This file declares the delivery queue and dead-letter store interfaces
// ABOUTME: Backends are interchangeable: Postgres, Redis, or in-process memory
package queue

import (
	"context"
	"errors"
	"time"

	"news-courier/models"
)

// ErrNotFound is returned when an item ref is absent from a store.
var ErrNotFound = errors.New("queue: item not found")

// Store is a FIFO delivery queue keyed by item ref. An item ref appears at
// most once; re-enqueueing an in-flight ref is a no-op.
type Store interface {
	// Enqueue appends an entry and reports whether it was actually added.
	// A ref already queued returns false with no error.
	Enqueue(ctx context.Context, entry *models.PendingDelivery) (bool, error)
	// Peek returns up to limit entries in FIFO order without removing them.
	Peek(ctx context.Context, limit int) ([]*models.PendingDelivery, error)
	// MarkAttempt records a failed attempt and when the entry is next due.
	MarkAttempt(ctx context.Context, itemRef string, attempts int, nextAttemptAt time.Time, lastError string) error
	// Remove deletes a delivered entry.
	Remove(ctx context.Context, itemRef string) error
	// MoveToDeadLetter removes the entry and records the dead letter in one
	// step, so the item is never in both places and never in neither.
	MoveToDeadLetter(ctx context.Context, itemRef string, letter *models.DeadLetter) error
	Depth(ctx context.Context) (int, error)
	// OldestAge returns how long the head entry has been queued, zero when
	// the queue is empty.
	OldestAge(ctx context.Context) (time.Duration, error)
	Backend() string
}

// DeadLetterStore keeps items that exhausted their retry budget or failed
// fatally. Entries are upserted by (entity_type, entity_ref) and stay until
// removed by a successful replay or an operator.
type DeadLetterStore interface {
	Record(ctx context.Context, letter *models.DeadLetter) error
	List(ctx context.Context, limit int) ([]*models.DeadLetter, error)
	Remove(ctx context.Context, entityType, entityRef string) error
	Size(ctx context.Context) (int, error)
}
