// ABOUTME: This file defines the delivery queue entry and its payload snapshot
// ABOUTME: Entries are FIFO by enqueued_at and removed only on success or dead-letter
package models

import "time"

// DeliveryPayload is the snapshot sent downstream. It is frozen at enqueue
// time so a later update of the article does not change an in-flight message.
type DeliveryPayload struct {
	CanonicalID string    `json:"canonical_id"`
	SourceRef   string    `json:"source_ref"`
	Title       string    `json:"title"`
	PublishedAt time.Time `json:"published_at"`
	Text        string    `json:"text"`
}

// PendingDelivery is one queued delivery attempt awaiting success.
type PendingDelivery struct {
	ID            string          `db:"id"`
	ItemRef       string          `db:"item_ref"`
	Destination   string          `db:"destination"`
	Payload       DeliveryPayload `db:"payload"`
	Attempts      int             `db:"attempts"`
	NextAttemptAt time.Time       `db:"next_attempt_at"`
	LastError     string          `db:"last_error"`
	EnqueuedAt    time.Time       `db:"enqueued_at"`
}

// QueueStatus is the observability snapshot of one delivery queue.
type QueueStatus struct {
	Backend   string        `json:"backend"`
	Depth     int           `json:"depth"`
	OldestAge time.Duration `json:"oldest_age"`
	DLQSize   int           `json:"dlq_size"`
}
