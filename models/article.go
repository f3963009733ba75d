// ABOUTME: This file defines the ContentItem entity persisted by the ingest store
// ABOUTME: Carries canonical identity, change-detection hash and delivery state
package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// UpsertOutcome reports what an ingest-store upsert actually did.
type UpsertOutcome string

const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// Article is a content item keyed by its canonical identity.
// PublishedAt and all other timestamps are UTC.
type Article struct {
	ID          int64      `db:"id"`
	CanonicalID string     `db:"canonical_id"`
	SourceRef   string     `db:"source_ref"`
	Title       string     `db:"title"`
	PublishedAt time.Time  `db:"published_at"`
	Body        string     `db:"body"`
	ContentHash string     `db:"content_hash"`
	DeliveredAt *time.Time `db:"delivered_at"`
	CreatedAt   time.Time  `db:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at"`
}

// Delivered reports whether the article reached the downstream destination.
func (a *Article) Delivered() bool {
	return a.DeliveredAt != nil
}

// HashBody computes the change-detection digest over the body.
func HashBody(body string) string {
	sum := sha256.Sum256([]byte(body))
	return hex.EncodeToString(sum[:])
}

// IngestStats summarizes the ingest store for the operational surface.
type IngestStats struct {
	Total       int64 `json:"total"`
	Delivered   int64 `json:"delivered"`
	Undelivered int64 `json:"undelivered"`
}
