// ABOUTME: This file defines the dead-letter entry for items past their retry budget
// ABOUTME: Entries are upserted by (entity_type, entity_ref) and never auto-deleted
package models

import "time"

// Entity types recorded in the dead-letter store.
const (
	EntityArticle  = "article"
	EntityDelivery = "delivery"
)

// DeadLetter holds one failed entity pending manual inspection or replay.
type DeadLetter struct {
	ID           string    `db:"id"`
	EntityType   string    `db:"entity_type"`
	EntityRef    string    `db:"entity_ref"`
	ErrorCode    string    `db:"error_code"`
	ErrorPayload string    `db:"error_payload"`
	Attempts     int       `db:"attempts"`
	FirstSeenAt  time.Time `db:"first_seen_at"`
	LastSeenAt   time.Time `db:"last_seen_at"`
}
