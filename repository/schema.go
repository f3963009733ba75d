// ABOUTME: This file creates the tables the service needs on startup
// ABOUTME: Statements are idempotent so restarts against an existing schema are safe
package repository

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS articles (
		id            BIGSERIAL PRIMARY KEY,
		canonical_id  TEXT NOT NULL UNIQUE,
		source_ref    TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		published_at  TIMESTAMPTZ NOT NULL,
		body          TEXT NOT NULL DEFAULT '',
		content_hash  TEXT NOT NULL,
		delivered_at  TIMESTAMPTZ,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_articles_undelivered
		ON articles (published_at) WHERE delivered_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS checkpoints (
		stage         TEXT PRIMARY KEY,
		state         TEXT NOT NULL,
		cursor_date   TIMESTAMPTZ NOT NULL,
		cursor_page   INT NOT NULL DEFAULT 0,
		last_seen_key TEXT NOT NULL DEFAULT '',
		empty_pages   INT NOT NULL DEFAULT 0,
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS pending_deliveries (
		id              BIGSERIAL PRIMARY KEY,
		item_ref        TEXT NOT NULL UNIQUE,
		destination     TEXT NOT NULL,
		payload         JSONB NOT NULL,
		attempts        INT NOT NULL DEFAULT 0,
		next_attempt_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_error      TEXT NOT NULL DEFAULT '',
		enqueued_at     TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pending_deliveries_order
		ON pending_deliveries (enqueued_at, id)`,
	`CREATE TABLE IF NOT EXISTS dead_letters (
		id            UUID PRIMARY KEY,
		entity_type   TEXT NOT NULL,
		entity_ref    TEXT NOT NULL,
		error_code    TEXT NOT NULL,
		error_payload TEXT NOT NULL DEFAULT '',
		attempts      INT NOT NULL DEFAULT 0,
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (entity_type, entity_ref)
	)`,
}

// Migrate applies the schema. Safe to run on every startup.
func Migrate(ctx context.Context, db DB) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
