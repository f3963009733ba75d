// ABOUTME: This file declares the persistence interfaces consumed by the services
// ABOUTME: Constructors return these interfaces so tests can swap in fakes
package repository

import (
	"context"
	"time"

	"news-courier/models"
)

// ArticleStore handles content item persistence keyed by canonical identity.
type ArticleStore interface {
	// Upsert inserts or updates an article by canonical identity and reports
	// what happened. An unchanged body or an older incoming version leaves
	// the row untouched.
	Upsert(ctx context.Context, article *models.Article) (models.UpsertOutcome, error)
	GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Article, error)
	// ExistsBatch reports which of the given canonical identities are already
	// stored.
	ExistsBatch(ctx context.Context, canonicalIDs []string) (map[string]bool, error)
	MarkDelivered(ctx context.Context, canonicalID string, at time.Time) error
	// Undelivered returns articles that never reached the destination, oldest
	// first.
	Undelivered(ctx context.Context, since time.Time, limit int) ([]*models.Article, error)
	Stats(ctx context.Context) (*models.IngestStats, error)
}

// CheckpointStore persists scan cursors per stage.
type CheckpointStore interface {
	Get(ctx context.Context, stage string) (*models.Checkpoint, error)
	Put(ctx context.Context, cp *models.Checkpoint) error
	Delete(ctx context.Context, stage string) error
	List(ctx context.Context) ([]*models.Checkpoint, error)
}
