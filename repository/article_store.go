// ABOUTME: This file implements the ingest store on Postgres via pgx
// ABOUTME: Upsert runs under a row lock so concurrent writers serialize per item
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"

	"news-courier/models"
)

type articleStore struct {
	db     DB
	logger *slog.Logger
}

// NewArticleStore creates a Postgres-backed article store.
func NewArticleStore(db DB, logger *slog.Logger) ArticleStore {
	return &articleStore{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or updates by canonical identity. The stored row only moves
// forward: an incoming version older than the stored one is ignored, and an
// identical body leaves the row untouched.
func (s *articleStore) Upsert(ctx context.Context, article *models.Article) (models.UpsertOutcome, error) {
	article.ContentHash = models.HashBody(article.Body)

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var (
		id            int64
		storedHash    string
		storedPubTime time.Time
	)
	err = tx.QueryRow(ctx,
		`SELECT id, content_hash, published_at FROM articles WHERE canonical_id = $1 FOR UPDATE`,
		article.CanonicalID,
	).Scan(&id, &storedHash, &storedPubTime)

	switch {
	case errors.Is(err, pgx.ErrNoRows):
		_, err = tx.Exec(ctx,
			`INSERT INTO articles (canonical_id, source_ref, title, published_at, body, content_hash)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			article.CanonicalID, article.SourceRef, article.Title,
			article.PublishedAt.UTC(), article.Body, article.ContentHash,
		)
		if err != nil {
			return "", fmt.Errorf("failed to insert article: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		return models.OutcomeInserted, nil

	case err != nil:
		return "", fmt.Errorf("failed to lock article row: %w", err)
	}

	if storedHash == article.ContentHash {
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		return models.OutcomeUnchanged, nil
	}

	// Updates only move forward in time.
	if article.PublishedAt.UTC().Before(storedPubTime.UTC()) {
		if err := tx.Commit(ctx); err != nil {
			return "", fmt.Errorf("failed to commit transaction: %w", err)
		}
		s.logger.WarnContext(ctx, "skipping stale article version",
			"canonical_id", article.CanonicalID,
			"incoming_published_at", article.PublishedAt,
			"stored_published_at", storedPubTime)
		return models.OutcomeUnchanged, nil
	}

	// The updated_at guard keeps the timestamp strictly increasing even when
	// the database clock did not advance between writes.
	_, err = tx.Exec(ctx,
		`UPDATE articles
		 SET source_ref = $2, title = $3, published_at = $4, body = $5, content_hash = $6,
		     updated_at = GREATEST(now(), updated_at + interval '1 microsecond')
		 WHERE id = $1`,
		id, article.SourceRef, article.Title, article.PublishedAt.UTC(),
		article.Body, article.ContentHash,
	)
	if err != nil {
		return "", fmt.Errorf("failed to update article: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit transaction: %w", err)
	}
	return models.OutcomeUpdated, nil
}

func (s *articleStore) GetByCanonicalID(ctx context.Context, canonicalID string) (*models.Article, error) {
	var a models.Article
	err := s.db.QueryRow(ctx,
		`SELECT id, canonical_id, source_ref, title, published_at, body, content_hash,
		        delivered_at, created_at, updated_at
		 FROM articles WHERE canonical_id = $1`,
		canonicalID,
	).Scan(&a.ID, &a.CanonicalID, &a.SourceRef, &a.Title, &a.PublishedAt, &a.Body,
		&a.ContentHash, &a.DeliveredAt, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return &a, nil
}

func (s *articleStore) ExistsBatch(ctx context.Context, canonicalIDs []string) (map[string]bool, error) {
	exists := make(map[string]bool, len(canonicalIDs))
	if len(canonicalIDs) == 0 {
		return exists, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT canonical_id FROM articles WHERE canonical_id = ANY($1)`,
		canonicalIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to check article existence: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan canonical id: %w", err)
		}
		exists[id] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read existence rows: %w", err)
	}
	return exists, nil
}

func (s *articleStore) MarkDelivered(ctx context.Context, canonicalID string, at time.Time) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE articles SET delivered_at = $2 WHERE canonical_id = $1`,
		canonicalID, at.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to mark article delivered: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("no article with canonical id %s", canonicalID)
	}
	return nil
}

func (s *articleStore) Undelivered(ctx context.Context, since time.Time, limit int) ([]*models.Article, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, canonical_id, source_ref, title, published_at, body, content_hash,
		        delivered_at, created_at, updated_at
		 FROM articles
		 WHERE delivered_at IS NULL AND published_at >= $1
		 ORDER BY published_at ASC, id ASC
		 LIMIT $2`,
		since.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query undelivered articles: %w", err)
	}
	defer rows.Close()

	var articles []*models.Article
	for rows.Next() {
		var a models.Article
		if err := rows.Scan(&a.ID, &a.CanonicalID, &a.SourceRef, &a.Title, &a.PublishedAt,
			&a.Body, &a.ContentHash, &a.DeliveredAt, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read undelivered rows: %w", err)
	}
	return articles, nil
}

func (s *articleStore) Stats(ctx context.Context) (*models.IngestStats, error) {
	var stats models.IngestStats
	err := s.db.QueryRow(ctx,
		`SELECT count(*),
		        count(*) FILTER (WHERE delivered_at IS NOT NULL),
		        count(*) FILTER (WHERE delivered_at IS NULL)
		 FROM articles`,
	).Scan(&stats.Total, &stats.Delivered, &stats.Undelivered)
	if err != nil {
		return nil, fmt.Errorf("failed to read ingest stats: %w", err)
	}
	return &stats, nil
}
