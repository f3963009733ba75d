// ABOUTME: This file implements the delivery queue and dead-letter store on Postgres
// ABOUTME: Dead-lettering deletes and records inside one transaction
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"news-courier/models"
	"news-courier/repository"
)

type postgresStore struct {
	db     repository.DB
	logger *slog.Logger
}

// NewPostgresStore creates a Postgres-backed delivery queue.
func NewPostgresStore(db repository.DB, logger *slog.Logger) Store {
	return &postgresStore{
		db:     db,
		logger: logger,
	}
}

func (s *postgresStore) Backend() string { return "postgres" }

func (s *postgresStore) Enqueue(ctx context.Context, entry *models.PendingDelivery) (bool, error) {
	payload, err := json.Marshal(entry.Payload)
	if err != nil {
		return false, fmt.Errorf("failed to marshal payload: %w", err)
	}

	// Attempts and the due time carry over, so an item queued after a failed
	// direct send keeps its spent attempt and is not retried early.
	tag, err := s.db.Exec(ctx,
		`INSERT INTO pending_deliveries (item_ref, destination, payload, attempts, next_attempt_at)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (item_ref) DO NOTHING`,
		entry.ItemRef, entry.Destination, payload, entry.Attempts, entry.NextAttemptAt.UTC(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to enqueue delivery: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (s *postgresStore) Peek(ctx context.Context, limit int) ([]*models.PendingDelivery, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, item_ref, destination, payload, attempts, next_attempt_at, last_error, enqueued_at
		 FROM pending_deliveries
		 ORDER BY enqueued_at ASC, id ASC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to peek deliveries: %w", err)
	}
	defer rows.Close()

	var entries []*models.PendingDelivery
	for rows.Next() {
		var (
			entry   models.PendingDelivery
			id      int64
			payload []byte
		)
		if err := rows.Scan(&id, &entry.ItemRef, &entry.Destination, &payload,
			&entry.Attempts, &entry.NextAttemptAt, &entry.LastError, &entry.EnqueuedAt); err != nil {
			return nil, fmt.Errorf("failed to scan delivery: %w", err)
		}
		entry.ID = strconv.FormatInt(id, 10)
		if err := json.Unmarshal(payload, &entry.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload for %s: %w", entry.ItemRef, err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read delivery rows: %w", err)
	}
	return entries, nil
}

func (s *postgresStore) MarkAttempt(ctx context.Context, itemRef string, attempts int, nextAttemptAt time.Time, lastError string) error {
	tag, err := s.db.Exec(ctx,
		`UPDATE pending_deliveries
		 SET attempts = $2, next_attempt_at = $3, last_error = $4
		 WHERE item_ref = $1`,
		itemRef, attempts, nextAttemptAt.UTC(), lastError,
	)
	if err != nil {
		return fmt.Errorf("failed to mark delivery attempt: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) Remove(ctx context.Context, itemRef string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM pending_deliveries WHERE item_ref = $1`, itemRef)
	if err != nil {
		return fmt.Errorf("failed to remove delivery: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresStore) MoveToDeadLetter(ctx context.Context, itemRef string, letter *models.DeadLetter) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`DELETE FROM pending_deliveries WHERE item_ref = $1`, itemRef); err != nil {
		return fmt.Errorf("failed to remove delivery for dead-letter: %w", err)
	}

	if _, err := tx.Exec(ctx, deadLetterUpsertSQL,
		uuid.NewString(), letter.EntityType, letter.EntityRef,
		letter.ErrorCode, letter.ErrorPayload, letter.Attempts); err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit dead-letter move: %w", err)
	}

	s.logger.WarnContext(ctx, "delivery moved to dead letter store",
		"item_ref", itemRef,
		"error_code", letter.ErrorCode,
		"attempts", letter.Attempts)
	return nil
}

func (s *postgresStore) Depth(ctx context.Context) (int, error) {
	var depth int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM pending_deliveries`).Scan(&depth); err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

func (s *postgresStore) OldestAge(ctx context.Context) (time.Duration, error) {
	var age *float64
	err := s.db.QueryRow(ctx,
		`SELECT EXTRACT(EPOCH FROM now() - min(enqueued_at)) FROM pending_deliveries`,
	).Scan(&age)
	if err != nil {
		return 0, fmt.Errorf("failed to read oldest queue age: %w", err)
	}
	if age == nil {
		return 0, nil
	}
	return time.Duration(*age * float64(time.Second)), nil
}

const deadLetterUpsertSQL = `
	INSERT INTO dead_letters (id, entity_type, entity_ref, error_code, error_payload, attempts)
	VALUES ($1, $2, $3, $4, $5, $6)
	ON CONFLICT (entity_type, entity_ref) DO UPDATE SET
	  error_code = EXCLUDED.error_code,
	  error_payload = EXCLUDED.error_payload,
	  attempts = dead_letters.attempts + 1,
	  last_seen_at = now()`

type postgresDeadLetterStore struct {
	db     repository.DB
	logger *slog.Logger
}

// NewPostgresDeadLetterStore creates a Postgres-backed dead-letter store.
func NewPostgresDeadLetterStore(db repository.DB, logger *slog.Logger) DeadLetterStore {
	return &postgresDeadLetterStore{
		db:     db,
		logger: logger,
	}
}

func (s *postgresDeadLetterStore) Record(ctx context.Context, letter *models.DeadLetter) error {
	_, err := s.db.Exec(ctx, deadLetterUpsertSQL,
		uuid.NewString(), letter.EntityType, letter.EntityRef,
		letter.ErrorCode, letter.ErrorPayload, letter.Attempts)
	if err != nil {
		return fmt.Errorf("failed to record dead letter: %w", err)
	}
	return nil
}

func (s *postgresDeadLetterStore) List(ctx context.Context, limit int) ([]*models.DeadLetter, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, entity_type, entity_ref, error_code, error_payload, attempts, first_seen_at, last_seen_at
		 FROM dead_letters
		 ORDER BY last_seen_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}
	defer rows.Close()

	var letters []*models.DeadLetter
	for rows.Next() {
		var letter models.DeadLetter
		if err := rows.Scan(&letter.ID, &letter.EntityType, &letter.EntityRef,
			&letter.ErrorCode, &letter.ErrorPayload, &letter.Attempts,
			&letter.FirstSeenAt, &letter.LastSeenAt); err != nil {
			return nil, fmt.Errorf("failed to scan dead letter: %w", err)
		}
		letters = append(letters, &letter)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read dead letter rows: %w", err)
	}
	return letters, nil
}

func (s *postgresDeadLetterStore) Remove(ctx context.Context, entityType, entityRef string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM dead_letters WHERE entity_type = $1 AND entity_ref = $2`,
		entityType, entityRef)
	if err != nil {
		return fmt.Errorf("failed to remove dead letter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *postgresDeadLetterStore) Size(ctx context.Context) (int, error) {
	var size int
	if err := s.db.QueryRow(ctx,
		`SELECT count(*) FROM dead_letters`).Scan(&size); err != nil {
		return 0, fmt.Errorf("failed to read dead letter size: %w", err)
	}
	return size, nil
}
