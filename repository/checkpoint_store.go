// ABOUTME: This file persists scan cursors so interrupted stages resume exactly
// ABOUTME: One row per stage, upserted on every cursor advance
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"news-courier/models"
)

type checkpointStore struct {
	db     DB
	logger *slog.Logger
}

// NewCheckpointStore creates a Postgres-backed checkpoint store.
func NewCheckpointStore(db DB, logger *slog.Logger) CheckpointStore {
	return &checkpointStore{
		db:     db,
		logger: logger,
	}
}

// Get returns the checkpoint for a stage, or nil when the stage has never
// been started.
func (s *checkpointStore) Get(ctx context.Context, stage string) (*models.Checkpoint, error) {
	var cp models.Checkpoint
	err := s.db.QueryRow(ctx,
		`SELECT stage, state, cursor_date, cursor_page, last_seen_key, empty_pages, updated_at
		 FROM checkpoints WHERE stage = $1`,
		stage,
	).Scan(&cp.Stage, &cp.State, &cp.CursorDate, &cp.CursorPage, &cp.LastSeenKey,
		&cp.EmptyPages, &cp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

func (s *checkpointStore) Put(ctx context.Context, cp *models.Checkpoint) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO checkpoints (stage, state, cursor_date, cursor_page, last_seen_key, empty_pages, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (stage) DO UPDATE SET
		   state = EXCLUDED.state,
		   cursor_date = EXCLUDED.cursor_date,
		   cursor_page = EXCLUDED.cursor_page,
		   last_seen_key = EXCLUDED.last_seen_key,
		   empty_pages = EXCLUDED.empty_pages,
		   updated_at = now()`,
		cp.Stage, cp.State, cp.CursorDate.UTC(), cp.CursorPage, cp.LastSeenKey, cp.EmptyPages,
	)
	if err != nil {
		return fmt.Errorf("failed to put checkpoint: %w", err)
	}
	return nil
}

func (s *checkpointStore) Delete(ctx context.Context, stage string) error {
	_, err := s.db.Exec(ctx, `DELETE FROM checkpoints WHERE stage = $1`, stage)
	if err != nil {
		return fmt.Errorf("failed to delete checkpoint: %w", err)
	}
	return nil
}

func (s *checkpointStore) List(ctx context.Context) ([]*models.Checkpoint, error) {
	rows, err := s.db.Query(ctx,
		`SELECT stage, state, cursor_date, cursor_page, last_seen_key, empty_pages, updated_at
		 FROM checkpoints ORDER BY stage`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*models.Checkpoint
	for rows.Next() {
		var cp models.Checkpoint
		if err := rows.Scan(&cp.Stage, &cp.State, &cp.CursorDate, &cp.CursorPage,
			&cp.LastSeenKey, &cp.EmptyPages, &cp.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan checkpoint: %w", err)
		}
		checkpoints = append(checkpoints, &cp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read checkpoint rows: %w", err)
	}
	return checkpoints, nil
}
