// ABOUTME: This file drives scan-stage checkpoints through their lifecycle.
// ABOUTME: The persisted cursor is the only scan state that survives a restart.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"news-courier/config"
	"news-courier/models"
	"news-courier/repository"
)

// CheckpointManager creates and advances per-stage scan cursors. In-memory
// scan state is disposable; everything needed to resume lives in the store.
type CheckpointManager struct {
	store     repository.CheckpointStore
	saveEvery int
	emptyDone int
	logger    *slog.Logger
}

// NewCheckpointManager builds a manager from the scan configuration.
func NewCheckpointManager(store repository.CheckpointStore, cfg config.ScanConfig, logger *slog.Logger) *CheckpointManager {
	return &CheckpointManager{
		store:     store,
		saveEvery: cfg.CheckpointEvery,
		emptyDone: cfg.EmptyPagesDone,
		logger:    logger,
	}
}

// PruneDone deletes finished stages whose name carries the given prefix,
// except keep. Every backfill range creates its own stage, so finished ones
// would otherwise accumulate in the listing forever.
func (m *CheckpointManager) PruneDone(ctx context.Context, prefix, keep string) error {
	cps, err := m.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list checkpoints: %w", err)
	}
	for _, cp := range cps {
		if cp.Stage == keep || cp.State != models.StageDone || !strings.HasPrefix(cp.Stage, prefix) {
			continue
		}
		if err := m.store.Delete(ctx, cp.Stage); err != nil {
			return fmt.Errorf("failed to prune checkpoint for stage %s: %w", cp.Stage, err)
		}
		m.logger.InfoContext(ctx, "pruned finished stage checkpoint", "stage", cp.Stage)
	}
	return nil
}

// StageRun tracks one in-progress pass over a stage. It is not safe for
// concurrent use; each stage runs in a single goroutine.
type StageRun struct {
	manager   *CheckpointManager
	cp        *models.Checkpoint
	sinceSave int
}

// Begin resumes a running stage from its persisted cursor, or starts a fresh
// pass when the stage has no cursor or the previous pass finished.
func (m *CheckpointManager) Begin(ctx context.Context, stage string, boundary time.Time) (*StageRun, error) {
	cp, err := m.store.Get(ctx, stage)
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint for stage %s: %w", stage, err)
	}

	if cp != nil && cp.State == models.StageRunning {
		m.logger.InfoContext(ctx, "resuming stage from checkpoint",
			"stage", stage,
			"cursor_page", cp.CursorPage,
			"last_seen_key", cp.LastSeenKey)
		return &StageRun{manager: m, cp: cp}, nil
	}

	cp = &models.Checkpoint{
		Stage:      stage,
		State:      models.StageRunning,
		CursorDate: boundary.UTC(),
		CursorPage: 1,
	}
	if err := m.store.Put(ctx, cp); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint for stage %s: %w", stage, err)
	}

	m.logger.InfoContext(ctx, "starting stage", "stage", stage, "boundary", cp.CursorDate)
	return &StageRun{manager: m, cp: cp}, nil
}

// Checkpoint exposes the cursor backing this run.
func (r *StageRun) Checkpoint() *models.Checkpoint {
	return r.cp
}

// ObserveItem records progress within a page. The cursor is persisted every
// K items so a crash mid-page loses at most that many observations.
func (r *StageRun) ObserveItem(ctx context.Context, key string) error {
	r.cp.LastSeenKey = key
	r.sinceSave++
	if r.sinceSave < r.manager.saveEvery {
		return nil
	}
	r.sinceSave = 0
	if err := r.manager.store.Put(ctx, r.cp); err != nil {
		return fmt.Errorf("failed to persist checkpoint for stage %s: %w", r.cp.Stage, err)
	}
	return nil
}

// PageDone advances the cursor past a page that held items. Consecutive
// empty-page counting starts over.
func (r *StageRun) PageDone(ctx context.Context, nextPage int) error {
	r.cp.CursorPage = nextPage
	r.cp.EmptyPages = 0
	r.sinceSave = 0
	if err := r.manager.store.Put(ctx, r.cp); err != nil {
		return fmt.Errorf("failed to persist checkpoint for stage %s: %w", r.cp.Stage, err)
	}
	return nil
}

// EmptyPage records a page with no items and reports whether enough
// consecutive empty pages have been seen to call the stage done. A single
// empty response is not trusted as end-of-data.
func (r *StageRun) EmptyPage(ctx context.Context, nextPage int) (bool, error) {
	r.cp.CursorPage = nextPage
	r.cp.EmptyPages++
	if err := r.manager.store.Put(ctx, r.cp); err != nil {
		return false, fmt.Errorf("failed to persist checkpoint for stage %s: %w", r.cp.Stage, err)
	}
	return r.cp.EmptyPages >= r.manager.emptyDone, nil
}

// Complete marks the stage done. The row is kept as an archive of the pass.
func (r *StageRun) Complete(ctx context.Context) error {
	r.cp.State = models.StageDone
	if err := r.manager.store.Put(ctx, r.cp); err != nil {
		return fmt.Errorf("failed to complete checkpoint for stage %s: %w", r.cp.Stage, err)
	}
	r.manager.logger.InfoContext(ctx, "stage complete",
		"stage", r.cp.Stage,
		"last_page", r.cp.CursorPage,
		"last_seen_key", r.cp.LastSeenKey)
	return nil
}
