// ABOUTME: This file defines the durable scan cursor persisted per ingestion stage
// ABOUTME: The persisted cursor is the sole source of truth for resuming scans
package models

import "time"

// StageState tracks the lifecycle of a scan stage.
type StageState string

const (
	StageNotStarted StageState = "not_started"
	StageRunning    StageState = "running"
	StageDone       StageState = "done"
)

// Checkpoint is the persisted cursor for one scan stage. A stage with no row
// is implicitly not started; a done row is kept as an archive of the run.
type Checkpoint struct {
	Stage       string     `db:"stage"`
	State       StageState `db:"state"`
	CursorDate  time.Time  `db:"cursor_date"`
	CursorPage  int        `db:"cursor_page"`
	LastSeenKey string     `db:"last_seen_key"`
	EmptyPages  int        `db:"empty_pages"`
	UpdatedAt   time.Time  `db:"updated_at"`
}
