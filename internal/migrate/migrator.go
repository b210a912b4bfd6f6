// Package migrate implements the batched, resumable copy from the
// monolithic event table to its partitioned replacement.
//
// Pagination is keyset-based on the monotonic event identifier
// (WHERE event_id > last ORDER BY event_id LIMIT n). Positional
// OFFSET/LIMIT is deliberately not supported: concurrent inserts into the
// source shift row positions between batches and can skip or duplicate
// rows across batch boundaries.
//
// Only one migrator may run against a given (source, destination) pair at
// a time. That exclusion is a caller precondition, not enforced here; the
// orchestrator takes a Postgres advisory lock before invoking Run.
package migrate

import (
	"context"
	"fmt"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Cursor is the migration watermark: the sole state needed to resume.
// MigratedRows is monotonically non-decreasing and never exceeds the
// TotalRows snapshot taken when the run started.
type Cursor struct {
	LastID       int64 `json:"last_id"`
	TotalRows    int64 `json:"total_rows"`
	MigratedRows int64 `json:"migrated_rows"`
	BatchSize    int   `json:"batch_size"`
}

// Result summarizes a completed or halted migration run.
type Result struct {
	TotalRows      int64  `json:"total_rows"`
	MigratedRows   int64  `json:"migrated_rows"`
	BatchesApplied int    `json:"batches_applied"`
	Resumed        bool   `json:"resumed"`
	Cursor         Cursor `json:"cursor"`
}

// Complete reports whether every snapshot row reached the destination.
func (r Result) Complete() bool {
	return r.MigratedRows == r.TotalRows
}

// Copier is the storage capability the migrator drives. CopyBatch must
// fetch the next ordered slice of up to limit rows with id > cursor.LastID,
// insert it into the destination, and persist the advanced cursor (LastID
// moved to the slice's last id, MigratedRows grown by copied), all as one
// committed unit. A failed batch must leave no partial effects and must
// not advance the persisted cursor.
type Copier interface {
	TotalRows(ctx context.Context) (int64, error)
	LoadCursor(ctx context.Context) (Cursor, bool, error)
	CopyBatch(ctx context.Context, cursor Cursor, limit int) (copied int64, lastID int64, err error)
	// ClearCursor retires the cursor after a fully successful run.
	ClearCursor(ctx context.Context) error
}

// Observer is notified after each committed batch. It is a notification
// channel for progress display, never a control input.
type Observer interface {
	BatchCommitted(migrated, total int64)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(migrated, total int64)

// BatchCommitted implements Observer.
func (f ObserverFunc) BatchCommitted(migrated, total int64) { f(migrated, total) }

// BatchError reports a failed batch along with the last committed cursor,
// so the caller can retry from a known-good resume point.
type BatchError struct {
	Batch  int
	Cursor Cursor
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("batch %d failed (resume at id %d, %d/%d rows migrated): %v",
		e.Batch, e.Cursor.LastID, e.Cursor.MigratedRows, e.Cursor.TotalRows, e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Migrator copies rows in bounded committed batches.
type Migrator struct {
	copier    Copier
	batchSize int
	observer  Observer
}

// New creates a migrator. batchSize must be >= 1.
func New(copier Copier, batchSize int) *Migrator {
	return &Migrator{copier: copier, batchSize: batchSize}
}

// SetObserver installs a progress observer. A nil observer disables
// notifications.
func (m *Migrator) SetObserver(obs Observer) {
	m.observer = obs
}

// Run executes the migration until the snapshot total is reached or a
// batch returns zero rows. Interruptions are safe: the cursor persisted
// with the last committed batch is picked up by the next invocation, and
// the > lastID predicate guarantees committed rows are never re-fetched.
func (m *Migrator) Run(ctx context.Context) (Result, error) {
	if m.batchSize < 1 {
		return Result{}, fmt.Errorf("batch size must be >= 1, got %d", m.batchSize)
	}

	cursor, resumed, err := m.copier.LoadCursor(ctx)
	if err != nil {
		return Result{}, fmt.Errorf("loading cursor: %w", err)
	}

	if resumed {
		logging.Info("Resuming migration at id %d (%d/%d rows done)",
			cursor.LastID, cursor.MigratedRows, cursor.TotalRows)
	} else {
		total, err := m.copier.TotalRows(ctx)
		if err != nil {
			return Result{}, fmt.Errorf("counting source rows: %w", err)
		}
		cursor = Cursor{TotalRows: total, BatchSize: m.batchSize}
	}

	result := Result{
		TotalRows: cursor.TotalRows,
		Resumed:   resumed,
		Cursor:    cursor,
	}
	result.MigratedRows = cursor.MigratedRows

	if cursor.TotalRows == 0 {
		logging.Info("Source table is empty, nothing to migrate")
		return result, nil
	}

	for cursor.MigratedRows < cursor.TotalRows {
		select {
		case <-ctx.Done():
			result.Cursor = cursor
			return result, ctx.Err()
		default:
		}

		// Clamp to the snapshot so concurrent inserts past the snapshot
		// point are left for a later run.
		limit := m.batchSize
		if remaining := cursor.TotalRows - cursor.MigratedRows; remaining < int64(limit) {
			limit = int(remaining)
		}

		copied, lastID, err := m.copier.CopyBatch(ctx, cursor, limit)
		if err != nil {
			result.Cursor = cursor
			return result, &BatchError{
				Batch:  result.BatchesApplied + 1,
				Cursor: cursor,
				Err:    err,
			}
		}
		if copied == 0 {
			break
		}

		cursor.LastID = lastID
		cursor.MigratedRows += copied
		result.BatchesApplied++
		result.MigratedRows = cursor.MigratedRows
		result.Cursor = cursor

		if m.observer != nil {
			m.observer.BatchCommitted(cursor.MigratedRows, cursor.TotalRows)
		}
	}

	if result.Complete() {
		if err := m.copier.ClearCursor(ctx); err != nil {
			// The copy itself succeeded; a stale cursor only means the next
			// run reloads it and immediately finds nothing left to do.
			logging.Warn("Retiring cursor: %v", err)
		}
	}

	return result, nil
}
