package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/viewstream/pg-partition-migrate/internal/logging"
	"github.com/viewstream/pg-partition-migrate/internal/migrate"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUndefinedTable reports SQLSTATE 42P01, which a read-only cursor
// lookup sees when no migration has ever created the cursor table.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}

// eventColumns is the column list copied between the monolithic table and
// the partitioned destination. event_id is carried over unchanged so the
// keyset cursor stays valid across both tables.
const eventColumns = `event_id, user_id, content_id, event_timestamp, event_type,
	watch_duration_seconds, device_type, country_code, quality, bandwidth_mbps, created_at`

// EventCopier moves viewing event rows between two tables in the same
// database. The copy position lives in a migration_cursor row in the
// destination database and is advanced in the same transaction that
// inserts each batch, so a crash between batches loses nothing and a
// crash mid-batch rolls the batch back together with its cursor update.
type EventCopier struct {
	pool   *Pool
	source string
	dest   string
}

// NewEventCopier builds a copier for the given source and destination
// tables and ensures the cursor table exists.
func NewEventCopier(ctx context.Context, pool *Pool, source, dest string) (*EventCopier, error) {
	c := &EventCopier{pool: pool, source: source, dest: dest}
	if err := c.ensureCursorTable(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *EventCopier) ensureCursorTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			source_table  TEXT NOT NULL,
			dest_table    TEXT NOT NULL,
			last_id       BIGINT NOT NULL,
			total_rows    BIGINT NOT NULL,
			migrated_rows BIGINT NOT NULL,
			batch_size    BIGINT NOT NULL,
			updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (source_table, dest_table)
		)
	`, qualify(c.pool.schema, "migration_cursor"))
	if _, err := c.pool.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("creating cursor table: %w", err)
	}
	return nil
}

// TotalRows implements migrate.Copier.
func (c *EventCopier) TotalRows(ctx context.Context) (int64, error) {
	return c.pool.RowCount(ctx, c.source)
}

// LoadCursor implements migrate.Copier.
func (c *EventCopier) LoadCursor(ctx context.Context) (migrate.Cursor, bool, error) {
	return LoadMigrationCursor(ctx, c.pool, c.source, c.dest)
}

// LoadMigrationCursor reads the persisted cursor without any DDL side
// effects, so read-only callers like the status command can use it. A
// missing cursor table means no migration has started.
func LoadMigrationCursor(ctx context.Context, pool *Pool, source, dest string) (migrate.Cursor, bool, error) {
	query := fmt.Sprintf(`
		SELECT last_id, total_rows, migrated_rows, batch_size
		FROM %s
		WHERE source_table = $1 AND dest_table = $2
	`, qualify(pool.schema, "migration_cursor"))

	var cur migrate.Cursor
	err := pool.pool.QueryRow(ctx, query, source, dest).
		Scan(&cur.LastID, &cur.TotalRows, &cur.MigratedRows, &cur.BatchSize)
	if err != nil {
		if isNoRows(err) || isUndefinedTable(err) {
			return migrate.Cursor{}, false, nil
		}
		return migrate.Cursor{}, false, fmt.Errorf("loading cursor: %w", err)
	}
	return cur, true, nil
}

// CopyBatch implements migrate.Copier. The next keyset page of up to
// limit rows past cursor.LastID is inserted into the destination and the
// advanced cursor is upserted, all inside one transaction.
func (c *EventCopier) CopyBatch(ctx context.Context, cursor migrate.Cursor, limit int) (int64, int64, error) {
	tx, err := c.pool.pool.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("beginning batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	copyQuery := fmt.Sprintf(`
		WITH batch AS (
			SELECT %s
			FROM %s
			WHERE event_id > $1
			ORDER BY event_id
			LIMIT $2
		), inserted AS (
			INSERT INTO %s (%s)
			SELECT %s FROM batch
			RETURNING event_id
		)
		SELECT COUNT(*), COALESCE(MAX(event_id), $1) FROM inserted
	`, eventColumns,
		qualify(c.pool.schema, c.source),
		qualify(c.pool.schema, c.dest), eventColumns,
		eventColumns)

	var copied, lastID int64
	if err := tx.QueryRow(ctx, copyQuery, cursor.LastID, limit).Scan(&copied, &lastID); err != nil {
		return 0, 0, fmt.Errorf("copying batch after id %d: %w", cursor.LastID, err)
	}

	cursorQuery := fmt.Sprintf(`
		INSERT INTO %s (source_table, dest_table, last_id, total_rows, migrated_rows, batch_size, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		ON CONFLICT (source_table, dest_table) DO UPDATE SET
			last_id = EXCLUDED.last_id,
			total_rows = EXCLUDED.total_rows,
			migrated_rows = EXCLUDED.migrated_rows,
			batch_size = EXCLUDED.batch_size,
			updated_at = now()
	`, qualify(c.pool.schema, "migration_cursor"))

	_, err = tx.Exec(ctx, cursorQuery,
		c.source, c.dest, lastID, cursor.TotalRows, cursor.MigratedRows+copied, cursor.BatchSize)
	if err != nil {
		return 0, 0, fmt.Errorf("advancing cursor: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("committing batch: %w", err)
	}
	return copied, lastID, nil
}

// ClearCursor implements migrate.Copier.
func (c *EventCopier) ClearCursor(ctx context.Context) error {
	query := fmt.Sprintf(`
		DELETE FROM %s WHERE source_table = $1 AND dest_table = $2
	`, qualify(c.pool.schema, "migration_cursor"))
	if _, err := c.pool.pool.Exec(ctx, query, c.source, c.dest); err != nil {
		return fmt.Errorf("clearing cursor: %w", err)
	}
	return nil
}

// PrepareFresh truncates the destination before a migration that is not
// resuming, so a re-run after a completed or abandoned migration does
// not duplicate rows.
func (c *EventCopier) PrepareFresh(ctx context.Context) error {
	logging.Info("Fresh migration: truncating %s", c.dest)
	return c.pool.TruncateTable(ctx, c.dest)
}
