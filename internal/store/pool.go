// Package store is the PostgreSQL access layer. Everything the pipeline
// needs from the database (counts, batch copy, partition DDL dispatch,
// storage metrics, benchmark query execution, advisory locking) goes
// through one Pool passed explicitly into each stage; no package-level
// connection state exists.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/viewstream/pg-partition-migrate/internal/config"
	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Pool manages PostgreSQL connections via pgx.
type Pool struct {
	pool   *pgxpool.Pool
	schema string
}

// NewPool creates a connection pool and verifies connectivity.
func NewPool(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.Database.MaxConns)
	poolConfig.MinConns = int32(cfg.Database.MaxConns / 4)
	if poolConfig.MinConns < 1 {
		poolConfig.MinConns = 1
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	logging.Info("Connected to PostgreSQL: %s:%d/%s",
		cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)

	return &Pool{pool: pool, schema: cfg.Tables.Schema}, nil
}

// Close closes all connections in the pool.
func (p *Pool) Close() {
	p.pool.Close()
}

// quoteIdent quotes a PostgreSQL identifier.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// qualify returns schema.table with both parts quoted.
func qualify(schema, table string) string {
	return quoteIdent(schema) + "." + quoteIdent(table)
}

// RowCount returns the exact row count for a table.
func (p *Pool) RowCount(ctx context.Context, table string) (int64, error) {
	var count int64
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", qualify(p.schema, table))
	if err := p.pool.QueryRow(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting %s: %w", table, err)
	}
	return count, nil
}

// TableExists reports whether a table (or partitioned parent) exists.
func (p *Pool) TableExists(ctx context.Context, table string) (bool, error) {
	var regclass *string
	err := p.pool.QueryRow(ctx, "SELECT to_regclass($1)::text", p.schema+"."+table).Scan(&regclass)
	if err != nil {
		return false, fmt.Errorf("checking %s: %w", table, err)
	}
	return regclass != nil, nil
}

// TruncateTable clears a table and its partitions.
func (p *Pool) TruncateTable(ctx context.Context, table string) error {
	query := fmt.Sprintf("TRUNCATE TABLE %s", qualify(p.schema, table))
	if _, err := p.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("truncating %s: %w", table, err)
	}
	return nil
}

// lockConn is the slice of a pooled connection the advisory lock needs.
// *pgxpool.Conn satisfies it.
type lockConn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Release()
}

// MigrationLock holds the session-scoped advisory lock that guards the
// migration. Advisory locks belong to one PostgreSQL session, so the
// lock pins a dedicated pooled connection for its whole lifetime; taking
// or releasing it through arbitrary pooled connections would drop the
// exclusion as soon as the holding connection was recycled. Two
// concurrent migrators sharing one cursor would double-copy rows or
// corrupt the resume position, so a held lock means another migration is
// in progress and the caller must not start.
type MigrationLock struct {
	conn lockConn
	key  int64
}

// AcquireMigrationLock takes the advisory lock on a dedicated connection.
// It returns (nil, nil) when another session already holds the lock. The
// caller must Release the returned lock, which also returns the pinned
// connection to the pool.
func (p *Pool) AcquireMigrationLock(ctx context.Context, key int64) (*MigrationLock, error) {
	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring lock connection: %w", err)
	}
	return acquireLockOn(ctx, conn, key)
}

func acquireLockOn(ctx context.Context, conn lockConn, key int64) (*MigrationLock, error) {
	var acquired bool
	if err := conn.QueryRow(ctx, "SELECT pg_try_advisory_lock($1)", key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, fmt.Errorf("acquiring advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, nil
	}
	return &MigrationLock{conn: conn, key: key}, nil
}

// Release unlocks on the same session that took the lock and returns the
// pinned connection to the pool. Safe to call exactly once.
func (l *MigrationLock) Release(ctx context.Context) error {
	defer l.conn.Release()

	var released bool
	if err := l.conn.QueryRow(ctx, "SELECT pg_advisory_unlock($1)", l.key).Scan(&released); err != nil {
		return fmt.Errorf("releasing advisory lock: %w", err)
	}
	if !released {
		return fmt.Errorf("advisory lock %d was not held by this session", l.key)
	}
	return nil
}

// Table is a handle to one table used by the verifier: independent row
// count plus an order-insensitive SQL-side content checksum.
type Table struct {
	pool  *Pool
	table string
}

// TableHandle returns a verifier handle for the named table.
func (p *Pool) TableHandle(table string) *Table {
	return &Table{pool: p, table: table}
}

// RowCount implements verify.Countable.
func (t *Table) RowCount(ctx context.Context) (int64, error) {
	return t.pool.RowCount(ctx, t.table)
}

// ContentChecksum implements verify.Checksummer. Per-row md5 digests are
// folded with an order-insensitive sum, and the row count is appended so
// cancelling duplicates cannot hide.
func (t *Table) ContentChecksum(ctx context.Context) (string, error) {
	query := fmt.Sprintf(`
		SELECT COALESCE(SUM(('x' || substr(md5(t::text), 1, 8))::bit(32)::bigint), 0)::text
			   || ':' || COUNT(*)::text
		FROM %s t
	`, qualify(t.pool.schema, t.table))

	var sum string
	if err := t.pool.pool.QueryRow(ctx, query).Scan(&sum); err != nil {
		return "", fmt.Errorf("checksumming %s: %w", t.table, err)
	}
	return sum, nil
}
