package store

import (
	"context"
	"fmt"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// PartitionDDL creates monthly partitions through the database-side
// create_partition_and_indexes function, which owns the CREATE TABLE and
// index DDL. The function is idempotent, so re-provisioning an existing
// period is a no-op.
type PartitionDDL struct {
	pool *Pool
}

// NewPartitionDDL returns a partition.DDLRunner backed by the pool.
func NewPartitionDDL(pool *Pool) *PartitionDDL {
	return &PartitionDDL{pool: pool}
}

// CreatePartitionAndIndexes implements partition.DDLRunner.
func (d *PartitionDDL) CreatePartitionAndIndexes(ctx context.Context, periodStart time.Time) error {
	_, err := d.pool.pool.Exec(ctx, "SELECT create_partition_and_indexes($1)", periodStart)
	if err != nil {
		return fmt.Errorf("create_partition_and_indexes(%s): %w",
			periodStart.Format("2006-01-02"), err)
	}
	logging.Debug("Provisioned partition for %s", periodStart.Format("2006-01"))
	return nil
}
