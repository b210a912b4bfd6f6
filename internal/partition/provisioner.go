// Package partition provisions per-period partitions for the destination
// table. Partition DDL itself is owned by the database (an external
// create_partition_and_indexes function); this package only drives it and
// tracks which periods exist.
package partition

import (
	"context"
	"fmt"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Descriptor describes one materialized partition.
type Descriptor struct {
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Name        string    `json:"name"`
}

// Failure records a period whose DDL was rejected.
type Failure struct {
	Period time.Time `json:"period"`
	Reason string    `json:"reason"`
}

// Result is the outcome of one Provision call. Created holds the periods
// materialized (or already present) before the first failure; partial
// success is normal and already-created partitions are never rolled back.
type Result struct {
	Created  []Descriptor `json:"created"`
	Failures []Failure    `json:"failures"`
}

// DDLRunner is the external capability that materializes one partition and
// its indexes. Implementations must be idempotent for an existing period.
type DDLRunner interface {
	CreatePartitionAndIndexes(ctx context.Context, periodStart time.Time) error
}

// Provisioner creates monthly partitions for a parent table.
type Provisioner struct {
	runner DDLRunner
	table  string
}

// New creates a provisioner for the given parent table.
func New(runner DDLRunner, table string) *Provisioner {
	return &Provisioner{runner: runner, table: table}
}

// Name returns the deterministic partition name for a period start,
// e.g. viewing_events_partitioned_2025_06.
func Name(table string, periodStart time.Time) string {
	return fmt.Sprintf("%s_%04d_%02d", table, periodStart.Year(), int(periodStart.Month()))
}

// truncateToMonth normalizes a time to the first instant of its month, UTC.
func truncateToMonth(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

// Descriptors returns the contiguous, non-overlapping descriptor set for
// count consecutive months starting at the month containing start. Each
// period's end is the next period's start, so the set covers the requested
// range exactly.
func Descriptors(table string, start time.Time, count int) []Descriptor {
	descs := make([]Descriptor, 0, count)
	period := truncateToMonth(start)
	for i := 0; i < count; i++ {
		next := period.AddDate(0, 1, 0)
		descs = append(descs, Descriptor{
			PeriodStart: period,
			PeriodEnd:   next,
			Name:        Name(table, period),
		})
		period = next
	}
	return descs
}

// Provision materializes count consecutive monthly partitions starting at
// the month containing start. Periods are processed in order; the first
// failure aborts the remaining periods in this call but leaves earlier
// partitions in place. Re-invoking with the same range is safe: the DDL
// capability is a no-op for periods that already exist.
func (p *Provisioner) Provision(ctx context.Context, start time.Time, count int) Result {
	var result Result
	for _, desc := range Descriptors(p.table, start, count) {
		if err := p.runner.CreatePartitionAndIndexes(ctx, desc.PeriodStart); err != nil {
			logging.Error("Creating partition %s: %v", desc.Name, err)
			result.Failures = append(result.Failures, Failure{
				Period: desc.PeriodStart,
				Reason: err.Error(),
			})
			return result
		}
		logging.Debug("Partition %s ready (%s to %s)",
			desc.Name,
			desc.PeriodStart.Format("2006-01-02"),
			desc.PeriodEnd.Format("2006-01-02"))
		result.Created = append(result.Created, desc)
	}
	return result
}
