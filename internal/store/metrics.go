package store

import (
	"context"
	"fmt"
)

// TableStorage holds size figures for one table, with partition children
// rolled up into the parent's totals.
type TableStorage struct {
	Table      string `json:"table"`
	TotalBytes int64  `json:"total_bytes"`
	IndexBytes int64  `json:"index_bytes"`
	Pretty     string `json:"pretty"`
}

// StorageComparison pairs the monolithic and partitioned table sizes for
// the report.
type StorageComparison struct {
	Monolithic  TableStorage `json:"monolithic"`
	Partitioned TableStorage `json:"partitioned"`
}

// CollectStorage measures both tables. Partitioned parents report near
// zero from pg_total_relation_size alone, so child partitions found via
// pg_inherits are added in.
func (p *Pool) CollectStorage(ctx context.Context, monolithic, partitioned string) (StorageComparison, error) {
	mono, err := p.tableStorage(ctx, monolithic)
	if err != nil {
		return StorageComparison{}, err
	}
	part, err := p.tableStorage(ctx, partitioned)
	if err != nil {
		return StorageComparison{}, err
	}
	return StorageComparison{Monolithic: mono, Partitioned: part}, nil
}

func (p *Pool) tableStorage(ctx context.Context, table string) (TableStorage, error) {
	query := `
		SELECT
			COALESCE(SUM(pg_total_relation_size(rel)), 0),
			COALESCE(SUM(pg_indexes_size(rel)), 0)
		FROM (
			SELECT ($1::regclass) AS rel
			UNION ALL
			SELECT inhrelid::regclass FROM pg_inherits WHERE inhparent = $1::regclass
		) members
	`
	s := TableStorage{Table: table}
	err := p.pool.QueryRow(ctx, query, p.schema+"."+table).Scan(&s.TotalBytes, &s.IndexBytes)
	if err != nil {
		return TableStorage{}, fmt.Errorf("measuring %s: %w", table, err)
	}
	s.Pretty = PrettyBytes(s.TotalBytes)
	return s, nil
}

// PrettyBytes formats a byte count the way pg_size_pretty does.
func PrettyBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d bytes", n)
	}
	units := []string{"kB", "MB", "GB", "TB"}
	value := float64(n)
	for i, u := range units {
		value /= unit
		if value < unit || i == len(units)-1 {
			return fmt.Sprintf("%.1f %s", value, u)
		}
	}
	return fmt.Sprintf("%d bytes", n)
}
