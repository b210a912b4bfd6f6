package store

import (
	"context"
	"fmt"

	"github.com/viewstream/pg-partition-migrate/internal/bench"
)

// Benchmark queries. Each targets a recent time window so the planner
// can prune old partitions on the partitioned table; the table name is
// substituted so the identical query runs against both layouts.
var benchmarkQueries = map[string]string{
	"daily_active_users": `
		SELECT DATE(event_timestamp) AS day, COUNT(DISTINCT user_id) AS active_users
		FROM %s
		WHERE event_timestamp >= NOW() - INTERVAL '7 days'
		GROUP BY DATE(event_timestamp)
		ORDER BY day`,

	"top_10_content": `
		SELECT content_id, COUNT(*) AS starts
		FROM %s
		WHERE event_timestamp >= NOW() - INTERVAL '24 hours'
		  AND event_type = 'start'
		GROUP BY content_id
		ORDER BY starts DESC
		LIMIT 10`,

	"device_analytics": `
		SELECT device_type,
			   COUNT(*) AS events,
			   AVG(watch_duration_seconds) AS avg_watch_seconds
		FROM %s
		WHERE event_timestamp >= NOW() - INTERVAL '1 month'
		GROUP BY device_type
		ORDER BY events DESC`,
}

// BenchmarkQueryNames returns the canonical queries in a stable order.
func BenchmarkQueryNames() []string {
	return []string{"daily_active_users", "top_10_content", "device_analytics"}
}

type queryRunner struct {
	pool *Pool
	sql  string
}

// QueryRunner implements bench.RunnerSource. Unknown query names yield a
// runner that fails on execution, which the suite records as a failed
// result for that query alone.
func (p *Pool) QueryRunner(queryName, table string) bench.Runner {
	template, ok := benchmarkQueries[queryName]
	if !ok {
		return &queryRunner{pool: p}
	}
	return &queryRunner{
		pool: p,
		sql:  fmt.Sprintf(template, qualify(p.schema, table)),
	}
}

// RunQuery executes the query and drains every row, so the measured time
// covers the full result transfer and not just the first fetch.
func (r *queryRunner) RunQuery(ctx context.Context) error {
	if r.sql == "" {
		return fmt.Errorf("unknown benchmark query")
	}
	rows, err := r.pool.pool.Query(ctx, r.sql)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
	}
	return rows.Err()
}
