// Package bench measures comparative query latency against the monolithic
// and partitioned layouts.
//
// Timings against a live, possibly concurrently written store are
// best-effort point estimates. The only mitigation applied is warmup runs
// plus a median reduction; no isolation is attempted.
package bench

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Runner executes one query once and fully consumes its results, so a
// timed run covers execute plus fetch, not just statement dispatch.
type Runner interface {
	RunQuery(ctx context.Context) error
}

// RunnerSource produces a Runner for a named query against a table.
type RunnerSource interface {
	QueryRunner(queryName, table string) Runner
}

// Result compares one query's latency across the two layouts.
// ImprovementPct is only derived when BeforeMs > 0.
type Result struct {
	QueryName      string  `json:"query_name"`
	BeforeMs       float64 `json:"before_ms"`
	AfterMs        float64 `json:"after_ms"`
	ImprovementPct float64 `json:"improvement_pct"`
	Failed         bool    `json:"failed,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// Bench times queries with an injectable clock.
type Bench struct {
	clock func() time.Time
}

// New creates a benchmark harness using the wall clock.
func New() *Bench {
	return &Bench{clock: time.Now}
}

// SetClock replaces the clock. Test hook.
func (b *Bench) SetClock(clock func() time.Time) {
	b.clock = clock
}

// Median returns the middle value of the samples (mean of the middle two
// for even counts), resisting outlier runs from transient contention in a
// way the mean does not. Returns 0 for an empty slice.
func Median(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// TimeQuery runs the query warmupRuns times discarded (priming caches and
// plans), then measuredRuns timed runs, and returns the median duration in
// milliseconds.
func (b *Bench) TimeQuery(ctx context.Context, runner Runner, warmupRuns, measuredRuns int) (float64, error) {
	if measuredRuns < 1 {
		return 0, fmt.Errorf("measured runs must be >= 1, got %d", measuredRuns)
	}

	for i := 0; i < warmupRuns; i++ {
		if err := runner.RunQuery(ctx); err != nil {
			return 0, fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	samples := make([]float64, 0, measuredRuns)
	for i := 0; i < measuredRuns; i++ {
		start := b.clock()
		if err := runner.RunQuery(ctx); err != nil {
			return 0, fmt.Errorf("measured run %d: %w", i+1, err)
		}
		elapsed := b.clock().Sub(start)
		samples = append(samples, float64(elapsed)/float64(time.Millisecond))
	}

	return Median(samples), nil
}

// Compare derives the improvement percentage between two latencies.
// A zero before-latency yields 0, never a division by zero.
func Compare(queryName string, beforeMs, afterMs float64) Result {
	result := Result{
		QueryName: queryName,
		BeforeMs:  beforeMs,
		AfterMs:   afterMs,
	}
	if beforeMs > 0 {
		result.ImprovementPct = (beforeMs - afterMs) / beforeMs * 100
	}
	return result
}

// Suite benchmarks a fixed query set against a before and after table.
type Suite struct {
	bench        *Bench
	source       RunnerSource
	queryNames   []string
	beforeTable  string
	afterTable   string
	warmupRuns   int
	measuredRuns int
}

// NewSuite creates a suite comparing beforeTable and afterTable for each
// named query.
func NewSuite(source RunnerSource, queryNames []string, beforeTable, afterTable string, warmupRuns, measuredRuns int) *Suite {
	return &Suite{
		bench:        New(),
		source:       source,
		queryNames:   queryNames,
		beforeTable:  beforeTable,
		afterTable:   afterTable,
		warmupRuns:   warmupRuns,
		measuredRuns: measuredRuns,
	}
}

// Run benchmarks every query serially, one query/target combination at a
// time to avoid cross-query contention skewing results. A query that
// errors is marked failed; its siblings still run.
func (s *Suite) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(s.queryNames))
	for _, name := range s.queryNames {
		logging.Info("Benchmarking %s (%d warmup, %d measured runs)", name, s.warmupRuns, s.measuredRuns)

		beforeMs, err := s.bench.TimeQuery(ctx, s.source.QueryRunner(name, s.beforeTable), s.warmupRuns, s.measuredRuns)
		if err != nil {
			logging.Error("Benchmark %s against %s: %v", name, s.beforeTable, err)
			results = append(results, Result{QueryName: name, Failed: true, Reason: err.Error()})
			continue
		}

		afterMs, err := s.bench.TimeQuery(ctx, s.source.QueryRunner(name, s.afterTable), s.warmupRuns, s.measuredRuns)
		if err != nil {
			logging.Error("Benchmark %s against %s: %v", name, s.afterTable, err)
			results = append(results, Result{QueryName: name, BeforeMs: beforeMs, Failed: true, Reason: err.Error()})
			continue
		}

		result := Compare(name, beforeMs, afterMs)
		logging.Info("  %s: %.2fms -> %.2fms (%.1f%% improvement)",
			name, result.BeforeMs, result.AfterMs, result.ImprovementPct)
		results = append(results, result)
	}
	return results
}
