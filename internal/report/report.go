// Package report assembles the final optimization report from the
// benchmark, storage, and verification outcomes. Assemble is a pure
// transform; rendering and serialization live alongside it but never
// change the assembled data.
package report

import (
	"fmt"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/bench"
	"github.com/viewstream/pg-partition-migrate/internal/store"
	"github.com/viewstream/pg-partition-migrate/internal/verify"
)

// QueryRow is one line of the query performance table.
type QueryRow struct {
	QueryName      string  `json:"query_name"`
	BeforeMs       float64 `json:"before_ms"`
	AfterMs        float64 `json:"after_ms"`
	ImprovementPct float64 `json:"improvement_pct"`
	Failed         bool    `json:"failed,omitempty"`
	Reason         string  `json:"reason,omitempty"`
}

// ExecutiveSummary is the headline section of the report.
type ExecutiveSummary struct {
	GeneratedAt          time.Time `json:"generated_at"`
	QueriesBenchmarked   int       `json:"queries_benchmarked"`
	QueriesImproved      int       `json:"queries_improved"`
	AvgImprovementPct    float64   `json:"avg_improvement_pct"`
	BestQuery            string    `json:"best_query,omitempty"`
	BestImprovementPct   float64   `json:"best_improvement_pct,omitempty"`
	VerificationPassed   bool      `json:"verification_passed"`
	RowsVerified         int64     `json:"rows_verified"`
	StorageOverheadBytes int64     `json:"storage_overhead_bytes"`
}

// Verification summarizes the integrity check for the report.
type Verification struct {
	SourceCount   int64  `json:"source_count"`
	DestCount     int64  `json:"dest_count"`
	CountsMatch   bool   `json:"counts_match"`
	ChecksumsRun  bool   `json:"checksums_run"`
	ChecksumMatch bool   `json:"checksum_match"`
	Detail        string `json:"detail"`
}

// Report is the full assembled optimization report.
type Report struct {
	ExecutiveSummary    ExecutiveSummary        `json:"executive_summary"`
	QueryPerformance    []QueryRow              `json:"query_performance"`
	StorageAnalysis     store.StorageComparison `json:"storage_analysis"`
	MaintenanceBenefits []string                `json:"maintenance_benefits"`
	Recommendations     []string                `json:"recommendations"`
	Verification        Verification            `json:"verification"`
}

// Assemble builds the report. It fails only when a required input is
// missing: no benchmark results, or storage metrics that were never
// collected. A failed verification or regressed query is valid report
// content, not an assembly error.
func Assemble(results []bench.Result, storage store.StorageComparison, outcome verify.Outcome) (Report, error) {
	if len(results) == 0 {
		return Report{}, fmt.Errorf("no benchmark results to report")
	}
	if storage.Monolithic.Table == "" || storage.Partitioned.Table == "" {
		return Report{}, fmt.Errorf("storage metrics missing")
	}

	rows := make([]QueryRow, 0, len(results))
	var improved int
	var improvementSum float64
	var succeeded int
	var bestQuery string
	var bestPct float64
	for _, r := range results {
		rows = append(rows, QueryRow{
			QueryName:      r.QueryName,
			BeforeMs:       r.BeforeMs,
			AfterMs:        r.AfterMs,
			ImprovementPct: r.ImprovementPct,
			Failed:         r.Failed,
			Reason:         r.Reason,
		})
		if r.Failed {
			continue
		}
		succeeded++
		improvementSum += r.ImprovementPct
		if r.ImprovementPct > 0 {
			improved++
		}
		if bestQuery == "" || r.ImprovementPct > bestPct {
			bestQuery = r.QueryName
			bestPct = r.ImprovementPct
		}
	}

	summary := ExecutiveSummary{
		GeneratedAt:          time.Now().UTC(),
		QueriesBenchmarked:   len(results),
		QueriesImproved:      improved,
		BestQuery:            bestQuery,
		BestImprovementPct:   bestPct,
		VerificationPassed:   outcome.Match,
		RowsVerified:         outcome.DestCount,
		StorageOverheadBytes: storage.Partitioned.TotalBytes - storage.Monolithic.TotalBytes,
	}
	if succeeded > 0 {
		summary.AvgImprovementPct = improvementSum / float64(succeeded)
	}

	return Report{
		ExecutiveSummary:    summary,
		QueryPerformance:    rows,
		StorageAnalysis:     storage,
		MaintenanceBenefits: maintenanceBenefits(),
		Recommendations:     recommendations(rows, outcome),
		Verification:        verification(outcome),
	}, nil
}

func verification(outcome verify.Outcome) Verification {
	v := Verification{
		SourceCount:   outcome.SourceCount,
		DestCount:     outcome.DestCount,
		CountsMatch:   outcome.Match,
		ChecksumsRun:  outcome.ChecksumsRun,
		ChecksumMatch: outcome.ChecksumMatch,
	}
	switch {
	case !outcome.Match:
		v.Detail = fmt.Sprintf("row count mismatch: source=%d dest=%d", outcome.SourceCount, outcome.DestCount)
	case outcome.ChecksumsRun && !outcome.ChecksumMatch:
		v.Detail = "row counts match but content checksums differ"
	case outcome.ChecksumsRun:
		v.Detail = "row counts and content checksums match"
	default:
		v.Detail = "row counts match (checksums not run)"
	}
	return v
}

func maintenanceBenefits() []string {
	return []string{
		"Dropping a month of expired events becomes DROP TABLE on one partition instead of a long DELETE with vacuum debt",
		"Autovacuum and ANALYZE work partition by partition, keeping per-table runtimes short and predictable",
		"Indexes stay small per partition, so index bloat is bounded by one month of events",
		"Time-bounded queries prune to the partitions covering their window instead of scanning the full history",
	}
}

func recommendations(rows []QueryRow, outcome verify.Outcome) []string {
	recs := []string{
		"Schedule monthly partition provisioning ahead of each period boundary",
		"Set a retention job that detaches and drops partitions past the retention window",
	}
	if !outcome.Match || (outcome.ChecksumsRun && !outcome.ChecksumMatch) {
		recs = append([]string{
			"Do not cut over: verification failed, investigate the row count or checksum mismatch first",
		}, recs...)
		return recs
	}
	for _, r := range rows {
		if !r.Failed && r.ImprovementPct < 0 {
			recs = append(recs, fmt.Sprintf(
				"Query %s regressed by %.1f%%, check its index coverage on the partitioned table before cutover",
				r.QueryName, -r.ImprovementPct))
		}
	}
	recs = append(recs, "After cutover, keep the monolithic table until one full retention cycle has passed")
	return recs
}
