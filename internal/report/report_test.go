package report

import (
	"strings"
	"testing"

	"github.com/viewstream/pg-partition-migrate/internal/bench"
	"github.com/viewstream/pg-partition-migrate/internal/store"
	"github.com/viewstream/pg-partition-migrate/internal/verify"
)

func sampleStorage() store.StorageComparison {
	return store.StorageComparison{
		Monolithic:  store.TableStorage{Table: "viewing_events", TotalBytes: 1 << 30, IndexBytes: 1 << 28, Pretty: "1.0 GB"},
		Partitioned: store.TableStorage{Table: "viewing_events_partitioned", TotalBytes: 1<<30 + 1<<20, IndexBytes: 1 << 28, Pretty: "1.0 GB"},
	}
}

func sampleResults() []bench.Result {
	return []bench.Result{
		{QueryName: "daily_active_users", BeforeMs: 100, AfterMs: 20, ImprovementPct: 80},
		{QueryName: "top_10_content", BeforeMs: 50, AfterMs: 40, ImprovementPct: 20},
		{QueryName: "device_analytics", BeforeMs: 200, AfterMs: 220, ImprovementPct: -10},
	}
}

func TestAssemble_Summary(t *testing.T) {
	outcome := verify.Outcome{SourceCount: 1000, DestCount: 1000, Match: true, ChecksumsRun: true, ChecksumMatch: true}

	r, err := Assemble(sampleResults(), sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	s := r.ExecutiveSummary
	if s.QueriesBenchmarked != 3 {
		t.Errorf("QueriesBenchmarked = %d, want 3", s.QueriesBenchmarked)
	}
	if s.QueriesImproved != 2 {
		t.Errorf("QueriesImproved = %d, want 2", s.QueriesImproved)
	}
	if want := 30.0; s.AvgImprovementPct != want {
		t.Errorf("AvgImprovementPct = %v, want %v", s.AvgImprovementPct, want)
	}
	if s.BestQuery != "daily_active_users" || s.BestImprovementPct != 80 {
		t.Errorf("best query = %s (%v), want daily_active_users (80)", s.BestQuery, s.BestImprovementPct)
	}
	if !s.VerificationPassed || s.RowsVerified != 1000 {
		t.Errorf("verification summary = %+v", s)
	}
	if s.StorageOverheadBytes != 1<<20 {
		t.Errorf("StorageOverheadBytes = %d, want %d", s.StorageOverheadBytes, 1<<20)
	}
}

func TestAssemble_RequiresInputs(t *testing.T) {
	outcome := verify.Outcome{Match: true}

	if _, err := Assemble(nil, sampleStorage(), outcome); err == nil {
		t.Error("expected error for empty benchmark results")
	}
	if _, err := Assemble(sampleResults(), store.StorageComparison{}, outcome); err == nil {
		t.Error("expected error for missing storage metrics")
	}
}

func TestAssemble_FailedVerificationIsContentNotError(t *testing.T) {
	outcome := verify.Outcome{SourceCount: 1000, DestCount: 999, Match: false}

	r, err := Assemble(sampleResults(), sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if r.ExecutiveSummary.VerificationPassed {
		t.Error("VerificationPassed = true, want false")
	}
	if !strings.Contains(r.Verification.Detail, "mismatch") {
		t.Errorf("Detail = %q, want mismatch detail", r.Verification.Detail)
	}
	if !strings.Contains(r.Recommendations[0], "Do not cut over") {
		t.Errorf("first recommendation = %q, want cutover warning", r.Recommendations[0])
	}
}

func TestAssemble_FailedQueryExcludedFromAverages(t *testing.T) {
	results := []bench.Result{
		{QueryName: "daily_active_users", BeforeMs: 100, AfterMs: 50, ImprovementPct: 50},
		{QueryName: "top_10_content", Failed: true, Reason: "relation does not exist"},
	}
	outcome := verify.Outcome{SourceCount: 10, DestCount: 10, Match: true}

	r, err := Assemble(results, sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if r.ExecutiveSummary.AvgImprovementPct != 50 {
		t.Errorf("AvgImprovementPct = %v, want 50", r.ExecutiveSummary.AvgImprovementPct)
	}
	if r.ExecutiveSummary.QueriesBenchmarked != 2 || r.ExecutiveSummary.QueriesImproved != 1 {
		t.Errorf("summary counts = %+v", r.ExecutiveSummary)
	}
}

func TestAssemble_RegressionRecommendation(t *testing.T) {
	outcome := verify.Outcome{SourceCount: 10, DestCount: 10, Match: true}

	r, err := Assemble(sampleResults(), sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	var found bool
	for _, rec := range r.Recommendations {
		if strings.Contains(rec, "device_analytics") && strings.Contains(rec, "regressed") {
			found = true
		}
	}
	if !found {
		t.Errorf("recommendations missing regression note: %v", r.Recommendations)
	}
}

func TestRender_ContainsSections(t *testing.T) {
	outcome := verify.Outcome{SourceCount: 10, DestCount: 10, Match: true, ChecksumsRun: true, ChecksumMatch: true}
	r, err := Assemble(sampleResults(), sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	out := Render(r)
	for _, want := range []string{
		"Partition Migration Report",
		"Query Performance",
		"daily_active_users",
		"Storage",
		"Recommendations",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered report missing %q", want)
		}
	}
}

func TestRenderJSON_RoundTrips(t *testing.T) {
	outcome := verify.Outcome{SourceCount: 10, DestCount: 10, Match: true}
	r, err := Assemble(sampleResults(), sampleStorage(), outcome)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}

	data, err := RenderJSON(r)
	if err != nil {
		t.Fatalf("RenderJSON: %v", err)
	}
	for _, want := range []string{"executive_summary", "query_performance", "storage_analysis", "maintenance_benefits"} {
		if !strings.Contains(string(data), want) {
			t.Errorf("JSON missing key %q", want)
		}
	}
}
