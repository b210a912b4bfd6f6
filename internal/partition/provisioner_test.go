package partition

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fakeRunner records created periods and optionally fails a specific one.
// Re-creating an existing period is a no-op, like the real DDL function.
type fakeRunner struct {
	created    map[time.Time]bool
	failPeriod time.Time
	calls      int
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{created: make(map[time.Time]bool)}
}

func (f *fakeRunner) CreatePartitionAndIndexes(_ context.Context, periodStart time.Time) error {
	f.calls++
	if !f.failPeriod.IsZero() && periodStart.Equal(f.failPeriod) {
		return errors.New("permission denied for tablespace")
	}
	f.created[periodStart] = true
	return nil
}

func TestDescriptors_ContiguousCoverage(t *testing.T) {
	start := time.Date(2025, 11, 15, 9, 30, 0, 0, time.UTC) // mid-month, crosses year boundary
	descs := Descriptors("viewing_events_partitioned", start, 4)

	if len(descs) != 4 {
		t.Fatalf("len(descs) = %d, want 4", len(descs))
	}

	wantFirst := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	if !descs[0].PeriodStart.Equal(wantFirst) {
		t.Errorf("first period start = %v, want %v (truncated to month)", descs[0].PeriodStart, wantFirst)
	}

	// Contiguous, non-overlapping: each end is the next start.
	for i := 1; i < len(descs); i++ {
		if !descs[i-1].PeriodEnd.Equal(descs[i].PeriodStart) {
			t.Errorf("gap or overlap between period %d and %d: end=%v next start=%v",
				i-1, i, descs[i-1].PeriodEnd, descs[i].PeriodStart)
		}
	}

	// Covers exactly the requested range.
	wantLastEnd := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if !descs[3].PeriodEnd.Equal(wantLastEnd) {
		t.Errorf("last period end = %v, want %v", descs[3].PeriodEnd, wantLastEnd)
	}

	if descs[2].Name != "viewing_events_partitioned_2026_01" {
		t.Errorf("descriptor name = %q, want viewing_events_partitioned_2026_01", descs[2].Name)
	}
}

func TestProvision_AllPeriods(t *testing.T) {
	runner := newFakeRunner()
	p := New(runner, "viewing_events_partitioned")

	result := p.Provision(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 3)

	if len(result.Failures) != 0 {
		t.Fatalf("failures = %v, want none", result.Failures)
	}
	if len(result.Created) != 3 {
		t.Fatalf("created = %d, want 3", len(result.Created))
	}
	if runner.calls != 3 {
		t.Errorf("DDL calls = %d, want 3", runner.calls)
	}
}

func TestProvision_FailureAbortsRemaining(t *testing.T) {
	runner := newFakeRunner()
	runner.failPeriod = time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC)
	p := New(runner, "viewing_events_partitioned")

	result := p.Provision(context.Background(), time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), 4)

	if len(result.Created) != 2 {
		t.Errorf("created = %d, want 2 (periods before the failure)", len(result.Created))
	}
	if len(result.Failures) != 1 {
		t.Fatalf("failures = %d, want 1", len(result.Failures))
	}
	if !result.Failures[0].Period.Equal(runner.failPeriod) {
		t.Errorf("failed period = %v, want %v", result.Failures[0].Period, runner.failPeriod)
	}
	if result.Failures[0].Reason == "" {
		t.Error("failure reason is empty")
	}
	// September was never attempted.
	if runner.calls != 3 {
		t.Errorf("DDL calls = %d, want 3 (abort after failure)", runner.calls)
	}
	// No rollback: June and July partitions remain.
	if !runner.created[time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)] ||
		!runner.created[time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)] {
		t.Error("earlier partitions were rolled back")
	}
}

func TestProvision_Idempotent(t *testing.T) {
	runner := newFakeRunner()
	p := New(runner, "viewing_events_partitioned")
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	first := p.Provision(context.Background(), start, 3)
	second := p.Provision(context.Background(), start, 3)

	if len(second.Failures) != 0 {
		t.Fatalf("second call failures = %v, want none", second.Failures)
	}
	if len(first.Created) != len(second.Created) {
		t.Fatalf("descriptor counts differ: %d vs %d", len(first.Created), len(second.Created))
	}
	for i := range first.Created {
		if first.Created[i] != second.Created[i] {
			t.Errorf("descriptor %d differs between calls: %+v vs %+v", i, first.Created[i], second.Created[i])
		}
	}
}
