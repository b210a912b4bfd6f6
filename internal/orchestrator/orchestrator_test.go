package orchestrator

import (
	"strings"
	"testing"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/checkpoint"
)

func TestNewRunID(t *testing.T) {
	a := newRunID()
	b := newRunID()
	if len(a) != 8 || len(b) != 8 {
		t.Errorf("run id lengths = %d, %d, want 8", len(a), len(b))
	}
	if a == b {
		t.Error("consecutive run ids collided")
	}
}

func TestFormatStatus_NoRuns(t *testing.T) {
	out := FormatStatus(RunStatus{})
	if !strings.Contains(out, "No runs recorded") {
		t.Errorf("empty status = %q", out)
	}
}

func TestFormatStatus_WithCursor(t *testing.T) {
	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := RunStatus{
		Run: &checkpoint.Run{
			ID:          "ab12cd34",
			StartedAt:   started,
			Status:      "running",
			SourceTable: "viewing_events",
			DestTable:   "viewing_events_partitioned",
		},
		Stages: []checkpoint.Stage{
			{Name: "provision", Status: "success"},
			{Name: "migrate", Status: "failed", ErrorMessage: "connection reset"},
		},
		Cursor: &CursorStatus{LastID: 150000, MigratedRows: 150000, TotalRows: 237000},
	}

	out := FormatStatus(s)
	for _, want := range []string{
		"Run ab12cd34: running",
		"viewing_events -> viewing_events_partitioned",
		"provision  success",
		"migrate    failed: connection reset",
		"150000/237000",
		"resume after id 150000",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("status output missing %q:\n%s", want, out)
		}
	}
}

func TestFormatStatus_ProgressFallback(t *testing.T) {
	s := RunStatus{
		Run: &checkpoint.Run{ID: "run-1", StartedAt: time.Now(), Status: "running"},
		Progress: &checkpoint.Progress{
			MigratedRows: 100, TotalRows: 200, UpdatedAt: time.Now(),
		},
	}
	out := FormatStatus(s)
	if !strings.Contains(out, "Progress: 100/200 rows") {
		t.Errorf("status output missing progress fallback:\n%s", out)
	}
}

func TestFormatHistory(t *testing.T) {
	if out := FormatHistory(nil); !strings.Contains(out, "No runs recorded") {
		t.Errorf("empty history = %q", out)
	}

	done := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
	runs := []checkpoint.Run{
		{ID: "run-b", StartedAt: done, Status: "running", SourceTable: "a", DestTable: "b"},
		{ID: "run-a", StartedAt: done.Add(-time.Hour), CompletedAt: &done, Status: "success", SourceTable: "a", DestTable: "b"},
	}
	out := FormatHistory(runs)
	for _, want := range []string{"run-b", "running", "run-a", "success", "a -> b"} {
		if !strings.Contains(out, want) {
			t.Errorf("history output missing %q:\n%s", want, out)
		}
	}
}
