package checkpoint

import (
	"testing"
)

func TestRunLifecycle(t *testing.T) {
	state, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer state.Close()

	if err := state.CreateRun("run-1", "viewing_events", "viewing_events_partitioned", map[string]int{"batch_size": 50000}); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	incomplete, err := state.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun error: %v", err)
	}
	if incomplete == nil || incomplete.ID != "run-1" {
		t.Fatalf("GetLastIncompleteRun = %+v, want run-1", incomplete)
	}
	if incomplete.SourceTable != "viewing_events" || incomplete.DestTable != "viewing_events_partitioned" {
		t.Errorf("tables = %s -> %s", incomplete.SourceTable, incomplete.DestTable)
	}

	if err := state.CompleteRun("run-1", "success"); err != nil {
		t.Fatalf("CompleteRun error: %v", err)
	}

	incomplete, err = state.GetLastIncompleteRun()
	if err != nil {
		t.Fatalf("GetLastIncompleteRun after complete error: %v", err)
	}
	if incomplete != nil {
		t.Errorf("GetLastIncompleteRun after complete = %+v, want nil", incomplete)
	}

	latest, err := state.GetLatestRun()
	if err != nil {
		t.Fatalf("GetLatestRun error: %v", err)
	}
	if latest == nil || latest.Status != "success" || latest.CompletedAt == nil {
		t.Errorf("GetLatestRun = %+v, want completed success", latest)
	}
}

func TestStageTransitions(t *testing.T) {
	state, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer state.Close()

	if err := state.CreateRun("run-1", "src", "dst", nil); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	for _, name := range []string{"provision", "migrate"} {
		if err := state.StartStage("run-1", name); err != nil {
			t.Fatalf("StartStage(%s) error: %v", name, err)
		}
	}
	if err := state.FinishStage("run-1", "provision", "success", ""); err != nil {
		t.Fatalf("FinishStage error: %v", err)
	}
	if err := state.FinishStage("run-1", "migrate", "failed", "connection reset"); err != nil {
		t.Fatalf("FinishStage error: %v", err)
	}

	stages, err := state.GetRunStages("run-1")
	if err != nil {
		t.Fatalf("GetRunStages error: %v", err)
	}
	if len(stages) != 2 {
		t.Fatalf("got %d stages, want 2", len(stages))
	}
	byName := make(map[string]Stage)
	for _, st := range stages {
		byName[st.Name] = st
	}
	if byName["provision"].Status != "success" {
		t.Errorf("provision status = %s", byName["provision"].Status)
	}
	if byName["migrate"].Status != "failed" || byName["migrate"].ErrorMessage != "connection reset" {
		t.Errorf("migrate stage = %+v", byName["migrate"])
	}

	// restarting a failed stage clears its error
	if err := state.StartStage("run-1", "migrate"); err != nil {
		t.Fatalf("StartStage restart error: %v", err)
	}
	stages, err = state.GetRunStages("run-1")
	if err != nil {
		t.Fatalf("GetRunStages error: %v", err)
	}
	for _, st := range stages {
		if st.Name == "migrate" && (st.Status != "running" || st.ErrorMessage != "") {
			t.Errorf("restarted migrate stage = %+v", st)
		}
	}
}

func TestProgressMirror(t *testing.T) {
	state, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer state.Close()

	if err := state.CreateRun("run-1", "src", "dst", nil); err != nil {
		t.Fatalf("CreateRun error: %v", err)
	}

	p, err := state.GetProgress("run-1")
	if err != nil {
		t.Fatalf("GetProgress error: %v", err)
	}
	if p != nil {
		t.Fatalf("GetProgress before save = %+v, want nil", p)
	}

	if err := state.SaveProgress("run-1", 50000, 237000); err != nil {
		t.Fatalf("SaveProgress error: %v", err)
	}
	if err := state.SaveProgress("run-1", 100000, 237000); err != nil {
		t.Fatalf("SaveProgress update error: %v", err)
	}

	p, err = state.GetProgress("run-1")
	if err != nil {
		t.Fatalf("GetProgress error: %v", err)
	}
	if p == nil || p.MigratedRows != 100000 || p.TotalRows != 237000 {
		t.Errorf("GetProgress = %+v", p)
	}
}

func TestGetAllRuns_NewestFirst(t *testing.T) {
	state, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	defer state.Close()

	for _, id := range []string{"run-a", "run-b"} {
		if err := state.CreateRun(id, "src", "dst", nil); err != nil {
			t.Fatalf("CreateRun(%s) error: %v", id, err)
		}
	}
	// same-second timestamps: force a distinct ordering
	if _, err := state.db.Exec(`UPDATE runs SET started_at = datetime('now', '-1 hour') WHERE id = 'run-a'`); err != nil {
		t.Fatalf("backdating run-a: %v", err)
	}

	runs, err := state.GetAllRuns()
	if err != nil {
		t.Fatalf("GetAllRuns error: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "run-b" || runs[1].ID != "run-a" {
		t.Errorf("GetAllRuns order = %v", runIDs(runs))
	}
}

func runIDs(runs []Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
