package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/checkpoint"
	"github.com/viewstream/pg-partition-migrate/internal/store"
)

// RunStatus describes the latest run for the status command.
type RunStatus struct {
	Run      *checkpoint.Run
	Stages   []checkpoint.Stage
	Progress *checkpoint.Progress
	Cursor   *CursorStatus
}

// CursorStatus is the live resume position read from PostgreSQL.
type CursorStatus struct {
	LastID       int64
	MigratedRows int64
	TotalRows    int64
}

// Status returns the latest run with its stages, the mirrored progress,
// and the live cursor when one is persisted in the database.
func (o *Orchestrator) Status(ctx context.Context) (RunStatus, error) {
	run, err := o.state.GetLatestRun()
	if err != nil {
		return RunStatus{}, fmt.Errorf("loading latest run: %w", err)
	}
	if run == nil {
		return RunStatus{}, nil
	}

	status := RunStatus{Run: run}
	if status.Stages, err = o.state.GetRunStages(run.ID); err != nil {
		return RunStatus{}, fmt.Errorf("loading stages: %w", err)
	}
	if status.Progress, err = o.state.GetProgress(run.ID); err != nil {
		return RunStatus{}, fmt.Errorf("loading progress: %w", err)
	}

	cursor, found, err := store.LoadMigrationCursor(ctx, o.pool, o.config.Tables.Source, o.config.Tables.Destination)
	if err != nil {
		return RunStatus{}, err
	}
	if found {
		status.Cursor = &CursorStatus{
			LastID:       cursor.LastID,
			MigratedRows: cursor.MigratedRows,
			TotalRows:    cursor.TotalRows,
		}
	}
	return status, nil
}

// History returns recent runs, newest first.
func (o *Orchestrator) History() ([]checkpoint.Run, error) {
	return o.state.GetAllRuns()
}

// FormatStatus renders a run status for the terminal.
func FormatStatus(s RunStatus) string {
	if s.Run == nil {
		return "No runs recorded.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Run %s: %s\n", s.Run.ID, s.Run.Status)
	fmt.Fprintf(&b, "  %s -> %s\n", s.Run.SourceTable, s.Run.DestTable)
	fmt.Fprintf(&b, "  Started: %s\n", s.Run.StartedAt.Format(time.RFC3339))
	if s.Run.CompletedAt != nil {
		fmt.Fprintf(&b, "  Completed: %s\n", s.Run.CompletedAt.Format(time.RFC3339))
	}

	if len(s.Stages) > 0 {
		b.WriteString("  Stages:\n")
		for _, st := range s.Stages {
			line := fmt.Sprintf("    %-10s %s", st.Name, st.Status)
			if st.ErrorMessage != "" {
				line += ": " + st.ErrorMessage
			}
			b.WriteString(line + "\n")
		}
	}

	switch {
	case s.Cursor != nil:
		pct := 0.0
		if s.Cursor.TotalRows > 0 {
			pct = float64(s.Cursor.MigratedRows) / float64(s.Cursor.TotalRows) * 100
		}
		fmt.Fprintf(&b, "  Cursor: %d/%d rows (%.1f%%), resume after id %d\n",
			s.Cursor.MigratedRows, s.Cursor.TotalRows, pct, s.Cursor.LastID)
	case s.Progress != nil:
		fmt.Fprintf(&b, "  Progress: %d/%d rows (as of %s)\n",
			s.Progress.MigratedRows, s.Progress.TotalRows, s.Progress.UpdatedAt.Format(time.RFC3339))
	}
	return b.String()
}

// FormatHistory renders the run history table.
func FormatHistory(runs []checkpoint.Run) string {
	if len(runs) == 0 {
		return "No runs recorded.\n"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%-10s %-20s %-20s %s\n", "RUN", "STARTED", "STATUS", "TABLES")
	for _, r := range runs {
		completed := "-"
		if r.CompletedAt != nil {
			completed = r.Status
		} else if r.Status == "running" {
			completed = "running"
		}
		fmt.Fprintf(&b, "%-10s %-20s %-20s %s -> %s\n",
			r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), completed, r.SourceTable, r.DestTable)
	}
	return b.String()
}
