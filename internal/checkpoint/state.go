// Package checkpoint keeps run history in a local SQLite database. The
// authoritative migration resume position lives in PostgreSQL next to
// the copied rows; this store only records runs, stage outcomes, and a
// progress mirror for the status and history commands.
package checkpoint

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// State manages run history in SQLite
type State struct {
	db *sql.DB
}

// Run represents one pipeline run
type Run struct {
	ID          string
	StartedAt   time.Time
	CompletedAt *time.Time
	Status      string
	SourceTable string
	DestTable   string
	Config      string
}

// Stage represents one pipeline stage within a run
type Stage struct {
	RunID        string
	Name         string
	Status       string
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ErrorMessage string
}

// Progress mirrors the PostgreSQL cursor for status display. The resume
// position itself stays in PostgreSQL; only row counts are mirrored here.
type Progress struct {
	RunID        string
	MigratedRows int64
	TotalRows    int64
	UpdatedAt    time.Time
}

// New creates a new state store under dataDir
func New(dataDir string) (*State, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "partmigrate.db")
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &State{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating schema: %w", err)
	}

	return s, nil
}

func (s *State) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		status TEXT NOT NULL DEFAULT 'running',
		source_table TEXT NOT NULL,
		dest_table TEXT NOT NULL,
		config TEXT
	);

	CREATE TABLE IF NOT EXISTS stages (
		run_id TEXT REFERENCES runs(id),
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		started_at TEXT,
		completed_at TEXT,
		error_message TEXT,
		PRIMARY KEY (run_id, name)
	);

	CREATE TABLE IF NOT EXISTS run_progress (
		run_id TEXT PRIMARY KEY REFERENCES runs(id),
		migrated_rows INTEGER DEFAULT 0,
		total_rows INTEGER DEFAULT 0,
		updated_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_stages_run_status ON stages(run_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *State) Close() error {
	return s.db.Close()
}

// CreateRun records a new pipeline run
func (s *State) CreateRun(id, sourceTable, destTable string, config any) error {
	configJSON, _ := json.Marshal(config)
	_, err := s.db.Exec(`
		INSERT INTO runs (id, started_at, status, source_table, dest_table, config)
		VALUES (?, datetime('now'), 'running', ?, ?, ?)
	`, id, sourceTable, destTable, string(configJSON))
	return err
}

// CompleteRun marks a run as complete
func (s *State) CompleteRun(id string, status string) error {
	_, err := s.db.Exec(`
		UPDATE runs SET status = ?, completed_at = datetime('now')
		WHERE id = ?
	`, status, id)
	return err
}

// StartStage marks a stage as running, creating it if needed
func (s *State) StartStage(runID, name string) error {
	_, err := s.db.Exec(`
		INSERT INTO stages (run_id, name, status, started_at)
		VALUES (?, ?, 'running', datetime('now'))
		ON CONFLICT(run_id, name) DO UPDATE SET
			status = 'running',
			started_at = datetime('now'),
			error_message = ''
	`, runID, name)
	return err
}

// FinishStage records a stage's terminal status
func (s *State) FinishStage(runID, name, status, errorMsg string) error {
	_, err := s.db.Exec(`
		UPDATE stages SET status = ?, completed_at = datetime('now'), error_message = ?
		WHERE run_id = ? AND name = ?
	`, status, errorMsg, runID, name)
	return err
}

// SaveProgress mirrors the migration row counts for status display
func (s *State) SaveProgress(runID string, migratedRows, totalRows int64) error {
	_, err := s.db.Exec(`
		INSERT INTO run_progress (run_id, migrated_rows, total_rows, updated_at)
		VALUES (?, ?, ?, datetime('now'))
		ON CONFLICT(run_id) DO UPDATE SET
			migrated_rows = excluded.migrated_rows,
			total_rows = excluded.total_rows,
			updated_at = excluded.updated_at
	`, runID, migratedRows, totalRows)
	return err
}

// GetProgress returns the mirrored progress for a run, nil if none
func (s *State) GetProgress(runID string) (*Progress, error) {
	var p Progress
	var updatedAtStr string
	err := s.db.QueryRow(`
		SELECT run_id, migrated_rows, total_rows, updated_at
		FROM run_progress WHERE run_id = ?
	`, runID).Scan(&p.RunID, &p.MigratedRows, &p.TotalRows, &updatedAtStr)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p.UpdatedAt, _ = time.Parse("2006-01-02 15:04:05", updatedAtStr)
	return &p, nil
}

// GetLastIncompleteRun returns the most recent running run, nil if none
func (s *State) GetLastIncompleteRun() (*Run, error) {
	var r Run
	var startedAtStr string
	err := s.db.QueryRow(`
		SELECT id, started_at, status, source_table, dest_table
		FROM runs WHERE status = 'running'
		ORDER BY started_at DESC LIMIT 1
	`).Scan(&r.ID, &startedAtStr, &r.Status, &r.SourceTable, &r.DestTable)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAtStr)
	return &r, nil
}

// GetLatestRun returns the most recent run regardless of status
func (s *State) GetLatestRun() (*Run, error) {
	runs, err := s.GetAllRuns()
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

// GetRunStages returns all stages for a run in creation order
func (s *State) GetRunStages(runID string) ([]Stage, error) {
	rows, err := s.db.Query(`
		SELECT run_id, name, status, started_at, completed_at, error_message
		FROM stages WHERE run_id = ? ORDER BY started_at
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stages []Stage
	for rows.Next() {
		var st Stage
		var startedAt, completedAt sql.NullString
		var errorMsg sql.NullString
		if err := rows.Scan(&st.RunID, &st.Name, &st.Status, &startedAt, &completedAt, &errorMsg); err != nil {
			return nil, err
		}
		if startedAt.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", startedAt.String)
			st.StartedAt = &t
		}
		if completedAt.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", completedAt.String)
			st.CompletedAt = &t
		}
		st.ErrorMessage = errorMsg.String
		stages = append(stages, st)
	}
	return stages, rows.Err()
}

// GetAllRuns returns recent runs for history, newest first
func (s *State) GetAllRuns() ([]Run, error) {
	rows, err := s.db.Query(`
		SELECT id, started_at, completed_at, status, source_table, dest_table
		FROM runs ORDER BY started_at DESC LIMIT 20
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var r Run
		var startedAtStr string
		var completedAtStr sql.NullString
		if err := rows.Scan(&r.ID, &startedAtStr, &completedAtStr, &r.Status, &r.SourceTable, &r.DestTable); err != nil {
			return nil, err
		}
		r.StartedAt, _ = time.Parse("2006-01-02 15:04:05", startedAtStr)
		if completedAtStr.Valid {
			t, _ := time.Parse("2006-01-02 15:04:05", completedAtStr.String)
			r.CompletedAt = &t
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
