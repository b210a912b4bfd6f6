// Package orchestrator sequences the pipeline stages: provision the
// monthly partitions, copy the event rows in resumable batches, verify
// the two tables agree, benchmark the analytic queries against both
// layouts, and assemble the optimization report.
package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/viewstream/pg-partition-migrate/internal/bench"
	"github.com/viewstream/pg-partition-migrate/internal/checkpoint"
	"github.com/viewstream/pg-partition-migrate/internal/config"
	"github.com/viewstream/pg-partition-migrate/internal/exitcodes"
	"github.com/viewstream/pg-partition-migrate/internal/logging"
	"github.com/viewstream/pg-partition-migrate/internal/migrate"
	"github.com/viewstream/pg-partition-migrate/internal/notify"
	"github.com/viewstream/pg-partition-migrate/internal/partition"
	"github.com/viewstream/pg-partition-migrate/internal/progress"
	"github.com/viewstream/pg-partition-migrate/internal/report"
	"github.com/viewstream/pg-partition-migrate/internal/store"
	"github.com/viewstream/pg-partition-migrate/internal/verify"
)

// Stage names recorded in run history.
const (
	StageProvision = "provision"
	StageMigrate   = "migrate"
	StageVerify    = "verify"
	StageBench     = "bench"
	StageReport    = "report"
)

// Orchestrator coordinates the partition migration pipeline
type Orchestrator struct {
	config   *config.Config
	pool     *store.Pool
	state    *checkpoint.State
	notifier notify.Provider
	reporter progress.Reporter
	showBar  bool
}

// New creates a new orchestrator with live database and state handles
func New(ctx context.Context, cfg *config.Config) (*Orchestrator, error) {
	pool, err := store.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	state, err := checkpoint.New(cfg.Migration.DataDir)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating state store: %w", err)
	}

	return &Orchestrator{
		config:   cfg,
		pool:     pool,
		state:    state,
		notifier: notify.New(&cfg.Slack),
		reporter: progress.NullReporter{},
		showBar:  true,
	}, nil
}

// Close releases all resources
func (o *Orchestrator) Close() {
	o.pool.Close()
	o.state.Close()
}

// SetReporter installs a JSON progress reporter for automation.
func (o *Orchestrator) SetReporter(r progress.Reporter) {
	if r == nil {
		r = progress.NullReporter{}
	}
	o.reporter = r
}

// SetShowProgressBar toggles the terminal progress bar.
func (o *Orchestrator) SetShowProgressBar(show bool) {
	o.showBar = show
}

// newRunID returns a short unique run identifier
func newRunID() string {
	return uuid.New().String()[:8]
}

// Provision creates the configured range of monthly partitions.
func (o *Orchestrator) Provision(ctx context.Context) (partition.Result, error) {
	start, err := o.config.PartitionStart()
	if err != nil {
		return partition.Result{}, err
	}

	exists, err := o.pool.TableExists(ctx, o.config.Tables.Destination)
	if err != nil {
		return partition.Result{}, err
	}
	if !exists {
		return partition.Result{}, exitcodes.NewExitError(
			fmt.Errorf("partitioned table %s does not exist, create it before provisioning", o.config.Tables.Destination),
			exitcodes.MigrationError)
	}

	prov := partition.New(store.NewPartitionDDL(o.pool), o.config.Tables.Destination)
	result := prov.Provision(ctx, start, o.config.Partitions.Count)

	for _, created := range result.Created {
		logging.Info("Partition ready: %s [%s, %s)", created.Name,
			created.PeriodStart.Format("2006-01-02"), created.PeriodEnd.Format("2006-01-02"))
	}
	if len(result.Failures) > 0 {
		f := result.Failures[0]
		return result, exitcodes.NewExitError(
			fmt.Errorf("provisioning partition %s: %s", f.Period.Format("2006-01"), f.Reason),
			exitcodes.MigrationError)
	}
	return result, nil
}

// Migrate copies all source rows into the partitioned table, resuming
// from the persisted cursor when one exists. Only one migration may run
// at a time; the advisory lock enforces that across sessions.
func (o *Orchestrator) Migrate(ctx context.Context) (migrate.Result, error) {
	return o.migrateStage(ctx, newRunID())
}

func (o *Orchestrator) migrateStage(ctx context.Context, runID string) (migrate.Result, error) {
	cfg := o.config

	exists, err := o.pool.TableExists(ctx, cfg.Tables.Destination)
	if err != nil {
		return migrate.Result{}, err
	}
	if !exists {
		return migrate.Result{}, exitcodes.NewExitError(
			fmt.Errorf("partitioned table %s does not exist, run provision first", cfg.Tables.Destination),
			exitcodes.MigrationError)
	}

	lock, err := o.pool.AcquireMigrationLock(ctx, cfg.Migration.AdvisoryLockKey)
	if err != nil {
		return migrate.Result{}, err
	}
	if lock == nil {
		return migrate.Result{}, exitcodes.NewExitError(
			fmt.Errorf("another migration is already in progress (advisory lock %d held)", cfg.Migration.AdvisoryLockKey),
			exitcodes.StateError)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			logging.Warn("Releasing advisory lock: %v", err)
		}
	}()

	copier, err := store.NewEventCopier(ctx, o.pool, cfg.Tables.Source, cfg.Tables.Destination)
	if err != nil {
		return migrate.Result{}, err
	}

	_, resuming, err := copier.LoadCursor(ctx)
	if err != nil {
		return migrate.Result{}, err
	}
	if !resuming && cfg.Migration.TruncateDestination {
		if err := copier.PrepareFresh(ctx); err != nil {
			return migrate.Result{}, err
		}
	}

	migrator := migrate.New(copier, cfg.Migration.BatchSize)

	var tracker *progress.Tracker
	if o.showBar {
		tracker = progress.New()
	}
	migrator.SetObserver(migrate.ObserverFunc(func(migrated, total int64) {
		if tracker != nil {
			tracker.BatchCommitted(migrated, total)
		}
		if err := o.state.SaveProgress(runID, migrated, total); err != nil {
			logging.Debug("Mirroring progress: %v", err)
		}
		pct := 0.0
		if total > 0 {
			pct = float64(migrated) / float64(total) * 100
		}
		o.reporter.Report(progress.Update{
			Stage:        StageMigrate,
			MigratedRows: migrated,
			TotalRows:    total,
			ProgressPct:  pct,
		})
	}))

	result, err := migrator.Run(ctx)
	if tracker != nil && err == nil {
		tracker.Finish()
	}
	if err != nil {
		return result, err
	}

	if result.Resumed {
		logging.Info("Resumed migration completed: %d/%d rows (%d batches this invocation)",
			result.MigratedRows, result.TotalRows, result.BatchesApplied)
	} else {
		logging.Info("Migration completed: %d/%d rows in %d batches",
			result.MigratedRows, result.TotalRows, result.BatchesApplied)
	}
	return result, nil
}

// Verify compares row counts and content checksums between the two tables.
func (o *Orchestrator) Verify(ctx context.Context) (verify.Outcome, error) {
	source := o.pool.TableHandle(o.config.Tables.Source)
	dest := o.pool.TableHandle(o.config.Tables.Destination)

	outcome, err := verify.Content(ctx, source, dest)
	if err != nil {
		return outcome, err
	}

	switch {
	case !outcome.Match:
		logging.Error("Verification FAILED: source=%d dest=%d", outcome.SourceCount, outcome.DestCount)
	case outcome.ChecksumsRun && !outcome.ChecksumMatch:
		logging.Error("Verification FAILED: counts match (%d) but checksums differ", outcome.SourceCount)
	default:
		logging.Info("Verification passed: %d rows", outcome.SourceCount)
	}
	return outcome, nil
}

// Bench times the canonical analytic queries against both layouts.
func (o *Orchestrator) Bench(ctx context.Context) ([]bench.Result, error) {
	cfg := o.config
	suite := bench.NewSuite(o.pool, store.BenchmarkQueryNames(),
		cfg.Tables.Source, cfg.Tables.Destination,
		cfg.Benchmark.WarmupRuns, cfg.Benchmark.MeasuredRuns)

	results := suite.Run(ctx)
	for _, r := range results {
		if r.Failed {
			logging.Warn("Benchmark %s failed: %s", r.QueryName, r.Reason)
			continue
		}
		logging.Info("Benchmark %s: %.2fms -> %.2fms (%+.1f%%)",
			r.QueryName, r.BeforeMs, r.AfterMs, r.ImprovementPct)
	}
	return results, nil
}

// Report runs verification and the benchmark suite, collects storage
// metrics, and assembles the optimization report.
func (o *Orchestrator) Report(ctx context.Context) (report.Report, error) {
	outcome, err := o.Verify(ctx)
	if err != nil {
		return report.Report{}, err
	}
	results, err := o.Bench(ctx)
	if err != nil {
		return report.Report{}, err
	}
	return o.assembleReport(ctx, results, outcome)
}

func (o *Orchestrator) assembleReport(ctx context.Context, results []bench.Result, outcome verify.Outcome) (report.Report, error) {
	storage, err := o.pool.CollectStorage(ctx, o.config.Tables.Source, o.config.Tables.Destination)
	if err != nil {
		return report.Report{}, err
	}
	return report.Assemble(results, storage, outcome)
}

// Run executes the full pipeline with run records, notifications, and
// per-stage status tracking.
func (o *Orchestrator) Run(ctx context.Context) (report.Report, error) {
	runID := newRunID()
	startTime := time.Now()
	cfg := o.config

	logging.Info("Starting pipeline run %s: %s -> %s", runID, cfg.Tables.Source, cfg.Tables.Destination)
	if err := o.state.CreateRun(runID, cfg.Tables.Source, cfg.Tables.Destination, cfg.Sanitized()); err != nil {
		return report.Report{}, fmt.Errorf("creating run record: %w", err)
	}

	totalRows, err := o.pool.RowCount(ctx, cfg.Tables.Source)
	if err != nil {
		o.failRun(runID, StageMigrate, err, startTime)
		return report.Report{}, err
	}
	if err := o.notifier.RunStarted(runID, cfg.Tables.Source, cfg.Tables.Destination, totalRows); err != nil {
		logging.Warn("Slack notification failed: %v", err)
	}

	var migResult migrate.Result
	var outcome verify.Outcome
	var results []bench.Result
	var rpt report.Report

	stages := []struct {
		name string
		run  func(context.Context) error
	}{
		{StageProvision, func(ctx context.Context) error {
			_, err := o.Provision(ctx)
			return err
		}},
		{StageMigrate, func(ctx context.Context) error {
			migResult, err = o.migrateStage(ctx, runID)
			return err
		}},
		{StageVerify, func(ctx context.Context) error {
			outcome, err = o.Verify(ctx)
			return err
		}},
		{StageBench, func(ctx context.Context) error {
			results, err = o.Bench(ctx)
			return err
		}},
		{StageReport, func(ctx context.Context) error {
			rpt, err = o.assembleReport(ctx, results, outcome)
			return err
		}},
	}

	for _, stage := range stages {
		if err := o.state.StartStage(runID, stage.name); err != nil {
			logging.Warn("Recording stage start: %v", err)
		}
		o.reporter.ReportImmediate(progress.Update{Stage: stage.name})

		if err := stage.run(ctx); err != nil {
			if stErr := o.state.FinishStage(runID, stage.name, "failed", err.Error()); stErr != nil {
				logging.Warn("Recording stage failure: %v", stErr)
			}
			o.failRun(runID, stage.name, err, startTime)
			return report.Report{}, err
		}
		if err := o.state.FinishStage(runID, stage.name, "success", ""); err != nil {
			logging.Warn("Recording stage success: %v", err)
		}
	}

	status := "success"
	if !outcome.Match || (outcome.ChecksumsRun && !outcome.ChecksumMatch) {
		status = "verification_failed"
	}
	if err := o.state.CompleteRun(runID, status); err != nil {
		logging.Warn("Completing run record: %v", err)
	}

	if err := o.notifier.RunCompleted(runID, time.Since(startTime), migResult.MigratedRows,
		status == "success", rpt.ExecutiveSummary.AvgImprovementPct); err != nil {
		logging.Warn("Slack notification failed: %v", err)
	}

	logging.Info("Pipeline run %s finished in %s", runID, time.Since(startTime).Round(time.Second))
	return rpt, nil
}

func (o *Orchestrator) failRun(runID, stage string, err error, startTime time.Time) {
	if stErr := o.state.CompleteRun(runID, "failed"); stErr != nil {
		logging.Warn("Recording run failure: %v", stErr)
	}
	o.reporter.ReportImmediate(progress.Update{Stage: stage, Error: err.Error()})
	if nErr := o.notifier.RunFailed(runID, stage, err, time.Since(startTime)); nErr != nil {
		logging.Warn("Slack notification failed: %v", nErr)
	}
}
