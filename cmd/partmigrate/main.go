package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/viewstream/pg-partition-migrate/internal/config"
	"github.com/viewstream/pg-partition-migrate/internal/exitcodes"
	"github.com/viewstream/pg-partition-migrate/internal/logging"
	"github.com/viewstream/pg-partition-migrate/internal/orchestrator"
	"github.com/viewstream/pg-partition-migrate/internal/progress"
)

var version = "dev"

func main() {
	// .env is optional; config values may reference its variables
	_ = godotenv.Load()

	app := &cli.App{
		Name:    "partmigrate",
		Usage:   "Migrate a monolithic event table to monthly partitions and measure the gains",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Value:   "config.yaml",
				Usage:   "Path to configuration file",
			},
			&cli.StringFlag{
				Name:  "verbosity",
				Value: "info",
				Usage: "Log verbosity level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text or json",
			},
			&cli.BoolFlag{
				Name:  "output-json",
				Usage: "Output JSON result to stdout on completion (logs go to stderr)",
			},
			&cli.StringFlag{
				Name:  "output-file",
				Usage: "Write JSON result to file on completion",
			},
			&cli.BoolFlag{
				Name:  "progress-json",
				Usage: "Stream JSON progress updates to stderr (for Airflow/automation)",
			},
		},
		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("verbosity"))
			if err != nil {
				return err
			}
			logging.SetLevel(level)

			if c.String("log-format") == "json" {
				logging.SetFormat("json")
			}
			if c.Bool("output-json") || c.String("output-file") != "" {
				logging.SetOutput(os.Stderr)
			}
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:   "provision",
				Usage:  "Create the configured range of monthly partitions",
				Action: provisionAction,
			},
			{
				Name:   "migrate",
				Usage:  "Copy event rows into the partitioned table (resumes automatically)",
				Action: migrateAction,
			},
			{
				Name:   "verify",
				Usage:  "Compare row counts and content checksums between the two tables",
				Action: verifyAction,
			},
			{
				Name:   "bench",
				Usage:  "Benchmark the analytic queries against both table layouts",
				Action: benchAction,
			},
			{
				Name:   "report",
				Usage:  "Verify, benchmark, and assemble the optimization report",
				Action: reportAction,
			},
			{
				Name:   "run",
				Usage:  "Run the full pipeline: provision, migrate, verify, bench, report",
				Action: runAction,
			},
			{
				Name:   "status",
				Usage:  "Show status of the current or last run",
				Action: statusAction,
			},
			{
				Name:   "history",
				Usage:  "List recent pipeline runs",
				Action: historyAction,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitcodes.FromError(err))
	}
}

// newOrchestrator loads config and connects. The caller owns Close.
func newOrchestrator(ctx context.Context, c *cli.Context) (*orchestrator.Orchestrator, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, exitcodes.NewExitError(err, exitcodes.FromError(err))
	}

	orch, err := orchestrator.New(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if c.Bool("progress-json") {
		orch.SetReporter(progress.NewJSONReporter(os.Stderr, 2*time.Second))
	}
	if c.Bool("output-json") {
		orch.SetShowProgressBar(false)
	}
	return orch, nil
}

// signalContext cancels on SIGINT/SIGTERM so the migration stops at the
// next batch boundary with its cursor committed.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\nInterrupted. Cursor saved at last committed batch.")
		cancel()
	}()
	return ctx, cancel
}

func provisionAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	result, err := orch.Provision(ctx)
	if err != nil {
		return err
	}
	return outputResult(c, result)
}

func migrateAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	result, err := orch.Migrate(ctx)
	if err != nil {
		return err
	}
	return outputResult(c, result)
}

func verifyAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	outcome, err := orch.Verify(ctx)
	if err != nil {
		return err
	}
	if err := outputResult(c, outcome); err != nil {
		return err
	}
	if !outcome.Match || (outcome.ChecksumsRun && !outcome.ChecksumMatch) {
		return exitcodes.NewExitError(
			fmt.Errorf("verification failed: source=%d dest=%d", outcome.SourceCount, outcome.DestCount),
			exitcodes.VerificationError)
	}
	return nil
}

func benchAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	results, err := orch.Bench(ctx)
	if err != nil {
		return err
	}
	return outputResult(c, results)
}

func reportAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	rpt, err := orch.Report(ctx)
	if err != nil {
		return err
	}
	return outputReport(c, rpt)
}

func runAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	rpt, err := orch.Run(ctx)
	if err != nil {
		return err
	}
	return outputReport(c, rpt)
}

func statusAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	status, err := orch.Status(ctx)
	if err != nil {
		return err
	}
	fmt.Print(orchestrator.FormatStatus(status))
	return nil
}

func historyAction(c *cli.Context) error {
	ctx, cancel := signalContext()
	defer cancel()

	orch, err := newOrchestrator(ctx, c)
	if err != nil {
		return err
	}
	defer orch.Close()

	runs, err := orch.History()
	if err != nil {
		return err
	}
	fmt.Print(orchestrator.FormatHistory(runs))
	return nil
}
