package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/viewstream/pg-partition-migrate/internal/report"
)

// outputResult writes any stage result as indented JSON to stdout and/or
// the configured output file. Without JSON flags it stays quiet; the
// stage already logged its outcome.
func outputResult(c *cli.Context, v any) error {
	if !c.Bool("output-json") && c.String("output-file") == "" {
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling result: %w", err)
	}
	return writeOutput(c, data)
}

// outputReport renders the report for the terminal, or as JSON when
// requested.
func outputReport(c *cli.Context, rpt report.Report) error {
	if !c.Bool("output-json") && c.String("output-file") == "" {
		fmt.Print(report.Render(rpt))
		return nil
	}
	data, err := report.RenderJSON(rpt)
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	return writeOutput(c, data)
}

func writeOutput(c *cli.Context, data []byte) error {
	if c.Bool("output-json") {
		fmt.Println(string(data))
	}
	if path := c.String("output-file"); path != "" {
		if err := os.WriteFile(path, append(data, '\n'), 0644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
	}
	return nil
}
