package report

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/viewstream/pg-partition-migrate/internal/store"
)

var (
	colorPurple = lipgloss.Color("#7D56F4")
	colorGreen  = lipgloss.Color("#04B575")
	colorRed    = lipgloss.Color("#FF4141")
	colorGray   = lipgloss.Color("#9e9e9e")

	styleTitle = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true).
			MarginBottom(1)

	styleSection = lipgloss.NewStyle().
			Foreground(colorPurple).
			Bold(true)

	styleGood = lipgloss.NewStyle().
			Foreground(colorGreen).
			Bold(true)

	styleBad = lipgloss.NewStyle().
			Foreground(colorRed).
			Bold(true)

	styleDim = lipgloss.NewStyle().
			Foreground(colorGray)

	styleBox = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorPurple).
			Padding(0, 1)
)

// Render formats the report for the terminal.
func Render(r Report) string {
	var b strings.Builder

	b.WriteString(styleTitle.Render("Partition Migration Report"))
	b.WriteString("\n")

	s := r.ExecutiveSummary
	verdict := styleGood.Render("PASSED")
	if !s.VerificationPassed {
		verdict = styleBad.Render("FAILED")
	}
	summary := fmt.Sprintf(
		"Verification: %s\nRows verified: %d\nQueries improved: %d of %d (avg %+.1f%%)\nStorage overhead: %s",
		verdict, s.RowsVerified, s.QueriesImproved, s.QueriesBenchmarked,
		s.AvgImprovementPct, store.PrettyBytes(abs(s.StorageOverheadBytes)))
	if s.BestQuery != "" {
		summary += fmt.Sprintf("\nBest query: %s (%+.1f%%)", s.BestQuery, s.BestImprovementPct)
	}
	b.WriteString(styleBox.Render(summary))
	b.WriteString("\n\n")

	b.WriteString(styleSection.Render("Query Performance"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %-22s %12s %12s %12s\n", "query", "before (ms)", "after (ms)", "change"))
	for _, row := range r.QueryPerformance {
		if row.Failed {
			b.WriteString(fmt.Sprintf("  %-22s %s\n", row.QueryName, styleBad.Render("failed: "+row.Reason)))
			continue
		}
		change := fmt.Sprintf("%+.1f%%", row.ImprovementPct)
		if row.ImprovementPct >= 0 {
			change = styleGood.Render(change)
		} else {
			change = styleBad.Render(change)
		}
		b.WriteString(fmt.Sprintf("  %-22s %12.2f %12.2f %12s\n", row.QueryName, row.BeforeMs, row.AfterMs, change))
	}
	b.WriteString("\n")

	b.WriteString(styleSection.Render("Storage"))
	b.WriteString("\n")
	b.WriteString(fmt.Sprintf("  %-28s %s (indexes %s)\n",
		r.StorageAnalysis.Monolithic.Table,
		r.StorageAnalysis.Monolithic.Pretty,
		store.PrettyBytes(r.StorageAnalysis.Monolithic.IndexBytes)))
	b.WriteString(fmt.Sprintf("  %-28s %s (indexes %s)\n",
		r.StorageAnalysis.Partitioned.Table,
		r.StorageAnalysis.Partitioned.Pretty,
		store.PrettyBytes(r.StorageAnalysis.Partitioned.IndexBytes)))
	b.WriteString("\n")

	b.WriteString(styleSection.Render("Verification"))
	b.WriteString("\n  " + r.Verification.Detail + "\n\n")

	b.WriteString(styleSection.Render("Maintenance Benefits"))
	b.WriteString("\n")
	for _, benefit := range r.MaintenanceBenefits {
		b.WriteString(styleDim.Render("  - "+benefit) + "\n")
	}
	b.WriteString("\n")

	b.WriteString(styleSection.Render("Recommendations"))
	b.WriteString("\n")
	for _, rec := range r.Recommendations {
		b.WriteString("  - " + rec + "\n")
	}

	return b.String()
}

// RenderJSON serializes the report for machine consumption.
func RenderJSON(r Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

func abs(n int64) int64 {
	if n < 0 {
		return -n
	}
	return n
}
