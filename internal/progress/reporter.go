package progress

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Update is a JSON progress line for automation (Airflow, CI wrappers).
type Update struct {
	Timestamp     string  `json:"timestamp"`
	Stage         string  `json:"stage"`
	MigratedRows  int64   `json:"migrated_rows,omitempty"`
	TotalRows     int64   `json:"total_rows,omitempty"`
	ProgressPct   float64 `json:"progress_pct,omitempty"`
	RowsPerSecond int64   `json:"rows_per_second,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// Reporter is the progress reporting contract.
type Reporter interface {
	// Report emits a progress update (may be throttled)
	Report(update Update)
	// ReportImmediate emits a progress update immediately, bypassing throttling
	ReportImmediate(update Update)
	// Close cleans up any resources
	Close()
}

// JSONReporter writes one JSON update per line, typically to stderr.
type JSONReporter struct {
	writer     io.Writer
	mu         sync.Mutex
	interval   time.Duration
	lastReport time.Time
	closed     bool
}

// NewJSONReporter creates a reporter. interval is the minimum time
// between throttled updates.
func NewJSONReporter(writer io.Writer, interval time.Duration) *JSONReporter {
	if writer == nil {
		writer = os.Stderr
	}
	return &JSONReporter{writer: writer, interval: interval}
}

// Report emits an update unless one was written within the interval.
func (r *JSONReporter) Report(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	now := time.Now()
	if r.interval > 0 && now.Sub(r.lastReport) < r.interval {
		return
	}
	r.lastReport = now
	r.write(update, now)
}

// ReportImmediate bypasses throttling for stage transitions.
func (r *JSONReporter) ReportImmediate(update Update) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	now := time.Now()
	r.lastReport = now
	r.write(update, now)
}

func (r *JSONReporter) write(update Update, now time.Time) {
	if update.Timestamp == "" {
		update.Timestamp = now.Format(time.RFC3339)
	}
	data, err := json.Marshal(update)
	if err != nil {
		logging.Warn("Failed to marshal progress update: %v", err)
		return
	}
	fmt.Fprintln(r.writer, string(data))
}

// Close marks the reporter as closed.
func (r *JSONReporter) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
}

// NullReporter discards updates when progress streaming is disabled.
type NullReporter struct{}

func (NullReporter) Report(Update)          {}
func (NullReporter) ReportImmediate(Update) {}
func (NullReporter) Close()                 {}
