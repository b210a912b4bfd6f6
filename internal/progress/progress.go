// Package progress renders batch copy progress on the terminal.
package progress

import (
	"sync/atomic"
	"time"

	"github.com/schollz/progressbar/v3"
)

// Tracker draws a row-count progress bar fed by batch commits.
type Tracker struct {
	bar     *progressbar.ProgressBar
	total   int64
	current atomic.Int64
}

// New creates a new progress tracker
func New() *Tracker {
	return &Tracker{}
}

// SetTotal sets the total number of rows to copy and initializes the bar.
// When resuming, alreadyDone seeds the bar at the committed position.
func (t *Tracker) SetTotal(total, alreadyDone int64) {
	t.total = total
	t.bar = progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("Copying"),
		progressbar.OptionShowBytes(false),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("rows"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
	if alreadyDone > 0 {
		t.current.Store(alreadyDone)
		t.bar.Add64(alreadyDone)
	}
}

// BatchCommitted implements migrate.Observer. migrated is cumulative, so
// the bar advances by the delta since the previous notification.
func (t *Tracker) BatchCommitted(migrated, total int64) {
	if t.bar == nil {
		t.SetTotal(total, 0)
	}
	prev := t.current.Swap(migrated)
	if delta := migrated - prev; delta > 0 {
		t.bar.Add64(delta)
	}
}

// Finish completes the bar.
func (t *Tracker) Finish() {
	if t.bar != nil {
		t.bar.Finish()
	}
}
