// Package verify checks post-migration data integrity between the
// monolithic source and the partitioned destination.
//
// Verification is only meaningful after the migrator reports completion
// (migrated == total); running it earlier yields an honest mismatch, not
// an error. Sequencing is the caller's responsibility.
package verify

import (
	"context"
	"fmt"

	"github.com/viewstream/pg-partition-migrate/internal/logging"
)

// Countable exposes an independent row count.
type Countable interface {
	RowCount(ctx context.Context) (int64, error)
}

// Checksummer exposes an order-insensitive content checksum over all rows.
type Checksummer interface {
	ContentChecksum(ctx context.Context) (string, error)
}

// Outcome is the structured verification result. A mismatch is reported
// here, never raised as an error.
type Outcome struct {
	SourceCount    int64  `json:"source_count"`
	DestCount      int64  `json:"dest_count"`
	Match          bool   `json:"match"`
	SourceChecksum string `json:"source_checksum,omitempty"`
	DestChecksum   string `json:"dest_checksum,omitempty"`
	ChecksumsRun   bool   `json:"checksums_run"`
	ChecksumMatch  bool   `json:"checksum_match"`
}

// Counts compares independently computed row counts of source and
// destination.
func Counts(ctx context.Context, source, dest Countable) (Outcome, error) {
	srcCount, err := source.RowCount(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("counting source rows: %w", err)
	}
	dstCount, err := dest.RowCount(ctx)
	if err != nil {
		return Outcome{}, fmt.Errorf("counting destination rows: %w", err)
	}

	outcome := Outcome{
		SourceCount: srcCount,
		DestCount:   dstCount,
		Match:       srcCount == dstCount,
	}
	if outcome.Match {
		logging.Info("Integrity check: source=%d destination=%d, counts match", srcCount, dstCount)
	} else {
		logging.Error("Integrity check: source=%d destination=%d, counts DIFFER (diff=%d)",
			srcCount, dstCount, srcCount-dstCount)
	}
	return outcome, nil
}

// Content runs the count comparison and additionally compares content
// checksums when both sides support them. Checksums catch content drift
// that equal counts would hide (dropped row plus duplicated row).
func Content(ctx context.Context, source, dest Countable) (Outcome, error) {
	outcome, err := Counts(ctx, source, dest)
	if err != nil {
		return Outcome{}, err
	}

	srcSummer, srcOK := source.(Checksummer)
	dstSummer, dstOK := dest.(Checksummer)
	if !srcOK || !dstOK {
		return outcome, nil
	}

	srcSum, err := srcSummer.ContentChecksum(ctx)
	if err != nil {
		return outcome, fmt.Errorf("checksumming source: %w", err)
	}
	dstSum, err := dstSummer.ContentChecksum(ctx)
	if err != nil {
		return outcome, fmt.Errorf("checksumming destination: %w", err)
	}

	outcome.SourceChecksum = srcSum
	outcome.DestChecksum = dstSum
	outcome.ChecksumsRun = true
	outcome.ChecksumMatch = srcSum == dstSum
	if !outcome.ChecksumMatch {
		logging.Error("Integrity check: content checksums differ (source=%s destination=%s)", srcSum, dstSum)
	}
	return outcome, nil
}
