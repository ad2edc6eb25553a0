package report

import "time"

// =============================================================================
// SNAPSHOT - Frozen report at finalization
// =============================================================================

// SnapshotVersion is written into every new snapshot. An amendment scheme,
// if ever allowed, would write a higher version rather than edit in place.
const SnapshotVersion = 1

// Snapshot is the immutable, point-in-time copy of a generated report,
// stored when a period is finalized. It is owned by its ReportPeriod,
// write-once and never mutated: late records for the month change only the
// live view, never what was handed to an external party.
type Snapshot struct {
	Version         int               `json:"version"`
	ReportData      MonthlyReportData `json:"report_data"`
	FinalizedAt     time.Time         `json:"finalized_at"`
	FinalizedByName string            `json:"finalized_by_name"`
}
