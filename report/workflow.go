/*
workflow.go - Finalization state machine

PURPOSE:
  Governs the ReportPeriod lifecycle:

      draft -> finalized -> submitted

  No cycles, no skipping. Finalizing freezes the live report into a
  snapshot; submitting marks the frozen report as handed to an external
  party and never touches the snapshot again.

CONCURRENCY:
  The status check and the snapshot write must be one atomic unit, or two
  concurrent finalize calls could both pass the precondition. The store's
  FinalizePeriod/SubmitPeriod are conditional updates guarded on the
  previous status; a failed guard here surfaces as a state conflict with
  the current status named.

VIEW RESOLUTION:
  view=live always recomputes. view=submitted returns the snapshot when
  one exists and transparently falls back to live when the period was
  never finalized (there is nothing frozen yet).
*/
package report

import (
	"context"
	"time"

	"github.com/finlane/invoice-engine/ledger"
)

// =============================================================================
// PERIOD LIFECYCLE
// =============================================================================

// PeriodStatus is a closed enum. Transitions only move forward.
type PeriodStatus string

const (
	PeriodDraft     PeriodStatus = "draft"
	PeriodFinalized PeriodStatus = "finalized"
	PeriodSubmitted PeriodStatus = "submitted"
)

// CanTransition reports whether a forward move to the target is legal.
func (s PeriodStatus) CanTransition(to PeriodStatus) bool {
	switch s {
	case PeriodDraft:
		return to == PeriodFinalized
	case PeriodFinalized:
		return to == PeriodSubmitted
	default:
		return false
	}
}

// ReportPeriod is one row per reporting month. Snapshot is non-nil exactly
// when the status is finalized or submitted.
type ReportPeriod struct {
	Month       ledger.Month `json:"-"`
	Status      PeriodStatus `json:"status"`
	FinalizedAt *time.Time   `json:"finalized_at,omitempty"`
	FinalizedBy string       `json:"finalized_by,omitempty"`
	SubmittedAt *time.Time   `json:"submitted_at,omitempty"`
	SubmittedTo string       `json:"submitted_to,omitempty"`
	Notes       string       `json:"notes,omitempty"`
	Snapshot    *Snapshot    `json:"-"`
}

// PeriodStore persists report periods. The transition methods are
// conditional writes: they return false, without modifying anything, when
// the period was not in the required prior status. This is the optimistic
// guard that keeps concurrent transitions from both succeeding.
type PeriodStore interface {
	// Period returns the period row, or nil if none exists yet (an absent
	// row is an implicit draft).
	Period(ctx context.Context, m ledger.Month) (*ReportPeriod, error)

	// FinalizePeriod atomically moves draft -> finalized, writing the
	// snapshot, finalized_at and finalized_by in the same operation. It
	// creates the draft row lazily when absent.
	FinalizePeriod(ctx context.Context, m ledger.Month, snap Snapshot, by, notes string, at time.Time) (bool, error)

	// SubmitPeriod atomically moves finalized -> submitted. The stored
	// snapshot is not touched.
	SubmitPeriod(ctx context.Context, m ledger.Month, to string, at time.Time) (bool, error)
}

// =============================================================================
// WORKFLOW
// =============================================================================

// View selects between the recomputed and frozen renditions of a report.
type View string

const (
	ViewLive      View = "live"
	ViewSubmitted View = "submitted"

	// ViewReported is an accepted synonym for ViewSubmitted.
	ViewReported View = "reported"
)

// Source reports which rendition a resolved view actually came from.
type Source string

const (
	SourceLive     Source = "live"
	SourceSnapshot Source = "snapshot"
)

// Workflow drives the finalize/submit lifecycle and view resolution.
type Workflow struct {
	Generator *Generator
	Periods   PeriodStore
	Now       func() time.Time
}

func NewWorkflow(g *Generator, periods PeriodStore) *Workflow {
	return &Workflow{Generator: g, Periods: periods, Now: func() time.Time { return time.Now().UTC() }}
}

// Finalize recomputes the live report, freezes it into a snapshot and
// moves the period to finalized. Fails with a state conflict if the period
// already left draft.
func (w *Workflow) Finalize(ctx context.Context, m ledger.Month, actor, notes string) (*ReportPeriod, error) {
	current, err := w.Periods.Period(ctx, m)
	if err != nil {
		return nil, err
	}
	if current != nil && current.Status != PeriodDraft {
		return nil, &StateConflictError{Op: "finalize", Month: m, Current: current.Status}
	}

	data, err := w.Generator.Live(ctx, m)
	if err != nil {
		return nil, err
	}

	now := w.Now()
	snap := Snapshot{
		Version:         SnapshotVersion,
		ReportData:      *data,
		FinalizedAt:     now,
		FinalizedByName: actor,
	}

	ok, err := w.Periods.FinalizePeriod(ctx, m, snap, actor, notes, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Lost a race: someone else finalized between the check and the
		// guarded write. Name the state that won.
		return nil, w.conflict(ctx, "finalize", m)
	}

	return w.Periods.Period(ctx, m)
}

// Submit marks a finalized period as handed to an external party. The
// snapshot is not recomputed or altered.
func (w *Workflow) Submit(ctx context.Context, m ledger.Month, submittedTo string) (*ReportPeriod, error) {
	if _, err := ledger.NewMonth(m.Year, int(m.Month)); err != nil {
		return nil, &ValidationError{Field: "month", Message: err.Error()}
	}

	current, err := w.Periods.Period(ctx, m)
	if err != nil {
		return nil, err
	}
	status := PeriodDraft
	if current != nil {
		status = current.Status
	}
	if !status.CanTransition(PeriodSubmitted) {
		return nil, &StateConflictError{Op: "submit", Month: m, Current: status}
	}

	ok, err := w.Periods.SubmitPeriod(ctx, m, submittedTo, w.Now())
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, w.conflict(ctx, "submit", m)
	}

	return w.Periods.Period(ctx, m)
}

// Resolve returns the report for a month in the requested view, along with
// the source the data actually came from.
func (w *Workflow) Resolve(ctx context.Context, m ledger.Month, view View) (*MonthlyReportData, Source, error) {
	if view == ViewSubmitted || view == ViewReported {
		period, err := w.Periods.Period(ctx, m)
		if err != nil {
			return nil, "", err
		}
		if period != nil && period.Snapshot != nil {
			return &period.Snapshot.ReportData, SourceSnapshot, nil
		}
		// Never finalized: nothing is frozen yet, fall back to live.
	}

	data, err := w.Generator.Live(ctx, m)
	if err != nil {
		return nil, "", err
	}
	return data, SourceLive, nil
}

func (w *Workflow) conflict(ctx context.Context, op string, m ledger.Month) error {
	current, err := w.Periods.Period(ctx, m)
	if err != nil {
		return err
	}
	status := PeriodDraft
	if current != nil {
		status = current.Status
	}
	return &StateConflictError{Op: op, Month: m, Current: status}
}
