package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlane/invoice-engine/report"
	"github.com/finlane/invoice-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestWorkflow(t *testing.T) (*report.Workflow, *sqlite.Store) {
	store := newTestStore(t)
	gen := report.NewGenerator(store)
	gen.Now = fixedClock()
	wf := report.NewWorkflow(gen, store)
	wf.Now = fixedClock()
	return wf, store
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

func TestStatusTransitions_ForwardOnly(t *testing.T) {
	assert.True(t, report.PeriodDraft.CanTransition(report.PeriodFinalized))
	assert.True(t, report.PeriodFinalized.CanTransition(report.PeriodSubmitted))

	assert.False(t, report.PeriodDraft.CanTransition(report.PeriodSubmitted))
	assert.False(t, report.PeriodFinalized.CanTransition(report.PeriodDraft))
	assert.False(t, report.PeriodSubmitted.CanTransition(report.PeriodDraft))
	assert.False(t, report.PeriodSubmitted.CanTransition(report.PeriodFinalized))
}

func TestFinalize_FreezesSnapshot(t *testing.T) {
	// GIVEN: A draft month with one paid invoice
	// WHEN: The month is finalized
	// THEN: Status is finalized and the snapshot holds the report

	wf, store := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "1000", "bank"))

	period, err := wf.Finalize(ctx, m, "alice", "month closed")
	require.NoError(t, err)

	assert.Equal(t, report.PeriodFinalized, period.Status)
	assert.Equal(t, "alice", period.FinalizedBy)
	assert.NotNil(t, period.FinalizedAt)
	require.NotNil(t, period.Snapshot)
	assert.Equal(t, report.SnapshotVersion, period.Snapshot.Version)
	assert.True(t, period.Snapshot.ReportData.GrandTotal.Equal(money("1000")))
	assert.Equal(t, "month closed", period.Notes)
}

func TestFinalize_Twice_Conflict(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)

	_, err = wf.Finalize(ctx, m, "bob", "")
	assert.True(t, report.IsConflict(err), "expected conflict, got %v", err)

	var conflict *report.StateConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, report.PeriodFinalized, conflict.Current)
}

func TestSubmit_RequiresFinalized(t *testing.T) {
	// Draft months cannot be submitted; the two-step order is enforced.

	wf, _ := newTestWorkflow(t)
	ctx := context.Background()

	_, err := wf.Submit(ctx, march2026(), "external accountant")
	assert.True(t, report.IsConflict(err))
}

func TestSubmit_AfterFinalize(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)

	period, err := wf.Submit(ctx, m, "external accountant")
	require.NoError(t, err)

	assert.Equal(t, report.PeriodSubmitted, period.Status)
	assert.Equal(t, "external accountant", period.SubmittedTo)
	assert.NotNil(t, period.SubmittedAt)
	require.NotNil(t, period.Snapshot, "submit must not discard the snapshot")
}

func TestSubmit_Twice_Conflict(t *testing.T) {
	wf, _ := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, m, "accountant")
	require.NoError(t, err)

	_, err = wf.Submit(ctx, m, "someone else")
	assert.True(t, report.IsConflict(err))
}

func TestFinalize_AfterSubmit_Conflict(t *testing.T) {
	// Submitted is terminal.

	wf, _ := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, m, "accountant")
	require.NoError(t, err)

	_, err = wf.Finalize(ctx, m, "bob", "")
	assert.True(t, report.IsConflict(err))
}

// =============================================================================
// SNAPSHOT IMMUTABILITY AND VIEW RESOLUTION
// =============================================================================

func TestResolve_SubmittedViewServesFrozenSnapshot(t *testing.T) {
	// GIVEN: A finalized and submitted month
	// WHEN: A new payment lands afterwards
	// THEN: The submitted view still shows the frozen totals while the
	//       live view reflects the new payment

	wf, store := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "1000", "bank"))

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, m, "accountant")
	require.NoError(t, err)

	// Ledger keeps evolving after submission.
	saveInvoice(t, store, invoice("inv-2", "INV-2", time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), "500", "500"))
	savePayment(t, store, payment("pay-2", "inv-2", time.Date(2026, time.March, 21, 0, 0, 0, 0, time.UTC), "500", "bank"))

	frozen, source, err := wf.Resolve(ctx, m, report.ViewSubmitted)
	require.NoError(t, err)
	assert.Equal(t, report.SourceSnapshot, source)
	assert.True(t, frozen.GrandTotal.Equal(money("1000")), "snapshot must not move, got %s", frozen.GrandTotal)
	assert.Equal(t, 1, frozen.TotalEntries)

	live, source, err := wf.Resolve(ctx, m, report.ViewLive)
	require.NoError(t, err)
	assert.Equal(t, report.SourceLive, source)
	assert.True(t, live.GrandTotal.Equal(money("1500")))
	assert.Equal(t, 2, live.TotalEntries)
}

func TestResolve_ReportedViewIsSubmittedSynonym(t *testing.T) {
	// view=reported serves the same frozen snapshot as view=submitted.

	wf, store := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "1000", "bank"))

	_, err := wf.Finalize(ctx, m, "alice", "")
	require.NoError(t, err)

	savePayment(t, store, payment("pay-2", "inv-1", time.Date(2026, time.March, 21, 0, 0, 0, 0, time.UTC), "250", "bank"))

	data, source, err := wf.Resolve(ctx, m, report.ViewReported)
	require.NoError(t, err)
	assert.Equal(t, report.SourceSnapshot, source)
	assert.True(t, data.GrandTotal.Equal(money("1000")), "got %s", data.GrandTotal)
}

func TestResolve_SubmittedViewFallsBackToLive(t *testing.T) {
	// A month never finalized has nothing frozen; the submitted view
	// transparently serves live data.

	wf, store := newTestWorkflow(t)
	ctx := context.Background()
	m := march2026()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))

	data, source, err := wf.Resolve(ctx, m, report.ViewSubmitted)
	require.NoError(t, err)
	assert.Equal(t, report.SourceLive, source)
	assert.Equal(t, 1, data.TotalEntries)
}

func TestPeriod_AbsentRowIsImplicitDraft(t *testing.T) {
	wf, _ := newTestWorkflow(t)

	period, err := wf.Periods.Period(context.Background(), march2026())
	require.NoError(t, err)
	assert.Nil(t, period)
}

// =============================================================================
// CONSOLIDATED YEAR VIEW
// =============================================================================

func TestConsolidated_AggregatesAcrossMonths(t *testing.T) {
	// GIVEN: Paid invoices in February and March, March finalized
	// WHEN: The consolidated 2026 report is built
	// THEN: Twelve month lines, statuses and sources per month, totals sum

	wf, store := newTestWorkflow(t)
	ctx := context.Background()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.February, 5, 0, 0, 0, 0, time.UTC), "700", "700"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC), "700", "bank"))

	saveInvoice(t, store, invoice("inv-2", "INV-2", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), "300", "300"))
	savePayment(t, store, payment("pay-2", "inv-2", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "300", "bank"))

	_, err := wf.Finalize(ctx, march2026(), "alice", "")
	require.NoError(t, err)
	_, err = wf.Submit(ctx, march2026(), "accountant")
	require.NoError(t, err)

	out, err := wf.Consolidated(ctx, 2026, report.ViewSubmitted)
	require.NoError(t, err)

	require.Len(t, out.Months, 12)
	assert.True(t, out.GrandTotal.Equal(money("1000")))
	assert.Equal(t, 2, out.TotalEntries)

	feb, mar := out.Months[1], out.Months[2]
	assert.Equal(t, report.PeriodDraft, feb.Status)
	assert.Equal(t, report.SourceLive, feb.Source)
	assert.Equal(t, report.PeriodSubmitted, mar.Status)
	assert.Equal(t, report.SourceSnapshot, mar.Source)
}

func TestConsolidated_InvalidYear_Rejected(t *testing.T) {
	wf, _ := newTestWorkflow(t)

	_, err := wf.Consolidated(context.Background(), 0, report.ViewLive)
	assert.True(t, report.IsValidation(err))
}
