package report_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finlane/invoice-engine/ledger"
	"github.com/finlane/invoice-engine/report"
	"github.com/finlane/invoice-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLinker(t *testing.T) (*report.Linker, *sqlite.Store) {
	store := newTestStore(t)
	linker := report.NewLinker(store, store)
	linker.Now = fixedClock()
	return linker, store
}

func advanceForm(amount string) report.AdvancePaymentForm {
	return report.AdvancePaymentForm{
		VendorID:       "vendor-1",
		Description:    "Mobilization advance",
		Amount:         money(amount),
		PaymentTypeID:  "bank",
		Date:           time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC),
		ReportingMonth: march2026(),
	}
}

// =============================================================================
// CREATE
// =============================================================================

func TestLinkerCreate_Unlinked(t *testing.T) {
	linker, _ := newTestLinker(t)

	adv, err := linker.Create(context.Background(), advanceForm("5000"))
	require.NoError(t, err)

	assert.NotEmpty(t, adv.ID)
	assert.False(t, adv.Linked())
	assert.Nil(t, adv.LinkedAt)
	assert.True(t, adv.Amount.Equal(money("5000")))
	assert.Equal(t, march2026(), adv.ReportingMonth)
}

func TestLinkerCreate_Validation(t *testing.T) {
	linker, _ := newTestLinker(t)
	ctx := context.Background()

	form := advanceForm("0")
	_, err := linker.Create(ctx, form)
	assert.True(t, report.IsValidation(err), "zero amount")

	form = advanceForm("-100")
	_, err = linker.Create(ctx, form)
	assert.True(t, report.IsValidation(err), "negative amount")

	form = advanceForm("100")
	form.VendorID = ""
	_, err = linker.Create(ctx, form)
	assert.True(t, report.IsValidation(err), "missing vendor")

	form = advanceForm("100")
	form.ReportingMonth = ledger.Month{Year: 2026, Month: 13}
	_, err = linker.Create(ctx, form)
	assert.True(t, report.IsValidation(err), "invalid reporting month")

	form = advanceForm("100")
	form.Date = time.Time{}
	_, err = linker.Create(ctx, form)
	assert.True(t, report.IsValidation(err), "missing payment date")
}

func TestLinkerCreate_AppearsInReportingMonth(t *testing.T) {
	// GIVEN: An advance paid in late February attributed to March
	// THEN: It shows in March's report, not February's

	linker, store := newTestLinker(t)
	ctx := context.Background()

	form := advanceForm("5000")
	form.Date = time.Date(2026, time.February, 27, 0, 0, 0, 0, time.UTC)
	_, err := linker.Create(ctx, form)
	require.NoError(t, err)

	gen := report.NewGenerator(store)
	gen.Now = fixedClock()

	march, err := gen.Live(ctx, march2026())
	require.NoError(t, err)
	require.Equal(t, 1, march.TotalEntries)
	assert.Equal(t, report.EntryAdvancePayment, march.Sections[0].Entries[0].EntryType)

	feb, err := gen.Live(ctx, ledger.Month{Year: 2026, Month: time.February})
	require.NoError(t, err)
	assert.Equal(t, 0, feb.TotalEntries)
}

// =============================================================================
// LINK / UNLINK
// =============================================================================

func TestLink_SetsBothFields(t *testing.T) {
	// GIVEN: An unlinked advance and an invoice
	// WHEN: They are linked
	// THEN: linked_invoice_id and linked_at are set together

	linker, store := newTestLinker(t)
	ctx := context.Background()

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))

	linked, err := linker.Link(ctx, adv.ID, "inv-1")
	require.NoError(t, err)

	assert.True(t, linked.Linked())
	require.NotNil(t, linked.LinkedInvoiceID)
	assert.Equal(t, ledger.InvoiceID("inv-1"), *linked.LinkedInvoiceID)
	assert.NotNil(t, linked.LinkedAt)
}

func TestLink_AlreadyLinked_Conflict(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))
	saveInvoice(t, store, invoice("inv-2", "INV-2", time.Date(2026, time.April, 4, 0, 0, 0, 0, time.UTC), "5000", "5000"))

	_, err = linker.Link(ctx, adv.ID, "inv-1")
	require.NoError(t, err)

	_, err = linker.Link(ctx, adv.ID, "inv-2")
	assert.ErrorIs(t, err, report.ErrAlreadyLinked)
}

func TestLink_InvoiceClaimedByOtherAdvance_Conflict(t *testing.T) {
	// The one-to-one invariant also holds from the invoice side.

	linker, store := newTestLinker(t)
	ctx := context.Background()

	first, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	second, err := linker.Create(ctx, advanceForm("3000"))
	require.NoError(t, err)
	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))

	_, err = linker.Link(ctx, first.ID, "inv-1")
	require.NoError(t, err)

	_, err = linker.Link(ctx, second.ID, "inv-1")
	assert.ErrorIs(t, err, report.ErrInvoiceClaimed)
}

func TestLink_UnknownRecords_NotFound(t *testing.T) {
	linker, _ := newTestLinker(t)
	ctx := context.Background()

	_, err := linker.Link(ctx, "adv-gone", "inv-1")
	assert.ErrorIs(t, err, report.ErrAdvanceNotFound)

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)

	_, err = linker.Link(ctx, adv.ID, "inv-gone")
	assert.ErrorIs(t, err, report.ErrInvoiceNotFound)
}

func TestUnlink_ClearsBothFields(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))

	_, err = linker.Link(ctx, adv.ID, "inv-1")
	require.NoError(t, err)

	unlinked, err := linker.Unlink(ctx, adv.ID)
	require.NoError(t, err)

	assert.False(t, unlinked.Linked())
	assert.Nil(t, unlinked.LinkedInvoiceID)
	assert.Nil(t, unlinked.LinkedAt)
}

func TestUnlink_NotLinked_Conflict(t *testing.T) {
	linker, _ := newTestLinker(t)
	ctx := context.Background()

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)

	_, err = linker.Unlink(ctx, adv.ID)
	assert.ErrorIs(t, err, report.ErrNotLinked)
}

func TestUnlinkThenRelink(t *testing.T) {
	// Unlinking frees both sides for new links.

	linker, store := newTestLinker(t)
	ctx := context.Background()

	adv, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))

	_, err = linker.Link(ctx, adv.ID, "inv-1")
	require.NoError(t, err)
	_, err = linker.Unlink(ctx, adv.ID)
	require.NoError(t, err)

	relinked, err := linker.Link(ctx, adv.ID, "inv-1")
	require.NoError(t, err)
	assert.True(t, relinked.Linked())
}

// =============================================================================
// LIST
// =============================================================================

func TestList_FilterByLinked(t *testing.T) {
	linker, store := newTestLinker(t)
	ctx := context.Background()

	first, err := linker.Create(ctx, advanceForm("5000"))
	require.NoError(t, err)
	_, err = linker.Create(ctx, advanceForm("3000"))
	require.NoError(t, err)

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.April, 3, 0, 0, 0, 0, time.UTC), "5000", "5000"))
	_, err = linker.Link(ctx, first.ID, "inv-1")
	require.NoError(t, err)

	linked := true
	items, total, err := linker.List(ctx, ledger.AdvanceFilter{Linked: &linked}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, first.ID, items[0].ID)

	unlinked := false
	items, total, err = linker.List(ctx, ledger.AdvanceFilter{Linked: &unlinked}, 1, 20)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.False(t, items[0].Linked())
}

func TestList_Pagination(t *testing.T) {
	linker, _ := newTestLinker(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := linker.Create(ctx, advanceForm("100"))
		require.NoError(t, err)
	}

	items, total, err := linker.List(ctx, ledger.AdvanceFilter{}, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Len(t, items, 2)

	items, _, err = linker.List(ctx, ledger.AdvanceFilter{}, 3, 2)
	require.NoError(t, err)
	assert.Len(t, items, 1)
}
