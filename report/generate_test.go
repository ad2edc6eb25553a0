package report_test

import (
	"context"
	"encoding/json"
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

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	ctx := context.Background()
	require.NoError(t, store.SaveVendor(ctx, ledger.Vendor{ID: "vendor-1", Name: "Acme Supplies"}))
	require.NoError(t, store.SaveVendor(ctx, ledger.Vendor{ID: "vendor-2", Name: "Globex"}))
	require.NoError(t, store.SavePaymentType(ctx, ledger.PaymentType{ID: "bank", Name: "Bank Transfer"}))
	require.NoError(t, store.SavePaymentType(ctx, ledger.PaymentType{ID: "card", Name: "Corporate Card"}))
	return store
}

func fixedClock() func() time.Time {
	at := time.Date(2026, time.April, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time { return at }
}

func newTestGenerator(t *testing.T) (*report.Generator, *sqlite.Store) {
	store := newTestStore(t)
	gen := report.NewGenerator(store)
	gen.Now = fixedClock()
	return gen, store
}

func saveInvoice(t *testing.T, store *sqlite.Store, inv ledger.Invoice) {
	t.Helper()
	require.NoError(t, store.SaveInvoice(context.Background(), inv))
}

func savePayment(t *testing.T, store *sqlite.Store, p ledger.Payment) {
	t.Helper()
	require.NoError(t, store.SavePayment(context.Background(), p))
}

func findSection(t *testing.T, data *report.MonthlyReportData, name string) report.ReportSection {
	t.Helper()
	for _, s := range data.Sections {
		if s.PaymentTypeName == name {
			return s
		}
	}
	t.Fatalf("section %q not found (have %d sections)", name, len(data.Sections))
	return report.ReportSection{}
}

// =============================================================================
// LIVE GENERATION
// =============================================================================

func TestLive_MixedMonth_SectionsAndTotals(t *testing.T) {
	// GIVEN: A month with a fully paid invoice (bank), a partially paid
	//        invoice (card), an unpaid invoice, a credit note and an
	//        advance payment
	// WHEN: The live report is generated
	// THEN: Entries land in the right sections with the right statuses and
	//       the grand total equals the sum of section subtotals

	gen, store := newTestGenerator(t)
	ctx := context.Background()
	m := march2026()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "10000", "10000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 18, 0, 0, 0, 0, time.UTC), "10000", "bank"))

	saveInvoice(t, store, invoice("inv-2", "INV-2", time.Date(2026, time.March, 7, 0, 0, 0, 0, time.UTC), "8000", "8000"))
	savePayment(t, store, payment("pay-2", "inv-2", time.Date(2026, time.March, 22, 0, 0, 0, 0, time.UTC), "2000", "card"))

	saveInvoice(t, store, invoice("inv-3", "INV-3", time.Date(2026, time.March, 12, 0, 0, 0, 0, time.UTC), "3000", "3000"))

	require.NoError(t, store.SaveCreditNote(ctx, ledger.CreditNote{
		ID: "cn-1", Number: "CN-1", InvoiceID: "inv-1",
		Amount: money("-500"), TDSReversal: money("0"),
		Date: time.Date(2026, time.March, 25, 0, 0, 0, 0, time.UTC),
	}))

	require.NoError(t, store.CreateAdvancePayment(ctx, ledger.AdvancePayment{
		ID: "adv-1", VendorID: "vendor-2", Amount: money("5000"),
		PaymentTypeID: "bank", Date: time.Date(2026, time.March, 29, 0, 0, 0, 0, time.UTC),
		ReportingMonth: m, CreatedAt: time.Now().UTC(),
	}))

	data, err := gen.Live(ctx, m)
	require.NoError(t, err)

	bank := findSection(t, data, "Bank Transfer")
	card := findSection(t, data, "Corporate Card")
	unpaid := findSection(t, data, report.UnpaidSectionName)

	// Bank: full payment, its credit note, the advance.
	assert.Equal(t, 3, bank.EntryCount)
	assert.True(t, bank.Subtotal.Equal(money("14500")), "10000 - 500 + 5000, got %s", bank.Subtotal)

	// Card: the partial payment.
	require.Equal(t, 1, card.EntryCount)
	assert.Equal(t, report.StatusPartiallyPaid, card.Entries[0].Status)
	require.NotNil(t, card.Entries[0].StatusPercentage)
	assert.Equal(t, 25, *card.Entries[0].StatusPercentage)

	// Unpaid bucket: the untouched invoice.
	require.Equal(t, 1, unpaid.EntryCount)
	assert.Equal(t, report.StatusUnpaid, unpaid.Entries[0].Status)
	assert.Equal(t, "Acme Supplies", unpaid.Entries[0].VendorName)

	// Aggregation invariant.
	sum := money("0")
	entries := 0
	for _, s := range data.Sections {
		sum = sum.Add(s.Subtotal)
		entries += s.EntryCount
	}
	assert.True(t, data.GrandTotal.Equal(sum))
	assert.Equal(t, entries, data.TotalEntries)
	assert.Equal(t, 5, data.TotalEntries)
	assert.Equal(t, "March 2026", data.Label)
}

func TestLive_CreditNoteFollowsParentsLastPaymentType(t *testing.T) {
	// GIVEN: Invoice paid by card, then a credit note against it
	// THEN: The note lands in the card section, contributing negatively

	gen, store := newTestGenerator(t)
	ctx := context.Background()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "1000", "card"))
	require.NoError(t, store.SaveCreditNote(ctx, ledger.CreditNote{
		ID: "cn-1", Number: "CN-1", InvoiceID: "inv-1",
		Amount: money("-100"), TDSReversal: money("0"),
		Date: time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
	}))

	data, err := gen.Live(ctx, march2026())
	require.NoError(t, err)

	card := findSection(t, data, "Corporate Card")
	assert.Equal(t, 2, card.EntryCount)
	assert.True(t, card.Subtotal.Equal(money("900")))
}

func TestLive_CreditNoteOnUnpaidInvoice_LandsInUnpaidBucket(t *testing.T) {
	gen, store := newTestGenerator(t)
	ctx := context.Background()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	require.NoError(t, store.SaveCreditNote(ctx, ledger.CreditNote{
		ID: "cn-1", Number: "CN-1", InvoiceID: "inv-1",
		Amount: money("-100"), TDSReversal: money("0"),
		Date: time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC),
	}))

	data, err := gen.Live(ctx, march2026())
	require.NoError(t, err)

	unpaid := findSection(t, data, report.UnpaidSectionName)
	assert.Equal(t, 2, unpaid.EntryCount)
	assert.True(t, unpaid.Subtotal.Equal(money("900")))
}

func TestLive_SurfacedInvoiceReportedAsLateInvoice(t *testing.T) {
	// GIVEN: Invoice dated January but first entered in March, unpaid
	// WHEN: March's live report is generated
	// THEN: It appears as late_invoice, UNPAID

	gen, store := newTestGenerator(t)

	inv := invoice("inv-1", "INV-1", time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC), "1000", "1000")
	inv.EnteredAt = time.Date(2026, time.March, 4, 10, 0, 0, 0, time.UTC)
	saveInvoice(t, store, inv)

	data, err := gen.Live(context.Background(), march2026())
	require.NoError(t, err)

	unpaid := findSection(t, data, report.UnpaidSectionName)
	require.Equal(t, 1, unpaid.EntryCount)
	assert.Equal(t, report.EntryLateInvoice, unpaid.Entries[0].EntryType)
}

func TestLive_LatePaymentOnPriorMonthInvoice(t *testing.T) {
	// GIVEN: Invoice dated and entered in February, paid in March
	// WHEN: March's live report is generated
	// THEN: The payment shows as late_payment in March

	gen, store := newTestGenerator(t)

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.February, 10, 0, 0, 0, 0, time.UTC), "1000", "1000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), "1000", "bank"))

	data, err := gen.Live(context.Background(), march2026())
	require.NoError(t, err)

	bank := findSection(t, data, "Bank Transfer")
	require.Equal(t, 1, bank.EntryCount)
	assert.Equal(t, report.EntryLatePayment, bank.Entries[0].EntryType)
	assert.Equal(t, report.StatusPaid, bank.Entries[0].Status)
}

func TestLive_SecondPaymentSeesPriorCumulative(t *testing.T) {
	// GIVEN: Two March payments on the same invoice, 6000 then 4000
	// THEN: First is PARTIALLY_PAID 60, second is PAID_PARTIAL 40

	gen, store := newTestGenerator(t)

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "10000", "10000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "6000", "bank"))
	savePayment(t, store, payment("pay-2", "inv-1", time.Date(2026, time.March, 20, 0, 0, 0, 0, time.UTC), "4000", "bank"))

	data, err := gen.Live(context.Background(), march2026())
	require.NoError(t, err)

	bank := findSection(t, data, "Bank Transfer")
	require.Equal(t, 2, bank.EntryCount)

	first, second := bank.Entries[0], bank.Entries[1]
	assert.Equal(t, report.StatusPartiallyPaid, first.Status)
	assert.Equal(t, 60, *first.StatusPercentage)
	assert.Equal(t, report.StatusPaidPartial, second.Status)
	assert.Equal(t, 40, *second.StatusPercentage)
}

func TestLive_EmptyMonth(t *testing.T) {
	gen, _ := newTestGenerator(t)

	data, err := gen.Live(context.Background(), march2026())
	require.NoError(t, err)

	assert.Empty(t, data.Sections)
	assert.True(t, data.GrandTotal.IsZero())
	assert.Equal(t, 0, data.TotalEntries)
}

func TestLive_InvalidMonth_Rejected(t *testing.T) {
	gen, _ := newTestGenerator(t)

	_, err := gen.Live(context.Background(), ledger.Month{Year: 2026, Month: 13})
	assert.True(t, report.IsValidation(err))
}

// =============================================================================
// DETERMINISM
// =============================================================================

func TestLive_RegenerationIsByteIdentical(t *testing.T) {
	// GIVEN: Unchanged ledger state and a fixed clock
	// WHEN: The same month is generated twice
	// THEN: The serialized reports are byte-for-byte identical

	gen, store := newTestGenerator(t)
	ctx := context.Background()

	saveInvoice(t, store, invoice("inv-1", "INV-1", time.Date(2026, time.March, 3, 0, 0, 0, 0, time.UTC), "10000", "10000"))
	savePayment(t, store, payment("pay-1", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "6000", "bank"))
	savePayment(t, store, payment("pay-2", "inv-1", time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC), "1000", "card"))
	saveInvoice(t, store, invoice("inv-2", "INV-2", time.Date(2026, time.March, 5, 0, 0, 0, 0, time.UTC), "2000", "2000"))

	first, err := gen.Live(ctx, march2026())
	require.NoError(t, err)
	second, err := gen.Live(ctx, march2026())
	require.NoError(t, err)

	a, err := json.Marshal(first)
	require.NoError(t, err)
	b, err := json.Marshal(second)
	require.NoError(t, err)

	assert.Equal(t, string(a), string(b))
}
