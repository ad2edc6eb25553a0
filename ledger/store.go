package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// READER - What report generation needs from the store
// =============================================================================

// Reader is the read-only view of the ledger the report engine consumes.
// All month-scoped queries use the calendar-month boundary [m.Start, m.End).
type Reader interface {
	// InvoicesDated returns invoices whose invoice date falls in the month.
	InvoicesDated(ctx context.Context, m Month) ([]Invoice, error)

	// InvoicesSurfaced returns invoices dated before the month but first
	// entered during it. These become late_invoice entries.
	InvoicesSurfaced(ctx context.Context, m Month) ([]Invoice, error)

	// PaymentsDated returns payments whose payment date falls in the month.
	PaymentsDated(ctx context.Context, m Month) ([]Payment, error)

	// CreditNotesDated returns credit notes dated in the month.
	CreditNotesDated(ctx context.Context, m Month) ([]CreditNote, error)

	// AdvancePaymentsFor returns advance payments attributed to the month
	// via their reporting_month, independent of their payment dates.
	AdvancePaymentsFor(ctx context.Context, m Month) ([]AdvancePayment, error)

	// Invoice returns a single invoice, or nil if it does not exist.
	Invoice(ctx context.Context, id InvoiceID) (*Invoice, error)

	// PaidBefore returns the sum of payments on an invoice recorded before
	// the given payment, ordered by (date, payment id). Used to decide
	// whether a payment completed a partially paid invoice.
	PaidBefore(ctx context.Context, id InvoiceID, p Payment) (decimal.Decimal, error)

	// CreditNoteCount returns how many credit notes reference an invoice.
	CreditNoteCount(ctx context.Context, id InvoiceID) (int, error)

	// LastPaymentType returns the payment type of the most recent payment
	// on an invoice, or nil if the invoice has no payments.
	LastPaymentType(ctx context.Context, id InvoiceID) (*PaymentTypeID, error)

	// Vendors and PaymentTypes return lookup maps for report labels.
	Vendors(ctx context.Context) (map[VendorID]Vendor, error)
	PaymentTypes(ctx context.Context) (map[PaymentTypeID]PaymentType, error)
}

// =============================================================================
// ADVANCE STORE - The one record type this module writes
// =============================================================================

// AdvanceFilter narrows ListAdvancePayments. Nil fields mean "any".
type AdvanceFilter struct {
	VendorID       *VendorID
	PaymentTypeID  *PaymentTypeID
	ReportingMonth *Month
	Linked         *bool
}

// AdvanceStore persists advance payments. LinkAdvance and UnlinkAdvance
// must be atomic check-then-set operations: two concurrent link attempts
// on the same advance payment or the same invoice must not both succeed.
type AdvanceStore interface {
	CreateAdvancePayment(ctx context.Context, a AdvancePayment) error
	AdvancePayment(ctx context.Context, id AdvancePaymentID) (*AdvancePayment, error)
	ListAdvancePayments(ctx context.Context, f AdvanceFilter, page, perPage int) ([]AdvancePayment, int, error)

	// LinkAdvance sets linked_invoice_id and linked_at together, failing if
	// the advance payment is already linked or the invoice is already the
	// link target of another advance payment.
	LinkAdvance(ctx context.Context, id AdvancePaymentID, invoiceID InvoiceID, at time.Time) error

	// UnlinkAdvance clears both link fields together, failing if the
	// advance payment is not linked.
	UnlinkAdvance(ctx context.Context, id AdvancePaymentID) error
}
