/*
Package report implements the monthly financial report reconciliation engine.

PURPOSE:
  Converts raw invoice, payment, credit-note and advance-payment records
  into a grouped, auditable monthly statement, and governs the immutable
  draft -> finalized -> submitted workflow so that a report handed to an
  external accountant never silently changes as the ledger keeps evolving.

KEY CONCEPTS IN THIS FILE (entry.go):
  - ReportEntry: One line of the assembled report, with a derived entry
    type (standard, late_invoice, late_payment, advance_payment,
    credit_note) and a derived status (PAID, PARTIALLY_PAID, ...).
  - ReportSection: Entries bucketed by payment type, with a subtotal.
  - MonthlyReportData: The assembled report; the live view is recomputed
    from source data on every request.

DESIGN PRINCIPLES:
  1. Determinism: Given unchanged ledger state, generation is
     byte-for-byte reproducible. Required for snapshots to be meaningful.
  2. Exactness: Totals are decimal sums of entry contributions; credit
     notes contribute negatively.
  3. Nothing dropped: Late invoices and late payments surface in the
     current live report rather than disappearing into closed months.

SEE ALSO:
  - classify.go: Produces ReportEntry values from raw records
  - group.go: Buckets entries into sections and computes totals
  - generate.go: Orchestrates a full live report
  - snapshot.go / workflow.go: Freezing and lifecycle
*/
package report

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
)

// =============================================================================
// ENTRY TYPE - How a record was attributed to this month
// =============================================================================

type EntryType string

const (
	// EntryStandard: invoice dated in the month, payment (if any) dated in
	// the month.
	EntryStandard EntryType = "standard"

	// EntryLateInvoice: invoice dated in a prior month but first entered
	// during this one. Reported here so nothing is silently dropped.
	EntryLateInvoice EntryType = "late_invoice"

	// EntryLatePayment: payment dated in this month against an invoice
	// belonging to an earlier month. The cash movement is reported in the
	// month it happened.
	EntryLatePayment EntryType = "late_payment"

	// EntryAdvancePayment: payment with no invoice yet, attributed via its
	// own reporting month.
	EntryAdvancePayment EntryType = "advance_payment"

	// EntryCreditNote: negative adjustment against an invoice.
	EntryCreditNote EntryType = "credit_note"
)

// =============================================================================
// ENTRY STATUS
// =============================================================================

type EntryStatus string

const (
	StatusPaid          EntryStatus = "PAID"
	StatusPaidPartial   EntryStatus = "PAID_PARTIAL" // this payment completed a partially paid invoice
	StatusPartiallyPaid EntryStatus = "PARTIALLY_PAID"
	StatusUnpaid        EntryStatus = "UNPAID"
	StatusAdvance       EntryStatus = "ADVANCE"
	StatusCreditNote    EntryStatus = "CREDIT_NOTE"
)

// HasPercentage reports whether status_percentage is meaningful for the
// status.
func (s EntryStatus) HasPercentage() bool {
	return s == StatusPaidPartial || s == StatusPartiallyPaid
}

// =============================================================================
// REPORT ENTRY - One line of the assembled report
// =============================================================================

// ReportEntry is one line in the report. Exactly one origin describes it:
// a standard invoice/payment pairing, an advance payment, or a credit note.
type ReportEntry struct {
	// Serial is 1-based and sequential within the entry's section. Assigned
	// by the grouper, zero before that.
	Serial int `json:"serial"`

	// Ref is a stable key identifying the entry's origin records. It is the
	// final ordering tie-break, which keeps generation deterministic.
	Ref string `json:"ref"`

	EntryType EntryType   `json:"entry_type"`
	Status    EntryStatus `json:"status"`

	// StatusPercentage is set only for PAID_PARTIAL and PARTIALLY_PAID.
	StatusPercentage *int `json:"status_percentage,omitempty"`

	InvoiceID     ledger.InvoiceID `json:"invoice_id,omitempty"`
	InvoiceNumber string           `json:"invoice_number,omitempty"`
	VendorName    string           `json:"vendor_name,omitempty"`
	Description   string           `json:"description,omitempty"`
	Reference     string           `json:"reference,omitempty"`

	// Date orders the entry within its section: the payment date for paid
	// and advance entries, the invoice date for unpaid ones, the note date
	// for credit notes.
	Date time.Time `json:"date"`

	// InvoiceAmount is negative only for credit notes.
	InvoiceAmount decimal.Decimal `json:"invoice_amount"`
	PaymentAmount decimal.Decimal `json:"payment_amount"`

	PaymentTypeID   *ledger.PaymentTypeID `json:"payment_type_id,omitempty"`
	PaymentTypeName string                `json:"payment_type_name,omitempty"`

	IsAdvancePayment bool `json:"is_advance_payment"`
	IsCreditNote     bool `json:"is_credit_note"`

	// LinkedCreditNoteCount is set on invoice entries.
	LinkedCreditNoteCount int `json:"linked_credit_note_count,omitempty"`

	// ParentInvoiceNumber is set on credit-note entries.
	ParentInvoiceNumber string `json:"parent_invoice_number,omitempty"`
}

// Contribution is what the entry adds to its section subtotal: the payment
// amount where one exists, otherwise the invoice amount. Credit notes
// contribute their (negative) invoice amount.
func (e ReportEntry) Contribution() decimal.Decimal {
	if e.IsCreditNote {
		return e.InvoiceAmount
	}
	if !e.PaymentAmount.IsZero() {
		return e.PaymentAmount
	}
	return e.InvoiceAmount
}

// =============================================================================
// SECTION AND REPORT
// =============================================================================

// UnpaidSectionName labels the synthetic bucket for entries without a
// payment type.
const UnpaidSectionName = "Unpaid"

// ReportSection groups entries by payment type. A nil PaymentTypeID marks
// the synthetic Unpaid bucket.
type ReportSection struct {
	PaymentTypeID   *ledger.PaymentTypeID `json:"payment_type_id"`
	PaymentTypeName string                `json:"payment_type_name"`
	Entries         []ReportEntry         `json:"entries"`
	Subtotal        decimal.Decimal       `json:"subtotal"`
	EntryCount      int                   `json:"entry_count"`
}

// MonthlyReportData is the assembled report for one month.
// GrandTotal is exactly the sum of section subtotals and TotalEntries the
// sum of section entry counts.
type MonthlyReportData struct {
	Month        int             `json:"month"`
	Year         int             `json:"year"`
	Label        string          `json:"label"`
	Sections     []ReportSection `json:"sections"`
	GrandTotal   decimal.Decimal `json:"grand_total"`
	TotalEntries int             `json:"total_entries"`
	GeneratedAt  time.Time       `json:"generated_at"`
}
