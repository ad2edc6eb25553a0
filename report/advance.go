/*
advance.go - Advance-payment creation and linking

PURPOSE:
  An advance payment is cash out the door before any invoice exists. It is
  reported in its own reporting month, and may later be linked to the
  invoice that justifies it. The link is one-to-one in both directions and
  never silently relinked.

CONCURRENCY:
  Link and unlink are check-then-write races waiting to happen, so the
  store performs them as conditional updates (plus a unique index on the
  invoice side). Two concurrent link attempts on the same advance payment
  or the same invoice cannot both succeed.
*/
package report

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
)

// AdvancePaymentForm is the user input for creating an advance payment.
type AdvancePaymentForm struct {
	VendorID       ledger.VendorID
	Description    string
	Amount         decimal.Decimal
	PaymentTypeID  ledger.PaymentTypeID
	Date           time.Time
	Reference      string
	ReportingMonth ledger.Month
}

// Linker owns all advance-payment mutations.
type Linker struct {
	Store  ledger.AdvanceStore
	Ledger ledger.Reader
	Now    func() time.Time
}

func NewLinker(store ledger.AdvanceStore, reader ledger.Reader) *Linker {
	return &Linker{Store: store, Ledger: reader, Now: func() time.Time { return time.Now().UTC() }}
}

// Create validates the form and persists a new, unlinked advance payment.
func (l *Linker) Create(ctx context.Context, form AdvancePaymentForm) (*ledger.AdvancePayment, error) {
	if !form.Amount.IsPositive() {
		return nil, &ValidationError{Field: "amount", Message: "must be positive"}
	}
	if _, err := ledger.NewMonth(form.ReportingMonth.Year, int(form.ReportingMonth.Month)); err != nil {
		return nil, &ValidationError{Field: "reporting_month", Message: err.Error()}
	}
	if form.VendorID == "" {
		return nil, &ValidationError{Field: "vendor_id", Message: "required"}
	}
	if form.Date.IsZero() {
		return nil, &ValidationError{Field: "payment_date", Message: "required"}
	}

	adv := ledger.AdvancePayment{
		ID:             ledger.AdvancePaymentID(uuid.NewString()),
		VendorID:       form.VendorID,
		Description:    form.Description,
		Amount:         form.Amount,
		PaymentTypeID:  form.PaymentTypeID,
		Date:           form.Date,
		Reference:      form.Reference,
		ReportingMonth: form.ReportingMonth,
		CreatedAt:      l.Now(),
	}

	if err := l.Store.CreateAdvancePayment(ctx, adv); err != nil {
		return nil, err
	}
	return &adv, nil
}

// Link attaches an advance payment to an invoice, setting linked_invoice_id
// and linked_at together. Rejected when the advance payment is already
// linked, or the invoice is already claimed by a different advance payment.
func (l *Linker) Link(ctx context.Context, id ledger.AdvancePaymentID, invoiceID ledger.InvoiceID) (*ledger.AdvancePayment, error) {
	adv, err := l.Store.AdvancePayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if adv == nil {
		return nil, ErrAdvanceNotFound
	}
	if adv.Linked() {
		return nil, ErrAlreadyLinked
	}

	inv, err := l.Ledger.Invoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, ErrInvoiceNotFound
	}

	// The store re-checks both sides under its own guard; the reads above
	// only exist to produce precise errors for the common cases.
	if err := l.Store.LinkAdvance(ctx, id, invoiceID, l.Now()); err != nil {
		return nil, err
	}

	return l.Store.AdvancePayment(ctx, id)
}

// Unlink clears the invoice link, both fields together.
func (l *Linker) Unlink(ctx context.Context, id ledger.AdvancePaymentID) (*ledger.AdvancePayment, error) {
	adv, err := l.Store.AdvancePayment(ctx, id)
	if err != nil {
		return nil, err
	}
	if adv == nil {
		return nil, ErrAdvanceNotFound
	}
	if !adv.Linked() {
		return nil, ErrNotLinked
	}

	if err := l.Store.UnlinkAdvance(ctx, id); err != nil {
		return nil, err
	}
	return l.Store.AdvancePayment(ctx, id)
}

// NormalizePage clamps paging inputs to the values List actually uses:
// page at least 1, perPage defaulting to 20 and capped at 100. Callers
// that echo paging back to clients report these effective values.
func NormalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 20
	}
	if perPage > 100 {
		perPage = 100
	}
	return page, perPage
}

// List returns a page of advance payments plus the unpaged total count.
func (l *Linker) List(ctx context.Context, f ledger.AdvanceFilter, page, perPage int) ([]ledger.AdvancePayment, int, error) {
	page, perPage = NormalizePage(page, perPage)
	return l.Store.ListAdvancePayments(ctx, f, page, perPage)
}
