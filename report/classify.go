/*
classify.go - Entry classification

PURPOSE:
  Turns each raw record into a ReportEntry with a derived entry type and
  status. One function per record origin, all pure: given the same record
  and the same reporting month they always produce the same entry.

CLASSIFICATION RULES:
  standard        invoice dated in the month; payment (if any) too
  late_invoice    invoice dated earlier, first entered during the month
  late_payment    payment this month against an earlier month's invoice
  advance_payment attributed via the advance's own reporting month
  credit_note     negative adjustment; never has a payment amount

STATUS DERIVATION:
  Compares the cumulative paid amount against the invoice's payable
  amount (net of TDS). A payment that completes a partially paid invoice
  renders as PAID_PARTIAL with the share this payment contributed;
  a partial payment renders as PARTIALLY_PAID with the invoice's overall
  paid fraction. Percentages round half away from zero.

FAILURE MODES:
  Negative amounts on non-credit-notes and non-negative credit notes are
  rejected before classification. A percentage against a zero payable
  amount is a data error, never infinity or NaN.
*/
package report

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
)

var hundred = decimal.NewFromInt(100)

// Classifier derives report entries for one reporting month.
type Classifier struct {
	Month ledger.Month
}

// =============================================================================
// INVOICE / PAYMENT PAIRINGS
// =============================================================================

// PaymentEntry classifies a payment recorded in the reporting month.
// priorPaid is the sum of payments on the invoice recorded before this one.
func (c Classifier) PaymentEntry(inv ledger.Invoice, pay ledger.Payment, priorPaid decimal.Decimal) (ReportEntry, error) {
	if inv.Amount.IsNegative() {
		return ReportEntry{}, fmt.Errorf("invoice %s: %w", inv.Number, ErrNegativeAmount)
	}
	if pay.Amount.IsNegative() {
		return ReportEntry{}, fmt.Errorf("payment %s: %w", pay.ID, ErrNegativeAmount)
	}

	entryType, err := c.paymentEntryType(inv)
	if err != nil {
		return ReportEntry{}, err
	}

	status, pct, err := deriveStatus(inv.PayableAmount, pay.Amount, priorPaid)
	if err != nil {
		return ReportEntry{}, &DataError{
			Record:  "invoice " + inv.Number,
			Message: "cannot compute payment percentage",
			Err:     err,
		}
	}

	typeID := pay.PaymentTypeID
	return ReportEntry{
		Ref:              fmt.Sprintf("inv:%s/pay:%s", inv.ID, pay.ID),
		EntryType:        entryType,
		Status:           status,
		StatusPercentage: pct,
		InvoiceID:        inv.ID,
		InvoiceNumber:    inv.Number,
		Reference:        pay.Reference,
		Date:             pay.Date,
		InvoiceAmount:    inv.Amount,
		PaymentAmount:    pay.Amount,
		PaymentTypeID:    &typeID,
	}, nil
}

func (c Classifier) paymentEntryType(inv ledger.Invoice) (EntryType, error) {
	invMonth := ledger.MonthOf(inv.Date)
	switch {
	case invMonth.Equal(c.Month):
		return EntryStandard, nil
	case invMonth.Before(c.Month):
		// The invoice belongs to an earlier month. If it only surfaced this
		// month it is a late invoice; otherwise the payment itself is late.
		if c.Month.Contains(inv.EnteredAt) {
			return EntryLateInvoice, nil
		}
		return EntryLatePayment, nil
	default:
		return "", &DataError{
			Record:  "invoice " + inv.Number,
			Message: fmt.Sprintf("paid in %s but dated in the later month %s", c.Month, invMonth),
		}
	}
}

// UnpaidEntry classifies an invoice with no payment recorded in the month.
func (c Classifier) UnpaidEntry(inv ledger.Invoice) (ReportEntry, error) {
	if inv.Amount.IsNegative() {
		return ReportEntry{}, fmt.Errorf("invoice %s: %w", inv.Number, ErrNegativeAmount)
	}

	entryType := EntryStandard
	if ledger.MonthOf(inv.Date).Before(c.Month) {
		entryType = EntryLateInvoice
	}

	return ReportEntry{
		Ref:           fmt.Sprintf("inv:%s", inv.ID),
		EntryType:     entryType,
		Status:        StatusUnpaid,
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.Number,
		Date:          inv.Date,
		InvoiceAmount: inv.Amount,
	}, nil
}

// =============================================================================
// ADVANCE PAYMENTS AND CREDIT NOTES
// =============================================================================

// AdvanceEntry classifies an advance payment, always by its own reporting
// month, independent of any invoice dates.
func (c Classifier) AdvanceEntry(a ledger.AdvancePayment) (ReportEntry, error) {
	if a.Amount.IsNegative() {
		return ReportEntry{}, fmt.Errorf("advance payment %s: %w", a.ID, ErrNegativeAmount)
	}

	typeID := a.PaymentTypeID
	return ReportEntry{
		Ref:              fmt.Sprintf("adv:%s", a.ID),
		EntryType:        EntryAdvancePayment,
		Status:           StatusAdvance,
		Description:      a.Description,
		Reference:        a.Reference,
		Date:             a.Date,
		PaymentAmount:    a.Amount,
		PaymentTypeID:    &typeID,
		IsAdvancePayment: true,
	}, nil
}

// CreditNoteEntry classifies a credit note against its parent invoice.
// A credit note referencing a missing invoice is a data error.
func (c Classifier) CreditNoteEntry(note ledger.CreditNote, parent *ledger.Invoice) (ReportEntry, error) {
	if !note.Amount.IsNegative() {
		return ReportEntry{}, fmt.Errorf("credit note %s: %w", note.Number, ErrCreditNoteNotNegative)
	}
	if parent == nil {
		return ReportEntry{}, &DataError{
			Record:  "credit note " + note.Number,
			Message: fmt.Sprintf("references missing invoice %s", note.InvoiceID),
			Err:     ErrInvoiceNotFound,
		}
	}

	return ReportEntry{
		Ref:                 fmt.Sprintf("cn:%s", note.ID),
		EntryType:           EntryCreditNote,
		Status:              StatusCreditNote,
		InvoiceID:           parent.ID,
		InvoiceNumber:       note.Number,
		Date:                note.Date,
		InvoiceAmount:       note.Amount,
		IsCreditNote:        true,
		ParentInvoiceNumber: parent.Number,
	}, nil
}

// =============================================================================
// STATUS DERIVATION
// =============================================================================

// deriveStatus compares cumulative payments against the payable amount.
// Returns the status and, where meaningful, the rounded percentage.
func deriveStatus(payable, payment, priorPaid decimal.Decimal) (EntryStatus, *int, error) {
	if payment.IsZero() {
		return StatusUnpaid, nil, nil
	}
	if !payable.IsPositive() {
		return "", nil, ErrZeroPayable
	}

	total := priorPaid.Add(payment)
	if total.GreaterThanOrEqual(payable) {
		if priorPaid.IsPositive() {
			// This payment completed a partially paid invoice: show how much
			// this particular payment contributed.
			return StatusPaidPartial, percentage(payment, payable), nil
		}
		return StatusPaid, nil, nil
	}

	// Overall paid fraction of the invoice, not just this payment.
	return StatusPartiallyPaid, percentage(total, payable), nil
}

// percentage rounds half away from zero.
func percentage(part, whole decimal.Decimal) *int {
	p := int(part.Div(whole).Mul(hundred).Round(0).IntPart())
	return &p
}
