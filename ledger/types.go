/*
Package ledger defines the read models the reporting engine consumes.

PURPOSE:
  This package contains the record types the rest of the system treats as
  facts: invoices, payments, credit notes, advance payments and the master
  data they reference. The reporting engine never mutates invoices or
  payments - it only reads them and attributes them to reporting months.

KEY CONCEPTS IN THIS FILE (types.go):
  - Month: A (year, month) reporting key. Records are attributed to a
    Month, which may differ from their literal dates.
  - Invoice/Payment/CreditNote: Facts recorded by the surrounding system.
  - AdvancePayment: A payment recorded before any invoice exists for it.
    The only record type this module writes (create/link/unlink).

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal for all money. No floats in domain types.
  2. Type Safety: Strong typing for IDs prevents mixing invoice/payment IDs.
  3. Read models: These structs mirror what the store returns, nothing more.

SEE ALSO:
  - store.go: Store interfaces the engine reads from and writes through
  - report package: Classification and aggregation over these records
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type InvoiceID string
type PaymentID string
type CreditNoteID string
type AdvancePaymentID string
type VendorID string
type PaymentTypeID string

// =============================================================================
// MONTH - The reporting key
// =============================================================================

// Month identifies a reporting period. Every generated report, every
// finalized snapshot and every advance payment is keyed by a Month.
type Month struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

// NewMonth validates and builds a reporting month.
func NewMonth(year, month int) (Month, error) {
	if month < 1 || month > 12 {
		return Month{}, fmt.Errorf("month %d out of range 1-12", month)
	}
	if year <= 0 {
		return Month{}, fmt.Errorf("year %d must be positive", year)
	}
	return Month{Year: year, Month: time.Month(month)}, nil
}

// MonthOf returns the reporting month a date falls into.
func MonthOf(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Start returns the first instant of the month (UTC).
func (m Month) Start() time.Time {
	return time.Date(m.Year, m.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the first instant of the next month. The month covers
// [Start, End).
func (m Month) End() time.Time {
	return m.Start().AddDate(0, 1, 0)
}

// Contains reports whether a date falls within the month.
func (m Month) Contains(t time.Time) bool {
	return !t.Before(m.Start()) && t.Before(m.End())
}

func (m Month) Next() Month { return MonthOf(m.End()) }

// Before reports whether m is strictly earlier than other.
func (m Month) Before(other Month) bool {
	if m.Year != other.Year {
		return m.Year < other.Year
	}
	return m.Month < other.Month
}

func (m Month) Equal(other Month) bool {
	return m.Year == other.Year && m.Month == other.Month
}

// Label returns the human form used on report headers, e.g. "March 2026".
func (m Month) Label() string {
	return fmt.Sprintf("%s %d", m.Month.String(), m.Year)
}

// Key returns the sortable form used in storage, e.g. "2026-03".
func (m Month) Key() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

func (m Month) String() string { return m.Key() }

// =============================================================================
// MASTER DATA
// =============================================================================

type Vendor struct {
	ID   VendorID
	Name string
}

type PaymentType struct {
	ID   PaymentTypeID
	Name string
}

// =============================================================================
// RECORDS
// =============================================================================

// Invoice is a fact recorded by the invoicing side of the system.
// PayableAmount is the amount net of withholding (TDS); it is the
// denominator for payment-percentage calculations.
type Invoice struct {
	ID            InvoiceID
	Number        string
	VendorID      VendorID
	Date          time.Time // invoice date (nominal month)
	EnteredAt     time.Time // when the record first surfaced in the system
	Amount        decimal.Decimal
	PayableAmount decimal.Decimal
	Currency      string
}

// Payment is a recorded payment against an invoice.
type Payment struct {
	ID            PaymentID
	InvoiceID     InvoiceID
	Amount        decimal.Decimal
	Date          time.Time
	Reference     string
	PaymentTypeID PaymentTypeID
}

// CreditNote is a negative adjustment against a previously issued invoice.
// Amount is stored negative; a non-negative amount is a data error.
type CreditNote struct {
	ID          CreditNoteID
	Number      string
	InvoiceID   InvoiceID
	Amount      decimal.Decimal
	TDSReversal decimal.Decimal
	Date        time.Time
}

// AdvancePayment is a payment made before any invoice exists for it.
// LinkedInvoiceID and LinkedAt are both nil or both set; the link is
// one-to-one in both directions.
type AdvancePayment struct {
	ID              AdvancePaymentID
	VendorID        VendorID
	Description     string
	Amount          decimal.Decimal
	PaymentTypeID   PaymentTypeID
	Date            time.Time
	Reference       string
	ReportingMonth  Month
	LinkedInvoiceID *InvoiceID
	LinkedAt        *time.Time
	CreatedAt       time.Time
}

// Linked reports whether the advance payment is linked to an invoice.
func (a AdvancePayment) Linked() bool { return a.LinkedInvoiceID != nil }
