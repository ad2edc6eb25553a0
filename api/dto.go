/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND DATES:
  Amounts travel as decimal strings ("1500.00"), never floats. Dates are
  "YYYY-MM-DD", months are "YYYY-MM", timestamps are RFC 3339.

VALIDATION:
  Struct tags carry the declarative rules (go-playground/validator);
  handlers run them before any parsing that could panic or any store
  access happens.

SEE ALSO:
  - handlers.go: Uses these types
  - report/entry.go: The report payload serialized as-is
*/
package api

import (
	"time"

	"github.com/finlane/invoice-engine/ledger"
	"github.com/finlane/invoice-engine/report"
)

// =============================================================================
// REPORT TYPES
// =============================================================================

// ReportResponse wraps a monthly report with the source it was resolved
// from: "live" for fresh generation, "snapshot" for a frozen submitted one.
type ReportResponse struct {
	Source report.Source             `json:"source"`
	Status report.PeriodStatus       `json:"status"`
	Report *report.MonthlyReportData `json:"report"`
}

// PeriodDTO describes the lifecycle state of one reporting month.
type PeriodDTO struct {
	Month       string `json:"month"`
	Status      string `json:"status"`
	FinalizedAt string `json:"finalized_at,omitempty"`
	FinalizedBy string `json:"finalized_by,omitempty"`
	SubmittedAt string `json:"submitted_at,omitempty"`
	SubmittedTo string `json:"submitted_to,omitempty"`
	Notes       string `json:"notes,omitempty"`
}

// FinalizeRequest is the request to finalize a month.
type FinalizeRequest struct {
	FinalizedBy string `json:"finalized_by" validate:"required"`
	Notes       string `json:"notes"`
}

// SubmitRequest is the request to mark a finalized month as submitted.
type SubmitRequest struct {
	SubmittedTo string `json:"submitted_to" validate:"required"`
}

// =============================================================================
// ADVANCE PAYMENT TYPES
// =============================================================================

// AdvancePaymentDTO represents an advance payment in API responses.
type AdvancePaymentDTO struct {
	ID              string `json:"id"`
	VendorID        string `json:"vendor_id"`
	Description     string `json:"description,omitempty"`
	Amount          string `json:"amount"`
	PaymentTypeID   string `json:"payment_type_id"`
	PaymentDate     string `json:"payment_date"`
	Reference       string `json:"reference,omitempty"`
	ReportingMonth  string `json:"reporting_month"`
	LinkedInvoiceID string `json:"linked_invoice_id,omitempty"`
	LinkedAt        string `json:"linked_at,omitempty"`
	CreatedAt       string `json:"created_at,omitempty"`
}

// CreateAdvancePaymentRequest is the request to record an advance payment.
type CreateAdvancePaymentRequest struct {
	VendorID       string `json:"vendor_id" validate:"required"`
	Description    string `json:"description"`
	Amount         string `json:"amount" validate:"required"`
	PaymentTypeID  string `json:"payment_type_id" validate:"required"`
	PaymentDate    string `json:"payment_date" validate:"required"`
	Reference      string `json:"reference"`
	ReportingMonth string `json:"reporting_month" validate:"required"`
}

// LinkAdvanceRequest names the invoice an advance payment settles.
type LinkAdvanceRequest struct {
	InvoiceID string `json:"invoice_id" validate:"required"`
}

// AdvanceListResponse is one page of advance payments.
type AdvanceListResponse struct {
	Items   []AdvancePaymentDTO `json:"items"`
	Total   int                 `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// =============================================================================
// LEDGER RECORD TYPES (seeding endpoints)
// =============================================================================

// CreateVendorRequest registers a vendor.
type CreateVendorRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// CreatePaymentTypeRequest registers a payment type.
type CreatePaymentTypeRequest struct {
	ID   string `json:"id" validate:"required"`
	Name string `json:"name" validate:"required"`
}

// CreateInvoiceRequest records an invoice fact.
type CreateInvoiceRequest struct {
	ID            string `json:"id"`
	Number        string `json:"number" validate:"required"`
	VendorID      string `json:"vendor_id" validate:"required"`
	InvoiceDate   string `json:"invoice_date" validate:"required"`
	EnteredAt     string `json:"entered_at"`
	Amount        string `json:"amount" validate:"required"`
	PayableAmount string `json:"payable_amount" validate:"required"`
	Currency      string `json:"currency"`
}

// CreatePaymentRequest records a payment against an invoice.
type CreatePaymentRequest struct {
	ID            string `json:"id"`
	InvoiceID     string `json:"invoice_id" validate:"required"`
	Amount        string `json:"amount" validate:"required"`
	PaymentDate   string `json:"payment_date" validate:"required"`
	Reference     string `json:"reference"`
	PaymentTypeID string `json:"payment_type_id" validate:"required"`
}

// CreateCreditNoteRequest records a credit note. Amount must be negative.
type CreateCreditNoteRequest struct {
	ID          string `json:"id"`
	Number      string `json:"number" validate:"required"`
	InvoiceID   string `json:"invoice_id" validate:"required"`
	Amount      string `json:"amount" validate:"required"`
	TDSReversal string `json:"tds_reversal"`
	NoteDate    string `json:"note_date" validate:"required"`
}

// =============================================================================
// ERROR RESPONSE
// =============================================================================

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toAdvanceDTO(a ledger.AdvancePayment) AdvancePaymentDTO {
	dto := AdvancePaymentDTO{
		ID:             string(a.ID),
		VendorID:       string(a.VendorID),
		Description:    a.Description,
		Amount:         a.Amount.String(),
		PaymentTypeID:  string(a.PaymentTypeID),
		PaymentDate:    a.Date.Format("2006-01-02"),
		Reference:      a.Reference,
		ReportingMonth: a.ReportingMonth.Key(),
	}
	if !a.CreatedAt.IsZero() {
		dto.CreatedAt = a.CreatedAt.Format(time.RFC3339)
	}
	if a.LinkedInvoiceID != nil {
		dto.LinkedInvoiceID = string(*a.LinkedInvoiceID)
	}
	if a.LinkedAt != nil {
		dto.LinkedAt = a.LinkedAt.Format(time.RFC3339)
	}
	return dto
}

func toPeriodDTO(p *report.ReportPeriod, m ledger.Month) PeriodDTO {
	dto := PeriodDTO{
		Month:  m.Key(),
		Status: string(report.PeriodDraft),
	}
	if p == nil {
		return dto
	}
	dto.Status = string(p.Status)
	dto.FinalizedBy = p.FinalizedBy
	dto.SubmittedTo = p.SubmittedTo
	dto.Notes = p.Notes
	if p.FinalizedAt != nil {
		dto.FinalizedAt = p.FinalizedAt.Format(time.RFC3339)
	}
	if p.SubmittedAt != nil {
		dto.SubmittedAt = p.SubmittedAt.Format(time.RFC3339)
	}
	return dto
}
