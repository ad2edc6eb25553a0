/*
handlers.go - HTTP API handlers for the report reconciliation engine

PURPOSE:
  Exposes the reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Reports:
    GET    /api/reports/{year}                     Consolidated year report
    GET    /api/reports/{year}/{month}             Monthly report (?view=live|submitted)
    GET    /api/reports/{year}/{month}/period      Lifecycle state
    POST   /api/reports/{year}/{month}/finalize    Freeze snapshot, draft -> finalized
    POST   /api/reports/{year}/{month}/submit      finalized -> submitted

  Advance payments:
    GET    /api/advance-payments                   List with filters + pagination
    POST   /api/advance-payments                   Record an advance payment
    POST   /api/advance-payments/{id}/link         Link to an invoice
    POST   /api/advance-payments/{id}/unlink       Remove the link

  Ledger records (data intake):
    POST   /api/vendors, /api/payment-types,
           /api/invoices, /api/payments, /api/credit-notes

ERROR HANDLING:
  Domain errors map onto HTTP statuses in one place (writeDomainError):
  - 400: Validation errors, malformed input
  - 404: Unknown record or period
  - 409: Lifecycle and linking conflicts
  - 422: Ledger facts that cannot yield a sound report
  - 500: Everything else

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
	"github.com/finlane/invoice-engine/report"
	"github.com/finlane/invoice-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store    *sqlite.Store
	Workflow *report.Workflow
	Linker   *report.Linker
	Validate *validator.Validate
	Log      zerolog.Logger
}

// NewHandler wires the engine services on top of the given store.
func NewHandler(store *sqlite.Store, log zerolog.Logger) *Handler {
	gen := report.NewGenerator(store)
	return &Handler{
		Store:    store,
		Workflow: report.NewWorkflow(gen, store),
		Linker:   report.NewLinker(store, store),
		Validate: validator.New(),
		Log:      log,
	}
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// GetMonthlyReport resolves one month in the requested view.
func (h *Handler) GetMonthlyReport(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monthParam(w, r)
	if !ok {
		return
	}

	view, ok := viewParam(w, r)
	if !ok {
		return
	}

	data, source, err := h.Workflow.Resolve(r.Context(), m, view)
	if err != nil {
		h.writeDomainError(w, r, "Failed to resolve report", err)
		return
	}

	period, err := h.Workflow.Periods.Period(r.Context(), m)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load period", err)
		return
	}
	status := report.PeriodDraft
	if period != nil {
		status = period.Status
	}

	writeJSON(w, http.StatusOK, ReportResponse{Source: source, Status: status, Report: data})
}

// GetConsolidatedReport aggregates all twelve months of a year.
func (h *Handler) GetConsolidatedReport(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil || year <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return
	}

	view, ok := viewParam(w, r)
	if !ok {
		return
	}

	data, err := h.Workflow.Consolidated(r.Context(), year, view)
	if err != nil {
		h.writeDomainError(w, r, "Failed to build consolidated report", err)
		return
	}

	writeJSON(w, http.StatusOK, data)
}

// GetPeriod returns the lifecycle state of a month.
func (h *Handler) GetPeriod(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monthParam(w, r)
	if !ok {
		return
	}

	period, err := h.Workflow.Periods.Period(r.Context(), m)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load period", err)
		return
	}

	writeJSON(w, http.StatusOK, toPeriodDTO(period, m))
}

// FinalizePeriod freezes the live report into a snapshot.
func (h *Handler) FinalizePeriod(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monthParam(w, r)
	if !ok {
		return
	}

	var req FinalizeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	period, err := h.Workflow.Finalize(r.Context(), m, req.FinalizedBy, req.Notes)
	if err != nil {
		h.writeDomainError(w, r, "Failed to finalize period", err)
		return
	}

	h.Log.Info().Str("month", m.Key()).Str("by", req.FinalizedBy).Msg("period finalized")
	writeJSON(w, http.StatusOK, toPeriodDTO(period, m))
}

// SubmitPeriod marks a finalized month as handed to an external party.
func (h *Handler) SubmitPeriod(w http.ResponseWriter, r *http.Request) {
	m, ok := h.monthParam(w, r)
	if !ok {
		return
	}

	var req SubmitRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	period, err := h.Workflow.Submit(r.Context(), m, req.SubmittedTo)
	if err != nil {
		h.writeDomainError(w, r, "Failed to submit period", err)
		return
	}

	h.Log.Info().Str("month", m.Key()).Str("to", req.SubmittedTo).Msg("period submitted")
	writeJSON(w, http.StatusOK, toPeriodDTO(period, m))
}

// =============================================================================
// ADVANCE PAYMENT HANDLERS
// =============================================================================

// ListAdvancePayments returns one filtered page of advance payments.
func (h *Handler) ListAdvancePayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f ledger.AdvanceFilter

	if v := q.Get("vendor_id"); v != "" {
		id := ledger.VendorID(v)
		f.VendorID = &id
	}
	if v := q.Get("payment_type_id"); v != "" {
		id := ledger.PaymentTypeID(v)
		f.PaymentTypeID = &id
	}
	if v := q.Get("reporting_month"); v != "" {
		m, err := parseMonthKey(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid reporting_month (use YYYY-MM)", err)
			return
		}
		f.ReportingMonth = &m
	}
	if v := q.Get("linked"); v != "" {
		linked, err := strconv.ParseBool(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid linked flag", err)
			return
		}
		f.Linked = &linked
	}

	page, _ := strconv.Atoi(q.Get("page"))
	perPage, _ := strconv.Atoi(q.Get("per_page"))
	page, perPage = report.NormalizePage(page, perPage)

	items, total, err := h.Linker.List(r.Context(), f, page, perPage)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list advance payments", err)
		return
	}

	dtos := make([]AdvancePaymentDTO, len(items))
	for i, a := range items {
		dtos[i] = toAdvanceDTO(a)
	}

	writeJSON(w, http.StatusOK, AdvanceListResponse{
		Items:   dtos,
		Total:   total,
		Page:    page,
		PerPage: perPage,
	})
}

// CreateAdvancePayment records a new, unlinked advance payment.
func (h *Handler) CreateAdvancePayment(w http.ResponseWriter, r *http.Request) {
	var req CreateAdvancePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_date format (use YYYY-MM-DD)", err)
		return
	}
	month, err := parseMonthKey(req.ReportingMonth)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid reporting_month (use YYYY-MM)", err)
		return
	}

	adv, err := h.Linker.Create(r.Context(), report.AdvancePaymentForm{
		VendorID:       ledger.VendorID(req.VendorID),
		Description:    req.Description,
		Amount:         amount,
		PaymentTypeID:  ledger.PaymentTypeID(req.PaymentTypeID),
		Date:           date,
		Reference:      req.Reference,
		ReportingMonth: month,
	})
	if err != nil {
		h.writeDomainError(w, r, "Failed to create advance payment", err)
		return
	}

	writeJSON(w, http.StatusCreated, toAdvanceDTO(*adv))
}

// LinkAdvancePayment links an advance payment to the invoice it settles.
func (h *Handler) LinkAdvancePayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.AdvancePaymentID(chi.URLParam(r, "id"))

	var req LinkAdvanceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	adv, err := h.Linker.Link(r.Context(), id, ledger.InvoiceID(req.InvoiceID))
	if err != nil {
		h.writeDomainError(w, r, "Failed to link advance payment", err)
		return
	}

	h.Log.Info().Str("advance_payment", string(id)).Str("invoice", req.InvoiceID).Msg("advance payment linked")
	writeJSON(w, http.StatusOK, toAdvanceDTO(*adv))
}

// UnlinkAdvancePayment removes an existing link.
func (h *Handler) UnlinkAdvancePayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.AdvancePaymentID(chi.URLParam(r, "id"))

	adv, err := h.Linker.Unlink(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to unlink advance payment", err)
		return
	}

	writeJSON(w, http.StatusOK, toAdvanceDTO(*adv))
}

// =============================================================================
// LEDGER RECORD HANDLERS (data intake)
// =============================================================================

// CreateVendor registers a vendor.
func (h *Handler) CreateVendor(w http.ResponseWriter, r *http.Request) {
	var req CreateVendorRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	v := ledger.Vendor{ID: ledger.VendorID(req.ID), Name: req.Name}
	if err := h.Store.SaveVendor(r.Context(), v); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save vendor", err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

// CreatePaymentType registers a payment type.
func (h *Handler) CreatePaymentType(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentTypeRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	pt := ledger.PaymentType{ID: ledger.PaymentTypeID(req.ID), Name: req.Name}
	if err := h.Store.SavePaymentType(r.Context(), pt); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save payment type", err)
		return
	}
	writeJSON(w, http.StatusCreated, pt)
}

// CreateInvoice records an invoice fact.
func (h *Handler) CreateInvoice(w http.ResponseWriter, r *http.Request) {
	var req CreateInvoiceRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.InvoiceDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid invoice_date format (use YYYY-MM-DD)", err)
		return
	}

	enteredAt := time.Now().UTC()
	if req.EnteredAt != "" {
		enteredAt, err = time.Parse(time.RFC3339, req.EnteredAt)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid entered_at format (use RFC 3339)", err)
			return
		}
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	payable, err := decimal.NewFromString(req.PayableAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payable_amount", err)
		return
	}
	if amount.IsNegative() || payable.IsNegative() {
		writeError(w, http.StatusBadRequest, "Invoice amounts must not be negative", nil)
		return
	}

	inv := ledger.Invoice{
		ID:            ledger.InvoiceID(orUUID(req.ID)),
		Number:        req.Number,
		VendorID:      ledger.VendorID(req.VendorID),
		Date:          date,
		EnteredAt:     enteredAt,
		Amount:        amount,
		PayableAmount: payable,
		Currency:      req.Currency,
	}
	if err := h.Store.SaveInvoice(r.Context(), inv); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save invoice", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(inv.ID)})
}

// CreatePayment records a payment against an invoice.
func (h *Handler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req CreatePaymentRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.PaymentDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid payment_date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Payment amount must not be negative", nil)
		return
	}

	inv, err := h.Store.Invoice(r.Context(), ledger.InvoiceID(req.InvoiceID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up invoice", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}

	p := ledger.Payment{
		ID:            ledger.PaymentID(orUUID(req.ID)),
		InvoiceID:     inv.ID,
		Amount:        amount,
		Date:          date,
		Reference:     req.Reference,
		PaymentTypeID: ledger.PaymentTypeID(req.PaymentTypeID),
	}
	if err := h.Store.SavePayment(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(p.ID)})
}

// CreateCreditNote records a credit note. The amount must be negative.
func (h *Handler) CreateCreditNote(w http.ResponseWriter, r *http.Request) {
	var req CreateCreditNoteRequest
	if !h.decodeAndValidate(w, r, &req) {
		return
	}

	date, err := time.Parse("2006-01-02", req.NoteDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid note_date format (use YYYY-MM-DD)", err)
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}
	if !amount.IsNegative() {
		writeError(w, http.StatusBadRequest, "Credit note amount must be negative", nil)
		return
	}

	tds := decimal.Zero
	if req.TDSReversal != "" {
		tds, err = decimal.NewFromString(req.TDSReversal)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid tds_reversal", err)
			return
		}
	}

	inv, err := h.Store.Invoice(r.Context(), ledger.InvoiceID(req.InvoiceID))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to look up invoice", err)
		return
	}
	if inv == nil {
		writeError(w, http.StatusNotFound, "Invoice not found", nil)
		return
	}

	n := ledger.CreditNote{
		ID:          ledger.CreditNoteID(orUUID(req.ID)),
		Number:      req.Number,
		InvoiceID:   inv.ID,
		Amount:      amount,
		TDSReversal: tds,
		Date:        date,
	}
	if err := h.Store.SaveCreditNote(r.Context(), n); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save credit note", err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": string(n.ID)})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) monthParam(w http.ResponseWriter, r *http.Request) (ledger.Month, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return ledger.Month{}, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return ledger.Month{}, false
	}
	m, err := ledger.NewMonth(year, month)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month", err)
		return ledger.Month{}, false
	}
	return m, true
}

func viewParam(w http.ResponseWriter, r *http.Request) (report.View, bool) {
	switch v := r.URL.Query().Get("view"); v {
	case "", string(report.ViewLive):
		return report.ViewLive, true
	case string(report.ViewSubmitted), string(report.ViewReported):
		return report.ViewSubmitted, true
	default:
		writeError(w, http.StatusBadRequest, "Invalid view (use live, submitted or reported)", nil)
		return "", false
	}
}

func parseMonthKey(s string) (ledger.Month, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return ledger.Month{}, err
	}
	return ledger.NewMonth(t.Year(), int(t.Month()))
}

func orUUID(id string) string {
	if id != "" {
		return id
	}
	return uuid.NewString()
}

// decodeAndValidate decodes the body and runs the declarative rules.
// Writes the 400 itself; callers just return on false.
func (h *Handler) decodeAndValidate(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.Validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeDomainError maps engine errors onto HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	status := http.StatusInternalServerError
	switch {
	case report.IsValidation(err):
		status = http.StatusBadRequest
	case report.IsConflict(err):
		status = http.StatusConflict
	// Data errors may carry a not-found cause (dangling credit note), so
	// they must be classified before the bare not-found check.
	case report.IsDataError(err):
		status = http.StatusUnprocessableEntity
	case report.IsNotFound(err):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		h.Log.Error().Err(err).Str("path", r.URL.Path).Msg(message)
	}
	writeError(w, status, message, err)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
