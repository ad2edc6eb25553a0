/*
Package sqlite provides a SQLite-backed implementation of the storage interfaces.

PURPOSE:
  Implements all persistence interfaces (ledger.Reader, ledger.AdvanceStore,
  report.PeriodStore) using SQLite. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  vendors, payment_types:  Master data lookups
  invoices:                Invoice facts (amount, payable amount, dates)
  payments:                Payments recorded against invoices
  credit_notes:            Negative adjustments against invoices
  advance_payments:        Advances, with optional one-to-one invoice link
  report_periods:          One row per (year, month) with lifecycle status
                           and the frozen snapshot blob

INVARIANT ENFORCEMENT:
  - idx_advance_linked_invoice: UNIQUE partial index on linked_invoice_id.
    An invoice can be the link target of at most one advance payment; the
    database enforces this, not just the application.
  - report_periods.status CHECK constraint keeps the enum closed.
  - Lifecycle transitions and link/unlink are conditional UPDATEs guarded
    on the prior state. A guard matching zero rows means the caller lost
    a race; nothing was written.

MONEY:
  Amounts are stored as decimal strings and summed in Go with
  shopspring/decimal. SQLite floats never touch a money value.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. In production with PostgreSQL,
  database-level concurrency control handles this instead.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/reports.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - report/workflow.go: The state machine driving the conditional updates
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/finlane/invoice-engine/ledger"
	"github.com/finlane/invoice-engine/report"
)

const dateFormat = "2006-01-02"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS vendors (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payment_types (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL UNIQUE,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		invoice_date TEXT NOT NULL,
		entered_at TEXT NOT NULL,
		amount TEXT NOT NULL,
		payable_amount TEXT NOT NULL,
		currency TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_date ON invoices(invoice_date);
	CREATE INDEX IF NOT EXISTS idx_invoices_entered ON invoices(entered_at);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		amount TEXT NOT NULL,
		payment_date TEXT NOT NULL,
		reference TEXT,
		payment_type_id TEXT NOT NULL REFERENCES payment_types(id),
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_date ON payments(payment_date);
	CREATE INDEX IF NOT EXISTS idx_payments_invoice ON payments(invoice_id, payment_date);

	CREATE TABLE IF NOT EXISTS credit_notes (
		id TEXT PRIMARY KEY,
		number TEXT NOT NULL,
		invoice_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		tds_reversal TEXT NOT NULL DEFAULT '0',
		note_date TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_notes_date ON credit_notes(note_date);
	CREATE INDEX IF NOT EXISTS idx_credit_notes_invoice ON credit_notes(invoice_id);

	CREATE TABLE IF NOT EXISTS advance_payments (
		id TEXT PRIMARY KEY,
		vendor_id TEXT NOT NULL REFERENCES vendors(id),
		description TEXT,
		amount TEXT NOT NULL,
		payment_type_id TEXT NOT NULL REFERENCES payment_types(id),
		payment_date TEXT NOT NULL,
		reference TEXT,
		reporting_year INTEGER NOT NULL,
		reporting_month INTEGER NOT NULL,
		linked_invoice_id TEXT,
		linked_at TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_advance_reporting
		ON advance_payments(reporting_year, reporting_month);

	-- CRITICAL: an invoice can be claimed by at most one advance payment.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_advance_linked_invoice
		ON advance_payments(linked_invoice_id)
		WHERE linked_invoice_id IS NOT NULL;

	CREATE TABLE IF NOT EXISTS report_periods (
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'draft'
			CHECK (status IN ('draft', 'finalized', 'submitted')),
		finalized_at TEXT,
		finalized_by TEXT,
		submitted_at TEXT,
		submitted_to TEXT,
		notes TEXT,
		snapshot_json TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (year, month)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// MASTER DATA
// =============================================================================

// SaveVendor inserts or updates a vendor.
func (s *Store) SaveVendor(ctx context.Context, v ledger.Vendor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO vendors (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, v.ID, v.Name, nowRFC3339())
	return err
}

// SavePaymentType inserts or updates a payment type.
func (s *Store) SavePaymentType(ctx context.Context, pt ledger.PaymentType) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payment_types (id, name, created_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name
	`
	_, err := s.db.ExecContext(ctx, query, pt.ID, pt.Name, nowRFC3339())
	return err
}

// Vendors returns all vendors keyed by id.
func (s *Store) Vendors(ctx context.Context) (map[ledger.VendorID]ledger.Vendor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM vendors")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[ledger.VendorID]ledger.Vendor)
	for rows.Next() {
		var v ledger.Vendor
		if err := rows.Scan(&v.ID, &v.Name); err != nil {
			return nil, err
		}
		out[v.ID] = v
	}
	return out, rows.Err()
}

// PaymentTypes returns all payment types keyed by id.
func (s *Store) PaymentTypes(ctx context.Context) (map[ledger.PaymentTypeID]ledger.PaymentType, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM payment_types")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[ledger.PaymentTypeID]ledger.PaymentType)
	for rows.Next() {
		var pt ledger.PaymentType
		if err := rows.Scan(&pt.ID, &pt.Name); err != nil {
			return nil, err
		}
		out[pt.ID] = pt
	}
	return out, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

const invoiceColumns = `id, number, vendor_id, invoice_date, entered_at, amount, payable_amount, currency`

// SaveInvoice inserts or updates an invoice.
func (s *Store) SaveInvoice(ctx context.Context, inv ledger.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO invoices (id, number, vendor_id, invoice_date, entered_at, amount, payable_amount, currency, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			number = excluded.number,
			vendor_id = excluded.vendor_id,
			invoice_date = excluded.invoice_date,
			entered_at = excluded.entered_at,
			amount = excluded.amount,
			payable_amount = excluded.payable_amount,
			currency = excluded.currency
	`
	_, err := s.db.ExecContext(ctx, query,
		inv.ID, inv.Number, inv.VendorID,
		inv.Date.Format(dateFormat),
		inv.EnteredAt.UTC().Format(time.RFC3339),
		inv.Amount.String(), inv.PayableAmount.String(),
		inv.Currency, nowRFC3339(),
	)
	return err
}

// Invoice returns an invoice by id, or nil if it does not exist.
func (s *Store) Invoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+invoiceColumns+" FROM invoices WHERE id = ?", id)
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

// InvoicesDated returns invoices dated within the month.
func (s *Store) InvoicesDated(ctx context.Context, m ledger.Month) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE invoice_date >= ? AND invoice_date < ?
		ORDER BY invoice_date ASC, number ASC
	`
	return s.queryInvoices(ctx, query,
		m.Start().Format(dateFormat), m.End().Format(dateFormat))
}

// InvoicesSurfaced returns invoices dated before the month but first
// entered into the system during it.
func (s *Store) InvoicesSurfaced(ctx context.Context, m ledger.Month) ([]ledger.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + invoiceColumns + ` FROM invoices
		WHERE invoice_date < ?
		  AND entered_at >= ? AND entered_at < ?
		ORDER BY invoice_date ASC, number ASC
	`
	return s.queryInvoices(ctx, query,
		m.Start().Format(dateFormat),
		m.Start().UTC().Format(time.RFC3339), m.End().UTC().Format(time.RFC3339))
}

func (s *Store) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.Invoice, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var invoices []ledger.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanInvoice(row scanner) (ledger.Invoice, error) {
	var (
		inv             ledger.Invoice
		invoiceDate     string
		enteredAt       string
		amount, payable string
	)
	err := row.Scan(&inv.ID, &inv.Number, &inv.VendorID, &invoiceDate, &enteredAt,
		&amount, &payable, &inv.Currency)
	if err != nil {
		return inv, err
	}

	if inv.Date, err = time.Parse(dateFormat, invoiceDate); err != nil {
		return inv, fmt.Errorf("invoice %s: bad invoice_date %q: %w", inv.ID, invoiceDate, err)
	}
	if inv.EnteredAt, err = time.Parse(time.RFC3339, enteredAt); err != nil {
		return inv, fmt.Errorf("invoice %s: bad entered_at %q: %w", inv.ID, enteredAt, err)
	}
	if inv.Amount, err = parseDecimal(amount); err != nil {
		return inv, fmt.Errorf("invoice %s: bad amount %q: %w", inv.ID, amount, err)
	}
	if inv.PayableAmount, err = parseDecimal(payable); err != nil {
		return inv, fmt.Errorf("invoice %s: bad payable_amount %q: %w", inv.ID, payable, err)
	}
	return inv, nil
}

// =============================================================================
// PAYMENTS
// =============================================================================

// SavePayment inserts a payment.
func (s *Store) SavePayment(ctx context.Context, p ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO payments (id, invoice_id, amount, payment_date, reference, payment_type_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		p.ID, p.InvoiceID, p.Amount.String(),
		p.Date.Format(dateFormat), p.Reference, p.PaymentTypeID, nowRFC3339(),
	)
	return err
}

// PaymentsDated returns payments dated within the month.
func (s *Store) PaymentsDated(ctx context.Context, m ledger.Month) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, invoice_id, amount, payment_date, reference, payment_type_id
		FROM payments
		WHERE payment_date >= ? AND payment_date < ?
		ORDER BY payment_date ASC, id ASC
	`
	rows, err := s.db.QueryContext(ctx, query,
		m.Start().Format(dateFormat), m.End().Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []ledger.Payment
	for rows.Next() {
		var (
			p         ledger.Payment
			payDate   string
			amount    string
			reference sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.InvoiceID, &amount, &payDate, &reference, &p.PaymentTypeID); err != nil {
			return nil, err
		}
		if p.Date, err = time.Parse(dateFormat, payDate); err != nil {
			return nil, fmt.Errorf("payment %s: bad payment_date %q: %w", p.ID, payDate, err)
		}
		if p.Amount, err = parseDecimal(amount); err != nil {
			return nil, fmt.Errorf("payment %s: bad amount %q: %w", p.ID, amount, err)
		}
		p.Reference = reference.String
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// PaidBefore sums payments on an invoice ordered before the given one
// by (date, payment id). Decimal arithmetic happens in Go, not SQL.
func (s *Store) PaidBefore(ctx context.Context, id ledger.InvoiceID, p ledger.Payment) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT amount FROM payments
		WHERE invoice_id = ?
		  AND (payment_date < ? OR (payment_date = ? AND id < ?))
	`
	date := p.Date.Format(dateFormat)
	rows, err := s.db.QueryContext(ctx, query, id, date, date, p.ID)
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var amount string
		if err := rows.Scan(&amount); err != nil {
			return decimal.Zero, err
		}
		d, err := parseDecimal(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invoice %s: bad payment amount %q: %w", id, amount, err)
		}
		total = total.Add(d)
	}
	return total, rows.Err()
}

// LastPaymentType returns the payment type of the most recent payment
// on an invoice, or nil if the invoice has no payments.
func (s *Store) LastPaymentType(ctx context.Context, id ledger.InvoiceID) (*ledger.PaymentTypeID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT payment_type_id FROM payments
		WHERE invoice_id = ?
		ORDER BY payment_date DESC, id DESC
		LIMIT 1
	`
	var typeID ledger.PaymentTypeID
	err := s.db.QueryRowContext(ctx, query, id).Scan(&typeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &typeID, nil
}

// =============================================================================
// CREDIT NOTES
// =============================================================================

// SaveCreditNote inserts a credit note.
func (s *Store) SaveCreditNote(ctx context.Context, n ledger.CreditNote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO credit_notes (id, number, invoice_id, amount, tds_reversal, note_date, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.Number, n.InvoiceID, n.Amount.String(),
		n.TDSReversal.String(), n.Date.Format(dateFormat), nowRFC3339(),
	)
	return err
}

// CreditNotesDated returns credit notes dated within the month.
func (s *Store) CreditNotesDated(ctx context.Context, m ledger.Month) ([]ledger.CreditNote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, number, invoice_id, amount, tds_reversal, note_date
		FROM credit_notes
		WHERE note_date >= ? AND note_date < ?
		ORDER BY note_date ASC, number ASC
	`
	rows, err := s.db.QueryContext(ctx, query,
		m.Start().Format(dateFormat), m.End().Format(dateFormat))
	if err != nil {
		return nil, fmt.Errorf("failed to query credit notes: %w", err)
	}
	defer rows.Close()

	var notes []ledger.CreditNote
	for rows.Next() {
		var (
			n                   ledger.CreditNote
			noteDate            string
			amount, tdsReversal string
		)
		if err := rows.Scan(&n.ID, &n.Number, &n.InvoiceID, &amount, &tdsReversal, &noteDate); err != nil {
			return nil, err
		}
		if n.Date, err = time.Parse(dateFormat, noteDate); err != nil {
			return nil, fmt.Errorf("credit note %s: bad note_date %q: %w", n.ID, noteDate, err)
		}
		if n.Amount, err = parseDecimal(amount); err != nil {
			return nil, fmt.Errorf("credit note %s: bad amount %q: %w", n.ID, amount, err)
		}
		if n.TDSReversal, err = parseDecimal(tdsReversal); err != nil {
			return nil, fmt.Errorf("credit note %s: bad tds_reversal %q: %w", n.ID, tdsReversal, err)
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// CreditNoteCount returns how many credit notes reference an invoice.
func (s *Store) CreditNoteCount(ctx context.Context, id ledger.InvoiceID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM credit_notes WHERE invoice_id = ?", id).Scan(&count)
	return count, err
}

// =============================================================================
// ADVANCE PAYMENTS
// =============================================================================

const advanceColumns = `id, vendor_id, description, amount, payment_type_id, payment_date,
	reference, reporting_year, reporting_month, linked_invoice_id, linked_at, created_at`

// CreateAdvancePayment inserts a new advance payment.
func (s *Store) CreateAdvancePayment(ctx context.Context, a ledger.AdvancePayment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		INSERT INTO advance_payments
		(id, vendor_id, description, amount, payment_type_id, payment_date,
		 reference, reporting_year, reporting_month, linked_invoice_id, linked_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL, NULL, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		a.ID, a.VendorID, a.Description, a.Amount.String(), a.PaymentTypeID,
		a.Date.Format(dateFormat), a.Reference,
		a.ReportingMonth.Year, int(a.ReportingMonth.Month),
		a.CreatedAt.UTC().Format(time.RFC3339),
	)
	return err
}

// AdvancePayment returns an advance payment by id, or nil if absent.
func (s *Store) AdvancePayment(ctx context.Context, id ledger.AdvancePaymentID) (*ledger.AdvancePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+advanceColumns+" FROM advance_payments WHERE id = ?", id)
	a, err := scanAdvance(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// AdvancePaymentsFor returns advances attributed to the month via their
// reporting month.
func (s *Store) AdvancePaymentsFor(ctx context.Context, m ledger.Month) ([]ledger.AdvancePayment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT ` + advanceColumns + ` FROM advance_payments
		WHERE reporting_year = ? AND reporting_month = ?
		ORDER BY payment_date ASC, id ASC
	`
	return s.queryAdvances(ctx, query, m.Year, int(m.Month))
}

// ListAdvancePayments applies the filter and returns one page plus the
// unpaged total.
func (s *Store) ListAdvancePayments(ctx context.Context, f ledger.AdvanceFilter, page, perPage int) ([]ledger.AdvancePayment, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := []string{"1 = 1"}
	var args []any

	if f.VendorID != nil {
		where = append(where, "vendor_id = ?")
		args = append(args, *f.VendorID)
	}
	if f.PaymentTypeID != nil {
		where = append(where, "payment_type_id = ?")
		args = append(args, *f.PaymentTypeID)
	}
	if f.ReportingMonth != nil {
		where = append(where, "reporting_year = ? AND reporting_month = ?")
		args = append(args, f.ReportingMonth.Year, int(f.ReportingMonth.Month))
	}
	if f.Linked != nil {
		if *f.Linked {
			where = append(where, "linked_invoice_id IS NOT NULL")
		} else {
			where = append(where, "linked_invoice_id IS NULL")
		}
	}

	cond := strings.Join(where, " AND ")

	var total int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM advance_payments WHERE "+cond, args...).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	query := "SELECT " + advanceColumns + " FROM advance_payments WHERE " + cond +
		" ORDER BY payment_date DESC, id ASC LIMIT ? OFFSET ?"
	args = append(args, perPage, (page-1)*perPage)

	advances, err := s.queryAdvances(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	return advances, total, nil
}

// LinkAdvance sets the invoice link. Guarded both ways: the conditional
// UPDATE fails when the advance is already linked, and the unique index
// fails when the invoice is already claimed by another advance.
func (s *Store) LinkAdvance(ctx context.Context, id ledger.AdvancePaymentID, invoiceID ledger.InvoiceID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE advance_payments
		SET linked_invoice_id = ?, linked_at = ?
		WHERE id = ? AND linked_invoice_id IS NULL
	`
	res, err := s.db.ExecContext(ctx, query, invoiceID, at.UTC().Format(time.RFC3339), id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return report.ErrInvoiceClaimed
		}
		return fmt.Errorf("failed to link advance payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Guard failed: either the row is gone or it is already linked.
		exists, err := s.advanceExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return report.ErrAdvanceNotFound
		}
		return report.ErrAlreadyLinked
	}
	return nil
}

// UnlinkAdvance clears both link fields together.
func (s *Store) UnlinkAdvance(ctx context.Context, id ledger.AdvancePaymentID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE advance_payments
		SET linked_invoice_id = NULL, linked_at = NULL
		WHERE id = ? AND linked_invoice_id IS NOT NULL
	`
	res, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to unlink advance payment: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		exists, err := s.advanceExists(ctx, id)
		if err != nil {
			return err
		}
		if !exists {
			return report.ErrAdvanceNotFound
		}
		return report.ErrNotLinked
	}
	return nil
}

func (s *Store) advanceExists(ctx context.Context, id ledger.AdvancePaymentID) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM advance_payments WHERE id = ?", id).Scan(&count)
	return count > 0, err
}

func (s *Store) queryAdvances(ctx context.Context, query string, args ...any) ([]ledger.AdvancePayment, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query advance payments: %w", err)
	}
	defer rows.Close()

	var advances []ledger.AdvancePayment
	for rows.Next() {
		a, err := scanAdvance(rows)
		if err != nil {
			return nil, err
		}
		advances = append(advances, a)
	}
	return advances, rows.Err()
}

func scanAdvance(row scanner) (ledger.AdvancePayment, error) {
	var (
		a               ledger.AdvancePayment
		description     sql.NullString
		reference       sql.NullString
		amount          string
		payDate         string
		reportingYear   int
		reportingMonth  int
		linkedInvoiceID sql.NullString
		linkedAt        sql.NullString
		createdAt       string
	)
	err := row.Scan(&a.ID, &a.VendorID, &description, &amount, &a.PaymentTypeID,
		&payDate, &reference, &reportingYear, &reportingMonth,
		&linkedInvoiceID, &linkedAt, &createdAt)
	if err != nil {
		return a, err
	}

	a.Description = description.String
	a.Reference = reference.String
	if a.Amount, err = parseDecimal(amount); err != nil {
		return a, fmt.Errorf("advance payment %s: bad amount %q: %w", a.ID, amount, err)
	}
	if a.Date, err = time.Parse(dateFormat, payDate); err != nil {
		return a, fmt.Errorf("advance payment %s: bad payment_date %q: %w", a.ID, payDate, err)
	}
	a.ReportingMonth = ledger.Month{Year: reportingYear, Month: time.Month(reportingMonth)}
	if a.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return a, fmt.Errorf("advance payment %s: bad created_at %q: %w", a.ID, createdAt, err)
	}

	if linkedInvoiceID.Valid {
		invID := ledger.InvoiceID(linkedInvoiceID.String)
		a.LinkedInvoiceID = &invID
	}
	if linkedAt.Valid {
		t, err := time.Parse(time.RFC3339, linkedAt.String)
		if err != nil {
			return a, fmt.Errorf("advance payment %s: bad linked_at %q: %w", a.ID, linkedAt.String, err)
		}
		a.LinkedAt = &t
	}
	return a, nil
}

// =============================================================================
// REPORT PERIODS
// =============================================================================

// Period returns the period row for a month, or nil if none exists yet.
func (s *Store) Period(ctx context.Context, m ledger.Month) (*report.ReportPeriod, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT status, finalized_at, finalized_by, submitted_at, submitted_to, notes, snapshot_json
		FROM report_periods
		WHERE year = ? AND month = ?
	`
	var (
		p                        report.ReportPeriod
		finalizedAt, submittedAt sql.NullString
		finalizedBy, submittedTo sql.NullString
		notes, snapshotJSON      sql.NullString
	)
	err := s.db.QueryRowContext(ctx, query, m.Year, int(m.Month)).Scan(
		&p.Status, &finalizedAt, &finalizedBy, &submittedAt, &submittedTo, &notes, &snapshotJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	p.Month = m
	p.FinalizedBy = finalizedBy.String
	p.SubmittedTo = submittedTo.String
	p.Notes = notes.String
	if finalizedAt.Valid {
		t, err := time.Parse(time.RFC3339, finalizedAt.String)
		if err != nil {
			return nil, fmt.Errorf("period %s: bad finalized_at %q: %w", m.Key(), finalizedAt.String, err)
		}
		p.FinalizedAt = &t
	}
	if submittedAt.Valid {
		t, err := time.Parse(time.RFC3339, submittedAt.String)
		if err != nil {
			return nil, fmt.Errorf("period %s: bad submitted_at %q: %w", m.Key(), submittedAt.String, err)
		}
		p.SubmittedAt = &t
	}
	if snapshotJSON.Valid && snapshotJSON.String != "" {
		var snap report.Snapshot
		if err := json.Unmarshal([]byte(snapshotJSON.String), &snap); err != nil {
			return nil, fmt.Errorf("failed to decode snapshot for %s: %w", m.Key(), err)
		}
		p.Snapshot = &snap
	}
	return &p, nil
}

// FinalizePeriod moves draft -> finalized, writing the snapshot in the
// same guarded update. Creates the draft row lazily. Returns false when
// the period already left draft.
func (s *Store) FinalizePeriod(ctx context.Context, m ledger.Month, snap report.Snapshot, by, notes string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO report_periods (year, month, status, created_at)
		VALUES (?, ?, 'draft', ?)
		ON CONFLICT(year, month) DO NOTHING
	`, m.Year, int(m.Month), nowRFC3339())
	if err != nil {
		return false, err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE report_periods
		SET status = 'finalized',
		    snapshot_json = ?,
		    finalized_at = ?,
		    finalized_by = ?,
		    notes = ?
		WHERE year = ? AND month = ? AND status = 'draft'
	`, string(snapshotJSON), at.UTC().Format(time.RFC3339), by, notes, m.Year, int(m.Month))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	return true, tx.Commit()
}

// SubmitPeriod moves finalized -> submitted without touching the
// snapshot. Returns false when the period was not finalized.
func (s *Store) SubmitPeriod(ctx context.Context, m ledger.Month, to string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `
		UPDATE report_periods
		SET status = 'submitted',
		    submitted_at = ?,
		    submitted_to = ?
		WHERE year = ? AND month = ? AND status = 'finalized'
	`, at.UTC().Format(time.RFC3339), to, m.Year, int(m.Month))
	if err != nil {
		return false, err
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"report_periods", "advance_payments", "credit_notes",
		"payments", "invoices", "payment_types", "vendors",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nowRFC3339() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseDecimal surfaces malformed amount columns instead of folding them
// into zero. Rows written through the store always parse; a hand-edited
// database must fail loudly rather than corrupt totals.
func parseDecimal(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
