/*
Package sqlite provides SQLite-backed implementations of the storage
interfaces.

PURPOSE:
  Implements finance.MasterStore and finance.TxIncidentStore using SQLite.
  Each incident gets its OWN database file; the shared reference data lives in
  a separate master file. Tenant isolation is physical - there is no incident
  column anywhere, so one incident's rows cannot leak into another's queries.

APPEND-ONLY ENFORCEMENT:
  cost_entries, approval_records, and receipts have INSERT statements only.
  No UPDATE, no DELETE. Corrections to the cost ledger are reversing entries.

WAL MODE:
  Files are opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time, which serializes mutations per incident
  - Better crash recovery

CONCURRENCY:
  A sync.RWMutex per store keeps in-process access orderly on top of the
  file-level locking.

SEE ALSO:
  - finance/store.go: Interface definitions
  - router.go: Opens and caches one store per incident
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/warp/incident-finance/finance"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// IncidentStore implements finance.TxIncidentStore on one SQLite file.
type IncidentStore struct {
	db *sql.DB
	mu sync.RWMutex
}

// OpenIncident opens (creating schema if absent) an incident store.
// Use ":memory:" for an in-memory database.
func OpenIncident(dbPath string) (*IncidentStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows a single writer; one pooled connection also keeps
	// ":memory:" databases coherent.
	db.SetMaxOpenConns(1)

	store := &IncidentStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *IncidentStore) Close() error {
	return s.db.Close()
}

func (s *IncidentStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		person_id TEXT NOT NULL,
		role TEXT,
		operational_period TEXT,
		date TEXT NOT NULL,
		hours_worked TEXT NOT NULL,
		overtime_hours TEXT NOT NULL,
		rate_ref TEXT,
		equipment_ref TEXT,
		status TEXT NOT NULL,
		approved_by TEXT,
		approved_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_date ON time_entries(date);
	CREATE INDEX IF NOT EXISTS idx_time_entries_status ON time_entries(status);

	CREATE TABLE IF NOT EXISTS requisitions (
		id TEXT PRIMARY KEY,
		req_number TEXT NOT NULL UNIQUE,
		requestor_id TEXT NOT NULL,
		date TEXT NOT NULL,
		description TEXT,
		amount_estimated TEXT NOT NULL,
		chain_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchase_orders (
		id TEXT PRIMARY KEY,
		po_number TEXT NOT NULL UNIQUE,
		vendor_id TEXT NOT NULL,
		requisition_id TEXT NOT NULL UNIQUE,
		date TEXT NOT NULL,
		amount_authorized TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only audit of goods/services received.
	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		po_id TEXT NOT NULL,
		date TEXT NOT NULL,
		quantity TEXT NOT NULL,
		amount TEXT NOT NULL,
		notes TEXT,
		final INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_po ON receipts(po_id);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		po_id TEXT NOT NULL,
		vendor_invoice_number TEXT NOT NULL,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_po ON invoices(po_id);

	CREATE TABLE IF NOT EXISTS claims (
		id TEXT PRIMARY KEY,
		claim_type TEXT NOT NULL,
		claimant_id TEXT NOT NULL,
		date_reported TEXT NOT NULL,
		description TEXT,
		amount_estimated TEXT NOT NULL,
		chain_ref TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS budgets (
		id TEXT PRIMARY KEY,
		account_id TEXT NOT NULL,
		amount_budgeted TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Append-only approval audit trail.
	CREATE TABLE IF NOT EXISTS approval_records (
		id TEXT PRIMARY KEY,
		entity TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		step TEXT NOT NULL,
		actor_id TEXT NOT NULL,
		action TEXT NOT NULL,
		comments TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_approvals_entity ON approval_records(entity, entity_id);

	-- Append-only cost ledger.
	CREATE TABLE IF NOT EXISTS cost_entries (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		account_id TEXT NOT NULL,
		description TEXT,
		amount TEXT NOT NULL,
		source TEXT NOT NULL,
		ref_table TEXT,
		ref_id TEXT,
		tag TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_entries_date ON cost_entries(date);
	CREATE INDEX IF NOT EXISTS idx_cost_entries_ref ON cost_entries(ref_table, ref_id);

	-- One summary per date. Immutable after finalization.
	CREATE TABLE IF NOT EXISTS daily_summaries (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL UNIQUE,
		total_labor TEXT NOT NULL,
		total_equipment TEXT NOT NULL,
		total_procurement TEXT NOT NULL,
		total_other TEXT NOT NULL,
		finalized_by TEXT NOT NULL,
		finalized_at TEXT NOT NULL,
		notes TEXT
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS (finance.TxIncidentStore)
// =============================================================================

// WithTx executes fn within a database transaction.
func (s *IncidentStore) WithTx(ctx context.Context, fn func(finance.IncidentStore) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&incidentTx{q: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// incidentTx is the transactional view handed to WithTx callbacks.
type incidentTx struct {
	q dbtx
}

func (t *incidentTx) Close() error { return nil }

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (s *IncidentStore) SaveTimeEntry(ctx context.Context, e finance.TimeEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveTimeEntry(ctx, s.db, e)
}

func (t *incidentTx) SaveTimeEntry(ctx context.Context, e finance.TimeEntry) error {
	return saveTimeEntry(ctx, t.q, e)
}

func saveTimeEntry(ctx context.Context, q dbtx, e finance.TimeEntry) error {
	query := `
		INSERT INTO time_entries
		(id, person_id, role, operational_period, date, hours_worked, overtime_hours,
		 rate_ref, equipment_ref, status, approved_by, approved_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			operational_period = excluded.operational_period,
			hours_worked = excluded.hours_worked,
			overtime_hours = excluded.overtime_hours,
			rate_ref = excluded.rate_ref,
			equipment_ref = excluded.equipment_ref,
			status = excluded.status,
			approved_by = excluded.approved_by,
			approved_at = excluded.approved_at,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		e.ID, e.PersonID, e.Role, e.OperationalPeriod, e.Date.String(),
		e.HoursWorked.String(), e.OvertimeHours.String(),
		e.RateRef, e.EquipmentRef, e.Status,
		nullString(e.ApprovedBy), nullTime(e.ApprovedAt),
		e.CreatedAt.Format(time.RFC3339), e.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *IncidentStore) GetTimeEntry(ctx context.Context, id string) (*finance.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getTimeEntry(ctx, s.db, id)
}

func (t *incidentTx) GetTimeEntry(ctx context.Context, id string) (*finance.TimeEntry, error) {
	return getTimeEntry(ctx, t.q, id)
}

const timeEntryColumns = `id, person_id, role, operational_period, date, hours_worked,
	overtime_hours, rate_ref, equipment_ref, status, approved_by, approved_at,
	created_at, updated_at`

func getTimeEntry(ctx context.Context, q dbtx, id string) (*finance.TimeEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries, err := scanTimeEntries(rows)
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *IncidentStore) ListTimeEntries(ctx context.Context) ([]finance.TimeEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listTimeEntries(ctx, s.db)
}

func (t *incidentTx) ListTimeEntries(ctx context.Context) ([]finance.TimeEntry, error) {
	return listTimeEntries(ctx, t.q)
}

func listTimeEntries(ctx context.Context, q dbtx) ([]finance.TimeEntry, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+timeEntryColumns+` FROM time_entries ORDER BY date ASC, created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTimeEntries(rows)
}

func scanTimeEntries(rows *sql.Rows) ([]finance.TimeEntry, error) {
	var entries []finance.TimeEntry
	for rows.Next() {
		var (
			e                    finance.TimeEntry
			role, period         sql.NullString
			date, hours, ot      string
			rateRef, equipRef    sql.NullString
			approvedBy, appAt    sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&e.ID, &e.PersonID, &role, &period, &date, &hours, &ot,
			&rateRef, &equipRef, &e.Status, &approvedBy, &appAt, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan time entry: %w", err)
		}
		e.Role = role.String
		e.OperationalPeriod = period.String
		e.Date, _ = finance.ParseDate(date)
		e.HoursWorked = finance.MustDecimal(hours)
		e.OvertimeHours = finance.MustDecimal(ot)
		e.RateRef = rateRef.String
		e.EquipmentRef = equipRef.String
		e.ApprovedBy = approvedBy.String
		e.ApprovedAt = parseNullTime(appAt)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		e.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// REQUISITIONS
// =============================================================================

func (s *IncidentStore) SaveRequisition(ctx context.Context, r finance.Requisition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveRequisition(ctx, s.db, r)
}

func (t *incidentTx) SaveRequisition(ctx context.Context, r finance.Requisition) error {
	return saveRequisition(ctx, t.q, r)
}

func saveRequisition(ctx context.Context, q dbtx, r finance.Requisition) error {
	query := `
		INSERT INTO requisitions
		(id, req_number, requestor_id, date, description, amount_estimated, chain_ref,
		 status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			amount_estimated = excluded.amount_estimated,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		r.ID, r.ReqNumber, r.RequestorID, r.Date.String(), r.Description,
		r.AmountEstimated.String(), r.ChainRef, r.Status,
		r.CreatedAt.Format(time.RFC3339), r.UpdatedAt.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return &finance.ValidationError{Field: "req_number", Message: fmt.Sprintf("%q already used in this incident", r.ReqNumber)}
	}
	return err
}

const requisitionColumns = `id, req_number, requestor_id, date, description,
	amount_estimated, chain_ref, status, created_at, updated_at`

func (s *IncidentStore) GetRequisition(ctx context.Context, id string) (*finance.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getRequisition(ctx, s.db, id)
}

func (t *incidentTx) GetRequisition(ctx context.Context, id string) (*finance.Requisition, error) {
	return getRequisition(ctx, t.q, id)
}

func getRequisition(ctx context.Context, q dbtx, id string) (*finance.Requisition, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+requisitionColumns+` FROM requisitions WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	reqs, err := scanRequisitions(rows)
	if err != nil || len(reqs) == 0 {
		return nil, err
	}
	return &reqs[0], nil
}

func (s *IncidentStore) ListRequisitions(ctx context.Context) ([]finance.Requisition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listRequisitions(ctx, s.db)
}

func (t *incidentTx) ListRequisitions(ctx context.Context) ([]finance.Requisition, error) {
	return listRequisitions(ctx, t.q)
}

func listRequisitions(ctx context.Context, q dbtx) ([]finance.Requisition, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+requisitionColumns+` FROM requisitions ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRequisitions(rows)
}

func scanRequisitions(rows *sql.Rows) ([]finance.Requisition, error) {
	var reqs []finance.Requisition
	for rows.Next() {
		var (
			r                    finance.Requisition
			date, amount         string
			description          sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&r.ID, &r.ReqNumber, &r.RequestorID, &date, &description,
			&amount, &r.ChainRef, &r.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan requisition: %w", err)
		}
		r.Date, _ = finance.ParseDate(date)
		r.Description = description.String
		r.AmountEstimated = finance.MustDecimal(amount)
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		reqs = append(reqs, r)
	}
	return reqs, rows.Err()
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

func (s *IncidentStore) SavePurchaseOrder(ctx context.Context, po finance.PurchaseOrder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePurchaseOrder(ctx, s.db, po)
}

func (t *incidentTx) SavePurchaseOrder(ctx context.Context, po finance.PurchaseOrder) error {
	return savePurchaseOrder(ctx, t.q, po)
}

func savePurchaseOrder(ctx context.Context, q dbtx, po finance.PurchaseOrder) error {
	query := `
		INSERT INTO purchase_orders
		(id, po_number, vendor_id, requisition_id, date, amount_authorized, status,
		 created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_authorized = excluded.amount_authorized,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		po.ID, po.PONumber, po.VendorID, po.RequisitionID, po.Date.String(),
		po.AmountAuthorized.String(), po.Status,
		po.CreatedAt.Format(time.RFC3339), po.UpdatedAt.Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return &finance.ValidationError{Field: "po_number", Message: fmt.Sprintf("%q already used in this incident", po.PONumber)}
	}
	return err
}

const poColumns = `id, po_number, vendor_id, requisition_id, date, amount_authorized,
	status, created_at, updated_at`

func (s *IncidentStore) GetPurchaseOrder(ctx context.Context, id string) (*finance.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPurchaseOrder(ctx, s.db, `SELECT `+poColumns+` FROM purchase_orders WHERE id = ?`, id)
}

func (t *incidentTx) GetPurchaseOrder(ctx context.Context, id string) (*finance.PurchaseOrder, error) {
	return queryPurchaseOrder(ctx, t.q, `SELECT `+poColumns+` FROM purchase_orders WHERE id = ?`, id)
}

func (s *IncidentStore) GetPurchaseOrderByRequisition(ctx context.Context, requisitionID string) (*finance.PurchaseOrder, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return queryPurchaseOrder(ctx, s.db, `SELECT `+poColumns+` FROM purchase_orders WHERE requisition_id = ?`, requisitionID)
}

func (t *incidentTx) GetPurchaseOrderByRequisition(ctx context.Context, requisitionID string) (*finance.PurchaseOrder, error) {
	return queryPurchaseOrder(ctx, t.q, `SELECT `+poColumns+` FROM purchase_orders WHERE requisition_id = ?`, requisitionID)
}

func queryPurchaseOrder(ctx context.Context, q dbtx, query string, arg any) (*finance.PurchaseOrder, error) {
	var (
		po                   finance.PurchaseOrder
		date, amount         string
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, query, arg).Scan(
		&po.ID, &po.PONumber, &po.VendorID, &po.RequisitionID, &date, &amount,
		&po.Status, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	po.Date, _ = finance.ParseDate(date)
	po.AmountAuthorized = finance.MustDecimal(amount)
	po.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	po.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &po, nil
}

// =============================================================================
// RECEIPTS (append-only)
// =============================================================================

func (s *IncidentStore) AppendReceipt(ctx context.Context, r finance.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendReceipt(ctx, s.db, r)
}

func (t *incidentTx) AppendReceipt(ctx context.Context, r finance.Receipt) error {
	return appendReceipt(ctx, t.q, r)
}

func appendReceipt(ctx context.Context, q dbtx, r finance.Receipt) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO receipts (id, po_id, date, quantity, amount, notes, final, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.POID, r.Date.String(), r.Quantity.String(), r.Amount.String(),
		r.Notes, r.Final, r.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *IncidentStore) ReceiptsForPO(ctx context.Context, poID string) ([]finance.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return receiptsForPO(ctx, s.db, poID)
}

func (t *incidentTx) ReceiptsForPO(ctx context.Context, poID string) ([]finance.Receipt, error) {
	return receiptsForPO(ctx, t.q, poID)
}

func receiptsForPO(ctx context.Context, q dbtx, poID string) ([]finance.Receipt, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, po_id, date, quantity, amount, notes, final, created_at
		FROM receipts WHERE po_id = ? ORDER BY created_at ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var receipts []finance.Receipt
	for rows.Next() {
		var (
			r                 finance.Receipt
			date, qty, amount string
			notes             sql.NullString
			createdAt         string
		)
		if err := rows.Scan(&r.ID, &r.POID, &date, &qty, &amount, &notes, &r.Final, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		r.Date, _ = finance.ParseDate(date)
		r.Quantity = finance.MustDecimal(qty)
		r.Amount = finance.MustDecimal(amount)
		r.Notes = notes.String
		r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// =============================================================================
// INVOICES
// =============================================================================

func (s *IncidentStore) SaveInvoice(ctx context.Context, inv finance.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveInvoice(ctx, s.db, inv)
}

func (t *incidentTx) SaveInvoice(ctx context.Context, inv finance.Invoice) error {
	return saveInvoice(ctx, t.q, inv)
}

func saveInvoice(ctx context.Context, q dbtx, inv finance.Invoice) error {
	query := `
		INSERT INTO invoices
		(id, po_id, vendor_invoice_number, date, amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		inv.ID, inv.POID, inv.VendorInvoiceNumber, inv.Date.String(),
		inv.Amount.String(), inv.Status,
		inv.CreatedAt.Format(time.RFC3339), inv.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

const invoiceColumns = `id, po_id, vendor_invoice_number, date, amount, status, created_at, updated_at`

func (s *IncidentStore) GetInvoice(ctx context.Context, id string) (*finance.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getInvoice(ctx, s.db, id)
}

func (t *incidentTx) GetInvoice(ctx context.Context, id string) (*finance.Invoice, error) {
	return getInvoice(ctx, t.q, id)
}

func getInvoice(ctx context.Context, q dbtx, id string) (*finance.Invoice, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invs, err := scanInvoices(rows)
	if err != nil || len(invs) == 0 {
		return nil, err
	}
	return &invs[0], nil
}

func (s *IncidentStore) ListInvoicesForPO(ctx context.Context, poID string) ([]finance.Invoice, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listInvoicesForPO(ctx, s.db, poID)
}

func (t *incidentTx) ListInvoicesForPO(ctx context.Context, poID string) ([]finance.Invoice, error) {
	return listInvoicesForPO(ctx, t.q, poID)
}

func listInvoicesForPO(ctx context.Context, q dbtx, poID string) ([]finance.Invoice, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE po_id = ? ORDER BY created_at ASC`, poID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInvoices(rows)
}

func scanInvoices(rows *sql.Rows) ([]finance.Invoice, error) {
	var invs []finance.Invoice
	for rows.Next() {
		var (
			inv                  finance.Invoice
			date, amount         string
			createdAt, updatedAt string
		)
		if err := rows.Scan(&inv.ID, &inv.POID, &inv.VendorInvoiceNumber, &date,
			&amount, &inv.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan invoice: %w", err)
		}
		inv.Date, _ = finance.ParseDate(date)
		inv.Amount = finance.MustDecimal(amount)
		inv.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		inv.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		invs = append(invs, inv)
	}
	return invs, rows.Err()
}

// =============================================================================
// CLAIMS
// =============================================================================

func (s *IncidentStore) SaveClaim(ctx context.Context, c finance.Claim) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveClaim(ctx, s.db, c)
}

func (t *incidentTx) SaveClaim(ctx context.Context, c finance.Claim) error {
	return saveClaim(ctx, t.q, c)
}

func saveClaim(ctx context.Context, q dbtx, c finance.Claim) error {
	query := `
		INSERT INTO claims
		(id, claim_type, claimant_id, date_reported, description, amount_estimated,
		 chain_ref, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			amount_estimated = excluded.amount_estimated,
			status = excluded.status,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		c.ID, c.ClaimType, c.ClaimantID, c.DateReported.String(), c.Description,
		c.AmountEstimated.String(), c.ChainRef, c.Status,
		c.CreatedAt.Format(time.RFC3339), c.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

const claimColumns = `id, claim_type, claimant_id, date_reported, description,
	amount_estimated, chain_ref, status, created_at, updated_at`

func (s *IncidentStore) GetClaim(ctx context.Context, id string) (*finance.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getClaim(ctx, s.db, id)
}

func (t *incidentTx) GetClaim(ctx context.Context, id string) (*finance.Claim, error) {
	return getClaim(ctx, t.q, id)
}

func getClaim(ctx context.Context, q dbtx, id string) (*finance.Claim, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	claims, err := scanClaims(rows)
	if err != nil || len(claims) == 0 {
		return nil, err
	}
	return &claims[0], nil
}

func (s *IncidentStore) ListClaims(ctx context.Context) ([]finance.Claim, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listClaims(ctx, s.db)
}

func (t *incidentTx) ListClaims(ctx context.Context) ([]finance.Claim, error) {
	return listClaims(ctx, t.q)
}

func listClaims(ctx context.Context, q dbtx) ([]finance.Claim, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+claimColumns+` FROM claims ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanClaims(rows)
}

func scanClaims(rows *sql.Rows) ([]finance.Claim, error) {
	var claims []finance.Claim
	for rows.Next() {
		var (
			c                    finance.Claim
			date, amount         string
			description          sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&c.ID, &c.ClaimType, &c.ClaimantID, &date, &description,
			&amount, &c.ChainRef, &c.Status, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan claim: %w", err)
		}
		c.DateReported, _ = finance.ParseDate(date)
		c.Description = description.String
		c.AmountEstimated = finance.MustDecimal(amount)
		c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		claims = append(claims, c)
	}
	return claims, rows.Err()
}

// =============================================================================
// BUDGETS
// =============================================================================

func (s *IncidentStore) SaveBudget(ctx context.Context, b finance.Budget) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveBudget(ctx, s.db, b)
}

func (t *incidentTx) SaveBudget(ctx context.Context, b finance.Budget) error {
	return saveBudget(ctx, t.q, b)
}

func saveBudget(ctx context.Context, q dbtx, b finance.Budget) error {
	query := `
		INSERT INTO budgets (id, account_id, amount_budgeted, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			amount_budgeted = excluded.amount_budgeted,
			notes = excluded.notes,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		b.ID, b.AccountID, b.AmountBudgeted.String(), b.Notes,
		b.CreatedAt.Format(time.RFC3339), b.UpdatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *IncidentStore) ListBudgets(ctx context.Context) ([]finance.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listBudgets(ctx, s.db)
}

func (t *incidentTx) ListBudgets(ctx context.Context) ([]finance.Budget, error) {
	return listBudgets(ctx, t.q)
}

func listBudgets(ctx context.Context, q dbtx) ([]finance.Budget, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, account_id, amount_budgeted, notes, created_at, updated_at
		FROM budgets ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var budgets []finance.Budget
	for rows.Next() {
		var (
			b                    finance.Budget
			amount               string
			notes                sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&b.ID, &b.AccountID, &amount, &notes, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan budget: %w", err)
		}
		b.AmountBudgeted = finance.MustDecimal(amount)
		b.Notes = notes.String
		b.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		b.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		budgets = append(budgets, b)
	}
	return budgets, rows.Err()
}

// =============================================================================
// APPROVAL RECORDS (append-only)
// =============================================================================

func (s *IncidentStore) AppendApproval(ctx context.Context, rec finance.ApprovalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendApproval(ctx, s.db, rec)
}

func (t *incidentTx) AppendApproval(ctx context.Context, rec finance.ApprovalRecord) error {
	return appendApproval(ctx, t.q, rec)
}

func appendApproval(ctx context.Context, q dbtx, rec finance.ApprovalRecord) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO approval_records (id, entity, entity_id, step, actor_id, action, comments, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Entity, rec.EntityID, rec.Step, rec.ActorID, rec.Action,
		rec.Comments, rec.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *IncidentStore) ApprovalsFor(ctx context.Context, entity, entityID string) ([]finance.ApprovalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return approvalsFor(ctx, s.db, entity, entityID)
}

func (t *incidentTx) ApprovalsFor(ctx context.Context, entity, entityID string) ([]finance.ApprovalRecord, error) {
	return approvalsFor(ctx, t.q, entity, entityID)
}

func approvalsFor(ctx context.Context, q dbtx, entity, entityID string) ([]finance.ApprovalRecord, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, entity, entity_id, step, actor_id, action, comments, created_at
		FROM approval_records
		WHERE entity = ? AND entity_id = ?
		ORDER BY created_at ASC`, entity, entityID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []finance.ApprovalRecord
	for rows.Next() {
		var (
			rec       finance.ApprovalRecord
			comments  sql.NullString
			createdAt string
		)
		if err := rows.Scan(&rec.ID, &rec.Entity, &rec.EntityID, &rec.Step,
			&rec.ActorID, &rec.Action, &comments, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan approval record: %w", err)
		}
		rec.Comments = comments.String
		rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// COST ENTRIES (append-only)
// =============================================================================

func (s *IncidentStore) AppendCostEntry(ctx context.Context, e finance.CostEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendCostEntryRow(ctx, s.db, e)
}

func (t *incidentTx) AppendCostEntry(ctx context.Context, e finance.CostEntry) error {
	return appendCostEntryRow(ctx, t.q, e)
}

func appendCostEntryRow(ctx context.Context, q dbtx, e finance.CostEntry) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO cost_entries
		(id, date, account_id, description, amount, source, ref_table, ref_id, tag, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.Date.String(), e.AccountID, e.Description, e.Amount.String(),
		e.Source, nullString(e.RefTable), nullString(e.RefID), nullString(e.Tag),
		e.CreatedAt.Format(time.RFC3339),
	)
	return err
}

func (s *IncidentStore) CostEntriesOn(ctx context.Context, date finance.Date) ([]finance.CostEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return costEntriesOn(ctx, s.db, date)
}

func (t *incidentTx) CostEntriesOn(ctx context.Context, date finance.Date) ([]finance.CostEntry, error) {
	return costEntriesOn(ctx, t.q, date)
}

func costEntriesOn(ctx context.Context, q dbtx, date finance.Date) ([]finance.CostEntry, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, date, account_id, description, amount, source, ref_table, ref_id, tag, created_at
		FROM cost_entries
		WHERE date = ?
		ORDER BY created_at ASC`, date.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []finance.CostEntry
	for rows.Next() {
		var (
			e                    finance.CostEntry
			dateStr, amount      string
			description          sql.NullString
			refTable, refID, tag sql.NullString
			createdAt            string
		)
		if err := rows.Scan(&e.ID, &dateStr, &e.AccountID, &description, &amount,
			&e.Source, &refTable, &refID, &tag, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan cost entry: %w", err)
		}
		e.Date, _ = finance.ParseDate(dateStr)
		e.Description = description.String
		e.Amount = finance.MustDecimal(amount)
		e.RefTable = refTable.String
		e.RefID = refID.String
		e.Tag = tag.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// DAILY SUMMARIES
// =============================================================================

func (s *IncidentStore) SaveDailySummary(ctx context.Context, sum finance.DailyCostSummary) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return saveDailySummary(ctx, s.db, sum)
}

func (t *incidentTx) SaveDailySummary(ctx context.Context, sum finance.DailyCostSummary) error {
	return saveDailySummary(ctx, t.q, sum)
}

func saveDailySummary(ctx context.Context, q dbtx, sum finance.DailyCostSummary) error {
	// Intentionally no ON CONFLICT: a second summary for the same date must
	// fail, never overwrite.
	_, err := q.ExecContext(ctx, `
		INSERT INTO daily_summaries
		(id, date, total_labor, total_equipment, total_procurement, total_other,
		 finalized_by, finalized_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.Date.String(), sum.TotalLabor.String(), sum.TotalEquipment.String(),
		sum.TotalProcurement.String(), sum.TotalOther.String(),
		sum.FinalizedBy, sum.FinalizedAt.Format(time.RFC3339), sum.Notes,
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("summary for %s: %w", sum.Date, finance.ErrAlreadyFinalized)
	}
	return err
}

func (s *IncidentStore) GetDailySummary(ctx context.Context, date finance.Date) (*finance.DailyCostSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getDailySummary(ctx, s.db, date)
}

func (t *incidentTx) GetDailySummary(ctx context.Context, date finance.Date) (*finance.DailyCostSummary, error) {
	return getDailySummary(ctx, t.q, date)
}

func getDailySummary(ctx context.Context, q dbtx, date finance.Date) (*finance.DailyCostSummary, error) {
	var (
		sum                              finance.DailyCostSummary
		dateStr                          string
		labor, equipment, procure, other string
		finalizedAt                      string
		notes                            sql.NullString
	)
	err := q.QueryRowContext(ctx, `
		SELECT id, date, total_labor, total_equipment, total_procurement, total_other,
		       finalized_by, finalized_at, notes
		FROM daily_summaries WHERE date = ?`, date.String()).Scan(
		&sum.ID, &dateStr, &labor, &equipment, &procure, &other,
		&sum.FinalizedBy, &finalizedAt, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	sum.Date, _ = finance.ParseDate(dateStr)
	sum.TotalLabor = finance.MustDecimal(labor)
	sum.TotalEquipment = finance.MustDecimal(equipment)
	sum.TotalProcurement = finance.MustDecimal(procure)
	sum.TotalOther = finance.MustDecimal(other)
	sum.FinalizedAt, _ = time.Parse(time.RFC3339, finalizedAt)
	sum.Notes = notes.String
	return &sum, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(time.RFC3339), Valid: true}
}

func parseNullTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
