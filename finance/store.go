/*
store.go - Persistence interfaces for the master and incident stores

PURPOSE:
  Defines the boundary between the domain services and storage. There are two
  distinct stores:

  MasterStore:   Shared reference data (rate schedules, accounts, vendors,
                 approval chain templates). Read-mostly.
  IncidentStore: Transactional records scoped to ONE incident. Isolation
                 between incidents is physical (separate database files),
                 never a tenant column.

APPEND-ONLY CONTRACT:
  Cost entries, approval records, and receipts have Append* methods and no
  update or delete. Corrections to the cost ledger are reversing entries.

TRANSACTIONS:
  TxIncidentStore.WithTx runs a function atomically. Every mutating service
  operation runs its status change and any resulting cost posting inside one
  WithTx call, so "chain complete => status change => cost posting" can never
  partially apply.

IMPLEMENTATIONS:
  - store/sqlite: one SQLite file per incident plus a shared master.db

SEE ALSO:
  - store/sqlite/router.go: Opens and caches store handles per incident
*/
package finance

import "context"

// =============================================================================
// MASTER STORE - Shared reference data
// =============================================================================

type MasterStore interface {
	// SaveRateSchedule inserts a new rate row. Rows are immutable; saving a
	// window that overlaps an existing (Kind, Subject) window fails with a
	// ValidationError.
	SaveRateSchedule(ctx context.Context, r RateSchedule) error

	// RateSchedulesFor returns all rate rows for a subject key, ordered by
	// EffectiveFrom.
	RateSchedulesFor(ctx context.Context, kind RateKind, subject string) ([]RateSchedule, error)

	SaveAccount(ctx context.Context, a Account) error
	GetAccount(ctx context.Context, id string) (*Account, error)
	ListAccounts(ctx context.Context) ([]Account, error)

	SaveVendor(ctx context.Context, v Vendor) error
	GetVendor(ctx context.Context, id string) (*Vendor, error)
	ListVendors(ctx context.Context) ([]Vendor, error)

	SaveChainTemplate(ctx context.Context, t ChainTemplate) error
	GetChainTemplate(ctx context.Context, id string) (*ChainTemplate, error)
	ListChainTemplates(ctx context.Context) ([]ChainTemplate, error)

	Close() error
}

// =============================================================================
// INCIDENT STORE - Per-incident transactional records
// =============================================================================

// IncidentStore persists all records for one incident. Get* methods return
// (nil, nil) when the record does not exist; services translate that to
// ErrNotFound.
type IncidentStore interface {
	SaveTimeEntry(ctx context.Context, e TimeEntry) error
	GetTimeEntry(ctx context.Context, id string) (*TimeEntry, error)
	ListTimeEntries(ctx context.Context) ([]TimeEntry, error)

	SaveRequisition(ctx context.Context, r Requisition) error
	GetRequisition(ctx context.Context, id string) (*Requisition, error)
	ListRequisitions(ctx context.Context) ([]Requisition, error)

	SavePurchaseOrder(ctx context.Context, po PurchaseOrder) error
	GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error)
	// GetPurchaseOrderByRequisition enforces the one-requisition-one-PO rule.
	GetPurchaseOrderByRequisition(ctx context.Context, requisitionID string) (*PurchaseOrder, error)

	// AppendReceipt is append-only: receipts are an audit trail.
	AppendReceipt(ctx context.Context, r Receipt) error
	ReceiptsForPO(ctx context.Context, poID string) ([]Receipt, error)

	SaveInvoice(ctx context.Context, inv Invoice) error
	GetInvoice(ctx context.Context, id string) (*Invoice, error)
	ListInvoicesForPO(ctx context.Context, poID string) ([]Invoice, error)

	SaveClaim(ctx context.Context, c Claim) error
	GetClaim(ctx context.Context, id string) (*Claim, error)
	ListClaims(ctx context.Context) ([]Claim, error)

	SaveBudget(ctx context.Context, b Budget) error
	ListBudgets(ctx context.Context) ([]Budget, error)

	// AppendApproval is append-only: the authoritative approval audit log.
	AppendApproval(ctx context.Context, rec ApprovalRecord) error
	ApprovalsFor(ctx context.Context, entity, entityID string) ([]ApprovalRecord, error)

	// AppendCostEntry is append-only. No update, no delete. Ever.
	AppendCostEntry(ctx context.Context, e CostEntry) error
	CostEntriesOn(ctx context.Context, date Date) ([]CostEntry, error)

	SaveDailySummary(ctx context.Context, s DailyCostSummary) error
	GetDailySummary(ctx context.Context, date Date) (*DailyCostSummary, error)

	Close() error
}

// TxIncidentStore adds atomic multi-write support.
type TxIncidentStore interface {
	IncidentStore

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise committed.
	WithTx(ctx context.Context, fn func(IncidentStore) error) error
}
