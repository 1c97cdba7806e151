/*
Package finance is the core financial workflow engine for incident management.

PURPOSE:
  This package contains the domain types and services for labor/equipment cost
  tracking, procurement (requisition -> purchase order -> receipt -> invoice),
  multi-step approval chains, and the per-incident daily cost ledger with
  finalization.

KEY CONCEPTS IN THIS FILE (types.go):
  - RateSchedule: Effective-dated compensation rates (labor and equipment)
  - TimeEntry: A person's hours for one day, flowing Draft -> Approved
  - Requisition/PurchaseOrder/Receipt/Invoice: The procurement pipeline
  - CostEntry: An immutable ledger line posted from time, procurement, claims
  - DailyCostSummary: Locked per-day cost totals

DESIGN PRINCIPLES:
  1. Exact money: All amounts use decimal.Decimal, never binary floats
  2. Immutability: Cost entries and approval records are append-only;
     corrections are reversing entries, never edits
  3. Typed requests: Every mutating operation takes an explicit request struct,
     so "which fields are present" is checked at compile time
  4. Tenant isolation: Transactional records live in a per-incident store;
     reference data lives in the shared master store (see store.go)

SEE ALSO:
  - rate.go: Effective-dated rate resolution
  - chain.go: Approval chain sequencing
  - costs.go: Cost ledger and daily finalizer
  - store.go: Persistence interfaces
*/
package finance

import (
	"time"

	"github.com/shopspring/decimal"
)

// MustDecimal parses a decimal literal; invalid input yields zero.
// Intended for fixtures and defaults, not user input.
func MustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// =============================================================================
// RATE SCHEDULES - Effective-dated compensation rates (master store)
// =============================================================================

type RateKind string

const (
	RateLabor     RateKind = "labor"
	RateEquipment RateKind = "equipment"
)

// DefaultOvertimeMultiplier applies to labor rates that don't set their own.
var DefaultOvertimeMultiplier = MustDecimal("1.5")

// RateSchedule is one effective-dated rate row for a subject key (a role title
// for labor, an equipment type for equipment).
//
// INVARIANT: For a given (Kind, Subject), effective windows must not overlap.
// Rows are immutable once written - corrections are new dated rows.
type RateSchedule struct {
	ID      string
	Kind    RateKind
	Subject string

	RatePerHour decimal.Decimal

	// Labor only. Zero means DefaultOvertimeMultiplier.
	OvertimeMultiplier decimal.Decimal

	// Equipment only, optional daily rate.
	RatePerDay decimal.Decimal

	EffectiveFrom Date
	EffectiveTo   *Date // nil = open-ended
}

// Covers reports whether the schedule's window contains the date (inclusive).
func (r RateSchedule) Covers(date Date) bool {
	if date.Before(r.EffectiveFrom) {
		return false
	}
	return r.EffectiveTo == nil || date.BeforeOrEqual(*r.EffectiveTo)
}

// Overlaps reports whether two effective windows intersect.
func (r RateSchedule) Overlaps(other RateSchedule) bool {
	if r.EffectiveTo != nil && other.EffectiveFrom.After(*r.EffectiveTo) {
		return false
	}
	if other.EffectiveTo != nil && r.EffectiveFrom.After(*other.EffectiveTo) {
		return false
	}
	return true
}

// =============================================================================
// REFERENCE DATA - Accounts, vendors, chain templates (master store)
// =============================================================================

// Account is a chart-of-accounts row. Read-only reference data.
type Account struct {
	ID       string
	Code     string
	Name     string
	Category string
}

type Vendor struct {
	ID           string
	Name         string
	ContactEmail string
	PaymentTerms string
}

// ChainTemplate is an ordered list of named approval steps,
// e.g. ["Supervisor", "Finance Chief", "IC"].
type ChainTemplate struct {
	ID    string
	Name  string
	Steps []string
}

// =============================================================================
// TIME ENTRIES - Individual time/equipment-use records (incident store)
// =============================================================================

type TimeEntryStatus string

const (
	TimeEntryDraft     TimeEntryStatus = "draft"
	TimeEntrySubmitted TimeEntryStatus = "submitted"
	TimeEntryApproved  TimeEntryStatus = "approved"
	TimeEntryRejected  TimeEntryStatus = "rejected"
)

// TimeEntry records one person's hours for one date. Created in Draft; fields
// are mutable only while Draft or Submitted. Approved/Rejected are terminal.
type TimeEntry struct {
	ID                string
	PersonID          string
	Role              string
	OperationalPeriod string
	Date              Date
	HoursWorked       decimal.Decimal
	OvertimeHours     decimal.Decimal

	// RateRef is the rate-schedule subject key used to cost this entry.
	RateRef string

	// EquipmentRef, when set, marks this as equipment use (costed with the
	// equipment rate, bucketed as equipment at finalization).
	EquipmentRef string

	Status     TimeEntryStatus
	ApprovedBy string
	ApprovedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Editable reports whether field edits are still allowed.
func (e TimeEntry) Editable() bool {
	return e.Status == TimeEntryDraft || e.Status == TimeEntrySubmitted
}

// =============================================================================
// PROCUREMENT - Requisition, PO, Receipt, Invoice (incident store)
// =============================================================================

type RequisitionStatus string

const (
	RequisitionDraft     RequisitionStatus = "draft"
	RequisitionSubmitted RequisitionStatus = "submitted"
	RequisitionApproved  RequisitionStatus = "approved"
	RequisitionDenied    RequisitionStatus = "denied"
)

type Requisition struct {
	ID          string
	ReqNumber   string // unique per incident
	RequestorID string
	Date        Date
	Description string

	AmountEstimated decimal.Decimal

	// ChainRef references the master-store ChainTemplate governing approval.
	ChainRef string

	Status    RequisitionStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

type PurchaseOrderStatus string

const (
	POOpen              PurchaseOrderStatus = "open"
	POPartiallyReceived PurchaseOrderStatus = "partially_received"
	POClosed            PurchaseOrderStatus = "closed"
)

// PurchaseOrder is seeded by exactly one approved requisition.
type PurchaseOrder struct {
	ID            string
	PONumber      string
	VendorID      string
	RequisitionID string
	Date          Date

	AmountAuthorized decimal.Decimal

	Status    PurchaseOrderStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Receipt is an append-only audit of goods/services received against a PO.
// Final marks the receipt that closes the PO; the pipeline does not infer
// completeness from quantities.
type Receipt struct {
	ID       string
	POID     string
	Date     Date
	Quantity decimal.Decimal
	Amount   decimal.Decimal
	Notes    string
	Final    bool

	CreatedAt time.Time
}

type InvoiceStatus string

const (
	InvoicePending  InvoiceStatus = "pending"
	InvoiceApproved InvoiceStatus = "approved"
)

type Invoice struct {
	ID                  string
	POID                string
	VendorInvoiceNumber string
	Date                Date
	Amount              decimal.Decimal

	Status    InvoiceStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// CLAIMS - Comp/claim records with chain approval (incident store)
// =============================================================================

type ClaimStatus string

const (
	ClaimOpen        ClaimStatus = "open"
	ClaimUnderReview ClaimStatus = "under_review"
	ClaimApproved    ClaimStatus = "approved"
	ClaimDenied      ClaimStatus = "denied"
	ClaimPaid        ClaimStatus = "paid"
)

type Claim struct {
	ID           string
	ClaimType    string
	ClaimantID   string
	DateReported Date
	Description  string

	AmountEstimated decimal.Decimal

	ChainRef string

	Status    ClaimStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// =============================================================================
// APPROVAL RECORDS - Append-only audit of who approved what (incident store)
// =============================================================================

type ChainAction string

const (
	ActionApprove ChainAction = "approve"
	ActionDeny    ChainAction = "deny"
	ActionComment ChainAction = "comment"
)

// ApprovalRecord is the authoritative log of chain activity for an entity.
// Never mutated or deleted.
type ApprovalRecord struct {
	ID       string
	Entity   string // owning table name, e.g. "requisitions"
	EntityID string
	Step     string
	ActorID  string
	Action   ChainAction
	Comments string

	CreatedAt time.Time
}

// =============================================================================
// COST LEDGER - Immutable cost entries and daily summaries (incident store)
// =============================================================================

type CostSource string

const (
	SourceTime        CostSource = "time"
	SourceProcurement CostSource = "procurement"
	SourceClaim       CostSource = "claim"
	SourceManual      CostSource = "manual"
)

// TagEquipment on a manual entry routes it into the equipment bucket.
const TagEquipment = "equipment"

// CostEntry is one immutable ledger line. Append-only; corrections are
// reversing entries with negated amounts.
type CostEntry struct {
	ID          string
	Date        Date
	AccountID   string
	Description string
	Amount      decimal.Decimal
	Source      CostSource

	// Back-reference to the originating record, e.g. ("invoices", inv.ID).
	RefTable string
	RefID    string

	// Optional categorization hint (see TagEquipment).
	Tag string

	CreatedAt time.Time
}

// DailyCostSummary locks one date's aggregated totals. Created exactly once
// per date by finalization and immutable afterwards.
type DailyCostSummary struct {
	ID   string
	Date Date

	TotalLabor       decimal.Decimal
	TotalEquipment   decimal.Decimal
	TotalProcurement decimal.Decimal
	TotalOther       decimal.Decimal

	FinalizedBy string
	FinalizedAt time.Time
	Notes       string
}

// Budget is a per-account spending target for an incident.
type Budget struct {
	ID             string
	AccountID      string
	AmountBudgeted decimal.Decimal
	Notes          string

	CreatedAt time.Time
	UpdatedAt time.Time
}
