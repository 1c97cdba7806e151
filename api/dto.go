/*
dto.go - Request/response structures for the HTTP API

PURPOSE:
  JSON shapes for the REST surface. Dates travel as "2006-01-02" strings and
  money as decimal strings; parsing happens here so handlers hand the domain
  fully-typed requests.

SEE ALSO:
  - handlers.go: Uses these DTOs
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/incident-finance/finance"
)

// =============================================================================
// MASTER DATA
// =============================================================================

type RateScheduleDTO struct {
	ID                 string `json:"id"`
	Kind               string `json:"kind"`
	Subject            string `json:"subject"`
	RatePerHour        string `json:"rate_per_hour"`
	OvertimeMultiplier string `json:"overtime_multiplier,omitempty"`
	RatePerDay         string `json:"rate_per_day,omitempty"`
	EffectiveFrom      string `json:"effective_from"`
	EffectiveTo        string `json:"effective_to,omitempty"`
}

func toRateScheduleDTO(r finance.RateSchedule) RateScheduleDTO {
	dto := RateScheduleDTO{
		ID:            r.ID,
		Kind:          string(r.Kind),
		Subject:       r.Subject,
		RatePerHour:   r.RatePerHour.String(),
		EffectiveFrom: r.EffectiveFrom.String(),
	}
	if !r.OvertimeMultiplier.IsZero() {
		dto.OvertimeMultiplier = r.OvertimeMultiplier.String()
	}
	if !r.RatePerDay.IsZero() {
		dto.RatePerDay = r.RatePerDay.String()
	}
	if r.EffectiveTo != nil {
		dto.EffectiveTo = r.EffectiveTo.String()
	}
	return dto
}

type AccountDTO struct {
	ID       string `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type VendorDTO struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ContactEmail string `json:"contact_email,omitempty"`
	PaymentTerms string `json:"payment_terms,omitempty"`
}

type ChainTemplateDTO struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

type CreateTimeEntryDTO struct {
	PersonID          string `json:"person_id"`
	Role              string `json:"role,omitempty"`
	OperationalPeriod string `json:"operational_period,omitempty"`
	Date              string `json:"date"`
	HoursWorked       string `json:"hours_worked"`
	OvertimeHours     string `json:"overtime_hours,omitempty"`
	RateRef           string `json:"rate_reference,omitempty"`
	EquipmentRef      string `json:"equipment_reference,omitempty"`
}

type UpdateTimeEntryDTO struct {
	OperationalPeriod *string `json:"operational_period,omitempty"`
	HoursWorked       *string `json:"hours_worked,omitempty"`
	OvertimeHours     *string `json:"overtime_hours,omitempty"`
	RateRef           *string `json:"rate_reference,omitempty"`
	EquipmentRef      *string `json:"equipment_reference,omitempty"`
}

type ActorDTO struct {
	ActorID   string `json:"actor_id"`
	AccountID string `json:"account_id,omitempty"`
}

type TimeEntryDTO struct {
	ID                string `json:"id"`
	PersonID          string `json:"person_id"`
	Role              string `json:"role,omitempty"`
	OperationalPeriod string `json:"operational_period,omitempty"`
	Date              string `json:"date"`
	HoursWorked       string `json:"hours_worked"`
	OvertimeHours     string `json:"overtime_hours"`
	RateRef           string `json:"rate_reference,omitempty"`
	EquipmentRef      string `json:"equipment_reference,omitempty"`
	Status            string `json:"status"`
	ApprovedBy        string `json:"approved_by,omitempty"`
	ApprovedAt        string `json:"approved_at,omitempty"`
	CreatedAt         string `json:"created_at"`
}

func toTimeEntryDTO(e finance.TimeEntry) TimeEntryDTO {
	dto := TimeEntryDTO{
		ID:                e.ID,
		PersonID:          e.PersonID,
		Role:              e.Role,
		OperationalPeriod: e.OperationalPeriod,
		Date:              e.Date.String(),
		HoursWorked:       e.HoursWorked.String(),
		OvertimeHours:     e.OvertimeHours.String(),
		RateRef:           e.RateRef,
		EquipmentRef:      e.EquipmentRef,
		Status:            string(e.Status),
		ApprovedBy:        e.ApprovedBy,
		CreatedAt:         e.CreatedAt.Format(time.RFC3339),
	}
	if e.ApprovedAt != nil {
		dto.ApprovedAt = e.ApprovedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// PROCUREMENT
// =============================================================================

type CreateRequisitionDTO struct {
	ReqNumber       string `json:"req_number"`
	RequestorID     string `json:"requestor_id"`
	Date            string `json:"date"`
	Description     string `json:"description,omitempty"`
	AmountEstimated string `json:"amount_estimated"`
	ChainRef        string `json:"approval_chain_reference"`
}

type RequisitionDTO struct {
	ID              string `json:"id"`
	ReqNumber       string `json:"req_number"`
	RequestorID     string `json:"requestor_id"`
	Date            string `json:"date"`
	Description     string `json:"description,omitempty"`
	AmountEstimated string `json:"amount_estimated"`
	ChainRef        string `json:"approval_chain_reference"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func toRequisitionDTO(r finance.Requisition) RequisitionDTO {
	return RequisitionDTO{
		ID:              r.ID,
		ReqNumber:       r.ReqNumber,
		RequestorID:     r.RequestorID,
		Date:            r.Date.String(),
		Description:     r.Description,
		AmountEstimated: r.AmountEstimated.String(),
		ChainRef:        r.ChainRef,
		Status:          string(r.Status),
		CreatedAt:       r.CreatedAt.Format(time.RFC3339),
	}
}

type CreatePurchaseOrderDTO struct {
	PONumber         string `json:"po_number"`
	VendorID         string `json:"vendor_id"`
	RequisitionID    string `json:"requisition_id"`
	Date             string `json:"date"`
	AmountAuthorized string `json:"amount_authorized"`
}

type PurchaseOrderDTO struct {
	ID               string `json:"id"`
	PONumber         string `json:"po_number"`
	VendorID         string `json:"vendor_id"`
	RequisitionID    string `json:"requisition_id"`
	Date             string `json:"date"`
	AmountAuthorized string `json:"amount_authorized"`
	Status           string `json:"status"`
	CreatedAt        string `json:"created_at"`
}

func toPurchaseOrderDTO(po finance.PurchaseOrder) PurchaseOrderDTO {
	return PurchaseOrderDTO{
		ID:               po.ID,
		PONumber:         po.PONumber,
		VendorID:         po.VendorID,
		RequisitionID:    po.RequisitionID,
		Date:             po.Date.String(),
		AmountAuthorized: po.AmountAuthorized.String(),
		Status:           string(po.Status),
		CreatedAt:        po.CreatedAt.Format(time.RFC3339),
	}
}

type ReceiveDTO struct {
	Date     string `json:"date"`
	Quantity string `json:"quantity"`
	Amount   string `json:"amount"`
	Notes    string `json:"notes,omitempty"`
	Final    bool   `json:"final"`
}

type ReceiptDTO struct {
	ID        string `json:"id"`
	POID      string `json:"po_id"`
	Date      string `json:"date"`
	Quantity  string `json:"quantity"`
	Amount    string `json:"amount"`
	Notes     string `json:"notes,omitempty"`
	Final     bool   `json:"final"`
	CreatedAt string `json:"created_at"`
}

func toReceiptDTO(r finance.Receipt) ReceiptDTO {
	return ReceiptDTO{
		ID:        r.ID,
		POID:      r.POID,
		Date:      r.Date.String(),
		Quantity:  r.Quantity.String(),
		Amount:    r.Amount.String(),
		Notes:     r.Notes,
		Final:     r.Final,
		CreatedAt: r.CreatedAt.Format(time.RFC3339),
	}
}

type CreateInvoiceDTO struct {
	VendorInvoiceNumber string `json:"vendor_invoice_number"`
	Date                string `json:"date"`
	Amount              string `json:"amount"`
}

type InvoiceDTO struct {
	ID                  string `json:"id"`
	POID                string `json:"po_id"`
	VendorInvoiceNumber string `json:"vendor_invoice_number"`
	Date                string `json:"date"`
	Amount              string `json:"amount"`
	Status              string `json:"status"`
	CreatedAt           string `json:"created_at"`
}

func toInvoiceDTO(inv finance.Invoice) InvoiceDTO {
	return InvoiceDTO{
		ID:                  inv.ID,
		POID:                inv.POID,
		VendorInvoiceNumber: inv.VendorInvoiceNumber,
		Date:                inv.Date.String(),
		Amount:              inv.Amount.String(),
		Status:              string(inv.Status),
		CreatedAt:           inv.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// CLAIMS
// =============================================================================

type CreateClaimDTO struct {
	ClaimType       string `json:"claim_type"`
	ClaimantID      string `json:"claimant_id"`
	DateReported    string `json:"date_reported"`
	Description     string `json:"description,omitempty"`
	AmountEstimated string `json:"amount_estimated"`
	ChainRef        string `json:"approval_chain_reference"`
}

type PayClaimDTO struct {
	ActorID   string `json:"actor_id"`
	AccountID string `json:"account_id"`
	Amount    string `json:"amount,omitempty"`
}

type ClaimDTO struct {
	ID              string `json:"id"`
	ClaimType       string `json:"claim_type"`
	ClaimantID      string `json:"claimant_id"`
	DateReported    string `json:"date_reported"`
	Description     string `json:"description,omitempty"`
	AmountEstimated string `json:"amount_estimated"`
	ChainRef        string `json:"approval_chain_reference"`
	Status          string `json:"status"`
	CreatedAt       string `json:"created_at"`
}

func toClaimDTO(c finance.Claim) ClaimDTO {
	return ClaimDTO{
		ID:              c.ID,
		ClaimType:       c.ClaimType,
		ClaimantID:      c.ClaimantID,
		DateReported:    c.DateReported.String(),
		Description:     c.Description,
		AmountEstimated: c.AmountEstimated.String(),
		ChainRef:        c.ChainRef,
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// APPROVALS
// =============================================================================

type RecordApprovalDTO struct {
	Entity   string `json:"entity"`
	EntityID string `json:"entity_id"`
	Step     string `json:"step"`
	ActorID  string `json:"actor_id"`
	Action   string `json:"action"`
	Comments string `json:"comments,omitempty"`
}

type ChainOutcomeDTO struct {
	NextStep string `json:"next_step,omitempty"`
	Complete bool   `json:"complete"`
	Denied   bool   `json:"denied"`
}

type ApprovalRecordDTO struct {
	ID        string `json:"id"`
	Entity    string `json:"entity"`
	EntityID  string `json:"entity_id"`
	Step      string `json:"step"`
	ActorID   string `json:"actor_id"`
	Action    string `json:"action"`
	Comments  string `json:"comments,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toApprovalRecordDTO(rec finance.ApprovalRecord) ApprovalRecordDTO {
	return ApprovalRecordDTO{
		ID:        rec.ID,
		Entity:    rec.Entity,
		EntityID:  rec.EntityID,
		Step:      rec.Step,
		ActorID:   rec.ActorID,
		Action:    string(rec.Action),
		Comments:  rec.Comments,
		CreatedAt: rec.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// COST LEDGER
// =============================================================================

type PostCostEntryDTO struct {
	Date        string `json:"date"`
	AccountID   string `json:"account_id"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Tag         string `json:"tag,omitempty"`
}

type CostEntryDTO struct {
	ID          string `json:"id"`
	Date        string `json:"date"`
	AccountID   string `json:"account_id"`
	Description string `json:"description,omitempty"`
	Amount      string `json:"amount"`
	Source      string `json:"source"`
	RefTable    string `json:"ref_table,omitempty"`
	RefID       string `json:"ref_id,omitempty"`
	Tag         string `json:"tag,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toCostEntryDTO(e finance.CostEntry) CostEntryDTO {
	return CostEntryDTO{
		ID:          e.ID,
		Date:        e.Date.String(),
		AccountID:   e.AccountID,
		Description: e.Description,
		Amount:      e.Amount.String(),
		Source:      string(e.Source),
		RefTable:    e.RefTable,
		RefID:       e.RefID,
		Tag:         e.Tag,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

type FinalizeDayDTO struct {
	Date        string `json:"date"`
	FinalizedBy string `json:"finalized_by"`
	Notes       string `json:"notes,omitempty"`
}

type DailySummaryDTO struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	TotalLabor       string `json:"total_labor"`
	TotalEquipment   string `json:"total_equipment"`
	TotalProcurement string `json:"total_procurement"`
	TotalOther       string `json:"total_other"`
	FinalizedBy      string `json:"finalized_by"`
	FinalizedAt      string `json:"finalized_at"`
	Notes            string `json:"notes,omitempty"`
}

func toDailySummaryDTO(s finance.DailyCostSummary) DailySummaryDTO {
	return DailySummaryDTO{
		ID:               s.ID,
		Date:             s.Date.String(),
		TotalLabor:       s.TotalLabor.String(),
		TotalEquipment:   s.TotalEquipment.String(),
		TotalProcurement: s.TotalProcurement.String(),
		TotalOther:       s.TotalOther.String(),
		FinalizedBy:      s.FinalizedBy,
		FinalizedAt:      s.FinalizedAt.Format(time.RFC3339),
		Notes:            s.Notes,
	}
}

type BudgetDTO struct {
	ID             string `json:"id"`
	AccountID      string `json:"account_id"`
	AmountBudgeted string `json:"amount_budgeted"`
	Notes          string `json:"notes,omitempty"`
}

// =============================================================================
// PARSE HELPERS
// =============================================================================

// parseAmount accepts an empty string as zero; anything else must be a valid
// decimal literal.
func parseAmount(field, s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, &finance.ValidationError{Field: field, Message: "invalid decimal"}
	}
	return d, nil
}

func parseDate(field, s string) (finance.Date, error) {
	if s == "" {
		return finance.Date{}, &finance.ValidationError{Field: field, Message: "required"}
	}
	d, err := finance.ParseDate(s)
	if err != nil {
		return finance.Date{}, &finance.ValidationError{Field: field, Message: "expected YYYY-MM-DD"}
	}
	return d, nil
}
