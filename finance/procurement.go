/*
procurement.go - Requisition -> Purchase Order -> Receipt -> Invoice pipeline

PURPOSE:
  State machines for the four procurement documents:

    Requisition:   Draft --submit--> Submitted --[chain approve]--> Approved
                                               --[chain deny]----> Denied
    PurchaseOrder: Open --receive--> PartiallyReceived --receive(final)--> Closed
    Invoice:       Pending --approve--> Approved  (posts the cost entry)

  Only an Approved requisition may seed a purchase order, and each requisition
  seeds at most one. Receipts are an append-only audit trail; "final" is a
  caller-supplied flag on the receive call - the pipeline does not reconcile
  ordered vs. received quantities.

  Requisition approval is driven by the chain engine: Procurement implements
  ChainOwner for the "requisitions" entity, so the terminal status transition
  happens inside the transaction that records the deciding approval.

SEE ALSO:
  - chain.go: RecordApproval and owner callbacks
  - costs.go: appendCostEntry used on invoice approval
*/
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// EntityRequisitions is the chain-engine entity name for requisitions.
const EntityRequisitions = "requisitions"

// =============================================================================
// PROCUREMENT SERVICE
// =============================================================================

type Procurement struct {
	Store  TxIncidentStore
	Master MasterStore
	Logger *zap.Logger
}

func NewProcurement(store TxIncidentStore, master MasterStore, logger *zap.Logger) *Procurement {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Procurement{Store: store, Master: master, Logger: logger}
}

// =============================================================================
// REQUISITIONS
// =============================================================================

type CreateRequisitionRequest struct {
	ReqNumber       string
	RequestorID     string
	Date            Date
	Description     string
	AmountEstimated decimal.Decimal
	ChainRef        string
}

func (p *Procurement) CreateRequisition(ctx context.Context, req CreateRequisitionRequest) (*Requisition, error) {
	switch {
	case req.ReqNumber == "":
		return nil, &ValidationError{Field: "req_number", Message: "required"}
	case req.RequestorID == "":
		return nil, &ValidationError{Field: "requestor_id", Message: "required"}
	case req.Date.IsZero():
		return nil, &ValidationError{Field: "date", Message: "required"}
	case req.AmountEstimated.IsNegative():
		return nil, &ValidationError{Field: "amount_estimated", Message: "must not be negative"}
	case req.ChainRef == "":
		return nil, &ValidationError{Field: "approval_chain_reference", Message: "required"}
	}

	tmpl, err := p.Master.GetChainTemplate(ctx, req.ChainRef)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, &ValidationError{Field: "approval_chain_reference", Message: fmt.Sprintf("unknown chain template %q", req.ChainRef)}
	}

	now := time.Now().UTC()
	r := Requisition{
		ID:              uuid.NewString(),
		ReqNumber:       req.ReqNumber,
		RequestorID:     req.RequestorID,
		Date:            req.Date,
		Description:     req.Description,
		AmountEstimated: req.AmountEstimated,
		ChainRef:        req.ChainRef,
		Status:          RequisitionDraft,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := p.Store.SaveRequisition(ctx, r); err != nil {
		return nil, err
	}
	return &r, nil
}

// SubmitRequisition moves Draft -> Submitted, opening the approval chain.
func (p *Procurement) SubmitRequisition(ctx context.Context, requisitionID string) (*Requisition, error) {
	var updated Requisition
	err := p.Store.WithTx(ctx, func(tx IncidentStore) error {
		r, err := p.loadRequisition(ctx, tx, requisitionID)
		if err != nil {
			return err
		}
		if r.Status != RequisitionDraft {
			return &StateTransitionError{Entity: "requisition", ID: r.ID, Status: string(r.Status), Action: "submit"}
		}
		r.Status = RequisitionSubmitted
		r.UpdatedAt = time.Now().UTC()
		updated = *r
		return tx.SaveRequisition(ctx, *r)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetRequisition returns one requisition.
func (p *Procurement) GetRequisition(ctx context.Context, id string) (*Requisition, error) {
	return p.loadRequisition(ctx, p.Store, id)
}

// ListRequisitions returns all requisitions for the incident.
func (p *Procurement) ListRequisitions(ctx context.Context) ([]Requisition, error) {
	return p.Store.ListRequisitions(ctx)
}

// =============================================================================
// CHAIN OWNER - requisition approval callbacks (run inside the recording tx)
// =============================================================================

func (p *Procurement) ChainTemplateRef(ctx context.Context, store IncidentStore, entityID string) (string, error) {
	r, err := p.loadRequisition(ctx, store, entityID)
	if err != nil {
		return "", err
	}
	if r.Status != RequisitionSubmitted {
		return "", &StateTransitionError{Entity: "requisition", ID: r.ID, Status: string(r.Status), Action: "record approval for"}
	}
	return r.ChainRef, nil
}

func (p *Procurement) ChainApproved(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error {
	return p.closeRequisition(ctx, store, entityID, RequisitionApproved, at)
}

func (p *Procurement) ChainDenied(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error {
	return p.closeRequisition(ctx, store, entityID, RequisitionDenied, at)
}

func (p *Procurement) closeRequisition(ctx context.Context, store IncidentStore, id string, status RequisitionStatus, at time.Time) error {
	r, err := p.loadRequisition(ctx, store, id)
	if err != nil {
		return err
	}
	r.Status = status
	r.UpdatedAt = at
	return store.SaveRequisition(ctx, *r)
}

// =============================================================================
// PURCHASE ORDERS
// =============================================================================

type CreatePurchaseOrderRequest struct {
	PONumber         string
	VendorID         string
	RequisitionID    string
	Date             Date
	AmountAuthorized decimal.Decimal
}

// CreatePurchaseOrder seeds a PO from an Approved requisition.
func (p *Procurement) CreatePurchaseOrder(ctx context.Context, req CreatePurchaseOrderRequest) (*PurchaseOrder, error) {
	switch {
	case req.PONumber == "":
		return nil, &ValidationError{Field: "po_number", Message: "required"}
	case req.VendorID == "":
		return nil, &ValidationError{Field: "vendor_id", Message: "required"}
	case req.RequisitionID == "":
		return nil, &ValidationError{Field: "requisition_id", Message: "required"}
	case req.Date.IsZero():
		return nil, &ValidationError{Field: "date", Message: "required"}
	case req.AmountAuthorized.IsNegative():
		return nil, &ValidationError{Field: "amount_authorized", Message: "must not be negative"}
	}

	vendor, err := p.Master.GetVendor(ctx, req.VendorID)
	if err != nil {
		return nil, err
	}
	if vendor == nil {
		return nil, &ValidationError{Field: "vendor_id", Message: fmt.Sprintf("unknown vendor %q", req.VendorID)}
	}

	var po PurchaseOrder
	err = p.Store.WithTx(ctx, func(tx IncidentStore) error {
		r, err := p.loadRequisition(ctx, tx, req.RequisitionID)
		if err != nil {
			return err
		}
		if r.Status != RequisitionApproved {
			return fmt.Errorf("requisition %s is %s: %w", r.ID, r.Status, ErrRequisitionNotApproved)
		}

		existing, err := tx.GetPurchaseOrderByRequisition(ctx, r.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ValidationError{Field: "requisition_id", Message: fmt.Sprintf("requisition %s already seeded purchase order %s", r.ID, existing.ID)}
		}

		now := time.Now().UTC()
		po = PurchaseOrder{
			ID:               uuid.NewString(),
			PONumber:         req.PONumber,
			VendorID:         req.VendorID,
			RequisitionID:    r.ID,
			Date:             req.Date,
			AmountAuthorized: req.AmountAuthorized,
			Status:           POOpen,
			CreatedAt:        now,
			UpdatedAt:        now,
		}
		return tx.SavePurchaseOrder(ctx, po)
	})
	if err != nil {
		return nil, err
	}
	return &po, nil
}

type ReceiveRequest struct {
	POID     string
	Date     Date
	Quantity decimal.Decimal
	Amount   decimal.Decimal
	Notes    string

	// Final closes the PO. Caller-supplied; the pipeline does not infer
	// completeness from quantities.
	Final bool
}

// Receive appends a receipt against an open PO and advances its status.
func (p *Procurement) Receive(ctx context.Context, req ReceiveRequest) (*Receipt, *PurchaseOrder, error) {
	if req.Date.IsZero() {
		return nil, nil, &ValidationError{Field: "date", Message: "required"}
	}
	if req.Quantity.IsNegative() || req.Amount.IsNegative() {
		return nil, nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	var (
		receipt Receipt
		updated PurchaseOrder
	)
	err := p.Store.WithTx(ctx, func(tx IncidentStore) error {
		po, err := p.loadPurchaseOrder(ctx, tx, req.POID)
		if err != nil {
			return err
		}
		if po.Status == POClosed {
			return &StateTransitionError{Entity: "purchase order", ID: po.ID, Status: string(po.Status), Action: "receive against"}
		}

		now := time.Now().UTC()
		receipt = Receipt{
			ID:        uuid.NewString(),
			POID:      po.ID,
			Date:      req.Date,
			Quantity:  req.Quantity,
			Amount:    req.Amount,
			Notes:     req.Notes,
			Final:     req.Final,
			CreatedAt: now,
		}
		if err := tx.AppendReceipt(ctx, receipt); err != nil {
			return err
		}

		if req.Final {
			po.Status = POClosed
		} else {
			po.Status = POPartiallyReceived
		}
		po.UpdatedAt = now
		updated = *po
		return tx.SavePurchaseOrder(ctx, *po)
	})
	if err != nil {
		return nil, nil, err
	}
	return &receipt, &updated, nil
}

// GetPurchaseOrder returns one PO.
func (p *Procurement) GetPurchaseOrder(ctx context.Context, id string) (*PurchaseOrder, error) {
	return p.loadPurchaseOrder(ctx, p.Store, id)
}

// ReceiptsForPO lists the receipt audit trail for a PO.
func (p *Procurement) ReceiptsForPO(ctx context.Context, poID string) ([]Receipt, error) {
	return p.Store.ReceiptsForPO(ctx, poID)
}

// =============================================================================
// INVOICES
// =============================================================================

type CreateInvoiceRequest struct {
	POID                string
	VendorInvoiceNumber string
	Date                Date
	Amount              decimal.Decimal
}

func (p *Procurement) CreateInvoice(ctx context.Context, req CreateInvoiceRequest) (*Invoice, error) {
	switch {
	case req.VendorInvoiceNumber == "":
		return nil, &ValidationError{Field: "vendor_invoice_number", Message: "required"}
	case req.Date.IsZero():
		return nil, &ValidationError{Field: "date", Message: "required"}
	case req.Amount.IsNegative():
		return nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	po, err := p.loadPurchaseOrder(ctx, p.Store, req.POID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inv := Invoice{
		ID:                  uuid.NewString(),
		POID:                po.ID,
		VendorInvoiceNumber: req.VendorInvoiceNumber,
		Date:                req.Date,
		Amount:              req.Amount,
		Status:              InvoicePending,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if err := p.Store.SaveInvoice(ctx, inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

type ApproveInvoiceRequest struct {
	InvoiceID string
	ActorID   string
	AccountID string
}

// ApproveInvoice moves Pending -> Approved and posts the source="procurement"
// cost entry atomically with the status change.
func (p *Procurement) ApproveInvoice(ctx context.Context, req ApproveInvoiceRequest) (*Invoice, *CostEntry, error) {
	if req.ActorID == "" {
		return nil, nil, &ValidationError{Field: "actor_id", Message: "required"}
	}
	if req.AccountID == "" {
		return nil, nil, &ValidationError{Field: "account_id", Message: "required"}
	}

	var (
		updated Invoice
		posted  CostEntry
	)
	err := p.Store.WithTx(ctx, func(tx IncidentStore) error {
		inv, err := tx.GetInvoice(ctx, req.InvoiceID)
		if err != nil {
			return err
		}
		if inv == nil {
			return fmt.Errorf("invoice %s: %w", req.InvoiceID, ErrNotFound)
		}
		if inv.Status != InvoicePending {
			return &StateTransitionError{Entity: "invoice", ID: inv.ID, Status: string(inv.Status), Action: "approve"}
		}

		now := time.Now().UTC()
		inv.Status = InvoiceApproved
		inv.UpdatedAt = now
		if err := tx.SaveInvoice(ctx, *inv); err != nil {
			return err
		}

		posted = CostEntry{
			ID:          uuid.NewString(),
			Date:        inv.Date,
			AccountID:   req.AccountID,
			Description: fmt.Sprintf("invoice %s against PO %s", inv.VendorInvoiceNumber, inv.POID),
			Amount:      inv.Amount,
			Source:      SourceProcurement,
			RefTable:    "invoices",
			RefID:       inv.ID,
			CreatedAt:   now,
		}
		updated = *inv
		return appendCostEntry(ctx, tx, posted)
	})
	if err != nil {
		return nil, nil, err
	}

	p.Logger.Info("invoice approved",
		zap.String("invoice_id", updated.ID),
		zap.String("approved_by", req.ActorID),
		zap.String("amount", posted.Amount.String()))
	return &updated, &posted, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (p *Procurement) loadRequisition(ctx context.Context, store IncidentStore, id string) (*Requisition, error) {
	r, err := store.GetRequisition(ctx, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, fmt.Errorf("requisition %s: %w", id, ErrNotFound)
	}
	return r, nil
}

func (p *Procurement) loadPurchaseOrder(ctx context.Context, store IncidentStore, id string) (*PurchaseOrder, error) {
	po, err := store.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if po == nil {
		return nil, fmt.Errorf("purchase order %s: %w", id, ErrNotFound)
	}
	return po, nil
}
