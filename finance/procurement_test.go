package finance_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incident-finance/finance"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type procurementFixture struct {
	engine      *finance.ChainEngine
	procurement *finance.Procurement
	costs       *finance.CostLedger
	store       finance.TxIncidentStore
	master      finance.MasterStore
}

func newProcurementFixture(t *testing.T) *procurementFixture {
	master, incident := newTestStores(t)
	procurement := finance.NewProcurement(incident, master, nil)
	engine := finance.NewChainEngine(master)
	engine.Register(finance.EntityRequisitions, procurement)

	seedChain(t, master, "chain-1", "Finance Chief")
	seedVendor(t, master, "vendor-1", "Acme Supply")

	return &procurementFixture{
		engine:      engine,
		procurement: procurement,
		costs:       finance.NewCostLedger(incident, nil),
		store:       incident,
		master:      master,
	}
}

// approvedRequisition runs a requisition through submit and a one-step chain.
func (f *procurementFixture) approvedRequisition(t *testing.T) *finance.Requisition {
	t.Helper()
	ctx := context.Background()

	r, err := f.procurement.CreateRequisition(ctx, finance.CreateRequisitionRequest{
		ReqNumber:       "REQ-100",
		RequestorID:     "requestor-1",
		Date:            finance.MustParseDate("2026-03-01"),
		AmountEstimated: finance.MustDecimal("10000"),
		ChainRef:        "chain-1",
	})
	require.NoError(t, err)
	_, err = f.procurement.SubmitRequisition(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.engine.RecordApproval(ctx, f.store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Finance Chief",
		ActorID:  "fc-1",
		Action:   finance.ActionApprove,
	})
	require.NoError(t, err)

	approved, err := f.procurement.GetRequisition(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, finance.RequisitionApproved, approved.Status)
	return approved
}

func (f *procurementFixture) openPO(t *testing.T) *finance.PurchaseOrder {
	t.Helper()
	r := f.approvedRequisition(t)

	po, err := f.procurement.CreatePurchaseOrder(context.Background(), finance.CreatePurchaseOrderRequest{
		PONumber:         "PO-100",
		VendorID:         "vendor-1",
		RequisitionID:    r.ID,
		Date:             finance.MustParseDate("2026-03-02"),
		AmountAuthorized: finance.MustDecimal("10000"),
	})
	require.NoError(t, err)
	return po
}

// =============================================================================
// PURCHASE ORDER GATING
// =============================================================================

func TestProcurement_PORequiresApprovedRequisition(t *testing.T) {
	// GIVEN: A requisition that is only Submitted
	// WHEN: Creating a purchase order against it
	// THEN: ErrRequisitionNotApproved, no PO persisted

	f := newProcurementFixture(t)
	ctx := context.Background()

	r, err := f.procurement.CreateRequisition(ctx, finance.CreateRequisitionRequest{
		ReqNumber:       "REQ-200",
		RequestorID:     "requestor-1",
		Date:            finance.MustParseDate("2026-03-01"),
		AmountEstimated: finance.MustDecimal("500"),
		ChainRef:        "chain-1",
	})
	require.NoError(t, err)
	_, err = f.procurement.SubmitRequisition(ctx, r.ID)
	require.NoError(t, err)

	_, err = f.procurement.CreatePurchaseOrder(ctx, finance.CreatePurchaseOrderRequest{
		PONumber:         "PO-200",
		VendorID:         "vendor-1",
		RequisitionID:    r.ID,
		Date:             finance.MustParseDate("2026-03-02"),
		AmountAuthorized: finance.MustDecimal("500"),
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrRequisitionNotApproved))
}

func TestProcurement_OnePOPerRequisition(t *testing.T) {
	// GIVEN: A requisition that already seeded a PO
	// WHEN: Creating a second PO against it
	// THEN: Rejected with a validation error

	f := newProcurementFixture(t)
	po := f.openPO(t)

	_, err := f.procurement.CreatePurchaseOrder(context.Background(), finance.CreatePurchaseOrderRequest{
		PONumber:         "PO-101",
		VendorID:         "vendor-1",
		RequisitionID:    po.RequisitionID,
		Date:             finance.MustParseDate("2026-03-03"),
		AmountAuthorized: finance.MustDecimal("1"),
	})

	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestProcurement_UnknownVendorRejected(t *testing.T) {
	f := newProcurementFixture(t)
	r := f.approvedRequisition(t)

	_, err := f.procurement.CreatePurchaseOrder(context.Background(), finance.CreatePurchaseOrderRequest{
		PONumber:         "PO-300",
		VendorID:         "no-such-vendor",
		RequisitionID:    r.ID,
		Date:             finance.MustParseDate("2026-03-02"),
		AmountAuthorized: finance.MustDecimal("100"),
	})

	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)
}

// =============================================================================
// RECEIPTS
// =============================================================================

func TestProcurement_ReceiveAdvancesPOStatus(t *testing.T) {
	// GIVEN: An open PO
	// WHEN: Receiving twice, the second marked final
	// THEN: Status goes Open -> PartiallyReceived -> Closed and both receipts
	//       remain in the audit trail

	f := newProcurementFixture(t)
	ctx := context.Background()
	po := f.openPO(t)

	_, updated, err := f.procurement.Receive(ctx, finance.ReceiveRequest{
		POID:     po.ID,
		Date:     finance.MustParseDate("2026-03-05"),
		Quantity: finance.MustDecimal("40"),
		Amount:   finance.MustDecimal("4000"),
	})
	require.NoError(t, err)
	assert.Equal(t, finance.POPartiallyReceived, updated.Status)

	_, updated, err = f.procurement.Receive(ctx, finance.ReceiveRequest{
		POID:     po.ID,
		Date:     finance.MustParseDate("2026-03-08"),
		Quantity: finance.MustDecimal("60"),
		Amount:   finance.MustDecimal("6000"),
		Final:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, finance.POClosed, updated.Status)

	receipts, err := f.procurement.ReceiptsForPO(ctx, po.ID)
	require.NoError(t, err)
	require.Len(t, receipts, 2)
	assert.False(t, receipts[0].Final)
	assert.True(t, receipts[1].Final)
}

func TestProcurement_ReceiveAgainstClosedPORejected(t *testing.T) {
	f := newProcurementFixture(t)
	ctx := context.Background()
	po := f.openPO(t)

	_, _, err := f.procurement.Receive(ctx, finance.ReceiveRequest{
		POID:     po.ID,
		Date:     finance.MustParseDate("2026-03-05"),
		Quantity: finance.MustDecimal("100"),
		Amount:   finance.MustDecimal("10000"),
		Final:    true,
	})
	require.NoError(t, err)

	_, _, err = f.procurement.Receive(ctx, finance.ReceiveRequest{
		POID:     po.ID,
		Date:     finance.MustParseDate("2026-03-06"),
		Quantity: finance.MustDecimal("1"),
		Amount:   finance.MustDecimal("100"),
	})
	require.Error(t, err)
	var serr *finance.StateTransitionError
	assert.ErrorAs(t, err, &serr)
}

// =============================================================================
// INVOICES
// =============================================================================

func TestProcurement_InvoiceApprovalPostsCost(t *testing.T) {
	// GIVEN: A pending invoice against a PO
	// WHEN: Approving it
	// THEN: The invoice flips to Approved and a source="procurement" cost
	//       entry for the invoice amount lands on the invoice date

	f := newProcurementFixture(t)
	ctx := context.Background()
	po := f.openPO(t)

	inv, err := f.procurement.CreateInvoice(ctx, finance.CreateInvoiceRequest{
		POID:                po.ID,
		VendorInvoiceNumber: "INV-9",
		Date:                finance.MustParseDate("2026-03-10"),
		Amount:              finance.MustDecimal("9500"),
	})
	require.NoError(t, err)
	assert.Equal(t, finance.InvoicePending, inv.Status)

	approved, posted, err := f.procurement.ApproveInvoice(ctx, finance.ApproveInvoiceRequest{
		InvoiceID: inv.ID,
		ActorID:   "fc-1",
		AccountID: "acct-supplies",
	})
	require.NoError(t, err)

	assert.Equal(t, finance.InvoiceApproved, approved.Status)
	assert.Equal(t, finance.SourceProcurement, posted.Source)
	assert.True(t, posted.Amount.Equal(finance.MustDecimal("9500")))

	entries, err := f.costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, inv.ID, entries[0].RefID)
}

func TestProcurement_InvoiceApproveIsIdempotentGuarded(t *testing.T) {
	// GIVEN: An already approved invoice
	// WHEN: Approving again
	// THEN: Rejected; only one cost entry exists

	f := newProcurementFixture(t)
	ctx := context.Background()
	po := f.openPO(t)

	inv, err := f.procurement.CreateInvoice(ctx, finance.CreateInvoiceRequest{
		POID:                po.ID,
		VendorInvoiceNumber: "INV-9",
		Date:                finance.MustParseDate("2026-03-10"),
		Amount:              finance.MustDecimal("100"),
	})
	require.NoError(t, err)

	_, _, err = f.procurement.ApproveInvoice(ctx, finance.ApproveInvoiceRequest{
		InvoiceID: inv.ID, ActorID: "fc-1", AccountID: "acct-supplies",
	})
	require.NoError(t, err)

	_, _, err = f.procurement.ApproveInvoice(ctx, finance.ApproveInvoiceRequest{
		InvoiceID: inv.ID, ActorID: "fc-1", AccountID: "acct-supplies",
	})
	require.Error(t, err)

	entries, err := f.costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestProcurement_DuplicateReqNumberRejected(t *testing.T) {
	// GIVEN: An existing requisition REQ-100
	// WHEN: Creating another with the same number in the same incident
	// THEN: The unique constraint surfaces as a validation error

	f := newProcurementFixture(t)
	ctx := context.Background()

	_, err := f.procurement.CreateRequisition(ctx, finance.CreateRequisitionRequest{
		ReqNumber:       "REQ-100",
		RequestorID:     "requestor-1",
		Date:            finance.MustParseDate("2026-03-01"),
		AmountEstimated: finance.MustDecimal("100"),
		ChainRef:        "chain-1",
	})
	require.NoError(t, err)

	_, err = f.procurement.CreateRequisition(ctx, finance.CreateRequisitionRequest{
		ReqNumber:       "REQ-100",
		RequestorID:     "requestor-2",
		Date:            finance.MustParseDate("2026-03-02"),
		AmountEstimated: finance.MustDecimal("200"),
		ChainRef:        "chain-1",
	})
	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)
}
