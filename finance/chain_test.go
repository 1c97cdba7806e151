package finance_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incident-finance/finance"
)

// =============================================================================
// STEP SEQUENCING
// =============================================================================

func TestNextStep_ReturnsFirstIncomplete(t *testing.T) {
	chain := []string{"Supervisor", "Finance Chief", "IC"}

	step, pending := finance.NextStep(chain, map[string]bool{})
	assert.True(t, pending)
	assert.Equal(t, "Supervisor", step)

	step, pending = finance.NextStep(chain, map[string]bool{"Supervisor": true})
	assert.True(t, pending)
	assert.Equal(t, "Finance Chief", step)

	_, pending = finance.NextStep(chain, map[string]bool{
		"Supervisor": true, "Finance Chief": true, "IC": true,
	})
	assert.False(t, pending)
}

func TestCompletedSteps_IgnoresCommentsAndDenials(t *testing.T) {
	records := []finance.ApprovalRecord{
		{Step: "Supervisor", Action: finance.ActionApprove},
		{Step: "Finance Chief", Action: finance.ActionComment},
		{Step: "IC", Action: finance.ActionDeny},
	}

	completed := finance.CompletedSteps(records)
	assert.True(t, completed["Supervisor"])
	assert.False(t, completed["Finance Chief"])
	assert.False(t, completed["IC"])
}

// =============================================================================
// CHAIN ENGINE (against a requisition owner)
// =============================================================================

func newChainFixture(t *testing.T) (*finance.ChainEngine, *finance.Procurement, finance.TxIncidentStore, finance.MasterStore) {
	master, incident := newTestStores(t)
	procurement := finance.NewProcurement(incident, master, nil)
	engine := finance.NewChainEngine(master)
	engine.Register(finance.EntityRequisitions, procurement)
	return engine, procurement, incident, master
}

func submittedRequisition(t *testing.T, p *finance.Procurement, chainRef string) *finance.Requisition {
	t.Helper()
	ctx := context.Background()

	r, err := p.CreateRequisition(ctx, finance.CreateRequisitionRequest{
		ReqNumber:       "REQ-001",
		RequestorID:     "requestor-1",
		Date:            finance.MustParseDate("2026-03-01"),
		Description:     "sandbags",
		AmountEstimated: finance.MustDecimal("5000"),
		ChainRef:        chainRef,
	})
	require.NoError(t, err)

	r, err = p.SubmitRequisition(ctx, r.ID)
	require.NoError(t, err)
	return r
}

func TestChainEngine_TwoStepApprovalCompletesEntity(t *testing.T) {
	// GIVEN: A submitted requisition governed by a two-step chain
	// WHEN: Both steps approve in order
	// THEN: The first approval reports the next step; the second completes the
	//       chain and flips the requisition to Approved

	engine, procurement, store, master := newChainFixture(t)
	ctx := context.Background()
	seedChain(t, master, "chain-2", "Supervisor", "Finance Chief")

	r := submittedRequisition(t, procurement, "chain-2")

	outcome, err := engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Supervisor",
		ActorID:  "sup-1",
		Action:   finance.ActionApprove,
	})
	require.NoError(t, err)
	assert.False(t, outcome.Complete)
	assert.Equal(t, "Finance Chief", outcome.NextStep)

	mid, err := procurement.GetRequisition(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.RequisitionSubmitted, mid.Status)

	outcome, err = engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Finance Chief",
		ActorID:  "fc-1",
		Action:   finance.ActionApprove,
	})
	require.NoError(t, err)
	assert.True(t, outcome.Complete)

	final, err := procurement.GetRequisition(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.RequisitionApproved, final.Status)

	records, err := store.ApprovalsFor(ctx, finance.EntityRequisitions, r.ID)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestChainEngine_OutOfOrderApproveRejected(t *testing.T) {
	// GIVEN: A fresh two-step chain
	// WHEN: The second step tries to approve first
	// THEN: The engine rejects it and no record is appended

	engine, procurement, store, master := newChainFixture(t)
	ctx := context.Background()
	seedChain(t, master, "chain-2", "Supervisor", "Finance Chief")

	r := submittedRequisition(t, procurement, "chain-2")

	_, err := engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Finance Chief",
		ActorID:  "fc-1",
		Action:   finance.ActionApprove,
	})
	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)

	records, err := store.ApprovalsFor(ctx, finance.EntityRequisitions, r.ID)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestChainEngine_DenyIsTerminal(t *testing.T) {
	// GIVEN: A submitted requisition mid-chain
	// WHEN: Any step denies
	// THEN: The requisition is Denied and further approvals are rejected

	engine, procurement, store, master := newChainFixture(t)
	ctx := context.Background()
	seedChain(t, master, "chain-2", "Supervisor", "Finance Chief")

	r := submittedRequisition(t, procurement, "chain-2")

	outcome, err := engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Supervisor",
		ActorID:  "sup-1",
		Action:   finance.ActionDeny,
		Comments: "over budget",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Denied)

	denied, err := procurement.GetRequisition(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.RequisitionDenied, denied.Status)

	// Entity no longer accepts approvals
	_, err = engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Finance Chief",
		ActorID:  "fc-1",
		Action:   finance.ActionApprove,
	})
	require.Error(t, err)
}

func TestChainEngine_CommentDoesNotAdvance(t *testing.T) {
	// GIVEN: A fresh chain
	// WHEN: A comment is recorded on the first step
	// THEN: The record is appended but the next required step is unchanged

	engine, procurement, store, master := newChainFixture(t)
	ctx := context.Background()
	seedChain(t, master, "chain-2", "Supervisor", "Finance Chief")

	r := submittedRequisition(t, procurement, "chain-2")

	outcome, err := engine.RecordApproval(ctx, store, finance.RecordApprovalRequest{
		Entity:   finance.EntityRequisitions,
		EntityID: r.ID,
		Step:     "Supervisor",
		ActorID:  "sup-1",
		Action:   finance.ActionComment,
		Comments: "checking quotes",
	})
	require.NoError(t, err)
	assert.Equal(t, "Supervisor", outcome.NextStep)

	records, err := store.ApprovalsFor(ctx, finance.EntityRequisitions, r.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestChainEngine_UnregisteredEntityRejected(t *testing.T) {
	engine, _, store, _ := newChainFixture(t)

	_, err := engine.RecordApproval(context.Background(), store, finance.RecordApprovalRequest{
		Entity:   "widgets",
		EntityID: "w-1",
		Step:     "Supervisor",
		ActorID:  "sup-1",
		Action:   finance.ActionApprove,
	})
	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)
}
