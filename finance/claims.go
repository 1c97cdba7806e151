/*
claims.go - Claim lifecycle with chain approval and payment posting

PURPOSE:
  State machine per claim:

    Open --submit--> UnderReview --[chain approve]--> Approved --pay--> Paid
                                 --[chain deny]----> Denied

  Payment of an Approved claim posts a source="claim" cost entry in the same
  transaction as the status change. Like requisitions, the review decision is
  driven by the chain engine; Claims implements ChainOwner for the "claims"
  entity.
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

// EntityClaims is the chain-engine entity name for claims.
const EntityClaims = "claims"

// =============================================================================
// CLAIMS SERVICE
// =============================================================================

type Claims struct {
	Store  TxIncidentStore
	Master MasterStore
	Logger *zap.Logger
}

func NewClaims(store TxIncidentStore, master MasterStore, logger *zap.Logger) *Claims {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Claims{Store: store, Master: master, Logger: logger}
}

type CreateClaimRequest struct {
	ClaimType       string
	ClaimantID      string
	DateReported    Date
	Description     string
	AmountEstimated decimal.Decimal
	ChainRef        string
}

func (c *Claims) Create(ctx context.Context, req CreateClaimRequest) (*Claim, error) {
	switch {
	case req.ClaimType == "":
		return nil, &ValidationError{Field: "claim_type", Message: "required"}
	case req.ClaimantID == "":
		return nil, &ValidationError{Field: "claimant_id", Message: "required"}
	case req.DateReported.IsZero():
		return nil, &ValidationError{Field: "date_reported", Message: "required"}
	case req.AmountEstimated.IsNegative():
		return nil, &ValidationError{Field: "amount_estimated", Message: "must not be negative"}
	case req.ChainRef == "":
		return nil, &ValidationError{Field: "approval_chain_reference", Message: "required"}
	}

	tmpl, err := c.Master.GetChainTemplate(ctx, req.ChainRef)
	if err != nil {
		return nil, err
	}
	if tmpl == nil {
		return nil, &ValidationError{Field: "approval_chain_reference", Message: fmt.Sprintf("unknown chain template %q", req.ChainRef)}
	}

	now := time.Now().UTC()
	claim := Claim{
		ID:              uuid.NewString(),
		ClaimType:       req.ClaimType,
		ClaimantID:      req.ClaimantID,
		DateReported:    req.DateReported,
		Description:     req.Description,
		AmountEstimated: req.AmountEstimated,
		ChainRef:        req.ChainRef,
		Status:          ClaimOpen,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := c.Store.SaveClaim(ctx, claim); err != nil {
		return nil, err
	}
	return &claim, nil
}

// Submit moves Open -> UnderReview, opening the approval chain.
func (c *Claims) Submit(ctx context.Context, claimID string) (*Claim, error) {
	var updated Claim
	err := c.Store.WithTx(ctx, func(tx IncidentStore) error {
		claim, err := c.load(ctx, tx, claimID)
		if err != nil {
			return err
		}
		if claim.Status != ClaimOpen {
			return &StateTransitionError{Entity: "claim", ID: claim.ID, Status: string(claim.Status), Action: "submit"}
		}
		claim.Status = ClaimUnderReview
		claim.UpdatedAt = time.Now().UTC()
		updated = *claim
		return tx.SaveClaim(ctx, *claim)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

type PayClaimRequest struct {
	ClaimID   string
	ActorID   string
	AccountID string

	// Amount is the settlement amount; zero means pay the estimate.
	Amount decimal.Decimal
}

// Pay moves Approved -> Paid and posts the source="claim" cost entry
// atomically with the status change.
func (c *Claims) Pay(ctx context.Context, req PayClaimRequest) (*Claim, *CostEntry, error) {
	if req.ActorID == "" {
		return nil, nil, &ValidationError{Field: "actor_id", Message: "required"}
	}
	if req.AccountID == "" {
		return nil, nil, &ValidationError{Field: "account_id", Message: "required"}
	}
	if req.Amount.IsNegative() {
		return nil, nil, &ValidationError{Field: "amount", Message: "must not be negative"}
	}

	var (
		updated Claim
		posted  CostEntry
	)
	err := c.Store.WithTx(ctx, func(tx IncidentStore) error {
		claim, err := c.load(ctx, tx, req.ClaimID)
		if err != nil {
			return err
		}
		if claim.Status != ClaimApproved {
			return &StateTransitionError{Entity: "claim", ID: claim.ID, Status: string(claim.Status), Action: "pay"}
		}

		amount := req.Amount
		if amount.IsZero() {
			amount = claim.AmountEstimated
		}

		now := time.Now().UTC()
		claim.Status = ClaimPaid
		claim.UpdatedAt = now
		if err := tx.SaveClaim(ctx, *claim); err != nil {
			return err
		}

		posted = CostEntry{
			ID:          uuid.NewString(),
			Date:        DateOf(now),
			AccountID:   req.AccountID,
			Description: fmt.Sprintf("claim payment: %s (%s)", claim.ID, claim.ClaimType),
			Amount:      amount,
			Source:      SourceClaim,
			RefTable:    "claims",
			RefID:       claim.ID,
			CreatedAt:   now,
		}
		updated = *claim
		return appendCostEntry(ctx, tx, posted)
	})
	if err != nil {
		return nil, nil, err
	}

	c.Logger.Info("claim paid",
		zap.String("claim_id", updated.ID),
		zap.String("paid_by", req.ActorID),
		zap.String("amount", posted.Amount.String()))
	return &updated, &posted, nil
}

// Get returns one claim.
func (c *Claims) Get(ctx context.Context, claimID string) (*Claim, error) {
	return c.load(ctx, c.Store, claimID)
}

// List returns all claims for the incident.
func (c *Claims) List(ctx context.Context) ([]Claim, error) {
	return c.Store.ListClaims(ctx)
}

// =============================================================================
// CHAIN OWNER - claim review callbacks (run inside the recording tx)
// =============================================================================

func (c *Claims) ChainTemplateRef(ctx context.Context, store IncidentStore, entityID string) (string, error) {
	claim, err := c.load(ctx, store, entityID)
	if err != nil {
		return "", err
	}
	if claim.Status != ClaimUnderReview {
		return "", &StateTransitionError{Entity: "claim", ID: claim.ID, Status: string(claim.Status), Action: "record approval for"}
	}
	return claim.ChainRef, nil
}

func (c *Claims) ChainApproved(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error {
	return c.closeClaim(ctx, store, entityID, ClaimApproved, at)
}

func (c *Claims) ChainDenied(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error {
	return c.closeClaim(ctx, store, entityID, ClaimDenied, at)
}

func (c *Claims) closeClaim(ctx context.Context, store IncidentStore, id string, status ClaimStatus, at time.Time) error {
	claim, err := c.load(ctx, store, id)
	if err != nil {
		return err
	}
	claim.Status = status
	claim.UpdatedAt = at
	return store.SaveClaim(ctx, *claim)
}

func (c *Claims) load(ctx context.Context, store IncidentStore, id string) (*Claim, error) {
	claim, err := store.GetClaim(ctx, id)
	if err != nil {
		return nil, err
	}
	if claim == nil {
		return nil, fmt.Errorf("claim %s: %w", id, ErrNotFound)
	}
	return claim, nil
}
