/*
chain.go - Approval chain engine

PURPOSE:
  Generic sequencer over an ordered list of named approval steps. Tracks which
  steps are complete from the append-only ApprovalRecord log and determines the
  next required step. When a chain completes (or a step denies), the engine
  notifies the entity's owning pipeline INSIDE the same transaction that
  appended the record, so two concurrent approvers can never both observe
  "chain complete" and double-fire the completion side effect.

CHAIN SEMANTICS:
  A chain is a strict sequence, e.g. ["Supervisor", "Finance Chief", "IC"].
  - Approve must target the current next step (enforced).
  - Deny at any step is terminal for the entity.
  - Comment appends to the audit log without advancing the chain.

OWNERS:
  Pipelines register per entity name ("requisitions", "claims"). The owner
  supplies the entity's chain template reference and receives ChainApproved /
  ChainDenied callbacks on the transactional store handle.

SEE ALSO:
  - procurement.go: Requisition owner
  - claims.go: Claim owner
*/
package finance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// STEP SEQUENCING
// =============================================================================

// NextStep returns the first element of chain not present in completed,
// preserving chain order. The second return is false when every step is
// complete.
func NextStep(chain []string, completed map[string]bool) (string, bool) {
	for _, step := range chain {
		if !completed[step] {
			return step, true
		}
	}
	return "", false
}

// CompletedSteps derives the completed-step set from the approval log.
func CompletedSteps(records []ApprovalRecord) map[string]bool {
	completed := make(map[string]bool, len(records))
	for _, rec := range records {
		if rec.Action == ActionApprove {
			completed[rec.Step] = true
		}
	}
	return completed
}

// =============================================================================
// CHAIN ENGINE
// =============================================================================

// ChainOwner is implemented by the pipeline that owns a chained entity.
// All callbacks run on the transactional store handle of the recording
// operation.
type ChainOwner interface {
	// ChainTemplateRef returns the chain template id governing the entity.
	// Owners also verify the entity is in a state that accepts approvals.
	ChainTemplateRef(ctx context.Context, store IncidentStore, entityID string) (string, error)

	// ChainApproved fires when the last step approves.
	ChainApproved(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error

	// ChainDenied fires when any step denies.
	ChainDenied(ctx context.Context, store IncidentStore, entityID, actorID string, at time.Time) error
}

type ChainEngine struct {
	Master MasterStore
	owners map[string]ChainOwner
}

func NewChainEngine(master MasterStore) *ChainEngine {
	return &ChainEngine{Master: master, owners: make(map[string]ChainOwner)}
}

// Register binds an owner to an entity name. Not safe for concurrent use;
// call during wiring.
func (e *ChainEngine) Register(entity string, owner ChainOwner) {
	e.owners[entity] = owner
}

type RecordApprovalRequest struct {
	Entity   string
	EntityID string
	Step     string
	ActorID  string
	Action   ChainAction
	Comments string
}

// ChainOutcome describes the chain state after recording.
type ChainOutcome struct {
	NextStep string // empty when Complete or Denied
	Complete bool
	Denied   bool
}

// RecordApproval appends an approval record and advances the chain, all within
// one store transaction. Completion and denial side effects are delivered to
// the registered owner on the same transaction handle.
func (e *ChainEngine) RecordApproval(ctx context.Context, store TxIncidentStore, req RecordApprovalRequest) (*ChainOutcome, error) {
	if err := validateApprovalRequest(req); err != nil {
		return nil, err
	}

	owner, ok := e.owners[req.Entity]
	if !ok {
		return nil, &ValidationError{Field: "entity", Message: fmt.Sprintf("no approval flow registered for %q", req.Entity)}
	}

	var outcome ChainOutcome
	err := store.WithTx(ctx, func(tx IncidentStore) error {
		chainRef, err := owner.ChainTemplateRef(ctx, tx, req.EntityID)
		if err != nil {
			return err
		}

		tmpl, err := e.Master.GetChainTemplate(ctx, chainRef)
		if err != nil {
			return err
		}
		if tmpl == nil {
			return fmt.Errorf("chain template %s: %w", chainRef, ErrNotFound)
		}
		if !stepInChain(tmpl.Steps, req.Step) {
			return &ValidationError{Field: "step", Message: fmt.Sprintf("%q is not a step of chain %s", req.Step, tmpl.ID)}
		}

		records, err := tx.ApprovalsFor(ctx, req.Entity, req.EntityID)
		if err != nil {
			return err
		}
		completed := CompletedSteps(records)

		if req.Action == ActionApprove {
			next, pending := NextStep(tmpl.Steps, completed)
			if !pending {
				return &StateTransitionError{Entity: req.Entity, ID: req.EntityID, Status: "approved", Action: "approve"}
			}
			if next != req.Step {
				return &ValidationError{Field: "step", Message: fmt.Sprintf("next required step is %q, not %q", next, req.Step)}
			}
		}

		now := time.Now().UTC()
		if err := tx.AppendApproval(ctx, ApprovalRecord{
			ID:        uuid.NewString(),
			Entity:    req.Entity,
			EntityID:  req.EntityID,
			Step:      req.Step,
			ActorID:   req.ActorID,
			Action:    req.Action,
			Comments:  req.Comments,
			CreatedAt: now,
		}); err != nil {
			return err
		}

		switch req.Action {
		case ActionDeny:
			outcome.Denied = true
			return owner.ChainDenied(ctx, tx, req.EntityID, req.ActorID, now)

		case ActionApprove:
			completed[req.Step] = true
			next, pending := NextStep(tmpl.Steps, completed)
			if !pending {
				outcome.Complete = true
				return owner.ChainApproved(ctx, tx, req.EntityID, req.ActorID, now)
			}
			outcome.NextStep = next
			return nil

		default: // ActionComment
			next, pending := NextStep(tmpl.Steps, completed)
			if pending {
				outcome.NextStep = next
			} else {
				outcome.Complete = true
			}
			return nil
		}
	})
	if err != nil {
		return nil, err
	}
	return &outcome, nil
}

func validateApprovalRequest(req RecordApprovalRequest) error {
	switch {
	case req.EntityID == "":
		return &ValidationError{Field: "entity_id", Message: "required"}
	case req.Step == "":
		return &ValidationError{Field: "step", Message: "required"}
	case req.ActorID == "":
		return &ValidationError{Field: "actor_id", Message: "required"}
	}
	switch req.Action {
	case ActionApprove, ActionDeny, ActionComment:
		return nil
	default:
		return &ValidationError{Field: "action", Message: fmt.Sprintf("unknown action %q", req.Action)}
	}
}

func stepInChain(steps []string, step string) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
