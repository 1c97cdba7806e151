/*
costs.go - Cost ledger and daily finalizer

PURPOSE:
  Accumulates immutable cost entries from the time ledger, procurement
  pipeline, claims, and manual postings, and produces the locked per-day
  summary.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: Cost entries are never updated or deleted. Corrections are
     reversing entries (same account, negated amount).
  2. FINALIZATION IS A ONE-WAY DOOR: Once a date has a summary, further
     postings to that date fail with ErrDateFinalized and a second finalize
     fails with ErrAlreadyFinalized without touching the existing row.

BUCKET MAPPING (finalization):
  labor       = source "time" where the entry's time record has no equipment ref
  equipment   = source "time" with an equipment ref, or "manual" tagged equipment
  procurement = source "procurement"
  other       = remainder (claims, untagged manual)

SEE ALSO:
  - timesheet.go / procurement.go / claims.go: Post entries through the same
    transactional append used here
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

// =============================================================================
// COST LEDGER SERVICE
// =============================================================================

type CostLedger struct {
	Store  TxIncidentStore
	Logger *zap.Logger
}

func NewCostLedger(store TxIncidentStore, logger *zap.Logger) *CostLedger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CostLedger{Store: store, Logger: logger}
}

type PostCostEntryRequest struct {
	Date        Date
	AccountID   string
	Description string
	Amount      decimal.Decimal
	Source      CostSource
	RefTable    string
	RefID       string
	Tag         string
}

// Post appends one immutable cost entry. Fails with ErrDateFinalized when the
// date's summary already exists.
func (c *CostLedger) Post(ctx context.Context, req PostCostEntryRequest) (*CostEntry, error) {
	if err := validateCostEntry(req); err != nil {
		return nil, err
	}

	entry := CostEntry{
		ID:          uuid.NewString(),
		Date:        req.Date,
		AccountID:   req.AccountID,
		Description: req.Description,
		Amount:      req.Amount,
		Source:      req.Source,
		RefTable:    req.RefTable,
		RefID:       req.RefID,
		Tag:         req.Tag,
		CreatedAt:   time.Now().UTC(),
	}

	err := c.Store.WithTx(ctx, func(tx IncidentStore) error {
		return appendCostEntry(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// EntriesOn lists the cost entries posted for a date.
func (c *CostLedger) EntriesOn(ctx context.Context, date Date) ([]CostEntry, error) {
	return c.Store.CostEntriesOn(ctx, date)
}

// SummaryFor returns the finalized summary for a date.
func (c *CostLedger) SummaryFor(ctx context.Context, date Date) (*DailyCostSummary, error) {
	s, err := c.Store.GetDailySummary(ctx, date)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, fmt.Errorf("daily summary for %s: %w", date, ErrNotFound)
	}
	return s, nil
}

type FinalizeDayRequest struct {
	Date        Date
	FinalizedBy string
	Notes       string
}

// FinalizeDay aggregates the date's cost entries into the four buckets and
// writes the locked summary. A second call for the same date is an error, not
// a silent overwrite.
func (c *CostLedger) FinalizeDay(ctx context.Context, req FinalizeDayRequest) (*DailyCostSummary, error) {
	if req.Date.IsZero() {
		return nil, &ValidationError{Field: "date", Message: "required"}
	}
	if req.FinalizedBy == "" {
		return nil, &ValidationError{Field: "finalized_by", Message: "required"}
	}

	var summary DailyCostSummary
	err := c.Store.WithTx(ctx, func(tx IncidentStore) error {
		existing, err := tx.GetDailySummary(ctx, req.Date)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("summary for %s: %w", req.Date, ErrAlreadyFinalized)
		}

		entries, err := tx.CostEntriesOn(ctx, req.Date)
		if err != nil {
			return err
		}

		labor, equipment, procurement, other := decimal.Zero, decimal.Zero, decimal.Zero, decimal.Zero
		for _, e := range entries {
			switch bucketFor(ctx, tx, e) {
			case bucketLabor:
				labor = labor.Add(e.Amount)
			case bucketEquipment:
				equipment = equipment.Add(e.Amount)
			case bucketProcurement:
				procurement = procurement.Add(e.Amount)
			default:
				other = other.Add(e.Amount)
			}
		}

		summary = DailyCostSummary{
			ID:               uuid.NewString(),
			Date:             req.Date,
			TotalLabor:       labor,
			TotalEquipment:   equipment,
			TotalProcurement: procurement,
			TotalOther:       other,
			FinalizedBy:      req.FinalizedBy,
			FinalizedAt:      time.Now().UTC(),
			Notes:            req.Notes,
		}
		return tx.SaveDailySummary(ctx, summary)
	})
	if err != nil {
		return nil, err
	}

	c.Logger.Info("day finalized",
		zap.String("date", req.Date.String()),
		zap.String("finalized_by", req.FinalizedBy),
		zap.String("total_labor", summary.TotalLabor.String()),
		zap.String("total_equipment", summary.TotalEquipment.String()),
		zap.String("total_procurement", summary.TotalProcurement.String()),
		zap.String("total_other", summary.TotalOther.String()))
	return &summary, nil
}

// =============================================================================
// SHARED POSTING - Used by every pipeline inside its own transaction
// =============================================================================

// appendCostEntry enforces the finalization gate and appends. Callers must
// already be inside a store transaction so the status change that produced the
// entry and the posting commit together.
func appendCostEntry(ctx context.Context, store IncidentStore, e CostEntry) error {
	summary, err := store.GetDailySummary(ctx, e.Date)
	if err != nil {
		return err
	}
	if summary != nil {
		return fmt.Errorf("posting to %s: %w", e.Date, ErrDateFinalized)
	}
	return store.AppendCostEntry(ctx, e)
}

func validateCostEntry(req PostCostEntryRequest) error {
	switch {
	case req.Date.IsZero():
		return &ValidationError{Field: "date", Message: "required"}
	case req.AccountID == "":
		return &ValidationError{Field: "account_id", Message: "required"}
	case req.Amount.IsZero():
		return &ValidationError{Field: "amount", Message: "must be nonzero"}
	}
	switch req.Source {
	case SourceTime, SourceProcurement, SourceClaim, SourceManual:
		return nil
	default:
		return &ValidationError{Field: "source", Message: fmt.Sprintf("unknown source %q", req.Source)}
	}
}

// =============================================================================
// BUCKETING
// =============================================================================

type costBucket int

const (
	bucketOther costBucket = iota
	bucketLabor
	bucketEquipment
	bucketProcurement
)

func bucketFor(ctx context.Context, store IncidentStore, e CostEntry) costBucket {
	switch e.Source {
	case SourceProcurement:
		return bucketProcurement
	case SourceTime:
		if e.RefID != "" {
			te, err := store.GetTimeEntry(ctx, e.RefID)
			if err == nil && te != nil && te.EquipmentRef != "" {
				return bucketEquipment
			}
		}
		return bucketLabor
	case SourceManual:
		if e.Tag == TagEquipment {
			return bucketEquipment
		}
		return bucketOther
	default:
		return bucketOther
	}
}
