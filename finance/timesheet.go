/*
timesheet.go - Time ledger for individual time/equipment-use entries

PURPOSE:
  State machine per time entry:

    Draft --submit--> Submitted --approve--> Approved
                                --reject--> Rejected

  Approval computes cost through the rate resolver and posts a source="time"
  cost entry in the SAME transaction as the status change. Rejection posts
  nothing. Approved/Rejected are terminal: field edits fail with ErrEntryLocked.

COSTING:
  Entries with an equipment reference are costed with the equipment rate
  (subject = equipment reference); all others with the labor rate (subject =
  rate reference) including overtime.

SEE ALSO:
  - rate.go: Rate resolution
  - costs.go: appendCostEntry and the finalization gate
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
// TIMESHEET SERVICE
// =============================================================================

type Timesheet struct {
	Store  TxIncidentStore
	Rates  *RateResolver
	Logger *zap.Logger
}

func NewTimesheet(store TxIncidentStore, rates *RateResolver, logger *zap.Logger) *Timesheet {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Timesheet{Store: store, Rates: rates, Logger: logger}
}

type CreateTimeEntryRequest struct {
	PersonID          string
	Role              string
	OperationalPeriod string
	Date              Date
	HoursWorked       decimal.Decimal
	OvertimeHours     decimal.Decimal
	RateRef           string
	EquipmentRef      string
}

// Create records a new entry in Draft.
func (ts *Timesheet) Create(ctx context.Context, req CreateTimeEntryRequest) (*TimeEntry, error) {
	if err := validateTimeEntryFields(req.PersonID, req.RateRef, req.EquipmentRef, req.Date, req.HoursWorked, req.OvertimeHours); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	entry := TimeEntry{
		ID:                uuid.NewString(),
		PersonID:          req.PersonID,
		Role:              req.Role,
		OperationalPeriod: req.OperationalPeriod,
		Date:              req.Date,
		HoursWorked:       req.HoursWorked,
		OvertimeHours:     req.OvertimeHours,
		RateRef:           req.RateRef,
		EquipmentRef:      req.EquipmentRef,
		Status:            TimeEntryDraft,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := ts.Store.SaveTimeEntry(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// UpdateTimeEntryRequest carries optional field updates; nil means unchanged.
type UpdateTimeEntryRequest struct {
	EntryID           string
	OperationalPeriod *string
	HoursWorked       *decimal.Decimal
	OvertimeHours     *decimal.Decimal
	RateRef           *string
	EquipmentRef      *string
}

// Update edits a Draft or Submitted entry. Terminal entries are locked.
func (ts *Timesheet) Update(ctx context.Context, req UpdateTimeEntryRequest) (*TimeEntry, error) {
	var updated TimeEntry
	err := ts.Store.WithTx(ctx, func(tx IncidentStore) error {
		entry, err := ts.load(ctx, tx, req.EntryID)
		if err != nil {
			return err
		}
		if !entry.Editable() {
			return fmt.Errorf("time entry %s is %s: %w", entry.ID, entry.Status, ErrEntryLocked)
		}

		if req.OperationalPeriod != nil {
			entry.OperationalPeriod = *req.OperationalPeriod
		}
		if req.HoursWorked != nil {
			entry.HoursWorked = *req.HoursWorked
		}
		if req.OvertimeHours != nil {
			entry.OvertimeHours = *req.OvertimeHours
		}
		if req.RateRef != nil {
			entry.RateRef = *req.RateRef
		}
		if req.EquipmentRef != nil {
			entry.EquipmentRef = *req.EquipmentRef
		}

		if err := validateTimeEntryFields(entry.PersonID, entry.RateRef, entry.EquipmentRef, entry.Date, entry.HoursWorked, entry.OvertimeHours); err != nil {
			return err
		}

		entry.UpdatedAt = time.Now().UTC()
		updated = *entry
		return tx.SaveTimeEntry(ctx, *entry)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Submit moves Draft -> Submitted.
func (ts *Timesheet) Submit(ctx context.Context, entryID string) (*TimeEntry, error) {
	var updated TimeEntry
	err := ts.Store.WithTx(ctx, func(tx IncidentStore) error {
		entry, err := ts.load(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != TimeEntryDraft {
			return &StateTransitionError{Entity: "time entry", ID: entry.ID, Status: string(entry.Status), Action: "submit"}
		}
		entry.Status = TimeEntrySubmitted
		entry.UpdatedAt = time.Now().UTC()
		updated = *entry
		return tx.SaveTimeEntry(ctx, *entry)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

type ApproveTimeEntryRequest struct {
	EntryID   string
	ActorID   string
	AccountID string
}

// Approve moves Submitted -> Approved, computes cost via the rate resolver,
// and posts the cost entry atomically with the status change.
func (ts *Timesheet) Approve(ctx context.Context, req ApproveTimeEntryRequest) (*TimeEntry, *CostEntry, error) {
	if req.ActorID == "" {
		return nil, nil, &ValidationError{Field: "actor_id", Message: "required"}
	}
	if req.AccountID == "" {
		return nil, nil, &ValidationError{Field: "account_id", Message: "required"}
	}

	var (
		updated TimeEntry
		posted  CostEntry
	)
	err := ts.Store.WithTx(ctx, func(tx IncidentStore) error {
		entry, err := ts.load(ctx, tx, req.EntryID)
		if err != nil {
			return err
		}
		if entry.Status != TimeEntrySubmitted {
			return &StateTransitionError{Entity: "time entry", ID: entry.ID, Status: string(entry.Status), Action: "approve"}
		}

		cost, err := ts.entryCost(ctx, entry)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		entry.Status = TimeEntryApproved
		entry.ApprovedBy = req.ActorID
		entry.ApprovedAt = &now
		entry.UpdatedAt = now
		if err := tx.SaveTimeEntry(ctx, *entry); err != nil {
			return err
		}

		posted = CostEntry{
			ID:          uuid.NewString(),
			Date:        entry.Date,
			AccountID:   req.AccountID,
			Description: fmt.Sprintf("time: %s (%s) on %s", entry.PersonID, entry.RateRef, entry.Date),
			Amount:      cost,
			Source:      SourceTime,
			RefTable:    "time_entries",
			RefID:       entry.ID,
			CreatedAt:   now,
		}
		updated = *entry
		return appendCostEntry(ctx, tx, posted)
	})
	if err != nil {
		return nil, nil, err
	}

	ts.Logger.Info("time entry approved",
		zap.String("entry_id", updated.ID),
		zap.String("approved_by", req.ActorID),
		zap.String("amount", posted.Amount.String()))
	return &updated, &posted, nil
}

// Reject moves Submitted -> Rejected. No cost posting.
func (ts *Timesheet) Reject(ctx context.Context, entryID, actorID string) (*TimeEntry, error) {
	if actorID == "" {
		return nil, &ValidationError{Field: "actor_id", Message: "required"}
	}

	var updated TimeEntry
	err := ts.Store.WithTx(ctx, func(tx IncidentStore) error {
		entry, err := ts.load(ctx, tx, entryID)
		if err != nil {
			return err
		}
		if entry.Status != TimeEntrySubmitted {
			return &StateTransitionError{Entity: "time entry", ID: entry.ID, Status: string(entry.Status), Action: "reject"}
		}
		now := time.Now().UTC()
		entry.Status = TimeEntryRejected
		entry.ApprovedBy = actorID
		entry.ApprovedAt = &now
		entry.UpdatedAt = now
		updated = *entry
		return tx.SaveTimeEntry(ctx, *entry)
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Get returns one entry.
func (ts *Timesheet) Get(ctx context.Context, entryID string) (*TimeEntry, error) {
	return ts.load(ctx, ts.Store, entryID)
}

// List returns all entries for the incident.
func (ts *Timesheet) List(ctx context.Context) ([]TimeEntry, error) {
	return ts.Store.ListTimeEntries(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

func (ts *Timesheet) load(ctx context.Context, store IncidentStore, id string) (*TimeEntry, error) {
	entry, err := store.GetTimeEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, fmt.Errorf("time entry %s: %w", id, ErrNotFound)
	}
	return entry, nil
}

func (ts *Timesheet) entryCost(ctx context.Context, entry *TimeEntry) (decimal.Decimal, error) {
	if entry.EquipmentRef != "" {
		return ts.Rates.EquipmentCost(ctx, entry.EquipmentRef, entry.Date, entry.HoursWorked)
	}
	return ts.Rates.LaborCost(ctx, entry.RateRef, entry.Date, entry.HoursWorked, entry.OvertimeHours)
}

func validateTimeEntryFields(personID, rateRef, equipmentRef string, date Date, hours, overtime decimal.Decimal) error {
	switch {
	case personID == "":
		return &ValidationError{Field: "person_id", Message: "required"}
	case date.IsZero():
		return &ValidationError{Field: "date", Message: "required"}
	case rateRef == "" && equipmentRef == "":
		return &ValidationError{Field: "rate_reference", Message: "required"}
	case hours.IsNegative():
		return &ValidationError{Field: "hours_worked", Message: "must not be negative"}
	case overtime.IsNegative():
		return &ValidationError{Field: "overtime_hours", Message: "must not be negative"}
	}
	return nil
}
