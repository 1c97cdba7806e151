/*
rate.go - Effective-dated rate resolution

PURPOSE:
  Given a subject key (role title or equipment type) and a work date, find the
  single applicable rate window and compute the cost. Pure lookup plus decimal
  arithmetic; no side effects.

RESOLUTION RULE:
  Exactly one schedule window must cover the date. Zero matches OR more than
  one match fails with RateResolutionError (wrapping ErrAmbiguousOrMissingRate).
  A missing rate is a hard failure, never a free cost of zero - silently
  charging nothing for unresolvable rates is a correctness hazard in a
  financial ledger.

COST FORMULAS:
  Labor:     rate_per_hour * hours + rate_per_hour * overtime_multiplier * overtime_hours
  Equipment: rate_per_hour * hours  (no overtime concept)

SEE ALSO:
  - timesheet.go: Uses the resolver when approving time entries
*/
package finance

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RATE RESOLVER
// =============================================================================

type RateResolver struct {
	Master MasterStore
}

// LaborCost resolves the labor rate for role on date and computes
// straight-time plus overtime cost.
func (rr *RateResolver) LaborCost(ctx context.Context, role string, date Date, hours, overtimeHours decimal.Decimal) (decimal.Decimal, error) {
	rate, err := rr.resolve(ctx, RateLabor, role, date)
	if err != nil {
		return decimal.Zero, err
	}

	multiplier := rate.OvertimeMultiplier
	if multiplier.IsZero() {
		multiplier = DefaultOvertimeMultiplier
	}

	straight := rate.RatePerHour.Mul(hours)
	overtime := rate.RatePerHour.Mul(multiplier).Mul(overtimeHours)
	return straight.Add(overtime), nil
}

// EquipmentCost resolves the equipment rate for equipmentType on date.
func (rr *RateResolver) EquipmentCost(ctx context.Context, equipmentType string, date Date, hours decimal.Decimal) (decimal.Decimal, error) {
	rate, err := rr.resolve(ctx, RateEquipment, equipmentType, date)
	if err != nil {
		return decimal.Zero, err
	}
	return rate.RatePerHour.Mul(hours), nil
}

// resolve returns the single window covering date, or RateResolutionError.
func (rr *RateResolver) resolve(ctx context.Context, kind RateKind, subject string, date Date) (*RateSchedule, error) {
	rows, err := rr.Master.RateSchedulesFor(ctx, kind, subject)
	if err != nil {
		return nil, err
	}

	var match *RateSchedule
	matches := 0
	for i := range rows {
		if rows[i].Covers(date) {
			match = &rows[i]
			matches++
		}
	}

	if matches != 1 {
		return nil, &RateResolutionError{Kind: kind, Subject: subject, Date: date, Matches: matches}
	}
	return match, nil
}
