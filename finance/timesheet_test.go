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

func newTestTimesheet(t *testing.T) (*finance.Timesheet, *finance.CostLedger, finance.MasterStore) {
	master, incident := newTestStores(t)
	resolver := &finance.RateResolver{Master: master}
	return finance.NewTimesheet(incident, resolver, nil),
		finance.NewCostLedger(incident, nil),
		master
}

func draftEntry(t *testing.T, ts *finance.Timesheet, rateRef, date string) *finance.TimeEntry {
	t.Helper()
	entry, err := ts.Create(context.Background(), finance.CreateTimeEntryRequest{
		PersonID:    "person-1",
		Role:        rateRef,
		Date:        finance.MustParseDate(date),
		HoursWorked: finance.MustDecimal("8"),
		RateRef:     rateRef,
	})
	require.NoError(t, err)
	return entry
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestTimesheet_ApprovePostsCostAtomically(t *testing.T) {
	// GIVEN: A submitted EMT entry of 8 regular + 2 overtime hours at $20/hr
	// WHEN: A supervisor approves it
	// THEN: The entry is Approved and a $220 source="time" cost entry exists
	//       for the work date

	ts, costs, master := newTestTimesheet(t)
	ctx := context.Background()
	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")

	entry, err := ts.Create(ctx, finance.CreateTimeEntryRequest{
		PersonID:      "person-1",
		Role:          "EMT",
		Date:          finance.MustParseDate("2026-03-10"),
		HoursWorked:   finance.MustDecimal("8"),
		OvertimeHours: finance.MustDecimal("2"),
		RateRef:       "EMT",
	})
	require.NoError(t, err)

	_, err = ts.Submit(ctx, entry.ID)
	require.NoError(t, err)

	approved, posted, err := ts.Approve(ctx, finance.ApproveTimeEntryRequest{
		EntryID:   entry.ID,
		ActorID:   "supervisor-1",
		AccountID: "acct-labor",
	})
	require.NoError(t, err)

	assert.Equal(t, finance.TimeEntryApproved, approved.Status)
	assert.Equal(t, "supervisor-1", approved.ApprovedBy)
	assert.True(t, posted.Amount.Equal(finance.MustDecimal("220")), "got %s", posted.Amount)
	assert.Equal(t, finance.SourceTime, posted.Source)
	assert.Equal(t, entry.ID, posted.RefID)

	entries, err := costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(finance.MustDecimal("220")))
}

func TestTimesheet_ApproveWithoutRate_NothingPersists(t *testing.T) {
	// GIVEN: A submitted entry whose role has no rate window
	// WHEN: Approving
	// THEN: The operation fails and the entry is still Submitted with no
	//       cost entry posted

	ts, costs, _ := newTestTimesheet(t)
	ctx := context.Background()

	entry := draftEntry(t, ts, "unknown-role", "2026-03-10")
	_, err := ts.Submit(ctx, entry.ID)
	require.NoError(t, err)

	_, _, err = ts.Approve(ctx, finance.ApproveTimeEntryRequest{
		EntryID:   entry.ID,
		ActorID:   "supervisor-1",
		AccountID: "acct-labor",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrAmbiguousOrMissingRate))

	current, err := ts.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.TimeEntrySubmitted, current.Status)

	entries, err := costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTimesheet_RejectPostsNothing(t *testing.T) {
	// GIVEN: A submitted entry
	// WHEN: Rejecting it
	// THEN: Status is Rejected and the cost ledger stays empty

	ts, costs, master := newTestTimesheet(t)
	ctx := context.Background()
	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")

	entry := draftEntry(t, ts, "EMT", "2026-03-10")
	_, err := ts.Submit(ctx, entry.ID)
	require.NoError(t, err)

	rejected, err := ts.Reject(ctx, entry.ID, "supervisor-1")
	require.NoError(t, err)
	assert.Equal(t, finance.TimeEntryRejected, rejected.Status)

	entries, err := costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTimesheet_ApprovedEntryIsLocked(t *testing.T) {
	// GIVEN: An approved entry
	// WHEN: Editing its hours
	// THEN: The edit fails with ErrEntryLocked

	ts, _, master := newTestTimesheet(t)
	ctx := context.Background()
	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")

	entry := draftEntry(t, ts, "EMT", "2026-03-10")
	_, err := ts.Submit(ctx, entry.ID)
	require.NoError(t, err)
	_, _, err = ts.Approve(ctx, finance.ApproveTimeEntryRequest{
		EntryID: entry.ID, ActorID: "supervisor-1", AccountID: "acct-labor",
	})
	require.NoError(t, err)

	hours := finance.MustDecimal("12")
	_, err = ts.Update(ctx, finance.UpdateTimeEntryRequest{
		EntryID:     entry.ID,
		HoursWorked: &hours,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrEntryLocked))
}

func TestTimesheet_ApproveRequiresSubmitted(t *testing.T) {
	// GIVEN: A draft entry
	// WHEN: Approving directly
	// THEN: The state machine rejects it

	ts, _, master := newTestTimesheet(t)
	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")

	entry := draftEntry(t, ts, "EMT", "2026-03-10")
	_, _, err := ts.Approve(context.Background(), finance.ApproveTimeEntryRequest{
		EntryID: entry.ID, ActorID: "supervisor-1", AccountID: "acct-labor",
	})

	require.Error(t, err)
	var serr *finance.StateTransitionError
	assert.ErrorAs(t, err, &serr)
}

func TestTimesheet_NegativeHoursRejected(t *testing.T) {
	// GIVEN: A create request with negative hours
	// WHEN: Creating
	// THEN: Validation fails before anything persists

	ts, _, _ := newTestTimesheet(t)

	_, err := ts.Create(context.Background(), finance.CreateTimeEntryRequest{
		PersonID:    "person-1",
		Date:        finance.MustParseDate("2026-03-10"),
		HoursWorked: finance.MustDecimal("-1"),
		RateRef:     "EMT",
	})

	require.Error(t, err)
	var verr *finance.ValidationError
	assert.ErrorAs(t, err, &verr)
}

func TestTimesheet_EquipmentEntryUsesEquipmentRate(t *testing.T) {
	// GIVEN: A submitted entry referencing an excavator at $100/hr
	// WHEN: Approving 5 hours of use
	// THEN: The posted amount is $500, costed by the equipment rate

	ts, _, master := newTestTimesheet(t)
	ctx := context.Background()
	seedRate(t, master, finance.RateEquipment, "excavator", "100", "2026-01-01", "")

	entry, err := ts.Create(ctx, finance.CreateTimeEntryRequest{
		PersonID:     "operator-1",
		Date:         finance.MustParseDate("2026-03-10"),
		HoursWorked:  finance.MustDecimal("5"),
		EquipmentRef: "excavator",
	})
	require.NoError(t, err)

	_, err = ts.Submit(ctx, entry.ID)
	require.NoError(t, err)

	_, posted, err := ts.Approve(ctx, finance.ApproveTimeEntryRequest{
		EntryID: entry.ID, ActorID: "supervisor-1", AccountID: "acct-equip",
	})
	require.NoError(t, err)
	assert.True(t, posted.Amount.Equal(finance.MustDecimal("500")), "got %s", posted.Amount)
}
