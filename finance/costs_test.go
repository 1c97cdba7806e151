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
// POSTING
// =============================================================================

func TestCostLedger_ManualPostAndList(t *testing.T) {
	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()

	entry, err := costs.Post(ctx, finance.PostCostEntryRequest{
		Date:      finance.MustParseDate("2026-03-10"),
		AccountID: "acct-misc",
		Amount:    finance.MustDecimal("42.50"),
		Source:    finance.SourceManual,
	})
	require.NoError(t, err)
	require.NotEmpty(t, entry.ID)

	entries, err := costs.EntriesOn(ctx, finance.MustParseDate("2026-03-10"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Amount.Equal(finance.MustDecimal("42.50")))
}

func TestCostLedger_ReversingEntryNotAnEdit(t *testing.T) {
	// GIVEN: A posted manual entry
	// WHEN: Correcting it with a negated posting
	// THEN: Both lines remain; the day's net is zero

	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()
	date := finance.MustParseDate("2026-03-10")

	_, err := costs.Post(ctx, finance.PostCostEntryRequest{
		Date: date, AccountID: "acct-misc", Amount: finance.MustDecimal("100"), Source: finance.SourceManual,
	})
	require.NoError(t, err)
	_, err = costs.Post(ctx, finance.PostCostEntryRequest{
		Date: date, AccountID: "acct-misc", Amount: finance.MustDecimal("-100"), Source: finance.SourceManual,
		Description: "reversal",
	})
	require.NoError(t, err)

	entries, err := costs.EntriesOn(ctx, date)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	net := entries[0].Amount.Add(entries[1].Amount)
	assert.True(t, net.IsZero())
}

// =============================================================================
// FINALIZATION
// =============================================================================

func TestCostLedger_FinalizeBucketsByOrigin(t *testing.T) {
	// GIVEN: A day with a procurement entry, an equipment-tagged manual entry,
	//        and a plain manual entry
	// WHEN: Finalizing the day
	// THEN: Each amount lands in its bucket

	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()
	date := finance.MustParseDate("2026-03-10")

	post := func(amount string, source finance.CostSource, tag string) {
		_, err := costs.Post(ctx, finance.PostCostEntryRequest{
			Date: date, AccountID: "acct", Amount: finance.MustDecimal(amount), Source: source, Tag: tag,
		})
		require.NoError(t, err)
	}
	post("1000", finance.SourceProcurement, "")
	post("200", finance.SourceManual, finance.TagEquipment)
	post("30", finance.SourceManual, "")

	summary, err := costs.FinalizeDay(ctx, finance.FinalizeDayRequest{
		Date:        date,
		FinalizedBy: "chief-1",
	})
	require.NoError(t, err)

	assert.True(t, summary.TotalProcurement.Equal(finance.MustDecimal("1000")))
	assert.True(t, summary.TotalEquipment.Equal(finance.MustDecimal("200")))
	assert.True(t, summary.TotalOther.Equal(finance.MustDecimal("30")))
	assert.True(t, summary.TotalLabor.IsZero())
}

func TestCostLedger_TimeEntriesSplitLaborVsEquipment(t *testing.T) {
	// GIVEN: An approved labor entry and an approved equipment-use entry on
	//        the same day
	// WHEN: Finalizing
	// THEN: Labor and equipment totals come out separately

	master, incident := newTestStores(t)
	resolver := &finance.RateResolver{Master: master}
	ts := finance.NewTimesheet(incident, resolver, nil)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()

	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")
	seedRate(t, master, finance.RateEquipment, "pump", "50", "2026-01-01", "")

	approve := func(req finance.CreateTimeEntryRequest) {
		entry, err := ts.Create(ctx, req)
		require.NoError(t, err)
		_, err = ts.Submit(ctx, entry.ID)
		require.NoError(t, err)
		_, _, err = ts.Approve(ctx, finance.ApproveTimeEntryRequest{
			EntryID: entry.ID, ActorID: "sup-1", AccountID: "acct",
		})
		require.NoError(t, err)
	}
	approve(finance.CreateTimeEntryRequest{
		PersonID: "p1", Date: finance.MustParseDate("2026-03-10"),
		HoursWorked: finance.MustDecimal("8"), RateRef: "EMT",
	})
	approve(finance.CreateTimeEntryRequest{
		PersonID: "p2", Date: finance.MustParseDate("2026-03-10"),
		HoursWorked: finance.MustDecimal("4"), EquipmentRef: "pump",
	})

	summary, err := costs.FinalizeDay(ctx, finance.FinalizeDayRequest{
		Date:        finance.MustParseDate("2026-03-10"),
		FinalizedBy: "chief-1",
	})
	require.NoError(t, err)

	assert.True(t, summary.TotalLabor.Equal(finance.MustDecimal("160")), "labor %s", summary.TotalLabor)
	assert.True(t, summary.TotalEquipment.Equal(finance.MustDecimal("200")), "equipment %s", summary.TotalEquipment)
}

func TestCostLedger_SecondFinalizeRejected(t *testing.T) {
	// GIVEN: A finalized day
	// WHEN: Finalizing it again
	// THEN: ErrAlreadyFinalized; the original summary is untouched

	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()
	date := finance.MustParseDate("2026-03-10")

	_, err := costs.Post(ctx, finance.PostCostEntryRequest{
		Date: date, AccountID: "acct", Amount: finance.MustDecimal("10"), Source: finance.SourceManual,
	})
	require.NoError(t, err)

	first, err := costs.FinalizeDay(ctx, finance.FinalizeDayRequest{Date: date, FinalizedBy: "chief-1"})
	require.NoError(t, err)

	_, err = costs.FinalizeDay(ctx, finance.FinalizeDayRequest{Date: date, FinalizedBy: "chief-2"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrAlreadyFinalized))

	current, err := costs.SummaryFor(ctx, date)
	require.NoError(t, err)
	assert.Equal(t, first.ID, current.ID)
	assert.Equal(t, "chief-1", current.FinalizedBy)
}

func TestCostLedger_PostAfterFinalizeRejected(t *testing.T) {
	// GIVEN: A finalized day
	// WHEN: Posting a cost entry dated that day
	// THEN: ErrDateFinalized; the ledger for the day is unchanged

	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()
	date := finance.MustParseDate("2026-03-10")

	_, err := costs.FinalizeDay(ctx, finance.FinalizeDayRequest{Date: date, FinalizedBy: "chief-1"})
	require.NoError(t, err)

	_, err = costs.Post(ctx, finance.PostCostEntryRequest{
		Date: date, AccountID: "acct", Amount: finance.MustDecimal("10"), Source: finance.SourceManual,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrDateFinalized))

	entries, err := costs.EntriesOn(ctx, date)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCostLedger_ApproveAfterFinalizeRollsBack(t *testing.T) {
	// GIVEN: A submitted time entry dated on a finalized day
	// WHEN: Approving it
	// THEN: The whole approval fails and the entry stays Submitted; the
	//       status change cannot outlive the rejected posting

	master, incident := newTestStores(t)
	resolver := &finance.RateResolver{Master: master}
	ts := finance.NewTimesheet(incident, resolver, nil)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()

	seedRate(t, master, finance.RateLabor, "EMT", "20", "2026-01-01", "")
	date := finance.MustParseDate("2026-03-10")

	entry, err := ts.Create(ctx, finance.CreateTimeEntryRequest{
		PersonID: "p1", Date: date, HoursWorked: finance.MustDecimal("8"), RateRef: "EMT",
	})
	require.NoError(t, err)
	_, err = ts.Submit(ctx, entry.ID)
	require.NoError(t, err)

	_, err = costs.FinalizeDay(ctx, finance.FinalizeDayRequest{Date: date, FinalizedBy: "chief-1"})
	require.NoError(t, err)

	_, _, err = ts.Approve(ctx, finance.ApproveTimeEntryRequest{
		EntryID: entry.ID, ActorID: "sup-1", AccountID: "acct",
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, finance.ErrDateFinalized))

	current, err := ts.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, finance.TimeEntrySubmitted, current.Status)
}

func TestCostLedger_FinalizeEmptyDayLocksZeroTotals(t *testing.T) {
	_, incident := newTestStores(t)
	costs := finance.NewCostLedger(incident, nil)
	ctx := context.Background()
	date := finance.MustParseDate("2026-03-10")

	summary, err := costs.FinalizeDay(ctx, finance.FinalizeDayRequest{Date: date, FinalizedBy: "chief-1"})
	require.NoError(t, err)
	assert.True(t, summary.TotalLabor.IsZero())
	assert.True(t, summary.TotalEquipment.IsZero())
	assert.True(t, summary.TotalProcurement.IsZero())
	assert.True(t, summary.TotalOther.IsZero())
}
