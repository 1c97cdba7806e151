package finance_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"github.com/warp/incident-finance/finance"
	"github.com/warp/incident-finance/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStores(t *testing.T) (*sqlite.MasterStore, *sqlite.IncidentStore) {
	t.Helper()

	master, err := sqlite.OpenMaster(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { master.Close() })

	incident, err := sqlite.OpenIncident(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { incident.Close() })

	return master, incident
}

func seedRate(t *testing.T, master finance.MasterStore, kind finance.RateKind, subject, perHour, from string, to string) {
	t.Helper()

	rate := finance.RateSchedule{
		ID:            uuid.NewString(),
		Kind:          kind,
		Subject:       subject,
		RatePerHour:   finance.MustDecimal(perHour),
		EffectiveFrom: finance.MustParseDate(from),
	}
	if to != "" {
		d := finance.MustParseDate(to)
		rate.EffectiveTo = &d
	}
	require.NoError(t, master.SaveRateSchedule(context.Background(), rate))
}

func seedChain(t *testing.T, master finance.MasterStore, id string, steps ...string) {
	t.Helper()
	require.NoError(t, master.SaveChainTemplate(context.Background(), finance.ChainTemplate{
		ID:    id,
		Name:  id,
		Steps: steps,
	}))
}

func seedVendor(t *testing.T, master finance.MasterStore, id, name string) {
	t.Helper()
	require.NoError(t, master.SaveVendor(context.Background(), finance.Vendor{ID: id, Name: name}))
}
