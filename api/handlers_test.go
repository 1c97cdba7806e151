package api_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/incident-finance/api"
	"github.com/warp/incident-finance/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	router, err := sqlite.NewRouter(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { router.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(router, nil)))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp, decoded
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestAPI_TimeEntryApprovalFlow(t *testing.T) {
	// GIVEN: An EMT rate in master data and a draft entry in an incident
	// WHEN: Submitting then approving over HTTP
	// THEN: The approval response carries the entry and its $220 cost entry

	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/master/rates", map[string]any{
		"kind":           "labor",
		"subject":        "EMT",
		"rate_per_hour":  "20",
		"effective_from": "2026-01-01",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, entry := doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/time-entries", map[string]any{
		"person_id":      "p-1",
		"date":           "2026-03-10",
		"hours_worked":   "8",
		"overtime_hours": "2",
		"rate_reference": "EMT",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	entryID := entry["id"].(string)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/time-entries/"+entryID+"/submit", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, approved := doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/time-entries/"+entryID+"/approve", map[string]any{
		"actor_id":   "sup-1",
		"account_id": "acct-labor",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cost := approved["cost_entry"].(map[string]any)
	assert.Equal(t, "220", cost["amount"])
	assert.Equal(t, "time", cost["source"])
}

func TestAPI_IncidentIsolationOverHTTP(t *testing.T) {
	// GIVEN: A cost entry posted to one incident
	// WHEN: Listing another incident's costs for the same date
	// THEN: The other incident sees nothing

	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/costs", map[string]any{
		"date":       "2026-03-10",
		"account_id": "acct-misc",
		"amount":     "50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	req, err := http.Get(srv.URL + "/api/incidents/fire-2026/costs?date=2026-03-10")
	require.NoError(t, err)
	defer req.Body.Close()
	require.Equal(t, http.StatusOK, req.StatusCode)

	var entries []map[string]any
	require.NoError(t, json.NewDecoder(req.Body).Decode(&entries))
	assert.Empty(t, entries)
}

// =============================================================================
// ERROR MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t)

	// 404 for a missing record
	resp, _ := doJSON(t, http.MethodGet, srv.URL+"/api/incidents/flood-2026/time-entries/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// 400 for the reserved incident id
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/incidents/master/time-entries", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// 409 for double finalization
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/costs/finalize", map[string]any{
		"date":         "2026-03-10",
		"finalized_by": "chief-1",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/incidents/flood-2026/costs/finalize", map[string]any{
		"date":         "2026-03-10",
		"finalized_by": "chief-2",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}
