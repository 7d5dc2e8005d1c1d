package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devblac/counter-watch/internal/config"
	"github.com/devblac/counter-watch/internal/counter"
	"github.com/devblac/counter-watch/internal/engine"
	"github.com/devblac/counter-watch/internal/logging"
)

func i64(v int64) *int64 { return &v }

// history is newest first, as chain adapters deliver it.
func history() []counter.RawEvent {
	return []counter.RawEvent{
		{Reason: "Reset", OldValue: i64(2), NewValue: i64(0), Caller: "0xbob", TxHash: "0x4", Height: 4},
		{Reason: "Increase", OldValue: i64(1), NewValue: i64(2), Caller: "0xalice", TxHash: "0x3", Height: 3},
		{Reason: "Increase", OldValue: i64(0), NewValue: i64(1), Caller: "0xalice", TxHash: "0x2", Height: 2},
		{Reason: "Decrease", Caller: "0xcarol", TxHash: "0x1", Height: 1},
	}
}

func newTestServer(t *testing.T, sources ...string) *Server {
	t.Helper()
	snaps := engine.NewSnapshotter(true, nil)
	for _, id := range sources {
		snaps.Publish(id, history())
	}
	return New(snaps, config.APIConfig{LeaderboardLimit: 2, RecentEvents: 3}, logging.Discard())
}

func get(t *testing.T, s *Server, target string, out interface{}) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, req)
	if out != nil && rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec.Code
}

func TestStatsDefaultsToOnlySource(t *testing.T) {
	s := newTestServer(t, "counter_evm")

	var resp StatsResponse
	require.Equal(t, http.StatusOK, get(t, s, "/stats", &resp))
	assert.Equal(t, "counter_evm", resp.SourceID)
	assert.Equal(t, 4, resp.TotalChanges)
	assert.Equal(t, 2, resp.Increases)
	assert.Equal(t, 1, resp.Decreases)
	assert.Equal(t, 1, resp.Resets)
	assert.Equal(t, 3, resp.UniqueUsers)
	assert.Equal(t, int64(0), resp.CurrentValue)
}

func TestSourceRequiredWithSeveralSources(t *testing.T) {
	s := newTestServer(t, "a", "b")

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/stats", nil))

	var resp StatsResponse
	require.Equal(t, http.StatusOK, get(t, s, "/stats?source=b", &resp))
	assert.Equal(t, "b", resp.SourceID)
}

func TestUnknownSourceIsNotFound(t *testing.T) {
	s := newTestServer(t, "counter_evm")
	assert.Equal(t, http.StatusNotFound, get(t, s, "/leaderboard?source=missing", nil))
}

func TestNoSnapshotYet(t *testing.T) {
	s := newTestServer(t)
	assert.Equal(t, http.StatusBadRequest, get(t, s, "/events", nil))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/events?source=counter_evm", nil))

	var resp SourcesResponse
	require.Equal(t, http.StatusOK, get(t, s, "/sources", &resp))
	assert.Empty(t, resp.Sources)
}

func TestLeaderboardLimit(t *testing.T) {
	s := newTestServer(t, "counter_evm")

	var resp LeaderboardResponse
	require.Equal(t, http.StatusOK, get(t, s, "/leaderboard", &resp))
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "0xalice", resp.Entries[0].Address)
	assert.Equal(t, 2, resp.Entries[0].Increases)

	require.Equal(t, http.StatusOK, get(t, s, "/leaderboard?limit=1", &resp))
	assert.Len(t, resp.Entries, 1)
}

func TestLimitValidation(t *testing.T) {
	s := newTestServer(t, "counter_evm")

	for _, q := range []string{"limit=101", "limit=-1", "limit=abc"} {
		assert.Equal(t, http.StatusBadRequest, get(t, s, "/events?"+q, nil), q)
	}
	assert.Equal(t, http.StatusOK, get(t, s, "/events?limit=100", nil))
}

func TestEventsNewestFirstWithChange(t *testing.T) {
	s := newTestServer(t, "counter_evm")

	var resp struct {
		Events []struct {
			Reason  string `json:"reason"`
			TxHash  string `json:"tx_hash"`
			Change  string `json:"change"`
			Running int64  `json:"running_value"`
		} `json:"events"`
	}
	require.Equal(t, http.StatusOK, get(t, s, "/events", &resp))
	require.Len(t, resp.Events, 3)
	assert.Equal(t, "0x4", resp.Events[0].TxHash)
	assert.Equal(t, "Reset", resp.Events[0].Reason)
	assert.NotEmpty(t, resp.Events[0].Change)
	assert.Equal(t, "0x2", resp.Events[2].TxHash)
}

func TestAnalyticsAndSources(t *testing.T) {
	s := newTestServer(t, "b", "a")

	var an AnalyticsResponse
	require.Equal(t, http.StatusOK, get(t, s, "/analytics?source=a", &an))
	assert.InDelta(t, 50.0, an.IncreasePct, 0.001)
	assert.InDelta(t, 25.0, an.ResetPct, 0.001)
	assert.Len(t, an.Evolution, 4)

	var src SourcesResponse
	require.Equal(t, http.StatusOK, get(t, s, "/sources", &src))
	require.Len(t, src.Sources, 2)
	assert.Equal(t, "a", src.Sources[0].ID)
	assert.Equal(t, 4, src.Sources[0].TotalChanges)
}
