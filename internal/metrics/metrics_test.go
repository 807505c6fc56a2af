package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordConsensus("ok")
		m.RecordAgent("form", time.Second, true)
		m.RecordSettlement("ok", time.Second)
		m.RecordCouponSettled("won")
		m.SetStaleCoupons(3)
		m.RecordHTTP("GET", "/api/health", 200)
	})
}

func TestRecordersUpdateSeries(t *testing.T) {
	m := New()
	m.RecordConsensus("ok")
	m.RecordConsensus("ok")
	m.RecordAgent("odds", 20*time.Millisecond, true)
	m.RecordPredictionSettled("btts", true)
	m.RecordAlreadySettled(2)
	m.SetStaleCoupons(4)

	body := scrape(t, m)
	assert.Contains(t, body, `consensusbot_consensus_runs_total{status="ok"} 2`)
	assert.Contains(t, body, `consensusbot_agent_failures_total{agent="odds"} 1`)
	assert.Contains(t, body, `consensusbot_predictions_settled_total{correct="true",market="btts"} 1`)
	assert.Contains(t, body, "consensusbot_already_settled_total 2")
	assert.Contains(t, body, "consensusbot_stale_coupons 4")
}

func TestHandlerExposesRegistry(t *testing.T) {
	m := New()
	m.RecordHTTP(http.MethodGet, "/api/leaderboard", 503)

	assert.Contains(t, scrape(t, m), `consensusbot_http_requests_total{code="5xx",method="GET",route="/api/leaderboard"} 1`)
}

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	return rec.Body.String()
}
