// Package metrics provides Prometheus metrics for consensus and settlement.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects the bot's Prometheus series on a private registry. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ConsensusRuns        *prometheus.CounterVec
	ConsensusConfidence  *prometheus.HistogramVec
	ConsensusAgreement   *prometheus.HistogramVec
	MarketsSkipped       *prometheus.CounterVec
	AgentLatency         *prometheus.HistogramVec
	AgentFailures        *prometheus.CounterVec
	SettlementRuns       *prometheus.CounterVec
	SettlementDuration   prometheus.Histogram
	PredictionsSettled   *prometheus.CounterVec
	CouponsSettled       *prometheus.CounterVec
	AlreadySettled       prometheus.Counter
	StaleCoupons         prometheus.Gauge
	TriggersDeduplicated *prometheus.CounterVec
	HTTPRequests         *prometheus.CounterVec
}

// New creates and registers every metric.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		ConsensusRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_consensus_runs_total",
				Help: "Consensus runs by outcome",
			},
			[]string{"status"},
		),
		ConsensusConfidence: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensusbot_consensus_confidence",
				Help:    "Calibrated consensus confidence",
				Buckets: prometheus.LinearBuckets(0, 10, 11),
			},
			[]string{"market"},
		),
		ConsensusAgreement: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensusbot_consensus_agreement_ratio",
				Help:    "Weight share of agents agreeing with the consensus label",
				Buckets: prometheus.LinearBuckets(0, 0.1, 11),
			},
			[]string{"market"},
		),
		MarketsSkipped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_markets_skipped_total",
				Help: "Markets without a consensus by reason",
			},
			[]string{"market", "reason"},
		),
		AgentLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "consensusbot_agent_latency_seconds",
				Help:    "Time for an agent to return its opinions",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
			[]string{"agent"},
		),
		AgentFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_agent_failures_total",
				Help: "Agents that failed or timed out during a consensus run",
			},
			[]string{"agent"},
		),
		SettlementRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_settlement_runs_total",
				Help: "Fixture settlement attempts by outcome",
			},
			[]string{"status"},
		),
		SettlementDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "consensusbot_settlement_duration_seconds",
				Help:    "Duration of one fixture settlement unit",
				Buckets: prometheus.DefBuckets,
			},
		),
		PredictionsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_predictions_settled_total",
				Help: "Settled consensus predictions",
			},
			[]string{"market", "correct"},
		),
		CouponsSettled: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_coupons_settled_total",
				Help: "Settled coupons by final status",
			},
			[]string{"status"},
		),
		AlreadySettled: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "consensusbot_already_settled_total",
				Help: "Re-settlement attempts ignored by the terminal-state guard",
			},
		),
		StaleCoupons: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "consensusbot_stale_coupons",
				Help: "Coupons still pending past the grace period after their last kickoff",
			},
		),
		TriggersDeduplicated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_triggers_deduplicated_total",
				Help: "Duplicate external triggers dropped",
			},
			[]string{"source"},
		),
		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "consensusbot_http_requests_total",
				Help: "HTTP requests by route and status code",
			},
			[]string{"method", "route", "code"},
		),
	}
	m.registry.MustRegister(
		m.ConsensusRuns,
		m.ConsensusConfidence,
		m.ConsensusAgreement,
		m.MarketsSkipped,
		m.AgentLatency,
		m.AgentFailures,
		m.SettlementRuns,
		m.SettlementDuration,
		m.PredictionsSettled,
		m.CouponsSettled,
		m.AlreadySettled,
		m.StaleCoupons,
		m.TriggersDeduplicated,
		m.HTTPRequests,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordConsensus(status string) {
	if m == nil {
		return
	}
	m.ConsensusRuns.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordPrediction(market string, confidence, agreement float64) {
	if m == nil {
		return
	}
	m.ConsensusConfidence.WithLabelValues(market).Observe(confidence)
	m.ConsensusAgreement.WithLabelValues(market).Observe(agreement)
}

func (m *Metrics) RecordSkipped(market, reason string) {
	if m == nil {
		return
	}
	m.MarketsSkipped.WithLabelValues(market, reason).Inc()
}

func (m *Metrics) RecordAgent(agent string, latency time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.AgentLatency.WithLabelValues(agent).Observe(latency.Seconds())
	if failed {
		m.AgentFailures.WithLabelValues(agent).Inc()
	}
}

func (m *Metrics) RecordSettlement(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.SettlementRuns.WithLabelValues(status).Inc()
	m.SettlementDuration.Observe(d.Seconds())
}

func (m *Metrics) RecordPredictionSettled(market string, correct bool) {
	if m == nil {
		return
	}
	c := "false"
	if correct {
		c = "true"
	}
	m.PredictionsSettled.WithLabelValues(market, c).Inc()
}

func (m *Metrics) RecordCouponSettled(status string) {
	if m == nil {
		return
	}
	m.CouponsSettled.WithLabelValues(status).Inc()
}

func (m *Metrics) RecordAlreadySettled(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AlreadySettled.Add(float64(n))
}

func (m *Metrics) SetStaleCoupons(n int) {
	if m == nil {
		return
	}
	m.StaleCoupons.Set(float64(n))
}

func (m *Metrics) RecordDuplicateTrigger(source string) {
	if m == nil {
		return
	}
	m.TriggersDeduplicated.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordHTTP(method, route string, code int) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, httpCode(code)).Inc()
}

func httpCode(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
