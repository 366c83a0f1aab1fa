package observability

import (
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Label values used across the bot.
var (
	renderDecisions   = []string{"send", "chunked", "noop", "edit_markup", "edit_media", "edit_text", "edit_caption", "resend", "fallback_resend"}
	statementOutcomes = []string{"ok", "unauthorized", "rate_limited", "api_error", "transport_error"}
	reportStatuses    = []string{"sent", "failed", "unreachable", "unauthorized", "skipped"}
)

// Metrics holds all Prometheus metrics for the bot.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	externalErrors    *prometheus.CounterVec
	cacheHits         *prometheus.CounterVec
	cacheMisses       *prometheus.CounterVec
	renderDecisions   *prometheus.CounterVec
	statementRequests *prometheus.CounterVec
	rateGateWait      prometheus.Histogram
	reports           *prometheus.CounterVec
	updates           *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "monobot_operation_duration_seconds",
				Help:    "Duration of operations by name.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		cacheHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_cache_hits_total",
				Help: "Total cache hits.",
			},
			[]string{"cache"},
		),
		cacheMisses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_cache_misses_total",
				Help: "Total cache misses.",
			},
			[]string{"cache"},
		),
		renderDecisions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_render_decisions_total",
				Help: "Reconciliation decisions taken for interface renders.",
			},
			[]string{"decision"},
		),
		statementRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_statement_requests_total",
				Help: "Statement requests dispatched, by outcome.",
			},
			[]string{"outcome"},
		),
		rateGateWait: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "monobot_rate_gate_wait_seconds",
				Help:    "Time callers spent waiting on the per-credential rate gate.",
				Buckets: []float64{0, 1, 5, 15, 30, 45, 60},
			},
		),
		reports: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_reports_total",
				Help: "Daily reports processed, by status.",
			},
			[]string{"status"},
		),
		updates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "monobot_updates_total",
				Help: "Chat updates routed, by kind.",
			},
			[]string{"kind"},
		),
		activeSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "monobot_active_sessions",
				Help: "Chats with in-memory session state.",
			},
		),
	}
}

// RecordRequestDuration records the duration of an operation.
func (m *Metrics) RecordRequestDuration(operation string, d time.Duration) {
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// IncrCacheHit increments the cache hit counter.
func (m *Metrics) IncrCacheHit(cache string) {
	m.cacheHits.WithLabelValues(cache).Inc()
}

// IncrCacheMiss increments the cache miss counter.
func (m *Metrics) IncrCacheMiss(cache string) {
	m.cacheMisses.WithLabelValues(cache).Inc()
}

// IncrRenderDecision counts one reconciliation decision.
func (m *Metrics) IncrRenderDecision(decision string) {
	m.renderDecisions.WithLabelValues(decision).Inc()
}

// IncrStatementRequest counts one dispatched statement request.
func (m *Metrics) IncrStatementRequest(outcome string) {
	m.statementRequests.WithLabelValues(outcome).Inc()
}

// RecordRateGateWait records how long a caller was held by the rate gate.
func (m *Metrics) RecordRateGateWait(d time.Duration) {
	m.rateGateWait.Observe(d.Seconds())
}

// IncrReport counts a processed report.
func (m *Metrics) IncrReport(status string) {
	m.reports.WithLabelValues(status).Inc()
}

// IncrUpdate counts a routed chat update.
func (m *Metrics) IncrUpdate(kind string) {
	m.updates.WithLabelValues(kind).Inc()
}

// SetActiveSessions sets the live session gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Snapshot returns the bot counters suitable for GET /v1/metrics/bot.
func (m *Metrics) Snapshot() *domain.BotMetrics {
	snap := &domain.BotMetrics{
		RenderDecisions:   collect(m.renderDecisions, renderDecisions),
		StatementRequests: collect(m.statementRequests, statementOutcomes),
		Reports:           collect(m.reports, reportStatuses),
	}

	hits := getCounterValue(m.cacheHits, "accounts")
	misses := getCounterValue(m.cacheMisses, "accounts")
	if hits+misses > 0 {
		snap.CacheHitRate = hits / (hits + misses)
	}

	var total, failed int64
	for outcome, n := range snap.StatementRequests {
		total += n
		if outcome != "ok" {
			failed += n
		}
	}
	if total > 0 {
		snap.StatementErrorRate = float64(failed) / float64(total)
	}

	metric := &dto.Metric{}
	if err := m.rateGateWait.Write(metric); err == nil && metric.Histogram != nil {
		snap.RateGateWaits = int64(metric.Histogram.GetSampleCount())
		snap.RateGateWaitSecs = metric.Histogram.GetSampleSum()
	}

	metric = &dto.Metric{}
	if err := m.activeSessions.Write(metric); err == nil && metric.Gauge != nil {
		snap.ActiveSessions = int(metric.Gauge.GetValue())
	}

	return snap
}

func collect(cv *prometheus.CounterVec, labels []string) map[string]int64 {
	out := make(map[string]int64, len(labels))
	for _, l := range labels {
		if v := getCounterValue(cv, l); v > 0 {
			out[l] = int64(v)
		}
	}
	return out
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	counter := cv.WithLabelValues(label)
	m := &dto.Metric{}
	if err := counter.(prometheus.Metric).Write(m); err != nil {
		return 0
	}
	if m.Counter != nil && m.Counter.Value != nil {
		return *m.Counter.Value
	}
	return 0
}
