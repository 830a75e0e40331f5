// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Classification metrics
	HeadlinesClassified *prometheus.CounterVec
	HeadlinesRejected   prometheus.Counter

	// Oracle metrics
	ClassificationsPosted *prometheus.CounterVec
	PostLatency           prometheus.Histogram

	// Trade metrics
	TradesExecuted *prometheus.CounterVec
	TradeFailures  *prometheus.CounterVec
	GasUsed        prometheus.Histogram

	// Evaluation metrics
	EvaluationsSettled *prometheus.CounterVec

	// Watcher metrics
	HighWaterBlock       prometheus.Gauge
	EventsDispatched     prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	PollErrors           prometheus.Counter

	// Ledger metrics
	RPCCallLatency *prometheus.HistogramVec

	// Health metrics
	LastSuccessfulPoll prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "news_trader"
	}

	return &Metrics{
		HeadlinesClassified: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "headlines_classified_total",
			Help:      "Total number of headlines classified by sentiment",
		}, []string{"sentiment"}),
		HeadlinesRejected: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "classifier",
			Name:      "headlines_rejected_total",
			Help:      "Total number of headlines dropped by the confidence gate",
		}),

		ClassificationsPosted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "classifications_posted_total",
			Help:      "Total number of classification posts by status",
		}, []string{"status"}),
		PostLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "oracle",
			Name:      "post_latency_seconds",
			Help:      "Classification post confirmation latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		TradesExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trades_executed_total",
			Help:      "Total number of executed trades by action",
		}, []string{"action"}),
		TradeFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "trade_failures_total",
			Help:      "Total number of failed trade executions by kind",
		}, []string{"kind"}),
		GasUsed: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "trading",
			Name:      "gas_used",
			Help:      "Gas used per confirmed trade transaction",
			Buckets:   []float64{100_000, 250_000, 500_000, 750_000, 1_000_000, 1_500_000},
		}),

		EvaluationsSettled: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "evaluation",
			Name:      "evaluations_settled_total",
			Help:      "Total number of settled profitability verdicts",
		}, []string{"verdict"}),

		HighWaterBlock: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "high_water_block",
			Help:      "Highest fully processed block number",
		}),
		EventsDispatched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "events_dispatched_total",
			Help:      "Total number of classification events dispatched",
		}),
		DuplicatesSuppressed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "duplicates_suppressed_total",
			Help:      "Total number of already-seen classification events skipped",
		}),
		PollErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "watcher",
			Name:      "poll_errors_total",
			Help:      "Total number of failed poll cycles",
		}),

		RPCCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rpc_call_latency_seconds",
			Help:      "Ledger RPC call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		LastSuccessfulPoll: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_poll_timestamp",
			Help:      "Unix timestamp of the last successful watcher poll",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordClassification increments the classified-headlines counter.
func RecordClassification(sentiment string) {
	DefaultMetrics.HeadlinesClassified.WithLabelValues(sentiment).Inc()
}

// RecordRejection increments the confidence-gate rejection counter.
func RecordRejection() {
	DefaultMetrics.HeadlinesRejected.Inc()
}

// RecordPost records the outcome and latency of one classification post.
func RecordPost(status string, seconds float64) {
	DefaultMetrics.ClassificationsPosted.WithLabelValues(status).Inc()
	DefaultMetrics.PostLatency.Observe(seconds)
}

// RecordTrade records one executed trade.
func RecordTrade(action string, gasUsed uint64) {
	DefaultMetrics.TradesExecuted.WithLabelValues(action).Inc()
	DefaultMetrics.GasUsed.Observe(float64(gasUsed))
}

// RecordTradeFailure records one failed trade execution.
func RecordTradeFailure(kind string) {
	DefaultMetrics.TradeFailures.WithLabelValues(kind).Inc()
}

// RecordEvaluation records one settled profitability verdict.
func RecordEvaluation(profitable bool) {
	verdict := "unprofitable"
	if profitable {
		verdict = "profitable"
	}
	DefaultMetrics.EvaluationsSettled.WithLabelValues(verdict).Inc()
}

// UpdateHighWater updates the high-water block gauge and marks the poll
// as successful.
func UpdateHighWater(block int64) {
	DefaultMetrics.HighWaterBlock.Set(float64(block))
	DefaultMetrics.LastSuccessfulPoll.SetToCurrentTime()
}

// RecordDispatch increments the dispatched-events counter.
func RecordDispatch() {
	DefaultMetrics.EventsDispatched.Inc()
}

// RecordDuplicateSuppressed increments the suppressed-duplicates counter.
func RecordDuplicateSuppressed() {
	DefaultMetrics.DuplicatesSuppressed.Inc()
}

// RecordPollError increments the failed-poll counter.
func RecordPollError() {
	DefaultMetrics.PollErrors.Inc()
}

// RecordRPCLatency records ledger RPC call latency.
func RecordRPCLatency(method string, seconds float64) {
	DefaultMetrics.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}
