// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Ledger metrics
	OpsTotal        *prometheus.CounterVec
	OpLatency       *prometheus.HistogramVec
	EventsPublished *prometheus.CounterVec
	RecordsMinted   prometheus.Counter
	UnitsSold       prometheus.Counter

	// Funds metrics
	ProceedsWithdrawn prometheus.Counter
	PayoutFailures    prometheus.Counter
	Treasury          prometheus.Gauge
	ActiveListings    prometheus.Gauge

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Transport metrics
	RPCRequests      *prometheus.CounterVec
	WSSubscribers    prometheus.Gauge
	WSDroppedClients prometheus.Counter
}

// NewMetrics creates a new Metrics instance registered with reg.
// A nil reg registers with the default registry.
func NewMetrics(namespace string, reg prometheus.Registerer) *Metrics {
	if namespace == "" {
		namespace = "file_nft_market"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		OpsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operations_total",
			Help:      "Total number of ledger operations by method and outcome",
		}, []string{"method", "outcome"}),
		OpLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "operation_latency_seconds",
			Help:      "Ledger operation latency in seconds, persistence and payout included",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		EventsPublished: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "events_published_total",
			Help:      "Total number of committed events published by kind",
		}, []string{"kind"}),
		RecordsMinted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "records_minted_total",
			Help:      "Total number of records minted",
		}),
		UnitsSold: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "units_sold_total",
			Help:      "Total number of units sold through the marketplace",
		}),

		ProceedsWithdrawn: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "proceeds_withdrawn_units_total",
			Help:      "Total native units paid out to sellers",
		}),
		PayoutFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "payout_failures_total",
			Help:      "Total number of withdrawals rolled back because the payout failed",
		}),
		Treasury: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "treasury_units",
			Help:      "Native units currently held by the marketplace",
		}),
		ActiveListings: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "market",
			Name:      "active_listings",
			Help:      "Number of listings with a positive amount",
		}),

		DBQueryDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		RPCRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rpc_requests_total",
			Help:      "Total number of JSON-RPC requests by method and error code",
		}, []string{"method", "code"}),
		WSSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_subscribers",
			Help:      "Current number of event stream subscribers",
		}),
		WSDroppedClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "ws_dropped_clients_total",
			Help:      "Total number of event stream clients dropped for falling behind",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("", nil)

// RecordOp records the outcome and latency of a ledger operation.
// outcome is "ok" or the failure kind.
func RecordOp(method, outcome string, seconds float64) {
	DefaultMetrics.OpsTotal.WithLabelValues(method, outcome).Inc()
	DefaultMetrics.OpLatency.WithLabelValues(method).Observe(seconds)
}

// RecordEvent increments the published events counter for kind.
func RecordEvent(kind string) {
	DefaultMetrics.EventsPublished.WithLabelValues(kind).Inc()
	switch kind {
	case "RecordCreated":
		DefaultMetrics.RecordsMinted.Inc()
	case "ItemBought":
		DefaultMetrics.UnitsSold.Inc()
	}
}

// RecordWithdrawal records a successful payout of amount units.
func RecordWithdrawal(amount uint64) {
	DefaultMetrics.ProceedsWithdrawn.Add(float64(amount))
}

// RecordPayoutFailure increments the payout failure counter.
func RecordPayoutFailure() {
	DefaultMetrics.PayoutFailures.Inc()
}

// UpdateMarketGauges sets the treasury and active listing gauges.
func UpdateMarketGauges(treasury uint64, activeListings int) {
	DefaultMetrics.Treasury.Set(float64(treasury))
	DefaultMetrics.ActiveListings.Set(float64(activeListings))
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}

// RecordRPC records a JSON-RPC request. code is 0 on success.
func RecordRPC(method string, code int) {
	DefaultMetrics.RPCRequests.WithLabelValues(method, codeLabel(code)).Inc()
}

// UpdateSubscribers sets the event stream subscriber gauge.
func UpdateSubscribers(n int) {
	DefaultMetrics.WSSubscribers.Set(float64(n))
}

// RecordDroppedClient increments the dropped event stream clients counter.
func RecordDroppedClient() {
	DefaultMetrics.WSDroppedClients.Inc()
}

func codeLabel(code int) string {
	if code == 0 {
		return "ok"
	}
	return strconv.Itoa(code)
}
