package api

import "github.com/prometheus/client_golang/prometheus"

// metrics holds the Prometheus collectors exposed at GET /metrics:
// package-level vectors registered once at construction, updated inline
// from the handlers that observe them.
type metrics struct {
	ordersSubmitted *prometheus.CounterVec
	tradesExecuted  prometheus.Counter
	requestLatency  *prometheus.HistogramVec
}

func newMetrics() *metrics {
	m := &metrics{
		ordersSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "aiverse_orders_submitted_total",
			Help: "Orders submitted, labeled by side and resulting status.",
		}, []string{"side", "status"}),
		tradesExecuted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "aiverse_trades_executed_total",
			Help: "Trades settled across all tickers.",
		}),
		requestLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "aiverse_http_request_duration_seconds",
			Help:    "HTTP handler latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}
	prometheus.MustRegister(m.ordersSubmitted, m.tradesExecuted, m.requestLatency)
	return m
}
