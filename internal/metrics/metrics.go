// Package metrics provides Prometheus instrumentation for the share engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TradesTotal counts submitted ledger trades, partitioned by side.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunevest_trades_total",
		Help: "Total number of share trades submitted to the ledger",
	}, []string{"side"})

	// TradeLatency tracks end-to-end ledger write latency per side.
	TradeLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunevest_trade_latency_seconds",
		Help:    "Ledger write latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"side"})

	// FlowStates counts trade-flow state transitions by resulting state.
	FlowStates = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunevest_flow_states_total",
		Help: "Trade flow state transitions by resulting state",
	}, []string{"state"})

	// RoundRejections counts buys rejected because the funding round ended.
	RoundRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunevest_round_rejections_total",
		Help: "Buys rejected because the funding round had ended",
	})

	// FaucetRequests counts test-fund grants issued.
	FaucetRequests = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunevest_faucet_requests_total",
		Help: "Test fund requests forwarded to the ledger faucet",
	})

	// ClaimsTotal counts dividend claims submitted.
	ClaimsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tunevest_claims_total",
		Help: "Dividend claims submitted to the ledger",
	})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tunevest_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunevest_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tunevest_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})

	// TradeVolume tracks cumulative trade volume (shares) per track.
	TradeVolume = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tunevest_trade_volume_total",
		Help: "Cumulative trade volume in shares",
	}, []string{"track_id", "side"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		// Use the route pattern for path label to avoid high cardinality.
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
