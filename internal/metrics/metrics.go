// Package metrics provides Prometheus instrumentation for the ledger core.
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
	// TradesTotal counts executed trades, partitioned by order kind.
	TradesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upsanddowns_trades_total",
		Help: "Total number of executed trades",
	}, []string{"kind"})

	// TradeRejections counts business rejections by reason.
	TradeRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upsanddowns_trade_rejections_total",
		Help: "Trades rejected before execution",
	}, []string{"reason"})

	// LockTimeouts counts lock acquisitions that hit the wait bound.
	LockTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "upsanddowns_lock_timeouts_total",
		Help: "Account lock acquisitions that timed out",
	})

	// LeaderboardRefreshDuration tracks full aggregation cycle duration.
	LeaderboardRefreshDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "upsanddowns_leaderboard_refresh_seconds",
		Help:    "Leaderboard aggregation cycle duration in seconds",
		Buckets: prometheus.DefBuckets,
	})

	// LeaderboardAccounts tracks how many accounts the last cycle ranked.
	LeaderboardAccounts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "upsanddowns_leaderboard_accounts",
		Help: "Accounts included in the last leaderboard cycle",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "upsanddowns_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "upsanddowns_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
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
		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
