package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics records RPC activity and pool lifecycle events for the daemon.
type PoolMetrics struct {
	requests *prometheus.CounterVec
	errors   *prometheus.CounterVec
	latency  *prometheus.HistogramVec

	deposits    prometheus.Counter
	withdrawals prometheus.Counter
	awards      prometheus.Counter
}

var (
	poolMetricsOnce sync.Once
	poolRegistry    *PoolMetrics
)

// Metrics returns the lazily-initialised pool metrics registry.
func Metrics() *PoolMetrics {
	poolMetricsOnce.Do(func() {
		poolRegistry = &PoolMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prizevault",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "prizevault",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total RPC errors segmented by method and status code.",
			}, []string{"method", "status"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "prizevault",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			deposits: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prizevault",
				Subsystem: "pool",
				Name:      "deposits_total",
				Help:      "Count of accepted deposits and ticket purchases.",
			}),
			withdrawals: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prizevault",
				Subsystem: "pool",
				Name:      "withdrawals_total",
				Help:      "Count of completed withdrawals.",
			}),
			awards: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "prizevault",
				Subsystem: "pool",
				Name:      "awards_total",
				Help:      "Count of completed prize awards.",
			}),
		}
		prometheus.MustRegister(
			poolRegistry.requests,
			poolRegistry.errors,
			poolRegistry.latency,
			poolRegistry.deposits,
			poolRegistry.withdrawals,
			poolRegistry.awards,
		)
	})
	return poolRegistry
}

// Observe records the outcome of an RPC request. The status code should be the
// HTTP status ultimately written to the response.
func (m *PoolMetrics) Observe(method string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if status >= 400 {
		outcome = "error"
		m.errors.WithLabelValues(method, strconv.Itoa(status)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordDeposit increments the accepted deposit counter.
func (m *PoolMetrics) RecordDeposit() {
	if m != nil {
		m.deposits.Inc()
	}
}

// RecordWithdrawal increments the completed withdrawal counter.
func (m *PoolMetrics) RecordWithdrawal() {
	if m != nil {
		m.withdrawals.Inc()
	}
}

// RecordAward increments the completed award counter.
func (m *PoolMetrics) RecordAward() {
	if m != nil {
		m.awards.Inc()
	}
}
