// Package metrics holds the Prometheus collectors of the scheduler.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "dlsgrid"

// Span results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
	ResultSkipped = "skipped"
)

// Metrics groups every collector the scheduler updates.
type Metrics struct {
	// SpansTotal counts executed spans.
	// Labels: group, host, result (success, error, skipped)
	SpansTotal *prometheus.CounterVec

	// SpanDurationSeconds measures span method latency.
	// Labels: group, span
	SpanDurationSeconds *prometheus.HistogramVec

	// RoundTripsTotal counts dispatch hops issued by this host.
	// Labels: group, from, to
	RoundTripsTotal *prometheus.CounterVec

	// DispatchRequestsTotal counts dispatch requests received by this host.
	// Labels: group, code
	DispatchRequestsTotal *prometheus.CounterVec

	// PoolPeakActive is the highest number of spans a group's pool ran at
	// the same time on this host.
	// Labels: group, host
	PoolPeakActive *prometheus.GaugeVec
}

// New registers the collectors with reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SpansTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spans_total",
			Help:      "Total spans run by group, host and result",
		}, []string{"group", "host", "result"}),
		SpanDurationSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "span_duration_seconds",
			Help:      "Span method duration in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
		}, []string{"group", "span"}),
		RoundTripsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "round_trips_total",
			Help:      "Total dispatch hops issued by group, source and target host",
		}, []string{"group", "from", "to"}),
		DispatchRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_requests_total",
			Help:      "Total dispatch requests received by group and status code",
		}, []string{"group", "code"}),
		PoolPeakActive: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pool_peak_active",
			Help:      "Highest number of spans run at once by a group's worker pool",
		}, []string{"group", "host"}),
	}
}

// ObserveSpan records one span execution.
func (m *Metrics) ObserveSpan(group, host, span, result string, took time.Duration) {
	if m == nil {
		return
	}
	m.SpansTotal.WithLabelValues(group, host, result).Inc()
	if result != ResultSkipped {
		m.SpanDurationSeconds.WithLabelValues(group, span).Observe(took.Seconds())
	}
}

// ObserveRoundTrip records one dispatch hop.
func (m *Metrics) ObserveRoundTrip(group, from, to string) {
	if m == nil {
		return
	}
	m.RoundTripsTotal.WithLabelValues(group, from, to).Inc()
}

// ObserveDispatchRequest records one received dispatch request.
func (m *Metrics) ObserveDispatchRequest(group string, code int) {
	if m == nil {
		return
	}
	m.DispatchRequestsTotal.WithLabelValues(group, strconv.Itoa(code)).Inc()
}

// ObservePoolPeak records the peak concurrency of a group's pool.
func (m *Metrics) ObservePoolPeak(group, host string, peak int) {
	if m == nil {
		return
	}
	m.PoolPeakActive.WithLabelValues(group, host).Set(float64(peak))
}
