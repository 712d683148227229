package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guardline"

// Metrics 指标管理器
type Metrics struct {
	gatherer prometheus.Gatherer

	// HTTP请求指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// HTTP 限流
	rateLimitTotal *prometheus.CounterVec

	// 业务指标
	submissionsTotal   *prometheus.CounterVec
	transitionsTotal   *prometheus.CounterVec
	nearestTeamKm      prometheus.Histogram
	sideEffectFailures *prometheus.CounterVec
	realtimeDelivered  prometheus.Counter
}

// New registers the collectors on reg. Pass prometheus.NewRegistry() in
// tests to keep registrations isolated.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		gatherer: reg,
		httpRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimitTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_rate_limit_total",
			Help:      "HTTP rate limiter decisions",
		}, []string{"route", "decision"}),
		submissionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "submissions_total",
			Help:      "Emergency submissions by outcome",
		}, []string{"outcome"}),
		transitionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "transitions_total",
			Help:      "Status transitions by target status",
		}, []string{"to"}),
		nearestTeamKm: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "nearest_team_distance_km",
			Help:      "Distance to the nearest team at assignment time",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 50, 100},
		}),
		sideEffectFailures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "emergency",
			Name:      "side_effect_failures_total",
			Help:      "Best-effort side effects that failed",
		}, []string{"kind"}),
		realtimeDelivered: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "realtime_deliveries_total",
			Help:      "Status events handed to realtime subscribers",
		}),
	}
}

// ObserveSubmission counts a submission; outcome is "accepted" or an error key.
func (m *Metrics) ObserveSubmission(outcome string) {
	if m == nil {
		return
	}
	m.submissionsTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveTransition(to string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(to).Inc()
}

func (m *Metrics) ObserveNearestDistance(km float64) {
	if m == nil {
		return
	}
	m.nearestTeamKm.Observe(km)
}

func (m *Metrics) ObserveSideEffectFailure(kind string) {
	if m == nil {
		return
	}
	m.sideEffectFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveRealtime(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.realtimeDelivered.Add(float64(n))
}

// RecordHTTPRequest 记录HTTP请求
func (m *Metrics) RecordHTTPRequest(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	m.httpRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// OnAllow / OnDeny satisfy middleware.MetricsObserver.
func (m *Metrics) OnAllow(route string) {
	if m == nil {
		return
	}
	m.rateLimitTotal.WithLabelValues(route, "allow").Inc()
}

func (m *Metrics) OnDeny(route string) {
	if m == nil {
		return
	}
	m.rateLimitTotal.WithLabelValues(route, "deny").Inc()
}

// Handler exposes the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
