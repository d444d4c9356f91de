package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the viewer service.
type Metrics struct {
	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Session metrics
	SessionsActive  prometheus.Gauge
	SessionsCreated prometheus.Counter
	SessionsStopped prometheus.Counter
	LaunchFailures  prometheus.Counter
	DiscoveryRuns   *prometheus.CounterVec

	// Bridge metrics
	BridgesActive prometheus.Gauge
	BridgesTotal  prometheus.Counter
	BridgeBytes   *prometheus.CounterVec
	BridgeErrors  *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.Gauge
	startTime time.Time
}

// NewMetrics creates a new metrics collector.
func NewMetrics() *Metrics {
	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewer_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "viewer_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		SessionsActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewer_sessions_active",
				Help: "Number of tracked sessions",
			},
		),
		SessionsCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "viewer_sessions_created_total",
				Help: "Total number of sessions created",
			},
		),
		SessionsStopped: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "viewer_sessions_stopped_total",
				Help: "Total number of sessions stopped",
			},
		),
		LaunchFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "viewer_session_launch_failures_total",
				Help: "Total number of failed session launches",
			},
		),
		DiscoveryRuns: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewer_discovery_runs_total",
				Help: "Total number of discovery runs by status",
			},
			[]string{"status"},
		),

		BridgesActive: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewer_bridges_active",
				Help: "Number of open VNC bridges",
			},
		),
		BridgesTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "viewer_bridges_total",
				Help: "Total number of VNC bridges opened",
			},
		),
		BridgeBytes: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewer_bridge_bytes_total",
				Help: "Bytes relayed across bridges by direction",
			},
			[]string{"direction"},
		),
		BridgeErrors: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "viewer_bridge_errors_total",
				Help: "Bridge terminations by reason",
			},
			[]string{"reason"},
		),

		Uptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "viewer_uptime_seconds",
				Help: "Service uptime in seconds",
			},
		),
	}

	go m.updateUptime()
	return m
}

// RecordHTTPRequest records a completed HTTP request.
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordSessionCreated counts a successful create.
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionStopped counts a stop.
func (m *Metrics) RecordSessionStopped() {
	m.SessionsStopped.Inc()
}

// RecordLaunchFailure counts a failed create.
func (m *Metrics) RecordLaunchFailure() {
	m.LaunchFailures.Inc()
}

// RecordDiscovery counts a discovery run with status "ok" or "error".
func (m *Metrics) RecordDiscovery(status string) {
	m.DiscoveryRuns.WithLabelValues(status).Inc()
}

// SetSessionsActive sets the tracked-session gauge.
func (m *Metrics) SetSessionsActive(n int) {
	m.SessionsActive.Set(float64(n))
}

// BridgeOpened marks a new bridge connection.
func (m *Metrics) BridgeOpened() {
	m.BridgesActive.Inc()
	m.BridgesTotal.Inc()
}

// BridgeClosed marks a finished bridge connection.
func (m *Metrics) BridgeClosed() {
	m.BridgesActive.Dec()
}

// AddBridgeBytes counts relayed bytes; direction is "client_to_vnc" or
// "vnc_to_client".
func (m *Metrics) AddBridgeBytes(direction string, n int) {
	m.BridgeBytes.WithLabelValues(direction).Add(float64(n))
}

// RecordBridgeError counts a bridge that ended for the given reason.
func (m *Metrics) RecordBridgeError(reason string) {
	m.BridgeErrors.WithLabelValues(reason).Inc()
}

func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for range ticker.C {
		m.Uptime.Set(time.Since(m.startTime).Seconds())
	}
}
