package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the bridge.
type Metrics struct {
	registry           *prometheus.Registry
	requestsTotal      prometheus.Counter
	errorsTotal        prometheus.Counter
	ticksTotal         prometheus.Counter
	ticksSkippedTotal  prometheus.Counter
	linkErrorsTotal    *prometheus.CounterVec
	framesSentTotal    prometheus.Counter
	frameErrorsTotal   prometheus.Counter
	schemaReloadsTotal prometheus.Counter
	sceneLoads         prometheus.Gauge
	validationFailures prometheus.Gauge
	cameraDrops        prometheus.Gauge
	activeScene        prometheus.Gauge
	activeStreams      prometheus.Gauge
}

// New creates and registers Prometheus metrics for the bridge.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		requestsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_http_requests_total",
			Help: "Total number of HTTP requests received",
		}),
		errorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_http_errors_total",
			Help: "Total number of HTTP responses with error status (4xx or 5xx)",
		}),
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_ticks_total",
			Help: "Total number of link ticks",
		}),
		ticksSkippedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_ticks_skipped_total",
			Help: "Ticks that received no frame data from the host",
		}),
		linkErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rs_link_errors_total",
			Help: "Errors returned by the host link, by code",
		}, []string{"code"}),
		framesSentTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_frames_sent_total",
			Help: "Frames submitted to the host",
		}),
		frameErrorsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_frame_errors_total",
			Help: "Frames that failed to submit",
		}),
		schemaReloadsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rs_schema_reloads_total",
			Help: "Schema reloads after the schema file changed",
		}),
		sceneLoads: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs_scene_loads_requested",
			Help: "Level loads requested by the scene selector",
		}),
		validationFailures: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs_scene_validation_failures",
			Help: "Scenes whose parameters failed validation",
		}),
		cameraDrops: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs_camera_samples_dropped",
			Help: "Camera samples dropped by full viewport queues",
		}),
		activeScene: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs_active_scene",
			Help: "Scene id requested by the host on the last tick",
		}),
		activeStreams: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "rs_active_streams",
			Help: "Number of streams set up",
		}),
	}

	registry.MustRegister(
		m.requestsTotal,
		m.errorsTotal,
		m.ticksTotal,
		m.ticksSkippedTotal,
		m.linkErrorsTotal,
		m.framesSentTotal,
		m.frameErrorsTotal,
		m.schemaReloadsTotal,
		m.sceneLoads,
		m.validationFailures,
		m.cameraDrops,
		m.activeScene,
		m.activeStreams,
	)
	return m
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

func (m *Metrics) IncTicks() {
	m.ticksTotal.Inc()
}

func (m *Metrics) IncSkippedTicks() {
	m.ticksSkippedTotal.Inc()
}

// IncLinkError counts a link error by its code name.
func (m *Metrics) IncLinkError(code string) {
	m.linkErrorsTotal.WithLabelValues(code).Inc()
}

func (m *Metrics) IncFramesSent() {
	m.framesSentTotal.Inc()
}

func (m *Metrics) IncFrameErrors() {
	m.frameErrorsTotal.Inc()
}

func (m *Metrics) IncSchemaReloads() {
	m.schemaReloadsTotal.Inc()
}

// SetSceneStats sets the scene selector gauges.
func (m *Metrics) SetSceneStats(loadsRequested, validationFailures int) {
	m.sceneLoads.Set(float64(loadsRequested))
	m.validationFailures.Set(float64(validationFailures))
}

func (m *Metrics) SetCameraDrops(n uint64) {
	m.cameraDrops.Set(float64(n))
}

func (m *Metrics) SetActiveScene(id uint32) {
	m.activeScene.Set(float64(id))
}

// SetActiveStreams sets the active streams gauge.
func (m *Metrics) SetActiveStreams(n int) {
	m.activeStreams.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g. active streams).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
