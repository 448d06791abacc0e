package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the speech pipeline collectors. Each instance owns its
// registry so tests and multiple orchestrators never collide.
type Metrics struct {
	registry *prometheus.Registry

	synthesisRequests *prometheus.CounterVec
	synthesisLatency  *prometheus.HistogramVec
	synthesisBytes    *prometheus.CounterVec
	failures          *prometheus.CounterVec
	cacheLookups      *prometheus.CounterVec
	segmentsPlayed    *prometheus.CounterVec
	droppedChunks     prometheus.Counter
	sessions          *prometheus.CounterVec
	activeSessions    prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		synthesisRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_synthesis_requests_total",
				Help: "Synthesis requests by engine and outcome",
			},
			[]string{"engine", "status"}, // status: ok or an error kind
		),
		synthesisLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "lingreader_synthesis_latency_seconds",
				Help:    "Time from request to complete audio for one section",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"engine"},
		),
		synthesisBytes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_synthesis_audio_bytes_total",
				Help: "Audio bytes received from engines",
			},
			[]string{"engine"},
		),
		failures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_session_failures_total",
				Help: "Sessions ended by an error, by error kind",
			},
			[]string{"kind"},
		),
		cacheLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_audio_cache_lookups_total",
				Help: "Audio cache lookups by layer and result",
			},
			[]string{"layer", "result"}, // layer: session, shared; result: hit, miss
		),
		segmentsPlayed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_segments_played_total",
				Help: "Playback units started",
			},
			[]string{"source"}, // live, cache, stream
		),
		droppedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lingreader_dropped_chunks_total",
			Help: "Audio chunks dropped because a buffer was full",
		}),
		sessions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "lingreader_sessions_total",
				Help: "Speak sessions started by engine",
			},
			[]string{"engine"},
		),
		activeSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "lingreader_active_sessions",
			Help: "Sessions currently speaking or paused",
		}),
	}

	m.registry.MustRegister(
		m.synthesisRequests,
		m.synthesisLatency,
		m.synthesisBytes,
		m.failures,
		m.cacheLookups,
		m.segmentsPlayed,
		m.droppedChunks,
		m.sessions,
		m.activeSessions,
	)
	return m
}

// Registry exposes the underlying registry for custom gatherers
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordSynthesis(engine, status string, elapsed time.Duration, bytes int) {
	if m == nil {
		return
	}
	m.synthesisRequests.WithLabelValues(engine, status).Inc()
	if status == "ok" {
		m.synthesisLatency.WithLabelValues(engine).Observe(elapsed.Seconds())
		m.synthesisBytes.WithLabelValues(engine).Add(float64(bytes))
	}
}

func (m *Metrics) RecordFailure(kind string) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheLookup(layer string, hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(layer, result).Inc()
}

func (m *Metrics) RecordSegment(source string) {
	if m == nil {
		return
	}
	m.segmentsPlayed.WithLabelValues(source).Inc()
}

func (m *Metrics) RecordDroppedChunk() {
	if m == nil {
		return
	}
	m.droppedChunks.Inc()
}

func (m *Metrics) SessionStarted(engine string) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(engine).Inc()
	m.activeSessions.Inc()
}

func (m *Metrics) SessionEnded() {
	if m == nil {
		return
	}
	m.activeSessions.Dec()
}
