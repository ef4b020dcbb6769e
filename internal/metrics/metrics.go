package metrics

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics
type Metrics struct {
	// Session counters
	SessionsStarted atomic.Uint64
	SessionsFailed  atomic.Uint64 // Source unavailable on open
	SessionActive   atomic.Uint64 // 0 = idle, 1 = running

	// Frame processing counters
	FramesProcessed atomic.Uint64
	FramesWithHits  atomic.Uint64
	Detections      atomic.Uint64
	ReadErrors      atomic.Uint64

	// Event log counters
	LogWrites atomic.Uint64
	LogErrors atomic.Uint64

	// Latency tracking
	ProcessLatencyMs atomic.Uint64 // Last frame processing latency in ms

	// Display clients
	StreamClients     atomic.Int64
	StreamFramesSent  atomic.Uint64
	StreamFramesDrops atomic.Uint64
	EncodeErrors      atomic.Uint64

	// Recording state
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingBytes  atomic.Uint64
	RecordingFrames atomic.Uint64
	RecorderDrops   atomic.Uint64

	// Prometheus collectors
	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}

	m.registerPrometheusMetrics()

	return m
}

type gauge struct {
	name string
	help string
	load func() float64
}

func (m *Metrics) registerPrometheusMetrics() {
	gauges := []gauge{
		{"vipers_sessions_started_total", "Detection sessions started", u64(&m.SessionsStarted)},
		{"vipers_sessions_failed_total", "Sessions that could not open their source", u64(&m.SessionsFailed)},
		{"vipers_session_active", "Detection session running (0=idle, 1=running)", u64(&m.SessionActive)},
		{"vipers_frames_processed_total", "Frames classified and rendered", u64(&m.FramesProcessed)},
		{"vipers_frames_with_detections_total", "Frames with at least one detection", u64(&m.FramesWithHits)},
		{"vipers_detections_total", "Bounding boxes found", u64(&m.Detections)},
		{"vipers_read_errors_total", "Sessions ended by a failed frame read", u64(&m.ReadErrors)},
		{"vipers_event_log_writes_total", "Detection entries written to the event log", u64(&m.LogWrites)},
		{"vipers_event_log_errors_total", "Failed event log writes", u64(&m.LogErrors)},
		{"vipers_process_latency_ms", "Last frame processing latency in milliseconds", u64(&m.ProcessLatencyMs)},
		{"vipers_stream_clients", "Connected MJPEG clients", func() float64 { return float64(m.StreamClients.Load()) }},
		{"vipers_stream_frames_sent_total", "Frames delivered to MJPEG clients", u64(&m.StreamFramesSent)},
		{"vipers_stream_frames_dropped_total", "Frames skipped for slow MJPEG clients", u64(&m.StreamFramesDrops)},
		{"vipers_encode_errors_total", "JPEG encode failures", u64(&m.EncodeErrors)},
		{"vipers_recording_active", "Recording active (0=inactive, 1=active)", u64(&m.RecordingActive)},
		{"vipers_recording_bytes", "Total bytes written to recording", u64(&m.RecordingBytes)},
		{"vipers_recording_frames", "Total frames written to recording", u64(&m.RecordingFrames)},
		{"vipers_recording_frames_dropped_total", "Frames the recorder could not keep up with", u64(&m.RecorderDrops)},
	}

	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{Name: g.name, Help: g.help},
			g.load,
		))
	}
}

func u64(v *atomic.Uint64) func() float64 {
	return func() float64 { return float64(v.Load()) }
}

// UpdateProcessLatency records the latest frame processing latency
func (m *Metrics) UpdateProcessLatency(duration time.Duration) {
	m.ProcessLatencyMs.Store(uint64(duration.Milliseconds()))
}

// SetSessionActive records whether a session is running
func (m *Metrics) SetSessionActive(active bool) {
	if active {
		m.SessionActive.Store(1)
	} else {
		m.SessionActive.Store(0)
	}
}

// SetRecording mirrors the recorder state
func (m *Metrics) SetRecording(active bool, frames, bytes uint64) {
	if active {
		m.RecordingActive.Store(1)
	} else {
		m.RecordingActive.Store(0)
	}
	m.RecordingFrames.Store(frames)
	m.RecordingBytes.Store(bytes)
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer starts a dedicated metrics HTTP server
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
