// Package metrics holds the counters updated by the workers and exposes them
// to Prometheus.
package metrics

import (
	"math"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. The zero value is not usable, call
// New.
type Metrics struct {
	// Capture
	FramesCaptured    atomic.Uint64
	FramesDropped     atomic.Uint64 // Not recorded because the recording buffer was full.
	PreviewFramesSent atomic.Uint64
	CaptureErrors     atomic.Uint64
	captureFPS        atomic.Uint64 // math.Float64bits

	// Histogram
	HistogramsComputed atomic.Uint64

	// Recording
	RecordingActive atomic.Uint64 // 0 = inactive, 1 = active
	RecordingFrames atomic.Uint64
	RecordingBytes  atomic.Uint64
	RecordingErrors atomic.Uint64
	BufferedKiB     atomic.Int64

	// Input devices
	DevicesConnected atomic.Int64
	DeviceEvents     atomic.Uint64
	DeviceErrors     atomic.Uint64

	registry *prometheus.Registry
}

// New returns metrics registered with a new, private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	counters := []struct {
		name, help string
		v          *atomic.Uint64
	}{
		{"vidoxide_frames_captured_total", "Total frames captured", &m.FramesCaptured},
		{"vidoxide_frames_dropped_total", "Total frames not recorded because the recording buffer was full", &m.FramesDropped},
		{"vidoxide_preview_frames_sent_total", "Total frames sent for preview", &m.PreviewFramesSent},
		{"vidoxide_capture_errors_total", "Total capture errors", &m.CaptureErrors},
		{"vidoxide_histograms_computed_total", "Total histograms computed", &m.HistogramsComputed},
		{"vidoxide_recording_frames_total", "Total frames written to recordings", &m.RecordingFrames},
		{"vidoxide_recording_bytes_total", "Total bytes written to recordings", &m.RecordingBytes},
		{"vidoxide_recording_errors_total", "Total recording errors", &m.RecordingErrors},
		{"vidoxide_device_events_total", "Total input device events", &m.DeviceEvents},
		{"vidoxide_device_errors_total", "Total input device errors", &m.DeviceErrors},
	}
	for _, c := range counters {
		v := c.v
		m.registry.MustRegister(prometheus.NewCounterFunc(
			prometheus.CounterOpts{Name: c.name, Help: c.help},
			func() float64 { return float64(v.Load()) },
		))
	}

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vidoxide_recording_active",
			Help: "Recording active (0=inactive, 1=active)",
		},
		func() float64 { return float64(m.RecordingActive.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vidoxide_recording_buffered_kibibytes",
			Help: "Captured data waiting to be written to the recording",
		},
		func() float64 { return float64(m.BufferedKiB.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vidoxide_devices_connected",
			Help: "Number of connected input devices",
		},
		func() float64 { return float64(m.DevicesConnected.Load()) },
	))
	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "vidoxide_capture_fps",
			Help: "Smoothed capture frame rate",
		},
		m.CaptureFPS,
	))
}

// SetCaptureFPS stores the current capture frame rate.
func (m *Metrics) SetCaptureFPS(fps float64) {
	m.captureFPS.Store(math.Float64bits(fps))
}

// CaptureFPS returns the last stored capture frame rate.
func (m *Metrics) CaptureFPS() float64 {
	return math.Float64frombits(m.captureFPS.Load())
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// StartServer serves the metrics at /metrics on addr. It blocks like
// http.ListenAndServe.
func (m *Metrics) StartServer(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	return http.ListenAndServe(addr, mux)
}
