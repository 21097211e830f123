// Package metrics counts what a batch did. The CLI is not a long-running
// server, so the registry is exported as a node-exporter textfile at the end
// of a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds Prometheus counters and gauges for a highlights run
type Metrics struct {
	registry               *prometheus.Registry
	probeCallsTotal        prometheus.Counter
	clipsScannedTotal      prometheus.Counter
	clipsWithBirdsTotal    prometheus.Counter
	clipsFailedTotal       prometheus.Counter
	segmentsExtractedTotal prometheus.Counter
	segmentsDroppedTotal   prometheus.Counter
	encoderFallbacksTotal  prometheus.Counter
	assemblyFallbacksTotal prometheus.Counter
	hardwareEncoder        *prometheus.GaugeVec
	reelSeconds            prometheus.Gauge
	bestClipsSpecies       prometheus.Gauge
}

// New creates and registers the metrics on a private registry
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		probeCallsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_probe_calls_total",
			Help: "Detector invocations made while locating activity",
		}),
		clipsScannedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_clips_scanned_total",
			Help: "Clips searched for activity",
		}),
		clipsWithBirdsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_clips_with_birds_total",
			Help: "Clips in which activity was located",
		}),
		clipsFailedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_clips_failed_total",
			Help: "Clips skipped because probing or reading them failed",
		}),
		segmentsExtractedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_segments_extracted_total",
			Help: "Segments successfully extracted",
		}),
		segmentsDroppedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_segments_dropped_total",
			Help: "Segments dropped after both encoders failed",
		}),
		encoderFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_encoder_fallbacks_total",
			Help: "Segments re-encoded in software after a hardware failure",
		}),
		assemblyFallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "feederreel_assembly_fallbacks_total",
			Help: "Crossfade assemblies that fell back to stream copy",
		}),
		hardwareEncoder: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feederreel_video_encoder",
			Help: "Video encoder in use (1 for the selected encoder)",
		}, []string{"encoder"}),
		reelSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feederreel_reel_duration_seconds",
			Help: "Duration of the last assembled highlights reel",
		}),
		bestClipsSpecies: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "feederreel_best_clips_species",
			Help: "Species with a best clip in the last best-clips run",
		}),
	}

	registry.MustRegister(
		m.probeCallsTotal,
		m.clipsScannedTotal,
		m.clipsWithBirdsTotal,
		m.clipsFailedTotal,
		m.segmentsExtractedTotal,
		m.segmentsDroppedTotal,
		m.encoderFallbacksTotal,
		m.assemblyFallbacksTotal,
		m.hardwareEncoder,
		m.reelSeconds,
		m.bestClipsSpecies,
	)

	return m
}

// IncProbeCalls increments the probe call counter
func (m *Metrics) IncProbeCalls() {
	m.probeCallsTotal.Inc()
}

// IncClipsScanned increments the scanned clip counter
func (m *Metrics) IncClipsScanned() {
	m.clipsScannedTotal.Inc()
}

// IncClipsWithBirds increments the active clip counter
func (m *Metrics) IncClipsWithBirds() {
	m.clipsWithBirdsTotal.Inc()
}

// IncClipsFailed increments the failed clip counter
func (m *Metrics) IncClipsFailed() {
	m.clipsFailedTotal.Inc()
}

// IncSegmentsExtracted increments the extracted segment counter
func (m *Metrics) IncSegmentsExtracted() {
	m.segmentsExtractedTotal.Inc()
}

// IncSegmentsDropped increments the dropped segment counter
func (m *Metrics) IncSegmentsDropped() {
	m.segmentsDroppedTotal.Inc()
}

// IncEncoderFallbacks increments the software fallback counter
func (m *Metrics) IncEncoderFallbacks() {
	m.encoderFallbacksTotal.Inc()
}

// IncAssemblyFallbacks increments the assembly fallback counter
func (m *Metrics) IncAssemblyFallbacks() {
	m.assemblyFallbacksTotal.Inc()
}

// SetEncoder marks name as the encoder in use
func (m *Metrics) SetEncoder(name string) {
	m.hardwareEncoder.Reset()
	m.hardwareEncoder.WithLabelValues(name).Set(1)
}

// SetReelSeconds records the assembled reel duration
func (m *Metrics) SetReelSeconds(s float64) {
	m.reelSeconds.Set(s)
}

// SetBestClipsSpecies records how many species got a best clip
func (m *Metrics) SetBestClipsSpecies(n int) {
	m.bestClipsSpecies.Set(float64(n))
}

// Registry exposes the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// WriteTextfile writes the registry in the text exposition format for the
// node-exporter textfile collector. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}
