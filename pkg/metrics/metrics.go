// Package metrics provides Prometheus metrics for the ATC analysis pipeline.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Pipeline stages observed by StageDuration
const (
	StagePreprocess = "preprocess"
	StageInference  = "inference"
	StageDecode     = "decode"
	StageScore      = "score"
	StageTotal      = "total"
)

// Metrics contains all Prometheus metrics of the analyzer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	AnalysisTotal   *prometheus.CounterVec
	FallbackTotal   *prometheus.CounterVec
	DetectionsTotal prometheus.Counter
	CandidatesTotal prometheus.Counter
	StageDuration   *prometheus.HistogramVec
	ModelLoaded     prometheus.Gauge
}

// NewMetrics creates the metrics and registers them on registry
func NewMetrics(registry prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		AnalysisTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atc_analyses_total",
				Help: "Total number of image analyses partitioned by inference mode and status.",
			},
			[]string{"mode", "status"},
		),
		FallbackTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "atc_fallback_total",
				Help: "Total number of analyses served by the synthetic fallback, by reason.",
			},
			[]string{"reason"},
		),
		DetectionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atc_detections_total",
			Help: "Total number of cows reported after non-maximum suppression.",
		}),
		CandidatesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "atc_candidates_total",
			Help: "Total number of anchors above the confidence threshold before suppression.",
		}),
		StageDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "atc_stage_duration_seconds",
				Help:    "Time spent in each pipeline stage.",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
			},
			[]string{"stage"},
		),
		ModelLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "atc_model_loaded",
			Help: "1 when the keypoint model is loaded, 0 when analyses use the fallback.",
		}),
	}

	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register ATC metrics: %w", err)
	}
	return m, nil
}

// Describe implements prometheus.Collector
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	m.AnalysisTotal.Describe(ch)
	m.FallbackTotal.Describe(ch)
	m.DetectionsTotal.Describe(ch)
	m.CandidatesTotal.Describe(ch)
	m.StageDuration.Describe(ch)
	m.ModelLoaded.Describe(ch)
}

// Collect implements prometheus.Collector
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	m.AnalysisTotal.Collect(ch)
	m.FallbackTotal.Collect(ch)
	m.DetectionsTotal.Collect(ch)
	m.CandidatesTotal.Collect(ch)
	m.StageDuration.Collect(ch)
	m.ModelLoaded.Collect(ch)
}

// RecordAnalysis counts one finished analysis
func (m *Metrics) RecordAnalysis(mode, status string) {
	if m == nil {
		return
	}
	m.AnalysisTotal.WithLabelValues(mode, status).Inc()
}

// RecordFallback counts one analysis served by the fallback
func (m *Metrics) RecordFallback(reason string) {
	if m == nil {
		return
	}
	m.FallbackTotal.WithLabelValues(reason).Inc()
}

// RecordDetections adds the candidate and final detection counts of one analysis
func (m *Metrics) RecordDetections(candidates, detections int) {
	if m == nil {
		return
	}
	m.CandidatesTotal.Add(float64(candidates))
	m.DetectionsTotal.Add(float64(detections))
}

// ObserveStage records the duration of one pipeline stage
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// SetModelLoaded publishes whether the model is available
func (m *Metrics) SetModelLoaded(loaded bool) {
	if m == nil {
		return
	}
	if loaded {
		m.ModelLoaded.Set(1)
	} else {
		m.ModelLoaded.Set(0)
	}
}
