package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegisters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)
	require.NotNil(t, m)

	_, err = NewMetrics(reg)
	assert.Error(t, err, "double registration fails")
}

func TestRecord(t *testing.T) {
	m, err := NewMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	m.RecordAnalysis("model", "ok")
	m.RecordAnalysis("model", "ok")
	m.RecordAnalysis("fallback", "ok")
	m.RecordFallback("unavailable")
	m.RecordDetections(7, 2)
	m.ObserveStage(StageInference, 40*time.Millisecond)
	m.SetModelLoaded(true)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.AnalysisTotal.WithLabelValues("model", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AnalysisTotal.WithLabelValues("fallback", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FallbackTotal.WithLabelValues("unavailable")))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.CandidatesTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DetectionsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ModelLoaded))
	assert.Equal(t, 1, testutil.CollectAndCount(m.StageDuration))

	m.SetModelLoaded(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ModelLoaded))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordAnalysis("model", "ok")
		m.RecordFallback("unavailable")
		m.RecordDetections(1, 1)
		m.ObserveStage(StageTotal, time.Second)
		m.SetModelLoaded(true)
	})
}
