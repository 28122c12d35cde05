package atcanalyzer

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	tu "github.com/menta2k/atc-analyzer/internal/testutil"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// createTestImage creates a simple test image
func createTestImage(width, height int) []byte {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			if x > width/3 && x < 2*width/3 && y > height/3 && y < 2*height/3 {
				img.Set(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.Set(x, y, color.RGBA{64, 64, 64, 255})
			}
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		panic(err)
	}
	return buf.Bytes()
}

type fixedRunner struct {
	output types.Tensor
}

func (f fixedRunner) Run(context.Context, types.Tensor) (types.Tensor, error) { return f.output, nil }
func (f fixedRunner) Close() error                                          { return nil }

func twoCows() types.Tensor {
	kps := map[types.KeypointName]tu.KeypointSpec{
		types.Neck:      {X: 0.3, Y: 0.3, Visibility: 0.8},
		types.TailBase:  {X: 0.6, Y: 0.35, Visibility: 0.8},
		types.Withers:   {X: 0.35, Y: 0.3, Visibility: 0.8},
		types.FrontHoof: {X: 0.35, Y: 0.65, Visibility: 0.8},
	}
	return tu.BuildOutput(50,
		tu.AnchorSpec{XCenter: 0.3, YCenter: 0.5, Width: 0.3, Height: 0.5, Confidence: 0.8, Keypoints: kps},
		tu.AnchorSpec{XCenter: 0.31, YCenter: 0.5, Width: 0.3, Height: 0.5, Confidence: 0.7, Keypoints: kps},
		tu.AnchorSpec{XCenter: 0.8, YCenter: 0.5, Width: 0.2, Height: 0.4, Confidence: 0.6, Keypoints: kps},
	)
}

func TestNewWithoutModelUsesFallback(t *testing.T) {
	logger, hook := logtest.NewNullLogger()
	a, err := NewWithConfig(DefaultConfig(), Options{Logger: logger})
	require.NoError(t, err)
	defer a.Close()

	assert.False(t, a.Health().ModelLoaded)
	require.NotNil(t, hook.LastEntry())

	result, err := a.Analyze(context.Background(), createTestImage(120, 90), "image/png", "cow.png")
	require.NoError(t, err)
	assert.Equal(t, types.InferenceFallback, result.Metadata.InferenceMode)
	assert.True(t, result.Metadata.Degraded)
	assert.True(t, result.Success)
}

func TestNewWithMissingModelFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Model.Path = filepath.Join(t.TempDir(), "missing.onnx")

	logger, _ := logtest.NewNullLogger()
	a, err := NewWithConfig(cfg, Options{Logger: logger})
	require.NoError(t, err, "a missing model degrades to fallback")
	defer a.Close()
	assert.False(t, a.Health().ModelLoaded)
}

func TestNewWithInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Detection.IoUThreshold = 2
	_, err := NewWithConfig(cfg, Options{})
	assert.Error(t, err)
}

func TestAnalyzeWithRunner(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Scoring.Jitter = false
	reg := prometheus.NewRegistry()
	logger, _ := logtest.NewNullLogger()

	a, err := NewWithConfig(cfg, Options{Logger: logger, Registerer: reg, Runner: fixedRunner{output: twoCows()}})
	require.NoError(t, err)
	defer a.Close()

	result, err := a.Analyze(context.Background(), createTestImage(200, 150), "image/png", "herd.png")
	require.NoError(t, err)

	// The two overlapping anchors collapse into one
	assert.Equal(t, 2, result.TotalCowsDetected)
	assert.InDelta(t, 0.8, result.IndividualCows[0].DetectionConfidence, 1e-6)
	assert.InDelta(t, 0.6, result.IndividualCows[1].DetectionConfidence, 1e-6)
	assert.Equal(t, types.InferenceModel, result.Metadata.InferenceMode)
	assert.True(t, a.Health().ModelLoaded)

	n, err := testutil.GatherAndCount(reg, "atc_analyses_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	report, err := a.LatestReport()
	require.NoError(t, err)
	assert.Equal(t, "herd.png", report.ProcessedImage)

	byID, err := a.Report(result.Metadata.AnalysisID)
	require.NoError(t, err)
	assert.Equal(t, result.Metadata.AnalysisID, byID.Metadata.AnalysisID)
}

func TestAnalyzeFileAndOverlay(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "cow.png")
	data := createTestImage(160, 120)
	require.NoError(t, os.WriteFile(in, data, 0644))

	logger, _ := logtest.NewNullLogger()
	a, err := NewWithConfig(DefaultConfig(), Options{Logger: logger, Runner: fixedRunner{output: twoCows()}})
	require.NoError(t, err)
	defer a.Close()

	result, err := a.AnalyzeFile(context.Background(), in)
	require.NoError(t, err)

	out := filepath.Join(dir, "cow_annotated.png")
	require.NoError(t, a.SaveOverlay(data, "image/png", result, out, "png"))
	info, err := os.Stat(out)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestAnalyzeReader(t *testing.T) {
	logger, _ := logtest.NewNullLogger()
	a, err := NewWithConfig(DefaultConfig(), Options{Logger: logger})
	require.NoError(t, err)
	defer a.Close()

	result, err := a.AnalyzeReader(context.Background(), bytes.NewReader(createTestImage(64, 64)), "image/png", "upload.png")
	require.NoError(t, err)
	assert.Equal(t, 1, result.TotalCowsDetected)
}

func TestGetVersion(t *testing.T) {
	assert.Equal(t, Version, GetVersion())
}
