package onnx

import (
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/atc-analyzer/pkg/inference"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig("models/best.onnx")
	assert.Equal(t, "models/best.onnx", cfg.ModelPath)
	assert.Equal(t, "images", cfg.InputName)
	assert.Equal(t, "output0", cfg.OutputName)
	assert.Equal(t, 1, cfg.Threads)
}

func TestNewRunnerWithoutModel(t *testing.T) {
	log, hook := test.NewNullLogger()

	_, err := NewRunner(Config{}, log)
	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrUnavailable)

	_, err = NewRunner(DefaultConfig(filepath.Join(t.TempDir(), "missing.onnx")), log)
	require.Error(t, err)
	assert.ErrorIs(t, err, inference.ErrUnavailable)
	assert.Contains(t, err.Error(), "model file")

	for _, e := range hook.AllEntries() {
		assert.NotEqual(t, logrus.InfoLevel, e.Level, "nothing is reported as loaded")
	}
}

func TestCloseWithoutSession(t *testing.T) {
	r := &Runner{}
	assert.NoError(t, r.Close())
}
