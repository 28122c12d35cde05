// Package onnx runs the keypoint model with ONNX Runtime.
package onnx

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/menta2k/atc-analyzer/pkg/inference"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// Config holds ONNX Runtime session settings
type Config struct {
	ModelPath string
	// SharedLibraryPath points at libonnxruntime; empty uses the runtime's default lookup
	SharedLibraryPath string
	InputName         string
	OutputName        string
	Threads           int
}

// DefaultConfig returns the input/output names exported by the ATC model
func DefaultConfig(modelPath string) Config {
	return Config{
		ModelPath:  modelPath,
		InputName:  "images",
		OutputName: "output0",
		Threads:    1,
	}
}

var (
	envOnce sync.Once
	envErr  error
)

func initEnvironment(libPath string) error {
	envOnce.Do(func() {
		if libPath != "" {
			ort.SetSharedLibraryPath(libPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	return envErr
}

// Runner is an inference.Runner backed by an ONNX Runtime session
type Runner struct {
	session *ort.DynamicAdvancedSession
	config  Config
	log     logrus.FieldLogger
}

var _ inference.Runner = (*Runner)(nil)

// NewRunner loads the model. Errors wrap inference.ErrUnavailable so callers can fall back.
func NewRunner(config Config, log logrus.FieldLogger) (*Runner, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("component", "onnx")

	if config.ModelPath == "" {
		return nil, fmt.Errorf("%w: no model path configured", inference.ErrUnavailable)
	}
	if _, err := os.Stat(config.ModelPath); err != nil {
		return nil, fmt.Errorf("%w: model file: %v", inference.ErrUnavailable, err)
	}
	if config.InputName == "" {
		config.InputName = "images"
	}
	if config.OutputName == "" {
		config.OutputName = "output0"
	}
	if config.Threads <= 0 {
		config.Threads = 1
	}

	start := time.Now()
	if err := initEnvironment(config.SharedLibraryPath); err != nil {
		return nil, fmt.Errorf("%w: initialize onnxruntime: %v", inference.ErrUnavailable, err)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("%w: session options: %v", inference.ErrUnavailable, err)
	}
	defer opts.Destroy()

	if err := opts.SetIntraOpNumThreads(config.Threads); err != nil {
		return nil, fmt.Errorf("%w: set intra-op threads: %v", inference.ErrUnavailable, err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("%w: set inter-op threads: %v", inference.ErrUnavailable, err)
	}

	session, err := ort.NewDynamicAdvancedSession(config.ModelPath,
		[]string{config.InputName}, []string{config.OutputName}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: create session: %v", inference.ErrUnavailable, err)
	}

	log.WithFields(logrus.Fields{
		"model":    config.ModelPath,
		"input":    config.InputName,
		"output":   config.OutputName,
		"threads":  config.Threads,
		"duration": time.Since(start).String(),
	}).Info("ATC model loaded")

	return &Runner{session: session, config: config, log: log}, nil
}

// Run executes one forward pass. The returned tensor owns a copy of the output data.
func (r *Runner) Run(ctx context.Context, input types.Tensor) (types.Tensor, error) {
	if err := ctx.Err(); err != nil {
		return types.Tensor{}, err
	}

	in, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return types.Tensor{}, fmt.Errorf("create input tensor: %w", err)
	}
	defer in.Destroy()

	outputs := []ort.Value{nil}
	start := time.Now()
	if err := r.session.Run([]ort.Value{in}, outputs); err != nil {
		return types.Tensor{}, fmt.Errorf("onnx run: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return types.Tensor{}, fmt.Errorf("onnx run: output %q is not a float32 tensor", r.config.OutputName)
	}

	shape := out.GetShape()
	data := make([]float32, len(out.GetData()))
	copy(data, out.GetData())

	r.log.WithFields(logrus.Fields{
		"shape":    shape.String(),
		"duration": time.Since(start).String(),
	}).Debug("inference complete")

	return types.Tensor{Shape: append([]int64(nil), shape...), Data: data}, nil
}

// Close releases the session
func (r *Runner) Close() error {
	if r.session == nil {
		return nil
	}
	return r.session.Destroy()
}
