// Package atcanalyzer scores dairy cattle conformation (Animal Type Classification) from photos.
//
// An image is resized to the model input, run through a YOLO pose model that locates each cow
// and twelve anatomical keypoints, and every detected cow is measured and scored on five
// categories. When no model is available the analyzer still answers, with synthetic results
// flagged as degraded.
//
// Basic usage:
//
//	package main
//
//	import (
//		"context"
//		"fmt"
//		"log"
//
//		atcanalyzer "github.com/menta2k/atc-analyzer"
//	)
//
//	func main() {
//		cfg := atcanalyzer.DefaultConfig()
//		cfg.Model.Path = "models/atc.onnx"
//
//		a, err := atcanalyzer.NewWithConfig(cfg, atcanalyzer.Options{})
//		if err != nil {
//			log.Fatal(err)
//		}
//		defer a.Close()
//
//		result, err := a.AnalyzeFile(context.Background(), "cow.jpg")
//		if err != nil {
//			log.Fatal(err)
//		}
//		for _, cow := range result.IndividualCows {
//			fmt.Printf("cow %d: %s (%.1f)\n", cow.CowID,
//				cow.ATCResults.Classification, cow.ATCResults.OverallScore)
//		}
//	}
//
// The package consists of these main components:
//
// 1. Processing (pkg/processing): image decoding, resizing and tensor layout, overlays
// 2. Inference (pkg/inference, pkg/onnx): the model runner contract and its ONNX Runtime backend
// 3. Detection (pkg/detection): output tensor decoding and non-maximum suppression
// 4. Scoring (pkg/measurement, pkg/scoring, pkg/fallback): measurements, category scores, synthetic results
// 5. Analyzer (pkg/analyzer): the pipeline, with reports kept in pkg/store
package atcanalyzer

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/atc-analyzer/internal/config"
	"github.com/menta2k/atc-analyzer/pkg/analyzer"
	"github.com/menta2k/atc-analyzer/pkg/detection"
	"github.com/menta2k/atc-analyzer/pkg/events"
	"github.com/menta2k/atc-analyzer/pkg/fallback"
	"github.com/menta2k/atc-analyzer/pkg/inference"
	"github.com/menta2k/atc-analyzer/pkg/metrics"
	"github.com/menta2k/atc-analyzer/pkg/onnx"
	"github.com/menta2k/atc-analyzer/pkg/processing"
	"github.com/menta2k/atc-analyzer/pkg/scoring"
	"github.com/menta2k/atc-analyzer/pkg/store"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// Version of the ATC analyzer library
const Version = "1.0.0"

// Config is the analyzer configuration
type Config = config.Config

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return config.Default()
}

// LoadConfig reads a YAML or JSON config file on top of defaults and ATC_ environment variables
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Options supplies optional collaborators
type Options struct {
	Logger logrus.FieldLogger
	// Registerer receives the analyzer metrics; nil disables metrics
	Registerer prometheus.Registerer
	// Runner replaces the ONNX runner built from the model config
	Runner inference.Runner
	// Publisher replaces the NATS publisher built from the events config
	Publisher events.Publisher
}

// ATCAnalyzer provides a high-level interface wiring the pipeline from configuration
type ATCAnalyzer struct {
	analyzer  *analyzer.Analyzer
	processor *processing.Processor
	config    *Config
	logger    logrus.FieldLogger
	nc        *nats.Conn
}

// New creates an analyzer with default configuration. Without a model path it serves fallback results.
func New() (*ATCAnalyzer, error) {
	return NewWithConfig(config.Default(), Options{})
}

// NewWithConfig creates an analyzer from cfg.
// A model that fails to load is logged and replaced by the fallback; it is not an error.
func NewWithConfig(cfg *Config, opts Options) (*ATCAnalyzer, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	var m *metrics.Metrics
	if opts.Registerer != nil {
		var err error
		if m, err = metrics.NewMetrics(opts.Registerer); err != nil {
			return nil, err
		}
	}

	a := &ATCAnalyzer{config: cfg, logger: logger}

	publisher := opts.Publisher
	if publisher == nil && cfg.Events.NATSURL != "" {
		p, nc, err := events.Connect(cfg.Events.NATSURL, cfg.Events.SubjectPrefix, logger)
		if err != nil {
			return nil, err
		}
		publisher, a.nc = p, nc
	}

	runner := opts.Runner
	if runner == nil {
		runner = loadRunner(cfg.Model, logger)
	}

	a.processor = processing.NewProcessorWithConfig(processing.Config{
		InputSize: cfg.Model.InputSize,
		Resample:  cfg.Detection.Resample,
	})

	detector := detection.NewDetector(
		detection.NewDecoderWithConfig(detection.DecoderConfig{
			InputSize:           cfg.Model.InputSize,
			ConfidenceThreshold: cfg.Detection.ConfidenceThreshold,
		}),
		detection.Suppressor{IoUThreshold: cfg.Detection.IoUThreshold},
	)

	a.analyzer = analyzer.New(analyzer.Config{
		ModelVersion:        cfg.Model.Version,
		VisibilityThreshold: cfg.Detection.VisibilityThreshold,
		IncludeImage:        cfg.Output.IncludeImage,
	}, analyzer.Components{
		Processor: a.processor,
		Runner:    inference.NewSerial(runner),
		Detector:  detector,
		Scorer: scoring.NewWithConfig(scoring.Config{
			Jitter:              cfg.Scoring.Jitter,
			Seed:                cfg.Scoring.Seed,
			VisibilityThreshold: cfg.Detection.VisibilityThreshold,
		}),
		Fallback: fallback.New(),
		Store:    store.New(cfg.Store.TTL),
		Metrics:  m,
		Events:   publisher,
		Logger:   logger,
	})

	return a, nil
}

func loadRunner(mc config.ModelConfig, logger logrus.FieldLogger) inference.Runner {
	if mc.Path == "" {
		logger.Warn("No model path configured, analyses will use fallback results")
		return inference.NewUnavailable(errors.New("model path not configured"))
	}

	r, err := onnx.NewRunner(onnx.Config{
		ModelPath:         mc.Path,
		SharedLibraryPath: mc.SharedLibraryPath,
		InputName:         mc.InputName,
		OutputName:        mc.OutputName,
		Threads:           mc.Threads,
	}, logger)
	if err != nil {
		logger.WithError(err).WithField("model_path", mc.Path).Warn("Failed to load ATC model, analyses will use fallback results")
		return inference.NewUnavailable(err)
	}
	return r
}

// Analyze scores the cows in an encoded image
func (a *ATCAnalyzer) Analyze(ctx context.Context, data []byte, mimeType, name string) (*types.AnalysisResult, error) {
	return a.analyzer.Analyze(ctx, analyzer.Input{Data: data, MimeType: mimeType, Name: name})
}

// AnalyzeFile scores the cows in an image file
func (a *ATCAnalyzer) AnalyzeFile(ctx context.Context, path string) (*types.AnalysisResult, error) {
	return a.analyzer.AnalyzeFile(ctx, path)
}

// AnalyzeReader scores the cows in an uploaded image stream
func (a *ATCAnalyzer) AnalyzeReader(ctx context.Context, r io.Reader, mimeType, name string) (*types.AnalysisResult, error) {
	return a.analyzer.AnalyzeReader(ctx, r, mimeType, name)
}

// SaveOverlay renders result onto the model-sized image and writes it to path.
// format is png, jpg or webp.
func (a *ATCAnalyzer) SaveOverlay(data []byte, mimeType string, result *types.AnalysisResult, path, format string) error {
	img, err := a.analyzer.RenderOverlay(analyzer.Input{Data: data, MimeType: mimeType}, result)
	if err != nil {
		return err
	}
	if err := a.processor.SaveImage(img, path, format, 92, false); err != nil {
		return fmt.Errorf("failed to save overlay: %w", err)
	}
	return nil
}

// LatestReport returns the report of the most recent analysis
func (a *ATCAnalyzer) LatestReport() (types.Report, error) {
	return a.analyzer.LatestReport()
}

// Report returns the report of one analysis
func (a *ATCAnalyzer) Report(id string) (types.Report, error) {
	return a.analyzer.Report(id)
}

// Health reports model and report availability
func (a *ATCAnalyzer) Health() analyzer.Health {
	return a.analyzer.Health()
}

// Config returns the configuration the analyzer was built from
func (a *ATCAnalyzer) Config() *Config {
	return a.config
}

// Close releases the model session and the NATS connection
func (a *ATCAnalyzer) Close() error {
	err := a.analyzer.Close()
	if a.nc != nil {
		a.nc.Close()
	}
	return err
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
