// Package analyzer runs the ATC pipeline on one image: preprocess, run the keypoint model,
// decode and suppress detections, measure and score every cow.
// When the model is missing or fails, results come from the fallback generator and are
// flagged as degraded.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/atc-analyzer/internal/utils"
	"github.com/menta2k/atc-analyzer/pkg/detection"
	"github.com/menta2k/atc-analyzer/pkg/events"
	"github.com/menta2k/atc-analyzer/pkg/fallback"
	"github.com/menta2k/atc-analyzer/pkg/inference"
	"github.com/menta2k/atc-analyzer/pkg/measurement"
	"github.com/menta2k/atc-analyzer/pkg/metrics"
	"github.com/menta2k/atc-analyzer/pkg/processing"
	"github.com/menta2k/atc-analyzer/pkg/scoring"
	"github.com/menta2k/atc-analyzer/pkg/store"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// DefaultModelVersion is reported in analysis metadata
const DefaultModelVersion = "YOLOv8x-ATC-v2.1"

// NoDetectionsMessage is the error text of an analysis that found no cow
const NoDetectionsMessage = "No cows detected in image"

// Fallback reasons reported to metrics
const (
	reasonUnavailable    = "unavailable"
	reasonInferenceError = "inference_error"
	reasonDecodeError    = "decode_error"
)

// Config holds configuration for the analyzer
type Config struct {
	ModelVersion        string
	VisibilityThreshold float64
	// IncludeImage embeds the upload in the result as a base64 data URI
	IncludeImage bool
	// TempDir receives spooled uploads, os.TempDir() if empty
	TempDir string
}

// DefaultConfig returns the default analyzer configuration
func DefaultConfig() Config {
	return Config{
		ModelVersion:        DefaultModelVersion,
		VisibilityThreshold: measurement.DefaultVisibilityThreshold,
	}
}

// Components are the collaborators of an Analyzer. Nil fields get defaults.
type Components struct {
	Processor *processing.Processor
	Runner    inference.Runner
	Detector  *detection.Detector
	Scorer    *scoring.Scorer
	Fallback  *fallback.Generator
	Store     *store.Store
	Metrics   *metrics.Metrics
	Events    events.Publisher
	Logger    logrus.FieldLogger
}

// Input is one image submitted for analysis
type Input struct {
	Data     []byte
	MimeType string
	// Name is the original file name, kept in the report
	Name string
}

// Health describes whether the analyzer can serve model results
type Health struct {
	Status                  string `json:"status"`
	ModelLoaded             bool   `json:"model_loaded"`
	LatestAnalysisAvailable bool   `json:"latest_analysis_available"`
}

// Analyzer orchestrates the pipeline. Safe for concurrent use when the runner is.
type Analyzer struct {
	config    Config
	processor *processing.Processor
	runner    inference.Runner
	detector  *detection.Detector
	scorer    *scoring.Scorer
	fallback  *fallback.Generator
	store     *store.Store
	metrics   *metrics.Metrics
	events    events.Publisher
	logger    logrus.FieldLogger
	now       func() time.Time
}

// New creates an analyzer
func New(config Config, c Components) *Analyzer {
	if config.ModelVersion == "" {
		config.ModelVersion = DefaultModelVersion
	}
	if config.VisibilityThreshold <= 0 {
		config.VisibilityThreshold = measurement.DefaultVisibilityThreshold
	}
	if c.Processor == nil {
		c.Processor = processing.NewProcessor()
	}
	if c.Runner == nil {
		c.Runner = inference.NewUnavailable(errors.New("no model configured"))
	}
	if c.Detector == nil {
		c.Detector = detection.NewDetector(detection.NewDecoder(), detection.NewSuppressor())
	}
	if c.Scorer == nil {
		c.Scorer = scoring.NewWithConfig(scoring.Config{Jitter: true, VisibilityThreshold: config.VisibilityThreshold})
	}
	if c.Fallback == nil {
		c.Fallback = fallback.New()
	}
	if c.Store == nil {
		c.Store = store.New(time.Hour)
	}
	if c.Events == nil {
		c.Events = events.Nop{}
	}
	if c.Logger == nil {
		c.Logger = logrus.StandardLogger()
	}

	a := &Analyzer{
		config:    config,
		processor: c.Processor,
		runner:    c.Runner,
		detector:  c.Detector,
		scorer:    c.Scorer,
		fallback:  c.Fallback,
		store:     c.Store,
		metrics:   c.Metrics,
		events:    c.Events,
		logger:    c.Logger.WithField("component", "analyzer"),
		now:       time.Now,
	}
	a.metrics.SetModelLoaded(inference.Available(a.runner))
	return a
}

// outcome is what the inference stage produced for one image
type outcome struct {
	mode       types.InferenceMode
	detections []types.Detection
	results    []types.ATCResult
	candidates int
}

// Analyze runs the full pipeline on in.
// Preprocessing and tensor shape errors are returned; a missing or failing model is
// recovered with a degraded fallback result; an image without cows yields a
// result with Status "no_detections" and a nil error.
func (a *Analyzer) Analyze(ctx context.Context, in Input) (*types.AnalysisResult, error) {
	start := time.Now()
	id := uuid.NewString()
	log := a.logger.WithField("analysis_id", id)

	input, err := a.processor.Preprocess(in.Data, in.MimeType)
	a.metrics.ObserveStage(metrics.StagePreprocess, time.Since(start))
	if err != nil {
		a.metrics.RecordAnalysis("none", "failed")
		log.WithError(err).Warn("Preprocessing failed")
		return nil, err
	}

	out, err := a.infer(ctx, input, log)
	if err != nil {
		a.metrics.RecordAnalysis(string(types.InferenceModel), "failed")
		log.WithError(err).Error("Analysis failed")
		return nil, err
	}

	result := a.buildResult(id, out, time.Since(start))
	if a.config.IncludeImage {
		result.UploadedImageURL = processing.DataURI(in.Data, in.MimeType)
	}

	a.metrics.ObserveStage(metrics.StageTotal, time.Since(start))
	a.metrics.RecordAnalysis(string(out.mode), result.Status)
	a.metrics.RecordDetections(out.candidates, len(out.detections))

	if !result.NoDetections() {
		a.store.Put(types.Report{
			AnalysisResult:    *result,
			ProcessedImage:    in.Name,
			AnalysisTimestamp: result.Metadata.Timestamp,
			Recommendations:   scoring.Recommend(result.IndividualCows),
		})
	}

	if err := a.events.Publish(ctx, result); err != nil {
		log.WithError(err).Warn("Failed to publish analysis event")
	}

	log.WithFields(logrus.Fields{
		"status":          result.Status,
		"inference_mode":  out.mode,
		"cows":            result.TotalCowsDetected,
		"average_score":   result.AverageScore,
		"processing_time": result.Metadata.ProcessingTime,
	}).Info("Analysis complete")

	return result, nil
}

// AnalyzeReader spools r to a temporary file, analyzes it and removes the file
// whatever the outcome
func (a *Analyzer) AnalyzeReader(ctx context.Context, r io.Reader, mimeType, name string) (*types.AnalysisResult, error) {
	path, release, err := utils.SpoolTemp(a.config.TempDir, "atc-upload-*", r)
	if err != nil {
		return nil, err
	}
	defer release()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read spooled upload: %w", err)
	}
	return a.Analyze(ctx, Input{Data: data, MimeType: mimeType, Name: name})
}

// AnalyzeFile analyzes an image file on disk
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string) (*types.AnalysisResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}
	return a.Analyze(ctx, Input{Data: data, MimeType: utils.MimeType(path), Name: filepath.Base(path)})
}

func (a *Analyzer) infer(ctx context.Context, input types.Tensor, log logrus.FieldLogger) (outcome, error) {
	if !inference.Available(a.runner) {
		log.Warn("Model not loaded, using fallback analysis")
		return a.fallbackOutcome(reasonUnavailable), nil
	}

	t := time.Now()
	output, err := a.runner.Run(ctx, input)
	a.metrics.ObserveStage(metrics.StageInference, time.Since(t))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome{}, ctxErr
		}
		log.WithError(err).Warn("Model inference failed, falling back to synthetic analysis")
		return a.fallbackOutcome(reasonInferenceError), nil
	}

	t = time.Now()
	detections, candidates, err := a.detector.Detect(output)
	a.metrics.ObserveStage(metrics.StageDecode, time.Since(t))
	switch {
	case errors.Is(err, detection.ErrTensorShape):
		return outcome{}, err
	case errors.Is(err, detection.ErrNoDetections):
		log.Info("No cows detected")
		return outcome{mode: types.InferenceModel, detections: []types.Detection{}, results: []types.ATCResult{}}, nil
	case err != nil:
		log.WithError(err).Warn("Output decoding failed, falling back to synthetic analysis")
		return a.fallbackOutcome(reasonDecodeError), nil
	}

	log.WithFields(logrus.Fields{
		"candidates": candidates,
		"detections": len(detections),
	}).Debug("Detections decoded")

	t = time.Now()
	results := make([]types.ATCResult, len(detections))
	for i, d := range detections {
		results[i] = a.scorer.Score(d)
	}
	a.metrics.ObserveStage(metrics.StageScore, time.Since(t))

	return outcome{
		mode:       types.InferenceModel,
		detections: detections,
		results:    results,
		candidates: candidates,
	}, nil
}

func (a *Analyzer) fallbackOutcome(reason string) outcome {
	a.metrics.RecordFallback(reason)
	d, r := a.fallback.Generate()
	return outcome{
		mode:       types.InferenceFallback,
		detections: []types.Detection{d},
		results:    []types.ATCResult{r},
		candidates: 1,
	}
}

func (a *Analyzer) buildResult(id string, out outcome, elapsed time.Duration) *types.AnalysisResult {
	result := &types.AnalysisResult{
		Success:           true,
		Status:            types.StatusOK,
		TotalCowsDetected: len(out.detections),
		IndividualCows:    make([]types.CowAnalysis, 0, len(out.detections)),
		Annotations:       make([]types.Annotation, 0, len(out.detections)),
		Metadata: types.Metadata{
			AnalysisID:          id,
			ProcessingTime:      fmt.Sprintf("%.2fs", elapsed.Seconds()),
			ModelVersion:        a.config.ModelVersion,
			ConfidenceThreshold: a.detector.Decoder().ConfidenceThreshold(),
			Timestamp:           a.now().UTC(),
			InferenceMode:       out.mode,
			Degraded:            out.mode == types.InferenceFallback,
		},
	}

	if len(out.detections) == 0 {
		result.Success = false
		result.Status = types.StatusNoDetections
		result.Error = NoDetectionsMessage
		return result
	}

	th := a.config.VisibilityThreshold
	var sum float64
	for i, d := range out.detections {
		cowID := i + 1
		atc := out.results[i]
		sum += atc.OverallScore

		result.IndividualCows = append(result.IndividualCows, types.CowAnalysis{
			CowID:               cowID,
			DetectionConfidence: round(d.Confidence, 3),
			BBox:                d.BBox,
			KeypointsDetected:   d.VisibleKeypoints(th),
			TotalKeypoints:      len(d.Keypoints),
			ATCResults:          atc,
		})
		result.Annotations = append(result.Annotations, annotate(cowID, d, th))
	}
	result.AverageScore = round(sum/float64(len(out.detections)), 1)

	return result
}

func annotate(cowID int, d types.Detection, threshold float64) types.Annotation {
	kps := make([]types.AnnotatedKeypoint, len(d.Keypoints))
	for i, kp := range d.Keypoints {
		kps[i] = types.AnnotatedKeypoint{
			Keypoint: kp,
			Visible:  kp.Visibility > threshold,
			Color:    kp.Name.Color(),
		}
	}
	return types.Annotation{
		CowID:      cowID,
		BBox:       d.BBox,
		Confidence: d.Confidence,
		Keypoints:  kps,
	}
}

// RenderOverlay draws the annotations of result onto the model-sized input image
func (a *Analyzer) RenderOverlay(in Input, result *types.AnalysisResult) (image.Image, error) {
	img, err := a.processor.DecodeImage(in.Data, in.MimeType)
	if err != nil {
		return nil, err
	}
	resized, err := a.processor.Resize(img)
	if err != nil {
		return nil, err
	}
	return a.processor.RenderAnnotations(resized, result.Annotations), nil
}

// LatestReport returns the most recent report with a fresh generation time
func (a *Analyzer) LatestReport() (types.Report, error) {
	return a.store.Latest(a.now().UTC())
}

// Report returns the report of one analysis
func (a *Analyzer) Report(id string) (types.Report, error) {
	return a.store.Get(id, a.now().UTC())
}

// Health reports model and report availability
func (a *Analyzer) Health() Health {
	return Health{
		Status:                  "healthy",
		ModelLoaded:             inference.Available(a.runner),
		LatestAnalysisAvailable: a.store.HasLatest(),
	}
}

// Close releases the model runner
func (a *Analyzer) Close() error {
	return a.runner.Close()
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
