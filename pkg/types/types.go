package types

import "time"

// BoundingBox is an axis-aligned box in model input pixel space, clamped to [0, input size]
type BoundingBox struct {
	X1      float64 `json:"x1"`
	Y1      float64 `json:"y1"`
	X2      float64 `json:"x2"`
	Y2      float64 `json:"y2"`
	XCenter float64 `json:"x_center"`
	YCenter float64 `json:"y_center"`
	Width   float64 `json:"width"`
	Height  float64 `json:"height"`
}

// Area returns the area spanned by the clamped corners
func (b BoundingBox) Area() float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// Detection is one animal instance decoded from a single anchor
type Detection struct {
	BBox       BoundingBox `json:"bbox"`
	Confidence float64     `json:"confidence"`
	Keypoints  []Keypoint  `json:"keypoints"`
}

// Keypoint returns the keypoint with the given name, if present
func (d Detection) Keypoint(name KeypointName) (Keypoint, bool) {
	for _, kp := range d.Keypoints {
		if kp.Name == name {
			return kp, true
		}
	}
	return Keypoint{}, false
}

// VisibleKeypoints counts keypoints whose visibility exceeds threshold
func (d Detection) VisibleKeypoints(threshold float64) int {
	n := 0
	for _, kp := range d.Keypoints {
		if kp.Visibility > threshold {
			n++
		}
	}
	return n
}

// Measurements holds body measurements derived from keypoint geometry.
// A nil field means its prerequisite keypoints were not visible.
type Measurements struct {
	HeightPx     *float64 `json:"height_px,omitempty"`
	BodyLengthPx *float64 `json:"body_length_px,omitempty"`
	BodyRatio    *float64 `json:"body_ratio,omitempty"`
}

// Empty reports whether no measurement could be derived
func (m Measurements) Empty() bool {
	return m.HeightPx == nil && m.BodyLengthPx == nil && m.BodyRatio == nil
}

// CategoryScores are the five ATC category scores on the 1-9 scale
type CategoryScores struct {
	DairyCharacter    float64 `json:"dairy_character"`
	BodyCapacity      float64 `json:"body_capacity"`
	MammarySystem     float64 `json:"mammary_system"`
	FeetLegs          float64 `json:"feet_legs"`
	GeneralAppearance float64 `json:"general_appearance"`
}

// ATCResult is the scored outcome for one detection
type ATCResult struct {
	Classification string         `json:"classification"`
	OverallScore   float64        `json:"overall_score"`
	CategoryScores CategoryScores `json:"category_scores"`
	Measurements   *Measurements  `json:"measurements,omitempty"`
}

// CowAnalysis is the per-detection record of an AnalysisResult
type CowAnalysis struct {
	CowID               int         `json:"cow_id"`
	DetectionConfidence float64     `json:"detection_confidence"`
	BBox                BoundingBox `json:"bbox"`
	KeypointsDetected   int         `json:"keypoints_detected"`
	TotalKeypoints      int         `json:"total_keypoints"`
	ATCResults          ATCResult   `json:"atc_results"`
}

// AnnotatedKeypoint is a keypoint decorated for display
type AnnotatedKeypoint struct {
	Keypoint
	Visible bool   `json:"visible"`
	Color   string `json:"color"`
}

// Annotation carries drawable geometry for one detection
type Annotation struct {
	CowID      int                 `json:"cow_id"`
	BBox       BoundingBox         `json:"bbox"`
	Confidence float64             `json:"confidence"`
	Keypoints  []AnnotatedKeypoint `json:"keypoints"`
}

// InferenceMode tells whether a result came from the model or the synthetic fallback
type InferenceMode string

const (
	InferenceModel    InferenceMode = "model"
	InferenceFallback InferenceMode = "fallback"
)

// Status values of an AnalysisResult
const (
	StatusOK           = "ok"
	StatusNoDetections = "no_detections"
)

// Metadata describes how an AnalysisResult was produced
type Metadata struct {
	AnalysisID          string        `json:"analysis_id"`
	ProcessingTime      string        `json:"processing_time"`
	ModelVersion        string        `json:"model_version"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
	Timestamp           time.Time     `json:"timestamp"`
	InferenceMode       InferenceMode `json:"inference_mode"`
	Degraded            bool          `json:"degraded"`
}

// AnalysisResult is the complete, immutable outcome of analyzing one image
type AnalysisResult struct {
	Success           bool          `json:"success"`
	Status            string        `json:"status"`
	Error             string        `json:"error,omitempty"`
	UploadedImageURL  string        `json:"uploaded_image_url,omitempty"`
	TotalCowsDetected int           `json:"total_cows_detected"`
	AverageScore      float64       `json:"average_score"`
	IndividualCows    []CowAnalysis `json:"individual_cows"`
	Annotations       []Annotation  `json:"annotations"`
	Metadata          Metadata      `json:"analysis_metadata"`
}

// NoDetections reports whether the image decoded fine but no animal was found
func (r *AnalysisResult) NoDetections() bool {
	return r.Status == StatusNoDetections
}

// Recommendation is a breeding or management hint for a low category score
type Recommendation struct {
	CowID      int    `json:"cow_id"`
	Category   string `json:"category"`
	Issue      string `json:"issue"`
	Suggestion string `json:"suggestion"`
}

// Report is the stored view of an analysis served to the reporting side
type Report struct {
	AnalysisResult
	ProcessedImage    string           `json:"processed_image"`
	AnalysisTimestamp time.Time        `json:"analysis_timestamp"`
	Recommendations   []Recommendation `json:"recommendations"`
	ReportGenerated   time.Time        `json:"report_generated,omitempty"`
}

// Tensor is a dense float32 buffer with its dimensions
type Tensor struct {
	Shape []int64
	Data  []float32
}

// Elements returns the product of the tensor dimensions
func (t Tensor) Elements() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}
