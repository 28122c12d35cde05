package detection

import (
	"errors"
	"fmt"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// Output layout of the keypoint model, version 1.
//
// The output tensor has dims [1, NumValues, numAnchors] and is packed as planes:
// value v of anchor i lives at v*numAnchors + i. The values are
//
//	0..3  box x_center, y_center, width, height (normalized 0..1)
//	4     confidence
//	5+3k  keypoint k x, y, visibility (x, y normalized 0..1)
//
// Any model change that alters this layout must fail the shape check below.
const (
	BoxValues         = 5
	ValuesPerKeypoint = 3
	NumValues         = BoxValues + types.NumKeypoints*ValuesPerKeypoint

	fieldXCenter    = 0
	fieldYCenter    = 1
	fieldWidth      = 2
	fieldHeight     = 3
	fieldConfidence = 4
)

// DefaultConfidenceThreshold drops anchors below this confidence
const DefaultConfidenceThreshold = 0.25

var (
	// ErrTensorShape means the model output does not match the expected layout
	ErrTensorShape = errors.New("unexpected output tensor shape")
	// ErrNoDetections means decoding succeeded but no anchor passed the confidence threshold
	ErrNoDetections = errors.New("no cows detected in image")
)

// ShapeError describes a layout mismatch between the model output and the decoder
type ShapeError struct {
	Shape  []int64
	Length int
	Reason string
}

func (e *ShapeError) Error() string {
	return fmt.Sprintf("%s: %s (dims %v, %d values)", ErrTensorShape, e.Reason, e.Shape, e.Length)
}

func (e *ShapeError) Unwrap() error {
	return ErrTensorShape
}

// Layout resolves plane offsets for a tensor with a given anchor count
type Layout struct {
	NumAnchors int
}

// Index returns the flat index of value v for anchor i
func (l Layout) Index(v, anchor int) int {
	return v*l.NumAnchors + anchor
}

// KeypointIndex returns the flat index of component c (0=x, 1=y, 2=visibility) of keypoint k
func (l Layout) KeypointIndex(k, c, anchor int) int {
	return l.Index(BoxValues+k*ValuesPerKeypoint+c, anchor)
}

// DecoderConfig holds configuration for tensor decoding
type DecoderConfig struct {
	InputSize           int
	ConfidenceThreshold float64
}

// Decoder turns the raw model output into candidate detections
type Decoder struct {
	config DecoderConfig
}

// NewDecoder creates a decoder for a 640 px model with the default confidence threshold
func NewDecoder() *Decoder {
	return NewDecoderWithConfig(DecoderConfig{
		InputSize:           640,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	})
}

// NewDecoderWithConfig creates a decoder with custom configuration
func NewDecoderWithConfig(config DecoderConfig) *Decoder {
	if config.InputSize <= 0 {
		config.InputSize = 640
	}
	return &Decoder{config: config}
}

// ConfidenceThreshold returns the anchor confidence cut-off
func (d *Decoder) ConfidenceThreshold() float64 {
	return d.config.ConfidenceThreshold
}

// CheckShape validates the output tensor against the layout and returns it
func CheckShape(t types.Tensor) (Layout, error) {
	if len(t.Shape) != 3 {
		return Layout{}, &ShapeError{Shape: t.Shape, Length: len(t.Data), Reason: "want 3 dims [batch, values, anchors]"}
	}
	if t.Shape[0] != 1 {
		return Layout{}, &ShapeError{Shape: t.Shape, Length: len(t.Data), Reason: "batch size must be 1"}
	}
	if t.Shape[1] != NumValues {
		return Layout{}, &ShapeError{
			Shape:  t.Shape,
			Length: len(t.Data),
			Reason: fmt.Sprintf("want %d values per anchor (%d box + %d keypoints x %d)", NumValues, BoxValues, types.NumKeypoints, ValuesPerKeypoint),
		}
	}
	if t.Shape[2] < 0 {
		return Layout{}, &ShapeError{Shape: t.Shape, Length: len(t.Data), Reason: "negative anchor count"}
	}
	if int64(len(t.Data)) != t.Elements() {
		return Layout{}, &ShapeError{Shape: t.Shape, Length: len(t.Data), Reason: "data length does not match dims"}
	}
	return Layout{NumAnchors: int(t.Shape[2])}, nil
}

// Decode reads every anchor above the confidence threshold.
// The result is unordered and unsuppressed; it is empty, not an error, when nothing passes.
func (d *Decoder) Decode(t types.Tensor) ([]types.Detection, error) {
	layout, err := CheckShape(t)
	if err != nil {
		return nil, err
	}

	data := t.Data
	s := float64(d.config.InputSize)
	detections := make([]types.Detection, 0)

	for i := 0; i < layout.NumAnchors; i++ {
		confidence := float64(data[layout.Index(fieldConfidence, i)])
		if confidence < d.config.ConfidenceThreshold {
			continue
		}

		xc := float64(data[layout.Index(fieldXCenter, i)]) * s
		yc := float64(data[layout.Index(fieldYCenter, i)]) * s
		w := float64(data[layout.Index(fieldWidth, i)]) * s
		h := float64(data[layout.Index(fieldHeight, i)]) * s

		keypoints := make([]types.Keypoint, types.NumKeypoints)
		for k := 0; k < types.NumKeypoints; k++ {
			keypoints[k] = types.Keypoint{
				Name:       types.KeypointName(k),
				X:          float64(data[layout.KeypointIndex(k, 0, i)]) * s,
				Y:          float64(data[layout.KeypointIndex(k, 1, i)]) * s,
				Visibility: float64(data[layout.KeypointIndex(k, 2, i)]),
			}
		}

		detections = append(detections, types.Detection{
			BBox: types.BoundingBox{
				X1:      clamp(xc-w/2, 0, s),
				Y1:      clamp(yc-h/2, 0, s),
				X2:      clamp(xc+w/2, 0, s),
				Y2:      clamp(yc+h/2, 0, s),
				XCenter: xc,
				YCenter: yc,
				Width:   w,
				Height:  h,
			},
			Confidence: confidence,
			Keypoints:  keypoints,
		})
	}

	return detections, nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
