// Package testutil provides shared helpers for building synthetic model inputs and outputs in tests.
package testutil

import (
	"github.com/menta2k/atc-analyzer/pkg/types"
)

const (
	boxValues = 5
	numValues = boxValues + types.NumKeypoints*3
)

// KeypointSpec is one keypoint of an anchor in normalized coordinates
type KeypointSpec struct {
	X, Y, Visibility float32
}

// AnchorSpec describes one anchor of a synthetic model output
type AnchorSpec struct {
	XCenter, YCenter, Width, Height float32
	Confidence                      float32
	Keypoints                       map[types.KeypointName]KeypointSpec
}

// BuildOutput packs anchors into a [1, 41, len(anchors)+padding] planar tensor.
// Padding anchors have zero confidence.
func BuildOutput(padding int, anchors ...AnchorSpec) types.Tensor {
	n := len(anchors) + padding
	data := make([]float32, numValues*n)
	for i, a := range anchors {
		data[0*n+i] = a.XCenter
		data[1*n+i] = a.YCenter
		data[2*n+i] = a.Width
		data[3*n+i] = a.Height
		data[4*n+i] = a.Confidence
		for name, kp := range a.Keypoints {
			base := boxValues + int(name)*3
			data[base*n+i] = kp.X
			data[(base+1)*n+i] = kp.Y
			data[(base+2)*n+i] = kp.Visibility
		}
	}
	return types.Tensor{Shape: []int64{1, numValues, int64(n)}, Data: data}
}

// Box builds a detection with the given corner box and confidence and no keypoints
func Box(x1, y1, x2, y2, confidence float64) types.Detection {
	return types.Detection{
		BBox: types.BoundingBox{
			X1: x1, Y1: y1, X2: x2, Y2: y2,
			XCenter: (x1 + x2) / 2,
			YCenter: (y1 + y2) / 2,
			Width:   x2 - x1,
			Height:  y2 - y1,
		},
		Confidence: confidence,
	}
}

// DetectionWith builds a detection whose keypoints are all present with the given overrides.
// Keypoints not overridden have zero visibility.
func DetectionWith(overrides map[types.KeypointName]types.Keypoint) types.Detection {
	d := Box(100, 100, 400, 500, 0.9)
	d.Keypoints = make([]types.Keypoint, types.NumKeypoints)
	for i := range d.Keypoints {
		d.Keypoints[i] = types.Keypoint{Name: types.KeypointName(i)}
	}
	for name, kp := range overrides {
		kp.Name = name
		d.Keypoints[name] = kp
	}
	return d
}
