// Package measurement derives body measurements from keypoint geometry.
package measurement

import (
	"math"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// DefaultVisibilityThreshold is the visibility a keypoint must exceed to be measured
const DefaultVisibilityThreshold = 0.5

// Extractor computes Measurements for a detection
type Extractor struct {
	VisibilityThreshold float64
}

// New creates an extractor with the default visibility threshold
func New() Extractor {
	return Extractor{VisibilityThreshold: DefaultVisibilityThreshold}
}

// Extract measures height (withers to front hoof, vertical), body length (neck to tail base)
// and their ratio. Missing or occluded keypoints leave the dependent fields unset.
func (e Extractor) Extract(d types.Detection) types.Measurements {
	var m types.Measurements

	if withers, hoof, ok := e.pair(d, types.Withers, types.FrontHoof); ok {
		h := math.Abs(withers.Y - hoof.Y)
		m.HeightPx = &h
	}

	if neck, tail, ok := e.pair(d, types.Neck, types.TailBase); ok {
		l := math.Hypot(tail.X-neck.X, tail.Y-neck.Y)
		m.BodyLengthPx = &l
	}

	if m.HeightPx != nil && m.BodyLengthPx != nil && *m.HeightPx > 0 {
		r := *m.BodyLengthPx / *m.HeightPx
		m.BodyRatio = &r
	}

	return m
}

func (e Extractor) pair(d types.Detection, a, b types.KeypointName) (types.Keypoint, types.Keypoint, bool) {
	ka, okA := d.Keypoint(a)
	kb, okB := d.Keypoint(b)
	if !okA || !okB {
		return types.Keypoint{}, types.Keypoint{}, false
	}
	if ka.Visibility <= e.VisibilityThreshold || kb.Visibility <= e.VisibilityThreshold {
		return types.Keypoint{}, types.Keypoint{}, false
	}
	return ka, kb, true
}
