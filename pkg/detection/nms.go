package detection

import (
	"sort"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// DefaultIoUThreshold suppresses candidates overlapping a kept box by more than this
const DefaultIoUThreshold = 0.45

// Suppressor collapses overlapping candidates with greedy non-maximum suppression
type Suppressor struct {
	IoUThreshold float64
}

// NewSuppressor creates a suppressor with the default IoU threshold
func NewSuppressor() Suppressor {
	return Suppressor{IoUThreshold: DefaultIoUThreshold}
}

// Apply keeps the highest-confidence candidate of each overlap cluster.
// Ties keep input order. The input slice is not modified.
func (s Suppressor) Apply(candidates []types.Detection) []types.Detection {
	if len(candidates) == 0 {
		return []types.Detection{}
	}

	sorted := make([]types.Detection, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Confidence > sorted[j].Confidence
	})

	keep := make([]types.Detection, 0, len(sorted))
	used := make([]bool, len(sorted))

	for i := range sorted {
		if used[i] {
			continue
		}
		keep = append(keep, sorted[i])
		used[i] = true

		for j := i + 1; j < len(sorted); j++ {
			if used[j] {
				continue
			}
			if IoU(sorted[i].BBox, sorted[j].BBox) > s.IoUThreshold {
				used[j] = true
			}
		}
	}

	return keep
}

// IoU returns the intersection over union of two boxes, 0 when they do not overlap
func IoU(a, b types.BoundingBox) float64 {
	x1 := max(a.X1, b.X1)
	y1 := max(a.Y1, b.Y1)
	x2 := min(a.X2, b.X2)
	y2 := min(a.Y2, b.Y2)
	if x2 <= x1 || y2 <= y1 {
		return 0
	}

	intersection := (x2 - x1) * (y2 - y1)
	union := (a.X2-a.X1)*(a.Y2-a.Y1) + (b.X2-b.X1)*(b.Y2-b.Y1) - intersection
	if union <= 0 {
		return 0
	}
	return intersection / union
}

// Detector decodes model output and suppresses duplicates
type Detector struct {
	decoder    *Decoder
	suppressor Suppressor
}

// NewDetector combines a decoder and a suppressor
func NewDetector(decoder *Decoder, suppressor Suppressor) *Detector {
	return &Detector{decoder: decoder, suppressor: suppressor}
}

// Detect returns one detection per animal, or ErrNoDetections when nothing passes the threshold.
// candidates is the number of anchors that passed the confidence threshold before suppression.
func (d *Detector) Detect(t types.Tensor) (detections []types.Detection, candidates int, err error) {
	decoded, err := d.decoder.Decode(t)
	if err != nil {
		return nil, 0, err
	}
	if len(decoded) == 0 {
		return []types.Detection{}, 0, ErrNoDetections
	}
	return d.suppressor.Apply(decoded), len(decoded), nil
}

// Decoder returns the underlying tensor decoder
func (d *Detector) Decoder() *Decoder {
	return d.decoder
}
