// Package fallback produces synthetic, schema-valid analyses when the model cannot be used.
package fallback

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/menta2k/atc-analyzer/pkg/scoring"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// Source yields uniform values in [0, 1)
type Source interface {
	Float64() float64
}

type templatePoint struct {
	x, y       float64
	visibility float64
	spread     float64 // visibility drawn from [visibility-spread, visibility+spread]
}

// Side-on cow in 640 px model space
var template = [types.NumKeypoints]templatePoint{
	types.Nose:        {320, 180, 0.92, 0.05},
	types.LeftEye:     {290, 160, 0.85, 0.05},
	types.RightEye:    {350, 160, 0.88, 0.05},
	types.LeftEar:     {275, 140, 0.6, 0.3},
	types.RightEar:    {365, 140, 0.6, 0.3},
	types.Neck:        {300, 200, 0.85, 0.05},
	types.Withers:     {280, 220, 0.88, 0.05},
	types.BackCenter:  {230, 240, 0.85, 0.05},
	types.TailBase:    {180, 280, 0.75, 0.05},
	types.FrontHoof:   {320, 420, 0.7, 0.05},
	types.RearHoof:    {220, 420, 0.72, 0.05},
	types.UdderCenter: {250, 350, 0.82, 0.05},
}

var templateBox = types.BoundingBox{X1: 150, Y1: 120, X2: 450, Y2: 450}

// Generator builds one synthetic detection and its scores
type Generator struct {
	mu  sync.Mutex
	src Source
}

// New creates a generator seeded from the clock
func New() *Generator {
	seed := uint64(time.Now().UnixNano())
	return NewWithSource(rand.New(rand.NewPCG(seed, seed>>1|1)))
}

// NewWithSource creates a generator drawing from src
func NewWithSource(src Source) *Generator {
	return &Generator{src: src}
}

// Generate returns a detection with all twelve keypoints and a scored result
func (g *Generator) Generate() (types.Detection, types.ATCResult) {
	g.mu.Lock()
	defer g.mu.Unlock()

	keypoints := make([]types.Keypoint, types.NumKeypoints)
	for i, p := range template {
		keypoints[i] = types.Keypoint{
			Name:       types.KeypointName(i),
			X:          p.x + g.between(-8, 8),
			Y:          p.y + g.between(-8, 8),
			Visibility: clampUnit(p.visibility + g.between(-p.spread, p.spread)),
		}
	}

	box := templateBox
	box.XCenter = (box.X1 + box.X2) / 2
	box.YCenter = (box.Y1 + box.Y2) / 2
	box.Width = box.X2 - box.X1
	box.Height = box.Y2 - box.Y1

	detection := types.Detection{
		BBox:       box,
		Confidence: 0.85 + g.between(0, 0.1),
		Keypoints:  keypoints,
	}

	scores := types.CategoryScores{
		DairyCharacter:    scoring.ClampScore(6 + g.between(0, 2)),
		BodyCapacity:      scoring.ClampScore(5 + g.between(0, 3)),
		MammarySystem:     scoring.ClampScore(6 + g.between(0, 2)),
		FeetLegs:          scoring.ClampScore(5 + g.between(0, 2)),
		GeneralAppearance: scoring.ClampScore(6 + g.between(0, 2)),
	}
	overall := scoring.Overall(scores)

	return detection, types.ATCResult{
		Classification: scoring.Classify(overall),
		OverallScore:   scoring.Round1(overall),
		CategoryScores: scores,
		Measurements:   &types.Measurements{},
	}
}

func (g *Generator) between(lo, hi float64) float64 {
	return lo + g.src.Float64()*(hi-lo)
}

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
