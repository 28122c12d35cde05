// Package scoring converts body measurements into Animal Type Classification scores.
package scoring

import (
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/menta2k/atc-analyzer/pkg/measurement"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// Category weights of the overall score. They sum to 1.
const (
	WeightDairyCharacter    = 0.25
	WeightBodyCapacity      = 0.20
	WeightFeetLegs          = 0.15
	WeightMammarySystem     = 0.25
	WeightGeneralAppearance = 0.15
)

// Score scale
const (
	MinScore      = 1.0
	MaxScore      = 9.0
	BaselineScore = 5.0
)

// Classification labels
const (
	Excellent      = "Excellent"
	GoodPlus       = "Good Plus"
	Good           = "Good"
	Fair           = "Fair"
	AnalysisFailed = "Analysis Failed"
)

// Jitter yields a per-category score offset in [-1, 1]
type Jitter interface {
	Offset() float64
}

// NoJitter makes scoring a pure function of the measurements
type NoJitter struct{}

func (NoJitter) Offset() float64 { return 0 }

// RandomJitter draws uniform offsets in [-1, 1). Safe for concurrent use.
type RandomJitter struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewRandomJitter seeds the generator; seed 0 seeds from the clock
func NewRandomJitter(seed uint64) *RandomJitter {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &RandomJitter{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (j *RandomJitter) Offset() float64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.rng.Float64()*2 - 1
}

// Config holds scorer configuration
type Config struct {
	// Jitter perturbs every category score by a uniform offset in [-1, 1]
	Jitter              bool
	Seed                uint64
	VisibilityThreshold float64
}

// Scorer maps a detection to an ATCResult
type Scorer struct {
	jitter    Jitter
	extractor measurement.Extractor
}

// New creates a scorer with clock-seeded jitter
func New() *Scorer {
	return NewWithConfig(Config{Jitter: true, VisibilityThreshold: measurement.DefaultVisibilityThreshold})
}

// NewWithConfig creates a scorer with custom configuration
func NewWithConfig(config Config) *Scorer {
	var j Jitter = NoJitter{}
	if config.Jitter {
		j = NewRandomJitter(config.Seed)
	}
	return NewWithJitter(j, config.VisibilityThreshold)
}

// NewWithJitter creates a scorer with an explicit jitter source
func NewWithJitter(j Jitter, visibilityThreshold float64) *Scorer {
	if j == nil {
		j = NoJitter{}
	}
	if visibilityThreshold <= 0 {
		visibilityThreshold = measurement.DefaultVisibilityThreshold
	}
	return &Scorer{
		jitter:    j,
		extractor: measurement.Extractor{VisibilityThreshold: visibilityThreshold},
	}
}

// Jitter returns the scorer's offset source
func (s *Scorer) Jitter() Jitter {
	return s.jitter
}

// Score measures and scores a detection. A detection without keypoints is not measured
// and yields an all-zero "Analysis Failed" result.
func (s *Scorer) Score(d types.Detection) types.ATCResult {
	if len(d.Keypoints) == 0 {
		return FailedResult()
	}

	m := s.extractor.Extract(d)
	scores := s.Perturb(BaseScores(m))
	overall := Overall(scores)

	return types.ATCResult{
		Classification: Classify(overall),
		OverallScore:   Round1(overall),
		CategoryScores: scores,
		Measurements:   &m,
	}
}

// FailedResult is the result for a detection that could not be analyzed
func FailedResult() types.ATCResult {
	return types.ATCResult{
		Classification: AnalysisFailed,
		OverallScore:   0,
		CategoryScores: types.CategoryScores{},
	}
}

// BaseScores applies the measurement rules before any jitter
func BaseScores(m types.Measurements) types.CategoryScores {
	scores := types.CategoryScores{
		DairyCharacter:    BaselineScore,
		BodyCapacity:      BaselineScore,
		MammarySystem:     BaselineScore,
		FeetLegs:          BaselineScore,
		GeneralAppearance: BaselineScore,
	}

	if m.BodyRatio != nil {
		r := *m.BodyRatio
		switch {
		case r >= 1.4 && r <= 1.8:
			scores.DairyCharacter = 8
		case r >= 1.2 && r <= 2.0:
			scores.DairyCharacter = 6
		default:
			scores.DairyCharacter = 4
		}
	}

	if m.HeightPx != nil {
		h := *m.HeightPx
		switch {
		case h > 200:
			scores.BodyCapacity = 7
		case h > 150:
			scores.BodyCapacity = 6
		default:
			scores.BodyCapacity = 4
		}
	}

	// Mammary system, feet & legs and general appearance have no measurement rule yet
	return scores
}

// Perturb adds an independent jitter offset to every category and clamps to [1, 9]
func (s *Scorer) Perturb(c types.CategoryScores) types.CategoryScores {
	return types.CategoryScores{
		DairyCharacter:    ClampScore(c.DairyCharacter + s.jitter.Offset()),
		BodyCapacity:      ClampScore(c.BodyCapacity + s.jitter.Offset()),
		MammarySystem:     ClampScore(c.MammarySystem + s.jitter.Offset()),
		FeetLegs:          ClampScore(c.FeetLegs + s.jitter.Offset()),
		GeneralAppearance: ClampScore(c.GeneralAppearance + s.jitter.Offset()),
	}
}

// Overall is the weighted sum of the category scores
func Overall(c types.CategoryScores) float64 {
	return c.DairyCharacter*WeightDairyCharacter +
		c.BodyCapacity*WeightBodyCapacity +
		c.FeetLegs*WeightFeetLegs +
		c.MammarySystem*WeightMammarySystem +
		c.GeneralAppearance*WeightGeneralAppearance
}

// Classify maps an overall score to its label
func Classify(overall float64) string {
	switch {
	case overall >= 8:
		return Excellent
	case overall >= 6.5:
		return GoodPlus
	case overall >= 5:
		return Good
	default:
		return Fair
	}
}

// ClampScore bounds a category score to the 1-9 scale
func ClampScore(v float64) float64 {
	return math.Min(MaxScore, math.Max(MinScore, v))
}

// Round1 rounds to one decimal place
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}
