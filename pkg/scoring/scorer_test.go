package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/atc-analyzer/internal/testutil"
	"github.com/menta2k/atc-analyzer/pkg/types"
)

// fixedJitter replays offsets in order and repeats the last one
type fixedJitter struct {
	offsets []float64
	calls   int
}

func (f *fixedJitter) Offset() float64 {
	if len(f.offsets) == 0 {
		return 0
	}
	i := min(f.calls, len(f.offsets)-1)
	f.calls++
	return f.offsets[i]
}

func ptr(v float64) *float64 { return &v }

func TestWeightsSumToOne(t *testing.T) {
	sum := WeightDairyCharacter + WeightBodyCapacity + WeightFeetLegs + WeightMammarySystem + WeightGeneralAppearance
	assert.InDelta(t, 1.0, sum, 1e-12)
}

func TestClassifyBoundaries(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{9.0, Excellent},
		{8.0, Excellent},
		{7.999, GoodPlus},
		{6.5, GoodPlus},
		{6.499, Good},
		{5.0, Good},
		{4.999, Fair},
		{1.0, Fair},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.score), "score %.3f", tt.score)
	}
}

func TestBaseScoresDefaults(t *testing.T) {
	s := BaseScores(types.Measurements{})
	assert.Equal(t, types.CategoryScores{
		DairyCharacter: 5, BodyCapacity: 5, MammarySystem: 5, FeetLegs: 5, GeneralAppearance: 5,
	}, s)
}

func TestBaseScoresDairyCharacter(t *testing.T) {
	tests := []struct {
		ratio float64
		want  float64
	}{
		{1.4, 8}, {1.6, 8}, {1.8, 8},
		{1.2, 6}, {1.3, 6}, {1.9, 6}, {2.0, 6},
		{1.19, 4}, {2.01, 4}, {0.5, 4},
	}
	for _, tt := range tests {
		s := BaseScores(types.Measurements{BodyRatio: ptr(tt.ratio)})
		assert.Equal(t, tt.want, s.DairyCharacter, "ratio %.2f", tt.ratio)
		assert.Equal(t, BaselineScore, s.BodyCapacity)
	}
}

func TestBaseScoresBodyCapacity(t *testing.T) {
	tests := []struct {
		height float64
		want   float64
	}{
		{250, 7}, {200.5, 7}, {200, 6}, {180, 6}, {150.5, 6}, {150, 4}, {0, 4},
	}
	for _, tt := range tests {
		s := BaseScores(types.Measurements{HeightPx: ptr(tt.height)})
		assert.Equal(t, tt.want, s.BodyCapacity, "height %.1f", tt.height)
		assert.Equal(t, BaselineScore, s.DairyCharacter)
	}
}

func TestOverallWithinScale(t *testing.T) {
	for _, v := range []float64{1, 3.3, 5, 7.7, 9} {
		c := types.CategoryScores{DairyCharacter: v, BodyCapacity: 9, MammarySystem: 1, FeetLegs: v, GeneralAppearance: v}
		o := Overall(c)
		assert.GreaterOrEqual(t, o, 1.0)
		assert.LessOrEqual(t, o, 9.0)
	}
	assert.InDelta(t, 9.0, Overall(types.CategoryScores{9, 9, 9, 9, 9}), 1e-12)
	assert.InDelta(t, 1.0, Overall(types.CategoryScores{1, 1, 1, 1, 1}), 1e-12)
}

func TestScoreNoKeypoints(t *testing.T) {
	s := NewWithJitter(&fixedJitter{offsets: []float64{1}}, 0)
	res := s.Score(types.Detection{Confidence: 0.9})

	assert.Equal(t, AnalysisFailed, res.Classification)
	assert.Zero(t, res.OverallScore)
	assert.Equal(t, types.CategoryScores{}, res.CategoryScores)
	assert.Nil(t, res.Measurements)
}

func TestScoreDeterministic(t *testing.T) {
	d := testutil.DetectionWith(map[types.KeypointName]types.Keypoint{
		types.Withers:   {X: 300, Y: 200, Visibility: 0.9},
		types.FrontHoof: {X: 300, Y: 380, Visibility: 0.9},
		types.Neck:      {X: 420, Y: 200, Visibility: 0.9},
		types.TailBase:  {X: 132, Y: 200, Visibility: 0.9},
	})

	s := NewWithConfig(Config{Jitter: false})
	first := s.Score(d)
	second := s.Score(d)
	assert.Equal(t, first, second)

	// ratio 288/180 = 1.6 -> 8, height 180 -> 6
	assert.Equal(t, 8.0, first.CategoryScores.DairyCharacter)
	assert.Equal(t, 6.0, first.CategoryScores.BodyCapacity)
	// 8*.25 + 6*.2 + 5*.15 + 5*.25 + 5*.15 = 5.95
	assert.InDelta(t, 5.95, first.OverallScore, 0.051)
	assert.Equal(t, Good, first.Classification)
	require.NotNil(t, first.Measurements)
	assert.Equal(t, 180.0, *first.Measurements.HeightPx)
}

func TestScoreHeightOnly(t *testing.T) {
	d := testutil.DetectionWith(map[types.KeypointName]types.Keypoint{
		types.Withers:   {X: 320, Y: 200, Visibility: 0.9},
		types.FrontHoof: {X: 320, Y: 380, Visibility: 0.9},
	})

	res := NewWithConfig(Config{}).Score(d)
	assert.Equal(t, 6.0, res.CategoryScores.BodyCapacity)
	assert.Equal(t, BaselineScore, res.CategoryScores.DairyCharacter)
}

func TestScoreJitterClamped(t *testing.T) {
	d := testutil.DetectionWith(nil)

	up := NewWithJitter(&fixedJitter{offsets: []float64{1}}, 0).Score(d)
	assert.Equal(t, 6.0, up.CategoryScores.MammarySystem)
	assert.Equal(t, 6.0, up.OverallScore)

	// Offsets beyond the scale are clamped
	high := NewWithJitter(&fixedJitter{offsets: []float64{10}}, 0).Score(d)
	assert.Equal(t, types.CategoryScores{9, 9, 9, 9, 9}, high.CategoryScores)
	assert.Equal(t, Excellent, high.Classification)

	low := NewWithJitter(&fixedJitter{offsets: []float64{-10}}, 0).Score(d)
	assert.Equal(t, types.CategoryScores{1, 1, 1, 1, 1}, low.CategoryScores)
	assert.Equal(t, Fair, low.Classification)
}

func TestScoreJitterPerCategory(t *testing.T) {
	j := &fixedJitter{offsets: []float64{0.5, -0.5, 0.25, -0.25, 1}}
	res := NewWithJitter(j, 0).Score(testutil.DetectionWith(nil))

	assert.Equal(t, 5, j.calls)
	assert.Equal(t, types.CategoryScores{
		DairyCharacter:    5.5,
		BodyCapacity:      4.5,
		MammarySystem:     5.25,
		FeetLegs:          4.75,
		GeneralAppearance: 6,
	}, res.CategoryScores)
}

func TestRandomJitterRange(t *testing.T) {
	j := NewRandomJitter(42)
	for i := 0; i < 10000; i++ {
		o := j.Offset()
		require.GreaterOrEqual(t, o, -1.0)
		require.Less(t, o, 1.0)
	}

	a, b := NewRandomJitter(7), NewRandomJitter(7)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a.Offset(), b.Offset(), "same seed, same sequence")
	}
}

func TestRandomScoresStayInScale(t *testing.T) {
	s := NewWithConfig(Config{Jitter: true, Seed: 99})
	d := testutil.DetectionWith(nil)
	for i := 0; i < 500; i++ {
		res := s.Score(d)
		for _, v := range []float64{
			res.CategoryScores.DairyCharacter, res.CategoryScores.BodyCapacity,
			res.CategoryScores.MammarySystem, res.CategoryScores.FeetLegs, res.CategoryScores.GeneralAppearance,
		} {
			require.GreaterOrEqual(t, v, MinScore)
			require.LessOrEqual(t, v, MaxScore)
		}
		require.GreaterOrEqual(t, res.OverallScore, MinScore)
		require.LessOrEqual(t, res.OverallScore, MaxScore)
	}
}

func TestRound1(t *testing.T) {
	assert.Equal(t, 5.9, Round1(5.9))
	assert.Equal(t, 6.5, Round1(6.46))
	assert.Equal(t, 6.4, Round1(6.44))
	assert.Equal(t, 7.0, Round1(6.96))
}

func TestRecommend(t *testing.T) {
	cows := []types.CowAnalysis{
		{CowID: 1, ATCResults: types.ATCResult{CategoryScores: types.CategoryScores{
			DairyCharacter: 7, BodyCapacity: 5.9, MammarySystem: 6, FeetLegs: 4, GeneralAppearance: 2,
		}}},
		{CowID: 2, ATCResults: types.ATCResult{CategoryScores: types.CategoryScores{
			DairyCharacter: 8, BodyCapacity: 8, MammarySystem: 8, FeetLegs: 8, GeneralAppearance: 8,
		}}},
	}

	recs := Recommend(cows)
	require.Len(t, recs, 2)
	assert.Equal(t, "Body Capacity", recs[0].Category)
	assert.Equal(t, "Feet & Legs", recs[1].Category)
	assert.Equal(t, 1, recs[1].CowID)

	assert.NotNil(t, Recommend(nil))
}
