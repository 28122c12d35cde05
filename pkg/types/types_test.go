package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeypointNamesOrder(t *testing.T) {
	names := KeypointNames()
	require.Len(t, names, NumKeypoints)
	assert.Equal(t, "nose", names[0].String())
	assert.Equal(t, "withers", Withers.String())
	assert.Equal(t, "front_hoof", FrontHoof.String())
	assert.Equal(t, "udder_center", names[NumKeypoints-1].String())
}

func TestKeypointColor(t *testing.T) {
	assert.Equal(t, "#ef4444", Nose.Color())
	assert.Equal(t, "#06b6d4", Withers.Color())
	assert.Equal(t, DefaultKeypointColor, KeypointName(42).Color())
	assert.Equal(t, DefaultKeypointColor, KeypointName(-1).Color())
}

func TestParseKeypointName(t *testing.T) {
	for _, n := range KeypointNames() {
		parsed, err := ParseKeypointName(n.String())
		require.NoError(t, err)
		assert.Equal(t, n, parsed)
	}

	_, err := ParseKeypointName("hump")
	assert.Error(t, err)
}

func TestKeypointJSON(t *testing.T) {
	data, err := json.Marshal(Keypoint{Name: TailBase, X: 1.5, Y: 2, Visibility: 0.7})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"tail_base","x":1.5,"y":2,"visibility":0.7}`, string(data))

	var kp Keypoint
	require.NoError(t, json.Unmarshal(data, &kp))
	assert.Equal(t, TailBase, kp.Name)

	_, err = json.Marshal(KeypointName(99))
	assert.Error(t, err)
	assert.Error(t, json.Unmarshal([]byte(`{"name":"hump"}`), &kp))
}

func TestAnnotatedKeypointJSONFlattens(t *testing.T) {
	data, err := json.Marshal(AnnotatedKeypoint{
		Keypoint: Keypoint{Name: Neck, X: 3, Y: 4, Visibility: 0.9},
		Visible:  true,
		Color:    Neck.Color(),
	})
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"neck","x":3,"y":4,"visibility":0.9,"visible":true,"color":"#22c55e"}`, string(data))
}

func TestBoundingBoxArea(t *testing.T) {
	assert.Equal(t, 200.0, BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 20}.Area())
	assert.Equal(t, 0.0, BoundingBox{X1: 10, Y1: 0, X2: 10, Y2: 20}.Area())
	assert.Equal(t, 0.0, BoundingBox{X1: 10, Y1: 10, X2: 5, Y2: 20}.Area())
}

func TestDetectionKeypoints(t *testing.T) {
	d := Detection{Keypoints: []Keypoint{
		{Name: Neck, Visibility: 0.9},
		{Name: Withers, Visibility: 0.5},
		{Name: TailBase, Visibility: 0.2},
	}}

	kp, ok := d.Keypoint(Withers)
	assert.True(t, ok)
	assert.Equal(t, 0.5, kp.Visibility)
	_, ok = d.Keypoint(Nose)
	assert.False(t, ok)

	assert.Equal(t, 1, d.VisibleKeypoints(0.5), "threshold is exclusive")
}

func TestMeasurementsEmpty(t *testing.T) {
	assert.True(t, Measurements{}.Empty())
	h := 10.0
	assert.False(t, Measurements{HeightPx: &h}.Empty())
}

func TestTensorElements(t *testing.T) {
	assert.Equal(t, int64(0), Tensor{}.Elements())
	assert.Equal(t, int64(41*8400), Tensor{Shape: []int64{1, 41, 8400}}.Elements())
}

func TestReportJSONFlattensResult(t *testing.T) {
	r := Report{
		AnalysisResult: AnalysisResult{Success: true, Status: StatusOK, TotalCowsDetected: 1},
		ProcessedImage: "cow.jpg",
	}
	data, err := json.Marshal(r)
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, true, m["success"])
	assert.Equal(t, "cow.jpg", m["processed_image"])
	assert.Contains(t, m, "analysis_metadata")
	assert.Contains(t, m, "recommendations")
}

func TestNoDetections(t *testing.T) {
	assert.True(t, (&AnalysisResult{Status: StatusNoDetections}).NoDetections())
	assert.False(t, (&AnalysisResult{Status: StatusOK}).NoDetections())
}
