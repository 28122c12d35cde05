package types

import (
	"encoding/json"
	"fmt"
)

// KeypointName identifies one of the fixed anatomical landmarks.
// The numeric order is the order of the keypoint planes in the model output.
type KeypointName int

const (
	Nose KeypointName = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	Neck
	Withers
	BackCenter
	TailBase
	FrontHoof
	RearHoof
	UdderCenter
)

// NumKeypoints is the number of landmarks the model predicts per detection
const NumKeypoints = 12

// DefaultKeypointColor is used for names outside the landmark table
const DefaultKeypointColor = "#6b7280"

var keypointNames = [NumKeypoints]string{
	"nose", "left_eye", "right_eye", "left_ear", "right_ear",
	"neck", "withers", "back_center", "tail_base",
	"front_hoof", "rear_hoof", "udder_center",
}

var keypointColors = [NumKeypoints]string{
	"#ef4444", // red
	"#f97316", // orange
	"#f97316",
	"#eab308", // yellow
	"#eab308",
	"#22c55e", // green
	"#06b6d4", // cyan
	"#3b82f6", // blue
	"#8b5cf6", // purple
	"#ec4899", // pink
	"#ec4899",
	"#f59e0b", // amber
}

// KeypointNames returns all landmarks in model output order
func KeypointNames() []KeypointName {
	out := make([]KeypointName, NumKeypoints)
	for i := range out {
		out[i] = KeypointName(i)
	}
	return out
}

// Valid reports whether n is one of the known landmarks
func (n KeypointName) Valid() bool {
	return n >= 0 && int(n) < NumKeypoints
}

func (n KeypointName) String() string {
	if !n.Valid() {
		return fmt.Sprintf("keypoint(%d)", int(n))
	}
	return keypointNames[n]
}

// Color returns the display colour of the landmark
func (n KeypointName) Color() string {
	if !n.Valid() {
		return DefaultKeypointColor
	}
	return keypointColors[n]
}

// ParseKeypointName maps a landmark identifier back to its enum value
func ParseKeypointName(s string) (KeypointName, error) {
	for i, name := range keypointNames {
		if name == s {
			return KeypointName(i), nil
		}
	}
	return 0, fmt.Errorf("unknown keypoint name: %q", s)
}

func (n KeypointName) MarshalJSON() ([]byte, error) {
	if !n.Valid() {
		return nil, fmt.Errorf("invalid keypoint name: %d", int(n))
	}
	return json.Marshal(n.String())
}

func (n *KeypointName) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseKeypointName(s)
	if err != nil {
		return err
	}
	*n = parsed
	return nil
}

// Keypoint is a named landmark in model input pixel space
type Keypoint struct {
	Name       KeypointName `json:"name"`
	X          float64      `json:"x"`
	Y          float64      `json:"y"`
	Visibility float64      `json:"visibility"`
}
