package processing

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// DefaultInputSize is the square input resolution of the keypoint model
const DefaultInputSize = 640

// ErrPreprocessing is returned when an image cannot be decoded or resized
var ErrPreprocessing = errors.New("image preprocessing failed")

// Config holds preprocessing parameters
type Config struct {
	InputSize int
	// Resample names the resize filter: lanczos (default), catmullrom, linear, box or nearest
	Resample string
}

// Processor turns raw uploads into model input tensors
type Processor struct {
	config Config
	filter imaging.ResampleFilter
}

// NewProcessor creates a processor for the default 640x640 model input
func NewProcessor() *Processor {
	return NewProcessorWithConfig(Config{InputSize: DefaultInputSize, Resample: "lanczos"})
}

// NewProcessorWithConfig creates a processor with custom configuration
func NewProcessorWithConfig(config Config) *Processor {
	if config.InputSize <= 0 {
		config.InputSize = DefaultInputSize
	}
	return &Processor{config: config, filter: resampleFilter(config.Resample)}
}

func resampleFilter(name string) imaging.ResampleFilter {
	switch strings.ToLower(name) {
	case "nearest":
		return imaging.NearestNeighbor
	case "box":
		return imaging.Box
	case "linear":
		return imaging.Linear
	case "catmullrom":
		return imaging.CatmullRom
	default:
		return imaging.Lanczos
	}
}

// InputSize returns the side length of the model input
func (p *Processor) InputSize() int {
	return p.config.InputSize
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", ErrPreprocessing, path, err)
	}
	mimeType := ""
	if strings.HasSuffix(strings.ToLower(path), ".webp") {
		mimeType = "image/webp"
	}
	return p.DecodeImage(data, mimeType)
}

// DecodeImage decodes image bytes. The MIME type is a hint only; the content decides.
func (p *Processor) DecodeImage(data []byte, mimeType string) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrPreprocessing)
	}

	if strings.EqualFold(mimeType, "image/webp") {
		if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
			return img, nil
		}
	}

	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	// Fallback: explicit WebP decode for files served under the wrong type
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("%w: unknown or unsupported format (%s)", ErrPreprocessing, mimeOrUnknown(mimeType))
}

// Preprocess decodes image bytes and converts them to the model input tensor
func (p *Processor) Preprocess(data []byte, mimeType string) (types.Tensor, error) {
	img, err := p.DecodeImage(data, mimeType)
	if err != nil {
		return types.Tensor{}, err
	}
	return p.ToTensor(img)
}

// Resize scales img to exactly InputSize x InputSize, ignoring aspect ratio
func (p *Processor) Resize(img image.Image) (*image.NRGBA, error) {
	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: invalid image dimensions %dx%d", ErrPreprocessing, b.Dx(), b.Dy())
	}
	s := p.config.InputSize
	resized := imaging.Resize(img, s, s, p.filter)
	if resized.Bounds().Dx() != s || resized.Bounds().Dy() != s {
		return nil, fmt.Errorf("%w: resize produced %dx%d, want %dx%d",
			ErrPreprocessing, resized.Bounds().Dx(), resized.Bounds().Dy(), s, s)
	}
	return resized, nil
}

// ToTensor resizes img and writes it as a [1,3,S,S] tensor.
// Values are normalized to [0,1] and stored plane-major: all red, then all green, then all blue.
func (p *Processor) ToTensor(img image.Image) (types.Tensor, error) {
	resized, err := p.Resize(img)
	if err != nil {
		return types.Tensor{}, err
	}

	s := p.config.InputSize
	plane := s * s
	data := make([]float32, 3*plane)

	idx := 0
	for y := 0; y < s; y++ {
		i := y * resized.Stride
		for x := 0; x < s; x++ {
			data[idx] = float32(resized.Pix[i]) / 255.0
			data[plane+idx] = float32(resized.Pix[i+1]) / 255.0
			data[2*plane+idx] = float32(resized.Pix[i+2]) / 255.0
			idx++
			i += 4
		}
	}

	return types.Tensor{
		Shape: []int64{1, 3, int64(s), int64(s)},
		Data:  data,
	}, nil
}

// DataURI encodes raw image bytes as a base64 data URI
func DataURI(data []byte, mimeType string) string {
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	return fmt.Sprintf("data:%s;base64,%s", mimeType, base64.StdEncoding.EncodeToString(data))
}

func mimeOrUnknown(mimeType string) string {
	if mimeType == "" {
		return "unknown type"
	}
	return mimeType
}

// Helper functions
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
