package processing

import (
	"fmt"
	"image"
	"image/color"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"

	"github.com/menta2k/atc-analyzer/pkg/types"
)

// RenderAnnotations draws detection boxes and visible keypoints onto the model-space image.
// img should be the InputSize x InputSize image the tensor was built from.
func (p *Processor) RenderAnnotations(img image.Image, annotations []types.Annotation) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h))))
	dot := int(math.Max(3, 0.008*float64(minInt(w, h))))

	for _, a := range annotations {
		drawBox(nrgba, a.BBox, green, stroke)
		for _, kp := range a.Keypoints {
			if !kp.Visible {
				continue
			}
			c, err := parseHexColor(kp.Color)
			if err != nil {
				c, _ = parseHexColor(types.DefaultKeypointColor)
			}
			px := int(clamp(kp.X, 0, float64(w-1)) + 0.5)
			py := int(clamp(kp.Y, 0, float64(h-1)) + 0.5)
			for d := -dot; d <= dot; d++ {
				drawHLine(nrgba, py+d, px-dot, px+dot+1, c)
			}
		}
	}

	return nrgba
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		opts := &webp.Options{Lossless: lossless, Quality: float32(quality)}
		return webp.Encode(f, img, opts)
	case "png":
		return imaging.Save(img, path)
	case "jpg", "jpeg":
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}

func parseHexColor(s string) (color.NRGBA, error) {
	s = strings.TrimPrefix(s, "#")
	if len(s) != 6 {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q", s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid colour %q: %w", s, err)
	}
	return color.NRGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}, nil
}

func drawBox(img *image.NRGBA, box types.BoundingBox, c color.NRGBA, stroke int) {
	x0, y0 := int(box.X1+0.5), int(box.Y1+0.5)
	x1, y1 := int(box.X2+0.5), int(box.Y2+0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, y0+s, x0, x1, c)
		drawHLine(img, y1-1-s, x0, x1, c)
		drawVLine(img, x0+s, y0, y1, c)
		drawVLine(img, x1-1-s, y0, y1, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
