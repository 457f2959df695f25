// Package preview renders sample text in a font and keeps live previews
// current as the text changes.
package preview

import (
	"bufio"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"fontshelf/internal/fontdec"
)

// Renderer draws one line of text into a fixed-size canvas. Sizes are in
// logical pixels and are multiplied by the device pixel ratio.
type Renderer struct {
	Width    int
	Height   int
	Baseline float64
	FontSize float64
	Color    color.Color
}

// DefaultRenderer returns the 1000x40 preview strip with a 32px font on a
// baseline 32px from the top.
func DefaultRenderer() Renderer {
	return Renderer{
		Width:    1000,
		Height:   40,
		Baseline: 32,
		FontSize: 32,
		Color:    color.White,
	}
}

// DisplayText returns the text a preview shows: the sample text, or the
// font's family name when the sample is empty.
func DisplayText(sample string, desc *fontdec.Descriptor) string {
	if sample != "" || desc == nil {
		return sample
	}
	return desc.Family
}

// Size returns the backing canvas size for a device pixel ratio.
func (r Renderer) Size(dpr float64) (int, int) {
	dpr = normalizeDPR(dpr)
	return int(math.Ceil(float64(r.Width) * dpr)), int(math.Ceil(float64(r.Height) * dpr))
}

// Render draws text with desc onto a transparent canvas. A nil descriptor
// renders nothing and returns a nil image.
func (r Renderer) Render(desc *fontdec.Descriptor, text string, dpr float64) (*image.RGBA, error) {
	if desc == nil {
		return nil, nil
	}
	dpr = normalizeDPR(dpr)
	w, h := r.Size(dpr)
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	if text == "" {
		return img, nil
	}
	c := r.Color
	if c == nil {
		c = color.White
	}
	if err := desc.Draw(img, text, 0, r.Baseline*dpr, r.FontSize*dpr, c); err != nil {
		return nil, err
	}
	return img, nil
}

// Pixel ratios are snapped to quarter steps between dprStep and maxDPR so
// only a fixed set of canvas sizes exists.
const (
	dprStep = 0.25
	maxDPR  = 4
)

func normalizeDPR(dpr float64) float64 {
	if dpr <= 0 || math.IsNaN(dpr) || math.IsInf(dpr, 0) {
		return 1
	}
	dpr = math.Round(dpr/dprStep) * dprStep
	return min(max(dpr, dprStep), maxDPR)
}

var encoder = png.Encoder{CompressionLevel: png.BestSpeed}

// EncodePNG writes img as a PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	bw := bufio.NewWriter(w)
	if err := encoder.Encode(bw, img); err != nil {
		return err
	}
	return bw.Flush()
}
