package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"
)

// Text overlays are rendered onto a fixed canvas regardless of the text length.
const (
	TextOverlayWidth  = 400
	TextOverlayHeight = 80

	textOverlayFontSize = 36
)

var textFace = sync.OnceValues(func() (font.Face, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	return opentype.NewFace(f, &opentype.FaceOptions{
		Size:    textOverlayFontSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
})

// RenderText draws text centred on a transparent TextOverlayWidth x
// TextOverlayHeight canvas and returns it as PNG bytes, ready for Composite.
// Text that does not fit is clipped.
func RenderText(text string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty watermark text", ErrOverlay)
	}

	face, err := textFace()
	if err != nil {
		return nil, fmt.Errorf("%w: load font: %v", ErrOverlay, err)
	}

	canvas := image.NewNRGBA(image.Rect(0, 0, TextOverlayWidth, TextOverlayHeight))
	drawer := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(color.NRGBA{R: 255, G: 255, B: 255, A: 160}),
		Face: face,
	}

	metrics := face.Metrics()
	textWidth := drawer.MeasureString(text).Ceil()
	textHeight := (metrics.Ascent + metrics.Descent).Ceil()
	x := (TextOverlayWidth - textWidth) / 2
	baseline := (TextOverlayHeight-textHeight)/2 + metrics.Ascent.Ceil()
	drawer.Dot = fixed.P(x, baseline)
	drawer.DrawString(text)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return nil, fmt.Errorf("%w: encode text overlay: %v", ErrOverlay, err)
	}
	return buf.Bytes(), nil
}
