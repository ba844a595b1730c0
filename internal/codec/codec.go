// Package codec decodes image artifacts into a mutable working image, applies
// primitive operations to it and encodes it back to bytes.
package codec

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDecode            = errors.New("decode image")
	ErrBounds            = errors.New("region exceeds image bounds")
	ErrOverlay           = errors.New("composite overlay")
	ErrUnsupportedFormat = errors.New("unsupported image format")
)

type Format string

const (
	FormatJPEG Format = "jpeg"
	FormatPNG  Format = "png"
	FormatWebP Format = "webp"
	FormatTIFF Format = "tiff"
	FormatGIF  Format = "gif"
	FormatBMP  Format = "bmp"
)

// DefaultQuality is used for lossy encodes when the caller passes quality <= 0.
const DefaultQuality = 80

// ParseOutputFormat maps a requested output format onto a Format. Only the
// formats a transformation may target are accepted.
func ParseOutputFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return FormatJPEG, true
	case "png":
		return FormatPNG, true
	case "webp":
		return FormatWebP, true
	case "tiff":
		return FormatTIFF, true
	default:
		return "", false
	}
}

func (f Format) MimeType() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatTIFF:
		return "image/tiff"
	case FormatGIF:
		return "image/gif"
	case FormatBMP:
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

type Metadata struct {
	Format Format
	Width  int
	Height int
}

type Gravity string

const (
	GravityNorthWest Gravity = "northwest"
	GravityNorth     Gravity = "north"
	GravityNorthEast Gravity = "northeast"
	GravityWest      Gravity = "west"
	GravityCenter    Gravity = "center"
	GravityEast      Gravity = "east"
	GravitySouthWest Gravity = "southwest"
	GravitySouth     Gravity = "south"
	GravitySouthEast Gravity = "southeast"
)

// Codec is the entry point of an image backend.
type Codec interface {
	Decode(data []byte) (Image, error)
	Metadata(data []byte) (Metadata, error)
}

// Image is a decoded working image. Operations mutate it in place; an Image
// must not be shared between goroutines.
type Image interface {
	Width() int
	Height() int
	Format() Format

	// Resize scales to width x height. A zero dimension is computed from the
	// other so the aspect ratio is kept.
	Resize(width, height int) error
	Crop(width, height, left, top int) error
	// Rotate turns the image clockwise by degrees, growing the canvas so no
	// pixels are clipped.
	Rotate(degrees float64) error
	Flip() error
	Mirror() error
	Grayscale() error
	Modulate(saturation, brightness, hue float64) error
	Composite(overlay []byte, gravity Gravity) error
	Encode(format Format, quality int) ([]byte, error)
	Close()
}

func checkCrop(imgW, imgH, width, height, left, top int) error {
	if width <= 0 || height <= 0 || left < 0 || top < 0 || left+width > imgW || top+height > imgH {
		return fmt.Errorf("%w: crop %dx%d at (%d,%d) on %dx%d image", ErrBounds, width, height, left, top, imgW, imgH)
	}
	return nil
}

// overlayOrigin returns the top-left point where an overlay of ow x oh lands
// on a base of bw x bh for the given gravity.
func overlayOrigin(bw, bh, ow, oh int, gravity Gravity) (int, int) {
	left, centerX, right := 0, (bw-ow)/2, bw-ow
	top, centerY, bottom := 0, (bh-oh)/2, bh-oh

	switch gravity {
	case GravityNorthWest:
		return left, top
	case GravityNorth:
		return centerX, top
	case GravityNorthEast:
		return right, top
	case GravityWest:
		return left, centerY
	case GravityCenter:
		return centerX, centerY
	case GravityEast:
		return right, centerY
	case GravitySouthWest:
		return left, bottom
	case GravitySouth:
		return centerX, bottom
	default:
		return right, bottom
	}
}
