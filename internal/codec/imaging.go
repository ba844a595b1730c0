package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/color"

	// Decoders beyond the ones imaging already registers.
	_ "golang.org/x/image/webp"

	"github.com/HugoSmits86/nativewebp"
	"github.com/disintegration/imaging"
)

// ImagingCodec is the pure Go backend built on disintegration/imaging.
type ImagingCodec struct{}

func (ImagingCodec) Metadata(data []byte) (Metadata, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return Metadata{Format: Format(format), Width: cfg.Width, Height: cfg.Height}, nil
}

func (ImagingCodec) Decode(data []byte) (Image, error) {
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &imagingImage{img: src, format: Format(format)}, nil
}

type imagingImage struct {
	img    image.Image
	format Format
}

func (i *imagingImage) Width() int     { return i.img.Bounds().Dx() }
func (i *imagingImage) Height() int    { return i.img.Bounds().Dy() }
func (i *imagingImage) Format() Format { return i.format }

func (i *imagingImage) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("resize to %dx%d: negative dimension", width, height)
	}
	if width == 0 && height == 0 {
		return nil
	}
	i.img = imaging.Resize(i.img, width, height, imaging.Lanczos)
	return nil
}

func (i *imagingImage) Crop(width, height, left, top int) error {
	if err := checkCrop(i.Width(), i.Height(), width, height, left, top); err != nil {
		return err
	}
	origin := i.img.Bounds().Min
	rect := image.Rect(left, top, left+width, top+height).Add(origin)
	i.img = imaging.Crop(i.img, rect)
	return nil
}

func (i *imagingImage) Rotate(degrees float64) error {
	// imaging turns counter-clockwise.
	i.img = imaging.Rotate(i.img, -degrees, color.Black)
	return nil
}

func (i *imagingImage) Flip() error {
	i.img = imaging.FlipV(i.img)
	return nil
}

func (i *imagingImage) Mirror() error {
	i.img = imaging.FlipH(i.img)
	return nil
}

func (i *imagingImage) Grayscale() error {
	i.img = imaging.Grayscale(i.img)
	return nil
}

func (i *imagingImage) Modulate(saturation, brightness, hue float64) error {
	i.img = imaging.AdjustFunc(i.img, func(c color.NRGBA) color.NRGBA {
		return modulatePixel(c, saturation, brightness, hue)
	})
	return nil
}

func (i *imagingImage) Composite(overlay []byte, gravity Gravity) error {
	top, err := imaging.Decode(bytes.NewReader(overlay))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOverlay, err)
	}
	ow, oh := top.Bounds().Dx(), top.Bounds().Dy()
	bw, bh := i.Width(), i.Height()
	if ow > bw || oh > bh {
		return fmt.Errorf("%w: overlay %dx%d larger than image %dx%d", ErrOverlay, ow, oh, bw, bh)
	}

	x, y := overlayOrigin(bw, bh, ow, oh, gravity)
	origin := i.img.Bounds().Min
	i.img = imaging.Overlay(i.img, top, image.Pt(origin.X+x, origin.Y+y), 1.0)
	return nil
}

func (i *imagingImage) Encode(format Format, quality int) ([]byte, error) {
	var (
		target imaging.Format
		opts   []imaging.EncodeOption
	)
	switch format {
	case FormatJPEG:
		if quality <= 0 || quality > 100 {
			quality = DefaultQuality
		}
		target = imaging.JPEG
		opts = append(opts, imaging.JPEGQuality(quality))
	case FormatPNG:
		target = imaging.PNG
	case FormatTIFF:
		target = imaging.TIFF
	case FormatGIF:
		target = imaging.GIF
	case FormatBMP:
		target = imaging.BMP
	case FormatWebP:
		// Lossless VP8L; quality has no effect.
		var buf bytes.Buffer
		if err := nativewebp.Encode(&buf, imaging.Clone(i.img), nil); err != nil {
			return nil, fmt.Errorf("encode %s: %w", format, err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, i.img, target, opts...); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return buf.Bytes(), nil
}

func (i *imagingImage) Close() {}
