//go:build govips && cgo

package codec

import (
	"fmt"

	"github.com/davidbyttow/govips/v2/vips"
)

// VipsCodec is the libvips backend. Startup must have been called.
type VipsCodec struct{}

func (VipsCodec) Metadata(data []byte) (Metadata, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer ref.Close()

	return Metadata{
		Format: vipsFormat(ref.Format()),
		Width:  ref.Width(),
		Height: ref.Height(),
	}, nil
}

func (VipsCodec) Decode(data []byte) (Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return &vipsImage{ref: ref, format: vipsFormat(ref.Format())}, nil
}

func vipsFormat(t vips.ImageType) Format {
	switch t {
	case vips.ImageTypeJPEG:
		return FormatJPEG
	case vips.ImageTypePNG:
		return FormatPNG
	case vips.ImageTypeWEBP:
		return FormatWebP
	case vips.ImageTypeTIFF:
		return FormatTIFF
	case vips.ImageTypeGIF:
		return FormatGIF
	default:
		return Format(vips.ImageTypes[t])
	}
}

type vipsImage struct {
	ref    *vips.ImageRef
	format Format
}

func (i *vipsImage) Width() int     { return i.ref.Width() }
func (i *vipsImage) Height() int    { return i.ref.Height() }
func (i *vipsImage) Format() Format { return i.format }

func (i *vipsImage) Resize(width, height int) error {
	if width < 0 || height < 0 {
		return fmt.Errorf("resize to %dx%d: negative dimension", width, height)
	}
	if width == 0 && height == 0 {
		return nil
	}

	srcW, srcH := float64(i.ref.Width()), float64(i.ref.Height())
	hscale := float64(width) / srcW
	vscale := float64(height) / srcH
	switch {
	case width == 0:
		hscale = vscale
	case height == 0:
		vscale = hscale
	}

	if err := i.ref.ResizeWithVScale(hscale, vscale, vips.KernelLanczos3); err != nil {
		return fmt.Errorf("resize image: %w", err)
	}
	return nil
}

func (i *vipsImage) Crop(width, height, left, top int) error {
	if err := checkCrop(i.Width(), i.Height(), width, height, left, top); err != nil {
		return err
	}
	if err := i.ref.ExtractArea(left, top, width, height); err != nil {
		return fmt.Errorf("crop image: %w", err)
	}
	return nil
}

func (i *vipsImage) Rotate(degrees float64) error {
	background := &vips.ColorRGBA{R: 0, G: 0, B: 0, A: 255}
	if err := i.ref.Similarity(1.0, degrees, background, 0, 0, 0, 0); err != nil {
		return fmt.Errorf("rotate image: %w", err)
	}
	return nil
}

func (i *vipsImage) Flip() error {
	if err := i.ref.Flip(vips.DirectionVertical); err != nil {
		return fmt.Errorf("flip image: %w", err)
	}
	return nil
}

func (i *vipsImage) Mirror() error {
	if err := i.ref.Flip(vips.DirectionHorizontal); err != nil {
		return fmt.Errorf("mirror image: %w", err)
	}
	return nil
}

func (i *vipsImage) Grayscale() error {
	if err := i.ref.ToColorSpace(vips.InterpretationBW); err != nil {
		return fmt.Errorf("grayscale image: %w", err)
	}
	return nil
}

func (i *vipsImage) Modulate(saturation, brightness, hue float64) error {
	if err := i.ref.Modulate(brightness, saturation, hue); err != nil {
		return fmt.Errorf("modulate image: %w", err)
	}
	return nil
}

func (i *vipsImage) Composite(overlay []byte, gravity Gravity) error {
	top, err := vips.NewImageFromBuffer(overlay)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrOverlay, err)
	}
	defer top.Close()

	ow, oh := top.Width(), top.Height()
	bw, bh := i.Width(), i.Height()
	if ow > bw || oh > bh {
		return fmt.Errorf("%w: overlay %dx%d larger than image %dx%d", ErrOverlay, ow, oh, bw, bh)
	}

	x, y := overlayOrigin(bw, bh, ow, oh, gravity)
	if err := i.ref.Composite(top, vips.BlendModeOver, x, y); err != nil {
		return fmt.Errorf("%w: %v", ErrOverlay, err)
	}
	return nil
}

func (i *vipsImage) Encode(format Format, quality int) ([]byte, error) {
	var (
		data []byte
		err  error
	)
	switch format {
	case FormatJPEG:
		params := vips.NewJpegExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err = i.ref.ExportJpeg(params)
	case FormatPNG:
		params := vips.NewPngExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err = i.ref.ExportPng(params)
	case FormatWebP:
		params := vips.NewWebpExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err = i.ref.ExportWebp(params)
	case FormatTIFF:
		params := vips.NewTiffExportParams()
		if quality > 0 && quality <= 100 {
			params.Quality = quality
		}
		data, _, err = i.ref.ExportTiff(params)
	case FormatGIF:
		data, _, err = i.ref.ExportGIF(vips.NewGifExportParams())
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	return data, nil
}

func (i *vipsImage) Close() {
	i.ref.Close()
}
