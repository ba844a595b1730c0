package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dunamismax/pixelvault/internal/codec"
)

// Sepia is approximated with a fixed modulation.
const (
	sepiaSaturation = 0.3
	sepiaBrightness = 1.05
	sepiaHue        = 30
)

const (
	stepDecode = "decode"
	stepEncode = "encode"
)

// DefaultMaxPixels caps width*height of the source and of every resize or
// rotate result. An RGBA buffer of this size is 200 MB.
const DefaultMaxPixels = 50_000_000

// LogoSource resolves the watermarkLogoPath directive to image bytes.
type LogoSource interface {
	ReadLogo(ctx context.Context, path string) ([]byte, error)
}

type Result struct {
	Data []byte
	Meta codec.Metadata
}

type Pipeline struct {
	codec   codec.Codec
	logos   LogoSource
	tracer  trace.Tracer
	metrics *Metrics

	maxPixels int64
}

type Option func(*Pipeline)

func WithTracer(tracer trace.Tracer) Option {
	return func(p *Pipeline) {
		if tracer != nil {
			p.tracer = tracer
		}
	}
}

func WithMetrics(m *Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithMaxPixels overrides DefaultMaxPixels. Non-positive values are ignored.
func WithMaxPixels(n int64) Option {
	return func(p *Pipeline) {
		if n > 0 {
			p.maxPixels = n
		}
	}
}

// New builds a pipeline on top of c. logos may be nil, in which case logo
// watermarks are rejected.
func New(c codec.Codec, logos LogoSource, opts ...Option) *Pipeline {
	p := &Pipeline{
		codec:     c,
		logos:     logos,
		tracer:    otel.Tracer("github.com/dunamismax/pixelvault/internal/pipeline"),
		maxPixels: DefaultMaxPixels,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run is the state of one Transform call. It owns the working image.
type run struct {
	directives Directives
	img        codec.Image
	format     codec.Format
	quality    int
	compressed bool
}

type step struct {
	name    string
	enabled func(d Directives) bool
	apply   func(ctx context.Context, p *Pipeline, r *run) error
}

// steps run top to bottom. Reordering them changes the output.
var steps = []step{
	{name: "resize", enabled: func(d Directives) bool { return d.Resize != nil }, apply: applyResize},
	{name: "crop", enabled: func(d Directives) bool { return d.Crop != nil }, apply: applyCrop},
	{name: "rotate", enabled: func(d Directives) bool { return d.Rotate.IsSet() }, apply: applyRotate},
	{name: "flip", enabled: func(d Directives) bool { return d.Flip.Enabled() }, apply: func(_ context.Context, _ *Pipeline, r *run) error {
		return r.img.Flip()
	}},
	{name: "mirror", enabled: func(d Directives) bool { return d.Mirror.Enabled() }, apply: func(_ context.Context, _ *Pipeline, r *run) error {
		return r.img.Mirror()
	}},
	{name: "grayscale", enabled: func(d Directives) bool { return d.Grayscale.Enabled() }, apply: func(_ context.Context, _ *Pipeline, r *run) error {
		return r.img.Grayscale()
	}},
	{name: "sepia", enabled: func(d Directives) bool { return d.Sepia.Enabled() }, apply: func(_ context.Context, _ *Pipeline, r *run) error {
		return r.img.Modulate(sepiaSaturation, sepiaBrightness, sepiaHue)
	}},
	{name: "compress", enabled: func(d Directives) bool { return d.Compress != nil }, apply: applyCompress},
	{name: "format", enabled: func(d Directives) bool { return strings.TrimSpace(d.Format) != "" }, apply: applyFormat},
	{name: "watermarkText", enabled: func(d Directives) bool { return d.WatermarkText != "" }, apply: applyWatermarkText},
	{name: "watermarkLogoPath", enabled: func(d Directives) bool { return d.WatermarkLogoPath != "" }, apply: applyWatermarkLogo},
}

// Transform decodes source, applies the present directives in their fixed
// order and encodes the result. source is never modified. Any failure aborts
// the run and is returned as a *TransformError.
func (p *Pipeline) Transform(ctx context.Context, source []byte, d Directives) (Result, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.transform")
	defer span.End()
	start := time.Now()

	res, err := p.transform(ctx, source, d)
	if err != nil {
		var te *TransformError
		if errors.As(err, &te) {
			span.SetAttributes(attribute.String("pipeline.failed_step", te.Step))
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		p.metrics.observeRun("error", time.Since(start))
		return Result{}, err
	}

	span.SetAttributes(
		attribute.String("image.format", string(res.Meta.Format)),
		attribute.Int("image.width", res.Meta.Width),
		attribute.Int("image.height", res.Meta.Height),
		attribute.Int("image.bytes", len(res.Data)),
	)
	p.metrics.observeRun("ok", time.Since(start))
	return res, nil
}

func (p *Pipeline) transform(ctx context.Context, source []byte, d Directives) (Result, error) {
	// Headers are cheap to read. Refuse oversized sources before the full
	// pixel buffer is allocated.
	meta, err := p.codec.Metadata(source)
	if err == nil {
		err = p.checkPixels(meta.Width, meta.Height)
	}
	if err != nil {
		p.metrics.observeFailure(stepDecode)
		return Result{}, &TransformError{Step: stepDecode, Err: err}
	}

	img, err := p.codec.Decode(source)
	if err != nil {
		p.metrics.observeFailure(stepDecode)
		return Result{}, &TransformError{Step: stepDecode, Err: err}
	}
	defer img.Close()

	r := &run{directives: d, img: img}
	for _, s := range steps {
		if !s.enabled(d) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return Result{}, &TransformError{Step: s.name, Err: err}
		}
		if err := p.runStep(ctx, s, r); err != nil {
			return Result{}, &TransformError{Step: s.name, Err: err}
		}
	}

	data, meta, err := p.encode(ctx, r)
	if err != nil {
		p.metrics.observeFailure(stepEncode)
		return Result{}, &TransformError{Step: stepEncode, Err: err}
	}
	return Result{Data: data, Meta: meta}, nil
}

func (p *Pipeline) runStep(ctx context.Context, s step, r *run) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.step."+s.name)
	defer span.End()
	start := time.Now()

	err := s.apply(ctx, p, r)
	p.metrics.observeStep(s.name, time.Since(start))
	if err != nil {
		p.metrics.observeFailure(s.name)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	span.SetAttributes(
		attribute.Int("image.width", r.img.Width()),
		attribute.Int("image.height", r.img.Height()),
	)
	return nil
}

func (p *Pipeline) encode(ctx context.Context, r *run) ([]byte, codec.Metadata, error) {
	_, span := p.tracer.Start(ctx, "pipeline.step."+stepEncode)
	defer span.End()

	format := r.format
	if format == "" {
		format = r.img.Format()
	}

	// Compression quality only reaches the jpeg and png encoders. Every other
	// target keeps the backend default.
	quality := 0
	if r.compressed && (format == codec.FormatJPEG || format == codec.FormatPNG) {
		quality = r.quality
	}
	span.SetAttributes(
		attribute.String("image.format", string(format)),
		attribute.Int("image.quality", quality),
	)

	data, err := r.img.Encode(format, quality)
	if err != nil {
		span.RecordError(err)
		return nil, codec.Metadata{}, err
	}
	meta, err := p.codec.Metadata(data)
	if err != nil {
		span.RecordError(err)
		return nil, codec.Metadata{}, fmt.Errorf("read encoded metadata: %w", err)
	}
	return data, meta, nil
}

func (p *Pipeline) checkPixels(width, height int) error {
	if int64(width)*int64(height) > p.maxPixels {
		return fmt.Errorf("%w: %dx%d is over %d pixels", ErrTooLarge, width, height, p.maxPixels)
	}
	return nil
}

// resizeTarget mirrors the backends: a zero side follows the aspect ratio,
// and both zero leaves the image alone.
func resizeTarget(srcW, srcH, width, height int) (int64, int64) {
	w, h := int64(width), int64(height)
	switch {
	case w == 0 && h == 0:
		return int64(srcW), int64(srcH)
	case h == 0 && srcW > 0:
		h = (w*int64(srcH) + int64(srcW)/2) / int64(srcW)
	case w == 0 && srcH > 0:
		w = (h*int64(srcW) + int64(srcH)/2) / int64(srcH)
	}
	return w, h
}

func applyResize(_ context.Context, p *Pipeline, r *run) error {
	width, err := r.directives.Resize.Width.Int()
	if err != nil {
		return fmt.Errorf("resize width: %w", err)
	}
	height, err := r.directives.Resize.Height.Int()
	if err != nil {
		return fmt.Errorf("resize height: %w", err)
	}
	if width < 0 || height < 0 {
		return fmt.Errorf("%w: resize %dx%d has a negative dimension", ErrInvalidDirective, width, height)
	}
	w, h := resizeTarget(r.img.Width(), r.img.Height(), width, height)
	if w*h > p.maxPixels {
		return fmt.Errorf("%w: resize to %dx%d: %w", ErrInvalidDirective, w, h, ErrTooLarge)
	}
	return r.img.Resize(width, height)
}

func applyCrop(_ context.Context, _ *Pipeline, r *run) error {
	c := r.directives.Crop
	var dims [4]int
	for i, v := range []Value{c.Width, c.Height, c.Left, c.Top} {
		n, err := v.Int()
		if err != nil {
			return fmt.Errorf("crop: %w", err)
		}
		dims[i] = n
	}
	return r.img.Crop(dims[0], dims[1], dims[2], dims[3])
}

func applyRotate(_ context.Context, p *Pipeline, r *run) error {
	degrees, err := r.directives.Rotate.Float()
	if err != nil {
		return fmt.Errorf("rotate: %w", err)
	}
	w, h := rotatedBounds(r.img.Width(), r.img.Height(), degrees)
	if err := p.checkPixels(w, h); err != nil {
		return fmt.Errorf("%w: rotate %g: %w", ErrInvalidDirective, degrees, err)
	}
	return r.img.Rotate(degrees)
}

// rotatedBounds is the canvas an arbitrary-angle rotation grows to.
func rotatedBounds(width, height int, degrees float64) (int, int) {
	rad := degrees * math.Pi / 180
	sin, cos := math.Abs(math.Sin(rad)), math.Abs(math.Cos(rad))
	w := float64(width)*cos + float64(height)*sin
	h := float64(width)*sin + float64(height)*cos
	return int(math.Ceil(w - 1e-9)), int(math.Ceil(h - 1e-9))
}

func applyCompress(_ context.Context, _ *Pipeline, r *run) error {
	quality := codec.DefaultQuality
	if q := r.directives.Compress.Quality; q.IsSet() {
		n, err := q.Int()
		if err != nil {
			return fmt.Errorf("compress quality: %w", err)
		}
		if n < 1 || n > 100 {
			return fmt.Errorf("%w: compress quality %d outside 1-100", ErrInvalidDirective, n)
		}
		quality = n
	}
	r.quality = quality
	r.compressed = true
	return nil
}

// applyFormat selects the encode target. Unknown formats leave the source
// format in place.
func applyFormat(ctx context.Context, _ *Pipeline, r *run) error {
	format, ok := codec.ParseOutputFormat(r.directives.Format)
	if !ok {
		trace.SpanFromContext(ctx).SetAttributes(attribute.String("pipeline.ignored_format", r.directives.Format))
		return nil
	}
	r.format = format
	return nil
}

func applyWatermarkText(_ context.Context, _ *Pipeline, r *run) error {
	overlay, err := codec.RenderText(r.directives.WatermarkText)
	if err != nil {
		return err
	}
	return r.img.Composite(overlay, codec.GravitySouthEast)
}

func applyWatermarkLogo(ctx context.Context, p *Pipeline, r *run) error {
	if p.logos == nil {
		return fmt.Errorf("%w: logo watermarks are not configured", ErrInvalidDirective)
	}
	logo, err := p.logos.ReadLogo(ctx, r.directives.WatermarkLogoPath)
	if err != nil {
		return fmt.Errorf("load logo: %w", err)
	}
	return r.img.Composite(logo, codec.GravitySouthEast)
}
