package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/id"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/store"
)

var ErrOwnerRequired = errors.New("owner is required")

// saveAttempts bounds how many millisecond stamps are tried when artifact
// filenames collide.
const saveAttempts = 32

type Transformer interface {
	Transform(ctx context.Context, source []byte, d pipeline.Directives) (pipeline.Result, error)
}

// Notifier is told about every record the service creates.
type Notifier interface {
	Notify(ctx context.Context, event string, rec domain.ImageRecord)
}

// Images coordinates artifacts, records and the transformation pipeline.
type Images struct {
	records   store.ImageStore
	artifacts storage.ArtifactStore
	pipeline  Transformer
	codec     codec.Codec
	notifier  Notifier
	log       *zap.Logger
	now       func() time.Time
}

type Option func(*Images)

func WithNotifier(n Notifier) Option {
	return func(s *Images) {
		s.notifier = n
	}
}

func NewImages(records store.ImageStore, artifacts storage.ArtifactStore, transformer Transformer, c codec.Codec, log *zap.Logger, opts ...Option) *Images {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Images{
		records:   records,
		artifacts: artifacts,
		pipeline:  transformer,
		codec:     c,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Upload stores a client supplied image and creates its record. Dimensions
// and mime type come from the bytes, not from what the client claimed.
func (s *Images) Upload(ctx context.Context, owner string, file domain.UploadedFile) (domain.ImageRecord, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.ImageRecord{}, ErrOwnerRequired
	}
	if err := file.Validate(); err != nil {
		return domain.ImageRecord{}, err
	}

	meta, err := s.codec.Metadata(file.Data)
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("read upload metadata: %w", err)
	}

	now := s.now()
	mimeType := meta.Format.MimeType()
	art, err := s.save(ctx, file.Data, now, mimeType, func(at time.Time) string {
		return storage.UploadFilename(at, file.OriginalName)
	})
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("store upload: %w", err)
	}

	rec, err := s.create(ctx, art, domain.ImageRecord{
		ID:           id.New(),
		Owner:        owner,
		Filename:     art.Filename,
		OriginalName: file.OriginalName,
		MimeType:     mimeType,
		Size:         art.Size,
		Width:        meta.Width,
		Height:       meta.Height,
		Path:         art.Path,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		return domain.ImageRecord{}, err
	}

	s.log.Info("image uploaded",
		zap.String("id", rec.ID),
		zap.String("owner", owner),
		zap.String("filename", rec.Filename),
		zap.Int64("size", rec.Size),
		zap.Int("width", rec.Width),
		zap.Int("height", rec.Height))
	s.notify(ctx, domain.EventImageUploaded, rec)
	return rec, nil
}

func (s *Images) List(ctx context.Context, owner string) ([]domain.ImageRecord, error) {
	if strings.TrimSpace(owner) == "" {
		return nil, ErrOwnerRequired
	}
	return s.records.ListByOwner(ctx, owner)
}

func (s *Images) Get(ctx context.Context, owner, imageID string) (domain.ImageRecord, error) {
	if strings.TrimSpace(owner) == "" {
		return domain.ImageRecord{}, ErrOwnerRequired
	}
	if !id.Valid(imageID) {
		return domain.ImageRecord{}, store.ErrImageNotFound
	}
	return s.records.FindByIDAndOwner(ctx, imageID, owner)
}

// Derivatives lists the records transformed directly from imageID.
func (s *Images) Derivatives(ctx context.Context, owner, imageID string) ([]domain.ImageRecord, error) {
	if _, err := s.Get(ctx, owner, imageID); err != nil {
		return nil, err
	}
	return s.records.ListDerivatives(ctx, imageID, owner)
}

// Transform runs d against the image imageID owned by owner and stores the
// result as a new record derived from it. The source record and artifact are
// left untouched; on failure nothing is persisted.
func (s *Images) Transform(ctx context.Context, owner, imageID string, d pipeline.Directives) (domain.ImageRecord, error) {
	src, err := s.Get(ctx, owner, imageID)
	if err != nil {
		return domain.ImageRecord{}, err
	}

	data, err := s.artifacts.Load(ctx, src.Path)
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("load source artifact: %w", err)
	}

	start := time.Now()
	res, err := s.pipeline.Transform(ctx, data, d)
	if err != nil {
		s.log.Warn("transform failed",
			zap.String("source_id", src.ID),
			zap.String("owner", owner),
			zap.Error(err))
		return domain.ImageRecord{}, err
	}

	now := s.now()
	mimeType := res.Meta.Format.MimeType()
	art, err := s.save(ctx, res.Data, now, mimeType, func(at time.Time) string {
		return storage.DerivedFilename(at, src.Filename)
	})
	if err != nil {
		return domain.ImageRecord{}, fmt.Errorf("store derived image: %w", err)
	}

	rec, err := s.create(ctx, art, domain.ImageRecord{
		ID:            id.New(),
		Owner:         owner,
		Filename:      art.Filename,
		MimeType:      mimeType,
		Size:          art.Size,
		Width:         res.Meta.Width,
		Height:        res.Meta.Height,
		Path:          art.Path,
		OriginalImage: src.ID,
		CreatedAt:     now,
		UpdatedAt:     now,
	})
	if err != nil {
		return domain.ImageRecord{}, err
	}

	s.log.Info("image transformed",
		zap.String("id", rec.ID),
		zap.String("source_id", src.ID),
		zap.String("owner", owner),
		zap.String("format", string(res.Meta.Format)),
		zap.Int("width", rec.Width),
		zap.Int("height", rec.Height),
		zap.Duration("elapsed", time.Since(start)))
	s.notify(ctx, domain.EventImageTransformed, rec)
	return rec, nil
}

// save stores data under name(now). A taken name moves the stamp forward one
// millisecond and tries again.
func (s *Images) save(ctx context.Context, data []byte, now time.Time, contentType string, name func(time.Time) string) (storage.Artifact, error) {
	at := now
	for attempt := 1; ; attempt++ {
		art, err := s.artifacts.Save(ctx, data, name(at), contentType)
		if !errors.Is(err, storage.ErrArtifactExists) || attempt == saveAttempts {
			return art, err
		}
		s.log.Debug("artifact name taken",
			zap.String("filename", name(at)),
			zap.Int("attempt", attempt))
		at = at.Add(time.Millisecond)
	}
}

func (s *Images) notify(ctx context.Context, event string, rec domain.ImageRecord) {
	if s.notifier != nil {
		s.notifier.Notify(ctx, event, rec)
	}
}

// create persists rec and removes art again if the record cannot be written,
// so a failed request leaves no orphaned artifact behind.
func (s *Images) create(ctx context.Context, art storage.Artifact, rec domain.ImageRecord) (domain.ImageRecord, error) {
	created, err := s.records.Create(ctx, rec)
	if err == nil {
		return created, nil
	}

	if delErr := s.artifacts.Delete(context.WithoutCancel(ctx), art.Path); delErr != nil {
		s.log.Error("remove orphaned artifact failed",
			zap.String("path", art.Path),
			zap.Error(delErr))
	}
	return domain.ImageRecord{}, fmt.Errorf("create image record: %w", err)
}
