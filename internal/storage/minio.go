package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

type MinioConfig struct {
	Endpoint string
	Access   string
	Secret   string
	Bucket   string
	Prefix   string
	UseSSL   bool
}

// Minio stores artifacts as objects in a MinIO (or any S3 compatible) bucket.
type Minio struct {
	minio  *minio.Client
	bucket string
	prefix string
}

func NewMinio(cfg MinioConfig) (*Minio, error) {
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("bucket is required")
	}

	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.Access, cfg.Secret, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &Minio{
		minio:  mc,
		bucket: cfg.Bucket,
		prefix: defaultPrefix(cfg.Prefix),
	}, nil
}

func (m *Minio) EnsureBucket(ctx context.Context) error {
	exists, err := m.minio.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket existence: %w", err)
	}
	if exists {
		return nil
	}

	if err := m.minio.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
		exists, checkErr := m.minio.BucketExists(ctx, m.bucket)
		if checkErr == nil && exists {
			return nil
		}
		return fmt.Errorf("create bucket %s: %w", m.bucket, err)
	}

	return nil
}

func (m *Minio) Save(ctx context.Context, data []byte, filename, contentType string) (Artifact, error) {
	filename = sanitizeFilename(filename)
	objectKey := path.Join(m.prefix, filename)

	opts := minio.PutObjectOptions{ContentType: contentType}
	opts.SetMatchETagExcept("*")
	_, err := m.minio.PutObject(
		ctx,
		m.bucket,
		objectKey,
		bytes.NewReader(data),
		int64(len(data)),
		opts,
	)
	if err != nil {
		return Artifact{}, m.objectError("put", objectKey, err)
	}

	info, err := m.minio.StatObject(ctx, m.bucket, objectKey, minio.StatObjectOptions{})
	if err != nil {
		return Artifact{}, fmt.Errorf("stat object %s: %w", objectKey, err)
	}

	return Artifact{Path: objectKey, Filename: filename, Size: info.Size}, nil
}

func (m *Minio) Load(ctx context.Context, objectKey string) ([]byte, error) {
	obj, err := m.minio.GetObject(ctx, m.bucket, objectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, m.objectError("get", objectKey, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, m.objectError("read", objectKey, err)
	}
	return data, nil
}

func (m *Minio) Delete(ctx context.Context, objectKey string) error {
	if err := m.minio.RemoveObject(ctx, m.bucket, objectKey, minio.RemoveObjectOptions{}); err != nil {
		if errors.Is(m.objectError("remove", objectKey, err), ErrArtifactNotFound) {
			return nil
		}
		return fmt.Errorf("remove object %s: %w", objectKey, err)
	}
	return nil
}

func (m *Minio) objectError(op, objectKey string, err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.Code == "NoSuchKey" || resp.Code == "NoSuchObject":
		return fmt.Errorf("%w: %s", ErrArtifactNotFound, objectKey)
	case resp.Code == "PreconditionFailed" || resp.StatusCode == http.StatusPreconditionFailed:
		return fmt.Errorf("%w: %s", ErrArtifactExists, objectKey)
	}
	return fmt.Errorf("%s object %s: %w", op, objectKey, err)
}

func defaultPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "uploads"
	}
	return prefix
}
