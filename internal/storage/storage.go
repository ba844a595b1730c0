// Package storage persists image artifacts. Backends hand out an opaque Path
// that is later used to load the same bytes back.
package storage

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

var (
	ErrArtifactNotFound = errors.New("artifact not found")
	// ErrArtifactExists is returned by Save when filename is already taken.
	// Backends never overwrite.
	ErrArtifactExists = errors.New("artifact already exists")
)

type Artifact struct {
	// Path is the backend locator: a filesystem path for Local, an object key
	// for Minio and S3.
	Path     string
	Filename string
	// Size is read back from the persisted artifact.
	Size int64
}

type ArtifactStore interface {
	Save(ctx context.Context, data []byte, filename, contentType string) (Artifact, error)
	Load(ctx context.Context, path string) ([]byte, error)
	// Delete removes an artifact. Removing a missing artifact is not an error.
	Delete(ctx context.Context, path string) error
}

// UploadFilename names a freshly uploaded artifact.
func UploadFilename(now time.Time, originalName string) string {
	return fmt.Sprintf("%d-%s", now.UnixMilli(), sanitizeFilename(originalName))
}

// DerivedFilename names the artifact produced by transforming the artifact
// stored as sourceFilename. The source name is kept even when the format
// changes; the record's mime type is authoritative.
func DerivedFilename(now time.Time, sourceFilename string) string {
	return fmt.Sprintf("transformed-%d-%s", now.UnixMilli(), sanitizeFilename(sourceFilename))
}

func sanitizeFilename(in string) string {
	in = filepath.Base(strings.ReplaceAll(strings.TrimSpace(in), "\\", "/"))
	if in == "" || in == "." || in == "/" || in == ".." {
		return "image"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
