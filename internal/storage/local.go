package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Local keeps artifacts as files directly under a single root directory.
type Local struct {
	root string
}

func NewLocal(root string) (*Local, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("storage root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve storage root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &Local{root: abs}, nil
}

func (l *Local) Root() string {
	return l.root
}

func (l *Local) Save(ctx context.Context, data []byte, filename, _ string) (Artifact, error) {
	if err := ctx.Err(); err != nil {
		return Artifact{}, err
	}

	filename = sanitizeFilename(filename)
	fullPath := filepath.Join(l.root, filename)

	f, err := os.OpenFile(fullPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, os.ErrExist) {
		return Artifact{}, fmt.Errorf("%w: %s", ErrArtifactExists, filename)
	}
	if err != nil {
		return Artifact{}, fmt.Errorf("create artifact %s: %w", filename, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(fullPath)
		return Artifact{}, fmt.Errorf("write artifact %s: %w", filename, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(fullPath)
		return Artifact{}, fmt.Errorf("close artifact %s: %w", filename, err)
	}

	info, err := os.Stat(fullPath)
	if err != nil {
		return Artifact{}, fmt.Errorf("stat artifact %s: %w", filename, err)
	}

	return Artifact{Path: fullPath, Filename: filename, Size: info.Size()}, nil
}

func (l *Local) Load(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	fullPath, err := l.resolve(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(fullPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrArtifactNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read artifact %s: %w", path, err)
	}
	return data, nil
}

func (l *Local) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fullPath, err := l.resolve(path)
	if err != nil {
		return err
	}
	if err := os.Remove(fullPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact %s: %w", path, err)
	}
	return nil
}

// resolve maps a stored path back onto the root and refuses anything that
// would escape it.
func (l *Local) resolve(path string) (string, error) {
	if !filepath.IsAbs(path) {
		path = filepath.Join(l.root, path)
	}
	path = filepath.Clean(path)

	rel, err := filepath.Rel(l.root, path)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s is outside the storage root", ErrArtifactNotFound, path)
	}
	return path, nil
}
