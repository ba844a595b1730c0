package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LogoDir serves watermark logos from a single directory. Requested paths are
// relative to it and may not climb out.
type LogoDir struct {
	root string
}

func NewLogoDir(root string) (*LogoDir, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("logo directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve logo directory: %w", err)
	}
	return &LogoDir{root: abs}, nil
}

func (d *LogoDir) ReadLogo(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path = strings.TrimSpace(path)
	if path == "" || filepath.IsAbs(path) {
		return nil, fmt.Errorf("%w: logo path %q must be relative", ErrInvalidDirective, path)
	}
	full := filepath.Join(d.root, path)
	rel, err := filepath.Rel(d.root, full)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("%w: logo path %q escapes the logo directory", ErrInvalidDirective, path)
	}

	data, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: logo %q does not exist", ErrInvalidDirective, path)
	}
	if err != nil {
		return nil, fmt.Errorf("read logo %q: %w", path, err)
	}
	return data, nil
}
