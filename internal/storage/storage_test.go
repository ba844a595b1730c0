package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalSaveLoadDelete(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(filepath.Join(t.TempDir(), "uploads"))
	require.NoError(t, err)

	data := []byte("not really a png but bytes are bytes")
	art, err := store.Save(ctx, data, "1700000000000-cat.png", "image/png")
	require.NoError(t, err)

	assert.Equal(t, "1700000000000-cat.png", art.Filename)
	assert.Equal(t, int64(len(data)), art.Size)
	assert.Equal(t, filepath.Join(store.Root(), art.Filename), art.Path)

	loaded, err := store.Load(ctx, art.Path)
	require.NoError(t, err)
	assert.Equal(t, data, loaded)

	require.NoError(t, store.Delete(ctx, art.Path))
	_, err = store.Load(ctx, art.Path)
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	require.NoError(t, store.Delete(ctx, art.Path), "deleting a missing artifact is not an error")
}

func TestLocalSaveRefusesOverwrite(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(ctx, []byte("one"), "same.png", "image/png")
	require.NoError(t, err)
	_, err = store.Save(ctx, []byte("two"), "same.png", "image/png")
	require.ErrorIs(t, err, ErrArtifactExists)

	loaded, err := store.Load(ctx, "same.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), loaded)
}

func TestLocalSaveSanitizesFilename(t *testing.T) {
	ctx := context.Background()
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	art, err := store.Save(ctx, []byte("x"), "../../etc/pass wd.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "pass_wd.png", art.Filename)
	assert.Equal(t, store.Root(), filepath.Dir(art.Path))
}

func TestLocalLoadRejectsPathsOutsideRoot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocal(filepath.Join(dir, "root"))
	require.NoError(t, err)

	outside := filepath.Join(dir, "secret.txt")
	if err := os.WriteFile(outside, []byte("secret"), 0o644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	_, err = store.Load(ctx, outside)
	assert.ErrorIs(t, err, ErrArtifactNotFound)
	_, err = store.Load(ctx, "../secret.txt")
	assert.ErrorIs(t, err, ErrArtifactNotFound)
}

func TestLocalHonoursCancelledContext(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = store.Save(ctx, []byte("x"), "a.png", "image/png")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLocalRequiresRoot(t *testing.T) {
	if _, err := NewLocal("  "); err == nil {
		t.Fatal("expected error for empty root")
	}
}

func TestFilenames(t *testing.T) {
	now := time.UnixMilli(1700000000123)

	assert.Equal(t, "1700000000123-holiday.jpg", UploadFilename(now, "holiday.jpg"))
	assert.Equal(t, "1700000000123-my_photo_1_.png", UploadFilename(now, "my photo(1).png"))
	assert.Equal(t, "1700000000123-image", UploadFilename(now, ""))
	assert.Equal(t, "1700000000123-b.png", UploadFilename(now, `C:\a\b.png`))

	assert.Equal(t,
		"transformed-1700000000123-1699999999999-holiday.jpg",
		DerivedFilename(now, "1699999999999-holiday.jpg"),
	)
}

func TestMinioObjectErrorMapsMissingKeys(t *testing.T) {
	m := &Minio{bucket: "images"}

	err := m.objectError("get", "uploads/a.png", minio.ErrorResponse{Code: "NoSuchKey"})
	assert.ErrorIs(t, err, ErrArtifactNotFound)

	boom := minio.ErrorResponse{Code: "AccessDenied", Message: "nope"}
	err = m.objectError("get", "uploads/a.png", boom)
	assert.False(t, errors.Is(err, ErrArtifactNotFound))
	assert.Contains(t, err.Error(), "get object uploads/a.png")
}

func TestMinioObjectErrorMapsFailedConditionalPut(t *testing.T) {
	m := &Minio{bucket: "images"}

	err := m.objectError("put", "uploads/a.png", minio.ErrorResponse{Code: "PreconditionFailed", StatusCode: 412})
	assert.ErrorIs(t, err, ErrArtifactExists)

	err = m.objectError("put", "uploads/a.png", minio.ErrorResponse{StatusCode: 412})
	assert.ErrorIs(t, err, ErrArtifactExists)
}

func TestS3NotFoundDetection(t *testing.T) {
	assert.True(t, isS3NotFound(&types.NoSuchKey{}))
	assert.True(t, isS3NotFound(&types.NotFound{}))
	assert.False(t, isS3NotFound(errors.New("connection reset")))
}

func TestS3ConflictDetection(t *testing.T) {
	assert.True(t, isS3Conflict(&smithy.GenericAPIError{Code: "PreconditionFailed"}))
	assert.True(t, isS3Conflict(&smithy.GenericAPIError{Code: "ConditionalRequestConflict"}))
	assert.False(t, isS3Conflict(&smithy.GenericAPIError{Code: "AccessDenied"}))
	assert.False(t, isS3Conflict(&types.NoSuchKey{}))
}

func TestDefaultPrefix(t *testing.T) {
	assert.Equal(t, "uploads", defaultPrefix(""))
	assert.Equal(t, "images/raw", defaultPrefix("/images/raw/"))
}
