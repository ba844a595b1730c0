package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.API.Addr)
	assert.Equal(t, "token", cfg.Auth.CookieName)
	assert.Equal(t, StorageDriverLocal, cfg.Storage.Driver)
	assert.Equal(t, "./uploads", cfg.Storage.Root)
	assert.Empty(t, cfg.Database.DSN)
	assert.Equal(t, int64(10*1024*1024), cfg.Pipeline.MaxUploadBytes)
	assert.Equal(t, int64(50_000_000), cfg.Pipeline.MaxPixels)
	assert.Equal(t, 30, cfg.RateLimit.Capacity)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "none", cfg.Tracing.Exporter)
	assert.Empty(t, cfg.Webhook.URL)
	assert.Equal(t, 3, cfg.Webhook.MaxAttempts)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("PIXELVAULT_API_ADDR", ":9090")
	t.Setenv("STORAGE_DRIVER", "MinIO")
	t.Setenv("STORAGE_BUCKET", "photos")
	t.Setenv("STORAGE_USE_SSL", "true")
	t.Setenv("POSTGRES_DSN", "postgres://localhost/pixelvault")
	t.Setenv("RATE_LIMIT_REDIS_ADDR", "localhost:6379")
	t.Setenv("RATE_LIMIT_WINDOW", "30s")
	t.Setenv("PIPELINE_MAX_PIXELS", "16000000")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.API.Addr)
	assert.Equal(t, StorageDriverMinio, cfg.Storage.Driver)
	assert.Equal(t, "photos", cfg.Storage.Bucket)
	assert.True(t, cfg.Storage.UseSSL)
	assert.Equal(t, "localhost:9000", cfg.Storage.Endpoint)
	assert.Equal(t, "minioadmin", cfg.Storage.AccessKey)
	assert.Equal(t, "postgres://localhost/pixelvault", cfg.Database.DSN)
	assert.Equal(t, "localhost:6379", cfg.RateLimit.RedisAddr)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, int64(16_000_000), cfg.Pipeline.MaxPixels)
}

func TestLoadS3KeepsDefaultCredentialChain(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("STORAGE_DRIVER", "s3")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StorageDriverS3, cfg.Storage.Driver)
	assert.Empty(t, cfg.Storage.Endpoint)
	assert.Empty(t, cfg.Storage.AccessKey)
	assert.Equal(t, "us-east-1", cfg.Storage.Region)
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STORAGE_DRIVER", "ftp")
	t.Setenv("WEBHOOK_URL", "https://hooks.example.com/pixelvault")
	t.Setenv("WEBHOOK_SIGNING_SECRET", "")
	t.Setenv("PIPELINE_MAX_PIXELS", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET is required")
	assert.Contains(t, err.Error(), `unsupported STORAGE_DRIVER "ftp"`)
	assert.Contains(t, err.Error(), "WEBHOOK_SIGNING_SECRET is required")
	assert.Contains(t, err.Error(), "PIPELINE_MAX_PIXELS must be positive")
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("PIXELVAULT_TEST_VALUE=base\nPIXELVAULT_TEST_ONLY_BASE=yes\n"), 0o644); err != nil {
		t.Fatalf("write .env: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ".env.test"), []byte("PIXELVAULT_TEST_VALUE=override\n"), 0o644); err != nil {
		t.Fatalf("write .env.test: %v", err)
	}

	t.Chdir(dir)
	t.Setenv("APP_ENV", "test")
	t.Setenv("PIXELVAULT_TEST_VALUE", "")
	t.Setenv("PIXELVAULT_TEST_ONLY_BASE", "")

	require.NoError(t, LoadEnvFiles())
	assert.Equal(t, "override", os.Getenv("PIXELVAULT_TEST_VALUE"))
	assert.Equal(t, "yes", os.Getenv("PIXELVAULT_TEST_ONLY_BASE"))
}
