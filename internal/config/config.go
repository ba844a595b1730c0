package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageDriverLocal = "local"
	StorageDriverMinio = "minio"
	StorageDriverS3    = "s3"
)

type Config struct {
	API       APIConfig
	Auth      AuthConfig
	Storage   StorageConfig
	Database  DatabaseConfig
	Pipeline  PipelineConfig
	RateLimit RateLimitConfig
	Webhook   WebhookConfig
	Tracing   TracingConfig
	Log       LogConfig
}

type APIConfig struct {
	Addr string
}

type AuthConfig struct {
	JWTSecret  string
	CookieName string
}

type StorageConfig struct {
	Driver    string
	Root      string
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string
	UseSSL    bool
}

// DatabaseConfig selects the record repository. An empty DSN keeps records in
// memory.
type DatabaseConfig struct {
	DSN string
}

type PipelineConfig struct {
	LogoDir        string
	MaxUploadBytes int64
	// MaxPixels bounds width*height of sources and resize or rotate output.
	MaxPixels int64
}

// RateLimitConfig is disabled when RedisAddr is empty.
type RateLimitConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Capacity      int
	Window        time.Duration
}

// WebhookConfig is disabled when URL is empty.
type WebhookConfig struct {
	URL           string
	SigningSecret string
	MaxAttempts   int
	Timeout       time.Duration
}

type TracingConfig struct {
	Exporter     string
	OTLPEndpoint string
	OTLPInsecure bool
}

type LogConfig struct {
	Level string
}

// LoadEnvFiles loads .env and then .env.<APP_ENV> into the process
// environment. Missing files are skipped.
func LoadEnvFiles() error {
	files := []string{".env"}
	if appEnv := strings.TrimSpace(os.Getenv("APP_ENV")); appEnv != "" {
		files = append(files, ".env."+appEnv)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Overload(f); err != nil {
			return fmt.Errorf("load %s: %w", f, err)
		}
	}
	return nil
}

func Load() (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := Config{
		API: APIConfig{
			Addr: v.GetString("PIXELVAULT_API_ADDR"),
		},
		Auth: AuthConfig{
			JWTSecret:  v.GetString("JWT_SECRET"),
			CookieName: v.GetString("AUTH_COOKIE_NAME"),
		},
		Storage: StorageConfig{
			Driver:    strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
			Root:      v.GetString("STORAGE_ROOT"),
			Endpoint:  v.GetString("STORAGE_ENDPOINT"),
			AccessKey: v.GetString("STORAGE_ACCESS_KEY"),
			SecretKey: v.GetString("STORAGE_SECRET_KEY"),
			Bucket:    v.GetString("STORAGE_BUCKET"),
			Region:    v.GetString("STORAGE_REGION"),
			Prefix:    v.GetString("STORAGE_PREFIX"),
			UseSSL:    v.GetBool("STORAGE_USE_SSL"),
		},
		Database: DatabaseConfig{
			DSN: v.GetString("POSTGRES_DSN"),
		},
		Pipeline: PipelineConfig{
			LogoDir:        v.GetString("PIPELINE_LOGO_DIR"),
			MaxUploadBytes: v.GetInt64("PIPELINE_MAX_UPLOAD_BYTES"),
			MaxPixels:      v.GetInt64("PIPELINE_MAX_PIXELS"),
		},
		RateLimit: RateLimitConfig{
			RedisAddr:     v.GetString("RATE_LIMIT_REDIS_ADDR"),
			RedisPassword: v.GetString("RATE_LIMIT_REDIS_PASSWORD"),
			RedisDB:       v.GetInt("RATE_LIMIT_REDIS_DB"),
			Capacity:      v.GetInt("RATE_LIMIT_CAPACITY"),
			Window:        v.GetDuration("RATE_LIMIT_WINDOW"),
		},
		Webhook: WebhookConfig{
			URL:           strings.TrimSpace(v.GetString("WEBHOOK_URL")),
			SigningSecret: v.GetString("WEBHOOK_SIGNING_SECRET"),
			MaxAttempts:   v.GetInt("WEBHOOK_MAX_ATTEMPTS"),
			Timeout:       v.GetDuration("WEBHOOK_TIMEOUT"),
		},
		Tracing: TracingConfig{
			Exporter:     v.GetString("TRACING_EXPORTER"),
			OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
			OTLPInsecure: v.GetBool("OTEL_EXPORTER_OTLP_INSECURE"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	// The S3 driver falls back to the AWS default chain, so only MinIO gets
	// development credentials.
	if cfg.Storage.Driver == StorageDriverMinio {
		cfg.Storage.Endpoint = fallback(cfg.Storage.Endpoint, "localhost:9000")
		cfg.Storage.AccessKey = fallback(cfg.Storage.AccessKey, "minioadmin")
		cfg.Storage.SecretKey = fallback(cfg.Storage.SecretKey, "minioadmin")
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fallback(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("PIXELVAULT_API_ADDR", ":8080")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("AUTH_COOKIE_NAME", "token")
	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_ROOT", "./uploads")
	v.SetDefault("STORAGE_ENDPOINT", "")
	v.SetDefault("STORAGE_ACCESS_KEY", "")
	v.SetDefault("STORAGE_SECRET_KEY", "")
	v.SetDefault("STORAGE_BUCKET", "pixelvault-images")
	v.SetDefault("STORAGE_REGION", "us-east-1")
	v.SetDefault("STORAGE_PREFIX", "uploads")
	v.SetDefault("STORAGE_USE_SSL", false)
	v.SetDefault("POSTGRES_DSN", "")
	v.SetDefault("PIPELINE_LOGO_DIR", "./logos")
	v.SetDefault("PIPELINE_MAX_UPLOAD_BYTES", 10*1024*1024)
	v.SetDefault("PIPELINE_MAX_PIXELS", 50_000_000)
	v.SetDefault("RATE_LIMIT_REDIS_ADDR", "")
	v.SetDefault("RATE_LIMIT_REDIS_PASSWORD", "")
	v.SetDefault("RATE_LIMIT_REDIS_DB", 0)
	v.SetDefault("RATE_LIMIT_CAPACITY", 30)
	v.SetDefault("RATE_LIMIT_WINDOW", time.Minute)
	v.SetDefault("WEBHOOK_URL", "")
	v.SetDefault("WEBHOOK_SIGNING_SECRET", "")
	v.SetDefault("WEBHOOK_MAX_ATTEMPTS", 3)
	v.SetDefault("WEBHOOK_TIMEOUT", 10*time.Second)
	v.SetDefault("TRACING_EXPORTER", "none")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("LOG_LEVEL", "info")
}

func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	switch c.Storage.Driver {
	case StorageDriverLocal:
		if strings.TrimSpace(c.Storage.Root) == "" {
			errs = append(errs, errors.New("STORAGE_ROOT is required for the local driver"))
		}
	case StorageDriverMinio, StorageDriverS3:
		if strings.TrimSpace(c.Storage.Bucket) == "" {
			errs = append(errs, fmt.Errorf("STORAGE_BUCKET is required for the %s driver", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver))
	}
	if c.Pipeline.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("PIPELINE_MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Pipeline.MaxPixels <= 0 {
		errs = append(errs, errors.New("PIPELINE_MAX_PIXELS must be positive"))
	}
	if c.RateLimit.RedisAddr != "" && (c.RateLimit.Capacity <= 0 || c.RateLimit.Window <= 0) {
		errs = append(errs, errors.New("RATE_LIMIT_CAPACITY and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.Webhook.URL != "" && strings.TrimSpace(c.Webhook.SigningSecret) == "" {
		errs = append(errs, errors.New("WEBHOOK_SIGNING_SECRET is required when WEBHOOK_URL is set"))
	}
	return errors.Join(errs...)
}
