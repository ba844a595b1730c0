package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/api"
	"github.com/dunamismax/pixelvault/internal/codec"
	"github.com/dunamismax/pixelvault/internal/config"
	"github.com/dunamismax/pixelvault/internal/logger"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/ratelimit"
	"github.com/dunamismax/pixelvault/internal/service"
	"github.com/dunamismax/pixelvault/internal/storage"
	"github.com/dunamismax/pixelvault/internal/store"
	"github.com/dunamismax/pixelvault/internal/telemetry"
	"github.com/dunamismax/pixelvault/internal/webhook"
)

func main() {
	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintf(os.Stderr, "load env files: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("api exited", zap.Error(err))
	}
}

func run(cfg config.Config, log *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, telemetry.TraceConfig{
		ServiceName:  telemetry.DefaultServiceName,
		Exporter:     cfg.Tracing.Exporter,
		OTLPEndpoint: cfg.Tracing.OTLPEndpoint,
		OTLPInsecure: cfg.Tracing.OTLPInsecure,
	}, log)
	if err != nil {
		return fmt.Errorf("setup tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := codec.Startup(); err != nil {
		return fmt.Errorf("start image codec: %w", err)
	}
	defer codec.Shutdown()
	log.Info("image codec ready", zap.String("backend", codec.Backend()))

	artifacts, err := openArtifactStore(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	log.Info("artifact store ready", zap.String("driver", cfg.Storage.Driver))

	records, err := openImageStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		if err := records.Close(); err != nil {
			log.Warn("image store close failed", zap.Error(err))
		}
	}()

	registry := prometheus.NewRegistry()
	c := codec.New()

	var logos pipeline.LogoSource
	if dir, err := pipeline.NewLogoDir(cfg.Pipeline.LogoDir); err != nil {
		log.Warn("logo watermarks disabled", zap.Error(err))
	} else {
		logos = dir
	}
	transformer := pipeline.New(c, logos,
		pipeline.WithMetrics(pipeline.NewMetrics(registry)),
		pipeline.WithTracer(otel.Tracer("github.com/dunamismax/pixelvault/internal/pipeline")),
		pipeline.WithMaxPixels(cfg.Pipeline.MaxPixels),
	)
	var serviceOpts []service.Option
	var notifier *webhook.Notifier
	if cfg.Webhook.URL != "" {
		notifier = webhook.NewNotifier(webhook.NewClient(webhook.Config{
			SigningSecret: cfg.Webhook.SigningSecret,
			Timeout:       cfg.Webhook.Timeout,
			MaxAttempts:   cfg.Webhook.MaxAttempts,
		}), cfg.Webhook.URL, log)
		serviceOpts = append(serviceOpts, service.WithNotifier(notifier))
		log.Info("webhook notifications enabled", zap.String("url", cfg.Webhook.URL))
	}
	images := service.NewImages(records, artifacts, transformer, c, log, serviceOpts...)

	var limiter api.RateLimiter
	if cfg.RateLimit.RedisAddr != "" {
		client, err := ratelimit.Dial(ctx, cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, cfg.RateLimit.RedisDB)
		if err != nil {
			return fmt.Errorf("connect rate limit redis: %w", err)
		}
		defer func() { _ = client.Close() }()

		bucket, err := ratelimit.NewRedisTokenBucket(client, ratelimit.Config{
			Capacity: cfg.RateLimit.Capacity,
			Window:   cfg.RateLimit.Window,
		})
		if err != nil {
			return fmt.Errorf("create rate limiter: %w", err)
		}
		limiter = bucket
		log.Info("rate limiting enabled",
			zap.Int("capacity", cfg.RateLimit.Capacity),
			zap.Duration("window", cfg.RateLimit.Window))
	}

	app := api.NewServer(log, images, api.Options{
		JWTSecret:      cfg.Auth.JWTSecret,
		CookieName:     cfg.Auth.CookieName,
		MaxUploadBytes: cfg.Pipeline.MaxUploadBytes,
		Registry:       registry,
		Tracer:         otel.Tracer("github.com/dunamismax/pixelvault/internal/api"),
		RateLimiter:    limiter,
	})

	httpServer := &http.Server{
		Addr:         cfg.API.Addr,
		Handler:      app.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", cfg.API.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case sig := <-stop:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
	if notifier != nil {
		notifier.Wait()
	}
	return nil
}

func openArtifactStore(ctx context.Context, cfg config.StorageConfig) (storage.ArtifactStore, error) {
	switch cfg.Driver {
	case config.StorageDriverMinio:
		m, err := storage.NewMinio(storage.MinioConfig{
			Endpoint: cfg.Endpoint,
			Access:   cfg.AccessKey,
			Secret:   cfg.SecretKey,
			Bucket:   cfg.Bucket,
			Prefix:   cfg.Prefix,
			UseSSL:   cfg.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("create minio store: %w", err)
		}
		if err := m.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return m, nil
	case config.StorageDriverS3:
		s, err := storage.NewS3(ctx, storage.S3Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKey,
			SecretAccessKey: cfg.SecretKey,
			Prefix:          cfg.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("create s3 store: %w", err)
		}
		return s, nil
	default:
		l, err := storage.NewLocal(cfg.Root)
		if err != nil {
			return nil, fmt.Errorf("create local store: %w", err)
		}
		return l, nil
	}
}

func openImageStore(ctx context.Context, cfg config.DatabaseConfig) (store.ImageStore, error) {
	if cfg.DSN == "" {
		return store.NewMemoryImageStore(), nil
	}

	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	s, err := store.NewPostgresImageStore(connectCtx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres image store: %w", err)
	}
	return s, nil
}
