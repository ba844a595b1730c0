package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/dunamismax/pixelvault/internal/domain"
	"github.com/dunamismax/pixelvault/internal/pipeline"
	"github.com/dunamismax/pixelvault/internal/store"
)

const defaultMaxUploadBytes = 10 << 20

type imageService interface {
	Upload(ctx context.Context, owner string, file domain.UploadedFile) (domain.ImageRecord, error)
	List(ctx context.Context, owner string) ([]domain.ImageRecord, error)
	Get(ctx context.Context, owner, imageID string) (domain.ImageRecord, error)
	Derivatives(ctx context.Context, owner, imageID string) ([]domain.ImageRecord, error)
	Transform(ctx context.Context, owner, imageID string, d pipeline.Directives) (domain.ImageRecord, error)
}

type Options struct {
	JWTSecret      string
	CookieName     string
	MaxUploadBytes int64
	// Registry receives the HTTP metrics and is served on /metrics. A fresh
	// registry is created when nil.
	Registry    *prometheus.Registry
	Tracer      trace.Tracer
	RateLimiter RateLimiter
}

type Server struct {
	logger         *zap.Logger
	images         imageService
	metrics        *metrics
	tracer         trace.Tracer
	rateLimiter    RateLimiter
	maxUploadBytes int64
	engine         *gin.Engine
}

func NewServer(logger *zap.Logger, images imageService, opts Options) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUploadBytes
	}
	if opts.Registry == nil {
		opts.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		logger:         logger,
		images:         images,
		metrics:        newMetrics(opts.Registry),
		tracer:         opts.Tracer,
		rateLimiter:    opts.RateLimiter,
		maxUploadBytes: opts.MaxUploadBytes,
	}
	s.engine = s.routes([]byte(opts.JWTSecret), opts.CookieName)
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withTracing(s.metrics.withHTTPMetrics(s.engine))
}

func (s *Server) routes(secret []byte, cookieName string) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), s.requestLogger())

	r.GET("/healthz", s.handleHealthz)
	r.GET("/metrics", gin.WrapH(s.metrics.metricsHandler()))

	images := r.Group("/api/v1/images", authMiddleware(secret, cookieName))
	images.POST("/upload", s.withRateLimit(), s.handleUpload)
	images.GET("", s.handleList)
	images.GET("/:id", s.handleGet)
	images.GET("/:id/derivatives", s.handleDerivatives)
	images.POST("/:id/transform", s.withRateLimit(), s.handleTransform)
	return r
}

func (s *Server) handleHealthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) handleUpload(c *gin.Context) {
	// Multipart framing adds a little on top of the file itself.
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUploadBytes+(1<<20))

	header, err := c.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": "No file uploaded"})
		return
	}
	if header.Size > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
		return
	}

	f, err := header.Open()
	if err != nil {
		s.logger.Error("open uploaded file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed"})
		return
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		s.logger.Error("read uploaded file failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Upload failed"})
		return
	}
	if int64(len(data)) > s.maxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"message": "File too large"})
		return
	}

	s.metrics.uploadBytes.Observe(float64(len(data)))
	rec, err := s.images.Upload(c.Request.Context(), ownerFrom(c), domain.UploadedFile{
		OriginalName: header.Filename,
		MimeType:     header.Header.Get("Content-Type"),
		Data:         data,
	})
	if err != nil {
		s.writeError(c, err, "Upload failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Uploaded successfully", "image": rec})
}

func (s *Server) handleList(c *gin.Context) {
	images, err := s.images.List(c.Request.Context(), ownerFrom(c))
	if err != nil {
		s.writeError(c, err, "Server error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(images),
		"images":  images,
	})
}

func (s *Server) handleGet(c *gin.Context) {
	rec, err := s.images.Get(c.Request.Context(), ownerFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"image": rec})
}

func (s *Server) handleDerivatives(c *gin.Context) {
	images, err := s.images.Derivatives(c.Request.Context(), ownerFrom(c), c.Param("id"))
	if err != nil {
		s.writeError(c, err, "Server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": len(images), "images": images})
}

type transformRequest struct {
	Transformations *pipeline.Directives `json:"transformations"`
}

func (s *Server) handleTransform(c *gin.Context) {
	var req transformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "error": err.Error()})
		return
	}
	if req.Transformations == nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body", "error": "transformations are required"})
		return
	}

	rec, err := s.images.Transform(c.Request.Context(), ownerFrom(c), c.Param("id"), *req.Transformations)
	if err != nil {
		s.writeError(c, err, "Transformation failed")
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "Image transformed successfully", "image": rec})
}

// writeError maps service errors onto status codes. Only the message of a
// pipeline failure is exposed; anything else is logged and hidden.
func (s *Server) writeError(c *gin.Context, err error, fallback string) {
	var (
		validationErr *domain.ValidationError
		transformErr  *pipeline.TransformError
	)
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, gin.H{"message": validationErr.Message})
	case errors.Is(err, store.ErrImageNotFound):
		c.JSON(http.StatusNotFound, gin.H{"message": "Image not found"})
	case errors.As(err, &transformErr):
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Transformation failed", "error": transformErr.Error()})
	default:
		s.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("route", c.FullPath()),
			zap.String("owner", ownerFrom(c)),
			zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"message": fallback})
	}
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("owner", ownerFrom(c)))
	}
}
