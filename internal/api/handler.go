package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/metrics"
	"github.com/felipepmaragno/genai-bridge/internal/provider"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
	"github.com/felipepmaragno/genai-bridge/internal/translator"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultMaxBodyBytes    = 64 << 20
	defaultUpstreamTimeout = 120 * time.Second
	defaultHealthTimeout   = 5 * time.Second

	// multipartMemory is how much of a multipart body is held in memory
	// before spilling to temporary files.
	multipartMemory = 8 << 20
)

type HandlerConfig struct {
	Registry        *registry.Registry
	Translator      *translator.Translator
	Provider        provider.Provider
	Files           *filestore.Store
	MaxBodyBytes    int64
	UpstreamTimeout time.Duration
	HealthCheckers  []HealthChecker
	Version         string
}

type Handler struct {
	registry        *registry.Registry
	translator      *translator.Translator
	provider        provider.Provider
	files           *filestore.Store
	maxBodyBytes    int64
	upstreamTimeout time.Duration
	checkers        []HealthChecker
	version         string
	started         time.Time
	mux             *http.ServeMux
	logger          *slog.Logger
}

func NewHandler(cfg HandlerConfig) *Handler {
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = defaultUpstreamTimeout
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	translatorImpl := cfg.Translator
	if translatorImpl == nil {
		translatorImpl = translator.New(cfg.Registry, cfg.Files)
	}

	h := &Handler{
		registry:        cfg.Registry,
		translator:      translatorImpl,
		provider:        cfg.Provider,
		files:           cfg.Files,
		maxBodyBytes:    maxBody,
		upstreamTimeout: timeout,
		checkers:        cfg.HealthCheckers,
		version:         version,
		started:         time.Now(),
		mux:             http.NewServeMux(),
		logger:          slog.Default().With("component", "api"),
	}

	h.mux.HandleFunc("POST /v1/chat/completions", h.handleChatCompletions)
	h.mux.HandleFunc("GET /v1/models", h.handleListModels)
	h.mux.HandleFunc("GET /v1/models/{id}", h.handleGetModel)

	h.mux.HandleFunc("POST /v1/files", h.handleUploadFile)
	h.mux.HandleFunc("GET /v1/files", h.handleListFiles)
	h.mux.HandleFunc("GET /v1/files/{id}", h.handleGetFile)
	h.mux.HandleFunc("DELETE /v1/files/{id}", h.handleDeleteFile)
	h.mux.HandleFunc("GET /files/{id}", h.handleDownloadFile)

	h.mux.HandleFunc("GET /health", h.handleHealth)
	h.mux.HandleFunc("GET /health/live", h.handleHealthLive)
	h.mux.HandleFunc("GET /health/ready", handleHealthReadyWithCheckers(h.checkers, defaultHealthTimeout, h.version))
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return h
}

type requestIDKey struct{}

// RequestIDFromContext returns the id assigned to the current request.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	metrics.IncrementActiveConnections()
	defer metrics.DecrementActiveConnections()

	requestID := r.Header.Get("X-Request-ID")
	if requestID == "" {
		requestID = uuid.New().String()
	}
	w.Header().Set("X-Request-ID", requestID)

	ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
	h.mux.ServeHTTP(w, r.WithContext(ctx))
}

// limitBody caps the request body at the configured size.
func (h *Handler) limitBody(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes)
}
