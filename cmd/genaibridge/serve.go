package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felipepmaragno/genai-bridge/internal/api"
	"github.com/felipepmaragno/genai-bridge/internal/config"
	"github.com/felipepmaragno/genai-bridge/internal/filestore"
	"github.com/felipepmaragno/genai-bridge/internal/httputil"
	"github.com/felipepmaragno/genai-bridge/internal/provider/postech"
	"github.com/felipepmaragno/genai-bridge/internal/registry"
	"github.com/felipepmaragno/genai-bridge/internal/secrets"
	"github.com/felipepmaragno/genai-bridge/internal/telemetry"
	"github.com/felipepmaragno/genai-bridge/internal/translator"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the proxy server",
	Long: `Start the HTTP server. Configuration comes from the environment, an optional
.env file and the global flags, in increasing order of precedence.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	setupLogger(cfg.LogLevel)

	slog.Info("starting genai-bridge", "addr", cfg.Addr, "version", Version, "file_backend", cfg.FileBackend)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Init(ctx, "genai-bridge", Version, cfg.OTLPEndpoint)
	if err != nil {
		return fmt.Errorf("failed to init telemetry: %w", err)
	}

	apiKey, err := resolveAPIKey(ctx, cfg, nil)
	if err != nil {
		return err
	}
	if apiKey == "" {
		slog.Warn("no POSTECH API key configured, vendor calls will be rejected")
	}

	reg, err := buildRegistry(cfg)
	if err != nil {
		return err
	}
	slog.Info("model registry loaded", "models", len(reg.List()), "default", reg.DefaultAlias())

	backend, checkers, closeBackend, err := buildBackend(cfg)
	if err != nil {
		return err
	}
	defer closeBackend()

	store := filestore.New(backend, filestore.Options{
		PublicHost: cfg.ProxyHost,
		MaxBytes:   cfg.MaxFileBytes,
		Retention:  cfg.FileRetention,
	})

	pruner := filestore.NewPruner(store, cfg.FilePruneSchedule)
	if err := pruner.Start(ctx); err != nil {
		return fmt.Errorf("failed to start file pruner: %w", err)
	}
	defer pruner.Stop()

	client := httputil.NewClient(httputil.VendorConfig(cfg.UpstreamTimeout))
	vendor := postech.New(apiKey, cfg.PostechBaseURL, client)

	handler := api.NewHandler(api.HandlerConfig{
		Registry:        reg,
		Translator:      translator.New(reg, store),
		Provider:        vendor,
		Files:           store,
		MaxBodyBytes:    cfg.MaxBodyBytes,
		UpstreamTimeout: cfg.UpstreamTimeout,
		HealthCheckers:  checkers,
		Version:         Version,
	})

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       120 * time.Second,
		// Streams stay open as long as the vendor keeps sending; the
		// upstream deadline bounds them instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.Addr, "public_host", cfg.ProxyHost)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		slog.Warn("failed to flush traces", "error", err)
	}

	slog.Info("server stopped")
	return nil
}

// resolveAPIKey prefers an explicit key and otherwise reads it from Secrets
// Manager. store overrides the AWS client, for tests.
func resolveAPIKey(ctx context.Context, cfg *config.Config, store secrets.SecretStore) (string, error) {
	if cfg.PostechAPIKey != "" || cfg.PostechAPIKeySecret == "" {
		return cfg.PostechAPIKey, nil
	}

	if store == nil {
		sm, err := secrets.NewAWSSecretsManager(ctx, cfg.AWSRegion)
		if err != nil {
			return "", fmt.Errorf("failed to init secrets manager: %w", err)
		}
		store = sm
	}

	key, err := secrets.ResolveAPIKey(ctx, store, cfg.PostechAPIKeySecret)
	if err != nil {
		return "", fmt.Errorf("failed to resolve POSTECH API key: %w", err)
	}
	slog.Info("POSTECH API key loaded from secrets manager", "secret", cfg.PostechAPIKeySecret)
	return key, nil
}

func buildRegistry(cfg *config.Config) (*registry.Registry, error) {
	if cfg.ModelsFile != "" {
		reg, err := registry.LoadFile(cfg.ModelsFile, cfg.DefaultModel)
		if err != nil {
			return nil, err
		}
		return reg, nil
	}
	return registry.New(registry.DefaultModels(), cfg.DefaultModel)
}

// buildBackend returns the configured file backend, any health checks it
// contributes and a function releasing its resources.
func buildBackend(cfg *config.Config) (filestore.Backend, []api.HealthChecker, func(), error) {
	noop := func() {}

	switch cfg.FileBackend {
	case "disk":
		b, err := filestore.NewDiskBackend(cfg.TmpDir)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to open file directory: %w", err)
		}
		slog.Info("using disk file store", "dir", cfg.TmpDir)
		return b, nil, noop, nil

	case "redis":
		b, err := filestore.NewRedisBackend(cfg.RedisURL, cfg.FileRetention)
		if err != nil {
			return nil, nil, noop, fmt.Errorf("failed to connect to redis: %w", err)
		}
		slog.Info("using redis file store")
		checkers := []api.HealthChecker{api.NewRedisHealthCheckerWithClient(b.Client())}
		return b, checkers, func() {
			if err := b.Close(); err != nil {
				slog.Warn("failed to close redis", "error", err)
			}
		}, nil

	default:
		slog.Info("using in-memory file store")
		return filestore.NewMemoryBackend(), nil, noop, nil
	}
}

func setupLogger(level string) {
	var logLevel slog.Level
	switch level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	})
	slog.SetDefault(slog.New(handler))
}
