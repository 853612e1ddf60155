package api

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// HealthChecker defines the interface for dependency health checks.
type HealthChecker interface {
	Check(ctx context.Context) error
	Name() string
}

// HealthStatus represents the result of a health check.
type HealthStatus struct {
	Status  string                 `json:"status"`
	Checks  map[string]CheckResult `json:"checks,omitempty"`
	Version string                 `json:"version,omitempty"`
	Models  int                    `json:"models,omitempty"`
}

// CheckResult represents the result of a single dependency check.
type CheckResult struct {
	Status   string `json:"status"`
	Duration string `json:"duration,omitempty"`
	Error    string `json:"error,omitempty"`
}

// RedisHealthChecker checks Redis connectivity.
type RedisHealthChecker struct {
	client *redis.Client
}

// NewRedisHealthCheckerWithClient creates a health checker with an existing client.
func NewRedisHealthCheckerWithClient(client *redis.Client) *RedisHealthChecker {
	return &RedisHealthChecker{client: client}
}

func (c *RedisHealthChecker) Name() string {
	return "redis"
}

func (c *RedisHealthChecker) Check(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// CheckFunc adapts a plain function to HealthChecker.
type CheckFunc struct {
	CheckName string
	Fn        func(ctx context.Context) error
}

func (c CheckFunc) Name() string                    { return c.CheckName }
func (c CheckFunc) Check(ctx context.Context) error { return c.Fn(ctx) }

// runHealthChecks executes all health checks concurrently.
func runHealthChecks(ctx context.Context, checkers []HealthChecker) map[string]CheckResult {
	results := make(map[string]CheckResult)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, checker := range checkers {
		wg.Add(1)
		go func(c HealthChecker) {
			defer wg.Done()

			start := time.Now()
			err := c.Check(ctx)
			duration := time.Since(start)

			result := CheckResult{
				Status:   "ok",
				Duration: duration.String(),
			}
			if err != nil {
				result.Status = "error"
				result.Error = err.Error()
			}

			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(checker)
	}

	wg.Wait()
	return results
}

func allHealthy(results map[string]CheckResult) bool {
	for _, result := range results {
		if result.Status != "ok" {
			return false
		}
	}
	return true
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), defaultHealthTimeout)
	defer cancel()

	results := runHealthChecks(ctx, h.checkers)

	status := HealthStatus{
		Status:  "healthy",
		Checks:  results,
		Version: h.version,
		Models:  len(h.registry.List()),
	}
	if !allHealthy(results) {
		status.Status = "degraded"
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *Handler) handleHealthLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleHealthReadyWithCheckers creates a ready handler with dependency checks.
func handleHealthReadyWithCheckers(checkers []HealthChecker, timeout time.Duration, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		results := runHealthChecks(ctx, checkers)

		status := HealthStatus{
			Status:  "ready",
			Checks:  results,
			Version: version,
		}

		httpStatus := http.StatusOK
		if !allHealthy(results) {
			status.Status = "not_ready"
			httpStatus = http.StatusServiceUnavailable
		}

		writeJSON(w, httpStatus, status)
	}
}
