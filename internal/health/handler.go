package health

import (
	"context"
	"database/sql"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

type ComponentStatus struct {
	Status    Status `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type RuntimeStats struct {
	Goroutines         int    `json:"goroutines"`
	MemoryAllocMB      uint64 `json:"memory_alloc_mb"`
	MemoryTotalAllocMB uint64 `json:"memory_total_alloc_mb"`
	MemorySysMB        uint64 `json:"memory_sys_mb"`
	NumGC              uint32 `json:"num_gc"`
}

type PairingStats struct {
	WaitingEntries int64 `json:"waiting_entries"`
	ActiveCalls    int64 `json:"active_calls"`
	Subscribers    int   `json:"subscribers"`
}

type RequestStats struct {
	TotalRequests     uint64 `json:"total_requests"`
	FailedRequests    uint64 `json:"failed_requests"`
	ActiveConnections int64  `json:"active_connections"`
}

type Stats struct {
	Pairing  PairingStats `json:"pairing"`
	Requests RequestStats `json:"requests"`
	Runtime  RuntimeStats `json:"runtime"`
}

type HealthResponse struct {
	Status        Status                     `json:"status"`
	Timestamp     time.Time                  `json:"timestamp"`
	Version       string                     `json:"version"`
	UptimeSeconds int64                      `json:"uptime_seconds"`
	Stats         Stats                      `json:"stats"`
	Components    map[string]ComponentStatus `json:"components"`
}

type WaitingCounter interface {
	CountWaiting(ctx context.Context, poolID string) (int64, error)
}

type ActiveCounter interface {
	CountActive(ctx context.Context) (int64, error)
}

type SubscriberCounter interface {
	SubscriberCount() int
}

// Pinger is implemented by the event broker publisher. Publishers without
// a broker (the noop one) are reported as disabled.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Deps struct {
	DB          *gorm.DB
	Redis       *redis.Client
	Broker      any
	Waiting     WaitingCounter
	Active      ActiveCounter
	Subscribers SubscriberCounter
	Version     string
}

type Handler struct {
	deps      Deps
	startTime time.Time

	totalRequests     uint64
	failedRequests    uint64
	activeConnections int64
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		deps:      deps,
		startTime: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Liveness)
	e.GET("/health/ready", h.Readiness)
}

func (h *Handler) IncrementRequests() {
	atomic.AddUint64(&h.totalRequests, 1)
}

// IncrementFailures counts a request answered with a 5xx status.
func (h *Handler) IncrementFailures() {
	atomic.AddUint64(&h.failedRequests, 1)
}

func (h *Handler) IncrementConnections() {
	atomic.AddInt64(&h.activeConnections, 1)
}

func (h *Handler) DecrementConnections() {
	atomic.AddInt64(&h.activeConnections, -1)
}

// Liveness godoc
// @Summary Liveness probe
// @Tags health
// @Produce json
// @Success 200 {object} map[string]string
// @Router /health [get]
func (h *Handler) Liveness(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Readiness godoc
// @Summary Readiness probe with component checks and stats
// @Tags health
// @Produce json
// @Success 200 {object} HealthResponse
// @Failure 503 {object} HealthResponse
// @Router /health/ready [get]
func (h *Handler) Readiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
	defer cancel()

	components := make(map[string]ComponentStatus)
	var mu sync.Mutex
	var wg sync.WaitGroup

	checks := []struct {
		name  string
		check func(context.Context) ComponentStatus
	}{
		{"database", h.checkDatabase},
		{"redis", h.checkRedis},
		{"broker", h.checkBroker},
	}

	wg.Add(len(checks))
	for _, check := range checks {
		go func(name string, fn func(context.Context) ComponentStatus) {
			defer wg.Done()
			status := fn(ctx)
			mu.Lock()
			components[name] = status
			mu.Unlock()
		}(check.name, check.check)
	}
	wg.Wait()

	overallStatus := computeOverallStatus(components)

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	resp := HealthResponse{
		Status:        overallStatus,
		Timestamp:     time.Now().UTC(),
		Version:       h.deps.Version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats: Stats{
			Pairing: h.pairingStats(ctx),
			Requests: RequestStats{
				TotalRequests:     atomic.LoadUint64(&h.totalRequests),
				FailedRequests:    atomic.LoadUint64(&h.failedRequests),
				ActiveConnections: atomic.LoadInt64(&h.activeConnections),
			},
			Runtime: RuntimeStats{
				Goroutines:         runtime.NumGoroutine(),
				MemoryAllocMB:      memStats.Alloc / 1024 / 1024,
				MemoryTotalAllocMB: memStats.TotalAlloc / 1024 / 1024,
				MemorySysMB:        memStats.Sys / 1024 / 1024,
				NumGC:              memStats.NumGC,
			},
		},
		Components: components,
	}

	statusCode := http.StatusOK
	if overallStatus == StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	return c.JSON(statusCode, resp)
}

func (h *Handler) pairingStats(ctx context.Context) PairingStats {
	var stats PairingStats
	if h.deps.Waiting != nil {
		stats.WaitingEntries, _ = h.deps.Waiting.CountWaiting(ctx, "")
	}
	if h.deps.Active != nil {
		stats.ActiveCalls, _ = h.deps.Active.CountActive(ctx)
	}
	if h.deps.Subscribers != nil {
		stats.Subscribers = h.deps.Subscribers.SubscriberCount()
	}
	return stats
}

func (h *Handler) checkDatabase(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.DB == nil {
		return unhealthy(start, "database not configured")
	}

	sqlDB, err := h.deps.DB.DB()
	if err != nil {
		return unhealthy(start, "failed to get underlying db")
	}

	if err := sqlDB.PingContext(ctx); err != nil {
		return unhealthy(start, "ping failed")
	}

	return ComponentStatus{
		Status:    evaluateDBStats(sqlDB.Stats()),
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func evaluateDBStats(stats sql.DBStats) Status {
	if stats.OpenConnections >= stats.MaxOpenConnections && stats.MaxOpenConnections > 0 {
		return StatusDegraded
	}
	return StatusHealthy
}

func (h *Handler) checkRedis(ctx context.Context) ComponentStatus {
	start := time.Now()
	if h.deps.Redis == nil {
		// the in-process notifier runs without redis
		return ComponentStatus{Status: StatusHealthy, Error: "disabled"}
	}

	if err := h.deps.Redis.Ping(ctx).Err(); err != nil {
		return unhealthy(start, "ping failed")
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func (h *Handler) checkBroker(ctx context.Context) ComponentStatus {
	start := time.Now()
	pinger, ok := h.deps.Broker.(Pinger)
	if !ok {
		return ComponentStatus{Status: StatusHealthy, Error: "disabled"}
	}

	if err := pinger.Ping(ctx); err != nil {
		// events are best-effort; losing the broker does not stop pairing
		return ComponentStatus{
			Status:    StatusDegraded,
			LatencyMs: time.Since(start).Milliseconds(),
			Error:     "broker unreachable",
		}
	}

	return ComponentStatus{
		Status:    StatusHealthy,
		LatencyMs: time.Since(start).Milliseconds(),
	}
}

func unhealthy(start time.Time, msg string) ComponentStatus {
	return ComponentStatus{
		Status:    StatusUnhealthy,
		LatencyMs: time.Since(start).Milliseconds(),
		Error:     msg,
	}
}

func computeOverallStatus(components map[string]ComponentStatus) Status {
	overall := StatusHealthy
	for _, c := range components {
		switch c.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			overall = StatusDegraded
		}
	}
	return overall
}
