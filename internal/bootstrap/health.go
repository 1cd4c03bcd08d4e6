package bootstrap

import (
	"net/http"
	"strings"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/health"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

const version = "1.0.0"

func ProvideHealthHandler(
	cfg *Config,
	db *gorm.DB,
	redisClient *redis.Client,
	publisher events.Publisher,
	queueStore *queue.Store,
	callStore *call.Store,
	subscribers SubscriberCounter,
) *health.Handler {
	deps := health.Deps{
		DB:          db,
		Broker:      publisher,
		Waiting:     queueStore,
		Active:      callStore,
		Subscribers: subscribers,
		Version:     version,
	}
	if cfg.Notifier == "redis" {
		deps.Redis = redisClient
	}
	return health.NewHandler(deps)
}

// metricsMiddleware counts API traffic for the readiness stats. Probe
// requests are skipped so orchestrator polling does not drown the numbers.
func metricsMiddleware(h *health.Handler) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if strings.HasPrefix(c.Request().URL.Path, "/health") {
				return next(c)
			}

			h.IncrementRequests()
			h.IncrementConnections()
			defer h.DecrementConnections()

			err := next(c)
			if err != nil {
				c.Error(err)
			}
			if c.Response().Status >= http.StatusInternalServerError {
				h.IncrementFailures()
			}
			return nil
		}
	}
}

func RegisterHealthRoutes(e *echo.Echo, h *health.Handler) {
	e.Use(metricsMiddleware(h))
	h.RegisterRoutes(e)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
	fx.Invoke(RegisterHealthRoutes),
)
