package bootstrap

import (
	"log/slog"
	"os"

	_ "github.com/eleven-am/spark-backend/docs"
	"github.com/eleven-am/spark-backend/internal/auth"
	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/decision"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/media"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/pairing"
	"github.com/eleven-am/spark-backend/internal/pool"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/safety"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
	"go.uber.org/fx"
)

type HandlerParams struct {
	fx.In

	PoolHandler     *pool.Handler
	PairingHandler  *pairing.Handler
	DecisionHandler *decision.Handler
	SafetyHandler   *safety.Handler
	JWTMiddleware   *auth.Middleware
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	api := e.Group("/v1")

	params.PoolHandler.RegisterRoutes(api.Group("/pools"))

	// a separate prefix keeps the public pool list outside the auth group
	pairingGroup := api.Group("/pools/:id")
	pairingGroup.Use(params.JWTMiddleware.Authenticate)
	params.PairingHandler.RegisterRoutes(pairingGroup)

	callsGroup := api.Group("/calls")
	callsGroup.Use(params.JWTMiddleware.Authenticate)
	params.DecisionHandler.RegisterRoutes(callsGroup)

	connectionsGroup := api.Group("/connections")
	connectionsGroup.Use(params.JWTMiddleware.Authenticate)
	params.DecisionHandler.RegisterConnectionRoutes(connectionsGroup)

	blocksGroup := api.Group("/blocks")
	blocksGroup.Use(params.JWTMiddleware.Authenticate)
	params.SafetyHandler.RegisterRoutes(blocksGroup)

	e.GET("/swagger/*", echoSwagger.EchoWrapHandler())
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func ProvideLogger(cfg *Config) *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}))
}

func ProvideJWTValidator(cfg *Config) *auth.JWTValidator {
	return auth.NewJWTValidator(cfg.HMACKey)
}

func ProvideJWTMiddleware(validator *auth.JWTValidator) *auth.Middleware {
	return auth.NewMiddleware(validator)
}

func ProvideClaimer(
	q *queue.Store,
	calls *call.Store,
	gate *pool.Gate,
	registry *safety.Store,
	tokens *media.TokenService,
	notifier notify.Notifier,
	publisher events.Publisher,
	cfg *Config,
	logger *slog.Logger,
) *pairing.Claimer {
	return pairing.NewClaimer(q, calls, gate, registry, pairing.AllowAll{}, tokens, notifier, publisher, pairing.Config{
		ScanWidth:      cfg.PairScanWidth,
		DurationBudget: cfg.CallDurationBudget,
	}, logger)
}

func ProvideAggregator(
	calls *call.Store,
	reports *safety.Store,
	tokens *media.TokenService,
	notifier notify.Notifier,
	publisher events.Publisher,
	logger *slog.Logger,
) *decision.Aggregator {
	return decision.NewAggregator(calls, reports, tokens, notifier, publisher, logger)
}

func ProvidePoolHandler(store *pool.Store, cfg *Config, clock shared.Clock, logger *slog.Logger) *pool.Handler {
	return pool.NewHandler(store, cfg.PoolGraceWindow, clock, logger)
}

func ProvidePairingHandler(claimer *pairing.Claimer, streamer *notify.Streamer, cfg *Config, logger *slog.Logger) *pairing.Handler {
	limits := pairing.DefaultRateLimiterConfig()
	limits.RequestsPerSecond = cfg.PairRatePerSecond
	limits.Burst = cfg.PairRateBurst
	return pairing.NewHandler(claimer, streamer, limits, logger)
}

func ProvideDecisionHandler(aggregator *decision.Aggregator, streamer *notify.Streamer, logger *slog.Logger) *decision.Handler {
	return decision.NewHandler(aggregator, streamer, logger)
}

func ProvideSafetyHandler(store *safety.Store, logger *slog.Logger) *safety.Handler {
	return safety.NewHandler(store, logger)
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideJWTValidator,
		ProvideJWTMiddleware,
		ProvideClaimer,
		ProvideAggregator,
		ProvidePoolHandler,
		ProvidePairingHandler,
		ProvideDecisionHandler,
		ProvideSafetyHandler,
	),
	fx.Invoke(RegisterRoutes),
)
