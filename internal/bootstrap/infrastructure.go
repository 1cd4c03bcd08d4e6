package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/media"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/shared"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func ProvideClock() shared.Clock {
	return func() time.Time { return time.Now().UTC() }
}

func ProvideRedisClient(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
}

func ProvideDatabase(cfg *Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DatabaseDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseDSN)
	case "mysql":
		dialector = mysql.Open(cfg.DatabaseDSN)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DatabaseDriver)
	}
	return gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
}

// NotifierResult exposes the chosen implementation both as the Notifier
// interface and as a subscriber counter for health stats.
type NotifierResult struct {
	fx.Out

	Notifier notify.Notifier
	Counter  SubscriberCounter
}

type SubscriberCounter interface {
	SubscriberCount() int
}

func ProvideNotifier(cfg *Config, client *redis.Client, logger *slog.Logger) (NotifierResult, error) {
	switch cfg.Notifier {
	case "redis":
		n := notify.NewRedisNotifier(client, logger)
		return NotifierResult{Notifier: n, Counter: n}, nil
	case "local":
		h := notify.NewHub()
		return NotifierResult{Notifier: h, Counter: h}, nil
	default:
		return NotifierResult{}, fmt.Errorf("unsupported notifier %q", cfg.Notifier)
	}
}

func ProvideEventPublisher(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) events.Publisher {
	if cfg.AMQPURL == "" {
		logger.Info("AMQP_URL not set, domain events disabled")
		return events.Noop{}
	}
	p := events.NewAMQPPublisher(cfg.AMQPURL, logger)
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := p.Connect(ctx); err != nil {
				logger.Warn("event broker unavailable, retrying in background", "error", err)
			}
			p.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
	return p
}

func ProvideTokenService(cfg *Config) *media.TokenService {
	return media.NewTokenService(cfg.LiveKitAPIKey, cfg.LiveKitAPISecret, cfg.LiveKitURL, cfg.JoinTokenTTL)
}

func ProvideStreamer(notifier notify.Notifier, cfg *Config, logger *slog.Logger) *notify.Streamer {
	return notify.NewStreamer(notifier, logger, cfg.StreamKeepAlive)
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideClock,
		ProvideRedisClient,
		ProvideDatabase,
		ProvideNotifier,
		ProvideEventPublisher,
		ProvideTokenService,
		ProvideStreamer,
	),
)
