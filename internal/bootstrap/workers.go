package bootstrap

import (
	"context"
	"log/slog"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/reconcile"
	"github.com/eleven-am/spark-backend/internal/shared"
	"go.uber.org/fx"
)

func ProvideSweeper(
	calls *call.Store,
	q *queue.Store,
	notifier notify.Notifier,
	publisher events.Publisher,
	cfg *Config,
	clock shared.Clock,
	logger *slog.Logger,
) *reconcile.Sweeper {
	return reconcile.NewSweeper(calls, q, notifier, publisher, reconcile.Config{
		Interval:      cfg.SweepInterval,
		StaleAfter:    cfg.StaleCallAfter,
		StrandedAfter: cfg.StrandedClaimAfter,
	}, clock, logger)
}

func StartSweeper(lc fx.Lifecycle, sweeper *reconcile.Sweeper) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sweeper.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sweeper.Stop()
			return nil
		},
	})
}

var WorkersModule = fx.Options(
	fx.Provide(ProvideSweeper),
	fx.Invoke(StartSweeper),
)
