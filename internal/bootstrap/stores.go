package bootstrap

import (
	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/pool"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/safety"
	"github.com/eleven-am/spark-backend/internal/shared"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

func ProvidePoolStore(db *gorm.DB) *pool.Store {
	return pool.NewStore(db)
}

func ProvidePoolGate(store *pool.Store, cfg *Config, clock shared.Clock) *pool.Gate {
	return pool.NewGate(store, cfg.PoolGraceWindow, clock)
}

func ProvideSafetyStore(db *gorm.DB) *safety.Store {
	return safety.NewStore(db)
}

func ProvideQueueStore(db *gorm.DB, clock shared.Clock) *queue.Store {
	return queue.NewStore(db, clock)
}

func ProvideCallStore(db *gorm.DB, clock shared.Clock) *call.Store {
	return call.NewStore(db, clock)
}

func RunMigrations(poolStore *pool.Store, safetyStore *safety.Store, queueStore *queue.Store, callStore *call.Store) error {
	if err := poolStore.Migrate(); err != nil {
		return err
	}
	if err := safetyStore.Migrate(); err != nil {
		return err
	}
	if err := queueStore.Migrate(); err != nil {
		return err
	}
	return callStore.Migrate()
}

var StoresModule = fx.Options(
	fx.Provide(
		ProvidePoolStore,
		ProvidePoolGate,
		ProvideSafetyStore,
		ProvideQueueStore,
		ProvideCallStore,
	),
	fx.Invoke(RunMigrations),
)
