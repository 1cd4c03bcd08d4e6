package pool

import (
	"context"
	"errors"
	"time"

	"github.com/eleven-am/spark-backend/internal/shared"
	"gorm.io/gorm"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Pool{})
}

func (s *Store) Create(ctx context.Context, p *Pool) error {
	if p.ID == "" {
		p.ID = shared.NewID("pool_")
	}
	if p.Status == "" {
		p.Status = StatusScheduled
	}
	return s.db.WithContext(ctx).Create(p).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Pool, error) {
	var p Pool
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &p, err
}

// ListUpcoming returns pools that have not ended and whose end lies after now.
func (s *Store) ListUpcoming(ctx context.Context, now time.Time, limit int) ([]*Pool, error) {
	var pools []*Pool
	err := s.db.WithContext(ctx).
		Where("status <> ? AND ends_at > ?", StatusEnded, now).
		Order("starts_at ASC").
		Limit(limit).
		Find(&pools).Error
	return pools, err
}

func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	result := s.db.WithContext(ctx).Model(&Pool{}).Where("id = ?", id).Update("status", status)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// Gate checks admission windows for the queue.
type Gate struct {
	store *Store
	grace time.Duration
	clock shared.Clock
}

func NewGate(store *Store, grace time.Duration, clock shared.Clock) *Gate {
	return &Gate{store: store, grace: grace, clock: clock}
}

func (g *Gate) CheckOpen(ctx context.Context, poolID string) error {
	p, err := g.store.GetByID(ctx, poolID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrPoolNotOpen
		}
		return err
	}
	if !p.IsOpen(g.clock.Now(), g.grace) {
		return shared.ErrPoolNotOpen
	}
	return nil
}
