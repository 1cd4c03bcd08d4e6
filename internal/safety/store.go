package safety

import (
	"context"

	"github.com/eleven-am/spark-backend/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Registry answers whether two users may be paired.
type Registry interface {
	IsBlocked(ctx context.Context, a, b string) (bool, error)
}

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&BlockRelation{}, &Report{})
}

func (s *Store) IsBlocked(ctx context.Context, a, b string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&BlockRelation{}).
		Where("(blocker_id = ? AND blocked_id = ?) OR (blocker_id = ? AND blocked_id = ?)", a, b, b, a).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// Block is idempotent: blocking an already blocked user is not an error.
func (s *Store) Block(ctx context.Context, blockerID, blockedID string) error {
	rel := &BlockRelation{
		ID:        shared.NewID("blk_"),
		BlockerID: blockerID,
		BlockedID: blockedID,
	}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(rel).Error
}

func (s *Store) Unblock(ctx context.Context, blockerID, blockedID string) error {
	result := s.db.WithContext(ctx).
		Delete(&BlockRelation{}, "blocker_id = ? AND blocked_id = ?", blockerID, blockedID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (s *Store) CreateReport(ctx context.Context, r *Report) error {
	if r.ID == "" {
		r.ID = shared.NewID("rpt_")
	}
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) ReportsForCall(ctx context.Context, callID string) ([]*Report, error) {
	var reports []*Report
	err := s.db.WithContext(ctx).Where("call_id = ?", callID).Order("created_at ASC").Find(&reports).Error
	return reports, err
}
