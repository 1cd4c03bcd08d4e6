package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eleven-am/spark-backend/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrNoCandidate   = errors.New("no eligible candidate")
	ErrClaimRaceLost = errors.New("claim race lost")
	ErrNotWaiting    = errors.New("entry is not waiting")
)

type Store struct {
	db    *gorm.DB
	clock shared.Clock
}

func NewStore(db *gorm.DB, clock shared.Clock) *Store {
	return &Store{db: db, clock: clock}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Entry{})
}

// Admit upserts the entry for (userID, poolID). Waiting and matching entries
// are only touched; joined_at is set on first creation. Terminal entries are
// returned unchanged so the caller can decide whether to Requeue them.
func (s *Store) Admit(ctx context.Context, userID, poolID string) (*Entry, error) {
	now := s.clock.Now()

	entry, err := s.Get(ctx, userID, poolID)
	if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	if entry == nil {
		entry = &Entry{
			ID:       shared.NewID("qe_"),
			UserID:   userID,
			PoolID:   poolID,
			Status:   StatusWaiting,
			JoinedAt: now,
		}
		result := s.db.WithContext(ctx).
			Clauses(clause.OnConflict{DoNothing: true}).
			Create(entry)
		if result.Error != nil {
			return nil, fmt.Errorf("create queue entry: %w", result.Error)
		}
		if result.RowsAffected == 1 {
			return entry, nil
		}
		// lost a concurrent first admission; the winner's row is authoritative
		return s.Get(ctx, userID, poolID)
	}

	if entry.Status.Terminal() {
		return entry, nil
	}

	err = s.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ?", entry.ID).
		UpdateColumn("updated_at", now).Error
	if err != nil {
		return nil, fmt.Errorf("refresh queue entry: %w", err)
	}
	entry.UpdatedAt = now
	return entry, nil
}

// Requeue starts a new admission attempt for a terminal entry. It only
// applies if the entry is still in the state the caller observed.
func (s *Store) Requeue(ctx context.Context, entry *Entry) (*Entry, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND status = ? AND call_id = ?", entry.ID, entry.Status, entry.CallID).
		Updates(map[string]any{
			"status":     StatusWaiting,
			"joined_at":  now,
			"matched_at": nil,
			"call_id":    "",
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, fmt.Errorf("requeue entry: %w", result.Error)
	}
	return s.Get(ctx, entry.UserID, entry.PoolID)
}

func (s *Store) Get(ctx context.Context, userID, poolID string) (*Entry, error) {
	var e Entry
	err := s.db.WithContext(ctx).Where("user_id = ? AND pool_id = ?", userID, poolID).First(&e).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &e, nil
}

// Scan returns up to limit waiting entries of the pool, oldest admission first.
func (s *Store) Scan(ctx context.Context, poolID, excludeUserID string, limit int) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND status = ? AND user_id <> ?", poolID, StatusWaiting, excludeUserID).
		Order("joined_at ASC").
		Order("id ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Claim moves the caller's and the candidate's entries from waiting to
// matching in one transaction. Rows held by another in-flight claim are
// skipped rather than waited on, and each update re-checks status = waiting,
// so only one concurrent claim can win any entry.
func (s *Store) Claim(ctx context.Context, callerID, candidateID string) (*Claim, error) {
	now := s.clock.Now()
	claim := &Claim{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		caller, err := lockWaiting(tx, callerID)
		if err != nil {
			return err
		}
		if caller == nil {
			return ErrNotWaiting
		}

		candidate, err := lockWaiting(tx, candidateID)
		if err != nil {
			return err
		}
		if candidate == nil {
			return ErrClaimRaceLost
		}

		if ok, err := casStatus(tx, caller.ID, StatusWaiting, StatusMatching, now); err != nil {
			return err
		} else if !ok {
			return ErrNotWaiting
		}
		if ok, err := casStatus(tx, candidate.ID, StatusWaiting, StatusMatching, now); err != nil {
			return err
		} else if !ok {
			return ErrClaimRaceLost
		}

		caller.Status = StatusMatching
		candidate.Status = StatusMatching
		claim.Caller = caller
		claim.Candidate = candidate
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claim, nil
}

func lockWaiting(tx *gorm.DB, id string) (*Entry, error) {
	var entries []*Entry
	err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("id = ? AND status = ?", id, StatusWaiting).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, nil
	}
	return entries[0], nil
}

func casStatus(tx *gorm.DB, id string, from, to Status, now time.Time) (bool, error) {
	result := tx.Model(&Entry{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{"status": to, "updated_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Release rolls a claim back so neither entry stays stranded in matching.
func (s *Store) Release(ctx context.Context, claim *Claim) error {
	now := s.clock.Now()
	return s.db.WithContext(ctx).Model(&Entry{}).
		Where("id IN ? AND status = ?", []string{claim.Caller.ID, claim.Candidate.ID}, StatusMatching).
		Updates(map[string]any{"status": StatusWaiting, "updated_at": now}).Error
}

func (s *Store) MarkMatched(ctx context.Context, claim *Claim, callID string) error {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("id IN ? AND status = ?", []string{claim.Caller.ID, claim.Candidate.ID}, StatusMatching).
		Updates(map[string]any{
			"status":     StatusMatched,
			"call_id":    callID,
			"matched_at": now,
			"updated_at": now,
		})
	if result.Error != nil {
		return result.Error
	}
	for _, e := range []*Entry{claim.Caller, claim.Candidate} {
		e.Status = StatusMatched
		e.CallID = callID
		e.MatchedAt = &now
	}
	return nil
}

// Leave withdraws a waiting entry. Entries already being matched stay put.
func (s *Store) Leave(ctx context.Context, userID, poolID string) (bool, error) {
	result := s.db.WithContext(ctx).Model(&Entry{}).
		Where("user_id = ? AND pool_id = ? AND status = ?", userID, poolID, StatusWaiting).
		Updates(map[string]any{"status": StatusLeft, "updated_at": s.clock.Now()})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) CountWaiting(ctx context.Context, poolID string) (int64, error) {
	var count int64
	q := s.db.WithContext(ctx).Model(&Entry{}).Where("status = ?", StatusWaiting)
	if poolID != "" {
		q = q.Where("pool_id = ?", poolID)
	}
	err := q.Count(&count).Error
	return count, err
}

// ListStranded returns entries left in matching since before cutoff.
func (s *Store) ListStranded(ctx context.Context, cutoff time.Time, limit int) ([]*Entry, error) {
	var entries []*Entry
	err := s.db.WithContext(ctx).
		Where("status = ? AND updated_at < ?", StatusMatching, cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&entries).Error
	return entries, err
}

// Repair resolves a stranded entry: matched when a call references it,
// waiting otherwise.
func (s *Store) Repair(ctx context.Context, entry *Entry, callID string) error {
	now := s.clock.Now()
	updates := map[string]any{"status": StatusWaiting, "updated_at": now}
	if callID != "" {
		updates = map[string]any{
			"status":     StatusMatched,
			"call_id":    callID,
			"matched_at": now,
			"updated_at": now,
		}
	}
	return s.db.WithContext(ctx).Model(&Entry{}).
		Where("id = ? AND status = ?", entry.ID, StatusMatching).
		Updates(updates).Error
}
