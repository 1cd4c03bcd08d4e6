package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eleven-am/spark-backend/internal/shared"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrSameParticipant = errors.New("a call needs two distinct participants")

// SubmitResult describes what a single decision submission changed.
type SubmitResult struct {
	Call *Call
	// Applied is false when the slot was already set or the call had ended.
	Applied bool
	// Resolved is true when this submission filled the second slot.
	Resolved          bool
	ConnectionCreated bool
	Connection        *Connection
}

type Store struct {
	db    *gorm.DB
	clock shared.Clock
}

func NewStore(db *gorm.DB, clock shared.Clock) *Store {
	return &Store{db: db, clock: clock}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Call{}, &Connection{})
}

func (s *Store) Create(ctx context.Context, c *Call) error {
	if c.ParticipantA == "" || c.ParticipantB == "" || c.ParticipantA == c.ParticipantB {
		return ErrSameParticipant
	}
	if c.ID == "" {
		c.ID = shared.NewID("call_")
	}
	if c.DurationBudget <= 0 {
		c.DurationBudget = int(DefaultDurationBudget / time.Second)
	}
	if c.StartedAt.IsZero() {
		c.StartedAt = s.clock.Now()
	}
	c.Status = StatusActive
	c.DecisionA = DecisionUnset
	c.DecisionB = DecisionUnset
	c.IsMutual = nil
	return s.db.WithContext(ctx).Create(c).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Call, error) {
	return getByID(s.db.WithContext(ctx), id)
}

func getByID(db *gorm.DB, id string) (*Call, error) {
	var c Call
	err := db.Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// GetForParticipant loads the call and checks that userID is one of its
// two participants.
func (s *Store) GetForParticipant(ctx context.Context, id, userID string) (*Call, Role, error) {
	c, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	role, ok := c.RoleOf(userID)
	if !ok {
		return nil, "", shared.ErrNotAParticipant
	}
	return c, role, nil
}

// LatestInPoolSince returns the user's newest call in the pool started at or
// after since, whatever its status.
func (s *Store) LatestInPoolSince(ctx context.Context, poolID, userID string, since time.Time) (*Call, error) {
	var calls []*Call
	err := s.db.WithContext(ctx).
		Where("pool_id = ? AND started_at >= ? AND (participant_a = ? OR participant_b = ?)", poolID, since, userID, userID).
		Order("started_at DESC").
		Limit(1).
		Find(&calls).Error
	if err != nil {
		return nil, err
	}
	if len(calls) == 0 {
		return nil, shared.ErrNotFound
	}
	return calls[0], nil
}

// SubmitDecision writes the caller's slot exactly once. The write, the
// mutuality computation and the completion of the call happen in one
// conditional UPDATE that reads the partner's slot from the same row, so
// whichever of two concurrent submissions lands second always sees the
// first. A mutual outcome inserts the call's Connection in the same
// transaction; the unique call_id keeps it to one.
func (s *Store) SubmitDecision(ctx context.Context, id, userID string, d Decision) (*SubmitResult, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid decision %q", d)
	}
	now := s.clock.Now()
	res := &SubmitResult{}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		c, err := getByID(tx, id)
		if err != nil {
			return err
		}
		role, ok := c.RoleOf(userID)
		if !ok {
			return shared.ErrNotAParticipant
		}

		mine, theirs := "decision_a", "decision_b"
		if role == RoleB {
			mine, theirs = theirs, mine
		}

		mutual := gorm.Expr("CASE WHEN "+theirs+" = ? THEN is_mutual ELSE FALSE END", DecisionUnset)
		if d == DecisionSpark {
			mutual = gorm.Expr("CASE WHEN "+theirs+" = ? THEN is_mutual ELSE "+theirs+" = ? END", DecisionUnset, DecisionSpark)
		}

		result := tx.Model(&Call{}).
			Where("id = ? AND status = ? AND "+mine+" = ?", id, StatusActive, DecisionUnset).
			Updates(map[string]any{
				mine:         d,
				"is_mutual":  mutual,
				"status":     gorm.Expr("CASE WHEN "+theirs+" = ? THEN status ELSE ? END", DecisionUnset, StatusCompleted),
				"ended_at":   gorm.Expr("CASE WHEN "+theirs+" = ? THEN ended_at ELSE ? END", DecisionUnset, now),
				"updated_at": now,
			})
		if result.Error != nil {
			return fmt.Errorf("write decision: %w", result.Error)
		}
		res.Applied = result.RowsAffected == 1

		c, err = getByID(tx, id)
		if err != nil {
			return err
		}
		res.Call = c
		if !res.Applied {
			return nil
		}

		res.Resolved = c.Resolved()
		if !res.Resolved || !*c.IsMutual {
			return nil
		}

		conn := &Connection{
			ID:     shared.NewID("conn_"),
			CallID: c.ID,
			UserA:  c.ParticipantA,
			UserB:  c.ParticipantB,
		}
		created := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(conn)
		if created.Error != nil {
			return fmt.Errorf("create connection: %w", created.Error)
		}
		res.ConnectionCreated = created.RowsAffected == 1
		if res.ConnectionCreated {
			res.Connection = conn
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

// Exit cancels an active call on behalf of one participant. Exiting a call
// that already ended is a no-op; changed reports whether this call did it.
func (s *Store) Exit(ctx context.Context, id, userID string) (c *Call, changed bool, err error) {
	c, role, err := s.GetForParticipant(ctx, id, userID)
	if err != nil {
		return nil, false, err
	}

	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]any{
			"status":     StatusCancelled,
			"exited_by":  role,
			"ended_at":   now,
			"updated_at": now,
		})
	if result.Error != nil {
		return nil, false, fmt.Errorf("exit call: %w", result.Error)
	}

	c, err = s.GetByID(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return c, result.RowsAffected == 1, nil
}

// ListStale returns calls still active that started before cutoff. A call
// with one decision recorded is still active and is included.
func (s *Store) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*Call, error) {
	var calls []*Call
	err := s.db.WithContext(ctx).
		Where("status = ? AND started_at < ?", StatusActive, cutoff).
		Order("started_at ASC").
		Limit(limit).
		Find(&calls).Error
	return calls, err
}

// CancelStale ends an abandoned call. It only applies while the call is
// still active, so a decision landing concurrently wins.
func (s *Store) CancelStale(ctx context.Context, id string) (bool, error) {
	now := s.clock.Now()
	result := s.db.WithContext(ctx).Model(&Call{}).
		Where("id = ? AND status = ?", id, StatusActive).
		Updates(map[string]any{
			"status":     StatusCancelled,
			"ended_at":   now,
			"updated_at": now,
		})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (s *Store) CountActive(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.WithContext(ctx).Model(&Call{}).Where("status = ?", StatusActive).Count(&count).Error
	return count, err
}

func (s *Store) ConnectionsForUser(ctx context.Context, userID string) ([]*Connection, error) {
	var conns []*Connection
	err := s.db.WithContext(ctx).
		Where("user_a = ? OR user_b = ?", userID, userID).
		Order("created_at DESC").
		Find(&conns).Error
	return conns, err
}

func (s *Store) ConnectionForCall(ctx context.Context, callID string) (*Connection, error) {
	var conn Connection
	err := s.db.WithContext(ctx).Where("call_id = ?", callID).First(&conn).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conn, nil
}
