package queue

import "time"

type Status string

const (
	StatusWaiting  Status = "waiting"
	StatusMatching Status = "matching"
	StatusMatched  Status = "matched"
	StatusLeft     Status = "left"
)

// Terminal entries are superseded by a fresh admission, never deleted.
func (s Status) Terminal() bool {
	return s == StatusMatched || s == StatusLeft
}

type Entry struct {
	ID        string     `gorm:"primaryKey" json:"id"`
	UserID    string     `gorm:"not null;uniqueIndex:idx_queue_user_pool,priority:1" json:"user_id"`
	PoolID    string     `gorm:"not null;uniqueIndex:idx_queue_user_pool,priority:2;index:idx_queue_scan,priority:1" json:"pool_id"`
	Status    Status     `gorm:"not null;index:idx_queue_scan,priority:2" json:"status"`
	JoinedAt  time.Time  `gorm:"not null;index:idx_queue_scan,priority:3" json:"joined_at"`
	MatchedAt *time.Time `json:"matched_at,omitempty"`
	CallID    string     `gorm:"index" json:"call_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Entry) TableName() string {
	return "queue_entries"
}

// Claim holds the two entries moved to matching by one successful claim.
type Claim struct {
	Caller    *Entry
	Candidate *Entry
}
