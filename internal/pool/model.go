package pool

import "time"

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
)

// Pool is a scheduled window during which waiting users can be paired.
type Pool struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Status    Status    `gorm:"not null;index;default:scheduled" json:"status"`
	StartsAt  time.Time `gorm:"not null;index" json:"starts_at"`
	EndsAt    time.Time `gorm:"not null" json:"ends_at"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsOpen reports whether the pool accepts admissions at now: either it is
// live, or it has not ended and now falls within grace of its start. No pool
// is open past its ends_at, whatever its status says.
func (p *Pool) IsOpen(now time.Time, grace time.Duration) bool {
	if !p.EndsAt.IsZero() && now.After(p.EndsAt) {
		return false
	}
	switch p.Status {
	case StatusLive:
		return true
	case StatusEnded:
		return false
	}
	if now.Before(p.StartsAt) {
		return false
	}
	return !now.After(p.StartsAt.Add(grace))
}
