package call

import "time"

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

type Decision string

const (
	DecisionUnset Decision = ""
	DecisionSpark Decision = "spark"
	DecisionPass  Decision = "pass"
)

func (d Decision) Valid() bool {
	return d == DecisionSpark || d == DecisionPass
}

type Role string

const (
	RoleA Role = "a"
	RoleB Role = "b"
)

type Outcome string

const (
	OutcomePending     Outcome = "pending"
	OutcomeMutualSpark Outcome = "mutual_spark"
	OutcomeNoSpark     Outcome = "no_spark"
	OutcomeEnded       Outcome = "ended"
)

const DefaultDurationBudget = 45 * time.Second

type Call struct {
	ID             string     `gorm:"primaryKey"`
	PoolID         string     `gorm:"not null;index"`
	ParticipantA   string     `gorm:"not null;index"`
	ParticipantB   string     `gorm:"not null;index"`
	Status         Status     `gorm:"not null;index"`
	DecisionA      Decision   `gorm:"not null;default:''"`
	DecisionB      Decision   `gorm:"not null;default:''"`
	IsMutual       *bool      `gorm:"default:null"`
	ChannelToken   string     `gorm:"not null;uniqueIndex"`
	DurationBudget int        `gorm:"not null"`
	ExitedBy       Role       `gorm:"not null;default:''"`
	StartedAt      time.Time  `gorm:"not null;index"`
	EndedAt        *time.Time `gorm:"default:null"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (c *Call) RoleOf(userID string) (Role, bool) {
	switch userID {
	case c.ParticipantA:
		return RoleA, true
	case c.ParticipantB:
		return RoleB, true
	}
	return "", false
}

func (c *Call) decision(r Role) Decision {
	if r == RoleA {
		return c.DecisionA
	}
	return c.DecisionB
}

func (c *Call) Resolved() bool {
	return c.DecisionA != DecisionUnset && c.DecisionB != DecisionUnset && c.IsMutual != nil
}

func (c *Call) Outcome() Outcome {
	switch {
	case c.Resolved() && *c.IsMutual:
		return OutcomeMutualSpark
	case c.Resolved():
		return OutcomeNoSpark
	case c.Status != StatusActive:
		return OutcomeEnded
	}
	return OutcomePending
}

func (c *Call) Budget() time.Duration {
	return time.Duration(c.DurationBudget) * time.Second
}

// Connection is created once per mutually resolved call.
type Connection struct {
	ID        string    `gorm:"primaryKey" json:"id"`
	CallID    string    `gorm:"not null;uniqueIndex" json:"call_id"`
	UserA     string    `gorm:"not null;index" json:"user_a"`
	UserB     string    `gorm:"not null;index" json:"user_b"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Connection) Peer(userID string) string {
	if c.UserA == userID {
		return c.UserB
	}
	return c.UserA
}
