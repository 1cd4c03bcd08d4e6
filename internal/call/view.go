package call

import (
	"time"

	"github.com/eleven-am/spark-backend/internal/shared"
)

// View is the per-participant snapshot sent to clients. It states whether
// each slot is set and, once both are, whether the outcome is mutual. It
// never carries decision values.
type View struct {
	CallID                string     `json:"call_id"`
	Status                Status     `json:"status"`
	Outcome               Outcome    `json:"outcome"`
	Role                  Role       `json:"role"`
	YourDecisionSet       bool       `json:"your_decision_set"`
	PartnerDecisionSet    bool       `json:"partner_decision_set"`
	DecisionASet          bool       `json:"decision_a_set"`
	DecisionBSet          bool       `json:"decision_b_set"`
	IsMutual              *bool      `json:"is_mutual"`
	ChannelToken          string     `json:"channel_token"`
	DurationBudgetSeconds int        `json:"duration_budget_seconds"`
	StartedAt             time.Time  `json:"started_at"`
	EndedAt               *time.Time `json:"ended_at,omitempty"`
}

func (c *Call) View(userID string) (*View, error) {
	role, ok := c.RoleOf(userID)
	if !ok {
		return nil, shared.ErrNotAParticipant
	}

	partner := RoleB
	if role == RoleB {
		partner = RoleA
	}

	v := &View{
		CallID:                c.ID,
		Status:                c.Status,
		Outcome:               c.Outcome(),
		Role:                  role,
		YourDecisionSet:       c.decision(role) != DecisionUnset,
		PartnerDecisionSet:    c.decision(partner) != DecisionUnset,
		DecisionASet:          c.DecisionA != DecisionUnset,
		DecisionBSet:          c.DecisionB != DecisionUnset,
		DurationBudgetSeconds: c.DurationBudget,
		StartedAt:             c.StartedAt,
		EndedAt:               c.EndedAt,
	}
	if c.Status == StatusActive || c.Resolved() {
		v.ChannelToken = c.ChannelToken
	}
	if c.Resolved() {
		mutual := *c.IsMutual
		v.IsMutual = &mutual
	}
	return v, nil
}
