package call

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/eleven-am/spark-backend/internal/shared"
)

func boolPtr(b bool) *bool { return &b }

func TestCall_View_HidesDecisionValues(t *testing.T) {
	c := &Call{
		ID:             "call_1",
		ParticipantA:   "user_a",
		ParticipantB:   "user_b",
		Status:         StatusActive,
		DecisionA:      DecisionPass,
		ChannelToken:   "room_1",
		DurationBudget: 45,
	}

	v, err := c.View("user_b")
	if err != nil {
		t.Fatalf("View() error = %v", err)
	}
	if v.Role != RoleB {
		t.Errorf("Role = %q, want b", v.Role)
	}
	if v.YourDecisionSet || !v.PartnerDecisionSet {
		t.Errorf("your=%v partner=%v, want false/true", v.YourDecisionSet, v.PartnerDecisionSet)
	}
	if v.IsMutual != nil || v.Outcome != OutcomePending {
		t.Errorf("unresolved view leaked an outcome: %+v", v)
	}

	raw, _ := json.Marshal(v)
	for _, s := range []string{"pass", "spark"} {
		if strings.Contains(string(raw), s) {
			t.Errorf("serialized view contains %q: %s", s, raw)
		}
	}
}

func TestCall_View_Outcomes(t *testing.T) {
	tests := []struct {
		name        string
		call        Call
		wantOutcome Outcome
		wantToken   bool
	}{
		{
			name:        "mutual",
			call:        Call{Status: StatusCompleted, DecisionA: DecisionSpark, DecisionB: DecisionSpark, IsMutual: boolPtr(true)},
			wantOutcome: OutcomeMutualSpark,
			wantToken:   true,
		},
		{
			name:        "no spark",
			call:        Call{Status: StatusCompleted, DecisionA: DecisionSpark, DecisionB: DecisionPass, IsMutual: boolPtr(false)},
			wantOutcome: OutcomeNoSpark,
			wantToken:   true,
		},
		{
			name:        "cancelled with one decision",
			call:        Call{Status: StatusCancelled, DecisionA: DecisionSpark},
			wantOutcome: OutcomeEnded,
			wantToken:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := tt.call
			c.ID, c.ParticipantA, c.ParticipantB, c.ChannelToken = "call_1", "user_a", "user_b", "room_1"

			v, err := c.View("user_a")
			if err != nil {
				t.Fatalf("View() error = %v", err)
			}
			if v.Outcome != tt.wantOutcome {
				t.Errorf("Outcome = %q, want %q", v.Outcome, tt.wantOutcome)
			}
			if (v.ChannelToken != "") != tt.wantToken {
				t.Errorf("ChannelToken = %q, wantToken %v", v.ChannelToken, tt.wantToken)
			}
		})
	}
}

func TestCall_View_RejectsOutsider(t *testing.T) {
	c := &Call{ID: "call_1", ParticipantA: "user_a", ParticipantB: "user_b"}
	if _, err := c.View("user_c"); !errors.Is(err, shared.ErrNotAParticipant) {
		t.Errorf("View() error = %v, want ErrNotAParticipant", err)
	}
}
