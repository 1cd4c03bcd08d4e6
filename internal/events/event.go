package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type Kind string

const (
	KindCallMatched       Kind = "call.matched"
	KindCallResolved      Kind = "call.resolved"
	KindCallExited        Kind = "call.exited"
	KindConnectionCreated Kind = "connection.created"
)

var AllKinds = []Kind{KindCallMatched, KindCallResolved, KindCallExited, KindConnectionCreated}

// Event is a domain fact for downstream consumers. It never carries
// individual decision values.
type Event struct {
	ID         string    `json:"id"`
	Kind       Kind      `json:"kind"`
	CallID     string    `json:"call_id"`
	PoolID     string    `json:"pool_id,omitempty"`
	IsMutual   *bool     `json:"is_mutual,omitempty"`
	UserIDs    []string  `json:"user_ids,omitempty"`
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func New(kind Kind, callID string) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		CallID:     callID,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type Noop struct{}

func (Noop) Publish(context.Context, Event) error { return nil }

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
