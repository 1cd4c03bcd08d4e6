package notify

import (
	"context"
	"sync"
)

// Hub is the in-process Notifier used for single-node deployments and tests.
type Hub struct {
	mu   sync.RWMutex
	subs map[Topic]map[*Subscription]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[Topic]map[*Subscription]struct{})}
}

func (h *Hub) Publish(_ context.Context, topic Topic) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[topic] {
		sub.deliver(topic)
	}
	return nil
}

func (h *Hub) Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(func() { h.remove(sub, topics) })

	h.mu.Lock()
	for _, t := range topics {
		if h.subs[t] == nil {
			h.subs[t] = make(map[*Subscription]struct{})
		}
		h.subs[t][sub] = struct{}{}
	}
	h.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.Done():
		}
	}()

	return sub, nil
}

func (h *Hub) remove(sub *Subscription, topics []Topic) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, t := range topics {
		delete(h.subs[t], sub)
		if len(h.subs[t]) == 0 {
			delete(h.subs, t)
		}
	}
}

func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Subscription]struct{})
	for _, set := range h.subs {
		for sub := range set {
			seen[sub] = struct{}{}
		}
	}
	return len(seen)
}
