package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

const channelPrefix = "spark:"

// RedisNotifier fans notifications out across server instances over redis
// pub/sub.
type RedisNotifier struct {
	redis  *redis.Client
	logger *slog.Logger

	mu   sync.Mutex
	subs int
}

func NewRedisNotifier(client *redis.Client, logger *slog.Logger) *RedisNotifier {
	return &RedisNotifier{
		redis:  client,
		logger: logger.With("component", "notifier"),
	}
}

func (n *RedisNotifier) Publish(ctx context.Context, topic Topic) error {
	if err := n.redis.Publish(ctx, channelPrefix+string(topic), string(topic)).Err(); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	n.logger.Debug("published notification", "topic", topic)
	return nil
}

// Subscribe returns once redis has confirmed the subscription, so any
// Publish issued afterwards is delivered.
func (n *RedisNotifier) Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error) {
	channels := make([]string, len(topics))
	for i, t := range topics {
		channels[i] = channelPrefix + string(t)
	}

	subCtx, cancel := context.WithCancel(ctx)
	pubsub := n.redis.Subscribe(subCtx, channels...)
	if _, err := pubsub.Receive(subCtx); err != nil {
		cancel()
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe: %w", err)
	}

	sub := newSubscription(cancel)

	n.mu.Lock()
	n.subs++
	n.mu.Unlock()

	go n.forward(subCtx, pubsub, sub)
	return sub, nil
}

func (n *RedisNotifier) forward(ctx context.Context, pubsub *redis.PubSub, sub *Subscription) {
	defer func() {
		_ = pubsub.Close()
		n.mu.Lock()
		n.subs--
		n.mu.Unlock()
	}()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			sub.deliver(Topic(strings.TrimPrefix(msg.Channel, channelPrefix)))
		}
	}
}

func (n *RedisNotifier) SubscriberCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.subs
}
