package notify

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRedisNotifier(t *testing.T) *RedisNotifier {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisNotifier(client, newTestLogger())
}

func expectTopic(t *testing.T, sub *Subscription, want Topic) {
	t.Helper()
	select {
	case got := <-sub.C():
		if got != want {
			t.Errorf("got topic %q, want %q", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for %q", want)
	}
}

func expectNothing(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case got := <-sub.C():
		t.Errorf("unexpected notification %q", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTopics(t *testing.T) {
	if got := CallTopic("call_1"); got != "call:call_1" {
		t.Errorf("CallTopic = %q", got)
	}
	if got := EntryTopic("pool_1", "user_a"); got != "entry:pool_1:user_a" {
		t.Errorf("EntryTopic = %q", got)
	}
}

func TestNotifiers(t *testing.T) {
	impls := map[string]func(t *testing.T) Notifier{
		"hub":   func(t *testing.T) Notifier { return NewHub() },
		"redis": func(t *testing.T) Notifier { return newTestRedisNotifier(t) },
	}

	for name, newNotifier := range impls {
		t.Run(name, func(t *testing.T) {
			n := newNotifier(t)
			ctx := context.Background()

			sub, err := n.Subscribe(ctx, CallTopic("call_1"), EntryTopic("pool_1", "user_a"))
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer sub.Close()

			other, err := n.Subscribe(ctx, CallTopic("call_2"))
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}
			defer other.Close()

			if err := n.Publish(ctx, CallTopic("call_1")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			expectTopic(t, sub, CallTopic("call_1"))

			if err := n.Publish(ctx, EntryTopic("pool_1", "user_a")); err != nil {
				t.Fatalf("Publish() error = %v", err)
			}
			expectTopic(t, sub, EntryTopic("pool_1", "user_a"))
			expectNothing(t, other)
		})
	}
}

func TestHub_CloseRemovesSubscriber(t *testing.T) {
	hub := NewHub()
	sub, _ := hub.Subscribe(context.Background(), CallTopic("call_1"))
	if hub.SubscriberCount() != 1 {
		t.Fatalf("SubscriberCount() = %d, want 1", hub.SubscriberCount())
	}

	sub.Close()
	sub.Close()
	if hub.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", hub.SubscriberCount())
	}

	_ = hub.Publish(context.Background(), CallTopic("call_1"))
	expectNothing(t, sub)
}

func TestHub_ContextCancelCloses(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	sub, _ := hub.Subscribe(ctx, CallTopic("call_1"))

	cancel()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription not closed after context cancel")
	}
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	hub := NewHub()
	sub, _ := hub.Subscribe(context.Background(), CallTopic("call_1"))
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriptionBuffer*4; i++ {
			_ = hub.Publish(context.Background(), CallTopic("call_1"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
	expectTopic(t, sub, CallTopic("call_1"))
}

func TestRedisNotifier_CloseStopsForwarding(t *testing.T) {
	n := newTestRedisNotifier(t)
	sub, err := n.Subscribe(context.Background(), CallTopic("call_1"))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	sub.Close()
	deadline := time.Now().Add(time.Second)
	for n.SubscriberCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n.SubscriberCount() != 0 {
		t.Errorf("SubscriberCount() = %d, want 0", n.SubscriberCount())
	}
}
