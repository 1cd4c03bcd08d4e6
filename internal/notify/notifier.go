package notify

import (
	"context"
	"sync"
)

// Topic names a piece of shared state. A notification on a topic only says
// "this changed, re-read it"; it never carries the state itself.
type Topic string

func CallTopic(callID string) Topic {
	return Topic("call:" + callID)
}

func EntryTopic(poolID, userID string) Topic {
	return Topic("entry:" + poolID + ":" + userID)
}

// Notifier delivers change notifications at least once and in no particular
// order. Subscribers must treat every notification as a prompt to re-read.
type Notifier interface {
	Publish(ctx context.Context, topic Topic) error
	Subscribe(ctx context.Context, topics ...Topic) (*Subscription, error)
}

const subscriptionBuffer = 16

type Subscription struct {
	c         chan Topic
	done      chan struct{}
	closeFn   func()
	closeOnce sync.Once
}

func newSubscription(closeFn func()) *Subscription {
	return &Subscription{
		c:       make(chan Topic, subscriptionBuffer),
		done:    make(chan struct{}),
		closeFn: closeFn,
	}
}

func (s *Subscription) C() <-chan Topic {
	return s.c
}

// deliver never blocks. A full buffer already holds a pending re-read, so
// dropping the extra notification loses nothing.
func (s *Subscription) deliver(topic Topic) {
	select {
	case s.c <- topic:
	default:
	}
}

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		if s.closeFn != nil {
			s.closeFn()
		}
	})
}
