package notify

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestPoller_StopsWhenDone(t *testing.T) {
	p := NewPoller(time.Millisecond, 10)
	calls := 0

	err := p.Run(context.Background(), nil, func(context.Context) (bool, error) {
		calls++
		return calls == 3, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPoller_Exhausted(t *testing.T) {
	p := NewPoller(time.Millisecond, 10)
	calls := 0

	err := p.Run(context.Background(), nil, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Run() error = %v, want ErrExhausted", err)
	}
	if calls != 10 {
		t.Errorf("calls = %d, want 10", calls)
	}
}

func TestPoller_PropagatesError(t *testing.T) {
	p := NewPoller(time.Millisecond, 10)
	boom := errors.New("boom")

	err := p.Run(context.Background(), nil, func(context.Context) (bool, error) {
		return false, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("Run() error = %v, want boom", err)
	}
}

func TestPoller_WakeTriggersEarlyCheck(t *testing.T) {
	p := NewPoller(time.Hour, 10)
	wake := make(chan struct{}, 1)
	calls := 0

	err := p.Run(context.Background(), wake, func(context.Context) (bool, error) {
		calls++
		if calls == 1 {
			wake <- struct{}{}
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestPoller_ClosedWakeFallsBackToInterval(t *testing.T) {
	p := NewPoller(time.Millisecond, 3)
	wake := make(chan struct{})
	close(wake)
	calls := 0

	err := p.Run(context.Background(), wake, func(context.Context) (bool, error) {
		calls++
		return false, nil
	})
	if !errors.Is(err, ErrExhausted) {
		t.Fatalf("Run() error = %v, want ErrExhausted", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestPoller_ContextCancelled(t *testing.T) {
	p := NewPoller(time.Hour, 10)
	ctx, cancel := context.WithCancel(context.Background())

	err := p.Run(ctx, nil, func(context.Context) (bool, error) {
		cancel()
		return false, nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Run() error = %v, want context.Canceled", err)
	}
}

func TestNewPoller_Defaults(t *testing.T) {
	p := NewPoller(0, 0)
	if p.Interval != DefaultPollInterval || p.MaxAttempts != DefaultPollMaxAttempts {
		t.Errorf("NewPoller(0, 0) = %+v", p)
	}
}
