package notify

import (
	"context"
	"errors"
	"time"
)

var ErrExhausted = errors.New("no match, try again")

const (
	DefaultPollInterval    = 4 * time.Second
	DefaultPollMaxAttempts = 10
)

// Poller re-runs a check on a fixed interval for a bounded number of
// attempts. A wake channel, when given, triggers the next attempt early.
type Poller struct {
	Interval    time.Duration
	MaxAttempts int
}

func NewPoller(interval time.Duration, maxAttempts int) Poller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	return Poller{Interval: interval, MaxAttempts: maxAttempts}
}

// Run calls check until it reports done, returns an error, the context ends,
// or MaxAttempts checks have run, in which case it returns ErrExhausted.
// A closed wake channel falls back to the interval.
func (p Poller) Run(ctx context.Context, wake <-chan struct{}, check func(ctx context.Context) (bool, error)) error {
	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	for attempt := 1; ; attempt++ {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if attempt >= p.MaxAttempts {
			return ErrExhausted
		}

		if err := p.wait(ctx, ticker.C, &wake); err != nil {
			return err
		}
	}
}

func (p Poller) wait(ctx context.Context, tick <-chan time.Time, wake *<-chan struct{}) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick:
			return nil
		case _, ok := <-*wake:
			if ok {
				return nil
			}
			*wake = nil
		}
	}
}
