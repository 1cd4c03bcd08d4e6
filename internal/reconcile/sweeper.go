package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/shared"
)

const sweepBatch = 100

type Calls interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]*call.Call, error)
	CancelStale(ctx context.Context, id string) (bool, error)
	LatestInPoolSince(ctx context.Context, poolID, userID string, since time.Time) (*call.Call, error)
}

type Queue interface {
	ListStranded(ctx context.Context, cutoff time.Time, limit int) ([]*queue.Entry, error)
	Repair(ctx context.Context, entry *queue.Entry, callID string) error
}

type Config struct {
	Interval      time.Duration
	StaleAfter    time.Duration
	StrandedAfter time.Duration
}

type Result struct {
	Cancelled int
	Repaired  int
}

// Sweeper cancels calls abandoned past their budget and settles queue
// entries left in matching by an interrupted pairing.
type Sweeper struct {
	calls    Calls
	queue    Queue
	notifier notify.Notifier
	events   events.Publisher
	cfg      Config
	clock    shared.Clock
	logger   *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewSweeper(calls Calls, q Queue, notifier notify.Notifier, publisher events.Publisher, cfg Config, clock shared.Clock, logger *slog.Logger) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}
	if cfg.StrandedAfter <= 0 {
		cfg.StrandedAfter = time.Minute
	}
	return &Sweeper{
		calls:    calls,
		queue:    q,
		notifier: notifier,
		events:   publisher,
		cfg:      cfg,
		clock:    clock,
		logger:   logger.With("component", "sweeper"),
	}
}

func (s *Sweeper) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go s.loop(ctx)
}

func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := s.Sweep(ctx)
			if err != nil && ctx.Err() == nil {
				s.logger.Error("sweep failed", "error", err)
			}
			if res.Cancelled > 0 || res.Repaired > 0 {
				s.logger.Info("sweep finished", "cancelled_calls", res.Cancelled, "repaired_entries", res.Repaired)
			}
		}
	}
}

func (s *Sweeper) Sweep(ctx context.Context) (Result, error) {
	var res Result

	cancelled, err := s.sweepCalls(ctx)
	res.Cancelled = cancelled
	if err != nil {
		return res, err
	}

	repaired, err := s.sweepEntries(ctx)
	res.Repaired = repaired
	return res, err
}

func (s *Sweeper) sweepCalls(ctx context.Context) (int, error) {
	now := s.clock.Now()
	stale, err := s.calls.ListStale(ctx, now.Add(-s.cfg.StaleAfter), sweepBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, c := range stale {
		if now.Before(c.StartedAt.Add(c.Budget() + s.cfg.StaleAfter)) {
			continue
		}
		ok, err := s.calls.CancelStale(ctx, c.ID)
		if err != nil {
			return n, err
		}
		if !ok {
			continue
		}
		n++
		s.logger.Debug("cancelled stale call", "call_id", c.ID)

		if err := s.notifier.Publish(ctx, notify.CallTopic(c.ID)); err != nil {
			s.logger.Warn("notify failed", "error", err, "call_id", c.ID)
		}
		ev := events.New(events.KindCallExited, c.ID)
		ev.PoolID = c.PoolID
		ev.Reason = "stale"
		if err := s.events.Publish(ctx, ev); err != nil {
			s.logger.Warn("publish event failed", "error", err, "call_id", c.ID)
		}
	}
	return n, nil
}

func (s *Sweeper) sweepEntries(ctx context.Context) (int, error) {
	stranded, err := s.queue.ListStranded(ctx, s.clock.Now().Add(-s.cfg.StrandedAfter), sweepBatch)
	if err != nil {
		return 0, err
	}

	n := 0
	for _, e := range stranded {
		callID := ""
		c, err := s.calls.LatestInPoolSince(ctx, e.PoolID, e.UserID, e.JoinedAt)
		switch {
		case err == nil:
			callID = c.ID
		case !errors.Is(err, shared.ErrNotFound):
			return n, err
		}

		if err := s.queue.Repair(ctx, e, callID); err != nil {
			return n, err
		}
		n++
		s.logger.Debug("repaired stranded entry", "entry_id", e.ID, "call_id", callID)

		if err := s.notifier.Publish(ctx, notify.EntryTopic(e.PoolID, e.UserID)); err != nil {
			s.logger.Warn("notify failed", "error", err, "entry_id", e.ID)
		}
	}
	return n, nil
}
