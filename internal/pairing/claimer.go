package pairing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/queue"
	"github.com/eleven-am/spark-backend/internal/safety"
	"github.com/eleven-am/spark-backend/internal/shared"
)

const DefaultScanWidth = 10

type Outcome string

const (
	OutcomeMatched Outcome = "matched"
	OutcomeQueued  Outcome = "queued"
)

type Result struct {
	Outcome      Outcome
	CallID       string
	ChannelToken string
}

func queued() *Result {
	return &Result{Outcome: OutcomeQueued}
}

func matched(c *call.Call) *Result {
	return &Result{Outcome: OutcomeMatched, CallID: c.ID, ChannelToken: c.ChannelToken}
}

type Queue interface {
	Admit(ctx context.Context, userID, poolID string) (*queue.Entry, error)
	Requeue(ctx context.Context, entry *queue.Entry) (*queue.Entry, error)
	Get(ctx context.Context, userID, poolID string) (*queue.Entry, error)
	Scan(ctx context.Context, poolID, excludeUserID string, limit int) ([]*queue.Entry, error)
	Claim(ctx context.Context, callerID, candidateID string) (*queue.Claim, error)
	Release(ctx context.Context, claim *queue.Claim) error
	MarkMatched(ctx context.Context, claim *queue.Claim, callID string) error
	Leave(ctx context.Context, userID, poolID string) (bool, error)
	CountWaiting(ctx context.Context, poolID string) (int64, error)
}

type Calls interface {
	Create(ctx context.Context, c *call.Call) error
	GetByID(ctx context.Context, id string) (*call.Call, error)
}

type PoolGate interface {
	CheckOpen(ctx context.Context, poolID string) error
}

// Eligibility is the external trust check run before admission.
type Eligibility interface {
	IsEligible(ctx context.Context, userID string) (bool, error)
}

type AllowAll struct{}

func (AllowAll) IsEligible(context.Context, string) (bool, error) { return true, nil }

type Channels interface {
	NewChannel() string
}

type Config struct {
	ScanWidth      int
	DurationBudget time.Duration
}

type Claimer struct {
	queue       Queue
	calls       Calls
	gate        PoolGate
	registry    safety.Registry
	eligibility Eligibility
	channels    Channels
	notifier    notify.Notifier
	events      events.Publisher
	cfg         Config
	logger      *slog.Logger
}

func NewClaimer(
	q Queue,
	calls Calls,
	gate PoolGate,
	registry safety.Registry,
	eligibility Eligibility,
	channels Channels,
	notifier notify.Notifier,
	publisher events.Publisher,
	cfg Config,
	logger *slog.Logger,
) *Claimer {
	if cfg.ScanWidth <= 0 {
		cfg.ScanWidth = DefaultScanWidth
	}
	if cfg.DurationBudget <= 0 {
		cfg.DurationBudget = call.DefaultDurationBudget
	}
	if eligibility == nil {
		eligibility = AllowAll{}
	}
	return &Claimer{
		queue:       q,
		calls:       calls,
		gate:        gate,
		registry:    registry,
		eligibility: eligibility,
		channels:    channels,
		notifier:    notifier,
		events:      publisher,
		cfg:         cfg,
		logger:      logger.With("component", "claimer"),
	}
}

// Admit puts the user into the pool's queue, or refreshes the entry if it is
// already there. A matched entry whose call has ended starts a new attempt.
func (c *Claimer) Admit(ctx context.Context, userID, poolID string) (*queue.Entry, error) {
	if err := c.gate.CheckOpen(ctx, poolID); err != nil {
		return nil, err
	}

	ok, err := c.eligibility.IsEligible(ctx, userID)
	if err != nil {
		return nil, unavailable("eligibility check", err)
	}
	if !ok {
		return nil, shared.ErrNotEligible
	}

	entry, err := c.queue.Admit(ctx, userID, poolID)
	if err != nil {
		return nil, unavailable("admit", err)
	}

	switch entry.Status {
	case queue.StatusLeft:
		return c.requeue(ctx, entry)
	case queue.StatusMatched:
		active, err := c.callActive(ctx, entry.CallID)
		if err != nil {
			return nil, err
		}
		if !active {
			return c.requeue(ctx, entry)
		}
	}
	return entry, nil
}

func (c *Claimer) requeue(ctx context.Context, entry *queue.Entry) (*queue.Entry, error) {
	fresh, err := c.queue.Requeue(ctx, entry)
	if err != nil {
		return nil, unavailable("requeue", err)
	}
	return fresh, nil
}

func (c *Claimer) callActive(ctx context.Context, callID string) (bool, error) {
	if callID == "" {
		return false, nil
	}
	cl, err := c.calls.GetByID(ctx, callID)
	if errors.Is(err, shared.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("load call", err)
	}
	return cl.Status == call.StatusActive, nil
}

// TryPair admits the caller and makes one attempt to pair them with the
// oldest waiting, non-blocked user in the pool. Losing a race to another
// claimer is not an error: the caller stays queued and retries later.
func (c *Claimer) TryPair(ctx context.Context, userID, poolID string) (*Result, error) {
	entry, err := c.Admit(ctx, userID, poolID)
	if err != nil {
		return nil, err
	}

	switch entry.Status {
	case queue.StatusMatched:
		// someone else's TryPair already paired us
		return c.existingMatch(ctx, entry)
	case queue.StatusMatching:
		return queued(), nil
	}

	candidate, err := c.pickCandidate(ctx, userID, poolID)
	if err != nil {
		return nil, err
	}
	if candidate == nil {
		return queued(), nil
	}

	claim, err := c.queue.Claim(ctx, entry.ID, candidate.ID)
	switch {
	case errors.Is(err, queue.ErrClaimRaceLost):
		c.logger.Debug("claim race lost", "pool_id", poolID, "user_id", userID)
		return queued(), nil
	case errors.Is(err, queue.ErrNotWaiting):
		return c.recheck(ctx, userID, poolID)
	case err != nil:
		return nil, unavailable("claim", err)
	}

	cl := &call.Call{
		PoolID:         poolID,
		ParticipantA:   claim.Caller.UserID,
		ParticipantB:   claim.Candidate.UserID,
		ChannelToken:   c.channels.NewChannel(),
		DurationBudget: int(c.cfg.DurationBudget / time.Second),
	}
	if err := c.calls.Create(ctx, cl); err != nil {
		if relErr := c.queue.Release(context.WithoutCancel(ctx), claim); relErr != nil {
			c.logger.Error("release claim failed", "error", relErr, "pool_id", poolID,
				"caller", claim.Caller.ID, "candidate", claim.Candidate.ID)
		}
		return nil, unavailable("create call", err)
	}

	if err := c.queue.MarkMatched(ctx, claim, cl.ID); err != nil {
		// the call exists; the sweeper finishes the bookkeeping
		c.logger.Error("mark matched failed", "error", err, "call_id", cl.ID)
	}

	c.logger.Info("paired", "call_id", cl.ID, "pool_id", poolID)
	c.announce(ctx, cl)
	return matched(cl), nil
}

func (c *Claimer) pickCandidate(ctx context.Context, userID, poolID string) (*queue.Entry, error) {
	candidates, err := c.queue.Scan(ctx, poolID, userID, c.cfg.ScanWidth)
	if err != nil {
		return nil, unavailable("scan", err)
	}

	for _, cand := range candidates {
		blocked, err := c.registry.IsBlocked(ctx, userID, cand.UserID)
		if err != nil {
			return nil, unavailable("block check", err)
		}
		if !blocked {
			return cand, nil
		}
	}
	return nil, nil
}

// recheck runs when the caller's own entry was taken between admission and
// claim, usually because a concurrent TryPair paired them.
func (c *Claimer) recheck(ctx context.Context, userID, poolID string) (*Result, error) {
	entry, err := c.queue.Get(ctx, userID, poolID)
	if err != nil {
		return nil, unavailable("reload entry", err)
	}
	if entry.Status == queue.StatusMatched {
		return c.existingMatch(ctx, entry)
	}
	return queued(), nil
}

func (c *Claimer) existingMatch(ctx context.Context, entry *queue.Entry) (*Result, error) {
	cl, err := c.calls.GetByID(ctx, entry.CallID)
	if err != nil {
		return nil, unavailable("load call", err)
	}
	return matched(cl), nil
}

func (c *Claimer) announce(ctx context.Context, cl *call.Call) {
	for _, topic := range []notify.Topic{
		notify.EntryTopic(cl.PoolID, cl.ParticipantA),
		notify.EntryTopic(cl.PoolID, cl.ParticipantB),
	} {
		if err := c.notifier.Publish(ctx, topic); err != nil {
			c.logger.Warn("notify failed", "error", err, "topic", topic)
		}
	}

	ev := events.New(events.KindCallMatched, cl.ID)
	ev.PoolID = cl.PoolID
	ev.UserIDs = []string{cl.ParticipantA, cl.ParticipantB}
	if err := c.events.Publish(ctx, ev); err != nil {
		c.logger.Warn("publish event failed", "error", err, "call_id", cl.ID)
	}
}

// Leave withdraws the caller's waiting entry.
func (c *Claimer) Leave(ctx context.Context, userID, poolID string) error {
	left, err := c.queue.Leave(ctx, userID, poolID)
	if err != nil {
		return unavailable("leave", err)
	}
	if !left {
		c.logger.Debug("leave ignored, entry not waiting", "pool_id", poolID, "user_id", userID)
	}
	return nil
}

type QueueStatus struct {
	Entry   *queue.Entry
	Waiting int64
}

func (c *Claimer) Status(ctx context.Context, userID, poolID string) (*QueueStatus, error) {
	entry, err := c.queue.Get(ctx, userID, poolID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
		return nil, unavailable("load entry", err)
	}
	waiting, err := c.queue.CountWaiting(ctx, poolID)
	if err != nil {
		return nil, unavailable("count waiting", err)
	}
	return &QueueStatus{Entry: entry, Waiting: waiting}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, shared.ErrTemporarilyUnavailable, err)
}
