package decision

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/events"
	"github.com/eleven-am/spark-backend/internal/media"
	"github.com/eleven-am/spark-backend/internal/notify"
	"github.com/eleven-am/spark-backend/internal/safety"
	"github.com/eleven-am/spark-backend/internal/shared"
)

var (
	ErrInvalidDecision = errors.New("decision must be spark or pass")
	ErrCallEnded       = errors.New("call has ended")
)

type Calls interface {
	GetForParticipant(ctx context.Context, id, userID string) (*call.Call, call.Role, error)
	SubmitDecision(ctx context.Context, id, userID string, d call.Decision) (*call.SubmitResult, error)
	Exit(ctx context.Context, id, userID string) (*call.Call, bool, error)
	ConnectionsForUser(ctx context.Context, userID string) ([]*call.Connection, error)
}

type Reports interface {
	CreateReport(ctx context.Context, r *safety.Report) error
}

type Tokens interface {
	URL() string
	JoinToken(channel, callID, role string) (string, error)
}

type JoinGrant struct {
	Token    string
	URL      string
	Room     string
	Identity string
}

// Aggregator records decisions and exits for calls and tells both sides to
// re-read after every change.
type Aggregator struct {
	calls    Calls
	reports  Reports
	tokens   Tokens
	notifier notify.Notifier
	events   events.Publisher
	logger   *slog.Logger
}

func NewAggregator(calls Calls, reports Reports, tokens Tokens, notifier notify.Notifier, publisher events.Publisher, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		calls:    calls,
		reports:  reports,
		tokens:   tokens,
		notifier: notifier,
		events:   publisher,
		logger:   logger.With("component", "aggregator"),
	}
}

// Submit records the caller's decision. A repeated submission, or one that
// arrives after the call ended, leaves the call untouched and still succeeds.
func (a *Aggregator) Submit(ctx context.Context, callID, userID string, d call.Decision) (*call.View, error) {
	if !d.Valid() {
		return nil, ErrInvalidDecision
	}

	res, err := a.calls.SubmitDecision(ctx, callID, userID, d)
	if err != nil {
		return nil, a.wrap("submit decision", err)
	}

	if res.Applied {
		a.changed(ctx, callID)
	} else {
		a.logger.Debug("decision ignored", "call_id", callID, "status", res.Call.Status)
	}

	if res.Resolved {
		ev := events.New(events.KindCallResolved, callID)
		ev.PoolID = res.Call.PoolID
		ev.IsMutual = res.Call.IsMutual
		a.publish(ctx, ev)
		a.logger.Info("call resolved", "call_id", callID, "mutual", *res.Call.IsMutual)
	}
	if res.ConnectionCreated {
		ev := events.New(events.KindConnectionCreated, callID)
		ev.PoolID = res.Call.PoolID
		ev.UserIDs = []string{res.Connection.UserA, res.Connection.UserB}
		a.publish(ctx, ev)
	}

	return res.Call.View(userID)
}

func (a *Aggregator) Exit(ctx context.Context, callID, userID string) (*call.View, error) {
	return a.exit(ctx, callID, userID, "exit")
}

// Report ends the call like Exit and files a report for the safety team.
func (a *Aggregator) Report(ctx context.Context, callID, userID, reason string) (*call.View, error) {
	v, err := a.exit(ctx, callID, userID, "report")
	if err != nil {
		return nil, err
	}

	r := &safety.Report{CallID: callID, ReporterID: userID, Reason: reason}
	if err := a.reports.CreateReport(ctx, r); err != nil {
		return nil, a.wrap("create report", err)
	}
	a.logger.Info("call reported", "call_id", callID, "report_id", r.ID)
	return v, nil
}

func (a *Aggregator) exit(ctx context.Context, callID, userID, reason string) (*call.View, error) {
	c, changed, err := a.calls.Exit(ctx, callID, userID)
	if err != nil {
		return nil, a.wrap("exit call", err)
	}

	if changed {
		a.changed(ctx, callID)
		ev := events.New(events.KindCallExited, callID)
		ev.PoolID = c.PoolID
		ev.Reason = reason
		a.publish(ctx, ev)
	}
	return c.View(userID)
}

func (a *Aggregator) State(ctx context.Context, callID, userID string) (*call.View, error) {
	c, _, err := a.calls.GetForParticipant(ctx, callID, userID)
	if err != nil {
		return nil, a.wrap("load call", err)
	}
	return c.View(userID)
}

// Join issues the caller's media token. The identity names the call and
// role only, so the transport never learns who is on the other side.
func (a *Aggregator) Join(ctx context.Context, callID, userID string) (*JoinGrant, error) {
	c, role, err := a.calls.GetForParticipant(ctx, callID, userID)
	if err != nil {
		return nil, a.wrap("load call", err)
	}
	if c.Status != call.StatusActive {
		return nil, ErrCallEnded
	}

	token, err := a.tokens.JoinToken(c.ChannelToken, c.ID, string(role))
	if err != nil {
		return nil, fmt.Errorf("issue join token: %w", err)
	}
	return &JoinGrant{
		Token:    token,
		URL:      a.tokens.URL(),
		Room:     c.ChannelToken,
		Identity: media.Identity(c.ID, string(role)),
	}, nil
}

func (a *Aggregator) Connections(ctx context.Context, userID string) ([]*call.Connection, error) {
	conns, err := a.calls.ConnectionsForUser(ctx, userID)
	if err != nil {
		return nil, a.wrap("list connections", err)
	}
	return conns, nil
}

func (a *Aggregator) changed(ctx context.Context, callID string) {
	if err := a.notifier.Publish(ctx, notify.CallTopic(callID)); err != nil {
		a.logger.Warn("notify failed", "error", err, "call_id", callID)
	}
}

func (a *Aggregator) publish(ctx context.Context, ev events.Event) {
	if err := a.events.Publish(ctx, ev); err != nil {
		a.logger.Warn("publish event failed", "error", err, "kind", ev.Kind, "call_id", ev.CallID)
	}
}

func (a *Aggregator) wrap(op string, err error) error {
	if errors.Is(err, shared.ErrNotFound) || errors.Is(err, shared.ErrNotAParticipant) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, shared.ErrTemporarilyUnavailable, err)
}
