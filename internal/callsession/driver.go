package callsession

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/dto"
	"github.com/eleven-am/spark-backend/internal/shared"
)

// API is the slice of the server the driver needs.
type API interface {
	CallState(ctx context.Context, callID string) (*call.View, error)
	SubmitDecision(ctx context.Context, callID string, d call.Decision) error
	ExitCall(ctx context.Context, callID string) error
	Join(ctx context.Context, callID string) (*dto.JoinResponse, error)
}

// Watcher delivers a signal whenever the call may have changed. The channel
// is closed when the subscription ends.
type Watcher interface {
	WatchCall(ctx context.Context, callID string) (<-chan struct{}, error)
}

// Transport is the external media session. Connect blocks until both sides
// are connected and returns a channel that yields when the session drops.
type Transport interface {
	Connect(ctx context.Context, grant *dto.JoinResponse) (<-chan error, error)
	Close() error
}

// DecideFunc asks the user for their decision once decisions open.
type DecideFunc func(ctx context.Context, v *call.View) (call.Decision, error)

// temporary is implemented by client errors that are worth retrying.
type temporary interface {
	Temporary() bool
}

type DriverConfig struct {
	Session       Config
	PollInterval  time.Duration
	Tick          time.Duration
	SubmitRetries int
	RetryBackoff  time.Duration
}

func DefaultDriverConfig() DriverConfig {
	return DriverConfig{
		Session:       DefaultConfig(),
		PollInterval:  4 * time.Second,
		Tick:          250 * time.Millisecond,
		SubmitRetries: 5,
		RetryBackoff:  500 * time.Millisecond,
	}
}

type Result struct {
	Phase Phase
	View  *call.View
	Err   error
}

type Driver struct {
	api       API
	watcher   Watcher
	transport Transport
	decide    DecideFunc
	cfg       DriverConfig
	clock     shared.Clock
	logger    *slog.Logger

	exitReq chan struct{}
	phases  chan Phase
}

func NewDriver(api API, watcher Watcher, transport Transport, decide DecideFunc, cfg DriverConfig, clock shared.Clock, logger *slog.Logger) *Driver {
	def := DefaultDriverConfig()
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = def.PollInterval
	}
	if cfg.Tick <= 0 {
		cfg.Tick = def.Tick
	}
	if cfg.SubmitRetries <= 0 {
		cfg.SubmitRetries = def.SubmitRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = def.RetryBackoff
	}
	return &Driver{
		api:       api,
		watcher:   watcher,
		transport: transport,
		decide:    decide,
		cfg:       cfg,
		clock:     clock,
		logger:    logger.With("component", "callsession"),
		exitReq:   make(chan struct{}, 1),
		phases:    make(chan Phase, 16),
	}
}

// RequestExit asks a running driver to leave the call.
func (d *Driver) RequestExit() {
	select {
	case d.exitReq <- struct{}{}:
	default:
	}
}

// Phases reports each phase change. Slow readers miss intermediate phases.
func (d *Driver) Phases() <-chan Phase {
	return d.phases
}

// Run drives one call to its outcome or to a safe exit.
func (d *Driver) Run(ctx context.Context, callID string) Result {
	view, err := d.api.CallState(ctx, callID)
	if err != nil {
		return Result{Phase: PhaseSafeExit, Err: err}
	}
	s := New(view, d.cfg.Session, d.clock)
	last := s.Phase()
	d.emit(last)

	var updates <-chan struct{}
	if d.watcher != nil {
		updates, err = d.watcher.WatchCall(ctx, callID)
		if err != nil {
			d.logger.Warn("subscription unavailable, polling", "call_id", callID, "error", err)
			updates = nil
		}
	}

	var drops <-chan error
	defer func() { _ = d.transport.Close() }()

	poll := time.NewTicker(d.cfg.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(d.cfg.Tick)
	defer tick.Stop()

	for {
		phase := s.Phase()
		if phase != last {
			d.emit(phase)
			last = phase
		}

		switch {
		case phase.Outcome():
			s.Acknowledge()
			d.emit(PhaseComplete)
			return Result{Phase: phase, View: s.View()}
		case phase == PhaseSafeExit:
			d.leave(ctx, s)
			return Result{Phase: phase, View: s.View(), Err: s.ExitErr()}
		case phase == PhaseConnecting && ctx.Err() == nil:
			drops = d.connect(ctx, s)
			continue
		case s.CanSubmit():
			if err := d.submit(ctx, s); err != nil {
				s.Exit()
				d.leave(ctx, s)
				return Result{Phase: PhaseSafeExit, View: s.View(), Err: err}
			}
			d.refresh(ctx, s)
			continue
		}

		select {
		case <-ctx.Done():
			s.Exit()
			d.leave(ctx, s)
			return Result{Phase: PhaseSafeExit, View: s.View(), Err: ctx.Err()}
		case <-d.exitReq:
			s.Exit()
		case _, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			d.refresh(ctx, s)
		case <-poll.C:
			d.refresh(ctx, s)
		case err := <-drops:
			d.logger.Warn("media session dropped", "call_id", s.CallID(), "error", err)
			drops = nil
			if s.Phase() == PhaseLive && s.TransportFailed() {
				drops = d.connect(ctx, s)
			}
		case <-tick.C:
		}
	}
}

func (d *Driver) emit(p Phase) {
	select {
	case d.phases <- p:
	default:
	}
}

// connect joins the media session, retrying up to the session's bound while
// the call is still connecting or live. It returns the drop channel of the
// session it established, or nil if it gave up.
func (d *Driver) connect(ctx context.Context, s *Session) <-chan error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		grant, err := d.api.Join(ctx, s.CallID())
		if err == nil {
			var drops <-chan error
			drops, err = d.transport.Connect(ctx, grant)
			if err == nil {
				s.TransportConnected()
				return drops
			}
		}
		d.logger.Warn("media connect failed", "call_id", s.CallID(), "error", err)

		// the call may have ended while we were retrying
		d.refresh(ctx, s)
		if p := s.Phase(); p != PhaseConnecting && p != PhaseLive {
			return nil
		}
		if !s.TransportFailed() {
			return nil
		}
		if !d.sleep(ctx, d.cfg.RetryBackoff) {
			return nil
		}
	}
}

// submit asks for the decision and writes it, retrying transient failures.
// Retries are safe because the server ignores a second write to the slot.
func (d *Driver) submit(ctx context.Context, s *Session) error {
	decision, err := d.decide(ctx, s.View())
	if err != nil {
		return err
	}
	if !decision.Valid() {
		return ErrCannotSubmit
	}

	for attempt := 1; ; attempt++ {
		err = d.api.SubmitDecision(ctx, s.CallID(), decision)
		if err == nil {
			s.MarkSubmitted()
			return nil
		}
		var t temporary
		if errors.As(err, &t) && !t.Temporary() {
			// a definitive rejection: re-read and let the phase decide
			d.refresh(ctx, s)
			if s.Phase() == PhaseSafeExit || s.Phase().Outcome() {
				return nil
			}
			return err
		}
		if attempt >= d.cfg.SubmitRetries {
			return err
		}
		d.logger.Warn("decision submit failed, retrying", "call_id", s.CallID(), "attempt", attempt, "error", err)
		if !d.sleep(ctx, d.cfg.RetryBackoff*time.Duration(attempt)) {
			return ctx.Err()
		}
	}
}

func (d *Driver) refresh(ctx context.Context, s *Session) {
	v, err := d.api.CallState(ctx, s.CallID())
	if err != nil {
		d.logger.Debug("call state refresh failed", "call_id", s.CallID(), "error", err)
		return
	}
	s.Observe(v)
}

// leave tells the server this side left. It runs even after ctx is
// cancelled so the partner is released promptly.
func (d *Driver) leave(ctx context.Context, s *Session) {
	if s.View().Status != call.StatusActive {
		return
	}
	exitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := d.api.ExitCall(exitCtx, s.CallID()); err != nil {
		d.logger.Warn("exit call failed", "call_id", s.CallID(), "error", err)
	}
}

func (d *Driver) sleep(ctx context.Context, wait time.Duration) bool {
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
