package callsession

import (
	"errors"
	"sync"
	"time"

	"github.com/eleven-am/spark-backend/internal/call"
	"github.com/eleven-am/spark-backend/internal/shared"
)

type Phase string

const (
	PhaseConnecting      Phase = "connecting"
	PhaseLive            Phase = "live"
	PhaseDeciding        Phase = "deciding"
	PhaseAwaitingPartner Phase = "awaiting_partner"
	PhaseMutualSpark     Phase = "mutual_spark"
	PhaseNoSpark         Phase = "no_spark"
	PhaseComplete        Phase = "complete"
	PhaseSafeExit        Phase = "safe_exit"
)

// Terminal reports whether no further transition can leave p.
func (p Phase) Terminal() bool {
	return p == PhaseComplete || p == PhaseSafeExit
}

// Outcome reports whether p shows a resolved call.
func (p Phase) Outcome() bool {
	return p == PhaseMutualSpark || p == PhaseNoSpark
}

const (
	DefaultSkewTolerance       = 3 * time.Second
	DefaultMaxTransportRetries = 3
)

var (
	ErrTransportFailed = errors.New("media transport failed")
	ErrCannotSubmit    = errors.New("decisions are not open")
)

type Config struct {
	SkewTolerance       time.Duration
	MaxTransportRetries int
}

func DefaultConfig() Config {
	return Config{
		SkewTolerance:       DefaultSkewTolerance,
		MaxTransportRetries: DefaultMaxTransportRetries,
	}
}

// Session is the client-side view of one call. The phase is never stored:
// it is derived on demand from the latest server snapshot plus the few
// facts only this client knows (transport up, local submit, local exit).
type Session struct {
	mu    sync.Mutex
	cfg   Config
	clock shared.Clock

	view              *call.View
	connected         bool
	liveAt            time.Time
	transportFailures int
	submitted         bool
	exited            bool
	exitErr           error
	acknowledged      bool
}

func New(view *call.View, cfg Config, clock shared.Clock) *Session {
	if cfg.SkewTolerance < 0 {
		cfg.SkewTolerance = 0
	}
	if cfg.MaxTransportRetries <= 0 {
		cfg.MaxTransportRetries = DefaultMaxTransportRetries
	}
	return &Session{cfg: cfg, clock: clock, view: view}
}

func (s *Session) CallID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view.CallID
}

func (s *Session) View() *call.View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view
}

// Observe replaces the server snapshot. Snapshots for other calls are ignored.
func (s *Session) Observe(v *call.View) {
	if v == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if v.CallID != s.view.CallID {
		return
	}
	s.view = v
}

// TransportConnected starts the countdown the first time the media session
// reports both sides connected. Reconnects keep the original deadline.
func (s *Session) TransportConnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	s.transportFailures = 0
	if s.liveAt.IsZero() {
		s.liveAt = s.clock.Now()
	}
}

// TransportFailed records a failed or dropped media session and reports
// whether another attempt is allowed. Once the bound is exceeded the
// session moves to safe_exit.
func (s *Session) TransportFailed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.transportFailures++
	if s.transportFailures > s.cfg.MaxTransportRetries {
		s.exited = true
		s.exitErr = ErrTransportFailed
		return false
	}
	return true
}

// Deadline is when the live countdown ends, or zero before the transport
// first connects.
func (s *Session) Deadline() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deadlineLocked()
}

func (s *Session) deadlineLocked() time.Time {
	if s.liveAt.IsZero() {
		return time.Time{}
	}
	return s.liveAt.Add(time.Duration(s.view.DurationBudgetSeconds) * time.Second)
}

func (s *Session) Phase() Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phaseLocked()
}

func (s *Session) phaseLocked() Phase {
	if s.exited {
		return PhaseSafeExit
	}

	switch s.view.Outcome {
	case call.OutcomeMutualSpark, call.OutcomeNoSpark:
		if s.acknowledged {
			return PhaseComplete
		}
		if s.view.Outcome == call.OutcomeMutualSpark {
			return PhaseMutualSpark
		}
		return PhaseNoSpark
	case call.OutcomeEnded:
		return PhaseSafeExit
	}

	if s.submitted || s.view.YourDecisionSet {
		return PhaseAwaitingPartner
	}
	if s.liveAt.IsZero() {
		return PhaseConnecting
	}
	if s.clock.Now().Before(s.deadlineLocked()) {
		return PhaseLive
	}
	return PhaseDeciding
}

// CanSubmit is true while deciding, and also in the last moments of live
// so a client running slightly ahead of its partner is not rejected.
func (s *Session) CanSubmit() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.phaseLocked() {
	case PhaseDeciding:
		return true
	case PhaseLive:
		return !s.clock.Now().Before(s.deadlineLocked().Add(-s.cfg.SkewTolerance))
	}
	return false
}

// MarkSubmitted moves this side to awaiting_partner whatever the partner
// has done.
func (s *Session) MarkSubmitted() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.submitted = true
}

func (s *Session) Exit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phaseLocked().Terminal() {
		return
	}
	s.exited = true
}

// ExitErr is the reason the session was forced out, or nil when the user
// left or the call ended on the server.
func (s *Session) ExitErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exitErr
}

// Acknowledge moves a resolved session to complete once the outcome has
// been shown.
func (s *Session) Acknowledge() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phaseLocked().Outcome() {
		s.acknowledged = true
	}
}

func (s *Session) Terminal() bool {
	return s.Phase().Terminal()
}
