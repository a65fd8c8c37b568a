// Package session implements the negotiation state machine that takes one
// streamer/viewer pair from role selection to a connected peer transport,
// exchanging descriptions and candidates through a shared relay.
//
// A Session is driven by a single run loop (Run). Relay messages, transport
// notifications and the Begin/Reset/Republish commands are queued onto it and
// applied one at a time, so no two negotiation steps ever overlap and
// messages of one type are applied in arrival order.
package session

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/signaling"
	"github.com/1ureka/livecast/internal/util"
)

// DefaultConnectTimeout bounds the time from Begin to Connected.
const DefaultConnectTimeout = 30 * time.Second

// Config wires a Session to its collaborators.
type Config struct {
	Relay        Relay            // required; shared by every Session in the process
	NewTransport TransportFactory // required
	Media        media.Source     // required for RoleStreamer
	Renderer     media.Renderer   // optional

	// ConnectTimeout fails the negotiation if Connected is not reached in
	// time. Zero means DefaultConnectTimeout, negative disables it.
	ConnectTimeout time.Duration

	// OnStateChange is called on the run loop after every transition, and
	// with an unchanged state when a non-fatal error is reported. It must not
	// call Begin, Reset or Republish: those wait on the run loop and would
	// deadlock. Hand off to another goroutine instead.
	OnStateChange func(state State, err error)
}

// Session negotiates one point-to-point connection.
type Session struct {
	cfg Config
	id  string
	log *util.Logger

	queue   *eventQueue
	epoch   atomic.Uint64
	running atomic.Bool
	done    chan struct{}

	// Owned by the run loop.
	role      Role
	local     *webrtc.SessionDescription
	remote    *webrtc.SessionDescription
	pending   []webrtc.ICECandidateInit
	transport Transport
	sub       *signaling.Subscription
	gathered  bool
	linkUp    bool // transport reported connected before ConnectedPending
	timer     *time.Timer

	mu      sync.Mutex
	state   State
	curRole Role
	err     error
	changed chan struct{} // closed and replaced on every transition
}

var _ signaling.Handler = (*Session)(nil)

// New creates an idle Session. Call Run before Begin.
func New(cfg Config) *Session {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	id := uuid.NewString()
	return &Session{
		cfg:     cfg,
		id:      id,
		log:     util.NewLogger(id[:8]),
		queue:   newEventQueue(),
		done:    make(chan struct{}),
		changed: make(chan struct{}),
	}
}

// ID returns the session's unique id.
func (s *Session) ID() string { return s.id }

// ---------------------------------------------------------------------------
// Run loop
// ---------------------------------------------------------------------------

// Run applies queued events until ctx is cancelled. On return the session is
// unsubscribed from the relay and its transport released; events still
// queued are discarded. Run may be called only once.
func (s *Session) Run(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return errors.New("session: Run called twice")
	}
	defer close(s.done)
	defer s.teardown()

	for {
		select {
		case <-s.queue.signal:
			for {
				ev, ok := s.queue.pop()
				if !ok {
					break
				}
				ep := s.epoch.Load()
				if ctx.Err() != nil || (!ev.always && ev.epoch != ep) {
					ev.drop()
					continue
				}
				ev.apply(ctx, ep)
			}
		case <-ctx.Done():
			return nil
		}
	}
}

func (s *Session) teardown() {
	s.epoch.Add(1)
	s.reset()
	for {
		ev, ok := s.queue.pop()
		if !ok {
			return
		}
		ev.drop()
	}
}

// push queues fn for the given epoch.
func (s *Session) push(epoch uint64, fn func(ctx context.Context, ep uint64)) {
	s.queue.push(event{epoch: epoch, apply: fn})
}

// call queues fn on the current epoch and waits for its result.
func (s *Session) call(ctx context.Context, fn func(ctx context.Context, ep uint64) error) error {
	reply := make(chan error, 1)
	s.queue.push(event{
		epoch:   s.epoch.Load(),
		apply:   func(ctx context.Context, ep uint64) { reply <- fn(ctx, ep) },
		discard: func() { reply <- ErrAborted },
	})

	select {
	case err := <-reply:
		return err
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// aborted reports whether a step that just returned belongs to a negotiation
// that has since been reset or torn down; its result must be discarded.
func (s *Session) aborted(ctx context.Context, ep uint64) bool {
	return ctx.Err() != nil || s.epoch.Load() != ep
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

// Begin starts the negotiation in the given role. It returns once the first
// step has run: the offer published (Streamer) or the transport ready for an
// offer (Viewer). A role may be chosen once per negotiation; Reset clears it.
func (s *Session) Begin(ctx context.Context, role Role) error {
	return s.call(ctx, func(ctx context.Context, ep uint64) error {
		return s.begin(ctx, ep, role)
	})
}

// Reset abandons the current negotiation: it unsubscribes from the relay,
// releases the transport, and returns the session to Idle with no role.
// Events queued before the call are discarded. Reset is idempotent.
func (s *Session) Reset() {
	ep := s.epoch.Add(1)
	reply := make(chan struct{})
	s.queue.push(event{
		epoch:  ep,
		always: true,
		apply: func(context.Context, uint64) {
			s.reset()
			close(reply)
		},
		discard: func() { close(reply) },
	})

	select {
	case <-reply:
	case <-s.done:
	}
}

// Republish sends the local description again. It is meant for recovering
// from a relay failure that left the session in OfferSent or AnswerCreated.
func (s *Session) Republish(ctx context.Context) error {
	return s.call(ctx, func(ctx context.Context, ep uint64) error {
		switch st := s.State(); st {
		case StateOfferSent, StateAnswerCreated:
			return s.publishLocal(ctx)
		default:
			return fmt.Errorf("%w: nothing to republish in %s", ErrInvalidTransition, st)
		}
	})
}

// ---------------------------------------------------------------------------
// Relay handlers (signaling.Handler)
// ---------------------------------------------------------------------------

func (s *Session) HandleOffer(offer webrtc.SessionDescription) {
	s.push(s.epoch.Load(), func(ctx context.Context, ep uint64) { s.onOffer(ctx, ep, offer) })
}

func (s *Session) HandleAnswer(answer webrtc.SessionDescription) {
	s.push(s.epoch.Load(), func(ctx context.Context, ep uint64) { s.onAnswer(ctx, ep, answer) })
}

func (s *Session) HandleCandidate(candidate webrtc.ICECandidateInit) {
	s.push(s.epoch.Load(), func(ctx context.Context, ep uint64) { s.onRemoteCandidate(candidate) })
}

// ---------------------------------------------------------------------------
// Observation
// ---------------------------------------------------------------------------

// State returns the current negotiation state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Role returns the role chosen by Begin, or RoleUnassigned.
func (s *Session) Role() Role {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.curRole
}

// Err returns the error that moved the session to Failed, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// WaitFor blocks until the session is in one of the given states.
func (s *Session) WaitFor(ctx context.Context, states ...State) (State, error) {
	for {
		s.mu.Lock()
		st, changed := s.state, s.changed
		s.mu.Unlock()

		if slices.Contains(states, st) {
			return st, nil
		}

		select {
		case <-changed:
		case <-s.done:
			return s.State(), ErrClosed
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (s *Session) setState(st State, err error) {
	s.mu.Lock()
	prev := s.state
	s.state = st
	s.curRole = s.role
	if st == StateFailed {
		s.err = err
	} else if st == StateIdle {
		s.err = nil
	}
	close(s.changed)
	s.changed = make(chan struct{})
	s.mu.Unlock()

	if prev != st {
		s.log.Debug("%s -> %s", prev, st)
	}
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(st, err)
	}
}

// report surfaces a non-fatal error without changing state.
func (s *Session) report(err error) {
	s.log.Warn("%v", err)
	if s.cfg.OnStateChange != nil {
		s.cfg.OnStateChange(s.State(), err)
	}
}
