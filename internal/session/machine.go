package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/signaling"
)

// errStale is returned internally when a step finished after its
// negotiation was reset; the caller drops it without touching state.
var errStale = errors.New("stale negotiation step")

// ---------------------------------------------------------------------------
// Begin
// ---------------------------------------------------------------------------

func (s *Session) begin(ctx context.Context, ep uint64, role Role) error {
	if role != RoleStreamer && role != RoleViewer {
		return fmt.Errorf("%w: cannot begin as %s", ErrInvalidTransition, role)
	}
	if s.role != RoleUnassigned || s.State() != StateIdle {
		return fmt.Errorf("%w: begin(%s) while %s as %s", ErrInvalidTransition, role, s.State(), s.role)
	}
	if role == RoleStreamer && s.cfg.Media == nil {
		return fmt.Errorf("%w: streamer needs a media source", ErrInvalidTransition)
	}

	sub, err := s.cfg.Relay.Subscribe(s)
	if err != nil {
		if !errors.Is(err, ErrRelayUnavailable) {
			err = fmt.Errorf("%w: subscribe: %v", ErrRelayUnavailable, err)
		}
		s.report(err)
		return err
	}
	s.sub = sub
	s.role = role
	s.startTimer(ep)
	s.log.Info("negotiating as %s", role)

	if role == RoleStreamer {
		return s.beginStreamer(ctx, ep)
	}
	return s.beginViewer(ep)
}

func (s *Session) beginStreamer(ctx context.Context, ep uint64) error {
	stream, err := s.cfg.Media.Acquire(ctx)
	if s.aborted(ctx, ep) {
		return ErrAborted
	}
	if err != nil {
		return s.fail(fmt.Errorf("acquire local media: %w", err))
	}
	if s.cfg.Renderer != nil {
		s.cfg.Renderer.Bind(stream)
	}

	tr, err := s.cfg.NewTransport(RoleStreamer, &observer{s: s, epoch: ep})
	if err != nil {
		return s.fail(fmt.Errorf("%w: create transport: %v", ErrTransportFailure, err))
	}
	s.transport = tr

	if err := tr.AddMedia(stream); err != nil {
		return s.fail(fmt.Errorf("attach local media: %w", err))
	}
	s.setState(StateOfferCreated, nil)

	offer, err := tr.CreateOffer()
	if s.aborted(ctx, ep) {
		return ErrAborted
	}
	if err != nil {
		return s.fail(fmt.Errorf("create offer: %w", err))
	}
	if err := s.applyLocal(ctx, ep, offer); err != nil {
		return s.failStep(err)
	}
	s.setState(StateOfferSent, nil)

	return s.publishLocal(ctx)
}

func (s *Session) beginViewer(ep uint64) error {
	tr, err := s.cfg.NewTransport(RoleViewer, &observer{s: s, epoch: ep})
	if err != nil {
		return s.fail(fmt.Errorf("%w: create transport: %v", ErrTransportFailure, err))
	}
	s.transport = tr
	s.setState(StateAwaitingOffer, nil)
	return nil
}

// ---------------------------------------------------------------------------
// Offer / answer
// ---------------------------------------------------------------------------

func (s *Session) onOffer(ctx context.Context, ep uint64, offer webrtc.SessionDescription) {
	if s.role != RoleViewer {
		s.log.Debug("ignoring offer as %s", s.role)
		return
	}
	if !s.acceptDescription("offer", StateAwaitingOffer) {
		return
	}

	if err := s.applyRemote(ctx, ep, offer); err != nil {
		s.failStep(err)
		return
	}

	answer, err := s.transport.CreateAnswer()
	if s.aborted(ctx, ep) {
		return
	}
	if err != nil {
		s.fail(fmt.Errorf("create answer: %w", err))
		return
	}
	if err := s.applyLocal(ctx, ep, answer); err != nil {
		s.failStep(err)
		return
	}
	s.setState(StateAnswerCreated, nil)

	_ = s.publishLocal(ctx)
}

func (s *Session) onAnswer(ctx context.Context, ep uint64, answer webrtc.SessionDescription) {
	if s.role != RoleStreamer {
		s.log.Debug("ignoring answer as %s", s.role)
		return
	}
	if !s.acceptDescription("answer", StateAwaitingAnswer) {
		return
	}

	if err := s.applyRemote(ctx, ep, answer); err != nil {
		s.failStep(err)
		return
	}
	s.enterConnectedPending()
}

// acceptDescription checks an inbound description whose role already
// matched. It fails the session on a second remote description or a wrong
// state, and returns false when processing must stop.
func (s *Session) acceptDescription(kind string, want State) bool {
	st := s.State()
	switch {
	case st == StateFailed:
		s.log.Debug("ignoring %s: session failed", kind)
		return false
	case s.remote != nil:
		s.fail(fmt.Errorf("%w: %s received but remote description already set", ErrInvalidTransition, kind))
		return false
	case st != want:
		s.fail(fmt.Errorf("%w: %s received in state %s", ErrInvalidTransition, kind, st))
		return false
	}
	return true
}

// applyLocal sets the local description once per negotiation.
func (s *Session) applyLocal(ctx context.Context, ep uint64, desc webrtc.SessionDescription) error {
	if s.local != nil {
		return fmt.Errorf("%w: local description already set", ErrInvalidTransition)
	}
	err := s.transport.SetLocalDescription(desc)
	if s.aborted(ctx, ep) {
		return errStale
	}
	if err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	s.local = &desc
	return nil
}

// applyRemote sets the remote description once per negotiation and then
// replays every buffered candidate in arrival order.
func (s *Session) applyRemote(ctx context.Context, ep uint64, desc webrtc.SessionDescription) error {
	if s.remote != nil {
		return fmt.Errorf("%w: remote description already set", ErrInvalidTransition)
	}
	err := s.transport.SetRemoteDescription(desc)
	if s.aborted(ctx, ep) {
		return errStale
	}
	if err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	s.remote = &desc

	pending := s.pending
	s.pending = nil
	if len(pending) > 0 {
		s.log.Debug("applying %d buffered candidates", len(pending))
	}
	for _, c := range pending {
		s.addCandidate(c)
	}
	return nil
}

// publishLocal publishes the local description and advances past the
// publish step. On relay failure the state is kept so Republish can retry.
func (s *Session) publishLocal(ctx context.Context) error {
	var msg signaling.Message
	var next State
	switch s.State() {
	case StateOfferSent:
		msg, next = signaling.OfferMessage(*s.local), StateAwaitingAnswer
	case StateAnswerCreated:
		msg, next = signaling.AnswerMessage(*s.local), StateConnectedPending
	default:
		return fmt.Errorf("%w: publish in state %s", ErrInvalidTransition, s.State())
	}

	if err := s.cfg.Relay.Publish(ctx, msg); err != nil {
		if !errors.Is(err, ErrRelayUnavailable) {
			err = fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
		}
		s.report(fmt.Errorf("publish %s: %w", msg.Type, err))
		return err
	}

	if next == StateConnectedPending {
		s.enterConnectedPending()
	} else {
		s.setState(next, nil)
	}
	return nil
}

func (s *Session) enterConnectedPending() {
	s.setState(StateConnectedPending, nil)
	if s.linkUp {
		s.connected()
	}
}

func (s *Session) connected() {
	s.stopTimer()
	s.setState(StateConnected, nil)
	s.log.Info("connected as %s", s.role)
}

// ---------------------------------------------------------------------------
// Candidates
// ---------------------------------------------------------------------------

func (s *Session) onRemoteCandidate(c webrtc.ICECandidateInit) {
	if s.transport == nil {
		s.log.Debug("ignoring candidate: no negotiation in progress")
		return
	}
	if s.remote == nil {
		s.pending = append(s.pending, c)
		return
	}
	s.addCandidate(c)
}

// addCandidate applies one remote candidate; a rejection is only logged.
func (s *Session) addCandidate(c webrtc.ICECandidateInit) {
	if err := s.transport.AddICECandidate(c); err != nil {
		s.log.Warn("%v", fmt.Errorf("%w: %q: %v", ErrCandidateRejected, c.Candidate, err))
	}
}

func (s *Session) onLocalCandidate(ctx context.Context, c *webrtc.ICECandidateInit) {
	if c == nil {
		s.gathered = true
		s.log.Debug("candidate gathering complete")
		return
	}
	if s.gathered || s.State() == StateFailed {
		return
	}
	if err := s.cfg.Relay.Publish(ctx, signaling.CandidateMessage(*c)); err != nil {
		s.log.Warn("publish candidate: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Transport notifications
// ---------------------------------------------------------------------------

func (s *Session) onTrack(rs *media.RemoteStream) {
	if s.role != RoleViewer {
		s.log.Debug("ignoring inbound track as %s", s.role)
		return
	}
	if s.cfg.Renderer != nil {
		s.cfg.Renderer.Bind(rs)
	}
}

func (s *Session) onConnectionState(st webrtc.PeerConnectionState) {
	s.log.Debug("transport state: %s", st)

	switch st {
	case webrtc.PeerConnectionStateConnected:
		s.linkUp = true
		if s.State() == StateConnectedPending {
			s.connected()
		}
	case webrtc.PeerConnectionStateDisconnected:
		s.linkUp = false
		s.log.Warn("transport disconnected, waiting for recovery")
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.linkUp = false
		err := fmt.Errorf("%w: connection %s", ErrTransportFailure, st)
		if s.State().Terminal() {
			s.report(err)
			return
		}
		s.fail(err)
	}
}

func (s *Session) startTimer(ep uint64) {
	if s.cfg.ConnectTimeout <= 0 {
		return
	}
	timeout := s.cfg.ConnectTimeout
	s.timer = time.AfterFunc(timeout, func() {
		s.push(ep, func(ctx context.Context, ep uint64) {
			if s.State().Terminal() {
				return
			}
			s.fail(fmt.Errorf("%w: not connected after %s", ErrTransportFailure, timeout))
		})
	})
}

func (s *Session) stopTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// ---------------------------------------------------------------------------
// Failure and reset
// ---------------------------------------------------------------------------

// fail moves the session to Failed and returns err for convenience. The
// transport is kept until Reset.
func (s *Session) fail(err error) error {
	if s.State() == StateFailed {
		return err
	}
	s.stopTimer()
	s.log.Error("negotiation failed: %v", err)
	s.setState(StateFailed, err)
	return err
}

// failStep is fail for errors from applyLocal/applyRemote, which may
// report a stale step that must not touch state.
func (s *Session) failStep(err error) error {
	if errors.Is(err, errStale) {
		return ErrAborted
	}
	return s.fail(err)
}

func (s *Session) reset() {
	s.stopTimer()
	s.sub.Unsubscribe()
	s.sub = nil

	if s.transport != nil {
		if err := s.transport.Close(); err != nil {
			s.log.Debug("close transport: %v", err)
		}
		s.transport = nil
	}
	if src, ok := s.cfg.Media.(interface{ Stop() }); ok && s.role == RoleStreamer {
		src.Stop()
	}

	s.local = nil
	s.remote = nil
	s.pending = nil
	s.gathered = false
	s.linkUp = false

	wasActive := s.role != RoleUnassigned || s.State() != StateIdle
	s.role = RoleUnassigned
	if wasActive {
		s.setState(StateIdle, nil)
	}
}
