package session

import (
	"context"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/signaling"
)

// Transport is the peer-transport primitive a Session drives. Descriptions and
// candidates are passed through untouched.
type Transport interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
	AddMedia(stream *media.LocalStream) error
	Close() error
}

// Observer receives transport notifications. The Session hands one to the
// TransportFactory; every call is queued onto the Session's run loop.
type Observer interface {
	// LocalCandidate is called for each gathered candidate; nil means
	// gathering is complete.
	LocalCandidate(candidate *webrtc.ICECandidateInit)
	TrackReceived(stream *media.RemoteStream)
	ConnectionStateChanged(state webrtc.PeerConnectionState)
}

// TransportFactory creates the Transport for one negotiation.
type TransportFactory func(role Role, obs Observer) (Transport, error)

// Relay is the part of the signaling Dispatcher a Session uses.
type Relay interface {
	Subscribe(h signaling.Handler) (*signaling.Subscription, error)
	Publish(ctx context.Context, msg signaling.Message) error
}

var _ Relay = (*signaling.Dispatcher)(nil)

// observer binds transport notifications to the negotiation epoch they were
// created in, so notifications from a released transport are discarded.
type observer struct {
	s     *Session
	epoch uint64
}

func (o *observer) LocalCandidate(c *webrtc.ICECandidateInit) {
	o.s.push(o.epoch, func(ctx context.Context, ep uint64) { o.s.onLocalCandidate(ctx, c) })
}

func (o *observer) TrackReceived(rs *media.RemoteStream) {
	o.s.push(o.epoch, func(ctx context.Context, ep uint64) { o.s.onTrack(rs) })
}

func (o *observer) ConnectionStateChanged(st webrtc.PeerConnectionState) {
	o.s.push(o.epoch, func(ctx context.Context, ep uint64) { o.s.onConnectionState(st) })
}
