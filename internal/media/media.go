// Package media holds the opaque media handles that cross the negotiation
// layer, plus the capture/render collaborators it calls into.
package media

import (
	"context"

	"github.com/pion/webrtc/v4"
)

// Stream is an opaque handle to a set of media tracks. The negotiation layer
// only passes it between the Source, the transport and the Renderer.
type Stream interface {
	StreamID() string
}

// LocalStream is captured media to be attached to an outgoing session.
type LocalStream struct {
	ID     string
	Tracks []webrtc.TrackLocal
}

func (s *LocalStream) StreamID() string { return s.ID }

// RemoteStream is inbound media delivered by the transport.
type RemoteStream struct {
	Track    *webrtc.TrackRemote
	Receiver *webrtc.RTPReceiver
}

func (s *RemoteStream) StreamID() string {
	if s.Track == nil {
		return ""
	}
	return s.Track.StreamID()
}

// Source acquires local media. Used only by the streaming side.
type Source interface {
	Acquire(ctx context.Context) (*LocalStream, error)
}

// Renderer presents a stream: remote media on the viewing side, the local
// self-preview on the streaming side.
type Renderer interface {
	Bind(s Stream)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(Stream)

func (f RendererFunc) Bind(s Stream) { f(s) }
