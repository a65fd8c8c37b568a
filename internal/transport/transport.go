// Package transport wraps a pion PeerConnection as the transport a
// negotiation session drives: description and candidate plumbing, local media
// attachment, and notifications for candidates, inbound tracks and
// connectivity changes.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/util"
)

// Observer receives the PeerConnection's notifications. Calls arrive on pion
// goroutines and must not block.
type Observer interface {
	LocalCandidate(candidate *webrtc.ICECandidateInit) // nil: gathering complete
	TrackReceived(stream *media.RemoteStream)
	ConnectionStateChanged(state webrtc.PeerConnectionState)
}

// Options configures New.
type Options struct {
	API        *webrtc.API // nil: NewAPI(nil)
	ICEServers []string    // nil: DefaultICEServers; empty non-nil: host candidates only
}

// Transport owns a single PeerConnection for one negotiation.
type Transport struct {
	pc *webrtc.PeerConnection

	closeOnce sync.Once

	mu      sync.RWMutex
	pcState webrtc.PeerConnectionState
}

// New creates a PeerConnection and wires its callbacks to obs.
func New(obs Observer, opts Options) (*Transport, error) {
	api := opts.API
	if api == nil {
		var err error
		if api, err = NewAPI(nil); err != nil {
			return nil, err
		}
	}

	servers := opts.ICEServers
	if servers == nil {
		servers = DefaultICEServers
	}

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: iceServers(servers)})
	if err != nil {
		return nil, fmt.Errorf("create PeerConnection: %w", err)
	}

	t := &Transport{pc: pc, pcState: webrtc.PeerConnectionStateNew}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			obs.LocalCandidate(nil)
			return
		}
		init := c.ToJSON()
		obs.LocalCandidate(&init)
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		util.LogDebug("inbound %s track %s", track.Kind(), track.ID())
		obs.TrackReceived(&media.RemoteStream{Track: track, Receiver: receiver})
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.mu.Lock()
		t.pcState = state
		t.mu.Unlock()
		obs.ConnectionStateChanged(state)
	})

	return t, nil
}

// ConnectionState returns the last observed PeerConnection state.
func (t *Transport) ConnectionState() webrtc.PeerConnectionState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pcState
}

// Close shuts down the PeerConnection. Safe to call more than once.
func (t *Transport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		err = t.pc.Close()
	})
	return err
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an SDP offer.
func (t *Transport) CreateOffer() (webrtc.SessionDescription, error) {
	return t.pc.CreateOffer(nil)
}

// CreateAnswer generates an SDP answer.
func (t *Transport) CreateAnswer() (webrtc.SessionDescription, error) {
	return t.pc.CreateAnswer(nil)
}

// SetLocalDescription applies the local SDP.
func (t *Transport) SetLocalDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetLocalDescription(sdp)
}

// SetRemoteDescription applies the remote SDP.
func (t *Transport) SetRemoteDescription(sdp webrtc.SessionDescription) error {
	return t.pc.SetRemoteDescription(sdp)
}

// AddICECandidate adds a remote ICE candidate received through signaling.
func (t *Transport) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return t.pc.AddICECandidate(candidate)
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddMedia attaches every track of stream as send-only.
func (t *Transport) AddMedia(stream *media.LocalStream) error {
	if stream == nil || len(stream.Tracks) == 0 {
		return errors.New("no local tracks to attach")
	}
	for _, track := range stream.Tracks {
		sender, err := t.pc.AddTrack(track)
		if err != nil {
			return fmt.Errorf("add track %s: %w", track.ID(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP reads incoming RTCP so interceptors (NACK, reports) keep running.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}
