package session

import (
	"errors"

	"github.com/1ureka/livecast/internal/signaling"
)

var (
	// ErrInvalidTransition marks a state-machine violation, such as setting a
	// description twice or receiving an offer/answer in the wrong state.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrCandidateRejected marks a single candidate that could not be applied.
	// It is logged and never fails the session.
	ErrCandidateRejected = errors.New("candidate rejected")

	// ErrTransportFailure marks a connectivity failure or connect timeout.
	ErrTransportFailure = errors.New("transport failure")

	// ErrRelayUnavailable marks a failed publish or subscribe. The session
	// keeps its state; retrying is up to the caller.
	ErrRelayUnavailable = signaling.ErrRelayUnavailable

	// ErrClosed is returned by calls made after Run has returned.
	ErrClosed = errors.New("session closed")

	// ErrAborted is returned by Begin when a Reset overtook it.
	ErrAborted = errors.New("negotiation aborted")
)
