// Package signaling carries offer/answer/candidate messages between two peers
// over a shared relay. It defines the wire format, relay connections
// (WebSocket and in-memory), the broadcast relay server, and the Dispatcher
// that routes inbound messages to subscribed sessions.
package signaling

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

// MessageType identifies the kind of signaling message.
type MessageType string

const (
	MsgTypeOffer     MessageType = "offer"
	MsgTypeAnswer    MessageType = "answer"
	MsgTypeCandidate MessageType = "ice-candidate"
)

// ErrMalformedMessage is returned by Validate for messages whose payload does
// not match their type.
var ErrMalformedMessage = errors.New("malformed signaling message")

// Message is the JSON structure exchanged over the relay. Exactly one payload
// field is set, matching Type. Payloads are forwarded verbatim.
type Message struct {
	Type      MessageType                `json:"type"`
	Offer     *webrtc.SessionDescription `json:"offer,omitempty"`
	Answer    *webrtc.SessionDescription `json:"answer,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
	From      string                     `json:"from,omitempty"` // sender peer id, used to drop echoes
}

// OfferMessage wraps an offer description.
func OfferMessage(offer webrtc.SessionDescription) Message {
	return Message{Type: MsgTypeOffer, Offer: &offer}
}

// AnswerMessage wraps an answer description.
func AnswerMessage(answer webrtc.SessionDescription) Message {
	return Message{Type: MsgTypeAnswer, Answer: &answer}
}

// CandidateMessage wraps a connectivity candidate.
func CandidateMessage(candidate webrtc.ICECandidateInit) Message {
	return Message{Type: MsgTypeCandidate, Candidate: &candidate}
}

// Validate reports whether the payload required by Type is present.
func (m Message) Validate() error {
	switch m.Type {
	case MsgTypeOffer:
		if m.Offer == nil {
			return fmt.Errorf("%w: offer without description", ErrMalformedMessage)
		}
	case MsgTypeAnswer:
		if m.Answer == nil {
			return fmt.Errorf("%w: answer without description", ErrMalformedMessage)
		}
	case MsgTypeCandidate:
		if m.Candidate == nil {
			return fmt.Errorf("%w: candidate without data", ErrMalformedMessage)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrMalformedMessage, m.Type)
	}
	return nil
}
