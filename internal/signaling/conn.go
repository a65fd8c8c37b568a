package signaling

import (
	"context"
	"errors"
)

// ErrRelayUnavailable wraps every failure to reach the relay, whether on
// publish, subscribe, or receive.
var ErrRelayUnavailable = errors.New("relay unavailable")

// ErrConnClosed is returned by a Conn after Close.
var ErrConnClosed = errors.New("relay connection closed")

// Conn is a single process-wide connection to the relay. Send must be safe
// for concurrent use; Receive is called from one goroutine only.
type Conn interface {
	Send(ctx context.Context, msg Message) error
	Receive(ctx context.Context) (Message, error)
	Close() error
}
