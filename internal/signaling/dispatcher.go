package signaling

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/util"
)

// ErrAlreadySubscribed is returned when a handler subscribes twice without
// releasing its first subscription.
var ErrAlreadySubscribed = errors.New("handler already subscribed")

// Handler receives inbound relay messages, one method per message type.
// Implementations must return quickly; they are called on the relay read loop.
// Handlers are compared by identity, so they should be pointer types.
type Handler interface {
	HandleOffer(offer webrtc.SessionDescription)
	HandleAnswer(answer webrtc.SessionDescription)
	HandleCandidate(candidate webrtc.ICECandidateInit)
}

// Dispatcher owns the process-wide relay connection. It stamps outbound
// messages with its peer id, drops inbound echoes of its own messages, and
// routes everything else to the subscribed handlers by type.
type Dispatcher struct {
	conn Conn
	id   string

	mu   sync.Mutex
	subs map[*Subscription]struct{}
	err  error // set once the read loop has failed
}

// Subscription is the deregistration handle returned by Subscribe.
type Subscription struct {
	d    *Dispatcher
	h    Handler
	once sync.Once
}

// NewDispatcher wraps conn. The dispatcher does not read from conn until Run
// is called.
func NewDispatcher(conn Conn) *Dispatcher {
	return &Dispatcher{
		conn: conn,
		id:   uuid.NewString(),
		subs: make(map[*Subscription]struct{}),
	}
}

// ID returns the peer id stamped on outbound messages.
func (d *Dispatcher) ID() string {
	return d.id
}

// Subscribe registers h for offer, answer and candidate messages.
func (d *Dispatcher) Subscribe(h Handler) (*Subscription, error) {
	if h == nil {
		return nil, errors.New("nil handler")
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.err != nil {
		return nil, d.err
	}
	for s := range d.subs {
		if s.h == h {
			return nil, ErrAlreadySubscribed
		}
	}

	s := &Subscription{d: d, h: h}
	d.subs[s] = struct{}{}
	return s, nil
}

// Unsubscribe releases the subscription. It is safe to call more than once
// and on a nil Subscription.
func (s *Subscription) Unsubscribe() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		s.d.mu.Lock()
		delete(s.d.subs, s)
		s.d.mu.Unlock()
	})
}

// Publish sends msg to the relay. Delivery is not acknowledged.
func (d *Dispatcher) Publish(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	msg.From = d.id

	if err := d.conn.Send(ctx, msg); err != nil {
		if errors.Is(err, ErrRelayUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return nil
}

// Deliver routes one inbound message to every subscriber. Malformed messages
// and echoes of this dispatcher's own messages are dropped.
func (d *Dispatcher) Deliver(msg Message) {
	if err := msg.Validate(); err != nil {
		util.LogWarning("dropping relay message: %v", err)
		return
	}
	if msg.From != "" && msg.From == d.id {
		return
	}

	d.mu.Lock()
	handlers := make([]Handler, 0, len(d.subs))
	for s := range d.subs {
		handlers = append(handlers, s.h)
	}
	d.mu.Unlock()

	for _, h := range handlers {
		switch msg.Type {
		case MsgTypeOffer:
			h.HandleOffer(*msg.Offer)
		case MsgTypeAnswer:
			h.HandleAnswer(*msg.Answer)
		case MsgTypeCandidate:
			h.HandleCandidate(*msg.Candidate)
		}
	}
}

// Run pumps inbound messages into Deliver until ctx is cancelled (returns nil)
// or the connection fails (returns the error, and later Subscribe calls fail
// with it). Run closes the connection when it returns.
func (d *Dispatcher) Run(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { d.conn.Close() })
	defer stop()
	defer d.conn.Close()

	for {
		msg, err := d.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil {
				err = fmt.Errorf("%w: %v", ErrRelayUnavailable, ErrConnClosed)
				d.fail(err)
				return nil
			}
			if !errors.Is(err, ErrRelayUnavailable) {
				err = fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
			}
			d.fail(err)
			return err
		}
		d.Deliver(msg)
	}
}

func (d *Dispatcher) fail(err error) {
	d.mu.Lock()
	if d.err == nil {
		d.err = err
	}
	d.mu.Unlock()
}
