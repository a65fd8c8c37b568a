package signaling

import (
	"context"
	"sync"
)

// MemoryHub is an in-process relay: every message sent by one joined
// connection is delivered to every other joined connection, mirroring the
// broadcast behaviour of the WebSocket relay server.
type MemoryHub struct {
	mu    sync.RWMutex
	conns map[*memoryConn]struct{}
}

// NewMemoryHub creates an empty hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{conns: make(map[*memoryConn]struct{})}
}

// Join attaches a new connection to the hub.
func (h *MemoryHub) Join() Conn {
	c := &memoryConn{
		hub:    h,
		notify: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	h.mu.Lock()
	h.conns[c] = struct{}{}
	h.mu.Unlock()
	return c
}

func (h *MemoryHub) broadcast(from *memoryConn, msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.conns {
		if c != from {
			c.push(msg)
		}
	}
}

func (h *MemoryHub) leave(c *memoryConn) {
	h.mu.Lock()
	delete(h.conns, c)
	h.mu.Unlock()
}

// memoryConn keeps an unbounded inbox so a slow reader never loses messages.
type memoryConn struct {
	hub *MemoryHub

	mu     sync.Mutex
	inbox  []Message
	notify chan struct{}

	closeOnce sync.Once
	closed    chan struct{}
}

func (c *memoryConn) push(msg Message) {
	c.mu.Lock()
	c.inbox = append(c.inbox, msg)
	c.mu.Unlock()

	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *memoryConn) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	c.hub.broadcast(c, msg)
	return nil
}

func (c *memoryConn) Receive(ctx context.Context) (Message, error) {
	for {
		c.mu.Lock()
		if len(c.inbox) > 0 {
			msg := c.inbox[0]
			c.inbox = c.inbox[1:]
			c.mu.Unlock()
			return msg, nil
		}
		c.mu.Unlock()

		select {
		case <-c.notify:
		case <-c.closed:
			return Message{}, ErrConnClosed
		case <-ctx.Done():
			return Message{}, ctx.Err()
		}
	}
}

func (c *memoryConn) Close() error {
	c.closeOnce.Do(func() {
		c.hub.leave(c)
		close(c.closed)
	})
	return nil
}
