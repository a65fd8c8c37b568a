package signaling

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/livecast/internal/util"
)

// writeTimeout bounds a single relay write when ctx carries no deadline.
const writeTimeout = 5 * time.Second

// wsConn is the client side of the WebSocket relay.
type wsConn struct {
	conn *websocket.Conn

	mu        sync.Mutex // serializes writes
	closeOnce sync.Once
	closed    chan struct{}
}

var _ Conn = (*wsConn)(nil)

// Dial connects to a WebSocket relay, e.g. ws://127.0.0.1:8080/ws.
func Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to %s: %v", ErrRelayUnavailable, url, err)
	}
	return newWSConn(conn), nil
}

func newWSConn(conn *websocket.Conn) *wsConn {
	return &wsConn{conn: conn, closed: make(chan struct{})}
}

// Send writes a message as one JSON text frame, guarded by a mutex.
func (c *wsConn) Send(ctx context.Context, msg Message) error {
	select {
	case <-c.closed:
		return ErrConnClosed
	default:
	}

	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeTimeout)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	return nil
}

// Receive blocks until the next well-formed message arrives. Frames that do
// not decode are logged and skipped. It is unblocked by Close, not by ctx;
// callers that need cancellation close the connection.
func (c *wsConn) Receive(ctx context.Context) (Message, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return Message{}, ErrConnClosed
			default:
			}
			return Message{}, fmt.Errorf("%w: read: %v", ErrRelayUnavailable, err)
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			util.LogWarning("dropping undecodable relay frame: %v", err)
			continue
		}
		return msg, nil
	}
}

// Close sends a close frame (best effort) and closes the socket.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		err = c.conn.Close()
	})
	return err
}
