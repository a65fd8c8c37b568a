package signaling

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/livecast/internal/util"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// maxFrameSize caps a single relayed frame; SDP with many candidates stays
// well below this.
const maxFrameSize = 64 * 1024

// Server is a WebSocket relay that re-broadcasts every text frame it receives
// to every other connected client. It never inspects message contents.
type Server struct {
	listener net.Listener
	srv      *http.Server

	mu      sync.Mutex
	clients map[*relayClient]struct{}
}

type relayClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // serializes writes
}

// NewServer creates a relay server; call Start to begin listening.
func NewServer() *Server {
	return &Server{clients: make(map[*relayClient]struct{})}
}

// Start listens on addr (":0" picks a free port) and serves /ws and /healthz
// in the background. Returns the bound address.
func (s *Server) Start(addr string) (string, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("failed to start relay server: %w", err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	s.srv = &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := s.srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			util.LogError("relay server stopped: %v", err)
		}
	}()

	return listener.Addr().String(), nil
}

// Handler exposes the relay endpoint for embedding in another mux or httptest.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	conn.SetReadLimit(maxFrameSize)

	c := &relayClient{conn: conn}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	n := len(s.clients)
	s.mu.Unlock()
	util.LogInfo("relay client connected from %s (%d online)", r.RemoteAddr, n)

	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		s.mu.Unlock()
		conn.Close()
		util.LogInfo("relay client %s disconnected", r.RemoteAddr)
	}()

	for {
		typ, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if typ != websocket.TextMessage {
			continue
		}
		s.broadcast(c, data)
	}
}

func (s *Server) broadcast(from *relayClient, data []byte) {
	s.mu.Lock()
	targets := make([]*relayClient, 0, len(s.clients))
	for c := range s.clients {
		if c != from {
			targets = append(targets, c)
		}
	}
	s.mu.Unlock()

	for _, c := range targets {
		c.mu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		err := c.conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			util.LogDebug("relay write failed: %v", err)
		}
	}
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

// Close stops accepting connections and drops every connected client.
func (s *Server) Close() error {
	var err error
	if s.srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		err = s.srv.Shutdown(ctx)
	}

	s.mu.Lock()
	for c := range s.clients {
		c.conn.Close()
	}
	s.mu.Unlock()
	return err
}
