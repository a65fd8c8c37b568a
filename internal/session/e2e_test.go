package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/pion/logging"
	"github.com/pion/transport/v4/vnet"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/session"
	"github.com/1ureka/livecast/internal/signaling"
	"github.com/1ureka/livecast/internal/transport"
)

// newVNetPair returns two pion APIs attached to one virtual LAN.
func newVNetPair(t *testing.T) (*webrtc.API, *webrtc.API) {
	t.Helper()

	router, err := vnet.NewRouter(&vnet.RouterConfig{
		CIDR:          "10.0.0.0/24",
		LoggerFactory: logging.NewDefaultLoggerFactory(),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = router.Stop() })

	netA, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.1"}})
	require.NoError(t, err)
	netB, err := vnet.NewNet(&vnet.NetConfig{StaticIPs: []string{"10.0.0.2"}})
	require.NoError(t, err)
	require.NoError(t, router.AddNet(netA))
	require.NoError(t, router.AddNet(netB))
	require.NoError(t, router.Start())

	api := func(n *vnet.Net) *webrtc.API {
		se := &webrtc.SettingEngine{}
		se.SetNet(n)
		a, err := transport.NewAPI(se)
		require.NoError(t, err)
		return a
	}
	return api(netA), api(netB)
}

type peer struct {
	s     *session.Session
	relay *signaling.Dispatcher

	mu     sync.Mutex
	remote []media.Stream
}

func newPeer(t *testing.T, ctx context.Context, hub *signaling.MemoryHub, api *webrtc.API) *peer {
	t.Helper()

	p := &peer{relay: signaling.NewDispatcher(hub.Join())}
	go p.relay.Run(ctx)

	p.s = session.New(session.Config{
		Relay: p.relay,
		NewTransport: func(_ session.Role, obs session.Observer) (session.Transport, error) {
			return transport.New(obs, transport.Options{API: api, ICEServers: []string{}})
		},
		Media: media.NewTestPattern(),
		Renderer: media.RendererFunc(func(st media.Stream) {
			if _, ok := st.(*media.RemoteStream); ok {
				p.mu.Lock()
				p.remote = append(p.remote, st)
				p.mu.Unlock()
			}
		}),
		ConnectTimeout: 15 * time.Second,
	})
	go p.s.Run(ctx)
	return p
}

func (p *peer) remoteStreams() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.remote)
}

func TestNegotiation_EndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("end-to-end negotiation over a virtual network")
	}

	apiA, apiB := newVNetPair(t)
	hub := signaling.NewMemoryHub()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	streamer := newPeer(t, ctx, hub, apiA)
	viewer := newPeer(t, ctx, hub, apiB)

	require.NoError(t, viewer.s.Begin(ctx, session.RoleViewer))
	require.NoError(t, streamer.s.Begin(ctx, session.RoleStreamer))

	for name, p := range map[string]*peer{"streamer": streamer, "viewer": viewer} {
		st, err := p.s.WaitFor(ctx, session.StateConnected, session.StateFailed)
		require.NoError(t, err, name)
		require.Equal(t, session.StateConnected, st, "%s: %v", name, p.s.Err())
	}

	require.Eventually(t, func() bool { return viewer.remoteStreams() > 0 },
		10*time.Second, 50*time.Millisecond, "viewer never received the stream")
	require.Zero(t, streamer.remoteStreams())

	streamer.s.Reset()
	viewer.s.Reset()
	require.Equal(t, session.StateIdle, streamer.s.State())
	require.Equal(t, session.StateIdle, viewer.s.State())
}
