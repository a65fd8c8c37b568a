package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func waitForClients(t *testing.T, s *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if s.Clients() == n {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("expected %d relay clients, have %d", n, s.Clients())
}

func TestServer_BroadcastsToOthersOnly(t *testing.T) {
	relay := NewServer()
	ts := httptest.NewServer(relay.Handler())
	defer ts.Close()
	defer relay.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	a, err := Dial(ctx, wsURL(ts.URL))
	require.NoError(t, err)
	defer a.Close()
	b, err := Dial(ctx, wsURL(ts.URL))
	require.NoError(t, err)
	defer b.Close()
	waitForClients(t, relay, 2)

	cand := webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host"}
	require.NoError(t, a.Send(ctx, CandidateMessage(cand)))

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeCandidate, got.Type)
	require.NotNil(t, got.Candidate)
	assert.Equal(t, cand.Candidate, got.Candidate.Candidate)

	// The sender must not see its own message: the next thing a reads is b's reply.
	require.NoError(t, b.Send(ctx, AnswerMessage(testAnswer())))
	got, err = a.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeAnswer, got.Type)
}

func TestServer_StartAndHealthz(t *testing.T) {
	relay := NewServer()
	addr, err := relay.Start("127.0.0.1:0")
	require.NoError(t, err)
	defer relay.Close()

	resp, err := http.Get("http://" + addr + "/healthz")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestDial_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err := Dial(ctx, "ws://127.0.0.1:1/ws")
	assert.ErrorIs(t, err, ErrRelayUnavailable)
}

func TestMessage_WireShape(t *testing.T) {
	data, err := json.Marshal(OfferMessage(testOffer()))
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "offer", raw["type"])
	offer, ok := raw["offer"].(map[string]any)
	require.True(t, ok, "offer payload must be an object")
	assert.Equal(t, "offer", offer["type"])
	assert.Equal(t, "test-offer-sdp", offer["sdp"])
	assert.NotContains(t, raw, "answer")
	assert.NotContains(t, raw, "candidate")

	// A browser-shaped candidate message decodes into the same structure.
	in := `{"type":"ice-candidate","candidate":{"candidate":"candidate:0 1 UDP 1 1.2.3.4 9 typ host","sdpMid":"0","sdpMLineIndex":0}}`
	var msg Message
	require.NoError(t, json.Unmarshal([]byte(in), &msg))
	require.NoError(t, msg.Validate())
	require.NotNil(t, msg.Candidate.SDPMid)
	assert.Equal(t, "0", *msg.Candidate.SDPMid)
}

func TestWSConn_SkipsUndecodableFrames(t *testing.T) {
	relay := NewServer()
	ts := httptest.NewServer(relay.Handler())
	defer ts.Close()
	defer relay.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	raw, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL(ts.URL), nil)
	require.NoError(t, err)
	defer raw.Close()
	b, err := Dial(ctx, wsURL(ts.URL))
	require.NoError(t, err)
	defer b.Close()
	waitForClients(t, relay, 2)

	require.NoError(t, raw.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, raw.WriteJSON(OfferMessage(testOffer())))

	got, err := b.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, MsgTypeOffer, got.Type)
}
