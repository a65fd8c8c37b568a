package media

import (
	"context"
	"strings"
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTestPattern_Acquire(t *testing.T) {
	p := NewTestPattern()
	defer p.Stop()

	s, err := p.Acquire(context.Background())
	require.NoError(t, err)
	require.Len(t, s.Tracks, 1)

	assert.True(t, strings.HasPrefix(s.StreamID(), "livecast-"))
	assert.Equal(t, s.ID, s.Tracks[0].StreamID())
	assert.Equal(t, webrtc.RTPCodecTypeVideo, s.Tracks[0].Kind())

	again, err := p.Acquire(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, s.ID, again.ID)
}

func TestRendererFunc(t *testing.T) {
	var got Stream
	r := RendererFunc(func(s Stream) { got = s })

	local := &LocalStream{ID: "x"}
	r.Bind(local)
	assert.Same(t, local, got)

	// Binding an empty remote handle must not panic.
	CountingRenderer{}.Bind(&RemoteStream{})
	assert.Equal(t, "", (&RemoteStream{}).StreamID())
}
