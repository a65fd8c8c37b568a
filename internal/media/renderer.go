package media

import (
	"github.com/1ureka/livecast/internal/util"
)

// CountingRenderer stands in for a video element: remote tracks are drained
// and counted into util.Stats, local streams are only acknowledged.
type CountingRenderer struct{}

var _ Renderer = CountingRenderer{}

func (CountingRenderer) Bind(s Stream) {
	switch st := s.(type) {
	case *LocalStream:
		util.LogInfo("self-preview bound to stream %s (%d tracks)", st.ID, len(st.Tracks))
	case *RemoteStream:
		if st.Track == nil {
			return
		}
		util.LogSuccess("receiving %s track from stream %s", st.Track.Codec().MimeType, st.StreamID())
		go drain(st)
	}
}

// drain reads RTP until the track ends.
func drain(st *RemoteStream) {
	buf := make([]byte, 1500)
	for {
		n, _, err := st.Track.Read(buf)
		if err != nil {
			util.LogDebug("remote track %s ended: %v", st.Track.ID(), err)
			return
		}
		util.Stats.AddRecv(n)
	}
}
