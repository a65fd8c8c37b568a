package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/livecast/internal/util"
)

// Test pattern defaults.
const (
	DefaultFPS       = 30
	DefaultFrameSize = 4 * 1024
)

// TestPattern is a Source that produces a single VP8-labelled video track fed
// with fixed-size placeholder frames. It stands in for screen capture so a
// negotiation can be exercised end to end from the command line.
type TestPattern struct {
	FPS       int
	FrameSize int

	mu   sync.Mutex
	stop context.CancelFunc
}

var _ Source = (*TestPattern)(nil)

// NewTestPattern returns a TestPattern with default rate and frame size.
func NewTestPattern() *TestPattern {
	return &TestPattern{FPS: DefaultFPS, FrameSize: DefaultFrameSize}
}

// Acquire creates the track and starts writing frames until ctx is cancelled
// or the next Acquire/Stop call.
func (p *TestPattern) Acquire(ctx context.Context) (*LocalStream, error) {
	streamID := "livecast-" + uuid.NewString()[:8]
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8},
		"screen", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create track: %w", err)
	}

	fps := p.FPS
	if fps <= 0 {
		fps = DefaultFPS
	}
	size := p.FrameSize
	if size <= 0 {
		size = DefaultFrameSize
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	if p.stop != nil {
		p.stop()
	}
	p.stop = cancel
	p.mu.Unlock()

	go pump(pumpCtx, track, fps, size)

	return &LocalStream{ID: streamID, Tracks: []webrtc.TrackLocal{track}}, nil
}

// Stop halts the frame writer started by the last Acquire.
func (p *TestPattern) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

// pump writes one frame per tick. WriteSample is a no-op until the track is
// bound to a connected sender, so frames before connection are discarded.
func pump(ctx context.Context, track *webrtc.TrackLocalStaticSample, fps, size int) {
	interval := time.Second / time.Duration(fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	frame := make([]byte, size)
	var n byte
	for {
		select {
		case <-ticker.C:
			n++
			for i := range frame {
				frame[i] = byte(i) ^ n
			}
			if err := track.WriteSample(pionmedia.Sample{Data: frame, Duration: interval}); err != nil {
				util.LogDebug("write sample: %v", err)
				continue
			}
			util.Stats.AddSent(len(frame))
		case <-ctx.Done():
			return
		}
	}
}
