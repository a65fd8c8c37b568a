package transport

import (
	"fmt"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/livecast/internal/util"
)

// DefaultICEServers are the STUN servers used when none are configured. No
// TURN: the tool targets direct P2P connectivity with zero infrastructure.
var DefaultICEServers = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

// NewAPI builds a pion API with the default codecs and interceptors, and
// pion's internal logging routed through pterm. Pass a SettingEngine to
// customise networking (tests use a virtual network); nil means defaults.
func NewAPI(se *webrtc.SettingEngine) (*webrtc.API, error) {
	if se == nil {
		se = &webrtc.SettingEngine{}
	}
	se.LoggerFactory = util.PionLoggerFactory{}

	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	return webrtc.NewAPI(
		webrtc.WithSettingEngine(*se),
		webrtc.WithMediaEngine(m),
		webrtc.WithInterceptorRegistry(registry),
	), nil
}

// iceServers turns URLs into a single ICEServer entry.
func iceServers(urls []string) []webrtc.ICEServer {
	if len(urls) == 0 {
		return nil
	}
	return []webrtc.ICEServer{{URLs: urls}}
}
