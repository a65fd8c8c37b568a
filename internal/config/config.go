// Package config holds the CLI configuration types.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Mode is the subcommand the process runs as.
type Mode string

const (
	ModeRelay  Mode = "relay"
	ModeStream Mode = "stream"
	ModeView   Mode = "view"
)

// ParseMode accepts a mode name case-insensitively.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRelay, ModeStream, ModeView:
		return m, nil
	}
	return "", fmt.Errorf("invalid mode %q: must be relay, stream or view", s)
}

// MinConnectTimeout is the shortest positive connect timeout accepted.
const MinConnectTimeout = time.Second

// Config stores all parameters gathered from flags or interactive prompts.
type Config struct {
	Mode           Mode
	ListenAddr     string        // relay: address to serve /ws on
	RelayURL       string        // stream/view: relay WebSocket URL
	ICEServers     []string      // nil: transport defaults
	ConnectTimeout time.Duration // zero: session default; negative disables
	Debug          bool
}

// Validate checks the fields required by the mode and normalizes RelayURL.
func (c *Config) Validate() error {
	switch c.Mode {
	case ModeRelay:
		if strings.TrimSpace(c.ListenAddr) == "" {
			return errors.New("missing listen address for relay")
		}
		return nil

	case ModeStream, ModeView:
		if c.RelayURL == "" {
			return fmt.Errorf("missing relay URL for %s", c.Mode)
		}
		u, err := NormalizeRelayURL(c.RelayURL)
		if err != nil {
			return err
		}
		c.RelayURL = u
		if c.ConnectTimeout > 0 && c.ConnectTimeout < MinConnectTimeout {
			return fmt.Errorf("connect timeout %s is below %s", c.ConnectTimeout, MinConnectTimeout)
		}
		for _, s := range c.ICEServers {
			if !isICEURL(s) {
				return fmt.Errorf("invalid ICE server URL: %s", s)
			}
		}
		return nil

	default:
		return fmt.Errorf("invalid mode %q", c.Mode)
	}
}

// NormalizeRelayURL validates a raw relay address and returns a ws:// or
// wss:// URL ending in /ws. A bare host or http(s) URL becomes wss, except
// http which becomes ws.
func NormalizeRelayURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid relay URL: %s", raw)
	}

	scheme := "wss"
	switch u.Scheme {
	case "ws", "wss":
		scheme = u.Scheme
	case "http":
		scheme = "ws"
	}
	return fmt.Sprintf("%s://%s/ws", scheme, u.Host), nil
}

func isICEURL(s string) bool {
	for _, p := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(s, p) && len(s) > len(p) {
			return true
		}
	}
	return false
}
