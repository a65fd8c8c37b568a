// Livecast: CLI entry point.
//
// Livecast negotiates a one-way WebRTC media stream between a streamer and a
// viewer. The two peers exchange descriptions and candidates through a small
// WebSocket relay that broadcasts every frame to the other connected clients;
// once the peer connection is up, media flows directly between them.
//
// It can be launched interactively (no subcommand) or non-interactively via
// the relay, stream and view subcommands.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/1ureka/livecast/internal/config"
	"github.com/1ureka/livecast/internal/media"
	"github.com/1ureka/livecast/internal/session"
	"github.com/1ureka/livecast/internal/signaling"
	"github.com/1ureka/livecast/internal/transport"
	"github.com/1ureka/livecast/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		util.LogError("%v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.Config{}

	root := &cobra.Command{
		Use:           "livecast",
		Short:         "Peer-to-peer screen sharing over WebRTC",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if cfg.Debug {
				util.EnableDebug()
			}
			pterm.Info.Println(fmt.Sprintf("Livecast — v%s", version))
			pterm.Println()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInteractive(cmd.Context(), cfg)
		},
	}

	root.PersistentFlags().BoolVar(&cfg.Debug, "debug", false, "Enable debug logging")
	root.PersistentFlags().StringArrayVar(&cfg.ICEServers, "ice", nil, "STUN/TURN server URL (repeatable)")
	root.PersistentFlags().DurationVar(&cfg.ConnectTimeout, "timeout", session.DefaultConnectTimeout, "Connect timeout (negative disables)")

	relayCmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the signaling relay",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg.Mode = config.ModeRelay
			return run(cmd.Context(), cfg)
		},
	}
	relayCmd.Flags().StringVar(&cfg.ListenAddr, "listen", ":8080", "Address to serve /ws on")

	peerCmd := func(mode config.Mode, short string) *cobra.Command {
		c := &cobra.Command{
			Use:   string(mode),
			Short: short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg.Mode = mode
				return run(cmd.Context(), cfg)
			},
		}
		c.Flags().StringVar(&cfg.RelayURL, "relay", "", "Relay WebSocket URL (e.g. ws://host:8080/ws)")
		_ = c.MarkFlagRequired("relay")
		return c
	}

	root.AddCommand(
		relayCmd,
		peerCmd(config.ModeStream, "Share a test-pattern stream"),
		peerCmd(config.ModeView, "Watch a stream"),
	)
	return root
}

// ---------------------------------------------------------------------------
// Run modes
// ---------------------------------------------------------------------------

// runInteractive asks for the mode and its address when no subcommand is given.
func runInteractive(ctx context.Context, cfg *config.Config) error {
	choice, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{
			"Stream — Share your screen",
			"View   — Watch a stream",
			"Relay  — Run the signaling relay",
		}).
		WithDefaultText("Select your role").
		Show()

	pterm.Println()

	fields := strings.Fields(choice)
	if len(fields) == 0 {
		return errors.New("no role selected")
	}
	mode, err := config.ParseMode(fields[0])
	if err != nil {
		return err
	}
	cfg.Mode = mode

	if mode == config.ModeRelay {
		cfg.ListenAddr = ":8080"
	} else {
		cfg.RelayURL = askURL()
	}
	return run(ctx, cfg)
}

func run(ctx context.Context, cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Mode == config.ModeRelay {
		return runRelay(ctx, cfg)
	}
	role, ok := session.ParseRole(string(cfg.Mode))
	if !ok {
		return fmt.Errorf("no session role for mode %q", cfg.Mode)
	}
	return runPeer(ctx, cfg, role)
}

// runRelay serves the broadcast relay until ctx is cancelled.
func runRelay(ctx context.Context, cfg *config.Config) error {
	srv := signaling.NewServer()
	addr, err := srv.Start(cfg.ListenAddr)
	if err != nil {
		return err
	}
	util.LogSuccess("relay listening on ws://%s/ws", addr)

	<-ctx.Done()
	util.LogInfo("shutting down relay (%d clients)", srv.Clients())
	return srv.Close()
}

// runPeer negotiates one connection in role and keeps it up until ctx is
// cancelled or the transport fails.
func runPeer(ctx context.Context, cfg *config.Config, role session.Role) error {
	conn, err := signaling.Dial(ctx, cfg.RelayURL)
	if err != nil {
		return err
	}

	relay := signaling.NewDispatcher(conn)
	relayErr := make(chan error, 1)
	go func() { relayErr <- relay.Run(ctx) }()

	spinner, _ := pterm.DefaultSpinner.Start(fmt.Sprintf("Negotiating as %s via %s", role, cfg.RelayURL))

	lost := make(chan error, 1)
	source := media.NewTestPattern()
	s := session.New(session.Config{
		Relay: relay,
		NewTransport: func(_ session.Role, obs session.Observer) (session.Transport, error) {
			return transport.New(obs, transport.Options{ICEServers: cfg.ICEServers})
		},
		Media:          source,
		Renderer:       media.CountingRenderer{},
		ConnectTimeout: cfg.ConnectTimeout,
		OnStateChange: func(st session.State, err error) {
			switch {
			case err == nil:
			case st == session.StateConnected && errors.Is(err, session.ErrTransportFailure):
				select {
				case lost <- err:
				default:
				}
			case !st.Terminal():
				util.LogWarning("%s: %v", st, err)
			}
		},
	})

	util.LogDebug("session %s, relay peer %s", s.ID(), relay.ID())

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go s.Run(runCtx)

	if err := s.Begin(ctx, role); err != nil {
		spinner.Fail(err.Error())
		return err
	}

	st, err := s.WaitFor(ctx, session.StateConnected, session.StateFailed)
	if err != nil {
		spinner.Stop()
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	}
	if st == session.StateFailed {
		spinner.Fail(s.Err().Error())
		return s.Err()
	}

	spinner.Success(fmt.Sprintf("P2P connection established as %s", role))
	util.StartStatsReporter(ctx)

	var exitErr error
wait:
	for {
		select {
		case <-ctx.Done():
			break wait
		case err := <-lost:
			util.LogError("connection lost: %v", err)
			exitErr = err
			break wait
		case err := <-relayErr:
			// The peer connection no longer needs the relay.
			if err != nil {
				util.LogDebug("relay closed: %v", err)
			}
			relayErr = nil
		}
	}

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
	}
	if exitErr == nil {
		util.LogInfo("successfully closed connection")
	}
	return exitErr
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// askURL prompts the user for a valid relay URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Relay URL (e.g. ws://192.168.1.10:8080/ws)").
			Show()

		u, err := config.NormalizeRelayURL(raw)
		if err == nil {
			pterm.Println()
			return u
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}
