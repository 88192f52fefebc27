package main

import (
	"bufio"
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/adwski/webrtc-call-relay/backend/peer"
	"github.com/spf13/cobra"
)

var (
	flagSTUN          []string
	flagTURNUser      string
	flagTURNPass      string
	flagMaxReconnects int
)

var joinCmd = &cobra.Command{
	Use:   "join [url]",
	Short: "Join the call room given by url, a new room is created if url has no key",
	Long: `Join the call room given by url and stay in the call until interrupted.

Room key is taken from "room" query parameter or from url fragment.
While in the call, lines on stdin control it:
  mute     toggle microphone
  video    toggle camera
  camera   switch between front and rear camera
  hangup   end the call for everyone in the room`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw := "https://localhost/"
		if len(args) > 0 {
			raw = args[0]
		}
		return join(cmd.Context(), raw)
	},
}

func init() {
	joinCmd.Flags().StringSliceVar(&flagSTUN, "stun", peer.DefaultSTUNServers, "STUN/TURN server urls")
	joinCmd.Flags().StringVar(&flagTURNUser, "turn-user", "", "TURN username")
	joinCmd.Flags().StringVar(&flagTURNPass, "turn-pass", "", "TURN credential")
	joinCmd.Flags().IntVar(&flagMaxReconnects, "max-reconnects", 5, "reconnect attempts before giving up")
}

func join(ctx context.Context, raw string) error {
	roomID, shareURL, err := peer.RoomKeyFromURL(raw)
	if err != nil {
		return err
	}
	iceServers, err := peer.ParseICEServers(flagSTUN, flagTURNUser, flagTURNPass)
	if err != nil {
		return err
	}

	conns, err := peer.NewPionFactory(peer.PionConfig{
		Logger:     &logger,
		ICEServers: iceServers,
	})
	if err != nil {
		return err
	}

	var ctrl *peer.Controller
	relay := peer.NewRelayClient(peer.RelayConfig{
		Logger:       &logger,
		URL:          flagServer,
		OnMessage:    func(ann model.Announcement) { ctrl.HandleSignal(ann) },
		OnDisconnect: func() { ctrl.RelayDisconnected() },
	})
	defer relay.Close()

	ctrl = peer.NewController(peer.Config{
		Logger: &logger,
		RoomID: roomID,
		Relay:  relay,
		Media:  peer.SyntheticSource{},
		Conns:  conns,
		OnState: func(s peer.Snapshot) {
			logger.Info().
				Stringer("state", s.State).
				Bool("muted", s.Local.AudioMuted).
				Bool("videoOff", s.Local.VideoOff).
				Bool("peerMuted", s.Remote.AudioMuted).
				Bool("peerVideoOff", s.Remote.VideoOff).
				Str("facing", string(s.Facing)).
				Int("attempts", s.Attempts).
				Msg("call state")
		},
		MaxReconnects: flagMaxReconnects,
	})

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err = relay.Connect(ctx); err != nil {
		return err
	}
	logger.Info().Str("roomID", roomID).Str("url", shareURL).Msg("share this url with the other participant")

	go readCommands(ctrl)

	err = ctrl.Run(ctx)
	if errors.Is(err, peer.ErrForceEnded) {
		logger.Info().Msg("call ended")
		return nil
	}
	return err
}

func readCommands(ctrl *peer.Controller) {
	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		switch strings.TrimSpace(scanner.Text()) {
		case "mute":
			ctrl.ToggleAudio()
		case "video":
			ctrl.ToggleVideo()
		case "camera":
			ctrl.SwitchCamera()
		case "hangup":
			ctrl.ForceHangup()
		case "":
		default:
			logger.Warn().Str("command", scanner.Text()).Msg("unknown command")
		}
	}
}
