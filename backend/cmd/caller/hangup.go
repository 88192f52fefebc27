package main

import (
	"errors"

	"github.com/adwski/webrtc-call-relay/backend/model"
	"github.com/adwski/webrtc-call-relay/backend/peer"
	"github.com/spf13/cobra"
)

var errNoRoomKey = errors.New("url carries no room key")

var hangupCmd = &cobra.Command{
	Use:   "hangup <url>",
	Short: "End the call in the room given by url for everyone, the room gets blocked",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		roomID, shareURL, err := peer.RoomKeyFromURL(args[0])
		if err != nil {
			return err
		}
		if shareURL != args[0] {
			// key was generated, there's no such room
			return errNoRoomKey
		}

		relay := peer.NewRelayClient(peer.RelayConfig{
			Logger: &logger,
			URL:    flagServer,
		})
		defer relay.Close()

		if err = relay.Connect(cmd.Context()); err != nil {
			return err
		}
		if err = relay.Send(model.NewAnnouncement(model.TypeForceHangup, "", roomID)); err != nil {
			return err
		}
		logger.Info().Str("roomID", roomID).Msg("force hangup sent")
		return nil
	},
}
