package main

import (
	"fmt"

	"github.com/adwski/webrtc-rooms/client/api"
	"github.com/adwski/webrtc-rooms/client/config"
	"github.com/adwski/webrtc-rooms/client/console"
	"github.com/spf13/cobra"
)

func newRoomsCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List active rooms",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rooms, err := api.NewClient(cfg.APIURL).Rooms(cmd.Context())
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), console.RoomsView(rooms))
			return nil
		},
	}
}

func newRoomCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "room <code>",
		Short: "Show members of a room",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			room, err := api.NewClient(cfg.APIURL).Room(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), console.MembersView(room))
			return nil
		},
	}
}
