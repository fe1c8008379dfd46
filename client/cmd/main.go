package main

import (
	"os"

	"github.com/adwski/webrtc-rooms/client/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	// ROOMS_CONFIG points to optional yaml file
	cfg, err := config.Load(os.Getenv("ROOMS_CONFIG"))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	root := newRootCmd(cfg, &logger)
	if err = root.Execute(); err != nil {
		root.PrintErrln(err)
		os.Exit(1)
	}
}

func newRootCmd(cfg *config.Config, logger *zerolog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:           "rooms",
		Short:         "Headless participant for webrtc rooms",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			lvl, err := cfg.Level()
			if err != nil {
				return err
			}
			*logger = logger.Level(lvl)
			return nil
		},
	}
	cfg.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newJoinCmd(cfg, logger),
		newCreateCmd(cfg, logger),
		newRoomsCmd(cfg),
		newRoomCmd(cfg),
	)
	return root
}
