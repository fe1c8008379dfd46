package main

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/adwski/webrtc-rooms/client/config"
	"github.com/adwski/webrtc-rooms/client/console"
	"github.com/adwski/webrtc-rooms/client/media"
	"github.com/adwski/webrtc-rooms/client/rtc"
	"github.com/adwski/webrtc-rooms/client/session"
	"github.com/adwski/webrtc-rooms/client/signaling"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const leaveTimeout = 3 * time.Second

func newJoinCmd(cfg *config.Config, logger *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "join <code>",
		Short: "Join a room with synthetic audio and video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd, cfg, logger, args[0])
		},
	}
}

func newCreateCmd(cfg *config.Config, logger *zerolog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "create",
		Short: "Create a new room and join it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCall(cmd, cfg, logger, "")
		},
	}
}

// runCall joins roomID, or a fresh room if roomID is empty, and serves
// console commands until the user leaves or the relay goes away.
func runCall(cmd *cobra.Command, cfg *config.Config, logger *zerolog.Logger, roomID string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sig, err := signaling.Dial(ctx, &signaling.Config{Logger: logger, URL: cfg.SignalURL})
	if err != nil {
		return err
	}
	defer func() { _ = sig.Close() }()

	self, err := sig.ID(ctx)
	if err != nil {
		return err
	}

	factory, err := rtc.NewFactory(&rtc.Config{
		Logger:     logger,
		ICEServers: rtc.ICEServers(cfg.STUNServers, cfg.TURNServers, cfg.TURNUser, cfg.TURNPass),
		UDPPortMin: cfg.UDPPortMin,
		UDPPortMax: cfg.UDPPortMax,
	})
	if err != nil {
		return err
	}

	con := console.New(cmd.OutOrStdout())
	mgr := session.NewManager(&session.Config{
		Logger:     logger,
		Signaler:   sig,
		Transports: factory,
		Media:      silentProvider{ctx: ctx, logger: logger},
		Renderer:   con,
		Notifier:   con,
	})
	mgr.SetSelf(self)
	go func() {
		_ = mgr.Run(ctx, sig.Incoming())
	}()

	if roomID == "" {
		roomID, err = mgr.CreateRoom(ctx, cfg.Name)
	} else {
		err = mgr.Join(ctx, roomID, cfg.Name)
	}
	if err != nil {
		return err
	}
	defer leave(mgr, logger)
	con.Print(console.RoomView(mgr.RoomID(), mgr.Name()))

	commands := make(chan string)
	go readCommands(cmd.InOrStdin(), commands)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sig.Done():
			con.Notify(session.LevelError, "Signaling connection lost")
			return signaling.ErrClosed
		case line, ok := <-commands:
			if !ok {
				// stdin closed, stay in the call until interrupted
				commands = nil
				continue
			}
			if quit := handleCommand(ctx, mgr, con, line, logger); quit {
				return nil
			}
		}
	}
}

func readCommands(in io.Reader, out chan<- string) {
	defer close(out)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		out <- strings.TrimSpace(scanner.Text())
	}
}

func handleCommand(ctx context.Context, mgr *session.Manager, con *console.Console, line string, logger *zerolog.Logger) bool {
	var err error
	switch strings.ToLower(line) {
	case "":
		return false
	case "a", "audio":
		var on bool
		if on, err = mgr.ToggleAudio(ctx); err == nil {
			con.Notify(session.LevelInfo, "Microphone "+onOff(on))
		}
	case "v", "video":
		var on bool
		if on, err = mgr.ToggleVideo(ctx); err == nil {
			con.Notify(session.LevelInfo, "Camera "+onOff(on))
		}
	case "s", "screen":
		if mgr.Sharing() {
			err = mgr.StopScreenShare(ctx)
		} else {
			err = mgr.StartScreenShare(ctx)
		}
	case "l", "links":
		con.Print(console.LinksView(mgr.Links(), con.Participants()))
	case "q", "quit", "leave":
		return true
	default:
		con.Notify(session.LevelWarning, "Unknown command "+line)
	}
	if err != nil && !errors.Is(err, session.ErrScreenCapture) {
		logger.Error().Err(err).Str("command", line).Msg("command failed")
	}
	return false
}

func leave(mgr *session.Manager, logger *zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), leaveTimeout)
	defer cancel()
	if err := mgr.Leave(ctx); err != nil && !errors.Is(err, session.ErrNotJoined) {
		logger.Error().Err(err).Msg("leave failed")
	}
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}

// silentProvider feeds silence into the synthetic microphone for as long
// as the call lasts so remote peers receive a live audio stream.
type silentProvider struct {
	media.SyntheticProvider
	ctx    context.Context
	logger *zerolog.Logger
}

func (p silentProvider) UserMedia(ctx context.Context) (*media.Stream, error) {
	stream, err := p.SyntheticProvider.UserMedia(ctx)
	if err != nil {
		return nil, err
	}
	if audio := stream.AudioTrack(); audio != nil {
		go func() {
			if err := media.PumpSilence(p.ctx, audio); err != nil && !errors.Is(err, context.Canceled) {
				p.logger.Warn().Err(err).Msg("audio pump stopped")
			}
		}()
	}
	return stream, nil
}
