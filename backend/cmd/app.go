package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/adwski/webrtc-rooms/backend/config"
	httpServer "github.com/adwski/webrtc-rooms/backend/server/http"
	websocketServer "github.com/adwski/webrtc-rooms/backend/server/websocket"
	"github.com/adwski/webrtc-rooms/backend/service"
	store "github.com/adwski/webrtc-rooms/backend/storage/memory"
	sw "github.com/adwski/webrtc-rooms/backend/switch"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}
	lvl, err := cfg.Level()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  cfg.APIListenAddr,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       cfg.WSListenAddr,
		MessageRate:      cfg.MessageRate,
		MessageBurst:     cfg.MessageBurst,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(2)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
