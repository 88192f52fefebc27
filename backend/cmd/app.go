package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	httpServer "github.com/adwski/webrtc-call-relay/backend/server/http"
	websocketServer "github.com/adwski/webrtc-call-relay/backend/server/websocket"
	"github.com/adwski/webrtc-call-relay/backend/service"
	store "github.com/adwski/webrtc-call-relay/backend/storage/memory"
	sw "github.com/adwski/webrtc-call-relay/backend/switch"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api and static pages listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket signaling listen address")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
		staticDir     = fs.StringP("static-dir", "s", "", "directory with client pages, not served if empty")

		blockRetention = fs.Duration("block-retention", store.DefaultBlockRetention,
			"how long room stays blocked after forced hangup")
		blockSweepInterval = fs.Duration("block-sweep-interval", store.DefaultBlockSweepInterval,
			"how often expired blocks are purged")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	blocklist := store.NewBlocklist(store.BlocklistConfig{
		Logger:        &logger,
		Retention:     *blockRetention,
		SweepInterval: *blockSweepInterval,
	})
	svc := service.NewService(service.Config{
		RoomStore: store.NewMemStore(),
		Blocklist: blocklist,
		Switch:    sw.NewSwitch(&logger),
		Logger:    &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  *apiListenAddr,
		StaticDir:   *staticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:           &logger,
		SignalingService: svc,
		ListenAddr:       *wsListenAddr,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var (
		wg   = &sync.WaitGroup{}
		errc = make(chan error, 2)
	)
	wg.Add(3)
	go httpSrv.Run(ctx, wg, errc)
	go wsSrv.Run(ctx, wg, errc)
	go blocklist.Run(ctx, wg)

	select {
	case err = <-errc:
		logger.Error().Err(err).Msg("unexpected server error, shutting down")
	case <-ctx.Done():
		logger.Warn().Msg("interrupted")
	}
	cancel()
	wg.Wait()
}
