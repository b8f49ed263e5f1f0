package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/vchub/relay/codec"
	"github.com/vchub/relay/coordinator"
	"github.com/vchub/relay/identity"
	"github.com/vchub/relay/metrics"
	httpServer "github.com/vchub/relay/server/http"
	websocketServer "github.com/vchub/relay/server/websocket"
	"github.com/vchub/relay/service"
	store "github.com/vchub/relay/storage/memory"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	fs := pflag.NewFlagSet("main", pflag.ContinueOnError)

	var (
		apiListenAddr = fs.StringP("api-listen-addr", "a", ":8080", "api/static/metrics listen address")
		wsListenAddr  = fs.StringP("ws-listen-addr", "w", ":8888", "websocket relay listen address")
		roomCount     = fs.IntP("rooms", "r", 5, "number of rooms provisioned at startup")
		idStrategy    = fs.String("id-strategy", identity.StrategyMonotonic, "participant id strategy (monotonic|addr)")
		idWidth       = fs.Int("id-width", 4, "sender id width in relay frames, bytes")
		noAnnounce    = fs.Bool("no-announce", false, "disable join/leave notifications")
		staticDir     = fs.String("static-dir", "./static", "directory with browser client assets")
		tlsCert       = fs.String("tls-cert", "", "TLS certificate file for the websocket listener")
		tlsKey        = fs.String("tls-key", "", "TLS key file for the websocket listener")
		logLevel      = fs.StringP("log-level", "l", "debug", "log level")
	)
	if err := fs.Parse(os.Args[1:]); err != nil {
		logger.Fatal().Err(err).Msg("failed to parse command line arguments")
	}

	lvl, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to parse loglevel")
	}
	logger = logger.Level(lvl)

	cdc, err := codec.New(codec.WithIDWidth(*idWidth))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct codec")
	}
	gen, err := identity.FromStrategy(*idStrategy)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct id generator")
	}
	mtr := metrics.New(prometheus.DefaultRegisterer)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	table := store.NewTable(func(name string) *coordinator.Coordinator {
		room := coordinator.New(name, &logger,
			coordinator.WithAnnouncements(!*noAnnounce),
			coordinator.WithMetrics(mtr))
		go room.Run(ctx)
		return room
	})
	names := make([]string, 0, *roomCount)
	for i := 0; i < *roomCount; i++ {
		names = append(names, fmt.Sprintf("room%d", i))
	}
	table.Provision(names...)

	svc := service.NewService(service.Config{
		Table:    table,
		Identity: gen,
		Codec:    cdc,
		Metrics:  mtr,
		Logger:   &logger,
	})
	httpSrv := httpServer.NewServer(httpServer.Config{
		Logger:      &logger,
		RoomService: svc,
		ListenAddr:  *apiListenAddr,
		StaticDir:   *staticDir,
	})
	wsSrv := websocketServer.NewServer(websocketServer.Config{
		Logger:       &logger,
		RelayService: svc,
		ListenAddr:   *wsListenAddr,
		TLSCertFile:  *tlsCert,
		TLSKeyFile:   *tlsKey,
	})

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
