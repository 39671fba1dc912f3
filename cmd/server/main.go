package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/Tyrowin/orgchat/internal/broadcast"
	"github.com/Tyrowin/orgchat/internal/config"
	"github.com/Tyrowin/orgchat/internal/identity"
	"github.com/Tyrowin/orgchat/internal/logging"
	"github.com/Tyrowin/orgchat/internal/organization"
	"github.com/Tyrowin/orgchat/internal/server"
	"github.com/Tyrowin/orgchat/internal/session"
)

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logging.ConfigureRuntime(logging.Options{})
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	logging.ConfigureRuntime(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if err := run(cfg); err != nil {
		log.Fatal().Err(err).Msg("server exited")
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	router := broadcast.NewRouter()
	coord := session.New(identity.NewRegistry(), organization.NewRegistry(), router)
	ws := server.New(*cfg, coord)
	httpServer := server.CreateServer(cfg.Server, ws.Routes())

	// The coordinator outlives the listener so disconnects during draining
	// are still processed.
	coordCtx, stopCoord := context.WithCancel(context.Background())
	defer stopCoord()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return coord.Run(coordCtx)
	})
	g.Go(func() error {
		return server.StartServer(httpServer)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		httpErr := server.ShutdownServer(shutdownCtx, httpServer)
		wsErr := ws.Shutdown(shutdownCtx)
		stopCoord()
		return errors.Join(httpErr, wsErr)
	})

	return g.Wait()
}
