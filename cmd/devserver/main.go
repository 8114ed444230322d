package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jadujoel/pressure-observer/internal/devserver"
	"github.com/jadujoel/pressure-observer/internal/logger"
	"github.com/spf13/pflag"
)

const shutdownTimeout = 5 * time.Second

func main() {
	cfg := devserver.DefaultConfig()
	pflag.StringVar(&cfg.Addr, "addr", cfg.Addr, "Listen address")
	pflag.StringVar(&cfg.Root, "root", cfg.Root, "Directory to serve")
	verbose := pflag.Bool("verbose", false, "Enable verbose logging")
	pflag.Parse()

	logger.Init(false, *verbose, logger.IsService())

	server, err := devserver.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize dev server")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	go func() {
		<-ctx.Done()
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("failed to shut down dev server")
		}
	}()

	if err := server.Start(); err != nil {
		logger.Fatal().Err(err).Msg("dev server failed")
	}
	logger.Info().Msg("Exiting...")
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	cancel()
}
