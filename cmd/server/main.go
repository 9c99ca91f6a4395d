// Command server runs the AIVERSE world: it bootstraps the seed
// companies, starts the periodic tick scheduler, and serves the HTTP/WS
// API until interrupted.
package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"aiverse/internal/api"
	"aiverse/internal/config"
	"aiverse/internal/world"
)

func main() {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer stop()

	cfg := config.Load()

	w := world.New(cfg)
	w.StartDispatch(ctx)
	w.Bootstrap()
	log.Info().Msg("world bootstrapped: seed companies founded and IPO'd")

	go runTicker(ctx, w, cfg.TickInterval)

	srv := api.NewServer(cfg.ListenAddr, w)
	if err := srv.Run(ctx); err != nil {
		log.Fatal().Err(err).Msg("api server exited with error")
	}
}

// runTicker drives World.Tick() once per TickInterval until ctx is
// cancelled. The tick scheduler acquires the world lock exactly like a
// client request.
func runTicker(ctx context.Context, w *world.World, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Tick()
		}
	}
}
