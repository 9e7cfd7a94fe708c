// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/guessr-gg/guessr/internal/catalog"
	"github.com/guessr-gg/guessr/internal/game"
	"github.com/guessr-gg/guessr/internal/handlers"
	"github.com/guessr-gg/guessr/internal/session"
)

func main() {
	cfg := &config{}
	cmd := newCmd(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cobra.CheckErr(cmd.ExecuteContext(ctx))
}

func serve(ctx context.Context, cfg *config) error {
	logger := logrus.New()
	if cfg.verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	spotifyID := os.Getenv("SPOTIFY_CLIENT_ID")
	spotifySecret := os.Getenv("SPOTIFY_CLIENT_SECRET")
	if spotifyID == "" || spotifySecret == "" {
		return errors.New("SPOTIFY_CLIENT_ID and SPOTIFY_CLIENT_SECRET must be set")
	}

	var provider catalog.Provider = catalog.NewSpotifyProvider(logger, spotifyID, spotifySecret)
	if cfg.redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.redisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rdb.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", cfg.redisAddr, err)
		}
		provider = catalog.NewCachedProvider(logger, provider, rdb, cfg.cacheTTL)
		logger.Infof("playlist cache enabled via redis at %s", cfg.redisAddr)
	}

	registry := session.NewRegistry(logger)
	go registry.Run(ctx, cfg.sweepInterval)

	scheduler := game.NewScheduler(logger, provider)
	srv := handlers.NewServer(logger, registry, scheduler)

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.bind, cfg.port),
		Handler: srv.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
