package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/junsooki/framereel/internal/config"
	"github.com/junsooki/framereel/internal/mockbackend"
)

func main() {
	cfg, err := config.ParseMockFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Debug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	handler := mockbackend.NewHandler(mockbackend.Config{
		FrameCount:    cfg.FrameCount,
		FrameInterval: cfg.FrameInterval,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           handler.Mux(cfg.Path),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("mockrender starting",
		"listen", cfg.Listen,
		"path", cfg.Path,
		"frames", cfg.FrameCount,
		"interval", cfg.FrameInterval,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("mockrender server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("mockrender shutting down")
		// Upgraded connections are hijacked and not tracked by Shutdown.
		handler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("mockrender error", "error", err)
		os.Exit(1)
	}
}
