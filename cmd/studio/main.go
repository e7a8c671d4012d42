package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/junsooki/framereel/internal/config"
	"github.com/junsooki/framereel/internal/display"
	"github.com/junsooki/framereel/internal/drafts"
	"github.com/junsooki/framereel/internal/handoff"
	"github.com/junsooki/framereel/internal/protocol"
	"github.com/junsooki/framereel/internal/session"
	"github.com/junsooki/framereel/internal/settings"
)

func main() {
	cfg, err := config.ParseStudioFlags()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if cfg.Debug || os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	if err := run(cfg); err != nil {
		slog.Error("studio error", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.StudioConfig) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	st := settings.New(cfg.GridSize, cfg.Source)
	if cfg.SourceFile != "" {
		if err := st.LoadSource(cfg.SourceFile); err != nil {
			return err
		}
	}

	store, err := drafts.Open(cfg.Drafts.Path, drafts.Options{TTL: cfg.Drafts.TTL, BusyTimeout: 5 * time.Second})
	if err != nil {
		return fmt.Errorf("open drafts: %w", err)
	}
	defer store.Close()

	var h handoff.Handoff = handoff.NewLog(nil)
	if cfg.Handoff.Mode == "mqtt" {
		m := handoff.NewMQTT(handoff.MQTTConfig{
			Broker:   cfg.Handoff.MQTT.Broker,
			Topic:    cfg.Handoff.MQTT.Topic,
			ClientID: cfg.Handoff.MQTT.ClientID,
			QoS:      byte(cfg.Handoff.MQTT.QoS),
		})
		if err := m.Connect(ctx); err != nil {
			return err
		}
		defer m.Close()
		h = handoff.Multi{h, m}
	}

	viewer := display.NewViewer(cfg.DisplaySize)
	sess := session.New(session.Config{
		Endpoint:    cfg.Endpoint,
		FrameRate:   cfg.FrameRate,
		DisplaySize: cfg.DisplaySize,
		Protocol:    protocol.Options{PingInterval: cfg.PingInterval, HandshakeTimeout: 10 * time.Second},
		ExportDir:   cfg.ExportDir,
		AutoRun:     cfg.AutoRun,
	}, session.Deps{
		Settings: st,
		Drafts:   store,
		Handoff:  h,
		Sink:     viewer.SetFrame,
	})
	viewer.Attach(sess, sess.StatusLines)

	slog.Info("studio starting",
		"session", sess.ID(),
		"endpoint", cfg.Endpoint,
		"fps", cfg.FrameRate,
		"grid", st.GridSize(),
		"handoff", cfg.Handoff.Mode,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sess.Run(gctx)
	})

	// Ebitengine RunGame must be on the main goroutine (macOS requirement).
	viewErr := viewer.Run(gctx)
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if viewErr != nil {
		return fmt.Errorf("display: %w", viewErr)
	}
	return nil
}
