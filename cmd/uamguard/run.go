package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/uamguard/uamguard/internal/baseline"
	"github.com/uamguard/uamguard/internal/cloudflare"
	"github.com/uamguard/uamguard/internal/config"
	"github.com/uamguard/uamguard/internal/engine"
	"github.com/uamguard/uamguard/internal/health"
	"github.com/uamguard/uamguard/internal/metrics"
	"github.com/uamguard/uamguard/internal/notify"
	"github.com/uamguard/uamguard/internal/sampler"
	"github.com/uamguard/uamguard/internal/state"
	"github.com/uamguard/uamguard/internal/status"
	"github.com/uamguard/uamguard/internal/ws"
)

func runDaemon() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	levelVar := new(slog.LevelVar)
	levelVar.Set(cfg.Logging.SlogLevel())
	opts := &slog.HandlerOptions{Level: levelVar}
	var handler slog.Handler
	if cfg.Logging.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	slog.Info("uamguard starting",
		"config", configPath,
		"zone", cfg.Cloudflare.ZoneID,
		"check_interval", cfg.Monitoring.CheckInterval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cf, err := cloudflare.New(cfg.Cloudflare, cfg.UAM.NormalLevel)
	if err != nil {
		return err
	}

	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}

	// Resolve the starting protection state from the durable record and the
	// zone's actual security level before the loop takes over.
	initial, err := engine.Bootstrap(ctx, store, cf, time.Now())
	if err != nil {
		return err
	}
	slog.Info("starting state resolved", "mode", initial.Mode, "since", initial.Since)

	board := status.NewBoard()
	rec := metrics.New()
	notifier := notify.New(cfg.Notify)

	eng := engine.New(engine.Options{
		Config:  cfg,
		Sampler: sampler.New(),
		Tracker: baseline.New(
			cfg.Monitoring.MaxBaselineSamples,
			cfg.Thresholds.BaselineWindow,
			cfg.Thresholds.BaselineUpdateInterval,
		),
		Machine: engine.NewMachine(initial, cfg.UAM.MinimumDuration),
		Toggler: cf,
		Store:   store,
		Board:   board,
		Metrics: rec,
		OnTransition: func(from, to engine.State, snap status.Snapshot) {
			ev := notify.Event{
				From:           string(from.Mode),
				To:             string(to.Mode),
				Reason:         transitionReason(to, snap),
				NormalizedLoad: snap.NormalizedLoad,
				At:             snap.Timestamp,
			}
			if snap.BaselineOK {
				b := snap.Baseline
				ev.Baseline = &b
			}
			go notifier.Transition(ev)
		},
	})

	var httpSrv *http.Server
	if cfg.Health.Enabled {
		hub := ws.New(board, cfg.Health.BroadcastInterval)
		go hub.Run(ctx)

		// A status older than two check intervals means the loop has stalled.
		staleAfter := 2 * cfg.Monitoring.CheckInterval

		mux := http.NewServeMux()
		mux.Handle("/api/", health.New(board, staleAfter))
		mux.Handle("/metrics", rec.Handler())
		mux.Handle("/ws/stream", hub)

		httpSrv = &http.Server{Addr: cfg.Health.Listen, Handler: mux}
		go func() {
			slog.Info("HTTP server listening", "addr", cfg.Health.Listen)
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("HTTP server stopped", "err", err)
			}
		}()
	}

	// Hot-reload watches the config file but applies the log level only.
	go func() {
		if err := config.Watch(ctx, configPath, func(next *config.Config) {
			levelVar.Set(next.Logging.SlogLevel())
			slog.Info("log level updated", "level", next.Logging.Level)
		}); err != nil {
			slog.Warn("config watch disabled", "err", err)
		}
	}()

	runErr := eng.Run(ctx)

	if httpSrv != nil {
		shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutCancel()
		httpSrv.Shutdown(shutCtx) //nolint:errcheck
	}

	if runErr != nil {
		slog.Error("uamguard exiting on fatal error", "err", runErr)
		return runErr
	}
	slog.Info("uamguard stopped")
	return nil
}

func runValidate() error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	fmt.Printf("config OK: zone %s, check interval %s, state backend %s\n",
		cfg.Cloudflare.ZoneID, cfg.Monitoring.CheckInterval, cfg.State.Backend)
	return nil
}

func openStore(cfg *config.Config) (state.Store, error) {
	switch cfg.State.Backend {
	case "postgres":
		return state.NewPostgresStore(cfg.State.DSN(), cfg.State.Deployment)
	default:
		return state.NewFileStore(cfg.State.Path), nil
	}
}

func transitionReason(to engine.State, snap status.Snapshot) string {
	if to.Mode == engine.ModeActive {
		return fmt.Sprintf("normalized load %.2f above threshold %.2f", snap.NormalizedLoad, snap.UpperBound)
	}
	return fmt.Sprintf("normalized load %.2f below threshold %.2f", snap.NormalizedLoad, snap.LowerBound)
}
