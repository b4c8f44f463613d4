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

	"github.com/ugaemi/netraiders-server/internal/broker"
	"github.com/ugaemi/netraiders-server/internal/config"
	"github.com/ugaemi/netraiders-server/internal/handler"
	"github.com/ugaemi/netraiders-server/internal/match"
	"github.com/ugaemi/netraiders-server/internal/store"
	"github.com/ugaemi/netraiders-server/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "loading config:", err)
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	settings := match.DefaultSettings()
	settings.TickRate = cfg.TickRate
	settings.PickupBatch = cfg.PickupBatch
	settings.AbsorptionEnabled = cfg.AbsorptionEnabled

	hub := ws.NewHub()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: handler.New(st, hub, settings).Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr, "store", cfg.StoreBackend, "tick_rate", cfg.TickRate)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "error", err)
	}
	// Hijacked websocket connections are not tracked by Shutdown.
	hub.CloseAll()
	if err := hub.Drain(shutdownCtx); err != nil {
		slog.Warn("sessions still open at shutdown", "connections", hub.Count())
	}
	return nil
}

// openStore connects the configured backend and returns a function that
// releases it.
func openStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendPostgres:
		st, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return st, closer(st), nil

	case config.BackendNats:
		url := cfg.NatsURL
		var ns *broker.Server
		if cfg.NatsEmbedded {
			var err error
			if ns, err = newBroker(cfg); err != nil {
				return nil, nil, fmt.Errorf("creating nats server: %w", err)
			}
			if err := ns.Start(ctx); err != nil {
				return nil, nil, fmt.Errorf("starting nats server: %w", err)
			}
			if url == "" {
				url = ns.ClientURL()
			}
		}
		st, err := store.NewNatsStore(ctx, url, cfg.NatsBucket)
		if err != nil {
			if ns != nil {
				ns.Shutdown()
			}
			return nil, nil, fmt.Errorf("opening nats store: %w", err)
		}
		return st, func() {
			closer(st)()
			if ns != nil {
				ns.Shutdown()
			}
		}, nil

	default:
		st := store.NewMemoryStore()
		return st, closer(st), nil
	}
}

// newBroker builds the embedded NATS server from the embedded-mode settings.
func newBroker(cfg *config.Config) (*broker.Server, error) {
	timeout, err := cfg.StartTimeout()
	if err != nil {
		return nil, err
	}
	opts := []broker.Opt{
		broker.WithHost(cfg.NatsEmbeddedHost),
		broker.WithPort(cfg.NatsEmbeddedPort),
		broker.WithStartTimeout(timeout),
	}
	if cfg.NatsStoreDir != "" {
		opts = append(opts, broker.WithStoreDir(cfg.NatsStoreDir))
	}
	return broker.NewServer(opts...)
}

func closer(st store.Store) func() {
	return func() {
		if err := st.Close(); err != nil {
			slog.Warn("closing store", "error", err)
		}
	}
}

func setupLogger(cfg *config.Config) {
	var h slog.Handler
	opts := &slog.HandlerOptions{}

	switch cfg.LogLevel {
	case "debug":
		opts.Level = slog.LevelDebug
	case "warn":
		opts.Level = slog.LevelWarn
	case "error":
		opts.Level = slog.LevelError
	default:
		opts.Level = slog.LevelInfo
	}

	switch cfg.LogFormat {
	case "json":
		h = slog.NewJSONHandler(os.Stdout, opts)
	default:
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(h))
}
