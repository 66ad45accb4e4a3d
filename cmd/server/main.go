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

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/settlewise/internal/auth"
	"github.com/mmynk/settlewise/internal/config"
	"github.com/mmynk/settlewise/internal/engine"
	"github.com/mmynk/settlewise/internal/metrics"
	"github.com/mmynk/settlewise/internal/notify"
	"github.com/mmynk/settlewise/internal/server"
	"github.com/mmynk/settlewise/internal/storage/sqlite"
	"github.com/mmynk/settlewise/pkg/logging"
)

const (
	tokenDuration   = 24 * time.Hour
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logging.SetupWith(os.Stderr, cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m, err := metrics.New(prometheus.DefaultRegisterer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	checks := map[string]server.HealthCheck{}

	// Initialize SQLite storage, sharing change events through Redis when configured
	var store *sqlite.SQLiteStore
	if cfg.RedisAddr != "" {
		notifier := notify.NewRedisNotifier(cfg.RedisAddr, cfg.RedisChannelPrefix)
		defer notifier.Close()
		if err := notifier.Ping(ctx); err != nil {
			return fmt.Errorf("failed to reach redis at %s: %w", cfg.RedisAddr, err)
		}
		checks["redis"] = notifier.Ping
		slog.Info("Change notifications via Redis", "addr", cfg.RedisAddr, "prefix", cfg.RedisChannelPrefix)

		store, err = sqlite.NewWithNotifier(cfg.DBPath, notifier)
	} else {
		store, err = sqlite.New(cfg.DBPath)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	defer store.Close()
	checks["database"] = store.Ping
	slog.Info("Storage initialized", "database", cfg.DBPath)

	eng := engine.New(store,
		engine.WithMaxRetries(cfg.SettleMaxRetries),
		engine.WithMetrics(m),
	)
	views := engine.NewRegistry(eng)
	defer views.Close()

	var jwtManager *auth.JWTManager
	if cfg.JWTSecret != "" {
		jwtManager = auth.NewJWTManager(cfg.JWTSecret, tokenDuration)
		slog.Info("Authentication enabled", "mode", cfg.AuthMode)
	} else {
		slog.Warn("JWT_SECRET not set, requests are not authenticated")
	}

	router := server.NewRouter(server.Options{
		Store:        store,
		Engine:       eng,
		Views:        views,
		JWT:          jwtManager,
		AuthOptional: cfg.AuthMode == "optional",
		Locale:       cfg.Locale,
		Checks:       checks,
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           h2c.NewHandler(router, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Connect server starting", "address", srv.Addr, "url", fmt.Sprintf("http://localhost%s", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
