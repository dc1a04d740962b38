package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ssrprompt/chat-gateway/internal/config"
	"github.com/ssrprompt/chat-gateway/internal/gateway"
	"github.com/ssrprompt/chat-gateway/internal/metrics"
	"github.com/ssrprompt/chat-gateway/internal/registry"
	"github.com/ssrprompt/chat-gateway/internal/relay"
	"github.com/ssrprompt/chat-gateway/internal/secrets"
	"github.com/ssrprompt/chat-gateway/internal/server"
	"github.com/ssrprompt/chat-gateway/internal/trace"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	keychain, err := secrets.NewKeychain(cfg.EncryptionKey)
	if err != nil {
		slog.Error("failed to initialize keychain", "error", err)
		os.Exit(1)
	}

	reg, err := registry.Load(cfg.RegistryPath)
	if err != nil {
		slog.Error("failed to load registry", "path", cfg.RegistryPath, "error", err)
		os.Exit(1)
	}

	var store trace.Store
	if cfg.TraceDir != "" {
		badgerStore, err := trace.OpenBadger(cfg.TraceDir)
		if err != nil {
			slog.Error("failed to open trace store", "dir", cfg.TraceDir, "error", err)
			os.Exit(1)
		}
		defer badgerStore.Close()
		store = badgerStore
	} else {
		slog.Warn("no trace directory configured, traces are kept in memory only")
		store = trace.NewMemoryStore()
	}

	var collector *metrics.Collector
	var metricsHandler http.Handler
	if cfg.MetricsEnabled {
		promReg := prometheus.NewRegistry()
		promReg.MustRegister(collectors.NewGoCollector())
		collector = metrics.NewCollector(promReg)
		metricsHandler = promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})
	}

	svc := gateway.NewService(reg, keychain, trace.NewRecorder(store), relay.NewClient(cfg.UpstreamTimeout), collector)

	srv := server.New(cfg, server.Deps{
		Completions: gateway.NewHandler(svc),
		Traces:      gateway.NewTracesHandler(store),
		Metrics:     metricsHandler,
	})

	slog.Info("starting chat-gateway",
		"listen", cfg.ListenAddr,
		"registry", cfg.RegistryPath,
		"metrics", cfg.MetricsEnabled,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serverErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info("shutting down...")
		shutCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	case err := <-serverErr:
		slog.Error("server error", "error", err)
		os.Exit(1)
	}

	slog.Info("server stopped")
}
