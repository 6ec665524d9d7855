package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	goutils "github.com/jkaninda/go-utils"

	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/gateway"
	"github.com/jkaninda/busara/internal/gateway/cli"
	"github.com/jkaninda/busara/internal/gateway/httpapi"
	"github.com/jkaninda/busara/internal/ratelimit"
)

var (
	serveConfigPath string
	servePort       string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start in serve mode (HTTP API, interactive CLI)",
	RunE:  runServe,
}

func init() {
	// Register flags on both root and serve so that
	// `busara --config path` and `busara serve --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serveCmd} {
		cmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultConfigPath(), "path to config file")
		cmd.Flags().StringVar(&servePort, "port", "", "override HTTP listen address (e.g. :8080)")
	}
}

// runServe starts Busara in serve mode.
func runServe(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	cfg, err := config.Load(goutils.Env("BUSARA_CONFIG", serveConfigPath))
	if err != nil {
		return err
	}

	// Apply CLI overrides.
	if servePort != "" {
		if cfg.Gateway == nil {
			cfg.Gateway = &config.GatewayConfig{Enabled: true}
		}
		cfg.Gateway.ListenAddr = servePort
	}

	logger.Info("starting in serve mode", slog.String("config", serveConfigPath))

	sc, err := initShared(cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Retention sweeper.
	if sc.Sweeper != nil {
		sc.Sweeper.Start()
		defer sc.Sweeper.Stop()
		logger.Debug("retention sweeper started",
			slog.String("schedule", cfg.Storage.Schedule()),
			slog.Duration("retention", cfg.Storage.Retention()),
		)
	}

	// Build enabled gateways. Default to the interactive CLI when the HTTP
	// API is not enabled.
	var gateways []gateway.Gateway
	if cfg.Gateway != nil && cfg.Gateway.Enabled {
		gateways = append(gateways, buildHTTPGateway(cfg, sc))
		logger.Debug("gateway enabled", slog.String("type", "http"), slog.String("addr", cfg.Gateway.Addr()))
	} else {
		gateways = append(gateways, cli.NewGateway(sc.Chat, true, logger))
		logger.Debug("gateway enabled", slog.String("type", "cli"), slog.String("reason", "default"))
	}

	// Start all gateways in goroutines.
	errs := make(chan error, len(gateways))
	for _, gw := range gateways {
		go func(g gateway.Gateway) {
			errs <- g.Start(ctx)
		}(gw)
	}

	// Wait for signal or first gateway error.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	// Graceful shutdown with deadline.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	for i := len(gateways) - 1; i >= 0; i-- {
		if err := gateways[i].Stop(shutdownCtx); err != nil {
			logger.Error("stopping gateway", slog.String("error", err.Error()))
		}
	}

	return nil
}

// buildHTTPGateway assembles the HTTP API gateway from shared components.
func buildHTTPGateway(cfg *config.Config, sc *SharedComponents) gateway.Gateway {
	gwCfg := httpapi.Config{
		ListenAddr:     cfg.Gateway.Addr(),
		EnableDocs:     cfg.Gateway.EnableDocs,
		APIKeys:        apiKeyUsers(cfg.Gateway.APIKeys),
		MaxRequestSize: cfg.Gateway.MaxRequestSize(),
	}
	if sc.Obs != nil {
		gwCfg.HealthChecker = sc.Obs.Health
		if sc.Obs.Metrics != nil {
			gwCfg.Metrics = sc.Obs.Metrics
			gwCfg.MetricsRegistry = sc.Obs.Metrics.Registry
			if cfg.Observability != nil && cfg.Observability.Metrics != nil {
				gwCfg.MetricsPath = cfg.Observability.Metrics.MetricsPath()
			}
		}
		if sc.Obs.Tracer != nil {
			gwCfg.Tracer = sc.Obs.Tracer.Tracer()
		}
	}

	limiter := ratelimit.NewLimiter(ratelimit.Config{
		RequestsPerMinute: cfg.Gateway.RateLimit.RequestsPerMinute,
		BurstSize:         cfg.Gateway.RateLimit.Burst(),
	})

	return httpapi.NewGateway(gwCfg, sc.Chat, sc.Registry, limiter, sc.Logger).
		WithConversations(sc.Store).
		WithSSE(cfg.Gateway.SSE).
		WithWebSocket(cfg.Gateway.WebSocket)
}
