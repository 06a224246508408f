package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/felixgeelhaar/trilhas/internal/auth"
	"github.com/felixgeelhaar/trilhas/internal/bootstrap"
	"github.com/felixgeelhaar/trilhas/internal/config"
	"github.com/felixgeelhaar/trilhas/internal/daemon"
)

// Version is set at build time via ldflags
var Version = "dev"

const shutdownTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		slog.Error("daemon error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to trilhas.yaml")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, _ := bootstrap.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx := context.Background()
	app, err := bootstrap.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open engine: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("close engine", "error", err)
		}
	}()

	server := daemon.NewServer(app.Service, auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer), daemon.ServerConfig{
		Addr:           cfg.Server.Addr(),
		ReadTimeout:    cfg.Server.ReadTimeout,
		WriteTimeout:   cfg.Server.WriteTimeout,
		RequestTimeout: cfg.Server.RequestTimeout,
		CORSOrigins:    cfg.Server.CORSOrigins,
		AdminEnabled:   cfg.Auth.AdminEnabled,
		RatePerSecond:  cfg.Resilience.RatePerSecond,
		RateBurst:      cfg.Resilience.RateBurst,
		Version:        Version,
		Logger:         logger,
	})

	// SIGHUP reloads the catalog; SIGINT and SIGTERM shut down.
	done := make(chan struct{})
	go func() {
		defer close(done)
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
		defer signal.Stop(sigCh)

		for sig := range sigCh {
			if sig == syscall.SIGHUP {
				if err := app.Catalog.Reload(ctx); err != nil {
					logger.Error("catalog reload failed", "error", err)
				}
				continue
			}

			logger.Info("received signal, shutting down", "signal", sig.String())
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("shutdown error", "error", err)
			}
			cancel()
			return
		}
	}()

	if err := server.Start(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	logger.Info("daemon stopped")
	return nil
}
