package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/vitwit/storefront"
	"github.com/vitwit/storefront/api"
	"github.com/vitwit/storefront/config"
	"github.com/vitwit/storefront/logger"
	"github.com/vitwit/storefront/metrics"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewZapLogger(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("storefront stopped", map[string]any{"err": err})
		_ = log.Sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, log *logger.ZapLogger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var recorder metrics.Recorder = metrics.NoopRecorder{}
	if cfg.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder(cfg.Metrics.Namespace)
	}

	sf, err := storefront.New(ctx, cfg,
		storefront.WithLogger(log),
		storefront.WithMetrics(recorder),
	)
	if err != nil {
		return err
	}
	defer sf.Close()

	srv := api.NewServer(log, api.ServerConfig{
		Addr:         cfg.HTTP.Addr,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
	}, sf.Handler())

	errCh := make(chan error, 2)
	go func() {
		errCh <- srv.Start()
	}()
	go func() {
		if err := sf.RunSettlement(ctx); err != nil {
			errCh <- fmt.Errorf("settlement: %w", err)
		}
	}()

	log.Info("storefront started", map[string]any{
		"chain":    cfg.Chain.Name,
		"node":     cfg.ChainNodeURL(),
		"database": cfg.Database.Driver,
		"wallets":  len(cfg.Wallets),
	})

	var runErr error
	select {
	case <-ctx.Done():
		log.Info("received shutdown signal", nil)
	case runErr = <-errCh:
		if runErr != nil {
			log.Error("server stopped unexpectedly", map[string]any{"err": runErr})
		}
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout.Std())
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", map[string]any{"err": err})
	}
	return runErr
}
