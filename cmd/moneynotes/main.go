package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"moneynotes/internal/backend"
	"moneynotes/internal/cli"
	apphttp "moneynotes/internal/http"
	"moneynotes/internal/log"
	"moneynotes/internal/screen"
	"moneynotes/internal/services"
)

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"))
	cfg := cli.LoadAndValidateConfig(logger)

	ctx, stop := cli.SignalContext(context.Background())
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", log.FieldError, err.Error())
		os.Exit(1)
	}
	result, err := backend.NewFactory(logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		logger.Error("Failed to create backend", log.FieldError, err.Error(), "backend", cfg.DataBackend)
		os.Exit(1)
	}

	ledger := services.NewLedgerService(result.Backend, result.Publisher, logger)
	defer func() {
		if err := ledger.Close(); err != nil {
			logger.Error("Ledger close error", log.FieldError, err.Error())
		}
	}()

	srv := apphttp.NewServer(":"+cfg.Port, screen.New(ledger, logger), apphttp.Options{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		ViewCacheTTL:       cfg.ViewCacheTTL,
		TrustedProxies:     cfg.TrustedProxies,
	}, logger)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting moneynotes server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"ledger_events", cfg.AMQPEnabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", log.FieldError, err.Error(), "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
