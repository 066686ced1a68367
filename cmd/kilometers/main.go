package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"kilometers/internal/backend"
	"kilometers/internal/cli"
	apphttp "kilometers/internal/http"
	applog "kilometers/internal/log"
	"kilometers/internal/services"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	cfg := cli.LoadAndValidateConfig(logger)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}

	res, err := backend.NewFactory(logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", backendCfg.Type)
		os.Exit(1)
	}

	// A nil *amqp.Client must not end up in these interfaces.
	var (
		events    services.EventPublisher
		publisher services.ArchivePublisher
		broker    apphttp.BrokerStatus
	)
	if res.AMQP != nil {
		events, publisher, broker = res.AMQP, res.AMQP, res.AMQP
		logger.Info("AMQP enabled - archive requests are handled by km-archiver")
	} else {
		logger.Info("AMQP disabled - archives are written synchronously")
	}

	reports := services.NewReportService(res.Backend, res.Backend)
	archives := services.NewArchiveService(reports, res.Backend, res.Backend, cfg.ArchiveDir, publisher)
	if events == nil {
		// archived months are refreshed in-process after each edit
		events = archives
	}
	entries := services.NewEntryService(res.Backend, events)

	var health apphttp.HealthChecker
	if p, ok := res.Backend.(backend.Pinger); ok {
		health = p
	}

	srv := apphttp.NewServer(apphttp.Config{
		Addr:               cfg.Addr(),
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		RateLimitBurst:     cfg.RateLimitBurst,
		Logger:             applog.New(applog.Config{Level: applog.ParseLevel(cfg.LogLevel)}),
	}, apphttp.Dependencies{
		Entries:  entries,
		Reports:  reports,
		Archives: archives,
		Health:   health,
		Broker:   broker,
	})

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 25*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if res.Cleanup != nil {
			if err := res.Cleanup(); err != nil {
				logger.Error("Backend cleanup error", "error", err)
			}
		}
	})

	logger.Info("Starting kilometers server",
		"addr", cfg.Addr(),
		"backend", backendCfg.Type,
		"archive_dir", cfg.ArchiveDir)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "addr", cfg.Addr())
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
