package main

import (
	"context"
	"errors"
	"os"
	"time"

	"kilometers/internal/amqp"
	"kilometers/internal/cli"
	"kilometers/internal/services"
	"kilometers/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger()
	logger.Info("Starting km-archiver")

	cfg := cli.LoadAndValidateConfig(logger)

	sqliteRepo := cli.InitSQLite(logger, cfg)
	defer sqliteRepo.Close()

	reports := services.NewReportService(sqliteRepo, sqliteRepo)
	archives := services.NewArchiveService(reports, sqliteRepo, sqliteRepo, cfg.ArchiveDir, nil)
	archiveWorker := worker.NewArchiveWorker(archives, cfg.ArchiveConcurrency)

	var (
		amqpClient *amqp.Client
		processor  *services.ArchiveProcessor
	)
	if cfg.AMQPEnabled() {
		var err error
		amqpClient, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("AMQP disabled - polling for completed months instead",
			"interval", cfg.ArchiveInterval)
		processor = services.NewArchiveProcessor(archives, services.ArchiveProcessorConfig{
			PollInterval: cfg.ArchiveInterval,
			Concurrency:  cfg.ArchiveConcurrency,
		})
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if processor != nil {
			if err := processor.Stop(stopCtx); err != nil {
				logger.Warn("Archive processor stop error", "error", err)
			}
		}
		if amqpClient != nil {
			if err := amqpClient.Close(); err != nil {
				logger.Warn("AMQP close error", "error", err)
			}
		}
	})

	if processor != nil {
		// The processor archives the backlog on its first cycle.
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start archive processor", "error", err)
			os.Exit(1)
		}
	} else {
		logger.Info("Performing startup backlog check...")
		if err := archiveWorker.StartupBacklog(ctx); err != nil {
			logger.Error("Startup backlog failed", "error", err)
		}

		go func() {
			err := amqpClient.ConsumeArchiveRequests(ctx, archiveWorker.HandleArchiveRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Message consumption failed", "error", err)
				os.Exit(1)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("km-archiver stopped")
}
