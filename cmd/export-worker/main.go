package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"expensecal/internal/amqp"
	"expensecal/internal/backend"
	"expensecal/internal/cli"
	"expensecal/internal/config"
	"expensecal/internal/log"
	"expensecal/internal/recurrence"
	gsheet "expensecal/internal/sheets/google"
	"expensecal/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentWorker)
	logger.Info("Starting export-worker")

	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).ValidateWorker)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	// The worker only reads the record set; it must not publish changes of
	// its own, so the store is opened without a broker.
	backendCfg := backend.FromAppConfig(cfg)
	backendCfg.AMQPURL = ""
	records, cleanup, err := backend.OpenStore(ctx, backend.NewFactory(logger.Logger), backendCfg)
	if err != nil {
		logger.Error("Failed to open expense store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer cleanup()

	sheetsClient, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName)
	if err != nil {
		logger.Error("Failed to initialize Google Sheets client", "error", err)
		os.Exit(1)
	}
	logger.Info("Google Sheets client initialized", "spreadsheet_id", cfg.GoogleSpreadsheetID)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	exporter := worker.NewExportWorker(records, sheetsClient, recurrence.Aggregator{Weekly: cfg.Weekly()})

	// Catch up on anything missed while the worker was down.
	if err := exporter.ExportCurrentMonth(ctx); err != nil {
		logger.Error("Startup export failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.Consume(gctx, exporter.HandleMessage)
	})
	g.Go(func() error {
		logger.Info("Periodic export scheduled", "interval", cfg.ExportInterval)
		return exporter.RunPeriodic(gctx, cfg.ExportInterval)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Worker stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}
