package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"expensecal/internal/backend"
	"expensecal/internal/cli"
	"expensecal/internal/config"
	apphttp "expensecal/internal/http"
	"expensecal/internal/log"
	"expensecal/internal/recurrence"
	"expensecal/internal/store"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type healthReporter interface {
	Healthy() bool
}

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ctx, stop := cli.SignalContext(logger)
	defer stop()

	res, err := backend.NewFactory(logger.Logger).CreateBackend(ctx, backend.FromAppConfig(cfg))
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer func() {
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", "error", err)
		}
	}()

	var storeOpts []store.Option
	if res.Notifier != nil {
		storeOpts = append(storeOpts, store.WithNotifier(res.Notifier))
	}
	records := store.New(res.Persister, storeOpts...)
	if err := records.Load(ctx); err != nil {
		logger.Error("Failed to load expenses", "error", err)
		os.Exit(1)
	}

	opts := []apphttp.Option{apphttp.WithLogger(logger.WithComponent(log.ComponentHTTP))}
	if p, ok := res.Persister.(pinger); ok {
		opts = append(opts, apphttp.WithReadinessCheck("database", p.Ping))
	}
	if h, ok := res.Notifier.(healthReporter); ok {
		opts = append(opts, apphttp.WithReadinessCheck("amqp", func(context.Context) error {
			if !h.Healthy() {
				return errors.New("broker connection closed")
			}
			return nil
		}))
	}

	srv := apphttp.NewServer(cfg.Addr(), records, recurrence.Aggregator{Weekly: cfg.Weekly()}, opts...)
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting expensecal server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"weekly_estimate", cfg.WeeklyEstimate,
			"amqp_enabled", res.Notifier != nil,
			"expenses", records.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}
