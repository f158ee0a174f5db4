package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"expensecal/internal/backend"
	"expensecal/internal/calendar"
	"expensecal/internal/cli"
	"expensecal/internal/config"
	"expensecal/internal/core"
	"expensecal/internal/log"
	"expensecal/internal/recurrence"
	"expensecal/internal/report"
)

func main() {
	now := time.Now()
	var (
		year      = flag.Int("year", now.Year(), "Year of the report")
		month     = flag.Int("month", int(now.Month()), "Month of the report (1-12)")
		weekly    = flag.String("weekly", "", "Weekly estimate: fixed or exact (default WEEKLY_ESTIMATE)")
		emptyDays = flag.Bool("all-days", false, "List days without expenses")
	)
	flag.Parse()

	cli.LoadEnvFile()
	// Logs go to stderr so the report can be piped.
	lvl, _ := log.ParseLevel(os.Getenv("LOG_LEVEL"))
	logger := log.New(log.Config{Level: lvl, Component: log.ComponentReport, Output: os.Stderr})
	log.SetDefault(logger)

	if *weekly != "" {
		os.Setenv("WEEKLY_ESTIMATE", *weekly)
	}
	cfg := cli.LoadAndValidateConfig(logger, (*config.Config).Validate)

	ym := core.YearMonth{Year: *year, Month: *month}
	if err := ym.Validate(); err != nil {
		logger.Error("Invalid month", "error", err, "year", *year, "month", *month)
		os.Exit(2)
	}

	ctx := context.Background()
	backendCfg := backend.FromAppConfig(cfg)
	backendCfg.AMQPURL = ""
	records, cleanup, err := backend.OpenStore(ctx, backend.NewFactory(logger.Logger), backendCfg)
	if err != nil {
		logger.Error("Failed to open expense store", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer cleanup()

	agg := recurrence.Aggregator{Weekly: cfg.Weekly()}
	v := calendar.Build(records.List(), ym, core.DateOf(now), agg)
	if err := report.Write(os.Stdout, v, agg.Weekly.String(), report.Options{EmptyDays: *emptyDays}); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
