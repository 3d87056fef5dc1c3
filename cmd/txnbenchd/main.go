package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/concurrency-lab/txnbench/config"
	"github.com/concurrency-lab/txnbench/core/txn"
	"github.com/concurrency-lab/txnbench/pkg/logger"
	"github.com/concurrency-lab/txnbench/pkg/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to a YAML config file; defaults to the reference configuration")
	mode       = flag.String("mode", "", "Override the config file's concurrency-control mode")
	workers    = flag.Int("workers", 0, "Override the config file's worker pool size")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}

	cpMode, err := parseMode(cfg.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: invalid mode %q: %v\n", cfg.Mode, err)
		os.Exit(1)
	}

	// Tag logs and telemetry with a service name that carries this run's
	// selected mode, rather than a single static string shared by every
	// mode a txnbenchd binary could be launched with. A config file may
	// still pin its own service_name to override this.
	runService := fmt.Sprintf("txnbenchd-%s", cpMode.String())
	if cfg.Logger.ServiceName == "" {
		cfg.Logger.ServiceName = runService
	}
	if cfg.Telemetry.ServiceName == "" {
		cfg.Telemetry.ServiceName = runService
	}

	zlogger, err := logger.New(cfg.Logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: can't initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer zlogger.Sync()

	tel, shutdownTelemetry, err := telemetry.New(cfg.Telemetry)
	if err != nil {
		zlogger.Fatal("can't initialize telemetry", zap.Error(err))
	}

	m, err := txn.NewMetrics(tel.Meter)
	if err != nil {
		zlogger.Fatal("can't register metrics", zap.Error(err))
	}

	store := txn.NewInMemoryStore()
	store.Init(cfg.StoreKeys)

	processor := txn.NewProcessor(cpMode, store, cfg.Workers, zlogger, m)

	ctx, cancel := context.WithCancel(context.Background())
	go processor.Run(ctx)

	zlogger.Info("txnbenchd started",
		zap.String("mode", cpMode.String()),
		zap.Int("workers", cfg.Workers),
		zap.Int("store_keys", cfg.StoreKeys),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	zlogger.Info("shutting down")
	cancel()
	processor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := shutdownTelemetry(shutdownCtx); err != nil {
		zlogger.Warn("telemetry shutdown reported an error", zap.Error(err))
	}
}

func parseMode(s string) (txn.Mode, error) {
	switch s {
	case "SERIAL":
		return txn.SERIAL, nil
	case "LOCKING_EXCLUSIVE_ONLY":
		return txn.LOCKING_EXCLUSIVE_ONLY, nil
	case "LOCKING":
		return txn.LOCKING, nil
	case "TWOPL":
		return txn.TWOPL, nil
	case "TWOPL2":
		return txn.TWOPL2, nil
	case "OCC":
		return txn.OCC, nil
	case "P_OCC":
		return txn.P_OCC, nil
	case "MVCC":
		return txn.MVCC, nil
	case "SILO":
		return txn.SILO, nil
	default:
		return 0, fmt.Errorf("unknown mode %q", s)
	}
}
