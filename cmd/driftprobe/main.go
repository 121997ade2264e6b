package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/HerbHall/driftwatch/internal/probe"
)

func main() {
	serverURL := flag.String("server", "http://localhost:8080", "DriftWatch server base URL")
	apiKey := flag.String("api-key", "", "API key for token exchange (empty disables auth)")
	target := flag.String("target", "", "host to ping")
	monitorID := flag.String("monitor-id", "", "existing monitor to feed (created from baseline if empty)")
	monitorName := flag.String("monitor-name", "", "name for a newly created monitor")
	interval := flag.Duration("interval", time.Second, "sampling interval")
	batchSize := flag.Int("batch", 10, "observations per upload")
	baseline := flag.Int("baseline", 500, "baseline samples to collect when creating a monitor")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if *target == "" {
		logger.Fatal("missing required -target flag")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
		cancel()
	}()

	agent := probe.NewAgent(probe.Config{
		ServerURL:       *serverURL,
		APIKey:          *apiKey,
		Target:          *target,
		MonitorID:       *monitorID,
		MonitorName:     *monitorName,
		Interval:        *interval,
		BatchSize:       *batchSize,
		BaselineSamples: *baseline,
	}, logger)

	if err := agent.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("probe error", zap.Error(err))
	}

	logger.Info("driftprobe stopped")
}
