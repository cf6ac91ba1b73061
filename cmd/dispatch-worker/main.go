package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dmehra2102/payment-gateway/internal/payment/bootstrap"
	"github.com/dmehra2102/payment-gateway/pkg/config"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/shutdown"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

func main() {
	cfg, err := config.Load("dispatch-worker")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Service, cfg.LogLevel)
	if cfg.Store.Driver == "memory" {
		log.Error("standalone worker needs a shared store; use STORE_DRIVER=postgres or WORKER_ENABLED on the gateway")
		os.Exit(1)
	}

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service, cfg.Tracing.Endpoint, log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}

	stores, err := bootstrap.OpenStores(ctx, log, cfg)
	if err != nil {
		log.Error("store setup failed", "err", err)
		os.Exit(1)
	}
	defer stores.Close()

	relay, closeRelay, err := stores.Relay(ctx, log, cfg)
	if err != nil {
		log.Error("worker setup failed", "err", err)
		os.Exit(1)
	}
	defer closeRelay()

	log.Info("dispatch worker started", "relay_id", cfg.Worker.RelayID, "psp", cfg.PSP.BaseURL, "events", cfg.Events.Broker)
	if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("relay stopped with error", "err", err)
	}

	if err := shutdown.Drain(cfg.HTTP.ShutdownTimeout, tp.Shutdown); err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	log.Info("dispatch-worker shutdown complete")
}
