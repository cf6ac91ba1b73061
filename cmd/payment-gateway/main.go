package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmehra2102/payment-gateway/internal/payment/application"
	"github.com/dmehra2102/payment-gateway/internal/payment/bootstrap"
	paymenthttp "github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/http"
	"github.com/dmehra2102/payment-gateway/pkg/config"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/shutdown"
	"github.com/dmehra2102/payment-gateway/pkg/tracing"
)

func main() {
	cfg, err := config.Load("payment-gateway")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New(cfg.Service, cfg.LogLevel)

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

	guard, closeGuard, err := stores.Guard(ctx, log, cfg)
	if err != nil {
		log.Error("idempotency setup failed", "err", err)
		os.Exit(1)
	}
	defer closeGuard()

	// In-process worker
	relayDone := make(chan struct{})
	if cfg.Worker.Enabled {
		relay, closeRelay, err := stores.Relay(ctx, log, cfg)
		if err != nil {
			log.Error("worker setup failed", "err", err)
			os.Exit(1)
		}
		defer closeRelay()
		go func() {
			defer close(relayDone)
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("relay stopped with error", "err", err)
			}
		}()
	} else {
		close(relayDone)
	}

	handler := paymenthttp.NewHandler(log, application.NewService(stores.Repo), guard)

	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Mount("/", handler.Routes())
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info("http listening", "addr", cfg.HTTP.Addr, "store", cfg.Store.Driver, "worker", cfg.Worker.Enabled)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()

	err = shutdown.Drain(cfg.HTTP.ShutdownTimeout,
		srv.Shutdown,
		func(ctx context.Context) error {
			select {
			case <-relayDone:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
		tp.Shutdown,
	)
	if err != nil {
		log.Warn("shutdown incomplete", "err", err)
	}
	log.Info("payment-gateway shutdown complete")
}
