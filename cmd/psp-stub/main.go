package main

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/dmehra2102/payment-gateway/internal/payment/infrastructure/psp"
	"github.com/dmehra2102/payment-gateway/pkg/config"
	"github.com/dmehra2102/payment-gateway/pkg/logging"
	"github.com/dmehra2102/payment-gateway/pkg/shutdown"
)

func main() {
	cfg := config.Default("psp-stub")
	cfg.HTTP.Addr = ":5279"
	if v := os.Getenv("HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	log := logging.New(cfg.Service, os.Getenv("LOG_LEVEL"))

	ctx, cancel := shutdown.WithSignals(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      psp.NewStub(log).Routes(),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		log.Info("psp stub listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server error", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	_ = shutdown.Drain(cfg.HTTP.ShutdownTimeout, srv.Shutdown)
	log.Info("psp-stub shutdown complete")
}
