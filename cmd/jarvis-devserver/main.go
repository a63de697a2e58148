// Command jarvis-devserver runs a local fake of the assistant backend.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/config"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/devserver"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/logging"
)

func main() {
	log := logging.New(os.Stderr, os.Getenv("JARVIS_LOG_LEVEL"))

	cfg, err := config.Load()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	srv := devserver.New(log)
	httpSrv := &http.Server{
		Addr:              cfg.DevServerAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Hub().CloseAll()
		httpSrv.Shutdown(shutdownCtx)
	}()

	log.Info("devserver listening", "addr", cfg.DevServerAddr)
	if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("devserver failed", "error", err)
		os.Exit(1)
	}
	log.Info("devserver stopped")
}
