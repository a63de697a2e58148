// Command jarvis is the terminal front end for the finance assistant.
package main

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/api"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/app"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/config"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/db"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/live"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/logging"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/recorder"
	"github.com/bytrigi/Frontend-Personal-Finances-App/internal/session"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "jarvis: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	log, closer, err := logging.Open(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return err
	}
	defer closer.Close()

	wsURL, err := cfg.WebsocketURL()
	if err != nil {
		return err
	}

	store, err := db.Open()
	if err != nil {
		return fmt.Errorf("open ledger cache: %w", err)
	}
	defer store.Close()

	client := api.NewClient(cfg.APIURL, log.With("component", "api"), api.WithLegacyChat(cfg.LegacyChat))
	rec := recorder.NewManager(
		recorder.NewDaemonDevice(cfg.RecorderSocket),
		recorder.Hooks{},
		log.With("component", "recorder"),
	)
	ctrl := session.New(rec, client, log.With("component", "session"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	push := live.New(wsURL, live.WebsocketDialer{}, log.With("component", "live"),
		live.WithReconnectDelay(cfg.ReconnectDelay))
	done := make(chan struct{})
	go func() {
		push.Run(ctx)
		close(done)
	}()

	log.Info("starting", "api_url", cfg.APIURL, "ws_url", wsURL, "recorder_socket", cfg.RecorderSocket)

	m := app.New(app.Options{
		Controller: ctrl,
		Ledger:     client,
		Store:      store,
		Push:       push,
		UserName:   cfg.UserName,
		Log:        log.With("component", "app"),
	})
	_, err = tea.NewProgram(m, tea.WithAltScreen()).Run()

	ctrl.Dispose(context.Background())
	push.Close()
	<-done
	log.Info("stopped")
	return err
}
