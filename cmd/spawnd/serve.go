package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/spawnkit/spawnd/internal/config"
	"github.com/spawnkit/spawnd/internal/event"
	"github.com/spawnkit/spawnd/internal/history"
	"github.com/spawnkit/spawnd/internal/logger"
	"github.com/spawnkit/spawnd/internal/metrics"
	"github.com/spawnkit/spawnd/internal/registry"
	"github.com/spawnkit/spawnd/internal/server"
)

func newServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the supervision daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(configPath)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "spawnd.toml", "path to config file")
	return cmd
}

func runServe(configPath string) error {
	fc, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(fc.Log.Level, fc.Log.Color)
	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	reg := registry.New(log)

	sinks, err := history.NewFromConfig(fc.History)
	if err != nil {
		return fmt.Errorf("history sinks: %w", err)
	}
	defer func() {
		for _, s := range sinks {
			_ = s.Close()
		}
	}()
	reg.SetHistorySinks(sinks...)

	reg.OnStatus(func(e event.Status) {
		if e.To == "crashed" {
			log.Warn("server crashed", "id", e.ServerID, "exit_code", e.ExitCode)
			return
		}
		log.Info("server state changed", "id", e.ServerID, "from", e.From, "to", e.To, "pid", e.PID)
	})

	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	hub := server.NewHub(log)
	hub.Bind(reg)
	go hub.Run(hubCtx)

	for i := range fc.Servers {
		sc := &fc.Servers[i]
		cfg, err := sc.SupervisorConfig(fc.Capture)
		if err != nil {
			return err
		}
		if err := reg.Register(cfg); err != nil {
			return err
		}
		log.Info("registered server", "id", sc.ID, "executable", sc.Executable, "port", sc.Port)
	}

	for i := range fc.Servers {
		sc := &fc.Servers[i]
		if !sc.AutoStart {
			continue
		}
		if _, err := reg.Start(sc.ID); err != nil {
			log.Error("auto start failed", "id", sc.ID, "error", err)
		} else {
			log.Info("auto started server", "id", sc.ID)
		}
	}

	srv := server.NewServer(fc.ListenAddr(), "", reg, hub)
	log.Info("daemon listening", "addr", fc.ListenAddr())

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	s := <-sig
	log.Info("shutting down", "signal", s.String())

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
		log.Warn("http shutdown", "error", err)
	}
	reg.ShutdownAll(fc.ShutdownTimeout())
	log.Info("all servers stopped")
	return nil
}
