// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/trawl/cmd/trawl/config"
	"github.com/AleutianAI/trawl/services/miner/api"
	"github.com/AleutianAI/trawl/services/miner/store"
	"github.com/AleutianAI/trawl/services/miner/telemetry"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	serveAddr     string
	serveStoreDir string
	serveInMemory bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// serveCmd runs the mining HTTP service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the mining HTTP service",
	Long: `Serve the miner over HTTP with WebSocket progress streaming.

Endpoints:
  POST /v1/runs             start an async mining run
  GET  /v1/runs/:id         run status and, when finished, the result
  GET  /v1/runs/:id/stream  WebSocket per-epoch progress + final result
  GET  /healthz             liveness
  GET  /metrics             Prometheus exposition

Completed runs persist to the results store and survive restarts. The
config file is watched while serving: changes to the mining section
apply to new runs immediately; listener address and store location
changes require a restart.

Examples:
  trawl serve
  trawl serve --addr :9090
  trawl serve --in-memory`,
	Args: cobra.NoArgs,
	Run:  runServe,
}

// =============================================================================
// COMMAND REGISTRATION
// =============================================================================

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "",
		"Listen address (overrides the config file)")
	serveCmd.Flags().StringVar(&serveStoreDir, "store-dir", "",
		"Results store directory (overrides the config file)")
	serveCmd.Flags().BoolVar(&serveInMemory, "in-memory", false,
		"Keep the results store in memory (runs are lost on exit)")

	rootCmd.AddCommand(serveCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runServe wires telemetry, the store, the runner, and the HTTP server,
// then blocks until a signal arrives.
func runServe(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Init(ctx, telemetryConfig())
	if err != nil {
		slog.Error("Failed to initialize telemetry", "error", err)
		os.Exit(1)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	st, err := openStore()
	if err != nil {
		slog.Error("Failed to open the results store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	runner := api.NewRunner(api.RunnerConfig{
		Store:             st,
		Logger:            slog.Default(),
		MaxConcurrentRuns: cfg.Server.MaxConcurrentRuns,
		DefaultOptions:    &cfg.Mining,
	})
	defer runner.Close()

	// Hot-reload the default mining config while serving.
	watchPath := cfgPath
	if watchPath == "" {
		if p, err := config.DefaultPath(); err == nil {
			watchPath = p
		}
	}
	if watchPath != "" {
		watcher, err := config.Watch(watchPath, func(next *config.TrawlConfig) {
			if err := runner.SetDefaultOptions(&next.Mining); err != nil {
				slog.Warn("Rejected reloaded mining config", "error", err)
				return
			}
			slog.Info("Applied reloaded mining config")
		})
		if err != nil {
			slog.Warn("Config watching disabled", "path", watchPath, "error", err)
		} else {
			defer watcher.Stop()
		}
	}

	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	server := api.NewServer(api.ServerConfig{
		Addr:            addr,
		RateRPS:         cfg.Server.RateRPS,
		RateBurst:       cfg.Server.RateBurst,
		ShutdownTimeout: time.Duration(cfg.Server.ShutdownSeconds) * time.Second,
	}, runner, slog.Default())

	if isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd()) {
		printServeBanner(addr, st)
	}
	slog.Info("Starting the mining service", "addr", addr, "store", storeLabel(st))
	if err := server.Run(ctx); err != nil {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Mining service stopped")
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// telemetryConfig maps the config file's telemetry section onto the
// provider bootstrap, keeping the environment-variable fallbacks.
func telemetryConfig() telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceName = "trawl-miner"
	tc.ServiceVersion = api.ServiceVersion
	if cfg.Telemetry.TraceExporter != "" {
		tc.TraceExporter = cfg.Telemetry.TraceExporter
	}
	if cfg.Telemetry.MetricExporter != "" {
		tc.MetricExporter = cfg.Telemetry.MetricExporter
	}
	if cfg.Telemetry.OTLPEndpoint != "" {
		tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	}
	return tc
}

// openStore opens the results store per config and flag overrides.
func openStore() (*store.Store, error) {
	if serveInMemory || cfg.Store.InMemory {
		return store.OpenInMemory()
	}
	dir := cfg.Store.Dir
	if serveStoreDir != "" {
		dir = serveStoreDir
	}
	sc := store.DefaultConfig()
	sc.Path = config.ExpandPath(dir)
	sc.Logger = slog.Default()
	return store.Open(sc)
}

// storeLabel describes the store destination for logs.
func storeLabel(st *store.Store) string {
	if st.InMemory() {
		return "in-memory"
	}
	return st.Path()
}

// printServeBanner prints a startup summary for interactive terminals.
func printServeBanner(addr string, st *store.Store) {
	fmt.Fprintf(os.Stderr, `
  trawl miner %s
  listening on  %s
  results store %s
  endpoints     POST /v1/runs  GET /v1/runs/:id[/stream]  /healthz  /metrics

`, api.ServiceVersion, addr, storeLabel(st))
}
