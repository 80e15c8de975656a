// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"
)

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	// RateRPS is the per-client request rate. Zero disables rate
	// limiting.
	RateRPS float64

	// RateBurst is the per-client burst allowance.
	RateBurst int

	// ShutdownTimeout bounds the graceful drain of in-flight requests.
	ShutdownTimeout time.Duration
}

// DefaultServerConfig returns the default server configuration.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Addr:            ":8080",
		RateRPS:         50,
		RateBurst:       100,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server is the mining service HTTP server.
type Server struct {
	cfg     ServerConfig
	router  *gin.Engine
	limiter *ClientLimiter
	logger  *slog.Logger
}

// NewServer builds a server around the runner with tracing, request
// logging, and rate limiting middleware applied.
func NewServer(cfg ServerConfig, runner *Runner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("trawl-miner"))
	router.Use(RequestLogger(logger))

	var limiter *ClientLimiter
	if cfg.RateRPS > 0 {
		limiter = NewClientLimiter(cfg.RateRPS, cfg.RateBurst)
		router.Use(RateLimit(limiter))
	}

	RegisterRoutes(router, NewHandlers(runner))

	return &Server{cfg: cfg, router: router, limiter: limiter, logger: logger}
}

// Router returns the configured engine, mainly for tests.
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run serves until ctx is cancelled, then drains in-flight requests
// within the configured shutdown timeout. The caller remains
// responsible for closing the runner.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if s.limiter != nil {
		defer s.limiter.Stop()
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("Server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve %s: %w", s.cfg.Addr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		s.logger.Info("Server shutting down")

		timeout := s.cfg.ShutdownTimeout
		if timeout <= 0 {
			timeout = DefaultServerConfig().ShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
