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
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/trawl/services/miner/telemetry"
)

// RegisterRoutes registers all mining service routes with the router.
//
// Description:
//
//	Registers the /v1/runs endpoints plus the operational endpoints at
//	the root. The router should already have any required middleware
//	applied.
//
// Inputs:
//
//	router - Gin engine
//	handlers - The handlers instance
//
// Run Endpoints:
//
//	POST /v1/runs - Start a mining run
//	GET  /v1/runs/:id - Get run state and result
//	GET  /v1/runs/:id/stream - Stream run progress over WebSocket
//
// Operational Endpoints:
//
//	GET /healthz - Health check
//	GET /metrics - Prometheus metrics
//
// Example:
//
//	runner, _ := api.NewRunner(api.RunnerConfig{Store: st})
//	handlers := api.NewHandlers(runner)
//	api.RegisterRoutes(router, handlers)
func RegisterRoutes(router *gin.Engine, handlers *Handlers) {
	router.GET("/healthz", handlers.HandleHealth)
	router.GET("/metrics", handlers.HandleMetrics)

	v1 := router.Group("/v1")
	{
		runs := v1.Group("/runs")
		{
			runs.POST("", handlers.HandleStartRun)
			runs.GET("/:id", handlers.HandleGetRun)
			runs.GET("/:id/stream", handlers.HandleStreamRun)
		}
	}
}

// RequestLogger returns middleware that logs one line per request with
// the trace context attached. Health and metrics probes log at Debug to
// keep scrape noise out of Info logs.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		reqLogger := telemetry.LoggerWithTrace(c.Request.Context(), logger)
		attrs := []any{
			"method", c.Request.Method,
			"path", path,
			"status", c.Writer.Status(),
			"duration_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"client_ip", c.ClientIP(),
		}
		if path == "/healthz" || path == "/metrics" {
			reqLogger.Debug("Request handled", attrs...)
			return
		}
		reqLogger.Info("Request handled", attrs...)
	}
}
