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
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/store"
	"github.com/AleutianAI/trawl/services/miner/telemetry"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// Handlers contains the HTTP handlers for the mining service.
//
// Thread Safety: Handlers is safe for concurrent use.
type Handlers struct {
	runner    *Runner
	startedAt time.Time
}

// NewHandlers creates handlers backed by the given runner.
func NewHandlers(runner *Runner) *Handlers {
	return &Handlers{runner: runner, startedAt: time.Now()}
}

// HandleStartRun handles POST /v1/runs.
//
// Description:
//
//	Validates the type schema and mining configuration, registers the
//	run, and starts the search in the background. Edge errors surface
//	on the run record, not on this response.
//
// Request Body:
//
//	RunRequest
//
// Response:
//
//	202 Accepted: RunResponse
//	400 Bad Request: Validation error
//	503 Service Unavailable: Run limit reached or server shutting down
func (h *Handlers) HandleStartRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStartRun")

	var req RunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		logger.Warn("Invalid request body", "error", err)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid request body",
			Code:  "INVALID_REQUEST",
		})
		return
	}

	runID, err := h.runner.Start(c.Request.Context(), &req)
	if err != nil {
		statusCode := http.StatusInternalServerError
		errCode := "START_FAILED"

		if errors.Is(err, typespec.ErrInvalidSpec) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_SPEC"
		} else if errors.Is(err, beam.ErrInvalidOptions) {
			statusCode = http.StatusBadRequest
			errCode = "INVALID_CONFIG"
		} else if errors.Is(err, ErrTooManyRuns) {
			statusCode = http.StatusServiceUnavailable
			errCode = "TOO_MANY_RUNS"
		} else if errors.Is(err, ErrRunnerClosed) {
			statusCode = http.StatusServiceUnavailable
			errCode = "SHUTTING_DOWN"
		}

		logger.Warn("Run rejected", "error", err)
		c.JSON(statusCode, ErrorResponse{
			Error: err.Error(),
			Code:  errCode,
		})
		return
	}

	logger.Info("Run started", "run_id", runID, "edges", len(req.Edges))

	c.JSON(http.StatusAccepted, RunResponse{
		RunID: runID,
		State: RunPending,
	})
}

// HandleGetRun handles GET /v1/runs/:id.
//
// Description:
//
//	Reports the run's lifecycle state and, once the run completed, the
//	result document. Runs finished by an earlier process are served
//	from the results store.
//
// Path Parameters:
//
//	id: Run ID (required)
//
// Response:
//
//	200 OK: RunStatus
//	404 Not Found: Unknown run id
//	500 Internal Server Error: Store lookup error
func (h *Handlers) HandleGetRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetRun")

	runID := c.Param("id")
	if runID == "" {
		logger.Warn("Missing run id")
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "run id is required",
			Code:  "MISSING_PARAMETER",
		})
		return
	}

	status, err := h.runner.Status(c.Request.Context(), runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			c.JSON(http.StatusNotFound, ErrorResponse{
				Error: err.Error(),
				Code:  "RUN_NOT_FOUND",
			})
			return
		}

		logger.Error("Run lookup failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error: err.Error(),
			Code:  "LOOKUP_FAILED",
		})
		return
	}

	c.JSON(http.StatusOK, status)
}

// HandleStreamRun handles GET /v1/runs/:id/stream.
//
// Description:
//
//	Upgrades to a WebSocket and pushes one EventEpoch message per
//	completed epoch, then a single EventResult or EventError message,
//	then closes. Subscribers attaching mid-run receive the already
//	completed epochs first; subscribers attaching after completion
//	receive only the terminal message.
//
// Path Parameters:
//
//	id: Run ID (required)
//
// Response:
//
//	101 Switching Protocols: StreamEvent messages
//	404 Not Found: Unknown run id
func (h *Handlers) HandleStreamRun(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleStreamRun")

	runID := c.Param("id")
	watch, live := h.runner.Watch(runID)

	// Runs this process does not remember can still stream their
	// terminal event when the store has the document.
	var stored *RunStatus
	if !live {
		status, err := h.runner.Status(c.Request.Context(), runID)
		if err != nil {
			if errors.Is(err, store.ErrRunNotFound) {
				c.JSON(http.StatusNotFound, ErrorResponse{
					Error: err.Error(),
					Code:  "RUN_NOT_FOUND",
				})
				return
			}
			logger.Error("Run lookup failed", "error", err)
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Error: err.Error(),
				Code:  "LOOKUP_FAILED",
			})
			return
		}
		stored = status
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("WebSocket upgrade failed", "error", err)
		if live {
			watch.Close()
		}
		return
	}
	defer ws.Close()

	recordStreamClient(c.Request.Context(), 1)
	defer recordStreamClient(c.Request.Context(), -1)

	logger.Info("Stream attached", "run_id", runID, "live", live)

	if !live {
		h.writeTerminal(ws, stored)
		return
	}
	defer watch.Close()

	for _, st := range watch.Replay {
		if !writeEvent(ws, StreamEvent{Event: EventEpoch, Epoch: &st}) {
			return
		}
	}

	// The reader goroutine surfaces client disconnects; this stream
	// never expects inbound data.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case st := <-watch.Events:
			if !writeEvent(ws, StreamEvent{Event: EventEpoch, Epoch: &st}) {
				return
			}
		case <-watch.Done:
			h.drainAndFinish(c, ws, watch, runID)
			return
		case <-clientGone:
			logger.Info("Stream client disconnected", "run_id", runID)
			return
		}
	}
}

// drainAndFinish flushes buffered epoch events and sends the terminal
// message. The terminal state is read from the run record rather than
// the channel, so it is delivered even when a slow consumer dropped
// progress events.
func (h *Handlers) drainAndFinish(c *gin.Context, ws *websocket.Conn, watch *RunWatch, runID string) {
	for {
		select {
		case st := <-watch.Events:
			if !writeEvent(ws, StreamEvent{Event: EventEpoch, Epoch: &st}) {
				return
			}
			continue
		default:
		}
		break
	}

	status, err := h.runner.Status(c.Request.Context(), runID)
	if err != nil {
		writeEvent(ws, StreamEvent{Event: EventError, Error: err.Error()})
		return
	}
	h.writeTerminal(ws, status)
}

// writeTerminal sends the result or error message and the close frame.
func (h *Handlers) writeTerminal(ws *websocket.Conn, status *RunStatus) {
	ev := StreamEvent{Event: EventResult, Document: status.Document}
	if status.State == RunFailed {
		ev = StreamEvent{Event: EventError, Error: status.Error}
	}
	if !writeEvent(ws, ev) {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
}

// writeEvent writes one JSON message, reporting whether the connection
// is still usable.
func writeEvent(ws *websocket.Conn, ev StreamEvent) bool {
	if err := ws.WriteJSON(ev); err != nil {
		slog.Warn("Failed to write WebSocket JSON", "error", err)
		return false
	}
	return true
}

// HandleHealth handles GET /healthz.
//
// Response:
//
//	200 OK: HealthResponse
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "ok",
		Version:       ServiceVersion,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
	})
}

// HandleMetrics handles GET /metrics.
//
// Description:
//
//	Serves the Prometheus exposition endpoint registered by the
//	telemetry package. Responds 503 until telemetry is initialized
//	with the prometheus exporter.
//
// Response:
//
//	200 OK: Prometheus text exposition
//	503 Service Unavailable: Metrics exporter not configured
func (h *Handlers) HandleMetrics(c *gin.Context) {
	mh := telemetry.MetricsHandler()
	if mh == nil {
		c.JSON(http.StatusServiceUnavailable, ErrorResponse{
			Error: "Metrics require the prometheus exporter",
			Code:  "METRICS_UNAVAILABLE",
		})
		return
	}
	mh.ServeHTTP(c.Writer, c.Request)
}

// getOrCreateRequestID gets or creates a request ID.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}
