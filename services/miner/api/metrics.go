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
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	tracer = otel.Tracer("trawl.api")
	meter  = otel.Meter("trawl.api")
)

var (
	metricsOnce sync.Once
	metricsErr  error

	runLatency    metric.Float64Histogram
	runsStarted   metric.Int64Counter
	runsFailed    metric.Int64Counter
	streamClients metric.Int64UpDownCounter
)

// initMetrics initializes OpenTelemetry metric instruments lazily so a
// missing meter provider degrades to no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		runLatency, err = meter.Float64Histogram(
			"trawl.api.run.latency",
			metric.WithDescription("Mining run wall time in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		runsStarted, err = meter.Int64Counter(
			"trawl.api.runs.started",
			metric.WithDescription("Mining runs accepted"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		runsFailed, err = meter.Int64Counter(
			"trawl.api.runs.failed",
			metric.WithDescription("Mining runs that ended in failure"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		streamClients, err = meter.Int64UpDownCounter(
			"trawl.api.stream.clients",
			metric.WithDescription("Connected run-stream WebSocket clients"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunStarted counts an accepted run.
func recordRunStarted(ctx context.Context) {
	if err := initMetrics(); err != nil {
		return
	}
	runsStarted.Add(ctx, 1)
}

// recordRunDone records run wall time and the failure count.
func recordRunDone(ctx context.Context, duration time.Duration, failed bool) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	runLatency.Record(ctx, ms)
	if failed {
		runsFailed.Add(ctx, 1)
	}
}

// recordStreamClient tracks WebSocket attach and detach.
func recordStreamClient(ctx context.Context, delta int64) {
	if err := initMetrics(); err != nil {
		return
	}
	streamClients.Add(ctx, delta)
}

// startRunSpan starts the span covering one background mining run.
func startRunSpan(ctx context.Context, runID string, edges int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "api.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.edges", edges),
		),
	)
}

// setRunSpanResult attaches the terminal state to a run span.
func setRunSpanResult(span trace.Span, state RunState, epochs int, bestScore float64) {
	span.SetAttributes(
		attribute.String("run.state", string(state)),
		attribute.Int("run.epochs", epochs),
		attribute.Float64("run.best_score", bestScore),
	)
}
