// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package input

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
	tracer = otel.Tracer("trawl.input")
	meter  = otel.Meter("trawl.input")
)

var (
	metricsOnce sync.Once
	metricsErr  error

	loadLatency metric.Float64Histogram
	loadGraphs  metric.Int64Counter
	loadRows    metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metric instruments lazily so a
// missing meter provider degrades to no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		loadLatency, err = meter.Float64Histogram(
			"trawl.input.load.latency",
			metric.WithDescription("Input load latency in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		loadGraphs, err = meter.Int64Counter(
			"trawl.input.load.graphs",
			metric.WithDescription("Graphs loaded from input files"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		loadRows, err = meter.Int64Counter(
			"trawl.input.load.rows",
			metric.WithDescription("Rows loaded from input files"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordLoadMetrics records load latency and volume.
func recordLoadMetrics(ctx context.Context, duration time.Duration, graphs, rows int) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	loadLatency.Record(ctx, ms)
	loadGraphs.Add(ctx, int64(graphs))
	loadRows.Add(ctx, int64(rows))
}

// startLoadSpan starts a trace span for a file load.
func startLoadSpan(ctx context.Context, name string, files int) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.Int("input.files", files),
		),
	)
}

// setLoadSpanResult attaches load volume to a load span.
func setLoadSpanResult(span trace.Span, graphs, rows int) {
	span.SetAttributes(
		attribute.Int("input.graphs", graphs),
		attribute.Int("input.rows", rows),
	)
}
