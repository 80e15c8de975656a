// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package simplegraph

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
	tracer = otel.Tracer("trawl.simplegraph")
	meter  = otel.Meter("trawl.simplegraph")
)

var (
	metricsOnce sync.Once
	metricsErr  error

	featurizeLatency metric.Float64Histogram
	featurizeGraphs  metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metric instruments lazily so a
// missing meter provider degrades to no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		featurizeLatency, err = meter.Float64Histogram(
			"trawl.simplegraph.featurize.latency",
			metric.WithDescription("Featurizer latency per graph in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		featurizeGraphs, err = meter.Int64Counter(
			"trawl.simplegraph.featurize.graphs",
			metric.WithDescription("Graphs featurized"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordFeaturizeMetrics records one featurizer pass.
func recordFeaturizeMetrics(ctx context.Context, duration time.Duration) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	featurizeLatency.Record(ctx, ms)
	featurizeGraphs.Add(ctx, 1)
}

// startFeaturizeSpan starts a trace span for one featurizer pass.
func startFeaturizeSpan(ctx context.Context, nodeCount, edgeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "simplegraph.featurize",
		trace.WithAttributes(
			attribute.Int("graph.nodes", nodeCount),
			attribute.Int("graph.edges", edgeCount),
		),
	)
}

// setFeaturizeSpanResult attaches component counts to a featurize span.
func setFeaturizeSpanResult(span trace.Span, components, largest int) {
	span.SetAttributes(
		attribute.Int("featurize.components", components),
		attribute.Int("featurize.largest_cc", largest),
	)
}
