// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package hypergraph

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
	tracer = otel.Tracer("trawl.hypergraph")
	meter  = otel.Meter("trawl.hypergraph")
)

var (
	metricsOnce sync.Once
	metricsErr  error

	buildLatency metric.Float64Histogram
	nodesBuilt   metric.Int64Counter
	edgesBuilt   metric.Int64Counter
	pruneLatency metric.Float64Histogram
	nodesPruned  metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metric instruments lazily so a
// missing meter provider degrades to no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		buildLatency, err = meter.Float64Histogram(
			"trawl.hypergraph.build.latency",
			metric.WithDescription("Hypergraph freeze latency in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		nodesBuilt, err = meter.Int64Counter(
			"trawl.hypergraph.build.nodes",
			metric.WithDescription("Nodes present at freeze"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		edgesBuilt, err = meter.Int64Counter(
			"trawl.hypergraph.build.edges",
			metric.WithDescription("Edges present at freeze"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		pruneLatency, err = meter.Float64Histogram(
			"trawl.hypergraph.prune.latency",
			metric.WithDescription("Prune latency in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		nodesPruned, err = meter.Int64Counter(
			"trawl.hypergraph.prune.removed",
			metric.WithDescription("Nodes removed by min-degree pruning"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordBuildMetrics records freeze latency and final graph size.
func recordBuildMetrics(ctx context.Context, duration time.Duration, nodeCount, edgeCount int) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	buildLatency.Record(ctx, ms)
	nodesBuilt.Add(ctx, int64(nodeCount))
	edgesBuilt.Add(ctx, int64(edgeCount))
}

// recordPruneMetrics records prune latency and removal count.
func recordPruneMetrics(ctx context.Context, duration time.Duration, removed int) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	pruneLatency.Record(ctx, ms)
	nodesPruned.Add(ctx, int64(removed))
}

// startBuildSpan starts a trace span for graph freezing.
func startBuildSpan(ctx context.Context, nodeCount, edgeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hypergraph.freeze",
		trace.WithAttributes(
			attribute.Int("graph.nodes", nodeCount),
			attribute.Int("graph.edges", edgeCount),
		),
	)
}

// setBuildSpanResult attaches the per-kind node counts to a build span.
func setBuildSpanResult(span trace.Span, coreCount, nonCoreCount int) {
	span.SetAttributes(
		attribute.Int("graph.core_nodes", coreCount),
		attribute.Int("graph.non_core_nodes", nonCoreCount),
	)
}

// startPruneSpan starts a trace span for min-degree pruning.
func startPruneSpan(ctx context.Context, minDegree, nodeCount int) (context.Context, trace.Span) {
	return tracer.Start(ctx, "hypergraph.prune",
		trace.WithAttributes(
			attribute.Int("prune.min_degree", minDegree),
			attribute.Int("graph.nodes", nodeCount),
		),
	)
}

// setPruneSpanResult attaches removal counts to a prune span.
func setPruneSpanResult(span trace.Span, removed, remaining int) {
	span.SetAttributes(
		attribute.Int("prune.removed", removed),
		attribute.Int("prune.remaining", remaining),
	)
}
