// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package beam

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/trawl/services/miner/hypergraph"
)

var (
	tracer = otel.Tracer("trawl.beam")
	meter  = otel.Meter("trawl.beam")
)

var (
	metricsOnce sync.Once
	metricsErr  error

	runLatency    metric.Float64Histogram
	runEpochs     metric.Int64Histogram
	runExpansions metric.Int64Counter
)

// initMetrics initializes OpenTelemetry metric instruments lazily so a
// missing meter provider degrades to no-ops.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error
		runLatency, err = meter.Float64Histogram(
			"trawl.beam.run.latency",
			metric.WithDescription("Beam search run latency in milliseconds"),
			metric.WithUnit("ms"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		runEpochs, err = meter.Int64Histogram(
			"trawl.beam.run.epochs",
			metric.WithDescription("Epochs executed per run"),
		)
		if err != nil {
			metricsErr = err
			return
		}
		runExpansions, err = meter.Int64Counter(
			"trawl.beam.run.expansions",
			metric.WithDescription("Candidates generated by expansion"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordRunMetrics records latency, epoch count, and expansion volume
// for one run.
func recordRunMetrics(ctx context.Context, duration time.Duration, epochs, produced int) {
	if err := initMetrics(); err != nil {
		return
	}
	ms := float64(duration.Microseconds()) / 1000.0
	runLatency.Record(ctx, ms)
	runEpochs.Record(ctx, int64(epochs))
	runExpansions.Add(ctx, int64(produced))
}

// startRunSpan starts a trace span covering a whole search run.
func startRunSpan(ctx context.Context, g *hypergraph.Graph, opts *Options) (context.Context, trace.Span) {
	return tracer.Start(ctx, "beam.run",
		trace.WithAttributes(
			attribute.Int("graph.nodes", g.NodeCount()),
			attribute.Int("graph.edges", g.EdgeCount()),
			attribute.Int("beam.size", opts.BeamSize),
			attribute.Float64("beam.alpha", opts.Alpha),
			attribute.Int("beam.epoch_budget", opts.Epochs),
			attribute.Bool("beam.seeded", len(opts.SeedClique) > 0),
		),
	)
}

// setRunSpanResult attaches the run outcome to its span.
func setRunSpanResult(span trace.Span, res *Result) {
	span.SetAttributes(
		attribute.Int("beam.epochs_run", res.EpochsRun),
		attribute.String("beam.stop", res.Stop.String()),
		attribute.Float64("beam.best_score", res.BestScore),
		attribute.Bool("beam.found", res.Best != nil),
	)
}
