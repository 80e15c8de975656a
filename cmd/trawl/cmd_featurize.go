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
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/trawl/services/miner/input"
	"github.com/AleutianAI/trawl/services/miner/simplegraph"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	featurizeOutputPath string
	featurizeWorkers    int
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// featurizeCmd computes standard graph features per input graph.
var featurizeCmd = &cobra.Command{
	Use:   "featurize [edge file]",
	Short: "Compute graph features from an untyped TSV edge file",
	Long: `Compute standard graph features for each graph in an edge file.

Each row is an untyped edge
  graph_id  source_id  target_id
and rows are grouped by graph id. For every graph the command emits one
output row
  graph_id  {features as JSON}
covering node and edge counts, k-core counts (k = 2, 4, 8, 16), k-truss
counts (k = 3, 5, 9, 17), connected components, the largest component
size, mean eigenvector centrality, the average clustering coefficient,
and transitivity.

Graphs are featurized in parallel; output order follows input order.

Examples:
  trawl featurize graphs.tsv
  trawl featurize --workers 4 -o features.tsv graphs.tsv`,
	Args: cobra.ExactArgs(1),
	Run:  runFeaturize,
}

// =============================================================================
// COMMAND REGISTRATION
// =============================================================================

func init() {
	featurizeCmd.Flags().StringVarP(&featurizeOutputPath, "output", "o", "-",
		"Output path, - for stdout")
	featurizeCmd.Flags().IntVar(&featurizeWorkers, "workers", 0,
		"Graphs featurized concurrently (0 = from CPU count)")

	rootCmd.AddCommand(featurizeCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runFeaturize loads the edge file and featurizes each graph.
func runFeaturize(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, closeOut, err := openOutput(featurizeOutputPath)
	if err != nil {
		slog.Error("Failed to open the output path",
			"path", featurizeOutputPath, "error", err)
		os.Exit(1)
	}
	defer closeOut()

	batches, err := input.LoadSimpleFile(ctx, args[0])
	if err != nil {
		slog.Error("Failed to load the edge file", "path", args[0], "error", err)
		os.Exit(1)
	}
	if len(batches) == 0 {
		slog.Warn("No input rows")
		return
	}

	workers := featurizeWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	// Featurize concurrently but keep output in input order.
	lines := make([]string, len(batches))
	grp, gctx := errgroup.WithContext(ctx)
	grp.SetLimit(workers)
	for i, batch := range batches {
		grp.Go(func() error {
			g := simplegraph.FromPairs(batch.Edges)
			features := simplegraph.ComputeFeatures(gctx, g)
			data, err := json.Marshal(features)
			if err != nil {
				return fmt.Errorf("graph %s: %w", graphName(batch), err)
			}
			lines[i] = fmt.Sprintf("%s\t%s", graphName(batch), data)
			return nil
		})
	}
	if err := grp.Wait(); err != nil {
		slog.Error("Featurization failed", "error", err)
		os.Exit(1)
	}

	for _, line := range lines {
		if _, err := fmt.Fprintln(out, line); err != nil {
			slog.Error("Failed to write results", "error", err)
			os.Exit(1)
		}
	}
}

// graphName picks the display id for a graph: the original first-column
// token when the reader kept one, the numeric id otherwise.
func graphName(batch *input.SimpleBatch) string {
	if batch.Name != "" {
		return batch.Name
	}
	return strconv.FormatInt(batch.GraphID, 10)
}
