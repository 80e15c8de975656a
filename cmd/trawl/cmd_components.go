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
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trawl/services/miner/input"
	"github.com/AleutianAI/trawl/services/miner/simplegraph"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var componentsOutputPath string

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// componentsCmd labels connected components per input graph.
var componentsCmd = &cobra.Command{
	Use:   "components [edge file]",
	Short: "Extract connected components from an untyped TSV edge file",
	Long: `Label the connected components of each graph in an edge file.

Each row is an untyped edge
  graph_id  source_id  target_id
and rows are grouped by graph id. The command emits one output row per
node
  graph_id  component_index  node_id
with component indexes assigned per graph in discovery order.

Examples:
  trawl components graphs.tsv
  trawl components -o components.tsv graphs.tsv`,
	Args: cobra.ExactArgs(1),
	Run:  runComponents,
}

// =============================================================================
// COMMAND REGISTRATION
// =============================================================================

func init() {
	componentsCmd.Flags().StringVarP(&componentsOutputPath, "output", "o", "-",
		"Output path, - for stdout")

	rootCmd.AddCommand(componentsCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runComponents loads the edge file and labels components per graph.
func runComponents(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, closeOut, err := openOutput(componentsOutputPath)
	if err != nil {
		slog.Error("Failed to open the output path",
			"path", componentsOutputPath, "error", err)
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

	w := bufio.NewWriter(out)
	for _, batch := range batches {
		if ctx.Err() != nil {
			slog.Warn("Interrupted", "graph_id", batch.GraphID)
			os.Exit(1)
		}
		g := simplegraph.FromPairs(batch.Edges)
		for cid, nodes := range g.ConnectedComponents() {
			for _, node := range nodes {
				if _, err := fmt.Fprintf(w, "%s\t%d\t%d\n", graphName(batch), cid, node); err != nil {
					slog.Error("Failed to write results", "error", err)
					os.Exit(1)
				}
			}
		}
	}
	if err := w.Flush(); err != nil {
		slog.Error("Failed to write results", "error", err)
		os.Exit(1)
	}
}
