// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command trawl mines typed quasi-cliques from large typed graphs.
//
// The CLI exposes the beam-search miner, the standalone featurizer, and
// the connected-component extractor over tab-separated edge files, plus
// a serve mode that runs the same miner behind an HTTP API.
//
// Usage:
//
//	trawl mine --typespec typespec.yaml edges.tsv
//	trawl featurize graphs.tsv
//	trawl components graphs.tsv
//	trawl serve
//	trawl version
//
// Configuration lives at ~/.trawl/trawl.yaml and is created with
// defaults on first run. Flags override file values.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/trawl/cmd/trawl/config"
	"github.com/AleutianAI/trawl/pkg/logging"
)

// =============================================================================
// GLOBAL STATE
// =============================================================================

var (
	// cfgPath is the --config override for the config file location.
	cfgPath string

	// verbose forces debug-level logging regardless of the config.
	verbose bool

	// cfg holds the loaded configuration for every command.
	cfg *config.TrawlConfig

	// appLogger is the process logger, closed on clean exit.
	appLogger *logging.Logger
)

// rootCmd is the top-level trawl command.
var rootCmd = &cobra.Command{
	Use:   "trawl",
	Short: "Mine typed quasi-cliques from large typed graphs",
	Long: `Trawl detects dense typed subgraphs (quasi-cliques) in large
bipartite-style graphs using a parallel beam search.

Input graphs arrive as tab-separated edge files. The miner groups rows
by graph id, builds a typed hypergraph per graph, and searches for the
densest core/non-core community under the configured thresholds. The
featurize and components subcommands run standard graph algorithms over
untyped edge lists using the same row grouping.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// The version command works without a config file and must
		// not create one as a side effect.
		if cmd.Name() == "version" {
			return
		}
		loaded, err := config.Load(cfgPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded

		level := logging.ParseLevel(cfg.Logging.Level)
		if verbose {
			level = logging.LevelDebug
		}
		service := "cli"
		if cmd.Name() == "serve" {
			service = "miner"
		}
		appLogger = logging.New(logging.Config{
			Level:   level,
			LogDir:  cfg.Logging.Dir,
			Service: service,
			JSON:    cfg.Logging.JSON,
		})
		slog.SetDefault(appLogger.Slog())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
	if appLogger != nil {
		_ = appLogger.Close()
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "",
		"Config file path (default ~/.trawl/trawl.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"Enable debug logging")
}
