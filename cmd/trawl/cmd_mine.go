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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/trawl/pkg/validation"
	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/input"
	"github.com/AleutianAI/trawl/services/miner/output"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	// Input and output
	mineTypespecPath string
	mineOutputPath   string
	mineFormat       string

	// Mining config overrides (applied over the config file baseline
	// only when the flag is explicitly set)
	mineBeamSize        int
	mineAlpha           float64
	mineGlobalThreshold float64
	mineLocalThreshold  float64
	mineNumToSearch     int
	mineEpochs          int
	mineMaxRepeated     int
	mineMinDegree       int
	mineMaxCoreSize     int
	mineWorkers         int
	mineRandSeed        int64
	mineSeedClique      []int64
	mineEmitBeam        bool
)

// =============================================================================
// COMMAND DEFINITION
// =============================================================================

// mineCmd runs the beam search over typed edge files.
var mineCmd = &cobra.Command{
	Use:   "mine [edge files...]",
	Short: "Mine typed quasi-cliques from TSV edge files",
	Long: `Run the beam search over one or more tab-separated edge files.

Each row is either a typed edge
  graph_id  core_id  noncore_id  core_type  relation  noncore_type
or a seed clique member
  graph_id  node_id  node_type
Rows are grouped by graph id and each graph is mined independently.
Seed rows pin the initial candidate for their graph, overriding the
--seed-clique flag.

The type specification is a YAML file declaring the core type and the
allowed (core, relation, non_core) triples:

  core_type: author
  triples:
    - core: author
      relation: published
      non_core: article

Flags override the mining section of the config file for this run.

Output formats:
  short  one row per clique: score, counts, member ids, density
  long   one row per member node: graph_id, clique_id, node_id, type
  json   the full result document per graph

Examples:
  trawl mine --typespec typespec.yaml edges.tsv
  trawl mine --typespec typespec.yaml --format json --epochs 30 edges.tsv
  trawl mine --typespec typespec.yaml --format long -o cliques.tsv a.tsv b.tsv`,
	Args: cobra.MinimumNArgs(1),
	Run:  runMine,
}

// =============================================================================
// COMMAND REGISTRATION
// =============================================================================

func init() {
	mineCmd.Flags().StringVarP(&mineTypespecPath, "typespec", "t", "",
		"Path to the YAML type specification (required)")
	_ = mineCmd.MarkFlagRequired("typespec")
	mineCmd.Flags().StringVarP(&mineOutputPath, "output", "o", "-",
		"Output path, - for stdout")
	mineCmd.Flags().StringVar(&mineFormat, "format", "short",
		"Output format: short, long, or json")

	mineCmd.Flags().IntVar(&mineBeamSize, "beam-size", beam.DefaultBeamSize,
		"Candidates kept per epoch")
	mineCmd.Flags().Float64Var(&mineAlpha, "alpha", beam.DefaultAlpha,
		"Size/density tradeoff in [0,1]")
	mineCmd.Flags().Float64Var(&mineGlobalThreshold, "global-threshold", beam.DefaultGlobalThreshold,
		"Minimum core edge density for a valid clique")
	mineCmd.Flags().Float64Var(&mineLocalThreshold, "local-threshold", beam.DefaultLocalThreshold,
		"Minimum per-core-node local density for a valid clique")
	mineCmd.Flags().IntVar(&mineNumToSearch, "num-to-search", beam.DefaultNumToSearch,
		"Starting nodes sampled when no seed clique is given")
	mineCmd.Flags().IntVar(&mineEpochs, "epochs", beam.DefaultEpochs,
		"Maximum expansion rounds")
	mineCmd.Flags().IntVar(&mineMaxRepeated, "max-repeated-scores", beam.DefaultMaxRepeatedScores,
		"Consecutive unimproved epochs before stopping")
	mineCmd.Flags().IntVar(&mineMinDegree, "min-degree", beam.DefaultMinDegree,
		"Drop core nodes below this degree before seeding (0 disables)")
	mineCmd.Flags().IntVar(&mineMaxCoreSize, "max-core-size", 0,
		"Stop growing the core at this size (0 = unbounded)")
	mineCmd.Flags().IntVar(&mineWorkers, "workers", 0,
		"Expansion worker pool size (0 = from CPU count)")
	mineCmd.Flags().Int64Var(&mineRandSeed, "rand-seed", 0,
		"Seed-sampling RNG seed for reproducible runs")
	mineCmd.Flags().Int64SliceVar(&mineSeedClique, "seed-clique", nil,
		"Node ids of an explicit initial candidate")
	mineCmd.Flags().BoolVar(&mineEmitBeam, "emit-beam", false,
		"Emit the full terminal beam, not just the best clique")

	rootCmd.AddCommand(mineCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

// runMine loads the typespec and edge files, then mines each graph.
func runMine(cmd *cobra.Command, args []string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if mineFormat != "short" && mineFormat != "long" && mineFormat != "json" {
		slog.Error("Unknown output format", "format", mineFormat)
		os.Exit(1)
	}

	spec, err := loadTypeSpec(mineTypespecPath)
	if err != nil {
		slog.Error("Failed to load the type specification",
			"path", mineTypespecPath, "error", err)
		os.Exit(1)
	}

	opts := miningOptions(cmd)

	out, closeOut, err := openOutput(mineOutputPath)
	if err != nil {
		slog.Error("Failed to open the output path",
			"path", mineOutputPath, "error", err)
		os.Exit(1)
	}
	defer closeOut()

	batches, err := input.LoadTypedFiles(ctx, spec, args)
	if err != nil {
		slog.Error("Failed to load edge files", "error", err)
		os.Exit(1)
	}
	if len(batches) == 0 {
		slog.Warn("No input rows")
		return
	}

	// Per-epoch progress goes to stderr only when a human is watching.
	progress := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())

	failed := 0
	for _, batch := range batches {
		res, err := mineBatch(ctx, spec, batch, opts, progress)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				slog.Warn("Mining interrupted", "graph_id", batch.GraphID)
				os.Exit(1)
			}
			slog.Error("Mining failed", "graph_id", batch.GraphID, "error", err)
			failed++
			continue
		}
		if err := writeMineResult(out, spec, batch.GraphID, res); err != nil {
			slog.Error("Failed to write results", "graph_id", batch.GraphID, "error", err)
			os.Exit(1)
		}
		if res.Stop == beam.StopCancelled {
			slog.Warn("Mining interrupted", "graph_id", batch.GraphID)
			os.Exit(1)
		}
	}
	if failed > 0 {
		os.Exit(1)
	}
}

// mineBatch builds the typed hypergraph for one graph id and runs the
// beam search on it.
func mineBatch(ctx context.Context, spec *typespec.Spec, batch *input.Batch,
	base beam.Options, progress bool) (*beam.Result, error) {
	g, err := hypergraph.Build(ctx, spec, batch.Edges)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}

	opts := base
	if len(batch.Seeds) > 0 {
		ids := make([]hypergraph.NodeID, len(batch.Seeds))
		for i, s := range batch.Seeds {
			ids[i] = s.ID
		}
		opts.SeedClique = ids
	}
	if progress {
		opts.OnEpoch = func(st beam.EpochStats) {
			fmt.Fprintf(os.Stderr, "\rgraph %d  epoch %d  width %d  best %.4f ",
				batch.GraphID, st.Epoch, st.BeamWidth, st.BestScore)
		}
	}

	engine, err := beam.New(g, &opts)
	if err != nil {
		return nil, err
	}
	res, err := engine.Run(ctx)
	if progress {
		fmt.Fprintln(os.Stderr)
	}
	return res, err
}

// writeMineResult renders one graph's result in the selected format.
func writeMineResult(w io.Writer, spec *typespec.Spec, graphID int64, res *beam.Result) error {
	switch mineFormat {
	case "json":
		return output.WriteDocument(w, output.BuildDocument(graphID, "", res))
	case "long":
		lw := output.NewLongWriter(w, spec.CoreType())
		for _, c := range resultCliques(res) {
			if err := lw.WriteClique(graphID, output.NewCliqueID(), c); err != nil {
				return err
			}
		}
		return nil
	default:
		sw := output.NewShortWriter(w)
		for _, c := range resultCliques(res) {
			if err := sw.WriteClique(graphID, c); err != nil {
				return err
			}
		}
		return nil
	}
}

// resultCliques selects the cliques to render: the terminal beam when
// it was emitted (it contains the best candidate), otherwise the best
// alone.
func resultCliques(res *beam.Result) []*beam.Clique {
	if len(res.Beam) > 0 {
		return res.Beam
	}
	if res.Best != nil {
		return []*beam.Clique{res.Best}
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// typespecFile mirrors the YAML type specification document.
type typespecFile struct {
	CoreType string            `yaml:"core_type"`
	Triples  []typespec.Triple `yaml:"triples"`
}

// loadTypeSpec reads and validates a type specification file.
func loadTypeSpec(path string) (*typespec.Spec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf typespecFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	// Hand-edited YAML often picks up stray whitespace around names.
	if tf.CoreType != "" {
		if tf.CoreType, err = validation.SanitizeTypeName(tf.CoreType); err != nil {
			return nil, fmt.Errorf("%s: core_type: %w", path, err)
		}
	}
	for i := range tf.Triples {
		tr := &tf.Triples[i]
		if tr.Core, err = validation.SanitizeTypeName(tr.Core); err != nil {
			return nil, fmt.Errorf("%s: triple %d: %w", path, i, err)
		}
		if tr.Relation, err = validation.SanitizeTypeName(tr.Relation); err != nil {
			return nil, fmt.Errorf("%s: triple %d: %w", path, i, err)
		}
		if tr.NonCore, err = validation.SanitizeTypeName(tr.NonCore); err != nil {
			return nil, fmt.Errorf("%s: triple %d: %w", path, i, err)
		}
	}
	return typespec.New(tf.Triples, tf.CoreType)
}

// miningOptions layers explicitly set flags over the config baseline.
func miningOptions(cmd *cobra.Command) beam.Options {
	opts := cfg.Mining
	flags := cmd.Flags()
	if flags.Changed("beam-size") {
		opts.BeamSize = mineBeamSize
	}
	if flags.Changed("alpha") {
		opts.Alpha = mineAlpha
	}
	if flags.Changed("global-threshold") {
		opts.GlobalThreshold = mineGlobalThreshold
	}
	if flags.Changed("local-threshold") {
		opts.LocalThreshold = mineLocalThreshold
	}
	if flags.Changed("num-to-search") {
		opts.NumToSearch = mineNumToSearch
	}
	if flags.Changed("epochs") {
		opts.Epochs = mineEpochs
	}
	if flags.Changed("max-repeated-scores") {
		opts.MaxRepeatedScores = mineMaxRepeated
	}
	if flags.Changed("min-degree") {
		opts.MinDegree = mineMinDegree
	}
	if flags.Changed("max-core-size") {
		opts.MaxCoreSize = mineMaxCoreSize
	}
	if flags.Changed("workers") {
		opts.Workers = mineWorkers
	}
	if flags.Changed("rand-seed") {
		opts.RandSeed = mineRandSeed
	}
	if flags.Changed("seed-clique") {
		ids := make([]hypergraph.NodeID, len(mineSeedClique))
		for i, id := range mineSeedClique {
			ids[i] = hypergraph.NodeID(id)
		}
		opts.SeedClique = ids
	}
	if flags.Changed("emit-beam") {
		opts.EmitBeam = mineEmitBeam
	}
	return opts
}

// openOutput resolves an output flag to a writer. "-" or the empty
// string selects stdout, which the returned closer leaves open.
func openOutput(path string) (io.Writer, func(), error) {
	if path == "" || path == "-" {
		return os.Stdout, func() {}, nil
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, nil, err
	}
	return f, func() { _ = f.Close() }, nil
}
