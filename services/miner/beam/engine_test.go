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
	"errors"
	"math"
	"reflect"
	"slices"
	"testing"

	"github.com/AleutianAI/trawl/services/miner/clique"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// Helper building the single-triple author/article spec.
func publicationSpec(t *testing.T) *typespec.Spec {
	t.Helper()
	spec, err := typespec.New([]typespec.Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
	}, "")
	if err != nil {
		t.Fatalf("building spec: %v", err)
	}
	return spec
}

func pubEdge(a, b hypergraph.NodeID) hypergraph.Edge {
	return hypergraph.Edge{A: a, TypeA: "author", B: b, TypeB: "article", Relation: "published"}
}

func coreEdge(a, b hypergraph.NodeID) hypergraph.Edge {
	return hypergraph.Edge{A: a, TypeA: "author", B: b, TypeB: "author", Relation: typespec.CoreRelation}
}

func buildGraph(t *testing.T, spec *typespec.Spec, edges []hypergraph.Edge) *hypergraph.Graph {
	t.Helper()
	g, err := hypergraph.Build(context.Background(), spec, edges)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

// publicationGraph is the canonical two-author fixture: authors 1 and 2
// are tied to each other and both published articles 3 and 4, so the
// perfect clique over it is {1,2} with non-core {3,4}.
func publicationGraph(t *testing.T) *hypergraph.Graph {
	t.Helper()
	return buildGraph(t, publicationSpec(t), []hypergraph.Edge{
		pubEdge(1, 3),
		pubEdge(1, 4),
		pubEdge(2, 3),
		pubEdge(2, 4),
		coreEdge(1, 2),
	})
}

// communityGraph builds a denser fixture: authors form a chain of core
// ties and each publishes four articles chosen by a fixed stride, so
// every run over it is reproducible.
func communityGraph(t *testing.T, authors, articles int) *hypergraph.Graph {
	t.Helper()
	var edges []hypergraph.Edge
	for a := 1; a <= authors; a++ {
		for k := 0; k < 4; k++ {
			art := hypergraph.NodeID(1001 + (a*3+k*7)%articles)
			edges = append(edges, pubEdge(hypergraph.NodeID(a), art))
		}
		if a > 1 {
			edges = append(edges, coreEdge(hypergraph.NodeID(a-1), hypergraph.NodeID(a)))
		}
	}
	return buildGraph(t, publicationSpec(t), edges)
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) <= 1e-12
}

func mustRun(t *testing.T, g *hypergraph.Graph, opts *Options) *Result {
	t.Helper()
	eng, err := New(g, opts)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return res
}

func TestRun_PublicationExample(t *testing.T) {
	res := mustRun(t, publicationGraph(t), &Options{
		Alpha:           0.5,
		GlobalThreshold: 1.0,
		LocalThreshold:  1.0,
		MinDegree:       1,
		RandSeed:        1,
	})

	if res.Best == nil {
		t.Fatal("expected a best clique")
	}
	best := res.Best
	if !slices.Equal(best.CoreNodes, []hypergraph.NodeID{1, 2}) {
		t.Errorf("core nodes = %v, want [1 2]", best.CoreNodes)
	}
	if !slices.Equal(best.NonCoreNodes, []hypergraph.NodeID{3, 4}) {
		t.Errorf("non-core nodes = %v, want [3 4]", best.NonCoreNodes)
	}
	if !slices.Equal(best.NonCoreTypes, []string{"article", "article"}) {
		t.Errorf("non-core types = %v, want [article article]", best.NonCoreTypes)
	}
	if !almostEqual(best.GlobalDensity, 1.0) {
		t.Errorf("global density = %v, want 1.0", best.GlobalDensity)
	}
	if len(best.LocalDensities) != 2 || !almostEqual(best.LocalDensities[0], 1.0) || !almostEqual(best.LocalDensities[1], 1.0) {
		t.Errorf("local densities = %v, want [1 1]", best.LocalDensities)
	}
	if len(best.TypeDensities) != 1 || best.TypeDensities[0].Type != "article" || !almostEqual(best.TypeDensities[0].Density, 1.0) {
		t.Errorf("type densities = %v, want [{article 1}]", best.TypeDensities)
	}
	if !almostEqual(best.Score, 1.5) {
		t.Errorf("score = %v, want 1.5", best.Score)
	}
	if !best.Valid {
		t.Error("best clique should be valid")
	}
	if !almostEqual(res.BestScore, best.Score) {
		t.Errorf("BestScore = %v, want %v", res.BestScore, best.Score)
	}
	if res.Stop != StopStagnation {
		t.Errorf("stop reason = %v, want stagnation", res.Stop)
	}
	if res.EpochsRun >= DefaultEpochs {
		t.Errorf("expected early stop, ran %d epochs", res.EpochsRun)
	}
}

func TestRun_Deterministic(t *testing.T) {
	g := communityGraph(t, 12, 18)
	run := func() *Result {
		return mustRun(t, g, &Options{
			Alpha:           0.5,
			GlobalThreshold: 0.3,
			LocalThreshold:  0.3,
			RandSeed:        42,
			Epochs:          8,
			EmitBeam:        true,
		})
	}
	a := run()
	b := run()
	a.Duration, b.Duration = 0, 0
	if !reflect.DeepEqual(a, b) {
		t.Error("two runs with the same seed and options diverged")
	}
}

func TestRun_MonotonicBestScore(t *testing.T) {
	var stats []EpochStats
	res := mustRun(t, communityGraph(t, 8, 12), &Options{
		Alpha:           0.5,
		GlobalThreshold: 0.3,
		LocalThreshold:  0.3,
		RandSeed:        5,
		Epochs:          15,
		OnEpoch:         func(s EpochStats) { stats = append(stats, s) },
	})

	if len(stats) == 0 {
		t.Fatal("no epoch stats collected")
	}
	for i, s := range stats {
		if s.Epoch != i+1 {
			t.Fatalf("stats[%d].Epoch = %d, want %d", i, s.Epoch, i+1)
		}
		if i > 0 && s.BestScore < stats[i-1].BestScore {
			t.Errorf("best score regressed at epoch %d: %v -> %v", s.Epoch, stats[i-1].BestScore, s.BestScore)
		}
	}
	if last := stats[len(stats)-1]; !almostEqual(last.BestScore, res.BestScore) {
		t.Errorf("final epoch best %v != result best %v", last.BestScore, res.BestScore)
	}
}

func TestRun_BeamBound(t *testing.T) {
	var widths []int
	res := mustRun(t, communityGraph(t, 8, 12), &Options{
		Alpha:    0.5,
		BeamSize: 4,
		RandSeed: 2,
		Epochs:   10,
		EmitBeam: true,
		OnEpoch:  func(s EpochStats) { widths = append(widths, s.BeamWidth) },
	})

	for i, w := range widths {
		if w > 4 {
			t.Errorf("epoch %d beam width %d exceeds beam size 4", i+1, w)
		}
	}
	if len(res.Beam) > 4 {
		t.Fatalf("terminal beam has %d entries, want at most 4", len(res.Beam))
	}
	seen := make(map[uint64]bool, len(res.Beam))
	for _, cl := range res.Beam {
		key := clique.KeyOf(slices.Concat(cl.CoreNodes, cl.NonCoreNodes))
		if seen[key] {
			t.Errorf("duplicate node set in beam: core=%v noncore=%v", cl.CoreNodes, cl.NonCoreNodes)
		}
		seen[key] = true
	}
}

func TestRun_StagnationWindow(t *testing.T) {
	// The best score pins at 1.5 in epoch 1, so a window of 2 ends the
	// run at epoch 3.
	res := mustRun(t, publicationGraph(t), &Options{
		Alpha:             0.5,
		GlobalThreshold:   1.0,
		LocalThreshold:    1.0,
		MinDegree:         1,
		RandSeed:          1,
		Epochs:            50,
		MaxRepeatedScores: 2,
	})

	if res.Stop != StopStagnation {
		t.Fatalf("stop reason = %v, want stagnation", res.Stop)
	}
	if res.EpochsRun != 3 {
		t.Errorf("EpochsRun = %d, want 3", res.EpochsRun)
	}
	if res.Best == nil || !slices.Equal(res.Best.CoreNodes, []hypergraph.NodeID{1, 2}) {
		t.Errorf("best = %+v, want core [1 2]", res.Best)
	}
}

func TestRun_EpochLimit(t *testing.T) {
	res := mustRun(t, publicationGraph(t), &Options{
		Alpha:    0.5,
		RandSeed: 1,
		Epochs:   1,
	})
	if res.Stop != StopEpochLimit {
		t.Errorf("stop reason = %v, want epoch_limit", res.Stop)
	}
	if res.EpochsRun != 1 {
		t.Errorf("EpochsRun = %d, want 1", res.EpochsRun)
	}
}

func TestRun_Converged(t *testing.T) {
	// One core tie and one shared article: the whole reachable space is
	// explored in three epochs, far before either budget runs out.
	g := buildGraph(t, publicationSpec(t), []hypergraph.Edge{
		coreEdge(1, 2),
		pubEdge(1, 3),
		pubEdge(2, 3),
	})
	res := mustRun(t, g, &Options{
		Alpha:             0.5,
		RandSeed:          3,
		Epochs:            50,
		MaxRepeatedScores: 50,
	})

	if res.Stop != StopConverged {
		t.Fatalf("stop reason = %v, want converged", res.Stop)
	}
	if res.EpochsRun != 3 {
		t.Errorf("EpochsRun = %d, want 3", res.EpochsRun)
	}
	if res.Best == nil || !slices.Equal(res.Best.CoreNodes, []hypergraph.NodeID{1, 2}) {
		t.Errorf("best = %+v, want core [1 2]", res.Best)
	}
}

func TestRun_EmptyInputs(t *testing.T) {
	t.Run("no edges", func(t *testing.T) {
		g := buildGraph(t, publicationSpec(t), nil)
		res := mustRun(t, g, nil)
		if res.Stop != StopEmptyGraph {
			t.Errorf("stop reason = %v, want empty_graph", res.Stop)
		}
		if res.Best != nil {
			t.Errorf("expected no best clique, got %+v", res.Best)
		}
		if res.EpochsRun != 0 {
			t.Errorf("EpochsRun = %d, want 0", res.EpochsRun)
		}
	})

	t.Run("empty type spec", func(t *testing.T) {
		spec, err := typespec.New(nil, "author")
		if err != nil {
			t.Fatalf("building empty spec: %v", err)
		}
		b := hypergraph.NewBuilder(spec)
		if err := b.AddNode(1, "author"); err != nil {
			t.Fatalf("AddNode: %v", err)
		}
		g, err := b.Freeze(context.Background())
		if err != nil {
			t.Fatalf("Freeze: %v", err)
		}
		res := mustRun(t, g, nil)
		if res.Stop != StopEmptyGraph {
			t.Errorf("stop reason = %v, want empty_graph", res.Stop)
		}
		if res.Best != nil {
			t.Errorf("expected no best clique, got %+v", res.Best)
		}
	})

	t.Run("pruned to nothing", func(t *testing.T) {
		// Both authors hold a single edge each, below the degree bar.
		g := buildGraph(t, publicationSpec(t), []hypergraph.Edge{
			pubEdge(1, 3),
			pubEdge(2, 4),
		})
		res := mustRun(t, g, &Options{MinDegree: 2, RandSeed: 1})
		if res.Stop != StopEmptyGraph {
			t.Errorf("stop reason = %v, want empty_graph", res.Stop)
		}
		if res.Best != nil {
			t.Errorf("expected no best clique, got %+v", res.Best)
		}
	})
}

func TestRun_SeedClique(t *testing.T) {
	res := mustRun(t, publicationGraph(t), &Options{
		Alpha:           0.5,
		GlobalThreshold: 1.0,
		LocalThreshold:  1.0,
		RandSeed:        1,
		SeedClique:      []hypergraph.NodeID{1, 3},
		EmitBeam:        true,
	})

	if res.Best == nil {
		t.Fatal("expected a best clique")
	}
	if !slices.Equal(res.Best.CoreNodes, []hypergraph.NodeID{1, 2}) {
		t.Errorf("core nodes = %v, want [1 2]", res.Best.CoreNodes)
	}
	if !slices.Equal(res.Best.NonCoreNodes, []hypergraph.NodeID{3, 4}) {
		t.Errorf("non-core nodes = %v, want [3 4]", res.Best.NonCoreNodes)
	}
	// Growth is additive, so every candidate descends from the seed.
	for i, cl := range res.Beam {
		if !slices.Contains(cl.CoreNodes, 1) {
			t.Errorf("beam[%d] lost seed core node 1: %v", i, cl.CoreNodes)
		}
		if !slices.Contains(cl.NonCoreNodes, 3) {
			t.Errorf("beam[%d] lost seed non-core node 3: %v", i, cl.NonCoreNodes)
		}
	}
}

func TestRun_SeedCliqueUnknownNode(t *testing.T) {
	epochs := 0
	eng, err := New(publicationGraph(t), &Options{
		SeedClique: []hypergraph.NodeID{1, 99},
		OnEpoch:    func(EpochStats) { epochs++ },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	res, err := eng.Run(context.Background())
	if !errors.Is(err, clique.ErrUnknownNode) {
		t.Fatalf("expected ErrUnknownNode, got %v", err)
	}
	if res != nil {
		t.Errorf("expected nil result, got %+v", res)
	}
	if epochs != 0 {
		t.Errorf("expected failure before any epoch, saw %d", epochs)
	}
}

func TestRun_Cancellation(t *testing.T) {
	t.Run("cancelled before start", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		eng, err := New(publicationGraph(t), &Options{MinDegree: 0, RandSeed: 1})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		res, err := eng.Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Stop != StopCancelled {
			t.Errorf("stop reason = %v, want cancelled", res.Stop)
		}
		if res.EpochsRun != 0 {
			t.Errorf("EpochsRun = %d, want 0", res.EpochsRun)
		}
		if res.Best == nil {
			t.Error("expected the seeded best to survive cancellation")
		}
	})

	t.Run("cancelled between epochs", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		eng, err := New(publicationGraph(t), &Options{
			Alpha:     0.5,
			MinDegree: 0,
			RandSeed:  1,
			OnEpoch:   func(EpochStats) { cancel() },
		})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		res, err := eng.Run(ctx)
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		if res.Stop != StopCancelled {
			t.Errorf("stop reason = %v, want cancelled", res.Stop)
		}
		if res.EpochsRun != 1 {
			t.Errorf("EpochsRun = %d, want 1", res.EpochsRun)
		}
		if res.Best == nil {
			t.Error("expected a partial best result")
		}
	})
}

func TestRun_MaxCoreSize(t *testing.T) {
	// Author triangle around one shared article. Unbounded search grows
	// a three-core clique; capped search must stop at two.
	g := buildGraph(t, publicationSpec(t), []hypergraph.Edge{
		coreEdge(1, 2),
		coreEdge(2, 3),
		coreEdge(1, 3),
		pubEdge(1, 10),
		pubEdge(2, 10),
		pubEdge(3, 10),
	})

	t.Run("unbounded reaches three cores", func(t *testing.T) {
		res := mustRun(t, g, &Options{Alpha: 0.5, RandSeed: 4, EmitBeam: true})
		if res.Best == nil || len(res.Best.CoreNodes) != 3 {
			t.Fatalf("best = %+v, want a three-core clique", res.Best)
		}
	})

	t.Run("capped at two cores", func(t *testing.T) {
		res := mustRun(t, g, &Options{Alpha: 0.5, RandSeed: 4, MaxCoreSize: 2, EmitBeam: true})
		for i, cl := range res.Beam {
			if len(cl.CoreNodes) > 2 {
				t.Errorf("beam[%d] has %d core nodes, want at most 2", i, len(cl.CoreNodes))
			}
		}
	})
}

func TestRun_SingleSampledSeed(t *testing.T) {
	res := mustRun(t, communityGraph(t, 8, 12), &Options{
		Alpha:       0.5,
		NumToSearch: 1,
		RandSeed:    9,
		Epochs:      2,
		EmitBeam:    true,
	})

	if len(res.Beam) == 0 {
		t.Fatal("expected a non-empty beam")
	}
	// With a single sampled seed, every candidate contains that seed.
	first := slices.Concat(res.Beam[0].CoreNodes, res.Beam[0].NonCoreNodes)
	common := 0
	for _, id := range first {
		inAll := true
		for _, cl := range res.Beam[1:] {
			if !slices.Contains(cl.CoreNodes, id) && !slices.Contains(cl.NonCoreNodes, id) {
				inAll = false
				break
			}
		}
		if inAll {
			common++
		}
	}
	if common == 0 {
		t.Error("no node is shared by every beam entry")
	}
}

func TestRun_SnapshotDensitiesMatchRecomputation(t *testing.T) {
	g := communityGraph(t, 6, 9)
	res := mustRun(t, g, &Options{Alpha: 0.5, RandSeed: 3, Epochs: 6, EmitBeam: true})
	spec := g.Spec()

	for i, cl := range res.Beam {
		rebuilt, err := clique.SeedSet(g, slices.Concat(cl.CoreNodes, cl.NonCoreNodes))
		if err != nil {
			t.Fatalf("beam[%d]: rebuilding candidate: %v", i, err)
		}
		if !almostEqual(rebuilt.GlobalDensity(), cl.GlobalDensity) {
			t.Errorf("beam[%d] global density %v, recomputed %v", i, cl.GlobalDensity, rebuilt.GlobalDensity())
		}
		for j, id := range cl.CoreNodes {
			want, ok := rebuilt.LocalDensity(id)
			if !ok {
				t.Fatalf("beam[%d]: node %d not a core member after rebuild", i, id)
			}
			if !almostEqual(want, cl.LocalDensities[j]) {
				t.Errorf("beam[%d] local density of %d = %v, recomputed %v", i, id, cl.LocalDensities[j], want)
			}
		}
		for _, td := range cl.TypeDensities {
			tid, ok := spec.TypeIDOf(td.Type)
			if !ok {
				t.Fatalf("beam[%d]: unknown type %q", i, td.Type)
			}
			if got := rebuilt.TypeDensity(tid); !almostEqual(got, td.Density) {
				t.Errorf("beam[%d] type density %q = %v, recomputed %v", i, td.Type, td.Density, got)
			}
		}
	}
}

func TestNew_Errors(t *testing.T) {
	g := publicationGraph(t)

	t.Run("nil graph", func(t *testing.T) {
		if _, err := New(nil, nil); !errors.Is(err, ErrNilGraph) {
			t.Errorf("expected ErrNilGraph, got %v", err)
		}
	})

	t.Run("unfrozen graph", func(t *testing.T) {
		if _, err := New(&hypergraph.Graph{}, nil); !errors.Is(err, hypergraph.ErrNotFrozen) {
			t.Errorf("expected ErrNotFrozen, got %v", err)
		}
	})

	cases := []struct {
		name string
		opts Options
	}{
		{"negative beam size", Options{BeamSize: -1}},
		{"alpha above one", Options{Alpha: 1.01}},
		{"alpha below zero", Options{Alpha: -0.01}},
		{"global threshold above one", Options{GlobalThreshold: 1.5}},
		{"local threshold below zero", Options{LocalThreshold: -0.2}},
		{"negative epochs", Options{Epochs: -3}},
		{"negative num to search", Options{NumToSearch: -2}},
		{"negative stagnation window", Options{MaxRepeatedScores: -1}},
		{"negative min degree", Options{MinDegree: -1}},
		{"negative max core size", Options{MaxCoreSize: -4}},
		{"negative workers", Options{Workers: -2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(g, &tc.opts); !errors.Is(err, ErrInvalidOptions) {
				t.Errorf("expected ErrInvalidOptions, got %v", err)
			}
		})
	}
}

func TestOptions_Defaults(t *testing.T) {
	t.Run("tuned defaults", func(t *testing.T) {
		opts := DefaultOptions()
		if opts.BeamSize != DefaultBeamSize || opts.Alpha != DefaultAlpha ||
			opts.GlobalThreshold != DefaultGlobalThreshold || opts.LocalThreshold != DefaultLocalThreshold ||
			opts.NumToSearch != DefaultNumToSearch || opts.Epochs != DefaultEpochs ||
			opts.MaxRepeatedScores != DefaultMaxRepeatedScores || opts.MinDegree != DefaultMinDegree {
			t.Errorf("DefaultOptions = %+v, does not match the default constants", opts)
		}
	})

	t.Run("zero integers filled by New", func(t *testing.T) {
		eng, err := New(publicationGraph(t), &Options{})
		if err != nil {
			t.Fatalf("New: %v", err)
		}
		if eng.opts.BeamSize != DefaultBeamSize {
			t.Errorf("BeamSize = %d, want %d", eng.opts.BeamSize, DefaultBeamSize)
		}
		if eng.opts.Epochs != DefaultEpochs {
			t.Errorf("Epochs = %d, want %d", eng.opts.Epochs, DefaultEpochs)
		}
		if eng.opts.NumToSearch != DefaultNumToSearch {
			t.Errorf("NumToSearch = %d, want %d", eng.opts.NumToSearch, DefaultNumToSearch)
		}
		if eng.opts.MaxRepeatedScores != DefaultMaxRepeatedScores {
			t.Errorf("MaxRepeatedScores = %d, want %d", eng.opts.MaxRepeatedScores, DefaultMaxRepeatedScores)
		}
		// Zero is meaningful for these, so New must not rewrite them.
		if eng.opts.Alpha != 0 || eng.opts.GlobalThreshold != 0 || eng.opts.MinDegree != 0 {
			t.Errorf("literal zero fields were rewritten: %+v", eng.opts)
		}
	})

	t.Run("caller options not mutated", func(t *testing.T) {
		opts := &Options{SeedClique: []hypergraph.NodeID{1, 2}}
		if _, err := New(publicationGraph(t), opts); err != nil {
			t.Fatalf("New: %v", err)
		}
		if opts.BeamSize != 0 {
			t.Errorf("caller's BeamSize was mutated to %d", opts.BeamSize)
		}
	})
}

func TestStopReason_String(t *testing.T) {
	cases := []struct {
		reason StopReason
		want   string
	}{
		{StopEpochLimit, "epoch_limit"},
		{StopStagnation, "stagnation"},
		{StopConverged, "converged"},
		{StopCancelled, "cancelled"},
		{StopEmptyGraph, "empty_graph"},
		{StopReason(42), "stop(42)"},
	}
	for _, tc := range cases {
		if got := tc.reason.String(); got != tc.want {
			t.Errorf("StopReason(%d).String() = %q, want %q", int(tc.reason), got, tc.want)
		}
	}
	text, err := StopStagnation.MarshalText()
	if err != nil || string(text) != "stagnation" {
		t.Errorf("MarshalText = %q, %v", text, err)
	}

	for _, tc := range cases[:5] {
		var got StopReason
		if err := got.UnmarshalText([]byte(tc.want)); err != nil {
			t.Errorf("UnmarshalText(%q): %v", tc.want, err)
		} else if got != tc.reason {
			t.Errorf("UnmarshalText(%q) = %v, want %v", tc.want, got, tc.reason)
		}
	}
	var bad StopReason
	if err := bad.UnmarshalText([]byte("nonsense")); err == nil {
		t.Error("UnmarshalText accepted an unknown name")
	}
}
