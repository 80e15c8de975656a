// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package clique

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// Helper building the author/article/conference spec: articles carry
// two relations (published, reviewed), conferences one.
func testSpec(t *testing.T) *typespec.Spec {
	t.Helper()
	spec, err := typespec.New([]typespec.Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
		{Core: "author", Relation: "reviewed", NonCore: "article"},
		{Core: "author", Relation: "attended", NonCore: "conference"},
	}, "")
	if err != nil {
		t.Fatalf("building spec: %v", err)
	}
	return spec
}

func buildGraph(t *testing.T, spec *typespec.Spec, edges []hypergraph.Edge) *hypergraph.Graph {
	t.Helper()
	g, err := hypergraph.Build(context.Background(), spec, edges)
	if err != nil {
		t.Fatalf("building graph: %v", err)
	}
	return g
}

// Helper building the publication graph shared by candidate tests:
// authors 1..3, articles 10..12, conference 20.
func pubGraph(t *testing.T) *hypergraph.Graph {
	t.Helper()
	e := func(a hypergraph.NodeID, rel string, b hypergraph.NodeID, bt string) hypergraph.Edge {
		return hypergraph.Edge{A: a, TypeA: "author", B: b, TypeB: bt, Relation: rel}
	}
	return buildGraph(t, testSpec(t), []hypergraph.Edge{
		e(1, "published", 10, "article"),
		e(1, "reviewed", 10, "article"),
		e(1, "published", 11, "article"),
		e(2, "published", 10, "article"),
		e(2, "published", 11, "article"),
		e(2, "attended", 20, "conference"),
		e(3, "published", 12, "article"),
		e(3, "attended", 20, "conference"),
		{A: 1, TypeA: "author", B: 2, TypeB: "author", Relation: typespec.CoreRelation},
		{A: 2, TypeA: "author", B: 3, TypeB: "author", Relation: typespec.CoreRelation},
	})
}

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

// bruteForceCounters recomputes the cached edge counters by scanning
// every member pair against the graph.
func bruteForceCounters(t *testing.T, c *Candidate) (int, []int) {
	t.Helper()
	g := c.Graph()
	members := slices.Concat(c.CoreMembers(), c.NonCoreMembers())
	coreEdges := 0
	typeEdges := make([]int, g.Spec().NumNonCoreTypes()+1)
	for i, u := range members {
		for _, v := range members[i+1:] {
			k := g.Ties(u, v)
			if k == 0 {
				continue
			}
			ut, _ := g.NodeType(u)
			vt, _ := g.NodeType(v)
			switch {
			case ut == typespec.CoreTypeID && vt == typespec.CoreTypeID:
				coreEdges += k
			case ut == typespec.CoreTypeID:
				typeEdges[vt] += k
			default:
				typeEdges[ut] += k
			}
		}
	}
	return coreEdges, typeEdges
}

func assertCountersMatch(t *testing.T, c *Candidate) {
	t.Helper()
	coreEdges, typeEdges := bruteForceCounters(t, c)
	if c.CoreEdges() != coreEdges {
		t.Errorf("cached core edges %d, brute force %d", c.CoreEdges(), coreEdges)
	}
	for typ := 1; typ < len(typeEdges); typ++ {
		if got := c.TypeEdges(typespec.TypeID(typ)); got != typeEdges[typ] {
			t.Errorf("cached type %d edges %d, brute force %d", typ, got, typeEdges[typ])
		}
	}
}

func TestSeed_SingleNode(t *testing.T) {
	g := pubGraph(t)
	c, err := Seed(g, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Size() != 1 || c.CoreCount() != 1 || c.NonCoreCount() != 0 {
		t.Errorf("size/core/non-core = %d/%d/%d, want 1/1/0", c.Size(), c.CoreCount(), c.NonCoreCount())
	}
	if c.CoreEdges() != 0 {
		t.Errorf("fresh seed has %d core edges", c.CoreEdges())
	}
	if c.Key() == 0 {
		t.Error("expected non-zero key")
	}
	// Frontier is exactly node 1's neighborhood.
	want := []hypergraph.NodeID{2, 10, 11}
	if got := c.Expansion(); !slices.Equal(got, want) {
		t.Errorf("Expansion()=%v, want %v", got, want)
	}
}

func TestSeed_NonCoreNode(t *testing.T) {
	g := pubGraph(t)
	c, err := Seed(g, 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.CoreCount() != 0 || c.NonCoreCount() != 1 {
		t.Errorf("core/non-core = %d/%d, want 0/1", c.CoreCount(), c.NonCoreCount())
	}
	if !almostEqual(c.GlobalDensity(), 1) {
		t.Errorf("GlobalDensity=%v, want 1 for empty core", c.GlobalDensity())
	}
	if !almostEqual(c.MinLocalDensity(), 1) {
		t.Errorf("MinLocalDensity=%v, want 1 with no core members", c.MinLocalDensity())
	}
}

func TestSeed_Errors(t *testing.T) {
	g := pubGraph(t)
	if _, err := Seed(g, 99); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
	if _, err := Seed(nil, 1); !errors.Is(err, ErrNilGraph) {
		t.Errorf("expected ErrNilGraph, got %v", err)
	}
}

func TestSeedSet(t *testing.T) {
	g := pubGraph(t)

	t.Run("counters initialized from set", func(t *testing.T) {
		c, err := SeedSet(g, []hypergraph.NodeID{1, 2, 10})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.CoreCount() != 2 || c.NonCoreCount() != 1 {
			t.Errorf("core/non-core = %d/%d, want 2/1", c.CoreCount(), c.NonCoreCount())
		}
		assertCountersMatch(t, c)
	})

	t.Run("duplicates collapse", func(t *testing.T) {
		c, err := SeedSet(g, []hypergraph.NodeID{1, 1, 2, 2})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if c.Size() != 2 {
			t.Errorf("Size=%d, want 2", c.Size())
		}
	})

	t.Run("key is order independent", func(t *testing.T) {
		a, _ := SeedSet(g, []hypergraph.NodeID{1, 2, 10})
		b, _ := SeedSet(g, []hypergraph.NodeID{10, 1, 2})
		if a.Key() != b.Key() {
			t.Errorf("keys differ across insertion orders: %x vs %x", a.Key(), b.Key())
		}
	})

	t.Run("empty set", func(t *testing.T) {
		if _, err := SeedSet(g, nil); !errors.Is(err, ErrEmptySeed) {
			t.Errorf("expected ErrEmptySeed, got %v", err)
		}
	})

	t.Run("unknown node", func(t *testing.T) {
		if _, err := SeedSet(g, []hypergraph.NodeID{1, 99}); !errors.Is(err, ErrUnknownNode) {
			t.Errorf("expected ErrUnknownNode, got %v", err)
		}
	})
}

func TestWithAdded_CountersTrackBruteForce(t *testing.T) {
	g := pubGraph(t)
	c, err := Seed(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	// Grow one node at a time and verify the incremental counters
	// against a full rescan at every step.
	for _, id := range []hypergraph.NodeID{10, 2, 11, 20, 3, 12} {
		c, err = c.WithAdded(id)
		if err != nil {
			t.Fatalf("adding %d: %v", id, err)
		}
		assertCountersMatch(t, c)
	}
	if c.Size() != 7 {
		t.Errorf("final size %d, want 7", c.Size())
	}
}

func TestWithAdded_Immutability(t *testing.T) {
	g := pubGraph(t)
	parent, err := SeedSet(g, []hypergraph.NodeID{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	key := parent.Key()
	coreEdges := parent.CoreEdges()
	frontier := parent.Expansion()

	child, err := parent.WithAdded(10)
	if err != nil {
		t.Fatal(err)
	}

	if parent.Size() != 2 || parent.Has(10) {
		t.Error("parent gained a member")
	}
	if parent.Key() != key || parent.CoreEdges() != coreEdges {
		t.Error("parent counters changed")
	}
	if got := parent.Expansion(); !slices.Equal(got, frontier) {
		t.Errorf("parent frontier changed: %v vs %v", got, frontier)
	}
	if !child.Has(10) || child.Size() != 3 {
		t.Error("child missing the added node")
	}
	if child.Key() == key {
		t.Error("child key should differ from parent key")
	}
}

func TestWithAdded_Errors(t *testing.T) {
	g := pubGraph(t)
	c, err := Seed(g, 1)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.WithAdded(1); !errors.Is(err, ErrInvalidExpansion) {
		t.Errorf("expected ErrInvalidExpansion, got %v", err)
	}
	if _, err := c.WithAdded(99); !errors.Is(err, ErrUnknownNode) {
		t.Errorf("expected ErrUnknownNode, got %v", err)
	}
}

func TestExpansion_Frontier(t *testing.T) {
	g := pubGraph(t)
	c, err := SeedSet(g, []hypergraph.NodeID{1, 2})
	if err != nil {
		t.Fatal(err)
	}
	// Neighbors of {1,2}: articles 10, 11, conference 20, author 3.
	want := []hypergraph.NodeID{3, 10, 11, 20}
	if got := c.Expansion(); !slices.Equal(got, want) {
		t.Errorf("Expansion()=%v, want %v", got, want)
	}

	c, err = c.WithAdded(3)
	if err != nil {
		t.Fatal(err)
	}
	// Author 3 joins: its article 12 enters the frontier, 3 leaves.
	want = []hypergraph.NodeID{10, 11, 12, 20}
	if got := c.Expansion(); !slices.Equal(got, want) {
		t.Errorf("Expansion()=%v, want %v", got, want)
	}
}

func TestMembers_Sorted(t *testing.T) {
	g := pubGraph(t)
	c, err := SeedSet(g, []hypergraph.NodeID{11, 2, 10, 1, 20})
	if err != nil {
		t.Fatal(err)
	}
	if got := c.CoreMembers(); !slices.Equal(got, []hypergraph.NodeID{1, 2}) {
		t.Errorf("CoreMembers()=%v", got)
	}
	if got := c.NonCoreMembers(); !slices.Equal(got, []hypergraph.NodeID{10, 11, 20}) {
		t.Errorf("NonCoreMembers()=%v", got)
	}
}

func TestDensities_PublicationExample(t *testing.T) {
	g := pubGraph(t)
	spec := g.Spec()
	article, _ := spec.TypeIDOf("article")
	conference, _ := spec.TypeIDOf("conference")

	// Candidate {1, 2, 10}: one core edge, three author-article ties.
	c, err := SeedSet(g, []hypergraph.NodeID{1, 2, 10})
	if err != nil {
		t.Fatal(err)
	}

	if got := c.GlobalDensity(); !almostEqual(got, 1) {
		t.Errorf("GlobalDensity=%v, want 1", got)
	}

	// Author 1: incident = core edge + two ties to 10; possible =
	// 1 core + 1 article * multiplicity 2 = 3.
	if got, ok := c.LocalDensity(1); !ok || !almostEqual(got, 1) {
		t.Errorf("LocalDensity(1)=%v/%v, want 1/true", got, ok)
	}
	// Author 2: incident = core edge + one tie to 10 = 2 of 3.
	if got, ok := c.LocalDensity(2); !ok || !almostEqual(got, 2.0/3.0) {
		t.Errorf("LocalDensity(2)=%v/%v, want 2/3", got, ok)
	}
	if got := c.MinLocalDensity(); !almostEqual(got, 2.0/3.0) {
		t.Errorf("MinLocalDensity=%v, want 2/3", got)
	}

	// Article ties 3 of possible 2 cores * 1 article * multiplicity 2.
	if got := c.TypeDensity(article); !almostEqual(got, 0.75) {
		t.Errorf("TypeDensity(article)=%v, want 0.75", got)
	}
	// No conference members: denominator 0 reads as 1.
	if got := c.TypeDensity(conference); !almostEqual(got, 1) {
		t.Errorf("TypeDensity(conference)=%v, want 1", got)
	}

	// Local density is undefined for non-members and non-core members.
	if _, ok := c.LocalDensity(10); ok {
		t.Error("LocalDensity should reject non-core members")
	}
	if _, ok := c.LocalDensity(99); ok {
		t.Error("LocalDensity should reject non-members")
	}
}

func TestDensities_Bounds(t *testing.T) {
	g := pubGraph(t)
	c, err := Seed(g, 2)
	if err != nil {
		t.Fatal(err)
	}
	spec := g.Spec()
	for _, id := range []hypergraph.NodeID{20, 3, 10, 1, 11, 12} {
		c, err = c.WithAdded(id)
		if err != nil {
			t.Fatal(err)
		}
		if d := c.GlobalDensity(); d < 0 || d > 1 {
			t.Errorf("GlobalDensity %v out of [0,1]", d)
		}
		if d := c.MinLocalDensity(); d < 0 || d > 1 {
			t.Errorf("MinLocalDensity %v out of [0,1]", d)
		}
		for _, u := range c.CoreMembers() {
			if d, _ := c.LocalDensity(u); d < 0 || d > 1 {
				t.Errorf("LocalDensity(%d) %v out of [0,1]", u, d)
			}
		}
		for typ := 1; typ <= spec.NumNonCoreTypes(); typ++ {
			if d := c.TypeDensity(typespec.TypeID(typ)); d < 0 || d > 1 {
				t.Errorf("TypeDensity(%d) %v out of [0,1]", typ, d)
			}
		}
	}
}

func TestTypeDensity_MultiplicityScaling(t *testing.T) {
	g := pubGraph(t)
	spec := g.Spec()
	article, _ := spec.TypeIDOf("article")

	// Author 1 and article 10 share both declared relations.
	full, err := SeedSet(g, []hypergraph.NodeID{1, 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := full.TypeDensity(article); !almostEqual(got, 1) {
		t.Errorf("TypeDensity with both relations = %v, want 1", got)
	}

	// Author 2 and article 10 share only one of the two relations.
	half, err := SeedSet(g, []hypergraph.NodeID{2, 10})
	if err != nil {
		t.Fatal(err)
	}
	if got := half.TypeDensity(article); !almostEqual(got, 0.5) {
		t.Errorf("TypeDensity with one relation = %v, want 0.5", got)
	}
}

func TestKeyOf_MatchesCandidate(t *testing.T) {
	g := pubGraph(t)
	ids := []hypergraph.NodeID{1, 2, 10, 20}
	c, err := SeedSet(g, ids)
	if err != nil {
		t.Fatal(err)
	}
	if got := KeyOf(ids); got != c.Key() {
		t.Errorf("KeyOf=%x, candidate key %x", got, c.Key())
	}
	shuffled := []hypergraph.NodeID{20, 10, 2, 1, 1}
	if got := KeyOf(shuffled); got != c.Key() {
		t.Errorf("KeyOf with shuffled duplicates=%x, want %x", got, c.Key())
	}
}

func TestMergeKey_PredictsExpansionKey(t *testing.T) {
	g := pubGraph(t)
	base, err := SeedSet(g, []hypergraph.NodeID{1, 10})
	if err != nil {
		t.Fatal(err)
	}
	grown, err := base.WithAdded(2)
	if err != nil {
		t.Fatal(err)
	}
	if got := MergeKey(base.Key(), 2); got != grown.Key() {
		t.Errorf("MergeKey=%x, grown candidate key %x", got, grown.Key())
	}
	if got := MergeKey(base.Key(), 2); got != KeyOf([]hypergraph.NodeID{1, 10, 2}) {
		t.Errorf("MergeKey=%x disagrees with KeyOf", got)
	}
}
