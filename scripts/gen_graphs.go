// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// gen_graphs writes synthetic edge extracts for exercising the miner.
//
// Usage:
//
//	go run scripts/gen_graphs.go -graphs 10 -core 50 -noncore 200 -p 0.3 > extract.tsv
//	go run scripts/gen_graphs.go -simple -graphs 5 -core 100 -p 0.05 > simple.tsv
//
// Each graph gets a planted dense block: the first -planted core nodes
// are connected to every one of the first -planted non-core nodes, so
// every generated graph contains at least one quasi-clique worth
// finding. The remaining edges appear independently with probability
// -p. Output is deterministic for a fixed -seed.
//
// Typed rows use the schema (author, published, article); pair them
// with a typespec file declaring that triple. Simple rows carry plain
// source and target ids for the featurize and components commands.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand/v2"
	"os"
)

var (
	numGraphs  = flag.Int("graphs", 5, "number of graphs to generate")
	numCore    = flag.Int("core", 20, "core (author) nodes per graph")
	numNonCore = flag.Int("noncore", 40, "non-core (article) nodes per graph")
	planted    = flag.Int("planted", 5, "size of the planted dense block")
	edgeProb   = flag.Float64("p", 0.1, "background edge probability")
	coreProb   = flag.Float64("pcore", 0.05, "core-core edge probability (typed mode)")
	seed       = flag.Uint64("seed", 1, "random seed")
	simple     = flag.Bool("simple", false, "emit 3-column simple rows instead of typed rows")
)

func main() {
	flag.Parse()
	if *planted > *numCore || (!*simple && *planted > *numNonCore) {
		fmt.Fprintln(os.Stderr, "planted block larger than the graph")
		os.Exit(1)
	}

	rng := rand.New(rand.NewPCG(*seed, 0))
	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	for g := 1; g <= *numGraphs; g++ {
		if *simple {
			writeSimpleGraph(w, rng, int64(g))
		} else {
			writeTypedGraph(w, rng, int64(g))
		}
	}
}

// writeTypedGraph emits author-article rows plus sparse author-author
// ties. Core ids start at 1, non-core ids after the last core id.
func writeTypedGraph(w *bufio.Writer, rng *rand.Rand, graphID int64) {
	base := int64(*numCore)
	for c := int64(1); c <= int64(*numCore); c++ {
		for n := int64(1); n <= int64(*numNonCore); n++ {
			inBlock := c <= int64(*planted) && n <= int64(*planted)
			if inBlock || rng.Float64() < *edgeProb {
				fmt.Fprintf(w, "%d\t%d\t%d\tauthor\tpublished\tarticle\n",
					graphID, c, base+n)
			}
		}
	}
	for a := int64(1); a <= int64(*numCore); a++ {
		for b := a + 1; b <= int64(*numCore); b++ {
			inBlock := b <= int64(*planted)
			if inBlock || rng.Float64() < *coreProb {
				fmt.Fprintf(w, "%d\t%d\t%d\tauthor\tcore\tauthor\n", graphID, a, b)
			}
		}
	}
}

// writeSimpleGraph emits undirected source-target rows over -core nodes.
func writeSimpleGraph(w *bufio.Writer, rng *rand.Rand, graphID int64) {
	for a := int64(1); a <= int64(*numCore); a++ {
		for b := a + 1; b <= int64(*numCore); b++ {
			inBlock := b <= int64(*planted)
			if inBlock || rng.Float64() < *edgeProb {
				fmt.Fprintf(w, "%d\t%d\t%d\n", graphID, a, b)
			}
		}
	}
}
