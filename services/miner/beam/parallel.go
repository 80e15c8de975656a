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
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/AleutianAI/trawl/services/miner/clique"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
)

const (
	// expandSerialThreshold is the parent count below which expansion
	// runs on the calling goroutine. Small beams lose more to pool
	// setup than they gain from parallelism.
	expandSerialThreshold = 32

	// maxExpandWorkers caps the worker pool regardless of CPU count.
	maxExpandWorkers = 8
)

// workerCount sizes the pool for a batch of pending parents.
func (e *Engine) workerCount(pending int) int {
	workers := e.opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if workers > maxExpandWorkers {
		workers = maxExpandWorkers
	}
	if workers > pending {
		workers = pending
	}
	if workers < 1 {
		workers = 1
	}
	return workers
}

// expandBeam generates the scored children of every parent. Parents are
// distributed across a bounded worker pool; workers share only the
// read-only graph and the read-only visited set, and each collects into
// its own slice so no locking is needed. The caller owns result
// ordering, so the racy interleave of worker output is harmless.
func (e *Engine) expandBeam(g *hypergraph.Graph, parents []*scored, visited map[uint64]struct{}) ([]*scored, error) {
	workers := e.workerCount(len(parents))
	if workers == 1 || len(parents) < expandSerialThreshold {
		out := make([]*scored, 0, len(parents))
		for _, parent := range parents {
			expanded, err := e.expandOne(g, parent, visited)
			if err != nil {
				return nil, err
			}
			out = append(out, expanded...)
		}
		return out, nil
	}

	workChan := make(chan *scored, len(parents))
	for _, parent := range parents {
		workChan <- parent
	}
	close(workChan)

	localResults := make([][]*scored, workers)
	localErrs := make([]error, workers)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					buf := make([]byte, 4096)
					n := runtime.Stack(buf, false)
					slog.Error("expansion worker panicked",
						"worker", idx,
						"panic", r,
						"stack", string(buf[:n]),
					)
					localErrs[idx] = fmt.Errorf("expansion worker panic: %v", r)
				}
			}()
			for parent := range workChan {
				expanded, err := e.expandOne(g, parent, visited)
				if err != nil {
					localErrs[idx] = err
					return
				}
				localResults[idx] = append(localResults[idx], expanded...)
			}
		}(w)
	}
	wg.Wait()

	for _, err := range localErrs {
		if err != nil {
			return nil, err
		}
	}
	var out []*scored
	for _, local := range localResults {
		out = append(out, local...)
	}
	return out, nil
}

// expandOne produces one scored child per admissible frontier node of
// parent. Core-type nodes are skipped once the parent's core is full.
// Children whose canonical key is already in visited were ranked in an
// earlier epoch and are not regenerated.
func (e *Engine) expandOne(g *hypergraph.Graph, parent *scored, visited map[uint64]struct{}) ([]*scored, error) {
	frontier := parent.cand.Expansion()
	if len(frontier) == 0 {
		return nil, nil
	}
	coreFull := e.opts.MaxCoreSize > 0 && parent.cand.CoreCount() >= e.opts.MaxCoreSize
	out := make([]*scored, 0, len(frontier))
	for _, id := range frontier {
		if coreFull && g.IsCore(id) {
			continue
		}
		if _, seen := visited[clique.MergeKey(parent.cand.Key(), id)]; seen {
			continue
		}
		child, err := parent.cand.WithAdded(id)
		if err != nil {
			return nil, fmt.Errorf("expand node %d: %w", id, err)
		}
		out = append(out, e.score(child))
	}
	return out, nil
}
