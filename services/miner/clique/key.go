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

import "github.com/AleutianAI/trawl/services/miner/hypergraph"

// Canonical node-set keys are wrapping sums of a 64-bit mix of each
// member id. Summation makes the key order-independent, so candidates
// holding the same node set always collide, which is what beam
// deduplication relies on. Mixing keeps densely packed id ranges from
// producing correlated keys.

// splitmix64 is the finalizer of the SplitMix64 generator.
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// MergeKey returns the canonical key of a node set extended by one node
// that is not already a member. Callers use it to predict the key a
// WithAdded call would produce before paying for the clone.
func MergeKey(key uint64, id hypergraph.NodeID) uint64 {
	return key + splitmix64(uint64(id))
}

// KeyOf computes the canonical key of a node set without constructing a
// candidate. Duplicate ids contribute once.
func KeyOf(ids []hypergraph.NodeID) uint64 {
	seen := make(map[hypergraph.NodeID]struct{}, len(ids))
	var key uint64
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		key += splitmix64(uint64(id))
	}
	return key
}
