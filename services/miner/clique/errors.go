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

import "errors"

// Sentinel errors for candidate construction and expansion.
var (
	// ErrNilGraph is returned when seeding against a nil hypergraph.
	ErrNilGraph = errors.New("nil hypergraph")

	// ErrUnknownNode is returned when a seed or expansion references a
	// node absent from the hypergraph.
	ErrUnknownNode = errors.New("node not present in graph")

	// ErrEmptySeed is returned when seeding from an empty node set.
	ErrEmptySeed = errors.New("empty seed set")

	// ErrInvalidExpansion is returned when expanding a candidate with a
	// node it already contains. Expansion sets exclude members, so this
	// indicates a caller bug rather than a data problem.
	ErrInvalidExpansion = errors.New("invalid expansion")

	// ErrInvalidScorer is returned when a scorer parameter falls
	// outside its documented range.
	ErrInvalidScorer = errors.New("scorer configuration out of range")
)
