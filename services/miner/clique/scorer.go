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
	"cmp"
	"fmt"
)

// DominatedScore is assigned to candidates failing a validity
// threshold. Valid scores are non-negative, so invalid candidates sink
// to the beam's tail without being discarded outright.
const DominatedScore = -1.0

// Scorer ranks candidates by a weighted blend of core size and core
// density, gated by two validity thresholds. The zero value scores
// every candidate as valid with pure density ranking.
type Scorer struct {
	// Alpha in [0,1] trades core size against density: 1 ranks purely
	// by core count, 0 purely by global density.
	Alpha float64 `json:"alpha" yaml:"alpha"`

	// GlobalThreshold in [0,1] is the minimum global density a
	// candidate needs to be valid.
	GlobalThreshold float64 `json:"global_threshold" yaml:"global_threshold"`

	// LocalThreshold in [0,1] is the minimum local density every core
	// member needs for the candidate to be valid.
	LocalThreshold float64 `json:"local_threshold" yaml:"local_threshold"`
}

// Validate checks all parameters against their documented ranges.
// Returns an error wrapping ErrInvalidScorer naming the offending
// field and value.
func (s Scorer) Validate() error {
	if s.Alpha < 0 || s.Alpha > 1 {
		return fmt.Errorf("%w: alpha %v outside [0,1]", ErrInvalidScorer, s.Alpha)
	}
	if s.GlobalThreshold < 0 || s.GlobalThreshold > 1 {
		return fmt.Errorf("%w: global threshold %v outside [0,1]", ErrInvalidScorer, s.GlobalThreshold)
	}
	if s.LocalThreshold < 0 || s.LocalThreshold > 1 {
		return fmt.Errorf("%w: local threshold %v outside [0,1]", ErrInvalidScorer, s.LocalThreshold)
	}
	return nil
}

// Valid reports whether the candidate clears both density thresholds:
// global density at or above GlobalThreshold, and every core member's
// local density at or above LocalThreshold.
func (s Scorer) Valid(c *Candidate) bool {
	return c.GlobalDensity() >= s.GlobalThreshold &&
		c.MinLocalDensity() >= s.LocalThreshold
}

// Score returns the candidate's scalar rank and validity verdict.
// Valid candidates score Alpha*core_count + (1-Alpha)*global_density;
// invalid ones receive DominatedScore.
func (s Scorer) Score(c *Candidate) (float64, bool) {
	if !s.Valid(c) {
		return DominatedScore, false
	}
	return s.Alpha*float64(c.CoreCount()) + (1-s.Alpha)*c.GlobalDensity(), true
}

// Compare orders two scored candidates for beam ranking and returns
// cmp semantics: negative when a ranks ahead of b. Higher score wins;
// ties prefer the larger core, then the larger total node count, then
// the lowest canonical key. Size breaks ties upward so that a candidate
// which absorbs more of its neighborhood at equal density outranks a
// strict subset of itself.
func Compare(scoreA float64, a *Candidate, scoreB float64, b *Candidate) int {
	if scoreA != scoreB {
		return cmp.Compare(scoreB, scoreA)
	}
	if a.CoreCount() != b.CoreCount() {
		return cmp.Compare(b.CoreCount(), a.CoreCount())
	}
	if a.Size() != b.Size() {
		return cmp.Compare(b.Size(), a.Size())
	}
	return cmp.Compare(a.Key(), b.Key())
}
