// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package output

import (
	"encoding/json"
	"io"

	"github.com/AleutianAI/trawl/services/miner/beam"
)

// CliqueDoc is one mined clique with its assigned identity.
type CliqueDoc struct {
	CliqueID string `json:"clique_id"`
	*beam.Clique
}

// Document is the JSON rendering of one mining run over one graph.
type Document struct {
	GraphID    int64           `json:"graph_id"`
	RunID      string          `json:"run_id,omitempty"`
	Best       *CliqueDoc      `json:"best,omitempty"`
	Beam       []*CliqueDoc    `json:"beam,omitempty"`
	EpochsRun  int             `json:"epochs_run"`
	Stop       beam.StopReason `json:"stop_reason"`
	Stagnated  bool            `json:"stagnated"`
	BestScore  float64         `json:"best_score"`
	DurationMs int64           `json:"duration_ms"`
}

// BuildDocument assembles the document for one completed run, assigning
// a fresh clique id to the best clique and to every emitted beam entry.
// res must be a completed run result.
func BuildDocument(graphID int64, runID string, res *beam.Result) *Document {
	doc := &Document{
		GraphID:    graphID,
		RunID:      runID,
		EpochsRun:  res.EpochsRun,
		Stop:       res.Stop,
		Stagnated:  res.Stop == beam.StopStagnation,
		BestScore:  res.BestScore,
		DurationMs: res.Duration.Milliseconds(),
	}
	if res.Best != nil {
		doc.Best = &CliqueDoc{CliqueID: NewCliqueID(), Clique: res.Best}
	}
	for _, c := range res.Beam {
		doc.Beam = append(doc.Beam, &CliqueDoc{CliqueID: NewCliqueID(), Clique: c})
	}
	return doc
}

// WriteDocument JSON-encodes the document to w with a trailing newline.
func WriteDocument(w io.Writer, doc *Document) error {
	return json.NewEncoder(w).Encode(doc)
}
