// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package api

import (
	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/output"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// ServiceVersion is the mining service version.
const ServiceVersion = "1.0.0"

// RunState is the lifecycle state of a mining run.
type RunState string

const (
	// RunPending means the run is registered but not yet executing.
	RunPending RunState = "pending"

	// RunRunning means the search is executing.
	RunRunning RunState = "running"

	// RunFinished means the search completed and a document is
	// available. Runs cancelled at an epoch boundary finish with stop
	// reason "cancelled" rather than failing.
	RunFinished RunState = "finished"

	// RunFailed means graph construction or the search itself errored.
	RunFailed RunState = "failed"
)

// RunRequest is the request body for POST /v1/runs.
type RunRequest struct {
	// GraphID labels the graph in the result document. Optional.
	GraphID int64 `json:"graph_id"`

	// Triples declare the type schema, one row per
	// (core, relation, non-core) combination. May be empty when
	// CoreType is set.
	Triples []typespec.Triple `json:"triples"`

	// CoreType names the core type. Required when Triples is empty;
	// otherwise may be "" to infer it from the triples.
	CoreType string `json:"core_type"`

	// Edges are the graph rows. An empty list yields an immediate
	// empty-graph result rather than an error.
	Edges []hypergraph.Edge `json:"edges"`

	// Config replaces the server-side default mining options for this
	// run. Zero integer fields fall back to the engine defaults.
	Config *beam.Options `json:"config"`
}

// RunResponse is the response for POST /v1/runs.
type RunResponse struct {
	// RunID identifies the started run.
	RunID string `json:"run_id"`

	// State is the run state at response time, normally "pending".
	State RunState `json:"state"`
}

// RunStatus is the response for GET /v1/runs/:id.
type RunStatus struct {
	// RunID identifies the run.
	RunID string `json:"run_id"`

	// State is the current lifecycle state.
	State RunState `json:"state"`

	// CreatedAt is the RFC 3339 creation time. Empty for runs served
	// from the store, which does not keep registration times.
	CreatedAt string `json:"created_at,omitempty"`

	// FinishedAt is the RFC 3339 completion time, set once the run is
	// terminal.
	FinishedAt string `json:"finished_at,omitempty"`

	// Error describes why a failed run failed.
	Error string `json:"error,omitempty"`

	// Document is the result of a finished run.
	Document *output.Document `json:"document,omitempty"`
}

// Stream event names for GET /v1/runs/:id/stream.
const (
	// EventEpoch carries per-epoch progress.
	EventEpoch = "epoch"

	// EventResult carries the final document and ends the stream.
	EventResult = "result"

	// EventError reports a failed run and ends the stream.
	EventError = "error"
)

// StreamEvent is one WebSocket message on a run stream.
type StreamEvent struct {
	// Event is EventEpoch, EventResult, or EventError.
	Event string `json:"event"`

	// Epoch is set on EventEpoch messages.
	Epoch *beam.EpochStats `json:"epoch,omitempty"`

	// Document is set on EventResult messages.
	Document *output.Document `json:"document,omitempty"`

	// Error is set on EventError messages.
	Error string `json:"error,omitempty"`
}

// HealthResponse is the response for GET /healthz.
type HealthResponse struct {
	// Status is "ok" while the process is serving.
	Status string `json:"status"`

	// Version is the service version.
	Version string `json:"version"`

	// UptimeSeconds is the time since the handlers were created.
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// ErrorResponse is the JSON error body for every non-2xx response.
type ErrorResponse struct {
	// Error is the human-readable message.
	Error string `json:"error"`

	// Code is a stable machine-readable error code.
	Code string `json:"code"`
}
