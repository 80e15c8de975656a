// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package api exposes mining runs over HTTP.
//
// # Surface
//
// POST /v1/runs accepts a type schema, an edge list, and an optional
// mining configuration, starts the search in the background, and
// returns a run id. GET /v1/runs/:id reports run state and, once the
// run completes, the full result document. GET /v1/runs/:id/stream
// upgrades to a WebSocket and pushes one event per completed epoch
// followed by a terminal result or error event. /healthz and /metrics
// serve liveness and Prometheus exposition.
//
// # Run Lifecycle
//
// The Runner owns every run started through it. A run moves from
// pending to running to exactly one of finished or failed, and its
// record stays in memory for the life of the process. Completed
// documents are also written to the results store when one is
// configured, so a restarted server still answers GET /v1/runs/:id for
// runs it no longer remembers; lookups check memory first and the
// store second.
package api

import "errors"

var (
	// ErrTooManyRuns is returned by Runner.Start when the concurrent
	// run limit is reached. Clients should retry later.
	ErrTooManyRuns = errors.New("too many concurrent runs")

	// ErrRunnerClosed is returned by Runner.Start after Close.
	ErrRunnerClosed = errors.New("runner is closed")
)
