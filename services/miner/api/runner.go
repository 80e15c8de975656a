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
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/output"
	"github.com/AleutianAI/trawl/services/miner/store"
	"github.com/AleutianAI/trawl/services/miner/telemetry"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// DefaultMaxConcurrentRuns bounds the background search goroutines
// when RunnerConfig leaves the limit at zero.
const DefaultMaxConcurrentRuns = 4

// watchBuffer sizes the per-subscriber epoch channel. Epoch events a
// slow consumer cannot keep up with are dropped; the terminal result is
// delivered out of band, so it is never lost.
const watchBuffer = 64

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Store receives completed run documents and backs lookups for
	// runs this process does not remember. May be nil.
	Store *store.Store

	// Logger receives run lifecycle logs. Defaults to slog.Default.
	Logger *slog.Logger

	// MaxConcurrentRuns bounds simultaneously executing searches.
	// Zero means DefaultMaxConcurrentRuns.
	MaxConcurrentRuns int

	// DefaultOptions is the mining configuration applied when a
	// request carries none. Nil means beam.DefaultOptions.
	DefaultOptions *beam.Options
}

// run is the in-memory record of one mining run.
type run struct {
	id        string
	createdAt time.Time

	mu         sync.Mutex
	state      RunState
	finishedAt time.Time
	doc        *output.Document
	errMsg     string
	epochs     []beam.EpochStats
	subs       map[chan beam.EpochStats]struct{}

	cancel context.CancelFunc
	done   chan struct{}
}

// RunWatch is a live view of one run's progress. Events carries epoch
// stats, replayed from the start of the run for subscribers that attach
// mid-flight; Done closes when the run reaches a terminal state. Close
// the watch to detach.
type RunWatch struct {
	Replay []beam.EpochStats
	Events <-chan beam.EpochStats
	Done   <-chan struct{}

	cancel func()
}

// Close detaches the watch from the run.
func (w *RunWatch) Close() {
	w.cancel()
}

// Runner executes mining runs in the background and keeps their
// records for the life of the process.
//
// Thread Safety: Runner is safe for concurrent use.
type Runner struct {
	store  *store.Store
	logger *slog.Logger
	group  *errgroup.Group

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu       sync.RWMutex
	runs     map[string]*run
	defaults beam.Options
	closed   bool
}

// NewRunner creates a runner. Close it to cancel in-flight runs and
// wait for their goroutines.
func NewRunner(cfg RunnerConfig) *Runner {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRuns := cfg.MaxConcurrentRuns
	if maxRuns <= 0 {
		maxRuns = DefaultMaxConcurrentRuns
	}
	defaults := beam.DefaultOptions()
	if cfg.DefaultOptions != nil {
		defaults = cfg.DefaultOptions
	}

	group := &errgroup.Group{}
	group.SetLimit(maxRuns)

	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:      cfg.Store,
		logger:     logger,
		group:      group,
		baseCtx:    ctx,
		baseCancel: cancel,
		runs:       make(map[string]*run),
		defaults:   defaults.Resolved(),
	}
}

// SetDefaultOptions replaces the mining configuration used by requests
// that carry none. Invalid options are rejected and the previous
// defaults stay in effect.
func (r *Runner) SetDefaultOptions(opts *beam.Options) error {
	if opts == nil {
		return fmt.Errorf("%w: nil options", beam.ErrInvalidOptions)
	}
	resolved := opts.Resolved()
	if err := resolved.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	r.defaults = resolved
	r.mu.Unlock()
	return nil
}

// DefaultOptions returns a copy of the current default mining
// configuration.
func (r *Runner) DefaultOptions() beam.Options {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaults.Resolved()
}

// Start validates the request, registers a pending run, and launches
// the search in the background.
//
// Description:
//
//	The type schema and mining configuration are validated before the
//	run id is handed out, so schema and configuration mistakes fail the
//	POST rather than the run. Edge validation happens during graph
//	construction on the run goroutine; a bad edge moves the run to the
//	failed state instead. When a request carries a Config it replaces
//	the server defaults wholesale.
//
// Inputs:
//
//	ctx - Context for validation-stage telemetry only. The run itself
//	      is bound to the runner's lifetime, not the request.
//	req - The parsed run request.
//
// Outputs:
//
//	string - The run id.
//	error - typespec.ErrInvalidSpec or beam.ErrInvalidOptions (wrapped)
//	        on invalid input, ErrTooManyRuns at the concurrency limit,
//	        ErrRunnerClosed after Close.
func (r *Runner) Start(ctx context.Context, req *RunRequest) (string, error) {
	spec, err := typespec.New(req.Triples, req.CoreType)
	if err != nil {
		return "", err
	}

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return "", ErrRunnerClosed
	}
	opts := r.defaults.Resolved()
	r.mu.Unlock()

	if req.Config != nil {
		opts = req.Config.Resolved()
		if err := opts.Validate(); err != nil {
			return "", err
		}
	}
	// OnEpoch is owned by the runner; a caller-supplied hook cannot
	// cross the HTTP boundary anyway.
	opts.OnEpoch = nil

	ru := &run{
		id:        uuid.NewString(),
		createdAt: time.Now().UTC(),
		state:     RunPending,
		subs:      make(map[chan beam.EpochStats]struct{}),
		done:      make(chan struct{}),
	}
	runCtx, cancel := context.WithCancel(r.baseCtx)
	ru.cancel = cancel

	edges := slices.Clone(req.Edges)
	graphID := req.GraphID

	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		cancel()
		return "", ErrRunnerClosed
	}
	r.runs[ru.id] = ru
	launched := r.group.TryGo(func() error {
		r.execute(runCtx, ru, spec, graphID, edges, opts)
		return nil
	})
	if !launched {
		delete(r.runs, ru.id)
	}
	r.mu.Unlock()

	if !launched {
		cancel()
		return "", ErrTooManyRuns
	}

	recordRunStarted(ctx)
	r.logger.Info("Run accepted",
		"run_id", ru.id,
		"edges", len(edges),
		"core_type", spec.CoreType())
	return ru.id, nil
}

// execute builds the graph, runs the search, and persists the result.
// It runs on a group goroutine and records every failure on the run
// record rather than returning it.
func (r *Runner) execute(ctx context.Context, ru *run, spec *typespec.Spec,
	graphID int64, edges []hypergraph.Edge, opts beam.Options) {

	ctx, span := startRunSpan(ctx, ru.id, len(edges))
	defer span.End()
	defer ru.cancel()

	started := time.Now()
	logger := r.logger.With("run_id", ru.id)

	// A panicking search must not take the server down with it.
	defer func() {
		if p := recover(); p != nil {
			err := fmt.Errorf("run panicked: %v", p)
			logger.Error("Run panicked", "panic", p)
			r.fail(ctx, ru, span, started, err)
		}
	}()

	ru.setRunning()

	g, err := hypergraph.Build(ctx, spec, edges)
	if err != nil {
		logger.Warn("Graph construction failed", "error", err)
		r.fail(ctx, ru, span, started, err)
		return
	}

	opts.OnEpoch = ru.broadcast
	eng, err := beam.New(g, &opts)
	if err != nil {
		logger.Warn("Engine construction failed", "error", err)
		r.fail(ctx, ru, span, started, err)
		return
	}

	res, err := eng.Run(ctx)
	if err != nil {
		logger.Warn("Search failed", "error", err)
		r.fail(ctx, ru, span, started, err)
		return
	}

	doc := output.BuildDocument(graphID, ru.id, res)
	if r.store != nil {
		if err := r.store.PutDocument(ctx, doc); err != nil {
			// The in-memory record still serves this run; only the
			// cross-restart copy is lost.
			logger.Error("Persisting run document failed", "error", err)
		}
	}

	ru.finish(doc)
	setRunSpanResult(span, RunFinished, doc.EpochsRun, doc.BestScore)
	telemetry.SetSpanOK(span)
	recordRunDone(ctx, time.Since(started), false)

	logger.Info("Run finished",
		"epochs_run", doc.EpochsRun,
		"stop_reason", doc.Stop.String(),
		"best_score", doc.BestScore,
		"duration_ms", doc.DurationMs)
}

// fail moves the run to the failed state and records telemetry.
func (r *Runner) fail(ctx context.Context, ru *run, span trace.Span, started time.Time, err error) {
	ru.failWith(err.Error())
	telemetry.RecordError(span, err)
	setRunSpanResult(span, RunFailed, 0, 0)
	recordRunDone(ctx, time.Since(started), true)
}

// Status returns the current view of a run, consulting the results
// store for runs this process does not remember.
//
// Outputs:
//
//	*RunStatus - The run view. Store-served runs report the finished
//	             state with no creation time.
//	error - store.ErrRunNotFound (wrapped) when neither memory nor the
//	        store knows the id; the store error otherwise.
func (r *Runner) Status(ctx context.Context, runID string) (*RunStatus, error) {
	r.mu.RLock()
	ru, ok := r.runs[runID]
	r.mu.RUnlock()
	if ok {
		return ru.status(), nil
	}

	if r.store == nil {
		return nil, fmt.Errorf("run %s: %w", runID, store.ErrRunNotFound)
	}
	doc, err := r.store.GetDocument(ctx, runID)
	if err != nil {
		return nil, err
	}
	return &RunStatus{
		RunID:    runID,
		State:    RunFinished,
		Document: doc,
	}, nil
}

// Watch attaches a progress subscriber to an in-memory run. The second
// return is false when the id is unknown to this process; callers fall
// back to Status for store-served runs.
func (r *Runner) Watch(runID string) (*RunWatch, bool) {
	r.mu.RLock()
	ru, ok := r.runs[runID]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return ru.watch(), true
}

// Close cancels every in-flight run and waits for the run goroutines
// to exit. Start returns ErrRunnerClosed afterwards.
func (r *Runner) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	r.mu.Unlock()

	r.baseCancel()
	_ = r.group.Wait()
}

// setRunning marks the run as executing.
func (ru *run) setRunning() {
	ru.mu.Lock()
	ru.state = RunRunning
	ru.mu.Unlock()
}

// broadcast records one epoch and forwards it to every subscriber. It
// runs on the search goroutine, so sends never block: a full
// subscriber buffer drops the event.
func (ru *run) broadcast(st beam.EpochStats) {
	ru.mu.Lock()
	defer ru.mu.Unlock()
	ru.epochs = append(ru.epochs, st)
	for ch := range ru.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// finish moves the run to the finished state and wakes watchers.
func (ru *run) finish(doc *output.Document) {
	ru.mu.Lock()
	ru.state = RunFinished
	ru.doc = doc
	ru.finishedAt = time.Now().UTC()
	ru.mu.Unlock()
	close(ru.done)
}

// failWith moves the run to the failed state and wakes watchers.
func (ru *run) failWith(msg string) {
	ru.mu.Lock()
	ru.state = RunFailed
	ru.errMsg = msg
	ru.finishedAt = time.Now().UTC()
	ru.mu.Unlock()
	close(ru.done)
}

// status snapshots the record.
func (ru *run) status() *RunStatus {
	ru.mu.Lock()
	defer ru.mu.Unlock()

	st := &RunStatus{
		RunID:     ru.id,
		State:     ru.state,
		CreatedAt: ru.createdAt.Format(time.RFC3339),
		Error:     ru.errMsg,
		Document:  ru.doc,
	}
	if !ru.finishedAt.IsZero() {
		st.FinishedAt = ru.finishedAt.Format(time.RFC3339)
	}
	return st
}

// watch registers a subscriber. The replay snapshot and the
// registration happen under one lock acquisition, so a subscriber sees
// every epoch exactly once: completed epochs in Replay, later ones on
// Events.
func (ru *run) watch() *RunWatch {
	ch := make(chan beam.EpochStats, watchBuffer)

	ru.mu.Lock()
	replay := slices.Clone(ru.epochs)
	ru.subs[ch] = struct{}{}
	ru.mu.Unlock()

	return &RunWatch{
		Replay: replay,
		Events: ch,
		Done:   ru.done,
		cancel: func() {
			ru.mu.Lock()
			delete(ru.subs, ch)
			ru.mu.Unlock()
		},
	}
}
