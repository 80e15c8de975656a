// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// Integration tests for the mining pipeline and the run service.
//
// These cover the seams the package tests cannot: edge files flowing
// through the loader into the engine and out through the writers, and
// run documents surviving a service restart on a disk-backed store.

package integration

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/trawl/services/miner/api"
	"github.com/AleutianAI/trawl/services/miner/beam"
	"github.com/AleutianAI/trawl/services/miner/hypergraph"
	"github.com/AleutianAI/trawl/services/miner/input"
	"github.com/AleutianAI/trawl/services/miner/output"
	"github.com/AleutianAI/trawl/services/miner/store"
	"github.com/AleutianAI/trawl/services/miner/typespec"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// TestMiningPipelineFromFiles drives the whole file path: a sharded TSV
// extract is loaded, each graph is mined, and the results are rendered.
func TestMiningPipelineFromFiles(t *testing.T) {
	ctx := context.Background()

	spec, err := typespec.New([]typespec.Triple{
		{Core: "author", Relation: "published", NonCore: "article"},
	}, "author")
	require.NoError(t, err)

	// Two graphs in one extract. Graph 1: authors 1 and 2 tied to each
	// other, both published articles 3 and 4. Graph 2: authors 5, 6, 7
	// pairwise tied, all published articles 8 and 9, plus a seed row
	// pinning the search to author 5.
	rows := strings.Join([]string{
		"1\t1\t3\tauthor\tpublished\tarticle",
		"1\t1\t4\tauthor\tpublished\tarticle",
		"1\t2\t3\tauthor\tpublished\tarticle",
		"1\t2\t4\tauthor\tpublished\tarticle",
		"1\t1\t2\tauthor\tcore\tauthor",
		"2\t5\t8\tauthor\tpublished\tarticle",
		"2\t5\t9\tauthor\tpublished\tarticle",
		"2\t6\t8\tauthor\tpublished\tarticle",
		"2\t6\t9\tauthor\tpublished\tarticle",
		"2\t7\t8\tauthor\tpublished\tarticle",
		"2\t7\t9\tauthor\tpublished\tarticle",
		"2\t5\t6\tauthor\tcore\tauthor",
		"2\t5\t7\tauthor\tcore\tauthor",
		"2\t6\t7\tauthor\tcore\tauthor",
		"2\t5\tauthor",
	}, "\n") + "\n"

	dir := t.TempDir()
	path := filepath.Join(dir, "extract.tsv")
	require.NoError(t, os.WriteFile(path, []byte(rows), 0644))

	t.Log("Loading the typed extract...")
	batches, err := input.LoadTypedFiles(ctx, spec, []string{path})
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, int64(1), batches[0].GraphID)
	assert.Equal(t, int64(2), batches[1].GraphID)
	assert.Len(t, batches[0].Edges, 5)
	require.Len(t, batches[1].Seeds, 1)
	assert.Equal(t, hypergraph.NodeID(5), batches[1].Seeds[0].ID)

	t.Log("Mining each graph...")
	wantCores := map[int64][]hypergraph.NodeID{
		1: {1, 2},
		2: {5, 6, 7},
	}
	wantScores := map[int64]string{1: "1.5", 2: "2"}

	var short strings.Builder
	sw := output.NewShortWriter(&short)
	for _, batch := range batches {
		g, err := hypergraph.Build(ctx, spec, batch.Edges)
		require.NoError(t, err)

		opts := beam.DefaultOptions()
		opts.RandSeed = 1
		if len(batch.Seeds) > 0 {
			for _, s := range batch.Seeds {
				opts.SeedClique = append(opts.SeedClique, s.ID)
			}
		}
		engine, err := beam.New(g, opts)
		require.NoError(t, err)

		res, err := engine.Run(ctx)
		require.NoError(t, err)
		require.NotNil(t, res.Best, "graph %d found no clique", batch.GraphID)
		assert.Equal(t, wantCores[batch.GraphID], res.Best.CoreNodes,
			"graph %d", batch.GraphID)
		// A graph this small exhausts the beam or the score plateau long
		// before the epoch budget.
		assert.Contains(t,
			[]beam.StopReason{beam.StopStagnation, beam.StopConverged}, res.Stop)

		require.NoError(t, sw.WriteClique(batch.GraphID, res.Best))

		doc := output.BuildDocument(batch.GraphID, "", res)
		require.NotNil(t, doc.Best)
		assert.NotEmpty(t, doc.Best.CliqueID)
		assert.Greater(t, doc.EpochsRun, 0)
	}

	t.Log("Checking the rendered rows...")
	lines := strings.Split(strings.TrimRight(short.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	for i, graphID := range []int64{1, 2} {
		fields := strings.Split(lines[i], "\t")
		require.Len(t, fields, 8)
		assert.Equal(t, wantScores[graphID], fields[1], "graph %d score", graphID)
		assert.Equal(t, "1", fields[7], "graph %d density", graphID)
	}
}

// runServiceRequest is the graph 1 fixture above as a service payload.
func runServiceRequest() *api.RunRequest {
	return &api.RunRequest{
		GraphID: 7,
		Triples: []typespec.Triple{
			{Core: "author", Relation: "published", NonCore: "article"},
		},
		Edges: []hypergraph.Edge{
			{A: 1, TypeA: "author", B: 3, TypeB: "article", Relation: "published"},
			{A: 1, TypeA: "author", B: 4, TypeB: "article", Relation: "published"},
			{A: 2, TypeA: "author", B: 3, TypeB: "article", Relation: "published"},
			{A: 2, TypeA: "author", B: 4, TypeB: "article", Relation: "published"},
			{A: 1, TypeA: "author", B: 2, TypeB: "author", Relation: typespec.CoreRelation},
		},
		Config: &beam.Options{
			Alpha:           0.5,
			GlobalThreshold: 1.0,
			LocalThreshold:  1.0,
			MinDegree:       1,
			RandSeed:        1,
		},
	}
}

func postRun(t *testing.T, router http.Handler, body *api.RunRequest) string {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	req, _ := http.NewRequest("POST", "/v1/runs", strings.NewReader(string(payload)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

	var resp api.RunResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.RunID)
	return resp.RunID
}

func getRun(t *testing.T, router http.Handler, runID string) (int, *api.RunStatus) {
	t.Helper()
	req, _ := http.NewRequest("GET", "/v1/runs/"+runID, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		return w.Code, nil
	}
	var status api.RunStatus
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	return w.Code, &status
}

// TestRunDocumentSurvivesRestart finishes a run against a disk-backed
// store, tears the whole service down, and reads the document back
// through a fresh server over the same store directory.
func TestRunDocumentSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	openService := func() (*store.Store, *api.Runner, http.Handler) {
		cfg := store.DefaultConfig()
		cfg.Path = dir
		cfg.Logger = logger
		st, err := store.Open(cfg)
		require.NoError(t, err)
		runner := api.NewRunner(api.RunnerConfig{Store: st, Logger: logger})
		server := api.NewServer(api.ServerConfig{Addr: "127.0.0.1:0"}, runner, logger)
		return st, runner, server.Router()
	}

	t.Log("Starting the first service instance...")
	st, runner, router := openService()

	runID := postRun(t, router, runServiceRequest())

	deadline := time.Now().Add(5 * time.Second)
	var status *api.RunStatus
	for time.Now().Before(deadline) {
		var code int
		code, status = getRun(t, router, runID)
		require.Equal(t, http.StatusOK, code)
		if status.State == api.RunFinished || status.State == api.RunFailed {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	require.NotNil(t, status)
	require.Equal(t, api.RunFinished, status.State, "error: %s", status.Error)
	require.NotNil(t, status.Document)
	require.NotNil(t, status.Document.Best)
	assert.Equal(t, []hypergraph.NodeID{1, 2}, status.Document.Best.CoreNodes)

	t.Log("Stopping the first instance...")
	runner.Close()
	require.NoError(t, st.Close())

	t.Log("Starting a second instance over the same store directory...")
	st2, runner2, router2 := openService()
	defer func() {
		runner2.Close()
		st2.Close()
	}()

	code, reloaded := getRun(t, router2, runID)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, api.RunFinished, reloaded.State)
	require.NotNil(t, reloaded.Document)
	require.NotNil(t, reloaded.Document.Best)
	assert.Equal(t, []hypergraph.NodeID{1, 2}, reloaded.Document.Best.CoreNodes)
	assert.Equal(t, runID, reloaded.Document.RunID)
}
