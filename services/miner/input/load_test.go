// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package input

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, dir, name string, lines ...string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}

func TestLoadTypedFiles_MergesShards(t *testing.T) {
	dir := t.TempDir()
	shardA := writeFile(t, dir, "a.tsv",
		tsv("1", "1", "3", "author", "published", "article"),
		tsv("1", "1", "4", "author", "published", "article"),
		tsv("2", "8", "9", "author", "published", "article"),
	)
	shardB := writeFile(t, dir, "b.tsv",
		tsv("3", "5", "6", "author", "published", "article"),
		tsv("1", "2", "3", "author", "published", "article"),
		tsv("1", "1", "author"),
	)

	batches, err := LoadTypedFiles(context.Background(), pubSpec(t), []string{shardA, shardB})
	if err != nil {
		t.Fatalf("LoadTypedFiles: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("got %d batches, want 3", len(batches))
	}

	for i, want := range []int64{1, 2, 3} {
		if batches[i].GraphID != want {
			t.Errorf("batches[%d].GraphID = %d, want %d", i, batches[i].GraphID, want)
		}
	}

	g1 := batches[0]
	if len(g1.Edges) != 3 {
		t.Fatalf("graph 1 has %d edges, want 3", len(g1.Edges))
	}
	// Shard A's rows come first, then shard B's.
	if g1.Edges[2].A != 2 || g1.Edges[2].B != 3 {
		t.Errorf("graph 1 last edge = %v, want the shard B row (2)-(3)", g1.Edges[2])
	}
	if len(g1.Seeds) != 1 || g1.Seeds[0] != (SeedNode{ID: 1, Type: "author"}) {
		t.Errorf("graph 1 seeds = %v, want the single author seed", g1.Seeds)
	}

	if len(batches[1].Edges) != 1 || len(batches[2].Edges) != 1 {
		t.Errorf("graphs 2 and 3 have %d and %d edges, want 1 and 1",
			len(batches[1].Edges), len(batches[2].Edges))
	}
}

func TestLoadTypedFiles_ErrorNamesFileAndLine(t *testing.T) {
	dir := t.TempDir()
	good := writeFile(t, dir, "good.tsv",
		tsv("1", "1", "3", "author", "published", "article"),
	)
	bad := writeFile(t, dir, "bad.tsv",
		tsv("2", "1", "3", "author", "published", "article"),
		tsv("2", "x", "3", "author", "published", "article"),
	)

	_, err := LoadTypedFiles(context.Background(), pubSpec(t), []string{good, bad})
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("LoadTypedFiles error = %v, want %v", err, ErrMalformedRow)
	}
	if !strings.Contains(err.Error(), bad) {
		t.Errorf("error %q does not name file %s", err, bad)
	}
	if !strings.Contains(err.Error(), "line 2") {
		t.Errorf("error %q does not name line 2", err)
	}
}

func TestLoadTypedFiles_MissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "absent.tsv")
	_, err := LoadTypedFiles(context.Background(), pubSpec(t), []string{missing})
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadTypedFiles error = %v, want fs.ErrNotExist", err)
	}
}

func TestLoadTypedFiles_Cancelled(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "a.tsv",
		tsv("1", "1", "3", "author", "published", "article"),
	)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := LoadTypedFiles(ctx, pubSpec(t), []string{path})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("LoadTypedFiles error = %v, want context.Canceled", err)
	}
}

func TestLoadTypedFiles_NoPaths(t *testing.T) {
	batches, err := LoadTypedFiles(context.Background(), pubSpec(t), nil)
	if err != nil {
		t.Fatalf("LoadTypedFiles: %v", err)
	}
	if len(batches) != 0 {
		t.Errorf("got %d batches, want none", len(batches))
	}
}

func TestLoadSimpleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "edges.tsv",
		tsv("us_west", "0", "1"),
		tsv("us_west", "1", "2"),
		tsv("us_east", "5", "6"),
		tsv("us_west", "2", "3"),
	)

	batches, err := LoadSimpleFile(context.Background(), path)
	if err != nil {
		t.Fatalf("LoadSimpleFile: %v", err)
	}
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	west := batches[0]
	if west.Name != "us_west" || len(west.Edges) != 3 {
		t.Errorf("first batch = %q with %d edges, want us_west with 3", west.Name, len(west.Edges))
	}
	east := batches[1]
	if east.Name != "us_east" || len(east.Edges) != 1 {
		t.Errorf("second batch = %q with %d edges, want us_east with 1", east.Name, len(east.Edges))
	}
}

func TestLoadSimpleFile_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := writeFile(t, dir, "bad.tsv",
		tsv("g", "1", "2"),
		tsv("g", "1"),
	)

	_, err := LoadSimpleFile(context.Background(), bad)
	if !errors.Is(err, ErrMalformedRow) {
		t.Fatalf("LoadSimpleFile error = %v, want %v", err, ErrMalformedRow)
	}
	if !strings.Contains(err.Error(), bad) {
		t.Errorf("error %q does not name file %s", err, bad)
	}

	missing := filepath.Join(dir, "absent.tsv")
	if _, err := LoadSimpleFile(context.Background(), missing); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("LoadSimpleFile(missing) error = %v, want fs.ErrNotExist", err)
	}
}
