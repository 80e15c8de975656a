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
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/trawl/services/miner/typespec"
)

// LoadTypedFiles reads the named TSV files concurrently and merges their
// batches by graph id.
//
// Description:
//
//	Each file is parsed independently; rows for one graph id may be
//	spread across files, as sharded extracts usually are, and are merged
//	into a single Batch. Edges keep file order, then row order, so a
//	fixed input set always yields the same batches. The merged batches
//	come back sorted by graph id.
//
// Inputs:
//
//	ctx - Cancels the load between batches.
//	spec - Type schema every row must satisfy.
//	paths - TSV file paths. An empty slice yields no batches and no
//	        error; an empty edge stream is legal input.
//
// Outputs:
//
//	[]*Batch - Merged batches sorted by graph id.
//	error - First open, parse, or read error. Parse and read errors are
//	        wrapped with the file path and line number.
//
// Thread Safety: safe for concurrent use; every call reads independently.
func LoadTypedFiles(ctx context.Context, spec *typespec.Spec, paths []string) ([]*Batch, error) {
	start := time.Now()
	ctx, span := startLoadSpan(ctx, "input.load_typed", len(paths))
	defer span.End()

	perFile := make([][]*Batch, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	for i, path := range paths {
		g.Go(func() error {
			batches, err := readTypedFile(gctx, spec, path)
			if err != nil {
				return err
			}
			perFile[i] = batches
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	merged := mergeBatches(perFile)
	rows := 0
	for _, b := range merged {
		rows += len(b.Edges) + len(b.Seeds)
	}
	recordLoadMetrics(ctx, time.Since(start), len(merged), rows)
	setLoadSpanResult(span, len(merged), rows)
	slog.Debug("typed input loaded",
		"files", len(paths),
		"graphs", len(merged),
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return merged, nil
}

// readTypedFile drains one file into batches, checking ctx between
// batches so a failed sibling in the group stops this file promptly.
func readTypedFile(ctx context.Context, spec *typespec.Spec, path string) ([]*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var batches []*Batch
	rdr := NewTypedReader(f, spec)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := rdr.Next()
		if errors.Is(err, io.EOF) {
			return batches, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		batches = append(batches, batch)
	}
}

// mergeBatches combines per-file batch lists into one batch per graph id,
// in file order then stream order, sorted by graph id.
func mergeBatches(perFile [][]*Batch) []*Batch {
	byGraph := make(map[int64]*Batch)
	var order []*Batch
	for _, batches := range perFile {
		for _, b := range batches {
			dst, ok := byGraph[b.GraphID]
			if !ok {
				dst = &Batch{GraphID: b.GraphID}
				byGraph[b.GraphID] = dst
				order = append(order, dst)
			}
			dst.Edges = append(dst.Edges, b.Edges...)
			dst.Seeds = append(dst.Seeds, b.Seeds...)
		}
	}
	slices.SortFunc(order, func(a, b *Batch) int {
		return cmp.Compare(a.GraphID, b.GraphID)
	})
	return order
}

// LoadSimpleFile reads one untyped edge file and merges its batches by
// graph id.
//
// Simple input stays single-file: interned graph ids depend on order of
// first appearance, so merging several files would renumber graphs
// whenever file order changed. Batches come back in order of first
// appearance, which interning makes the same as ascending GraphID.
func LoadSimpleFile(ctx context.Context, path string) ([]*SimpleBatch, error) {
	start := time.Now()
	ctx, span := startLoadSpan(ctx, "input.load_simple", 1)
	defer span.End()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	byGraph := make(map[int64]*SimpleBatch)
	var order []*SimpleBatch
	rdr := NewSimpleReader(f)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := rdr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		if dst, ok := byGraph[batch.GraphID]; ok {
			dst.Edges = append(dst.Edges, batch.Edges...)
			continue
		}
		byGraph[batch.GraphID] = batch
		order = append(order, batch)
	}

	rows := 0
	for _, b := range order {
		rows += len(b.Edges)
	}
	recordLoadMetrics(ctx, time.Since(start), len(order), rows)
	setLoadSpanResult(span, len(order), rows)
	slog.Debug("simple input loaded",
		"file", path,
		"graphs", len(order),
		"rows", rows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return order, nil
}
