// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store persists finished mining run documents in embedded
// BadgerDB, keyed by run id. The serve mode writes each document when
// its run completes and reads them back for status queries after the
// in-memory record ages out.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
// This package follows Apache 2.0 guidelines for attribution and usage.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/trawl/services/miner/output"
)

// ErrRunNotFound reports a run id with no stored document.
var ErrRunNotFound = errors.New("run not found")

// runPrefix namespaces run documents within the key space.
const runPrefix = "run/"

// Config holds configuration for the run store.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Required for persistent databases.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	// Default: true for production, false for testing.
	SyncWrites bool

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// GCInterval is how often to run value log garbage collection.
	// Default: 5 minutes. Set to 0 to disable.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	// Default: 0.5 (GC when 50% of value log is garbage).
	GCDiscardRatio float64
}

// DefaultConfig returns sensible defaults for production use.
//
// Description:
//
//	Returns a Config with:
//	- SyncWrites enabled for durability
//	- 5-minute GC interval
//	- 50% discard ratio threshold
//
// Outputs:
//
//	Config - Ready-to-use production configuration
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns configuration optimized for testing.
//
// Description:
//
//	Returns a Config with:
//	- InMemory mode enabled (no disk I/O)
//	- SyncWrites disabled (faster tests)
//	- GC disabled
//
// Outputs:
//
//	Config - Ready-to-use test configuration
func InMemoryConfig() Config {
	return Config{
		InMemory:   true,
		SyncWrites: false,
		GCInterval: 0, // disabled
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a BadgerDB-backed run document store.
type Store struct {
	db       *badger.DB
	gcRunner *GCRunner
	path     string
	inMemory bool
}

// Open creates and opens a run store with the given configuration.
//
// Description:
//
//	Opens a BadgerDB database at the configured path, or in memory if
//	InMemory is true. Creates the directory if it doesn't exist and
//	starts a GC runner when GCInterval is configured.
//
// Inputs:
//
//	cfg - Store configuration. Path is required unless InMemory is true.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if path is invalid or database cannot be opened.
//
// Thread Safety: The returned *Store is safe for concurrent use.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent store")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create store directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil) // Disable BadgerDB's internal logging
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open run store: %w", err)
	}

	s := &Store{
		db:       db,
		path:     cfg.Path,
		inMemory: cfg.InMemory,
	}

	if cfg.GCInterval > 0 && !cfg.InMemory {
		runner, err := NewGCRunner(db, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("create GC runner: %w", err)
		}
		s.gcRunner = runner
		runner.Start()
	}

	return s, nil
}

// OpenInMemory is a convenience function for opening an in-memory store.
//
// Description:
//
//	Opens an in-memory store for testing. Data is lost when closed.
//
// Outputs:
//
//	*Store - The opened store. Caller must call Close() when done.
//	error - Non-nil if the database cannot be opened.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Close stops the GC runner and closes the database.
//
// Outputs:
//
//	error - Non-nil if database close fails.
func (s *Store) Close() error {
	if s.gcRunner != nil {
		s.gcRunner.Stop()
	}
	return s.db.Close()
}

// Path returns the database path, or empty string for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// InMemory returns true if this is an in-memory store.
func (s *Store) InMemory() bool {
	return s.inMemory
}

// PutDocument stores a finished run document under its run id.
//
// Description:
//
//	Serializes the document to JSON and writes it in one transaction.
//	An existing document under the same run id is overwritten.
//
// Inputs:
//
//	ctx - Context for cancellation (checked before the transaction).
//	doc - The document to store. RunID must be non-empty.
//
// Outputs:
//
//	error - Non-nil on cancellation, serialization, or write failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) PutDocument(ctx context.Context, doc *output.Document) error {
	if doc == nil || doc.RunID == "" {
		return errors.New("document has no run id")
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode run %s: %w", doc.RunID, err)
	}
	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(runKey(doc.RunID), raw)
	})
	if err != nil {
		return fmt.Errorf("store run %s: %w", doc.RunID, err)
	}
	return nil
}

// GetDocument loads the run document stored under runID.
//
// Description:
//
//	Reads and deserializes the document in a read-only transaction.
//
// Inputs:
//
//	ctx - Context for cancellation (checked before the transaction).
//	runID - The run id to look up.
//
// Outputs:
//
//	*output.Document - The stored document.
//	error - ErrRunNotFound when absent, otherwise read or decode failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) GetDocument(ctx context.Context, runID string) (*output.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	var raw []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(runKey(runID))
		if err != nil {
			return err
		}
		raw, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	var doc output.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode run %s: %w", runID, err)
	}
	return &doc, nil
}

// DeleteDocument removes the document stored under runID.
//
// Description:
//
//	Deleting an absent run id is a no-op, not an error.
//
// Inputs:
//
//	ctx - Context for cancellation (checked before the transaction).
//	runID - The run id to remove.
//
// Outputs:
//
//	error - Non-nil on cancellation or write failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) DeleteDocument(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(runKey(runID))
	})
	if err != nil {
		return fmt.Errorf("delete run %s: %w", runID, err)
	}
	return nil
}

// ListRuns returns every stored run id in key order.
//
// Description:
//
//	Scans the run key prefix without prefetching values, so listing
//	stays cheap even when documents are large.
//
// Inputs:
//
//	ctx - Context for cancellation (checked before the transaction).
//
// Outputs:
//
//	[]string - Stored run ids, ascending. Empty slice when none.
//	error - Non-nil on cancellation or read failure.
//
// Thread Safety: Safe for concurrent use.
func (s *Store) ListRuns(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("context cancelled: %w", err)
	}
	ids := []string{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(runPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			ids = append(ids, strings.TrimPrefix(key, runPrefix))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return ids, nil
}

// Sync flushes pending writes to disk.
//
// Description:
//
//	For in-memory stores, this is a no-op.
//	For persistent stores, forces a sync to disk.
//
// Outputs:
//
//	error - Non-nil if sync fails.
func (s *Store) Sync() error {
	if s.inMemory {
		return nil // No-op for in-memory
	}
	return s.db.Sync()
}

// runKey maps a run id to its storage key.
func runKey(runID string) []byte {
	return []byte(runPrefix + runID)
}
