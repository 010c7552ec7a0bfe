// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store implements the Session Store (C9): durable, versioned,
// per-session snapshot persistence backed by an embedded BadgerDB
// instance, following the teacher's storage-wrapper
// (services/trace/storage/badger) and gzip+sha256 integrity pattern
// (services/trace/agent/mcts/crs/persistence.go), adapted from a
// whole-store backup/restore cycle to per-session snapshot records.
package store

import (
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/dgraph-io/badger/v4"
)

// ErrNotFound is returned by Load when no snapshot exists for a session id.
var ErrNotFound = errors.New("store: session not found")

// ErrSnapshotCorrupted is returned by Load when a stored record's
// content hash does not match its payload.
var ErrSnapshotCorrupted = errors.New("store: snapshot corrupted")

// ErrUnsupportedSnapshot is returned by Load when a stored record's
// version is older or newer than the one this process understands.
var ErrUnsupportedSnapshot = errors.New("store: unsupported snapshot version")

const keyPrefix = "session:"

func sessionKey(id string) []byte {
	return []byte(keyPrefix + id)
}

// Config configures a Store, following the teacher's badger.Config shape.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory.
	Path string
	// InMemory enables in-memory mode, for tests.
	InMemory bool
	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool
}

// DefaultConfig returns production defaults: synchronous writes against
// a persistent directory.
func DefaultConfig(path string) Config {
	return Config{Path: path, SyncWrites: true}
}

// InMemoryConfig returns configuration suitable for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true, SyncWrites: false}
}

// Store is the Session Store (C9). Every exported method is safe for
// concurrent use; writes for a given session id are additionally
// serialized by a per-id lock so cross-session writes never contend
// (§5, §4.9).
type Store struct {
	db *badger.DB

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Open opens (creating if necessary) a BadgerDB instance at cfg.Path, or
// an in-memory instance when cfg.InMemory is set.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("store: path is required for a persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("store: create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger database: %w", err)
	}
	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lockFor(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// encodeRecord builds the on-disk envelope for one session snapshot: a
// version prefix, a content hash for integrity, and the
// gzip-compressed JSON payload, mirroring the teacher's
// backup-metadata/content-hash pattern at record granularity instead
// of whole-store granularity.
func encodeRecord(snap session.Snapshot) ([]byte, error) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("store: marshal snapshot: %w", err)
	}

	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw); err != nil {
		return nil, fmt.Errorf("store: compress snapshot: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("store: close gzip writer: %w", err)
	}

	hash := sha256.Sum256(compressed.Bytes())

	buf := make([]byte, 0, 4+sha256.Size+compressed.Len())
	var versionBytes [4]byte
	binary.BigEndian.PutUint32(versionBytes[:], uint32(snap.Version))
	buf = append(buf, versionBytes[:]...)
	buf = append(buf, hash[:]...)
	buf = append(buf, compressed.Bytes()...)
	return buf, nil
}

func decodeRecord(buf []byte) (session.Snapshot, error) {
	if len(buf) < 4+sha256.Size {
		return session.Snapshot{}, fmt.Errorf("%w: record too short", ErrSnapshotCorrupted)
	}

	version := binary.BigEndian.Uint32(buf[:4])
	var wantHash [sha256.Size]byte
	copy(wantHash[:], buf[4:4+sha256.Size])
	payload := buf[4+sha256.Size:]

	if int(version) != session.SnapshotVersion {
		return session.Snapshot{}, fmt.Errorf("%w: %d", ErrUnsupportedSnapshot, version)
	}

	gotHash := sha256.Sum256(payload)
	if gotHash != wantHash {
		return session.Snapshot{}, fmt.Errorf("%w: content hash mismatch", ErrSnapshotCorrupted)
	}

	gz, err := gzip.NewReader(bytes.NewReader(payload))
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(gz)
	if err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return session.Snapshot{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupted, err)
	}
	return snap, nil
}

// Save persists snap, overwriting any prior snapshot for the same
// session id. Called after every finalized Action Node per §6.
func (s *Store) Save(ctx context.Context, snap session.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	lock := s.lockFor(snap.SessionID)
	lock.Lock()
	defer lock.Unlock()

	buf, err := encodeRecord(snap)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(snap.SessionID), buf)
	})
}

// Load retrieves the most recent snapshot for sessionID. Returns
// ErrNotFound if no snapshot has been saved.
func (s *Store) Load(ctx context.Context, sessionID string) (session.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return session.Snapshot{}, err
	}

	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	var buf []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(sessionKey(sessionID))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			buf = append([]byte(nil), val...)
			return nil
		})
	})
	if err != nil {
		return session.Snapshot{}, err
	}
	return decodeRecord(buf)
}

// List returns the session ids of every snapshot currently stored.
func (s *Store) List(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	return ids, err
}
