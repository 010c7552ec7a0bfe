// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFinalizedSession(t *testing.T) *session.Session {
	t.Helper()
	sess := session.New(
		session.RepoRef{Name: "demo", Root: "/repo"},
		session.UserContext{WorkspaceRoot: "/repo"},
		[]string{"backend"},
		session.ModelConfig{Fast: "gpt-test"},
	)
	_, err := sess.AppendUserMessage(context.Background(), "say hi")
	require.NoError(t, err)

	require.True(t, sess.TryAcquire())
	require.NoError(t, sess.Begin())

	n := node.NewRoot(uuid.NewString(), node.Action{ToolName: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, n.BeginExecuting())
	require.NoError(t, n.Finalize(node.Observation{Text: "hi"}, false))
	require.NoError(t, sess.Tree().AddRoot(n))

	require.NoError(t, sess.Idle())
	sess.Release()
	return sess
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	sess := newFinalizedSession(t)
	snap, err := sess.Snapshot()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, snap))

	loaded, err := s.Load(ctx, snap.SessionID)
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, loaded.SessionID)
	assert.Equal(t, snap.Status, loaded.Status)
	assert.Len(t, loaded.Exchanges, len(snap.Exchanges))
	assert.Len(t, loaded.Nodes, 1)
	assert.Equal(t, "hi", loaded.Nodes[0].ObsText)

	restored, err := session.Restore(loaded)
	require.NoError(t, err)
	assert.Equal(t, snap.SessionID, restored.ID())
	assert.Equal(t, 1, restored.Tree().Len())
}

func TestLoad_MissingSessionReturnsErrNotFound(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.Load(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoad_CorruptedRecordIsDetected(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	sess := newFinalizedSession(t)
	snap, err := sess.Snapshot()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s.Save(ctx, snap))

	buf, err := encodeRecord(snap)
	require.NoError(t, err)
	buf[len(buf)-1] ^= 0xFF // flip a payload byte, hash no longer matches

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(sessionKey(snap.SessionID), buf)
	})
	require.NoError(t, err)

	_, err = s.Load(ctx, snap.SessionID)
	assert.ErrorIs(t, err, ErrSnapshotCorrupted)
}

func TestList_ReturnsAllSavedSessionIDs(t *testing.T) {
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	defer s.Close()

	ctx := context.Background()
	var ids []string
	for i := 0; i < 3; i++ {
		sess := newFinalizedSession(t)
		snap, err := sess.Snapshot()
		require.NoError(t, err)
		require.NoError(t, s.Save(ctx, snap))
		ids = append(ids, snap.SessionID)
	}

	got, err := s.List(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, ids, got)
}

// TestPersistence_SurvivesReopen covers SPEC_FULL.md §8 scenario 7:
// closing and reopening the database directory preserves every saved
// snapshot byte-for-byte, and List still reports its session id.
func TestPersistence_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sessions")

	s1, err := Open(DefaultConfig(path))
	require.NoError(t, err)

	sess := newFinalizedSession(t)
	snap, err := sess.Snapshot()
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, s1.Save(ctx, snap))
	require.NoError(t, s1.Close())

	s2, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s2.Close()

	ids, err := s2.List(ctx)
	require.NoError(t, err)
	assert.Contains(t, ids, snap.SessionID)

	reloaded, err := s2.Load(ctx, snap.SessionID)
	require.NoError(t, err)
	// Compare fields rather than the whole struct: time.Time round-trips
	// through JSON with a different *time.Location pointer even when it
	// denotes the same instant, which would otherwise fail a DeepEqual.
	assert.Equal(t, snap.SessionID, reloaded.SessionID)
	assert.Equal(t, snap.Status, reloaded.Status)
	assert.Equal(t, snap.RepoRef, reloaded.RepoRef)
	assert.Equal(t, snap.Roots, reloaded.Roots)
	assert.Equal(t, snap.Nodes, reloaded.Nodes)
	assert.True(t, snap.CreatedAt.Equal(reloaded.CreatedAt))
	assert.True(t, snap.LastActiveAt.Equal(reloaded.LastActiveAt))

	require.Len(t, reloaded.Exchanges, len(snap.Exchanges))
	for i, want := range snap.Exchanges {
		got := reloaded.Exchanges[i]
		assert.Equal(t, want.ID, got.ID)
		assert.Equal(t, want.Role, got.Role)
		assert.Equal(t, want.Payload, got.Payload)
		assert.Equal(t, want.ActionNodeID, got.ActionNodeID)
		assert.Equal(t, want.Superseded, got.Superseded)
		assert.Equal(t, want.Terminal, got.Terminal)
		assert.True(t, want.CreatedAt.Equal(got.CreatedAt))
	}
}

func TestOpen_RejectsEmptyPersistentPath(t *testing.T) {
	_, err := Open(Config{})
	assert.Error(t, err)
}

func TestOpen_CreatesMissingDirectory(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "sessions")

	s, err := Open(DefaultConfig(path))
	require.NoError(t, err)
	defer s.Close()

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
