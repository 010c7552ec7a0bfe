// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package node

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNode_HappyPathLifecycle(t *testing.T) {
	n := NewRoot("n0", Action{ToolName: "echo", Arguments: map[string]any{"text": "hi"}})
	assert.Equal(t, Pending, n.State())

	require.NoError(t, n.BeginExecuting())
	assert.Equal(t, Executing, n.State())

	require.NoError(t, n.Finalize(Observation{Text: "hi"}, false))
	assert.Equal(t, Finalized, n.State())

	require.NoError(t, n.SetReward(0.8))
	reward, ok := n.Reward()
	assert.True(t, ok)
	assert.Equal(t, 0.8, reward)
}

func TestNode_FailedRewardIsZero(t *testing.T) {
	n := NewRoot("n0", Action{ToolName: "slow"})
	require.NoError(t, n.BeginExecuting())
	require.NoError(t, n.Fail(Observation{ErrorKind: "timeout"}))

	reward, ok := n.Reward()
	assert.True(t, ok)
	assert.Equal(t, 0.0, reward)

	err := n.SetReward(0.9)
	assert.Error(t, err)
}

func TestNode_RewardAssignedOnlyOnce(t *testing.T) {
	n := NewRoot("n0", Action{ToolName: "echo"})
	require.NoError(t, n.BeginExecuting())
	require.NoError(t, n.Finalize(Observation{Text: "ok"}, false))
	require.NoError(t, n.SetReward(0.5))

	err := n.SetReward(0.9)
	assert.ErrorIs(t, err, ErrRewardAlreadySet)
}

func TestNode_InvalidTransitionsRejected(t *testing.T) {
	n := NewRoot("n0", Action{ToolName: "echo"})
	assert.Error(t, n.Finalize(Observation{}, false)) // pending -> finalized skips executing
	assert.Error(t, n.Fail(Observation{}))

	require.NoError(t, n.BeginExecuting())
	assert.Error(t, n.BeginExecuting()) // already executing
}

func TestNode_FinalizedObservationImmutable(t *testing.T) {
	n := NewRoot("n0", Action{ToolName: "echo"})
	require.NoError(t, n.BeginExecuting())
	require.NoError(t, n.Finalize(Observation{Text: "first"}, false))

	before := n.Observation()
	err := n.Finalize(Observation{Text: "second"}, false)
	assert.Error(t, err)
	assert.Equal(t, before, n.Observation())
}

func TestNode_SnapshotRoundTrip(t *testing.T) {
	n := NewChild("n1", "n0", 0, Action{ToolName: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, n.BeginExecuting())
	require.NoError(t, n.Finalize(Observation{Text: "hi"}, true))
	require.NoError(t, n.SetReward(0.5))
	n.IncrementVisits()
	n.AddChild("n2")

	snap := n.ToSnapshot()
	restored := FromSnapshot(snap)

	assert.Equal(t, n.ID(), restored.ID())
	assert.Equal(t, n.ParentID(), restored.ParentID())
	assert.Equal(t, n.Depth(), restored.Depth())
	assert.Equal(t, n.ChildrenIDs(), restored.ChildrenIDs())
	assert.Equal(t, n.State(), restored.State())
	assert.Equal(t, n.IsTerminal(), restored.IsTerminal())
	assert.True(t, restored.IsTerminal())
	assert.Equal(t, n.Visits(), restored.Visits())
	reward, ok := n.Reward()
	restoredReward, restoredOk := restored.Reward()
	assert.Equal(t, ok, restoredOk)
	assert.Equal(t, reward, restoredReward)
}
