// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"testing"

	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildChain(t *testing.T) (*Tree, []string) {
	t.Helper()
	tr := New()
	root := node.NewRoot("n0", node.Action{ToolName: "echo"})
	require.NoError(t, tr.AddRoot(root))

	child := node.NewChild("n1", "n0", root.Depth(), node.Action{ToolName: "echo"})
	require.NoError(t, tr.AddChild("n0", child))

	grandchild := node.NewChild("n2", "n1", child.Depth(), node.Action{ToolName: "echo"})
	require.NoError(t, tr.AddChild("n1", grandchild))

	return tr, []string{"n0", "n1", "n2"}
}

func TestTree_PathFromRootWellFormed(t *testing.T) {
	tr, ids := buildChain(t)

	path, err := tr.PathFromRoot("n2")
	require.NoError(t, err)
	require.Len(t, path, 3)
	for i, n := range path {
		assert.Equal(t, ids[i], n.ID())
	}
}

func TestTree_ChildrenLinkageConsistent(t *testing.T) {
	tr, _ := buildChain(t)

	children, err := tr.Children("n0")
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, "n1", children[0].ID())
}

func TestTree_DuplicateRootRejected(t *testing.T) {
	tr := New()
	root := node.NewRoot("n0", node.Action{ToolName: "echo"})
	require.NoError(t, tr.AddRoot(root))
	assert.ErrorIs(t, tr.AddRoot(node.NewRoot("n0", node.Action{ToolName: "echo"})), ErrDuplicateNode)
}

func TestTree_AddChildUnknownParent(t *testing.T) {
	tr := New()
	child := node.NewChild("n1", "missing", 0, node.Action{ToolName: "echo"})
	assert.ErrorIs(t, tr.AddChild("missing", child), ErrNodeNotFound)
}
