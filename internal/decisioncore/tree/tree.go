// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tree holds a session's Action Node forest (a true tree per
// root trajectory, no cycles — §9's design note prefers an arena-with-
// indices representation, implemented here as a map keyed by node id)
// and the Tree Search Controller (C7) that drives branching exploration
// over it.
package tree

import (
	"errors"
	"fmt"
	"sync"

	"github.com/agentcore/decisioncore/internal/decisioncore/node"
)

// ErrNodeNotFound is returned when a node id is not present in the tree.
var ErrNodeNotFound = errors.New("action node not found")

// ErrDuplicateNode is returned when a node id is already present.
var ErrDuplicateNode = errors.New("action node already present")

// Tree is the forest of Action Nodes belonging to one session. Safe for
// concurrent use: the agent loop appends nodes while the tree controller
// concurrently reads visit/reward state for selection.
type Tree struct {
	mu    sync.RWMutex
	nodes map[string]*node.Node
	roots []string
}

// New creates an empty Tree.
func New() *Tree {
	return &Tree{nodes: make(map[string]*node.Node)}
}

// AddRoot inserts n as a new root of the forest.
func (t *Tree) AddRoot(n *node.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.nodes[n.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}
	t.nodes[n.ID()] = n
	t.roots = append(t.roots, n.ID())
	return nil
}

// AddChild inserts n as a child of parentID, linking both sides. Per I7,
// callers must not invoke this against a parent whose action has already
// been re-executed; Tree itself only maintains the index.
func (t *Tree) AddChild(parentID string, n *node.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	parent, ok := t.nodes[parentID]
	if !ok {
		return fmt.Errorf("%w: parent %s", ErrNodeNotFound, parentID)
	}
	if _, exists := t.nodes[n.ID()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateNode, n.ID())
	}

	t.nodes[n.ID()] = n
	parent.AddChild(n.ID())
	return nil
}

// Get returns the node with the given id.
func (t *Tree) Get(id string) (*node.Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n, ok := t.nodes[id]
	return n, ok
}

// All returns every node in the forest, in no particular order.
func (t *Tree) All() []*node.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*node.Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	return out
}

// Roots returns every root node.
func (t *Tree) Roots() []*node.Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*node.Node, 0, len(t.roots))
	for _, id := range t.roots {
		out = append(out, t.nodes[id])
	}
	return out
}

// Len returns the number of nodes in the forest.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Children returns the direct children of id.
func (t *Tree) Children(id string) ([]*node.Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}
	out := make([]*node.Node, 0, n.ChildCount())
	for _, cid := range n.ChildrenIDs() {
		if c, ok := t.nodes[cid]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// PathFromRoot walks parent links from id back to its root and returns
// the path in root-to-id order. Bounded by the forest size, satisfying
// P3's well-formedness requirement that the walk terminates.
func (t *Tree) PathFromRoot(id string) ([]*node.Node, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var path []*node.Node
	cur, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotFound, id)
	}

	seen := make(map[string]bool)
	for {
		if seen[cur.ID()] {
			return nil, fmt.Errorf("action node forest contains a cycle at %s", cur.ID())
		}
		seen[cur.ID()] = true
		path = append(path, cur)

		if cur.IsRoot() {
			break
		}
		parent, ok := t.nodes[cur.ParentID()]
		if !ok {
			return nil, fmt.Errorf("%w: parent %s of %s", ErrNodeNotFound, cur.ParentID(), cur.ID())
		}
		cur = parent
	}

	// reverse into root-to-leaf order
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}
