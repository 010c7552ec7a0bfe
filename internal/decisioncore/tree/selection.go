// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package tree

import (
	"math"
	"strings"

	"github.com/agentcore/decisioncore/internal/decisioncore/node"
)

// Score computes the UCB-style selection score of §4.7:
//
//	score(n) = reward(n) + c * sqrt(ln(visits(parent(n)) + 1) / (visits(n) + 1))
func Score(n *node.Node, parentVisits int64, c float64) float64 {
	reward, _ := n.Reward()
	return reward + c*math.Sqrt(math.Log(float64(parentVisits)+1)/(float64(n.Visits())+1))
}

// Eligible reports whether n may be selected: not Failed, not
// Pending/Executing (another worker already owns it), not a terminal
// node (§4.6 — a terminating tool call ends its trajectory regardless
// of the reward the value function assigned it), and with fewer than
// branchingCap children (P8).
func Eligible(n *node.Node, branchingCap int) bool {
	if n.State() != node.Finalized {
		return false
	}
	if n.IsTerminal() {
		return false
	}
	return n.ChildCount() < branchingCap
}

// SelectCandidate picks the best-scoring eligible candidate from
// candidates, given the visit count of their shared parent. Ties break
// by smaller depth, then smaller node_id (§4.7). Returns nil if no
// candidate is eligible.
func SelectCandidate(candidates []*node.Node, parentVisits int64, c float64, branchingCap int) *node.Node {
	var best *node.Node
	bestScore := math.Inf(-1)

	for _, cand := range candidates {
		if !Eligible(cand, branchingCap) {
			continue
		}
		s := Score(cand, parentVisits, c)

		switch {
		case best == nil || s > bestScore:
			best, bestScore = cand, s
		case s == bestScore:
			if better(cand, best) {
				best = cand
			}
		}
	}
	return best
}

// better implements the tie-break: smaller depth, then smaller node_id
// (lexicographic).
func better(a, b *node.Node) bool {
	if a.Depth() != b.Depth() {
		return a.Depth() < b.Depth()
	}
	return strings.Compare(a.ID(), b.ID()) < 0
}

// SelectFromTree scans every node in t and returns the single best
// eligible node across the whole forest, using each candidate's actual
// parent's visit count (root candidates use the tree's implicit root
// visits of 0, so ln(1)=0 collapses the exploration term to zero for
// roots, matching the teacher's "avoid log(0)" treatment generalized to
// this spec's +1 formula).
func SelectFromTree(t *Tree, c float64, branchingCap int) *node.Node {
	var best *node.Node
	bestScore := math.Inf(-1)

	for _, n := range t.All() {
		if !Eligible(n, branchingCap) {
			continue
		}

		var parentVisits int64
		if !n.IsRoot() {
			if parent, ok := t.Get(n.ParentID()); ok {
				parentVisits = parent.Visits()
			}
		}

		s := Score(n, parentVisits, c)
		switch {
		case best == nil || s > bestScore:
			best, bestScore = n, s
		case s == bestScore && better(n, best):
			best = n
		}
	}
	return best
}
