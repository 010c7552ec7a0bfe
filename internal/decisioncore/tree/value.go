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
	"context"

	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// HeuristicValue is a dependency-free ValueFunction: it scores a
// Finalized leaf from the Action Node's own observation rather than
// asking a model for a critique, following the teacher's score-from-
// signals approach in mcts_engine.go's backpropagate (there driven by
// RAVE/security-scan signals; here driven by whether the tool call
// itself reported an error).
//
// A terminating node that completed the task scores highest, a plain
// successful observation scores moderately, and any node carrying an
// ErrorKind scores at the floor. This gives the Tree Search Controller
// a working default so a caller can drive the tree without first
// wiring a model-graded critic.
type HeuristicValue struct{}

// Score implements ValueFunction.
func (HeuristicValue) Score(_ context.Context, n *node.Node, _ tooling.SessionView) (float64, error) {
	obs := n.Observation()
	if obs.ErrorKind != "" {
		return 0.1, nil
	}
	if n.Action().ToolName == "attempt_completion" {
		return 1.0, nil
	}
	return 0.6, nil
}
