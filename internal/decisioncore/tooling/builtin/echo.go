// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package builtin provides the Decision Core's built-in tool
// descriptors: echo (diagnostic), attempt_completion and
// ask_followup_question (the two terminating outcomes of §4.6), and
// apply_patch (the one Writes-side-effect tool).
package builtin

import (
	"context"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// Echo returns text verbatim as its observation. It exists mainly as a
// harness tool for tests and demos: a model can always make progress by
// echoing something back without touching the workspace.
func Echo() tooling.Descriptor {
	return tooling.Descriptor{
		Name:        "echo",
		Description: "Echoes the given text back as an observation. Useful for testing the agent loop.",
		ArgumentSchema: map[string]tooling.ArgSpec{
			"text": {Type: tooling.ArgTypeString, Description: "text to echo back", Required: true},
		},
		SideEffects: tooling.SideEffectNone,
		Executor: tooling.ExecutorFunc(func(_ context.Context, args map[string]any, _ tooling.SessionView) (tooling.Observation, error) {
			text, _ := args["text"].(string)
			return tooling.Observation{Text: text}, nil
		}),
	}
}
