// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package builtin

import (
	"context"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// AttemptCompletion is the terminating, non-pausing tool of §4.6: the
// model calls it when it believes the user's request is satisfied, and
// the Agent Loop maps a successful invocation onto StatusCompleted.
func AttemptCompletion() tooling.Descriptor {
	return tooling.Descriptor{
		Name:          "attempt_completion",
		Description:   "Signals that the requested task is finished. Call this once the work is done, summarizing the result.",
		IsTerminating: true,
		ArgumentSchema: map[string]tooling.ArgSpec{
			"result": {Type: tooling.ArgTypeString, Description: "summary of what was accomplished", Required: true},
		},
		SideEffects: tooling.SideEffectNone,
		Executor: tooling.ExecutorFunc(func(_ context.Context, args map[string]any, _ tooling.SessionView) (tooling.Observation, error) {
			result, _ := args["result"].(string)
			return tooling.Observation{Text: result}, nil
		}),
	}
}

// AskFollowupQuestion is the terminating, pausing tool of §4.6: the
// model calls it when it needs information only the user can supply,
// and the Agent Loop maps a successful invocation onto StatusPaused
// rather than StatusCompleted.
func AskFollowupQuestion() tooling.Descriptor {
	return tooling.Descriptor{
		Name:              "ask_followup_question",
		Description:       "Asks the user a clarifying question and pauses the session until they reply.",
		IsTerminating:     true,
		PausesOnTerminate: true,
		ArgumentSchema: map[string]tooling.ArgSpec{
			"question": {Type: tooling.ArgTypeString, Description: "the question to ask the user", Required: true},
		},
		SideEffects: tooling.SideEffectNone,
		Executor: tooling.ExecutorFunc(func(_ context.Context, args map[string]any, _ tooling.SessionView) (tooling.Observation, error) {
			question, _ := args["question"].(string)
			return tooling.Observation{Text: question}, nil
		}),
	}
}
