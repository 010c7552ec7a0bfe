// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm defines the model-collaborator boundary consumed by the
// agent loop and tree search controller (§6): an ordered stream of text
// deltas terminated by a close signal, not a provider-specific response
// shape.
package llm

import "context"

// Turn is one role-tagged entry of a rendered transcript.
type Turn struct {
	Role    string // "user", "assistant", or "tool"
	Content string
}

// Request is everything a ModelClient needs to produce a completion.
type Request struct {
	System     string
	Transcript []Turn
	ModelID    string
}

// ModelClient is the model-collaborator contract of §6:
//
//	Complete(ctx, system, transcript, modelID, cancel) -> stream of text deltas
//
// Complete returns immediately with two channels: deltas yields text
// fragments in arrival order, errs yields at most one error. Exactly one
// of the following eventually happens: deltas closes (successful
// completion) or errs receives a value (the call failed, and deltas is
// also closed). Implementations must honor ctx cancellation at each
// delta boundary, per §5's suspension-point list.
type ModelClient interface {
	Complete(ctx context.Context, req Request) (deltas <-chan string, errs <-chan error)
}
