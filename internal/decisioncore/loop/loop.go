// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package loop implements the Agent Loop (C6): the linear driver that
// repeatedly asks the model, parses its reply, invokes a tool, and
// appends the result, until the trajectory reaches a terminal outcome.
// Each iteration's render/call/parse/invoke/append work is delegated to
// step.Run; this package owns only the linear sequencing, the session's
// status transitions, and the cancellation/pause checks of §5.
package loop

import (
	"context"
	"fmt"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/session"
	"github.com/agentcore/decisioncore/internal/decisioncore/sessionstatus"
	"github.com/agentcore/decisioncore/internal/decisioncore/step"
)

// ErrAlreadyDriven is returned by Run when the session could not be
// acquired for exclusive driving (P2, §4.6 "Ordering and reentrancy").
var ErrAlreadyDriven = session.ErrBusy

// Run drives sess linearly with deps and cfg until one of §4.6's
// terminal outcomes is reached, returning the final step.Outcome. retry
// is shared with any tree-controller driving that may run against the
// same session at a different time, since the parse/executor failure
// budgets are session-scoped, not driver-scoped (§7).
//
// Run acquires sess's exclusivity for its own duration and releases it
// before returning, including on error. Exactly one of Run or a tree
// Controller.Run may hold that exclusivity at a time.
func Run(ctx context.Context, sess *session.Session, deps step.Deps, cfg step.Config, modelID string, retry *step.RetryState) (step.Outcome, error) {
	if !sess.TryAcquire() {
		return step.OutcomeErrored, ErrAlreadyDriven
	}
	defer sess.Release()

	if err := sess.Begin(); err != nil {
		return step.OutcomeErrored, fmt.Errorf("loop: begin: %w", err)
	}
	deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusRunning))

	var tail *node.Node

	for {
		if ctx.Err() != nil || sess.Status() == sessionstatus.StatusCancelled {
			if err := sess.Cancel(); err != nil {
				return step.OutcomeErrored, err
			}
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusCancelled))
			return step.OutcomeErrored, nil
		}
		if sess.Status() == sessionstatus.StatusPaused {
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusPaused))
			return step.OutcomePaused, nil
		}

		parentID, parentDepth := "", 0
		if tail != nil {
			parentID, parentDepth = tail.ID(), tail.Depth()
		}

		result, err := step.Run(ctx, sess.ID(), deps, cfg, sess.Exchanges(), sess.Exchanges().ForPrompt(false), sess, modelID, parentID, parentDepth, retry)
		if err != nil {
			_ = sess.MarkErrored()
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusErrored))
			return result.Outcome, err
		}

		if result.Node != nil {
			if tail == nil {
				if err := sess.Tree().AddRoot(result.Node); err != nil {
					return step.OutcomeErrored, err
				}
			} else if err := sess.Tree().AddChild(tail.ID(), result.Node); err != nil {
				return step.OutcomeErrored, err
			}
			tail = result.Node
		}

		switch result.Outcome {
		case step.OutcomeContinue:
			continue
		case step.OutcomeIdle:
			if err := sess.Idle(); err != nil {
				return step.OutcomeErrored, err
			}
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusIdle))
			return step.OutcomeIdle, nil
		case step.OutcomeCompleted:
			if err := sess.Complete(); err != nil {
				return step.OutcomeErrored, err
			}
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusCompleted))
			return step.OutcomeCompleted, nil
		case step.OutcomePaused:
			if err := sess.Pause(); err != nil {
				return step.OutcomeErrored, err
			}
			deps.Stream.Send(ctx, events.NewSessionStatusChanged(sess.ID(), sessionstatus.StatusPaused))
			return step.OutcomePaused, nil
		default:
			return step.OutcomeErrored, fmt.Errorf("loop: unknown outcome %v", result.Outcome)
		}
	}
}
