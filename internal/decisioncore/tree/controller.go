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
	"math"
	"time"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/internal/decisioncore/exchange"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/step"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// ValueFunction is the reward collaborator of §6:
//
//	Score(ctx, node, sessionView) -> reward in [0, 1]
//
// It is consulted once per newly Finalized leaf. A Failed node never
// reaches the value function; its reward is fixed at zero by node.Fail.
type ValueFunction interface {
	Score(ctx context.Context, n *node.Node, view tooling.SessionView) (float64, error)
}

// TerminationReason explains why Controller.Run stopped, per §4.7.
type TerminationReason int

const (
	TerminationBudgetExhausted TerminationReason = iota
	TerminationWallClockExceeded
	TerminationCancelled
	TerminationSuccess
	// TerminationExhausted means every node in the forest is ineligible
	// for further selection (each is at its branching cap, Failed, or
	// still in flight) — there is nothing left to expand.
	TerminationExhausted
	// TerminationIdle means the model produced no tool call while
	// expanding a branch. Not named in the source scenarios; added
	// because a value-producing step always yields a node, and the tree
	// controller has no linear-loop fallback to fall through to.
	TerminationIdle
)

func (r TerminationReason) String() string {
	switch r {
	case TerminationBudgetExhausted:
		return "budget_exhausted"
	case TerminationWallClockExceeded:
		return "wall_clock_exceeded"
	case TerminationCancelled:
		return "cancelled"
	case TerminationSuccess:
		return "success"
	case TerminationExhausted:
		return "exhausted"
	case TerminationIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Config is the tree-search-specific slice of the configuration surface
// (§6): branching_cap, node_budget, exploration_c, plus a success
// threshold and wall-clock budget the source leaves as free parameters
// of the termination condition in §4.7.
type Config struct {
	BranchingCap     int
	NodeBudget       int
	ExplorationC     float64
	SuccessThreshold float64
	WallClockBudget  time.Duration
}

// DefaultConfig returns the stated defaults of §6 (branching_cap=3,
// node_budget=50, exploration_c≈√2) plus this implementation's choice
// of success threshold and wall-clock budget.
func DefaultConfig() Config {
	return Config{
		BranchingCap:     3,
		NodeBudget:       50,
		ExplorationC:     math.Sqrt2,
		SuccessThreshold: 0.8,
		WallClockBudget:  5 * time.Minute,
	}
}

// Controller is the Tree Search Controller (C7): it drives
// select -> expand -> evaluate -> back-propagate over a session's Tree
// until one of the termination conditions in §4.7 is met.
type Controller struct {
	sessionID string
	tree      *Tree
	log       *exchange.Log
	deps      step.Deps
	stepCfg   step.Config
	cfg       Config
	value     ValueFunction
}

// NewController builds a Controller over tr, appending exchanges to log
// and invoking steps through deps.
func NewController(sessionID string, tr *Tree, log *exchange.Log, deps step.Deps, stepCfg step.Config, cfg Config, value ValueFunction) *Controller {
	return &Controller{sessionID: sessionID, tree: tr, log: log, deps: deps, stepCfg: stepCfg, cfg: cfg, value: value}
}

// Run drives the controller until termination, using view and modelID
// for every step it takes and sharing retry with any other driver of
// this session (the parse/executor failure budgets are session-scoped,
// not tree-branch-scoped).
func (c *Controller) Run(ctx context.Context, view tooling.SessionView, modelID string, retry *step.RetryState) (TerminationReason, error) {
	var deadline time.Time
	if c.cfg.WallClockBudget > 0 {
		deadline = time.Now().Add(c.cfg.WallClockBudget)
	}
	base := basePrefix(c.log)

	for {
		if ctx.Err() != nil {
			return TerminationCancelled, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			c.deps.Stream.Send(ctx, events.NewError(c.sessionID, "wall_clock_exceeded", "tree search exceeded its wall-clock budget"))
			return TerminationWallClockExceeded, nil
		}
		if c.cfg.NodeBudget > 0 && c.tree.Len() >= c.cfg.NodeBudget {
			c.deps.Stream.Send(ctx, events.NewError(c.sessionID, "budget_exhausted", "tree search reached its node budget"))
			return TerminationBudgetExhausted, nil
		}

		selected := SelectFromTree(c.tree, c.cfg.ExplorationC, c.cfg.BranchingCap)

		var parentID string
		var parentDepth int
		var path []*node.Node
		if selected != nil {
			parentID = selected.ID()
			parentDepth = selected.Depth()
			p, err := c.tree.PathFromRoot(selected.ID())
			if err != nil {
				return TerminationBudgetExhausted, err
			}
			path = p
		} else if c.tree.Len() > 0 {
			return TerminationExhausted, nil
		}

		transcript := append(append([]exchange.Exchange{}, base...), c.log.PathTranscript(idsOf(path))...)

		result, err := step.Run(ctx, c.sessionID, c.deps, c.stepCfg, c.log, transcript, view, modelID, parentID, parentDepth, retry)
		if err != nil {
			return TerminationBudgetExhausted, err
		}
		if result.Node == nil {
			return TerminationIdle, nil
		}

		if selected == nil {
			if err := c.tree.AddRoot(result.Node); err != nil {
				return TerminationBudgetExhausted, err
			}
		} else if err := c.tree.AddChild(selected.ID(), result.Node); err != nil {
			return TerminationBudgetExhausted, err
		}

		for _, n := range path {
			n.IncrementVisits()
		}
		result.Node.IncrementVisits()

		if result.Node.State() != node.Finalized {
			continue
		}

		reward, verr := c.value.Score(ctx, result.Node, view)
		if verr != nil {
			reward = 0
		}
		if err := result.Node.SetReward(reward); err != nil {
			return TerminationBudgetExhausted, err
		}
		c.deps.Stream.Send(ctx, events.NewNodeEvaluated(c.sessionID, result.Node.ID(), reward))

		if desc, lookupErr := c.deps.Registry.Lookup(result.Node.Action().ToolName); lookupErr == nil &&
			desc.IsTerminating && reward >= c.cfg.SuccessThreshold {
			return TerminationSuccess, nil
		}
	}
}

// basePrefix is the portion of log that precedes any node in the tree:
// the exchanges not tied to an action node (the initiating user
// message, in particular). Every branch's transcript starts here.
func basePrefix(log *exchange.Log) []exchange.Exchange {
	var out []exchange.Exchange
	for _, e := range log.ForPrompt(false) {
		if e.ActionNodeID == "" {
			out = append(out, e)
		}
	}
	return out
}

func idsOf(path []*node.Node) []string {
	ids := make([]string, len(path))
	for i, n := range path {
		ids[i] = n.ID()
	}
	return ids
}
