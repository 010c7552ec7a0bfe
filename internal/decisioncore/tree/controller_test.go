// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tree

import (
	"context"
	"testing"
	"time"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/internal/decisioncore/exchange"
	"github.com/agentcore/decisioncore/internal/decisioncore/llm"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/registry"
	"github.com/agentcore/decisioncore/internal/decisioncore/step"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/agentcore/decisioncore/internal/decisioncore/toolcall"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type repeatingModel struct{ reply string }

func (m repeatingModel) Complete(_ context.Context, _ llm.Request) (<-chan string, <-chan error) {
	deltas := make(chan string, 1)
	errs := make(chan error, 1)
	deltas <- m.reply
	close(deltas)
	close(errs)
	return deltas, errs
}

type constValue struct{ reward float64 }

func (v constValue) Score(_ context.Context, _ *node.Node, _ tooling.SessionView) (float64, error) {
	return v.reward, nil
}

type nopView struct{}

func (nopView) SessionID() string       { return "s1" }
func (nopView) WorkspaceRoot() string   { return "" }
func (nopView) OpenFiles() []string     { return nil }
func (nopView) ProjectLabels() []string { return nil }

func TestController_BudgetThreeStopsAtThreeFinalizedNodes(t *testing.T) {
	reg := registry.New()
	require.NoError(t, reg.Register(tooling.Descriptor{
		Name: "echo",
		ArgumentSchema: map[string]tooling.ArgSpec{
			"text": {Type: tooling.ArgTypeString, Required: true},
		},
		Executor: tooling.ExecutorFunc(func(_ context.Context, args map[string]any, _ tooling.SessionView) (tooling.Observation, error) {
			return tooling.Observation{Text: args["text"].(string)}, nil
		}),
	}))

	pb, err := step.NewPromptBuilder()
	require.NoError(t, err)

	log := exchange.New()
	log.Append(exchange.Exchange{Role: exchange.RoleUser, Payload: exchange.Payload{Text: "explore"}})

	deps := step.Deps{
		Registry: reg,
		Parser:   toolcall.New(reg),
		Model:    repeatingModel{reply: "<echo><text>x</text></echo>"},
		Prompt:   pb,
		Stream:   events.NewStream(),
	}
	go func() {
		for range deps.Stream.Events() {
		}
	}()

	tr := New()
	cfg := Config{BranchingCap: 2, NodeBudget: 3, ExplorationC: 1.41, SuccessThreshold: 0.8, WallClockBudget: time.Minute}
	ctrl := NewController("s1", tr, log, deps, step.DefaultConfig(), cfg, constValue{reward: 0.3})

	reason, err := ctrl.Run(context.Background(), nopView{}, "gpt-test", step.NewRetryState())
	require.NoError(t, err)
	assert.Equal(t, TerminationBudgetExhausted, reason)
	assert.Equal(t, 3, tr.Len())

	for _, n := range tr.All() {
		assert.Equal(t, node.Finalized, n.State())
	}

	roots := tr.Roots()
	require.Len(t, roots, 1)
	root := roots[0]

	// Either a chain of three (root -> child -> grandchild) or a root
	// with two children and one grandchild, per the scenario's shape.
	switch root.ChildCount() {
	case 1:
		children, err := tr.Children(root.ID())
		require.NoError(t, err)
		assert.Equal(t, 1, children[0].ChildCount(), "chain shape requires the single child to have one child of its own")
	case 2:
		// root with two children and one grandchild between them
		children, err := tr.Children(root.ID())
		require.NoError(t, err)
		total := 0
		for _, c := range children {
			total += c.ChildCount()
		}
		assert.Equal(t, 1, total)
	default:
		t.Fatalf("unexpected root child count %d", root.ChildCount())
	}
}
