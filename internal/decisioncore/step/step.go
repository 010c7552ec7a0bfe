// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package step implements the single-agent-step primitive shared by the
// Agent Loop (C6) and the Tree Search Controller (C7): render prompt,
// call the model collaborator, parse the reply, invoke the tool, and
// fold the outcome into an Action Node and the Exchange Log. Both
// callers drive the resulting Outcome through their own termination
// logic (linear loop vs. selection/expansion/backprop); neither
// duplicates this render/call/parse/invoke/append sequence.
package step

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/agentcore/decisioncore/internal/decisioncore/events"
	"github.com/agentcore/decisioncore/internal/decisioncore/exchange"
	"github.com/agentcore/decisioncore/internal/decisioncore/llm"
	"github.com/agentcore/decisioncore/internal/decisioncore/node"
	"github.com/agentcore/decisioncore/internal/decisioncore/registry"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/agentcore/decisioncore/internal/decisioncore/toolcall"
	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/time/rate"
)

// maxToolResultChars bounds how much of one tool observation's text is
// replayed into the model transcript (§4.6 step 2 renders "the
// exchanges", which for a long-running tool like apply_patch or a large
// file read can otherwise dominate the context window on later turns).
const maxToolResultChars = 4000

// truncateForPrompt keeps only the lead of a long observation, split on
// natural boundaries rather than an arbitrary byte offset, following the
// teacher's chunking convention for oversized text (getSplitterForFile /
// textsplitter.NewRecursiveCharacter).
func truncateForPrompt(text string) string {
	if len(text) <= maxToolResultChars {
		return text
	}
	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(maxToolResultChars),
		textsplitter.WithChunkOverlap(0),
	)
	chunks, err := splitter.SplitText(text)
	if err != nil || len(chunks) == 0 {
		return text[:maxToolResultChars] + "\n... (truncated)"
	}
	return chunks[0] + "\n... (truncated)"
}

// Outcome is what the caller should do after one step.
type Outcome int

const (
	// OutcomeContinue means the caller should run another step (a
	// non-terminating tool succeeded, or a recoverable failure was
	// recorded and the retry budget is not exhausted).
	OutcomeContinue Outcome = iota
	// OutcomeIdle means the model emitted no tool call: a natural,
	// non-terminating stop (§8 scenario 1).
	OutcomeIdle
	// OutcomeCompleted means a terminating, non-pausing tool succeeded.
	OutcomeCompleted
	// OutcomePaused means a terminating, pausing tool succeeded.
	OutcomePaused
	// OutcomeErrored means a retry budget was exhausted, a transport
	// error occurred, or an invariant was violated.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeContinue:
		return "continue"
	case OutcomeIdle:
		return "idle"
	case OutcomeCompleted:
		return "completed"
	case OutcomePaused:
		return "paused"
	case OutcomeErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// RetryState tracks the consecutive-failure counters of §7, shared
// across every step taken within one session so that the budget is
// enforced regardless of whether steps are driven by the linear loop or
// the tree controller.
type RetryState struct {
	mu               sync.Mutex
	parseFailures    int
	executorFailures map[string]int
}

// NewRetryState creates a zeroed RetryState.
func NewRetryState() *RetryState {
	return &RetryState{executorFailures: make(map[string]int)}
}

func (r *RetryState) incrParse() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parseFailures++
	return r.parseFailures
}

func (r *RetryState) resetParse() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parseFailures = 0
}

func (r *RetryState) incrExecutor(tool string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executorFailures[tool]++
	return r.executorFailures[tool]
}

func (r *RetryState) resetExecutor(tool string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.executorFailures, tool)
}

// Config carries the subset of the configuration surface (§6) that
// governs step-level retry and timeout behavior.
type Config struct {
	ParseFailureRetries    int
	ExecutorFailureRetries int
	PerToolTimeout         time.Duration // used only when a descriptor does not override it
}

// DefaultConfig returns the configuration surface's stated defaults.
func DefaultConfig() Config {
	return Config{
		ParseFailureRetries:    3,
		ExecutorFailureRetries: 3,
		PerToolTimeout:         tooling.DefaultTimeout,
	}
}

// Deps are the collaborators a step needs, shared across every step of
// a session.
type Deps struct {
	Registry *registry.Registry
	Parser   *toolcall.Parser
	Model    llm.ModelClient
	Prompt   *PromptBuilder
	Stream   *events.Stream

	// Limiter throttles tool invocations at the executor boundary
	// (shared across every tool a session calls, not per-tool). Nil
	// means unlimited, which is what every existing caller that doesn't
	// set it gets.
	Limiter *rate.Limiter
}

// Result is the outcome of one step, plus the Action Node it produced
// (nil for OutcomeIdle, and for an OutcomeErrored that occurred before a
// node could be constructed).
type Result struct {
	Outcome Outcome
	Node    *node.Node
}

// Run executes one agent step (§4.6 steps 2-6): it renders the system
// prompt from the registry and view, streams a completion from
// deps.Model, parses the reply, and — for a parsed tool call — creates
// an Action Node as a child of parentID (a root if parentID is empty),
// invokes the tool, and appends the resulting exchange. parentDepth is
// the depth of the parent node (ignored when parentID is empty).
//
// transcript is the rendered turn sequence shown to the model this
// step. The linear agent loop passes log.ForPrompt(false) (the whole
// session so far); the tree controller instead passes the root-to-node
// path transcript of §4.7's expansion, since sibling branches must not
// see each other's exchanges. log itself is only ever appended to here,
// never read for prompt construction, so the two callers cannot
// accidentally share the wrong view.
func Run(
	ctx context.Context,
	sessionID string,
	deps Deps,
	cfg Config,
	log *exchange.Log,
	transcript []exchange.Exchange,
	view tooling.SessionView,
	modelID string,
	parentID string,
	parentDepth int,
	retry *RetryState,
) (Result, error) {
	nodeID := uuid.NewString()

	system, err := deps.Prompt.BuildSystemPrompt(deps.Registry.List(), view)
	if err != nil {
		return Result{Outcome: OutcomeErrored}, fmt.Errorf("render system prompt: %w", err)
	}

	reply, err := collectCompletion(ctx, sessionID, nodeID, deps, llm.Request{
		System:     system,
		Transcript: renderTranscript(transcript),
		ModelID:    modelID,
	})
	if err != nil {
		deps.Stream.Send(ctx, events.NewError(sessionID, "transport", err.Error()))
		return Result{Outcome: OutcomeErrored}, err
	}

	call, failure := deps.Parser.Parse(reply)
	switch {
	case call == nil && failure == nil:
		return handleIdle(ctx, sessionID, log, deps, reply), nil
	case failure != nil:
		return handleParseFailure(ctx, sessionID, log, deps, cfg, retry, failure)
	default:
		return handleToolCall(ctx, sessionID, log, deps, cfg, retry, view, nodeID, parentID, parentDepth, call)
	}
}

func collectCompletion(ctx context.Context, sessionID, nodeID string, deps Deps, req llm.Request) (string, error) {
	deltas, errs := deps.Model.Complete(ctx, req)

	var reply strings.Builder
	var transportErr error

	for deltas != nil || errs != nil {
		select {
		case d, ok := <-deltas:
			if !ok {
				deltas = nil
				continue
			}
			reply.WriteString(d)
			deps.Stream.Send(ctx, events.NewToolInvocationChunk(sessionID, nodeID, d))
		case e, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			transportErr = e
			deltas, errs = nil, nil
		case <-ctx.Done():
			return reply.String(), ctx.Err()
		}
	}
	return reply.String(), transportErr
}

func handleIdle(ctx context.Context, sessionID string, log *exchange.Log, deps Deps, reply string) Result {
	appended := log.Append(exchange.Exchange{Role: exchange.RoleAssistant, Payload: exchange.Payload{Text: reply}, Terminal: true})
	deps.Stream.Send(ctx, events.NewExchangeAppended(sessionID, appended))
	return Result{Outcome: OutcomeIdle}
}

func handleParseFailure(ctx context.Context, sessionID string, log *exchange.Log, deps Deps, cfg Config, retry *RetryState, failure *toolcall.Failure) (Result, error) {
	appended := log.Append(exchange.Exchange{
		Role:    exchange.RoleToolResult,
		Payload: exchange.Payload{Text: failure.Error(), Result: failure},
	})
	deps.Stream.Send(ctx, events.NewExchangeAppended(sessionID, appended))

	if n := retry.incrParse(); n > cfg.ParseFailureRetries {
		deps.Stream.Send(ctx, events.NewError(sessionID, "parse_failure_budget_exhausted", failure.Error()))
		return Result{Outcome: OutcomeErrored}, fmt.Errorf("parse failure budget exhausted: %w", failure)
	}
	return Result{Outcome: OutcomeContinue}, nil
}

func handleToolCall(
	ctx context.Context,
	sessionID string,
	log *exchange.Log,
	deps Deps,
	cfg Config,
	retry *RetryState,
	view tooling.SessionView,
	nodeID, parentID string,
	parentDepth int,
	call *toolcall.Call,
) (Result, error) {
	desc, err := deps.Registry.Lookup(call.ToolName)
	if err != nil {
		// The parser validated call.ToolName against this same registry
		// moments ago; a lookup miss here is an invariant violation.
		return Result{Outcome: OutcomeErrored}, fmt.Errorf("step: tool %q vanished from registry between parse and invoke: %w", call.ToolName, err)
	}

	action := node.Action{ToolName: call.ToolName, Arguments: call.Arguments}
	var n *node.Node
	if parentID == "" {
		n = node.NewRoot(nodeID, action)
	} else {
		n = node.NewChild(nodeID, parentID, parentDepth, action)
	}

	if err := n.BeginExecuting(); err != nil {
		return Result{Outcome: OutcomeErrored, Node: n}, err
	}
	deps.Stream.Send(ctx, events.NewToolInvocationStarted(sessionID, nodeID, call.ToolName))

	timeout := desc.Timeout
	if timeout <= 0 {
		timeout = cfg.PerToolTimeout
	}
	toolCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var obs tooling.Observation
	var execErr error
	if deps.Limiter != nil && deps.Limiter.Wait(toolCtx) != nil {
		execErr = fmt.Errorf("tool %q rate limited", call.ToolName)
	} else {
		obs, execErr = desc.Executor.Execute(toolCtx, call.Arguments, view)
	}

	finalObs, failed := foldObservation(toolCtx, timeout, call.ToolName, obs, execErr)
	if failed {
		if err := n.Fail(finalObs); err != nil {
			return Result{Outcome: OutcomeErrored, Node: n}, err
		}
	} else if err := n.Finalize(finalObs, desc.IsTerminating); err != nil {
		return Result{Outcome: OutcomeErrored, Node: n}, err
	}

	deps.Stream.Send(ctx, events.NewToolInvocationCompleted(sessionID, nodeID, finalObs, failed))
	appended := log.Append(exchange.Exchange{
		Role:         exchange.RoleToolResult,
		Payload:      exchange.Payload{ToolName: call.ToolName, Result: finalObs},
		ActionNodeID: nodeID,
		Terminal:     desc.IsTerminating && !failed,
	})
	deps.Stream.Send(ctx, events.NewExchangeAppended(sessionID, appended))

	if failed {
		if failCount := retry.incrExecutor(call.ToolName); failCount >= cfg.ExecutorFailureRetries {
			return Result{Outcome: OutcomeErrored, Node: n}, fmt.Errorf("tool %q failed %d consecutive times", call.ToolName, failCount)
		}
		return Result{Outcome: OutcomeContinue, Node: n}, nil
	}

	retry.resetExecutor(call.ToolName)
	retry.resetParse()

	if desc.IsTerminating {
		if desc.PausesOnTerminate {
			return Result{Outcome: OutcomePaused, Node: n}, nil
		}
		return Result{Outcome: OutcomeCompleted, Node: n}, nil
	}
	return Result{Outcome: OutcomeContinue, Node: n}, nil
}

func foldObservation(toolCtx context.Context, timeout time.Duration, toolName string, obs tooling.Observation, execErr error) (node.Observation, bool) {
	if execErr == nil {
		return node.Observation{Text: obs.Text, Data: obs.Data}, false
	}

	kind, detail := "error", execErr.Error()
	var ee *tooling.ExecError
	switch {
	case errors.As(execErr, &ee):
		kind, detail = ee.Kind, ee.Detail
	case errors.Is(toolCtx.Err(), context.DeadlineExceeded):
		kind, detail = "timeout", fmt.Sprintf("tool %q exceeded %s", toolName, timeout)
	case errors.Is(toolCtx.Err(), context.Canceled):
		kind, detail = "cancelled", fmt.Sprintf("tool %q was cancelled", toolName)
	}
	return node.Observation{ErrorKind: kind, ErrorDetail: detail}, true
}

func renderTranscript(entries []exchange.Exchange) []llm.Turn {
	turns := make([]llm.Turn, 0, len(entries))
	for _, e := range entries {
		switch e.Role {
		case exchange.RoleUser:
			turns = append(turns, llm.Turn{Role: "user", Content: e.Payload.Text})
		case exchange.RoleAssistant:
			turns = append(turns, llm.Turn{Role: "assistant", Content: e.Payload.Text})
		case exchange.RoleToolResult:
			turns = append(turns, llm.Turn{Role: "tool", Content: formatToolResult(e.Payload)})
		}
	}
	return turns
}

func formatToolResult(p exchange.Payload) string {
	if obs, ok := p.Result.(node.Observation); ok {
		if obs.ErrorKind != "" {
			return fmt.Sprintf("[%s] error (%s): %s", p.ToolName, obs.ErrorKind, obs.ErrorDetail)
		}
		return fmt.Sprintf("[%s] %s", p.ToolName, truncateForPrompt(obs.Text))
	}
	return p.Text
}
