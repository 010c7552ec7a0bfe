// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tooling defines the Tool Descriptor contract: the schema and
// executor pair that the registry catalogs and the agent loop invokes.
package tooling

import (
	"context"
	"time"
)

// ArgType is the declared type of a tool argument. Only ArgTypeString
// arguments are populated from a tool call's raw element text; every
// other type is populated by JSON-decoding the element's inner content.
type ArgType int

const (
	ArgTypeString ArgType = iota
	ArgTypeInt
	ArgTypeFloat
	ArgTypeBool
	ArgTypeJSON
)

func (t ArgType) String() string {
	switch t {
	case ArgTypeString:
		return "string"
	case ArgTypeInt:
		return "int"
	case ArgTypeFloat:
		return "float"
	case ArgTypeBool:
		return "bool"
	case ArgTypeJSON:
		return "json"
	default:
		return "unknown"
	}
}

// IsStructured reports whether values of this type are parsed as JSON
// rather than taken verbatim as trimmed string text.
func (t ArgType) IsStructured() bool {
	return t != ArgTypeString
}

// ArgSpec describes one declared argument of a tool's invocation schema.
type ArgSpec struct {
	Type        ArgType
	Description string
	Required    bool
}

// SideEffect classifies what a tool does to the world beyond returning
// an observation, for system-prompt rendering. tree.Controller expands
// one node at a time and does not consult it.
type SideEffect int

const (
	SideEffectNone SideEffect = iota
	SideEffectReads
	SideEffectWrites
	SideEffectExecutes
)

func (s SideEffect) String() string {
	switch s {
	case SideEffectNone:
		return "none"
	case SideEffectReads:
		return "reads"
	case SideEffectWrites:
		return "writes"
	case SideEffectExecutes:
		return "executes"
	default:
		return "unknown"
	}
}

// ReadOnly reports whether concurrent invocations of a tool with this
// side-effect class are safe to run in parallel against the same session.
func (s SideEffect) ReadOnly() bool {
	return s == SideEffectNone || s == SideEffectReads
}

// SessionView is the read-only projection of session state handed to a
// tool executor. It never exposes mutation methods: executors observe,
// they do not drive the session state machine.
type SessionView interface {
	SessionID() string
	WorkspaceRoot() string
	OpenFiles() []string
	ProjectLabels() []string
}

// Observation is what a tool invocation produces on success.
type Observation struct {
	Text string
	Data any
}

// ExecError is a structured tool-execution failure. The agent loop folds
// it into a Failed Action Node without inspecting Go error chains further.
type ExecError struct {
	Kind    string
	Detail  string
	Elapsed time.Duration
}

func (e *ExecError) Error() string {
	if e.Kind == "" {
		return e.Detail
	}
	return e.Kind + ": " + e.Detail
}

// Executor performs the side effect named by a tool call and produces an
// Observation, or an error (ideally an *ExecError) describing the failure.
// Implementations must honor ctx cancellation: the core calls Execute
// synchronously, so an executor that ignores ctx holds the step past the
// descriptor's timeout until it returns.
type Executor interface {
	Execute(ctx context.Context, args map[string]any, view SessionView) (Observation, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, args map[string]any, view SessionView) (Observation, error)

func (f ExecutorFunc) Execute(ctx context.Context, args map[string]any, view SessionView) (Observation, error) {
	return f(ctx, args, view)
}

// Descriptor is the Tool Descriptor of §3: the schema, metadata, and
// executor registered under a unique tool name.
type Descriptor struct {
	Name           string
	Description    string
	ArgumentSchema map[string]ArgSpec
	IsTerminating  bool
	// PausesOnTerminate distinguishes the two terminating-tool outcomes of
	// §4.6: a completion attempt ends the session Completed, while a
	// follow-up question requiring user input ends it Paused instead.
	// Meaningless unless IsTerminating is set.
	PausesOnTerminate bool
	SideEffects       SideEffect
	Timeout           time.Duration
	Executor          Executor
}

// DefaultTimeout is used when a descriptor does not override it, per
// the configuration surface's per_tool_timeout_ms default.
const DefaultTimeout = 120 * time.Second

// EffectiveTimeout returns d.Timeout, or DefaultTimeout if unset.
func (d Descriptor) EffectiveTimeout() time.Duration {
	if d.Timeout <= 0 {
		return DefaultTimeout
	}
	return d.Timeout
}
