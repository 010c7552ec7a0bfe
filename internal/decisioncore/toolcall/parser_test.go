// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package toolcall

import (
	"testing"

	"github.com/agentcore/decisioncore/internal/decisioncore/registry"
	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	r := registry.New()
	require.NoError(t, r.Register(tooling.Descriptor{
		Name: "echo",
		ArgumentSchema: map[string]tooling.ArgSpec{
			"text": {Type: tooling.ArgTypeString, Required: true},
		},
	}))
	require.NoError(t, r.Register(tooling.Descriptor{
		Name: "apply_patch",
		ArgumentSchema: map[string]tooling.ArgSpec{
			"diff":  {Type: tooling.ArgTypeString, Required: true},
			"files": {Type: tooling.ArgTypeJSON, Required: false},
		},
	}))
	return r
}

func TestParse_NoToolCall_ReturnsNil(t *testing.T) {
	p := New(newTestRegistry(t))
	call, failure := p.Parse("just a plain assistant message, no tool call here")
	assert.Nil(t, call)
	assert.Nil(t, failure)
}

func TestParse_Success_TrimsStringArgs(t *testing.T) {
	p := New(newTestRegistry(t))
	call, failure := p.Parse("preamble prose <echo><text>  hi there  </text></echo> trailing")
	require.Nil(t, failure)
	require.NotNil(t, call)
	assert.Equal(t, "echo", call.ToolName)
	assert.Equal(t, "hi there", call.Arguments["text"])
}

func TestParse_PreservesInternalWhitespace(t *testing.T) {
	p := New(newTestRegistry(t))
	call, failure := p.Parse("<echo><text>  line one\n  line two  </text></echo>")
	require.Nil(t, failure)
	assert.Equal(t, "line one\n  line two", call.Arguments["text"])
}

func TestParse_UnknownTool(t *testing.T) {
	p := New(newTestRegistry(t))
	_, failure := p.Parse("<not_a_tool><text>hi</text></not_a_tool>")
	require.NotNil(t, failure)
	assert.Equal(t, FailureUnknownTool, failure.Kind)
}

func TestParse_UnknownTool_SelfClosing(t *testing.T) {
	p := New(newTestRegistry(t))
	_, failure := p.Parse("<unknown_tool/>")
	require.NotNil(t, failure)
	assert.Equal(t, FailureUnknownTool, failure.Kind)
}

func TestParse_MultipleCalls(t *testing.T) {
	p := New(newTestRegistry(t))
	_, failure := p.Parse("<echo><text>a</text></echo> some text <echo><text>b</text></echo>")
	require.NotNil(t, failure)
	assert.Equal(t, FailureMultipleCalls, failure.Kind)
}

func TestParse_MissingArgument(t *testing.T) {
	p := New(newTestRegistry(t))
	_, failure := p.Parse("<echo></echo>")
	require.NotNil(t, failure)
	assert.Equal(t, FailureMissingArgument, failure.Kind)
	assert.Equal(t, "text", failure.Argument)
}

func TestParse_UnknownArgument(t *testing.T) {
	p := New(newTestRegistry(t))
	_, failure := p.Parse("<echo><text>hi</text><bogus>x</bogus></echo>")
	require.NotNil(t, failure)
	assert.Equal(t, FailureUnknownArgument, failure.Kind)
	assert.Equal(t, "bogus", failure.Argument)
}

func TestParse_StructuredJSONArgument(t *testing.T) {
	p := New(newTestRegistry(t))
	call, failure := p.Parse(`<apply_patch><diff>--- a\n+++ b\n</diff><files>["a.go", "b.go"]</files></apply_patch>`)
	require.Nil(t, failure)
	require.NotNil(t, call)
	files, ok := call.Arguments["files"].([]any)
	require.True(t, ok)
	assert.Equal(t, []any{"a.go", "b.go"}, files)
}

func TestParse_StrayAngleBracketIgnored(t *testing.T) {
	p := New(newTestRegistry(t))
	call, failure := p.Parse("a < b and <echo><text>hi</text></echo>")
	require.Nil(t, failure)
	require.NotNil(t, call)
	assert.Equal(t, "echo", call.ToolName)
}
