// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package builtin

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeView struct{ root string }

func (v fakeView) SessionID() string      { return "sess-1" }
func (v fakeView) WorkspaceRoot() string  { return v.root }
func (v fakeView) OpenFiles() []string    { return nil }
func (v fakeView) ProjectLabels() []string { return nil }

func TestEcho_ReturnsTextVerbatim(t *testing.T) {
	desc := Echo()
	obs, err := desc.Executor.Execute(context.Background(), map[string]any{"text": "hello"}, fakeView{})
	require.NoError(t, err)
	assert.Equal(t, "hello", obs.Text)
}

func TestAttemptCompletion_IsTerminatingAndNonPausing(t *testing.T) {
	desc := AttemptCompletion()
	assert.True(t, desc.IsTerminating)
	assert.False(t, desc.PausesOnTerminate)

	obs, err := desc.Executor.Execute(context.Background(), map[string]any{"result": "done"}, fakeView{})
	require.NoError(t, err)
	assert.Equal(t, "done", obs.Text)
}

func TestAskFollowupQuestion_IsTerminatingAndPausing(t *testing.T) {
	desc := AskFollowupQuestion()
	assert.True(t, desc.IsTerminating)
	assert.True(t, desc.PausesOnTerminate)

	obs, err := desc.Executor.Execute(context.Background(), map[string]any{"question": "which file?"}, fakeView{})
	require.NoError(t, err)
	assert.Equal(t, "which file?", obs.Text)
}

func TestApplyPatch_CreatesNewFile(t *testing.T) {
	root := t.TempDir()
	desc := ApplyPatch()

	patch := "--- /dev/null\n+++ b/hello.txt\n@@ -0,0 +1,2 @@\n+line one\n+line two\n"
	obs, err := desc.Executor.Execute(context.Background(), map[string]any{"diff": patch}, fakeView{root: root})
	require.NoError(t, err)
	assert.Contains(t, obs.Text, "hello.txt")

	got, err := os.ReadFile(filepath.Join(root, "hello.txt"))
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", string(got))
}

func TestApplyPatch_ModifiesExistingFile(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("a\nb\nc"), 0644))

	desc := ApplyPatch()
	patch := "--- a/existing.txt\n+++ b/existing.txt\n@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n"
	_, err := desc.Executor.Execute(context.Background(), map[string]any{"diff": patch}, fakeView{root: root})
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(root, "existing.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc", string(got))
}

func TestApplyPatch_RejectsEmptyDiff(t *testing.T) {
	desc := ApplyPatch()
	_, err := desc.Executor.Execute(context.Background(), map[string]any{"diff": ""}, fakeView{root: t.TempDir()})
	require.Error(t, err)
	var execErr *tooling.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "invalid_argument", execErr.Kind)
}

func TestApplyPatch_RejectsMalformedHunkHeader(t *testing.T) {
	desc := ApplyPatch()
	patch := "--- a/f.txt\n+++ b/f.txt\n@@ not a valid range @@\n context\n"
	_, err := desc.Executor.Execute(context.Background(), map[string]any{"diff": patch}, fakeView{root: t.TempDir()})
	require.Error(t, err)
	var execErr *tooling.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "diff_parse_error", execErr.Kind)
}

func TestApplyPatch_RejectsPathEscape(t *testing.T) {
	root := t.TempDir()
	desc := ApplyPatch()
	patch := "--- /dev/null\n+++ b/../../etc/passwd\n@@ -0,0 +1,1 @@\n+pwned\n"
	_, err := desc.Executor.Execute(context.Background(), map[string]any{"diff": patch}, fakeView{root: root})
	require.Error(t, err)
	var execErr *tooling.ExecError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, "path_escape", execErr.Kind)
}
