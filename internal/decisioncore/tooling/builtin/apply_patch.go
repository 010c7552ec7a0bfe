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
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
	"github.com/sourcegraph/go-diff/diff"
)

// ApplyPatch is the one Writes-side-effect built-in tool: it accepts a
// unified diff and applies it to the session's workspace, following the
// teacher's hunk-walking approach to patch application
// (services/code_buddy/validate/patch.go's applyDiff), adapted here to
// actually write the result rather than only validate it.
func ApplyPatch() tooling.Descriptor {
	return tooling.Descriptor{
		Name:        "apply_patch",
		Description: "Applies a unified diff to one or more files in the workspace.",
		ArgumentSchema: map[string]tooling.ArgSpec{
			"diff": {Type: tooling.ArgTypeString, Description: "unified diff text", Required: true},
		},
		SideEffects: tooling.SideEffectWrites,
		Executor:    tooling.ExecutorFunc(executeApplyPatch),
	}
}

func executeApplyPatch(_ context.Context, args map[string]any, view tooling.SessionView) (tooling.Observation, error) {
	patchText, _ := args["diff"].(string)
	if strings.TrimSpace(patchText) == "" {
		return tooling.Observation{}, &tooling.ExecError{Kind: "invalid_argument", Detail: "diff must not be empty"}
	}

	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(patchText)).ReadAllFiles()
	if err != nil {
		return tooling.Observation{}, &tooling.ExecError{Kind: "diff_parse_error", Detail: err.Error()}
	}

	root := view.WorkspaceRoot()
	var changed []string
	var linesAdded, linesRemoved int

	for _, fd := range fileDiffs {
		filePath := fd.NewName
		if filePath == "" || filePath == "/dev/null" {
			filePath = fd.OrigName
		}
		filePath = strings.TrimPrefix(filePath, "a/")
		filePath = strings.TrimPrefix(filePath, "b/")

		absPath := filepath.Join(root, filePath)
		if !withinRoot(root, absPath) {
			return tooling.Observation{}, &tooling.ExecError{Kind: "path_escape", Detail: filePath}
		}

		var original []byte
		if info, statErr := os.Stat(absPath); statErr == nil && !info.IsDir() {
			original, err = os.ReadFile(absPath)
			if err != nil {
				return tooling.Observation{}, &tooling.ExecError{Kind: "io_error", Detail: err.Error()}
			}
		}

		newContent, added, removed := applyHunks(original, fd)
		linesAdded += added
		linesRemoved += removed

		if fd.NewName == "/dev/null" {
			if err := os.Remove(absPath); err != nil && !os.IsNotExist(err) {
				return tooling.Observation{}, &tooling.ExecError{Kind: "io_error", Detail: err.Error()}
			}
		} else {
			if err := os.MkdirAll(filepath.Dir(absPath), 0750); err != nil {
				return tooling.Observation{}, &tooling.ExecError{Kind: "io_error", Detail: err.Error()}
			}
			if err := os.WriteFile(absPath, newContent, 0644); err != nil {
				return tooling.Observation{}, &tooling.ExecError{Kind: "io_error", Detail: err.Error()}
			}
		}
		changed = append(changed, filePath)
	}

	return tooling.Observation{
		Text: fmt.Sprintf("applied patch to %d file(s): %s", len(changed), strings.Join(changed, ", ")),
		Data: map[string]any{
			"files_changed": changed,
			"lines_added":   linesAdded,
			"lines_removed": linesRemoved,
		},
	}, nil
}

// applyHunks applies fd's hunks to original, returning the patched
// content and the added/removed line counts. Grounded on the teacher's
// PatchValidator.applyDiff walk of +/-/context hunk lines.
func applyHunks(original []byte, fd *diff.FileDiff) ([]byte, int, int) {
	if fd.NewName == "/dev/null" {
		return nil, 0, 0
	}

	if fd.OrigName == "/dev/null" || len(original) == 0 {
		var lines []string
		added := 0
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
					lines = append(lines, strings.TrimPrefix(line, "+"))
					added++
				}
			}
		}
		return []byte(strings.Join(lines, "\n")), added, 0
	}

	origLines := strings.Split(string(original), "\n")
	newLines := make([]string, 0, len(origLines))
	added, removed := 0, 0

	origIdx := 0
	for _, hunk := range fd.Hunks {
		hunkStart := int(hunk.OrigStartLine) - 1
		for origIdx < hunkStart && origIdx < len(origLines) {
			newLines = append(newLines, origLines[origIdx])
			origIdx++
		}

		for _, line := range strings.Split(string(hunk.Body), "\n") {
			switch {
			case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
				newLines = append(newLines, strings.TrimPrefix(line, "+"))
				added++
			case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
				origIdx++
				removed++
			case strings.HasPrefix(line, " ") || line == "":
				if origIdx < len(origLines) {
					newLines = append(newLines, origLines[origIdx])
					origIdx++
				}
			}
		}
	}

	for origIdx < len(origLines) {
		newLines = append(newLines, origLines[origIdx])
		origIdx++
	}

	return []byte(strings.Join(newLines, "\n")), added, removed
}

// withinRoot reports whether absPath resolves inside root, rejecting a
// diff that tries to write outside the workspace via ../ segments.
func withinRoot(root, absPath string) bool {
	cleanRoot := filepath.Clean(root)
	cleanPath := filepath.Clean(absPath)
	if cleanPath == cleanRoot {
		return true
	}
	return strings.HasPrefix(cleanPath, cleanRoot+string(filepath.Separator))
}
