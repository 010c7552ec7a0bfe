// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package toolcall implements the Tool-Invocation Parser (C2): it turns a
// raw assistant reply into a structured tool call, validated against a
// registered tool's argument schema.
//
// Grammar: a tool call is a single XML-like block whose root tag is the
// name of a registered tool. Each child element whose tag matches a
// declared argument contributes a string (trimmed inner text) or a
// JSON-decoded structured value, depending on the argument's declared
// type. This grammar cannot be expressed with Go's RE2-based regexp
// package alone (the root tag name is not known ahead of time, so a
// backreference would be needed); blocks are instead located with a
// small hand-rolled scanner, findBlocks.
package toolcall

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/agentcore/decisioncore/internal/decisioncore/tooling"
)

// FailureKind enumerates why a reply failed to parse into a tool call.
type FailureKind int

const (
	FailureUnknownTool FailureKind = iota
	FailureMultipleCalls
	FailureMissingArgument
	FailureUnknownArgument
	FailureMalformedArgument
)

func (k FailureKind) String() string {
	switch k {
	case FailureUnknownTool:
		return "unknown_tool"
	case FailureMultipleCalls:
		return "multiple_calls"
	case FailureMissingArgument:
		return "missing_argument"
	case FailureUnknownArgument:
		return "unknown_argument"
	case FailureMalformedArgument:
		return "malformed_argument"
	default:
		return "unknown"
	}
}

// Failure describes why parsing did not produce a tool call. It does not
// terminate the agent loop: callers append it as a synthetic ToolResult
// observation so the model can self-correct (§4.2).
type Failure struct {
	Kind     FailureKind
	Detail   string
	Argument string // populated for FailureMissingArgument / FailureUnknownArgument
	Raw      string
}

func (f *Failure) Error() string {
	if f.Argument != "" {
		return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Detail, f.Argument)
	}
	return fmt.Sprintf("%s: %s", f.Kind, f.Detail)
}

// Call is a successfully parsed and validated tool invocation.
type Call struct {
	ToolName  string
	Arguments map[string]any
}

// Lookup is the subset of registry.Registry the parser depends on.
type Lookup interface {
	Lookup(name string) (tooling.Descriptor, error)
}

// Parser parses model replies against the schemas known to a Lookup.
type Parser struct {
	lookup Lookup
}

// New creates a Parser that validates tool calls against lookup.
func New(lookup Lookup) *Parser {
	return &Parser{lookup: lookup}
}

var openTagRe = regexp.MustCompile(`<([a-zA-Z_][\w-]*)(/?)>`)

type block struct {
	tag        string
	inner      string
	start, end int
}

// findBlocks scans s for top-level, non-nested `<tag>...</tag>` blocks,
// plus self-closing `<tag/>` blocks (inner is empty), in textual order.
// An opening tag with no matching close is skipped (its `<` is treated
// as stray text per §4.2's tie-break rule), not reported as an error.
func findBlocks(s string) []block {
	var blocks []block
	pos := 0
	for pos < len(s) {
		loc := openTagRe.FindStringSubmatchIndex(s[pos:])
		if loc == nil {
			break
		}
		tagStart := pos + loc[0]
		tagEnd := pos + loc[1]
		tagName := s[pos+loc[2] : pos+loc[3]]
		selfClosing := s[pos+loc[4]:pos+loc[5]] == "/"

		if selfClosing {
			blocks = append(blocks, block{tag: tagName, start: tagStart, end: tagEnd})
			pos = tagEnd
			continue
		}

		closeTag := "</" + tagName + ">"
		closeIdx := strings.Index(s[tagEnd:], closeTag)
		if closeIdx == -1 {
			pos = tagEnd
			continue
		}

		innerStart := tagEnd
		innerEnd := tagEnd + closeIdx
		blockEnd := innerEnd + len(closeTag)

		blocks = append(blocks, block{
			tag:   tagName,
			inner: s[innerStart:innerEnd],
			start: tagStart,
			end:   blockEnd,
		})
		pos = blockEnd
	}
	return blocks
}

// Parse parses reply into a Call, a Failure describing why it could not
// be parsed, or (nil, nil) if reply contains no tool-call block at all —
// per §8's boundary behavior this is treated by the caller as a terminal
// assistant message, not an error.
func (p *Parser) Parse(reply string) (*Call, *Failure) {
	roots := findBlocks(reply)
	if len(roots) == 0 {
		return nil, nil
	}
	if len(roots) > 1 {
		return nil, &Failure{Kind: FailureMultipleCalls, Detail: "reply contains more than one root tool-call block", Raw: reply}
	}

	root := roots[0]
	desc, err := p.lookup.Lookup(root.tag)
	if err != nil {
		return nil, &Failure{Kind: FailureUnknownTool, Detail: root.tag, Raw: reply}
	}

	args := make(map[string]any, len(desc.ArgumentSchema))
	for _, child := range findBlocks(root.inner) {
		spec, declared := desc.ArgumentSchema[child.tag]
		if !declared {
			return nil, &Failure{Kind: FailureUnknownArgument, Detail: root.tag, Argument: child.tag, Raw: reply}
		}

		if spec.Type == tooling.ArgTypeString {
			args[child.tag] = strings.TrimSpace(child.inner)
			continue
		}

		var v any
		if err := json.Unmarshal([]byte(child.inner), &v); err != nil {
			return nil, &Failure{Kind: FailureMalformedArgument, Detail: err.Error(), Argument: child.tag, Raw: reply}
		}
		args[child.tag] = v
	}

	var missing []string
	for name, spec := range desc.ArgumentSchema {
		if !spec.Required {
			continue
		}
		if _, ok := args[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &Failure{Kind: FailureMissingArgument, Detail: root.tag, Argument: missing[0], Raw: reply}
	}

	return &Call{ToolName: root.tag, Arguments: args}, nil
}
